package enum

// Order statuses. CHECK constrained in the DB.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusImported  = "IMPORTED"
	OrderStatusRejected  = "REJECTED"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusCancelled = "CANCELLED"
)

// Load statuses.
const (
	LoadStatusOpen       = "OPEN"
	LoadStatusDispatched = "DISPATCHED"
	LoadStatusClosed     = "CLOSED"
)

const (
	UserRoleAdmin    = "ADMIN"
	UserRoleOperator = "OPERATOR"
)

const (
	OrderSourceManual = "MANUAL"
	OrderSourceMobile = "MOBILE"
)

// Payment methods. Labels only, not constrained in the DB.
const (
	PaymentMethodCash     = "CASH"
	PaymentMethodPix      = "PIX"
	PaymentMethodTransfer = "TRANSFER"
	PaymentMethodCredit   = "CREDIT"
	PaymentMethodBoleto   = "BOLETO"
)

// IsValidPaymentMethod reports whether s names a known payment method.
func IsValidPaymentMethod(s string) bool {
	switch s {
	case PaymentMethodCash, PaymentMethodPix, PaymentMethodTransfer,
		PaymentMethodCredit, PaymentMethodBoleto:
		return true
	}
	return false
}

// UnitDefault is the fallback unit tag for order items without one.
const UnitDefault = "UN"

// Sync data types that mobile clients know how to re-fetch.
const (
	SyncDataCustomers = "customers"
	SyncDataProducts  = "products"
	SyncDataSalesReps = "sales_reps"
	SyncDataOrders    = "orders"
	SyncDataRoutes    = "routes"
)

// SyncDataTypes lists every valid sync data type.
var SyncDataTypes = []string{
	SyncDataCustomers,
	SyncDataProducts,
	SyncDataSalesReps,
	SyncDataOrders,
	SyncDataRoutes,
}

// IsValidSyncDataType reports whether s names a known sync data type.
func IsValidSyncDataType(s string) bool {
	for _, dt := range SyncDataTypes {
		if s == dt {
			return true
		}
	}
	return false
}
