package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/vendasul/api/internal/database"
	"github.com/vendasul/api/internal/enum"
)

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
	committed   bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = true
	return nil
}
func (m *mockTx) Rollback(ctx context.Context) error { return m.rollbackErr }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// mockOrderStore implements OrderStore with configurable behavior.
type mockOrderStore struct {
	getCustomerFn        func(ctx context.Context, id uuid.UUID) (database.Customer, error)
	getSalesRepFn        func(ctx context.Context, id uuid.UUID) (database.SalesRep, error)
	getProductFn         func(ctx context.Context, id uuid.UUID) (database.Product, error)
	getOrderByMobileIDFn func(ctx context.Context, mobileOrderID string) (database.Order, error)
	createOrderFn        func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	createOrderItemFn    func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

func (m *mockOrderStore) GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error) {
	return m.getCustomerFn(ctx, id)
}
func (m *mockOrderStore) GetSalesRep(ctx context.Context, id uuid.UUID) (database.SalesRep, error) {
	return m.getSalesRepFn(ctx, id)
}
func (m *mockOrderStore) GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error) {
	return m.getProductFn(ctx, id)
}
func (m *mockOrderStore) GetOrderByMobileID(ctx context.Context, mobileOrderID string) (database.Order, error) {
	return m.getOrderByMobileIDFn(ctx, mobileOrderID)
}
func (m *mockOrderStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	return m.createOrderFn(ctx, arg)
}
func (m *mockOrderStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	return m.createOrderItemFn(ctx, arg)
}

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	d := numericToDecimal(n)
	exp, _ := decimal.NewFromString(expected)
	return d.Equal(exp)
}

// newTestOrderService creates an OrderService with mocked dependencies.
func newTestOrderService(store *mockOrderStore) (*OrderService, *mockTx) {
	tx := &mockTx{}
	pool := &mockTxBeginner{tx: tx}
	newStore := func(db database.DBTX) OrderStore { return store }
	return NewOrderService(pool, store, newStore), tx
}

// defaultOrderStore returns a mockOrderStore with sensible defaults.
// Individual tests override the functions they care about.
func defaultOrderStore(customerID, productID uuid.UUID) *mockOrderStore {
	return &mockOrderStore{
		getCustomerFn: func(ctx context.Context, id uuid.UUID) (database.Customer, error) {
			if id == customerID {
				return database.Customer{ID: customerID, Name: "Mercado Central"}, nil
			}
			return database.Customer{}, pgx.ErrNoRows
		},
		getSalesRepFn: func(ctx context.Context, id uuid.UUID) (database.SalesRep, error) {
			return database.SalesRep{}, pgx.ErrNoRows
		},
		getProductFn: func(ctx context.Context, id uuid.UUID) (database.Product, error) {
			if id == productID {
				return database.Product{
					ID:    productID,
					Code:  "P-100",
					Name:  "Arroz 5kg",
					Unit:  "FD",
					Price: makeNumeric("25.00"),
				}, nil
			}
			return database.Product{}, pgx.ErrNoRows
		},
		getOrderByMobileIDFn: func(ctx context.Context, mobileOrderID string) (database.Order, error) {
			return database.Order{}, pgx.ErrNoRows
		},
		createOrderFn: func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
			return database.Order{
				ID:           uuid.New(),
				CustomerID:   arg.CustomerID,
				CustomerName: arg.CustomerName,
				Subtotal:     arg.Subtotal,
				Discount:     arg.Discount,
				TotalAmount:  arg.TotalAmount,
				Status:       arg.Status,
				Source:       arg.Source,
			}, nil
		},
		createOrderItemFn: func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
			return database.OrderItem{
				ID:          uuid.New(),
				OrderID:     arg.OrderID,
				ProductID:   arg.ProductID,
				ProductCode: arg.ProductCode,
				Quantity:    arg.Quantity,
				Unit:        arg.Unit,
				UnitPrice:   arg.UnitPrice,
				Total:       arg.Total,
			}, nil
		},
	}
}

func TestCreateOrderBasic(t *testing.T) {
	customerID := uuid.New()
	productID := uuid.New()
	store := defaultOrderStore(customerID, productID)
	svc, tx := newTestOrderService(store)

	result, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: customerID.String(),
		Items: []CreateOrderItemRequest{
			{ProductID: productID.String(), Quantity: "4"},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !tx.committed {
		t.Error("transaction was not committed")
	}
	if result.Order.Status != enum.OrderStatusImported {
		t.Errorf("status = %s, want IMPORTED for manual orders", result.Order.Status)
	}
	if !numericEquals(result.Order.TotalAmount, "100.00") {
		t.Errorf("total = %v, want 100.00", numericToDecimal(result.Order.TotalAmount))
	}
	if len(result.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(result.Items))
	}
	if result.Items[0].Unit != "FD" {
		t.Errorf("unit = %s, want product default FD", result.Items[0].Unit)
	}
}

func TestCreateOrderMergesDuplicateLines(t *testing.T) {
	customerID := uuid.New()
	productID := uuid.New()
	store := defaultOrderStore(customerID, productID)

	var inserted []database.CreateOrderItemParams
	base := store.createOrderItemFn
	store.createOrderItemFn = func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
		inserted = append(inserted, arg)
		return base(ctx, arg)
	}

	svc, _ := newTestOrderService(store)

	result, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: customerID.String(),
		Items: []CreateOrderItemRequest{
			{ProductID: productID.String(), Quantity: "2", UnitPrice: "10.00"},
			{ProductID: productID.String(), Quantity: "3", UnitPrice: "12.00"},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("inserted %d item rows, want 1 merged line", len(inserted))
	}
	if !numericEquals(inserted[0].Quantity, "5") {
		t.Errorf("merged quantity = %v, want 5", numericToDecimal(inserted[0].Quantity))
	}
	if !numericEquals(inserted[0].UnitPrice, "12.00") {
		t.Errorf("merged price = %v, want the later price 12.00", numericToDecimal(inserted[0].UnitPrice))
	}
	if !numericEquals(inserted[0].Total, "60.00") {
		t.Errorf("merged total = %v, want 60.00", numericToDecimal(inserted[0].Total))
	}
	if !numericEquals(result.Order.TotalAmount, "60.00") {
		t.Errorf("order total = %v, want 60.00", numericToDecimal(result.Order.TotalAmount))
	}
}

func TestCreateOrderKeepsDistinctUnits(t *testing.T) {
	customerID := uuid.New()
	productID := uuid.New()
	store := defaultOrderStore(customerID, productID)

	var inserted []database.CreateOrderItemParams
	base := store.createOrderItemFn
	store.createOrderItemFn = func(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
		inserted = append(inserted, arg)
		return base(ctx, arg)
	}

	svc, _ := newTestOrderService(store)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: customerID.String(),
		Items: []CreateOrderItemRequest{
			{ProductID: productID.String(), Quantity: "1", Unit: "UN", UnitPrice: "5.00"},
			{ProductID: productID.String(), Quantity: "1", Unit: "CX", UnitPrice: "50.00"},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if len(inserted) != 2 {
		t.Fatalf("inserted %d item rows, want 2 (different units do not merge)", len(inserted))
	}
}

func TestCreateOrderValidation(t *testing.T) {
	customerID := uuid.New()
	productID := uuid.New()

	tests := []struct {
		name    string
		req     CreateOrderRequest
		wantErr error
	}{
		{
			name:    "no items",
			req:     CreateOrderRequest{CustomerID: customerID.String()},
			wantErr: ErrEmptyItems,
		},
		{
			name: "bad customer id",
			req: CreateOrderRequest{
				CustomerID: "not-a-uuid",
				Items:      []CreateOrderItemRequest{{ProductID: productID.String(), Quantity: "1"}},
			},
			wantErr: ErrInvalidCustomerID,
		},
		{
			name: "unknown customer",
			req: CreateOrderRequest{
				CustomerID: uuid.NewString(),
				Items:      []CreateOrderItemRequest{{ProductID: productID.String(), Quantity: "1"}},
			},
			wantErr: ErrCustomerNotFound,
		},
		{
			name: "zero quantity",
			req: CreateOrderRequest{
				CustomerID: customerID.String(),
				Items:      []CreateOrderItemRequest{{ProductID: productID.String(), Quantity: "0"}},
			},
			wantErr: ErrInvalidQuantity,
		},
		{
			name: "unknown product",
			req: CreateOrderRequest{
				CustomerID: customerID.String(),
				Items:      []CreateOrderItemRequest{{ProductID: uuid.NewString(), Quantity: "1"}},
			},
			wantErr: ErrProductNotFound,
		},
		{
			name: "negative price",
			req: CreateOrderRequest{
				CustomerID: customerID.String(),
				Items:      []CreateOrderItemRequest{{ProductID: productID.String(), Quantity: "1", UnitPrice: "-1"}},
			},
			wantErr: ErrInvalidPrice,
		},
		{
			name: "bad payment method",
			req: CreateOrderRequest{
				CustomerID:    customerID.String(),
				PaymentMethod: "GOLD",
				Items:         []CreateOrderItemRequest{{ProductID: productID.String(), Quantity: "1"}},
			},
			wantErr: ErrInvalidPaymentMethod,
		},
		{
			name: "unknown sales rep",
			req: CreateOrderRequest{
				CustomerID: customerID.String(),
				SalesRepID: uuid.NewString(),
				Items:      []CreateOrderItemRequest{{ProductID: productID.String(), Quantity: "1"}},
			},
			wantErr: ErrSalesRepNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestOrderService(defaultOrderStore(customerID, productID))
			_, err := svc.CreateOrder(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateOrderMobilePendingStatus(t *testing.T) {
	customerID := uuid.New()
	productID := uuid.New()
	store := defaultOrderStore(customerID, productID)
	svc, _ := newTestOrderService(store)

	result, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID:    customerID.String(),
		Source:        enum.OrderSourceMobile,
		MobileOrderID: "device1-42",
		Items:         []CreateOrderItemRequest{{ProductID: productID.String(), Quantity: "1"}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if result.Order.Status != enum.OrderStatusPending {
		t.Errorf("status = %s, want PENDING for mobile orders", result.Order.Status)
	}
}

func TestCreateOrderMobileResendReturnsExisting(t *testing.T) {
	customerID := uuid.New()
	productID := uuid.New()
	existingID := uuid.New()

	store := defaultOrderStore(customerID, productID)
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		return database.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_mobile_order_id_key"}
	}
	store.getOrderByMobileIDFn = func(ctx context.Context, mobileOrderID string) (database.Order, error) {
		if mobileOrderID == "device1-42" {
			return database.Order{ID: existingID, Status: enum.OrderStatusPending}, nil
		}
		return database.Order{}, pgx.ErrNoRows
	}
	svc, _ := newTestOrderService(store)

	result, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID:    customerID.String(),
		Source:        enum.OrderSourceMobile,
		MobileOrderID: "device1-42",
		Items:         []CreateOrderItemRequest{{ProductID: productID.String(), Quantity: "1"}},
	})
	if err != nil {
		t.Fatalf("CreateOrder resend: %v", err)
	}
	if !result.Existing {
		t.Error("Existing should be true on a resend")
	}
	if result.Order.ID != existingID {
		t.Errorf("order id = %s, want the stored order %s", result.Order.ID, existingID)
	}
}

func TestCreateOrderStoreFailure(t *testing.T) {
	customerID := uuid.New()
	productID := uuid.New()
	store := defaultOrderStore(customerID, productID)
	storeErr := errors.New("connection refused")
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		return database.Order{}, storeErr
	}
	svc, tx := newTestOrderService(store)

	_, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		CustomerID: customerID.String(),
		Items:      []CreateOrderItemRequest{{ProductID: productID.String(), Quantity: "1"}},
	})
	if !errors.Is(err, storeErr) {
		t.Fatalf("got %v, want wrapped store error", err)
	}
	if tx.committed {
		t.Error("transaction must not commit on failure")
	}
}
