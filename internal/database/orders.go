package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, customer_id, customer_name, sales_rep_id, sales_rep_name, order_date,
subtotal, discount, total_amount, payment_method, status, source, mobile_order_id, notes,
created_at, updated_at`

const orderColumnsPrefixed = `o.id, o.customer_id, o.customer_name, o.sales_rep_id, o.sales_rep_name, o.order_date,
o.subtotal, o.discount, o.total_amount, o.payment_method, o.status, o.source, o.mobile_order_id, o.notes,
o.created_at, o.updated_at`

func scanOrder(row interface{ Scan(dest ...interface{}) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.CustomerName,
		&o.SalesRepID,
		&o.SalesRepName,
		&o.OrderDate,
		&o.Subtotal,
		&o.Discount,
		&o.TotalAmount,
		&o.PaymentMethod,
		&o.Status,
		&o.Source,
		&o.MobileOrderID,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	return o, err
}

type CreateOrderParams struct {
	CustomerID    pgtype.UUID
	CustomerName  string
	SalesRepID    pgtype.UUID
	SalesRepName  pgtype.Text
	OrderDate     pgtype.Timestamptz
	Subtotal      pgtype.Numeric
	Discount      pgtype.Numeric
	TotalAmount   pgtype.Numeric
	PaymentMethod pgtype.Text
	Status        string
	Source        string
	MobileOrderID pgtype.Text
	Notes         pgtype.Text
}

const createOrder = `
INSERT INTO orders (customer_id, customer_name, sales_rep_id, sales_rep_name, order_date,
                    subtotal, discount, total_amount, payment_method, status, source,
                    mobile_order_id, notes)
VALUES ($1, $2, $3, $4, COALESCE($5, now()), $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + orderColumns + `
`

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.CustomerID,
		arg.CustomerName,
		arg.SalesRepID,
		arg.SalesRepName,
		arg.OrderDate,
		arg.Subtotal,
		arg.Discount,
		arg.TotalAmount,
		arg.PaymentMethod,
		arg.Status,
		arg.Source,
		arg.MobileOrderID,
		arg.Notes,
	))
}

const getOrder = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
FOR NO KEY UPDATE
`

// GetOrderForUpdate locks the order row to serialize concurrent mutations.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const getOrderByMobileID = `
SELECT ` + orderColumns + `
FROM orders
WHERE mobile_order_id = $1
`

func (q *Queries) GetOrderByMobileID(ctx context.Context, mobileOrderID string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByMobileID, mobileOrderID))
}

type ListOrdersParams struct {
	Status     pgtype.Text
	Source     pgtype.Text
	SalesRepID pgtype.UUID
	CustomerID pgtype.UUID
	From       pgtype.Timestamptz
	To         pgtype.Timestamptz
	Limit      int32
	Offset     int32
}

const listOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::text IS NULL OR status = $1)
  AND ($2::text IS NULL OR source = $2)
  AND ($3::uuid IS NULL OR sales_rep_id = $3)
  AND ($4::uuid IS NULL OR customer_id = $4)
  AND ($5::timestamptz IS NULL OR order_date >= $5)
  AND ($6::timestamptz IS NULL OR order_date < $6)
ORDER BY order_date DESC, created_at DESC
LIMIT $7 OFFSET $8
`

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders,
		arg.Status,
		arg.Source,
		arg.SalesRepID,
		arg.CustomerID,
		arg.From,
		arg.To,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

const listPendingMobileOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE status = 'PENDING' AND source = 'MOBILE'
ORDER BY created_at
`

// ListPendingMobileOrders returns every mobile order awaiting import review.
func (q *Queries) ListPendingMobileOrders(ctx context.Context) ([]Order, error) {
	rows, err := q.db.Query(ctx, listPendingMobileOrders)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type UpdateOrdersStatusParams struct {
	IDs    []uuid.UUID
	Status string
}

const updateOrdersStatus = `
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = ANY($1)
`

// UpdateOrdersStatus bulk-updates the status of the given orders and returns
// how many rows changed.
func (q *Queries) UpdateOrdersStatus(ctx context.Context, arg UpdateOrdersStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, updateOrdersStatus, arg.IDs, arg.Status)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type UpdateOrderStatusParams struct {
	ID     uuid.UUID
	Status string
}

const updateOrderStatus = `
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns + `
`

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status))
}

type UpdateOrderTotalsParams struct {
	ID          uuid.UUID
	Subtotal    pgtype.Numeric
	Discount    pgtype.Numeric
	TotalAmount pgtype.Numeric
}

const updateOrderTotals = `
UPDATE orders
SET subtotal = $2, discount = $3, total_amount = $4, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns + `
`

func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderTotals,
		arg.ID,
		arg.Subtotal,
		arg.Discount,
		arg.TotalAmount,
	))
}

// --- Order items ---

const orderItemColumns = `id, order_id, product_id, product_code, product_name, quantity, unit,
unit_price, discount, total, created_at`

func scanOrderItem(row interface{ Scan(dest ...interface{}) error }) (OrderItem, error) {
	var it OrderItem
	err := row.Scan(
		&it.ID,
		&it.OrderID,
		&it.ProductID,
		&it.ProductCode,
		&it.ProductName,
		&it.Quantity,
		&it.Unit,
		&it.UnitPrice,
		&it.Discount,
		&it.Total,
		&it.CreatedAt,
	)
	return it, err
}

type CreateOrderItemParams struct {
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductCode string
	ProductName string
	Quantity    pgtype.Numeric
	Unit        string
	UnitPrice   pgtype.Numeric
	Discount    pgtype.Numeric
	Total       pgtype.Numeric
}

const createOrderItem = `
INSERT INTO order_items (order_id, product_id, product_code, product_name, quantity, unit,
                         unit_price, discount, total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + orderItemColumns + `
`

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.ProductID,
		arg.ProductCode,
		arg.ProductName,
		arg.Quantity,
		arg.Unit,
		arg.UnitPrice,
		arg.Discount,
		arg.Total,
	))
}

type UpsertOrderItemParams struct {
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductCode string
	ProductName string
	Quantity    pgtype.Numeric
	Unit        string
	UnitPrice   pgtype.Numeric
	Discount    pgtype.Numeric
	Total       pgtype.Numeric
}

const upsertOrderItem = `
INSERT INTO order_items (order_id, product_id, product_code, product_name, quantity, unit,
                         unit_price, discount, total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (order_id, product_id, unit) DO UPDATE
SET quantity = EXCLUDED.quantity,
    unit_price = EXCLUDED.unit_price,
    discount = EXCLUDED.discount,
    total = EXCLUDED.total
RETURNING ` + orderItemColumns + `
`

// UpsertOrderItem writes a merged line: same (order, product, unit) replaces
// quantity and price rather than inserting a duplicate row.
func (q *Queries) UpsertOrderItem(ctx context.Context, arg UpsertOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, upsertOrderItem,
		arg.OrderID,
		arg.ProductID,
		arg.ProductCode,
		arg.ProductName,
		arg.Quantity,
		arg.Unit,
		arg.UnitPrice,
		arg.Discount,
		arg.Total,
	))
}

const listOrderItemsByOrder = `
SELECT ` + orderItemColumns + `
FROM order_items
WHERE order_id = $1
ORDER BY created_at
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type DeleteOrderItemsByProductCodeParams struct {
	OrderID     uuid.UUID
	ProductCode string
}

const deleteOrderItemsByProductCode = `
DELETE FROM order_items
WHERE order_id = $1 AND product_code = $2
`

// DeleteOrderItemsByProductCode removes every line of the product from the
// order, across units. Keyed by product code to match the mobile clients,
// which identify items by code.
func (q *Queries) DeleteOrderItemsByProductCode(ctx context.Context, arg DeleteOrderItemsByProductCodeParams) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteOrderItemsByProductCode, arg.OrderID, arg.ProductCode)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
