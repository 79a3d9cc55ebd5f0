package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/vendasul/api/internal/database"
	"github.com/vendasul/api/internal/enum"
)

// Errors returned by the order service.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidCustomerID    = errors.New("invalid customer_id")
	ErrInvalidSalesRepID    = errors.New("invalid sales_rep_id")
	ErrInvalidProductID     = errors.New("invalid product_id")
	ErrInvalidOrderDate     = errors.New("invalid order_date")
	ErrInvalidDiscount      = errors.New("invalid discount")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrSalesRepNotFound     = errors.New("sales rep not found")
	ErrProductNotFound      = errors.New("product not found")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to create orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (database.Customer, error)
	GetSalesRep(ctx context.Context, id uuid.UUID) (database.SalesRep, error)
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
	GetOrderByMobileID(ctx context.Context, mobileOrderID string) (database.Order, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	CustomerID    string
	SalesRepID    string
	OrderDate     string // RFC3339, optional
	PaymentMethod string
	Discount      string
	Notes         string
	Source        string
	MobileOrderID string
	Items         []CreateOrderItemRequest
}

// CreateOrderItemRequest is a single item line in the order.
type CreateOrderItemRequest struct {
	ProductID string
	Quantity  string
	UnitPrice string // optional, defaults to the product's list price
	Unit      string // optional, defaults to the product's unit
	Discount  string
}

// CreateOrderResult is the created order with its persisted items. Existing
// is true when a mobile resend matched an already imported order and no new
// row was written.
type CreateOrderResult struct {
	Order    database.Order
	Items    []database.OrderItem
	Existing bool
}

// OrderService handles order business logic. store reads outside any
// transaction; newStore builds transaction-scoped stores.
type OrderService struct {
	pool     TxBeginner
	store    OrderStore
	newStore NewOrderStore
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, store OrderStore, newStore NewOrderStore) *OrderService {
	return &OrderService{pool: pool, store: store, newStore: newStore}
}

// itemLine is an item after validation and merging, ready to insert.
type itemLine struct {
	product   database.Product
	unit      string
	quantity  decimal.Decimal
	unitPrice decimal.Decimal
	discount  decimal.Decimal
}

// CreateOrder validates, merges duplicate item lines, calculates totals and
// creates the order atomically. Two request items naming the same product and
// unit collapse into one line: quantities add up, the later price wins.
// For mobile orders the mobile_order_id makes the call idempotent: a resend
// of an order that already exists returns the stored order unchanged.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.PaymentMethod != "" && !enum.IsValidPaymentMethod(req.PaymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}

	result, err := s.createOrderTx(ctx, req)
	if err == nil {
		return result, nil
	}
	if req.MobileOrderID != "" && isMobileOrderConflict(err) {
		return s.existingMobileOrder(ctx, req.MobileOrderID)
	}
	return nil, err
}

// isMobileOrderConflict checks if the error is a unique constraint violation
// on the mobile order id (pgconn error code 23505).
func isMobileOrderConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_mobile_order_id_key"
	}
	return false
}

// existingMobileOrder resolves a resend to the order stored the first time.
func (s *OrderService) existingMobileOrder(ctx context.Context, mobileOrderID string) (*CreateOrderResult, error) {
	order, err := s.store.GetOrderByMobileID(ctx, mobileOrderID)
	if err != nil {
		return nil, fmt.Errorf("get order by mobile id: %w", err)
	}
	return &CreateOrderResult{Order: order, Existing: true}, nil
}

// createOrderTx executes the full order creation in a single transaction.
func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Resolve customer ---
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return nil, ErrInvalidCustomerID
	}
	customer, err := store.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	// --- Resolve sales rep if provided ---
	salesRepID := pgtype.UUID{}
	salesRepName := pgtype.Text{}
	if req.SalesRepID != "" {
		rid, err := uuid.Parse(req.SalesRepID)
		if err != nil {
			return nil, ErrInvalidSalesRepID
		}
		rep, err := store.GetSalesRep(ctx, rid)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrSalesRepNotFound
			}
			return nil, fmt.Errorf("get sales rep: %w", err)
		}
		salesRepID = pgtype.UUID{Bytes: rid, Valid: true}
		salesRepName = pgtype.Text{String: rep.Name, Valid: true}
	}

	// --- Validate items and merge duplicate (product, unit) lines ---
	var lines []itemLine
	lineIndex := map[string]int{}

	for i, item := range req.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidProductID)
		}

		qty, err := decimal.NewFromString(item.Quantity)
		if err != nil || !qty.IsPositive() {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}

		product, err := store.GetProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("item[%d]: %w", i, ErrProductNotFound)
			}
			return nil, fmt.Errorf("item[%d]: get product: %w", i, err)
		}

		unitPrice := numericToDecimal(product.Price)
		if item.UnitPrice != "" {
			unitPrice, err = decimal.NewFromString(item.UnitPrice)
			if err != nil || unitPrice.IsNegative() {
				return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidPrice)
			}
		}

		discount := decimal.Zero
		if item.Discount != "" {
			discount, err = decimal.NewFromString(item.Discount)
			if err != nil || discount.IsNegative() {
				return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidDiscount)
			}
		}

		unit := item.Unit
		if unit == "" {
			unit = product.Unit
		}
		if unit == "" {
			unit = enum.UnitDefault
		}

		key := productID.String() + "|" + unit
		if idx, ok := lineIndex[key]; ok {
			lines[idx].quantity = lines[idx].quantity.Add(qty)
			lines[idx].unitPrice = unitPrice
			lines[idx].discount = discount
			continue
		}
		lineIndex[key] = len(lines)
		lines = append(lines, itemLine{
			product:   product,
			unit:      unit,
			quantity:  qty,
			unitPrice: unitPrice,
			discount:  discount,
		})
	}

	// --- Calculate totals ---
	subtotal := decimal.Zero
	for i := range lines {
		lineTotal := lines[i].unitPrice.Mul(lines[i].quantity).Sub(lines[i].discount)
		if lineTotal.IsNegative() {
			lineTotal = decimal.Zero
		}
		subtotal = subtotal.Add(lineTotal)
	}

	orderDiscount := decimal.Zero
	if req.Discount != "" {
		orderDiscount, err = decimal.NewFromString(req.Discount)
		if err != nil || orderDiscount.IsNegative() {
			return nil, ErrInvalidDiscount
		}
	}

	totalAmount := subtotal.Sub(orderDiscount)
	if totalAmount.IsNegative() {
		totalAmount = decimal.Zero
	}

	// --- Build order params ---
	orderDate := pgtype.Timestamptz{}
	if req.OrderDate != "" {
		t, err := time.Parse(time.RFC3339, req.OrderDate)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOrderDate, err)
		}
		orderDate = pgtype.Timestamptz{Time: t, Valid: true}
	}

	paymentMethod := pgtype.Text{}
	if req.PaymentMethod != "" {
		paymentMethod = pgtype.Text{String: req.PaymentMethod, Valid: true}
	}

	notes := pgtype.Text{}
	if req.Notes != "" {
		notes = pgtype.Text{String: req.Notes, Valid: true}
	}

	source := req.Source
	if source == "" {
		source = enum.OrderSourceManual
	}
	status := enum.OrderStatusImported
	mobileOrderID := pgtype.Text{}
	if source == enum.OrderSourceMobile {
		// Mobile orders wait in PENDING until an operator imports them.
		status = enum.OrderStatusPending
		if req.MobileOrderID != "" {
			mobileOrderID = pgtype.Text{String: req.MobileOrderID, Valid: true}
		}
	}

	// --- Insert order ---
	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		CustomerID:    pgtype.UUID{Bytes: customerID, Valid: true},
		CustomerName:  customer.Name,
		SalesRepID:    salesRepID,
		SalesRepName:  salesRepName,
		OrderDate:     orderDate,
		Subtotal:      decimalToNumeric(subtotal),
		Discount:      decimalToNumeric(orderDiscount),
		TotalAmount:   decimalToNumeric(totalAmount),
		PaymentMethod: paymentMethod,
		Status:        status,
		Source:        source,
		MobileOrderID: mobileOrderID,
		Notes:         notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// --- Insert items ---
	var items []database.OrderItem
	for i := range lines {
		ln := &lines[i]
		lineTotal := ln.unitPrice.Mul(ln.quantity).Sub(ln.discount)
		if lineTotal.IsNegative() {
			lineTotal = decimal.Zero
		}
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:     order.ID,
			ProductID:   ln.product.ID,
			ProductCode: ln.product.Code,
			ProductName: ln.product.Name,
			Quantity:    decimalToNumeric(ln.quantity),
			Unit:        ln.unit,
			UnitPrice:   decimalToNumeric(ln.unitPrice),
			Discount:    decimalToNumeric(ln.discount),
			Total:       decimalToNumeric(lineTotal),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{Order: order, Items: items}, nil
}
