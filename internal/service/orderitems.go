package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vendasul/api/internal/database"
	"github.com/vendasul/api/internal/enum"
)

// Errors returned by the order item engine.
var (
	ErrInvalidProduct  = errors.New("product id is required")
	ErrInvalidQuantity = errors.New("quantity must be > 0")
	ErrInvalidPrice    = errors.New("price must be >= 0")
	ErrItemNotFound    = errors.New("item not found in order")
)

// Product is the slice of product data the item engine needs.
type Product struct {
	ID   uuid.UUID
	Code string
	Name string
	Unit string
}

// Item is one line of an order draft. Lines are identified by
// (ProductID, Unit): adding the same pair again merges instead of appending.
type Item struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	ProductCode string
	ProductName string
	Quantity    decimal.Decimal
	Unit        string
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
}

// DraftStore defines the DB methods the draft engine needs when editing a
// persisted order. Satisfied by *database.Queries.
type DraftStore interface {
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpsertOrderItem(ctx context.Context, arg database.UpsertOrderItemParams) (database.OrderItem, error)
	DeleteOrderItemsByProductCode(ctx context.Context, arg database.DeleteOrderItemsByProductCodeParams) (int64, error)
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)
}

// Draft holds the item lines of one order being edited. All mutations run
// under the draft's own mutex, so at most one add/remove per order is in
// flight at a time. A call repeating the previous operation token is dropped
// silently: mobile clients resend taps on slow links.
type Draft struct {
	mu        sync.Mutex
	orderID   uuid.UUID
	store     DraftStore // nil for unpersisted drafts
	items     []Item
	lastToken string
}

// NewDraft creates a detached draft (order not yet persisted).
func NewDraft() *Draft {
	return &Draft{}
}

// AddItem merges qty into the line matching (product.ID, unit) or appends a
// new line. On a merge the unit price is overwritten with the incoming price,
// not accumulated. For persisted drafts the line is upserted remotely and the
// local mutation is rolled back if the upsert fails.
func (d *Draft) AddItem(ctx context.Context, product Product, qty, price decimal.Decimal, unit, opToken string) error {
	if product.ID == uuid.Nil {
		return ErrInvalidProduct
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidQuantity
	}
	if price.IsNegative() {
		return ErrInvalidPrice
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if opToken != "" && opToken == d.lastToken {
		log.Printf("draft %s: dropping duplicate add (token %s)", d.orderID, opToken)
		return nil
	}

	unitTag := unit
	if unitTag == "" {
		unitTag = product.Unit
	}
	if unitTag == "" {
		unitTag = enum.UnitDefault
	}

	prev := d.snapshot()

	idx := -1
	for i, it := range d.items {
		if it.ProductID == product.ID && it.Unit == unitTag {
			idx = i
			break
		}
	}

	var line Item
	if idx >= 0 {
		line = d.items[idx]
		line.Quantity = line.Quantity.Add(qty)
		line.UnitPrice = price
		line.Total = price.Mul(line.Quantity)
		d.items[idx] = line
	} else {
		line = Item{
			ID:          uuid.New(),
			ProductID:   product.ID,
			ProductCode: product.Code,
			ProductName: product.Name,
			Quantity:    qty,
			Unit:        unitTag,
			UnitPrice:   price,
			Discount:    decimal.Zero,
			Total:       price.Mul(qty),
		}
		d.items = append(d.items, line)
	}

	if d.store != nil {
		if err := d.persistLine(ctx, line); err != nil {
			d.items = prev
			return fmt.Errorf("persist item: %w", err)
		}
	}

	d.lastToken = opToken
	return nil
}

// RemoveItem drops every line of the product, across units. For persisted
// drafts the remote delete is keyed by product code; the removed lines are
// restored locally if the delete fails.
func (d *Draft) RemoveItem(ctx context.Context, productID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.snapshot()

	var productCode string
	kept := d.items[:0:0]
	removed := 0
	for _, it := range d.items {
		if it.ProductID == productID {
			productCode = it.ProductCode
			removed++
			continue
		}
		kept = append(kept, it)
	}
	if removed == 0 {
		return ErrItemNotFound
	}
	d.items = kept

	if d.store != nil {
		_, err := d.store.DeleteOrderItemsByProductCode(ctx, database.DeleteOrderItemsByProductCodeParams{
			OrderID:     d.orderID,
			ProductCode: productCode,
		})
		if err == nil {
			err = d.persistTotals(ctx)
		}
		if err != nil {
			d.items = prev
			return fmt.Errorf("delete item: %w", err)
		}
	}

	d.lastToken = ""
	return nil
}

// Items returns a copy of the current lines.
func (d *Draft) Items() []Item {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot()
}

// Subtotal sums line totals net of line discounts.
func (d *Draft) Subtotal() decimal.Decimal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return subtotalOf(d.items)
}

func (d *Draft) snapshot() []Item {
	out := make([]Item, len(d.items))
	copy(out, d.items)
	return out
}

func (d *Draft) persistLine(ctx context.Context, line Item) error {
	_, err := d.store.UpsertOrderItem(ctx, database.UpsertOrderItemParams{
		OrderID:     d.orderID,
		ProductID:   line.ProductID,
		ProductCode: line.ProductCode,
		ProductName: line.ProductName,
		Quantity:    decimalToNumeric(line.Quantity),
		Unit:        line.Unit,
		UnitPrice:   decimalToNumeric(line.UnitPrice),
		Discount:    decimalToNumeric(line.Discount),
		Total:       decimalToNumeric(line.Total),
	})
	if err != nil {
		return err
	}
	return d.persistTotals(ctx)
}

func (d *Draft) persistTotals(ctx context.Context) error {
	subtotal := subtotalOf(d.items)
	discount := decimal.Zero
	for _, it := range d.items {
		discount = discount.Add(it.Discount)
	}
	_, err := d.store.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:          d.orderID,
		Subtotal:    decimalToNumeric(subtotal),
		Discount:    decimalToNumeric(discount),
		TotalAmount: decimalToNumeric(subtotal.Sub(discount)),
	})
	return err
}

func subtotalOf(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Total)
	}
	return sum
}

// DraftManager hands out one Draft per order so concurrent edit requests for
// the same order share a mutex instead of racing.
type DraftManager struct {
	mu     sync.Mutex
	store  DraftStore
	drafts map[uuid.UUID]*Draft
}

// NewDraftManager creates a new DraftManager.
func NewDraftManager(store DraftStore) *DraftManager {
	return &DraftManager{store: store, drafts: make(map[uuid.UUID]*Draft)}
}

// Draft returns the cached draft for the order, loading its lines from the
// store on first use.
func (m *DraftManager) Draft(ctx context.Context, orderID uuid.UUID) (*Draft, error) {
	m.mu.Lock()
	if d, ok := m.drafts[orderID]; ok {
		m.mu.Unlock()
		return d, nil
	}
	m.mu.Unlock()

	rows, err := m.store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}

	items := make([]Item, len(rows))
	for i, row := range rows {
		items[i] = Item{
			ID:          row.ID,
			ProductID:   row.ProductID,
			ProductCode: row.ProductCode,
			ProductName: row.ProductName,
			Quantity:    numericToDecimal(row.Quantity),
			Unit:        row.Unit,
			UnitPrice:   numericToDecimal(row.UnitPrice),
			Discount:    numericToDecimal(row.Discount),
			Total:       numericToDecimal(row.Total),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have loaded the draft while we queried.
	if d, ok := m.drafts[orderID]; ok {
		return d, nil
	}
	d := &Draft{orderID: orderID, store: m.store, items: items}
	m.drafts[orderID] = d
	return d, nil
}

// Release evicts the cached draft, e.g. after the order leaves edit mode.
func (m *DraftManager) Release(orderID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, orderID)
}
