package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Full-table reads for the mobile sync endpoints. Devices replace their
// local copy wholesale, so these are unpaginated on purpose.

const listActiveCustomers = `
SELECT ` + customerColumns + `
FROM customers
WHERE is_active = true
ORDER BY name
`

func (q *Queries) ListActiveCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := q.db.Query(ctx, listActiveCustomers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

const listActiveProducts = `
SELECT ` + productColumns + `
FROM products
WHERE is_active = true
ORDER BY name
`

func (q *Queries) ListActiveProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.Query(ctx, listActiveProducts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

type ListOrdersBySalesRepSinceParams struct {
	SalesRepID uuid.UUID
	Since      pgtype.Timestamptz
}

const listOrdersBySalesRepSince = `
SELECT ` + orderColumns + `
FROM orders
WHERE sales_rep_id = $1
  AND ($2::timestamptz IS NULL OR order_date >= $2)
ORDER BY order_date DESC
`

// ListOrdersBySalesRepSince returns a rep's orders for the device history
// screen, optionally bounded by a start date.
func (q *Queries) ListOrdersBySalesRepSince(ctx context.Context, arg ListOrdersBySalesRepSinceParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersBySalesRepSince, arg.SalesRepID, arg.Since)
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
