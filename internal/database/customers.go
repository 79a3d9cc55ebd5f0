package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const customerColumns = `id, code, name, document, phone, email, address, city, route_id, is_active, created_at, updated_at`

func scanCustomer(row interface{ Scan(dest ...interface{}) error }) (Customer, error) {
	var c Customer
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Name,
		&c.Document,
		&c.Phone,
		&c.Email,
		&c.Address,
		&c.City,
		&c.RouteID,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

type ListCustomersParams struct {
	Search pgtype.Text
	Limit  int32
	Offset int32
}

const listCustomers = `
SELECT ` + customerColumns + `
FROM customers
WHERE is_active = true
  AND ($1::text IS NULL OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%' OR city ILIKE '%' || $1 || '%')
ORDER BY name
LIMIT $2 OFFSET $3
`

func (q *Queries) ListCustomers(ctx context.Context, arg ListCustomersParams) ([]Customer, error) {
	rows, err := q.db.Query(ctx, listCustomers, arg.Search, arg.Limit, arg.Offset)
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

const listCustomersByRoute = `
SELECT ` + customerColumns + `
FROM customers
WHERE is_active = true AND route_id = $1
ORDER BY name
`

func (q *Queries) ListCustomersByRoute(ctx context.Context, routeID uuid.UUID) ([]Customer, error) {
	rows, err := q.db.Query(ctx, listCustomersByRoute, routeID)
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

const getCustomer = `
SELECT ` + customerColumns + `
FROM customers
WHERE id = $1 AND is_active = true
`

func (q *Queries) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, getCustomer, id))
}

type CreateCustomerParams struct {
	Code     string
	Name     string
	Document pgtype.Text
	Phone    pgtype.Text
	Email    pgtype.Text
	Address  pgtype.Text
	City     pgtype.Text
	RouteID  pgtype.UUID
}

const createCustomer = `
INSERT INTO customers (code, name, document, phone, email, address, city, route_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + customerColumns + `
`

func (q *Queries) CreateCustomer(ctx context.Context, arg CreateCustomerParams) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, createCustomer,
		arg.Code,
		arg.Name,
		arg.Document,
		arg.Phone,
		arg.Email,
		arg.Address,
		arg.City,
		arg.RouteID,
	))
}

type UpdateCustomerParams struct {
	ID       uuid.UUID
	Code     string
	Name     string
	Document pgtype.Text
	Phone    pgtype.Text
	Email    pgtype.Text
	Address  pgtype.Text
	City     pgtype.Text
	RouteID  pgtype.UUID
}

const updateCustomer = `
UPDATE customers
SET code = $2, name = $3, document = $4, phone = $5, email = $6,
    address = $7, city = $8, route_id = $9, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING ` + customerColumns + `
`

func (q *Queries) UpdateCustomer(ctx context.Context, arg UpdateCustomerParams) (Customer, error) {
	return scanCustomer(q.db.QueryRow(ctx, updateCustomer,
		arg.ID,
		arg.Code,
		arg.Name,
		arg.Document,
		arg.Phone,
		arg.Email,
		arg.Address,
		arg.City,
		arg.RouteID,
	))
}

const softDeleteCustomer = `
UPDATE customers
SET is_active = false, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING id
`

func (q *Queries) SoftDeleteCustomer(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var out uuid.UUID
	err := q.db.QueryRow(ctx, softDeleteCustomer, id).Scan(&out)
	return out, err
}
