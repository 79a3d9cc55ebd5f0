package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const productColumns = `id, code, name, unit, price, stock, is_active, created_at, updated_at`

func scanProduct(row interface{ Scan(dest ...interface{}) error }) (Product, error) {
	var p Product
	err := row.Scan(
		&p.ID,
		&p.Code,
		&p.Name,
		&p.Unit,
		&p.Price,
		&p.Stock,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

type ListProductsParams struct {
	Search pgtype.Text
	Limit  int32
	Offset int32
}

const listProducts = `
SELECT ` + productColumns + `
FROM products
WHERE is_active = true
  AND ($1::text IS NULL OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%')
ORDER BY name
LIMIT $2 OFFSET $3
`

func (q *Queries) ListProducts(ctx context.Context, arg ListProductsParams) ([]Product, error) {
	rows, err := q.db.Query(ctx, listProducts, arg.Search, arg.Limit, arg.Offset)
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

const getProduct = `
SELECT ` + productColumns + `
FROM products
WHERE id = $1 AND is_active = true
`

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProduct, id))
}

const getProductByCode = `
SELECT ` + productColumns + `
FROM products
WHERE code = $1 AND is_active = true
`

func (q *Queries) GetProductByCode(ctx context.Context, code string) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProductByCode, code))
}

type CreateProductParams struct {
	Code  string
	Name  string
	Unit  string
	Price pgtype.Numeric
	Stock pgtype.Numeric
}

const createProduct = `
INSERT INTO products (code, name, unit, price, stock)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + productColumns + `
`

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, createProduct,
		arg.Code,
		arg.Name,
		arg.Unit,
		arg.Price,
		arg.Stock,
	))
}

type UpdateProductParams struct {
	ID    uuid.UUID
	Code  string
	Name  string
	Unit  string
	Price pgtype.Numeric
	Stock pgtype.Numeric
}

const updateProduct = `
UPDATE products
SET code = $2, name = $3, unit = $4, price = $5, stock = $6, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING ` + productColumns + `
`

func (q *Queries) UpdateProduct(ctx context.Context, arg UpdateProductParams) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, updateProduct,
		arg.ID,
		arg.Code,
		arg.Name,
		arg.Unit,
		arg.Price,
		arg.Stock,
	))
}

const softDeleteProduct = `
UPDATE products
SET is_active = false, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING id
`

func (q *Queries) SoftDeleteProduct(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var out uuid.UUID
	err := q.db.QueryRow(ctx, softDeleteProduct, id).Scan(&out)
	return out, err
}
