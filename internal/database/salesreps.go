package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const salesRepColumns = `id, code, name, phone, email, api_token, is_active, created_at, updated_at`

func scanSalesRep(row interface{ Scan(dest ...interface{}) error }) (SalesRep, error) {
	var s SalesRep
	err := row.Scan(
		&s.ID,
		&s.Code,
		&s.Name,
		&s.Phone,
		&s.Email,
		&s.APIToken,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

const listSalesReps = `
SELECT ` + salesRepColumns + `
FROM sales_reps
WHERE is_active = true
ORDER BY name
`

func (q *Queries) ListSalesReps(ctx context.Context) ([]SalesRep, error) {
	rows, err := q.db.Query(ctx, listSalesReps)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reps []SalesRep
	for rows.Next() {
		rep, err := scanSalesRep(rows)
		if err != nil {
			return nil, err
		}
		reps = append(reps, rep)
	}
	return reps, rows.Err()
}

const getSalesRep = `
SELECT ` + salesRepColumns + `
FROM sales_reps
WHERE id = $1 AND is_active = true
`

func (q *Queries) GetSalesRep(ctx context.Context, id uuid.UUID) (SalesRep, error) {
	return scanSalesRep(q.db.QueryRow(ctx, getSalesRep, id))
}

const getSalesRepByToken = `
SELECT ` + salesRepColumns + `
FROM sales_reps
WHERE api_token = $1 AND is_active = true
`

// GetSalesRepByToken maps a mobile API token to its sales rep.
func (q *Queries) GetSalesRepByToken(ctx context.Context, token string) (SalesRep, error) {
	return scanSalesRep(q.db.QueryRow(ctx, getSalesRepByToken, token))
}

type CreateSalesRepParams struct {
	Code  string
	Name  string
	Phone pgtype.Text
	Email pgtype.Text
}

const createSalesRep = `
INSERT INTO sales_reps (code, name, phone, email)
VALUES ($1, $2, $3, $4)
RETURNING ` + salesRepColumns + `
`

func (q *Queries) CreateSalesRep(ctx context.Context, arg CreateSalesRepParams) (SalesRep, error) {
	return scanSalesRep(q.db.QueryRow(ctx, createSalesRep,
		arg.Code,
		arg.Name,
		arg.Phone,
		arg.Email,
	))
}

type UpdateSalesRepParams struct {
	ID    uuid.UUID
	Code  string
	Name  string
	Phone pgtype.Text
	Email pgtype.Text
}

const updateSalesRep = `
UPDATE sales_reps
SET code = $2, name = $3, phone = $4, email = $5, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING ` + salesRepColumns + `
`

func (q *Queries) UpdateSalesRep(ctx context.Context, arg UpdateSalesRepParams) (SalesRep, error) {
	return scanSalesRep(q.db.QueryRow(ctx, updateSalesRep,
		arg.ID,
		arg.Code,
		arg.Name,
		arg.Phone,
		arg.Email,
	))
}

type SetSalesRepTokenParams struct {
	ID       uuid.UUID
	APIToken pgtype.Text
}

const setSalesRepToken = `
UPDATE sales_reps
SET api_token = $2, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING ` + salesRepColumns + `
`

func (q *Queries) SetSalesRepToken(ctx context.Context, arg SetSalesRepTokenParams) (SalesRep, error) {
	return scanSalesRep(q.db.QueryRow(ctx, setSalesRepToken, arg.ID, arg.APIToken))
}

const softDeleteSalesRep = `
UPDATE sales_reps
SET is_active = false, api_token = NULL, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING id
`

func (q *Queries) SoftDeleteSalesRep(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var out uuid.UUID
	err := q.db.QueryRow(ctx, softDeleteSalesRep, id).Scan(&out)
	return out, err
}
