package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const routeColumns = `id, code, name, description, is_active, created_at, updated_at`

func scanRoute(row interface{ Scan(dest ...interface{}) error }) (Route, error) {
	var rt Route
	err := row.Scan(
		&rt.ID,
		&rt.Code,
		&rt.Name,
		&rt.Description,
		&rt.IsActive,
		&rt.CreatedAt,
		&rt.UpdatedAt,
	)
	return rt, err
}

const listRoutes = `
SELECT ` + routeColumns + `
FROM routes
WHERE is_active = true
ORDER BY name
`

func (q *Queries) ListRoutes(ctx context.Context) ([]Route, error) {
	rows, err := q.db.Query(ctx, listRoutes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, rt)
	}
	return routes, rows.Err()
}

const getRoute = `
SELECT ` + routeColumns + `
FROM routes
WHERE id = $1 AND is_active = true
`

func (q *Queries) GetRoute(ctx context.Context, id uuid.UUID) (Route, error) {
	return scanRoute(q.db.QueryRow(ctx, getRoute, id))
}

type CreateRouteParams struct {
	Code        string
	Name        string
	Description pgtype.Text
}

const createRoute = `
INSERT INTO routes (code, name, description)
VALUES ($1, $2, $3)
RETURNING ` + routeColumns + `
`

func (q *Queries) CreateRoute(ctx context.Context, arg CreateRouteParams) (Route, error) {
	return scanRoute(q.db.QueryRow(ctx, createRoute, arg.Code, arg.Name, arg.Description))
}

type UpdateRouteParams struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Description pgtype.Text
}

const updateRoute = `
UPDATE routes
SET code = $2, name = $3, description = $4, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING ` + routeColumns + `
`

func (q *Queries) UpdateRoute(ctx context.Context, arg UpdateRouteParams) (Route, error) {
	return scanRoute(q.db.QueryRow(ctx, updateRoute, arg.ID, arg.Code, arg.Name, arg.Description))
}

const softDeleteRoute = `
UPDATE routes
SET is_active = false, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING id
`

func (q *Queries) SoftDeleteRoute(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var out uuid.UUID
	err := q.db.QueryRow(ctx, softDeleteRoute, id).Scan(&out)
	return out, err
}

// --- Loads ---

const loadColumns = `id, route_id, load_date, vehicle, driver, status, created_at, updated_at`

func scanLoad(row interface{ Scan(dest ...interface{}) error }) (Load, error) {
	var l Load
	err := row.Scan(
		&l.ID,
		&l.RouteID,
		&l.LoadDate,
		&l.Vehicle,
		&l.Driver,
		&l.Status,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	return l, err
}

type ListLoadsParams struct {
	RouteID pgtype.UUID
	Status  pgtype.Text
	Limit   int32
	Offset  int32
}

const listLoads = `
SELECT ` + loadColumns + `
FROM loads
WHERE ($1::uuid IS NULL OR route_id = $1)
  AND ($2::text IS NULL OR status = $2)
ORDER BY load_date DESC, created_at DESC
LIMIT $3 OFFSET $4
`

func (q *Queries) ListLoads(ctx context.Context, arg ListLoadsParams) ([]Load, error) {
	rows, err := q.db.Query(ctx, listLoads, arg.RouteID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loads []Load
	for rows.Next() {
		l, err := scanLoad(rows)
		if err != nil {
			return nil, err
		}
		loads = append(loads, l)
	}
	return loads, rows.Err()
}

const getLoad = `
SELECT ` + loadColumns + `
FROM loads
WHERE id = $1
`

func (q *Queries) GetLoad(ctx context.Context, id uuid.UUID) (Load, error) {
	return scanLoad(q.db.QueryRow(ctx, getLoad, id))
}

type CreateLoadParams struct {
	RouteID  uuid.UUID
	LoadDate time.Time
	Vehicle  pgtype.Text
	Driver   pgtype.Text
}

const createLoad = `
INSERT INTO loads (route_id, load_date, vehicle, driver, status)
VALUES ($1, $2, $3, $4, 'OPEN')
RETURNING ` + loadColumns + `
`

func (q *Queries) CreateLoad(ctx context.Context, arg CreateLoadParams) (Load, error) {
	return scanLoad(q.db.QueryRow(ctx, createLoad, arg.RouteID, arg.LoadDate, arg.Vehicle, arg.Driver))
}

type UpdateLoadStatusParams struct {
	ID     uuid.UUID
	Status string
}

const updateLoadStatus = `
UPDATE loads
SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + loadColumns + `
`

func (q *Queries) UpdateLoadStatus(ctx context.Context, arg UpdateLoadStatusParams) (Load, error) {
	return scanLoad(q.db.QueryRow(ctx, updateLoadStatus, arg.ID, arg.Status))
}

type AddOrderToLoadParams struct {
	LoadID  uuid.UUID
	OrderID uuid.UUID
}

const addOrderToLoad = `
INSERT INTO load_orders (load_id, order_id)
VALUES ($1, $2)
`

func (q *Queries) AddOrderToLoad(ctx context.Context, arg AddOrderToLoadParams) error {
	_, err := q.db.Exec(ctx, addOrderToLoad, arg.LoadID, arg.OrderID)
	return err
}

type RemoveOrderFromLoadParams struct {
	LoadID  uuid.UUID
	OrderID uuid.UUID
}

const removeOrderFromLoad = `
DELETE FROM load_orders
WHERE load_id = $1 AND order_id = $2
`

func (q *Queries) RemoveOrderFromLoad(ctx context.Context, arg RemoveOrderFromLoadParams) (int64, error) {
	tag, err := q.db.Exec(ctx, removeOrderFromLoad, arg.LoadID, arg.OrderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listOrdersByLoad = `
SELECT ` + orderColumnsPrefixed + `
FROM orders o
JOIN load_orders lo ON lo.order_id = o.id
WHERE lo.load_id = $1
ORDER BY o.created_at
`

func (q *Queries) ListOrdersByLoad(ctx context.Context, loadID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByLoad, loadID)
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
