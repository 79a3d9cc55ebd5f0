package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const syncUpdateColumns = `id, data_types, description, is_active, created_by, consumed_by,
device_id, completed_at, created_at`

func scanSyncUpdate(row interface{ Scan(dest ...interface{}) error }) (SyncUpdate, error) {
	var su SyncUpdate
	err := row.Scan(
		&su.ID,
		&su.DataTypes,
		&su.Description,
		&su.IsActive,
		&su.CreatedBy,
		&su.ConsumedBy,
		&su.DeviceID,
		&su.CompletedAt,
		&su.CreatedAt,
	)
	return su, err
}

type CreateSyncUpdateParams struct {
	DataTypes   []string
	Description string
	CreatedBy   pgtype.Text
}

const createSyncUpdate = `
INSERT INTO sync_updates (data_types, description, is_active, created_by)
VALUES ($1, $2, true, $3)
RETURNING ` + syncUpdateColumns + `
`

func (q *Queries) CreateSyncUpdate(ctx context.Context, arg CreateSyncUpdateParams) (SyncUpdate, error) {
	return scanSyncUpdate(q.db.QueryRow(ctx, createSyncUpdate,
		arg.DataTypes,
		arg.Description,
		arg.CreatedBy,
	))
}

const listActiveSyncUpdates = `
SELECT ` + syncUpdateColumns + `
FROM sync_updates
WHERE is_active = true
ORDER BY created_at DESC
`

func (q *Queries) ListActiveSyncUpdates(ctx context.Context) ([]SyncUpdate, error) {
	rows, err := q.db.Query(ctx, listActiveSyncUpdates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []SyncUpdate
	for rows.Next() {
		su, err := scanSyncUpdate(rows)
		if err != nil {
			return nil, err
		}
		updates = append(updates, su)
	}
	return updates, rows.Err()
}

type ListSyncUpdatesParams struct {
	Limit  int32
	Offset int32
}

const listSyncUpdates = `
SELECT ` + syncUpdateColumns + `
FROM sync_updates
ORDER BY created_at DESC
LIMIT $1 OFFSET $2
`

func (q *Queries) ListSyncUpdates(ctx context.Context, arg ListSyncUpdatesParams) ([]SyncUpdate, error) {
	rows, err := q.db.Query(ctx, listSyncUpdates, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []SyncUpdate
	for rows.Next() {
		su, err := scanSyncUpdate(rows)
		if err != nil {
			return nil, err
		}
		updates = append(updates, su)
	}
	return updates, rows.Err()
}

type ConsumeSyncUpdateParams struct {
	ID         uuid.UUID
	ConsumedBy pgtype.Text
	DeviceID   pgtype.Text
}

const consumeSyncUpdate = `
UPDATE sync_updates
SET is_active = false, completed_at = now(), consumed_by = $2, device_id = $3
WHERE id = $1 AND is_active = true
`

// ConsumeSyncUpdate marks an active update as consumed. Returns 0 rows if the
// update was already consumed or does not exist.
func (q *Queries) ConsumeSyncUpdate(ctx context.Context, arg ConsumeSyncUpdateParams) (int64, error) {
	tag, err := q.db.Exec(ctx, consumeSyncUpdate, arg.ID, arg.ConsumedBy, arg.DeviceID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const reactivateOrphanedSyncUpdates = `
UPDATE sync_updates
SET is_active = true
WHERE is_active = false AND completed_at IS NULL AND created_at < $1
`

// ReactivateOrphanedSyncUpdates flips back records left in the inconsistent
// inactive-without-completion state by a failed consume.
func (q *Queries) ReactivateOrphanedSyncUpdates(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, reactivateOrphanedSyncUpdates, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- Sync logs ---

type CreateSyncLogParams struct {
	Event      string
	SalesRepID pgtype.UUID
	DeviceID   pgtype.Text
	Details    []byte
}

const createSyncLog = `
INSERT INTO sync_logs (event, sales_rep_id, device_id, details)
VALUES ($1, $2, $3, COALESCE($4, '{}'::jsonb))
`

func (q *Queries) CreateSyncLog(ctx context.Context, arg CreateSyncLogParams) error {
	_, err := q.db.Exec(ctx, createSyncLog, arg.Event, arg.SalesRepID, arg.DeviceID, arg.Details)
	return err
}
