package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/vendasul/api/internal/database"
	"github.com/vendasul/api/internal/enum"
)

// Errors returned by the sync update service.
var (
	ErrNoDataTypes     = errors.New("at least one data type is required")
	ErrUnknownDataType = errors.New("unknown sync data type")
)

// DefaultOrphanAge is the default age after which an inconsistent sync update
// (inactive but never completed) is considered orphaned.
const DefaultOrphanAge = 24 * time.Hour

// SyncStore defines the DB methods the sync update service needs.
// Satisfied by *database.Queries.
type SyncStore interface {
	CreateSyncUpdate(ctx context.Context, arg database.CreateSyncUpdateParams) (database.SyncUpdate, error)
	ListActiveSyncUpdates(ctx context.Context) ([]database.SyncUpdate, error)
	ListSyncUpdates(ctx context.Context, arg database.ListSyncUpdatesParams) ([]database.SyncUpdate, error)
	ConsumeSyncUpdate(ctx context.Context, arg database.ConsumeSyncUpdateParams) (int64, error)
	ReactivateOrphanedSyncUpdates(ctx context.Context, cutoff time.Time) (int64, error)
	CreateSyncLog(ctx context.Context, arg database.CreateSyncLogParams) error
}

// SyncUpdateService manages the change markers mobile clients poll to learn
// which data types need a re-sync.
type SyncUpdateService struct {
	store SyncStore
}

// NewSyncUpdateService creates a new SyncUpdateService.
func NewSyncUpdateService(store SyncStore) *SyncUpdateService {
	return &SyncUpdateService{store: store}
}

// Create inserts an active marker for the given data types. The description
// defaults to the comma-joined data type list.
func (s *SyncUpdateService) Create(ctx context.Context, dataTypes []string, description, createdBy string) (uuid.UUID, error) {
	if len(dataTypes) == 0 {
		return uuid.Nil, ErrNoDataTypes
	}
	for _, dt := range dataTypes {
		if !enum.IsValidSyncDataType(dt) {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownDataType, dt)
		}
	}

	if description == "" {
		description = strings.Join(dataTypes, ", ")
	}

	var by pgtype.Text
	if createdBy != "" {
		by = pgtype.Text{String: createdBy, Valid: true}
	}

	su, err := s.store.CreateSyncUpdate(ctx, database.CreateSyncUpdateParams{
		DataTypes:   dataTypes,
		Description: description,
		CreatedBy:   by,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create sync update: %w", err)
	}

	s.audit(ctx, "create", map[string]interface{}{
		"sync_update_id": su.ID,
		"data_types":     dataTypes,
		"created_by":     createdBy,
	})
	return su.ID, nil
}

// ListActive returns the active markers, newest first.
func (s *SyncUpdateService) ListActive(ctx context.Context) ([]database.SyncUpdate, error) {
	return s.store.ListActiveSyncUpdates(ctx)
}

// History returns recent markers regardless of state.
func (s *SyncUpdateService) History(ctx context.Context, limit, offset int32) ([]database.SyncUpdate, error) {
	return s.store.ListSyncUpdates(ctx, database.ListSyncUpdatesParams{Limit: limit, Offset: offset})
}

// Consume marks a marker as processed by a device. It returns false instead
// of an error on failure; callers decide whether to retry or move on.
func (s *SyncUpdateService) Consume(ctx context.Context, id uuid.UUID, consumedBy, deviceID string) bool {
	var by, dev pgtype.Text
	if consumedBy != "" {
		by = pgtype.Text{String: consumedBy, Valid: true}
	}
	if deviceID != "" {
		dev = pgtype.Text{String: deviceID, Valid: true}
	}

	n, err := s.store.ConsumeSyncUpdate(ctx, database.ConsumeSyncUpdateParams{
		ID:         id,
		ConsumedBy: by,
		DeviceID:   dev,
	})
	if err != nil {
		log.Printf("ERROR: consume sync update %s: %v", id, err)
		return false
	}
	if n == 0 {
		log.Printf("consume sync update %s: not active", id)
		return false
	}

	s.audit(ctx, "consume", map[string]interface{}{
		"sync_update_id": id,
		"consumed_by":    consumedBy,
		"device_id":      deviceID,
	})
	return true
}

// ReactivateOrphaned flips back markers stuck in the inconsistent state a
// failed consume leaves behind: inactive, never completed, older than the
// cutoff. Properly consumed markers are never touched.
func (s *SyncUpdateService) ReactivateOrphaned(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = DefaultOrphanAge
	}
	n, err := s.store.ReactivateOrphanedSyncUpdates(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("reactivate orphaned sync updates: %w", err)
	}
	if n > 0 {
		s.audit(ctx, "reactivate", map[string]interface{}{"count": n})
	}
	return int(n), nil
}

// RunSweeper calls ReactivateOrphaned on a ticker until ctx is cancelled.
func (s *SyncUpdateService) RunSweeper(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ReactivateOrphaned(ctx, olderThan)
			if err != nil {
				log.Printf("ERROR: sync sweeper: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("sync sweeper: reactivated %d orphaned updates", n)
			}
		}
	}
}

// audit writes a sync log row. Audit failures are logged, never propagated:
// the primary operation already succeeded.
func (s *SyncUpdateService) audit(ctx context.Context, event string, details map[string]interface{}) {
	payload, err := json.Marshal(details)
	if err != nil {
		log.Printf("ERROR: marshal sync log details: %v", err)
		return
	}
	if err := s.store.CreateSyncLog(ctx, database.CreateSyncLogParams{
		Event:   event,
		Details: payload,
	}); err != nil {
		log.Printf("ERROR: write sync log (%s): %v", event, err)
	}
}
