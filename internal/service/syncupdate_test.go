package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/vendasul/api/internal/database"
)

type mockSyncStore struct {
	updates    []database.SyncUpdate
	logs       []database.CreateSyncLogParams
	createErr  error
	consumeErr error
}

func (m *mockSyncStore) CreateSyncUpdate(_ context.Context, arg database.CreateSyncUpdateParams) (database.SyncUpdate, error) {
	if m.createErr != nil {
		return database.SyncUpdate{}, m.createErr
	}
	su := database.SyncUpdate{
		ID:          uuid.New(),
		DataTypes:   arg.DataTypes,
		Description: arg.Description,
		IsActive:    true,
		CreatedBy:   arg.CreatedBy,
		CreatedAt:   time.Now(),
	}
	m.updates = append(m.updates, su)
	return su, nil
}

func (m *mockSyncStore) ListActiveSyncUpdates(_ context.Context) ([]database.SyncUpdate, error) {
	var out []database.SyncUpdate
	for _, su := range m.updates {
		if su.IsActive {
			out = append(out, su)
		}
	}
	return out, nil
}

func (m *mockSyncStore) ListSyncUpdates(_ context.Context, _ database.ListSyncUpdatesParams) ([]database.SyncUpdate, error) {
	return m.updates, nil
}

func (m *mockSyncStore) ConsumeSyncUpdate(_ context.Context, arg database.ConsumeSyncUpdateParams) (int64, error) {
	if m.consumeErr != nil {
		return 0, m.consumeErr
	}
	for i := range m.updates {
		if m.updates[i].ID == arg.ID && m.updates[i].IsActive {
			m.updates[i].IsActive = false
			m.updates[i].CompletedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
			m.updates[i].ConsumedBy = arg.ConsumedBy
			m.updates[i].DeviceID = arg.DeviceID
			return 1, nil
		}
	}
	return 0, nil
}

func (m *mockSyncStore) ReactivateOrphanedSyncUpdates(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for i := range m.updates {
		su := &m.updates[i]
		if !su.IsActive && !su.CompletedAt.Valid && su.CreatedAt.Before(cutoff) {
			su.IsActive = true
			n++
		}
	}
	return n, nil
}

func (m *mockSyncStore) CreateSyncLog(_ context.Context, arg database.CreateSyncLogParams) error {
	m.logs = append(m.logs, arg)
	return nil
}

func TestSyncUpdateCreate(t *testing.T) {
	store := &mockSyncStore{}
	svc := NewSyncUpdateService(store)

	id, err := svc.Create(context.Background(), []string{"customers", "products"}, "", "admin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("expected a generated id")
	}
	if len(store.updates) != 1 {
		t.Fatalf("expected 1 stored update, got %d", len(store.updates))
	}
	if store.updates[0].Description != "customers, products" {
		t.Errorf("description = %q, want comma-joined default", store.updates[0].Description)
	}
	if !store.updates[0].IsActive {
		t.Error("new update should be active")
	}
	if len(store.logs) != 1 || store.logs[0].Event != "create" {
		t.Errorf("expected one 'create' audit log, got %+v", store.logs)
	}
}

func TestSyncUpdateCreateKeepsDescription(t *testing.T) {
	store := &mockSyncStore{}
	svc := NewSyncUpdateService(store)

	if _, err := svc.Create(context.Background(), []string{"orders"}, "price table refresh", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if store.updates[0].Description != "price table refresh" {
		t.Errorf("description = %q, want explicit value kept", store.updates[0].Description)
	}
}

func TestSyncUpdateCreateValidation(t *testing.T) {
	svc := NewSyncUpdateService(&mockSyncStore{})

	if _, err := svc.Create(context.Background(), nil, "", ""); !errors.Is(err, ErrNoDataTypes) {
		t.Errorf("empty data types: got %v, want ErrNoDataTypes", err)
	}
	if _, err := svc.Create(context.Background(), []string{"customers", "bogus"}, "", ""); !errors.Is(err, ErrUnknownDataType) {
		t.Errorf("unknown data type: got %v, want ErrUnknownDataType", err)
	}
}

func TestSyncUpdateConsume(t *testing.T) {
	store := &mockSyncStore{}
	svc := NewSyncUpdateService(store)

	id, err := svc.Create(context.Background(), []string{"customers"}, "", "admin")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if ok := svc.Consume(context.Background(), id, "rep-1", "device-9"); !ok {
		t.Fatal("Consume returned false for an active update")
	}
	if store.updates[0].IsActive {
		t.Error("update should be inactive after consume")
	}
	if !store.updates[0].CompletedAt.Valid {
		t.Error("completed_at should be set after consume")
	}

	// Second consume of the same marker is a no-op.
	if ok := svc.Consume(context.Background(), id, "rep-1", "device-9"); ok {
		t.Error("Consume returned true for an already consumed update")
	}
	if ok := svc.Consume(context.Background(), uuid.New(), "rep-1", "device-9"); ok {
		t.Error("Consume returned true for an unknown id")
	}
}

func TestSyncUpdateConsumeStoreError(t *testing.T) {
	store := &mockSyncStore{consumeErr: errors.New("connection reset")}
	svc := NewSyncUpdateService(store)

	if ok := svc.Consume(context.Background(), uuid.New(), "", ""); ok {
		t.Error("Consume should return false on store error")
	}
}

func TestReactivateOrphaned(t *testing.T) {
	now := time.Now()
	orphanOld := database.SyncUpdate{ID: uuid.New(), IsActive: false, CreatedAt: now.Add(-48 * time.Hour)}
	orphanRecent := database.SyncUpdate{ID: uuid.New(), IsActive: false, CreatedAt: now.Add(-1 * time.Hour)}
	consumed := database.SyncUpdate{
		ID:          uuid.New(),
		IsActive:    false,
		CreatedAt:   now.Add(-72 * time.Hour),
		CompletedAt: pgtype.Timestamptz{Time: now.Add(-71 * time.Hour), Valid: true},
	}
	active := database.SyncUpdate{ID: uuid.New(), IsActive: true, CreatedAt: now.Add(-72 * time.Hour)}

	store := &mockSyncStore{updates: []database.SyncUpdate{orphanOld, orphanRecent, consumed, active}}
	svc := NewSyncUpdateService(store)

	n, err := svc.ReactivateOrphaned(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("ReactivateOrphaned: %v", err)
	}
	if n != 1 {
		t.Fatalf("reactivated %d updates, want 1", n)
	}

	byID := map[uuid.UUID]database.SyncUpdate{}
	for _, su := range store.updates {
		byID[su.ID] = su
	}
	if !byID[orphanOld.ID].IsActive {
		t.Error("old orphan should be reactivated")
	}
	if byID[orphanRecent.ID].IsActive {
		t.Error("recent orphan is under the cutoff and must stay inactive")
	}
	if byID[consumed.ID].IsActive {
		t.Error("a properly consumed update must never be reactivated")
	}
	if !byID[active.ID].IsActive {
		t.Error("active update should be untouched")
	}
}
