package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/vendasul/api/internal/database"
	"github.com/vendasul/api/internal/handler"
	"github.com/vendasul/api/internal/service"
)

func setupSyncUpdateRouter(store *mockMobileSyncStore) *chi.Mux {
	h := handler.NewSyncUpdateHandler(service.NewSyncUpdateService(store), nil)
	r := chi.NewRouter()
	r.Route("/sync-updates", h.RegisterRoutes)
	return r
}

func TestSyncUpdateCreateEndpoint(t *testing.T) {
	created := database.SyncUpdate{ID: uuid.New(), DataTypes: []string{"products"}, IsActive: true}

	store := &mockMobileSyncStore{}
	store.createSyncUpdateFn = func(ctx context.Context, arg database.CreateSyncUpdateParams) (database.SyncUpdate, error) {
		if len(arg.DataTypes) != 1 || arg.DataTypes[0] != "products" {
			t.Errorf("data types: got %v, want [products]", arg.DataTypes)
		}
		return created, nil
	}

	router := setupSyncUpdateRouter(store)
	rr := doRequest(t, router, "POST", "/sync-updates", map[string]interface{}{
		"data_types": []string{"products"},
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeMap(t, rr)
	if resp["id"] != created.ID.String() {
		t.Errorf("id: got %v, want %v", resp["id"], created.ID)
	}
}

func TestSyncUpdateCreateUnknownType(t *testing.T) {
	router := setupSyncUpdateRouter(&mockMobileSyncStore{})
	rr := doRequest(t, router, "POST", "/sync-updates", map[string]interface{}{
		"data_types": []string{"invoices"},
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSyncUpdateCreateEmpty(t *testing.T) {
	router := setupSyncUpdateRouter(&mockMobileSyncStore{})
	rr := doRequest(t, router, "POST", "/sync-updates", map[string]interface{}{
		"data_types": []string{},
	})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSyncUpdateHistory(t *testing.T) {
	consumed := database.SyncUpdate{
		ID:          uuid.New(),
		DataTypes:   []string{"customers"},
		Description: "route reshuffle",
		IsActive:    false,
		ConsumedBy:  pgtype.Text{String: "V-01", Valid: true},
		DeviceID:    pgtype.Text{String: "tablet-7", Valid: true},
		CompletedAt: pgtype.Timestamptz{Time: time.Now(), Valid: true},
		CreatedAt:   time.Now().Add(-time.Hour),
	}

	store := &mockMobileSyncStore{}
	store.listSyncUpdatesFn = func(ctx context.Context, arg database.ListSyncUpdatesParams) ([]database.SyncUpdate, error) {
		if arg.Limit != 20 {
			t.Errorf("limit: got %d, want 20", arg.Limit)
		}
		return []database.SyncUpdate{consumed}, nil
	}

	router := setupSyncUpdateRouter(store)
	rr := doRequest(t, router, "GET", "/sync-updates/history", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp []map[string]interface{}
	if err := jsonDecode(rr, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("history: got %d, want 1", len(resp))
	}
	if resp[0]["consumed_by"] != "V-01" {
		t.Errorf("consumed_by: got %v, want V-01", resp[0]["consumed_by"])
	}
	if resp[0]["is_active"] != false {
		t.Errorf("is_active: got %v, want false", resp[0]["is_active"])
	}
}
