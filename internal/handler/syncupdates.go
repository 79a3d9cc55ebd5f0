package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vendasul/api/internal/database"
	"github.com/vendasul/api/internal/middleware"
	"github.com/vendasul/api/internal/service"
	"github.com/vendasul/api/internal/ws"
)

// SyncUpdateHandler lets back-office operators signal the devices that a
// dataset changed and must be re-downloaded.
type SyncUpdateHandler struct {
	svc *service.SyncUpdateService
	hub *ws.Hub
}

// NewSyncUpdateHandler creates a new SyncUpdateHandler.
func NewSyncUpdateHandler(svc *service.SyncUpdateService, hub *ws.Hub) *SyncUpdateHandler {
	return &SyncUpdateHandler{svc: svc, hub: hub}
}

// RegisterRoutes registers sync update endpoints on the given Chi router.
// Expected to be mounted at /sync-updates behind back-office auth.
func (h *SyncUpdateHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/active", h.ListActive)
	r.Get("/history", h.History)
}

type createSyncUpdateRequest struct {
	DataTypes   []string `json:"data_types"`
	Description string   `json:"description"`
}

type syncUpdateDetailResponse struct {
	ID          uuid.UUID `json:"id"`
	DataTypes   []string  `json:"data_types"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedBy   *string   `json:"created_by"`
	ConsumedBy  *string   `json:"consumed_by"`
	DeviceID    *string   `json:"device_id"`
	CompletedAt *string   `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func toSyncUpdateDetailResponse(su database.SyncUpdate) syncUpdateDetailResponse {
	resp := syncUpdateDetailResponse{
		ID:          su.ID,
		DataTypes:   su.DataTypes,
		Description: su.Description,
		IsActive:    su.IsActive,
		CreatedAt:   su.CreatedAt,
	}
	if su.CreatedBy.Valid {
		resp.CreatedBy = &su.CreatedBy.String
	}
	if su.ConsumedBy.Valid {
		resp.ConsumedBy = &su.ConsumedBy.String
	}
	if su.DeviceID.Valid {
		resp.DeviceID = &su.DeviceID.String
	}
	if su.CompletedAt.Valid {
		s := su.CompletedAt.Time.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}

// Create opens a new sync update for the given data types.
func (h *SyncUpdateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSyncUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var createdBy string
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		createdBy = claims.FullName
	}

	id, err := h.svc.Create(r.Context(), req.DataTypes, req.Description, createdBy)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoDataTypes), errors.Is(err, service.ErrUnknownDataType):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: create sync update: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	h.notify(id, req.DataTypes)

	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

// ListActive returns the updates no device has consumed yet.
func (h *SyncUpdateHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	updates, err := h.svc.ListActive(r.Context())
	if err != nil {
		log.Printf("ERROR: list active sync updates: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]syncUpdateDetailResponse, len(updates))
	for i, su := range updates {
		resp[i] = toSyncUpdateDetailResponse(su)
	}

	writeJSON(w, http.StatusOK, resp)
}

// History returns consumed and active updates, newest first.
func (h *SyncUpdateHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	updates, err := h.svc.History(r.Context(), limit, offset)
	if err != nil {
		log.Printf("ERROR: sync update history: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]syncUpdateDetailResponse, len(updates))
	for i, su := range updates {
		resp[i] = toSyncUpdateDetailResponse(su)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *SyncUpdateHandler) notify(id uuid.UUID, dataTypes []string) {
	if h.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"id":         id,
		"data_types": dataTypes,
	})
	if err != nil {
		log.Printf("ERROR: marshal sync update event: %v", err)
		return
	}
	h.hub.Broadcast(ws.TopicSyncUpdates, ws.Event{
		Type:    "sync_update.created",
		Payload: payload,
	})
}
