package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/vendasul/api/internal/database"
)

// SalesRepStore defines the database methods needed by sales rep handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type SalesRepStore interface {
	ListSalesReps(ctx context.Context) ([]database.SalesRep, error)
	GetSalesRep(ctx context.Context, id uuid.UUID) (database.SalesRep, error)
	CreateSalesRep(ctx context.Context, arg database.CreateSalesRepParams) (database.SalesRep, error)
	UpdateSalesRep(ctx context.Context, arg database.UpdateSalesRepParams) (database.SalesRep, error)
	SetSalesRepToken(ctx context.Context, arg database.SetSalesRepTokenParams) (database.SalesRep, error)
	SoftDeleteSalesRep(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

// SalesRepHandler handles sales rep CRUD and device token endpoints.
type SalesRepHandler struct {
	store SalesRepStore
}

// NewSalesRepHandler creates a new SalesRepHandler.
func NewSalesRepHandler(store SalesRepStore) *SalesRepHandler {
	return &SalesRepHandler{store: store}
}

// RegisterRoutes registers sales rep endpoints on the given Chi router.
// Mounted at /sales-reps.
func (h *SalesRepHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/token", h.IssueToken)
		r.Delete("/token", h.RevokeToken)
	})
}

// --- Request / Response types ---

type salesRepRequest struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type salesRepResponse struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Phone     *string   `json:"phone"`
	Email     *string   `json:"email"`
	HasToken  bool      `json:"has_token"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type tokenIssueResponse struct {
	APIToken string `json:"api_token"`
}

// toSalesRepResponse maps a row to the API shape. The token itself is never
// echoed back on reads, only whether one exists.
func toSalesRepResponse(s database.SalesRep) salesRepResponse {
	resp := salesRepResponse{
		ID:        s.ID,
		Code:      s.Code,
		Name:      s.Name,
		HasToken:  s.APIToken.Valid,
		IsActive:  s.IsActive,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Phone.Valid {
		resp.Phone = &s.Phone.String
	}
	if s.Email.Valid {
		resp.Email = &s.Email.String
	}
	return resp
}

// --- Handlers ---

// List returns all active sales reps.
func (h *SalesRepHandler) List(w http.ResponseWriter, r *http.Request) {
	reps, err := h.store.ListSalesReps(r.Context())
	if err != nil {
		log.Printf("ERROR: list sales reps: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]salesRepResponse, len(reps))
	for i, s := range reps {
		resp[i] = toSalesRepResponse(s)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single sales rep by ID.
func (h *SalesRepHandler) Get(w http.ResponseWriter, r *http.Request) {
	repID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sales rep ID"})
		return
	}

	rep, err := h.store.GetSalesRep(r.Context(), repID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "sales rep not found"})
			return
		}
		log.Printf("ERROR: get sales rep: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toSalesRepResponse(rep))
}

// Create adds a new sales rep.
func (h *SalesRepHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req salesRepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Code == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code and name are required"})
		return
	}

	var phone, email pgtype.Text
	if req.Phone != "" {
		phone = pgtype.Text{String: req.Phone, Valid: true}
	}
	if req.Email != "" {
		email = pgtype.Text{String: req.Email, Valid: true}
	}

	rep, err := h.store.CreateSalesRep(r.Context(), database.CreateSalesRepParams{
		Code:  req.Code,
		Name:  req.Name,
		Phone: phone,
		Email: email,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "sales rep code already exists"})
			return
		}
		log.Printf("ERROR: create sales rep: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toSalesRepResponse(rep))
}

// Update modifies an existing sales rep.
func (h *SalesRepHandler) Update(w http.ResponseWriter, r *http.Request) {
	repID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sales rep ID"})
		return
	}

	var req salesRepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Code == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code and name are required"})
		return
	}

	var phone, email pgtype.Text
	if req.Phone != "" {
		phone = pgtype.Text{String: req.Phone, Valid: true}
	}
	if req.Email != "" {
		email = pgtype.Text{String: req.Email, Valid: true}
	}

	rep, err := h.store.UpdateSalesRep(r.Context(), database.UpdateSalesRepParams{
		ID:    repID,
		Code:  req.Code,
		Name:  req.Name,
		Phone: phone,
		Email: email,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "sales rep not found"})
			return
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "sales rep code already exists"})
			return
		}
		log.Printf("ERROR: update sales rep: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toSalesRepResponse(rep))
}

// Delete soft-deletes a sales rep by setting is_active=false.
func (h *SalesRepHandler) Delete(w http.ResponseWriter, r *http.Request) {
	repID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sales rep ID"})
		return
	}

	_, err = h.store.SoftDeleteSalesRep(r.Context(), repID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "sales rep not found"})
			return
		}
		log.Printf("ERROR: delete sales rep: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// IssueToken generates a fresh device API token for the rep. The token is
// returned once; reads only report whether one is set.
func (h *SalesRepHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	repID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sales rep ID"})
		return
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Printf("ERROR: generate api token: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	token := hex.EncodeToString(buf)

	_, err = h.store.SetSalesRepToken(r.Context(), database.SetSalesRepTokenParams{
		ID:       repID,
		APIToken: pgtype.Text{String: token, Valid: true},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "sales rep not found"})
			return
		}
		log.Printf("ERROR: set api token: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, tokenIssueResponse{APIToken: token})
}

// RevokeToken clears the rep's device API token.
func (h *SalesRepHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	repID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sales rep ID"})
		return
	}

	_, err = h.store.SetSalesRepToken(r.Context(), database.SetSalesRepTokenParams{
		ID:       repID,
		APIToken: pgtype.Text{},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "sales rep not found"})
			return
		}
		log.Printf("ERROR: revoke api token: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
