package handler

import (
	"context"
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
	"github.com/vendasul/api/internal/enum"
)

// RouteStore defines the database methods needed by route and load handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type RouteStore interface {
	ListRoutes(ctx context.Context) ([]database.Route, error)
	GetRoute(ctx context.Context, id uuid.UUID) (database.Route, error)
	CreateRoute(ctx context.Context, arg database.CreateRouteParams) (database.Route, error)
	UpdateRoute(ctx context.Context, arg database.UpdateRouteParams) (database.Route, error)
	SoftDeleteRoute(ctx context.Context, id uuid.UUID) (uuid.UUID, error)

	ListLoads(ctx context.Context, arg database.ListLoadsParams) ([]database.Load, error)
	GetLoad(ctx context.Context, id uuid.UUID) (database.Load, error)
	CreateLoad(ctx context.Context, arg database.CreateLoadParams) (database.Load, error)
	UpdateLoadStatus(ctx context.Context, arg database.UpdateLoadStatusParams) (database.Load, error)
	AddOrderToLoad(ctx context.Context, arg database.AddOrderToLoadParams) error
	RemoveOrderFromLoad(ctx context.Context, arg database.RemoveOrderFromLoadParams) (int64, error)
	ListOrdersByLoad(ctx context.Context, loadID uuid.UUID) ([]database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
}

// RouteHandler handles delivery route and load endpoints.
type RouteHandler struct {
	store RouteStore
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(store RouteStore) *RouteHandler {
	return &RouteHandler{store: store}
}

// RegisterRoutes registers route endpoints on the given Chi router.
// Mounted at /routes.
func (h *RouteHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})
}

// RegisterLoadRoutes registers load endpoints on the given Chi router.
// Mounted at /loads.
func (h *RouteHandler) RegisterLoadRoutes(r chi.Router) {
	r.Get("/", h.ListLoads)
	r.Post("/", h.CreateLoad)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetLoad)
		r.Put("/status", h.UpdateLoadStatus)
		r.Get("/orders", h.LoadOrders)
		r.Post("/orders/{orderID}", h.AddOrder)
		r.Delete("/orders/{orderID}", h.RemoveOrder)
	})
}

// --- Request / Response types ---

type routeRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type routeResponse struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type createLoadRequest struct {
	RouteID  string `json:"route_id"`
	LoadDate string `json:"load_date"` // RFC3339, optional
	Vehicle  string `json:"vehicle"`
	Driver   string `json:"driver"`
}

type loadStatusRequest struct {
	Status string `json:"status"`
}

type loadResponse struct {
	ID        uuid.UUID `json:"id"`
	RouteID   uuid.UUID `json:"route_id"`
	LoadDate  time.Time `json:"load_date"`
	Vehicle   *string   `json:"vehicle"`
	Driver    *string   `json:"driver"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRouteResponse(rt database.Route) routeResponse {
	resp := routeResponse{
		ID:        rt.ID,
		Code:      rt.Code,
		Name:      rt.Name,
		IsActive:  rt.IsActive,
		CreatedAt: rt.CreatedAt,
		UpdatedAt: rt.UpdatedAt,
	}
	if rt.Description.Valid {
		resp.Description = &rt.Description.String
	}
	return resp
}

func toLoadResponse(l database.Load) loadResponse {
	resp := loadResponse{
		ID:        l.ID,
		RouteID:   l.RouteID,
		LoadDate:  l.LoadDate,
		Status:    l.Status,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
	if l.Vehicle.Valid {
		resp.Vehicle = &l.Vehicle.String
	}
	if l.Driver.Valid {
		resp.Driver = &l.Driver.String
	}
	return resp
}

// --- Route handlers ---

// List returns all active routes.
func (h *RouteHandler) List(w http.ResponseWriter, r *http.Request) {
	routes, err := h.store.ListRoutes(r.Context())
	if err != nil {
		log.Printf("ERROR: list routes: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]routeResponse, len(routes))
	for i, rt := range routes {
		resp[i] = toRouteResponse(rt)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single route by ID.
func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	routeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid route ID"})
		return
	}

	route, err := h.store.GetRoute(r.Context(), routeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
			return
		}
		log.Printf("ERROR: get route: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toRouteResponse(route))
}

// Create adds a new route.
func (h *RouteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Code == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code and name are required"})
		return
	}

	var desc pgtype.Text
	if req.Description != "" {
		desc = pgtype.Text{String: req.Description, Valid: true}
	}

	route, err := h.store.CreateRoute(r.Context(), database.CreateRouteParams{
		Code:        req.Code,
		Name:        req.Name,
		Description: desc,
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "route code already exists"})
			return
		}
		log.Printf("ERROR: create route: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toRouteResponse(route))
}

// Update modifies an existing route.
func (h *RouteHandler) Update(w http.ResponseWriter, r *http.Request) {
	routeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid route ID"})
		return
	}

	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Code == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code and name are required"})
		return
	}

	var desc pgtype.Text
	if req.Description != "" {
		desc = pgtype.Text{String: req.Description, Valid: true}
	}

	route, err := h.store.UpdateRoute(r.Context(), database.UpdateRouteParams{
		ID:          routeID,
		Code:        req.Code,
		Name:        req.Name,
		Description: desc,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
			return
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "route code already exists"})
			return
		}
		log.Printf("ERROR: update route: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toRouteResponse(route))
}

// Delete soft-deletes a route by setting is_active=false.
func (h *RouteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	routeID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid route ID"})
		return
	}

	_, err = h.store.SoftDeleteRoute(r.Context(), routeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
			return
		}
		log.Printf("ERROR: delete route: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Load handlers ---

// ListLoads returns loads with optional route and status filters.
func (h *RouteHandler) ListLoads(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	var routeID pgtype.UUID
	if s := r.URL.Query().Get("route_id"); s != "" {
		rid, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid route_id"})
			return
		}
		routeID = pgtype.UUID{Bytes: rid, Valid: true}
	}

	var status pgtype.Text
	if s := r.URL.Query().Get("status"); s != "" {
		status = pgtype.Text{String: s, Valid: true}
	}

	loads, err := h.store.ListLoads(r.Context(), database.ListLoadsParams{
		RouteID: routeID,
		Status:  status,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		log.Printf("ERROR: list loads: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]loadResponse, len(loads))
	for i, l := range loads {
		resp[i] = toLoadResponse(l)
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetLoad returns a single load by ID.
func (h *RouteHandler) GetLoad(w http.ResponseWriter, r *http.Request) {
	loadID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid load ID"})
		return
	}

	load, err := h.store.GetLoad(r.Context(), loadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "load not found"})
			return
		}
		log.Printf("ERROR: get load: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toLoadResponse(load))
}

// CreateLoad opens a new load on a route.
func (h *RouteHandler) CreateLoad(w http.ResponseWriter, r *http.Request) {
	var req createLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	routeID, err := uuid.Parse(req.RouteID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid route_id"})
		return
	}

	// Route must exist and be active
	if _, err := h.store.GetRoute(r.Context(), routeID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
			return
		}
		log.Printf("ERROR: get route for load: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	loadDate := time.Now()
	if req.LoadDate != "" {
		loadDate, err = time.Parse(time.RFC3339, req.LoadDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid load_date"})
			return
		}
	}

	var vehicle, driver pgtype.Text
	if req.Vehicle != "" {
		vehicle = pgtype.Text{String: req.Vehicle, Valid: true}
	}
	if req.Driver != "" {
		driver = pgtype.Text{String: req.Driver, Valid: true}
	}

	load, err := h.store.CreateLoad(r.Context(), database.CreateLoadParams{
		RouteID:  routeID,
		LoadDate: loadDate,
		Vehicle:  vehicle,
		Driver:   driver,
	})
	if err != nil {
		log.Printf("ERROR: create load: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toLoadResponse(load))
}

// UpdateLoadStatus moves a load through OPEN -> DISPATCHED -> CLOSED.
func (h *RouteHandler) UpdateLoadStatus(w http.ResponseWriter, r *http.Request) {
	loadID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid load ID"})
		return
	}

	var req loadStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	switch req.Status {
	case enum.LoadStatusOpen, enum.LoadStatusDispatched, enum.LoadStatusClosed:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	load, err := h.store.UpdateLoadStatus(r.Context(), database.UpdateLoadStatusParams{
		ID:     loadID,
		Status: req.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "load not found"})
			return
		}
		log.Printf("ERROR: update load status: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toLoadResponse(load))
}

// LoadOrders returns the orders assigned to a load.
func (h *RouteHandler) LoadOrders(w http.ResponseWriter, r *http.Request) {
	loadID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid load ID"})
		return
	}

	if _, err := h.store.GetLoad(r.Context(), loadID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "load not found"})
			return
		}
		log.Printf("ERROR: get load for orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	orders, err := h.store.ListOrdersByLoad(r.Context(), loadID)
	if err != nil {
		log.Printf("ERROR: list orders by load: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddOrder assigns an order to a load. Only imported orders can ride a load.
func (h *RouteHandler) AddOrder(w http.ResponseWriter, r *http.Request) {
	loadID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid load ID"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	load, err := h.store.GetLoad(r.Context(), loadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "load not found"})
			return
		}
		log.Printf("ERROR: get load: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if load.Status != enum.LoadStatusOpen {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "load is not open"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order for load: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if order.Status != enum.OrderStatusImported {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "only imported orders can be loaded"})
		return
	}

	if err := h.store.AddOrderToLoad(r.Context(), database.AddOrderToLoadParams{
		LoadID:  loadID,
		OrderID: orderID,
	}); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order already on this load"})
			return
		}
		log.Printf("ERROR: add order to load: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveOrder takes an order off a load.
func (h *RouteHandler) RemoveOrder(w http.ResponseWriter, r *http.Request) {
	loadID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid load ID"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	n, err := h.store.RemoveOrderFromLoad(r.Context(), database.RemoveOrderFromLoadParams{
		LoadID:  loadID,
		OrderID: orderID,
	})
	if err != nil {
		log.Printf("ERROR: remove order from load: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not on this load"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
