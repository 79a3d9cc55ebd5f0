package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/vendasul/api/internal/database"
	"github.com/vendasul/api/internal/enum"
	"github.com/vendasul/api/internal/middleware"
	"github.com/vendasul/api/internal/service"
)

// MobileSyncStore defines the database methods needed by mobile sync
// handlers. Satisfied by *database.Queries.
type MobileSyncStore interface {
	ListActiveCustomers(ctx context.Context) ([]database.Customer, error)
	ListActiveProducts(ctx context.Context) ([]database.Product, error)
	ListSalesReps(ctx context.Context) ([]database.SalesRep, error)
	ListOrdersBySalesRepSince(ctx context.Context, arg database.ListOrdersBySalesRepSinceParams) ([]database.Order, error)
	CreateSyncLog(ctx context.Context, arg database.CreateSyncLogParams) error
}

// MobileSyncHandler serves the dataset downloads, order batch pushes and sync
// update polling used by the devices.
type MobileSyncHandler struct {
	store   MobileSyncStore
	updates *service.SyncUpdateService
	creator OrderCreator
}

// NewMobileSyncHandler creates a new MobileSyncHandler.
func NewMobileSyncHandler(store MobileSyncStore, updates *service.SyncUpdateService, creator OrderCreator) *MobileSyncHandler {
	return &MobileSyncHandler{store: store, updates: updates, creator: creator}
}

// RegisterRoutes registers mobile sync endpoints on the given Chi router.
// Expected to be mounted at /mobile/sync behind device auth.
func (h *MobileSyncHandler) RegisterRoutes(r chi.Router) {
	r.Get("/get-customers", h.GetCustomers)
	r.Get("/get-products", h.GetProducts)
	r.Get("/get-sales-reps", h.GetSalesReps)
	r.Get("/get-orders", h.GetOrders)
	r.Post("/orders", h.PushOrders)
	r.Get("/updates", h.ListUpdates)
	r.Post("/updates/{id}/consume", h.ConsumeUpdate)
}

// syncEnvelope wraps every dataset download so the device can record the
// server time the snapshot was taken at.
type syncEnvelope struct {
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type syncUpdateResponse struct {
	ID          uuid.UUID `json:"id"`
	DataTypes   []string  `json:"data_types"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// GetCustomers returns every active customer.
func (h *MobileSyncHandler) GetCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.store.ListActiveCustomers(r.Context())
	if err != nil {
		log.Printf("ERROR: sync customers: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]customerResponse, len(customers))
	for i, c := range customers {
		resp[i] = toCustomerResponse(c)
	}

	h.logFetch(r, "fetch:customers", len(resp))
	writeJSON(w, http.StatusOK, syncEnvelope{Data: resp, Timestamp: time.Now().UTC()})
}

// GetProducts returns every active product.
func (h *MobileSyncHandler) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListActiveProducts(r.Context())
	if err != nil {
		log.Printf("ERROR: sync products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = toProductResponse(p)
	}

	h.logFetch(r, "fetch:products", len(resp))
	writeJSON(w, http.StatusOK, syncEnvelope{Data: resp, Timestamp: time.Now().UTC()})
}

// GetSalesReps returns every active sales rep. Tokens are not echoed.
func (h *MobileSyncHandler) GetSalesReps(w http.ResponseWriter, r *http.Request) {
	reps, err := h.store.ListSalesReps(r.Context())
	if err != nil {
		log.Printf("ERROR: sync sales reps: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]salesRepResponse, len(reps))
	for i, rep := range reps {
		resp[i] = toSalesRepResponse(rep)
	}

	h.logFetch(r, "fetch:sales_reps", len(resp))
	writeJSON(w, http.StatusOK, syncEnvelope{Data: resp, Timestamp: time.Now().UTC()})
}

// GetOrders returns the authenticated rep's orders, optionally since a date.
func (h *MobileSyncHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	rep := middleware.SalesRepFromContext(r.Context())
	if rep == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var since pgtype.Timestamptz
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid since date"})
			return
		}
		since = pgtype.Timestamptz{Time: t, Valid: true}
	}

	orders, err := h.store.ListOrdersBySalesRepSince(r.Context(), database.ListOrdersBySalesRepSinceParams{
		SalesRepID: rep.ID,
		Since:      since,
	})
	if err != nil {
		log.Printf("ERROR: sync orders for rep %s: %v", rep.Code, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}

	h.logFetch(r, "fetch:orders", len(resp))
	writeJSON(w, http.StatusOK, syncEnvelope{Data: resp, Timestamp: time.Now().UTC()})
}

type pushOrdersRequest struct {
	DeviceID string               `json:"device_id"`
	Orders   []mobileOrderRequest `json:"orders"`
}

type pushOrderResult struct {
	MobileOrderID string `json:"mobile_order_id"`
	OrderID       string `json:"order_id,omitempty"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

// PushOrders accepts a batch of orders from a device in one request. Each
// order is processed independently and idempotently on mobile_order_id, so a
// device can safely replay its whole outbox after a connectivity gap.
func (h *MobileSyncHandler) PushOrders(w http.ResponseWriter, r *http.Request) {
	rep := middleware.SalesRepFromContext(r.Context())
	if rep == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req pushOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Orders) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "orders is required"})
		return
	}

	results := make([]pushOrderResult, 0, len(req.Orders))
	for _, o := range req.Orders {
		results = append(results, h.pushOne(r.Context(), rep, o))
	}

	h.logFetch(r, "push:orders", len(results))
	writeJSON(w, http.StatusOK, syncEnvelope{Data: results, Timestamp: time.Now().UTC()})
}

func (h *MobileSyncHandler) pushOne(ctx context.Context, rep *database.SalesRep, o mobileOrderRequest) pushOrderResult {
	if o.MobileOrderID == "" {
		return pushOrderResult{Success: false, Error: "mobile_order_id is required"}
	}

	svcReq := service.CreateOrderRequest{
		CustomerID:    o.CustomerID,
		SalesRepID:    rep.ID.String(),
		OrderDate:     o.OrderDate,
		PaymentMethod: o.PaymentMethod,
		Discount:      o.Discount,
		Notes:         o.Notes,
		Source:        enum.OrderSourceMobile,
		MobileOrderID: o.MobileOrderID,
	}
	for _, it := range o.Items {
		svcReq.Items = append(svcReq.Items, service.CreateOrderItemRequest{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Unit:      it.Unit,
			Discount:  it.Discount,
		})
	}

	result, err := h.creator.CreateOrder(ctx, svcReq)
	if err != nil {
		if _, msg := orderErrorStatus(err); msg != "" {
			return pushOrderResult{MobileOrderID: o.MobileOrderID, Success: false, Error: msg}
		}
		log.Printf("ERROR: push order %s from rep %s: %v", o.MobileOrderID, rep.Code, err)
		return pushOrderResult{MobileOrderID: o.MobileOrderID, Success: false, Error: "internal server error"}
	}

	return pushOrderResult{
		MobileOrderID: o.MobileOrderID,
		OrderID:       result.Order.ID.String(),
		Success:       true,
	}
}

// ListUpdates returns the sync updates the device still has to act on.
func (h *MobileSyncHandler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := h.updates.ListActive(r.Context())
	if err != nil {
		log.Printf("ERROR: list active sync updates: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]syncUpdateResponse, len(updates))
	for i, su := range updates {
		resp[i] = syncUpdateResponse{
			ID:          su.ID,
			DataTypes:   su.DataTypes,
			Description: su.Description,
			CreatedAt:   su.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ConsumeUpdate marks a sync update as handled by this device. The consumed
// flag is false when another device got there first.
func (h *MobileSyncHandler) ConsumeUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid update ID"})
		return
	}

	var consumedBy string
	if rep := middleware.SalesRepFromContext(r.Context()); rep != nil {
		consumedBy = rep.Code
	}
	deviceID := r.Header.Get("X-Device-ID")

	consumed := h.updates.Consume(r.Context(), id, consumedBy, deviceID)
	writeJSON(w, http.StatusOK, map[string]bool{"consumed": consumed})
}

func (h *MobileSyncHandler) logFetch(r *http.Request, event string, count int) {
	var repID pgtype.UUID
	if rep := middleware.SalesRepFromContext(r.Context()); rep != nil {
		repID = pgtype.UUID{Bytes: rep.ID, Valid: true}
	}
	var deviceID pgtype.Text
	if d := r.Header.Get("X-Device-ID"); d != "" {
		deviceID = pgtype.Text{String: d, Valid: true}
	}

	details, err := json.Marshal(map[string]int{"count": count})
	if err != nil {
		log.Printf("ERROR: marshal sync log details: %v", err)
		details = nil
	}

	err = h.store.CreateSyncLog(r.Context(), database.CreateSyncLogParams{
		Event:      event,
		SalesRepID: repID,
		DeviceID:   deviceID,
		Details:    details,
	})
	if err != nil {
		log.Printf("ERROR: sync log %s: %v", event, err)
	}
}
