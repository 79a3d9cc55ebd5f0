package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vendasul/api/internal/enum"
	"github.com/vendasul/api/internal/middleware"
	"github.com/vendasul/api/internal/service"
	"github.com/vendasul/api/internal/ws"
)

// MobileOrderHandler receives orders submitted by sales rep devices.
type MobileOrderHandler struct {
	creator OrderCreator
	hub     *ws.Hub
}

// NewMobileOrderHandler creates a new MobileOrderHandler.
func NewMobileOrderHandler(creator OrderCreator, hub *ws.Hub) *MobileOrderHandler {
	return &MobileOrderHandler{creator: creator, hub: hub}
}

// RegisterRoutes registers mobile order endpoints on the given Chi router.
// Expected to be mounted at /mobile/orders behind device auth.
func (h *MobileOrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Submit)
}

type mobileOrderRequest struct {
	MobileOrderID string                   `json:"mobile_order_id"`
	CustomerID    string                   `json:"customer_id"`
	OrderDate     string                   `json:"order_date"`
	PaymentMethod string                   `json:"payment_method"`
	Discount      string                   `json:"discount"`
	Notes         string                   `json:"notes"`
	Items         []createOrderItemRequest `json:"items"`
}

// mobileEnvelope is the response shape the mobile clients expect. They key
// off the success flag, not the HTTP status.
type mobileEnvelope struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Submit persists an order sent from a device. Resends of the same
// mobile_order_id return the stored order instead of duplicating it.
func (h *MobileOrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	rep := middleware.SalesRepFromContext(r.Context())
	if rep == nil {
		writeJSON(w, http.StatusUnauthorized, mobileEnvelope{Success: false, Error: "not authenticated"})
		return
	}

	var req mobileOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, mobileEnvelope{Success: false, Error: "invalid request body"})
		return
	}

	if req.MobileOrderID == "" {
		writeJSON(w, http.StatusBadRequest, mobileEnvelope{Success: false, Error: "mobile_order_id is required"})
		return
	}

	svcReq := service.CreateOrderRequest{
		CustomerID:    req.CustomerID,
		SalesRepID:    rep.ID.String(),
		OrderDate:     req.OrderDate,
		PaymentMethod: req.PaymentMethod,
		Discount:      req.Discount,
		Notes:         req.Notes,
		Source:        enum.OrderSourceMobile,
		MobileOrderID: req.MobileOrderID,
	}
	for _, it := range req.Items {
		svcReq.Items = append(svcReq.Items, service.CreateOrderItemRequest{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Unit:      it.Unit,
			Discount:  it.Discount,
		})
	}

	result, err := h.creator.CreateOrder(r.Context(), svcReq)
	if err != nil {
		if status, msg := orderErrorStatus(err); status != 0 {
			writeJSON(w, status, mobileEnvelope{Success: false, Error: msg})
			return
		}
		log.Printf("ERROR: mobile order from rep %s: %v", rep.Code, err)
		writeJSON(w, http.StatusInternalServerError, mobileEnvelope{Success: false, Error: "internal server error"})
		return
	}

	if result.Existing {
		writeJSON(w, http.StatusOK, mobileEnvelope{Success: true, OrderID: result.Order.ID.String()})
		return
	}

	h.notifyPending(result)

	writeJSON(w, http.StatusCreated, mobileEnvelope{Success: true, OrderID: result.Order.ID.String()})
}

func (h *MobileOrderHandler) notifyPending(result *service.CreateOrderResult) {
	if h.hub == nil {
		return
	}
	payload, err := json.Marshal(toOrderResponse(result.Order))
	if err != nil {
		log.Printf("ERROR: marshal pending order event: %v", err)
		return
	}
	h.hub.Broadcast(ws.TopicPendingOrders, ws.Event{
		Type:    "order.created",
		Payload: payload,
	})
}
