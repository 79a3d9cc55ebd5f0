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
	"github.com/vendasul/api/internal/middleware"
	"github.com/vendasul/api/internal/service"
	"github.com/vendasul/api/internal/ws"
)

// ImportHandler drives the pending mobile order review screen.
type ImportHandler struct {
	svc *service.ImportService
	hub *ws.Hub
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(svc *service.ImportService, hub *ws.Hub) *ImportHandler {
	return &ImportHandler{svc: svc, hub: hub}
}

// RegisterRoutes registers import endpoints on the given Chi router.
// Expected to be mounted at /imports behind back-office auth.
func (h *ImportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/pending", h.Pending)
	r.Post("/pending/orders/{id}/toggle", h.ToggleOrder)
	r.Post("/pending/sales-reps/{repID}/toggle", h.ToggleSalesRep)
	r.Post("/pending/select-all", h.SelectAll)
	r.Post("/pending/clear", h.Clear)
	r.Post("/import", h.Import)
	r.Post("/reject", h.Reject)
	r.Get("/history", h.History)
}

// --- Response types ---

type importGroupResponse struct {
	SalesRepID   string          `json:"sales_rep_id"`
	SalesRepName string          `json:"sales_rep_name"`
	Count        int             `json:"count"`
	TotalValue   string          `json:"total_value"`
	Orders       []orderResponse `json:"orders"`
}

type pendingResponse struct {
	Groups            []importGroupResponse `json:"groups"`
	SelectedOrders    []uuid.UUID           `json:"selected_orders"`
	SelectedSalesReps []string              `json:"selected_sales_reps"`
}

type importReportResponse struct {
	Action     string      `json:"action"`
	Count      int         `json:"count"`
	SalesReps  int         `json:"sales_reps"`
	TotalValue string      `json:"total_value"`
	Operator   string      `json:"operator"`
	Timestamp  time.Time   `json:"timestamp"`
	OrderIDs   []uuid.UUID `json:"order_ids"`
}

func toPendingResponse(groups []service.Group, selectedOrders []uuid.UUID, selectedReps []string) pendingResponse {
	resp := pendingResponse{
		Groups:            make([]importGroupResponse, len(groups)),
		SelectedOrders:    selectedOrders,
		SelectedSalesReps: selectedReps,
	}
	for i, g := range groups {
		orders := make([]orderResponse, len(g.Orders))
		for j, o := range g.Orders {
			orders[j] = toOrderResponse(o)
		}
		resp.Groups[i] = importGroupResponse{
			SalesRepID:   g.SalesRepID,
			SalesRepName: g.SalesRepName,
			Count:        g.Count,
			TotalValue:   g.TotalValue.StringFixed(2),
			Orders:       orders,
		}
	}
	return resp
}

func toImportReportResponse(rep *service.Report) importReportResponse {
	return importReportResponse{
		Action:     rep.Action,
		Count:      rep.Count,
		SalesReps:  rep.SalesReps,
		TotalValue: rep.TotalValue.StringFixed(2),
		Operator:   rep.Operator,
		Timestamp:  rep.Timestamp,
		OrderIDs:   rep.OrderIDs,
	}
}

// --- Handlers ---

// Pending reloads and returns the pending set grouped by sales rep.
func (h *ImportHandler) Pending(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.LoadPending(r.Context())
	if err != nil {
		log.Printf("ERROR: load pending orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toPendingResponse(groups, h.svc.SelectedOrders(), h.svc.SelectedSalesReps()))
}

// ToggleOrder flips one pending order in or out of the selection.
func (h *ImportHandler) ToggleOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	if err := h.svc.ToggleOrder(orderID); err != nil {
		if errors.Is(err, service.ErrUnknownOrder) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order is not pending"})
			return
		}
		log.Printf("ERROR: toggle order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.writeSelection(w)
}

// ToggleSalesRep flips a whole rep group in or out of the selection.
func (h *ImportHandler) ToggleSalesRep(w http.ResponseWriter, r *http.Request) {
	repID := chi.URLParam(r, "repID")
	if repID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sales rep ID"})
		return
	}

	if err := h.svc.ToggleSalesRep(repID); err != nil {
		if errors.Is(err, service.ErrUnknownSalesRep) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "sales rep has no pending orders"})
			return
		}
		log.Printf("ERROR: toggle sales rep: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	h.writeSelection(w)
}

// SelectAll selects every pending order.
func (h *ImportHandler) SelectAll(w http.ResponseWriter, r *http.Request) {
	h.svc.SelectAll()
	h.writeSelection(w)
}

// Clear empties the selection.
func (h *ImportHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.svc.Clear()
	h.writeSelection(w)
}

// History returns past import and reject reports, newest first.
func (h *ImportHandler) History(w http.ResponseWriter, r *http.Request) {
	reports := h.svc.History()
	resp := make([]importReportResponse, len(reports))
	for i := range reports {
		resp[i] = toImportReportResponse(&reports[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// Import marks the selected orders IMPORTED.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.svc.ImportSelected)
}

// Reject marks the selected orders REJECTED.
func (h *ImportHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.svc.RejectSelected)
}

func (h *ImportHandler) bulk(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, operator string) (*service.Report, error)) {
	var operator string
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		operator = claims.FullName
	}

	report, err := run(r.Context(), operator)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOperationInFlight):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "an import or reject is already running"})
			return
		case errors.Is(err, service.ErrNothingSelected):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no orders selected"})
			return
		}
		// A non-nil report means the update went through and only the
		// reload failed. Return the report anyway.
		if report == nil {
			log.Printf("ERROR: bulk update: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		log.Printf("WARN: reload after bulk update: %v", err)
	}

	h.notifyPendingChanged(report)
	writeJSON(w, http.StatusOK, toImportReportResponse(report))
}

func (h *ImportHandler) notifyPendingChanged(report *service.Report) {
	if h.hub == nil {
		return
	}
	payload, err := json.Marshal(toImportReportResponse(report))
	if err != nil {
		log.Printf("ERROR: marshal pending change event: %v", err)
		return
	}
	h.hub.Broadcast(ws.TopicPendingOrders, ws.Event{
		Type:    "pending." + report.Action,
		Payload: payload,
	})
}

func (h *ImportHandler) writeSelection(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"selected_orders":     h.svc.SelectedOrders(),
		"selected_sales_reps": h.svc.SelectedSalesReps(),
	})
}
