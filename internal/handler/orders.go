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
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/vendasul/api/internal/database"
	"github.com/vendasul/api/internal/enum"
	"github.com/vendasul/api/internal/service"
)

// OrdersStore defines the database methods needed by order handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrdersStore interface {
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
}

// OrderCreator creates orders atomically. Satisfied by *service.OrderService.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

// OrderHandler handles order endpoints, including line item editing.
type OrderHandler struct {
	store   OrdersStore
	creator OrderCreator
	drafts  *service.DraftManager
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(store OrdersStore, creator OrderCreator, drafts *service.DraftManager) *OrderHandler {
	return &OrderHandler{store: store, creator: creator, drafts: drafts}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/cancel", h.Cancel)
		r.Post("/deliver", h.Deliver)
		r.Get("/items", h.ListItems)
		r.Post("/items", h.AddItem)
		r.Delete("/items/{productID}", h.RemoveItem)
	})
}

// --- Request / Response types ---

type createOrderRequest struct {
	CustomerID    string                   `json:"customer_id"`
	SalesRepID    string                   `json:"sales_rep_id"`
	OrderDate     string                   `json:"order_date"`
	PaymentMethod string                   `json:"payment_method"`
	Discount      string                   `json:"discount"`
	Notes         string                   `json:"notes"`
	Items         []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Unit      string `json:"unit"`
	Discount  string `json:"discount"`
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Unit      string `json:"unit"`
	OpToken   string `json:"op_token"`
}

type orderResponse struct {
	ID            uuid.UUID  `json:"id"`
	CustomerID    *uuid.UUID `json:"customer_id"`
	CustomerName  string     `json:"customer_name"`
	SalesRepID    *uuid.UUID `json:"sales_rep_id"`
	SalesRepName  *string    `json:"sales_rep_name"`
	OrderDate     time.Time  `json:"order_date"`
	Subtotal      string     `json:"subtotal"`
	Discount      string     `json:"discount"`
	TotalAmount   string     `json:"total_amount"`
	PaymentMethod *string    `json:"payment_method"`
	Status        string     `json:"status"`
	Source        string     `json:"source"`
	MobileOrderID *string    `json:"mobile_order_id"`
	Notes         *string    `json:"notes"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type orderItemResponse struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductCode string    `json:"product_code"`
	ProductName string    `json:"product_name"`
	Quantity    string    `json:"quantity"`
	Unit        string    `json:"unit"`
	UnitPrice   string    `json:"unit_price"`
	Discount    string    `json:"discount"`
	Total       string    `json:"total"`
}

type orderDetailResponse struct {
	orderResponse
	Items []orderItemResponse `json:"items"`
}

func toOrderResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:           o.ID,
		CustomerName: o.CustomerName,
		OrderDate:    o.OrderDate,
		Subtotal:     numericToString(o.Subtotal),
		Discount:     numericToString(o.Discount),
		TotalAmount:  numericToString(o.TotalAmount),
		Status:       o.Status,
		Source:       o.Source,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	if o.CustomerID.Valid {
		cid := uuid.UUID(o.CustomerID.Bytes)
		resp.CustomerID = &cid
	}
	if o.SalesRepID.Valid {
		rid := uuid.UUID(o.SalesRepID.Bytes)
		resp.SalesRepID = &rid
	}
	if o.SalesRepName.Valid {
		resp.SalesRepName = &o.SalesRepName.String
	}
	if o.PaymentMethod.Valid {
		resp.PaymentMethod = &o.PaymentMethod.String
	}
	if o.MobileOrderID.Valid {
		resp.MobileOrderID = &o.MobileOrderID.String
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}
	return resp
}

func toOrderItemResponse(it database.OrderItem) orderItemResponse {
	return orderItemResponse{
		ID:          it.ID,
		ProductID:   it.ProductID,
		ProductCode: it.ProductCode,
		ProductName: it.ProductName,
		Quantity:    numericToString(it.Quantity),
		Unit:        it.Unit,
		UnitPrice:   numericToString(it.UnitPrice),
		Discount:    numericToString(it.Discount),
		Total:       numericToString(it.Total),
	}
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}

// --- Handlers ---

// List returns orders with optional status/source/sales_rep/customer/date filters.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	q := r.URL.Query()

	var status, source pgtype.Text
	if s := q.Get("status"); s != "" {
		status = pgtype.Text{String: s, Valid: true}
	}
	if s := q.Get("source"); s != "" {
		source = pgtype.Text{String: s, Valid: true}
	}

	var salesRepID, customerID pgtype.UUID
	if s := q.Get("sales_rep_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid sales_rep_id"})
			return
		}
		salesRepID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if s := q.Get("customer_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid customer_id"})
			return
		}
		customerID = pgtype.UUID{Bytes: id, Valid: true}
	}

	var from, to pgtype.Timestamptz
	if s := q.Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from date"})
			return
		}
		from = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to date"})
			return
		}
		to = pgtype.Timestamptz{Time: t, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), database.ListOrdersParams{
		Status:     status,
		Source:     source,
		SalesRepID: salesRepID,
		CustomerID: customerID,
		From:       from,
		To:         to,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get returns an order with its items.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	itemsResp := make([]orderItemResponse, len(items))
	for i, it := range items {
		itemsResp[i] = toOrderItemResponse(it)
	}

	writeJSON(w, http.StatusOK, orderDetailResponse{
		orderResponse: toOrderResponse(order),
		Items:         itemsResp,
	})
}

// Create creates a manual back-office order.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcReq := service.CreateOrderRequest{
		CustomerID:    req.CustomerID,
		SalesRepID:    req.SalesRepID,
		OrderDate:     req.OrderDate,
		PaymentMethod: req.PaymentMethod,
		Discount:      req.Discount,
		Notes:         req.Notes,
		Source:        enum.OrderSourceManual,
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
			writeJSON(w, status, map[string]string{"error": msg})
			return
		}
		log.Printf("ERROR: create order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	itemsResp := make([]orderItemResponse, len(result.Items))
	for i, it := range result.Items {
		itemsResp[i] = toOrderItemResponse(it)
	}

	writeJSON(w, http.StatusCreated, orderDetailResponse{
		orderResponse: toOrderResponse(result.Order),
		Items:         itemsResp,
	})
}

// orderErrorStatus maps order service validation errors to HTTP statuses.
// Returns 0 for errors the caller should treat as internal.
func orderErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrInvalidCustomerID),
		errors.Is(err, service.ErrInvalidSalesRepID),
		errors.Is(err, service.ErrInvalidProductID),
		errors.Is(err, service.ErrInvalidOrderDate),
		errors.Is(err, service.ErrInvalidDiscount),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidPrice):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrCustomerNotFound),
		errors.Is(err, service.ErrSalesRepNotFound),
		errors.Is(err, service.ErrProductNotFound):
		return http.StatusUnprocessableEntity, err.Error()
	}
	return 0, ""
}

// Cancel moves an order to CANCELLED. Delivered orders stay put.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, enum.OrderStatusCancelled, func(current string) bool {
		return current != enum.OrderStatusDelivered && current != enum.OrderStatusCancelled
	})
}

// Deliver moves an imported order to DELIVERED.
func (h *OrderHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, enum.OrderStatusDelivered, func(current string) bool {
		return current == enum.OrderStatusImported
	})
}

func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, target string, allowed func(string) bool) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if !allowed(order.Status) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "invalid status transition"})
		return
	}

	updated, err := h.store.UpdateOrderStatus(r.Context(), database.UpdateOrderStatusParams{
		ID:     orderID,
		Status: target,
	})
	if err != nil {
		log.Printf("ERROR: update order status: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	// The order left edit mode; drop any cached draft.
	h.drafts.Release(orderID)

	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

// ListItems returns the order's current lines from the draft engine.
func (h *OrderHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	if _, err := h.store.GetOrder(r.Context(), orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	draft, err := h.drafts.Draft(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: load draft: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, draftItemsResponse(draft))
}

// AddItem adds (or merges) a line on the order through the draft engine.
func (h *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product_id"})
		return
	}

	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid quantity"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if order.Status == enum.OrderStatusDelivered || order.Status == enum.OrderStatusCancelled {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order can no longer be edited"})
		return
	}

	product, err := h.store.GetProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	price := decimal.Zero
	if req.UnitPrice != "" {
		price, err = decimal.NewFromString(req.UnitPrice)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid unit_price"})
			return
		}
	} else if v, verr := product.Price.Value(); verr == nil && v != nil {
		price, _ = decimal.NewFromString(v.(string))
	}

	draft, err := h.drafts.Draft(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: load draft: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	err = draft.AddItem(r.Context(), service.Product{
		ID:   product.ID,
		Code: product.Code,
		Name: product.Name,
		Unit: product.Unit,
	}, qty, price, req.Unit, req.OpToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, service.ErrInvalidPrice):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: add item: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, draftItemsResponse(draft))
}

// RemoveItem removes all lines of a product from the order.
func (h *OrderHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if order.Status == enum.OrderStatusDelivered || order.Status == enum.OrderStatusCancelled {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order can no longer be edited"})
		return
	}

	draft, err := h.drafts.Draft(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: load draft: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if err := draft.RemoveItem(r.Context(), productID); err != nil {
		if errors.Is(err, service.ErrItemNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "item not found"})
			return
		}
		log.Printf("ERROR: remove item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, draftItemsResponse(draft))
}

type draftItemsBody struct {
	Items    []orderItemResponse `json:"items"`
	Subtotal string              `json:"subtotal"`
}

func draftItemsResponse(d *service.Draft) draftItemsBody {
	items := d.Items()
	resp := make([]orderItemResponse, len(items))
	for i, it := range items {
		resp[i] = orderItemResponse{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductCode: it.ProductCode,
			ProductName: it.ProductName,
			Quantity:    it.Quantity.String(),
			Unit:        it.Unit,
			UnitPrice:   it.UnitPrice.StringFixed(2),
			Discount:    it.Discount.StringFixed(2),
			Total:       it.Total.StringFixed(2),
		}
	}
	return draftItemsBody{Items: resp, Subtotal: d.Subtotal().StringFixed(2)}
}
