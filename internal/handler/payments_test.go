package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/vendasul/api/internal/database"
	"github.com/vendasul/api/internal/handler"
)

// --- Mock PaymentStore ---

type mockPaymentStore struct {
	getOrderFn            func(ctx context.Context, id uuid.UUID) (database.Order, error)
	getOrderForUpdateFn   func(ctx context.Context, id uuid.UUID) (database.Order, error)
	listPaymentsByOrderFn func(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	createPaymentFn       func(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	sumPaymentsByOrderFn  func(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error)
}

func (m *mockPaymentStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, id)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockPaymentStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if m.getOrderForUpdateFn != nil {
		return m.getOrderForUpdateFn(ctx, id)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockPaymentStore) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error) {
	if m.listPaymentsByOrderFn != nil {
		return m.listPaymentsByOrderFn(ctx, orderID)
	}
	return []database.Payment{}, nil
}

func (m *mockPaymentStore) CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error) {
	if m.createPaymentFn != nil {
		return m.createPaymentFn(ctx, arg)
	}
	return database.Payment{}, pgx.ErrNoRows
}

func (m *mockPaymentStore) SumPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error) {
	if m.sumPaymentsByOrderFn != nil {
		return m.sumPaymentsByOrderFn(ctx, orderID)
	}
	return pgtype.Numeric{}, nil
}

// --- Mock pgx.Tx / pool ---

type mockTx struct {
	committed  bool
	rolledBack bool
}

func (m *mockTx) Commit(ctx context.Context) error   { m.committed = true; return nil }
func (m *mockTx) Rollback(ctx context.Context) error { m.rolledBack = true; return nil }

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row { return nil }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (m *mockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *mockTx) Conn() *pgx.Conn { return nil }

type mockPool struct {
	tx *mockTx
}

func (m *mockPool) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.tx == nil {
		m.tx = &mockTx{}
	}
	return m.tx, nil
}

// --- Test helpers ---

func setupPaymentRouter(store *mockPaymentStore) (*chi.Mux, *mockPool) {
	pool := &mockPool{}
	newStore := func(db database.DBTX) handler.PaymentStore { return store }
	h := handler.NewPaymentHandler(store, pool, newStore)
	r := chi.NewRouter()
	r.Route("/orders/{id}/payments", h.RegisterRoutes)
	return r, pool
}

func testPayment(t *testing.T, orderID uuid.UUID, amount string) database.Payment {
	return database.Payment{
		ID:        uuid.New(),
		OrderID:   orderID,
		Method:    "CASH",
		Amount:    testNumeric(t, amount),
		PaidAt:    time.Now(),
		CreatedAt: time.Now(),
	}
}

// --- Tests ---

func TestPaymentAdd(t *testing.T) {
	order := testOrder(t, "DELIVERED")

	store := &mockPaymentStore{
		getOrderForUpdateFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return order, nil
		},
		sumPaymentsByOrderFn: func(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error) {
			return testNumeric(t, "40.00"), nil
		},
		createPaymentFn: func(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error) {
			if arg.Method != "CASH" {
				t.Errorf("method: got %v, want CASH", arg.Method)
			}
			return testPayment(t, order.ID, "60.00"), nil
		},
	}

	router, pool := setupPaymentRouter(store)
	rr := doRequest(t, router, "POST", "/orders/"+order.ID.String()+"/payments", map[string]interface{}{
		"method": "CASH",
		"amount": "60.00",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if !pool.tx.committed {
		t.Error("expected transaction to be committed")
	}

	resp := decodeMap(t, rr)
	if resp["amount"] != "60.00" {
		t.Errorf("amount: got %v, want 60.00", resp["amount"])
	}
}

func TestPaymentAddOverpayment(t *testing.T) {
	order := testOrder(t, "DELIVERED")

	store := &mockPaymentStore{
		getOrderForUpdateFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return order, nil
		},
		sumPaymentsByOrderFn: func(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error) {
			return testNumeric(t, "80.00"), nil
		},
	}

	router, pool := setupPaymentRouter(store)
	rr := doRequest(t, router, "POST", "/orders/"+order.ID.String()+"/payments", map[string]interface{}{
		"method": "PIX",
		"amount": "30.00",
	})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
	if pool.tx.committed {
		t.Error("transaction must not commit on overpayment")
	}
}

func TestPaymentAddFullyPaid(t *testing.T) {
	order := testOrder(t, "DELIVERED")

	store := &mockPaymentStore{
		getOrderForUpdateFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return order, nil
		},
		sumPaymentsByOrderFn: func(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error) {
			return testNumeric(t, "100.00"), nil
		},
	}

	router, _ := setupPaymentRouter(store)
	rr := doRequest(t, router, "POST", "/orders/"+order.ID.String()+"/payments", map[string]interface{}{
		"method": "CASH",
		"amount": "1.00",
	})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestPaymentAddCancelledOrder(t *testing.T) {
	order := testOrder(t, "CANCELLED")

	store := &mockPaymentStore{
		getOrderForUpdateFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return order, nil
		},
	}

	router, _ := setupPaymentRouter(store)
	rr := doRequest(t, router, "POST", "/orders/"+order.ID.String()+"/payments", map[string]interface{}{
		"method": "CASH",
		"amount": "10.00",
	})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestPaymentAddValidation(t *testing.T) {
	router, _ := setupPaymentRouter(&mockPaymentStore{})
	orderID := uuid.New().String()

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing method", map[string]interface{}{"amount": "10.00"}},
		{"unknown method", map[string]interface{}{"method": "BARTER", "amount": "10.00"}},
		{"missing amount", map[string]interface{}{"method": "CASH"}},
		{"zero amount", map[string]interface{}{"method": "CASH", "amount": "0"}},
		{"negative amount", map[string]interface{}{"method": "CASH", "amount": "-5.00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, router, "POST", "/orders/"+orderID+"/payments", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestPaymentList(t *testing.T) {
	order := testOrder(t, "DELIVERED")

	store := &mockPaymentStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return order, nil
		},
		listPaymentsByOrderFn: func(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error) {
			return []database.Payment{
				testPayment(t, order.ID, "40.00"),
				testPayment(t, order.ID, "25.00"),
			}, nil
		},
	}

	router, _ := setupPaymentRouter(store)
	rr := doRequest(t, router, "GET", "/orders/"+order.ID.String()+"/payments", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeMap(t, rr)
	if resp["paid"] != "65.00" {
		t.Errorf("paid: got %v, want 65.00", resp["paid"])
	}
	if resp["balance"] != "35.00" {
		t.Errorf("balance: got %v, want 35.00", resp["balance"])
	}
	if payments := resp["payments"].([]interface{}); len(payments) != 2 {
		t.Errorf("payments: got %d, want 2", len(payments))
	}
}

func TestPaymentListOrderNotFound(t *testing.T) {
	router, _ := setupPaymentRouter(&mockPaymentStore{})
	rr := doRequest(t, router, "GET", "/orders/"+uuid.New().String()+"/payments", nil)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}
