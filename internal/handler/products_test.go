package handler_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vendasul/api/internal/database"
	"github.com/vendasul/api/internal/handler"
)

// --- Mock store ---

type mockProductStore struct {
	products map[uuid.UUID]database.Product // keyed by product ID
}

func newMockProductStore() *mockProductStore {
	return &mockProductStore{products: make(map[uuid.UUID]database.Product)}
}

func (m *mockProductStore) ListProducts(_ context.Context, arg database.ListProductsParams) ([]database.Product, error) {
	var result []database.Product
	for _, p := range m.products {
		if !p.IsActive {
			continue
		}
		if arg.Search.Valid {
			search := strings.ToLower(arg.Search.String)
			if !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(strings.ToLower(p.Code), search) {
				continue
			}
		}
		result = append(result, p)
	}
	return result, nil
}

func (m *mockProductStore) GetProduct(_ context.Context, id uuid.UUID) (database.Product, error) {
	p, ok := m.products[id]
	if !ok || !p.IsActive {
		return database.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockProductStore) CreateProduct(_ context.Context, arg database.CreateProductParams) (database.Product, error) {
	for _, p := range m.products {
		if p.Code == arg.Code && p.IsActive {
			return database.Product{}, &pgconn.PgError{Code: "23505"}
		}
	}

	p := database.Product{
		ID:        uuid.New(),
		Code:      arg.Code,
		Name:      arg.Name,
		Unit:      arg.Unit,
		Price:     arg.Price,
		Stock:     arg.Stock,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.products[p.ID] = p
	return p, nil
}

func (m *mockProductStore) UpdateProduct(_ context.Context, arg database.UpdateProductParams) (database.Product, error) {
	p, ok := m.products[arg.ID]
	if !ok || !p.IsActive {
		return database.Product{}, pgx.ErrNoRows
	}

	for _, existing := range m.products {
		if existing.ID != arg.ID && existing.Code == arg.Code && existing.IsActive {
			return database.Product{}, &pgconn.PgError{Code: "23505"}
		}
	}

	p.Code = arg.Code
	p.Name = arg.Name
	p.Unit = arg.Unit
	p.Price = arg.Price
	p.Stock = arg.Stock
	p.UpdatedAt = time.Now()
	m.products[p.ID] = p
	return p, nil
}

func (m *mockProductStore) SoftDeleteProduct(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	p, ok := m.products[id]
	if !ok || !p.IsActive {
		return uuid.Nil, pgx.ErrNoRows
	}
	p.IsActive = false
	p.UpdatedAt = time.Now()
	m.products[p.ID] = p
	return p.ID, nil
}

// --- Helpers ---

func setupProductRouter(store *mockProductStore) *chi.Mux {
	h := handler.NewProductHandler(store)
	r := chi.NewRouter()
	r.Route("/products", h.RegisterRoutes)
	return r
}

func testProduct(t *testing.T, code, name, price string) database.Product {
	t.Helper()
	return database.Product{
		ID:        uuid.New(),
		Code:      code,
		Name:      name,
		Unit:      "FD",
		Price:     testNumeric(t, price),
		Stock:     testNumeric(t, "100"),
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// --- Tests ---

func TestProductList(t *testing.T) {
	store := newMockProductStore()
	router := setupProductRouter(store)

	p1 := testProduct(t, "P-100", "Arroz 5kg", "25.00")
	p2 := testProduct(t, "P-200", "Feijao Preto 1kg", "8.50")
	store.products[p1.ID] = p1
	store.products[p2.ID] = p2

	rr := doRequest(t, router, http.MethodGet, "/products", nil)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	resp := decodeListResponse(t, rr)
	if len(resp) != 2 {
		t.Errorf("expected 2 products, got %d", len(resp))
	}
}

func TestProductListWithSearch(t *testing.T) {
	store := newMockProductStore()
	router := setupProductRouter(store)

	p1 := testProduct(t, "P-100", "Arroz 5kg", "25.00")
	p2 := testProduct(t, "P-200", "Feijao Preto 1kg", "8.50")
	store.products[p1.ID] = p1
	store.products[p2.ID] = p2

	rr := doRequest(t, router, http.MethodGet, "/products?search=feijao", nil)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	resp := decodeListResponse(t, rr)
	if len(resp) != 1 {
		t.Fatalf("expected 1 product, got %d", len(resp))
	}
	if resp[0]["code"] != "P-200" {
		t.Errorf("code: got %v, want P-200", resp[0]["code"])
	}
}

func TestProductGet(t *testing.T) {
	store := newMockProductStore()
	router := setupProductRouter(store)

	product := testProduct(t, "P-100", "Arroz 5kg", "25.00")
	store.products[product.ID] = product

	rr := doRequest(t, router, http.MethodGet, "/products/"+product.ID.String(), nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d; body: %s", rr.Code, rr.Body.String())
	}

	resp := decodeMap(t, rr)
	if resp["name"] != "Arroz 5kg" {
		t.Errorf("name: got %v, want Arroz 5kg", resp["name"])
	}
	if resp["price"] != "25.00" {
		t.Errorf("price: got %v, want 25.00", resp["price"])
	}
	if resp["unit"] != "FD" {
		t.Errorf("unit: got %v, want FD", resp["unit"])
	}
}

func TestProductGetNotFound(t *testing.T) {
	store := newMockProductStore()
	router := setupProductRouter(store)

	rr := doRequest(t, router, http.MethodGet, "/products/"+uuid.New().String(), nil)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestProductCreate(t *testing.T) {
	store := newMockProductStore()
	router := setupProductRouter(store)

	body := map[string]interface{}{
		"code":  "P-300",
		"name":  "Oleo de Soja 900ml",
		"price": "7.90",
		"stock": "48",
	}
	rr := doRequest(t, router, http.MethodPost, "/products", body)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d; body: %s", rr.Code, rr.Body.String())
	}

	resp := decodeMap(t, rr)
	if resp["code"] != "P-300" {
		t.Errorf("code: got %v, want P-300", resp["code"])
	}
	if resp["price"] != "7.90" {
		t.Errorf("price: got %v, want 7.90", resp["price"])
	}
	// Unit falls back to UN when not supplied.
	if resp["unit"] != "UN" {
		t.Errorf("unit: got %v, want UN", resp["unit"])
	}
}

func TestProductCreateValidation(t *testing.T) {
	store := newMockProductStore()
	router := setupProductRouter(store)

	cases := []struct {
		name string
		body map[string]interface{}
		want string
	}{
		{"missing code", map[string]interface{}{"name": "Oleo", "price": "7.90"}, "code is required"},
		{"missing name", map[string]interface{}{"code": "P-300", "price": "7.90"}, "name is required"},
		{"missing price", map[string]interface{}{"code": "P-300", "name": "Oleo"}, "price is required"},
		{"negative price", map[string]interface{}{"code": "P-300", "name": "Oleo", "price": "-1"}, "invalid price"},
		{"bad stock", map[string]interface{}{"code": "P-300", "name": "Oleo", "price": "7.90", "stock": "muito"}, "invalid stock"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, router, http.MethodPost, "/products", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rr.Code)
			}
			resp := decodeMap(t, rr)
			if !strings.Contains(resp["error"].(string), tc.want) {
				t.Errorf("error: got %v, want %q", resp["error"], tc.want)
			}
		})
	}
}

func TestProductCreateDuplicateCode(t *testing.T) {
	store := newMockProductStore()
	router := setupProductRouter(store)

	existing := testProduct(t, "P-100", "Arroz 5kg", "25.00")
	store.products[existing.ID] = existing

	body := map[string]interface{}{
		"code":  "P-100",
		"name":  "Arroz Parboilizado 5kg",
		"price": "27.00",
	}
	rr := doRequest(t, router, http.MethodPost, "/products", body)

	if rr.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", rr.Code)
	}
}

func TestProductUpdate(t *testing.T) {
	store := newMockProductStore()
	router := setupProductRouter(store)

	existing := testProduct(t, "P-100", "Arroz 5kg", "25.00")
	store.products[existing.ID] = existing

	body := map[string]interface{}{
		"code":  "P-100",
		"name":  "Arroz 5kg",
		"unit":  "FD",
		"price": "26.50",
	}
	rr := doRequest(t, router, http.MethodPut, "/products/"+existing.ID.String(), body)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d; body: %s", rr.Code, rr.Body.String())
	}

	resp := decodeMap(t, rr)
	if resp["price"] != "26.50" {
		t.Errorf("price: got %v, want 26.50", resp["price"])
	}
}

func TestProductUpdateNotFound(t *testing.T) {
	store := newMockProductStore()
	router := setupProductRouter(store)

	body := map[string]interface{}{
		"code":  "P-100",
		"name":  "Arroz 5kg",
		"price": "26.50",
	}
	rr := doRequest(t, router, http.MethodPut, "/products/"+uuid.New().String(), body)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestProductDelete(t *testing.T) {
	store := newMockProductStore()
	router := setupProductRouter(store)

	existing := testProduct(t, "P-100", "Arroz 5kg", "25.00")
	store.products[existing.ID] = existing

	rr := doRequest(t, router, http.MethodDelete, "/products/"+existing.ID.String(), nil)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rr.Code)
	}

	if store.products[existing.ID].IsActive {
		t.Error("expected product to be soft deleted")
	}
}
