package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vendasul/api/internal/config"
	"github.com/vendasul/api/internal/database"
	"github.com/vendasul/api/internal/handler"
	mw "github.com/vendasul/api/internal/middleware"
	"github.com/vendasul/api/internal/service"
	"github.com/vendasul/api/internal/ws"
)

// Services bundles the long-lived services the router wires handlers to.
// They are built in main so background loops share the same instances.
type Services struct {
	Orders      *service.OrderService
	Drafts      *service.DraftManager
	Imports     *service.ImportService
	SyncUpdates *service.SyncUpdateService
}

// NewServices constructs the service layer over the given pool.
func NewServices(queries *database.Queries, pool *pgxpool.Pool) *Services {
	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	syncUpdates := service.NewSyncUpdateService(queries)
	return &Services{
		Orders:      service.NewOrderService(pool, queries, newOrderStore),
		Drafts:      service.NewDraftManager(queries),
		Imports:     service.NewImportService(queries, syncUpdates),
		SyncUpdates: syncUpdates,
	}
}

// New creates a Chi router with all application routes wired up. Back-office
// routes sit behind JWT auth, mobile routes behind device tokens.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, svcs *Services, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Token", "X-Device-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (token checked via query param)
	r.Get("/ws/{topic}", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Mobile routes (device token auth)
	r.Route("/mobile", func(r chi.Router) {
		r.Use(mw.AuthenticateDevice(queries))

		mobileOrderHandler := handler.NewMobileOrderHandler(svcs.Orders, hub)
		r.Route("/orders", mobileOrderHandler.RegisterRoutes)

		mobileSyncHandler := handler.NewMobileSyncHandler(queries, svcs.SyncUpdates, svcs.Orders)
		r.Route("/sync", mobileSyncHandler.RegisterRoutes)
	})

	// Back-office routes (JWT auth)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		customerHandler := handler.NewCustomerHandler(queries)
		r.Route("/customers", customerHandler.RegisterRoutes)

		productHandler := handler.NewProductHandler(queries)
		r.Route("/products", productHandler.RegisterRoutes)

		routeHandler := handler.NewRouteHandler(queries)
		r.Route("/routes", routeHandler.RegisterRoutes)
		r.Route("/loads", routeHandler.RegisterLoadRoutes)

		orderHandler := handler.NewOrderHandler(queries, svcs.Orders, svcs.Drafts)
		r.Route("/orders", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)

			r.Route("/{id}/payments", func(r chi.Router) {
				paymentHandler := handler.NewPaymentHandler(
					queries,
					pool,
					func(db database.DBTX) handler.PaymentStore {
						return database.New(db)
					},
				)
				paymentHandler.RegisterRoutes(r)
			})
		})

		importHandler := handler.NewImportHandler(svcs.Imports, hub)
		r.Route("/imports", importHandler.RegisterRoutes)

		syncUpdateHandler := handler.NewSyncUpdateHandler(svcs.SyncUpdates, hub)
		r.Route("/sync-updates", syncUpdateHandler.RegisterRoutes)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole("ADMIN"))

			salesRepHandler := handler.NewSalesRepHandler(queries)
			r.Route("/sales-reps", salesRepHandler.RegisterRoutes)
		})
	})

	return r
}
