package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aruvi/kot-gateway/api/controllers"
	"github.com/aruvi/kot-gateway/api/middleware"
	"github.com/aruvi/kot-gateway/api/responses"
	"github.com/aruvi/kot-gateway/pkg/config"
	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/logger"
	"github.com/aruvi/kot-gateway/pkg/redis"
)

// Params carries everything the router wires into handlers. Redis and
// Metrics are optional.
type Params struct {
	Config *config.Config
	Logger *logger.Logger

	DB      controllers.Pinger
	Redis   *redis.Client
	Metrics http.Handler

	Waiters  controllers.WaiterLoginService
	Tables   controllers.TableBoard
	Catalog  controllers.CatalogService
	Sessions controllers.OrderSessions
	Kitchen  controllers.KitchenService
	Printer  controllers.PrinterSession
	Settings controllers.PrinterSettings
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
		middleware.WaiterContext(logg),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "route not found"))
	})

	checks := map[string]controllers.Pinger{"db": p.DB}
	var idem middleware.IdempotencyStore
	loginPolicy := middleware.NewRateLimitPolicy(
		"login",
		cfg.LoginRateLimit.Window,
		cfg.LoginRateLimit.IPLimit,
		cfg.LoginRateLimit.PhoneLimit,
	)
	loginLimit := middleware.LoginRateLimit(loginPolicy, nil, logg)
	if p.Redis != nil {
		checks["redis"] = p.Redis
		idem = p.Redis
		loginLimit = middleware.LoginRateLimit(loginPolicy, p.Redis, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, checks))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(loginLimit).Post("/auth/login", controllers.WaiterLogin(p.Waiters, logg))

		r.Get("/products", controllers.ListProducts(p.Catalog, logg))
		r.Get("/categories", controllers.ListCategories(p.Catalog, logg))

		r.Route("/tables", func(r chi.Router) {
			r.Get("/", controllers.ListTables(p.Tables, logg))

			r.Route("/{tableId}", func(r chi.Router) {
				if idem != nil {
					r.Use(middleware.Idempotency(idem, logg))
				}

				r.Get("/order", controllers.GetOrder(p.Sessions, logg))
				r.Delete("/order", controllers.ClearOrder(p.Sessions, logg))
				r.Post("/order/items", controllers.AddOrderLine(p.Sessions, logg))
				r.Put("/order/items/{productId}", controllers.UpdateOrderLine(p.Sessions, logg))
				r.Delete("/order/items/{productId}", controllers.RemoveOrderLine(p.Sessions, logg))
				r.Post("/order/complete", controllers.CompleteOrder(p.Kitchen, logg))
				r.Delete("/session", controllers.AbandonSession(p.Sessions, logg))

				r.Post("/kot", controllers.SendKOT(p.Kitchen, logg))
				r.Get("/kot/preview", controllers.PreviewKOT(p.Kitchen, logg))
				r.Get("/kot/history", controllers.KOTHistory(p.Kitchen, logg))
			})
		})

		r.Route("/printer", func(r chi.Router) {
			r.Get("/", controllers.GetPrinter(p.Printer, p.Settings, logg))
			r.Put("/", controllers.UpdatePrinter(p.Settings, logg))
			r.Post("/test", controllers.TestPrinter(p.Printer, p.Settings, logg))
			r.Post("/reset", controllers.ResetPrinter(p.Settings, logg))
		})
	})

	return r
}
