package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/inventory-backoffice/api/controllers"
	"github.com/angelmondragon/inventory-backoffice/api/controllers/reservations"
	"github.com/angelmondragon/inventory-backoffice/api/controllers/stock"
	"github.com/angelmondragon/inventory-backoffice/api/middleware"
	"github.com/angelmondragon/inventory-backoffice/internal/inventory"
	"github.com/angelmondragon/inventory-backoffice/pkg/auth/session"
	"github.com/angelmondragon/inventory-backoffice/pkg/config"
	"github.com/angelmondragon/inventory-backoffice/pkg/enums"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
	"github.com/angelmondragon/inventory-backoffice/pkg/metrics"
	"github.com/angelmondragon/inventory-backoffice/pkg/redis"
)

type tokenRevocations interface {
	session.RevocationChecker
	controllers.TokenRevoker
}

// RouterParams wires the HTTP surface. Revocations, Redis and Gatherer are optional.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Inventory   inventory.Service
	DB          controllers.Pinger
	Redis       *redis.Client
	Revocations tokenRevocations
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg, svc := p.Config, p.Logger, p.Inventory

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(p.HTTPMetrics),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	var revocations session.RevocationChecker = p.Revocations
	deps := map[string]controllers.Pinger{"database": p.DB}
	var idempotencyStore middleware.IdempotencyResponseStore
	var rateStore middleware.RateLimiterStore
	if p.Redis != nil {
		deps["redis"] = p.Redis
		idempotencyStore = p.Redis
		rateStore = p.Redis
	}
	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow)

	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Get("/readyz", controllers.HealthReady(cfg, logg, deps))
	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	authenticated := func(r chi.Router, roles ...enums.ActorRole) {
		r.Use(middleware.Auth(cfg.JWT, revocations, logg))
		r.Use(middleware.RequireRole(logg, roles...))
		r.Use(middleware.RateLimit(apiPolicy, rateStore, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))
	}

	r.Route("/api/v1", func(r chi.Router) {
		authenticated(r, enums.ActorRoleOrderService, enums.ActorRoleAdmin)

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", reservations.Reserve(svc, logg))
			r.Get("/{reservationId}", reservations.Get(svc, logg))
			r.Post("/{reservationId}/confirm", reservations.Confirm(svc, logg))
			r.Post("/{reservationId}/cancel", reservations.Cancel(svc, logg))
		})
		r.Post("/orders/{orderId}/reservations", reservations.ReserveOrder(svc, logg))
		r.Get("/stock/{productId}", stock.Get(svc, logg))
		if p.Revocations != nil {
			r.Post("/auth/logout", controllers.RevokeCurrentToken(p.Revocations, logg))
		}
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		authenticated(r, enums.ActorRoleAdmin)

		r.Route("/stock", func(r chi.Router) {
			r.Get("/low-stock", stock.ListLowStock(svc, logg))
			r.Get("/out-of-stock", stock.ListOutOfStock(svc, logg))
			r.Route("/{productId}", func(r chi.Router) {
				r.Get("/", stock.Get(svc, logg))
				r.Put("/", stock.Ensure(svc, logg))
				r.Put("/threshold", stock.SetThreshold(svc, logg))
				r.Post("/deactivate", stock.Deactivate(svc, logg))
				r.Post("/adjustments", stock.Adjust(svc, logg))
				r.Get("/adjustments", stock.ListAdjustments(svc, logg))
				r.Get("/reservations", stock.ListReservations(svc, logg))
			})
		})
		if p.Revocations != nil {
			r.Post("/tokens/revoke", controllers.AdminRevokeToken(p.Revocations, logg))
		}
	})

	return r
}
