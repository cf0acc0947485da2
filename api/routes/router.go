package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/budgetdesk-backend/api/controllers"
	"github.com/angelmondragon/budgetdesk-backend/api/middleware"
	"github.com/angelmondragon/budgetdesk-backend/internal/budgets"
	"github.com/angelmondragon/budgetdesk-backend/internal/cart"
	"github.com/angelmondragon/budgetdesk-backend/internal/notifications"
	"github.com/angelmondragon/budgetdesk-backend/pkg/config"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/budgetdesk-backend/pkg/redis"
)

// redisStore is the slice of the redis client the HTTP surface needs.
type redisStore interface {
	pkgredis.Pinger
	pkgredis.IdempotencyStore
	middleware.WindowCounter
}

type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         redisStore
	Cart          cart.Service
	Budgets       budgets.Service
	Notifications notifications.Service
	// Gatherer backs /metrics; nil falls back to the default registry.
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, params.HTTPMetrics),
		middleware.CORS(cfg.CORS),
	)

	gatherer := params.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, params.Redis))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	cartPolicy := middleware.RateLimitPolicy{
		Name:   "cart",
		Window: cfg.RateLimit.CartWindow,
		Limit:  cfg.RateLimit.CartLimit,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(params.Redis, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(params.Cart, logg))
			r.Post("/submit", controllers.CartSubmit(params.Budgets, logg))

			throttled := r.With(middleware.UserRateLimit(cartPolicy, params.Redis, logg))
			throttled.Post("/items", controllers.CartSetItem(params.Cart, logg))
			throttled.Delete("/items/{productId}", controllers.CartRemoveItem(params.Cart, logg))
		})

		r.Route("/budgets", func(r chi.Router) {
			r.With(middleware.RequirePrivileged(logg)).Get("/", controllers.BudgetList(params.Budgets, logg))
			r.Get("/my", controllers.BudgetListMine(params.Budgets, logg))
			r.Get("/{budgetId}", controllers.BudgetDetail(params.Budgets, logg))
			r.Get("/{budgetId}/pdf", controllers.BudgetPDF(params.Budgets, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePrivileged(logg))
				r.Put("/{budgetId}/approve", controllers.BudgetApprove(params.Budgets, logg))
				r.Put("/{budgetId}/reject", controllers.BudgetReject(params.Budgets, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(params.Notifications, logg))
			r.Put("/mark-all-read", controllers.MarkAllNotificationsRead(params.Notifications, logg))
			r.Put("/{notificationId}/read", controllers.MarkNotificationRead(params.Notifications, logg))
		})
	})

	return r
}
