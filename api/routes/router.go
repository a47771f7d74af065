package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jaehyunUm/mats-backend-sub000/api/controllers"
	accountcontrollers "github.com/jaehyunUm/mats-backend-sub000/api/controllers/accounts"
	subscriptioncontrollers "github.com/jaehyunUm/mats-backend-sub000/api/controllers/subscriptions"
	webhookcontrollers "github.com/jaehyunUm/mats-backend-sub000/api/controllers/webhooks"
	"github.com/jaehyunUm/mats-backend-sub000/api/middleware"
	"github.com/jaehyunUm/mats-backend-sub000/internal/accounts"
	"github.com/jaehyunUm/mats-backend-sub000/internal/notifications"
	subscriptionsvc "github.com/jaehyunUm/mats-backend-sub000/internal/subscriptions"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/config"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/redis"
)

type signingSecretProvider interface {
	SigningSecret() string
}

// Dependencies are the services the HTTP surface dispatches to. Nil services
// answer 500 from their handlers rather than failing router construction.
type Dependencies struct {
	DB                   controllers.Pinger
	Redis                *redis.Client
	Metrics              prometheus.Gatherer
	Subscriptions        subscriptionsvc.Service
	Accounts             accounts.Service
	Notifications        notifications.Service
	StripeClient         signingSecretProvider
	StripeWebhookService webhookcontrollers.StripeWebhookService
	StripeWebhookGuard   webhookcontrollers.EventGuard
	SquareWebhookService webhookcontrollers.SquareWebhookService
	SquareWebhookGuard   webhookcontrollers.EventGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var redisPinger controllers.Pinger
	if deps.Redis != nil {
		redisPinger = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, redisPinger))
	})

	gatherer := deps.Metrics
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	publicLimit := func(next http.Handler) http.Handler { return next }
	if deps.Redis != nil {
		publicPolicy := middleware.NewRateLimitPolicy("public", cfg.Security.PublicRateWindow, cfg.Security.PublicRateLimit)
		publicLimit = middleware.RateLimit(publicPolicy, deps.Redis, logg)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(publicLimit)
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhookService, deps.StripeClient, deps.StripeWebhookGuard, logg))
		r.Post("/square", webhookcontrollers.SquareWebhook(deps.SquareWebhookService, webhookcontrollers.SquareSigning{
			SignatureKey:    cfg.Square.WebhookSecret,
			NotificationURL: cfg.Square.WebhookURL,
		}, deps.SquareWebhookGuard, logg))
	})

	// The OAuth callback is reached by a browser redirect and carries no bearer
	// token; the signed state names the tenant.
	r.With(publicLimit).
		Get("/api/v1/accounts/{provider}/callback", accountcontrollers.Callback(deps.Accounts, logg))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.Redis != nil {
			r.Use(middleware.Idempotency(deps.Redis, logg))
		}

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/subscriptions", func(r chi.Router) {
			r.Post("/", subscriptioncontrollers.Create(deps.Subscriptions, logg))
			r.Get("/", subscriptioncontrollers.List(deps.Subscriptions, logg))
			r.Get("/{id}", subscriptioncontrollers.Get(deps.Subscriptions, logg))
			r.Put("/{id}/payment-method", subscriptioncontrollers.UpdatePaymentMethod(deps.Subscriptions, logg))
			r.Post("/{id}/charge", subscriptioncontrollers.Charge(deps.Subscriptions, logg))
			r.Get("/{id}/payments", subscriptioncontrollers.History(deps.Subscriptions, logg))
		})
		r.Get("/v1/payments", subscriptioncontrollers.TenantPayments(deps.Subscriptions, logg))

		r.Route("/v1/accounts", func(r chi.Router) {
			r.Get("/", accountcontrollers.Status(deps.Accounts, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.MemberRoleOwner))
				r.Get("/{provider}/authorize", accountcontrollers.Authorize(deps.Accounts, logg))
				r.Post("/refresh", accountcontrollers.Refresh(deps.Accounts, logg))
				r.Delete("/", accountcontrollers.Disconnect(deps.Accounts, logg))
			})
		})

		r.Route("/v1/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/{id}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			r.Delete("/{id}", controllers.DeleteNotification(deps.Notifications, logg))
		})
	})

	return r
}
