// Package bootstrap assembles the service graph shared by the api and
// billing-worker binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jaehyunUm/mats-backend-sub000/internal/accounts"
	"github.com/jaehyunUm/mats-backend-sub000/internal/billing"
	"github.com/jaehyunUm/mats-backend-sub000/internal/cron"
	"github.com/jaehyunUm/mats-backend-sub000/internal/notifications"
	"github.com/jaehyunUm/mats-backend-sub000/internal/payments"
	"github.com/jaehyunUm/mats-backend-sub000/internal/subscriptions"
	"github.com/jaehyunUm/mats-backend-sub000/internal/webhooks"
	squarewebhook "github.com/jaehyunUm/mats-backend-sub000/internal/webhooks/square"
	stripewebhook "github.com/jaehyunUm/mats-backend-sub000/internal/webhooks/stripe"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/config"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/db"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/metrics"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/redis"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/security"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/square"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/stripe"
)

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Services is the wired application. Stripe and the Stripe webhook service
// are nil when the platform Stripe account is not configured; the Square
// webhook service is nil without a signature key.
type Services struct {
	Stripe         *stripe.Client
	Notifications  notifications.Service
	Accounts       accounts.Service
	Processor      *billing.Processor
	Subscriptions  subscriptions.Service
	StripeWebhooks *stripewebhook.Service
	SquareWebhooks *squarewebhook.Service
	StripeGuard    *webhooks.EventGuard
	SquareGuard    *webhooks.EventGuard
	Scheduler      *cron.Service
}

func Build(ctx context.Context, params Params) (*Services, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Redis == nil:
		return nil, errors.New("redis client is required")
	}
	cfg := params.Config
	logg := params.Logger
	reg := params.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	key, err := cfg.Security.SealingKey()
	if err != nil {
		return nil, err
	}
	sealer, err := security.NewSealer(key)
	if err != nil {
		return nil, err
	}

	out := &Services{}

	// Interface-typed params stay nil when a provider is absent so the
	// services can tell "not configured" apart from a nil client.
	var (
		stripeOAuth accounts.StripeOAuth
		stripeAPI   payments.StripeAPI
		squareOAuth accounts.SquareOAuth
	)
	if cfg.Stripe.Enabled() {
		client, err := stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		out.Stripe = client
		stripeOAuth = client
		stripeAPI = client
	}
	if cfg.Square.Enabled() {
		client, err := square.NewOAuthClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square oauth client: %w", err)
		}
		squareOAuth = client
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(params.DB.DB()))
	if err != nil {
		return nil, err
	}
	out.Notifications = notificationsSvc

	accountsRepo := accounts.NewRepository(params.DB.DB())
	accountsSvc, err := accounts.NewService(accounts.ServiceParams{
		Repo:      accountsRepo,
		Sealer:    sealer,
		Stripe:    stripeOAuth,
		Square:    squareOAuth,
		JWT:       cfg.JWT,
		PublicURL: cfg.App.PublicURL,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}
	out.Accounts = accountsSvc

	resolver, err := payments.NewResolver(accountsRepo, sealer, stripeAPI, payments.SquareClientFactory(cfg.Square.Environment(), logg))
	if err != nil {
		return nil, err
	}

	billingRepo := billing.NewRepository(params.DB.DB())
	processor, err := billing.NewProcessor(billing.ProcessorParams{
		Repo:      billingRepo,
		Tx:        params.DB,
		Resolver:  resolver,
		Notifier:  notificationsSvc,
		Refresher: accountsSvc,
		Locks:     billing.RedisLocks(params.Redis),
		Metrics:   metrics.NewBillingMetrics(reg),
		Logger:    logg,
		Config:    cfg.Billing,
	})
	if err != nil {
		return nil, err
	}
	out.Processor = processor

	subscriptionsSvc, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:     subscriptions.NewRepository(params.DB.DB()),
		Payments: billingRepo,
		Resolver: resolver,
		Charger:  processor,
		Logger:   logg,
		Currency: cfg.Billing.Currency,
	})
	if err != nil {
		return nil, err
	}
	out.Subscriptions = subscriptionsSvc

	if out.Stripe != nil {
		if out.StripeWebhooks, err = stripewebhook.NewService(stripewebhook.ServiceParams{
			Accounts:     accountsSvc,
			AccountsRepo: accountsRepo,
			Notifier:     notificationsSvc,
			Logger:       logg,
		}); err != nil {
			return nil, err
		}
		if out.StripeGuard, err = webhooks.NewEventGuard(params.Redis, string(enums.PaymentProviderStripe), 0); err != nil {
			return nil, err
		}
	}
	if cfg.Square.WebhookSecret != "" {
		if out.SquareWebhooks, err = squarewebhook.NewService(squarewebhook.ServiceParams{
			Accounts:     accountsSvc,
			AccountsRepo: accountsRepo,
			Notifier:     notificationsSvc,
			Logger:       logg,
		}); err != nil {
			return nil, err
		}
		if out.SquareGuard, err = webhooks.NewEventGuard(params.Redis, string(enums.PaymentProviderSquare), 0); err != nil {
			return nil, err
		}
	}

	billingJob, err := cron.NewBillingJob(processor, cfg.Billing.Interval)
	if err != nil {
		return nil, err
	}
	refreshJob, err := cron.NewTokenRefreshJob(accountsSvc, cfg.Cron.TokenRefreshSchedule, cfg.Cron.TokenRefreshWindow)
	if err != nil {
		return nil, err
	}
	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(billingJob, refreshJob),
		Locks:      cron.RedisLocks(params.Redis, cfg.App.Env, cfg.Cron.LockTTL),
		Metrics:    metrics.NewCronJobMetrics(reg),
		Location:   cfg.Billing.Location(),
		RunOnStart: true,
	})
	if err != nil {
		return nil, err
	}
	out.Scheduler = scheduler

	return out, nil
}
