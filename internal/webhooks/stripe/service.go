package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/jaehyunUm/mats-backend-sub000/internal/notifications"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	pkgerrors "github.com/jaehyunUm/mats-backend-sub000/pkg/errors"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
)

type accountDisconnector interface {
	DisconnectByConnectedAccount(ctx context.Context, provider enums.PaymentProvider, accountID string) (string, error)
}

type accountLookup interface {
	FindByConnectedAccount(ctx context.Context, provider enums.PaymentProvider, accountID string) (*models.OwnerBankAccount, error)
}

type notifier interface {
	Notify(ctx context.Context, input notifications.NotifyInput) (*models.Notification, error)
}

type ServiceParams struct {
	Accounts     accountDisconnector
	AccountsRepo accountLookup
	Notifier     notifier
	Logger       *logger.Logger
}

type Service struct {
	accounts     accountDisconnector
	accountsRepo accountLookup
	notifier     notifier
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Accounts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "accounts service required")
	}
	if params.AccountsRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "accounts repository required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		accounts:     params.Accounts,
		accountsRepo: params.AccountsRepo,
		notifier:     params.Notifier,
		logg:         params.Logger,
	}, nil
}

// HandleEvent applies a verified Connect event. event.Account names the
// connected account the event belongs to.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event":      "webhook.stripe",
		"event_type": string(event.Type),
		"account_id": event.Account,
	})

	switch event.Type {
	case stripe.EventTypeAccountApplicationDeauthorized:
		return s.handleDeauthorized(ctx, event)
	case stripe.EventTypePaymentIntentPaymentFailed:
		return s.handlePaymentFailed(ctx, event)
	default:
		s.logg.Debug(ctx, "ignoring stripe event")
		return nil
	}
}

func (s *Service) handleDeauthorized(ctx context.Context, event *stripe.Event) error {
	if event.Account == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "connected account missing")
	}
	dojangCode, err := s.accounts.DisconnectByConnectedAccount(ctx, enums.PaymentProviderStripe, event.Account)
	if err != nil {
		return err
	}
	if dojangCode == "" {
		s.logg.Info(ctx, "deauthorized account has no connected dojang")
		return nil
	}
	_, err = s.notifier.Notify(ctx, notifications.NotifyInput{
		DojangCode: dojangCode,
		Type:       enums.NotificationTypeAccountDisconnected,
		Message:    "Stripe access was revoked. Reconnect Stripe to resume automatic billing.",
	})
	return err
}

func (s *Service) handlePaymentFailed(ctx context.Context, event *stripe.Event) error {
	if event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	if event.Account == "" {
		return nil
	}
	account, err := s.accountsRepo.FindByConnectedAccount(ctx, enums.PaymentProviderStripe, event.Account)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment account")
	}
	if account == nil {
		s.logg.Info(ctx, "payment event for unknown account")
		return nil
	}

	reason := "payment failed"
	if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
		reason = intent.LastPaymentError.Msg
	}
	message := fmt.Sprintf("Stripe payment %s failed: %s", intent.ID, reason)
	if subID := intent.Metadata["monthly_payment_id"]; subID != "" {
		message = fmt.Sprintf("Stripe payment %s for subscription %s failed: %s", intent.ID, subID, reason)
	}
	_, err = s.notifier.Notify(ctx, notifications.NotifyInput{
		DojangCode: account.DojangCode,
		Type:       enums.NotificationTypePaymentFailed,
		Message:    message,
	})
	return err
}
