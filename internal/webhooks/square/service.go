package squarewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jaehyunUm/mats-backend-sub000/internal/notifications"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	pkgerrors "github.com/jaehyunUm/mats-backend-sub000/pkg/errors"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
)

const (
	EventAuthorizationRevoked = "oauth.authorization.revoked"
	EventPaymentUpdated       = "payment.updated"
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

type Event struct {
	MerchantID string    `json:"merchant_id"`
	Type       string    `json:"type"`
	EventID    string    `json:"event_id"`
	CreatedAt  string    `json:"created_at"`
	Data       EventData `json:"data"`
}

type EventData struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Object json.RawMessage `json:"object"`
}

type paymentObject struct {
	Payment struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		ReferenceID string `json:"reference_id"`
	} `json:"payment"`
}

// HandleEvent applies a verified Square event. Unknown types are ignored.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event":       "webhook.square",
		"event_type":  event.Type,
		"merchant_id": event.MerchantID,
	})

	switch strings.ToLower(event.Type) {
	case EventAuthorizationRevoked:
		return s.handleRevoked(ctx, event)
	case EventPaymentUpdated:
		return s.handlePaymentUpdated(ctx, event)
	default:
		s.logg.Debug(ctx, "ignoring square event")
		return nil
	}
}

func (s *Service) handleRevoked(ctx context.Context, event *Event) error {
	if strings.TrimSpace(event.MerchantID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "merchant id missing")
	}
	dojangCode, err := s.accounts.DisconnectByConnectedAccount(ctx, enums.PaymentProviderSquare, event.MerchantID)
	if err != nil {
		return err
	}
	if dojangCode == "" {
		s.logg.Info(ctx, "revoked merchant has no connected dojang")
		return nil
	}
	_, err = s.notifier.Notify(ctx, notifications.NotifyInput{
		DojangCode: dojangCode,
		Type:       enums.NotificationTypeAccountDisconnected,
		Message:    "Square access was revoked. Reconnect Square to resume automatic billing.",
	})
	return err
}

func (s *Service) handlePaymentUpdated(ctx context.Context, event *Event) error {
	var object paymentObject
	if len(event.Data.Object) > 0 {
		if err := json.Unmarshal(event.Data.Object, &object); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment object")
		}
	}
	status := strings.ToUpper(object.Payment.Status)
	if status != "FAILED" && status != "CANCELED" {
		return nil
	}

	account, err := s.accountsRepo.FindByConnectedAccount(ctx, enums.PaymentProviderSquare, event.MerchantID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment account")
	}
	if account == nil {
		s.logg.Info(ctx, "payment event for unknown merchant")
		return nil
	}
	message := fmt.Sprintf("Square payment %s was %s.", object.Payment.ID, strings.ToLower(status))
	if object.Payment.ReferenceID != "" {
		message = fmt.Sprintf("Square payment %s for subscription %s was %s.", object.Payment.ID, object.Payment.ReferenceID, strings.ToLower(status))
	}
	_, err = s.notifier.Notify(ctx, notifications.NotifyInput{
		DojangCode: account.DojangCode,
		Type:       enums.NotificationTypePaymentFailed,
		Message:    message,
	})
	return err
}
