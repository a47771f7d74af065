package stripewebhook

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/jaehyunUm/mats-backend-sub000/internal/notifications"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
)

type stubAccounts struct {
	dojang       string
	disconnected []string
}

func (s *stubAccounts) DisconnectByConnectedAccount(_ context.Context, _ enums.PaymentProvider, accountID string) (string, error) {
	s.disconnected = append(s.disconnected, accountID)
	return s.dojang, nil
}

type stubLookup struct {
	account *models.OwnerBankAccount
}

func (s stubLookup) FindByConnectedAccount(context.Context, enums.PaymentProvider, string) (*models.OwnerBankAccount, error) {
	return s.account, nil
}

type stubNotifier struct {
	sent []notifications.NotifyInput
}

func (s *stubNotifier) Notify(_ context.Context, input notifications.NotifyInput) (*models.Notification, error) {
	s.sent = append(s.sent, input)
	return &models.Notification{}, nil
}

func newTestService(t *testing.T, accounts *stubAccounts, lookup stubLookup, notifier *stubNotifier) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Accounts:     accounts,
		AccountsRepo: lookup,
		Notifier:     notifier,
		Logger:       logger.New(logger.Options{ServiceName: "webhook-test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestDeauthorizedDisconnectsAndNotifies(t *testing.T) {
	accounts := &stubAccounts{dojang: "AAA"}
	notifier := &stubNotifier{}
	svc := newTestService(t, accounts, stubLookup{}, notifier)

	event := &stripe.Event{ID: "evt_1", Type: stripe.EventTypeAccountApplicationDeauthorized, Account: "acct_1"}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(accounts.disconnected) != 1 || accounts.disconnected[0] != "acct_1" {
		t.Fatalf("expected disconnect of acct_1, got %v", accounts.disconnected)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != enums.NotificationTypeAccountDisconnected {
		t.Fatalf("unexpected notifications: %+v", notifier.sent)
	}
}

func TestPaymentFailedNotifiesTenant(t *testing.T) {
	notifier := &stubNotifier{}
	svc := newTestService(t, &stubAccounts{}, stubLookup{account: &models.OwnerBankAccount{DojangCode: "AAA"}}, notifier)

	raw, _ := json.Marshal(map[string]any{
		"id":                 "pi_1",
		"object":             "payment_intent",
		"metadata":           map[string]string{"monthly_payment_id": "sub-1"},
		"last_payment_error": map[string]any{"message": "Your card was declined."},
	})
	event := &stripe.Event{
		ID:      "evt_2",
		Type:    stripe.EventTypePaymentIntentPaymentFailed,
		Account: "acct_1",
		Data:    &stripe.EventData{Raw: raw},
	}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}
	sent := notifier.sent[0]
	if sent.DojangCode != "AAA" || sent.Type != enums.NotificationTypePaymentFailed {
		t.Fatalf("unexpected notification: %+v", sent)
	}
	if sent.Message != "Stripe payment pi_1 for subscription sub-1 failed: Your card was declined." {
		t.Fatalf("unexpected message %q", sent.Message)
	}
}

func TestPaymentFailedUnknownAccountIsNoop(t *testing.T) {
	notifier := &stubNotifier{}
	svc := newTestService(t, &stubAccounts{}, stubLookup{}, notifier)
	event := &stripe.Event{
		Type:    stripe.EventTypePaymentIntentPaymentFailed,
		Account: "acct_unknown",
		Data:    &stripe.EventData{Raw: []byte(`{"id":"pi_1"}`)},
	}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("expected no notification")
	}
}
