package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	squarewebhook "github.com/jaehyunUm/mats-backend-sub000/internal/webhooks/square"
)

const testNotificationURL = "https://api.example.com/api/v1/webhooks/square"

func TestSquareWebhook_SuccessAndIdempotent(t *testing.T) {
	payload := buildSquareEvent(t, squarewebhook.EventAuthorizationRevoked)
	header := squarewebhook.Sign("secret", testNotificationURL, payload)
	service := &fakeSquareWebhookService{}
	handler := SquareWebhook(service, SquareSigning{SignatureKey: "secret", NotificationURL: testNotificationURL}, newGuard(t, "square"), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req.Header.Set(squarewebhook.SignatureHeader, header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}
	if service.last == nil || service.last.MerchantID != "merchant-1" {
		t.Fatalf("expected decoded event, got %+v", service.last)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req2.Header.Set(squarewebhook.SignatureHeader, header)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec2.Code)
	}
	if service.calls != 1 {
		t.Fatalf("duplicate should not increment calls, got %d", service.calls)
	}
}

func TestSquareWebhook_RejectsTamperedBody(t *testing.T) {
	payload := buildSquareEvent(t, squarewebhook.EventPaymentUpdated)
	header := squarewebhook.Sign("secret", testNotificationURL, payload)
	service := &fakeSquareWebhookService{}
	handler := SquareWebhook(service, SquareSigning{SignatureKey: "secret", NotificationURL: testNotificationURL}, newGuard(t, "square"), nil)

	tampered := append([]byte{}, payload...)
	tampered = append(tampered, ' ')
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(tampered))
	req.Header.Set(squarewebhook.SignatureHeader, header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked")
	}
}

func TestSquareWebhook_RejectsOtherNotificationURL(t *testing.T) {
	payload := buildSquareEvent(t, squarewebhook.EventPaymentUpdated)
	header := squarewebhook.Sign("secret", "https://elsewhere.example.com/hook", payload)
	service := &fakeSquareWebhookService{}
	handler := SquareWebhook(service, SquareSigning{SignatureKey: "secret", NotificationURL: testNotificationURL}, newGuard(t, "square"), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	req.Header.Set(squarewebhook.SignatureHeader, header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSquareWebhook_MissingSignature(t *testing.T) {
	payload := buildSquareEvent(t, squarewebhook.EventPaymentUpdated)
	service := &fakeSquareWebhookService{}
	handler := SquareWebhook(service, SquareSigning{SignatureKey: "secret", NotificationURL: testNotificationURL}, newGuard(t, "square"), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/square", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func buildSquareEvent(t *testing.T, eventType string) []byte {
	t.Helper()
	event := squarewebhook.Event{
		MerchantID: "merchant-1",
		Type:       eventType,
		EventID:    uuid.NewString(),
		CreatedAt:  "2024-01-15T10:00:00Z",
		Data: squarewebhook.EventData{
			Type:   "payment",
			ID:     "pay_1",
			Object: json.RawMessage(`{"payment":{"id":"pay_1","status":"FAILED"}}`),
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

type fakeSquareWebhookService struct {
	calls int
	last  *squarewebhook.Event
}

func (f *fakeSquareWebhookService) HandleEvent(ctx context.Context, event *squarewebhook.Event) error {
	f.calls++
	f.last = event
	return nil
}
