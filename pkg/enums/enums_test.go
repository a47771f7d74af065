package enums

import "testing"

func TestPaymentStatusChargeable(t *testing.T) {
	cases := map[PaymentStatus]bool{
		PaymentStatusPending:   true,
		PaymentStatusFailed:    true,
		PaymentStatusCompleted: false,
	}
	for status, want := range cases {
		if got := status.Chargeable(); got != want {
			t.Fatalf("%s: expected chargeable=%v, got %v", status, want, got)
		}
	}
}

func TestParsePaymentProviderIsCaseInsensitive(t *testing.T) {
	got, err := ParsePaymentProvider(" Square ")
	if err != nil || got != PaymentProviderSquare {
		t.Fatalf("expected square, got %q (%v)", got, err)
	}
	if _, err := ParsePaymentProvider("paypal"); err == nil {
		t.Fatal("expected unknown provider to fail")
	}
}

func TestParseRetryStateAndNotificationType(t *testing.T) {
	if _, err := ParseRetryState("exhausted"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseRetryState("done"); err == nil {
		t.Fatal("expected invalid retry state")
	}
	if !NotificationTypePaymentFailed.IsValid() {
		t.Fatal("payment_failed should be valid")
	}
	if _, err := ParseNotificationType("order_alert"); err == nil {
		t.Fatal("expected unknown notification type to fail")
	}
}
