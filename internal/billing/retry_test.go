package billing

import (
	"testing"
	"time"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
)

func TestRetryBackoffCaps(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: 6 * time.Hour}
	want := []time.Duration{time.Hour, 2 * time.Hour, 4 * time.Hour, 6 * time.Hour, 6 * time.Hour}
	for i, expected := range want {
		if got := policy.Backoff(i + 1); got != expected {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, expected, got)
		}
	}
}

func TestRetryNextTransitions(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: 24 * time.Hour}
	now := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)

	first := policy.Next(0, now)
	if first.State != enums.RetryStateRetrying || first.Count != 1 {
		t.Fatalf("unexpected first decision: %+v", first)
	}
	if first.NextRetryAt == nil || !first.NextRetryAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected retry in one hour, got %v", first.NextRetryAt)
	}

	second := policy.Next(first.Count, now)
	if second.State != enums.RetryStateRetrying || !second.NextRetryAt.Equal(now.Add(2*time.Hour)) {
		t.Fatalf("unexpected second decision: %+v", second)
	}

	third := policy.Next(second.Count, now)
	if third.State != enums.RetryStateExhausted || third.Count != 3 {
		t.Fatalf("expected exhaustion on third failure, got %+v", third)
	}
	if third.NextRetryAt != nil {
		t.Fatalf("exhausted subscriptions must not schedule a retry")
	}
}

func TestRetryNextClampsMaxAttempts(t *testing.T) {
	decision := RetryPolicy{}.Next(0, time.Now())
	if decision.State != enums.RetryStateExhausted {
		t.Fatalf("expected immediate exhaustion without a policy, got %s", decision.State)
	}
}
