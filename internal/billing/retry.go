package billing

import (
	"time"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/config"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
)

// RetryPolicy bounds automatic retries of a failed cycle with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func RetryPolicyFromConfig(cfg config.BillingConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
}

// RetryDecision is the retry bookkeeping written after a failed attempt.
type RetryDecision struct {
	Count       int
	State       enums.RetryState
	NextRetryAt *time.Time
}

// Backoff is BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
		if delay <= 0 {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Next records one more consecutive failure on top of previous.
func (p RetryPolicy) Next(previous int, now time.Time) RetryDecision {
	count := previous + 1
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if count >= maxAttempts {
		return RetryDecision{Count: count, State: enums.RetryStateExhausted}
	}
	next := now.Add(p.Backoff(count)).UTC()
	return RetryDecision{Count: count, State: enums.RetryStateRetrying, NextRetryAt: &next}
}
