package cron

import (
	"context"
	"fmt"
	"time"
)

type expiringRefresher interface {
	RefreshExpiring(ctx context.Context, within time.Duration) (int, error)
}

// TokenRefreshJob renews connected-account tokens before they expire.
type TokenRefreshJob struct {
	accounts expiringRefresher
	schedule string
	window   time.Duration
}

func NewTokenRefreshJob(accounts expiringRefresher, schedule string, window time.Duration) (*TokenRefreshJob, error) {
	if accounts == nil {
		return nil, fmt.Errorf("accounts service required")
	}
	if schedule == "" {
		schedule = "@every 1h"
	}
	if window <= 0 {
		window = 72 * time.Hour
	}
	return &TokenRefreshJob{accounts: accounts, schedule: schedule, window: window}, nil
}

func (j *TokenRefreshJob) Name() string { return "token_refresh" }

func (j *TokenRefreshJob) Schedule() string { return j.schedule }

func (j *TokenRefreshJob) Run(ctx context.Context) error {
	_, err := j.accounts.RefreshExpiring(ctx, j.window)
	return err
}
