package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/jaehyunUm/mats-backend-sub000/internal/billing"
)

const defaultBillingInterval = 5 * time.Minute

type dueProcessor interface {
	ProcessDue(ctx context.Context) (*billing.BatchResult, error)
}

// BillingJob runs one pass of the recurring billing loop.
type BillingJob struct {
	processor dueProcessor
	interval  time.Duration
}

func NewBillingJob(processor dueProcessor, interval time.Duration) (*BillingJob, error) {
	if processor == nil {
		return nil, fmt.Errorf("billing processor required")
	}
	if interval <= 0 {
		interval = defaultBillingInterval
	}
	return &BillingJob{processor: processor, interval: interval}, nil
}

func (j *BillingJob) Name() string { return "billing" }

func (j *BillingJob) Schedule() string { return "@every " + j.interval.String() }

// Run only fails when no candidates could be selected; per-subscription
// failures are reported through the batch result.
func (j *BillingJob) Run(ctx context.Context) error {
	_, err := j.processor.ProcessDue(ctx)
	return err
}
