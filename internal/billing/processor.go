package billing

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/jaehyunUm/mats-backend-sub000/internal/notifications"
	"github.com/jaehyunUm/mats-backend-sub000/internal/payments"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/config"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	pkgerrors "github.com/jaehyunUm/mats-backend-sub000/pkg/errors"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/metrics"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/redis"
)

const localReferencePrefix = "local_"

var errStaleSnapshot = errors.New("subscription changed while it was being charged")

// Locker is a single-owner lease.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory builds a lease for key.
type LockFactory func(key string, ttl time.Duration) (Locker, error)

// RedisLocks builds leases on the shared redis client.
func RedisLocks(client *redis.Client) LockFactory {
	return func(key string, ttl time.Duration) (Locker, error) {
		return client.NewLock(client.LockKey(key), ttl)
	}
}

// LeaseKey names the per-subscription lease.
func LeaseKey(id uuid.UUID) string {
	return "billing:subscription:" + id.String()
}

type ProviderResolver interface {
	ForDojang(ctx context.Context, dojangCode string) (payments.Provider, error)
}

type Notifier interface {
	Notify(ctx context.Context, input notifications.NotifyInput) (*models.Notification, error)
}

// TokenRefresher refreshes a dojang's provider tokens after an auth failure.
type TokenRefresher interface {
	Refresh(ctx context.Context, dojangCode string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ProcessorParams groups dependencies for the billing processor.
type ProcessorParams struct {
	Repo      Repository
	Tx        txRunner
	Resolver  ProviderResolver
	Notifier  Notifier
	Refresher TokenRefresher
	Locks     LockFactory
	Metrics   *metrics.BillingMetrics
	Logger    *logger.Logger
	Config    config.BillingConfig
	Now       func() time.Time
	NewKey    func() string
}

// Processor runs the recurring billing loop.
type Processor struct {
	repo      Repository
	tx        txRunner
	resolver  ProviderResolver
	notifier  Notifier
	refresher TokenRefresher
	locks     LockFactory
	metrics   *metrics.BillingMetrics
	logg      *logger.Logger
	policy    RetryPolicy
	limiter   *rate.Limiter
	loc       *time.Location
	batchSize int
	leaseTTL  time.Duration
	currency  string
	now       func() time.Time
	newKey    func() string
}

func NewProcessor(params ProcessorParams) (*Processor, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("billing repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Resolver == nil:
		return nil, fmt.Errorf("provider resolver required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	case params.Locks == nil:
		return nil, fmt.Errorf("lock factory required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	newKey := params.NewKey
	if newKey == nil {
		newKey = uuid.NewString
	}
	var limiter *rate.Limiter
	if params.Config.ChargesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(params.Config.ChargesPerSecond), 1)
	}
	currency := params.Config.Currency
	if currency == "" {
		currency = "usd"
	}
	return &Processor{
		repo:      params.Repo,
		tx:        params.Tx,
		resolver:  params.Resolver,
		notifier:  params.Notifier,
		refresher: params.Refresher,
		locks:     params.Locks,
		metrics:   params.Metrics,
		logg:      params.Logger,
		policy:    RetryPolicyFromConfig(params.Config),
		limiter:   limiter,
		loc:       params.Config.Location(),
		batchSize: params.Config.BatchSize,
		leaseTTL:  params.Config.LeaseTTL,
		currency:  currency,
		now:       now,
		newKey:    newKey,
	}, nil
}

// ProcessDue charges every due subscription once. Each subscription is
// isolated: a failure or panic in one never aborts the batch. Only a
// selection failure is returned as an error.
func (p *Processor) ProcessDue(ctx context.Context) (*BatchResult, error) {
	started := p.now()
	now := started.UTC()
	today := DateOf(now, p.loc)

	due, err := p.repo.ListDue(ctx, today, now, p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("select due subscriptions: %w", err)
	}

	result := &BatchResult{Candidates: len(due), Outcomes: make([]Outcome, 0, len(due))}
	for i := range due {
		if err := ctx.Err(); err != nil {
			p.metrics.ObserveBatch(p.now().Sub(started), len(due))
			return result, err
		}
		result.add(p.processOne(ctx, due[i].ID, due[i].DojangCode))
	}
	p.metrics.ObserveBatch(p.now().Sub(started), len(due))

	logCtx := p.logg.WithFields(ctx, map[string]any{
		"event":      "billing.batch",
		"candidates": result.Candidates,
		"succeeded":  result.Succeeded,
		"failed":     result.Failed,
		"skipped":    result.Skipped,
	})
	p.logg.Info(logCtx, "billing pass complete")
	return result, nil
}

// ChargeSubscription runs the billing unit for one subscription owned by dojangCode.
func (p *Processor) ChargeSubscription(ctx context.Context, dojangCode string, id uuid.UUID) (*Outcome, error) {
	sub, err := p.repo.FindForDojang(ctx, dojangCode, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	outcome := p.processOne(ctx, sub.ID, sub.DojangCode)
	return &outcome, nil
}

func (p *Processor) processOne(ctx context.Context, id uuid.UUID, dojangCode string) (out Outcome) {
	ctx = p.logg.WithFields(ctx, map[string]any{
		"event":           "billing.subscription",
		"subscription_id": id.String(),
		"dojang_code":     dojangCode,
	})
	defer func() {
		if r := recover(); r != nil {
			p.logg.Error(ctx, "billing unit panicked", fmt.Errorf("panic: %v", r))
			out = Outcome{SubscriptionID: id, DojangCode: dojangCode, Status: OutcomeFailed, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	out = p.chargeUnderLease(ctx, id, dojangCode)
	switch out.Status {
	case OutcomeFailed:
		p.logg.Warn(p.logg.WithField(ctx, "reason", out.Reason), "subscription charge failed")
	case OutcomeSkipped:
		p.logg.Info(p.logg.WithField(ctx, "reason", out.Reason), "subscription skipped")
	default:
		p.logg.Info(p.logg.WithField(ctx, "transaction_id", out.TransactionID), "subscription charged")
	}
	return out
}

func (p *Processor) chargeUnderLease(ctx context.Context, id uuid.UUID, dojangCode string) Outcome {
	base := Outcome{SubscriptionID: id, DojangCode: dojangCode}

	lease, err := p.locks(LeaseKey(id), p.leaseTTL)
	if err != nil {
		return base.failed(fmt.Sprintf("build lease: %v", err))
	}
	acquired, err := lease.Acquire(ctx)
	if err != nil {
		return base.failed(fmt.Sprintf("acquire lease: %v", err))
	}
	if !acquired {
		return base.skipped("lease held by another worker")
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "release billing lease")
		}
	}()

	now := p.now().UTC()
	today := DateOf(now, p.loc)
	sub, err := p.repo.FindByID(ctx, id)
	if err != nil {
		return base.failed(fmt.Sprintf("reload subscription: %v", err))
	}
	if sub == nil {
		return base.skipped("subscription no longer exists")
	}
	if !isDue(sub, today, now) {
		return base.skipped("subscription is not due")
	}
	return p.charge(ctx, sub, today, now)
}

func isDue(sub *models.MonthlyPayment, today, now time.Time) bool {
	if sub.NextPaymentDate.After(today) {
		return false
	}
	if !sub.PaymentStatus.Chargeable() || sub.RetryState == enums.RetryStateExhausted {
		return false
	}
	return sub.NextRetryAt == nil || !sub.NextRetryAt.After(now)
}

func (p *Processor) charge(ctx context.Context, sub *models.MonthlyPayment, today, now time.Time) Outcome {
	base := Outcome{SubscriptionID: sub.ID, DojangCode: sub.DojangCode}

	if !sub.HasPaymentMethod() {
		p.notify(ctx, sub.DojangCode, enums.NotificationTypePaymentSkipped,
			fmt.Sprintf("Subscription %s has no payment method on file; billing was skipped.", sub.ID))
		p.metrics.RecordOutcome("", string(OutcomeSkipped))
		return base.skipped("no payment method on file")
	}

	provider, err := p.resolver.ForDojang(ctx, sub.DojangCode)
	if errors.Is(err, payments.ErrNoAccount) {
		p.notify(ctx, sub.DojangCode, enums.NotificationTypePaymentSkipped,
			"No payment account is connected; automatic billing was skipped.")
		p.metrics.RecordOutcome("", string(OutcomeSkipped))
		return base.skipped("no connected payment account")
	}
	if err != nil {
		p.metrics.RecordOutcome("", string(OutcomeFailed))
		return base.failed(fmt.Sprintf("resolve provider: %v", err))
	}
	providerName := provider.Name()

	if sub.Fee.IsNegative() {
		p.notify(ctx, sub.DojangCode, enums.NotificationTypePaymentFailed,
			fmt.Sprintf("Subscription %s has a negative fee (%s) and was not charged.", sub.ID, sub.Fee.StringFixed(2)))
		p.metrics.RecordOutcome(string(providerName), string(OutcomeFailed))
		return base.failed("negative fee")
	}

	var (
		transactionID string
		key           string
		recorded      *enums.PaymentProvider
	)
	if sub.Fee.IsZero() {
		transactionID = localReferencePrefix + uuid.NewString()
	} else {
		key, err = p.repo.EnsureIdempotencyKey(ctx, sub.ID, p.newKey())
		if err != nil {
			p.metrics.RecordOutcome(string(providerName), string(OutcomeFailed))
			return base.failed(fmt.Sprintf("persist idempotency key: %v", err))
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				p.metrics.RecordOutcome(string(providerName), string(OutcomeFailed))
				return base.failed(fmt.Sprintf("rate limiter: %v", err))
			}
		}
		currency := sub.Currency
		if currency == "" {
			currency = p.currency
		}
		res, err := provider.Charge(ctx, payments.ChargeRequest{
			AmountMinor:    payments.ToMinorUnits(sub.Fee),
			Currency:       currency,
			SourceID:       *sub.SourceID,
			CustomerID:     deref(sub.CustomerID),
			IdempotencyKey: key,
			Description:    "Monthly tuition",
			Reference:      sub.ID.String(),
		})
		if err != nil {
			return p.recordFailure(ctx, sub, providerName, res, err, now)
		}
		transactionID = res.TransactionID
		recorded = &providerName
	}

	if err := p.recordSuccess(ctx, sub, transactionID, key, recorded, today); err != nil {
		if errors.Is(err, errStaleSnapshot) {
			p.metrics.RecordOutcome(string(providerName), string(OutcomeSkipped))
			return base.skipped(err.Error())
		}
		// The charge went through but was not recorded. Retry bookkeeping is
		// left alone and the key kept so the next pass replays the same
		// provider charge instead of issuing a new one.
		p.logg.Error(p.logg.WithField(ctx, "transaction_id", transactionID), "record captured payment", err)
		p.metrics.RecordOutcome(string(providerName), string(OutcomeFailed))
		out := base.failed(fmt.Sprintf("record payment: %v", err))
		out.TransactionID = transactionID
		out.RetryState = sub.RetryState
		return out
	}
	p.metrics.RecordOutcome(string(providerName), string(OutcomeSucceeded))
	out := base
	out.Status = OutcomeSucceeded
	out.TransactionID = transactionID
	out.RetryState = enums.RetryStateNone
	return out
}

func (p *Processor) recordSuccess(ctx context.Context, sub *models.MonthlyPayment, transactionID, key string, provider *enums.PaymentProvider, today time.Time) error {
	return p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := p.repo.WithTx(tx)
		locked, err := repo.LockByID(ctx, sub.ID)
		if err != nil {
			return err
		}
		if locked == nil || !locked.NextPaymentDate.Equal(sub.NextPaymentDate) {
			return errStaleSnapshot
		}

		payment := &models.ProgramPayment{
			DojangCode:       sub.DojangCode,
			MonthlyPaymentID: sub.ID,
			StudentID:        sub.StudentID,
			ProgramID:        sub.ProgramID,
			Amount:           sub.Fee,
			Currency:         sub.Currency,
			Status:           enums.PaymentStatusCompleted,
			TransactionID:    transactionID,
			Provider:         provider,
			PaymentDate:      today,
		}
		if key != "" {
			payment.IdempotencyKey = &key
		}
		if err := repo.InsertPayment(ctx, payment); err != nil {
			return err
		}
		return repo.ApplySuccess(ctx, sub.ID, SuccessUpdate{
			NextPaymentDate: NextPaymentDate(sub.NextPaymentDate, sub.AnchorDay),
			LastPaymentDate: today,
			TransactionID:   transactionID,
			IdempotencyKey:  p.newKey(),
		})
	})
}

func (p *Processor) recordFailure(ctx context.Context, sub *models.MonthlyPayment, provider enums.PaymentProvider, res *payments.ChargeResult, chargeErr error, now time.Time) Outcome {
	base := Outcome{SubscriptionID: sub.ID, DojangCode: sub.DojangCode}
	p.metrics.RecordOutcome(string(provider), string(OutcomeFailed))

	if errors.Is(chargeErr, payments.ErrUnauthorized) && p.refresher != nil {
		if err := p.refresher.Refresh(ctx, sub.DojangCode); err != nil {
			p.logg.Error(ctx, "refresh provider tokens after auth failure", err)
		}
	}

	var decision RetryDecision
	err := p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := p.repo.WithTx(tx)
		locked, err := repo.LockByID(ctx, sub.ID)
		if err != nil {
			return err
		}
		if locked == nil || !locked.NextPaymentDate.Equal(sub.NextPaymentDate) {
			return errStaleSnapshot
		}
		decision = p.policy.Next(locked.RetryCount, now)
		update := FailureUpdate{Retry: decision, Reason: truncate(chargeErr.Error(), 500)}
		if res != nil {
			update.TransactionID = res.TransactionID
		}
		if payments.IsDefinitive(chargeErr) {
			rotated := p.newKey()
			update.IdempotencyKey = &rotated
		}
		return repo.ApplyFailure(ctx, sub.ID, update)
	})
	if err != nil {
		p.logg.Error(ctx, "record billing failure", err)
		return base.failed(fmt.Sprintf("charge: %v; bookkeeping: %v", chargeErr, err))
	}

	notice := enums.NotificationTypePaymentFailed
	message := fmt.Sprintf("Monthly payment for subscription %s failed: %s", sub.ID, chargeErr.Error())
	if decision.State == enums.RetryStateExhausted {
		notice = enums.NotificationTypeBillingExhausted
		message = fmt.Sprintf("Monthly payment for subscription %s failed %d times; automatic billing stopped until the payment method is updated.", sub.ID, decision.Count)
	}
	p.notify(ctx, sub.DojangCode, notice, message)

	out := base.failed(chargeErr.Error())
	out.RetryState = decision.State
	return out
}

func (p *Processor) notify(ctx context.Context, dojangCode string, kind enums.NotificationType, message string) {
	if _, err := p.notifier.Notify(ctx, notifications.NotifyInput{
		DojangCode: dojangCode,
		Type:       kind,
		Message:    message,
	}); err != nil {
		p.logg.Error(ctx, "write billing notification", err)
	}
}

func (o Outcome) failed(reason string) Outcome {
	o.Status = OutcomeFailed
	o.Reason = reason
	return o
}

func (o Outcome) skipped(reason string) Outcome {
	o.Status = OutcomeSkipped
	o.Reason = reason
	return o
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
