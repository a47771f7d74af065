package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/db"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/pagination"
)

// Repository handles billing persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListDue(ctx context.Context, today, now time.Time, limit int) ([]models.MonthlyPayment, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.MonthlyPayment, error)
	FindForDojang(ctx context.Context, dojangCode string, id uuid.UUID) (*models.MonthlyPayment, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.MonthlyPayment, error)
	EnsureIdempotencyKey(ctx context.Context, id uuid.UUID, candidate string) (string, error)
	ApplySuccess(ctx context.Context, id uuid.UUID, update SuccessUpdate) error
	ApplyFailure(ctx context.Context, id uuid.UUID, update FailureUpdate) error
	InsertPayment(ctx context.Context, payment *models.ProgramPayment) error
	ListPayments(ctx context.Context, params ListPaymentsQuery) ([]models.ProgramPayment, error)
}

// SuccessUpdate advances a subscription to its next cycle.
type SuccessUpdate struct {
	NextPaymentDate time.Time
	LastPaymentDate time.Time
	TransactionID   string
	IdempotencyKey  string
}

// FailureUpdate is retry bookkeeping only; the due date never moves on failure.
type FailureUpdate struct {
	Retry          RetryDecision
	Reason         string
	TransactionID  string
	IdempotencyKey *string
}

type ListPaymentsQuery struct {
	DojangCode       string
	MonthlyPaymentID *uuid.UUID
	Limit            int
	Cursor           *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListDue(ctx context.Context, today, now time.Time, limit int) ([]models.MonthlyPayment, error) {
	if limit <= 0 {
		limit = 200
	}
	var subs []models.MonthlyPayment
	if err := r.db.WithContext(ctx).
		Where("next_payment_date <= ?", today).
		Where("payment_status IN ?", []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed}).
		Where("retry_state <> ?", enums.RetryStateExhausted).
		Where("(next_retry_at IS NULL OR next_retry_at <= ?)", now).
		Order("next_payment_date ASC, id ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MonthlyPayment, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindForDojang(ctx context.Context, dojangCode string, id uuid.UUID) (*models.MonthlyPayment, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ? AND dojang_code = ?", id, dojangCode))
}

// LockByID must run inside a transaction; on Postgres it holds the row lock until commit.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.MonthlyPayment, error) {
	return r.first(db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id))
}

func (r *repository) first(query *gorm.DB) (*models.MonthlyPayment, error) {
	var sub models.MonthlyPayment
	if err := query.First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// EnsureIdempotencyKey stores candidate only when no key is persisted yet and
// returns whichever key the row holds afterwards.
func (r *repository) EnsureIdempotencyKey(ctx context.Context, id uuid.UUID, candidate string) (string, error) {
	if err := r.db.WithContext(ctx).
		Model(&models.MonthlyPayment{}).
		Where("id = ? AND (idempotency_key IS NULL OR idempotency_key = '')", id).
		UpdateColumns(map[string]any{"idempotency_key": candidate, "updated_at": time.Now().UTC()}).Error; err != nil {
		return "", err
	}
	var row struct {
		IdempotencyKey *string
	}
	if err := r.db.WithContext(ctx).
		Model(&models.MonthlyPayment{}).
		Select("idempotency_key").
		Where("id = ?", id).
		Take(&row).Error; err != nil {
		return "", err
	}
	if row.IdempotencyKey == nil || *row.IdempotencyKey == "" {
		return "", gorm.ErrRecordNotFound
	}
	return *row.IdempotencyKey, nil
}

func (r *repository) ApplySuccess(ctx context.Context, id uuid.UUID, update SuccessUpdate) error {
	return r.db.WithContext(ctx).
		Model(&models.MonthlyPayment{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"next_payment_date":      update.NextPaymentDate,
			"last_payment_date":      update.LastPaymentDate,
			"payment_status":         enums.PaymentStatusPending,
			"last_payment_intent_id": update.TransactionID,
			"idempotency_key":        update.IdempotencyKey,
			"retry_count":            0,
			"retry_state":            enums.RetryStateNone,
			"next_retry_at":          nil,
			"last_failure_reason":    nil,
			"updated_at":             time.Now().UTC(),
		}).Error
}

func (r *repository) ApplyFailure(ctx context.Context, id uuid.UUID, update FailureUpdate) error {
	columns := map[string]any{
		"payment_status":      enums.PaymentStatusFailed,
		"retry_count":         update.Retry.Count,
		"retry_state":         update.Retry.State,
		"next_retry_at":       update.Retry.NextRetryAt,
		"last_failure_reason": update.Reason,
		"updated_at":          time.Now().UTC(),
	}
	if update.TransactionID != "" {
		columns["last_payment_intent_id"] = update.TransactionID
	}
	if update.IdempotencyKey != nil {
		columns["idempotency_key"] = *update.IdempotencyKey
	}
	return r.db.WithContext(ctx).
		Model(&models.MonthlyPayment{}).
		Where("id = ?", id).
		UpdateColumns(columns).Error
}

func (r *repository) InsertPayment(ctx context.Context, payment *models.ProgramPayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) ListPayments(ctx context.Context, params ListPaymentsQuery) ([]models.ProgramPayment, error) {
	query := r.db.WithContext(ctx).Model(&models.ProgramPayment{}).Where("dojang_code = ?", params.DojangCode)
	if params.MonthlyPaymentID != nil {
		query = query.Where("monthly_payment_id = ?", *params.MonthlyPaymentID)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			params.Cursor.CreatedAt, params.Cursor.CreatedAt, params.Cursor.ID)
	}
	var payments []models.ProgramPayment
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
