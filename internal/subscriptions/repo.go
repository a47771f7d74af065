package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/pagination"
)

// Repository persists monthly plans. Every query is scoped by dojang code.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindStudent(ctx context.Context, dojangCode string, id uuid.UUID) (*models.Student, error)
	FindProgram(ctx context.Context, dojangCode string, id uuid.UUID) (*models.Program, error)
	Create(ctx context.Context, sub *models.MonthlyPayment) error
	FindByID(ctx context.Context, dojangCode string, id uuid.UUID) (*models.MonthlyPayment, error)
	List(ctx context.Context, query ListQuery) ([]models.MonthlyPayment, error)
	UpdatePaymentMethod(ctx context.Context, dojangCode string, id uuid.UUID, update PaymentMethodUpdate) error
}

type ListQuery struct {
	DojangCode string
	StudentID  *uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
}

// PaymentMethodUpdate swaps the stored method and clears retry bookkeeping.
type PaymentMethodUpdate struct {
	SourceID       string
	CustomerID     string
	IdempotencyKey string
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindStudent(ctx context.Context, dojangCode string, id uuid.UUID) (*models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).Where("id = ? AND dojang_code = ?", id, dojangCode).First(&student).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &student, nil
}

func (r *repository) FindProgram(ctx context.Context, dojangCode string, id uuid.UUID) (*models.Program, error) {
	var program models.Program
	if err := r.db.WithContext(ctx).Where("id = ? AND dojang_code = ?", id, dojangCode).First(&program).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &program, nil
}

func (r *repository) Create(ctx context.Context, sub *models.MonthlyPayment) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindByID(ctx context.Context, dojangCode string, id uuid.UUID) (*models.MonthlyPayment, error) {
	var sub models.MonthlyPayment
	if err := r.db.WithContext(ctx).Where("id = ? AND dojang_code = ?", id, dojangCode).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.MonthlyPayment, error) {
	q := r.db.WithContext(ctx).Model(&models.MonthlyPayment{}).Where("dojang_code = ?", query.DojangCode)
	if query.StudentID != nil {
		q = q.Where("student_id = ?", *query.StudentID)
	}
	if query.Cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			query.Cursor.CreatedAt, query.Cursor.CreatedAt, query.Cursor.ID)
	}
	var subs []models.MonthlyPayment
	if err := q.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(query.Limit)).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) UpdatePaymentMethod(ctx context.Context, dojangCode string, id uuid.UUID, update PaymentMethodUpdate) error {
	res := r.db.WithContext(ctx).
		Model(&models.MonthlyPayment{}).
		Where("id = ? AND dojang_code = ?", id, dojangCode).
		UpdateColumns(map[string]any{
			"source_id":           update.SourceID,
			"customer_id":         update.CustomerID,
			"idempotency_key":     update.IdempotencyKey,
			"payment_status":      enums.PaymentStatusPending,
			"retry_count":         0,
			"retry_state":         enums.RetryStateNone,
			"next_retry_at":       nil,
			"last_failure_reason": nil,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
