package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
)

// MonthlyPayment is the recurring plan for one (student, program) pair.
// NextPaymentDate is a calendar date stored at midnight UTC.
type MonthlyPayment struct {
	ID                  uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DojangCode          string              `gorm:"column:dojang_code;not null;index"`
	StudentID           uuid.UUID           `gorm:"column:student_id;type:uuid;not null"`
	ProgramID           uuid.UUID           `gorm:"column:program_id;type:uuid;not null"`
	Fee                 decimal.Decimal     `gorm:"column:fee;type:numeric(10,2);not null"`
	Currency            string              `gorm:"column:currency;not null;default:'usd'"`
	AnchorDay           int                 `gorm:"column:anchor_day;not null"`
	NextPaymentDate     time.Time           `gorm:"column:next_payment_date;type:date;not null"`
	LastPaymentDate     *time.Time          `gorm:"column:last_payment_date;type:date"`
	PaymentStatus       enums.PaymentStatus `gorm:"column:payment_status;not null;default:'pending'"`
	SourceID            *string             `gorm:"column:source_id"`
	CustomerID          *string             `gorm:"column:customer_id"`
	IdempotencyKey      *string             `gorm:"column:idempotency_key"`
	LastPaymentIntentID *string             `gorm:"column:last_payment_intent_id"`
	RetryCount          int                 `gorm:"column:retry_count;not null;default:0"`
	RetryState          enums.RetryState    `gorm:"column:retry_state;not null;default:'none'"`
	NextRetryAt         *time.Time          `gorm:"column:next_retry_at"`
	LastFailureReason   *string             `gorm:"column:last_failure_reason"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *MonthlyPayment) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.PaymentStatus == "" {
		m.PaymentStatus = enums.PaymentStatusPending
	}
	if m.RetryState == "" {
		m.RetryState = enums.RetryStateNone
	}
	return nil
}

// HasPaymentMethod reports whether a payment method reference is on file.
func (m MonthlyPayment) HasPaymentMethod() bool {
	return m.SourceID != nil && *m.SourceID != ""
}
