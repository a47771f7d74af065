package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
)

// ProgramPayment is the append-only audit row written for every settled cycle.
type ProgramPayment struct {
	ID               uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DojangCode       string                 `gorm:"column:dojang_code;not null;index"`
	MonthlyPaymentID uuid.UUID              `gorm:"column:monthly_payment_id;type:uuid;not null;index"`
	StudentID        uuid.UUID              `gorm:"column:student_id;type:uuid;not null"`
	ProgramID        uuid.UUID              `gorm:"column:program_id;type:uuid;not null"`
	Amount           decimal.Decimal        `gorm:"column:amount;type:numeric(10,2);not null"`
	Currency         string                 `gorm:"column:currency;not null"`
	Status           enums.PaymentStatus    `gorm:"column:status;not null"`
	TransactionID    string                 `gorm:"column:transaction_id;not null"`
	IdempotencyKey   *string                `gorm:"column:idempotency_key"`
	Provider         *enums.PaymentProvider `gorm:"column:provider"`
	PaymentDate      time.Time              `gorm:"column:payment_date;type:date;not null"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (p *ProgramPayment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
