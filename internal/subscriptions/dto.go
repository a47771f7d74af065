package subscriptions

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
)

// Subscription is the owner-facing view of a monthly plan. The raw payment
// method reference is reduced to a flag.
type Subscription struct {
	ID                uuid.UUID           `json:"id"`
	StudentID         uuid.UUID           `json:"student_id"`
	ProgramID         uuid.UUID           `json:"program_id"`
	Fee               decimal.Decimal     `json:"fee"`
	Currency          string              `json:"currency"`
	AnchorDay         int                 `json:"anchor_day"`
	NextPaymentDate   string              `json:"next_payment_date"`
	LastPaymentDate   *string             `json:"last_payment_date,omitempty"`
	PaymentStatus     enums.PaymentStatus `json:"payment_status"`
	HasPaymentMethod  bool                `json:"has_payment_method"`
	RetryCount        int                 `json:"retry_count"`
	RetryState        enums.RetryState    `json:"retry_state"`
	NextRetryAt       *time.Time          `json:"next_retry_at,omitempty"`
	LastFailureReason *string             `json:"last_failure_reason,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

type ListResult struct {
	Items      []Subscription `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Payment is one settled billing cycle.
type Payment struct {
	ID             uuid.UUID              `json:"id"`
	SubscriptionID uuid.UUID              `json:"subscription_id"`
	StudentID      uuid.UUID              `json:"student_id"`
	ProgramID      uuid.UUID              `json:"program_id"`
	Amount         decimal.Decimal        `json:"amount"`
	Currency       string                 `json:"currency"`
	Status         enums.PaymentStatus    `json:"status"`
	TransactionID  string                 `json:"transaction_id"`
	Provider       *enums.PaymentProvider `json:"provider,omitempty"`
	PaymentDate    string                 `json:"payment_date"`
	CreatedAt      time.Time              `json:"created_at"`
}

type PaymentsResult struct {
	Items      []Payment `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

func newSubscription(m *models.MonthlyPayment) *Subscription {
	sub := &Subscription{
		ID:                m.ID,
		StudentID:         m.StudentID,
		ProgramID:         m.ProgramID,
		Fee:               m.Fee,
		Currency:          m.Currency,
		AnchorDay:         m.AnchorDay,
		NextPaymentDate:   m.NextPaymentDate.Format(time.DateOnly),
		PaymentStatus:     m.PaymentStatus,
		HasPaymentMethod:  m.HasPaymentMethod(),
		RetryCount:        m.RetryCount,
		RetryState:        m.RetryState,
		NextRetryAt:       m.NextRetryAt,
		LastFailureReason: m.LastFailureReason,
		CreatedAt:         m.CreatedAt,
	}
	if m.LastPaymentDate != nil {
		sub.LastPaymentDate = lo.ToPtr(m.LastPaymentDate.Format(time.DateOnly))
	}
	return sub
}

func newSubscriptions(rows []models.MonthlyPayment) []Subscription {
	return lo.Map(rows, func(m models.MonthlyPayment, _ int) Subscription {
		return *newSubscription(&m)
	})
}

func newPayments(rows []models.ProgramPayment) []Payment {
	return lo.Map(rows, func(p models.ProgramPayment, _ int) Payment {
		return Payment{
			ID:             p.ID,
			SubscriptionID: p.MonthlyPaymentID,
			StudentID:      p.StudentID,
			ProgramID:      p.ProgramID,
			Amount:         p.Amount,
			Currency:       p.Currency,
			Status:         p.Status,
			TransactionID:  p.TransactionID,
			Provider:       p.Provider,
			PaymentDate:    p.PaymentDate.Format(time.DateOnly),
			CreatedAt:      p.CreatedAt,
		}
	})
}
