package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jaehyunUm/mats-backend-sub000/internal/billing"
	"github.com/jaehyunUm/mats-backend-sub000/internal/payments"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/db"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	pkgerrors "github.com/jaehyunUm/mats-backend-sub000/pkg/errors"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/pagination"
)

// Service defines the monthly plan surface used by the dojang owner.
type Service interface {
	Create(ctx context.Context, dojangCode string, input CreateInput) (*Subscription, error)
	List(ctx context.Context, dojangCode string, params ListParams) (*ListResult, error)
	Get(ctx context.Context, dojangCode string, id uuid.UUID) (*Subscription, error)
	UpdatePaymentMethod(ctx context.Context, dojangCode string, id uuid.UUID, input PaymentMethodInput) (*Subscription, error)
	Charge(ctx context.Context, dojangCode string, id uuid.UUID) (*billing.Outcome, error)
	History(ctx context.Context, dojangCode string, id uuid.UUID, params PageParams) (*PaymentsResult, error)
	TenantPayments(ctx context.Context, dojangCode string, params PageParams) (*PaymentsResult, error)
}

// Charger runs one billing unit for a subscription.
type Charger interface {
	ChargeSubscription(ctx context.Context, dojangCode string, id uuid.UUID) (*billing.Outcome, error)
}

type paymentHistory interface {
	ListPayments(ctx context.Context, params billing.ListPaymentsQuery) ([]models.ProgramPayment, error)
}

// ServiceParams groups dependencies for the subscriptions service.
type ServiceParams struct {
	Repo     Repository
	Payments paymentHistory
	Resolver billing.ProviderResolver
	Charger  Charger
	Logger   *logger.Logger
	Now      func() time.Time
	NewKey   func() string
	Currency string
}

type CreateInput struct {
	StudentID  uuid.UUID
	ProgramID  uuid.UUID
	Fee        *decimal.Decimal
	Currency   string
	AnchorDay  int
	StartDate  *time.Time
	SourceID   string
	CustomerID string
}

type ListParams struct {
	StudentID *uuid.UUID
	Limit     int
	Cursor    string
}

type PageParams struct {
	Limit  int
	Cursor string
}

type PaymentMethodInput struct {
	SourceID string
}

type service struct {
	repo     Repository
	payments paymentHistory
	resolver billing.ProviderResolver
	charger  Charger
	logg     *logger.Logger
	now      func() time.Time
	newKey   func() string
	currency string
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment history repository required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("provider resolver required")
	}
	if params.Charger == nil {
		return nil, fmt.Errorf("charger required")
	}
	if params.Logger == nil {
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
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &service{
		repo:     params.Repo,
		payments: params.Payments,
		resolver: params.Resolver,
		charger:  params.Charger,
		logg:     params.Logger,
		now:      now,
		newKey:   newKey,
		currency: currency,
	}, nil
}

// Create starts a monthly plan for a student in a program. The fee defaults to
// the program price and the first due date is the first anchor day on or after
// the start date.
func (s *service) Create(ctx context.Context, dojangCode string, input CreateInput) (*Subscription, error) {
	if input.StudentID == uuid.Nil || input.ProgramID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student_id and program_id are required")
	}
	if input.AnchorDay < 0 || input.AnchorDay > 31 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "anchor_day must be between 1 and 31")
	}

	student, err := s.repo.FindStudent(ctx, dojangCode, input.StudentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load student")
	}
	if student == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "student not found")
	}
	program, err := s.repo.FindProgram(ctx, dojangCode, input.ProgramID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load program")
	}
	if program == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "program not found")
	}

	fee := program.Price
	if input.Fee != nil {
		fee = *input.Fee
	}
	if fee.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fee must not be negative")
	}

	start := s.now()
	if input.StartDate != nil {
		start = *input.StartDate
	}
	start = billing.DateOf(start, time.UTC)
	anchor := input.AnchorDay
	if anchor == 0 {
		anchor = start.Day()
	}

	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}
	key := s.newKey()
	sub := &models.MonthlyPayment{
		DojangCode:      dojangCode,
		StudentID:       student.ID,
		ProgramID:       program.ID,
		Fee:             fee,
		Currency:        currency,
		AnchorDay:       anchor,
		NextPaymentDate: billing.FirstPaymentDate(start, anchor),
		SourceID:        trimmedPtr(input.SourceID),
		CustomerID:      trimmedPtr(input.CustomerID),
		IdempotencyKey:  &key,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "student already has a plan for this program")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"dojang_code":       dojangCode,
		"subscription_id":   sub.ID.String(),
		"next_payment_date": sub.NextPaymentDate.Format(time.DateOnly),
	})
	s.logg.Info(logCtx, "subscription created")
	return newSubscription(sub), nil
}

func (s *service) List(ctx context.Context, dojangCode string, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, ListQuery{
		DojangCode: dojangCode,
		StudentID:  params.StudentID,
		Limit:      params.Limit,
		Cursor:     cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	page := pagination.Trim(rows, params.Limit, func(m models.MonthlyPayment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return &ListResult{Items: newSubscriptions(page.Items), NextCursor: page.NextCursor}, nil
}

func (s *service) Get(ctx context.Context, dojangCode string, id uuid.UUID) (*Subscription, error) {
	sub, err := s.load(ctx, dojangCode, id)
	if err != nil {
		return nil, err
	}
	return newSubscription(sub), nil
}

// UpdatePaymentMethod attaches a new payment method on the tenant's provider,
// creating the provider customer when the plan has none yet. The previous
// method is detached best-effort and the retry state is reset so an exhausted
// plan re-enters billing.
func (s *service) UpdatePaymentMethod(ctx context.Context, dojangCode string, id uuid.UUID, input PaymentMethodInput) (*Subscription, error) {
	sourceID := strings.TrimSpace(input.SourceID)
	if sourceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source_id is required")
	}
	sub, err := s.load(ctx, dojangCode, id)
	if err != nil {
		return nil, err
	}

	provider, err := s.resolver.ForDojang(ctx, dojangCode)
	if err != nil {
		if errors.Is(err, payments.ErrNoAccount) {
			return nil, pkgerrors.New(pkgerrors.CodeNotConnected, "connect a payment account first")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve payment provider")
	}

	customerID := derefString(sub.CustomerID)
	if customerID == "" {
		student, err := s.repo.FindStudent(ctx, dojangCode, sub.StudentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load student")
		}
		req := payments.CustomerRequest{
			ReferenceID:    sub.StudentID.String(),
			IdempotencyKey: "customer-" + sub.ID.String(),
		}
		if student != nil {
			req.GivenName = student.FirstName
			req.FamilyName = student.LastName
			req.Email = derefString(student.ParentEmail)
		}
		customerID, err = provider.CreateCustomer(ctx, req)
		if err != nil {
			return nil, providerError(err, "create customer")
		}
	}

	attached, err := provider.AttachPaymentMethod(ctx, payments.AttachRequest{
		CustomerID:     customerID,
		SourceID:       sourceID,
		IdempotencyKey: s.newKey(),
	})
	if err != nil {
		return nil, providerError(err, "attach payment method")
	}

	if err := s.repo.UpdatePaymentMethod(ctx, dojangCode, id, PaymentMethodUpdate{
		SourceID:       attached,
		CustomerID:     customerID,
		IdempotencyKey: s.newKey(),
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment method")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"dojang_code":     dojangCode,
		"subscription_id": id.String(),
		"provider":        string(provider.Name()),
	})
	if previous := derefString(sub.SourceID); previous != "" && previous != attached {
		if err := provider.DetachPaymentMethod(ctx, previous); err != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "detach previous payment method")
		}
	}
	s.logg.Info(logCtx, "payment method updated")

	return s.Get(ctx, dojangCode, id)
}

func (s *service) Charge(ctx context.Context, dojangCode string, id uuid.UUID) (*billing.Outcome, error) {
	return s.charger.ChargeSubscription(ctx, dojangCode, id)
}

func (s *service) History(ctx context.Context, dojangCode string, id uuid.UUID, params PageParams) (*PaymentsResult, error) {
	if _, err := s.load(ctx, dojangCode, id); err != nil {
		return nil, err
	}
	return s.listPayments(ctx, dojangCode, &id, params)
}

func (s *service) TenantPayments(ctx context.Context, dojangCode string, params PageParams) (*PaymentsResult, error) {
	return s.listPayments(ctx, dojangCode, nil, params)
}

func (s *service) listPayments(ctx context.Context, dojangCode string, subID *uuid.UUID, params PageParams) (*PaymentsResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.payments.ListPayments(ctx, billing.ListPaymentsQuery{
		DojangCode:       dojangCode,
		MonthlyPaymentID: subID,
		Limit:            params.Limit,
		Cursor:           cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	page := pagination.Trim(rows, params.Limit, func(p models.ProgramPayment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return &PaymentsResult{Items: newPayments(page.Items), NextCursor: page.NextCursor}, nil
}

func (s *service) load(ctx context.Context, dojangCode string, id uuid.UUID) (*models.MonthlyPayment, error) {
	sub, err := s.repo.FindByID(ctx, dojangCode, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

func providerError(err error, action string) error {
	switch {
	case errors.Is(err, payments.ErrDeclined):
		return pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, action)
	case errors.Is(err, payments.ErrUnauthorized):
		return pkgerrors.Wrap(pkgerrors.CodeNotConnected, err, action)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
}

func trimmedPtr(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
