package payments

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	pkgerrors "github.com/jaehyunUm/mats-backend-sub000/pkg/errors"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/square"
)

const squarePaymentCompleted = "COMPLETED"

// SquareAPI is the subset of pkg/square used by the provider.
type SquareAPI interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	EnsureCustomer(ctx context.Context, params square.CustomerCreateParams) (*sq.Customer, error)
	CreateCard(ctx context.Context, params square.CardCreateParams) (*sq.Card, error)
	DisableCard(ctx context.Context, cardID string) error
}

type squareProvider struct {
	api SquareAPI
}

func NewSquareProvider(api SquareAPI) (Provider, error) {
	if api == nil {
		return nil, fmt.Errorf("square api required")
	}
	return &squareProvider{api: api}, nil
}

func (p *squareProvider) Name() enums.PaymentProvider { return enums.PaymentProviderSquare }

func (p *squareProvider) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payment, err := p.api.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    req.AmountMinor,
		Currency:       req.Currency,
		CustomerID:     req.CustomerID,
		SourceID:       req.SourceID,
		IdempotencyKey: req.IdempotencyKey,
		Note:           req.Description,
		ReferenceID:    req.Reference,
	})
	if err != nil {
		return nil, classifySquareError(err)
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: empty payment", ErrUnavailable)
	}
	result := &ChargeResult{
		TransactionID: derefString(payment.GetID()),
		Status:        derefString(payment.GetStatus()),
	}
	switch strings.ToUpper(result.Status) {
	case squarePaymentCompleted:
		return result, nil
	case "APPROVED", "PENDING":
		return result, fmt.Errorf("%w: payment %s status %s", ErrUnavailable, result.TransactionID, result.Status)
	default:
		return result, fmt.Errorf("%w: payment %s status %s", ErrDeclined, result.TransactionID, result.Status)
	}
}

func (p *squareProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	cust, err := p.api.EnsureCustomer(ctx, square.CustomerCreateParams{
		Email:          req.Email,
		GivenName:      req.GivenName,
		FamilyName:     req.FamilyName,
		ReferenceID:    req.ReferenceID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return "", classifySquareError(err)
	}
	return derefString(cust.GetID()), nil
}

// AttachPaymentMethod turns a card nonce into a card on file.
func (p *squareProvider) AttachPaymentMethod(ctx context.Context, req AttachRequest) (string, error) {
	card, err := p.api.CreateCard(ctx, square.CardCreateParams{
		CustomerID:     req.CustomerID,
		SourceID:       req.SourceID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return "", classifySquareError(err)
	}
	return derefString(card.GetID()), nil
}

func (p *squareProvider) DetachPaymentMethod(ctx context.Context, sourceID string) error {
	if err := p.api.DisableCard(ctx, sourceID); err != nil {
		return classifySquareError(err)
	}
	return nil
}

func classifySquareError(err error) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch typed.Code() {
	case pkgerrors.CodeUnauthorized, pkgerrors.CodeForbidden:
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case pkgerrors.CodeDependency, pkgerrors.CodeRateLimit, pkgerrors.CodeInternal:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrDeclined, err)
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
