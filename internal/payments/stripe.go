package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
)

// StripeAPI is the subset of pkg/stripe used by the provider.
type StripeAPI interface {
	CreatePaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CreateCustomer(params *stripe.CustomerParams) (*stripe.Customer, error)
	AttachPaymentMethod(id string, params *stripe.PaymentMethodAttachParams) (*stripe.PaymentMethod, error)
	DetachPaymentMethod(id string, params *stripe.PaymentMethodDetachParams) (*stripe.PaymentMethod, error)
}

type stripeProvider struct {
	api       StripeAPI
	accountID string
}

// NewStripeProvider scopes every call to the connected account.
func NewStripeProvider(api StripeAPI, connectedAccountID string) (Provider, error) {
	if api == nil {
		return nil, fmt.Errorf("stripe api required")
	}
	connectedAccountID = strings.TrimSpace(connectedAccountID)
	if connectedAccountID == "" {
		return nil, fmt.Errorf("stripe connected account id required")
	}
	return &stripeProvider{api: api, accountID: connectedAccountID}, nil
}

func (p *stripeProvider) Name() enums.PaymentProvider { return enums.PaymentProviderStripe }

func (p *stripeProvider) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountMinor),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.SourceID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.Reference != "" {
		params.AddMetadata("monthly_payment_id", req.Reference)
	}
	params.Context = ctx
	params.SetStripeAccount(p.accountID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	intent, err := p.api.CreatePaymentIntent(params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	if intent == nil {
		return nil, fmt.Errorf("%w: empty payment intent", ErrUnavailable)
	}
	result := &ChargeResult{TransactionID: intent.ID, Status: string(intent.Status)}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return result, nil
	case stripe.PaymentIntentStatusProcessing:
		return result, fmt.Errorf("%w: payment intent %s still processing", ErrUnavailable, intent.ID)
	default:
		return result, fmt.Errorf("%w: payment intent %s status %s", ErrDeclined, intent.ID, intent.Status)
	}
}

func (p *stripeProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	params := &stripe.CustomerParams{}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	if name := strings.TrimSpace(req.GivenName + " " + req.FamilyName); name != "" {
		params.Name = stripe.String(name)
	}
	if req.ReferenceID != "" {
		params.AddMetadata("student_id", req.ReferenceID)
	}
	params.Context = ctx
	params.SetStripeAccount(p.accountID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	cust, err := p.api.CreateCustomer(params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	return cust.ID, nil
}

func (p *stripeProvider) AttachPaymentMethod(ctx context.Context, req AttachRequest) (string, error) {
	params := &stripe.PaymentMethodAttachParams{Customer: stripe.String(req.CustomerID)}
	params.Context = ctx
	params.SetStripeAccount(p.accountID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	pm, err := p.api.AttachPaymentMethod(req.SourceID, params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	return pm.ID, nil
}

func (p *stripeProvider) DetachPaymentMethod(ctx context.Context, sourceID string) error {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	params.SetStripeAccount(p.accountID)
	if _, err := p.api.DetachPaymentMethod(sourceID, params); err != nil {
		return classifyStripeError(err)
	}
	return nil
}

func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch {
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized, stripeErr.HTTPStatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case stripeErr.Type == stripe.ErrorTypeCard, stripeErr.HTTPStatusCode == http.StatusPaymentRequired:
		return fmt.Errorf("%w: %v", ErrDeclined, err)
	case stripeErr.HTTPStatusCode >= 500, stripeErr.HTTPStatusCode == 0, stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrDeclined, err)
	}
}
