package payments

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
)

var (
	// ErrNoAccount means the dojang has not connected a payment account.
	ErrNoAccount = errors.New("payments: no connected account")
	// ErrDeclined is a definitive rejection of the charge by the provider.
	ErrDeclined = errors.New("payments: charge declined")
	// ErrUnauthorized means the stored access token was rejected.
	ErrUnauthorized = errors.New("payments: provider rejected credentials")
	// ErrUnavailable covers transport failures and provider outages where the
	// charge outcome is unknown.
	ErrUnavailable = errors.New("payments: provider unavailable")
)

// Provider charges and manages payment methods on one dojang's connected account.
type Provider interface {
	Name() enums.PaymentProvider
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	// AttachPaymentMethod stores sourceID against the customer and returns the
	// reference that later charges must use.
	AttachPaymentMethod(ctx context.Context, req AttachRequest) (string, error)
	DetachPaymentMethod(ctx context.Context, sourceID string) error
}

type ChargeRequest struct {
	AmountMinor    int64
	Currency       string
	SourceID       string
	CustomerID     string
	IdempotencyKey string
	Description    string
	Reference      string
}

type ChargeResult struct {
	TransactionID string
	Status        string
}

type CustomerRequest struct {
	Email          string
	GivenName      string
	FamilyName     string
	ReferenceID    string
	IdempotencyKey string
}

type AttachRequest struct {
	CustomerID     string
	SourceID       string
	IdempotencyKey string
}

// ToMinorUnits converts a decimal fee into cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// IsDefinitive reports whether err settles the charge attempt. Ambiguous
// failures keep the idempotency key so the retry replays the same charge.
func IsDefinitive(err error) bool {
	return errors.Is(err, ErrDeclined) || errors.Is(err, ErrUnauthorized)
}
