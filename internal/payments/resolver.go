package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/square"
)

// AccountLookup returns the dojang's connected account or nil when none exists.
type AccountLookup interface {
	FindByDojang(ctx context.Context, dojangCode string) (*models.OwnerBankAccount, error)
}

// TokenOpener decrypts sealed provider tokens.
type TokenOpener interface {
	Open(sealed, associated string) (string, error)
}

// SquareFactory builds a merchant-scoped Square client.
type SquareFactory func(accessToken, locationID string) (SquareAPI, error)

// SquareClientFactory returns a SquareFactory backed by pkg/square.
func SquareClientFactory(env string, logg *logger.Logger) SquareFactory {
	return func(accessToken, locationID string) (SquareAPI, error) {
		return square.NewClient(env, accessToken, locationID, logg)
	}
}

// Resolver picks the provider variant for a dojang from its connected account.
type Resolver struct {
	accounts AccountLookup
	opener   TokenOpener
	stripe   StripeAPI
	square   SquareFactory
}

// NewResolver wires provider resolution. Either stripeAPI or squareFactory may
// be nil when that provider is not configured for the deployment.
func NewResolver(accounts AccountLookup, opener TokenOpener, stripeAPI StripeAPI, squareFactory SquareFactory) (*Resolver, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account lookup required")
	}
	if opener == nil {
		return nil, fmt.Errorf("token opener required")
	}
	return &Resolver{
		accounts: accounts,
		opener:   opener,
		stripe:   stripeAPI,
		square:   squareFactory,
	}, nil
}

// ForDojang returns ErrNoAccount when the dojang has no connected account.
func (r *Resolver) ForDojang(ctx context.Context, dojangCode string) (Provider, error) {
	dojangCode = strings.TrimSpace(dojangCode)
	if dojangCode == "" {
		return nil, fmt.Errorf("dojang code required")
	}
	account, err := r.accounts.FindByDojang(ctx, dojangCode)
	if err != nil {
		return nil, fmt.Errorf("load payment account: %w", err)
	}
	if account == nil {
		return nil, ErrNoAccount
	}

	switch account.Provider {
	case enums.PaymentProviderStripe:
		if r.stripe == nil {
			return nil, fmt.Errorf("stripe is not configured")
		}
		return NewStripeProvider(r.stripe, account.ConnectedAccountID)
	case enums.PaymentProviderSquare:
		if r.square == nil {
			return nil, fmt.Errorf("square is not configured")
		}
		token, err := r.opener.Open(account.AccessToken, dojangCode)
		if err != nil {
			return nil, fmt.Errorf("open square access token: %w", err)
		}
		location := ""
		if account.LocationID != nil {
			location = *account.LocationID
		}
		api, err := r.square(token, location)
		if err != nil {
			return nil, fmt.Errorf("build square client: %w", err)
		}
		return NewSquareProvider(api)
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", account.Provider)
	}
}
