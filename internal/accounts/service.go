package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/auth"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/config"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	pkgerrors "github.com/jaehyunUm/mats-backend-sub000/pkg/errors"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/square"
	pkgstripe "github.com/jaehyunUm/mats-backend-sub000/pkg/stripe"
)

const expiringBatchSize = 100

var squareScopes = []string{
	"MERCHANT_PROFILE_READ",
	"CUSTOMERS_READ",
	"CUSTOMERS_WRITE",
	"PAYMENTS_READ",
	"PAYMENTS_WRITE",
}

// Service manages the OAuth lifecycle of a dojang's connected payment account.
type Service interface {
	AuthorizeURL(ctx context.Context, dojangCode string, provider enums.PaymentProvider) (string, error)
	CompleteOAuth(ctx context.Context, provider enums.PaymentProvider, code, state string) (*AccountStatus, error)
	Refresh(ctx context.Context, dojangCode string) error
	RefreshExpiring(ctx context.Context, within time.Duration) (int, error)
	Status(ctx context.Context, dojangCode string) (*AccountStatus, error)
	Disconnect(ctx context.Context, dojangCode string) error
	DisconnectByConnectedAccount(ctx context.Context, provider enums.PaymentProvider, accountID string) (string, error)
}

// StripeOAuth is the Connect OAuth surface of pkg/stripe.
type StripeOAuth interface {
	ConnectClientID() string
	ExchangeCode(code string) (*stripe.OAuthToken, error)
	RefreshToken(refreshToken string) (*stripe.OAuthToken, error)
}

// SquareOAuth is the OAuth surface of pkg/square.
type SquareOAuth interface {
	ApplicationID() string
	AuthorizeURL() string
	ExchangeCode(ctx context.Context, code string) (*square.Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*square.Token, error)
}

type tokenSealer interface {
	Seal(plaintext, associated string) (string, error)
	Open(sealed, associated string) (string, error)
}

// ServiceParams groups dependencies for the accounts service. Stripe and
// Square may be nil when the deployment does not offer that provider.
type ServiceParams struct {
	Repo      Repository
	Sealer    tokenSealer
	Stripe    StripeOAuth
	Square    SquareOAuth
	JWT       config.JWTConfig
	PublicURL string
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      Repository
	sealer    tokenSealer
	stripe    StripeOAuth
	square    SquareOAuth
	jwt       config.JWTConfig
	publicURL string
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "accounts repository required")
	}
	if params.Sealer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "token sealer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		sealer:    params.Sealer,
		stripe:    params.Stripe,
		square:    params.Square,
		jwt:       params.JWT,
		publicURL: strings.TrimRight(strings.TrimSpace(params.PublicURL), "/"),
		logg:      params.Logger,
		now:       now,
	}, nil
}

// CallbackURL is where the provider redirects after consent.
func CallbackURL(publicURL string, provider enums.PaymentProvider) string {
	return fmt.Sprintf("%s/api/v1/accounts/%s/callback", strings.TrimRight(publicURL, "/"), provider)
}

func (s *service) AuthorizeURL(ctx context.Context, dojangCode string, provider enums.PaymentProvider) (string, error) {
	if strings.TrimSpace(dojangCode) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "dojang code required")
	}
	conf, err := s.oauthConfig(provider)
	if err != nil {
		return "", err
	}
	state, err := auth.MintOAuthState(s.jwt, s.now(), dojangCode, provider)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint oauth state")
	}
	opts := []oauth2.AuthCodeOption{}
	if provider == enums.PaymentProviderSquare {
		opts = append(opts, oauth2.SetAuthURLParam("session", "false"))
	}
	return conf.AuthCodeURL(state, opts...), nil
}

func (s *service) oauthConfig(provider enums.PaymentProvider) (*oauth2.Config, error) {
	redirect := CallbackURL(s.publicURL, provider)
	switch provider {
	case enums.PaymentProviderStripe:
		if s.stripe == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe is not enabled")
		}
		return &oauth2.Config{
			ClientID:    s.stripe.ConnectClientID(),
			Endpoint:    oauth2.Endpoint{AuthURL: pkgstripe.AuthorizeURL, TokenURL: pkgstripe.TokenURL},
			RedirectURL: redirect,
			Scopes:      []string{"read_write"},
		}, nil
	case enums.PaymentProviderSquare:
		if s.square == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "square is not enabled")
		}
		return &oauth2.Config{
			ClientID:    s.square.ApplicationID(),
			Endpoint:    oauth2.Endpoint{AuthURL: s.square.AuthorizeURL()},
			RedirectURL: redirect,
			Scopes:      squareScopes,
		}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment provider")
	}
}

func (s *service) CompleteOAuth(ctx context.Context, provider enums.PaymentProvider, code, state string) (*AccountStatus, error) {
	claims, err := auth.ParseOAuthState(s.jwt, state)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid oauth state")
	}
	if claims.Provider != provider {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "oauth state was issued for another provider")
	}
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "authorization code required")
	}
	dojangCode := claims.DojangCode

	grant, err := s.exchange(ctx, provider, code)
	if err != nil {
		return nil, err
	}
	account, err := s.sealGrant(dojangCode, provider, grant)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, account); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment account")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"dojang_code": dojangCode,
		"provider":    string(provider),
		"account_id":  grant.AccountID,
	})
	s.logg.Info(ctx, "payment account connected")
	return statusFromModel(account), nil
}

// grant is a provider-neutral token response.
type grant struct {
	AccessToken  string
	RefreshToken string
	AccountID    string
	ExpiresAt    *time.Time
}

func (s *service) exchange(ctx context.Context, provider enums.PaymentProvider, code string) (*grant, error) {
	switch provider {
	case enums.PaymentProviderStripe:
		if s.stripe == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe is not enabled")
		}
		token, err := s.stripe.ExchangeCode(code)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe oauth exchange")
		}
		return &grant{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken, AccountID: token.StripeUserID}, nil
	case enums.PaymentProviderSquare:
		if s.square == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "square is not enabled")
		}
		token, err := s.square.ExchangeCode(ctx, code)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square oauth exchange")
		}
		return &grant{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken, AccountID: token.MerchantID, ExpiresAt: token.ExpiresAt}, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment provider")
	}
}

func (s *service) sealGrant(dojangCode string, provider enums.PaymentProvider, g *grant) (*models.OwnerBankAccount, error) {
	if g.AccessToken == "" || g.AccountID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "provider returned an incomplete grant")
	}
	access, err := s.sealer.Seal(g.AccessToken, dojangCode)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal access token")
	}
	account := &models.OwnerBankAccount{
		DojangCode:         dojangCode,
		Provider:           provider,
		AccessToken:        access,
		ConnectedAccountID: g.AccountID,
		TokenExpiresAt:     g.ExpiresAt,
	}
	if g.RefreshToken != "" {
		refresh, err := s.sealer.Seal(g.RefreshToken, dojangCode)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal refresh token")
		}
		account.RefreshToken = &refresh
	}
	return account, nil
}

func (s *service) Refresh(ctx context.Context, dojangCode string) error {
	account, err := s.repo.FindByDojang(ctx, dojangCode)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment account")
	}
	if account == nil {
		return pkgerrors.New(pkgerrors.CodeNotConnected, "no payment account connected")
	}
	return s.refreshAccount(ctx, account)
}

func (s *service) refreshAccount(ctx context.Context, account *models.OwnerBankAccount) error {
	if account.RefreshToken == nil || *account.RefreshToken == "" {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment account has no refresh token")
	}
	refreshToken, err := s.sealer.Open(*account.RefreshToken, account.DojangCode)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open refresh token")
	}

	var g *grant
	switch account.Provider {
	case enums.PaymentProviderStripe:
		if s.stripe == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "stripe is not enabled")
		}
		token, err := s.stripe.RefreshToken(refreshToken)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe token refresh")
		}
		g = &grant{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}
	case enums.PaymentProviderSquare:
		if s.square == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "square is not enabled")
		}
		token, err := s.square.RefreshToken(ctx, refreshToken)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square token refresh")
		}
		g = &grant{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken, ExpiresAt: token.ExpiresAt}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment provider")
	}
	if g.AccessToken == "" {
		return pkgerrors.New(pkgerrors.CodeDependency, "provider returned an empty access token")
	}
	if g.RefreshToken == "" {
		// Square keeps the refresh token stable across refreshes.
		g.RefreshToken = refreshToken
	}

	access, err := s.sealer.Seal(g.AccessToken, account.DojangCode)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal access token")
	}
	refresh, err := s.sealer.Seal(g.RefreshToken, account.DojangCode)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal refresh token")
	}
	if err := s.repo.UpdateTokens(ctx, account.DojangCode, TokenUpdate{
		AccessToken:    access,
		RefreshToken:   &refresh,
		TokenExpiresAt: g.ExpiresAt,
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotConnected, "payment account was disconnected")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refreshed tokens")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"dojang_code": account.DojangCode, "provider": string(account.Provider)})
	s.logg.Info(ctx, "payment account tokens refreshed")
	return nil
}

// RefreshExpiring refreshes every account whose token expires within the
// window. Failures are collected so one bad account does not block the rest.
func (s *service) RefreshExpiring(ctx context.Context, within time.Duration) (int, error) {
	accounts, err := s.repo.ListExpiring(ctx, s.now().UTC().Add(within), expiringBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expiring accounts")
	}
	var (
		refreshed int
		errs      error
	)
	for i := range accounts {
		if err := ctx.Err(); err != nil {
			return refreshed, multierr.Append(errs, err)
		}
		if err := s.refreshAccount(ctx, &accounts[i]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("dojang %s: %w", accounts[i].DojangCode, err))
			continue
		}
		refreshed++
	}
	return refreshed, errs
}

func (s *service) Status(ctx context.Context, dojangCode string) (*AccountStatus, error) {
	account, err := s.repo.FindByDojang(ctx, dojangCode)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment account")
	}
	if account == nil {
		return &AccountStatus{Connected: false}, nil
	}
	return statusFromModel(account), nil
}

func (s *service) Disconnect(ctx context.Context, dojangCode string) error {
	deleted, err := s.repo.Delete(ctx, dojangCode)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete payment account")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no payment account connected")
	}
	s.logg.Info(s.logg.WithDojangCode(ctx, dojangCode), "payment account disconnected")
	return nil
}

// DisconnectByConnectedAccount handles provider-side revocation and returns
// the affected dojang, or "" when the account is unknown.
func (s *service) DisconnectByConnectedAccount(ctx context.Context, provider enums.PaymentProvider, accountID string) (string, error) {
	account, err := s.repo.FindByConnectedAccount(ctx, provider, accountID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment account")
	}
	if account == nil {
		return "", nil
	}
	if _, err := s.repo.Delete(ctx, account.DojangCode); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete payment account")
	}
	return account.DojangCode, nil
}
