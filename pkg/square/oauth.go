package square

import (
	"context"
	"errors"
	"strings"
	"time"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/config"
	pkgerrors "github.com/jaehyunUm/mats-backend-sub000/pkg/errors"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)

var authorizeURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com/oauth2/authorize",
	productionEnv: "https://connect.squareup.com/oauth2/authorize",
}

var errApplicationRequired = errors.New("square application id and secret are required")

// Token is the credential set Square hands back from the token endpoint.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	MerchantID   string
}

// OAuthClient exchanges and refreshes merchant credentials with the platform application.
type OAuthClient struct {
	sdk               *sqclient.Client
	applicationID     string
	applicationSecret string
	environment       string
	logger            *logger.Logger
}

func NewOAuthClient(_ context.Context, cfg config.SquareConfig, logg *logger.Logger) (*OAuthClient, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := NormalizeEnv(cfg.Env)
	if err != nil {
		return nil, err
	}
	appID := strings.TrimSpace(cfg.ApplicationID)
	secret := strings.TrimSpace(cfg.ApplicationSecret)
	if appID == "" || secret == "" {
		return nil, errApplicationRequired
	}
	return &OAuthClient{
		sdk:               sqclient.NewClient(sqoption.WithBaseURL(baseURLs[env])),
		applicationID:     appID,
		applicationSecret: secret,
		environment:       env,
		logger:            logg,
	}, nil
}

func (c *OAuthClient) Environment() string { return c.environment }

func (c *OAuthClient) ApplicationID() string { return c.applicationID }

// AuthorizeURL is the Square consent page for the configured environment.
func (c *OAuthClient) AuthorizeURL() string { return authorizeURLs[c.environment] }

func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "authorization code is required")
	}
	return c.obtain(ctx, &sq.ObtainTokenRequest{
		ClientID:     c.applicationID,
		ClientSecret: ptrString(c.applicationSecret),
		Code:         ptrString(code),
		GrantType:    grantAuthorizationCode,
	}, "exchange_code")
}

func (c *OAuthClient) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refresh token is required")
	}
	return c.obtain(ctx, &sq.ObtainTokenRequest{
		ClientID:     c.applicationID,
		ClientSecret: ptrString(c.applicationSecret),
		RefreshToken: ptrString(refreshToken),
		GrantType:    grantRefreshToken,
	}, "refresh_token")
}

func (c *OAuthClient) obtain(ctx context.Context, req *sq.ObtainTokenRequest, op string) (*Token, error) {
	ctx = c.logger.WithFields(ctx, map[string]any{"operation": op, "environment": c.environment})
	resp, err := c.sdk.OAuth.ObtainToken(ctx, req)
	if err != nil {
		c.logger.Error(ctx, "square oauth token request failed", err)
		return nil, mapSquareError(err, op)
	}
	token := &Token{
		AccessToken:  stringValue(resp.GetAccessToken()),
		RefreshToken: stringValue(resp.GetRefreshToken()),
		MerchantID:   stringValue(resp.GetMerchantID()),
		ExpiresAt:    parseExpiry(stringValue(resp.GetExpiresAt())),
	}
	if token.AccessToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned an empty access token")
	}
	c.logger.Debug(ctx, "square oauth token obtained")
	return token, nil
}

func parseExpiry(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}
