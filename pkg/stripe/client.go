package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/oauth"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/paymentmethod"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/config"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	// AuthorizeURL is the Stripe Connect OAuth authorize endpoint.
	AuthorizeURL = "https://connect.stripe.com/oauth/authorize"
	// TokenURL is the Stripe Connect OAuth token endpoint.
	TokenURL = "https://connect.stripe.com/oauth/token"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errClientIDRequired = errors.New("stripe connect client id is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client is the platform Stripe account. Calls on behalf of a dojang are
// scoped with the Stripe-Account header of its connected account.
type Client struct {
	environment   string
	signingSecret string
	clientID      string
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}
	clientID := strings.TrimSpace(cfg.ConnectClient)
	if clientID == "" {
		return nil, errClientIDRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		environment:   env,
		signingSecret: signingSecret,
		clientID:      clientID,
	}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// ConnectClientID returns the ca_ identifier used to build authorize URLs.
func (c *Client) ConnectClientID() string {
	if c == nil {
		return ""
	}
	return c.clientID
}

// CreatePaymentIntent creates and confirms an off-session payment intent.
func (c *Client) CreatePaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return paymentintent.New(params)
}

// CreateCustomer creates a customer on the account selected by params.
func (c *Client) CreateCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return customer.New(params)
}

// AttachPaymentMethod attaches a payment method to a customer.
func (c *Client) AttachPaymentMethod(id string, params *stripe.PaymentMethodAttachParams) (*stripe.PaymentMethod, error) {
	return paymentmethod.Attach(id, params)
}

// DetachPaymentMethod detaches a payment method from its customer.
func (c *Client) DetachPaymentMethod(id string, params *stripe.PaymentMethodDetachParams) (*stripe.PaymentMethod, error) {
	return paymentmethod.Detach(id, params)
}

// ExchangeCode completes the Connect OAuth flow.
func (c *Client) ExchangeCode(code string) (*stripe.OAuthToken, error) {
	return oauth.New(&stripe.OAuthTokenParams{
		GrantType: stripe.String("authorization_code"),
		Code:      stripe.String(code),
	})
}

// RefreshToken exchanges a Connect refresh token for a new token pair.
func (c *Client) RefreshToken(refreshToken string) (*stripe.OAuthToken, error) {
	return oauth.New(&stripe.OAuthTokenParams{
		GrantType:    stripe.String("refresh_token"),
		RefreshToken: stripe.String(refreshToken),
	})
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
