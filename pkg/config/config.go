package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Security     SecurityConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Square       SquareConfig
	Billing      BillingConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Billing.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"MATS_APP_ENV" required:"true"`
	Port         string   `envconfig:"MATS_APP_PORT" required:"true"`
	PublicURL    string   `envconfig:"MATS_APP_PUBLIC_URL" default:"http://localhost:8080"`
	LogLevel     string   `envconfig:"MATS_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"MATS_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"MATS_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MATS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MATS_DB_DSN"`
	Driver string `envconfig:"MATS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MATS_DB_HOST"`
	LegacyPort     int    `envconfig:"MATS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MATS_DB_USER"`
	LegacyPassword string `envconfig:"MATS_DB_PASSWORD"`
	LegacyName     string `envconfig:"MATS_DB_NAME"`
	LegacySSLMode  string `envconfig:"MATS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MATS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MATS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MATS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MATS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MATS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MATS_REDIS_ADDR"`
	Password     string        `envconfig:"MATS_REDIS_PASSWORD"`
	DB           int           `envconfig:"MATS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MATS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MATS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MATS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MATS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MATS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MATS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MATS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MATS_JWT_EXPIRATION_MINUTES" required:"true"`
	OAuthStateMinutes int    `envconfig:"MATS_JWT_OAUTH_STATE_MINUTES" default:"10"`
}

// OAuthStateTTL bounds how long a provider authorization round trip may take.
func (j JWTConfig) OAuthStateTTL() time.Duration {
	if j.OAuthStateMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(j.OAuthStateMinutes) * time.Minute
}

type SecurityConfig struct {
	// TokenSealingKey is a base64 encoded 32 byte key used to seal OAuth tokens at rest.
	TokenSealingKey string `envconfig:"MATS_TOKEN_SEALING_KEY" required:"true"`

	// PublicRateLimit caps unauthenticated requests per client IP within PublicRateWindow.
	PublicRateLimit  int           `envconfig:"MATS_PUBLIC_RATE_LIMIT" default:"120"`
	PublicRateWindow time.Duration `envconfig:"MATS_PUBLIC_RATE_WINDOW" default:"1m"`
}

func (s SecurityConfig) SealingKey() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s.TokenSealingKey))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", EnvTokenSealingKey, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", EnvTokenSealingKey, len(raw))
	}
	return raw, nil
}

type FeatureFlagsConfig struct {
	AutoMigrate       bool `envconfig:"MATS_AUTO_MIGRATE" default:"false"`
	RunSchedulerInAPI bool `envconfig:"MATS_RUN_SCHEDULER_IN_API" default:"true"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"MATS_STRIPE_API_KEY"`
	Secret        string `envconfig:"MATS_STRIPE_WEBHOOK_SECRET"`
	ConnectClient string `envconfig:"MATS_STRIPE_CONNECT_CLIENT_ID"`
	Env           string `envconfig:"MATS_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether the platform Stripe account is configured.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

type SquareConfig struct {
	ApplicationID     string `envconfig:"MATS_SQUARE_APPLICATION_ID"`
	ApplicationSecret string `envconfig:"MATS_SQUARE_APPLICATION_SECRET"`
	WebhookSecret     string `envconfig:"MATS_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	WebhookURL        string `envconfig:"MATS_SQUARE_WEBHOOK_URL"`
	Env               string `envconfig:"MATS_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Enabled reports whether the Square OAuth application is configured.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.ApplicationID) != "" && strings.TrimSpace(s.ApplicationSecret) != ""
}

type BillingConfig struct {
	Interval         time.Duration `envconfig:"MATS_BILLING_INTERVAL" default:"5m"`
	BatchSize        int           `envconfig:"MATS_BILLING_BATCH_SIZE" default:"200"`
	LeaseTTL         time.Duration `envconfig:"MATS_BILLING_LEASE_TTL" default:"2m"`
	Currency         string        `envconfig:"MATS_BILLING_CURRENCY" default:"usd"`
	Timezone         string        `envconfig:"MATS_BILLING_TIMEZONE" default:"UTC"`
	RetryMaxAttempts int           `envconfig:"MATS_BILLING_RETRY_MAX_ATTEMPTS" default:"5"`
	RetryBaseDelay   time.Duration `envconfig:"MATS_BILLING_RETRY_BASE_DELAY" default:"1h"`
	RetryMaxDelay    time.Duration `envconfig:"MATS_BILLING_RETRY_MAX_DELAY" default:"72h"`
	ChargesPerSecond float64       `envconfig:"MATS_BILLING_CHARGES_PER_SECOND" default:"10"`
}

func (b BillingConfig) Validate() error {
	if b.Interval <= 0 {
		return fmt.Errorf("%s must be positive", EnvBillingInterval)
	}
	if b.RetryMaxAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvBillingMaxAttempts)
	}
	if b.RetryMaxDelay < b.RetryBaseDelay {
		return fmt.Errorf("billing retry max delay %s is below base delay %s", b.RetryMaxDelay, b.RetryBaseDelay)
	}
	if _, err := time.LoadLocation(b.Timezone); err != nil {
		return fmt.Errorf("billing timezone %q: %w", b.Timezone, err)
	}
	return nil
}

// Location resolves the timezone used to decide which calendar day is "today".
func (b BillingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type CronConfig struct {
	TokenRefreshSchedule string        `envconfig:"MATS_CRON_TOKEN_REFRESH_SCHEDULE" default:"@every 1h"`
	TokenRefreshWindow   time.Duration `envconfig:"MATS_CRON_TOKEN_REFRESH_WINDOW" default:"72h"`
	LockTTL              time.Duration `envconfig:"MATS_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
