package config

// EnvPrefix is empty because every field carries its full MATS_* name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "MATS_APP_ENV"
	EnvPort     = "MATS_APP_PORT"
	EnvLogLevel = "MATS_LOG_LEVEL"

	EnvDBDSN  = "MATS_DB_DSN"
	EnvDBHost = "MATS_DB_HOST"
	EnvDBUser = "MATS_DB_USER"
	EnvDBName = "MATS_DB_NAME"

	EnvRedisURL = "MATS_REDIS_URL"

	EnvJWTSecret  = "MATS_JWT_SECRET"
	EnvJWTIssuer  = "MATS_JWT_ISSUER"
	EnvJWTExpMins = "MATS_JWT_EXPIRATION_MINUTES"

	EnvTokenSealingKey = "MATS_TOKEN_SEALING_KEY"

	EnvBillingInterval    = "MATS_BILLING_INTERVAL"
	EnvBillingMaxAttempts = "MATS_BILLING_RETRY_MAX_ATTEMPTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
