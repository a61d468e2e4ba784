package config

// EnvPrefix scopes envconfig lookups; explicit tags carry the full names.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBPort = "STOREFRONT_DB_PORT"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBPass = "STOREFRONT_DB_PASSWORD"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvCORSAllowedOrigins = "STOREFRONT_CORS_ALLOWED_ORIGINS"

	EnvGCPProjectID = "STOREFRONT_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic      = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub        = "STOREFRONT_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubCommissionsTopic = "STOREFRONT_PUBSUB_COMMISSIONS_TOPIC"

	EnvCommissionDefaultPercent = "STOREFRONT_COMMISSION_DEFAULT_PERCENT"
	EnvCommissionDriftEpsilon   = "STOREFRONT_COMMISSION_DRIFT_EPSILON"
	EnvCommissionReconcileEvery = "STOREFRONT_COMMISSION_RECONCILE_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
