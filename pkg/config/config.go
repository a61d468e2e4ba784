package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Commissions  CommissionsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Commissions.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MigrateConfig is the subset the migrate binary needs; it runs without the
// Redis, JWT and Pub/Sub settings the services require.
type MigrateConfig struct {
	Env      string `envconfig:"STOREFRONT_APP_ENV" default:"dev"`
	LogLevel string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	DB       DBConfig
}

func LoadMigrate() (*MigrateConfig, error) {
	var cfg MigrateConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing migrate config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies bearer tokens minted by the storefront identity service.
type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// RateLimitConfig throttles referral capture from the storefront.
type RateLimitConfig struct {
	ReferralWindow    time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_REFERRAL_WINDOW" default:"1m"`
	ReferralIPLimit   int           `envconfig:"STOREFRONT_RATE_LIMIT_REFERRAL_IP_LIMIT" default:"120"`
	ReferralCodeLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_REFERRAL_CODE_LIMIT" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"STOREFRONT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOREFRONT_GCP_PROJECT_ID" required:"true"`
}

type PubSubConfig struct {
	OrdersTopic         string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription  string `envconfig:"STOREFRONT_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	CommissionsTopic    string `envconfig:"STOREFRONT_PUBSUB_COMMISSIONS_TOPIC" required:"true"`
	MaxOutstandingMsgs  int    `envconfig:"STOREFRONT_PUBSUB_MAX_OUTSTANDING_MESSAGES" default:"10"`
	ReceiveNumGoroutine int    `envconfig:"STOREFRONT_PUBSUB_RECEIVE_GOROUTINES" default:"1"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`
}

// CommissionsConfig tunes the commission ledger.
type CommissionsConfig struct {
	DefaultPercentage string        `envconfig:"STOREFRONT_COMMISSION_DEFAULT_PERCENT" default:"5"`
	DriftEpsilon      string        `envconfig:"STOREFRONT_COMMISSION_DRIFT_EPSILON" default:"0.01"`
	TransitionRetries uint64        `envconfig:"STOREFRONT_COMMISSION_TRANSITION_RETRIES" default:"5"`
	RetryBaseDelay    time.Duration `envconfig:"STOREFRONT_COMMISSION_RETRY_BASE_DELAY" default:"25ms"`
	ReconcileInterval time.Duration `envconfig:"STOREFRONT_COMMISSION_RECONCILE_INTERVAL" default:"1h"`
}

// DefaultRate returns the configured default commission percentage.
func (c CommissionsConfig) DefaultRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.DefaultPercentage))
	if err != nil {
		return decimal.NewFromInt(5)
	}
	return rate
}

// Epsilon returns the tolerated difference between stored and recomputed balances.
func (c CommissionsConfig) Epsilon() decimal.Decimal {
	eps, err := decimal.NewFromString(strings.TrimSpace(c.DriftEpsilon))
	if err != nil {
		return decimal.New(1, -2)
	}
	return eps
}

func (c CommissionsConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.DefaultPercentage))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvCommissionDefaultPercent, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", EnvCommissionDefaultPercent)
	}
	eps, err := decimal.NewFromString(strings.TrimSpace(c.DriftEpsilon))
	if err != nil {
		return fmt.Errorf("%s: %w", EnvCommissionDriftEpsilon, err)
	}
	if eps.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvCommissionDriftEpsilon)
	}
	return nil
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
