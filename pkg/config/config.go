package config

import (
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
	FeatureFlags FeatureFlagsConfig
	Payments     PaymentsConfig
	Square       SquareConfig
	Pricing      PricingConfig
	Handoff      HandoffConfig
	Dispatch     DispatchConfig
	GoogleMaps   GoogleMapsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BAGFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"BAGFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BAGFLOW_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"BAGFLOW_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"BAGFLOW_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"BAGFLOW_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"BAGFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BAGFLOW_DB_DSN"`
	Driver string `envconfig:"BAGFLOW_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BAGFLOW_DB_HOST"`
	Port     int    `envconfig:"BAGFLOW_DB_PORT" default:"5432"`
	User     string `envconfig:"BAGFLOW_DB_USER"`
	Password string `envconfig:"BAGFLOW_DB_PASSWORD"`
	Name     string `envconfig:"BAGFLOW_DB_NAME"`
	SSLMode  string `envconfig:"BAGFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAGFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAGFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAGFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAGFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BAGFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BAGFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"BAGFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAGFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAGFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAGFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAGFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAGFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAGFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only covers verification; tokens are minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"BAGFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BAGFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BAGFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BAGFLOW_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BAGFLOW_AUTO_MIGRATE" default:"false"`
}

type PaymentsConfig struct {
	Provider           string        `envconfig:"BAGFLOW_PAYMENTS_PROVIDER" default:"square"`
	CautionAmountCents int64         `envconfig:"BAGFLOW_PAYMENTS_CAUTION_CENTS" default:"10000"`
	Currency           string        `envconfig:"BAGFLOW_PAYMENTS_CURRENCY" default:"USD"`
	GatewayTimeout     time.Duration `envconfig:"BAGFLOW_PAYMENTS_GATEWAY_TIMEOUT" default:"15s"`
	RetryAttempts      int           `envconfig:"BAGFLOW_PAYMENTS_RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay     time.Duration `envconfig:"BAGFLOW_PAYMENTS_RETRY_BASE_DELAY" default:"200ms"`
	BreakerFailures    uint32        `envconfig:"BAGFLOW_PAYMENTS_BREAKER_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"BAGFLOW_PAYMENTS_BREAKER_OPEN_TIMEOUT" default:"30s"`
	WebhookDedupeTTL   time.Duration `envconfig:"BAGFLOW_PAYMENTS_WEBHOOK_DEDUPE_TTL" default:"720h"`
}

// UsesFakeGateway reports whether the in-memory gateway should back the ledger.
func (p PaymentsConfig) UsesFakeGateway() bool {
	return strings.EqualFold(strings.TrimSpace(p.Provider), PaymentsProviderFake)
}

type SquareConfig struct {
	Env                 string `envconfig:"BAGFLOW_SQUARE_ENV" default:"sandbox"`
	AccessToken         string `envconfig:"BAGFLOW_SQUARE_ACCESS_TOKEN"`
	LocationID          string `envconfig:"BAGFLOW_SQUARE_LOCATION_ID"`
	WebhookSignatureKey string `envconfig:"BAGFLOW_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	NotificationURL     string `envconfig:"BAGFLOW_SQUARE_NOTIFICATION_URL"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// PricingConfig holds courier fee parameters in cents.
type PricingConfig struct {
	ShippingBaseCents  int64 `envconfig:"BAGFLOW_PRICING_SHIPPING_BASE_CENTS" default:"1000"`
	ShippingPerKmCents int64 `envconfig:"BAGFLOW_PRICING_SHIPPING_PER_KM_CENTS" default:"100"`
	ShippingMinCents   int64 `envconfig:"BAGFLOW_PRICING_SHIPPING_MIN_CENTS" default:"1500"`
}

type HandoffConfig struct {
	TokenTTL       time.Duration `envconfig:"BAGFLOW_HANDOFF_TOKEN_TTL" default:"72h"`
	VerifyAttempts int           `envconfig:"BAGFLOW_HANDOFF_VERIFY_ATTEMPTS" default:"5"`
	VerifyWindow   time.Duration `envconfig:"BAGFLOW_HANDOFF_VERIFY_WINDOW" default:"15m"`
}

type DispatchConfig struct {
	Channel        string        `envconfig:"BAGFLOW_DISPATCH_CHANNEL" default:"couriers-online"`
	RebroadcastAge time.Duration `envconfig:"BAGFLOW_DISPATCH_REBROADCAST_AGE" default:"5m"`
	WriteTimeout   time.Duration `envconfig:"BAGFLOW_DISPATCH_WRITE_TIMEOUT" default:"10s"`
	PingInterval   time.Duration `envconfig:"BAGFLOW_DISPATCH_PING_INTERVAL" default:"30s"`
	SendBuffer     int           `envconfig:"BAGFLOW_DISPATCH_SEND_BUFFER" default:"32"`
}

type GoogleMapsConfig struct {
	APIKey string `envconfig:"BAGFLOW_GOOGLE_MAPS_API_KEY"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BAGFLOW_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"BAGFLOW_PUBSUB_DOMAIN_TOPIC" default:"bag-events"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"BAGFLOW_KAFKA_BROKERS"`
	Topic   string   `envconfig:"BAGFLOW_KAFKA_TOPIC" default:"bag-events"`
}

type OutboxConfig struct {
	Sink           string `envconfig:"BAGFLOW_OUTBOX_SINK" default:"kafka"`
	BatchSize      int    `envconfig:"BAGFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"BAGFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"BAGFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (o OutboxConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(o.Sink)) {
	case OutboxSinkKafka, OutboxSinkPubSub:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvOutboxSink, OutboxSinkKafka, OutboxSinkPubSub)
	}
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"BAGFLOW_CRON_INTERVAL" default:"1m"`
	LockTTL           time.Duration `envconfig:"BAGFLOW_CRON_LOCK_TTL" default:"5m"`
	StalePaymentAfter time.Duration `envconfig:"BAGFLOW_CRON_STALE_PAYMENT_AFTER" default:"10m"`
	BatchSize         int           `envconfig:"BAGFLOW_CRON_BATCH_SIZE" default:"100"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if sqlite {
		db.Driver = "sqlite"
	}
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:bagflow.db?cache=shared"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
