package config

const (
	EnvPrefix = "BAGFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	PaymentsProviderSquare = "square"
	PaymentsProviderFake   = "fake"

	OutboxSinkKafka  = "kafka"
	OutboxSinkPubSub = "pubsub"
)

const (
	EnvAppEnv      = "BAGFLOW_APP_ENV"
	EnvPort        = "BAGFLOW_APP_PORT"
	EnvLogLevel    = "BAGFLOW_LOG_LEVEL"
	EnvDBDSN       = "BAGFLOW_DB_DSN"
	EnvDBHost      = "BAGFLOW_DB_HOST"
	EnvDBUser      = "BAGFLOW_DB_USER"
	EnvDBPassword  = "BAGFLOW_DB_PASSWORD"
	EnvDBName      = "BAGFLOW_DB_NAME"
	EnvUseSQLite   = "BAGFLOW_USE_SQLITE"
	EnvRedisURL    = "BAGFLOW_REDIS_URL"
	EnvJWTSecret   = "BAGFLOW_JWT_SECRET"
	EnvJWTIssuer   = "BAGFLOW_JWT_ISSUER"
	EnvCautionCts  = "BAGFLOW_PAYMENTS_CAUTION_CENTS"
	EnvProvider    = "BAGFLOW_PAYMENTS_PROVIDER"
	EnvOutboxSink  = "BAGFLOW_OUTBOX_SINK"
	EnvKafkaBroker = "BAGFLOW_KAFKA_BROKERS"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
