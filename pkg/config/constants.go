package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "INVENTORY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	TransportPubSub = "pubsub"
	TransportKafka  = "kafka"
)

const (
	EnvAppEnv              = "INVENTORY_APP_ENV"
	EnvPort                = "INVENTORY_APP_PORT"
	EnvDBDSN               = "INVENTORY_DB_DSN"
	EnvDBHost              = "INVENTORY_DB_HOST"
	EnvDBUser              = "INVENTORY_DB_USER"
	EnvDBName              = "INVENTORY_DB_NAME"
	EnvRedisURL            = "INVENTORY_REDIS_URL"
	EnvJWTSecret           = "INVENTORY_JWT_SECRET"
	EnvJWTIssuer           = "INVENTORY_JWT_ISSUER"
	EnvUseSQLite           = "INVENTORY_USE_SQLITE"
	EnvEventTransport      = "INVENTORY_EVENT_TRANSPORT"
	EnvReservationTTL      = "INVENTORY_RESERVATION_TTL"
	EnvGuardMaxAttempts    = "INVENTORY_GUARD_MAX_ATTEMPTS"
	EnvKafkaBrokers        = "INVENTORY_KAFKA_BROKERS"
	EnvPubSubStockTopic    = "INVENTORY_PUBSUB_STOCK_TOPIC"
	EnvPubSubStockSub      = "INVENTORY_PUBSUB_STOCK_SUBSCRIPTION"
	EnvGCPProjectID        = "INVENTORY_GCP_PROJECT_ID"
	EnvDefaultLowThreshold = "INVENTORY_DEFAULT_LOW_STOCK_THRESHOLD"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
