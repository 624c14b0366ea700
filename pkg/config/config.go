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
	Eventing     EventingConfig
	Inventory    InventoryConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	HTTP         HTTPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"INVENTORY_APP_ENV" required:"true"`
	Port         string `envconfig:"INVENTORY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"INVENTORY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"INVENTORY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// HTTPConfig carries the API surface knobs.
type HTTPConfig struct {
	AllowedOrigins  []string      `envconfig:"INVENTORY_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	RateLimit       int64         `envconfig:"INVENTORY_HTTP_RATE_LIMIT" default:"600"`
	RateLimitWindow time.Duration `envconfig:"INVENTORY_HTTP_RATE_LIMIT_WINDOW" default:"1m"`
	ShutdownTimeout time.Duration `envconfig:"INVENTORY_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type ServiceConfig struct {
	Kind string `envconfig:"INVENTORY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"INVENTORY_DB_DSN"`
	Driver string `envconfig:"INVENTORY_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"INVENTORY_DB_HOST"`
	Port     int    `envconfig:"INVENTORY_DB_PORT" default:"5432"`
	User     string `envconfig:"INVENTORY_DB_USER"`
	Password string `envconfig:"INVENTORY_DB_PASSWORD"`
	Name     string `envconfig:"INVENTORY_DB_NAME"`
	SSLMode  string `envconfig:"INVENTORY_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"INVENTORY_SQLITE_PATH" default:"inventory.db"`

	MaxOpenConns    int           `envconfig:"INVENTORY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"INVENTORY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"INVENTORY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"INVENTORY_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"INVENTORY_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"INVENTORY_REDIS_URL"`
	Address      string        `envconfig:"INVENTORY_REDIS_ADDR"`
	Password     string        `envconfig:"INVENTORY_REDIS_PASSWORD"`
	DB           int           `envconfig:"INVENTORY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"INVENTORY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"INVENTORY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"INVENTORY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"INVENTORY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"INVENTORY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies bearer tokens minted by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"INVENTORY_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"INVENTORY_JWT_ISSUER" required:"true"`
	// ExpirationMinutes bounds tokens minted locally for service accounts.
	ExpirationMinutes int `envconfig:"INVENTORY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"INVENTORY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"INVENTORY_AUTO_MIGRATE" default:"false"`
	StockCache  bool `envconfig:"INVENTORY_STOCK_CACHE" default:"true"`
}

type EventingConfig struct {
	Transport            string        `envconfig:"INVENTORY_EVENT_TRANSPORT" default:"pubsub"`
	OutboxIdempotencyTTL time.Duration `envconfig:"INVENTORY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

func (e EventingConfig) validate() error {
	switch e.TransportKind() {
	case TransportPubSub, TransportKafka:
		return nil
	default:
		return fmt.Errorf("unsupported event transport %q", e.Transport)
	}
}

// TransportKind returns the normalized transport name.
func (e EventingConfig) TransportKind() string {
	kind := strings.ToLower(strings.TrimSpace(e.Transport))
	if kind == "" {
		return TransportPubSub
	}
	return kind
}

// InventoryConfig carries the reservation engine policy knobs.
type InventoryConfig struct {
	ReservationTTL           time.Duration `envconfig:"INVENTORY_RESERVATION_TTL" default:"30m"`
	DefaultLowStockThreshold int           `envconfig:"INVENTORY_DEFAULT_LOW_STOCK_THRESHOLD" default:"5"`
	MaxAttempts              int           `envconfig:"INVENTORY_GUARD_MAX_ATTEMPTS" default:"5"`
	RetryBaseDelay           time.Duration `envconfig:"INVENTORY_GUARD_RETRY_BASE_DELAY" default:"10ms"`
	RetryMaxDelay            time.Duration `envconfig:"INVENTORY_GUARD_RETRY_MAX_DELAY" default:"250ms"`
	SweepInterval            time.Duration `envconfig:"INVENTORY_SWEEP_INTERVAL" default:"1m"`
	SweepBatchSize           int           `envconfig:"INVENTORY_SWEEP_BATCH_SIZE" default:"200"`
	MaintenanceInterval      time.Duration `envconfig:"INVENTORY_MAINTENANCE_INTERVAL" default:"24h"`
	CacheTTL                 time.Duration `envconfig:"INVENTORY_STOCK_CACHE_TTL" default:"5m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"INVENTORY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"INVENTORY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"INVENTORY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	StockTopic        string `envconfig:"INVENTORY_PUBSUB_STOCK_TOPIC" default:"inventory-stock-events"`
	StockSubscription string `envconfig:"INVENTORY_PUBSUB_STOCK_SUBSCRIPTION" default:"inventory-stock-events-worker"`
	AlertTopic        string `envconfig:"INVENTORY_PUBSUB_ALERT_TOPIC" default:"inventory-alerts"`
	AlertSubscription string `envconfig:"INVENTORY_PUBSUB_ALERT_SUBSCRIPTION" default:"inventory-alerts-worker"`
	// OrderedPublishing keys messages by product so subscribers see one
	// product's events in commit order.
	OrderedPublishing bool `envconfig:"INVENTORY_PUBSUB_ORDERED_PUBLISHING" default:"true"`
}

type KafkaConfig struct {
	Brokers    []string      `envconfig:"INVENTORY_KAFKA_BROKERS"`
	StockTopic string        `envconfig:"INVENTORY_KAFKA_STOCK_TOPIC" default:"inventory.stock-events"`
	AlertTopic string        `envconfig:"INVENTORY_KAFKA_ALERT_TOPIC" default:"inventory.alerts"`
	GroupID    string        `envconfig:"INVENTORY_KAFKA_GROUP_ID" default:"inventory-worker"`
	BatchBytes int64         `envconfig:"INVENTORY_KAFKA_BATCH_BYTES" default:"1048576"`
	Timeout    time.Duration `envconfig:"INVENTORY_KAFKA_TIMEOUT" default:"10s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"INVENTORY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"INVENTORY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"INVENTORY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"INVENTORY_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range splitDBEnvVars {
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
