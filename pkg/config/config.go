package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "VENDELO"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv   = "VENDELO_APP_ENV"
	EnvPort     = "VENDELO_APP_PORT"
	EnvDBDSN    = "VENDELO_DB_DSN"
	EnvDBHost   = "VENDELO_DB_HOST"
	EnvDBUser   = "VENDELO_DB_USER"
	EnvDBName   = "VENDELO_DB_NAME"
	EnvRedisURL = "VENDELO_REDIS_URL"

	EnvJWTSecret  = "VENDELO_JWT_SECRET"
	EnvJWTIssuer  = "VENDELO_JWT_ISSUER"
	EnvJWTExpMins = "VENDELO_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID           = "VENDELO_GCP_PROJECT_ID"
	EnvPubSubDomainTopic      = "VENDELO_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubNotificationsSub = "VENDELO_PUBSUB_NOTIFICATIONS_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Distribution DistributionConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VENDELO_APP_ENV" required:"true"`
	Port         string `envconfig:"VENDELO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VENDELO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VENDELO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VENDELO_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VENDELO_DB_DSN"`
	Driver string `envconfig:"VENDELO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VENDELO_DB_HOST"`
	LegacyPort     int    `envconfig:"VENDELO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VENDELO_DB_USER"`
	LegacyPassword string `envconfig:"VENDELO_DB_PASSWORD"`
	LegacyName     string `envconfig:"VENDELO_DB_NAME"`
	LegacySSLMode  string `envconfig:"VENDELO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VENDELO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VENDELO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VENDELO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VENDELO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VENDELO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VENDELO_REDIS_ADDR"`
	Password     string        `envconfig:"VENDELO_REDIS_PASSWORD"`
	DB           int           `envconfig:"VENDELO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VENDELO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VENDELO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VENDELO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VENDELO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VENDELO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"VENDELO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"VENDELO_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"VENDELO_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VENDELO_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"VENDELO_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"VENDELO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"VENDELO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic               string `envconfig:"VENDELO_PUBSUB_DOMAIN_TOPIC" required:"true"`
	NotificationsSubscription string `envconfig:"VENDELO_PUBSUB_NOTIFICATIONS_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"VENDELO_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"VENDELO_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"VENDELO_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"VENDELO_OUTBOX_RETENTION_DAYS" default:"14"`

	IdempotencyTTL time.Duration `envconfig:"VENDELO_OUTBOX_IDEMPOTENCY_TTL" default:"24h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"VENDELO_CRON_INTERVAL" default:"1m"`
	LockKey  string        `envconfig:"VENDELO_CRON_LOCK_KEY" default:"vendelo:cron:lock"`
	LockTTL  time.Duration `envconfig:"VENDELO_CRON_LOCK_TTL" default:"5m"`
}

type DistributionConfig struct {
	QueueDrainBatch   int           `envconfig:"VENDELO_QUEUE_DRAIN_BATCH" default:"50"`
	QueueDrainTimeout time.Duration `envconfig:"VENDELO_QUEUE_DRAIN_TIMEOUT" default:"10s"`
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
