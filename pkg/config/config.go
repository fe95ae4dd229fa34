package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "APPOINTLY"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv             = "APPOINTLY_APP_ENV"
	EnvPort               = "APPOINTLY_APP_PORT"
	EnvDBDSN              = "APPOINTLY_DB_DSN"
	EnvDBHost             = "APPOINTLY_DB_HOST"
	EnvDBUser             = "APPOINTLY_DB_USER"
	EnvDBName             = "APPOINTLY_DB_NAME"
	EnvRedisURL           = "APPOINTLY_REDIS_URL"
	EnvSessionSecret      = "APPOINTLY_SESSION_SECRET"
	EnvSessionIssuer      = "APPOINTLY_SESSION_ISSUER"
	EnvSessionTTLMinutes  = "APPOINTLY_SESSION_TTL_MINUTES"
	EnvTrialDuration      = "APPOINTLY_TRIAL_DURATION"
	EnvAccessCacheTTL     = "APPOINTLY_ACCESS_CACHE_TTL"
	EnvStripeAPIKey       = "APPOINTLY_STRIPE_API_KEY"
	EnvTelegramBotToken   = "APPOINTLY_TELEGRAM_BOT_TOKEN"
	EnvTelegramInitMaxAge = "APPOINTLY_TELEGRAM_INIT_DATA_MAX_AGE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Session      SessionConfig
	Access       AccessConfig
	Stripe       StripeConfig
	Telegram     TelegramConfig
	Worker       WorkerConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Access.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"APPOINTLY_APP_ENV" required:"true"`
	Port         string   `envconfig:"APPOINTLY_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"APPOINTLY_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"APPOINTLY_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"APPOINTLY_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"APPOINTLY_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"APPOINTLY_DB_DSN"`
	Driver string `envconfig:"APPOINTLY_DB_DRIVER" default:"postgres"` // postgres|sqlite

	LegacyHost     string `envconfig:"APPOINTLY_DB_HOST"`
	LegacyPort     int    `envconfig:"APPOINTLY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"APPOINTLY_DB_USER"`
	LegacyPassword string `envconfig:"APPOINTLY_DB_PASSWORD"`
	LegacyName     string `envconfig:"APPOINTLY_DB_NAME"`
	LegacySSLMode  string `envconfig:"APPOINTLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"APPOINTLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"APPOINTLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"APPOINTLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"APPOINTLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"APPOINTLY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"APPOINTLY_REDIS_ADDR"`
	Password     string        `envconfig:"APPOINTLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"APPOINTLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"APPOINTLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"APPOINTLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"APPOINTLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"APPOINTLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"APPOINTLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SessionConfig drives session token signing and the cookie that carries it.
type SessionConfig struct {
	Secret       string `envconfig:"APPOINTLY_SESSION_SECRET" required:"true"`
	Issuer       string `envconfig:"APPOINTLY_SESSION_ISSUER" required:"true"`
	TTLMinutes   int    `envconfig:"APPOINTLY_SESSION_TTL_MINUTES" default:"10080"`
	CookieName   string `envconfig:"APPOINTLY_SESSION_COOKIE_NAME" default:"appointly_session"`
	CookieDomain string `envconfig:"APPOINTLY_SESSION_COOKIE_DOMAIN"`
	SecureCookie bool   `envconfig:"APPOINTLY_SESSION_SECURE_COOKIE" default:"true"`
}

// TTL returns the session token lifetime.
func (s SessionConfig) TTL() time.Duration {
	if s.TTLMinutes <= 0 {
		return 0
	}
	return time.Duration(s.TTLMinutes) * time.Minute
}

// AccessConfig carries the subscription gate tunables.
type AccessConfig struct {
	TrialDuration    time.Duration `envconfig:"APPOINTLY_TRIAL_DURATION" default:"336h"`
	CacheTTL         time.Duration `envconfig:"APPOINTLY_ACCESS_CACHE_TTL" default:"5m"`
	ReconcileLockTTL time.Duration `envconfig:"APPOINTLY_ACCESS_RECONCILE_LOCK_TTL" default:"15s"`
}

func (a AccessConfig) validate() error {
	if a.TrialDuration <= 0 {
		return fmt.Errorf("%s must be positive", EnvTrialDuration)
	}
	if a.CacheTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvAccessCacheTTL)
	}
	return nil
}

type StripeConfig struct {
	APIKey string `envconfig:"APPOINTLY_STRIPE_API_KEY"`
	Env    string `envconfig:"APPOINTLY_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether tier-3 reconciliation has credentials to work with.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

type TelegramConfig struct {
	BotToken        string        `envconfig:"APPOINTLY_TELEGRAM_BOT_TOKEN" required:"true"`
	InitDataMaxAge  time.Duration `envconfig:"APPOINTLY_TELEGRAM_INIT_DATA_MAX_AGE" default:"24h"`
	LoginRateWindow time.Duration `envconfig:"APPOINTLY_LOGIN_RATE_WINDOW" default:"1m"`
	LoginRatePerIP  int           `envconfig:"APPOINTLY_LOGIN_RATE_PER_IP" default:"20"`
}

// WorkerConfig drives cmd/worker.
type WorkerConfig struct {
	Interval       time.Duration `envconfig:"APPOINTLY_WORKER_INTERVAL" default:"15m"`
	JobTimeout     time.Duration `envconfig:"APPOINTLY_WORKER_JOB_TIMEOUT" default:"5m"`
	ReconcileBatch int           `envconfig:"APPOINTLY_WORKER_RECONCILE_BATCH" default:"250"`
	MetricsPort    string        `envconfig:"APPOINTLY_WORKER_METRICS_PORT" default:"9102"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"APPOINTLY_AUTO_MIGRATE" default:"false"`
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
