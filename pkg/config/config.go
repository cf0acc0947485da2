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
	Sendgrid     SendgridConfig
	Mail         MailConfig
	ExchangeRate ExchangeRateConfig
	PDF          PDFConfig
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
	if err := cfg.Eventing.validate(cfg.PubSub); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BUDGETDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"BUDGETDESK_APP_PORT" default:"8080"`
	PublicURL    string `envconfig:"BUDGETDESK_APP_PUBLIC_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"BUDGETDESK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BUDGETDESK_LOG_WARN_STACK" default:"false"`
	// MetricsAddr exposes /metrics from the background workers; empty disables.
	MetricsAddr string `envconfig:"BUDGETDESK_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BUDGETDESK_DB_DSN"`
	Driver string `envconfig:"BUDGETDESK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BUDGETDESK_DB_HOST"`
	LegacyPort     int    `envconfig:"BUDGETDESK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BUDGETDESK_DB_USER"`
	LegacyPassword string `envconfig:"BUDGETDESK_DB_PASSWORD"`
	LegacyName     string `envconfig:"BUDGETDESK_DB_NAME"`
	LegacySSLMode  string `envconfig:"BUDGETDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BUDGETDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BUDGETDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BUDGETDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BUDGETDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery is the duration above which a statement is logged at warn.
	SlowQuery time.Duration `envconfig:"BUDGETDESK_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BUDGETDESK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BUDGETDESK_REDIS_ADDR"`
	Password     string        `envconfig:"BUDGETDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"BUDGETDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BUDGETDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BUDGETDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BUDGETDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BUDGETDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BUDGETDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies bearer tokens minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"BUDGETDESK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BUDGETDESK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BUDGETDESK_JWT_EXPIRATION_MINUTES" default:"60"`
	LeewaySeconds     int    `envconfig:"BUDGETDESK_JWT_LEEWAY_SECONDS" default:"30"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"BUDGETDESK_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	MaxAgeSeconds  int      `envconfig:"BUDGETDESK_CORS_MAX_AGE" default:"300"`
}

type RateLimitConfig struct {
	CartWindow time.Duration `envconfig:"BUDGETDESK_RATE_LIMIT_CART_WINDOW" default:"1m"`
	CartLimit  int           `envconfig:"BUDGETDESK_RATE_LIMIT_CART_LIMIT" default:"120"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BUDGETDESK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BUDGETDESK_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	// Transport selects how outbox rows reach the side-effect handler: "local" or "pubsub".
	Transport            string        `envconfig:"BUDGETDESK_EVENTING_TRANSPORT" default:"local"`
	LocalWorkers         int           `envconfig:"BUDGETDESK_EVENTING_LOCAL_WORKERS" default:"4"`
	LocalQueueSize       int           `envconfig:"BUDGETDESK_EVENTING_LOCAL_QUEUE_SIZE" default:"256"`
	OutboxIdempotencyTTL time.Duration `envconfig:"BUDGETDESK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

func (e EventingConfig) UsePubSub() bool {
	return strings.EqualFold(strings.TrimSpace(e.Transport), TransportPubSub)
}

func (e EventingConfig) validate(ps PubSubConfig) error {
	switch strings.ToLower(strings.TrimSpace(e.Transport)) {
	case TransportLocal:
		return nil
	case TransportPubSub:
		if ps.BudgetTopic == "" || ps.BudgetSubscription == "" {
			return fmt.Errorf("%s and %s are required when transport is %q", EnvPubSubBudgetTopic, EnvPubSubBudgetSub, TransportPubSub)
		}
		return nil
	default:
		return fmt.Errorf("unsupported eventing transport %q", e.Transport)
	}
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BUDGETDESK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BUDGETDESK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BUDGETDESK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BudgetTopic        string `envconfig:"BUDGETDESK_PUBSUB_BUDGET_TOPIC" default:"budget-events"`
	BudgetSubscription string `envconfig:"BUDGETDESK_PUBSUB_BUDGET_SUBSCRIPTION" default:"budget-events-worker"`
	DLQTopic           string `envconfig:"BUDGETDESK_PUBSUB_DLQ_TOPIC"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BUDGETDESK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BUDGETDESK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BUDGETDESK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"BUDGETDESK_OUTBOX_RETENTION_DAYS" default:"30"`
	RetentionBatch int `envconfig:"BUDGETDESK_OUTBOX_RETENTION_BATCH" default:"1000"`
}

func (o OutboxConfig) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

type SendgridConfig struct {
	APIKey      string        `envconfig:"BUDGETDESK_SENDGRID_API_KEY"`
	BaseURL     string        `envconfig:"BUDGETDESK_SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
	DefaultFrom string        `envconfig:"BUDGETDESK_SENDGRID_FROM_EMAIL"`
	FromName    string        `envconfig:"BUDGETDESK_SENDGRID_FROM_NAME" default:"BudgetDesk"`
	Timeout     time.Duration `envconfig:"BUDGETDESK_SENDGRID_TIMEOUT" default:"30s"`
	MaxRetries  int           `envconfig:"BUDGETDESK_SENDGRID_MAX_RETRIES" default:"3"`
}

// Configured reports whether the SendGrid transport can send mail.
func (s SendgridConfig) Configured() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.DefaultFrom) != ""
}

type MailConfig struct {
	// AdminRecipients receive the new-budget email. Empty means every privileged user.
	AdminRecipients []string      `envconfig:"BUDGETDESK_MAIL_ADMIN_RECIPIENTS"`
	SendTimeout     time.Duration `envconfig:"BUDGETDESK_MAIL_SEND_TIMEOUT" default:"45s"`
}

type ExchangeRateConfig struct {
	URL      string        `envconfig:"BUDGETDESK_EXCHANGE_RATE_URL" default:"https://open.er-api.com/v6/latest/USD"`
	Currency string        `envconfig:"BUDGETDESK_EXCHANGE_RATE_CURRENCY" default:"ARS"`
	Timeout  time.Duration `envconfig:"BUDGETDESK_EXCHANGE_RATE_TIMEOUT" default:"3s"`
}

type PDFConfig struct {
	RemoteURL     string        `envconfig:"BUDGETDESK_PDF_CHROME_URL"`
	NoSandbox     bool          `envconfig:"BUDGETDESK_PDF_NO_SANDBOX" default:"true"`
	RenderTimeout time.Duration `envconfig:"BUDGETDESK_PDF_RENDER_TIMEOUT" default:"30s"`
	CompanyName   string        `envconfig:"BUDGETDESK_PDF_COMPANY_NAME" default:"BudgetDesk"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"BUDGETDESK_CRON_INTERVAL" default:"1h"`
	LeaseName  string        `envconfig:"BUDGETDESK_CRON_LEASE_NAME" default:"cron"`
	LeaseTTL   time.Duration `envconfig:"BUDGETDESK_CRON_LEASE_TTL" default:"55m"`
	JobTimeout time.Duration `envconfig:"BUDGETDESK_CRON_JOB_TIMEOUT" default:"10m"`
	StaleAfter time.Duration `envconfig:"BUDGETDESK_CRON_STALE_AFTER" default:"72h"`
	StaleBatch int           `envconfig:"BUDGETDESK_CRON_STALE_BATCH" default:"200"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:budgetdesk.db?cache=shared"
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
