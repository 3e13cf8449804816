package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/tournevent/uadirectory/pkg/carrier"
	"go.opentelemetry.io/otel/attribute"
)

// MaxSyncBatchSize bounds a single directory write.
const MaxSyncBatchSize = 200

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Database
	DBType     string `envconfig:"DB_TYPE" default:"sqlite"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"uadirectory.db"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"uadirectory"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	// Directory
	DefaultCarrier   string        `envconfig:"DEFAULT_CARRIER" default:"nova_poshta"`
	LanguagePriority string        `envconfig:"LANGUAGE_PRIORITY" default:"uk,en,ru"`
	AutoRefresh      bool          `envconfig:"AUTO_REFRESH" default:"true"`
	RefreshInterval  time.Duration `envconfig:"REFRESH_INTERVAL" default:"24h"`
	InitialSyncDelay time.Duration `envconfig:"INITIAL_SYNC_DELAY" default:"10s"`
	ManualSyncDelay  time.Duration `envconfig:"MANUAL_SYNC_DELAY" default:"10s"`
	SyncBatchSize    int           `envconfig:"SYNC_BATCH_SIZE" default:"200"`

	// Nova Poshta
	NovaPoshtaAPIKey   string `envconfig:"NOVAPOSHTA_API_KEY"`
	NovaPoshtaBaseURL  string `envconfig:"NOVAPOSHTA_BASE_URL" default:"https://api.novaposhta.ua/v2.0/json/"`
	NovaPoshtaEnabled  bool   `envconfig:"NOVAPOSHTA_ENABLED" default:"true"`
	NovaPoshtaUseMock  bool   `envconfig:"NOVAPOSHTA_USE_MOCK" default:"false"`
	NovaPoshtaPageSize int    `envconfig:"NOVAPOSHTA_PAGE_SIZE" default:"100"`

	// Ukrposhta
	UkrposhtaAPIKey  string `envconfig:"UKRPOSHTA_API_KEY"`
	UkrposhtaEnabled bool   `envconfig:"UKRPOSHTA_ENABLED" default:"true"`

	// Cache
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"10m"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"uadirectory"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from an optional .env file and environment variables.
func Load() (*Config, error) {
	// Variables already present in the environment win over .env entries.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks and normalises the loaded values.
func (c *Config) Validate() error {
	switch c.DBType {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_TYPE %q: expected sqlite or postgres", c.DBType)
	}
	if c.SyncBatchSize <= 0 || c.SyncBatchSize > MaxSyncBatchSize {
		c.SyncBatchSize = MaxSyncBatchSize
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	return nil
}

// DSN returns the driver data source name for the configured database.
func (c *Config) DSN() string {
	if c.DBType == "postgres" {
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.DBUser, c.DBPassword),
			Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
			Path:     c.DBName,
			RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
		}
		return u.String()
	}
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", c.SQLitePath)
}

// CarrierSettings returns the per-carrier installation settings.
func (c *Config) CarrierSettings() map[string]carrier.Settings {
	return map[string]carrier.Settings{
		"nova_poshta": {
			Enabled:  c.NovaPoshtaEnabled,
			APIKey:   c.NovaPoshtaAPIKey,
			BaseURL:  c.NovaPoshtaBaseURL,
			PageSize: c.NovaPoshtaPageSize,
			UseMock:  c.NovaPoshtaUseMock,
		},
		"ukrposhta": {
			Enabled: c.UkrposhtaEnabled,
			APIKey:  c.UkrposhtaAPIKey,
		},
	}
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("db.system", c.DBType),
		attribute.String("directory.default_carrier", c.DefaultCarrier),
		attribute.Bool("directory.auto_refresh", c.AutoRefresh),
		attribute.Bool("nova_poshta.enabled", c.NovaPoshtaEnabled),
		attribute.Bool("ukrposhta.enabled", c.UkrposhtaEnabled),
	}
}
