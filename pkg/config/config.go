package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	OrderStore     OrderStoreConfig
	Printer        PrinterConfig
	Venue          VenueConfig
	Settings       SettingsConfig
	DB             DBConfig
	Redis          RedisConfig
	Events         EventsConfig
	Catalog        CatalogConfig
	LoginRateLimit LoginRateLimitConfig
	FeatureFlags   FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KOT_APP_ENV" required:"true"`
	Port         string `envconfig:"KOT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"KOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KOT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"KOT_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	return splitList(a.CORSOrigins)
}

// OrderStoreConfig points at the remote order/cart backend.
type OrderStoreConfig struct {
	Mode    string        `envconfig:"KOT_ORDER_STORE_MODE" default:"http"`
	BaseURL string        `envconfig:"KOT_ORDER_STORE_URL"`
	Timeout time.Duration `envconfig:"KOT_ORDER_STORE_TIMEOUT" default:"15s"`
}

type PrinterConfig struct {
	DefaultHost  string        `envconfig:"KOT_PRINTER_HOST" default:"192.168.1.100"`
	DefaultPort  int           `envconfig:"KOT_PRINTER_PORT" default:"9100"`
	DialTimeout  time.Duration `envconfig:"KOT_PRINTER_DIAL_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KOT_PRINTER_WRITE_TIMEOUT" default:"10s"`
	PaperWidth   int           `envconfig:"KOT_PRINTER_PAPER_WIDTH" default:"32"`
	Cut          bool          `envconfig:"KOT_PRINTER_CUT" default:"true"`
}

// VenueConfig describes the restaurant printed in ticket headers.
type VenueConfig struct {
	ID          string `envconfig:"KOT_VENUE_ID"`
	Name        string `envconfig:"KOT_VENUE_NAME" default:"ARUVI"`
	HeaderLines string `envconfig:"KOT_VENUE_HEADER_LINES" default:"Traditional Cuisine|123 Main Street|Salem, Tamil Nadu"`
	TableCount  int    `envconfig:"KOT_VENUE_TABLE_COUNT" default:"12"`
	Timezone    string `envconfig:"KOT_VENUE_TIMEZONE" default:"Asia/Kolkata"`
}

// Header returns the configured header lines below the venue name.
func (v VenueConfig) Header() []string {
	parts := strings.Split(v.HeaderLines, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Location resolves the venue timezone, falling back to UTC.
func (v VenueConfig) Location() *time.Location {
	if v.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(v.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type SettingsConfig struct {
	Backend string `envconfig:"KOT_SETTINGS_BACKEND" default:"db"`
}

type DBConfig struct {
	Driver string `envconfig:"KOT_DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"KOT_DB_DSN" default:"file:kot.db?_busy_timeout=5000"`

	MaxOpenConns    int           `envconfig:"KOT_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"KOT_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"KOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is optional; an empty URL and address disables redis backed
// features (catalog cache, login rate limit, redis settings backend).
type RedisConfig struct {
	URL          string        `envconfig:"KOT_REDIS_URL"`
	Address      string        `envconfig:"KOT_REDIS_ADDR"`
	Password     string        `envconfig:"KOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"KOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KOT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type EventsConfig struct {
	AMQPURL  string `envconfig:"KOT_EVENTS_AMQP_URL"`
	Exchange string `envconfig:"KOT_EVENTS_EXCHANGE" default:"kitchen.events"`
}

func (e EventsConfig) Enabled() bool {
	return strings.TrimSpace(e.AMQPURL) != ""
}

type CatalogConfig struct {
	CacheTTL time.Duration `envconfig:"KOT_CATALOG_CACHE_TTL" default:"5m"`
}

type LoginRateLimitConfig struct {
	Window     time.Duration `envconfig:"KOT_LOGIN_RATE_LIMIT_WINDOW" default:"1m"`
	PhoneLimit int           `envconfig:"KOT_LOGIN_RATE_LIMIT_PHONE_LIMIT" default:"5"`
	IPLimit    int           `envconfig:"KOT_LOGIN_RATE_LIMIT_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"KOT_AUTO_MIGRATE" default:"true"`
}

func (c *Config) validate() error {
	if !c.App.IsDev() && !c.App.IsProd() {
		return fmt.Errorf("%s must be %q or %q", EnvAppEnv, AppEnvDev, AppEnvProd)
	}

	switch strings.ToLower(c.OrderStore.Mode) {
	case OrderStoreModeHTTP:
		if strings.TrimSpace(c.OrderStore.BaseURL) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvOrderStoreURL, EnvOrderStoreMode, OrderStoreModeHTTP)
		}
	case OrderStoreModeMemory:
		if c.App.IsProd() {
			return fmt.Errorf("%s=%s is not allowed in %s", EnvOrderStoreMode, OrderStoreModeMemory, AppEnvProd)
		}
	default:
		return fmt.Errorf("%s must be %q or %q", EnvOrderStoreMode, OrderStoreModeHTTP, OrderStoreModeMemory)
	}

	switch strings.ToLower(c.DB.Driver) {
	case DBDriverSQLite, DBDriverPostgres:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvDBDriver, DBDriverSQLite, DBDriverPostgres)
	}

	switch strings.ToLower(c.Settings.Backend) {
	case SettingsBackendDB:
	case SettingsBackendRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("%s=%s requires %s", EnvSettingsBackend, SettingsBackendRedis, EnvRedisURL)
		}
	default:
		return fmt.Errorf("%s must be %q or %q", EnvSettingsBackend, SettingsBackendDB, SettingsBackendRedis)
	}

	if c.Printer.DefaultPort <= 0 || c.Printer.DefaultPort > 65535 {
		return fmt.Errorf("%s must be a valid TCP port", EnvPrinterPort)
	}
	if c.Printer.PaperWidth < 24 {
		return fmt.Errorf("%s must be at least 24 columns", EnvPrinterPaperWidth)
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
