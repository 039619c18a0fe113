package config

const (
	EnvPrefix = "KOT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "KOT_APP_ENV"
	EnvPort     = "KOT_APP_PORT"
	EnvLogLevel = "KOT_LOG_LEVEL"

	EnvOrderStoreURL     = "KOT_ORDER_STORE_URL"
	EnvOrderStoreMode    = "KOT_ORDER_STORE_MODE"
	EnvOrderStoreTimeout = "KOT_ORDER_STORE_TIMEOUT"

	EnvPrinterHost         = "KOT_PRINTER_HOST"
	EnvPrinterPort         = "KOT_PRINTER_PORT"
	EnvPrinterDialTimeout  = "KOT_PRINTER_DIAL_TIMEOUT"
	EnvPrinterWriteTimeout = "KOT_PRINTER_WRITE_TIMEOUT"
	EnvPrinterPaperWidth   = "KOT_PRINTER_PAPER_WIDTH"

	EnvVenueID         = "KOT_VENUE_ID"
	EnvVenueName       = "KOT_VENUE_NAME"
	EnvVenueHeader     = "KOT_VENUE_HEADER_LINES"
	EnvVenueTableCount = "KOT_VENUE_TABLE_COUNT"
	EnvVenueTimezone   = "KOT_VENUE_TIMEZONE"

	EnvSettingsBackend = "KOT_SETTINGS_BACKEND"

	EnvDBDriver = "KOT_DB_DRIVER"
	EnvDBDSN    = "KOT_DB_DSN"

	EnvRedisURL = "KOT_REDIS_URL"

	EnvEventsAMQPURL  = "KOT_EVENTS_AMQP_URL"
	EnvEventsExchange = "KOT_EVENTS_EXCHANGE"

	EnvCatalogCacheTTL = "KOT_CATALOG_CACHE_TTL"

	EnvAutoMigrate = "KOT_AUTO_MIGRATE"
)

const (
	OrderStoreModeHTTP   = "http"
	OrderStoreModeMemory = "memory"

	SettingsBackendDB    = "db"
	SettingsBackendRedis = "redis"

	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"
)
