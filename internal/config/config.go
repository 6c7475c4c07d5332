// Package config loads the service configuration from environment variables.
// Every setting has a default except the database URL, and the result is
// validated on startup so misconfiguration fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Import    ImportConfig
	Rate      RateLimitConfig
	Logging   LoggingConfig
	Retention RetentionConfig
	Inbox     InboxConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout stays 0 so progress streams are not cut off.
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// TrustedProxies lists CIDRs whose X-Forwarded-For headers are honoured.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// DatabaseConfig holds connection pool settings.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`
	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// StatementTimeout bounds each insert issued by a sink.
	StatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT" default:"30s"`
}

// ImportConfig holds import run settings. The zero-able values here become
// the service's default ImportOptions.
type ImportConfig struct {
	SpoolDir      string        `env:"IMPORT_SPOOL_DIR"`
	MaxConcurrent int           `env:"IMPORT_MAX_CONCURRENT" default:"4"`
	MaxWait       time.Duration `env:"IMPORT_MAX_WAIT" default:"30s"`
	RunTimeout    time.Duration `env:"IMPORT_RUN_TIMEOUT" default:"10m"`
	ResultCache   int           `env:"IMPORT_RESULT_CACHE" default:"256"`
	CancelGrace   time.Duration `env:"IMPORT_CANCEL_GRACE" default:"5s"`

	ChunkSize          int           `env:"IMPORT_CHUNK_SIZE" default:"1000"`
	Streaming          string        `env:"IMPORT_STREAMING" default:"auto"`
	StreamingThreshold int64         `env:"IMPORT_STREAMING_THRESHOLD" default:"10MB" unit:"bytes"`
	IOTimeout          time.Duration `env:"IMPORT_IO_TIMEOUT" default:"30s"`

	// MaxUploadSize caps request bodies on the upload endpoints.
	MaxUploadSize int64 `env:"IMPORT_MAX_UPLOAD_SIZE" default:"100MB" unit:"bytes"`

	PreviewRows int `env:"IMPORT_PREVIEW_ROWS" default:"500"`

	// SignaturesFile replaces the built-in error signature table.
	SignaturesFile string `env:"IMPORT_SIGNATURES_FILE"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`

	// UploadLimit applies to endpoints that accept a file.
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`  // debug, info, warn, error
	Format string `env:"LOG_FORMAT" default:"text"` // text or json
}

// RetentionConfig controls cleanup of run history and spool files.
type RetentionConfig struct {
	HistoryDays   int           `env:"RETENTION_HISTORY_DAYS" default:"30"`
	SpoolMaxAge   time.Duration `env:"RETENTION_SPOOL_MAX_AGE" default:"24h"`
	CheckInterval time.Duration `env:"RETENTION_CHECK_INTERVAL" default:"1h"`

	// Schedule is a cron expression that replaces CheckInterval when set.
	Schedule string `env:"RETENTION_SCHEDULE"`
}

// InboxConfig enables the watched drop directory when Dir is set.
type InboxConfig struct {
	Dir    string        `env:"INBOX_DIR"`
	Settle time.Duration `env:"INBOX_SETTLE" default:"2s"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
