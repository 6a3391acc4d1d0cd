// Package config provides centralized configuration management for sheetkit.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Upload    UploadConfig
	Read      ReadConfig
	Render    RenderConfig
	Annotate  AnnotateConfig
	Templates TemplatesConfig
	Metrics   MetricsConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// TrustedProxies lists proxy CIDRs whose X-Real-IP / X-Forwarded-For headers are honored
	TrustedProxies []string `env:"SERVER_TRUSTED_PROXIES"`
}

// DatabaseConfig holds the optional row sink connection settings.
// When URL is empty, validated rows are not persisted.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`
}

// Enabled reports whether a row sink database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// UploadConfig holds spreadsheet upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel validations (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a validation slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// ReadConfig controls the streaming read pipeline.
type ReadConfig struct {
	// BatchSize is the number of rows handed to the batch hooks at once (default: 500)
	BatchSize int `env:"READ_BATCH_SIZE" default:"500"`

	// HeadRows is the number of header rows at the top of a sheet (default: 1)
	HeadRows int `env:"READ_HEAD_ROWS" default:"1"`

	// ValidateFields enables per-record field validation (default: true)
	ValidateFields bool `env:"READ_VALIDATE_FIELDS" default:"true"`
}

// RenderConfig controls dropdown rendering.
type RenderConfig struct {
	// RowSpan is the default number of data rows a column rule covers (default: 10000)
	RowSpan int `env:"RENDER_ROW_SPAN" default:"10000"`

	// ColumnSpan is the default number of columns a row rule covers (default: 100)
	ColumnSpan int `env:"RENDER_COLUMN_SPAN" default:"100"`

	// HiddenColumnRange bounds the random column of hidden option blocks (default: 200)
	HiddenColumnRange int `env:"RENDER_HIDDEN_COLUMN_RANGE" default:"200"`

	// HiddenRowRange bounds the random start row of hidden option blocks (default: 1000)
	HiddenRowRange int `env:"RENDER_HIDDEN_ROW_RANGE" default:"1000"`
}

// AnnotateConfig controls how cell errors are painted.
type AnnotateConfig struct {
	// FillColor is the RGB hex background of annotated cells (default: FF0000)
	FillColor string `env:"ANNOTATE_FILL_COLOR" default:"FF0000"`

	// Prefix is prepended to every comment line (default: "- ")
	Prefix string `env:"ANNOTATE_PREFIX" default:"- "`

	// Suffix is appended to every comment line
	Suffix string `env:"ANNOTATE_SUFFIX"`

	// Author is the comment author (default: sheetkit)
	Author string `env:"ANNOTATE_AUTHOR" default:"sheetkit"`
}

// TemplatesConfig controls where template definitions come from.
type TemplatesConfig struct {
	// Dir is a directory of YAML template definitions loaded on top of the built-ins
	Dir string `env:"TEMPLATES_DIR"`

	// Watch reloads Dir when its files change (default: false)
	Watch bool `env:"TEMPLATES_WATCH" default:"false"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes /metrics (default: true)
	Enabled bool `env:"METRICS_ENABLED" default:"true"`

	// Namespace prefixes every metric name (default: sheetkit)
	Namespace string `env:"METRICS_NAMESPACE" default:"sheetkit"`
}

// RateLimitConfig holds per-IP rate limiting settings per minute.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// WorkbookLimit is requests per minute for workbook, validate and annotate (default: 10)
	WorkbookLimit int `env:"RATE_LIMIT_WORKBOOK" default:"10"`
}

// SecurityConfig holds API access settings.
type SecurityConfig struct {
	// RequireAPIKey rejects /api requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"API_REQUIRE_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
