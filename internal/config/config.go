// Package config loads application configuration from environment variables
// with defaults, and validates it on startup so misconfiguration fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Feed     FeedConfig
	Cache    CacheConfig
	Sync     SyncConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 0 for streamed rows)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// FeedConfig holds NVD feed client settings.
type FeedConfig struct {
	// URL is the CVE feed endpoint
	URL string `env:"NVD_API_URL" default:"https://services.nvd.nist.gov/rest/json/cves/2.0"`

	// APIKey is sent in the apiKey header when set
	APIKey string `env:"NVD_API_KEY"`

	// Timeout bounds a single feed request (default: 60s)
	Timeout time.Duration `env:"FEED_TIMEOUT" default:"60s"`

	// RateLimit is requests per second to the feed (default: 0.16, NVD's keyless limit)
	RateLimit float64 `env:"FEED_RATE_LIMIT" default:"0.16"`

	// RateBurst is the limiter burst (default: 1)
	RateBurst int `env:"FEED_RATE_BURST" default:"1"`

	// ResultsPerPage is passed as resultsPerPage when positive
	ResultsPerPage int `env:"FEED_RESULTS_PER_PAGE" default:"0"`

	// LastModifiedWindow limits the feed to CVEs modified within the window when positive
	LastModifiedWindow time.Duration `env:"FEED_LAST_MODIFIED_WINDOW" default:"0s"`

	// DateLayout is a Go time layout for timestamp columns; empty keeps feed text
	DateLayout string `env:"FEED_DATE_LAYOUT"`

	// Timezone is the IANA zone timestamps are rendered in (default: UTC)
	Timezone string `env:"FEED_TIMEZONE" default:"UTC"`
}

// CacheConfig holds cache store settings.
type CacheConfig struct {
	// Backend is none, postgres, mysql or sqlite (default: none)
	Backend string `env:"CACHE_BACKEND" default:"none"`

	// URL is the connection string for postgres or mysql
	// Supports both CACHE_URL and DATABASE_URL env vars
	URL string `env:"CACHE_URL" envAlt:"DATABASE_URL"`

	// SQLitePath is the database file for the sqlite backend
	SQLitePath string `env:"CACHE_SQLITE_PATH" default:"nvdsync.db"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"CACHE_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"CACHE_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"CACHE_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"CACHE_MAX_CONN_IDLE_TIME" default:"30m"`

	// LookupSize is the number of entries in the read LRU; 0 disables it (default: 1024)
	LookupSize int `env:"CACHE_LOOKUP_SIZE" default:"1024"`
}

// Enabled reports whether a cache backend is configured.
func (c *CacheConfig) Enabled() bool {
	return c.Backend != "" && c.Backend != "none"
}

// SyncConfig holds sync run settings.
type SyncConfig struct {
	// Concurrency is the number of tables streamed in parallel (default: 4)
	Concurrency int `env:"SYNC_CONCURRENCY" default:"4"`

	// Tables selects tables by name or glob (default: all)
	Tables []string `env:"SYNC_TABLES"`

	// SkipTables excludes tables by name or glob
	SkipTables []string `env:"SYNC_SKIP_TABLES"`

	// SkipDependentTables drops relations not named explicitly
	SkipDependentTables bool `env:"SYNC_SKIP_DEPENDENT_TABLES" default:"false"`

	// Interval between scheduled syncs; 0 disables the scheduler (default: 0)
	Interval time.Duration `env:"SYNC_INTERVAL" default:"0s"`

	// MaxConcurrent is the number of sync runs allowed at once (default: 2)
	MaxConcurrent int `env:"SYNC_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long a run waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"SYNC_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single sync run (default: 10m)
	Timeout time.Duration `env:"SYNC_TIMEOUT" default:"10m"`

	// SpecFile is an optional YAML file overriding the settings above
	SpecFile string `env:"SYNC_SPEC_FILE"`
}

// RateLimitConfig holds API rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// SyncLimit is requests per minute for the sync endpoint (default: 6)
	SyncLimit int `env:"RATE_LIMIT_SYNC" default:"6"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

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
