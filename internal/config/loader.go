package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables, applies defaults for
// unset values and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envField is the parsed tag set of one config field.
type envField struct {
	name     string
	alt      string
	def      string
	required bool
}

func parseEnvField(f reflect.StructField) (envField, bool) {
	name := f.Tag.Get("env")
	if name == "" {
		return envField{}, false
	}
	return envField{
		name:     name,
		alt:      f.Tag.Get("envAlt"),
		def:      f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
	}, true
}

// lookup resolves the raw value: primary variable, then the alternate, then
// the default.
func (e envField) lookup() (string, error) {
	if v := os.Getenv(e.name); v != "" {
		return v, nil
	}
	if e.alt != "" {
		if v := os.Getenv(e.alt); v != "" {
			return v, nil
		}
	}
	if e.required {
		return "", fmt.Errorf("required environment variable %s is not set", e.name)
	}
	return e.def, nil
}

// loadStruct populates v from the environment, descending into nested
// section structs. Every bad or missing variable is reported, not just the
// first.
func loadStruct(v reflect.Value) error {
	var errs []error
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}

		if sf.Type.Kind() == reflect.Struct {
			if err := loadStruct(fv); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		ef, ok := parseEnvField(sf)
		if !ok {
			continue
		}
		raw, err := ef.lookup()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if raw == "" {
			continue
		}
		if err := setField(fv, raw); err != nil {
			errs = append(errs, fmt.Errorf("invalid value for %s=%q: %w", ef.name, raw, err))
		}
	}

	return errors.Join(errs...)
}

var durationType = reflect.TypeOf(time.Duration(0))

// setField parses raw into the field according to its type.
func setField(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem())
		}
		field.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	out := []string{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Feed validation
	if c.Feed.URL == "" {
		errs = append(errs, "NVD_API_URL is required")
	} else if u, err := url.Parse(c.Feed.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("NVD_API_URL (%q) must be an absolute URL", c.Feed.URL))
	}
	if c.Feed.Timeout <= 0 {
		errs = append(errs, "FEED_TIMEOUT must be positive")
	}
	if c.Feed.RateLimit <= 0 {
		errs = append(errs, "FEED_RATE_LIMIT must be positive")
	}
	if c.Feed.RateBurst <= 0 {
		errs = append(errs, "FEED_RATE_BURST must be positive")
	}
	if c.Feed.ResultsPerPage < 0 {
		errs = append(errs, "FEED_RESULTS_PER_PAGE must be non-negative")
	}
	if c.Feed.LastModifiedWindow < 0 {
		errs = append(errs, "FEED_LAST_MODIFIED_WINDOW must be non-negative")
	}
	if _, err := time.LoadLocation(c.Feed.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("FEED_TIMEZONE (%q) is not a known time zone", c.Feed.Timezone))
	}

	// Cache validation
	switch strings.ToLower(c.Cache.Backend) {
	case "", "none":
	case "postgres", "mysql":
		if c.Cache.URL == "" {
			errs = append(errs, fmt.Sprintf("CACHE_URL is required for CACHE_BACKEND=%s", c.Cache.Backend))
		}
	case "sqlite":
		if c.Cache.SQLitePath == "" {
			errs = append(errs, "CACHE_SQLITE_PATH is required for CACHE_BACKEND=sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("CACHE_BACKEND (%q) must be one of: none, postgres, mysql, sqlite", c.Cache.Backend))
	}
	if c.Cache.MaxConns <= 0 {
		errs = append(errs, "CACHE_MAX_CONNS must be positive")
	}
	if c.Cache.MinConns < 0 {
		errs = append(errs, "CACHE_MIN_CONNS must be non-negative")
	}
	if c.Cache.MaxConns < c.Cache.MinConns {
		errs = append(errs, fmt.Sprintf("CACHE_MAX_CONNS (%d) must be >= CACHE_MIN_CONNS (%d)",
			c.Cache.MaxConns, c.Cache.MinConns))
	}
	if c.Cache.LookupSize < 0 {
		errs = append(errs, "CACHE_LOOKUP_SIZE must be non-negative")
	}

	// Sync validation
	if c.Sync.Concurrency <= 0 {
		errs = append(errs, "SYNC_CONCURRENCY must be positive")
	}
	if c.Sync.Interval < 0 {
		errs = append(errs, "SYNC_INTERVAL must be non-negative")
	}
	if c.Sync.MaxConcurrent <= 0 {
		errs = append(errs, "SYNC_MAX_CONCURRENT must be positive")
	}
	if c.Sync.MaxWaitTime <= 0 {
		errs = append(errs, "SYNC_MAX_WAIT_TIME must be positive")
	}
	if c.Sync.Timeout <= 0 {
		errs = append(errs, "SYNC_TIMEOUT must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.SyncLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_SYNC must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The cache URL and API keys are masked.
func (c *Config) String() string {
	cacheURL := ""
	if c.Cache.URL != "" {
		cacheURL = "[MASKED]"
	}
	feedKey := ""
	if c.Feed.APIKey != "" {
		feedKey = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Feed: {URL: %q, APIKey: %q, RateLimit: %g}, ",
		c.Feed.URL, feedKey, c.Feed.RateLimit))
	b.WriteString(fmt.Sprintf("Cache: {Backend: %q, URL: %q, MaxConns: %d, LookupSize: %d}, ",
		c.Cache.Backend, cacheURL, c.Cache.MaxConns, c.Cache.LookupSize))
	b.WriteString(fmt.Sprintf("Sync: {Concurrency: %d, Interval: %s, MaxConcurrent: %d}, ",
		c.Sync.Concurrency, c.Sync.Interval, c.Sync.MaxConcurrent))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString(fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: %d}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
