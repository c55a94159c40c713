// Package config loads service configuration from a YAML file, a .env file
// and environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverSupabase = "supabase"
	DriverMemory   = "memory"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	StaticDir       string        `yaml:"static_dir"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=sqlite supabase memory"`
	SQLitePath  string `yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	SupabaseURL string `yaml:"supabase_url" validate:"required_if=Driver supabase"`
	SupabaseKey string `yaml:"supabase_key" validate:"required_if=Driver supabase"`
}

// SyncConfig controls calendar feed synchronization.
type SyncConfig struct {
	Interval     time.Duration `yaml:"interval" validate:"min=1m"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" validate:"min=1s"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	// ProxyURL is prepended to the URL-escaped feed URL when set.
	ProxyURL              string `yaml:"proxy_url" validate:"omitempty,url"`
	UserAgent             string `yaml:"user_agent"`
	Concurrency           int    `yaml:"concurrency" validate:"min=1,max=32"`
	SyncOnStart           bool   `yaml:"sync_on_start"`
	VanishedBookingPolicy string `yaml:"vanished_booking_policy" validate:"oneof=keep cancel"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	Development bool   `yaml:"development"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"startswith=/"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Sync    SyncConfig    `yaml:"sync"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: "data/homestay.db",
		},
		Sync: SyncConfig{
			Interval:              15 * time.Minute,
			FetchTimeout:          30 * time.Second,
			CacheTTL:              5 * time.Minute,
			UserAgent:             "homestay-calendar-sync/1.0",
			Concurrency:           4,
			SyncOnStart:           true,
			VanishedBookingPolicy: "keep",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Normalize fills in missing or zero values with defaults so that partially
// filled files still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.Server.AllowedOrigins == nil {
		c.Server.AllowedOrigins = def.Server.AllowedOrigins
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.Driver == DriverSQLite && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = def.Storage.SQLitePath
	}

	if c.Sync.Interval == 0 {
		c.Sync.Interval = def.Sync.Interval
	}
	if c.Sync.FetchTimeout == 0 {
		c.Sync.FetchTimeout = def.Sync.FetchTimeout
	}
	if c.Sync.CacheTTL < 0 {
		c.Sync.CacheTTL = 0
	}
	if c.Sync.UserAgent == "" {
		c.Sync.UserAgent = def.Sync.UserAgent
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = def.Sync.Concurrency
	}
	c.Sync.VanishedBookingPolicy = strings.ToLower(strings.TrimSpace(c.Sync.VanishedBookingPolicy))
	if c.Sync.VanishedBookingPolicy == "" {
		c.Sync.VanishedBookingPolicy = def.Sync.VanishedBookingPolicy
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = def.Log.MaxSizeMB
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = def.Metrics.Path
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Load reads the YAML file at path (a missing file or empty path yields the
// defaults), applies .env and environment overrides, then normalizes and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "HOMESTAY_ADDR")
	setString(&c.Server.StaticDir, "HOMESTAY_STATIC_DIR")
	if v := os.Getenv("HOMESTAY_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	setString(&c.Storage.Driver, "HOMESTAY_STORAGE_DRIVER")
	setString(&c.Storage.SQLitePath, "HOMESTAY_SQLITE_PATH")
	setString(&c.Storage.SupabaseURL, "SUPABASE_URL")
	setString(&c.Storage.SupabaseKey, "SUPABASE_SERVICE_ROLE_KEY")

	setString(&c.Sync.ProxyURL, "HOMESTAY_FEED_PROXY_URL")
	setString(&c.Sync.VanishedBookingPolicy, "HOMESTAY_VANISHED_BOOKING_POLICY")
	if err := setDuration(&c.Sync.Interval, "HOMESTAY_SYNC_INTERVAL"); err != nil {
		return err
	}
	if err := setDuration(&c.Sync.FetchTimeout, "HOMESTAY_FETCH_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.Sync.CacheTTL, "HOMESTAY_FEED_CACHE_TTL"); err != nil {
		return err
	}
	if err := setInt(&c.Sync.Concurrency, "HOMESTAY_SYNC_CONCURRENCY"); err != nil {
		return err
	}
	if err := setBool(&c.Sync.SyncOnStart, "HOMESTAY_SYNC_ON_START"); err != nil {
		return err
	}

	setString(&c.Log.Level, "HOMESTAY_LOG_LEVEL")
	setString(&c.Log.File, "HOMESTAY_LOG_FILE")
	if err := setBool(&c.Log.Development, "HOMESTAY_LOG_DEVELOPMENT"); err != nil {
		return err
	}

	return setBool(&c.Metrics.Enabled, "HOMESTAY_METRICS_ENABLED")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
