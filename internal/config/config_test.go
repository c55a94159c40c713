package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	def := DefaultConfig()
	if cfg.Server.Addr != def.Server.Addr || cfg.Storage.Driver != DriverSQLite {
		t.Errorf("server/storage = %+v / %+v", cfg.Server, cfg.Storage)
	}
	if cfg.Sync.Interval != 15*time.Minute || cfg.Sync.Concurrency != 4 || cfg.Sync.VanishedBookingPolicy != "keep" {
		t.Errorf("sync = %+v", cfg.Sync)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  allowed_origins: ["https://homestay.example"]
storage:
  driver: Supabase
  supabase_url: https://abc.supabase.co
  supabase_key: service-role
sync:
  interval: 30m
  fetch_timeout: 10s
  proxy_url: https://proxy.example/?url=
  vanished_booking_policy: CANCEL
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Storage.Driver != DriverSupabase || cfg.Storage.SupabaseKey != "service-role" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Sync.Interval != 30*time.Minute || cfg.Sync.FetchTimeout != 10*time.Second {
		t.Errorf("sync durations = %v / %v", cfg.Sync.Interval, cfg.Sync.FetchTimeout)
	}
	if cfg.Sync.VanishedBookingPolicy != "cancel" {
		t.Errorf("policy = %q, want cancel", cfg.Sync.VanishedBookingPolicy)
	}
	// Unset sections keep their defaults.
	if cfg.Sync.Concurrency != 4 || cfg.Metrics.Path != "/metrics" {
		t.Errorf("defaults lost: concurrency=%d metrics=%q", cfg.Sync.Concurrency, cfg.Metrics.Path)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\n")

	t.Setenv("HOMESTAY_ADDR", ":7070")
	t.Setenv("HOMESTAY_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("HOMESTAY_STORAGE_DRIVER", "memory")
	t.Setenv("HOMESTAY_SYNC_INTERVAL", "5m")
	t.Setenv("HOMESTAY_SYNC_CONCURRENCY", "8")
	t.Setenv("HOMESTAY_SYNC_ON_START", "false")
	t.Setenv("HOMESTAY_LOG_LEVEL", "WARN")
	t.Setenv("HOMESTAY_METRICS_ENABLED", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %q", cfg.Server.AllowedOrigins)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Errorf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Sync.Interval != 5*time.Minute || cfg.Sync.Concurrency != 8 || cfg.Sync.SyncOnStart {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Log.Level != "warn" || cfg.Metrics.Enabled {
		t.Errorf("log level %q, metrics enabled %v", cfg.Log.Level, cfg.Metrics.Enabled)
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("HOMESTAY_SYNC_INTERVAL", "soon")

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "HOMESTAY_SYNC_INTERVAL") {
		t.Errorf("err = %v, want mention of HOMESTAY_SYNC_INTERVAL", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"supabase without url", func(c *Config) { c.Storage.Driver = DriverSupabase; c.Storage.SupabaseKey = "k" }},
		{"interval too short", func(c *Config) { c.Sync.Interval = 30 * time.Second }},
		{"bad policy", func(c *Config) { c.Sync.VanishedBookingPolicy = "delete" }},
		{"bad proxy", func(c *Config) { c.Sync.ProxyURL = "not a url" }},
		{"concurrency too high", func(c *Config) { c.Sync.Concurrency = 100 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
