package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestParseYAMLOverridesDefaults(t *testing.T) {
	raw := []byte(`
listen: ":9000"
store:
  backend: redis
  redis:
    url: redis://localhost:6379/1
    lock_expiry: 45s
server:
  lease: 20s
log:
  level: debug
`)
	cfg, err := Parse(raw, ".yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.Store.Backend != StoreRedis || cfg.Store.Redis.URL != "redis://localhost:6379/1" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.Store.Redis.LockExpiry != 45*time.Second {
		t.Fatalf("lock_expiry = %v, want 45s", cfg.Store.Redis.LockExpiry)
	}
	if cfg.Server.Lease != 20*time.Second {
		t.Fatalf("lease = %v, want 20s", cfg.Server.Lease)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("level = %q", cfg.Log.Level)
	}

	// untouched keys keep their defaults
	if cfg.Store.Redis.Prefix != "gencache" {
		t.Fatalf("prefix = %q, want default", cfg.Store.Redis.Prefix)
	}
	if cfg.Server.SweepInterval != time.Minute {
		t.Fatalf("sweep_interval = %v, want default", cfg.Server.SweepInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseJSON(t *testing.T) {
	raw := []byte(`{"listen": ":8844", "hot": {"backend": "bigcache", "life_window": "2m"}}`)
	cfg, err := Parse(raw, ".json")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Listen != ":8844" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.Hot.Backend != HotBigcache || cfg.Hot.LifeWindow != 2*time.Minute {
		t.Fatalf("hot = %+v", cfg.Hot)
	}
}

func TestParseRejectsUnknownFormat(t *testing.T) {
	if _, err := Parse([]byte("listen = ':1'"), ".toml"); err == nil {
		t.Fatal("expected an error for an unsupported extension")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gencached.yml")
	if err := os.WriteFile(path, []byte("listen: \":7777\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":7777" {
		t.Fatalf("listen = %q", cfg.Listen)
	}

	if _, err := Load(filepath.Join(dir, "missing.yml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestValidateCatchesMistakes(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }, "listen address"},
		{"fs without dir", func(c *Config) { c.Store.Dir = "" }, "store.dir"},
		{"redis without url", func(c *Config) { c.Store.Backend = StoreRedis }, "store.redis.url"},
		{"bad store backend", func(c *Config) { c.Store.Backend = "etcd" }, "unknown store backend"},
		{"bad hot backend", func(c *Config) { c.Hot.Backend = "memcached" }, "unknown hot backend"},
		{"ristretto without budget", func(c *Config) { c.Hot.MaxBytes = 0 }, "hot.max_bytes"},
		{"zero lease", func(c *Config) { c.Server.Lease = 0 }, "server.lease"},
		{"zero payload cap", func(c *Config) { c.Server.MaxPayload = 0 }, "server.max_payload"},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "unknown log level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mut(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate err = %v, want %q", err, tc.want)
			}
		})
	}
}
