// Package config loads and validates the gencached daemon configuration
// from YAML or JSON files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Store backends.
const (
	StoreFS    = "fs"
	StoreRedis = "redis"
)

// Hot cache backends.
const (
	HotRistretto = "ristretto"
	HotBigcache  = "bigcache"
	HotNone      = "none"
)

// Config is the full daemon configuration. Durations accept Go syntax
// ("10s", "5m"); sizes are bytes.
type Config struct {
	// Listen is the host:port the HTTP API binds to.
	Listen string `koanf:"listen"`

	Store  StoreConfig  `koanf:"store"`
	Hot    HotConfig    `koanf:"hot"`
	Server ServerConfig `koanf:"server"`
	Log    LogConfig    `koanf:"log"`
}

// StoreConfig selects and configures the durable entry store.
type StoreConfig struct {
	Backend string      `koanf:"backend"`
	Dir     string      `koanf:"dir"`
	Redis   RedisConfig `koanf:"redis"`
}

// RedisConfig configures the redis store backend.
type RedisConfig struct {
	URL        string        `koanf:"url"`
	Prefix     string        `koanf:"prefix"`
	LockExpiry time.Duration `koanf:"lock_expiry"`
}

// HotConfig configures the optional in-memory read accelerator.
type HotConfig struct {
	Backend  string        `koanf:"backend"`
	MaxBytes int64         `koanf:"max_bytes"`
	TTL      time.Duration `koanf:"ttl"`

	// LifeWindow applies to the bigcache backend only.
	LifeWindow time.Duration `koanf:"life_window"`
}

// ServerConfig tunes the entry state machine.
type ServerConfig struct {
	Lease         time.Duration `koanf:"lease"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	IdleRetention time.Duration `koanf:"idle_retention"`
	MaxPayload    int           `koanf:"max_payload"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
}

// Default returns the configuration gencached runs with when no file is
// given. It serves a filesystem store out of ./gencache-data on the
// loopback interface.
func Default() Config {
	return Config{
		Listen: "127.0.0.1:7420",
		Store: StoreConfig{
			Backend: StoreFS,
			Dir:     "gencache-data",
			Redis: RedisConfig{
				Prefix:     "gencache",
				LockExpiry: 30 * time.Second,
			},
		},
		Hot: HotConfig{
			Backend:    HotRistretto,
			MaxBytes:   256 << 20,
			LifeWindow: 10 * time.Minute,
		},
		Server: ServerConfig{
			Lease:         10 * time.Second,
			SweepInterval: time.Minute,
			IdleRetention: 15 * time.Minute,
			MaxPayload:    32 << 20,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path and unmarshals it over the defaults, so a file only
// needs the keys it changes. The format follows the extension (.yaml,
// .yml or .json).
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse unmarshals raw config bytes in the format named by ext.
func Parse(data []byte, ext string) (Config, error) {
	var parser koanf.Parser
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		parser = kyaml.Parser()
	case ".json":
		parser = kjson.Parser()
	default:
		return Config{}, fmt.Errorf("gencache: unsupported config format %q", ext)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate reports the first problem that would keep the daemon from
// starting.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("gencache: listen address is required")
	}

	switch c.Store.Backend {
	case StoreFS:
		if c.Store.Dir == "" {
			return fmt.Errorf("gencache: store.dir is required for the fs backend")
		}
	case StoreRedis:
		if c.Store.Redis.URL == "" {
			return fmt.Errorf("gencache: store.redis.url is required for the redis backend")
		}
	default:
		return fmt.Errorf("gencache: unknown store backend %q", c.Store.Backend)
	}

	switch c.Hot.Backend {
	case HotRistretto:
		if c.Hot.MaxBytes <= 0 {
			return fmt.Errorf("gencache: hot.max_bytes must be positive for ristretto")
		}
	case HotBigcache, HotNone:
	default:
		return fmt.Errorf("gencache: unknown hot backend %q", c.Hot.Backend)
	}

	if c.Server.Lease <= 0 {
		return fmt.Errorf("gencache: server.lease must be positive")
	}
	if c.Server.MaxPayload <= 0 {
		return fmt.Errorf("gencache: server.max_payload must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("gencache: unknown log level %q", c.Log.Level)
	}
	return nil
}
