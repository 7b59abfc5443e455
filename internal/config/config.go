// Package config loads the daemon configuration: defaults, then an optional
// YAML file, then SOFTBUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen   ListenConfig   `mapstructure:"listen"`
	Log      LogConfig      `mapstructure:"log"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Policy   string         `mapstructure:"policy"`
	OpenSync OpenSyncConfig `mapstructure:"open_sync"`
	Metrics  bool           `mapstructure:"metrics"`
}

type ListenConfig struct {
	Network string `mapstructure:"network"`
	Address string `mapstructure:"address"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RedisConfig enables the shared channel store and locks when Address is set.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// OpenSyncConfig bounds how long OpenSessionSync waits: PollInterval x MaxAttempts.
type OpenSyncConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen: ListenConfig{
			Network: "unix",
			Address: "/tmp/softbus.sock",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Redis: RedisConfig{
			Prefix: "softbus:",
		},
		OpenSync: OpenSyncConfig{
			PollInterval: 50 * time.Millisecond,
			MaxAttempts:  100,
		},
		Metrics: true,
	}
}

// envKeys maps environment variables onto config keys.
var envKeys = map[string][]string{
	"SOFTBUS_LISTEN_NETWORK":          {"listen", "network"},
	"SOFTBUS_LISTEN_ADDRESS":          {"listen", "address"},
	"SOFTBUS_LOG_LEVEL":               {"log", "level"},
	"SOFTBUS_LOG_FORMAT":              {"log", "format"},
	"SOFTBUS_REDIS_ADDRESS":           {"redis", "address"},
	"SOFTBUS_REDIS_PASSWORD":          {"redis", "password"},
	"SOFTBUS_REDIS_DB":                {"redis", "db"},
	"SOFTBUS_REDIS_PREFIX":            {"redis", "prefix"},
	"SOFTBUS_POLICY":                  {"policy"},
	"SOFTBUS_OPEN_SYNC_POLL_INTERVAL": {"open_sync", "poll_interval"},
	"SOFTBUS_OPEN_SYNC_MAX_ATTEMPTS":  {"open_sync", "max_attempts"},
	"SOFTBUS_METRICS":                 {"metrics"},
}

// Load builds the configuration. path may be empty; a missing file is an error
// only when path was given.
func Load(path string) (Config, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}
	applyEnv(raw, os.LookupEnv)

	cfg := Default()
	if err := decode(raw, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnv overlays set environment variables on raw.
func applyEnv(raw map[string]any, lookup func(string) (string, bool)) {
	for env, path := range envKeys {
		v, ok := lookup(env)
		if !ok {
			continue
		}
		m := raw
		for _, k := range path[:len(path)-1] {
			next, ok := m[k].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[k] = next
			}
			m = next
		}
		m[path[len(path)-1]] = strings.TrimSpace(v)
	}
}

// Validate rejects configurations the daemon cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Listen.Network {
	case "unix", "tcp":
	default:
		errs = append(errs, fmt.Errorf("listen.network must be unix or tcp, got %q", c.Listen.Network))
	}
	if c.Listen.Address == "" {
		errs = append(errs, errors.New("listen.address is required"))
	}
	if c.OpenSync.PollInterval <= 0 {
		errs = append(errs, errors.New("open_sync.poll_interval must be positive"))
	}
	if c.OpenSync.MaxAttempts <= 0 {
		errs = append(errs, errors.New("open_sync.max_attempts must be positive"))
	}
	return errors.Join(errs...)
}
