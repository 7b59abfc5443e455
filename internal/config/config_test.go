package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "softbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
listen:
  network: tcp
  address: 127.0.0.1:7070
log:
  level: debug
redis:
  address: localhost:6379
  db: 2
open_sync:
  poll_interval: 20ms
  max_attempts: 10
metrics: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp", cfg.Listen.Network)
	assert.Equal(t, "127.0.0.1:7070", cfg.Listen.Address)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "unset keys keep their default")
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "softbus:", cfg.Redis.Prefix)
	assert.Equal(t, 20*time.Millisecond, cfg.OpenSync.PollInterval)
	assert.Equal(t, 10, cfg.OpenSync.MaxAttempts)
	assert.False(t, cfg.Metrics)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "log:\n  level: debug\n")
	t.Setenv("SOFTBUS_LOG_LEVEL", "error")
	t.Setenv("SOFTBUS_REDIS_DB", "5")
	t.Setenv("SOFTBUS_OPEN_SYNC_POLL_INTERVAL", "1s")
	t.Setenv("SOFTBUS_METRICS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Redis.DB)
	assert.Equal(t, time.Second, cfg.OpenSync.PollInterval)
	assert.False(t, cfg.Metrics)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(writeFile(t, "listen:\n  port: 80\n"))
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeFile(t, "open_sync:\n  poll_interval: soon\n"))
		assert.Error(t, err)
	})

	t.Run("invalid network", func(t *testing.T) {
		_, err := Load(writeFile(t, "listen:\n  network: udp\n"))
		assert.ErrorContains(t, err, "listen.network")
	})
}

func TestApplyEnv(t *testing.T) {
	raw := map[string]any{"listen": map[string]any{"network": "unix"}}
	applyEnv(raw, func(k string) (string, bool) {
		if k == "SOFTBUS_LISTEN_ADDRESS" {
			return " /run/softbus.sock ", true
		}
		return "", false
	})
	assert.Equal(t, map[string]any{"listen": map[string]any{
		"network": "unix",
		"address": "/run/softbus.sock",
	}}, raw)
}
