package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, "ws://localhost:8000", cfg.Channel.URL)
	assert.Equal(t, 5, cfg.Channel.ReconnectAttempts)
	assert.Equal(t, 1000, cfg.Channel.ReconnectDelayMS)
	assert.Equal(t, "gamesnight.db", cfg.Storage.TokenDB)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: http://api.example
channel:
  url: ws://ws.example
  reconnect_attempts: 3
  reconnect_delay_ms: 250
`), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://api.example", cfg.API.BaseURL)
	assert.Equal(t, "ws://ws.example", cfg.Channel.URL)
	assert.Equal(t, 3, cfg.Channel.ReconnectAttempts)
	assert.Equal(t, 250, cfg.Channel.ReconnectDelayMS)
	// Unset file fields keep their defaults.
	assert.Equal(t, "gamesnight.db", cfg.Storage.TokenDB)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
channel:
  reconnect_attempts: 3
`), 0o644))

	t.Setenv("GAMESNIGHT_API_URL", "http://env.example")
	t.Setenv("GAMESNIGHT_RECONNECT_ATTEMPTS", "2")
	t.Setenv("GAMESNIGHT_RECONNECT_DELAY_MS", "50")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://env.example", cfg.API.BaseURL)
	assert.Equal(t, 2, cfg.Channel.ReconnectAttempts)
	assert.Equal(t, 50, cfg.Channel.ReconnectDelayMS)
}

func TestLoadConfigIgnoresMalformedIntEnv(t *testing.T) {
	t.Setenv("GAMESNIGHT_RECONNECT_ATTEMPTS", "lots")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Channel.ReconnectAttempts)
}
