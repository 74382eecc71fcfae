package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8189", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	assert.Equal(t, 5*time.Second, cfg.Relay.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Relay.ResultTTL)
	assert.Equal(t, 256, cfg.Relay.MaxResults)

	assert.Equal(t, "http://127.0.0.1:8188", cfg.Graph.URL)
	assert.Equal(t, 5*time.Minute, cfg.Graph.CatalogTTL)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8189", cfg.Server.Port)
	assert.Equal(t, 4096, cfg.Terminal.ReadBufferSize)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":          "9000",
		"HOST":          "0.0.0.0",
		"RELAY_TIMEOUT": "2s",
		"GRAPH_URL":     "http://localhost:8000",
		"LOG_LEVEL":     "debug",
		"LOG_DEV":       "true",
	}

	for key, value := range envVars {
		os.Setenv(key, value)
	}
	defer func() {
		for key := range envVars {
			os.Unsetenv(key)
		}
	}()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 2*time.Second, cfg.Relay.Timeout)
	assert.Equal(t, "http://localhost:8000", cfg.Graph.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadInvalidDuration(t *testing.T) {
	os.Setenv("RELAY_TIMEOUT", "not-a-duration")
	defer os.Unsetenv("RELAY_TIMEOUT")

	_, err := Load()
	require.Error(t, err)
}
