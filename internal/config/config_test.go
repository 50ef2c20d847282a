package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.scrapingdog.com/google", cfg.Scrapingdog.BaseURL)
	assert.Equal(t, "us", cfg.Scrapingdog.Country)
	assert.Equal(t, 10, cfg.Scrapingdog.Results)
	assert.Equal(t, 25, cfg.Validation.BatchSize)
	assert.Equal(t, 10, cfg.Store.MaxConns)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LEADCHECK_LOG_LEVEL", "debug")
	t.Setenv("LEADCHECK_SERVER_PORT", "9090")
	t.Setenv("LEADCHECK_SCRAPINGDOG_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.Scrapingdog.Key)
}

// Secrets and endpoints have no config-file default; they must still be
// settable through the environment alone.
func TestLoad_EnvOnlyKeys(t *testing.T) {
	t.Setenv("LEADCHECK_STORE_DATABASE_URL", "postgres://leadcheck@localhost/leadcheck")
	t.Setenv("LEADCHECK_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("LEADCHECK_REDIS_ADDR", "localhost:6379")
	t.Setenv("LEADCHECK_NATS_URL", "nats://localhost:4222")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://leadcheck@localhost/leadcheck", cfg.Store.DatabaseURL)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	require.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
