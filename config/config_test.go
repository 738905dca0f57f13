package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(nil))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:6580", cfg.Server.ListenAddr)
	assert.Equal(t, "http://localhost:5000", cfg.Backend.URL)
	assert.Equal(t, 30*time.Second, cfg.Backend.ReadyTimeout)
	assert.Equal(t, 5*time.Second, cfg.Poll.Interval)
	assert.Empty(t, cfg.Registry.Path)
	assert.Equal(t, "memory", cfg.Journal.Provider)
	assert.Equal(t, "nfviz:changes", cfg.Journal.Config().RedisKey)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestOverrides(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"NFVIZ_BACKEND_URL":         "http://backend:8080",
		"NFVIZ_POLL_INTERVAL":       "250ms",
		"NFVIZ_JOURNAL_PROVIDER":    "sqlite",
		"NFVIZ_JOURNAL_SQLITE_PATH": "/tmp/nfviz.db",
		"NFVIZ_SERVER_DEV":          "true",
		"NFVIZ_REGISTRY_PATH":       "pipeline.yaml",
		"NFVIZ_TELEMETRY_ENABLED":   "true",
		"NFVIZ_POSTHOG_API_KEY":     "phc_test",
	}))
	require.NoError(t, err)

	assert.Equal(t, "http://backend:8080", cfg.Backend.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, "sqlite", cfg.Journal.Config().Provider)
	assert.Equal(t, "/tmp/nfviz.db", cfg.Journal.SQLitePath)
	assert.True(t, cfg.Server.Dev)
	assert.Equal(t, "pipeline.yaml", cfg.Registry.Path)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "phc_test", cfg.Posthog.ApiKey)
}

func TestInvalidDuration(t *testing.T) {
	_, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"NFVIZ_POLL_INTERVAL": "soon",
	}))
	assert.Error(t, err)
}
