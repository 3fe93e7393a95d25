package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("N8N_WEBHOOK_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("RELAY_ROUTE", "")
	t.Setenv("STATE_PATH", "/tmp/state")
	t.Setenv("DATASTORE_DRIVER", "")
	t.Setenv("DATASTORE_DSN", "")

	cfg := Load()

	assert.Equal(t, "4000", cfg.RelayPort)
	assert.Equal(t, "/tavus/webhook", cfg.RelayRoute)
	assert.Equal(t, "https://tavusapi.com/v2", cfg.TavusBaseURL)
	assert.Equal(t, "sqlite", cfg.DataStoreDriver)
	assert.Equal(t, filepath.Join("/tmp/state", "cvi-coach.db"), cfg.DataStoreDSN)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.ForwardingEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("N8N_WEBHOOK_URL", " https://n8n.example/webhook/abc ")
	t.Setenv("PORT", "9000")
	t.Setenv("RELAY_ROUTE", "hooks/tavus")
	t.Setenv("SESSION_TTL", "45m")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_TLS_ENABLED", "yes")

	cfg := Load()

	assert.Equal(t, "https://n8n.example/webhook/abc", cfg.DownstreamURL)
	assert.True(t, cfg.ForwardingEnabled())
	assert.Equal(t, "9000", cfg.RelayPort)
	assert.Equal(t, "/hooks/tavus", cfg.RelayRoute)
	assert.Equal(t, 45*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.True(t, cfg.RedisTLSEnabled)
}

func TestLoadPostgresFallsBackToPostgresDSN(t *testing.T) {
	t.Setenv("DATASTORE_DRIVER", "postgres")
	t.Setenv("DATASTORE_DSN", "")
	t.Setenv("POSTGRES_DSN", "postgres://coach@localhost/coach")

	cfg := Load()

	assert.Equal(t, "postgres://coach@localhost/coach", cfg.DataStoreDSN)
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("REDIS_DB", "x")
	t.Setenv("REDIS_TLS_ENABLED", "maybe")

	cfg := Load()

	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.False(t, cfg.RedisTLSEnabled)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CVI_TEST_FROM_FILE=hello\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CVI_TEST_FROM_FILE") })

	LoadEnvFile(filepath.Join(dir, "missing.env"), path)

	assert.Equal(t, "hello", os.Getenv("CVI_TEST_FROM_FILE"))
}
