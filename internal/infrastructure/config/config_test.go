package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs Load from an empty directory so a stray config.toml is not read
func isolate(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad(t *testing.T) {
	isolate(t)

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "feedsync", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "feedsync", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)

		assert.Equal(t, int64(64<<10), cfg.Webhook.MaxBodyBytes)
		assert.Equal(t, 10*time.Second, cfg.Webhook.TimestampTolerance)
		assert.Equal(t, "memory", cfg.Webhook.DedupeBackend)
		assert.Equal(t, 5, cfg.Sync.PageRetryAttempts)
		assert.Equal(t, 5*time.Second, cfg.Sync.TransientCoolOff)
		assert.Equal(t, 11*time.Second, cfg.Sync.RateLimitCoolOff)
		assert.Equal(t, 5, cfg.Sync.RateLimitThreshold)
		assert.Equal(t, "https://api.intercom.io", cfg.Connector("intercom").BaseURL)
		assert.Equal(t, "https://api.helpscout.net/v2/oauth2/token", cfg.Connector("helpscout").TokenURL)
	})

	t.Run("loads values from environment variables with FEEDSYNC prefix", func(t *testing.T) {
		t.Setenv("FEEDSYNC_APP_PORT", "9000")
		t.Setenv("FEEDSYNC_DATABASE_HOST", "testdb.local")
		t.Setenv("FEEDSYNC_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("FEEDSYNC_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("FEEDSYNC_SYNC_RATE_LIMIT_COOL_OFF", "2s")
		t.Setenv("FEEDSYNC_CONNECTORS_INTERCOM_CLIENT_SECRET", "ic-secret")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, 2*time.Second, cfg.Sync.RateLimitCoolOff)
		assert.Equal(t, "ic-secret", cfg.Connector("intercom").ClientSecret)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("FEEDSYNC_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("FEEDSYNC_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects unknown dedupe backend", func(t *testing.T) {
		t.Setenv("FEEDSYNC_WEBHOOK_DEDUPE_BACKEND", "memcached")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "webhook.dedupe_backend")
	})

	t.Run("rejects unknown signature version", func(t *testing.T) {
		t.Setenv("FEEDSYNC_CONNECTORS_SEGMENT_SIGNATURE_VERSION", "v9")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connectors.segment.signature_version")
	})
}

func TestLoadFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedsync.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
port = "7070"

[webhook]
dedupe_backend = "redis"
dedupe_ttl = "1h"

[connectors.intercom]
client_secret = "from-file"
signature_version = "v0"

[connectors.helpscout]
client_id = "hs-client"
base_url = "http://127.0.0.1:9999"
`), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.App.Port)
	assert.Equal(t, "redis", cfg.Webhook.DedupeBackend)
	assert.Equal(t, time.Hour, cfg.Webhook.DedupeTTL)
	assert.Equal(t, "from-file", cfg.Connector("intercom").ClientSecret)
	assert.Equal(t, "v0", cfg.Connector("intercom").SignatureVersion)
	assert.Equal(t, "hs-client", cfg.Connector("helpscout").ClientID)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.Connector("helpscout").BaseURL)
	assert.Equal(t, "https://api.helpscout.net/v2/oauth2/token", cfg.Connector("helpscout").TokenURL)

	_, err = LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err, "an explicit path must exist")
}

func TestLoad_ProductionValidation(t *testing.T) {
	isolate(t)

	setValidProductionBase := func(t *testing.T) {
		t.Setenv("FEEDSYNC_APP_ENV", "production")
		t.Setenv("FEEDSYNC_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		t.Setenv("FEEDSYNC_DATABASE_PASSWORD", "secure-password")
		t.Setenv("FEEDSYNC_DATABASE_SSLMODE", "require")
	}

	t.Run("requires jwt.secret in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("FEEDSYNC_JWT_SECRET", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required in production")
	})

	t.Run("requires jwt.secret at least 32 characters in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("FEEDSYNC_JWT_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret must be at least 32 characters")
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("FEEDSYNC_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("FEEDSYNC_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
