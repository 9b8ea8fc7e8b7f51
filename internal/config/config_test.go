package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/pulsechat_test")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2000, cfg.MaxContentLength)
	assert.Equal(t, 30, cfg.RateLimit.MaxMessages)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 10, cfg.AuthLimit.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 5*time.Minute, cfg.OfflineThreshold)
	assert.Equal(t, 10*time.Second, cfg.TypingExpiry)
	assert.False(t, cfg.LogJSON)
}

func TestLoadFailsWithoutSecrets(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("JWT_SECRET", "x")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DB_DSN", "postgres://localhost/db")
	t.Setenv("JWT_SECRET", "")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ADDR", ":9090")
	t.Setenv("RATE_LIMIT_MAX_MESSAGES", "5")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "10")
	t.Setenv("OFFLINE_THRESHOLD_SECONDS", "120")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 5, cfg.RateLimit.MaxMessages)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 2*time.Minute, cfg.OfflineThreshold)
	assert.True(t, cfg.LogJSON)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	setRequired(t)
	t.Setenv("RATE_LIMIT_MAX_MESSAGES", "lots")
	t.Setenv("TYPING_EXPIRY_SECONDS", "-3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.RateLimit.MaxMessages)
	assert.Equal(t, 10*time.Second, cfg.TypingExpiry)
}
