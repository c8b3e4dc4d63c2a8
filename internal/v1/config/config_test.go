package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JOIN_TOKEN_SECRET", "test-secret-at-least-32-characters-long")
	t.Setenv("INTERNAL_API_SECRET", "internal")
	t.Setenv("PORT", "8080")
	// Keep optional knobs out of the ambient environment.
	t.Setenv("STUN_URLS", "")
	t.Setenv("TURN_URLS", "")
	t.Setenv("TURN_SHARED_SECRET", "")
	t.Setenv("TURN_TTL_SECONDS", "")
	t.Setenv("TURN_RATE_LIMIT_MAX", "")
	t.Setenv("TURN_RATE_LIMIT_WINDOW_SEC", "")
	t.Setenv("REDIS_ENABLED", "")
	t.Setenv("ALLOW_DEV_TOKEN_ISSUER", "")
	t.Setenv("DEV_ISSUER_SECRET", "")
	t.Setenv("GO_ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEVELOPMENT_MODE", "")
	t.Setenv("OTEL_COLLECTOR_ADDR", "")
	t.Setenv("OTEL_INSECURE", "")
}

func TestValidateEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := ValidateEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "production", cfg.GoEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.AllowDevTokenIssuer)
	assert.False(t, cfg.RedisEnabled)
	assert.Equal(t, DefaultTurnTTLSeconds, cfg.TurnTTLSeconds)
	assert.Equal(t, int64(DefaultTurnRateLimitMax), cfg.TurnRateLimitMax)
	assert.Equal(t, DefaultTurnRateLimitWindowSec, cfg.TurnRateLimitWindowSec)
	assert.Empty(t, cfg.TurnURLs)
}

func TestValidateEnv_StunURLs(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STUN_URLS", "stun:stun-a:3478,stun:stun-b:3478")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"stun:stun-a:3478", "stun:stun-b:3478"}, cfg.StunURLs)

	// The Google default only applies when the variable is absent entirely.
	t.Setenv("STUN_URLS", "placeholder")
	require.NoError(t, os.Unsetenv("STUN_URLS"))
	cfg, err = ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultStunURL}, cfg.StunURLs)
}

func TestValidateEnv_RequiredVariables(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T)
		errMsg string
	}{
		{"missing join secret", func(t *testing.T) { t.Setenv("JOIN_TOKEN_SECRET", "") }, "JOIN_TOKEN_SECRET is required"},
		{"short join secret", func(t *testing.T) { t.Setenv("JOIN_TOKEN_SECRET", "too-short") }, "at least 32 characters"},
		{"missing internal secret", func(t *testing.T) { t.Setenv("INTERNAL_API_SECRET", "") }, "INTERNAL_API_SECRET is required"},
		{"missing port", func(t *testing.T) { t.Setenv("PORT", "") }, "PORT is required"},
		{"bad port", func(t *testing.T) { t.Setenv("PORT", "99999") }, "valid port number"},
		{"turn urls without secret", func(t *testing.T) { t.Setenv("TURN_URLS", "turn:relay:3478") }, "TURN_SHARED_SECRET is required"},
		{"bad redis addr", func(t *testing.T) {
			t.Setenv("REDIS_ENABLED", "true")
			t.Setenv("REDIS_ADDR", "no-port")
		}, "REDIS_ADDR"},
		{"bad otel collector addr", func(t *testing.T) { t.Setenv("OTEL_COLLECTOR_ADDR", "no-port") }, "OTEL_COLLECTOR_ADDR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			tt.mutate(t)

			_, err := ValidateEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateEnv_TurnConfiguration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TURN_URLS", "turn:relay-a:3478, turn:relay-b:3478,turn:relay-a:3478")
	t.Setenv("TURN_SHARED_SECRET", "relay-secret")
	t.Setenv("TURN_TTL_SECONDS", "30")
	t.Setenv("TURN_RATE_LIMIT_MAX", "5")
	t.Setenv("TURN_RATE_LIMIT_WINDOW_SEC", "120")

	cfg, err := ValidateEnv()
	require.NoError(t, err)

	// Trimmed, deduplicated, first-seen order.
	assert.Equal(t, []string{"turn:relay-a:3478", "turn:relay-b:3478"}, cfg.TurnURLs)
	// TTL clamped to the floor.
	assert.Equal(t, MinTurnTTLSeconds, cfg.TurnTTLSeconds)
	assert.Equal(t, int64(5), cfg.TurnRateLimitMax)
	assert.Equal(t, 120, cfg.TurnRateLimitWindowSec)
}

func TestValidateEnv_RedisDefaultAddr(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestValidateEnv_OtelCollector(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := ValidateEnv()
	require.NoError(t, err)
	assert.Empty(t, cfg.OtelCollectorAddr)

	t.Setenv("OTEL_COLLECTOR_ADDR", "otel-collector:4318")
	t.Setenv("OTEL_INSECURE", "true")
	cfg, err = ValidateEnv()
	require.NoError(t, err)
	assert.Equal(t, "otel-collector:4318", cfg.OtelCollectorAddr)
	assert.True(t, cfg.OtelInsecure)
}

func TestValidateEnv_CollectsAllErrors(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JOIN_TOKEN_SECRET", "")
	t.Setenv("PORT", "")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOIN_TOKEN_SECRET")
	assert.Contains(t, err.Error(), "PORT")
}
