package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowhq/sentinel/internal/apperr"
)

func clearRequiredEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENVIRONMENT", "LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT", "DATABASE_URL",
		"REDIS_URL", "NOTIFY_REDIS_URL", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"METRICS_HOST", "METRICS_PORT", "SENTRY_DSN", "WORKER_CONCURRENCY",
		"BEAT_DEFAULT_JITTER", "FETCH_TIMEOUT", "FETCH_MAX_RETRIES", "FETCH_USER_AGENT",
		"FETCH_PER_HOST_RPS", "FETCH_PROXY_URL", "HEADLESS_FALLBACK_URL",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_RATE_PER_SECOND", "TELEGRAM_BUCKET_CAPACITY",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
		"SMTP_STARTTLS", "DIGEST_EVALUATION_INTERVAL", "DIGEST_DEFAULT_HOUR",
		"DISPATCH_BATCH_SIZE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_FailsWithoutRequiredDatabaseURL(t *testing.T) {
	clearRequiredEnv(t)
	_, err := Load()
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.KindConfiguration, kind)
}

func TestLoad_SucceedsWithRequiredEnvAndAppliesDefaults(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/sentinel")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 10, cfg.WorkerConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.BeatDefaultJitter)
	assert.Equal(t, 0.5, cfg.FetchPerHostRPS)
}

func TestLoad_NotifyRedisURLDefaultsToRedisURLWhenUnset(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/sentinel")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://cache:6379/1", cfg.NotifyRedisURL)
}

func TestLoad_NotifyRedisURLHonorsExplicitOverride(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/sentinel")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("NOTIFY_REDIS_URL", "redis://notify:6379/2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis://notify:6379/2", cfg.NotifyRedisURL)
}

func TestLoad_RejectsNonPositiveWorkerConcurrency(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/sentinel")
	t.Setenv("WORKER_CONCURRENCY", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsNonPositiveFetchPerHostRPS(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/sentinel")
	t.Setenv("FETCH_PER_HOST_RPS", "-1")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_InvalidIntEnvFallsBackToDefault(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/sentinel")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.WorkerConcurrency)
}

func TestConfig_IsDevelopment_TrueForDevelopmentAndDev(t *testing.T) {
	assert.True(t, (&Config{Environment: "development"}).IsDevelopment())
	assert.True(t, (&Config{Environment: "dev"}).IsDevelopment())
	assert.False(t, (&Config{Environment: "production"}).IsDevelopment())
}

func TestRequireEnv_ReturnsConfigurationErrorWhenUnset(t *testing.T) {
	t.Setenv("SOME_REQUIRED_VAR", "")
	_, err := RequireEnv("cmd.worker", "SOME_REQUIRED_VAR")
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.KindConfiguration, kind)
}

func TestRequireEnv_ReturnsValueWhenSet(t *testing.T) {
	t.Setenv("SOME_REQUIRED_VAR", "value")
	val, err := RequireEnv("cmd.worker", "SOME_REQUIRED_VAR")
	require.NoError(t, err)
	assert.Equal(t, "value", val)
}
