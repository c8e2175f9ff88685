// Package config provides environment-driven configuration for the
// beat and worker binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/arrowhq/sentinel/internal/apperr"
)

// Config holds all runtime settings shared by cmd/beat and cmd/worker.
type Config struct {
	Environment string
	LogLevel    string
	LogFormat   string
	LogOutput   string

	DatabaseURL string

	// RedisURL backs internal/cache (health ledger, schedule cache,
	// rate-limit buckets) over go-redis v8.
	RedisURL string
	// NotifyRedisURL backs internal/notify (event queue, dedup, locks)
	// over go-redis v9. Defaults to RedisURL when unset.
	NotifyRedisURL string

	OTelEnabled      bool
	OTelEndpoint     string
	MetricsHost      string
	MetricsPort      int

	SentryDSN string

	WorkerConcurrency int
	BeatDefaultJitter time.Duration

	FetchTimeout       time.Duration
	FetchMaxRetries    int
	FetchUserAgent     string
	FetchPerHostRPS    float64
	FetchProxyURL      string
	HeadlessFallbackURL string

	TelegramBotToken         string
	TelegramRatePerSecond    float64
	TelegramBucketCapacity   float64

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPStartTLS bool

	DigestEvaluationInterval time.Duration
	DigestDefaultHour        int

	DispatchBatchSize int
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		LogOutput:   getEnv("LOG_OUTPUT", "stdout"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
		NotifyRedisURL: getEnv("NOTIFY_REDIS_URL", ""),

		OTelEnabled:  getEnv("OTEL_ENABLED", "true") == "true",
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
		MetricsHost:  getEnv("METRICS_HOST", "0.0.0.0"),
		MetricsPort:  getEnvInt("METRICS_PORT", 9090),

		SentryDSN: getEnv("SENTRY_DSN", ""),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),
		BeatDefaultJitter: getEnvDuration("BEAT_DEFAULT_JITTER", 2*time.Minute),

		FetchTimeout:        getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		FetchMaxRetries:     getEnvInt("FETCH_MAX_RETRIES", 3),
		FetchUserAgent:      getEnv("FETCH_USER_AGENT", "sentinel-crawler/1.0"),
		FetchPerHostRPS:     getEnvFloat("FETCH_PER_HOST_RPS", 0.5),
		FetchProxyURL:       getEnv("FETCH_PROXY_URL", ""),
		HeadlessFallbackURL: getEnv("HEADLESS_FALLBACK_URL", ""),

		TelegramBotToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramRatePerSecond:  getEnvFloat("TELEGRAM_RATE_PER_SECOND", 20),
		TelegramBucketCapacity: getEnvFloat("TELEGRAM_BUCKET_CAPACITY", 20),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPStartTLS: getEnv("SMTP_STARTTLS", "true") == "true",

		DigestEvaluationInterval: getEnvDuration("DIGEST_EVALUATION_INTERVAL", time.Hour),
		DigestDefaultHour:        getEnvInt("DIGEST_DEFAULT_HOUR", 9),

		DispatchBatchSize: getEnvInt("DISPATCH_BATCH_SIZE", 100),
	}

	if cfg.NotifyRedisURL == "" {
		cfg.NotifyRedisURL = cfg.RedisURL
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return apperr.Configuration("config.Load", "DATABASE_URL is required", nil)
	}
	if c.RedisURL == "" {
		return apperr.Configuration("config.Load", "REDIS_URL is required", nil)
	}
	if c.WorkerConcurrency <= 0 {
		return apperr.Configuration("config.Load", "WORKER_CONCURRENCY must be positive", nil)
	}
	if c.FetchPerHostRPS <= 0 {
		return apperr.Configuration("config.Load", "FETCH_PER_HOST_RPS must be positive", nil)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// RequireEnv fetches a required environment variable, returning a
// Configuration error naming op when absent.
func RequireEnv(op, key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", apperr.Configuration(op, fmt.Sprintf("%s is required", key), nil)
	}
	return val, nil
}
