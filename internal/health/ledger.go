// Package health implements the Health Ledger: per-URL fetch-outcome
// bookkeeping that disables chronically failing URLs and re-enables
// them after a probation fetch succeeds (§4.2).
package health

import (
	"context"
	"time"

	"github.com/arrowhq/sentinel/internal/cache"
	"github.com/arrowhq/sentinel/internal/telemetry"
)

// Outcome is the result of one fetch attempt, as reported by the Fetcher.
type Outcome int

const (
	// OutcomeSuccess resets the URL's failure counter.
	OutcomeSuccess Outcome = iota
	// OutcomeHardFailure is a 404/410/DNS-no-such-host style permanent
	// error; it counts a full point toward the disable threshold.
	OutcomeHardFailure
	// OutcomeTransientFailure is a connect/timeout/5xx/429 style error;
	// it counts a half point toward the disable threshold (§4.2).
	OutcomeTransientFailure
)

// pointsPerHardFailure/pointsPerTransientFailure encode the spec's
// "transient failures count as ½ toward the threshold" rule as
// integers, since the underlying counter is Redis INCRBY.
const (
	pointsPerHardFailure      = 2
	pointsPerTransientFailure = 1
)

// Config tunes disable/probation behavior.
type Config struct {
	// ConsecutiveHardFailures is N in the spec's worked example: a URL
	// is disabled once its score reaches N hard-failure-equivalents.
	ConsecutiveHardFailures int
	// ProbationInterval is how long a URL stays disabled before a
	// single trial fetch is attempted again.
	ProbationInterval time.Duration
}

// DefaultConfig matches the spec's worked example (S4): three
// consecutive hard failures disable a URL.
func DefaultConfig() Config {
	return Config{
		ConsecutiveHardFailures: 3,
		ProbationInterval:       6 * time.Hour,
	}
}

func (c Config) threshold() int64 {
	return int64(c.ConsecutiveHardFailures * pointsPerHardFailure)
}

// Ledger is the Health Ledger, backed by the shared Redis cache for
// cross-process consistency.
type Ledger struct {
	redis *cache.RedisService
	cfg   Config
}

func NewLedger(redis *cache.RedisService, cfg Config) *Ledger {
	return &Ledger{redis: redis, cfg: cfg}
}

// IsDisabled reports whether a URL is currently in its disabled window.
// A URL whose disabled-until marker has passed is eligible for
// probation and is reported as not disabled here; Record is
// responsible for clearing the marker on a successful probation fetch.
func (l *Ledger) IsDisabled(ctx context.Context, url string) (bool, error) {
	until, ok, err := l.redis.GetURLDisabledUntil(url)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return time.Now().Before(until), nil
}

// Record applies a fetch outcome to the URL's running score, disabling
// the URL once the threshold is crossed and resetting fully on success
// (a successful probation fetch fully re-enables and resets counters).
func (l *Ledger) Record(ctx context.Context, url string, outcome Outcome) error {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"component": "health.Ledger",
		"url":       url,
	})

	switch outcome {
	case OutcomeSuccess:
		if err := l.redis.ResetFailureCount(url); err != nil {
			return err
		}
		if err := l.redis.SetURLDisabledUntil(url, time.Time{}); err != nil {
			return err
		}
		logger.Debug("fetch succeeded, failure score reset")
		return nil

	case OutcomeHardFailure:
		return l.bump(url, pointsPerHardFailure, logger)

	case OutcomeTransientFailure:
		return l.bump(url, pointsPerTransientFailure, logger)

	default:
		return nil
	}
}

func (l *Ledger) bump(url string, points int64, logger *telemetry.ContextualLogger) error {
	score, err := l.redis.IncrFailureScoreBy(url, points)
	if err != nil {
		return err
	}
	if score >= l.cfg.threshold() {
		until := time.Now().Add(l.cfg.ProbationInterval)
		if err := l.redis.SetURLDisabledUntil(url, until); err != nil {
			return err
		}
		logger.WithField("score", score).Warn("URL disabled after crossing failure threshold")
	}
	return nil
}
