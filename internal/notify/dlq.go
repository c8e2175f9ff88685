package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/arrowhq/sentinel/internal/store"
	"github.com/arrowhq/sentinel/internal/telemetry"
)

// DLQ size thresholds and staleness window for the health check (§7).
const (
	dlqWarningThreshold  = 10
	dlqCriticalThreshold = 50
	dlqStaleAfter         = 24 * time.Hour
)

// DLQMonitor periodically samples the dead-letter queue of permanently
// failed notification deliveries and raises a Sentry alert once it
// crosses a size threshold or accumulates stale items (Supplemented
// feature: "DLQ health alerting").
type DLQMonitor struct {
	deliveries *store.DeliveryRepository
	enabled    bool
}

// NewDLQMonitor builds a monitor. dsn may be empty, in which case
// Sentry reporting is a no-op and CheckDLQHealth only logs.
func NewDLQMonitor(deliveries *store.DeliveryRepository, dsn, environment string) (*DLQMonitor, error) {
	m := &DLQMonitor{deliveries: deliveries}
	if dsn == "" {
		return m, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	}); err != nil {
		return nil, fmt.Errorf("notify.NewDLQMonitor: sentry init failed: %w", err)
	}
	m.enabled = true
	return m, nil
}

// CheckDLQHealth samples the DLQ size and stale-item count and raises
// a Sentry alert at warning (>=10) and critical (>=50) thresholds.
func (m *DLQMonitor) CheckDLQHealth(ctx context.Context) error {
	logger := telemetry.GetContextualLogger(ctx).WithField("component", "notify.DLQMonitor")

	size, err := m.deliveries.CountDLQ(ctx)
	if err != nil {
		return err
	}
	stale, err := m.deliveries.CountStaleDLQ(ctx, time.Now().UTC().Add(-dlqStaleAfter))
	if err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"dlq_size":   size,
		"dlq_stale":  stale,
	}).Info("dlq health check completed")

	level := sentry.LevelInfo
	switch {
	case size >= dlqCriticalThreshold:
		level = sentry.LevelFatal
	case size >= dlqWarningThreshold:
		level = sentry.LevelWarning
	case stale > 0:
		level = sentry.LevelWarning
	default:
		return nil
	}

	message := fmt.Sprintf("notification DLQ size=%d stale=%d", size, stale)
	logger.WithField("level", string(level)).Warn(message)

	if !m.enabled {
		return nil
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetTag("component", "notify.dlq")
		scope.SetExtra("dlq_size", size)
		scope.SetExtra("dlq_stale", stale)
		sentry.CaptureMessage(message)
	})
	return nil
}
