package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/arrowhq/sentinel/internal/crawl"
	"github.com/arrowhq/sentinel/internal/digest"
	"github.com/arrowhq/sentinel/internal/health"
	"github.com/arrowhq/sentinel/internal/notify"
	"github.com/arrowhq/sentinel/internal/store"
	"github.com/arrowhq/sentinel/internal/telemetry"
)

// CrawlPlanHandler loads the profiles due to run right now and
// enqueues one crawl:ingest task per profile (§4.5 "Planner").
type CrawlPlanHandler struct {
	coordinator *crawl.Coordinator
	client      *asynq.Client
}

func NewCrawlPlanHandler(coordinator *crawl.Coordinator, client *asynq.Client) *CrawlPlanHandler {
	return &CrawlPlanHandler{coordinator: coordinator, client: client}
}

func (h *CrawlPlanHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logger := telemetry.GetContextualLogger(ctx).WithField("task_type", TypeCrawlPlan)

	due, err := h.coordinator.Plan(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, profile := range due {
		payload, err := CrawlIngestPayload{Profile: *profile}.marshal()
		if err != nil {
			logger.WithField("error", err.Error()).Warn("failed to marshal ingest payload")
			continue
		}
		if _, err := h.client.EnqueueContext(ctx, asynq.NewTask(TypeCrawlIngest, payload), asynq.Queue(QueueScraping)); err != nil {
			logger.WithField("error", err.Error()).Warn("failed to enqueue crawl:ingest")
		}
	}

	logger.WithField("due_count", len(due)).Info("crawl plan evaluated")
	return nil
}

// CrawlIngestHandler runs one profile's ingestion cycle, guarded by a
// per-(company, source_kind) dedup lock so a re-emitted task within
// the TTL short-circuits instead of racing an in-flight run (§5
// "Ordering guarantees", "Deduplication guard").
type CrawlIngestHandler struct {
	coordinator *crawl.Coordinator
	dedup       *DedupGuard
}

func NewCrawlIngestHandler(coordinator *crawl.Coordinator, dedup *DedupGuard) *CrawlIngestHandler {
	return &CrawlIngestHandler{coordinator: coordinator, dedup: dedup}
}

func (h *CrawlIngestHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := unmarshalCrawlIngestPayload(t.Payload())
	if err != nil {
		return err
	}
	profile := payload.Profile

	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"task_type":   TypeCrawlIngest,
		"company_id":  profile.CompanyID.String(),
		"source_kind": string(profile.SourceKind),
	})

	lockName := fmt.Sprintf("%s:%s", profile.CompanyID.String(), profile.SourceKind)
	acquired, err := h.dedup.Acquire(ctx, lockName)
	if err != nil {
		logger.WithField("error", err.Error()).Warn("dedup guard unavailable, proceeding without it")
	} else if !acquired {
		logger.Info("duplicate ingest task within dedup TTL, skipping")
		return nil
	}

	return h.coordinator.Ingest(ctx, &profile)
}

// NotifyDispatchHandler drains due NotificationEvents through the
// Notification Core's delivery executor (§4.7).
type NotifyDispatchHandler struct {
	core      *notify.Core
	batchSize int
}

func NewNotifyDispatchHandler(core *notify.Core, batchSize int) *NotifyDispatchHandler {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &NotifyDispatchHandler{core: core, batchSize: batchSize}
}

func (h *NotifyDispatchHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	processed, err := h.core.Dispatch(ctx, time.Now().UTC(), h.batchSize)
	if err != nil {
		return err
	}
	telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"task_type": TypeNotifyDispatch,
		"processed": processed,
	}).Info("notification dispatch batch processed")
	return nil
}

// DigestEvaluateHandler runs one hourly digest eligibility sweep
// (§4.8).
type DigestEvaluateHandler struct {
	scheduler *digest.Scheduler
}

func NewDigestEvaluateHandler(scheduler *digest.Scheduler) *DigestEvaluateHandler {
	return &DigestEvaluateHandler{scheduler: scheduler}
}

func (h *DigestEvaluateHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	evaluated, delivered, err := h.scheduler.Run(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"task_type": TypeDigestEvaluate,
		"evaluated": evaluated,
		"delivered": delivered,
	}).Info("digest sweep completed")
	return nil
}

// CrawlSweepHandler reconciles CrawlRuns stuck in "running" past the
// hard deadline (§5 "Cancellation") and NotificationEvents whose
// deliveries were orphaned between Postgres and the Redis queue after
// a worker crash mid-dispatch (§5 "Reconciliation sweep").
type CrawlSweepHandler struct {
	runs         *store.CrawlRunRepository
	events       *store.EventRepository
	hardDeadline time.Duration
}

func NewCrawlSweepHandler(runs *store.CrawlRunRepository, events *store.EventRepository, hardDeadline time.Duration) *CrawlSweepHandler {
	if hardDeadline <= 0 {
		hardDeadline = 30 * time.Minute
	}
	return &CrawlSweepHandler{runs: runs, events: events, hardDeadline: hardDeadline}
}

func (h *CrawlSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logger := telemetry.GetContextualLogger(ctx).WithField("task_type", TypeCrawlSweep)

	n, err := h.runs.ReconcileStuck(ctx, h.hardDeadline)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.WithFields(map[string]interface{}{
			"reconciled":    n,
			"hard_deadline": h.hardDeadline.String(),
		}).Warn("reconciled stuck crawl runs")
	}

	requeued, err := h.events.ReconcileOrphaned(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if requeued > 0 {
		logger.WithField("requeued_events", requeued).Warn("requeued orphaned notification events")
	}
	return nil
}

// DeadURLSweepHandler runs the periodic per-company dead-URL gauge
// sweep (§8 "Dead-URL metric emission").
type DeadURLSweepHandler struct {
	sweeper *health.DeadURLSweeper
}

func NewDeadURLSweepHandler(sweeper *health.DeadURLSweeper) *DeadURLSweepHandler {
	return &DeadURLSweepHandler{sweeper: sweeper}
}

func (h *DeadURLSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	dead, err := h.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	if dead > 0 {
		telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
			"task_type": TypeHealthSweep,
			"dead":      dead,
		}).Warn("dead-url sweep found disabled companies")
	}
	return nil
}

// DLQCheckHandler runs the periodic dead-letter-queue health check
// (§7 "DLQ health alerting").
type DLQCheckHandler struct {
	monitor *notify.DLQMonitor
}

func NewDLQCheckHandler(monitor *notify.DLQMonitor) *DLQCheckHandler {
	return &DLQCheckHandler{monitor: monitor}
}

func (h *DLQCheckHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	return h.monitor.CheckDLQHealth(ctx)
}
