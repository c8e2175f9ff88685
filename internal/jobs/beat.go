package jobs

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/arrowhq/sentinel/internal/telemetry"
)

// Beat drives the wall-clock ticks that enqueue the periodic task
// types (crawl:plan, digest:evaluate, crawl:sweep, notify:dispatch).
// It is deliberately separate from asynq's own queue processing: Beat
// owns only "when", the Worker owns "how" a task runs once enqueued.
type Beat struct {
	cron   *cron.Cron
	client *asynq.Client
}

// NewBeat builds a Beat with second-resolution cron scheduling.
func NewBeat(client *asynq.Client) *Beat {
	return &Beat{
		cron:   cron.New(cron.WithSeconds()),
		client: client,
	}
}

// ScheduleCrawlPlan enqueues crawl:plan on the given cron spec (e.g.
// every minute: "0 * * * * *"). The Planner itself decides which
// profiles are actually due, so Beat only needs to tick often enough
// that no schedule's due window is missed.
func (b *Beat) ScheduleCrawlPlan(spec string) error {
	return b.addEnqueue(spec, TypeCrawlPlan, QueueDefault)
}

// ScheduleDigestEvaluate enqueues digest:evaluate on the given cron
// spec (§4.8 runs this sweep hourly).
func (b *Beat) ScheduleDigestEvaluate(spec string) error {
	return b.addEnqueue(spec, TypeDigestEvaluate, QueueDefault)
}

// ScheduleCrawlSweep enqueues crawl:sweep on the given cron spec.
func (b *Beat) ScheduleCrawlSweep(spec string) error {
	return b.addEnqueue(spec, TypeCrawlSweep, QueueDefault)
}

// ScheduleNotifyDispatch enqueues notify:dispatch on the given cron
// spec, draining the NotificationEvent outbox (§4.7).
func (b *Beat) ScheduleNotifyDispatch(spec string) error {
	return b.addEnqueue(spec, TypeNotifyDispatch, QueueDefault)
}

// ScheduleHealthSweep enqueues health:sweep on the given cron spec,
// refreshing the per-company dead-URL gauge.
func (b *Beat) ScheduleHealthSweep(spec string) error {
	return b.addEnqueue(spec, TypeHealthSweep, QueueAnalytics)
}

// ScheduleDLQCheck enqueues notify:dlq_check on the given cron spec,
// sampling the dead-letter queue for the Sentry health alert.
func (b *Beat) ScheduleDLQCheck(spec string) error {
	return b.addEnqueue(spec, TypeDLQCheck, QueueAnalytics)
}

func (b *Beat) addEnqueue(spec, taskType, queue string) error {
	_, err := b.cron.AddFunc(spec, func() {
		ctx := context.Background()
		logger := telemetry.GetContextualLogger(ctx).WithField("task_type", taskType)
		if _, err := b.client.EnqueueContext(ctx, asynq.NewTask(taskType, nil), asynq.Queue(queue)); err != nil {
			logger.WithField("error", err.Error()).Warn("beat failed to enqueue task")
		}
	})
	return err
}

// Run starts the cron scheduler and blocks until ctx is cancelled.
func (b *Beat) Run(ctx context.Context) error {
	b.cron.Start()
	<-ctx.Done()
	stopCtx := b.cron.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}
