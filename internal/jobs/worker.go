package jobs

import (
	"context"
	"sync/atomic"

	"github.com/hibiken/asynq"

	"github.com/arrowhq/sentinel/internal/telemetry"
)

// Worker processes tasks pulled from the typed queues (§5
// "Scheduling"). One worker binary runs many of these concurrently;
// workers are interchangeable and compete for queue items.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	isRunning atomic.Bool
}

// NewWorker builds a worker bound to the queue weights from §5's
// typed-queue model: scraping gets the largest share since it's the
// Fetcher-bound bulk of the work, analytics and telegram the smallest.
// Weights only set each queue's share of the pool; no queue, telegram
// included, is limited to one task at a time.
func NewWorker(redisURL string, concurrency int) (*Worker, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault:   3,
			QueueScraping:  5,
			QueueAnalytics: 1,
			QueueTelegram:  1,
		},
	})

	return &Worker{server: server, mux: asynq.NewServeMux()}, nil
}

// RegisterHandler binds a task type to its handler.
func (w *Worker) RegisterHandler(taskType string, handler asynq.Handler) {
	w.mux.Handle(taskType, handler)
	telemetry.GetContextualLogger(context.Background()).WithField("task_type", taskType).Info("registered task handler")
}

// Run starts the worker server. Blocks until Shutdown is called.
func (w *Worker) Run() error {
	w.isRunning.Store(true)
	defer w.isRunning.Store(false)
	return w.server.Run(w.mux)
}

// Shutdown gracefully stops the worker.
func (w *Worker) Shutdown() {
	w.isRunning.Store(false)
	w.server.Shutdown()
}

// IsHealthy reports whether the worker server is currently running.
func (w *Worker) IsHealthy() bool {
	return w.isRunning.Load()
}
