// Package main is the entry point for the competitor-intelligence
// beat binary: the wall-clock tick driver that enqueues crawl:plan,
// digest:evaluate, crawl:sweep, notify:dispatch, health:sweep, and
// notify:dlq_check onto the shared asynq queues on a cron schedule.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/arrowhq/sentinel/internal/cache"
	"github.com/arrowhq/sentinel/internal/config"
	"github.com/arrowhq/sentinel/internal/jobs"
	"github.com/arrowhq/sentinel/internal/obs"
	"github.com/arrowhq/sentinel/internal/store"
	"github.com/arrowhq/sentinel/internal/telemetry"
)

func main() {
	log.Println("Starting sentinel beat service...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := telemetry.InitGlobalLogger(&telemetry.LogConfig{
		Level:  telemetry.LogLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	telemetry.SetServiceName("sentinel-beat")

	otelProvider, err := telemetry.NewProvider(&telemetry.Config{
		ServiceName:  "sentinel-beat",
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTelEndpoint,
		Enabled:      cfg.OTelEnabled,
	})
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	db, err := store.NewInstrumentedConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisCfg, err := cache.ParseRedisURL(cfg.RedisURL, 5)
	if err != nil {
		log.Fatalf("Failed to parse REDIS_URL: %v", err)
	}
	redisService, err := cache.NewRedisService(redisCfg)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisService.Close()

	asynqRedisOpt, err := asynq.ParseRedisURI(cfg.NotifyRedisURL)
	if err != nil {
		log.Fatalf("Failed to parse NOTIFY_REDIS_URL for asynq: %v", err)
	}
	asynqClient := asynq.NewClient(asynqRedisOpt)
	defer asynqClient.Close()

	beat := jobs.NewBeat(asynqClient)

	// crawl:plan ticks every minute; the Planner itself decides which
	// profiles are actually due.
	if err := beat.ScheduleCrawlPlan("0 * * * * *"); err != nil {
		log.Fatalf("Failed to schedule crawl:plan: %v", err)
	}
	// digest:evaluate runs the hourly eligibility sweep (§4.8).
	if err := beat.ScheduleDigestEvaluate("0 0 * * * *"); err != nil {
		log.Fatalf("Failed to schedule digest:evaluate: %v", err)
	}
	// crawl:sweep reconciles stuck runs every five minutes.
	if err := beat.ScheduleCrawlSweep("0 */5 * * * *"); err != nil {
		log.Fatalf("Failed to schedule crawl:sweep: %v", err)
	}
	// notify:dispatch drains the outbox every ten seconds.
	if err := beat.ScheduleNotifyDispatch("*/10 * * * * *"); err != nil {
		log.Fatalf("Failed to schedule notify:dispatch: %v", err)
	}
	// health:sweep refreshes the per-company dead-URL gauge every two minutes.
	if err := beat.ScheduleHealthSweep("0 */2 * * * *"); err != nil {
		log.Fatalf("Failed to schedule health:sweep: %v", err)
	}
	// notify:dlq_check samples the dead-letter queue every five minutes.
	if err := beat.ScheduleDLQCheck("0 */5 * * * *"); err != nil {
		log.Fatalf("Failed to schedule notify:dlq_check: %v", err)
	}

	metrics := obs.New()
	healthServer := obs.NewServer(cfg.MetricsHost, cfg.MetricsPort, metrics, map[string]obs.Pinger{
		"database": db,
		"redis":    redisService,
	}, cfg.OTelEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Println("Starting observability server...")
		return healthServer.Run(gctx)
	})

	g.Go(func() error {
		log.Println("Starting beat scheduler...")
		return beat.Run(gctx)
	})

	<-ctx.Done()
	log.Println("Shutting down beat service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := otelProvider.Shutdown(shutdownCtx); err != nil {
		log.Printf("OpenTelemetry shutdown error: %v", err)
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Printf("beat service exited with error: %v", err)
	}

	log.Println("Beat service stopped")
}
