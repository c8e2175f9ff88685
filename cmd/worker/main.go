// Package main is the entry point for the competitor-intelligence
// worker binary: processes crawl, ingest, notify, digest, and sweep
// tasks pulled off the typed asynq queues.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/arrowhq/sentinel/internal/cache"
	"github.com/arrowhq/sentinel/internal/changes"
	"github.com/arrowhq/sentinel/internal/config"
	"github.com/arrowhq/sentinel/internal/crawl"
	"github.com/arrowhq/sentinel/internal/digest"
	"github.com/arrowhq/sentinel/internal/fetch"
	"github.com/arrowhq/sentinel/internal/health"
	"github.com/arrowhq/sentinel/internal/jobs"
	"github.com/arrowhq/sentinel/internal/notify"
	"github.com/arrowhq/sentinel/internal/notify/transport"
	"github.com/arrowhq/sentinel/internal/obs"
	"github.com/arrowhq/sentinel/internal/providers"
	"github.com/arrowhq/sentinel/internal/registry"
	"github.com/arrowhq/sentinel/internal/schedule"
	"github.com/arrowhq/sentinel/internal/store"
	"github.com/arrowhq/sentinel/internal/telemetry"

	redisv9 "github.com/redis/go-redis/v9"
)

func main() {
	log.Println("Starting sentinel worker service...")

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
	telemetry.SetServiceName("sentinel-worker")

	otelProvider, err := telemetry.NewProvider(&telemetry.Config{
		ServiceName:  "sentinel-worker",
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

	redisCfg, err := cache.ParseRedisURL(cfg.RedisURL, 10)
	if err != nil {
		log.Fatalf("Failed to parse REDIS_URL: %v", err)
	}
	redisService, err := cache.NewInstrumentedRedisService(redisCfg)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisService.Close()

	notifyRedisOpts, err := redisv9.ParseURL(cfg.NotifyRedisURL)
	if err != nil {
		log.Fatalf("Failed to parse NOTIFY_REDIS_URL: %v", err)
	}
	notifyRedisClient := redisv9.NewClient(notifyRedisOpts)
	defer notifyRedisClient.Close()

	companies := store.NewCompanyRepository(db)
	profiles := store.NewSourceProfileRepository(db)
	runs := store.NewCrawlRunRepository(db)
	newsItems := store.NewNewsItemRepository(db)
	schedules := store.NewScheduleRepository(db)
	pricingSnapshots := store.NewPricingSnapshotRepository(db)
	snapshots := store.NewSnapshotRepository(db)
	changeEvents := store.NewChangeEventRepository(db)
	channels := store.NewChannelRepository(db)
	subscriptions := store.NewSubscriptionRepository(db)
	events := store.NewEventRepository(db)
	deliveries := store.NewDeliveryRepository(db)
	digestPrefs := store.NewDigestPreferencesRepository(db)

	fetcher := fetch.New(&http.Client{Timeout: cfg.FetchTimeout}, redisService, nil, nil, cfg.FetchUserAgent, cfg.FetchPerHostRPS)

	reg := registry.New(nil)
	reg.SetFallback(providers.NewDefaultProvider(fetcher, reg))

	engine := schedule.NewEngine(schedules, profiles, redisService)
	ledger := health.NewLedger(redisService, health.DefaultConfig())
	detector := changes.NewDetector(fetcher, reg, pricingSnapshots, snapshots, changeEvents)

	core := notify.NewCore(channels, subscriptions, events, deliveries)
	wireNotifySenders(core, cfg, notifyRedisClient)

	coordinator := crawl.NewCoordinator(companies, profiles, runs, newsItems, reg, engine, ledger, detector, core)

	digestScheduler := digest.NewScheduler(digestPrefs, channels, companies, newsItems)
	wireDigestSenders(digestScheduler, cfg, notifyRedisClient)

	metrics := obs.New()
	deadURLSweeper := health.NewDeadURLSweeper(ledger, companies, metrics)

	dlqMonitor, err := notify.NewDLQMonitor(deliveries, cfg.SentryDSN, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize DLQ monitor: %v", err)
	}

	asynqClient := asynq.NewClient(mustRedisOpt(cfg.NotifyRedisURL))
	defer asynqClient.Close()

	dedupGuard := jobs.NewDedupGuard(notifyRedisClient, jobs.DefaultDedupTTL)

	worker, err := jobs.NewWorker(cfg.NotifyRedisURL, cfg.WorkerConcurrency)
	if err != nil {
		log.Fatalf("Failed to create worker: %v", err)
	}
	worker.RegisterHandler(jobs.TypeCrawlPlan, jobs.NewCrawlPlanHandler(coordinator, asynqClient))
	worker.RegisterHandler(jobs.TypeCrawlIngest, jobs.NewCrawlIngestHandler(coordinator, dedupGuard))
	worker.RegisterHandler(jobs.TypeCrawlSweep, jobs.NewCrawlSweepHandler(runs, events, 30*time.Minute))
	worker.RegisterHandler(jobs.TypeNotifyDispatch, jobs.NewNotifyDispatchHandler(core, cfg.DispatchBatchSize))
	worker.RegisterHandler(jobs.TypeDigestEvaluate, jobs.NewDigestEvaluateHandler(digestScheduler))
	worker.RegisterHandler(jobs.TypeHealthSweep, jobs.NewDeadURLSweepHandler(deadURLSweeper))
	worker.RegisterHandler(jobs.TypeDLQCheck, jobs.NewDLQCheckHandler(dlqMonitor))

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
		log.Println("Starting task worker...")
		return worker.Run()
	})

	<-ctx.Done()
	log.Println("Shutting down worker service...")

	worker.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := otelProvider.Shutdown(shutdownCtx); err != nil {
		log.Printf("OpenTelemetry shutdown error: %v", err)
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Printf("worker service exited with error: %v", err)
	}

	log.Println("Worker service stopped")
}

func wireNotifySenders(core *notify.Core, cfg *config.Config, redisClient *redisv9.Client) {
	if cfg.SMTPHost != "" {
		core.RegisterSender(transport.NewEmailSender(transport.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			StartTLS: cfg.SMTPStartTLS,
		}))
	}
	if cfg.TelegramBotToken != "" {
		core.RegisterSender(transport.NewTelegramSender(cfg.TelegramBotToken, cfg.FetchTimeout))
		core.SetTelegramLimiter(notify.NewTelegramLimiter(redisClient, cfg.TelegramRatePerSecond, cfg.TelegramBucketCapacity))
	}
	core.RegisterSender(transport.NewWebhookSender(cfg.FetchTimeout))
	core.RegisterSender(transport.NewSlackSender(cfg.FetchTimeout))
	core.RegisterSender(transport.NewZapierSender(cfg.FetchTimeout))
}

func wireDigestSenders(scheduler *digest.Scheduler, cfg *config.Config, redisClient *redisv9.Client) {
	if cfg.SMTPHost != "" {
		scheduler.RegisterSender(transport.NewEmailSender(transport.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			StartTLS: cfg.SMTPStartTLS,
		}))
	}
	if cfg.TelegramBotToken != "" {
		scheduler.RegisterSender(transport.NewTelegramSender(cfg.TelegramBotToken, cfg.FetchTimeout))
	}
	scheduler.RegisterSender(transport.NewWebhookSender(cfg.FetchTimeout))
	scheduler.RegisterSender(transport.NewSlackSender(cfg.FetchTimeout))
	scheduler.RegisterSender(transport.NewZapierSender(cfg.FetchTimeout))
}

func mustRedisOpt(redisURL string) asynq.RedisConnOpt {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		log.Fatalf("Failed to parse NOTIFY_REDIS_URL for asynq: %v", err)
	}
	return opt
}

