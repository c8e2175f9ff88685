// Package crawl implements the Crawl Coordinator: the Planner that
// selects due source profiles and the per-company ingestion routine
// that fetches, parses, and stores their content (§4.5).
package crawl

import (
	"context"
	"database/sql"
	"time"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/changes"
	"github.com/arrowhq/sentinel/internal/health"
	"github.com/arrowhq/sentinel/internal/models"
	"github.com/arrowhq/sentinel/internal/nlp"
	"github.com/arrowhq/sentinel/internal/notify"
	"github.com/arrowhq/sentinel/internal/registry"
	"github.com/arrowhq/sentinel/internal/schedule"
	"github.com/arrowhq/sentinel/internal/store"
	"github.com/arrowhq/sentinel/internal/telemetry"
)

// defaultMaxArticles bounds how many items a single ingestion task
// pulls per run when a profile doesn't override it (§4.5).
const defaultMaxArticles = 10

// lookbackWindow bounds how far back the skip-URL set is built from,
// so the set stays bounded on companies with a long ingestion history.
const lookbackWindow = 30 * 24 * time.Hour

// Coordinator wires the registry, store, schedule engine, health
// ledger, and change detector into the per-company ingestion routine.
type Coordinator struct {
	companies *store.CompanyRepository
	profiles  *store.SourceProfileRepository
	runs      *store.CrawlRunRepository
	news      *store.NewsItemRepository
	registry  *registry.Registry
	engine    *schedule.Engine
	ledger    *health.Ledger
	detector  *changes.Detector
	notifier  *notify.Core
}

func NewCoordinator(
	companies *store.CompanyRepository,
	profiles *store.SourceProfileRepository,
	runs *store.CrawlRunRepository,
	news *store.NewsItemRepository,
	reg *registry.Registry,
	engine *schedule.Engine,
	ledger *health.Ledger,
	detector *changes.Detector,
	notifier *notify.Core,
) *Coordinator {
	return &Coordinator{
		companies: companies,
		profiles:  profiles,
		runs:      runs,
		news:      news,
		registry:  reg,
		engine:    engine,
		ledger:    ledger,
		detector:  detector,
		notifier:  notifier,
	}
}

// Plan loads the current effective-schedule index and returns the
// profiles due to run right now. Enqueuing one ingestion task per
// entry is the caller's (asynq handler's) responsibility; Plan itself
// performs no side effects, so repeated calls are safe and idempotent
// from the Planner's point of view — the actual "already ran"
// idempotence comes from last_run_at being bumped inside Ingest.
func (c *Coordinator) Plan(ctx context.Context, now time.Time) ([]*models.SourceProfile, error) {
	idx, err := c.engine.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}
	return c.engine.DueProfiles(ctx, idx, now)
}

// Ingest runs one company/source-kind ingestion cycle end to end:
// opens a CrawlRun, resolves a provider, fetches items, persists new
// NewsItems (change-detection source kinds instead route through the
// Change Detector), classifies each item, and closes the run (§4.5).
func (c *Coordinator) Ingest(ctx context.Context, profile *models.SourceProfile) error {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"component":    "crawl.Coordinator",
		"company_id":   profile.CompanyID.String(),
		"source_kind":  string(profile.SourceKind),
	})

	company, err := c.companies.Get(ctx, profile.CompanyID)
	if err != nil {
		return err
	}
	ctx = telemetry.WithCompanyID(ctx, company.ID.String())

	now := time.Now().UTC()
	run := &models.CrawlRun{
		ID:         models.NewID(),
		ProfileID:  profile.ID,
		ScheduleID: profile.ScheduleID,
		Status:     models.RunRunning,
		StartedAt:  now,
	}
	if err := c.runs.Create(ctx, run); err != nil {
		return err
	}
	if err := c.profiles.MarkRunStarted(ctx, profile.ID, sql.NullTime{Time: now, Valid: true}); err != nil {
		logger.WithField("error", err.Error()).Warn("failed to bump last_run_at")
	}

	itemCount, changeDetected, ingestErr := c.runOnce(ctx, company, profile)

	if ingestErr != nil {
		if _, mErr := c.engine.RecordOutcome(ctx, profile.ID, false, "", false); mErr != nil {
			logger.WithField("error", mErr.Error()).Warn("failed to record failure outcome")
		}
		if finErr := c.runs.Finish(ctx, run.ID, models.RunFailed, itemCount, false, ingestErr.Error()); finErr != nil {
			logger.WithField("error", finErr.Error()).Warn("failed to finalize failed run")
		}
		return ingestErr
	}

	if _, mErr := c.engine.RecordOutcome(ctx, profile.ID, true, "", changeDetected); mErr != nil {
		logger.WithField("error", mErr.Error()).Warn("failed to record success outcome")
	}
	return c.runs.Finish(ctx, run.ID, models.RunSuccess, itemCount, changeDetected, "")
}

func (c *Coordinator) runOnce(ctx context.Context, company *models.Company, profile *models.SourceProfile) (int, bool, error) {
	if models.ChangeDetectionKinds[profile.SourceKind] {
		return c.runChangeDetection(ctx, company, profile)
	}
	return c.runNewsIngestion(ctx, company, profile)
}

func (c *Coordinator) runNewsIngestion(ctx context.Context, company *models.Company, profile *models.SourceProfile) (int, bool, error) {
	logger := telemetry.GetContextualLogger(ctx).WithField("component", "crawl.Coordinator")

	provider := c.registry.ResolveProvider(company, profile.SourceKind)
	defer provider.Close()

	skipURLs, err := c.recentSourceURLs(ctx, company.ID, time.Now().UTC().Add(-lookbackWindow))
	if err != nil {
		return 0, false, err
	}

	items, err := provider.Fetch(ctx, company, registry.FetchOptions{
		SourceKind:  profile.SourceKind,
		MaxArticles: defaultMaxArticles,
		SkipURLs:    skipURLs,
	})
	if err != nil {
		if apperr.IsPermanent(err) {
			_ = c.ledger.Record(ctx, company.Website, health.OutcomeHardFailure)
		} else if apperr.IsRetryable(err) {
			_ = c.ledger.Record(ctx, company.Website, health.OutcomeTransientFailure)
		}
		return 0, false, err
	}
	_ = c.ledger.Record(ctx, company.Website, health.OutcomeSuccess)

	count := 0
	for _, item := range items {
		exists, err := c.news.Exists(ctx, item.SourceURL)
		if err != nil {
			return count, count > 0, err
		}
		if exists {
			continue
		}

		classification := nlp.Classify(item.Title, item.Content)
		companyID := company.ID
		news := &models.NewsItem{
			ID:          models.NewID(),
			CompanyID:   &companyID,
			Title:       item.Title,
			Summary:     item.Summary,
			Content:     item.Content,
			SourceURL:   item.SourceURL,
			SourceKind:  item.SourceKind,
			Category:    item.Category,
			Topic:       classification.Topic,
			Sentiment:   classification.Sentiment,
			Priority:    classification.Priority,
			Keywords:    classification.Keywords,
			PublishedAt: publishedOrNow(item.PublishedAt),
			CreatedAt:   time.Now().UTC(),
		}
		if err := c.news.Create(ctx, news); err != nil {
			if apperr.IsConflict(err) {
				continue // concurrent run already ingested this URL
			}
			return count, count > 0, err
		}
		count++

		if c.notifier != nil {
			if _, nErr := c.notifier.NotifyNewsItem(ctx, news, company.Name); nErr != nil {
				logger.WithField("error", nErr.Error()).Warn("failed to fan out news item notification")
			}
		}
	}

	return count, count > 0, nil
}

func (c *Coordinator) runChangeDetection(ctx context.Context, company *models.Company, profile *models.SourceProfile) (int, bool, error) {
	event, err := c.detector.Observe(ctx, company, profile.SourceKind)
	if err != nil {
		if apperr.IsPermanent(err) {
			_ = c.ledger.Record(ctx, company.Website, health.OutcomeHardFailure)
		} else if apperr.IsRetryable(err) {
			_ = c.ledger.Record(ctx, company.Website, health.OutcomeTransientFailure)
		}
		return 0, false, err
	}
	_ = c.ledger.Record(ctx, company.Website, health.OutcomeSuccess)

	if event == nil {
		return 0, false, nil
	}

	if c.notifier != nil {
		logger := telemetry.GetContextualLogger(ctx).WithField("component", "crawl.Coordinator")
		if _, nErr := c.notifier.NotifyChangeEvent(ctx, event, company.Name); nErr != nil {
			logger.WithField("error", nErr.Error()).Warn("failed to fan out change event notification")
		}
	}
	return 1, true, nil
}

func (c *Coordinator) recentSourceURLs(ctx context.Context, companyID models.ID, since time.Time) (map[string]bool, error) {
	items, err := c.news.ListByCompanySince(ctx, companyID, since, time.Now().UTC().Add(time.Hour))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		seen[it.SourceURL] = true
	}
	return seen, nil
}

func publishedOrNow(t *time.Time) time.Time {
	if t == nil {
		return time.Now().UTC()
	}
	return *t
}
