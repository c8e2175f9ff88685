// Package jobs wires the Crawl Coordinator, Change Detector,
// Notification Core, and Digest Scheduler onto asynq: typed queues,
// task handlers, and the dedup guard and sweeper that keep the
// worker pool honest under crashes and re-emits (§5).
package jobs

import (
	"encoding/json"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/models"
)

// Task type identifiers. Naming follows "domain:action".
const (
	TypeCrawlPlan      = "crawl:plan"
	TypeCrawlIngest    = "crawl:ingest"
	TypeCrawlSweep     = "crawl:sweep"
	TypeNotifyDispatch = "notify:dispatch"
	TypeDigestEvaluate = "digest:evaluate"
	TypeHealthSweep    = "health:sweep"
	TypeDLQCheck       = "notify:dlq_check"
)

// Queue names, typed per §5's concurrency model.
const (
	QueueDefault   = "default"
	QueueScraping  = "scraping"
	QueueAnalytics = "analytics"
	QueueTelegram  = "telegram"
)

// CrawlIngestPayload carries the due SourceProfile a crawl:ingest task
// should run, as resolved by the crawl:plan handler. Carrying the
// whole profile rather than just its ID avoids a second round trip to
// re-fetch it inside the ingest task.
type CrawlIngestPayload struct {
	Profile models.SourceProfile `json:"profile"`
}

func (p CrawlIngestPayload) marshal() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, apperr.Parse("jobs.CrawlIngestPayload", "failed to marshal payload", err)
	}
	return b, nil
}

func unmarshalCrawlIngestPayload(raw []byte) (CrawlIngestPayload, error) {
	var p CrawlIngestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, apperr.Parse("jobs.CrawlIngestPayload", "failed to unmarshal payload", err)
	}
	return p, nil
}
