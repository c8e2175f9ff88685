package health

import (
	"context"

	"github.com/arrowhq/sentinel/internal/models"
	"github.com/arrowhq/sentinel/internal/obs"
	"github.com/arrowhq/sentinel/internal/telemetry"
)

// CompanyLister is the narrow slice of store.CompanyRepository the
// sweep needs, kept separate so this package doesn't depend on store's
// full surface.
type CompanyLister interface {
	ListAll(ctx context.Context) ([]*models.Company, error)
}

// DeadURLSweeper periodically walks every tracked company and reports
// its disabled-URL status to Prometheus as the
// sentinel_dead_urls_per_company gauge (§8/S4). A company's tracked URL is currently just its
// website root, so the gauge is 0/1 per company rather than a true
// per-URL count; it still answers the operational question the gauge
// exists for: "which companies have gone dark".
type DeadURLSweeper struct {
	ledger    *Ledger
	companies CompanyLister
	metrics   *obs.Metrics
}

func NewDeadURLSweeper(ledger *Ledger, companies CompanyLister, metrics *obs.Metrics) *DeadURLSweeper {
	return &DeadURLSweeper{ledger: ledger, companies: companies, metrics: metrics}
}

// Sweep sets DeadURLsPerCompany for every tracked company from the
// ledger's current disabled-until markers, and returns the number of
// companies currently disabled.
func (s *DeadURLSweeper) Sweep(ctx context.Context) (int, error) {
	logger := telemetry.GetContextualLogger(ctx).WithField("component", "health.DeadURLSweeper")

	companies, err := s.companies.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	dead := 0
	for _, company := range companies {
		disabled, err := s.ledger.IsDisabled(ctx, company.Website)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"company_id": company.ID.String(),
				"error":      err.Error(),
			}).Warn("failed to check url health, skipping company")
			continue
		}

		value := 0.0
		if disabled {
			value = 1.0
			dead++
		}
		s.metrics.DeadURLsPerCompany.WithLabelValues(company.ID.String()).Set(value)
	}

	logger.WithFields(map[string]interface{}{
		"companies_checked": len(companies),
		"dead_urls":         dead,
	}).Info("dead-url sweep completed")
	return dead, nil
}
