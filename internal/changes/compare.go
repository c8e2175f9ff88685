package changes

import (
	"context"
	"time"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/models"
)

// ComparisonReport is the structured diff between two historical
// observation points for one company's (source kind) surface, an
// analytics read path distinct from Observe's consecutive-snapshot
// comparison.
type ComparisonReport struct {
	CompanyID     models.ID             `json:"company_id"`
	SourceKind    models.SourceKind     `json:"source_kind"`
	SourceURL     string                `json:"source_url"`
	From          time.Time             `json:"from"`
	To            time.Time             `json:"to"`
	ChangeSummary string                `json:"change_summary"`
	ChangedFields []models.ChangedField `json:"changed_fields"`
}

// CompareSnapshots diffs the most recent snapshot at or before fromTime
// against the most recent snapshot at or before toTime for a company's
// (kind) surface, reusing the same structured-diff strategies as
// Observe. Unlike Observe, which always diffs against the immediately
// preceding capture, this lets callers diff two arbitrary historical
// points on demand.
func (d *Detector) CompareSnapshots(ctx context.Context, company *models.Company, kind models.SourceKind, fromTime, toTime time.Time) (*ComparisonReport, error) {
	if !models.ChangeDetectionKinds[kind] {
		return nil, apperr.Permanent("changes.CompareSnapshots", "source kind is not a change-detection kind", nil)
	}

	urls, err := d.registry.CandidateURLs(company, kind, nil)
	if err != nil {
		return nil, apperr.Permanent("changes.CompareSnapshots", "failed to resolve candidate url", err)
	}
	if len(urls) == 0 {
		return nil, apperr.Permanent("changes.CompareSnapshots", "no candidate url resolved", nil)
	}
	sourceURL := urls[0]

	var changed []models.ChangedField
	var summary string

	if kind == models.SourcePricing {
		from, err := d.pricing.AsOf(ctx, company.ID, sourceURL, fromTime)
		if err != nil {
			return nil, err
		}
		to, err := d.pricing.AsOf(ctx, company.ID, sourceURL, toTime)
		if err != nil {
			return nil, err
		}
		if from == nil || to == nil {
			return nil, apperr.New(apperr.KindParseValidation, "changes.CompareSnapshots", "no pricing snapshot exists at one or both comparison points", nil)
		}
		changed, summary = diffPricing(from.NormalizedData, to.NormalizedData)
	} else {
		snapshotKind := sourceKindToSnapshotKind(kind)
		from, err := d.snapshots.AsOf(ctx, company.ID, sourceURL, snapshotKind, fromTime)
		if err != nil {
			return nil, err
		}
		to, err := d.snapshots.AsOf(ctx, company.ID, sourceURL, snapshotKind, toTime)
		if err != nil {
			return nil, err
		}
		if from == nil || to == nil {
			return nil, apperr.New(apperr.KindParseValidation, "changes.CompareSnapshots", "no snapshot exists at one or both comparison points", nil)
		}
		changed, summary, err = diffGenericPayloads(snapshotKind, from.Payload, to.Payload)
		if err != nil {
			return nil, err
		}
	}

	return &ComparisonReport{
		CompanyID:     company.ID,
		SourceKind:    kind,
		SourceURL:     sourceURL,
		From:          fromTime,
		To:            toTime,
		ChangeSummary: summary,
		ChangedFields: changed,
	}, nil
}
