// Package changes implements the Change Detector: parse a freshly
// fetched payload into a canonical structure, hash it, compare against
// the most recent snapshot for the same (company, source_url), and
// emit a CompetitorChangeEvent with a typed structured diff when the
// hash differs (§4.6).
package changes

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/fetch"
	"github.com/arrowhq/sentinel/internal/models"
	"github.com/arrowhq/sentinel/internal/parsers"
	"github.com/arrowhq/sentinel/internal/registry"
	"github.com/arrowhq/sentinel/internal/store"
)

// Detector ties the Fetcher, Source Registry, and snapshot/event
// repositories together behind the observe/recompute contract.
type Detector struct {
	fetcher   *fetch.Fetcher
	registry  *registry.Registry
	pricing   *store.PricingSnapshotRepository
	snapshots *store.SnapshotRepository
	events    *store.ChangeEventRepository
}

func NewDetector(
	fetcher *fetch.Fetcher,
	reg *registry.Registry,
	pricing *store.PricingSnapshotRepository,
	snapshots *store.SnapshotRepository,
	events *store.ChangeEventRepository,
) *Detector {
	return &Detector{fetcher: fetcher, registry: reg, pricing: pricing, snapshots: snapshots, events: events}
}

// Observe fetches the candidate URL for (company, kind), parses it,
// and persists a new snapshot. It returns the emitted change event, or
// nil when there was no previous snapshot or the content is unchanged
// (§4.6 steps 1-4).
func (d *Detector) Observe(ctx context.Context, company *models.Company, kind models.SourceKind) (*models.CompetitorChangeEvent, error) {
	urls, err := d.registry.CandidateURLs(company, kind, nil)
	if err != nil {
		return nil, apperr.Permanent("changes.Observe", "failed to resolve candidate url", err)
	}
	if len(urls) == 0 {
		return nil, apperr.Permanent("changes.Observe", "no candidate url resolved", nil)
	}
	sourceURL := urls[0]

	resp, err := d.fetcher.Fetch(ctx, sourceURL, fetch.DefaultOptions())
	if err != nil {
		return nil, err
	}

	switch kind {
	case models.SourcePricing:
		return d.observePricing(ctx, company, sourceURL, resp.Body)
	case models.SourceStructure:
		return d.observeStructure(ctx, company, sourceURL, resp.Body)
	case models.SourceSEO:
		return d.observeSEO(ctx, company, sourceURL, resp.Body)
	case models.SourceJobs:
		return d.observeSet(ctx, company, sourceURL, models.SnapshotJobs, parsers.JobsParserVersion, func() (*models.SetData, []string, error) {
			return parsers.ParseJobs(resp.Body)
		})
	case models.SourceProducts:
		return d.observeSet(ctx, company, sourceURL, models.SnapshotProducts, parsers.ProductsParserVersion, func() (*models.SetData, []string, error) {
			return parsers.ParseProducts(resp.Body)
		})
	case models.SourceBanners:
		return d.observeSet(ctx, company, sourceURL, models.SnapshotBanners, parsers.BannersParserVersion, func() (*models.SetData, []string, error) {
			return parsers.ParseBanners(resp.Body)
		})
	default:
		return nil, apperr.Permanent("changes.Observe", "source kind is not a change-detection kind", nil)
	}
}

func (d *Detector) observePricing(ctx context.Context, company *models.Company, sourceURL string, body []byte) (*models.CompetitorChangeEvent, error) {
	result, err := parsers.ParsePricing(body, sourceURL)
	if err != nil {
		return nil, apperr.Parse("changes.observePricing", "failed to parse pricing page", err)
	}

	normalized := models.PricingData{Plans: result.Plans}
	canonical, err := fetch.CanonicalJSON(normalized)
	if err != nil {
		return nil, apperr.Parse("changes.observePricing", "failed to canonicalize pricing data", err)
	}
	dataHash := fetch.ContentHash(canonical)

	previous, err := d.pricing.Latest(ctx, company.ID, sourceURL)
	if err != nil {
		return nil, err
	}

	snapshot := &models.PricingSnapshot{
		ID:                 models.NewID(),
		CompanyID:          company.ID,
		SourceURL:          sourceURL,
		SourceKind:         models.SourcePricing,
		DataHash:           dataHash,
		NormalizedData:      normalized,
		ParserVersion:      parsers.PricingParserVersion,
		ExtractedAt:        time.Now().UTC(),
		Warnings:           result.Warnings,
		ExtractionMetadata: result.ExtractionMetadata,
		ProcessingStatus:   models.ProcessingSuccess,
	}

	if previous != nil && previous.ParserVersion == parsers.PricingParserVersion && previous.DataHash == dataHash {
		if err := d.pricing.Create(ctx, snapshot); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := d.pricing.Create(ctx, snapshot); err != nil {
		return nil, err
	}

	if previous == nil || previous.ParserVersion != parsers.PricingParserVersion {
		return nil, nil
	}

	changed, summary := diffPricing(previous.NormalizedData, normalized)
	return d.emitEvent(ctx, company, models.SourcePricing, summary, changed, nil, snapshot.ID, previous.ID)
}

func (d *Detector) observeStructure(ctx context.Context, company *models.Company, sourceURL string, body []byte) (*models.CompetitorChangeEvent, error) {
	data, warnings, err := parsers.ParseStructure(body, sourceURL)
	if err != nil {
		return nil, apperr.Parse("changes.observeStructure", "failed to parse structure page", err)
	}
	return d.observeGeneric(ctx, company, sourceURL, models.SnapshotStructure, parsers.StructureParserVersion, data, warnings, func(prev, cur interface{}) ([]models.ChangedField, string) {
		return diffStructure(prev.(*models.StructureData), cur.(*models.StructureData))
	})
}

func (d *Detector) observeSEO(ctx context.Context, company *models.Company, sourceURL string, body []byte) (*models.CompetitorChangeEvent, error) {
	data, warnings, err := parsers.ParseSEO(parsers.SEOBundle{HTML: body})
	if err != nil {
		return nil, apperr.Parse("changes.observeSEO", "failed to parse seo signals", err)
	}
	return d.observeGeneric(ctx, company, sourceURL, models.SnapshotSEO, parsers.SEOParserVersion, data, warnings, func(prev, cur interface{}) ([]models.ChangedField, string) {
		return diffSEO(prev.(*models.SEOData), cur.(*models.SEOData))
	})
}

func (d *Detector) observeSet(ctx context.Context, company *models.Company, sourceURL string, kind models.SnapshotKind, parserVersion string, parse func() (*models.SetData, []string, error)) (*models.CompetitorChangeEvent, error) {
	data, warnings, err := parse()
	if err != nil {
		return nil, apperr.Parse("changes.observeSet", "failed to parse content set", err)
	}
	return d.observeGeneric(ctx, company, sourceURL, kind, parserVersion, data, warnings, func(prev, cur interface{}) ([]models.ChangedField, string) {
		return diffSet(prev.(*models.SetData), cur.(*models.SetData))
	})
}

// observeGeneric implements the shared persist-and-diff shape for the
// generic Snapshot envelope kinds (structure, SEO, jobs, products,
// banners), parameterized only by the kind-specific diff function.
func (d *Detector) observeGeneric(
	ctx context.Context,
	company *models.Company,
	sourceURL string,
	kind models.SnapshotKind,
	parserVersion string,
	data interface{},
	warnings []string,
	diff func(prev, cur interface{}) ([]models.ChangedField, string),
) (*models.CompetitorChangeEvent, error) {
	canonical, err := fetch.CanonicalJSON(data)
	if err != nil {
		return nil, apperr.Parse("changes.observeGeneric", "failed to canonicalize data", err)
	}
	dataHash := fetch.ContentHash(canonical)

	previous, err := d.snapshots.Latest(ctx, company.ID, sourceURL, kind)
	if err != nil {
		return nil, err
	}

	snapshot := &models.Snapshot{
		ID:               models.NewID(),
		CompanyID:        company.ID,
		SourceURL:        sourceURL,
		Kind:             kind,
		DataHash:         dataHash,
		ParserVersion:    parserVersion,
		ExtractedAt:      time.Now().UTC(),
		ProcessingStatus: models.ProcessingSuccess,
		Warnings:         warnings,
		Payload:          canonical,
	}
	if err := d.snapshots.Create(ctx, snapshot); err != nil {
		return nil, err
	}

	if previous == nil || previous.ParserVersion != parserVersion || previous.DataHash == dataHash {
		return nil, nil
	}

	var prevTyped interface{}
	switch kind {
	case models.SnapshotStructure:
		prevTyped = &models.StructureData{}
	case models.SnapshotSEO:
		prevTyped = &models.SEOData{}
	default:
		prevTyped = &models.SetData{}
	}
	if err := json.Unmarshal(previous.Payload, prevTyped); err != nil {
		return nil, apperr.Parse("changes.observeGeneric", "failed to unmarshal previous payload", err)
	}

	changed, summary := diff(prevTyped, data)
	sourceKind := snapshotKindToSourceKind(kind)
	return d.emitEvent(ctx, company, sourceKind, summary, changed, nil, snapshot.ID, previous.ID)
}

func (d *Detector) emitEvent(ctx context.Context, company *models.Company, kind models.SourceKind, summary string, changed []models.ChangedField, rawDiff []byte, currentID, previousID models.ID) (*models.CompetitorChangeEvent, error) {
	if len(changed) == 0 {
		return nil, nil
	}
	event := &models.CompetitorChangeEvent{
		ID:                  models.NewID(),
		CompanyID:           company.ID,
		SourceKind:          kind,
		ChangeSummary:       summary,
		ChangedFields:       changed,
		RawDiff:             rawDiff,
		DetectedAt:          time.Now().UTC(),
		CurrentSnapshotID:   currentID,
		PreviousSnapshotID:  previousID,
		ProcessingStatus:    models.ProcessingSuccess,
		NotificationStatus:  models.NotifyPending,
	}
	if err := d.events.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func snapshotKindToSourceKind(k models.SnapshotKind) models.SourceKind {
	switch k {
	case models.SnapshotStructure:
		return models.SourceStructure
	case models.SnapshotSEO:
		return models.SourceSEO
	case models.SnapshotJobs:
		return models.SourceJobs
	case models.SnapshotProducts:
		return models.SourceProducts
	case models.SnapshotBanners:
		return models.SourceBanners
	default:
		return models.SourcePricing
	}
}

// Recompute re-runs the structured diff between the two snapshots an
// existing event references, used when parser_version advances and
// historical events need their changed_fields refreshed. Events
// already marked sent are never rewritten (§4.6).
func (d *Detector) Recompute(ctx context.Context, eventID models.ID) error {
	event, err := d.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if event.NotificationStatus == models.NotifySent {
		return apperr.Conflict("changes.Recompute", "event already sent, refusing to rewrite its diff", nil)
	}

	var changed []models.ChangedField
	var summary string

	if event.SourceKind == models.SourcePricing {
		current, err := d.pricing.GetByID(ctx, event.CurrentSnapshotID)
		if err != nil {
			return err
		}
		previous, err := d.pricing.GetByID(ctx, event.PreviousSnapshotID)
		if err != nil {
			return err
		}
		changed, summary = diffPricing(previous.NormalizedData, current.NormalizedData)
	} else {
		current, err := d.snapshots.GetByID(ctx, event.CurrentSnapshotID)
		if err != nil {
			return err
		}
		previous, err := d.snapshots.GetByID(ctx, event.PreviousSnapshotID)
		if err != nil {
			return err
		}
		changed, summary, err = diffGenericPayloads(current.Kind, previous.Payload, current.Payload)
		if err != nil {
			return err
		}
	}

	return d.events.UpdateDiff(ctx, event.ID, summary, changed)
}

// diffGenericPayloads unmarshals two stored generic-snapshot payloads
// by kind and runs the matching structured diff, the same dispatch
// observeGeneric uses for a freshly-parsed payload but applied to two
// already-persisted ones (used by Recompute and CompareSnapshots).
func diffGenericPayloads(kind models.SnapshotKind, previousPayload, currentPayload []byte) ([]models.ChangedField, string, error) {
	switch kind {
	case models.SnapshotStructure:
		var prev, cur models.StructureData
		if err := json.Unmarshal(previousPayload, &prev); err != nil {
			return nil, "", apperr.Parse("changes.diffGenericPayloads", "failed to unmarshal previous structure payload", err)
		}
		if err := json.Unmarshal(currentPayload, &cur); err != nil {
			return nil, "", apperr.Parse("changes.diffGenericPayloads", "failed to unmarshal current structure payload", err)
		}
		fields, summary := diffStructure(&prev, &cur)
		return fields, summary, nil
	case models.SnapshotSEO:
		var prev, cur models.SEOData
		if err := json.Unmarshal(previousPayload, &prev); err != nil {
			return nil, "", apperr.Parse("changes.diffGenericPayloads", "failed to unmarshal previous seo payload", err)
		}
		if err := json.Unmarshal(currentPayload, &cur); err != nil {
			return nil, "", apperr.Parse("changes.diffGenericPayloads", "failed to unmarshal current seo payload", err)
		}
		fields, summary := diffSEO(&prev, &cur)
		return fields, summary, nil
	default:
		var prev, cur models.SetData
		if err := json.Unmarshal(previousPayload, &prev); err != nil {
			return nil, "", apperr.Parse("changes.diffGenericPayloads", "failed to unmarshal previous set payload", err)
		}
		if err := json.Unmarshal(currentPayload, &cur); err != nil {
			return nil, "", apperr.Parse("changes.diffGenericPayloads", "failed to unmarshal current set payload", err)
		}
		fields, summary := diffSet(&prev, &cur)
		return fields, summary, nil
	}
}

// sourceKindToSnapshotKind is the inverse of snapshotKindToSourceKind,
// used to resolve which generic Snapshot envelope a SourceKind reads
// from (CompareSnapshots, Recompute's non-pricing branch).
func sourceKindToSnapshotKind(k models.SourceKind) models.SnapshotKind {
	switch k {
	case models.SourceStructure:
		return models.SnapshotStructure
	case models.SourceSEO:
		return models.SnapshotSEO
	case models.SourceJobs:
		return models.SnapshotJobs
	case models.SourceProducts:
		return models.SnapshotProducts
	case models.SourceBanners:
		return models.SnapshotBanners
	default:
		return models.SnapshotPricing
	}
}
