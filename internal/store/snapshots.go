package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/models"
)

// PricingSnapshotRepository persists pricing-page captures.
type PricingSnapshotRepository struct {
	db *DB
}

func NewPricingSnapshotRepository(db *DB) *PricingSnapshotRepository {
	return &PricingSnapshotRepository{db: db}
}

func (r *PricingSnapshotRepository) Create(ctx context.Context, s *models.PricingSnapshot) error {
	data, err := json.Marshal(s.NormalizedData)
	if err != nil {
		return apperr.Parse("store.PricingSnapshot.Create", "failed to marshal normalized_data", err)
	}
	meta, err := json.Marshal(s.ExtractionMetadata)
	if err != nil {
		return apperr.Parse("store.PricingSnapshot.Create", "failed to marshal extraction_metadata", err)
	}
	warnings, err := json.Marshal(s.Warnings)
	if err != nil {
		return apperr.Parse("store.PricingSnapshot.Create", "failed to marshal warnings", err)
	}

	const q = `
		INSERT INTO competitor_pricing_snapshots (id, company_id, source_url, source_kind, data_hash,
			normalized_data, parser_version, extracted_at, warnings, extraction_metadata, processing_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.ExecContext(ctx, q, s.ID, s.CompanyID, s.SourceURL, s.SourceKind, s.DataHash, data,
		s.ParserVersion, s.ExtractedAt, warnings, meta, s.ProcessingStatus)
	if err != nil {
		return apperr.Transient("store.PricingSnapshot.Create", "insert failed", err)
	}
	return nil
}

// Latest returns the most recently extracted pricing snapshot for a
// (company, source_url) pair, used by the Change Detector as the
// "previous" comparison point.
func (r *PricingSnapshotRepository) Latest(ctx context.Context, companyID models.ID, sourceURL string) (*models.PricingSnapshot, error) {
	const q = `
		SELECT id, company_id, source_url, source_kind, data_hash, normalized_data, parser_version,
			extracted_at, warnings, extraction_metadata, processing_status
		FROM competitor_pricing_snapshots
		WHERE company_id = $1 AND source_url = $2
		ORDER BY extracted_at DESC LIMIT 1`

	var s models.PricingSnapshot
	var data, meta, warnings []byte
	err := r.db.QueryRowContext(ctx, q, companyID, sourceURL).Scan(&s.ID, &s.CompanyID, &s.SourceURL, &s.SourceKind,
		&s.DataHash, &data, &s.ParserVersion, &s.ExtractedAt, &warnings, &meta, &s.ProcessingStatus)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient("store.PricingSnapshot.Latest", "query failed", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.NormalizedData); err != nil {
			return nil, apperr.Parse("store.PricingSnapshot.Latest", "failed to unmarshal normalized_data", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.ExtractionMetadata); err != nil {
			return nil, apperr.Parse("store.PricingSnapshot.Latest", "failed to unmarshal extraction_metadata", err)
		}
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &s.Warnings); err != nil {
			return nil, apperr.Parse("store.PricingSnapshot.Latest", "failed to unmarshal warnings", err)
		}
	}
	return &s, nil
}

// AsOf returns the most recent pricing snapshot extracted at or before
// asOf for a (company, source_url) pair, used by the Change Detector's
// CompareSnapshots to locate the two historical comparison points.
func (r *PricingSnapshotRepository) AsOf(ctx context.Context, companyID models.ID, sourceURL string, asOf time.Time) (*models.PricingSnapshot, error) {
	const q = `
		SELECT id, company_id, source_url, source_kind, data_hash, normalized_data, parser_version,
			extracted_at, warnings, extraction_metadata, processing_status
		FROM competitor_pricing_snapshots
		WHERE company_id = $1 AND source_url = $2 AND extracted_at <= $3
		ORDER BY extracted_at DESC LIMIT 1`

	var s models.PricingSnapshot
	var data, meta, warnings []byte
	err := r.db.QueryRowContext(ctx, q, companyID, sourceURL, asOf).Scan(&s.ID, &s.CompanyID, &s.SourceURL, &s.SourceKind,
		&s.DataHash, &data, &s.ParserVersion, &s.ExtractedAt, &warnings, &meta, &s.ProcessingStatus)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient("store.PricingSnapshot.AsOf", "query failed", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.NormalizedData); err != nil {
			return nil, apperr.Parse("store.PricingSnapshot.AsOf", "failed to unmarshal normalized_data", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.ExtractionMetadata); err != nil {
			return nil, apperr.Parse("store.PricingSnapshot.AsOf", "failed to unmarshal extraction_metadata", err)
		}
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &s.Warnings); err != nil {
			return nil, apperr.Parse("store.PricingSnapshot.AsOf", "failed to unmarshal warnings", err)
		}
	}
	return &s, nil
}

// GetByID loads a single pricing snapshot by its id, used by the
// Change Detector's Recompute to re-diff an existing event's snapshot
// pair.
func (r *PricingSnapshotRepository) GetByID(ctx context.Context, id models.ID) (*models.PricingSnapshot, error) {
	const q = `
		SELECT id, company_id, source_url, source_kind, data_hash, normalized_data, parser_version,
			extracted_at, warnings, extraction_metadata, processing_status
		FROM competitor_pricing_snapshots
		WHERE id = $1`

	var s models.PricingSnapshot
	var data, meta, warnings []byte
	err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.CompanyID, &s.SourceURL, &s.SourceKind,
		&s.DataHash, &data, &s.ParserVersion, &s.ExtractedAt, &warnings, &meta, &s.ProcessingStatus)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindParseValidation, "store.PricingSnapshot.GetByID", "pricing snapshot not found", err)
	}
	if err != nil {
		return nil, apperr.Transient("store.PricingSnapshot.GetByID", "query failed", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.NormalizedData); err != nil {
			return nil, apperr.Parse("store.PricingSnapshot.GetByID", "failed to unmarshal normalized_data", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.ExtractionMetadata); err != nil {
			return nil, apperr.Parse("store.PricingSnapshot.GetByID", "failed to unmarshal extraction_metadata", err)
		}
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &s.Warnings); err != nil {
			return nil, apperr.Parse("store.PricingSnapshot.GetByID", "failed to unmarshal warnings", err)
		}
	}
	return &s, nil
}

// SnapshotRepository persists the generic envelope used by structure,
// SEO, jobs, products, and banners snapshots.
type SnapshotRepository struct {
	db *DB
}

func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) Create(ctx context.Context, s *models.Snapshot) error {
	warnings, err := json.Marshal(s.Warnings)
	if err != nil {
		return apperr.Parse("store.Snapshot.Create", "failed to marshal warnings", err)
	}

	const q = `
		INSERT INTO source_snapshots (id, company_id, source_url, kind, data_hash, parser_version,
			extracted_at, processing_status, warnings, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.ExecContext(ctx, q, s.ID, s.CompanyID, s.SourceURL, s.Kind, s.DataHash, s.ParserVersion,
		s.ExtractedAt, s.ProcessingStatus, warnings, s.Payload)
	if err != nil {
		return apperr.Transient("store.Snapshot.Create", "insert failed", err)
	}
	return nil
}

// Latest returns the most recent snapshot of a given kind for a
// (company, source_url) pair.
func (r *SnapshotRepository) Latest(ctx context.Context, companyID models.ID, sourceURL string, kind models.SnapshotKind) (*models.Snapshot, error) {
	const q = `
		SELECT id, company_id, source_url, kind, data_hash, parser_version, extracted_at,
			processing_status, warnings, payload
		FROM source_snapshots
		WHERE company_id = $1 AND source_url = $2 AND kind = $3
		ORDER BY extracted_at DESC LIMIT 1`

	var s models.Snapshot
	var warnings []byte
	err := r.db.QueryRowContext(ctx, q, companyID, sourceURL, kind).Scan(&s.ID, &s.CompanyID, &s.SourceURL, &s.Kind,
		&s.DataHash, &s.ParserVersion, &s.ExtractedAt, &s.ProcessingStatus, &warnings, &s.Payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient("store.Snapshot.Latest", "query failed", err)
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &s.Warnings); err != nil {
			return nil, apperr.Parse("store.Snapshot.Latest", "failed to unmarshal warnings", err)
		}
	}
	return &s, nil
}

// AsOf returns the most recent snapshot of a given kind extracted at
// or before asOf for a (company, source_url) pair, used by the Change
// Detector's CompareSnapshots to locate the two historical comparison
// points.
func (r *SnapshotRepository) AsOf(ctx context.Context, companyID models.ID, sourceURL string, kind models.SnapshotKind, asOf time.Time) (*models.Snapshot, error) {
	const q = `
		SELECT id, company_id, source_url, kind, data_hash, parser_version, extracted_at,
			processing_status, warnings, payload
		FROM source_snapshots
		WHERE company_id = $1 AND source_url = $2 AND kind = $3 AND extracted_at <= $4
		ORDER BY extracted_at DESC LIMIT 1`

	var s models.Snapshot
	var warnings []byte
	err := r.db.QueryRowContext(ctx, q, companyID, sourceURL, kind, asOf).Scan(&s.ID, &s.CompanyID, &s.SourceURL, &s.Kind,
		&s.DataHash, &s.ParserVersion, &s.ExtractedAt, &s.ProcessingStatus, &warnings, &s.Payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient("store.Snapshot.AsOf", "query failed", err)
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &s.Warnings); err != nil {
			return nil, apperr.Parse("store.Snapshot.AsOf", "failed to unmarshal warnings", err)
		}
	}
	return &s, nil
}

// GetByID loads a single generic-envelope snapshot by its id, used by
// the Change Detector's Recompute to re-diff an existing event's
// snapshot pair.
func (r *SnapshotRepository) GetByID(ctx context.Context, id models.ID) (*models.Snapshot, error) {
	const q = `
		SELECT id, company_id, source_url, kind, data_hash, parser_version, extracted_at,
			processing_status, warnings, payload
		FROM source_snapshots
		WHERE id = $1`

	var s models.Snapshot
	var warnings []byte
	err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.CompanyID, &s.SourceURL, &s.Kind,
		&s.DataHash, &s.ParserVersion, &s.ExtractedAt, &s.ProcessingStatus, &warnings, &s.Payload)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindParseValidation, "store.Snapshot.GetByID", "snapshot not found", err)
	}
	if err != nil {
		return nil, apperr.Transient("store.Snapshot.GetByID", "query failed", err)
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &s.Warnings); err != nil {
			return nil, apperr.Parse("store.Snapshot.GetByID", "failed to unmarshal warnings", err)
		}
	}
	return &s, nil
}
