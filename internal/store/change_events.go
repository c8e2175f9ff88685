package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/models"
)

// ChangeEventRepository persists detected deltas between comparable
// snapshots.
type ChangeEventRepository struct {
	db *DB
}

func NewChangeEventRepository(db *DB) *ChangeEventRepository {
	return &ChangeEventRepository{db: db}
}

func (r *ChangeEventRepository) Create(ctx context.Context, e *models.CompetitorChangeEvent) error {
	fields, err := json.Marshal(e.ChangedFields)
	if err != nil {
		return apperr.Parse("store.ChangeEvent.Create", "failed to marshal changed_fields", err)
	}

	const q = `
		INSERT INTO competitor_change_events (id, company_id, source_kind, change_summary, changed_fields,
			raw_diff, detected_at, current_snapshot_id, previous_snapshot_id, processing_status, notification_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.ExecContext(ctx, q, e.ID, e.CompanyID, e.SourceKind, e.ChangeSummary, fields, e.RawDiff,
		e.DetectedAt, e.CurrentSnapshotID, e.PreviousSnapshotID, e.ProcessingStatus, e.NotificationStatus)
	if err != nil {
		return apperr.Transient("store.ChangeEvent.Create", "insert failed", err)
	}
	return nil
}

// MarkNotificationStatus transitions the downstream notification
// lifecycle field once the Notification Core has dispatched (or
// suppressed) the event.
func (r *ChangeEventRepository) MarkNotificationStatus(ctx context.Context, id models.ID, status models.NotificationStatus) error {
	const q = `UPDATE competitor_change_events SET notification_status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, q, id, status); err != nil {
		return apperr.Transient("store.ChangeEvent.MarkNotificationStatus", "update failed", err)
	}
	return nil
}

// GetByID loads a single change event, used by the Change Detector's
// Recompute to re-run a diff against an existing event's snapshot pair.
func (r *ChangeEventRepository) GetByID(ctx context.Context, id models.ID) (*models.CompetitorChangeEvent, error) {
	const q = `
		SELECT id, company_id, source_kind, change_summary, changed_fields, raw_diff, detected_at,
			current_snapshot_id, previous_snapshot_id, processing_status, notification_status
		FROM competitor_change_events
		WHERE id = $1`

	return scanChangeEvent(r.db.QueryRowContext(ctx, q, id))
}

// UpdateDiff overwrites an event's change_summary and changed_fields,
// used by the Change Detector's Recompute once it has re-run a diff
// against the event's snapshot pair.
func (r *ChangeEventRepository) UpdateDiff(ctx context.Context, id models.ID, summary string, fields []models.ChangedField) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return apperr.Parse("store.ChangeEvent.UpdateDiff", "failed to marshal changed_fields", err)
	}

	const q = `UPDATE competitor_change_events SET change_summary = $2, changed_fields = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, q, id, summary, data); err != nil {
		return apperr.Transient("store.ChangeEvent.UpdateDiff", "update failed", err)
	}
	return nil
}

// ListPendingNotification returns change events still awaiting
// notification dispatch, oldest first.
func (r *ChangeEventRepository) ListPendingNotification(ctx context.Context, limit int) ([]*models.CompetitorChangeEvent, error) {
	const q = `
		SELECT id, company_id, source_kind, change_summary, changed_fields, raw_diff, detected_at,
			current_snapshot_id, previous_snapshot_id, processing_status, notification_status
		FROM competitor_change_events
		WHERE notification_status = $1
		ORDER BY detected_at ASC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, q, models.NotifyPending, limit)
	if err != nil {
		return nil, apperr.Transient("store.ChangeEvent.ListPendingNotification", "query failed", err)
	}
	defer rows.Close()

	var out []*models.CompetitorChangeEvent
	for rows.Next() {
		e, err := scanChangeEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChangeEvent(row rowScanner) (*models.CompetitorChangeEvent, error) {
	var e models.CompetitorChangeEvent
	var fields []byte
	err := row.Scan(&e.ID, &e.CompanyID, &e.SourceKind, &e.ChangeSummary, &fields, &e.RawDiff, &e.DetectedAt,
		&e.CurrentSnapshotID, &e.PreviousSnapshotID, &e.ProcessingStatus, &e.NotificationStatus)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindParseValidation, "store.ChangeEvent.scan", "change event not found", err)
	}
	if err != nil {
		return nil, apperr.Transient("store.ChangeEvent.scan", "scan failed", err)
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &e.ChangedFields); err != nil {
			return nil, apperr.Parse("store.ChangeEvent.scan", "failed to unmarshal changed_fields", err)
		}
	}
	return &e, nil
}
