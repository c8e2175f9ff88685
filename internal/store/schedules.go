package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/models"
)

// ScheduleRepository persists CrawlSchedule rules.
type ScheduleRepository struct {
	db *DB
}

func NewScheduleRepository(db *DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) Upsert(ctx context.Context, s *models.CrawlSchedule) error {
	var window []byte
	if s.Window != nil {
		var err error
		window, err = json.Marshal(s.Window)
		if err != nil {
			return apperr.Parse("store.Schedule.Upsert", "failed to marshal window", err)
		}
	}

	const q = `
		INSERT INTO crawl_schedules (id, scope, scope_key, frequency_seconds, jitter_seconds, mode,
			max_retries, retry_backoff_seconds, priority, enabled, run_window, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (scope, scope_key) DO UPDATE SET
			frequency_seconds = EXCLUDED.frequency_seconds,
			jitter_seconds = EXCLUDED.jitter_seconds,
			mode = EXCLUDED.mode,
			max_retries = EXCLUDED.max_retries,
			retry_backoff_seconds = EXCLUDED.retry_backoff_seconds,
			priority = EXCLUDED.priority,
			enabled = EXCLUDED.enabled,
			run_window = EXCLUDED.run_window,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, q, s.ID, s.Scope, s.ScopeKey, s.FrequencySeconds, s.JitterSeconds, s.Mode,
		s.MaxRetries, s.RetryBackoffSeconds, s.Priority, s.Enabled, window, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return apperr.Transient("store.Schedule.Upsert", "upsert failed", err)
	}
	return nil
}

// ListEnabled returns every enabled schedule rule, in no particular
// order, for the Schedule Engine to build its in-memory index from.
func (r *ScheduleRepository) ListEnabled(ctx context.Context) ([]*models.CrawlSchedule, error) {
	const q = `
		SELECT id, scope, scope_key, frequency_seconds, jitter_seconds, mode, max_retries,
			retry_backoff_seconds, priority, enabled, run_window, created_at, updated_at
		FROM crawl_schedules WHERE enabled = true`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, apperr.Transient("store.Schedule.ListEnabled", "query failed", err)
	}
	defer rows.Close()

	var out []*models.CrawlSchedule
	for rows.Next() {
		var s models.CrawlSchedule
		var window []byte
		if err := rows.Scan(&s.ID, &s.Scope, &s.ScopeKey, &s.FrequencySeconds, &s.JitterSeconds, &s.Mode,
			&s.MaxRetries, &s.RetryBackoffSeconds, &s.Priority, &s.Enabled, &window, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, apperr.Transient("store.Schedule.ListEnabled", "scan failed", err)
		}
		if len(window) > 0 {
			var w models.RunWindow
			if err := json.Unmarshal(window, &w); err != nil {
				return nil, apperr.Parse("store.Schedule.ListEnabled", "failed to unmarshal run_window", err)
			}
			s.Window = &w
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// SourceProfileRepository persists per-(company,source-kind) ingestion state.
type SourceProfileRepository struct {
	db *DB
}

func NewSourceProfileRepository(db *DB) *SourceProfileRepository {
	return &SourceProfileRepository{db: db}
}

func (r *SourceProfileRepository) Create(ctx context.Context, p *models.SourceProfile) error {
	const q = `
		INSERT INTO source_profiles (id, company_id, source_kind, mode, last_run_at, last_success_at,
			last_error_at, consecutive_failures, consecutive_no_change, last_content_hash, schedule_id,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.ExecContext(ctx, q, p.ID, p.CompanyID, p.SourceKind, p.Mode, p.LastRunAt, p.LastSuccessAt,
		p.LastErrorAt, p.ConsecutiveFailures, p.ConsecutiveNoChange, p.LastContentHash, p.ScheduleID,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("store.SourceProfile.Create", "profile already exists for company/source_kind", err)
		}
		return apperr.Transient("store.SourceProfile.Create", "insert failed", err)
	}
	return nil
}

// ListAll returns every source profile, for the Schedule Engine to
// evaluate due-ness against its resolved effective schedules. Filtering
// by due-ness happens in-process since the formula depends on per-scope
// jitter that isn't expressible as a single SQL predicate.
func (r *SourceProfileRepository) ListAll(ctx context.Context) ([]*models.SourceProfile, error) {
	const q = `
		SELECT id, company_id, source_kind, mode, last_run_at, last_success_at, last_error_at,
			consecutive_failures, consecutive_no_change, last_content_hash, schedule_id, created_at, updated_at
		FROM source_profiles`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, apperr.Transient("store.SourceProfile.ListAll", "query failed", err)
	}
	defer rows.Close()

	var out []*models.SourceProfile
	for rows.Next() {
		var p models.SourceProfile
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.SourceKind, &p.Mode, &p.LastRunAt, &p.LastSuccessAt,
			&p.LastErrorAt, &p.ConsecutiveFailures, &p.ConsecutiveNoChange, &p.LastContentHash, &p.ScheduleID,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, apperr.Transient("store.SourceProfile.ListAll", "scan failed", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// MarkRunStarted bumps last_run_at; called when a CrawlRun transitions
// to running.
func (r *SourceProfileRepository) MarkRunStarted(ctx context.Context, id models.ID, at sql.NullTime) error {
	const q = `UPDATE source_profiles SET last_run_at = $2, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, at)
	if err != nil {
		return apperr.Transient("store.SourceProfile.MarkRunStarted", "update failed", err)
	}
	return nil
}

// MarkSuccess resets the failure counter and records the content hash
// outcome, bumping consecutive_no_change when changeDetected is false.
func (r *SourceProfileRepository) MarkSuccess(ctx context.Context, id models.ID, contentHash string, changeDetected bool) error {
	var q string
	if changeDetected {
		q = `UPDATE source_profiles SET consecutive_failures = 0, consecutive_no_change = 0,
			last_success_at = now(), last_content_hash = $2, updated_at = now() WHERE id = $1`
	} else {
		q = `UPDATE source_profiles SET consecutive_failures = 0, consecutive_no_change = consecutive_no_change + 1,
			last_success_at = now(), last_content_hash = $2, updated_at = now() WHERE id = $1`
	}
	if _, err := r.db.ExecContext(ctx, q, id, contentHash); err != nil {
		return apperr.Transient("store.SourceProfile.MarkSuccess", "update failed", err)
	}
	return nil
}

// MarkFailure increments the profile's consecutive-failure counter and
// returns the new value. The Health Ledger keeps its own counters in
// Redis (internal/cache) and does not read this column.
func (r *SourceProfileRepository) MarkFailure(ctx context.Context, id models.ID) (int, error) {
	const q = `
		UPDATE source_profiles SET consecutive_failures = consecutive_failures + 1,
			last_error_at = now(), updated_at = now()
		WHERE id = $1 RETURNING consecutive_failures`
	var count int
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&count); err != nil {
		return 0, apperr.Transient("store.SourceProfile.MarkFailure", "update failed", err)
	}
	return count, nil
}

// CrawlRunRepository persists individual fetch-run instances.
type CrawlRunRepository struct {
	db *DB
}

func NewCrawlRunRepository(db *DB) *CrawlRunRepository {
	return &CrawlRunRepository{db: db}
}

func (r *CrawlRunRepository) Create(ctx context.Context, run *models.CrawlRun) error {
	const q = `
		INSERT INTO crawl_runs (id, profile_id, schedule_id, status, started_at, finished_at,
			item_count, change_detected, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, q, run.ID, run.ProfileID, run.ScheduleID, run.Status, run.StartedAt,
		run.FinishedAt, run.ItemCount, run.ChangeDetected, run.ErrorMessage)
	if err != nil {
		return apperr.Transient("store.CrawlRun.Create", "insert failed", err)
	}
	return nil
}

// Finish transitions a run to a terminal status exactly once; a second
// call on an already-terminal run is rejected as a conflict (terminal
// statuses are immutable per the data model invariant).
func (r *CrawlRunRepository) Finish(ctx context.Context, id models.ID, status models.CrawlRunStatus, itemCount int, changeDetected bool, errMsg string) error {
	if !status.Terminal() {
		return apperr.New(apperr.KindParseValidation, "store.CrawlRun.Finish", "target status is not terminal", nil)
	}
	const q = `
		UPDATE crawl_runs SET status = $2, finished_at = now(), item_count = $3, change_detected = $4, error_message = $5
		WHERE id = $1 AND status IN ('scheduled', 'running')`

	res, err := r.db.ExecContext(ctx, q, id, status, itemCount, changeDetected, errMsg)
	if err != nil {
		return apperr.Transient("store.CrawlRun.Finish", "update failed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.Conflict("store.CrawlRun.Finish", "run already terminal", nil)
	}
	return nil
}

// ReconcileStuck marks every run still "running" past hardDeadline as
// failed with a deadline-exceeded error, for the sweeper that
// reconciles worker crashes (§5 "Cancellation").
func (r *CrawlRunRepository) ReconcileStuck(ctx context.Context, hardDeadline time.Duration) (int64, error) {
	const q = `
		UPDATE crawl_runs SET status = 'failed', finished_at = now(), error_message = $2
		WHERE status = 'running' AND started_at <= now() - $1::interval`

	res, err := r.db.ExecContext(ctx, q, hardDeadline.String(), "deadline exceeded")
	if err != nil {
		return 0, apperr.Transient("store.CrawlRun.ReconcileStuck", "update failed", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
