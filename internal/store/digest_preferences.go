package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/models"
)

// DigestPreferencesRepository persists the per-user digest singleton.
type DigestPreferencesRepository struct {
	db *DB
}

func NewDigestPreferencesRepository(db *DB) *DigestPreferencesRepository {
	return &DigestPreferencesRepository{db: db}
}

func (r *DigestPreferencesRepository) Upsert(ctx context.Context, p *models.UserDigestPreferences) error {
	const q = `
		INSERT INTO user_digest_preferences (user_id, digest_enabled, digest_frequency, digest_format,
			schedule_time, allowed_days, timezone, last_sent_utc, telegram_enabled, telegram_digest_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			digest_enabled = EXCLUDED.digest_enabled,
			digest_frequency = EXCLUDED.digest_frequency,
			digest_format = EXCLUDED.digest_format,
			schedule_time = EXCLUDED.schedule_time,
			allowed_days = EXCLUDED.allowed_days,
			timezone = EXCLUDED.timezone,
			telegram_enabled = EXCLUDED.telegram_enabled,
			telegram_digest_mode = EXCLUDED.telegram_digest_mode`

	_, err := r.db.ExecContext(ctx, q, p.UserID, p.DigestEnabled, p.DigestFrequency, p.DigestFormat,
		p.ScheduleTime, p.AllowedDays, p.Timezone, p.LastSentUTC, p.TelegramEnabled, p.TelegramDigestMode)
	if err != nil {
		return apperr.Transient("store.DigestPreferences.Upsert", "upsert failed", err)
	}
	return nil
}

func (r *DigestPreferencesRepository) Get(ctx context.Context, userID models.ID) (*models.UserDigestPreferences, error) {
	const q = `
		SELECT user_id, digest_enabled, digest_frequency, digest_format, schedule_time, allowed_days,
			timezone, last_sent_utc, telegram_enabled, telegram_digest_mode
		FROM user_digest_preferences WHERE user_id = $1`

	var p models.UserDigestPreferences
	err := r.db.QueryRowContext(ctx, q, userID).Scan(&p.UserID, &p.DigestEnabled, &p.DigestFrequency, &p.DigestFormat,
		&p.ScheduleTime, &p.AllowedDays, &p.Timezone, &p.LastSentUTC, &p.TelegramEnabled, &p.TelegramDigestMode)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindParseValidation, "store.DigestPreferences.Get", "preferences not found", err)
	}
	if err != nil {
		return nil, apperr.Transient("store.DigestPreferences.Get", "query failed", err)
	}
	return &p, nil
}

// ListEnabledDue returns every digest-enabled user whose last_sent_utc
// is unset or older than minInterval (one interval for every digest
// frequency), for the
// Digest Scheduler's hourly eligibility sweep. The precise per-user
// local-time window and day-of-week check happens in internal/digest,
// since it depends on timezone-aware arithmetic the database layer
// should not own.
func (r *DigestPreferencesRepository) ListEnabledDue(ctx context.Context, minInterval time.Duration) ([]*models.UserDigestPreferences, error) {
	const q = `
		SELECT user_id, digest_enabled, digest_frequency, digest_format, schedule_time, allowed_days,
			timezone, last_sent_utc, telegram_enabled, telegram_digest_mode
		FROM user_digest_preferences
		WHERE digest_enabled = true AND digest_frequency != 'off'
			AND (last_sent_utc IS NULL OR last_sent_utc <= now() - $1::interval)`

	rows, err := r.db.QueryContext(ctx, q, minInterval.String())
	if err != nil {
		return nil, apperr.Transient("store.DigestPreferences.ListEnabledDue", "query failed", err)
	}
	defer rows.Close()

	var out []*models.UserDigestPreferences
	for rows.Next() {
		var p models.UserDigestPreferences
		if err := rows.Scan(&p.UserID, &p.DigestEnabled, &p.DigestFrequency, &p.DigestFormat, &p.ScheduleTime,
			&p.AllowedDays, &p.Timezone, &p.LastSentUTC, &p.TelegramEnabled, &p.TelegramDigestMode); err != nil {
			return nil, apperr.Transient("store.DigestPreferences.ListEnabledDue", "scan failed", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// MarkSent atomically advances last_sent_utc, guarding against a
// concurrent digest run double-sending the same cycle.
func (r *DigestPreferencesRepository) MarkSent(ctx context.Context, userID models.ID, sentAt time.Time, previous *time.Time) error {
	const q = `
		UPDATE user_digest_preferences SET last_sent_utc = $2
		WHERE user_id = $1 AND last_sent_utc IS NOT DISTINCT FROM $3`

	res, err := r.db.ExecContext(ctx, q, userID, sentAt, previous)
	if err != nil {
		return apperr.Transient("store.DigestPreferences.MarkSent", "update failed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.Conflict("store.DigestPreferences.MarkSent", "last_sent_utc changed concurrently", nil)
	}
	return nil
}
