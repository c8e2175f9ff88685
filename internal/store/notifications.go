package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/models"
)

// ChannelRepository persists per-user delivery endpoints.
type ChannelRepository struct {
	db *DB
}

func NewChannelRepository(db *DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

func (r *ChannelRepository) Create(ctx context.Context, c *models.NotificationChannel) error {
	const q = `
		INSERT INTO notification_channels (id, user_id, kind, destination, verified, disabled, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, q, c.ID, c.UserID, c.Kind, c.Destination, c.Verified, c.Disabled, c.Metadata, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("store.Channel.Create", "channel already registered for this user/kind/destination", err)
		}
		return apperr.Transient("store.Channel.Create", "insert failed", err)
	}
	return nil
}

func (r *ChannelRepository) Get(ctx context.Context, id models.ID) (*models.NotificationChannel, error) {
	const q = `
		SELECT id, user_id, kind, destination, verified, disabled, metadata, created_at
		FROM notification_channels WHERE id = $1`
	var c models.NotificationChannel
	err := r.db.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.UserID, &c.Kind, &c.Destination, &c.Verified, &c.Disabled, &c.Metadata, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.New(apperr.KindParseValidation, "store.Channel.Get", "channel not found", err)
	}
	if err != nil {
		return nil, apperr.Transient("store.Channel.Get", "query failed", err)
	}
	return &c, nil
}

func (r *ChannelRepository) ListActiveByUser(ctx context.Context, userID models.ID) ([]*models.NotificationChannel, error) {
	const q = `
		SELECT id, user_id, kind, destination, verified, disabled, metadata, created_at
		FROM notification_channels WHERE user_id = $1 AND disabled = false`

	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, apperr.Transient("store.Channel.ListActiveByUser", "query failed", err)
	}
	defer rows.Close()

	var out []*models.NotificationChannel
	for rows.Next() {
		var c models.NotificationChannel
		if err := rows.Scan(&c.ID, &c.UserID, &c.Kind, &c.Destination, &c.Verified, &c.Disabled, &c.Metadata, &c.CreatedAt); err != nil {
			return nil, apperr.Transient("store.Channel.ListActiveByUser", "scan failed", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// SubscriptionRepository persists rules matching (user, channel, type, filters).
type SubscriptionRepository struct {
	db *DB
}

func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *models.NotificationSubscription) error {
	filters, err := json.Marshal(s.Filters)
	if err != nil {
		return apperr.Parse("store.Subscription.Create", "failed to marshal filters", err)
	}

	const q = `
		INSERT INTO notification_subscriptions (id, user_id, channel_id, notification_type, filters,
			min_priority, frequency, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, q, s.ID, s.UserID, s.ChannelID, s.NotificationType, filters, s.MinPriority, s.Frequency, s.Enabled)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("store.Subscription.Create", "subscription already exists for this user/channel/type", err)
		}
		return apperr.Transient("store.Subscription.Create", "insert failed", err)
	}
	return nil
}

// ListEnabledByType returns every enabled subscription of a given
// notification type, for the Notification Core to match a new event
// against.
func (r *SubscriptionRepository) ListEnabledByType(ctx context.Context, t models.NotificationType) ([]*models.NotificationSubscription, error) {
	const q = `
		SELECT id, user_id, channel_id, notification_type, filters, min_priority, frequency, enabled
		FROM notification_subscriptions WHERE notification_type = $1 AND enabled = true`

	rows, err := r.db.QueryContext(ctx, q, t)
	if err != nil {
		return nil, apperr.Transient("store.Subscription.ListEnabledByType", "query failed", err)
	}
	defer rows.Close()

	var out []*models.NotificationSubscription
	for rows.Next() {
		var s models.NotificationSubscription
		var filters []byte
		if err := rows.Scan(&s.ID, &s.UserID, &s.ChannelID, &s.NotificationType, &filters, &s.MinPriority, &s.Frequency, &s.Enabled); err != nil {
			return nil, apperr.Transient("store.Subscription.ListEnabledByType", "scan failed", err)
		}
		if len(filters) > 0 {
			if err := json.Unmarshal(filters, &s.Filters); err != nil {
				return nil, apperr.Parse("store.Subscription.ListEnabledByType", "failed to unmarshal filters", err)
			}
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// EventRepository persists logical notification events queued for delivery.
type EventRepository struct {
	db *DB
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateIfNotDuplicate inserts an event, reporting a conflict when an
// active (queued/dispatched, unexpired) event already carries the same
// deduplication key (§3 dedup-key invariant).
func (r *EventRepository) CreateIfNotDuplicate(ctx context.Context, e *models.NotificationEvent) error {
	const q = `
		INSERT INTO notification_events (id, user_id, type, priority, payload, deduplication_key,
			status, scheduled_for, expires_at, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		WHERE NOT EXISTS (
			SELECT 1 FROM notification_events
			WHERE deduplication_key = $6 AND status IN ('queued', 'dispatched')
			AND (expires_at IS NULL OR expires_at > now())
		)`

	res, err := r.db.ExecContext(ctx, q, e.ID, e.UserID, e.Type, e.Priority, e.Payload, e.DeduplicationKey,
		e.Status, e.ScheduledFor, e.ExpiresAt, e.CreatedAt)
	if err != nil {
		return apperr.Transient("store.Event.CreateIfNotDuplicate", "insert failed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.Conflict("store.Event.CreateIfNotDuplicate", "active event with same deduplication key exists", nil)
	}
	return nil
}

func (r *EventRepository) UpdateStatus(ctx context.Context, id models.ID, status models.EventStatus) error {
	const q = `UPDATE notification_events SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, q, id, status); err != nil {
		return apperr.Transient("store.Event.UpdateStatus", "update failed", err)
	}
	return nil
}

func (r *EventRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.NotificationEvent, error) {
	const q = `
		SELECT id, user_id, type, priority, payload, deduplication_key, status, scheduled_for, expires_at, created_at
		FROM notification_events
		WHERE status = 'queued' AND (scheduled_for IS NULL OR scheduled_for <= $1)
		ORDER BY priority DESC, created_at ASC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, apperr.Transient("store.Event.ListDue", "query failed", err)
	}
	defer rows.Close()

	var out []*models.NotificationEvent
	for rows.Next() {
		var e models.NotificationEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Priority, &e.Payload, &e.DeduplicationKey, &e.Status,
			&e.ScheduledFor, &e.ExpiresAt, &e.CreatedAt); err != nil {
			return nil, apperr.Transient("store.Event.ListDue", "scan failed", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ReconcileOrphaned requeues events stuck in "dispatched" that own a
// delivery still due for retry: ListDue only ever re-selects "queued"
// events, so an event that left "queued" but whose deliveries didn't
// all reach a terminal state is otherwise never revisited by Dispatch
// again, orphaned between the Postgres row and the retry it's owed.
func (r *EventRepository) ReconcileOrphaned(ctx context.Context, now time.Time) (int, error) {
	const q = `
		UPDATE notification_events
		SET status = 'queued'
		WHERE status = 'dispatched'
		AND id IN (
			SELECT DISTINCT event_id FROM notification_deliveries
			WHERE status IN ('pending', 'retrying') AND (next_retry_at IS NULL OR next_retry_at <= $1)
		)`

	res, err := r.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, apperr.Transient("store.Event.ReconcileOrphaned", "update failed", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeliveryRepository persists per-(event,channel) delivery attempt records.
type DeliveryRepository struct {
	db *DB
}

func NewDeliveryRepository(db *DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) Create(ctx context.Context, d *models.NotificationDelivery) error {
	const q = `
		INSERT INTO notification_deliveries (id, event_id, channel_id, status, attempt, last_attempt_at,
			next_retry_at, response_metadata, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, q, d.ID, d.EventID, d.ChannelID, d.Status, d.Attempt, d.LastAttemptAt,
		d.NextRetryAt, d.ResponseMetadata, d.Error)
	if err != nil {
		return apperr.Transient("store.Delivery.Create", "insert failed", err)
	}
	return nil
}

// RecordAttempt advances the attempt counter and status for one
// delivery record. Terminal statuses may not be overwritten.
func (r *DeliveryRepository) RecordAttempt(ctx context.Context, id models.ID, status models.DeliveryStatus, nextRetryAt *time.Time, errMsg string) error {
	const q = `
		UPDATE notification_deliveries
		SET status = $2, attempt = attempt + 1, last_attempt_at = now(), next_retry_at = $3, error = $4
		WHERE id = $1 AND status NOT IN ('sent', 'failed', 'cancelled')`

	res, err := r.db.ExecContext(ctx, q, id, status, nextRetryAt, errMsg)
	if err != nil {
		return apperr.Transient("store.Delivery.RecordAttempt", "update failed", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.Conflict("store.Delivery.RecordAttempt", "delivery already terminal", nil)
	}
	return nil
}

func (r *DeliveryRepository) ListByEvent(ctx context.Context, eventID models.ID) ([]*models.NotificationDelivery, error) {
	const q = `
		SELECT id, event_id, channel_id, status, attempt, last_attempt_at, next_retry_at, response_metadata, error
		FROM notification_deliveries WHERE event_id = $1`

	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, apperr.Transient("store.Delivery.ListByEvent", "query failed", err)
	}
	defer rows.Close()

	var out []*models.NotificationDelivery
	for rows.Next() {
		var d models.NotificationDelivery
		if err := rows.Scan(&d.ID, &d.EventID, &d.ChannelID, &d.Status, &d.Attempt, &d.LastAttemptAt,
			&d.NextRetryAt, &d.ResponseMetadata, &d.Error); err != nil {
			return nil, apperr.Transient("store.Delivery.ListByEvent", "scan failed", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// CountDLQ returns the number of deliveries that exhausted their
// retries and landed permanently failed, the dead-letter queue the
// Notification Core's health check alerts on.
func (r *DeliveryRepository) CountDLQ(ctx context.Context) (int, error) {
	const q = `SELECT count(*) FROM notification_deliveries WHERE status = $1`
	var n int
	if err := r.db.QueryRowContext(ctx, q, models.DeliveryFailed).Scan(&n); err != nil {
		return 0, apperr.Transient("store.Delivery.CountDLQ", "query failed", err)
	}
	return n, nil
}

// CountStaleDLQ returns the number of dead-lettered deliveries whose
// last attempt is older than olderThan, flagging DLQ items nobody has
// looked at in a long time.
func (r *DeliveryRepository) CountStaleDLQ(ctx context.Context, olderThan time.Time) (int, error) {
	const q = `SELECT count(*) FROM notification_deliveries WHERE status = $1 AND last_attempt_at < $2`
	var n int
	if err := r.db.QueryRowContext(ctx, q, models.DeliveryFailed, olderThan).Scan(&n); err != nil {
		return 0, apperr.Transient("store.Delivery.CountStaleDLQ", "query failed", err)
	}
	return n, nil
}
