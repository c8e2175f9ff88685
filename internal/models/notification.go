package models

import (
	"encoding/json"
	"time"
)

// ChannelKind is the closed set of delivery endpoint kinds (§3).
type ChannelKind string

const (
	ChannelEmail    ChannelKind = "email"
	ChannelTelegram ChannelKind = "telegram"
	ChannelWebhook  ChannelKind = "webhook"
	ChannelSlack    ChannelKind = "slack"
	ChannelZapier   ChannelKind = "zapier"
)

// NotificationChannel is a per-user delivery endpoint.
type NotificationChannel struct {
	ID          ID          `db:"id" json:"id"`
	UserID      ID          `db:"user_id" json:"user_id"`
	Kind        ChannelKind `db:"kind" json:"kind"`
	Destination string      `db:"destination" json:"destination"`
	Verified    bool        `db:"verified" json:"verified"`
	Disabled    bool        `db:"disabled" json:"disabled"`
	Metadata    json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// SubscriptionFilters narrows which events a subscription matches.
type SubscriptionFilters struct {
	Topics      []Topic      `json:"topics,omitempty"`
	Categories  []string     `json:"categories,omitempty"`
	SourceKinds []SourceKind `json:"source_kinds,omitempty"`
	CompanyIDs  []ID         `json:"company_ids,omitempty"`
}

// NotificationType is the closed set of logical notification kinds.
type NotificationType string

const (
	NotificationTypeChangeEvent NotificationType = "change_event"
	NotificationTypeNewsDigestTrend NotificationType = "news_trend"
	NotificationTypeDailyTrend NotificationType = "daily_trend"
)

// NotificationSubscription is a rule matching (user, channel, type, filters).
type NotificationSubscription struct {
	ID               ID                `db:"id" json:"id"`
	UserID           ID                `db:"user_id" json:"user_id"`
	ChannelID        ID                `db:"channel_id" json:"channel_id"`
	NotificationType NotificationType  `db:"notification_type" json:"notification_type"`
	Filters          SubscriptionFilters `db:"filters" json:"filters"`
	MinPriority      float64           `db:"min_priority" json:"min_priority"`
	Frequency        string            `db:"frequency" json:"frequency,omitempty"`
	Enabled          bool              `db:"enabled" json:"enabled"`
}

// EventStatus is the lifecycle of a queued NotificationEvent.
type EventStatus string

const (
	EventQueued     EventStatus = "queued"
	EventDispatched EventStatus = "dispatched"
	EventDelivered  EventStatus = "delivered"
	EventFailed     EventStatus = "failed"
	EventSuppressed EventStatus = "suppressed"
	EventExpired    EventStatus = "expired"
)

// ActiveEventStatuses are the statuses counted for dedup purposes (§3).
var ActiveEventStatuses = map[EventStatus]bool{
	EventQueued:     true,
	EventDispatched: true,
}

// NotificationEvent is a logical event queued for delivery (§3).
type NotificationEvent struct {
	ID                 ID                `db:"id" json:"id"`
	UserID              ID               `db:"user_id" json:"user_id"`
	Type                NotificationType `db:"type" json:"type"`
	Priority            float64          `db:"priority" json:"priority"`
	Payload             json.RawMessage  `db:"payload" json:"payload"`
	DeduplicationKey    string           `db:"deduplication_key" json:"deduplication_key,omitempty"`
	Status              EventStatus      `db:"status" json:"status"`
	ScheduledFor        *time.Time       `db:"scheduled_for" json:"scheduled_for,omitempty"`
	ExpiresAt           *time.Time       `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
}

// Active reports whether the event still counts toward the dedup guard.
func (e NotificationEvent) Active(now time.Time) bool {
	if !ActiveEventStatuses[e.Status] {
		return false
	}
	if e.ExpiresAt != nil && now.After(*e.ExpiresAt) {
		return false
	}
	return true
}

// DeliveryStatus is the lifecycle of one (event, channel) attempt record.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryCancelled DeliveryStatus = "cancelled"
	DeliveryRetrying  DeliveryStatus = "retrying"
)

// Terminal reports whether the delivery status is immutable.
func (s DeliveryStatus) Terminal() bool {
	switch s {
	case DeliverySent, DeliveryFailed, DeliveryCancelled:
		return true
	default:
		return false
	}
}

// TerminalNonSuccess reports whether the status is terminal and not a
// success, used to decide whether the parent event should fail (§4.7).
func (s DeliveryStatus) TerminalNonSuccess() bool {
	return s.Terminal() && s != DeliverySent
}

// NotificationDelivery is one attempt record per (event, channel) (§3).
type NotificationDelivery struct {
	ID               ID             `db:"id" json:"id"`
	EventID          ID             `db:"event_id" json:"event_id"`
	ChannelID        ID             `db:"channel_id" json:"channel_id"`
	Status           DeliveryStatus `db:"status" json:"status"`
	Attempt          int            `db:"attempt" json:"attempt"`
	LastAttemptAt    *time.Time     `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	NextRetryAt      *time.Time     `db:"next_retry_at" json:"next_retry_at,omitempty"`
	ResponseMetadata json.RawMessage `db:"response_metadata" json:"response_metadata,omitempty"`
	Error            string         `db:"error" json:"error,omitempty"`
}
