// Package notify implements the Notification Core: subscription
// matching, per-user deduplication, delivery scheduling/retry, and the
// channel transports that carry a rendered Message onto the wire
// (§4.7).
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/models"
	"github.com/arrowhq/sentinel/internal/store"
	"github.com/arrowhq/sentinel/internal/telemetry"
)

// changeEventBasePriority is the priority assigned to every change
// event notification; change events carry no topic/sentiment
// classification of their own, unlike news items, so priority is a
// flat constant plus a small boost for larger diffs.
const changeEventBasePriority = 0.6

// Core matches produced events against subscriptions, enforces the
// per-user dedup guard, and fans out one NotificationDelivery per
// matching channel.
type Core struct {
	channels      *store.ChannelRepository
	subscriptions *store.SubscriptionRepository
	events        *store.EventRepository
	deliveries    *store.DeliveryRepository
	senders       map[models.ChannelKind]Sender
	limiter       *TelegramLimiter
}

func NewCore(
	channels *store.ChannelRepository,
	subscriptions *store.SubscriptionRepository,
	events *store.EventRepository,
	deliveries *store.DeliveryRepository,
) *Core {
	return &Core{
		channels:      channels,
		subscriptions: subscriptions,
		events:        events,
		deliveries:    deliveries,
		senders:       make(map[models.ChannelKind]Sender),
	}
}

// RegisterSender binds a channel kind to its transport implementation.
func (c *Core) RegisterSender(s Sender) {
	c.senders[s.Channel()] = s
}

// NotifyChangeEvent fans a detected change out to every subscription
// that matches (§4.7).
func (c *Core) NotifyChangeEvent(ctx context.Context, event *models.CompetitorChangeEvent, companyName string) (int, error) {
	payload := ChangeEventPayload{
		EventID:       event.ID,
		CompanyID:     event.CompanyID,
		CompanyName:   companyName,
		SourceKind:    event.SourceKind,
		ChangeSummary: event.ChangeSummary,
		ChangedFields: event.ChangedFields,
		DetectedAt:    event.DetectedAt,
	}
	priority := changeEventBasePriority + 0.05*float64(len(event.ChangedFields))
	if priority > 1.0 {
		priority = 1.0
	}

	matches := func(f models.SubscriptionFilters) bool {
		return matchSourceKind(f, event.SourceKind) && matchCompany(f, event.CompanyID)
	}

	return c.fanout(ctx, models.NotificationTypeChangeEvent, payload.EventID.String(), priority, payload, matches)
}

// NotifyNewsItem fans a classified news item out to every subscription
// that matches.
func (c *Core) NotifyNewsItem(ctx context.Context, item *models.NewsItem, companyName string) (int, error) {
	payload := NewsItemPayload{
		NewsItemID:  item.ID,
		CompanyID:   item.CompanyID,
		CompanyName: companyName,
		Title:       item.Title,
		Summary:     item.Summary,
		SourceURL:   item.SourceURL,
		Topic:       item.Topic,
		Sentiment:   item.Sentiment,
		PublishedAt: item.PublishedAt,
	}

	matches := func(f models.SubscriptionFilters) bool {
		if !matchTopic(f, item.Topic) {
			return false
		}
		if !matchCategory(f, item.Category) {
			return false
		}
		if !matchSourceKind(f, item.SourceKind) {
			return false
		}
		if item.CompanyID != nil && !matchCompany(f, *item.CompanyID) {
			return false
		}
		return true
	}

	return c.fanout(ctx, models.NotificationTypeNewsDigestTrend, item.ID.String(), item.Priority, payload, matches)
}

// fanout loads every enabled subscription of type t, filters by
// min_priority/structured filters/channel health, groups survivors by
// user, creates one dedup-guarded NotificationEvent per user, and one
// NotificationDelivery per surviving channel.
func (c *Core) fanout(ctx context.Context, t models.NotificationType, sourceID string, priority float64, payload interface{}, matches func(models.SubscriptionFilters) bool) (int, error) {
	logger := telemetry.GetContextualLogger(ctx).WithField("component", "notify.Core")

	subs, err := c.subscriptions.ListEnabledByType(ctx, t)
	if err != nil {
		return 0, err
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, apperr.Parse("notify.Core.fanout", "failed to marshal payload", err)
	}

	byUser := make(map[models.ID][]*models.NotificationSubscription)
	for _, s := range subs {
		if s.MinPriority > priority {
			continue
		}
		if !matches(s.Filters) {
			continue
		}
		byUser[s.UserID] = append(byUser[s.UserID], s)
	}

	count := 0
	for userID, userSubs := range byUser {
		var live []*models.NotificationSubscription
		for _, s := range userSubs {
			ch, err := c.channels.Get(ctx, s.ChannelID)
			if err != nil {
				logger.WithField("error", err.Error()).Warn("failed to load channel for subscription")
				continue
			}
			if !ch.Verified || ch.Disabled {
				continue
			}
			live = append(live, s)
		}
		if len(live) == 0 {
			continue
		}

		now := time.Now().UTC()
		event := &models.NotificationEvent{
			ID:               models.NewID(),
			UserID:           userID,
			Type:             t,
			Priority:         priority,
			Payload:          payloadJSON,
			DeduplicationKey: fmt.Sprintf("%s:%s:%s", t, sourceID, userID.String()),
			Status:           models.EventQueued,
			CreatedAt:        now,
		}
		if err := c.events.CreateIfNotDuplicate(ctx, event); err != nil {
			if apperr.IsConflict(err) {
				continue // already notified this user for this source
			}
			return count, err
		}

		for _, s := range live {
			delivery := &models.NotificationDelivery{
				ID:        models.NewID(),
				EventID:   event.ID,
				ChannelID: s.ChannelID,
				Status:    models.DeliveryPending,
			}
			if err := c.deliveries.Create(ctx, delivery); err != nil {
				return count, err
			}
		}
		count++
	}

	return count, nil
}

func matchTopic(f models.SubscriptionFilters, topic models.Topic) bool {
	if len(f.Topics) == 0 {
		return true
	}
	for _, t := range f.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

func matchCategory(f models.SubscriptionFilters, category string) bool {
	if len(f.Categories) == 0 {
		return true
	}
	for _, c := range f.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func matchSourceKind(f models.SubscriptionFilters, kind models.SourceKind) bool {
	if len(f.SourceKinds) == 0 {
		return true
	}
	for _, k := range f.SourceKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func matchCompany(f models.SubscriptionFilters, companyID models.ID) bool {
	if len(f.CompanyIDs) == 0 {
		return true
	}
	for _, id := range f.CompanyIDs {
		if id == companyID {
			return true
		}
	}
	return false
}
