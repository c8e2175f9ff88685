package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/models"
	"github.com/arrowhq/sentinel/internal/telemetry"
)

// defaultMaxDeliveryRetries bounds in-task retries before a delivery
// is marked permanently failed (§4.7).
const defaultMaxDeliveryRetries = 5

// deliveryBaseBackoff and deliveryMaxBackoff bound the exponential
// backoff applied between delivery retries.
const (
	deliveryBaseBackoff = 30 * time.Second
	deliveryMaxBackoff  = 30 * time.Minute
)

// Dispatch claims up to batchSize due events and drives every
// non-terminal delivery for each one attempt forward: it calls the
// channel sender, records the outcome, and re-derives the parent
// event's status once all deliveries reach a terminal state (§4.7).
func (c *Core) Dispatch(ctx context.Context, now time.Time, batchSize int) (int, error) {
	logger := telemetry.GetContextualLogger(ctx).WithField("component", "notify.Dispatcher")

	due, err := c.events.ListDue(ctx, now, batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, event := range due {
		deliveries, err := c.deliveries.ListByEvent(ctx, event.ID)
		if err != nil {
			logger.WithField("error", err.Error()).Warn("failed to load deliveries for event")
			continue
		}

		for _, d := range deliveries {
			if d.Status.Terminal() {
				continue
			}
			if d.NextRetryAt != nil && now.Before(*d.NextRetryAt) {
				continue
			}
			c.attemptDelivery(ctx, event, d, now)
		}

		if err := c.settleEvent(ctx, event.ID); err != nil {
			logger.WithField("error", err.Error()).Warn("failed to settle event status")
		}
		processed++
	}

	return processed, nil
}

func (c *Core) attemptDelivery(ctx context.Context, event *models.NotificationEvent, d *models.NotificationDelivery, now time.Time) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"component":    "notify.Dispatcher",
		"event_id":     event.ID.String(),
		"delivery_id":  d.ID.String(),
	})

	channel, err := c.channels.Get(ctx, d.ChannelID)
	if err != nil {
		_ = c.deliveries.RecordAttempt(ctx, d.ID, models.DeliveryFailed, nil, "channel not found: "+err.Error())
		return
	}
	if !channel.Verified || channel.Disabled {
		_ = c.deliveries.RecordAttempt(ctx, d.ID, models.DeliveryCancelled, nil, "channel disabled or unverified")
		return
	}

	sender, ok := c.senders[channel.Kind]
	if !ok {
		_ = c.deliveries.RecordAttempt(ctx, d.ID, models.DeliveryFailed, nil, "no sender registered for channel kind")
		return
	}

	if channel.Kind == models.ChannelTelegram && c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			logger.WithField("error", err.Error()).Warn("telegram rate limit wait failed")
			return
		}
	}

	subject, body, err := c.render(event)
	if err != nil {
		_ = c.deliveries.RecordAttempt(ctx, d.ID, models.DeliveryFailed, nil, "failed to render payload: "+err.Error())
		return
	}

	res := sender.Send(ctx, Message{
		Destination: channel.Destination,
		Subject:     subject,
		Body:        body,
		EventID:     event.ID,
		ChannelID:   channel.ID,
		Type:        event.Type,
		Priority:    event.Priority,
		Payload:     event.Payload,
	})

	switch {
	case res.Success:
		_ = c.deliveries.RecordAttempt(ctx, d.ID, models.DeliverySent, nil, "")
	case res.Permanent || d.Attempt+1 >= defaultMaxDeliveryRetries:
		_ = c.deliveries.RecordAttempt(ctx, d.ID, models.DeliveryFailed, nil, errString(res.Err))
	default:
		next := now.Add(backoffFor(d.Attempt))
		_ = c.deliveries.RecordAttempt(ctx, d.ID, models.DeliveryRetrying, &next, errString(res.Err))
	}
}

// settleEvent reloads an event's deliveries and advances the parent
// event's status once every delivery is terminal: delivered if at least
// one succeeded, failed if none did (§4.7).
func (c *Core) settleEvent(ctx context.Context, eventID models.ID) error {
	deliveries, err := c.deliveries.ListByEvent(ctx, eventID)
	if err != nil {
		return err
	}

	allTerminal := true
	anySent := false
	for _, d := range deliveries {
		if !d.Status.Terminal() {
			allTerminal = false
		}
		if d.Status == models.DeliverySent {
			anySent = true
		}
	}

	if !allTerminal {
		return c.events.UpdateStatus(ctx, eventID, models.EventDispatched)
	}
	if anySent {
		return c.events.UpdateStatus(ctx, eventID, models.EventDelivered)
	}
	return c.events.UpdateStatus(ctx, eventID, models.EventFailed)
}

func (c *Core) render(event *models.NotificationEvent) (subject, body string, err error) {
	switch event.Type {
	case models.NotificationTypeChangeEvent:
		var p ChangeEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", "", apperr.Parse("notify.Core.render", "failed to unmarshal change event payload", err)
		}
		s, b := renderChangeEvent(p)
		return s, b, nil
	default:
		var p NewsItemPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", "", apperr.Parse("notify.Core.render", "failed to unmarshal news item payload", err)
		}
		s, b := renderNewsItem(p)
		return s, b, nil
	}
}

// SetTelegramLimiter wires the shared rate limiter; dispatch runs
// without one (e.g. in tests) simply skip the wait.
func (c *Core) SetTelegramLimiter(l *TelegramLimiter) {
	c.limiter = l
}

func backoffFor(attempt int) time.Duration {
	d := deliveryBaseBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= deliveryMaxBackoff {
			return deliveryMaxBackoff
		}
	}
	return d
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
