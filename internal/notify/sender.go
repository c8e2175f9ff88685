package notify

import (
	"context"
	"encoding/json"

	"github.com/arrowhq/sentinel/internal/models"
)

// Message is the rendered, channel-agnostic form of one delivery
// attempt. Core renders a NotificationEvent's payload into a Message
// once; the channel-specific Sender decides how to shape it on the
// wire (§4.7, §6 "Transport protocols"). Subject/Body are human-
// rendered text for the messaging channels; Type/Priority/Payload
// carry the event's structured form for the generic webhook body
// shape `{event_id, type, priority, payload, delivered_at}`.
type Message struct {
	Destination string
	Subject     string
	Body        string
	EventID     models.ID
	ChannelID   models.ID
	Type        models.NotificationType
	Priority    float64
	Payload     json.RawMessage
}

// SendResult is returned by a Sender after one delivery attempt.
// Permanent marks errors that must not be retried (invalid
// destination, permanently rejected payload) as distinct from
// transient ones that should back off and retry.
type SendResult struct {
	Success   bool
	Permanent bool
	Metadata  []byte
	Err       error
}

// Sender delivers a rendered Message over one channel kind. Each
// ChannelKind in models has exactly one Sender implementation,
// registered on a Core (§4.7, §9 "composition with small interfaces").
type Sender interface {
	Send(ctx context.Context, msg Message) SendResult
	Channel() models.ChannelKind
}
