package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arrowhq/sentinel/internal/models"
	"github.com/arrowhq/sentinel/internal/notify"
)

// webhookPayload is the generic JSON body posted to every webhook
// variant: {event_id, type, priority, payload, delivered_at} (§6
// "Generic webhook"). Subject/Body carry the human-rendered text used
// only by payload shapers that need it (Slack).
type webhookPayload struct {
	EventID     string          `json:"event_id"`
	Type        string          `json:"type"`
	Priority    float64         `json:"priority"`
	Payload     json.RawMessage `json:"payload"`
	DeliveredAt time.Time       `json:"delivered_at"`
	Subject     string          `json:"-"`
	Body        string          `json:"-"`
}

// WebhookSender POSTs a JSON envelope to an arbitrary destination URL
// with an idempotency key derived from (event, channel).
type WebhookSender struct {
	kind       models.ChannelKind
	httpClient *http.Client
	shape      func(webhookPayload) ([]byte, error)
}

// Message-shaping defaults: the generic webhook posts webhookPayload
// verbatim; Slack/Zapier reshape it into their own expected envelope.
func defaultShape(p webhookPayload) ([]byte, error) {
	return json.Marshal(p)
}

func NewWebhookSender(timeout time.Duration) *WebhookSender {
	return newShapedSender(models.ChannelWebhook, timeout, defaultShape)
}

func NewSlackSender(timeout time.Duration) *WebhookSender {
	return newShapedSender(models.ChannelSlack, timeout, slackShape)
}

func NewZapierSender(timeout time.Duration) *WebhookSender {
	return newShapedSender(models.ChannelZapier, timeout, defaultShape)
}

func newShapedSender(kind models.ChannelKind, timeout time.Duration, shape func(webhookPayload) ([]byte, error)) *WebhookSender {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		kind:       kind,
		httpClient: &http.Client{Timeout: timeout},
		shape:      shape,
	}
}

func (s *WebhookSender) Channel() models.ChannelKind { return s.kind }

func (s *WebhookSender) Send(ctx context.Context, msg notify.Message) notify.SendResult {
	payload := webhookPayload{
		EventID:     msg.EventID.String(),
		Type:        string(msg.Type),
		Priority:    msg.Priority,
		Payload:     msg.Payload,
		DeliveredAt: time.Now().UTC(),
		Subject:     msg.Subject,
		Body:        msg.Body,
	}

	body, err := s.shape(payload)
	if err != nil {
		return notify.SendResult{Permanent: true, Err: fmt.Errorf("marshal webhook payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.Destination, bytes.NewReader(body))
	if err != nil {
		return notify.SendResult{Permanent: true, Err: fmt.Errorf("build webhook request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", fmt.Sprintf("%s:%s", msg.EventID, msg.ChannelID))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return notify.SendResult{Err: fmt.Errorf("webhook request failed: %w", err)}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return notify.SendResult{Success: true, Metadata: respBody}
	}
	permanent := resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusBadRequest
	return notify.SendResult{Permanent: permanent, Err: fmt.Errorf("webhook returned status %d", resp.StatusCode)}
}

// slackPayload shapes the envelope into Slack's incoming-webhook
// "text" field convention (§6 "Slack/Zapier: webhook variants with
// channel-specific payload shaping").
type slackPayload struct {
	Text string `json:"text"`
}

func slackShape(p webhookPayload) ([]byte, error) {
	text := p.Subject
	if p.Body != "" {
		text += "\n" + p.Body
	}
	return json.Marshal(slackPayload{Text: text})
}
