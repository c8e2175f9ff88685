package notify

import (
	"time"

	"github.com/arrowhq/sentinel/internal/models"
)

// ChangeEventPayload is the JSON body stored on a NotificationEvent
// produced from a CompetitorChangeEvent.
type ChangeEventPayload struct {
	EventID       models.ID            `json:"event_id"`
	CompanyID     models.ID            `json:"company_id"`
	CompanyName   string               `json:"company_name"`
	SourceKind    models.SourceKind    `json:"source_kind"`
	ChangeSummary string               `json:"change_summary"`
	ChangedFields []models.ChangedField `json:"changed_fields"`
	DetectedAt    time.Time            `json:"detected_at"`
}

// NewsItemPayload is the JSON body stored on a NotificationEvent
// produced from a classified NewsItem.
type NewsItemPayload struct {
	NewsItemID  models.ID        `json:"news_item_id"`
	CompanyID   *models.ID       `json:"company_id,omitempty"`
	CompanyName string           `json:"company_name,omitempty"`
	Title       string           `json:"title"`
	Summary     string           `json:"summary"`
	SourceURL   string           `json:"source_url"`
	Topic       models.Topic     `json:"topic"`
	Sentiment   models.Sentiment `json:"sentiment"`
	PublishedAt time.Time        `json:"published_at"`
}

// render produces the subject/body text every transport starts from;
// channel-specific senders may reshape it further (e.g. markdown
// escaping, length segmentation).
func renderChangeEvent(p ChangeEventPayload) (subject, body string) {
	subject = p.CompanyName + ": " + string(p.SourceKind) + " change detected"
	body = p.ChangeSummary
	for _, f := range p.ChangedFields {
		line := "\n- " + f.Type
		if f.Plan != "" {
			line += " (" + f.Plan + ")"
		}
		if f.Field != "" {
			line += " " + f.Field
		}
		body += line
	}
	return subject, body
}

func renderNewsItem(p NewsItemPayload) (subject, body string) {
	subject = p.Title
	if p.CompanyName != "" {
		subject = p.CompanyName + ": " + p.Title
	}
	body = p.Summary
	if body == "" {
		body = p.Title
	}
	body += "\n" + p.SourceURL
	return subject, body
}
