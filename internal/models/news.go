package models

import "time"

// Topic is the closed vocabulary a NewsItem is classified into (§4.5).
type Topic string

const (
	TopicProduct    Topic = "product"
	TopicStrategy   Topic = "strategy"
	TopicFinance    Topic = "finance"
	TopicTechnology Topic = "technology"
	TopicSecurity   Topic = "security"
	TopicResearch   Topic = "research"
	TopicCommunity  Topic = "community"
	TopicTalent     Topic = "talent"
	TopicRegulation Topic = "regulation"
	TopicMarket     Topic = "market"
	TopicOther      Topic = "other"
)

// Sentiment is the closed vocabulary for a NewsItem's sentiment label.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentMixed    Sentiment = "mixed"
)

// KeywordRelevance is one entry of a NewsItem's extracted keyword list.
type KeywordRelevance struct {
	Keyword   string  `json:"keyword"`
	Relevance float64 `json:"relevance"`
}

// NewsItem is a canonical unit of observed content (§3).
type NewsItem struct {
	ID              ID                 `db:"id" json:"id"`
	CompanyID       *ID                `db:"company_id" json:"company_id,omitempty"`
	Title           string             `db:"title" json:"title"`
	Summary         string             `db:"summary" json:"summary"`
	Content         string             `db:"content" json:"content"`
	SourceURL       string             `db:"source_url" json:"source_url"`
	SourceKind      SourceKind         `db:"source_kind" json:"source_kind"`
	Category        string             `db:"category" json:"category,omitempty"`
	Topic           Topic              `db:"topic" json:"topic"`
	Sentiment       Sentiment          `db:"sentiment" json:"sentiment"`
	Priority        float64            `db:"priority" json:"priority"`
	Keywords        []KeywordRelevance `db:"keywords" json:"keywords,omitempty"`
	PublishedAt     time.Time          `db:"published_at" json:"published_at"`
	RawSnapshotURL  string             `db:"raw_snapshot_url" json:"raw_snapshot_url,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
}
