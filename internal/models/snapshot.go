package models

import "time"

// SnapshotKind is the sum type discriminating the structured-diff
// strategy a snapshot uses (§9 "Dynamic-typed records from providers").
type SnapshotKind string

const (
	SnapshotPricing   SnapshotKind = "pricing"
	SnapshotStructure SnapshotKind = "structure"
	SnapshotSEO       SnapshotKind = "seo"
	SnapshotBanners   SnapshotKind = "banners"
	SnapshotProducts  SnapshotKind = "products"
	SnapshotJobs      SnapshotKind = "jobs"
)

// Link is a (url, text) pair used by the structure and SEO parsers.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// StructureData is the canonical normalized body for a landing-structure
// snapshot (§4.6).
type StructureData struct {
	NavLinks    []Link            `json:"nav_links"`
	KeyPages    map[string]bool   `json:"key_pages"` // pricing/about/blog/news/careers/features
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Keywords    string            `json:"keywords"`
	OGTags      map[string]string `json:"og_tags,omitempty"`
	TwitterTags map[string]string `json:"twitter_tags,omitempty"`
	SectionHashes map[string]string `json:"section_hashes,omitempty"` // heading text -> content hash
}

// SEOData is the canonical normalized body for an SEO-signals snapshot.
type SEOData struct {
	MetaTags     map[string]string `json:"meta_tags"`
	JSONLDTypes  []string          `json:"json_ld_types"`
	RobotsSitemaps []string        `json:"robots_sitemaps,omitempty"`
	SitemapURLs  []string          `json:"sitemap_urls,omitempty"` // truncated
	SitemapCount int               `json:"sitemap_count"`
}

// NamedItem is a content-addressed entity keyed by name (products,
// banners) or (name, location) for jobs.
type NamedItem struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Hash     string `json:"hash"`
}

// SetData wraps a flat list of NamedItems for jobs/products/banners
// snapshots, which all diff as a content-addressed set.
type SetData struct {
	Items []NamedItem `json:"items"`
}

// Snapshot is the generic envelope for any non-pricing snapshot kind.
// Pricing keeps its richer PricingSnapshot type; the others share this
// shape because their diff strategy only needs a canonical byte form
// and a kind-specific typed payload carried as JSON.
type Snapshot struct {
	ID               ID               `db:"id" json:"id"`
	CompanyID        ID               `db:"company_id" json:"company_id"`
	SourceURL        string           `db:"source_url" json:"source_url"`
	Kind             SnapshotKind     `db:"kind" json:"kind"`
	DataHash         string           `db:"data_hash" json:"data_hash"`
	ParserVersion    string           `db:"parser_version" json:"parser_version"`
	ExtractedAt      time.Time        `db:"extracted_at" json:"extracted_at"`
	ProcessingStatus ProcessingStatus `db:"processing_status" json:"processing_status"`
	Warnings         []string         `db:"warnings" json:"warnings,omitempty"`
	Payload          []byte           `db:"payload" json:"-"` // canonical JSON of the kind-specific data
}

// ChangedField is one typed diff entry inside a CompetitorChangeEvent.
type ChangedField struct {
	Type     string      `json:"type"` // e.g. price_change, added_plan, removed_plan, nav_added, meta_changed
	Plan     string      `json:"plan,omitempty"`
	Field    string      `json:"field,omitempty"`
	Previous interface{} `json:"previous,omitempty"`
	Current  interface{} `json:"current,omitempty"`
}

// NotificationStatus is the lifecycle of a CompetitorChangeEvent's
// downstream notification.
type NotificationStatus string

const (
	NotifyPending NotificationStatus = "pending"
	NotifySent    NotificationStatus = "sent"
	NotifyFailed  NotificationStatus = "failed"
	NotifySkipped NotificationStatus = "skipped"
)

// CompetitorChangeEvent is the detected delta between two comparable
// snapshots (§3).
type CompetitorChangeEvent struct {
	ID                 ID                 `db:"id" json:"id"`
	CompanyID          ID                 `db:"company_id" json:"company_id"`
	SourceKind         SourceKind         `db:"source_kind" json:"source_kind"`
	ChangeSummary       string            `db:"change_summary" json:"change_summary"`
	ChangedFields       []ChangedField    `db:"changed_fields" json:"changed_fields"`
	RawDiff             []byte            `db:"raw_diff" json:"raw_diff,omitempty"`
	DetectedAt          time.Time         `db:"detected_at" json:"detected_at"`
	CurrentSnapshotID   ID                `db:"current_snapshot_id" json:"current_snapshot_id"`
	PreviousSnapshotID  ID                `db:"previous_snapshot_id" json:"previous_snapshot_id"`
	ProcessingStatus    ProcessingStatus  `db:"processing_status" json:"processing_status"`
	NotificationStatus  NotificationStatus `db:"notification_status" json:"notification_status"`
}
