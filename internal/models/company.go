package models

import "time"

// SourceKind is the closed set of surfaces a Company can be observed on.
type SourceKind string

const (
	SourceBlog        SourceKind = "blog"
	SourceNewsSite    SourceKind = "news-site"
	SourceTwitter     SourceKind = "twitter"
	SourceGitHub      SourceKind = "github"
	SourceReddit      SourceKind = "reddit"
	SourcePressReport SourceKind = "press-release"
	SourceFacebook    SourceKind = "facebook"
	SourceInstagram   SourceKind = "instagram"
	SourceLinkedIn    SourceKind = "linkedin"
	SourceYouTube     SourceKind = "youtube"
	SourceTikTok      SourceKind = "tiktok"
	SourcePricing     SourceKind = "pricing"
	SourceStructure   SourceKind = "structure"
	SourceSEO         SourceKind = "seo"
	SourceJobs        SourceKind = "jobs"
	SourceProducts    SourceKind = "products"
	SourceBanners     SourceKind = "banners"
)

// ChangeDetectionKinds lists the source kinds handled by the Change
// Detector rather than direct NewsItem ingestion.
var ChangeDetectionKinds = map[SourceKind]bool{
	SourcePricing:   true,
	SourceStructure: true,
	SourceSEO:       true,
	SourceJobs:      true,
	SourceProducts:  true,
	SourceBanners:   true,
}

// CompanyMetadata carries optional per-company classification and
// social handles; it is opaque beyond what the Source Registry reads.
type CompanyMetadata struct {
	Category string            `json:"category,omitempty"`
	Handles  map[string]string `json:"handles,omitempty"`
}

// Company is a tracked competitor. OwnerID is nil for a "global"
// company visible to every user.
type Company struct {
	ID                ID               `db:"id" json:"id"`
	OwnerID           *ID              `db:"owner_id" json:"owner_id,omitempty"`
	Name              string           `db:"name" json:"name"`
	Website           string           `db:"website" json:"website"`
	NormalizedWebsite string           `db:"normalized_website" json:"-"`
	Metadata          CompanyMetadata  `db:"metadata" json:"metadata"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// IsGlobal reports whether the company has no owning user.
func (c Company) IsGlobal() bool {
	return c.OwnerID == nil
}
