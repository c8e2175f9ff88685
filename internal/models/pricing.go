package models

import "time"

// BillingCycle is the closed mapping a parsed price's cycle token
// normalizes into (§4.3 step 7).
type BillingCycle string

const (
	BillingMonthly   BillingCycle = "monthly"
	BillingAnnual    BillingCycle = "annual"
	BillingQuarterly BillingCycle = "quarterly"
	BillingWeekly    BillingCycle = "weekly"
	BillingDaily     BillingCycle = "daily"
	BillingLifetime  BillingCycle = "lifetime"
	BillingOneTime   BillingCycle = "one_time"
	BillingPerUser   BillingCycle = "per_user"
	BillingUsage     BillingCycle = "usage_based"
)

// PriceLabel flags a non-numeric price (free or contact-for-pricing).
type PriceLabel string

const (
	PriceLabelNone    PriceLabel = ""
	PriceLabelFree    PriceLabel = "free"
	PriceLabelContact PriceLabel = "contact"
)

// Price is a normalized plan price. Amount is nil when Label is
// non-empty (free/contact plans carry no numeric amount).
type Price struct {
	Amount   *float64     `json:"amount,omitempty"`
	Currency string       `json:"currency,omitempty"`
	Cycle    BillingCycle `json:"cycle,omitempty"`
	Label    PriceLabel   `json:"label,omitempty"`
}

// Equal reports whether two prices are the same for diffing purposes.
func (p Price) Equal(o Price) bool {
	if p.Label != o.Label || p.Currency != o.Currency || p.Cycle != o.Cycle {
		return false
	}
	switch {
	case p.Amount == nil && o.Amount == nil:
		return true
	case p.Amount == nil || o.Amount == nil:
		return false
	default:
		return *p.Amount == *o.Amount
	}
}

// PricingPlan is one plan card or table column extracted by the pricing
// parser.
type PricingPlan struct {
	Name     string   `json:"plan"`
	Price    Price    `json:"price"`
	Features []string `json:"features,omitempty"`
}

// PricingData is the canonical normalized body a PricingSnapshot's
// data_hash is computed over.
type PricingData struct {
	Plans []PricingPlan `json:"plans"`
}

// PricingExtractionMetadata records parser diagnostics (§4.3).
type PricingExtractionMetadata struct {
	URL                string   `json:"url"`
	CandidateCount      int      `json:"candidate_count"`
	CurrenciesObserved []string `json:"currencies_observed,omitempty"`
}

// PricingSnapshot is a content-addressed capture of a parsed pricing
// page (§3).
type PricingSnapshot struct {
	ID                 ID                        `db:"id" json:"id"`
	CompanyID          ID                        `db:"company_id" json:"company_id"`
	SourceURL          string                    `db:"source_url" json:"source_url"`
	SourceKind         SourceKind                `db:"source_kind" json:"source_kind"`
	DataHash           string                    `db:"data_hash" json:"data_hash"`
	NormalizedData     PricingData               `db:"normalized_data" json:"normalized_data"`
	ParserVersion      string                    `db:"parser_version" json:"parser_version"`
	ExtractedAt        time.Time                 `db:"extracted_at" json:"extracted_at"`
	Warnings           []string                  `db:"warnings" json:"warnings,omitempty"`
	ExtractionMetadata PricingExtractionMetadata `db:"extraction_metadata" json:"extraction_metadata"`
	ProcessingStatus   ProcessingStatus          `db:"processing_status" json:"processing_status"`
}

// ProcessingStatus is the outcome of parsing/persisting a snapshot.
type ProcessingStatus string

const (
	ProcessingSuccess ProcessingStatus = "success"
	ProcessingSkipped ProcessingStatus = "skipped"
	ProcessingError   ProcessingStatus = "error"
)
