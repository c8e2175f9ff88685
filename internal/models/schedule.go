package models

import "time"

// ScheduleMode mirrors a SourceProfile's ingestion strategy.
type ScheduleMode string

const (
	ModeAlwaysUpdate    ScheduleMode = "always-update"
	ModeChangeDetection ScheduleMode = "change-detection"
)

// ScheduleScope is the specificity level a CrawlSchedule rule applies at.
type ScheduleScope string

const (
	ScopeSource     ScheduleScope = "source"
	ScopeCompany    ScheduleScope = "company"
	ScopeSourceKind ScheduleScope = "source-kind"
)

// scopeRank orders scopes from most to least specific; lower is more
// specific. Used by the Schedule Engine's precedence resolution.
var scopeRank = map[ScheduleScope]int{
	ScopeSource:     0,
	ScopeCompany:    1,
	ScopeSourceKind: 2,
}

// Rank returns the precedence rank of the scope; lower wins.
func (s ScheduleScope) Rank() int {
	if r, ok := scopeRank[s]; ok {
		return r
	}
	return len(scopeRank) // unknown scopes never win
}

// RunWindow is an optional [Start, End) time-of-day window, expressed in
// minutes since midnight UTC, outside of which a schedule never fires.
type RunWindow struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Contains reports whether the given local-day minute offset falls
// inside the window. A zero-value window (both ends 0) is unbounded.
func (w RunWindow) Contains(minuteOfDay int) bool {
	if w.StartMinute == 0 && w.EndMinute == 0 {
		return true
	}
	return minuteOfDay >= w.StartMinute && minuteOfDay < w.EndMinute
}

// CrawlSchedule is a declarative scheduling rule. ScopeKey is
// "{company_id}:{source_kind}" for ScopeSource, "{company_id}" for
// ScopeCompany, or the bare source kind string for ScopeSourceKind.
type CrawlSchedule struct {
	ID                  ID            `db:"id" json:"id"`
	Scope               ScheduleScope `db:"scope" json:"scope"`
	ScopeKey            string        `db:"scope_key" json:"scope_key"`
	FrequencySeconds     int64         `db:"frequency_seconds" json:"frequency_seconds"`
	JitterSeconds       int64         `db:"jitter_seconds" json:"jitter_seconds"`
	Mode                ScheduleMode  `db:"mode" json:"mode"`
	MaxRetries          int           `db:"max_retries" json:"max_retries"`
	RetryBackoffSeconds int64         `db:"retry_backoff_seconds" json:"retry_backoff_seconds"`
	Priority            int           `db:"priority" json:"priority"`
	Enabled             bool          `db:"enabled" json:"enabled"`
	Window              *RunWindow    `db:"run_window" json:"run_window,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

// BuiltinDefaultFrequency returns the fallback frequency for a source
// kind when no CrawlSchedule row overrides it (§4.4).
func BuiltinDefaultFrequency(kind SourceKind) time.Duration {
	switch kind {
	case SourceBlog:
		return 15 * time.Minute
	case SourceNewsSite:
		return 10 * time.Minute
	case SourceTwitter, SourceFacebook, SourceInstagram, SourceLinkedIn, SourceYouTube, SourceTikTok, SourceReddit:
		return 5 * time.Minute
	case SourceGitHub:
		return 30 * time.Minute
	case SourcePressReport:
		return 60 * time.Minute
	default:
		return 15 * time.Minute
	}
}

// SourceProfile is the per-(Company,SourceKind) ingestion state.
type SourceProfile struct {
	ID                 ID           `db:"id" json:"id"`
	CompanyID          ID           `db:"company_id" json:"company_id"`
	SourceKind         SourceKind   `db:"source_kind" json:"source_kind"`
	Mode               ScheduleMode `db:"mode" json:"mode"`
	LastRunAt          *time.Time   `db:"last_run_at" json:"last_run_at,omitempty"`
	LastSuccessAt      *time.Time   `db:"last_success_at" json:"last_success_at,omitempty"`
	LastErrorAt        *time.Time   `db:"last_error_at" json:"last_error_at,omitempty"`
	ConsecutiveFailures int         `db:"consecutive_failures" json:"consecutive_failures"`
	ConsecutiveNoChange int         `db:"consecutive_no_change" json:"consecutive_no_change"`
	LastContentHash     string      `db:"last_content_hash" json:"last_content_hash,omitempty"`
	ScheduleID          *ID         `db:"schedule_id" json:"schedule_id,omitempty"`
	CreatedAt           time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at" json:"updated_at"`
}

// CrawlRunStatus is the lifecycle of a single CrawlRun.
type CrawlRunStatus string

const (
	RunScheduled CrawlRunStatus = "scheduled"
	RunRunning   CrawlRunStatus = "running"
	RunSuccess   CrawlRunStatus = "success"
	RunFailed    CrawlRunStatus = "failed"
	RunSkipped   CrawlRunStatus = "skipped"
)

// Terminal reports whether the status is immutable once reached.
func (s CrawlRunStatus) Terminal() bool {
	switch s {
	case RunSuccess, RunFailed, RunSkipped:
		return true
	default:
		return false
	}
}

// CrawlRun is one instance of a scheduled fetch for a SourceProfile.
type CrawlRun struct {
	ID             ID             `db:"id" json:"id"`
	ProfileID      ID             `db:"profile_id" json:"profile_id"`
	ScheduleID     *ID            `db:"schedule_id" json:"schedule_id,omitempty"`
	Status         CrawlRunStatus `db:"status" json:"status"`
	StartedAt      time.Time      `db:"started_at" json:"started_at"`
	FinishedAt     *time.Time     `db:"finished_at" json:"finished_at,omitempty"`
	ItemCount      int            `db:"item_count" json:"item_count"`
	ChangeDetected bool           `db:"change_detected" json:"change_detected"`
	ErrorMessage   string         `db:"error_message" json:"error_message,omitempty"`
}
