package models

import "time"

// DigestFrequency is the closed set of digest cadences.
type DigestFrequency string

const (
	DigestDaily  DigestFrequency = "daily"
	DigestWeekly DigestFrequency = "weekly"
	DigestCustom DigestFrequency = "custom"
	DigestOff    DigestFrequency = "off"
)

// DigestFormat is the rendering shape requested by the user.
type DigestFormat string

const (
	DigestFormatText     DigestFormat = "text"
	DigestFormatMarkdown DigestFormat = "markdown"
	DigestFormatHTML     DigestFormat = "html"
)

// TelegramDigestMode decides whether the Telegram digest covers only
// the user's tracked companies or all visible news.
type TelegramDigestMode string

const (
	TelegramDigestAll     TelegramDigestMode = "all"
	TelegramDigestTracked TelegramDigestMode = "tracked"
)

// Weekday is a Sunday-indexed (0=Sunday) day-of-week bit. Both
// Sunday-indexed and Monday-indexed inputs are tolerated at the
// parsing boundary (§4.8); internally everything normalizes to this.
type Weekday int

// DaySet is a bitmap of allowed weekdays; an empty set means "any day".
type DaySet uint8

// Allows reports whether the given Sunday-indexed weekday is permitted.
// An empty DaySet permits every day.
func (d DaySet) Allows(wd time.Weekday) bool {
	if d == 0 {
		return true
	}
	return d&(1<<uint(wd)) != 0
}

// UserDigestPreferences is a per-user singleton (§3).
type UserDigestPreferences struct {
	UserID              ID                 `db:"user_id" json:"user_id"`
	DigestEnabled       bool               `db:"digest_enabled" json:"digest_enabled"`
	DigestFrequency     DigestFrequency    `db:"digest_frequency" json:"digest_frequency"`
	DigestFormat        DigestFormat       `db:"digest_format" json:"digest_format"`
	ScheduleTime        string             `db:"schedule_time" json:"schedule_time"` // "HH:MM", default "09:00"
	AllowedDays         DaySet             `db:"allowed_days" json:"allowed_days"`
	Timezone            string             `db:"timezone" json:"timezone"`
	LastSentUTC         *time.Time         `db:"last_sent_utc" json:"last_sent_utc,omitempty"`
	TelegramEnabled     bool               `db:"telegram_enabled" json:"telegram_enabled"`
	TelegramDigestMode  TelegramDigestMode `db:"telegram_digest_mode" json:"telegram_digest_mode"`
}
