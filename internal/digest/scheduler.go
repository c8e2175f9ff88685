// Package digest implements the Digest Scheduler: the hourly
// wall-clock eligibility sweep that decides which users are due a
// rendered digest of competitor activity and delivers it over their
// enabled channels (§4.8).
package digest

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/arrowhq/sentinel/internal/apperr"
	"github.com/arrowhq/sentinel/internal/models"
	"github.com/arrowhq/sentinel/internal/notify"
	"github.com/arrowhq/sentinel/internal/store"
	"github.com/arrowhq/sentinel/internal/telemetry"
)

// defaultScheduleTime is used when a preference's ScheduleTime is
// empty or malformed.
const defaultScheduleTime = "09:00"

// sendWindow is the width of the precise send window a schedule opens
// for: [scheduled_local_today, scheduled_local_today + sendWindow].
const sendWindow = time.Hour

// minPollInterval bounds the store-level "is this user even in the
// ballpark of due" filter; the precise per-user window check happens
// in eligible.
const minPollInterval = time.Hour

// dailyLookback and weeklyLookback are the minimum span a digest's
// content is gathered over; a LastSentUTC older than that extends the
// span back to the previous send.
const (
	dailyLookback  = 24 * time.Hour
	weeklyLookback = 7 * 24 * time.Hour
)

// Scheduler evaluates digest eligibility and delivers rendered digests
// over whichever notify.Sender implementations have been registered.
type Scheduler struct {
	prefs     *store.DigestPreferencesRepository
	channels  *store.ChannelRepository
	companies *store.CompanyRepository
	news      *store.NewsItemRepository
	senders   map[models.ChannelKind]notify.Sender
}

func NewScheduler(
	prefs *store.DigestPreferencesRepository,
	channels *store.ChannelRepository,
	companies *store.CompanyRepository,
	news *store.NewsItemRepository,
) *Scheduler {
	return &Scheduler{
		prefs:     prefs,
		channels:  channels,
		companies: companies,
		news:      news,
		senders:   make(map[models.ChannelKind]notify.Sender),
	}
}

// RegisterSender binds a channel kind to its transport implementation,
// the same senders a notify.Core would carry.
func (s *Scheduler) RegisterSender(sender notify.Sender) {
	s.senders[sender.Channel()] = sender
}

// Run evaluates every digest-enabled preference against the §4.8
// eligibility window and delivers a digest to each eligible user.
// evaluated counts every candidate the store considered due; delivered
// counts the subset actually sent.
func (s *Scheduler) Run(ctx context.Context, now time.Time) (evaluated, delivered int, err error) {
	logger := telemetry.GetContextualLogger(ctx).WithField("component", "digest.Scheduler")

	due, err := s.prefs.ListEnabledDue(ctx, minPollInterval)
	if err != nil {
		return 0, 0, err
	}

	for _, pref := range due {
		evaluated++
		nowLocal, ok := eligible(pref, now)
		if !ok {
			continue
		}
		if dErr := s.deliverOne(ctx, pref, nowLocal); dErr != nil {
			logger.WithFields(map[string]interface{}{
				"user_id": pref.UserID.String(),
				"error":   dErr.Error(),
			}).Warn("digest delivery failed")
			continue
		}
		delivered++
	}
	return evaluated, delivered, nil
}

// eligible implements the §4.8 eligibility algorithm and returns the
// user's local "now" alongside the accept/reject decision.
func eligible(pref *models.UserDigestPreferences, nowUTC time.Time) (time.Time, bool) {
	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil {
		loc = time.UTC
	}
	nowLocal := nowUTC.In(loc)

	clock, ok := parseScheduleTime(pref.ScheduleTime)
	if !ok {
		clock, _ = parseScheduleTime(defaultScheduleTime)
	}
	scheduledLocalToday := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), clock.hour, clock.minute, 0, 0, loc)

	if pref.LastSentUTC != nil {
		lastLocal := pref.LastSentUTC.In(loc)
		if sameCalendarDate(lastLocal, nowLocal) {
			return time.Time{}, false
		}
		if pref.DigestFrequency == models.DigestWeekly && sameISOWeek(lastLocal, nowLocal) {
			return time.Time{}, false
		}
	}

	if !pref.AllowedDays.Allows(nowLocal.Weekday()) {
		return time.Time{}, false
	}

	delta := nowLocal.Sub(scheduledLocalToday)
	if delta < 0 || delta > sendWindow {
		return time.Time{}, false
	}
	return nowLocal, true
}

type clockTime struct {
	hour, minute int
}

func parseScheduleTime(raw string) (clockTime, bool) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return clockTime{}, false
	}
	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return clockTime{}, false
	}
	return clockTime{hour: h, minute: m}, true
}

func sameCalendarDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameISOWeek(a, b time.Time) bool {
	ay, aw := a.ISOWeek()
	by, bw := b.ISOWeek()
	return ay == by && aw == bw
}

// digestSection groups one company's items for rendering.
type digestSection struct {
	company *models.Company
	items   []*models.NewsItem
}

func (s *Scheduler) deliverOne(ctx context.Context, pref *models.UserDigestPreferences, nowLocal time.Time) error {
	now := nowLocal.UTC()

	since := now.Add(-dailyLookback)
	if pref.DigestFrequency == models.DigestWeekly {
		since = now.Add(-weeklyLookback)
	}
	if pref.LastSentUTC != nil && pref.LastSentUTC.Before(since) {
		since = *pref.LastSentUTC
	}

	companies, err := s.companies.ListByOwnerOrGlobal(ctx, pref.UserID)
	if err != nil {
		return err
	}
	if pref.TelegramDigestMode == models.TelegramDigestTracked {
		companies = ownedOnly(companies, pref.UserID)
	}

	sections := make([]digestSection, 0, len(companies))
	for _, company := range companies {
		items, err := s.news.ListByCompanySince(ctx, company.ID, since, now)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			continue
		}
		sections = append(sections, digestSection{company: company, items: items})
	}

	subject, body, err := renderDigest(sections, pref.DigestFormat, nowLocal)
	if err != nil {
		return err
	}

	chans, err := s.channels.ListActiveByUser(ctx, pref.UserID)
	if err != nil {
		return err
	}

	sentAny := false
	var lastErr error
	for _, ch := range chans {
		sender, ok := s.senders[ch.Kind]
		if !ok {
			continue
		}
		res := sender.Send(ctx, notify.Message{
			Destination: ch.Destination,
			Subject:     subject,
			Body:        body,
			EventID:     models.NewID(),
			ChannelID:   ch.ID,
			Type:        models.NotificationTypeDailyTrend,
			Priority:    0.2,
		})
		if res.Success {
			sentAny = true
		} else if res.Err != nil {
			lastErr = res.Err
		}
	}

	if !sentAny {
		if lastErr != nil {
			return lastErr
		}
		return apperr.Configuration("digest.Scheduler.deliverOne", "user has no enabled delivery channel", nil)
	}

	return s.prefs.MarkSent(ctx, pref.UserID, now, pref.LastSentUTC)
}

func ownedOnly(companies []*models.Company, userID models.ID) []*models.Company {
	out := make([]*models.Company, 0, len(companies))
	for _, c := range companies {
		if c.OwnerID != nil && *c.OwnerID == userID {
			out = append(out, c)
		}
	}
	return out
}

func renderDigest(sections []digestSection, format models.DigestFormat, nowLocal time.Time) (string, string, error) {
	subject := fmt.Sprintf("Competitor digest — %s", nowLocal.Format("Jan 2, 2006"))

	var md strings.Builder
	if len(sections) == 0 {
		md.WriteString("No competitor updates in this period.\n")
	}
	for _, sec := range sections {
		md.WriteString(fmt.Sprintf("### %s\n\n", sec.company.Name))
		for _, item := range sec.items {
			md.WriteString(fmt.Sprintf("- **%s** — %s\n", item.Title, item.Summary))
		}
		md.WriteString("\n")
	}

	switch format {
	case models.DigestFormatHTML:
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(md.String()), &buf); err != nil {
			return "", "", apperr.Transient("digest.renderDigest", "markdown render failed", err)
		}
		return subject, buf.String(), nil
	case models.DigestFormatText:
		return subject, stripMarkdown(md.String()), nil
	default:
		return subject, md.String(), nil
	}
}

func stripMarkdown(s string) string {
	s = strings.ReplaceAll(s, "### ", "")
	s = strings.ReplaceAll(s, "**", "")
	return s
}
