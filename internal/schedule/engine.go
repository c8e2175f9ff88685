// Package schedule implements the Schedule Engine: effective-schedule
// resolution by scope precedence and due-ness evaluation with jitter
// (§4.4). Due profiles are computed in-process on each planner tick;
// nothing is registered with asynq's periodic task manager.
package schedule

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/arrowhq/sentinel/internal/cache"
	"github.com/arrowhq/sentinel/internal/models"
	"github.com/arrowhq/sentinel/internal/store"
	"github.com/arrowhq/sentinel/internal/telemetry"
)

// EffectiveSchedule is the resolved schedule for one (company, source
// kind) pair after scope-precedence lookup.
type EffectiveSchedule struct {
	Frequency     time.Duration
	Jitter        time.Duration
	Mode          models.ScheduleMode
	MaxRetries    int
	RetryBackoff  time.Duration
	Window        *models.RunWindow
	ScheduleID    *models.ID
	FromBuiltin   bool
}

// Index resolves effective schedules from the set of enabled
// CrawlSchedule rows, applying source > company > source-kind >
// built-in default precedence (§4.4).
type Index struct {
	bySource     map[string]*models.CrawlSchedule // "{company_id}:{source_kind}"
	byCompany    map[string]*models.CrawlSchedule // "{company_id}"
	bySourceKind map[string]*models.CrawlSchedule // "{source_kind}"
}

// BuildIndex groups enabled schedule rows by scope for O(1) lookup.
func BuildIndex(rules []*models.CrawlSchedule) *Index {
	idx := &Index{
		bySource:     make(map[string]*models.CrawlSchedule),
		byCompany:    make(map[string]*models.CrawlSchedule),
		bySourceKind: make(map[string]*models.CrawlSchedule),
	}
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		switch r.Scope {
		case models.ScopeSource:
			idx.bySource[r.ScopeKey] = r
		case models.ScopeCompany:
			idx.byCompany[r.ScopeKey] = r
		case models.ScopeSourceKind:
			idx.bySourceKind[r.ScopeKey] = r
		}
	}
	return idx
}

// Resolve returns the effective schedule for a (company, source kind)
// pair: the most specific enabled rule wins, falling back to the
// source kind's built-in default frequency (§4.4). Resolution is a
// pure function of the index and inputs, so it is independently
// testable without a database.
func (idx *Index) Resolve(companyID models.ID, kind models.SourceKind) EffectiveSchedule {
	sourceKey := fmt.Sprintf("%s:%s", companyID, kind)
	if r, ok := idx.bySource[sourceKey]; ok {
		return fromRule(r)
	}
	if r, ok := idx.byCompany[companyID.String()]; ok {
		return fromRule(r)
	}
	if r, ok := idx.bySourceKind[string(kind)]; ok {
		return fromRule(r)
	}
	return EffectiveSchedule{
		Frequency:   models.BuiltinDefaultFrequency(kind),
		Mode:        models.ModeAlwaysUpdate,
		MaxRetries:  3,
		FromBuiltin: true,
	}
}

func fromRule(r *models.CrawlSchedule) EffectiveSchedule {
	id := r.ID
	return EffectiveSchedule{
		Frequency:    time.Duration(r.FrequencySeconds) * time.Second,
		Jitter:       time.Duration(r.JitterSeconds) * time.Second,
		Mode:         r.Mode,
		MaxRetries:   r.MaxRetries,
		RetryBackoff: time.Duration(r.RetryBackoffSeconds) * time.Second,
		Window:       r.Window,
		ScheduleID:   &id,
	}
}

// IsDue reports whether a profile is due to run, applying the
// due-ness formula: now >= (last_run_at ?? epoch) + frequency +
// uniform(0, jitter) (§4.4). rng is injected for deterministic tests.
func IsDue(now time.Time, lastRunAt *time.Time, eff EffectiveSchedule, rng *rand.Rand) bool {
	base := time.Unix(0, 0).UTC()
	if lastRunAt != nil {
		base = *lastRunAt
	}
	jitter := time.Duration(0)
	if eff.Jitter > 0 {
		jitter = time.Duration(rng.Int63n(int64(eff.Jitter)))
	}
	due := base.Add(eff.Frequency).Add(jitter)
	if !now.Before(due) {
		if eff.Window != nil && !eff.Window.Contains(minuteOfDay(now)) {
			return false
		}
		return true
	}
	return false
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Engine ties the Index to the store/cache so callers don't have to
// thread repository dependencies through every call site.
type Engine struct {
	schedules *store.ScheduleRepository
	profiles  *store.SourceProfileRepository
	redis     *cache.RedisService
}

func NewEngine(schedules *store.ScheduleRepository, profiles *store.SourceProfileRepository, redis *cache.RedisService) *Engine {
	return &Engine{schedules: schedules, profiles: profiles, redis: redis}
}

// LoadIndex builds a fresh Index from the database, invalidating
// nothing itself — callers decide how long to hold onto the result.
func (e *Engine) LoadIndex(ctx context.Context) (*Index, error) {
	rules, err := e.schedules.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	return BuildIndex(rules), nil
}

// DueProfiles filters every known source profile down to the ones
// currently due, resolving each against idx.
func (e *Engine) DueProfiles(ctx context.Context, idx *Index, now time.Time) ([]*models.SourceProfile, error) {
	all, err := e.profiles.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(now.UnixNano()))
	var due []*models.SourceProfile
	for _, p := range all {
		eff := idx.Resolve(p.CompanyID, p.SourceKind)
		if IsDue(now, p.LastRunAt, eff, rng) {
			due = append(due, p)
		}
	}
	return due, nil
}

// RecordOutcome updates a profile after a run completes: success
// always resets consecutive_failures, and resets consecutive_no_change
// only when a change was actually detected (§4.5 step 6).
func (e *Engine) RecordOutcome(ctx context.Context, profileID models.ID, success bool, contentHash string, changeDetected bool) (int, error) {
	logger := telemetry.GetContextualLogger(ctx).WithField("component", "schedule.Engine")
	if success {
		if err := e.profiles.MarkSuccess(ctx, profileID, contentHash, changeDetected); err != nil {
			return 0, err
		}
		return 0, nil
	}
	count, err := e.profiles.MarkFailure(ctx, profileID)
	if err != nil {
		return 0, err
	}
	logger.WithField("consecutive_failures", count).Debug("crawl run failed")
	return count, nil
}
