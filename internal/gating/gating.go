// Package gating decides whether a learner-skill pair should receive a
// challenge right now.
package gating

import (
	"fmt"
	"time"

	// Learner zones must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"
)

// Config holds the gating thresholds.
type Config struct {
	// MinInterval is the minimum time between two challenges for the same
	// learner-skill pair.
	MinInterval time.Duration

	// DefaultDailyCap applies when the learner has no cap of their own.
	DefaultDailyCap int

	// MinAttempts is the sample size below which the mastery gate never
	// rejects.
	MinAttempts int

	// PriorityThreshold is the accuracy above which a practiced skill is
	// considered mastered and skipped.
	PriorityThreshold float64
}

// DefaultConfig returns the standard gating thresholds.
func DefaultConfig() Config {
	return Config{
		MinInterval:       4 * time.Hour,
		DefaultDailyCap:   5,
		MinAttempts:       5,
		PriorityThreshold: 0.7,
	}
}

// UnscoredAccuracy is assumed when a pair has no attempts yet.
const UnscoredAccuracy = 0.5

// Candidate is the snapshot of one learner-skill pair.
type Candidate struct {
	LearnerID string
	SkillID   string

	SkillActive bool

	TimeZone        string
	QuietHoursStart *int
	QuietHoursEnd   *int
	DailyCap        int // 0 means DefaultDailyCap

	DifficultyTarget int
	AttemptsTotal    int
	CorrectTotal     int
	LastChallengedAt *time.Time
}

// Accuracy returns correct/attempts, or UnscoredAccuracy with no attempts.
func (c Candidate) Accuracy() float64 {
	if c.AttemptsTotal <= 0 {
		return UnscoredAccuracy
	}
	return float64(c.CorrectTotal) / float64(c.AttemptsTotal)
}

// Pending describes an issued challenge still awaiting an answer.
type Pending struct {
	ChallengeID string
	IssuedAt    time.Time
}

// Facts supplies the per-candidate context that needs a lookup. Evaluate
// only calls a method once the earlier checks have passed.
type Facts interface {
	// ChallengesToday counts challenges issued to the learner since the
	// current day boundary.
	ChallengesToday() (int, error)

	// PendingChallenge returns an unanswered challenge among the pair's
	// recent challenges, or nil.
	PendingChallenge() (*Pending, error)
}

// StaticFacts is a Facts with fixed values.
type StaticFacts struct {
	Today   int
	Pending *Pending
}

func (f StaticFacts) ChallengesToday() (int, error)       { return f.Today, nil }
func (f StaticFacts) PendingChallenge() (*Pending, error) { return f.Pending, nil }

// Check identifies which gate produced a decision.
type Check string

const (
	CheckSkillInactive Check = "skill_inactive"
	CheckQuietHours    Check = "quiet_hours"
	CheckDailyCap      Check = "daily_cap"
	CheckTooSoon       Check = "too_soon"
	CheckUnanswered    Check = "unanswered"
	CheckMastered      Check = "mastered"
	CheckLookupFailed  Check = "lookup_failed"
	CheckAccepted      Check = "accepted"
)

// Decision is the outcome of evaluating one candidate.
type Decision struct {
	LearnerID        string
	SkillID          string
	ShouldChallenge  bool
	Check            Check
	Reason           string
	DifficultyTarget int
	Accuracy         float64
	ScheduledFor     *time.Time // set only when accepted
	Err              error      // set only for CheckLookupFailed
}

// Evaluate applies the gates in order and returns the first rejection, or
// an acceptance.
func (cfg Config) Evaluate(c Candidate, facts Facts, now time.Time) Decision {
	d := Decision{
		LearnerID:        c.LearnerID,
		SkillID:          c.SkillID,
		DifficultyTarget: c.DifficultyTarget,
		Accuracy:         c.Accuracy(),
	}
	reject := func(check Check, reason string) Decision {
		d.Check = check
		d.Reason = reason
		return d
	}

	if !c.SkillActive {
		return reject(CheckSkillInactive, "skill not active")
	}

	hour := now.In(location(c.TimeZone)).Hour()
	if InQuietHours(hour, c.QuietHoursStart, c.QuietHoursEnd) {
		return reject(CheckQuietHours, fmt.Sprintf("quiet hours (local hour %d)", hour))
	}

	today, err := facts.ChallengesToday()
	if err != nil {
		d.Err = err
		return reject(CheckLookupFailed, "daily count unavailable")
	}
	limit := c.DailyCap
	if limit <= 0 {
		limit = cfg.DefaultDailyCap
	}
	if today >= limit {
		return reject(CheckDailyCap, fmt.Sprintf("daily challenge limit reached (%d/%d)", today, limit))
	}

	if c.LastChallengedAt != nil {
		since := now.Sub(*c.LastChallengedAt)
		if since < cfg.MinInterval {
			return reject(CheckTooSoon, fmt.Sprintf("too soon (last challenge %s ago, minimum %s)",
				since.Round(time.Minute), cfg.MinInterval))
		}
	}

	pending, err := facts.PendingChallenge()
	if err != nil {
		d.Err = err
		return reject(CheckLookupFailed, "recent challenges unavailable")
	}
	if pending != nil {
		age := now.Sub(pending.IssuedAt).Round(time.Minute)
		return reject(CheckUnanswered, fmt.Sprintf("unanswered challenge exists (issued %s ago)", age))
	}

	if c.AttemptsTotal >= cfg.MinAttempts && d.Accuracy > cfg.PriorityThreshold {
		return reject(CheckMastered, fmt.Sprintf("accuracy too high (mastered): %.0f%% over %d attempts",
			d.Accuracy*100, c.AttemptsTotal))
	}

	at := now
	d.ShouldChallenge = true
	d.Check = CheckAccepted
	d.ScheduledFor = &at
	d.Reason = fmt.Sprintf("accuracy %.0f%% over %d attempts", d.Accuracy*100, c.AttemptsTotal)
	return d
}

// Evaluate runs the default configuration.
func Evaluate(c Candidate, facts Facts, now time.Time) Decision {
	return DefaultConfig().Evaluate(c, facts, now)
}

// InQuietHours reports whether hour falls in the quiet window. When
// start < end the window is [start, end); otherwise it wraps midnight. A nil
// bound disables the window.
func InQuietHours(hour int, start, end *int) bool {
	if start == nil || end == nil {
		return false
	}
	s, e := *start, *end
	if s < e {
		return hour >= s && hour < e
	}
	return hour >= s || hour < e
}

// location resolves an IANA zone name, falling back to UTC.
func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
