// Package scheduler runs the periodic tick that picks which learners get a
// challenge next.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/abhisek/skillissue/internal/gating"
	"github.com/abhisek/skillissue/internal/logger"
	"github.com/abhisek/skillissue/internal/store"
)

// Store is the persistence the scheduler reads and writes.
type Store interface {
	ExpireChallenges(ctx context.Context, cutoff time.Time) (int, error)
	ListCandidates(ctx context.Context) ([]store.Candidate, error)
	CountChallengesSince(ctx context.Context, learnerID string, since time.Time) (int, error)
	RecentChallenges(ctx context.Context, learnerID, skillID string, n int) ([]store.ChallengeSummary, error)
	AppendDecision(ctx context.Context, d *store.DecisionLog) error
}

// ChallengeIssuer creates and delivers a challenge for an accepted decision.
type ChallengeIssuer interface {
	Issue(ctx context.Context, learnerID, skillID string, difficulty int) (*store.Challenge, error)
}

// Config tunes a tick.
type Config struct {
	// MaxUsersPerTick caps the number of acceptances per tick.
	MaxUsersPerTick int

	// RecentWindow is how many of a pair's newest challenges are checked
	// for a pending one.
	RecentWindow int

	// DayLocation defines the day boundary for the daily cap.
	DayLocation *time.Location

	// ChallengeTTL is the age after which an unanswered challenge expires.
	// Zero disables expiry.
	ChallengeTTL time.Duration

	Gating gating.Config
}

// DefaultConfig returns the standard tick settings.
func DefaultConfig() Config {
	return Config{
		MaxUsersPerTick: 1,
		RecentWindow:    10,
		DayLocation:     time.UTC,
		ChallengeTTL:    24 * time.Hour,
		Gating:          gating.DefaultConfig(),
	}
}

// Scheduler evaluates candidates and issues challenges.
type Scheduler struct {
	store   Store
	issuer  ChallengeIssuer
	cfg     Config
	log     *logger.Logger
	now     func() time.Time
	running atomic.Bool
}

// New creates a Scheduler.
func New(st Store, issuer ChallengeIssuer, cfg Config, log *logger.Logger) *Scheduler {
	if cfg.DayLocation == nil {
		cfg.DayLocation = time.UTC
	}
	if cfg.MaxUsersPerTick <= 0 {
		cfg.MaxUsersPerTick = 1
	}
	return &Scheduler{
		store:  st,
		issuer: issuer,
		cfg:    cfg,
		log:    logger.OrNop(log).With("component", "scheduler"),
		now:    time.Now,
	}
}

// Tick runs one scheduling pass and returns the accepted decisions. An
// invocation that overlaps a running tick returns nil immediately.
func (s *Scheduler) Tick(ctx context.Context) []gating.Decision {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug("tick already running, skipping")
		return nil
	}
	defer s.running.Store(false)

	now := s.now()
	s.expire(ctx, now)

	candidates, err := s.store.ListCandidates(ctx)
	if err != nil {
		s.log.Error("candidate fetch failed", "error", err)
		return nil
	}

	dayStart := startOfDay(now, s.cfg.DayLocation)
	chosen := make(map[string]bool)
	var accepted []gating.Decision

	for _, row := range candidates {
		if len(accepted) >= s.cfg.MaxUsersPerTick {
			break
		}
		if ctx.Err() != nil {
			break
		}
		learnerID := row.Learner.ID
		if chosen[learnerID] {
			continue
		}

		facts := &storeFacts{
			ctx:       ctx,
			store:     s.store,
			learnerID: learnerID,
			skillID:   row.Skill.ID,
			dayStart:  dayStart,
			window:    s.cfg.RecentWindow,
		}
		d := s.cfg.Gating.Evaluate(toCandidate(row), facts, now)
		if d.Err != nil {
			s.log.Warn("candidate lookup failed", "learner_id", learnerID, "skill_id", row.Skill.ID, "error", d.Err)
		}
		if !d.ShouldChallenge {
			s.log.Debug("candidate rejected", "learner_id", learnerID, "skill_id", row.Skill.ID,
				"check", d.Check, "reason", d.Reason)
			continue
		}

		chosen[learnerID] = true
		accepted = append(accepted, d)
	}

	for _, d := range accepted {
		s.dispatch(ctx, d)
	}

	s.log.Info("tick complete", "candidates", len(candidates), "accepted", len(accepted))
	return accepted
}

// dispatch records the decision and issues the challenge. Failures are
// logged; the decision stays logged even when issuing fails.
func (s *Scheduler) dispatch(ctx context.Context, d gating.Decision) {
	entry := &store.DecisionLog{
		LearnerID:        d.LearnerID,
		SkillID:          d.SkillID,
		ShouldChallenge:  d.ShouldChallenge,
		Reason:           d.Reason,
		DifficultyTarget: d.DifficultyTarget,
		ScheduledFor:     d.ScheduledFor,
	}
	if err := s.store.AppendDecision(ctx, entry); err != nil {
		s.log.Error("decision log append failed", "learner_id", d.LearnerID, "skill_id", d.SkillID, "error", err)
	}

	if s.issuer == nil {
		return
	}
	c, err := s.issuer.Issue(ctx, d.LearnerID, d.SkillID, d.DifficultyTarget)
	if err != nil {
		s.log.Error("challenge creation failed", "learner_id", d.LearnerID, "skill_id", d.SkillID, "error", err)
		return
	}
	s.log.Info("challenge issued", "learner_id", d.LearnerID, "skill_id", d.SkillID,
		"challenge_id", c.ID, "difficulty", d.DifficultyTarget, "reason", d.Reason)
}

func (s *Scheduler) expire(ctx context.Context, now time.Time) {
	if s.cfg.ChallengeTTL <= 0 {
		return
	}
	n, err := s.store.ExpireChallenges(ctx, now.Add(-s.cfg.ChallengeTTL))
	if err != nil {
		s.log.Warn("challenge expiry failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("expired unanswered challenges", "count", n)
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func toCandidate(row store.Candidate) gating.Candidate {
	return gating.Candidate{
		LearnerID:        row.Learner.ID,
		SkillID:          row.Skill.ID,
		SkillActive:      row.Skill.Active,
		TimeZone:         row.Learner.TimeZone,
		QuietHoursStart:  row.Learner.QuietHoursStart,
		QuietHoursEnd:    row.Learner.QuietHoursEnd,
		DailyCap:         row.Learner.MaxChallengesPerDay,
		DifficultyTarget: row.State.DifficultyTarget,
		AttemptsTotal:    row.State.AttemptsTotal,
		CorrectTotal:     row.State.CorrectTotal,
		LastChallengedAt: row.State.LastChallengedAt,
	}
}

// storeFacts fetches gating facts on first use.
type storeFacts struct {
	ctx       context.Context
	store     Store
	learnerID string
	skillID   string
	dayStart  time.Time
	window    int
}

func (f *storeFacts) ChallengesToday() (int, error) {
	return f.store.CountChallengesSince(f.ctx, f.learnerID, f.dayStart)
}

func (f *storeFacts) PendingChallenge() (*gating.Pending, error) {
	recent, err := f.store.RecentChallenges(f.ctx, f.learnerID, f.skillID, f.window)
	if err != nil {
		return nil, err
	}
	for _, c := range recent {
		if c.Pending() {
			return &gating.Pending{ChallengeID: c.ID, IssuedAt: c.CreatedAt}, nil
		}
	}
	return nil, nil
}
