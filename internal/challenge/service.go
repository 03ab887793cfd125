// Package challenge issues challenges to learners, records their answers
// through the mastery controller and stores their ratings.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abhisek/skillissue/internal/challengegen"
	"github.com/abhisek/skillissue/internal/logger"
	"github.com/abhisek/skillissue/internal/mastery"
	"github.com/abhisek/skillissue/internal/store"
)

var (
	ErrAlreadyAnswered  = errors.New("challenge already answered")
	ErrChallengeExpired = errors.New("challenge expired")
	ErrInvalidAnswer    = errors.New("selected index must be between 0 and 3")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
)

// Store is the persistence the service needs.
type Store interface {
	GetSkill(ctx context.Context, id string) (*store.Skill, error)
	GetUserSkillState(ctx context.Context, learnerID, skillID string) (*store.UserSkillState, error)
	ListChallenges(ctx context.Context, learnerID string, opts store.QueryOpts) ([]store.Challenge, error)
	CreateChallenge(ctx context.Context, c *store.Challenge) error
	GetChallenge(ctx context.Context, id string) (*store.Challenge, error)
	RecordAnswer(ctx context.Context, a store.Answer, st *store.UserSkillState) error
	RateChallenge(ctx context.Context, id string, rating int) error
}

// Generator produces challenge content.
type Generator interface {
	Generate(ctx context.Context, in challengegen.Input) (*challengegen.Challenge, error)
}

// Notifier delivers an issued challenge to its learner.
type Notifier interface {
	Deliver(ctx context.Context, c *store.Challenge) error
}

// LogNotifier is the default Notifier. It only logs the delivery.
type LogNotifier struct {
	Log *logger.Logger
}

func (n LogNotifier) Deliver(_ context.Context, c *store.Challenge) error {
	logger.OrNop(n.Log).Info("challenge delivered",
		"challenge_id", c.ID, "learner_id", c.LearnerID, "skill_id", c.SkillID,
		"difficulty", c.Difficulty, "placeholder", c.Placeholder)
	return nil
}

// Config tunes the service.
type Config struct {
	// GenerateTimeout bounds content generation for one challenge.
	GenerateTimeout time.Duration

	// PriorQuestions is how many of the learner's recent questions for the
	// skill are passed to the generator for deduplication.
	PriorQuestions int

	Mastery mastery.Config
}

// DefaultConfig returns the standard service settings.
func DefaultConfig() Config {
	return Config{
		GenerateTimeout: 30 * time.Second,
		PriorQuestions:  10,
		Mastery:         mastery.DefaultConfig(),
	}
}

// Service implements the challenge lifecycle.
type Service struct {
	store    Store
	gen      Generator
	notifier Notifier
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
}

// New creates a Service. A nil notifier logs deliveries.
func New(st Store, gen Generator, notifier Notifier, cfg Config, log *logger.Logger) *Service {
	log = logger.OrNop(log).With("component", "challenge")
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}
	return &Service{
		store:    st,
		gen:      gen,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Issue generates, stores and delivers a challenge for the learner-skill
// pair at the given difficulty. When generation fails a placeholder
// challenge is issued instead. Storing the challenge also stamps the pair's
// lastChallengedAt.
func (s *Service) Issue(ctx context.Context, learnerID, skillID string, difficulty int) (*store.Challenge, error) {
	sk, err := s.store.GetSkill(ctx, skillID)
	if err != nil {
		return nil, fmt.Errorf("load skill %s: %w", skillID, err)
	}

	in := challengegen.Input{
		SkillID:          sk.ID,
		SkillName:        sk.Name,
		SkillDescription: sk.Description,
		Difficulty:       difficulty,
		PriorQuestions:   s.priorQuestions(ctx, learnerID, skillID),
	}

	gc, err := s.generate(ctx, in)
	if err != nil {
		s.log.Warn("challenge generation failed, issuing placeholder",
			"learner_id", learnerID, "skill_id", skillID, "difficulty", difficulty, "error", err)
		gc = challengegen.Placeholder(in)
	}

	c := &store.Challenge{
		LearnerID:    learnerID,
		SkillID:      skillID,
		Difficulty:   difficulty,
		Question:     gc.Question,
		Options:      gc.Options,
		CorrectIndex: gc.CorrectIndex,
		Explanation:  gc.Explanation,
		Placeholder:  gc.Placeholder,
		CreatedAt:    s.now(),
	}
	if gc.PromptVersionID != "" {
		id := gc.PromptVersionID
		c.PromptVersionID = &id
	}
	if err := s.store.CreateChallenge(ctx, c); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	if err := s.notifier.Deliver(ctx, c); err != nil {
		s.log.Warn("challenge delivery failed", "challenge_id", c.ID, "error", err)
	}
	return c, nil
}

func (s *Service) generate(ctx context.Context, in challengegen.Input) (*challengegen.Challenge, error) {
	if s.gen == nil {
		return nil, errors.New("no generator configured")
	}
	if s.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GenerateTimeout)
		defer cancel()
	}
	return s.gen.Generate(ctx, in)
}

// priorQuestions returns the learner's recent question texts for the
// skill, oldest first. Lookup failures only cost deduplication.
func (s *Service) priorQuestions(ctx context.Context, learnerID, skillID string) []string {
	if s.cfg.PriorQuestions <= 0 {
		return nil
	}
	recent, err := s.store.ListChallenges(ctx, learnerID, store.QueryOpts{Limit: s.cfg.PriorQuestions * 4})
	if err != nil {
		s.log.Warn("recent challenges unavailable", "learner_id", learnerID, "error", err)
		return nil
	}
	var out []string
	for _, c := range recent {
		if c.SkillID != skillID || c.Placeholder {
			continue
		}
		out = append(out, c.Question)
		if len(out) == s.cfg.PriorQuestions {
			break
		}
	}
	// newest first -> oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// AnswerResult reports a recorded answer.
type AnswerResult struct {
	Challenge *store.Challenge
	Correct   bool
	State     *store.UserSkillState
	Outcome   mastery.Outcome
}

// Answer records the learner's selection, runs the mastery controller and
// persists the answer and the new mastery state atomically. A concurrent
// state update is retried once against the fresh state.
func (s *Service) Answer(ctx context.Context, challengeID string, selectedIndex int, responseTimeMs int64) (*AnswerResult, error) {
	if selectedIndex < 0 || selectedIndex > 3 {
		return nil, ErrInvalidAnswer
	}
	if responseTimeMs < 0 {
		responseTimeMs = 0
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		res, err := s.answerOnce(ctx, challengeID, selectedIndex, responseTimeMs)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		lastErr = err
		s.log.Debug("answer conflicted, retrying", "challenge_id", challengeID, "attempt", attempt+1)
	}
	return nil, lastErr
}

func (s *Service) answerOnce(ctx context.Context, challengeID string, selectedIndex int, responseTimeMs int64) (*AnswerResult, error) {
	c, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	switch {
	case c.Answered():
		return nil, ErrAlreadyAnswered
	case c.ExpiredAt != nil:
		return nil, ErrChallengeExpired
	}

	st, err := s.store.GetUserSkillState(ctx, c.LearnerID, c.SkillID)
	if err != nil {
		return nil, fmt.Errorf("load mastery state: %w", err)
	}

	correct := selectedIndex == c.CorrectIndex
	out := s.cfg.Mastery.Apply(mastery.State{
		DifficultyTarget: st.DifficultyTarget,
		StreakCorrect:    st.StreakCorrect,
		StreakIncorrect:  st.StreakIncorrect,
		AttemptsTotal:    st.AttemptsTotal,
		CorrectTotal:     st.CorrectTotal,
	}, mastery.Answer{
		Correct:        correct,
		ResponseTimeMs: responseTimeMs,
		Difficulty:     c.Difficulty,
	})

	next := *st
	next.DifficultyTarget = out.DifficultyTarget
	next.StreakCorrect = out.StreakCorrect
	next.StreakIncorrect = out.StreakIncorrect
	next.AttemptsTotal = out.AttemptsTotal
	next.CorrectTotal = out.CorrectTotal
	result := store.ResultIncorrect
	if correct {
		result = store.ResultCorrect
	}
	next.LastResult = &result

	now := s.now()
	err = s.store.RecordAnswer(ctx, store.Answer{
		ChallengeID:    c.ID,
		SelectedIndex:  selectedIndex,
		Correct:        correct,
		ResponseTimeMs: responseTimeMs,
		AnsweredAt:     now,
	}, &next)
	if err != nil {
		return nil, err
	}

	s.log.Info("answer recorded",
		"challenge_id", c.ID, "learner_id", c.LearnerID, "skill_id", c.SkillID,
		"correct", correct, "phase", out.Phase, "difficulty_target", out.DifficultyTarget,
		"delta", out.Delta, "reason", out.Reason)

	c.AnsweredAt = &now
	c.SelectedIndex = &selectedIndex
	c.Correct = &correct
	c.ResponseTimeMs = &responseTimeMs
	return &AnswerResult{Challenge: c, Correct: correct, State: &next, Outcome: out}, nil
}

// Rate stores a 1-5 rating for a challenge, answered or not.
func (s *Service) Rate(ctx context.Context, challengeID string, rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	return s.store.RateChallenge(ctx, challengeID, rating)
}
