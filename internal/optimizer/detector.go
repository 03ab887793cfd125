// Package optimizer detects underperforming (skill, level) prompts from
// learner ratings and runs bounded-concurrency jobs that improve them.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/abhisek/skillissue/internal/logger"
	"github.com/abhisek/skillissue/internal/store"
)

// Store is the persistence the detector and queue use.
type Store interface {
	RatingStats(ctx context.Context, since time.Time) ([]store.RatingStat, error)
	RatedChallenges(ctx context.Context, since time.Time) ([]store.RatedChallenge, error)
	FindInFlightJob(ctx context.Context, skillID string, level int) (*store.OptimizationJob, error)
	CreateJob(ctx context.Context, j *store.OptimizationJob) error

	FailStaleJobs(ctx context.Context, cutoff time.Time, msg string) (int, error)
	CountJobsByStatus(ctx context.Context, status store.JobStatus) (int, error)
	ListJobs(ctx context.Context, status store.JobStatus, limit int) ([]store.OptimizationJob, error)
	ClaimJob(ctx context.Context, id string, maxRunning int) (bool, error)
	FinishJob(ctx context.Context, jobID string, nv store.NewPromptVersion, activate bool, metrics []store.OptimizationMetric) (*store.PromptVersion, error)
	FailJob(ctx context.Context, id, msg string) error
}

// DetectorConfig holds the trigger thresholds.
type DetectorConfig struct {
	// MinQuestions is the number of rated challenges a key needs before it
	// can trigger.
	MinQuestions int

	// RatingThreshold triggers a job when the mean rating is below it.
	RatingThreshold float64

	// Window limits the ratings considered to the trailing duration. Zero
	// considers all ratings.
	Window time.Duration
}

// DefaultDetectorConfig returns the standard thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinQuestions:    10,
		RatingThreshold: 2.5,
	}
}

// Detector turns rating statistics into pending optimization jobs.
type Detector struct {
	store Store
	cfg   DetectorConfig
	log   *logger.Logger
	now   func() time.Time
}

// NewDetector creates a Detector.
func NewDetector(st Store, cfg DetectorConfig, log *logger.Logger) *Detector {
	return &Detector{
		store: st,
		cfg:   cfg,
		log:   logger.OrNop(log).With("component", "detector"),
		now:   time.Now,
	}
}

// Detect creates a pending job for every key whose ratings are low enough
// and which has no job in flight. It returns the jobs created.
func (d *Detector) Detect(ctx context.Context) ([]store.OptimizationJob, error) {
	var since time.Time
	if d.cfg.Window > 0 {
		since = d.now().Add(-d.cfg.Window)
	}

	stats, err := d.store.RatingStats(ctx, since)
	if err != nil {
		d.log.Warn("rating aggregate failed, grouping in process", "error", err)
		rated, rerr := d.store.RatedChallenges(ctx, since)
		if rerr != nil {
			return nil, fmt.Errorf("read ratings: %w", errors.Join(err, rerr))
		}
		stats = groupRatings(rated)
	}

	var created []store.OptimizationJob
	for _, st := range stats {
		if !d.triggers(st) {
			continue
		}

		if _, err := d.store.FindInFlightJob(ctx, st.SkillID, st.DifficultyLevel); err == nil {
			d.log.Debug("job already in flight", "skill_id", st.SkillID, "level", st.DifficultyLevel)
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			d.log.Error("in-flight lookup failed", "skill_id", st.SkillID, "level", st.DifficultyLevel, "error", err)
			continue
		}

		job := &store.OptimizationJob{
			SkillID:         st.SkillID,
			DifficultyLevel: st.DifficultyLevel,
			TriggerReason: fmt.Sprintf("average rating %.2f below %.2f over %d questions",
				st.AvgRating, d.cfg.RatingThreshold, st.Count),
			AvgRatingAtTrigger: st.AvgRating,
			QuestionsCount:     st.Count,
			CreatedAt:          d.now(),
		}
		if err := d.store.CreateJob(ctx, job); err != nil {
			if errors.Is(err, store.ErrInFlight) {
				d.log.Debug("job created concurrently", "skill_id", st.SkillID, "level", st.DifficultyLevel)
				continue
			}
			d.log.Error("job creation failed", "skill_id", st.SkillID, "level", st.DifficultyLevel, "error", err)
			continue
		}

		d.log.Info("optimization job queued", "job_id", job.ID, "skill_id", job.SkillID,
			"level", job.DifficultyLevel, "reason", job.TriggerReason)
		created = append(created, *job)
	}
	return created, nil
}

func (d *Detector) triggers(st store.RatingStat) bool {
	if st.DifficultyLevel < 1 || st.DifficultyLevel > 10 {
		return false
	}
	return st.Count >= d.cfg.MinQuestions && st.AvgRating < d.cfg.RatingThreshold
}

type ratingKey struct {
	skillID string
	level   int
}

// groupRatings aggregates rated challenges per (skill, level), ordered by
// skill then level like the SQL aggregate.
func groupRatings(rated []store.RatedChallenge) []store.RatingStat {
	sums := make(map[ratingKey]*store.RatingStat)
	totals := make(map[ratingKey]int)
	for _, r := range rated {
		k := ratingKey{r.SkillID, r.Difficulty}
		st, ok := sums[k]
		if !ok {
			st = &store.RatingStat{SkillID: r.SkillID, DifficultyLevel: r.Difficulty}
			sums[k] = st
		}
		st.Count++
		totals[k] += r.Rating
	}

	out := make([]store.RatingStat, 0, len(sums))
	for k, st := range sums {
		st.AvgRating = float64(totals[k]) / float64(st.Count)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SkillID != out[j].SkillID {
			return out[i].SkillID < out[j].SkillID
		}
		return out[i].DifficultyLevel < out[j].DifficultyLevel
	})
	return out
}
