package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/skillissue/internal/logger"
	"github.com/abhisek/skillissue/internal/promptopt"
	"github.com/abhisek/skillissue/internal/store"
)

// PromptOptimizer is the optimization routine a job runs.
type PromptOptimizer interface {
	OptimizePrompt(ctx context.Context, skillID string, level, budget int) (*promptopt.Result, error)
}

// QueueConfig tunes job processing.
type QueueConfig struct {
	// MaxConcurrentJobs bounds the number of running jobs across passes.
	MaxConcurrentJobs int

	// AutoDeploy activates a new version when it beats its baseline.
	AutoDeploy bool

	// RefinementBudget is passed to the optimization routine.
	RefinementBudget int

	// JobTimeout bounds one optimization run. Zero disables the bound.
	JobTimeout time.Duration

	// StaleAfter fails running jobs started longer ago than this. Zero
	// disables the watchdog.
	StaleAfter time.Duration
}

// DefaultQueueConfig returns the standard queue settings.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxConcurrentJobs: 2,
		AutoDeploy:        true,
		RefinementBudget:  5,
		JobTimeout:        15 * time.Minute,
		StaleAfter:        2 * time.Hour,
	}
}

// Summary reports one Process pass.
type Summary struct {
	Stale     int
	Running   int // running jobs found before claiming
	Claimed   int
	Completed int
	Failed    int
	Deployed  int
}

// Queue claims pending jobs and runs them.
type Queue struct {
	store Store
	opt   PromptOptimizer
	cfg   QueueConfig
	log   *logger.Logger
	now   func() time.Time
}

// NewQueue creates a Queue.
func NewQueue(st Store, opt PromptOptimizer, cfg QueueConfig, log *logger.Logger) *Queue {
	return &Queue{
		store: st,
		opt:   opt,
		cfg:   cfg,
		log:   logger.OrNop(log).With("component", "queue"),
		now:   time.Now,
	}
}

const staleMessage = "timed out"

// Process fills the free job slots with pending jobs, oldest first, and
// runs them concurrently. It returns once every claimed job has finished.
func (q *Queue) Process(ctx context.Context) Summary {
	var sum Summary

	if q.cfg.StaleAfter > 0 {
		n, err := q.store.FailStaleJobs(ctx, q.now().Add(-q.cfg.StaleAfter), staleMessage)
		if err != nil {
			q.log.Warn("stale job sweep failed", "error", err)
		} else if n > 0 {
			q.log.Warn("failed stale jobs", "count", n)
			sum.Stale = n
		}
	}

	running, err := q.store.CountJobsByStatus(ctx, store.JobRunning)
	if err != nil {
		q.log.Error("count running jobs failed", "error", err)
		return sum
	}
	sum.Running = running

	slots := q.cfg.MaxConcurrentJobs - running
	if slots <= 0 {
		q.log.Debug("no free job slots", "running", running, "max", q.cfg.MaxConcurrentJobs)
		return sum
	}

	pending, err := q.store.ListJobs(ctx, store.JobPending, slots)
	if err != nil {
		q.log.Error("list pending jobs failed", "error", err)
		return sum
	}

	var claimed []store.OptimizationJob
	for _, j := range pending {
		ok, err := q.store.ClaimJob(ctx, j.ID, q.cfg.MaxConcurrentJobs)
		if err != nil {
			q.log.Error("claim job failed", "job_id", j.ID, "error", err)
			continue
		}
		if !ok {
			q.log.Debug("job claimed elsewhere or no slot left", "job_id", j.ID)
			continue
		}
		claimed = append(claimed, j)
	}
	sum.Claimed = len(claimed)
	if len(claimed) == 0 {
		return sum
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(slots)
	for _, j := range claimed {
		g.Go(func() error {
			deployed, err := q.run(ctx, j)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				sum.Failed++
			case deployed:
				sum.Completed++
				sum.Deployed++
			default:
				sum.Completed++
			}
			return nil
		})
	}
	_ = g.Wait()

	q.log.Info("queue pass complete", "claimed", sum.Claimed, "completed", sum.Completed,
		"failed", sum.Failed, "deployed", sum.Deployed)
	return sum
}

// run executes one claimed job. Any error marks the job failed.
func (q *Queue) run(ctx context.Context, j store.OptimizationJob) (bool, error) {
	log := q.log.With("job_id", j.ID, "skill_id", j.SkillID, "level", j.DifficultyLevel)

	deployed, err := q.execute(ctx, j, log)
	if err != nil {
		log.Error("optimization job failed", "error", err)
		ferr := q.store.FailJob(context.WithoutCancel(ctx), j.ID, err.Error())
		switch {
		case errors.Is(ferr, store.ErrNotFound):
			log.Warn("job already terminal, keeping its recorded outcome")
		case ferr != nil:
			log.Error("mark job failed", "error", ferr)
		}
		return false, err
	}
	return deployed, nil
}

func (q *Queue) execute(ctx context.Context, j store.OptimizationJob, log *logger.Logger) (bool, error) {
	jctx := ctx
	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jctx, cancel = context.WithTimeout(ctx, q.cfg.JobTimeout)
		defer cancel()
	}

	start := q.now()
	res, err := q.opt.OptimizePrompt(jctx, j.SkillID, j.DifficultyLevel, q.cfg.RefinementBudget)
	if err != nil {
		return false, fmt.Errorf("optimize prompt: %w", err)
	}

	activate := q.cfg.AutoDeploy && res.BestScore > res.BaselineScore
	pv, err := q.store.FinishJob(ctx, j.ID, store.NewPromptVersion{
		SkillID:            j.SkillID,
		DifficultyLevel:    j.DifficultyLevel,
		Content:            res.Prompt,
		BaselineScore:      res.BaselineScore,
		CurrentScore:       res.BestScore,
		ImprovementPercent: res.ImprovementPercent,
		RefinementCount:    res.RefinementCount,
	}, activate, res.Metrics)
	if errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("job no longer running, result discarded: %w", err)
	}
	if err != nil {
		return false, fmt.Errorf("finish job: %w", err)
	}

	log.Info("optimization job completed", "version", pv.Version, "version_id", pv.ID,
		"baseline", res.BaselineScore, "best", res.BestScore, "improvement_percent", res.ImprovementPercent,
		"deployed", activate, "duration", q.now().Sub(start).Round(time.Millisecond))
	return activate, nil
}
