// Package config loads the service configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/skillissue/internal/challenge"
	"github.com/abhisek/skillissue/internal/optimizer"
	"github.com/abhisek/skillissue/internal/promptopt"
	"github.com/abhisek/skillissue/internal/scheduler"
)

// File is the on-disk configuration.
type File struct {
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Generation GenerationConfig `yaml:"generation"`
}

type DatabaseConfig struct {
	// Path to the SQLite file. Empty resolves to the per-user data dir.
	Path string `yaml:"path"`
}

type LogConfig struct {
	Mode string `yaml:"mode"` // "dev" or "prod"
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// SchedulerConfig controls the tick trigger and candidate gating.
type SchedulerConfig struct {
	Schedule        string        `yaml:"schedule"`
	StartupDelay    time.Duration `yaml:"startup_delay"`
	MaxUsersPerTick int           `yaml:"max_users_per_tick"`
	ChallengeTTL    time.Duration `yaml:"challenge_ttl"`
	MinInterval     time.Duration `yaml:"min_interval"`
	DailyCap        int           `yaml:"daily_cap"`
	DayTimeZone     string        `yaml:"day_timezone"`
}

// OptimizerConfig controls the optimization trigger, detector and queue.
type OptimizerConfig struct {
	Schedule          string        `yaml:"schedule"`
	StartupDelay      time.Duration `yaml:"startup_delay"`
	MinQuestions      int           `yaml:"min_questions"`
	RatingThreshold   float64       `yaml:"rating_threshold"`
	RatingWindow      time.Duration `yaml:"rating_window"`
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs"`
	AutoDeploy        *bool         `yaml:"auto_deploy"`
	RefinementBudget  int           `yaml:"refinement_budget"`
	SamplesPerRound   int           `yaml:"samples_per_round"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	StaleAfter        time.Duration `yaml:"stale_after"`
}

// GenerationConfig controls challenge generation.
type GenerationConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	PriorQuestions int           `yaml:"prior_questions"`
}

func (f *File) defaults() {
	if f.Log.Mode == "" {
		f.Log.Mode = "dev"
	}
	if f.HTTP.Addr == "" {
		f.HTTP.Addr = "127.0.0.1:8080"
	}
	if f.HTTP.ReadHeaderTimeout <= 0 {
		f.HTTP.ReadHeaderTimeout = 10 * time.Second
	}
	if f.HTTP.ShutdownTimeout <= 0 {
		f.HTTP.ShutdownTimeout = 10 * time.Second
	}

	sd := scheduler.DefaultConfig()
	if f.Scheduler.Schedule == "" {
		f.Scheduler.Schedule = "@every 5m"
	}
	if f.Scheduler.StartupDelay <= 0 {
		f.Scheduler.StartupDelay = 10 * time.Second
	}
	if f.Scheduler.MaxUsersPerTick <= 0 {
		f.Scheduler.MaxUsersPerTick = sd.MaxUsersPerTick
	}
	if f.Scheduler.ChallengeTTL <= 0 {
		f.Scheduler.ChallengeTTL = sd.ChallengeTTL
	}
	if f.Scheduler.MinInterval <= 0 {
		f.Scheduler.MinInterval = sd.Gating.MinInterval
	}
	if f.Scheduler.DailyCap <= 0 {
		f.Scheduler.DailyCap = sd.Gating.DefaultDailyCap
	}
	if f.Scheduler.DayTimeZone == "" {
		f.Scheduler.DayTimeZone = "UTC"
	}

	dd, qd, pd := optimizer.DefaultDetectorConfig(), optimizer.DefaultQueueConfig(), promptopt.DefaultConfig()
	if f.Optimizer.Schedule == "" {
		f.Optimizer.Schedule = "@every 30m"
	}
	if f.Optimizer.StartupDelay <= 0 {
		f.Optimizer.StartupDelay = time.Minute
	}
	if f.Optimizer.MinQuestions <= 0 {
		f.Optimizer.MinQuestions = dd.MinQuestions
	}
	if f.Optimizer.RatingThreshold <= 0 {
		f.Optimizer.RatingThreshold = dd.RatingThreshold
	}
	if f.Optimizer.MaxConcurrentJobs <= 0 {
		f.Optimizer.MaxConcurrentJobs = qd.MaxConcurrentJobs
	}
	if f.Optimizer.AutoDeploy == nil {
		v := qd.AutoDeploy
		f.Optimizer.AutoDeploy = &v
	}
	if f.Optimizer.RefinementBudget <= 0 {
		f.Optimizer.RefinementBudget = qd.RefinementBudget
	}
	if f.Optimizer.SamplesPerRound <= 0 {
		f.Optimizer.SamplesPerRound = pd.SamplesPerRound
	}
	if f.Optimizer.JobTimeout <= 0 {
		f.Optimizer.JobTimeout = qd.JobTimeout
	}
	if f.Optimizer.StaleAfter <= 0 {
		f.Optimizer.StaleAfter = qd.StaleAfter
	}

	cd := challenge.DefaultConfig()
	if f.Generation.Timeout <= 0 {
		f.Generation.Timeout = cd.GenerateTimeout
	}
	if f.Generation.PriorQuestions <= 0 {
		f.Generation.PriorQuestions = cd.PriorQuestions
	}
}

// applyEnv overrides file values with SKILLISSUE_* variables.
func (f *File) applyEnv() {
	if v := os.Getenv("SKILLISSUE_DB"); v != "" {
		f.Database.Path = v
	}
	if v := os.Getenv("SKILLISSUE_LOG_MODE"); v != "" {
		f.Log.Mode = v
	}
	if v := os.Getenv("SKILLISSUE_HTTP_ADDR"); v != "" {
		f.HTTP.Addr = v
	}
}

// Load reads the YAML file at path, applies environment overrides and fills
// defaults. An empty path skips the file.
func Load(path string) (*File, error) {
	f := &File{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	f.applyEnv()
	f.defaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks values that defaults cannot repair.
func (f *File) Validate() error {
	if _, err := time.LoadLocation(f.Scheduler.DayTimeZone); err != nil {
		return fmt.Errorf("scheduler.day_timezone: %w", err)
	}
	if f.Optimizer.RatingThreshold > 5 {
		return fmt.Errorf("optimizer.rating_threshold %.2f above the 5-point scale", f.Optimizer.RatingThreshold)
	}
	if f.Optimizer.RatingWindow < 0 {
		return fmt.Errorf("optimizer.rating_window must not be negative")
	}
	// The watchdog must not fail a job its own timeout still allows to run.
	if f.Optimizer.StaleAfter <= f.Optimizer.JobTimeout {
		return fmt.Errorf("optimizer.stale_after %s must exceed optimizer.job_timeout %s",
			f.Optimizer.StaleAfter, f.Optimizer.JobTimeout)
	}
	return nil
}

// SchedulerSettings returns the tick scheduler configuration.
func (f *File) SchedulerSettings() scheduler.Config {
	cfg := scheduler.DefaultConfig()
	cfg.MaxUsersPerTick = f.Scheduler.MaxUsersPerTick
	cfg.ChallengeTTL = f.Scheduler.ChallengeTTL
	cfg.Gating.MinInterval = f.Scheduler.MinInterval
	cfg.Gating.DefaultDailyCap = f.Scheduler.DailyCap
	if loc, err := time.LoadLocation(f.Scheduler.DayTimeZone); err == nil {
		cfg.DayLocation = loc
	}
	return cfg
}

// DetectorSettings returns the trigger detector configuration.
func (f *File) DetectorSettings() optimizer.DetectorConfig {
	return optimizer.DetectorConfig{
		MinQuestions:    f.Optimizer.MinQuestions,
		RatingThreshold: f.Optimizer.RatingThreshold,
		Window:          f.Optimizer.RatingWindow,
	}
}

// QueueSettings returns the job queue configuration.
func (f *File) QueueSettings() optimizer.QueueConfig {
	return optimizer.QueueConfig{
		MaxConcurrentJobs: f.Optimizer.MaxConcurrentJobs,
		AutoDeploy:        f.Optimizer.AutoDeploy != nil && *f.Optimizer.AutoDeploy,
		RefinementBudget:  f.Optimizer.RefinementBudget,
		JobTimeout:        f.Optimizer.JobTimeout,
		StaleAfter:        f.Optimizer.StaleAfter,
	}
}

// PromptOptSettings returns the optimization routine configuration.
func (f *File) PromptOptSettings() promptopt.Config {
	cfg := promptopt.DefaultConfig()
	cfg.SamplesPerRound = f.Optimizer.SamplesPerRound
	return cfg
}

// ChallengeSettings returns the challenge service configuration.
func (f *File) ChallengeSettings() challenge.Config {
	cfg := challenge.DefaultConfig()
	cfg.GenerateTimeout = f.Generation.Timeout
	cfg.PriorQuestions = f.Generation.PriorQuestions
	return cfg
}
