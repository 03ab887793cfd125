package store

import (
	"fmt"
	"time"
)

// Learner is a person who receives practice challenges.
type Learner struct {
	ID                  string
	Name                string
	TimeZone            string // IANA name, e.g. "Europe/Berlin"
	QuietHoursStart     *int   // local hour 0-23, nil disables quiet hours
	QuietHoursEnd       *int
	MaxChallengesPerDay int
	CreatedAt           time.Time
}

// Skill is a practiceable topic.
type Skill struct {
	ID          string
	Name        string
	Description string
	Active      bool
	CreatedAt   time.Time
}

// AnswerResult is the outcome recorded on a UserSkillState.
type AnswerResult string

const (
	ResultCorrect   AnswerResult = "correct"
	ResultIncorrect AnswerResult = "incorrect"
	ResultIgnored   AnswerResult = "ignored"
)

// UserSkillState is the per (learner, skill) mastery record.
type UserSkillState struct {
	ID               string
	LearnerID        string
	SkillID          string
	DifficultyTarget int
	StreakCorrect    int
	StreakIncorrect  int
	AttemptsTotal    int
	CorrectTotal     int
	LastChallengedAt *time.Time
	LastResult       *AnswerResult
	Revision         int64
	UpdatedAt        time.Time
}

// Validate checks the field-level invariants of a state row.
func (s *UserSkillState) Validate() error {
	switch {
	case s.DifficultyTarget < 1 || s.DifficultyTarget > 10:
		return fmt.Errorf("difficulty target %d outside 1-10", s.DifficultyTarget)
	case s.StreakCorrect < 0 || s.StreakIncorrect < 0:
		return fmt.Errorf("negative streak")
	case s.StreakCorrect > 0 && s.StreakIncorrect > 0:
		return fmt.Errorf("correct and incorrect streaks both nonzero")
	case s.AttemptsTotal < 0 || s.CorrectTotal < 0 || s.CorrectTotal > s.AttemptsTotal:
		return fmt.Errorf("correct total %d inconsistent with attempts %d", s.CorrectTotal, s.AttemptsTotal)
	}
	return nil
}

// Candidate joins a state row with its learner and skill, as read by the
// tick scheduler.
type Candidate struct {
	State   UserSkillState
	Learner Learner
	Skill   Skill
}

// Challenge is an issued multiple-choice question.
type Challenge struct {
	ID              string
	LearnerID       string
	SkillID         string
	Difficulty      int
	Question        string
	Options         []string
	CorrectIndex    int
	Explanation     string
	PromptVersionID *string
	Placeholder     bool
	CreatedAt       time.Time
	AnsweredAt      *time.Time
	SelectedIndex   *int
	Correct         *bool
	ResponseTimeMs  *int64
	ExpiredAt       *time.Time
	Rating          *int
	RatedAt         *time.Time
}

// Answered reports whether an answer has been recorded.
func (c *Challenge) Answered() bool { return c.AnsweredAt != nil }

// ChallengeSummary is the light view used for gating: when a challenge was
// issued and whether it is still awaiting an answer.
type ChallengeSummary struct {
	ID        string
	CreatedAt time.Time
	Answered  bool
	Expired   bool
}

// Pending reports whether the challenge still awaits an answer.
func (c ChallengeSummary) Pending() bool { return !c.Answered && !c.Expired }

// DecisionLog is one accepted scheduling decision kept for audit.
type DecisionLog struct {
	ID               int
	LearnerID        string
	SkillID          string
	ShouldChallenge  bool
	Reason           string
	DifficultyTarget int
	ScheduledFor     *time.Time
	CreatedAt        time.Time
}

// JobStatus is the optimization job state machine.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// OptimizationJob is one prompt improvement attempt for a (skill, level) key.
type OptimizationJob struct {
	ID                    string
	SkillID               string
	DifficultyLevel       int
	Status                JobStatus
	TriggerReason         string
	AvgRatingAtTrigger    float64
	QuestionsCount        int
	CreatedAt             time.Time
	StartedAt             *time.Time
	CompletedAt           *time.Time
	ResultPromptVersionID *string
	ErrorMessage          *string
}

// PromptStatus is the deployment status of a prompt version.
type PromptStatus string

const (
	PromptPending  PromptStatus = "pending"
	PromptDeployed PromptStatus = "deployed"
)

// PromptVersion is one generated or optimized prompt for a (skill, level) key.
type PromptVersion struct {
	ID                 string
	SkillID            string
	DifficultyLevel    int
	Content            string
	Version            int
	IsActive           bool
	Status             PromptStatus
	BaselineScore      float64
	CurrentScore       float64
	ImprovementPercent float64
	RefinementCount    int
	CreatedAt          time.Time
	DeployedAt         *time.Time
}

// NewPromptVersion carries the fields supplied by the job queue when it
// persists an optimization result. Version and ID are assigned by the store.
type NewPromptVersion struct {
	SkillID            string
	DifficultyLevel    int
	Content            string
	BaselineScore      float64
	CurrentScore       float64
	ImprovementPercent float64
	RefinementCount    int
}

// OptimizationMetric is a named value reported by an optimization run.
type OptimizationMetric struct {
	Name  string
	Value float64
}

// RatingStat aggregates learner ratings for a (skill, level) key.
type RatingStat struct {
	SkillID         string
	DifficultyLevel int
	Count           int
	AvgRating       float64
}

// RatedChallenge is one rated challenge, the raw input for the in-process
// rating aggregation.
type RatedChallenge struct {
	SkillID    string
	Difficulty int
	Rating     int
}

// QueryOpts configures list queries with filtering and pagination.
type QueryOpts struct {
	Limit int       // max results (0 = unlimited)
	From  time.Time // timestamp >= From
	To    time.Time // timestamp <= To
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMRequestEventRecord is a stored LLM request event.
type LLMRequestEventRecord struct {
	ID        int
	Timestamp time.Time
	LLMRequestEventData
}

// PurposeUsage summarises LLM usage for one request purpose.
type PurposeUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// ModelUsage summarises LLM token usage for one model.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}
