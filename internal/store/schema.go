package store

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table and column names.
const (
	tableLearners   = "learners"
	tableSkills     = "skills"
	tableStates     = "user_skill_states"
	tableChallenges = "challenges"
	tableDecisions  = "scheduling_decisions"
	tableJobs       = "optimization_jobs"
	tableVersions   = "prompt_versions"
	tableMetrics    = "optimization_metrics"
	tableLLMEvents  = "llm_request_events"
)

var (
	LearnersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "name", Type: field.TypeString},
		{Name: "time_zone", Type: field.TypeString, Default: "UTC"},
		{Name: "quiet_hours_start", Type: field.TypeInt, Nullable: true},
		{Name: "quiet_hours_end", Type: field.TypeInt, Nullable: true},
		{Name: "max_challenges_per_day", Type: field.TypeInt, Default: 5},
		{Name: "created_at", Type: field.TypeTime},
	}
	LearnersTable = &schema.Table{
		Name:       tableLearners,
		Columns:    LearnersColumns,
		PrimaryKey: []*schema.Column{LearnersColumns[0]},
	}

	SkillsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "name", Type: field.TypeString},
		{Name: "description", Type: field.TypeString, Default: ""},
		{Name: "active", Type: field.TypeBool, Default: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	SkillsTable = &schema.Table{
		Name:       tableSkills,
		Columns:    SkillsColumns,
		PrimaryKey: []*schema.Column{SkillsColumns[0]},
	}

	UserSkillStatesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "learner_id", Type: field.TypeString},
		{Name: "skill_id", Type: field.TypeString},
		{Name: "difficulty_target", Type: field.TypeInt},
		{Name: "streak_correct", Type: field.TypeInt, Default: 0},
		{Name: "streak_incorrect", Type: field.TypeInt, Default: 0},
		{Name: "attempts_total", Type: field.TypeInt, Default: 0},
		{Name: "correct_total", Type: field.TypeInt, Default: 0},
		{Name: "last_challenged_at", Type: field.TypeTime, Nullable: true},
		{Name: "last_result", Type: field.TypeString, Nullable: true},
		{Name: "revision", Type: field.TypeInt64, Default: 0},
		{Name: "updated_at", Type: field.TypeTime},
	}
	UserSkillStatesTable = &schema.Table{
		Name:       tableStates,
		Columns:    UserSkillStatesColumns,
		PrimaryKey: []*schema.Column{UserSkillStatesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "userskillstate_learner_id_skill_id",
				Unique:  true,
				Columns: []*schema.Column{UserSkillStatesColumns[1], UserSkillStatesColumns[2]},
			},
			{
				Name:    "userskillstate_last_challenged_at",
				Columns: []*schema.Column{UserSkillStatesColumns[8]},
			},
		},
	}

	ChallengesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "learner_id", Type: field.TypeString},
		{Name: "skill_id", Type: field.TypeString},
		{Name: "difficulty", Type: field.TypeInt},
		{Name: "question", Type: field.TypeString},
		{Name: "options", Type: field.TypeString},
		{Name: "correct_index", Type: field.TypeInt},
		{Name: "explanation", Type: field.TypeString, Default: ""},
		{Name: "prompt_version_id", Type: field.TypeString, Nullable: true},
		{Name: "placeholder", Type: field.TypeBool, Default: false},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "answered_at", Type: field.TypeTime, Nullable: true},
		{Name: "selected_index", Type: field.TypeInt, Nullable: true},
		{Name: "correct", Type: field.TypeBool, Nullable: true},
		{Name: "response_time_ms", Type: field.TypeInt64, Nullable: true},
		{Name: "expired_at", Type: field.TypeTime, Nullable: true},
		{Name: "rating", Type: field.TypeInt, Nullable: true},
		{Name: "rated_at", Type: field.TypeTime, Nullable: true},
	}
	ChallengesTable = &schema.Table{
		Name:       tableChallenges,
		Columns:    ChallengesColumns,
		PrimaryKey: []*schema.Column{ChallengesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "challenge_learner_id_created_at",
				Columns: []*schema.Column{ChallengesColumns[1], ChallengesColumns[10]},
			},
			{
				Name:    "challenge_learner_id_skill_id_created_at",
				Columns: []*schema.Column{ChallengesColumns[1], ChallengesColumns[2], ChallengesColumns[10]},
			},
			{
				Name:    "challenge_skill_id_difficulty",
				Columns: []*schema.Column{ChallengesColumns[2], ChallengesColumns[3]},
			},
		},
	}

	SchedulingDecisionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "learner_id", Type: field.TypeString},
		{Name: "skill_id", Type: field.TypeString},
		{Name: "should_challenge", Type: field.TypeBool},
		{Name: "reason", Type: field.TypeString},
		{Name: "difficulty_target", Type: field.TypeInt},
		{Name: "scheduled_for", Type: field.TypeTime, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	SchedulingDecisionsTable = &schema.Table{
		Name:       tableDecisions,
		Columns:    SchedulingDecisionsColumns,
		PrimaryKey: []*schema.Column{SchedulingDecisionsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "schedulingdecision_created_at",
				Columns: []*schema.Column{SchedulingDecisionsColumns[7]},
			},
		},
	}

	OptimizationJobsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "skill_id", Type: field.TypeString},
		{Name: "difficulty_level", Type: field.TypeInt},
		{Name: "status", Type: field.TypeString},
		{Name: "trigger_reason", Type: field.TypeString},
		{Name: "avg_rating_at_trigger", Type: field.TypeFloat64},
		{Name: "questions_count", Type: field.TypeInt},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "started_at", Type: field.TypeTime, Nullable: true},
		{Name: "completed_at", Type: field.TypeTime, Nullable: true},
		{Name: "result_prompt_version_id", Type: field.TypeString, Nullable: true},
		{Name: "error_message", Type: field.TypeString, Nullable: true},
	}
	OptimizationJobsTable = &schema.Table{
		Name:       tableJobs,
		Columns:    OptimizationJobsColumns,
		PrimaryKey: []*schema.Column{OptimizationJobsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "optimizationjob_status_created_at",
				Columns: []*schema.Column{OptimizationJobsColumns[3], OptimizationJobsColumns[7]},
			},
			{
				Name:    "optimizationjob_skill_id_difficulty_level",
				Columns: []*schema.Column{OptimizationJobsColumns[1], OptimizationJobsColumns[2]},
			},
		},
	}

	PromptVersionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "skill_id", Type: field.TypeString},
		{Name: "difficulty_level", Type: field.TypeInt},
		{Name: "content", Type: field.TypeString},
		{Name: "version", Type: field.TypeInt},
		{Name: "is_active", Type: field.TypeBool, Default: false},
		{Name: "status", Type: field.TypeString},
		{Name: "baseline_score", Type: field.TypeFloat64, Default: 0},
		{Name: "current_score", Type: field.TypeFloat64, Default: 0},
		{Name: "improvement_percent", Type: field.TypeFloat64, Default: 0},
		{Name: "refinement_count", Type: field.TypeInt, Default: 0},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "deployed_at", Type: field.TypeTime, Nullable: true},
	}
	PromptVersionsTable = &schema.Table{
		Name:       tableVersions,
		Columns:    PromptVersionsColumns,
		PrimaryKey: []*schema.Column{PromptVersionsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "promptversion_skill_id_difficulty_level_version",
				Unique:  true,
				Columns: []*schema.Column{PromptVersionsColumns[1], PromptVersionsColumns[2], PromptVersionsColumns[4]},
			},
		},
	}

	OptimizationMetricsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "job_id", Type: field.TypeString},
		{Name: "prompt_version_id", Type: field.TypeString, Nullable: true},
		{Name: "name", Type: field.TypeString},
		{Name: "value", Type: field.TypeFloat64},
		{Name: "created_at", Type: field.TypeTime},
	}
	OptimizationMetricsTable = &schema.Table{
		Name:       tableMetrics,
		Columns:    OptimizationMetricsColumns,
		PrimaryKey: []*schema.Column{OptimizationMetricsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "optimizationmetric_job_id",
				Columns: []*schema.Column{OptimizationMetricsColumns[1]},
			},
		},
	}

	LLMRequestEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "provider", Type: field.TypeString},
		{Name: "model", Type: field.TypeString},
		{Name: "purpose", Type: field.TypeString},
		{Name: "input_tokens", Type: field.TypeInt},
		{Name: "output_tokens", Type: field.TypeInt},
		{Name: "latency_ms", Type: field.TypeInt64},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Default: ""},
		{Name: "request_body", Type: field.TypeString, Default: ""},
		{Name: "response_body", Type: field.TypeString, Default: ""},
	}
	LLMRequestEventsTable = &schema.Table{
		Name:       tableLLMEvents,
		Columns:    LLMRequestEventsColumns,
		PrimaryKey: []*schema.Column{LLMRequestEventsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "llmrequestevent_timestamp",
				Columns: []*schema.Column{LLMRequestEventsColumns[1]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		LearnersTable,
		SkillsTable,
		UserSkillStatesTable,
		ChallengesTable,
		SchedulingDecisionsTable,
		OptimizationJobsTable,
		PromptVersionsTable,
		OptimizationMetricsTable,
		LLMRequestEventsTable,
	}
)

// partialIndexes back the two "at most one per key" invariants at the
// database level. They are created with raw SQL outside the ent migrator
// because partial (WHERE-filtered) indexes are not expressible in the
// column-based index definitions above.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS optimizationjob_in_flight_key
		ON optimization_jobs (skill_id, difficulty_level)
		WHERE status IN ('pending', 'running')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS promptversion_active_key
		ON prompt_versions (skill_id, difficulty_level)
		WHERE is_active = 1 AND status = 'deployed'`,
}

// migrate creates or upgrades all tables, then the partial indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	drv := entsql.OpenDB(dialect.SQLite, db)
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	for _, stmt := range partialIndexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create partial index: %w", err)
		}
	}
	return nil
}
