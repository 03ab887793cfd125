package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

var versionColumns = []string{
	"id", "skill_id", "difficulty_level", "content", "version", "is_active", "status", "baseline_score",
	"current_score", "improvement_percent", "refinement_count", "created_at", "deployed_at",
}

func scanVersion(r rowScanner) (*PromptVersion, error) {
	var (
		v        PromptVersion
		status   string
		deployed sql.NullTime
	)
	if err := r.Scan(&v.ID, &v.SkillID, &v.DifficultyLevel, &v.Content, &v.Version, &v.IsActive, &status,
		&v.BaselineScore, &v.CurrentScore, &v.ImprovementPercent, &v.RefinementCount, &v.CreatedAt, &deployed); err != nil {
		return nil, err
	}
	v.Status = PromptStatus(status)
	v.CreatedAt = v.CreatedAt.UTC()
	v.DeployedAt = nullTimePtr(deployed)
	return &v, nil
}

func keyPredicate(skillID string, level int) *entsql.Predicate {
	return entsql.And(
		entsql.EQ("skill_id", skillID),
		entsql.EQ("difficulty_level", level),
	)
}

func newVersion(nv NewPromptVersion, activate bool) (*PromptVersion, error) {
	if nv.DifficultyLevel < 1 || nv.DifficultyLevel > 10 {
		return nil, fmt.Errorf("difficulty level %d outside 1-10", nv.DifficultyLevel)
	}
	now := time.Now().UTC()
	v := &PromptVersion{
		ID:                 uuid.NewString(),
		SkillID:            nv.SkillID,
		DifficultyLevel:    nv.DifficultyLevel,
		Content:            nv.Content,
		Status:             PromptPending,
		BaselineScore:      nv.BaselineScore,
		CurrentScore:       nv.CurrentScore,
		ImprovementPercent: nv.ImprovementPercent,
		RefinementCount:    nv.RefinementCount,
		CreatedAt:          now,
	}
	if activate {
		v.IsActive = true
		v.Status = PromptDeployed
		v.DeployedAt = &now
	}
	return v, nil
}

// CreatePromptVersion stores a new version for the key with the next version
// number. When activate is set the version is deployed and any previously
// active version for the same key is deactivated in the same transaction.
func (s *Store) CreatePromptVersion(ctx context.Context, nv NewPromptVersion, activate bool) (*PromptVersion, error) {
	v, err := newVersion(nv, activate)
	if err != nil {
		return nil, err
	}
	if err := s.withTx(ctx, func(tx *sql.Tx) error { return insertVersion(ctx, tx, v) }); err != nil {
		return nil, err
	}
	return v, nil
}

// FinishJob records the outcome of a running job in one transaction: the
// new version (deployed when activate is set), the job's metrics and the
// running to completed transition. If the job is no longer running nothing
// is written and the error wraps ErrNotFound.
func (s *Store) FinishJob(ctx context.Context, jobID string, nv NewPromptVersion, activate bool, metrics []OptimizationMetric) (*PromptVersion, error) {
	v, err := newVersion(nv, activate)
	if err != nil {
		return nil, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertVersion(ctx, tx, v); err != nil {
			return err
		}
		if err := insertMetrics(ctx, tx, jobID, &v.ID, metrics); err != nil {
			return err
		}
		return completeJob(ctx, tx, jobID, v.ID)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// insertVersion numbers v after the key's latest version and inserts it,
// deactivating the key's active version first when v is active.
func insertVersion(ctx context.Context, tx *sql.Tx, v *PromptVersion) error {
	sel := builder.Select(entsql.Max("version")).
		From(builder.Table(tableVersions)).
		Where(keyPredicate(v.SkillID, v.DifficultyLevel))
	var maxVersion sql.NullInt64
	if err := queryRowQ(ctx, tx, sel).Scan(&maxVersion); err != nil {
		return fmt.Errorf("max prompt version: %w", err)
	}
	v.Version = int(maxVersion.Int64) + 1

	if v.IsActive {
		if err := deactivateKey(ctx, tx, v.SkillID, v.DifficultyLevel); err != nil {
			return err
		}
	}

	ins := builder.Insert(tableVersions).
		Columns(versionColumns...).
		Values(v.ID, v.SkillID, v.DifficultyLevel, v.Content, v.Version, v.IsActive, string(v.Status),
			v.BaselineScore, v.CurrentScore, v.ImprovementPercent, v.RefinementCount, v.CreatedAt, utcPtr(v.DeployedAt))
	if _, err := execQ(ctx, tx, ins); err != nil {
		return fmt.Errorf("insert prompt version: %w", err)
	}
	return nil
}

func deactivateKey(ctx context.Context, tx *sql.Tx, skillID string, level int) error {
	upd := builder.Update(tableVersions).
		Set("is_active", false).
		Where(entsql.And(keyPredicate(skillID, level), entsql.EQ("is_active", true)))
	if _, err := execQ(ctx, tx, upd); err != nil {
		return fmt.Errorf("deactivate prompt versions: %w", err)
	}
	return nil
}

// ActivatePromptVersion deploys an existing version, deactivating whichever
// version was active for the same key.
func (s *Store) ActivatePromptVersion(ctx context.Context, id string) (*PromptVersion, error) {
	var v *PromptVersion
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		v, err = getVersion(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := deactivateKey(ctx, tx, v.SkillID, v.DifficultyLevel); err != nil {
			return err
		}
		now := time.Now().UTC()
		upd := builder.Update(tableVersions).
			Set("is_active", true).
			Set("status", string(PromptDeployed)).
			Set("deployed_at", now).
			Where(entsql.EQ("id", id))
		if _, err := execQ(ctx, tx, upd); err != nil {
			return fmt.Errorf("activate prompt version: %w", err)
		}
		v.IsActive = true
		v.Status = PromptDeployed
		v.DeployedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetPromptVersion returns a version by ID.
func (s *Store) GetPromptVersion(ctx context.Context, id string) (*PromptVersion, error) {
	return getVersion(ctx, s.db, id)
}

func getVersion(ctx context.Context, q querier, id string) (*PromptVersion, error) {
	sel := builder.Select(versionColumns...).From(builder.Table(tableVersions)).Where(entsql.EQ("id", id))
	v, err := scanVersion(queryRowQ(ctx, q, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prompt version %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt version: %w", err)
	}
	return v, nil
}

// ActivePrompt returns the deployed, active version for a key, or
// ErrNotFound.
func (s *Store) ActivePrompt(ctx context.Context, skillID string, level int) (*PromptVersion, error) {
	sel := builder.Select(versionColumns...).From(builder.Table(tableVersions)).Where(entsql.And(
		keyPredicate(skillID, level),
		entsql.EQ("is_active", true),
		entsql.EQ("status", string(PromptDeployed)),
	))
	v, err := scanVersion(queryRowQ(ctx, s.db, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active prompt for %s/%d: %w", skillID, level, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("active prompt: %w", err)
	}
	return v, nil
}

// ListPromptVersions returns a skill's versions, newest first. A zero level
// covers every level.
func (s *Store) ListPromptVersions(ctx context.Context, skillID string, level int) ([]PromptVersion, error) {
	sel := builder.Select(versionColumns...).
		From(builder.Table(tableVersions)).
		Where(entsql.EQ("skill_id", skillID)).
		OrderBy("difficulty_level", entsql.Desc("version"))
	if level > 0 {
		sel.Where(entsql.EQ("difficulty_level", level))
	}

	rows, err := queryQ(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("list prompt versions: %w", err)
	}
	defer rows.Close()

	var out []PromptVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func insertMetrics(ctx context.Context, q querier, jobID string, versionID *string, metrics []OptimizationMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	now := time.Now().UTC()
	ins := builder.Insert(tableMetrics).Columns("job_id", "prompt_version_id", "name", "value", "created_at")
	for _, m := range metrics {
		ins.Values(jobID, stringPtr(versionID), m.Name, m.Value, now)
	}
	if _, err := execQ(ctx, q, ins); err != nil {
		return fmt.Errorf("insert optimization metrics: %w", err)
	}
	return nil
}

// ListOptimizationMetrics returns the metrics recorded for a job.
func (s *Store) ListOptimizationMetrics(ctx context.Context, jobID string) ([]OptimizationMetric, error) {
	sel := builder.Select("name", "value").
		From(builder.Table(tableMetrics)).
		Where(entsql.EQ("job_id", jobID)).
		OrderBy("id")
	rows, err := queryQ(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("list optimization metrics: %w", err)
	}
	defer rows.Close()

	var out []OptimizationMetric
	for rows.Next() {
		var m OptimizationMetric
		if err := rows.Scan(&m.Name, &m.Value); err != nil {
			return nil, fmt.Errorf("scan optimization metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
