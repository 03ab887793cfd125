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

var jobColumns = []string{
	"id", "skill_id", "difficulty_level", "status", "trigger_reason", "avg_rating_at_trigger",
	"questions_count", "created_at", "started_at", "completed_at", "result_prompt_version_id", "error_message",
}

// CreateJob inserts a pending optimization job. If another pending or
// running job exists for the same key the insert is rejected with
// ErrInFlight.
func (s *Store) CreateJob(ctx context.Context, j *OptimizationJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.DifficultyLevel < 1 || j.DifficultyLevel > 10 {
		return fmt.Errorf("difficulty level %d outside 1-10", j.DifficultyLevel)
	}
	j.Status = JobPending
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	j.CreatedAt = j.CreatedAt.UTC()

	ins := builder.Insert(tableJobs).
		Columns("id", "skill_id", "difficulty_level", "status", "trigger_reason", "avg_rating_at_trigger",
			"questions_count", "created_at").
		Values(j.ID, j.SkillID, j.DifficultyLevel, string(j.Status), j.TriggerReason, j.AvgRatingAtTrigger,
			j.QuestionsCount, j.CreatedAt)
	if _, err := execQ(ctx, s.db, ins); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("job for %s/%d: %w", j.SkillID, j.DifficultyLevel, ErrInFlight)
		}
		return fmt.Errorf("insert optimization job: %w", err)
	}
	return nil
}

func scanJob(r rowScanner) (*OptimizationJob, error) {
	var (
		j                  OptimizationJob
		status             string
		started, completed sql.NullTime
		versionID, errMsg  sql.NullString
	)
	if err := r.Scan(&j.ID, &j.SkillID, &j.DifficultyLevel, &status, &j.TriggerReason, &j.AvgRatingAtTrigger,
		&j.QuestionsCount, &j.CreatedAt, &started, &completed, &versionID, &errMsg); err != nil {
		return nil, err
	}
	j.Status = JobStatus(status)
	j.CreatedAt = j.CreatedAt.UTC()
	j.StartedAt = nullTimePtr(started)
	j.CompletedAt = nullTimePtr(completed)
	j.ResultPromptVersionID = nullStringPtr(versionID)
	j.ErrorMessage = nullStringPtr(errMsg)
	return &j, nil
}

// GetJob returns an optimization job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*OptimizationJob, error) {
	sel := builder.Select(jobColumns...).From(builder.Table(tableJobs)).Where(entsql.EQ("id", id))
	j, err := scanJob(queryRowQ(ctx, s.db, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// FindInFlightJob returns the pending or running job for a key, or
// ErrNotFound.
func (s *Store) FindInFlightJob(ctx context.Context, skillID string, level int) (*OptimizationJob, error) {
	sel := builder.Select(jobColumns...).From(builder.Table(tableJobs)).Where(entsql.And(
		entsql.EQ("skill_id", skillID),
		entsql.EQ("difficulty_level", level),
		entsql.In("status", string(JobPending), string(JobRunning)),
	)).Limit(1)
	j, err := scanJob(queryRowQ(ctx, s.db, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("in-flight job for %s/%d: %w", skillID, level, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find in-flight job: %w", err)
	}
	return j, nil
}

// CountJobsByStatus counts jobs in the given status.
func (s *Store) CountJobsByStatus(ctx context.Context, status JobStatus) (int, error) {
	sel := builder.Select(entsql.Count("*")).From(builder.Table(tableJobs)).Where(entsql.EQ("status", string(status)))
	var n int
	if err := queryRowQ(ctx, s.db, sel).Scan(&n); err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// ListJobs returns jobs oldest first. An empty status lists every job and
// a zero limit returns all matches.
func (s *Store) ListJobs(ctx context.Context, status JobStatus, limit int) ([]OptimizationJob, error) {
	sel := builder.Select(jobColumns...).From(builder.Table(tableJobs)).OrderBy("created_at", "id")
	if status != "" {
		sel.Where(entsql.EQ("status", string(status)))
	}
	if limit > 0 {
		sel.Limit(limit)
	}

	rows, err := queryQ(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []OptimizationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// ClaimJob moves a job from pending to running. It reports false when the
// job was no longer pending or, with maxRunning above zero, when
// maxRunning jobs are already running. The check and the claim are one
// statement, so concurrent processes sharing the database cannot overshoot.
func (s *Store) ClaimJob(ctx context.Context, id string, maxRunning int) (bool, error) {
	where := entsql.And(
		entsql.EQ("id", id),
		entsql.EQ("status", string(JobPending)),
	)
	if maxRunning > 0 {
		where = entsql.And(where, entsql.ExprP(
			"(SELECT COUNT(*) FROM "+tableJobs+" WHERE status = ?) < ?", string(JobRunning), maxRunning))
	}
	upd := builder.Update(tableJobs).
		Set("status", string(JobRunning)).
		Set("started_at", time.Now().UTC()).
		Where(where)
	res, err := execQ(ctx, s.db, upd)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return n == 1, nil
}

func completeJob(ctx context.Context, q querier, id, versionID string) error {
	upd := builder.Update(tableJobs).
		Set("status", string(JobCompleted)).
		Set("completed_at", time.Now().UTC()).
		Set("result_prompt_version_id", versionID).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("status", string(JobRunning)),
		))
	res, err := execQ(ctx, q, upd)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return expectOne(res, "running job "+id)
}

// FailJob marks a non-terminal job failed with msg.
func (s *Store) FailJob(ctx context.Context, id, msg string) error {
	upd := builder.Update(tableJobs).
		Set("status", string(JobFailed)).
		Set("completed_at", time.Now().UTC()).
		Set("error_message", msg).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.In("status", string(JobPending), string(JobRunning)),
		))
	res, err := execQ(ctx, s.db, upd)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return expectOne(res, "in-flight job "+id)
}

// FailStaleJobs fails running jobs started before cutoff and returns how
// many were failed.
func (s *Store) FailStaleJobs(ctx context.Context, cutoff time.Time, msg string) (int, error) {
	upd := builder.Update(tableJobs).
		Set("status", string(JobFailed)).
		Set("completed_at", time.Now().UTC()).
		Set("error_message", msg).
		Where(entsql.And(
			entsql.EQ("status", string(JobRunning)),
			entsql.LT("started_at", utc(cutoff)),
		))
	res, err := execQ(ctx, s.db, upd)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	return int(n), nil
}
