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

// CreateLearner inserts a learner. Empty ID, time zone and daily cap are
// filled with defaults.
func (s *Store) CreateLearner(ctx context.Context, l *Learner) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.TimeZone == "" {
		l.TimeZone = "UTC"
	}
	if _, err := time.LoadLocation(l.TimeZone); err != nil {
		return fmt.Errorf("learner time zone %q: %w", l.TimeZone, err)
	}
	if err := validQuietHour(l.QuietHoursStart); err != nil {
		return err
	}
	if err := validQuietHour(l.QuietHoursEnd); err != nil {
		return err
	}
	if l.MaxChallengesPerDay <= 0 {
		l.MaxChallengesPerDay = 5
	}
	l.CreatedAt = time.Now().UTC()

	ins := builder.Insert(tableLearners).
		Columns("id", "name", "time_zone", "quiet_hours_start", "quiet_hours_end", "max_challenges_per_day", "created_at").
		Values(l.ID, l.Name, l.TimeZone, intPtr(l.QuietHoursStart), intPtr(l.QuietHoursEnd), l.MaxChallengesPerDay, l.CreatedAt)
	if _, err := execQ(ctx, s.db, ins); err != nil {
		return fmt.Errorf("insert learner: %w", err)
	}
	return nil
}

func validQuietHour(h *int) error {
	if h != nil && (*h < 0 || *h > 23) {
		return fmt.Errorf("quiet hour %d outside 0-23", *h)
	}
	return nil
}

var learnerColumns = []string{"id", "name", "time_zone", "quiet_hours_start", "quiet_hours_end", "max_challenges_per_day", "created_at"}

// GetLearner returns a learner by ID.
func (s *Store) GetLearner(ctx context.Context, id string) (*Learner, error) {
	sel := builder.Select(learnerColumns...).From(builder.Table(tableLearners)).Where(entsql.EQ("id", id))
	var l Learner
	var qs, qe sql.NullInt64
	err := queryRowQ(ctx, s.db, sel).Scan(&l.ID, &l.Name, &l.TimeZone, &qs, &qe, &l.MaxChallengesPerDay, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("learner %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get learner: %w", err)
	}
	l.QuietHoursStart = nullIntPtr(qs)
	l.QuietHoursEnd = nullIntPtr(qe)
	return &l, nil
}

// CreateSkill inserts a skill.
func (s *Store) CreateSkill(ctx context.Context, sk *Skill) error {
	if sk.ID == "" {
		sk.ID = uuid.NewString()
	}
	sk.CreatedAt = time.Now().UTC()
	ins := builder.Insert(tableSkills).
		Columns("id", "name", "description", "active", "created_at").
		Values(sk.ID, sk.Name, sk.Description, sk.Active, sk.CreatedAt)
	if _, err := execQ(ctx, s.db, ins); err != nil {
		return fmt.Errorf("insert skill: %w", err)
	}
	return nil
}

// SetSkillActive toggles whether a skill takes part in scheduling.
func (s *Store) SetSkillActive(ctx context.Context, id string, active bool) error {
	upd := builder.Update(tableSkills).Set("active", active).Where(entsql.EQ("id", id))
	res, err := execQ(ctx, s.db, upd)
	if err != nil {
		return fmt.Errorf("update skill: %w", err)
	}
	return expectOne(res, "skill "+id)
}

var skillColumns = []string{"id", "name", "description", "active", "created_at"}

// GetSkill returns a skill by ID.
func (s *Store) GetSkill(ctx context.Context, id string) (*Skill, error) {
	sel := builder.Select(skillColumns...).From(builder.Table(tableSkills)).Where(entsql.EQ("id", id))
	var sk Skill
	err := queryRowQ(ctx, s.db, sel).Scan(&sk.ID, &sk.Name, &sk.Description, &sk.Active, &sk.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("skill %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}
	return &sk, nil
}

// ListSkills returns all skills ordered by name.
func (s *Store) ListSkills(ctx context.Context) ([]Skill, error) {
	sel := builder.Select(skillColumns...).From(builder.Table(tableSkills)).OrderBy("name")
	rows, err := queryQ(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var out []Skill
	for rows.Next() {
		var sk Skill
		if err := rows.Scan(&sk.ID, &sk.Name, &sk.Description, &sk.Active, &sk.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// Enroll creates the mastery row for a learner-skill pair with the seeded
// difficulty target, clamped to 1-10.
func (s *Store) Enroll(ctx context.Context, learnerID, skillID string, difficulty int) (*UserSkillState, error) {
	if difficulty < 1 {
		difficulty = 1
	}
	if difficulty > 10 {
		difficulty = 10
	}
	if _, err := s.GetLearner(ctx, learnerID); err != nil {
		return nil, err
	}
	if _, err := s.GetSkill(ctx, skillID); err != nil {
		return nil, err
	}

	st := &UserSkillState{
		ID:               uuid.NewString(),
		LearnerID:        learnerID,
		SkillID:          skillID,
		DifficultyTarget: difficulty,
		UpdatedAt:        time.Now().UTC(),
	}
	ins := builder.Insert(tableStates).
		Columns("id", "learner_id", "skill_id", "difficulty_target", "streak_correct", "streak_incorrect",
			"attempts_total", "correct_total", "revision", "updated_at").
		Values(st.ID, st.LearnerID, st.SkillID, st.DifficultyTarget, 0, 0, 0, 0, 0, st.UpdatedAt)
	if _, err := execQ(ctx, s.db, ins); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("learner %s already enrolled in %s: %w", learnerID, skillID, ErrConflict)
		}
		return nil, fmt.Errorf("insert user skill state: %w", err)
	}
	return st, nil
}

// Unenroll deletes the mastery row for a learner-skill pair.
func (s *Store) Unenroll(ctx context.Context, learnerID, skillID string) error {
	del := builder.Delete(tableStates).Where(entsql.And(
		entsql.EQ("learner_id", learnerID),
		entsql.EQ("skill_id", skillID),
	))
	res, err := execQ(ctx, s.db, del)
	if err != nil {
		return fmt.Errorf("delete user skill state: %w", err)
	}
	return expectOne(res, "enrollment "+learnerID+"/"+skillID)
}

var stateColumns = []string{
	"id", "learner_id", "skill_id", "difficulty_target", "streak_correct", "streak_incorrect",
	"attempts_total", "correct_total", "last_challenged_at", "last_result", "revision", "updated_at",
}

// GetUserSkillState returns the mastery row for a learner-skill pair.
func (s *Store) GetUserSkillState(ctx context.Context, learnerID, skillID string) (*UserSkillState, error) {
	return getState(ctx, s.db, learnerID, skillID)
}

func getState(ctx context.Context, q querier, learnerID, skillID string) (*UserSkillState, error) {
	sel := builder.Select(stateColumns...).From(builder.Table(tableStates)).Where(entsql.And(
		entsql.EQ("learner_id", learnerID),
		entsql.EQ("skill_id", skillID),
	))
	st, err := scanState(queryRowQ(ctx, q, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("enrollment %s/%s: %w", learnerID, skillID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user skill state: %w", err)
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(r rowScanner, extra ...any) (*UserSkillState, error) {
	var st UserSkillState
	var last sql.NullTime
	var result sql.NullString
	dest := []any{
		&st.ID, &st.LearnerID, &st.SkillID, &st.DifficultyTarget, &st.StreakCorrect, &st.StreakIncorrect,
		&st.AttemptsTotal, &st.CorrectTotal, &last, &result, &st.Revision, &st.UpdatedAt,
	}
	if err := r.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	st.LastChallengedAt = nullTimePtr(last)
	if result.Valid {
		r := AnswerResult(result.String)
		st.LastResult = &r
	}
	return &st, nil
}

// UpdateUserSkillState writes the mastery fields of st if its revision still
// matches the stored row. On success st.Revision is advanced. A stale
// revision yields ErrConflict.
func (s *Store) UpdateUserSkillState(ctx context.Context, st *UserSkillState) error {
	return updateState(ctx, s.db, st)
}

func updateState(ctx context.Context, q querier, st *UserSkillState) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("invalid user skill state: %w", err)
	}
	st.UpdatedAt = time.Now().UTC()
	upd := builder.Update(tableStates).
		Set("difficulty_target", st.DifficultyTarget).
		Set("streak_correct", st.StreakCorrect).
		Set("streak_incorrect", st.StreakIncorrect).
		Set("attempts_total", st.AttemptsTotal).
		Set("correct_total", st.CorrectTotal).
		Set("last_challenged_at", utcPtr(st.LastChallengedAt)).
		Set("last_result", resultValue(st.LastResult)).
		Set("revision", st.Revision+1).
		Set("updated_at", st.UpdatedAt).
		Where(entsql.And(
			entsql.EQ("id", st.ID),
			entsql.EQ("revision", st.Revision),
		))
	res, err := execQ(ctx, q, upd)
	if err != nil {
		return fmt.Errorf("update user skill state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user skill state: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user skill state %s at revision %d: %w", st.ID, st.Revision, ErrConflict)
	}
	st.Revision++
	return nil
}

func resultValue(r *AnswerResult) any {
	if r == nil {
		return nil
	}
	return string(*r)
}

func intPtr(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullTimePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

func nullStringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
