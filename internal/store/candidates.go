package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// ListCandidates returns every learner-skill state joined with its learner
// and skill, least recently challenged first. Never-challenged rows sort
// before all others.
func (s *Store) ListCandidates(ctx context.Context) ([]Candidate, error) {
	st := builder.Table(tableStates)
	l := builder.Table(tableLearners)
	sk := builder.Table(tableSkills)

	cols := st.Columns(stateColumns...)
	cols = append(cols, l.Columns(learnerColumns...)...)
	cols = append(cols, sk.Columns(skillColumns...)...)

	// SQLite sorts NULL before any value in ascending order.
	sel := builder.Select(cols...).
		From(st).
		Join(l).On(st.C("learner_id"), l.C("id")).
		Join(sk).On(st.C("skill_id"), sk.C("id")).
		OrderBy(st.C("last_challenged_at"), st.C("id"))

	rows, err := queryQ(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var qs, qe sql.NullInt64
		state, err := scanState(rows,
			&c.Learner.ID, &c.Learner.Name, &c.Learner.TimeZone, &qs, &qe, &c.Learner.MaxChallengesPerDay, &c.Learner.CreatedAt,
			&c.Skill.ID, &c.Skill.Name, &c.Skill.Description, &c.Skill.Active, &c.Skill.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.State = *state
		c.Learner.QuietHoursStart = nullIntPtr(qs)
		c.Learner.QuietHoursEnd = nullIntPtr(qe)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountChallengesSince counts challenges issued to a learner at or after
// since, across all skills.
func (s *Store) CountChallengesSince(ctx context.Context, learnerID string, since time.Time) (int, error) {
	sel := builder.Select(entsql.Count("*")).From(builder.Table(tableChallenges)).Where(entsql.And(
		entsql.EQ("learner_id", learnerID),
		entsql.GTE("created_at", utc(since)),
	))
	var n int
	if err := queryRowQ(ctx, s.db, sel).Scan(&n); err != nil {
		return 0, fmt.Errorf("count challenges: %w", err)
	}
	return n, nil
}

// RecentChallenges returns the n most recently issued challenges for a
// learner-skill pair, newest first.
func (s *Store) RecentChallenges(ctx context.Context, learnerID, skillID string, n int) ([]ChallengeSummary, error) {
	sel := builder.Select("id", "created_at", "answered_at", "expired_at").
		From(builder.Table(tableChallenges)).
		Where(entsql.And(
			entsql.EQ("learner_id", learnerID),
			entsql.EQ("skill_id", skillID),
		)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(n)

	rows, err := queryQ(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("recent challenges: %w", err)
	}
	defer rows.Close()

	var out []ChallengeSummary
	for rows.Next() {
		var c ChallengeSummary
		var answered, expired sql.NullTime
		if err := rows.Scan(&c.ID, &c.CreatedAt, &answered, &expired); err != nil {
			return nil, fmt.Errorf("scan challenge summary: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		c.Answered = answered.Valid
		c.Expired = expired.Valid
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppendDecision records an accepted scheduling decision in the audit log.
func (s *Store) AppendDecision(ctx context.Context, d *DecisionLog) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	ins := builder.Insert(tableDecisions).
		Columns("learner_id", "skill_id", "should_challenge", "reason", "difficulty_target", "scheduled_for", "created_at").
		Values(d.LearnerID, d.SkillID, d.ShouldChallenge, d.Reason, d.DifficultyTarget, utcPtr(d.ScheduledFor), utc(d.CreatedAt))
	res, err := execQ(ctx, s.db, ins)
	if err != nil {
		return fmt.Errorf("insert scheduling decision: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		d.ID = int(id)
	}
	return nil
}

// ListDecisions returns logged decisions, newest first.
func (s *Store) ListDecisions(ctx context.Context, opts QueryOpts) ([]DecisionLog, error) {
	sel := builder.Select("id", "learner_id", "skill_id", "should_challenge", "reason", "difficulty_target", "scheduled_for", "created_at").
		From(builder.Table(tableDecisions)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	applyTimeRange(sel, "created_at", opts)

	rows, err := queryQ(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionLog
	for rows.Next() {
		var d DecisionLog
		var sched sql.NullTime
		if err := rows.Scan(&d.ID, &d.LearnerID, &d.SkillID, &d.ShouldChallenge, &d.Reason, &d.DifficultyTarget, &sched, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.ScheduledFor = nullTimePtr(sched)
		out = append(out, d)
	}
	return out, rows.Err()
}

func applyTimeRange(sel *entsql.Selector, col string, opts QueryOpts) {
	if !opts.From.IsZero() {
		sel.Where(entsql.GTE(col, utc(opts.From)))
	}
	if !opts.To.IsZero() {
		sel.Where(entsql.LTE(col, utc(opts.To)))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
}
