package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

var challengeColumns = []string{
	"id", "learner_id", "skill_id", "difficulty", "question", "options", "correct_index", "explanation",
	"prompt_version_id", "placeholder", "created_at", "answered_at", "selected_index", "correct",
	"response_time_ms", "expired_at", "rating", "rated_at",
}

// CreateChallenge persists an issued challenge and stamps the learner-skill
// state's lastChallengedAt with the issue time, in one transaction.
func (s *Store) CreateChallenge(ctx context.Context, c *Challenge) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.CreatedAt = c.CreatedAt.UTC()
	if len(c.Options) != 4 {
		return fmt.Errorf("challenge needs 4 options, got %d", len(c.Options))
	}
	if c.CorrectIndex < 0 || c.CorrectIndex > 3 {
		return fmt.Errorf("correct index %d outside 0-3", c.CorrectIndex)
	}
	opts, err := json.Marshal(c.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		ins := builder.Insert(tableChallenges).
			Columns("id", "learner_id", "skill_id", "difficulty", "question", "options", "correct_index",
				"explanation", "prompt_version_id", "placeholder", "created_at").
			Values(c.ID, c.LearnerID, c.SkillID, c.Difficulty, c.Question, string(opts), c.CorrectIndex,
				c.Explanation, stringPtr(c.PromptVersionID), c.Placeholder, c.CreatedAt)
		if _, err := execQ(ctx, tx, ins); err != nil {
			return fmt.Errorf("insert challenge: %w", err)
		}

		upd := builder.Update(tableStates).
			Set("last_challenged_at", c.CreatedAt).
			Set("updated_at", c.CreatedAt).
			Add("revision", 1).
			Where(entsql.And(
				entsql.EQ("learner_id", c.LearnerID),
				entsql.EQ("skill_id", c.SkillID),
			))
		res, err := execQ(ctx, tx, upd)
		if err != nil {
			return fmt.Errorf("stamp last challenged: %w", err)
		}
		return expectOne(res, "enrollment "+c.LearnerID+"/"+c.SkillID)
	})
}

// GetChallenge returns a challenge by ID.
func (s *Store) GetChallenge(ctx context.Context, id string) (*Challenge, error) {
	return getChallenge(ctx, s.db, id)
}

func getChallenge(ctx context.Context, q querier, id string) (*Challenge, error) {
	sel := builder.Select(challengeColumns...).From(builder.Table(tableChallenges)).Where(entsql.EQ("id", id))
	c, err := scanChallenge(queryRowQ(ctx, q, sel))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("challenge %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return c, nil
}

func scanChallenge(r rowScanner) (*Challenge, error) {
	var (
		c                     Challenge
		opts                  string
		promptID              sql.NullString
		answeredAt, expiredAt sql.NullTime
		ratedAt               sql.NullTime
		selected, rating      sql.NullInt64
		correct               sql.NullBool
		responseMs            sql.NullInt64
	)
	if err := r.Scan(&c.ID, &c.LearnerID, &c.SkillID, &c.Difficulty, &c.Question, &opts, &c.CorrectIndex,
		&c.Explanation, &promptID, &c.Placeholder, &c.CreatedAt, &answeredAt, &selected, &correct,
		&responseMs, &expiredAt, &rating, &ratedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(opts), &c.Options); err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.PromptVersionID = nullStringPtr(promptID)
	c.AnsweredAt = nullTimePtr(answeredAt)
	c.SelectedIndex = nullIntPtr(selected)
	if correct.Valid {
		v := correct.Bool
		c.Correct = &v
	}
	if responseMs.Valid {
		v := responseMs.Int64
		c.ResponseTimeMs = &v
	}
	c.ExpiredAt = nullTimePtr(expiredAt)
	c.Rating = nullIntPtr(rating)
	c.RatedAt = nullTimePtr(ratedAt)
	return &c, nil
}

// ListChallenges returns a learner's challenges, newest first.
func (s *Store) ListChallenges(ctx context.Context, learnerID string, opts QueryOpts) ([]Challenge, error) {
	sel := builder.Select(challengeColumns...).
		From(builder.Table(tableChallenges)).
		Where(entsql.EQ("learner_id", learnerID)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	applyTimeRange(sel, "created_at", opts)

	rows, err := queryQ(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	var out []Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Answer is a recorded response to a challenge.
type Answer struct {
	ChallengeID    string
	SelectedIndex  int
	Correct        bool
	ResponseTimeMs int64
	AnsweredAt     time.Time
}

// RecordAnswer stores the answer on its challenge and writes the updated
// mastery state in one transaction. The challenge must still be open and
// st must carry the revision it was read at; otherwise ErrConflict is
// returned and nothing is written.
func (s *Store) RecordAnswer(ctx context.Context, a Answer, st *UserSkillState) error {
	if a.AnsweredAt.IsZero() {
		a.AnsweredAt = time.Now()
	}
	next := *st
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		upd := builder.Update(tableChallenges).
			Set("answered_at", utc(a.AnsweredAt)).
			Set("selected_index", a.SelectedIndex).
			Set("correct", a.Correct).
			Set("response_time_ms", a.ResponseTimeMs).
			Where(entsql.And(
				entsql.EQ("id", a.ChallengeID),
				entsql.IsNull("answered_at"),
				entsql.IsNull("expired_at"),
			))
		res, err := execQ(ctx, tx, upd)
		if err != nil {
			return fmt.Errorf("record answer: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("record answer: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("challenge %s no longer open: %w", a.ChallengeID, ErrConflict)
		}
		return updateState(ctx, tx, &next)
	})
	if err != nil {
		return err
	}
	*st = next
	return nil
}

// RateChallenge stores a 1-5 learner rating on a challenge.
func (s *Store) RateChallenge(ctx context.Context, id string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating %d outside 1-5", rating)
	}
	upd := builder.Update(tableChallenges).
		Set("rating", rating).
		Set("rated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id))
	res, err := execQ(ctx, s.db, upd)
	if err != nil {
		return fmt.Errorf("rate challenge: %w", err)
	}
	return expectOne(res, "challenge "+id)
}

// ExpireChallenges marks every open challenge created before cutoff as
// expired and records an ignored result on its learner-skill state. It
// returns the number of challenges expired.
func (s *Store) ExpireChallenges(ctx context.Context, cutoff time.Time) (int, error) {
	var expired int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sel := builder.Select("id", "learner_id", "skill_id").
			From(builder.Table(tableChallenges)).
			Where(entsql.And(
				entsql.IsNull("answered_at"),
				entsql.IsNull("expired_at"),
				entsql.LT("created_at", utc(cutoff)),
			))
		rows, err := queryQ(ctx, tx, sel)
		if err != nil {
			return fmt.Errorf("find stale challenges: %w", err)
		}
		type stale struct{ id, learnerID, skillID string }
		var found []stale
		for rows.Next() {
			var st stale
			if err := rows.Scan(&st.id, &st.learnerID, &st.skillID); err != nil {
				rows.Close()
				return fmt.Errorf("scan stale challenge: %w", err)
			}
			found = append(found, st)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, st := range found {
			upd := builder.Update(tableChallenges).
				Set("expired_at", now).
				Where(entsql.EQ("id", st.id))
			if _, err := execQ(ctx, tx, upd); err != nil {
				return fmt.Errorf("expire challenge: %w", err)
			}
			ign := builder.Update(tableStates).
				Set("last_result", string(ResultIgnored)).
				Set("updated_at", now).
				Add("revision", 1).
				Where(entsql.And(
					entsql.EQ("learner_id", st.learnerID),
					entsql.EQ("skill_id", st.skillID),
				))
			if _, err := execQ(ctx, tx, ign); err != nil {
				return fmt.Errorf("mark ignored: %w", err)
			}
		}
		expired = len(found)
		return nil
	})
	return expired, err
}

func stringPtr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
