package store

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

func ratedFilter(since time.Time) *entsql.Predicate {
	p := entsql.NotNull("rating")
	if !since.IsZero() {
		p = entsql.And(p, entsql.GTE("rated_at", utc(since)))
	}
	return p
}

// RatingStats aggregates ratings per (skill, difficulty) in a single query.
// A zero since covers all ratings.
func (s *Store) RatingStats(ctx context.Context, since time.Time) ([]RatingStat, error) {
	sel := builder.Select(
		"skill_id",
		"difficulty",
		entsql.As(entsql.Count("rating"), "rated"),
		entsql.As(entsql.Avg("rating"), "avg_rating"),
	).
		From(builder.Table(tableChallenges)).
		Where(ratedFilter(since)).
		GroupBy("skill_id", "difficulty").
		OrderBy("skill_id", "difficulty")

	rows, err := queryQ(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("rating stats: %w", err)
	}
	defer rows.Close()

	var out []RatingStat
	for rows.Next() {
		var r RatingStat
		if err := rows.Scan(&r.SkillID, &r.DifficultyLevel, &r.Count, &r.AvgRating); err != nil {
			return nil, fmt.Errorf("scan rating stat: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RatedChallenges returns the raw rated rows, for callers that aggregate
// in process.
func (s *Store) RatedChallenges(ctx context.Context, since time.Time) ([]RatedChallenge, error) {
	sel := builder.Select("skill_id", "difficulty", "rating").
		From(builder.Table(tableChallenges)).
		Where(ratedFilter(since)).
		OrderBy("created_at", "id")

	rows, err := queryQ(ctx, s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("rated challenges: %w", err)
	}
	defer rows.Close()

	var out []RatedChallenge
	for rows.Next() {
		var r RatedChallenge
		if err := rows.Scan(&r.SkillID, &r.Difficulty, &r.Rating); err != nil {
			return nil, fmt.Errorf("scan rated challenge: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
