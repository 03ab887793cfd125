package promptopt

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/abhisek/skillissue/internal/challengegen"
	"github.com/abhisek/skillissue/internal/llm"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func validChallenge() *challengegen.Challenge {
	return &challengegen.Challenge{
		Question:     "Which join keeps only matching rows?",
		Options:      []string{"INNER", "LEFT", "RIGHT", "CROSS"},
		CorrectIndex: 0,
		Explanation:  "Inner joins keep matching rows.",
	}
}

func judgeJSON(c, d, dq, e, s float64) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"clarity": c, "clarity_reason": "clear",
		"difficulty_alignment": d, "difficulty_reason": "fits",
		"distractor_quality": dq, "distractor_reason": "plausible",
		"educational_value": e, "educational_reason": "teaches",
		"skill_relevance": s, "relevance_reason": "on topic",
		"overall": "fine",
	})
	return b
}

func TestWeightsSumToOne(t *testing.T) {
	var total float64
	for _, d := range Dimensions {
		total += Weights[d]
	}
	if !almostEqual(total, 1) {
		t.Errorf("weights sum to %f", total)
	}
}

func TestJudge_Evaluate(t *testing.T) {
	tests := []struct {
		name      string
		scores    [5]float64
		composite float64
		passed    bool
	}{
		{"perfect", [5]float64{10, 10, 10, 10, 10}, 1.0, true},
		{"all zero", [5]float64{0, 0, 0, 0, 0}, 0, false},
		{"above threshold", [5]float64{8, 8, 8, 8, 8}, 0.8, true},
		{"below threshold", [5]float64{6, 6, 6, 6, 6}, 0.6, false},
		{"weighted", [5]float64{10, 0, 10, 0, 10}, 0.6, false},
		{"clamped", [5]float64{15, -3, 10, 10, 10}, 0.75, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.scores
			mock := llm.NewMockProvider(llm.MockResponse{Content: judgeJSON(s[0], s[1], s[2], s[3], s[4])})
			ev := NewJudge(mock).Evaluate(context.Background(), validChallenge(), SkillInfo{Name: "SQL"}, 4)
			if !almostEqual(ev.Composite, tt.composite) {
				t.Errorf("Composite = %f, want %f", ev.Composite, tt.composite)
			}
			if ev.Passed != tt.passed {
				t.Errorf("Passed = %v, want %v", ev.Passed, tt.passed)
			}
		})
	}
}

func TestJudge_PromptContents(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: judgeJSON(5, 5, 5, 5, 5)})
	c := validChallenge()
	c.CorrectIndex = 2
	NewJudge(mock).Evaluate(context.Background(), c, SkillInfo{Name: "SQL", Description: "joins"}, 6)

	msg := mock.Calls[0].Messages[0].Content
	for _, want := range []string{"Skill being tested: SQL", "Target difficulty: 6/10", "C) RIGHT", "Correct answer: C) RIGHT"} {
		if !strings.Contains(msg, want) {
			t.Errorf("judge prompt missing %q:\n%s", want, msg)
		}
	}
	if mock.Calls[0].Temperature != 0.3 {
		t.Errorf("Temperature = %f, want 0.3", mock.Calls[0].Temperature)
	}
}

func TestJudge_InvalidChallengeScoresZero(t *testing.T) {
	mock := llm.NewMockProvider()
	c := validChallenge()
	c.Options = c.Options[:2]

	ev := NewJudge(mock).Evaluate(context.Background(), c, SkillInfo{}, 3)
	if ev.Composite != 0 || ev.Passed {
		t.Errorf("Composite = %f, Passed = %v", ev.Composite, ev.Passed)
	}
	if mock.CallCount() != 0 {
		t.Errorf("judge called %d times for an invalid challenge", mock.CallCount())
	}
}

func TestJudge_ProviderFailureScoresZero(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: errors.New("boom")})
	ev := NewJudge(mock).Evaluate(context.Background(), validChallenge(), SkillInfo{}, 3)
	if ev.Composite != 0 {
		t.Errorf("Composite = %f, want 0", ev.Composite)
	}
	if !strings.Contains(ev.Reasons[Clarity], "boom") {
		t.Errorf("reason = %q", ev.Reasons[Clarity])
	}
}
