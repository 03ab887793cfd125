package promptopt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/abhisek/skillissue/internal/challengegen"
	"github.com/abhisek/skillissue/internal/llm"
	"github.com/abhisek/skillissue/internal/logger"
	"github.com/abhisek/skillissue/internal/store"
)

type fakeStore struct {
	active *store.PromptVersion
}

func (f *fakeStore) GetSkill(_ context.Context, id string) (*store.Skill, error) {
	if id != "sk" {
		return nil, store.ErrNotFound
	}
	return &store.Skill{ID: "sk", Name: "SQL Joins", Description: "joins", Active: true}, nil
}

func (f *fakeStore) ActivePrompt(context.Context, string, int) (*store.PromptVersion, error) {
	if f.active == nil {
		return nil, store.ErrNotFound
	}
	return f.active, nil
}

// promptEchoGen returns a valid challenge whose explanation carries the
// prompt it was generated with.
type promptEchoGen struct {
	prompts []string
	fail    map[string]bool
}

func (g *promptEchoGen) GenerateWithPrompt(_ context.Context, prompt string, in challengegen.Input) (*challengegen.Challenge, error) {
	g.prompts = append(g.prompts, prompt)
	if g.fail[prompt] {
		return nil, errors.New("generation failed")
	}
	c := validChallenge()
	c.Explanation = prompt
	c.Difficulty = in.Difficulty
	return c, nil
}

// scoreByPrompt scores a challenge by the prompt that produced it.
type scoreByPrompt map[string]float64

func (s scoreByPrompt) Evaluate(_ context.Context, c *challengegen.Challenge, _ SkillInfo, _ int) Evaluation {
	v, ok := s[c.Explanation]
	if !ok {
		v = 0.5
	}
	scores := map[Dimension]float64{}
	for _, d := range Dimensions {
		scores[d] = v
	}
	return Evaluation{Scores: scores, Reasons: map[Dimension]string{}, Composite: Composite(scores)}
}

func refined(prompt string) llm.MockResponse {
	b, _ := json.Marshal(map[string]string{"prompt": prompt, "rationale": "tighter"})
	return llm.MockResponse{Content: b}
}

func metric(ms []store.OptimizationMetric, name string) (float64, bool) {
	for _, m := range ms {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

func TestOptimizePrompt_KeepsBestRefinement(t *testing.T) {
	mock := llm.NewMockProvider(refined("better prompt"), refined("worse prompt"))
	gen := &promptEchoGen{}
	base := challengegen.Bake(challengegen.BaseTemplate, "SQL Joins", "joins", 4)
	judge := scoreByPrompt{base: 0.5, "better prompt": 0.8, "worse prompt": 0.3}

	o := New(mock, gen, judge, &fakeStore{}, DefaultConfig(), logger.Nop())
	res, err := o.OptimizePrompt(context.Background(), "sk", 4, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Prompt != "better prompt" {
		t.Errorf("Prompt = %q, want better prompt", res.Prompt)
	}
	if !almostEqual(res.BaselineScore, 0.5) || !almostEqual(res.BestScore, 0.8) {
		t.Errorf("scores = %f -> %f, want 0.5 -> 0.8", res.BaselineScore, res.BestScore)
	}
	if !almostEqual(res.ImprovementPercent, 60) {
		t.Errorf("ImprovementPercent = %f, want 60", res.ImprovementPercent)
	}
	if res.RefinementCount != 2 {
		t.Errorf("RefinementCount = %d, want 2", res.RefinementCount)
	}
	if len(gen.prompts) != 9 {
		t.Errorf("generated %d samples, want 9 (3 per scored prompt)", len(gen.prompts))
	}

	// The second refinement starts from the best prompt so far.
	if !strings.Contains(mock.Calls[1].Messages[0].Content, "better prompt") {
		t.Errorf("second refinement did not start from the best prompt")
	}

	if v, ok := metric(res.Metrics, "round_2_score"); !ok || !almostEqual(v, 0.3) {
		t.Errorf("round_2_score = %f (%v)", v, ok)
	}
	if v, ok := metric(res.Metrics, "best_clarity"); !ok || !almostEqual(v, 0.8) {
		t.Errorf("best_clarity = %f (%v)", v, ok)
	}
}

func TestOptimizePrompt_StartsFromActiveVersion(t *testing.T) {
	mock := llm.NewMockProvider()
	gen := &promptEchoGen{}
	st := &fakeStore{active: &store.PromptVersion{ID: "pv", Content: "deployed prompt"}}

	o := New(mock, gen, scoreByPrompt{}, st, DefaultConfig(), nil)
	res, err := o.OptimizePrompt(context.Background(), "sk", 4, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Prompt != "deployed prompt" || gen.prompts[0] != "deployed prompt" {
		t.Errorf("Prompt = %q, first sample prompt = %q", res.Prompt, gen.prompts[0])
	}
	if res.RefinementCount != 0 || res.ImprovementPercent != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestOptimizePrompt_FailedSamplesScoreZero(t *testing.T) {
	base := challengegen.Bake(challengegen.BaseTemplate, "SQL Joins", "joins", 4)
	gen := &promptEchoGen{fail: map[string]bool{base: true}}
	mock := llm.NewMockProvider(refined("recovered"))

	o := New(mock, gen, scoreByPrompt{"recovered": 0.9}, &fakeStore{}, DefaultConfig(), nil)
	res, err := o.OptimizePrompt(context.Background(), "sk", 4, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.BaselineScore != 0 {
		t.Errorf("BaselineScore = %f, want 0", res.BaselineScore)
	}
	if res.ImprovementPercent != 0 {
		t.Errorf("ImprovementPercent = %f, want 0 for a zero baseline", res.ImprovementPercent)
	}
	if res.Prompt != "recovered" {
		t.Errorf("Prompt = %q", res.Prompt)
	}
}

func TestOptimizePrompt_RefineFailureKeepsBaseline(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: errors.New("refiner down")}, refined("  "))
	base := challengegen.Bake(challengegen.BaseTemplate, "SQL Joins", "joins", 4)

	o := New(mock, &promptEchoGen{}, scoreByPrompt{}, &fakeStore{}, DefaultConfig(), nil)
	res, err := o.OptimizePrompt(context.Background(), "sk", 4, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Prompt != base {
		t.Errorf("Prompt changed after failed refinements")
	}
	if res.RefinementCount != 2 {
		t.Errorf("RefinementCount = %d, want 2", res.RefinementCount)
	}
}

func TestOptimizePrompt_UnknownSkill(t *testing.T) {
	o := New(llm.NewMockProvider(), &promptEchoGen{}, scoreByPrompt{}, &fakeStore{}, DefaultConfig(), nil)
	_, err := o.OptimizePrompt(context.Background(), "missing", 4, 1)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestOptimizePrompt_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := New(llm.NewMockProvider(refined("x")), &promptEchoGen{}, scoreByPrompt{}, &fakeStore{}, DefaultConfig(), nil)
	if _, err := o.OptimizePrompt(ctx, "sk", 4, 3); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestImprovementPercent(t *testing.T) {
	tests := []struct{ baseline, best, want float64 }{
		{0.5, 0.75, 50},
		{0.8, 0.4, -50},
		{0, 0.9, 0},
	}
	for _, tt := range tests {
		if got := improvementPercent(tt.baseline, tt.best); !almostEqual(got, tt.want) {
			t.Errorf("improvementPercent(%f, %f) = %f, want %f", tt.baseline, tt.best, got, tt.want)
		}
	}
}
