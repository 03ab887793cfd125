package challengegen

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/abhisek/skillissue/internal/llm"
	"github.com/abhisek/skillissue/internal/store"
)

func testInput() Input {
	return Input{
		SkillID:          "sk-sql",
		SkillName:        "SQL Joins",
		SkillDescription: "Combining rows from two or more tables",
		Difficulty:       3,
	}
}

func validChallengeJSON() json.RawMessage {
	return json.RawMessage(`{
		"question": "Which join returns only rows with matches in both tables?",
		"options": ["INNER JOIN", "LEFT JOIN", "FULL OUTER JOIN", "CROSS JOIN"],
		"correct_index": 0,
		"explanation": "An inner join keeps only rows whose join condition matches on both sides."
	}`)
}

type fakePrompts struct {
	pv  *store.PromptVersion
	err error
}

func (f fakePrompts) ActivePrompt(context.Context, string, int) (*store.PromptVersion, error) {
	return f.pv, f.err
}

func TestGenerate_BaseTemplate(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: validChallengeJSON()})
	gen := New(mock, fakePrompts{err: store.ErrNotFound}, DefaultConfig())

	c, err := gen.Generate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.CorrectIndex != 0 || len(c.Options) != 4 {
		t.Errorf("unexpected challenge: %+v", c)
	}
	if c.SkillID != "sk-sql" || c.Difficulty != 3 {
		t.Errorf("SkillID/Difficulty = %q/%d", c.SkillID, c.Difficulty)
	}
	if c.PromptVersionID != "" || c.Placeholder {
		t.Errorf("PromptVersionID = %q, Placeholder = %v", c.PromptVersionID, c.Placeholder)
	}

	sys := mock.Calls[0].System
	if !strings.Contains(sys, "Skill: SQL Joins") || !strings.Contains(sys, "3/10 (Understanding basic relationships)") {
		t.Errorf("system prompt not baked:\n%s", sys)
	}
	if strings.Contains(sys, "{{") {
		t.Errorf("system prompt still has variables:\n%s", sys)
	}
	if mock.Calls[0].Schema != ChallengeSchema {
		t.Error("expected the challenge schema on the request")
	}
}

func TestGenerate_UsesActivePrompt(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: validChallengeJSON()})
	pv := &store.PromptVersion{ID: "pv-7", Content: "optimized prompt body"}
	gen := New(mock, fakePrompts{pv: pv}, DefaultConfig())

	c, err := gen.Generate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.PromptVersionID != "pv-7" {
		t.Errorf("PromptVersionID = %q, want pv-7", c.PromptVersionID)
	}
	if mock.Calls[0].System != "optimized prompt body" {
		t.Errorf("System = %q", mock.Calls[0].System)
	}
}

func TestGenerate_PromptLookupError(t *testing.T) {
	mock := llm.NewMockProvider()
	gen := New(mock, fakePrompts{err: errors.New("db down")}, DefaultConfig())

	if _, err := gen.Generate(context.Background(), testInput()); err == nil {
		t.Fatal("expected error")
	}
	if mock.CallCount() != 0 {
		t.Errorf("provider called %d times, want 0", mock.CallCount())
	}
}

func TestGenerate_ProviderError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("down")}})
	gen := New(mock, nil, DefaultConfig())

	_, err := gen.Generate(context.Background(), testInput())
	var unavailable *llm.ErrProviderUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected *llm.ErrProviderUnavailable, got %v", err)
	}
}

func TestGenerate_ValidationFailure(t *testing.T) {
	raw := json.RawMessage(`{
		"question": "Which join returns matched rows?",
		"options": ["INNER JOIN", "INNER JOIN", "LEFT JOIN", "CROSS JOIN"],
		"correct_index": 0,
		"explanation": "Inner."
	}`)
	mock := llm.NewMockProvider(llm.MockResponse{Content: raw})
	gen := New(mock, nil, DefaultConfig())

	_, err := gen.Generate(context.Background(), testInput())
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if valErr.Validator != "distinct-options" {
		t.Errorf("Validator = %q, want distinct-options", valErr.Validator)
	}
}

func TestGenerate_RejectsRepeatedQuestion(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: validChallengeJSON()})
	gen := New(mock, nil, DefaultConfig())

	in := testInput()
	in.PriorQuestions = []string{"which join returns only rows with matches in  both tables?"}
	_, err := gen.Generate(context.Background(), in)
	var valErr *ValidationError
	if !errors.As(err, &valErr) || valErr.Validator != "dedup" {
		t.Fatalf("expected dedup rejection, got %v", err)
	}
	if !strings.Contains(mock.Calls[0].Messages[0].Content, "1. which join") {
		t.Errorf("prior questions missing from user message:\n%s", mock.Calls[0].Messages[0].Content)
	}
}

func TestGenerate_SanitizesMarkup(t *testing.T) {
	raw := json.RawMessage(`{
		"question": "<b>Which</b> value satisfies x < 3 in this filter?",
		"options": ["1", "<script>alert(1)</script>3", "5", "7"],
		"correct_index": 0,
		"explanation": "<i>1</i> is the only value below 3."
	}`)
	mock := llm.NewMockProvider(llm.MockResponse{Content: raw})
	gen := New(mock, nil, DefaultConfig())

	c, err := gen.Generate(context.Background(), testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Question != "Which value satisfies x < 3 in this filter?" {
		t.Errorf("Question = %q", c.Question)
	}
	if strings.Contains(c.Options[1], "script") {
		t.Errorf("Options[1] = %q, want script removed", c.Options[1])
	}
	if c.Explanation != "1 is the only value below 3." {
		t.Errorf("Explanation = %q", c.Explanation)
	}
}

func TestGenerate_SetsPurpose(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: validChallengeJSON()})
	rec := &purposeProvider{inner: mock}
	gen := New(rec, nil, DefaultConfig())

	if _, err := gen.Generate(context.Background(), testInput()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.purpose != llm.PurposeChallengeGen {
		t.Errorf("purpose = %q, want challenge-gen", rec.purpose)
	}
}

type purposeProvider struct {
	inner   llm.Provider
	purpose string
}

func (p *purposeProvider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.purpose = llm.PurposeFrom(ctx)
	return p.inner.Generate(ctx, req)
}

func (p *purposeProvider) ModelID() string { return p.inner.ModelID() }

func TestPlaceholder(t *testing.T) {
	c := Placeholder(testInput())
	if !c.Placeholder {
		t.Error("expected Placeholder = true")
	}
	if !strings.HasPrefix(c.Question, "[placeholder]") {
		t.Errorf("Question = %q", c.Question)
	}
	if !IsValid(c) {
		t.Error("placeholder should be structurally valid")
	}
}
