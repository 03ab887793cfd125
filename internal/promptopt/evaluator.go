package promptopt

import (
	"context"
	"fmt"
	"strings"

	"github.com/abhisek/skillissue/internal/challengegen"
	"github.com/abhisek/skillissue/internal/llm"
)

// Dimension is one judged quality aspect of a challenge.
type Dimension string

const (
	Clarity             Dimension = "clarity"
	DifficultyAlignment Dimension = "difficulty_alignment"
	DistractorQuality   Dimension = "distractor_quality"
	EducationalValue    Dimension = "educational_value"
	SkillRelevance      Dimension = "skill_relevance"
)

// Dimensions lists every dimension in reporting order.
var Dimensions = []Dimension{Clarity, DifficultyAlignment, DistractorQuality, EducationalValue, SkillRelevance}

// Weights are the composite score weights. They sum to 1.
var Weights = map[Dimension]float64{
	Clarity:             0.20,
	DifficultyAlignment: 0.25,
	DistractorQuality:   0.20,
	EducationalValue:    0.15,
	SkillRelevance:      0.20,
}

// QualityThreshold is the composite score at which a challenge passes.
const QualityThreshold = 0.7

// Evaluation is the judge's verdict on one challenge.
type Evaluation struct {
	Scores    map[Dimension]float64 // normalized to 0-1
	Reasons   map[Dimension]string
	Overall   string
	Composite float64
	Passed    bool
}

// Feedback renders the evaluation as a single line for the refiner.
func (e Evaluation) Feedback() string {
	parts := make([]string, 0, len(Dimensions)+1)
	for _, d := range Dimensions {
		parts = append(parts, fmt.Sprintf("%s %.0f%%: %s", d, e.Scores[d]*100, e.Reasons[d]))
	}
	if e.Overall != "" {
		parts = append(parts, "overall: "+e.Overall)
	}
	return strings.Join(parts, "; ")
}

func failedEvaluation(reason string) Evaluation {
	e := Evaluation{
		Scores:  make(map[Dimension]float64, len(Dimensions)),
		Reasons: make(map[Dimension]string, len(Dimensions)),
		Overall: reason,
	}
	for _, d := range Dimensions {
		e.Scores[d] = 0
		e.Reasons[d] = reason
	}
	return e
}

// Composite returns the weighted sum of normalized scores.
func Composite(scores map[Dimension]float64) float64 {
	var total float64
	for _, d := range Dimensions {
		total += scores[d] * Weights[d]
	}
	return total
}

// normalizeScore maps a 0-10 judge score to 0-1, clamping out-of-range
// values.
func normalizeScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 10:
		return 1
	}
	return v / 10
}

// SkillInfo is the context the judge evaluates a challenge against.
type SkillInfo struct {
	Name        string
	Description string
}

// Judge scores challenges with an LLM.
type Judge struct {
	provider    llm.Provider
	maxTokens   int
	temperature float64
}

// NewJudge creates a Judge. A low temperature keeps verdicts consistent.
func NewJudge(provider llm.Provider) *Judge {
	return &Judge{provider: provider, maxTokens: 1024, temperature: 0.3}
}

type judgeOutput struct {
	Clarity             float64 `json:"clarity"`
	ClarityReason       string  `json:"clarity_reason"`
	DifficultyAlignment float64 `json:"difficulty_alignment"`
	DifficultyReason    string  `json:"difficulty_reason"`
	DistractorQuality   float64 `json:"distractor_quality"`
	DistractorReason    string  `json:"distractor_reason"`
	EducationalValue    float64 `json:"educational_value"`
	EducationalReason   string  `json:"educational_reason"`
	SkillRelevance      float64 `json:"skill_relevance"`
	RelevanceReason     string  `json:"relevance_reason"`
	Overall             string  `json:"overall"`
}

// Evaluate judges c for the given skill and target difficulty. Invalid
// challenges and judge failures score zero; Evaluate never returns an
// error so one bad sample cannot abort a round.
func (j *Judge) Evaluate(ctx context.Context, c *challengegen.Challenge, skill SkillInfo, difficulty int) Evaluation {
	if c == nil || !challengegen.IsValid(c) {
		return failedEvaluation("challenge failed structural validation")
	}

	ctx = llm.WithPurpose(ctx, llm.PurposeChallengeJudge)
	resp, err := j.provider.Generate(ctx, llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildJudgePrompt(c, skill, difficulty)}},
		Schema:      judgeSchema,
		MaxTokens:   j.maxTokens,
		Temperature: j.temperature,
	})
	if err != nil {
		return failedEvaluation(fmt.Sprintf("evaluation failed: %v", err))
	}

	var out judgeOutput
	if err := resp.Decode(&out); err != nil {
		return failedEvaluation(fmt.Sprintf("parse error: %v", err))
	}

	e := Evaluation{
		Scores: map[Dimension]float64{
			Clarity:             normalizeScore(out.Clarity),
			DifficultyAlignment: normalizeScore(out.DifficultyAlignment),
			DistractorQuality:   normalizeScore(out.DistractorQuality),
			EducationalValue:    normalizeScore(out.EducationalValue),
			SkillRelevance:      normalizeScore(out.SkillRelevance),
		},
		Reasons: map[Dimension]string{
			Clarity:             out.ClarityReason,
			DifficultyAlignment: out.DifficultyReason,
			DistractorQuality:   out.DistractorReason,
			EducationalValue:    out.EducationalReason,
			SkillRelevance:      out.RelevanceReason,
		},
		Overall: out.Overall,
	}
	e.Composite = Composite(e.Scores)
	e.Passed = e.Composite >= QualityThreshold
	return e
}

func buildJudgePrompt(c *challengegen.Challenge, skill SkillInfo, difficulty int) string {
	letters := [challengegen.OptionCount]string{"A", "B", "C", "D"}

	var b strings.Builder
	b.WriteString("You are an expert educator evaluating the quality of a multiple-choice question.\n\n")
	fmt.Fprintf(&b, "Skill being tested: %s\n", skill.Name)
	fmt.Fprintf(&b, "Skill description: %s\n", skill.Description)
	fmt.Fprintf(&b, "Target difficulty: %d/10\n\n", difficulty)
	fmt.Fprintf(&b, "Question: %s\n", c.Question)
	for i, o := range c.Options {
		fmt.Fprintf(&b, "%s) %s\n", letters[i], o)
	}
	fmt.Fprintf(&b, "Correct answer: %s) %s\n", letters[c.CorrectIndex], c.Options[c.CorrectIndex])
	fmt.Fprintf(&b, "Explanation: %s\n\n", c.Explanation)
	b.WriteString(`Rate each dimension from 0 to 10 and give a brief reason for each:
1. clarity: is the question clear and unambiguous?
2. difficulty_alignment: does its complexity match the target difficulty (vocabulary, knowledge depth, cognitive load)?
3. distractor_quality: are the wrong options plausible yet clearly wrong to someone who knows the material?
4. educational_value: does the explanation teach why the correct answer is right?
5. skill_relevance: does the question genuinely test the skill as described?`)
	return b.String()
}

var judgeSchema = &llm.Schema{
	Name:        "challenge-evaluation",
	Description: "Scores and reasons for five quality dimensions of a challenge",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"clarity":              score(),
			"clarity_reason":       reason(),
			"difficulty_alignment": score(),
			"difficulty_reason":    reason(),
			"distractor_quality":   score(),
			"distractor_reason":    reason(),
			"educational_value":    score(),
			"educational_reason":   reason(),
			"skill_relevance":      score(),
			"relevance_reason":     reason(),
			"overall":              reason(),
		},
		"required": []any{
			"clarity", "clarity_reason",
			"difficulty_alignment", "difficulty_reason",
			"distractor_quality", "distractor_reason",
			"educational_value", "educational_reason",
			"skill_relevance", "relevance_reason",
			"overall",
		},
		"additionalProperties": false,
	},
}

func score() map[string]any {
	return map[string]any{"type": "number", "minimum": 0, "maximum": 10}
}

func reason() map[string]any {
	return map[string]any{"type": "string"}
}
