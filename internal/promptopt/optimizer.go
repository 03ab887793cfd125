// Package promptopt improves the challenge-generation prompt for one
// (skill, level) key by scoring sampled challenges with an LLM judge and
// asking the model for refinements.
package promptopt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abhisek/skillissue/internal/challengegen"
	"github.com/abhisek/skillissue/internal/llm"
	"github.com/abhisek/skillissue/internal/logger"
	"github.com/abhisek/skillissue/internal/store"
)

// Store is the persistence the optimizer reads.
type Store interface {
	GetSkill(ctx context.Context, id string) (*store.Skill, error)
	ActivePrompt(ctx context.Context, skillID string, level int) (*store.PromptVersion, error)
}

// SampleGenerator generates a challenge from an explicit system prompt.
type SampleGenerator interface {
	GenerateWithPrompt(ctx context.Context, prompt string, input challengegen.Input) (*challengegen.Challenge, error)
}

// Evaluator judges one challenge.
type Evaluator interface {
	Evaluate(ctx context.Context, c *challengegen.Challenge, skill SkillInfo, difficulty int) Evaluation
}

// Config tunes the optimization loop.
type Config struct {
	// SamplesPerRound is the number of challenges generated and judged to
	// score one prompt.
	SamplesPerRound int

	// MaxTokens bounds the refiner's response.
	MaxTokens int

	// Temperature of the refiner.
	Temperature float64
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{
		SamplesPerRound: 3,
		MaxTokens:       2048,
		Temperature:     0.7,
	}
}

// Result is the outcome of one optimization run.
type Result struct {
	Prompt             string
	BaselineScore      float64
	BestScore          float64
	ImprovementPercent float64
	RefinementCount    int
	Metrics            []store.OptimizationMetric
}

// Optimizer runs the refine-and-score loop.
type Optimizer struct {
	provider llm.Provider
	gen      SampleGenerator
	judge    Evaluator
	store    Store
	cfg      Config
	log      *logger.Logger
}

// New creates an Optimizer. provider drives the refiner; gen and judge
// score prompts.
func New(provider llm.Provider, gen SampleGenerator, judge Evaluator, st Store, cfg Config, log *logger.Logger) *Optimizer {
	if cfg.SamplesPerRound <= 0 {
		cfg.SamplesPerRound = DefaultConfig().SamplesPerRound
	}
	return &Optimizer{
		provider: provider,
		gen:      gen,
		judge:    judge,
		store:    st,
		cfg:      cfg,
		log:      logger.OrNop(log).With("component", "promptopt"),
	}
}

// roundScore is the aggregate of one prompt's samples.
type roundScore struct {
	mean      float64
	dimension map[Dimension]float64
	feedback  string
}

// OptimizePrompt refines the prompt for (skillID, level) for up to budget
// rounds and returns the best prompt found. The starting point is the
// active deployed version when there is one, else the baked base template.
func (o *Optimizer) OptimizePrompt(ctx context.Context, skillID string, level, budget int) (*Result, error) {
	sk, err := o.store.GetSkill(ctx, skillID)
	if err != nil {
		return nil, fmt.Errorf("load skill %s: %w", skillID, err)
	}
	info := SkillInfo{Name: sk.Name, Description: sk.Description}
	input := challengegen.Input{
		SkillID:          sk.ID,
		SkillName:        sk.Name,
		SkillDescription: sk.Description,
		Difficulty:       level,
	}

	start, err := o.startingPrompt(ctx, input)
	if err != nil {
		return nil, err
	}

	log := o.log.With("skill_id", skillID, "level", level)

	baseline, err := o.scorePrompt(ctx, start, input, info)
	if err != nil {
		return nil, err
	}
	log.Info("baseline scored", "score", baseline.mean)

	res := &Result{Prompt: start, BaselineScore: baseline.mean, BestScore: baseline.mean}
	best := baseline
	var rounds []float64

	for round := 1; round <= budget; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate, err := o.refine(ctx, res.Prompt, info, level, best)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("refinement failed", "round", round, "error", err)
			rounds = append(rounds, 0)
			res.RefinementCount++
			continue
		}

		sc, err := o.scorePrompt(ctx, candidate, input, info)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, sc.mean)
		res.RefinementCount++
		log.Info("round scored", "round", round, "score", sc.mean, "best", best.mean)

		if sc.mean > best.mean {
			best = sc
			res.Prompt = candidate
			res.BestScore = sc.mean
		}
	}

	res.ImprovementPercent = improvementPercent(res.BaselineScore, res.BestScore)
	res.Metrics = buildMetrics(res, best, rounds)
	return res, nil
}

func (o *Optimizer) startingPrompt(ctx context.Context, input challengegen.Input) (string, error) {
	pv, err := o.store.ActivePrompt(ctx, input.SkillID, input.Difficulty)
	switch {
	case err == nil:
		return pv.Content, nil
	case errors.Is(err, store.ErrNotFound):
		return challengegen.BakeInput(input), nil
	default:
		return "", fmt.Errorf("load active prompt: %w", err)
	}
}

// scorePrompt generates SamplesPerRound challenges with prompt and returns
// the mean composite. Failed or invalid samples count as zero. Only
// cancellation is returned as an error.
func (o *Optimizer) scorePrompt(ctx context.Context, prompt string, input challengegen.Input, info SkillInfo) (roundScore, error) {
	sampleCtx := llm.WithPurpose(ctx, llm.PurposeOptimizerSample)

	rs := roundScore{dimension: make(map[Dimension]float64, len(Dimensions))}
	worst := -1.0
	for i := 0; i < o.cfg.SamplesPerRound; i++ {
		var ev Evaluation
		c, err := o.gen.GenerateWithPrompt(sampleCtx, prompt, input)
		if err != nil {
			if ctx.Err() != nil {
				return roundScore{}, ctx.Err()
			}
			ev = failedEvaluation(fmt.Sprintf("generation failed: %v", err))
		} else {
			ev = o.judge.Evaluate(ctx, c, info, input.Difficulty)
		}

		rs.mean += ev.Composite
		for _, d := range Dimensions {
			rs.dimension[d] += ev.Scores[d]
		}
		if worst < 0 || ev.Composite < worst {
			worst = ev.Composite
			rs.feedback = ev.Feedback()
		}
	}

	n := float64(o.cfg.SamplesPerRound)
	rs.mean /= n
	for _, d := range Dimensions {
		rs.dimension[d] /= n
	}
	return rs, nil
}

type refineOutput struct {
	Prompt    string `json:"prompt"`
	Rationale string `json:"rationale"`
}

var refineSchema = &llm.Schema{
	Name:        "refined-prompt",
	Description: "An improved challenge-generation system prompt",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt":    map[string]any{"type": "string", "description": "The complete improved system prompt"},
			"rationale": map[string]any{"type": "string", "description": "What was changed and why"},
		},
		"required":             []any{"prompt", "rationale"},
		"additionalProperties": false,
	},
}

const refineSystem = `You improve system prompts that instruct a model to write multiple-choice practice challenges.
Keep the prompt concrete: it must name the skill and target difficulty explicitly and must not contain template variables.
Return the complete improved prompt, not a diff.`

func (o *Optimizer) refine(ctx context.Context, current string, info SkillInfo, level int, sc roundScore) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Skill: %s (%s)\nTarget difficulty: %d/10 (%s)\n\n", info.Name, info.Description, level,
		challengegen.DifficultyDescription(level))
	fmt.Fprintf(&b, "Current prompt (mean quality %.2f):\n<<<\n%s\n>>>\n\n", sc.mean, current)
	b.WriteString("Per-dimension mean scores:\n")
	for _, d := range Dimensions {
		fmt.Fprintf(&b, "- %s: %.2f (weight %.2f)\n", d, sc.dimension[d], Weights[d])
	}
	fmt.Fprintf(&b, "\nJudge feedback on the weakest sample:\n%s\n", sc.feedback)

	resp, err := o.provider.Generate(llm.WithPurpose(ctx, llm.PurposePromptRefine), llm.Request{
		System:      refineSystem,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
		Schema:      refineSchema,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("refine: %w", err)
	}

	var out refineOutput
	if err := resp.Decode(&out); err != nil {
		return "", fmt.Errorf("parse refined prompt: %w", err)
	}
	p := strings.TrimSpace(out.Prompt)
	if p == "" {
		return "", errors.New("refined prompt is empty")
	}
	if strings.Contains(p, "{{") {
		return "", errors.New("refined prompt contains template variables")
	}
	return p, nil
}

// improvementPercent is (best-baseline)/baseline*100, or 0 when the
// baseline is zero.
func improvementPercent(baseline, best float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return (best - baseline) / baseline * 100
}

func buildMetrics(res *Result, best roundScore, rounds []float64) []store.OptimizationMetric {
	m := []store.OptimizationMetric{
		{Name: "baseline_score", Value: res.BaselineScore},
		{Name: "best_score", Value: res.BestScore},
		{Name: "improvement_percent", Value: res.ImprovementPercent},
		{Name: "refinement_count", Value: float64(res.RefinementCount)},
	}
	for _, d := range Dimensions {
		m = append(m, store.OptimizationMetric{Name: "best_" + string(d), Value: best.dimension[d]})
	}
	for i, s := range rounds {
		m = append(m, store.OptimizationMetric{Name: fmt.Sprintf("round_%d_score", i+1), Value: s})
	}
	return m
}
