package challengegen

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhisek/skillissue/internal/llm"
	"github.com/abhisek/skillissue/internal/store"
)

// Generator produces challenges.
type Generator interface {
	// Generate produces a single challenge for the given input.
	// All configured validators are run before returning.
	Generate(ctx context.Context, input Input) (*Challenge, error)
}

// PromptSource returns the active deployed prompt for a (skill, level) key,
// or store.ErrNotFound when there is none.
type PromptSource interface {
	ActivePrompt(ctx context.Context, skillID string, level int) (*store.PromptVersion, error)
}

// LLMGenerator implements Generator using the LLM provider.
type LLMGenerator struct {
	provider llm.Provider
	prompts  PromptSource
	config   Config
}

// New creates a new LLMGenerator. prompts may be nil, in which case the
// base template is always used.
func New(provider llm.Provider, prompts PromptSource, cfg Config) *LLMGenerator {
	return &LLMGenerator{provider: provider, prompts: prompts, config: cfg}
}

// challengeOutput is the raw LLM response before validation.
type challengeOutput struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

// Generate produces a challenge using the active prompt version for the
// input's key, falling back to the baked base template.
func (g *LLMGenerator) Generate(ctx context.Context, input Input) (*Challenge, error) {
	prompt, versionID, err := g.resolvePrompt(ctx, input)
	if err != nil {
		return nil, err
	}
	c, err := g.GenerateWithPrompt(ctx, prompt, input)
	if err != nil {
		return nil, err
	}
	c.PromptVersionID = versionID
	return c, nil
}

func (g *LLMGenerator) resolvePrompt(ctx context.Context, input Input) (string, string, error) {
	if g.prompts == nil {
		return BakeInput(input), "", nil
	}
	pv, err := g.prompts.ActivePrompt(ctx, input.SkillID, input.Difficulty)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return BakeInput(input), "", nil
	case err != nil:
		return "", "", fmt.Errorf("load active prompt: %w", err)
	}
	return pv.Content, pv.ID, nil
}

// GenerateWithPrompt produces a challenge using prompt as the system
// prompt. The prompt optimizer scores candidate prompts through it.
func (g *LLMGenerator) GenerateWithPrompt(ctx context.Context, prompt string, input Input) (*Challenge, error) {
	ctx = llm.EnsurePurpose(ctx, llm.PurposeChallengeGen)

	req := llm.Request{
		System: prompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserMessage(input, g.config)},
		},
		Schema:      ChallengeSchema,
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	}

	resp, err := g.provider.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("LLM generation failed: %w", err)
	}

	var raw challengeOutput
	if err := resp.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}

	c := &Challenge{
		Question:     raw.Question,
		Options:      raw.Options,
		CorrectIndex: raw.CorrectIndex,
		Explanation:  raw.Explanation,
		Difficulty:   input.Difficulty,
		SkillID:      input.SkillID,
	}
	sanitize(c)

	// Run validators in order.
	for _, v := range g.config.Validators {
		if verr := v.Validate(c, input); verr != nil {
			return nil, verr
		}
	}

	return c, nil
}

// Placeholder builds the fallback challenge used when generation fails.
// It is structurally valid and marked as a placeholder.
func Placeholder(input Input) *Challenge {
	name := input.SkillName
	if name == "" {
		name = input.SkillID
	}
	return &Challenge{
		Question: fmt.Sprintf("[placeholder] How confident are you with %s at level %d?", name, input.Difficulty),
		Options: []string{
			"Very confident",
			"Somewhat confident",
			"Not very confident",
			"Not confident at all",
		},
		CorrectIndex: 0,
		Explanation:  "This is a placeholder challenge issued while challenge generation was unavailable.",
		Difficulty:   input.Difficulty,
		SkillID:      input.SkillID,
		Placeholder:  true,
	}
}
