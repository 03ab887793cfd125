package challengegen

import (
	"fmt"
	"strconv"
	"strings"
)

// BaseTemplate is the challenge prompt before a skill and level are baked
// in. Optimized prompt versions start from a baked copy of it.
const BaseTemplate = `You are an expert educator writing a multiple-choice practice challenge.

Skill: {{skill_name}}
Skill description: {{skill_description}}
Target difficulty: {{difficulty}}/10 ({{difficulty_description}})

Rules:
- Write one self-contained question that genuinely tests the skill as described.
- Match the target difficulty in vocabulary, required knowledge depth and cognitive load.
- Provide exactly 4 distinct options. Exactly one is correct.
- Wrong options must be plausible to someone who does not know the material and clearly wrong to someone who does.
- The explanation must teach why the correct option is right.
- Use plain text only. No HTML and no markdown.`

// Bake replaces every template variable with concrete values. The result
// contains no variables, so it can be rewritten freely by the optimizer.
func Bake(template, skillName, skillDescription string, difficulty int) string {
	level := strconv.Itoa(difficulty)
	r := strings.NewReplacer(
		"{{skill_name}}", skillName,
		"{{skill_description}}", skillDescription,
		"{{difficulty}}", level,
		"{{difficulty_description}}", DifficultyDescription(difficulty),
		"{{input.skill_name}}", skillName,
		"{{input.skill_description}}", skillDescription,
		"{{input.difficulty}}", level,
	)
	return r.Replace(template)
}

// BakeInput bakes the base template for an Input.
func BakeInput(in Input) string {
	return Bake(BaseTemplate, in.SkillName, in.SkillDescription, in.Difficulty)
}

// buildUserMessage constructs the user message from Input and Config limits.
func buildUserMessage(input Input, cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate one challenge for %q at difficulty %d.\n", input.SkillName, input.Difficulty)

	b.WriteString("\nAlready asked recently:\n")
	b.WriteString(buildDedup(input.PriorQuestions, cfg.MaxPriorQuestions))

	return b.String()
}

// buildDedup formats prior questions for the prompt, respecting the max limit.
// Returns "None" if there are no prior questions.
func buildDedup(priorQuestions []string, max int) string {
	if len(priorQuestions) == 0 {
		return "None"
	}

	// Keep only the most recent N questions.
	if max > 0 && len(priorQuestions) > max {
		priorQuestions = priorQuestions[len(priorQuestions)-max:]
	}

	var b strings.Builder
	for i, q := range priorQuestions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return strings.TrimRight(b.String(), "\n")
}
