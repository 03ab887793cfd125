package challengegen

// OptionCount is the number of options every challenge carries.
const OptionCount = 4

// Challenge is a generated multiple-choice challenge ready to be stored.
type Challenge struct {
	// Question is the prompt shown to the learner, plain text.
	Question string

	// Options holds exactly OptionCount distinct answer options.
	Options []string

	// CorrectIndex points into Options.
	CorrectIndex int

	// Explanation says why the correct option is right. Shown after the
	// learner answers.
	Explanation string

	// Difficulty is the level (1-10) the challenge was generated for.
	Difficulty int

	// SkillID is the skill this challenge was generated for.
	SkillID string

	// PromptVersionID identifies the deployed prompt version used, or is
	// empty when the base template was used.
	PromptVersionID string

	// Placeholder marks a challenge built from the fallback template
	// instead of the generator.
	Placeholder bool
}

// Input holds all context needed to generate a challenge.
type Input struct {
	SkillID          string
	SkillName        string
	SkillDescription string

	// Difficulty is the target level, 1-10.
	Difficulty int

	// PriorQuestions contains the text of the learner's recent challenges
	// for this skill, oldest first. Used for deduplication in the prompt.
	PriorQuestions []string
}
