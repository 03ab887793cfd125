package challengegen

// Config tunes one LLMGenerator.
type Config struct {
	// Validators run in order on each generated challenge; the first
	// rejection discards it.
	Validators []Validator

	MaxTokens   int
	Temperature float64

	// MaxPriorQuestions caps how many earlier questions for the same
	// skill are quoted in the prompt as "do not repeat".
	MaxPriorQuestions int
}

// DefaultConfig checks structure, option distinctness and duplicates, in
// that order.
func DefaultConfig() Config {
	return Config{
		Validators:        []Validator{&StructuralValidator{}, &DistinctOptionsValidator{}, &DedupValidator{}},
		MaxTokens:         1024,
		Temperature:       0.7,
		MaxPriorQuestions: 10,
	}
}
