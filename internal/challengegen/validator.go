package challengegen

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validator checks a generated challenge for correctness.
// Implementations should be stateless and safe for concurrent use.
type Validator interface {
	// Name returns a short identifier for this validator, e.g. "structural".
	Name() string

	// Validate checks the challenge and returns nil if it passes.
	Validate(c *Challenge, input Input) *ValidationError
}

// ValidationError describes why a challenge failed validation.
type ValidationError struct {
	Validator string // Name of the validator that failed
	Message   string // Human-readable description of the failure
	Retryable bool   // Whether regeneration is likely to fix this
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validator %q: %s", e.Validator, e.Message)
}

// Length limits, in characters.
const (
	MinQuestionLen = 10
	MaxQuestionLen = 500
	MaxOptionLen   = 200
)

// StructuralValidator checks field presence, lengths, option count and the
// correct index.
type StructuralValidator struct{}

func (v *StructuralValidator) Name() string { return "structural" }

func (v *StructuralValidator) Validate(c *Challenge, _ Input) *ValidationError {
	fail := func(format string, args ...any) *ValidationError {
		return &ValidationError{Validator: v.Name(), Message: fmt.Sprintf(format, args...), Retryable: true}
	}

	n := utf8.RuneCountInString(c.Question)
	if n < MinQuestionLen {
		return fail("question shorter than %d characters", MinQuestionLen)
	}
	if n > MaxQuestionLen {
		return fail("question exceeds %d characters", MaxQuestionLen)
	}
	if len(c.Options) != OptionCount {
		return fail("expected %d options, got %d", OptionCount, len(c.Options))
	}
	for i, o := range c.Options {
		if strings.TrimSpace(o) == "" {
			return fail("option %d is empty", i)
		}
		if utf8.RuneCountInString(o) > MaxOptionLen {
			return fail("option %d exceeds %d characters", i, MaxOptionLen)
		}
	}
	if c.CorrectIndex < 0 || c.CorrectIndex >= OptionCount {
		return fail("correct_index %d out of range", c.CorrectIndex)
	}
	return nil
}

// DistinctOptionsValidator rejects challenges with repeated options.
type DistinctOptionsValidator struct{}

func (v *DistinctOptionsValidator) Name() string { return "distinct-options" }

func (v *DistinctOptionsValidator) Validate(c *Challenge, _ Input) *ValidationError {
	seen := make(map[string]struct{}, len(c.Options))
	for _, o := range c.Options {
		if _, dup := seen[o]; dup {
			return &ValidationError{
				Validator: v.Name(),
				Message:   fmt.Sprintf("duplicate option %q", o),
				Retryable: true,
			}
		}
		seen[o] = struct{}{}
	}
	return nil
}

// DedupValidator rejects a question identical to one of the prior
// questions, ignoring case and surrounding space.
type DedupValidator struct{}

func (v *DedupValidator) Name() string { return "dedup" }

func (v *DedupValidator) Validate(c *Challenge, input Input) *ValidationError {
	q := normalize(c.Question)
	for _, prior := range input.PriorQuestions {
		if normalize(prior) == q {
			return &ValidationError{
				Validator: v.Name(),
				Message:   "question repeats a recent challenge",
				Retryable: true,
			}
		}
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// IsValid runs the standard validators and reports whether c passes.
func IsValid(c *Challenge) bool {
	for _, v := range DefaultConfig().Validators {
		if v.Validate(c, Input{}) != nil {
			return false
		}
	}
	return true
}
