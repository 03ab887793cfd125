package challengegen

import (
	"strings"
	"testing"
)

func validChallenge() *Challenge {
	return &Challenge{
		Question:     "Which join returns only matching rows?",
		Options:      []string{"INNER", "LEFT", "RIGHT", "CROSS"},
		CorrectIndex: 0,
		Explanation:  "Inner joins keep matching rows.",
	}
}

func TestStructural(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Challenge)
		valid bool
	}{
		{"valid", func(*Challenge) {}, true},
		{"question too short", func(c *Challenge) { c.Question = "Why?" }, false},
		{"question at minimum", func(c *Challenge) { c.Question = strings.Repeat("q", MinQuestionLen) }, true},
		{"question too long", func(c *Challenge) { c.Question = strings.Repeat("q", MaxQuestionLen+1) }, false},
		{"three options", func(c *Challenge) { c.Options = c.Options[:3] }, false},
		{"five options", func(c *Challenge) { c.Options = append(c.Options, "FULL") }, false},
		{"blank option", func(c *Challenge) { c.Options[2] = "  " }, false},
		{"option too long", func(c *Challenge) { c.Options[1] = strings.Repeat("o", MaxOptionLen+1) }, false},
		{"option at maximum", func(c *Challenge) { c.Options[1] = strings.Repeat("o", MaxOptionLen) }, true},
		{"negative index", func(c *Challenge) { c.CorrectIndex = -1 }, false},
		{"index four", func(c *Challenge) { c.CorrectIndex = 4 }, false},
		{"index three", func(c *Challenge) { c.CorrectIndex = 3 }, true},
	}
	v := &StructuralValidator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validChallenge()
			tt.mod(c)
			err := v.Validate(c, Input{})
			if (err == nil) != tt.valid {
				t.Fatalf("Validate = %v, want valid=%v", err, tt.valid)
			}
			if err != nil && (err.Validator != "structural" || !err.Retryable) {
				t.Errorf("unexpected error fields: %+v", err)
			}
		})
	}
}

func TestDistinctOptions(t *testing.T) {
	c := validChallenge()
	if err := (&DistinctOptionsValidator{}).Validate(c, Input{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Options[3] = "INNER"
	if err := (&DistinctOptionsValidator{}).Validate(c, Input{}); err == nil {
		t.Fatal("expected duplicate rejection")
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid(validChallenge()) {
		t.Error("expected valid")
	}
	c := validChallenge()
	c.Options[1] = "INNER"
	if IsValid(c) {
		t.Error("expected duplicate options to be invalid")
	}
}
