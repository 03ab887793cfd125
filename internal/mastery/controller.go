// Package mastery adapts a learner's difficulty target after each answered
// challenge. Everything here is pure.
package mastery

import "fmt"

const (
	MinDifficulty = 1
	MaxDifficulty = 10

	// BootstrapAttempts is the attempt count (including the current answer)
	// at which the steady phase begins.
	BootstrapAttempts = 5
)

// Phase is the operating phase of the controller.
type Phase string

const (
	PhaseBootstrap Phase = "bootstrap"
	PhaseSteady    Phase = "steady"
)

// Thresholds configure one phase.
type Thresholds struct {
	RequiredStreak   int     // correct streak needed for an increase
	RequiredAccuracy float64 // running accuracy must exceed this for an increase

	// Decrease conditions. Bootstrap decreases on any incorrect answer below
	// DecreaseAccuracy; steady also decreases on IncorrectStreak or low
	// response confidence.
	DecreaseAccuracy float64
	IncorrectStreak  int
	MinConfidence    float64
}

// Config holds both phase thresholds.
type Config struct {
	Bootstrap Thresholds
	Steady    Thresholds
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		Bootstrap: Thresholds{
			RequiredStreak:   1,
			RequiredAccuracy: 0.6,
			DecreaseAccuracy: 0.6,
		},
		Steady: Thresholds{
			RequiredStreak:   2,
			RequiredAccuracy: 0.7,
			DecreaseAccuracy: 0.5,
			IncorrectStreak:  2,
			MinConfidence:    0.3,
		},
	}
}

// State is the mastery snapshot the controller reads.
type State struct {
	DifficultyTarget int
	StreakCorrect    int
	StreakIncorrect  int
	AttemptsTotal    int
	CorrectTotal     int
}

// Answer describes the just-answered challenge.
type Answer struct {
	Correct        bool
	ResponseTimeMs int64
	Difficulty     int // difficulty of the challenge that was answered
}

// Adjustment is the controller output.
type Adjustment struct {
	DifficultyTarget int
	StreakCorrect    int
	StreakIncorrect  int
	Phase            Phase
	Accuracy         float64 // running accuracy including this answer
	Confidence       float64
	Delta            int // -1, 0 or +1
	Reason           string
}

// PhaseFor returns the phase for a total attempt count that includes the
// current answer.
func PhaseFor(totalAttempts int) Phase {
	if totalAttempts < BootstrapAttempts {
		return PhaseBootstrap
	}
	return PhaseSteady
}

// Adjust computes the new difficulty target and streaks using the default
// thresholds.
func Adjust(s State, a Answer) Adjustment {
	return DefaultConfig().Adjust(s, a)
}

// Adjust computes the new difficulty target and streaks. The caller
// increments the attempt and correct totals.
func (c Config) Adjust(s State, a Answer) Adjustment {
	total := s.AttemptsTotal + 1
	correct := s.CorrectTotal
	if a.Correct {
		correct++
	}
	accuracy := float64(correct) / float64(total)

	phase := PhaseFor(total)
	th := c.Bootstrap
	if phase == PhaseSteady {
		th = c.Steady
	}

	adj := Adjustment{
		DifficultyTarget: clampLevel(s.DifficultyTarget),
		Phase:            phase,
		Accuracy:         accuracy,
		Confidence:       ResponseTimeConfidence(a.ResponseTimeMs, a.Difficulty),
	}

	if a.Correct {
		adj.StreakCorrect = s.StreakCorrect + 1
		adj.StreakIncorrect = 0
		if adj.StreakCorrect >= th.RequiredStreak && accuracy > th.RequiredAccuracy {
			adj.Delta = 1
			adj.Reason = fmt.Sprintf("%s: streak %d, accuracy %.0f%% above %.0f%%",
				phase, adj.StreakCorrect, accuracy*100, th.RequiredAccuracy*100)
		} else {
			adj.Reason = fmt.Sprintf("%s: correct, holding (streak %d/%d, accuracy %.0f%%)",
				phase, adj.StreakCorrect, th.RequiredStreak, accuracy*100)
		}
	} else {
		adj.StreakCorrect = 0
		adj.StreakIncorrect = s.StreakIncorrect + 1
		if why, ok := shouldDecrease(phase, th, adj); ok {
			adj.Delta = -1
			adj.Reason = fmt.Sprintf("%s: %s", phase, why)
		} else {
			adj.Reason = fmt.Sprintf("%s: incorrect, holding (accuracy %.0f%%)", phase, accuracy*100)
		}
	}

	adj.DifficultyTarget = clampLevel(adj.DifficultyTarget + adj.Delta)
	if adj.Delta != 0 && adj.DifficultyTarget == clampLevel(s.DifficultyTarget) {
		outcome, bound := "correct", "maximum"
		if adj.Delta < 0 {
			outcome, bound = "incorrect", "minimum"
		}
		adj.Delta = 0
		adj.Reason = fmt.Sprintf("%s: %s, holding at %s %d", phase, outcome, bound, adj.DifficultyTarget)
	}
	return adj
}

func shouldDecrease(phase Phase, th Thresholds, adj Adjustment) (string, bool) {
	if phase == PhaseBootstrap {
		if adj.Accuracy < th.DecreaseAccuracy {
			return fmt.Sprintf("accuracy %.0f%% below %.0f%%", adj.Accuracy*100, th.DecreaseAccuracy*100), true
		}
		return "", false
	}
	switch {
	case th.IncorrectStreak > 0 && adj.StreakIncorrect >= th.IncorrectStreak:
		return fmt.Sprintf("%d incorrect in a row", adj.StreakIncorrect), true
	case adj.Accuracy < th.DecreaseAccuracy:
		return fmt.Sprintf("accuracy %.0f%% below %.0f%%", adj.Accuracy*100, th.DecreaseAccuracy*100), true
	case adj.Confidence < th.MinConfidence:
		return fmt.Sprintf("low response confidence %.2f", adj.Confidence), true
	}
	return "", false
}

// Outcome is an Adjustment together with the updated totals, ready to be
// persisted as one write.
type Outcome struct {
	Adjustment
	AttemptsTotal int
	CorrectTotal  int
}

// Apply runs Adjust with the default thresholds and also advances the
// totals.
func Apply(s State, a Answer) Outcome {
	return DefaultConfig().Apply(s, a)
}

// Apply runs Adjust and also advances the totals.
func (c Config) Apply(s State, a Answer) Outcome {
	out := Outcome{
		Adjustment:    c.Adjust(s, a),
		AttemptsTotal: s.AttemptsTotal + 1,
		CorrectTotal:  s.CorrectTotal,
	}
	if a.Correct {
		out.CorrectTotal++
	}
	return out
}
