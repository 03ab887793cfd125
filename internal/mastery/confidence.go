package mastery

const (
	// BaseExpectedSecs is the expected answer time at difficulty 1.
	BaseExpectedSecs = 10.0

	// SecsPerLevel is the extra expected time per difficulty level above 1.
	SecsPerLevel = 5.5

	// confidenceDecay is how fast confidence drops once the answer is slower
	// than expected. At 0.5 it reaches zero at three times the expectation.
	confidenceDecay = 0.5
)

// ExpectedResponseMs returns how long an answer at the given difficulty is
// expected to take.
func ExpectedResponseMs(difficulty int) float64 {
	d := clampLevel(difficulty)
	return (BaseExpectedSecs + float64(d-1)*SecsPerLevel) * 1000
}

// ResponseTimeConfidence scores how confidently an answer was given, from
// 1.0 (at or under the expected time) down to 0.0.
func ResponseTimeConfidence(responseTimeMs int64, difficulty int) float64 {
	expected := ExpectedResponseMs(difficulty)
	actual := float64(responseTimeMs)
	if actual <= expected {
		return 1.0
	}
	return max(0.0, 1.0-(actual/expected-1.0)*confidenceDecay)
}

func clampLevel(d int) int {
	if d < MinDifficulty {
		return MinDifficulty
	}
	if d > MaxDifficulty {
		return MaxDifficulty
	}
	return d
}
