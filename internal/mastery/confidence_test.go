package mastery

import (
	"math"
	"testing"
)

const epsilon = 0.001

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestExpectedResponseMs(t *testing.T) {
	tests := []struct {
		difficulty int
		want       float64
	}{
		{1, 10000},
		{2, 15500},
		{10, 59500},
		{0, 10000},  // clamped
		{15, 59500}, // clamped
	}
	for _, tt := range tests {
		if got := ExpectedResponseMs(tt.difficulty); !almostEqual(got, tt.want) {
			t.Errorf("ExpectedResponseMs(%d) = %f, want %f", tt.difficulty, got, tt.want)
		}
	}
}

func TestResponseTimeConfidence(t *testing.T) {
	tests := []struct {
		name       string
		ms         int64
		difficulty int
		want       float64
	}{
		{"fast", 5000, 1, 1.0},
		{"exactly expected", 10000, 1, 1.0},
		{"double expected", 20000, 1, 0.5},
		{"triple expected", 30000, 1, 0.0},
		{"way over", 90000, 1, 0.0},
		{"slow at level 3", 31500, 3, 0.75}, // expected 21000ms
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResponseTimeConfidence(tt.ms, tt.difficulty)
			if !almostEqual(got, tt.want) {
				t.Errorf("ResponseTimeConfidence(%d, %d) = %f, want %f", tt.ms, tt.difficulty, got, tt.want)
			}
		})
	}
}
