package challengegen

import (
	"strings"
	"testing"
)

func TestBake(t *testing.T) {
	tmpl := "{{skill_name}} | {{skill_description}} | {{difficulty}} | {{difficulty_description}} | {{input.skill_name}} {{input.difficulty}}"
	got := Bake(tmpl, "Go", "Concurrency", 7)
	want := "Go | Concurrency | 7 | Evaluating edge cases | Go 7"
	if got != want {
		t.Errorf("Bake = %q, want %q", got, want)
	}
}

func TestBakeInput_NoVariablesLeft(t *testing.T) {
	for level := 1; level <= 10; level++ {
		got := BakeInput(Input{SkillName: "Go", SkillDescription: "desc", Difficulty: level})
		if strings.Contains(got, "{{") {
			t.Fatalf("level %d: unreplaced variable in\n%s", level, got)
		}
	}
}

func TestDifficultyDescription(t *testing.T) {
	tests := []struct {
		level int
		want  string
	}{
		{1, "Basic recall, simple facts"},
		{5, "Analyzing moderately complex scenarios"},
		{10, "Master-level with subtle distinctions"},
		{0, "Difficulty level 0"},
		{11, "Difficulty level 11"},
	}
	for _, tt := range tests {
		if got := DifficultyDescription(tt.level); got != tt.want {
			t.Errorf("DifficultyDescription(%d) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestBuildDedup(t *testing.T) {
	if got := buildDedup(nil, 5); got != "None" {
		t.Errorf("empty = %q, want None", got)
	}
	got := buildDedup([]string{"a", "b", "c"}, 2)
	if got != "1. b\n2. c" {
		t.Errorf("buildDedup = %q", got)
	}
}
