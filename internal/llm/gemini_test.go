package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGeminiSchema_ChallengeShape(t *testing.T) {
	s := geminiSchema(testSchema().Definition)

	assert.Equal(t, genai.TypeObject, s.Type)
	require.Len(t, s.Properties, 4)
	assert.ElementsMatch(t, []string{"question", "options", "correct_index"}, s.Required)

	opts := s.Properties["options"]
	assert.Equal(t, genai.TypeArray, opts.Type)
	assert.Equal(t, genai.TypeString, opts.Items.Type)
	require.NotNil(t, opts.MinItems)
	assert.EqualValues(t, 2, *opts.MinItems)
	assert.Nil(t, opts.MaxItems)

	idx := s.Properties["correct_index"]
	assert.Equal(t, genai.TypeInteger, idx.Type)
	require.NotNil(t, idx.Minimum)
	require.NotNil(t, idx.Maximum)
	assert.Equal(t, 0.0, *idx.Minimum)
	assert.Equal(t, 3.0, *idx.Maximum)

	assert.Equal(t, []string{"recall", "apply", "debug"}, s.Properties["kind"].Enum)
}

func TestGeminiSchema_AnyListsAndDescriptions(t *testing.T) {
	s := geminiSchema(map[string]any{
		"type":        "object",
		"description": "judge scores",
		"properties": map[string]any{
			"score": map[string]any{"type": "number", "description": "0 to 1"},
			"ok":    map[string]any{"type": "boolean"},
			"level": map[string]any{"type": "integer", "enum": []any{1, 2, 3}},
			"odd":   map[string]any{"type": "null"},
		},
		"required": []any{"score", 7},
	})

	assert.Equal(t, "judge scores", s.Description)
	assert.Equal(t, []string{"score"}, s.Required)
	assert.Equal(t, genai.TypeNumber, s.Properties["score"].Type)
	assert.Equal(t, "0 to 1", s.Properties["score"].Description)
	assert.Equal(t, genai.TypeBoolean, s.Properties["ok"].Type)
	assert.Equal(t, []string{"1", "2", "3"}, s.Properties["level"].Enum)
	assert.Equal(t, genai.TypeString, s.Properties["odd"].Type, "unknown types fall back to string")
}
