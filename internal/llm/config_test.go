package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func clearProviderEnv(t *testing.T) {
	for _, k := range []string{
		"SKILLISSUE_LLM_PROVIDER", "SKILLISSUE_LLM_TIMEOUT", "SKILLISSUE_LLM_MAX_ATTEMPTS",
		"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"anthropic without key", Config{Provider: "anthropic"}, true},
		{"anthropic with key", Config{Provider: "anthropic", Anthropic: AnthropicConfig{APIKey: "sk-test"}}, false},
		{"openai without key", Config{Provider: "openai"}, true},
		{"gemini with key", Config{Provider: "gemini", Gemini: GeminiConfig{APIKey: "g"}}, false},
		{"openrouter without key", Config{Provider: "openrouter"}, true},
		{"mock needs no key", Config{Provider: "mock"}, false},
		{"unknown provider", Config{Provider: "unknown"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "Validate() = %v", err)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("SKILLISSUE_LLM_PROVIDER", "anthropic")
	t.Setenv("SKILLISSUE_ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("SKILLISSUE_ANTHROPIC_BASE_URL", "http://proxy.local")
	t.Setenv("SKILLISSUE_LLM_MAX_ATTEMPTS", "5")
	t.Setenv("SKILLISSUE_LLM_TIMEOUT", "45s")

	cfg, ok := ConfigFromEnvOrDiscover()
	assert.True(t, ok)
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "http://proxy.local", cfg.Anthropic.BaseURL)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestConfigFromEnv_BadNumbersKeepDefaults(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("SKILLISSUE_LLM_MAX_ATTEMPTS", "lots")
	t.Setenv("SKILLISSUE_LLM_TIMEOUT", "-1s")

	cfg := ConfigFromEnv()
	def := DefaultConfig()
	assert.Equal(t, def.Retry.MaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, def.Timeout, cfg.Timeout)
}

func TestDiscoverConfig(t *testing.T) {
	clearProviderEnv(t)
	_, ok := ConfigFromEnvOrDiscover()
	assert.False(t, ok)

	t.Setenv("ANTHROPIC_API_KEY", "a")
	t.Setenv("OPENAI_API_KEY", "o")
	cfg, ok := DiscoverConfig()
	assert.True(t, ok)
	assert.Equal(t, "openai", cfg.Provider, "openai outranks anthropic")
	assert.Equal(t, "o", cfg.OpenAI.APIKey)
}
