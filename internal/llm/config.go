package llm

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config selects and configures one provider.
type Config struct {
	// Provider is "anthropic", "openai", "gemini", "openrouter" or "mock".
	Provider string

	Anthropic  AnthropicConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
	Retry      RetryConfig

	// Timeout bounds one Generate call including retries.
	Timeout time.Duration
}

type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // OpenAI-compatible gateways
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenRouterConfig struct {
	APIKey  string
	Model   string // vendor-prefixed, used verbatim
	BaseURL string
}

// RetryConfig shapes the backoff of RetryProvider.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig returns the Anthropic provider with cheap models selected
// for every vendor.
func DefaultConfig() Config {
	return Config{
		Provider:   "anthropic",
		Anthropic:  AnthropicConfig{Model: "claude-haiku"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o-mini"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: "google/gemini-2.0-flash-exp"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2,
		},
		Timeout: 30 * time.Second,
	}
}

// envBindings maps SKILLISSUE_* variables onto string fields of c.
func (c *Config) envBindings() map[string]*string {
	return map[string]*string{
		"SKILLISSUE_LLM_PROVIDER":        &c.Provider,
		"SKILLISSUE_ANTHROPIC_API_KEY":   &c.Anthropic.APIKey,
		"SKILLISSUE_ANTHROPIC_MODEL":     &c.Anthropic.Model,
		"SKILLISSUE_ANTHROPIC_BASE_URL":  &c.Anthropic.BaseURL,
		"SKILLISSUE_OPENAI_API_KEY":      &c.OpenAI.APIKey,
		"SKILLISSUE_OPENAI_MODEL":        &c.OpenAI.Model,
		"SKILLISSUE_OPENAI_BASE_URL":     &c.OpenAI.BaseURL,
		"SKILLISSUE_GEMINI_API_KEY":      &c.Gemini.APIKey,
		"SKILLISSUE_GEMINI_MODEL":        &c.Gemini.Model,
		"SKILLISSUE_OPENROUTER_API_KEY":  &c.OpenRouter.APIKey,
		"SKILLISSUE_OPENROUTER_MODEL":    &c.OpenRouter.Model,
		"SKILLISSUE_OPENROUTER_BASE_URL": &c.OpenRouter.BaseURL,
	}
}

// ConfigFromEnv overlays the SKILLISSUE_* variables on DefaultConfig.
// Unparseable numbers are ignored.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	for name, field := range cfg.envBindings() {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
	if n, err := strconv.Atoi(os.Getenv("SKILLISSUE_LLM_MAX_ATTEMPTS")); err == nil && n > 0 {
		cfg.Retry.MaxAttempts = n
	}
	if d, err := time.ParseDuration(os.Getenv("SKILLISSUE_LLM_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	return cfg
}

// ConfigFromEnvOrDiscover uses the SKILLISSUE_ variables when a provider is
// selected explicitly, and otherwise probes the vendor key variables.
func ConfigFromEnvOrDiscover() (Config, bool) {
	if os.Getenv("SKILLISSUE_LLM_PROVIDER") != "" {
		return ConfigFromEnv(), true
	}
	return DiscoverConfig()
}

// discoveryOrder lists vendor key variables, first match wins.
var discoveryOrder = []struct {
	env      string
	provider string
	key      func(*Config) *string
}{
	{"GEMINI_API_KEY", "gemini", func(c *Config) *string { return &c.Gemini.APIKey }},
	{"OPENAI_API_KEY", "openai", func(c *Config) *string { return &c.OpenAI.APIKey }},
	{"ANTHROPIC_API_KEY", "anthropic", func(c *Config) *string { return &c.Anthropic.APIKey }},
	{"OPENROUTER_API_KEY", "openrouter", func(c *Config) *string { return &c.OpenRouter.APIKey }},
}

// DiscoverConfig returns a default Config for the first vendor whose
// standard key variable is set, or false when none is.
func DiscoverConfig() (Config, bool) {
	for _, d := range discoveryOrder {
		k := os.Getenv(d.env)
		if k == "" {
			continue
		}
		cfg := DefaultConfig()
		cfg.Provider = d.provider
		*d.key(&cfg) = k
		return cfg, true
	}
	return Config{}, false
}

// Validate checks that the selected provider has its API key.
func (c Config) Validate() error {
	var key string
	switch c.Provider {
	case "anthropic":
		key = c.Anthropic.APIKey
	case "openai":
		key = c.OpenAI.APIKey
	case "gemini":
		key = c.Gemini.APIKey
	case "openrouter":
		key = c.OpenRouter.APIKey
	case "mock":
		return nil
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if key == "" {
		return fmt.Errorf("SKILLISSUE_%s_API_KEY is required for the %s provider",
			strings.ToUpper(c.Provider), c.Provider)
	}
	return nil
}
