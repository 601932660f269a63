package llm

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds model provider configuration.
type Config struct {
	// Provider is one of "anthropic", "openai", "gemini", "openrouter", "mock".
	Provider string

	Anthropic  AnthropicConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
	Retry      RetryConfig

	// Timeout bounds a single Generate call including retries.
	Timeout time.Duration
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// RetryConfig configures retry behaviour for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Provider:   "anthropic",
		Anthropic:  AnthropicConfig{Model: "claude-haiku"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o-mini"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: "google/gemini-2.0-flash-exp"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 1 * time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 30 * time.Second,
	}
}

// ConfigFromEnv overlays ADAPTIQ_* variables on the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&cfg.Provider, "ADAPTIQ_LLM_PROVIDER")
	setString(&cfg.Anthropic.APIKey, "ADAPTIQ_ANTHROPIC_API_KEY")
	setString(&cfg.Anthropic.Model, "ADAPTIQ_ANTHROPIC_MODEL")
	setString(&cfg.OpenAI.APIKey, "ADAPTIQ_OPENAI_API_KEY")
	setString(&cfg.OpenAI.Model, "ADAPTIQ_OPENAI_MODEL")
	setString(&cfg.OpenAI.BaseURL, "ADAPTIQ_OPENAI_BASE_URL")
	setString(&cfg.Gemini.APIKey, "ADAPTIQ_GEMINI_API_KEY")
	setString(&cfg.Gemini.Model, "ADAPTIQ_GEMINI_MODEL")
	setString(&cfg.OpenRouter.APIKey, "ADAPTIQ_OPENROUTER_API_KEY")
	setString(&cfg.OpenRouter.Model, "ADAPTIQ_OPENROUTER_MODEL")
	setString(&cfg.OpenRouter.BaseURL, "ADAPTIQ_OPENROUTER_BASE_URL")

	if v := os.Getenv("ADAPTIQ_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("ADAPTIQ_LLM_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retry.MaxAttempts = n
		}
	}

	return cfg
}

// DiscoverConfig probes the vendors' standard API key variables in order
// Gemini, OpenAI, Anthropic, OpenRouter and returns a config for the first
// one set.
func DiscoverConfig() (Config, bool) {
	cfg := DefaultConfig()

	if k := os.Getenv("GEMINI_API_KEY"); k != "" {
		cfg.Provider = "gemini"
		cfg.Gemini.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("OPENAI_API_KEY"); k != "" {
		cfg.Provider = "openai"
		cfg.OpenAI.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("ANTHROPIC_API_KEY"); k != "" {
		cfg.Provider = "anthropic"
		cfg.Anthropic.APIKey = k
		return cfg, true
	}
	if k := os.Getenv("OPENROUTER_API_KEY"); k != "" {
		cfg.Provider = "openrouter"
		cfg.OpenRouter.APIKey = k
		return cfg, true
	}

	return Config{}, false
}

// Resolve returns the explicit ADAPTIQ_* configuration when it validates,
// otherwise whatever DiscoverConfig finds.
func Resolve() (Config, bool) {
	cfg := ConfigFromEnv()
	if cfg.Validate() == nil {
		return cfg, true
	}
	return DiscoverConfig()
}

// Validate checks that the selected provider has its API key.
func (c Config) Validate() error {
	var key, env string
	switch c.Provider {
	case "anthropic":
		key, env = c.Anthropic.APIKey, "ADAPTIQ_ANTHROPIC_API_KEY"
	case "openai":
		key, env = c.OpenAI.APIKey, "ADAPTIQ_OPENAI_API_KEY"
	case "gemini":
		key, env = c.Gemini.APIKey, "ADAPTIQ_GEMINI_API_KEY"
	case "openrouter":
		key, env = c.OpenRouter.APIKey, "ADAPTIQ_OPENROUTER_API_KEY"
	case "mock":
		return nil
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if key == "" {
		return fmt.Errorf("%s is required for the %s provider", env, c.Provider)
	}
	return nil
}
