package providers

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/artifacts"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderKimi      = "kimi"
	ProviderLMStudio  = "lmstudio"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Language  string
	MaxTokens int
}

type preset struct {
	model   string
	baseURL string
	keyless bool
}

var presets = map[string]preset{
	ProviderOpenAI:    {model: "gpt-4o-mini"},
	ProviderGemini:    {model: "gemini-2.0-flash", baseURL: "https://generativelanguage.googleapis.com/v1beta/openai/"},
	ProviderKimi:      {model: "kimi-k2-250711", baseURL: "https://ark.ap-southeast.bytepluses.com/api/v3"},
	ProviderLMStudio:  {model: "local-model", baseURL: "http://localhost:1234/v1", keyless: true},
	ProviderAnthropic: {model: "claude-3-5-sonnet-latest"},
}

// Names lists the supported providers.
func Names() []string {
	return []string{ProviderOpenAI, ProviderGemini, ProviderKimi, ProviderLMStudio, ProviderAnthropic}
}

// New builds the backend selected by cfg.Provider, filling model and base
// URL from the provider's preset when they are empty.
func New(cfg Config, store artifacts.Store) (ai.Backend, error) {
	name := strings.ToLower(cfg.Provider)
	if name == "" {
		name = ProviderGemini
	}
	p, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	if cfg.Model == "" {
		cfg.Model = p.model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = p.baseURL
	}
	if cfg.APIKey == "" {
		if !p.keyless {
			return nil, fmt.Errorf("%s: api key not set", name)
		}
		// LM Studio ignores the key but the SDK still sends a header.
		cfg.APIKey = "lm-studio"
	}

	switch name {
	case ProviderAnthropic:
		b, err := NewAnthropicBackend(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Language, cfg.MaxTokens, store)
		if err != nil {
			return nil, fmt.Errorf("failed to create Anthropic backend: %w", err)
		}
		return b, nil
	default:
		b, err := NewOpenAIBackend(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Language, store)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI-compatible backend: %w", err)
		}
		return b, nil
	}
}
