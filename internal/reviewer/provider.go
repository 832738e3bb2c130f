// Package reviewer turns a PR diff into a structured review verdict by
// prompting a configurable LLM provider and parsing its response.
package reviewer

import (
	"context"
	"fmt"
	"strings"

	"pr-review-hub/internal/config"
)

// Provider is a single LLM backend capable of answering a review prompt.
// Implementations must be safe for concurrent use.
type Provider interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// providerName resolves which backend serves the given model. An explicit
// provider in config wins; otherwise the model name prefix decides
// (gpt* -> openai, claude* -> anthropic, anything else -> openai).
func providerName(cfg config.AIConfig, model string) string {
	if cfg.Provider != "" {
		return cfg.Provider
	}
	switch {
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	default:
		return "openai"
	}
}

// NewProvider builds the backend serving the given model.
func NewProvider(cfg config.AIConfig, model string) (Provider, error) {
	switch name := providerName(cfg, model); name {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai api key not configured")
		}
		return newOpenAIProvider(cfg, model), nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic api key not configured")
		}
		return newAnthropicProvider(cfg, model), nil
	default:
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
}
