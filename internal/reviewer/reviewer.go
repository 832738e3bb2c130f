package reviewer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"pr-review-hub/internal/config"
)

// Service runs AI reviews. Providers are created lazily per model and
// cached; the cache lives for the process lifetime.
type Service struct {
	cfg config.AIConfig

	mu        sync.Mutex
	providers map[string]Provider
}

func NewService(cfg config.AIConfig) *Service {
	return &Service{
		cfg:       cfg,
		providers: make(map[string]Provider),
	}
}

func (s *Service) providerFor(model string) (Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.providers[model]; ok {
		return p, nil
	}
	p, err := NewProvider(s.cfg, model)
	if err != nil {
		return nil, err
	}
	s.providers[model] = p
	return p, nil
}

// Review sends the diff through the LLM and returns the parsed verdict.
// Provider and parse failures are folded into a zero-score result so the
// caller always gets a usable verdict; only the diff fetch upstream is
// allowed to fail the pipeline.
func (s *Service) Review(ctx context.Context, repoFullName, model, diff string) *Result {
	if model == "" {
		model = s.cfg.Model
	}

	provider, err := s.providerFor(model)
	if err != nil {
		slog.Error("ai provider unavailable", "model", model, "error", err)
		return failureResult(fmt.Sprintf("AI provider unavailable: %v", err))
	}

	slog.Info("starting ai review", "repository", repoFullName, "model", model, "provider", provider.Name())

	diff = stripBinaryDiffs(diff)
	prompt := buildPrompt(repoFullName, diff, s.cfg.MaxDiffLines)
	raw, err := provider.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		slog.Error("ai review call failed", "repository", repoFullName, "model", model, "error", err)
		return failureResult(fmt.Sprintf("Error during review: %v", err))
	}

	result := parseResult(raw)
	if dropped := sanitizeComments(result, indexDiff(diff)); dropped > 0 {
		slog.Warn("dropped comments outside diff", "repository", repoFullName, "dropped", dropped)
	}
	slog.Info("ai review completed",
		"repository", repoFullName,
		"model", model,
		"score", result.Score,
		"comments", len(result.Comments))
	return result
}
