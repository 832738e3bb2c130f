package reviewer

import (
	"context"
	"fmt"
	"time"

	"pr-review-hub/internal/config"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const completionTimeout = 120 * time.Second

type openAIProvider struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

func newOpenAIProvider(cfg config.AIConfig, model string) *openAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}
	if cfg.OpenAIEndpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIEndpoint))
	}
	return &openAIProvider{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (p *openAIProvider) Name() string {
	return "openai-" + p.model
}

func (p *openAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(p.temperature),
		MaxTokens:   openai.Int(int64(p.maxTokens)),
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty openai response")
	}
	return resp.Choices[0].Message.Content, nil
}
