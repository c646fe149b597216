package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/nestvector/nestvector/internal/domain"
	"github.com/nestvector/nestvector/internal/metrics"
)

// Generator produces prose answers via the chat completions API.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	provider    string
	logger      *zap.Logger
}

// GeneratorConfig holds the generation provider settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Provider    string
	Logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible chat completion provider.
// An empty API key returns nil: the orchestrator treats a nil generator as
// "not configured" and returns raw contexts instead of an answer.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	if cfg.APIKey == "" {
		return nil
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		provider:    cfg.Provider,
		logger:      cfg.Logger,
	}
}

// Generate implements domain.Generator.
func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		N:           1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, "error").Inc()
		return "", parseGenerationError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrGenerationProvider)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, "success").Inc()
	return resp.Choices[0].Message.Content, nil
}

func parseGenerationError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("generation API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrGenerationProvider)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("generation API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), domain.ErrGenerationProvider)
	}

	return fmt.Errorf("generation request failed: %w: %w", domain.ErrGenerationProvider, err)
}
