package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const (
	// DefaultAnthropicModel is the default Claude model
	DefaultAnthropicModel = "claude-haiku-4-5"
	// DefaultAnthropicMaxTokens caps the response length
	DefaultAnthropicMaxTokens = 4096
)

// AnthropicBackend implements Backend using the Anthropic Messages API
type AnthropicBackend struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       callLogger
}

// NewAnthropicBackend creates a new Anthropic backend
func NewAnthropicBackend(apiKey, baseURL, model string, logger *zap.Logger, debugMode bool) *AnthropicBackend {
	if model == "" {
		model = DefaultAnthropicModel
	}
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(baseURL))
	}
	return &AnthropicBackend{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: DefaultAnthropicMaxTokens,
		log:       callLogger{logger: logger, debugMode: debugMode, provider: "anthropic", model: model},
	}
}

// Generate sends the prompt and concatenates the text blocks of the reply.
func (b *AnthropicBackend) Generate(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: b.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemInstruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	b.log.request(ctx, prompt)
	start := time.Now()
	message, err := b.client.Messages.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		b.log.failure(ctx, err, latency)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", fmt.Errorf("anthropic generate: %w", apiErr)
		}
		return "", fmt.Errorf("anthropic generate: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response format: no text blocks")
	}

	content := sb.String()
	b.log.response(ctx, content, latency)
	return content, nil
}

// RegisterAnthropic registers the Anthropic provider with the registry
func RegisterAnthropic(registry *ProviderRegistry) {
	registry.Register("anthropic", func(cfg ProviderConfig) (Backend, error) {
		return NewAnthropicBackend(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Logger, cfg.DebugMode), nil
	})
}
