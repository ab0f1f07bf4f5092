package ai

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultGeminiModel is the default Gemini model
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiBackend implements Backend using Google's Gemini API
type GeminiBackend struct {
	client *genai.Client
	model  string
	log    callLogger
}

// NewGeminiBackend creates a new Gemini backend
func NewGeminiBackend(ctx context.Context, apiKey, model string, logger *zap.Logger, debugMode bool) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiBackend{
		client: client,
		model:  model,
		log:    callLogger{logger: logger, debugMode: debugMode, provider: "gemini", model: model},
	}, nil
}

// Generate asks the model for a JSON response to prompt.
func (b *GeminiBackend) Generate(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	b.log.request(ctx, prompt)
	start := time.Now()
	result, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), config)
	latency := time.Since(start)
	if err != nil {
		b.log.failure(ctx, err, latency)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", fmt.Errorf("gemini generate: %w", apiErr)
		}
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	content := result.Text()
	if content == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	b.log.response(ctx, content, latency)
	return content, nil
}

// RegisterGemini registers the Gemini provider with the registry
func RegisterGemini(registry *ProviderRegistry) {
	registry.Register("gemini", func(cfg ProviderConfig) (Backend, error) {
		return NewGeminiBackend(context.Background(), cfg.APIKey, cfg.Model, cfg.Logger, cfg.DebugMode)
	})
}
