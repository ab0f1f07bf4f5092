package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 120 * time.Second

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"

	systemInstruction = "You are a helpful assistant that recommends tags for fan fiction from an official tag list. Respond with valid JSON only."
)

// OpenAIBackend implements Backend using OpenAI's chat completions API
type OpenAIBackend struct {
	client openai.Client
	model  string
	log    callLogger
}

// NewOpenAIBackendWithLogger creates a new OpenAI backend with logger support
func NewOpenAIBackendWithLogger(apiKey string, baseURL string, model string, logger *zap.Logger, debugMode bool) *OpenAIBackend {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &OpenAIBackend{
		client: client,
		model:  model,
		log:    callLogger{logger: logger, debugMode: debugMode, provider: "openai", model: model},
	}
}

// Generate sends the prompt as a single user message and returns the first choice.
func (b *OpenAIBackend) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(b.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemInstruction),
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	b.log.request(ctx, prompt)
	start := time.Now()
	resp, err := b.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		b.log.failure(ctx, err, latency)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", fmt.Errorf("openai generate: %w", apiErr)
		}
		return "", fmt.Errorf("openai generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content
	b.log.response(ctx, content, latency)
	return content, nil
}

// RegisterOpenAI registers the OpenAI provider with the registry
func RegisterOpenAI(registry *ProviderRegistry) {
	registry.Register("openai", func(cfg ProviderConfig) (Backend, error) {
		return NewOpenAIBackendWithLogger(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Logger, cfg.DebugMode), nil
	})
}
