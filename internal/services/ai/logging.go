package ai

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// callLogger emits the llm_api_* debug events shared by every backend.
type callLogger struct {
	logger    *zap.Logger
	debugMode bool
	provider  string
	model     string
}

func (l callLogger) enabled() bool {
	return l.logger != nil && l.debugMode
}

func (l callLogger) fields(ctx context.Context) []zap.Field {
	return []zap.Field{
		zap.String("provider", l.provider),
		zap.String("model", l.model),
		zap.String("work_id", ExtractWorkID(ctx)),
		zap.String("request_id", ExtractRequestID(ctx)),
	}
}

func (l callLogger) request(ctx context.Context, prompt string) {
	if !l.enabled() {
		return
	}
	l.logger.Debug("llm_api_request", append(l.fields(ctx),
		zap.Int("prompt_length", len(prompt)),
		zap.String("prompt_preview", SanitizePrompt(prompt, true)),
	)...)
}

func (l callLogger) failure(ctx context.Context, err error, latency time.Duration) {
	if !l.enabled() {
		return
	}
	l.logger.Debug("llm_api_error", append(l.fields(ctx),
		zap.Error(err),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)...)
}

func (l callLogger) response(ctx context.Context, content string, latency time.Duration) {
	if !l.enabled() {
		return
	}
	l.logger.Debug("llm_api_response", append(l.fields(ctx),
		zap.Int("response_length", len(content)),
		zap.String("response_preview", SanitizeResponse(content, true)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)...)
}
