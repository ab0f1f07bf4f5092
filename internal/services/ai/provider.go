package ai

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Backend is a text generation capability: it accepts a prompt and returns
// the raw model response. Retries, quotas and auth are the backend's concern.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f BackendFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ProviderConfig carries the settings every provider factory receives.
type ProviderConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	Logger    *zap.Logger
	DebugMode bool
}

// ProviderFactory creates a backend from configuration
type ProviderFactory func(cfg ProviderConfig) (Backend, error)

// ProviderRegistry stores available generation providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// NewDefaultProviderRegistry returns a registry with openai, anthropic and gemini registered.
func NewDefaultProviderRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	RegisterOpenAI(r)
	RegisterAnthropic(r)
	RegisterGemini(r)
	return r
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// Names returns the registered provider names in sorted order.
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, cfg ProviderConfig) (Backend, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s api key is required", name)
	}

	return factory(cfg)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}
