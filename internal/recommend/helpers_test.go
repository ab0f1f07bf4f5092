package recommend

import (
	"context"
	"errors"
	"sync"

	"github.com/benvon/fictag/internal/models"
	"github.com/benvon/fictag/internal/registry"
	"github.com/benvon/fictag/internal/vocabulary"
)

// mockBackend returns queued responses in order and records every prompt.
type mockBackend struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (m *mockBackend) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", errors.New("mockBackend: no response queued")
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

func (m *mockBackend) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func testVocabulary() []models.VocabularyEntry {
	return []models.VocabularyEntry{
		{Category: "fandom", Name: "Example Fandom", Uses: 1200},
		{Category: "character", Name: "Alex Example", Uses: 300},
		{Category: "relationship", Name: "Alex Example/Sam Sample", Uses: 45},
		{Category: "freeform", Name: "Hurt/Comfort", Uses: 9000},
	}
}

func staticVocab(entries []models.VocabularyEntry) vocabulary.Source {
	return vocabulary.SourceFunc(func(context.Context) ([]models.VocabularyEntry, error) {
		return entries, nil
	})
}

func newTestPipeline(backend *mockBackend, opts ...Option) (*Pipeline, *registry.WorkRegistry) {
	reg := registry.New()
	return New(backend, staticVocab(testVocabulary()), reg, opts...), reg
}
