// Package vocabulary loads the controlled tag vocabulary that recommendations
// are drawn from.
package vocabulary

import (
	"context"
	"strings"

	"github.com/benvon/fictag/internal/models"
)

// Source provides the controlled vocabulary. Implementations are read on
// every prompt, so they should be cheap or wrapped in a CachedSource.
type Source interface {
	Load(ctx context.Context) ([]models.VocabularyEntry, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) ([]models.VocabularyEntry, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context) ([]models.VocabularyEntry, error) {
	return f(ctx)
}

// Index answers membership questions about a loaded vocabulary.
type Index struct {
	entries    map[string]struct{}
	categories map[string]string
}

// NewIndex builds an index over entries.
func NewIndex(entries []models.VocabularyEntry) *Index {
	idx := &Index{
		entries:    make(map[string]struct{}, len(entries)),
		categories: make(map[string]string),
	}
	for _, e := range entries {
		idx.entries[indexKey(e.Category, e.Name)] = struct{}{}
		key := categoryKey(e.Category)
		if _, ok := idx.categories[key]; !ok {
			idx.categories[key] = strings.TrimSpace(e.Category)
		}
	}
	return idx
}

// Contains reports whether name is listed under category.
// Category comparison ignores case; names must match exactly.
func (i *Index) Contains(category, name string) bool {
	_, ok := i.entries[indexKey(category, name)]
	return ok
}

// Category returns the vocabulary's own spelling of category. When entries
// disagree on case, the first one loaded wins.
func (i *Index) Category(category string) (string, bool) {
	c, ok := i.categories[categoryKey(category)]
	return c, ok
}

// Len returns the number of distinct (category, name) pairs.
func (i *Index) Len() int {
	return len(i.entries)
}

func indexKey(category, name string) string {
	return categoryKey(category) + "\x00" + name
}

func categoryKey(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// Filter returns the entries whose category matches (case-insensitively).
func Filter(entries []models.VocabularyEntry, category string) []models.VocabularyEntry {
	out := make([]models.VocabularyEntry, 0, len(entries))
	for _, e := range entries {
		if strings.EqualFold(e.Category, category) {
			out = append(out, e)
		}
	}
	return out
}
