package database

import (
	"context"

	"github.com/benvon/fictag/internal/models"
)

// VocabularyRepositoryInterface defines the vocabulary repository operations
// callers depend on, so tests can substitute a mock
type VocabularyRepositoryInterface interface {
	EnsureSchema(ctx context.Context) error
	List(ctx context.Context) ([]models.VocabularyEntry, error)
	ReplaceAll(ctx context.Context, entries []models.VocabularyEntry) error
}

// Ensure concrete types implement the interfaces
var _ VocabularyRepositoryInterface = (*VocabularyRepository)(nil)
