package database

import (
	"context"
	"fmt"

	"github.com/benvon/fictag/internal/models"
)

const vocabularySchema = `
CREATE TABLE IF NOT EXISTS vocabulary_tags (
	id       BIGSERIAL PRIMARY KEY,
	category TEXT NOT NULL,
	name     TEXT NOT NULL,
	uses     INTEGER NOT NULL DEFAULT 0,
	UNIQUE (category, name)
)`

// VocabularyRepository reads and replaces the controlled vocabulary table.
type VocabularyRepository struct {
	db *DB
}

// NewVocabularyRepository creates a new vocabulary repository
func NewVocabularyRepository(db *DB) *VocabularyRepository {
	return &VocabularyRepository{db: db}
}

// EnsureSchema creates the vocabulary table if it does not exist.
func (r *VocabularyRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, vocabularySchema); err != nil {
		return fmt.Errorf("create vocabulary table: %w", err)
	}
	return nil
}

// Load implements vocabulary.Source.
func (r *VocabularyRepository) Load(ctx context.Context) ([]models.VocabularyEntry, error) {
	return r.List(ctx)
}

// List returns every entry in insertion order.
func (r *VocabularyRepository) List(ctx context.Context) ([]models.VocabularyEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category, name, uses
		FROM vocabulary_tags
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list vocabulary: %w", err)
	}
	defer rows.Close()

	var entries []models.VocabularyEntry
	for rows.Next() {
		var e models.VocabularyEntry
		if err := rows.Scan(&e.Category, &e.Name, &e.Uses); err != nil {
			return nil, fmt.Errorf("scan vocabulary row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vocabulary rows: %w", err)
	}
	return entries, nil
}

// ReplaceAll swaps the table contents for entries in one transaction.
// Duplicate (category, name) pairs keep the last uses value.
func (r *VocabularyRepository) ReplaceAll(ctx context.Context, entries []models.VocabularyEntry) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vocabulary import: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM vocabulary_tags`); err != nil {
		return fmt.Errorf("clear vocabulary: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vocabulary_tags (category, name, uses)
		VALUES ($1, $2, $3)
		ON CONFLICT (category, name) DO UPDATE SET uses = EXCLUDED.uses
	`)
	if err != nil {
		return fmt.Errorf("prepare vocabulary insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err = stmt.ExecContext(ctx, e.Category, e.Name, e.Uses); err != nil {
			return fmt.Errorf("insert vocabulary entry %q: %w", e.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit vocabulary import: %w", err)
	}
	return nil
}
