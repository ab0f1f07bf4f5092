// Package app builds the runtime components shared by the server and the CLI
// from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/benvon/fictag/internal/config"
	"github.com/benvon/fictag/internal/database"
	"github.com/benvon/fictag/internal/services/ai"
	"github.com/benvon/fictag/internal/vocabulary"
)

// NewBackend creates the generation backend named by cfg.AIProvider
func NewBackend(cfg *config.Config, logger *zap.Logger, debugMode bool) (ai.Backend, error) {
	registry := ai.NewDefaultProviderRegistry()
	backend, err := registry.GetProvider(cfg.AIProvider, ai.ProviderConfig{
		APIKey:    cfg.AIAPIKey,
		Model:     cfg.AIModel,
		BaseURL:   cfg.AIBaseURL,
		Logger:    logger,
		DebugMode: debugMode,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", cfg.AIProvider, err)
	}
	return backend, nil
}

// Vocabulary is the configured vocabulary source plus the connections it owns
type Vocabulary struct {
	Source vocabulary.Source
	// Repository is set when the vocabulary lives in Postgres
	Repository *database.VocabularyRepository
	// Cache is set when REDIS_URL is configured
	Cache *vocabulary.RedisCache

	db *database.DB
}

// OpenVocabulary builds the vocabulary source from cfg. A Redis cache is
// layered on top when REDIS_URL is set; a cache that cannot be reached is
// skipped with a warning rather than failing startup.
func OpenVocabulary(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Vocabulary, error) {
	v := &Vocabulary{}

	switch cfg.VocabularySource {
	case config.VocabularySourcePostgres:
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repo := database.NewVocabularyRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		v.db = db
		v.Repository = repo
		v.Source = repo
	case config.VocabularySourceCSV:
		v.Source = vocabulary.NewCSVSource(cfg.VocabularyCSVPath)
	default:
		return nil, fmt.Errorf("unsupported vocabulary source %q", cfg.VocabularySource)
	}

	if cfg.RedisURL != "" {
		cache, err := vocabulary.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("vocabulary_cache_unavailable", zap.Error(err))
		} else {
			v.Cache = cache
			v.Source = vocabulary.NewCachedSource(v.Source, cache, cfg.VocabularyCacheTTL, logger)
		}
	}

	logger.Info("vocabulary_source_ready",
		zap.String("source", cfg.VocabularySource),
		zap.Bool("cached", v.Cache != nil),
	)
	return v, nil
}

// Ping checks the connections the vocabulary depends on
func (v *Vocabulary) Ping(ctx context.Context) error {
	if v.db != nil {
		if err := v.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	_, err := v.Source.Load(ctx)
	return err
}

// Close releases the database and cache connections
func (v *Vocabulary) Close() error {
	var errs []error
	if v.Cache != nil {
		errs = append(errs, v.Cache.Close())
	}
	if v.db != nil {
		errs = append(errs, v.db.Close())
	}
	return errors.Join(errs...)
}
