// Package recommend turns a generation backend's response into a validated
// recommendation set and keeps one set per work in a registry.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/benvon/fictag/internal/logger"
	"github.com/benvon/fictag/internal/models"
	"github.com/benvon/fictag/internal/registry"
	"github.com/benvon/fictag/internal/services/ai"
	"github.com/benvon/fictag/internal/vocabulary"
)

const tracerName = "github.com/benvon/fictag/internal/recommend"

// Policy decides what Submit does when the work already has a set.
type Policy string

const (
	// PolicyReplace keeps the prior set until the new one validates, then
	// overwrites it.
	PolicyReplace Policy = "replace"
	// PolicyReject fails with ErrAlreadySubmitted without calling the backend.
	PolicyReject Policy = "reject"
)

// ParsePolicy converts a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyReplace, PolicyReject:
		return p, nil
	case "":
		return PolicyReplace, nil
	default:
		return "", fmt.Errorf("unknown resubmit policy %q", s)
	}
}

// Pipeline builds prompts, calls the backend, validates responses and
// commits accepted sets to its registry.
type Pipeline struct {
	backend  ai.Backend
	vocab    vocabulary.Source
	registry *registry.WorkRegistry
	policy   Policy
	logger   *zap.Logger
	tracer   trace.Tracer
	debug    bool
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPolicy sets the resubmission policy.
func WithPolicy(p Policy) Option {
	return func(pl *Pipeline) { pl.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(pl *Pipeline) {
		if l != nil {
			pl.logger = l
		}
	}
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(pl *Pipeline) { pl.tracer = t }
}

// WithDebug logs sanitized previews of rejected responses.
func WithDebug(debug bool) Option {
	return func(pl *Pipeline) { pl.debug = debug }
}

// WithClock overrides the clock used to stamp sets.
func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

// New creates a Pipeline. The registry must not be nil.
func New(backend ai.Backend, vocab vocabulary.Source, reg *registry.WorkRegistry, opts ...Option) *Pipeline {
	p := &Pipeline{
		backend:  backend,
		vocab:    vocab,
		registry: reg,
		policy:   PolicyReplace,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit asks the backend for recommendations for work and stores the
// validated set. On any failure nothing is stored and a prior set for the
// work is left in place.
func (p *Pipeline) Submit(ctx context.Context, work *models.Work) (set *models.RecommendationSet, err error) {
	if work == nil {
		return nil, errors.New("work is required")
	}

	ctx, span := p.tracer.Start(ctx, "recommend.submit", trace.WithAttributes(
		attribute.String("work.id", work.ID.String()),
		attribute.String("recommend.policy", string(p.policy)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	ctx = ai.WithWorkID(ctx, work.ID.String())
	start := time.Now()

	if p.policy == PolicyReject {
		if _, ok := p.registry.Lookup(work.ID); ok {
			p.logger.Info("recommendation_rejected",
				zap.String("work_id", work.ID.String()),
				zap.String("reason", "already_submitted"),
			)
			return nil, ErrAlreadySubmitted
		}
	}

	entries, err := p.vocab.Load(ctx)
	if err != nil {
		p.logger.Error("vocabulary_load_failed",
			zap.String("work_id", work.ID.String()),
			zap.String("error", logger.SanitizeError(err)),
		)
		return nil, fmt.Errorf("%w: %w", ErrVocabularyUnavailable, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: vocabulary is empty", ErrVocabularyUnavailable)
	}
	span.AddEvent("vocabulary_loaded", trace.WithAttributes(attribute.Int("vocabulary.entries", len(entries))))

	prompt := BuildPrompt(work, entries)
	raw, err := p.backend.Generate(ctx, prompt)
	if err != nil {
		p.logger.Warn("recommendation_backend_failed",
			zap.String("work_id", work.ID.String()),
			zap.String("error", logger.SanitizeError(err)),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil, &BackendError{Err: err}
	}
	span.AddEvent("backend_responded", trace.WithAttributes(attribute.Int("response.length", len(raw))))

	add, remove, err := parseResponse(raw)
	if err != nil {
		p.logRejected(work.ID, "malformed_response", raw, zap.String("error", logger.SanitizeError(err)))
		return nil, err
	}

	index := vocabulary.NewIndex(entries)
	if violations := validate(work, add, remove, index); len(violations) > 0 {
		p.logRejected(work.ID, "invalid_recommendation", raw, zap.Int("violations", len(violations)))
		return nil, &InvalidRecommendationError{Violations: violations}
	}
	span.AddEvent("response_validated")

	set = &models.RecommendationSet{
		Work:      work,
		ToAdd:     toTags(add, index),
		ToRemove:  toTags(remove, index),
		CreatedAt: p.now(),
	}

	if p.policy == PolicyReject {
		if !p.registry.StoreIfAbsent(set) {
			p.logger.Info("recommendation_rejected",
				zap.String("work_id", work.ID.String()),
				zap.String("reason", "already_submitted"),
			)
			return nil, ErrAlreadySubmitted
		}
	} else {
		p.registry.Store(set)
	}

	span.SetAttributes(
		attribute.Int("recommend.to_add", len(set.ToAdd)),
		attribute.Int("recommend.to_remove", len(set.ToRemove)),
	)
	p.logger.Info("recommendation_submitted",
		zap.String("work_id", work.ID.String()),
		zap.Int("to_add", len(set.ToAdd)),
		zap.Int("to_remove", len(set.ToRemove)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return set, nil
}

func (p *Pipeline) logRejected(workID uuid.UUID, reason, raw string, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("work_id", workID.String()),
		zap.String("reason", reason),
	}, fields...)
	if p.debug {
		fields = append(fields, zap.String("response_preview", ai.SanitizeResponse(raw, false)))
	}
	p.logger.Warn("recommendation_rejected", fields...)
}

// Lookup returns the current set for the work, if any.
func (p *Pipeline) Lookup(workID uuid.UUID) (*models.RecommendationSet, bool) {
	return p.registry.Lookup(workID)
}

// Remove deletes and returns the current set for the work.
func (p *Pipeline) Remove(workID uuid.UUID) (*models.RecommendationSet, error) {
	return p.registry.Remove(workID)
}

// RemoveMany removes the sets for workIDs in order, stopping at the first
// work that has none. Earlier removals are not undone.
func (p *Pipeline) RemoveMany(workIDs []uuid.UUID) error {
	return p.registry.RemoveMany(workIDs)
}

// Organize groups the current set for the work by category.
func (p *Pipeline) Organize(workID uuid.UUID) (models.OrganizedTags, error) {
	set, ok := p.registry.Lookup(workID)
	if !ok {
		return models.OrganizedTags{}, fmt.Errorf("organize %s: %w", workID, ErrNotFound)
	}
	return Organize(set), nil
}

// Render returns the text report for the current set of the work.
func (p *Pipeline) Render(workID uuid.UUID) (string, error) {
	set, ok := p.registry.Lookup(workID)
	if !ok {
		return "", fmt.Errorf("render %s: %w", workID, ErrNotFound)
	}
	return Render(set), nil
}
