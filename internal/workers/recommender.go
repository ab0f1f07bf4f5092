package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benvon/fictag/internal/logger"
	"github.com/benvon/fictag/internal/models"
	"github.com/benvon/fictag/internal/queue"
	"github.com/benvon/fictag/internal/services/ai"
)

// Submitter runs a recommendation submission for a work
type Submitter interface {
	Submit(ctx context.Context, work *models.Work) (*models.RecommendationSet, error)
}

// WorkResolver finds a work by its handle
type WorkResolver interface {
	Get(id uuid.UUID) (*models.Work, bool)
}

// ErrWorkNotFound is returned when a job names a work the catalog does not know
var ErrWorkNotFound = errors.New("work not found")

// Recommender processes recommend jobs from the queue
type Recommender struct {
	pipeline Submitter
	works    WorkResolver
	logger   *zap.Logger
}

// NewRecommender creates a new recommend job processor
func NewRecommender(pipeline Submitter, works WorkResolver, logger *zap.Logger) *Recommender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recommender{
		pipeline: pipeline,
		works:    works,
		logger:   logger,
	}
}

// ProcessJob handles one message. Successful jobs are acked; every failure
// is nacked without requeue so the job lands in the dead letter queue.
func (r *Recommender) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	if job == nil {
		r.nack(msg, nil)
		return errors.New("message has no job")
	}

	if err := r.process(ctx, job); err != nil {
		r.logger.Warn("recommend_job_failed",
			zap.String("job_id", job.ID.String()),
			zap.String("work_id", job.WorkID.String()),
			zap.String("error", logger.SanitizeError(err)),
			zap.Bool("rate_limited", ai.IsRateLimitError(err)),
		)
		r.nack(msg, job)
		return err
	}

	if err := msg.Ack(); err != nil {
		r.logger.Error("job_ack_failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
	}
	return nil
}

func (r *Recommender) process(ctx context.Context, job *queue.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.IsExpired() {
		return fmt.Errorf("job %s expired", job.ID)
	}

	work, ok := r.works.Get(job.WorkID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkNotFound, job.WorkID)
	}

	if job.RequestID != "" {
		ctx = ai.WithRequestID(ctx, job.RequestID)
	}

	set, err := r.pipeline.Submit(ctx, work)
	if err != nil {
		return fmt.Errorf("submit work %s: %w", work.ID, err)
	}

	r.logger.Info("recommend_job_completed",
		zap.String("job_id", job.ID.String()),
		zap.String("work_id", work.ID.String()),
		zap.Int("to_add", len(set.ToAdd)),
		zap.Int("to_remove", len(set.ToRemove)),
	)
	return nil
}

func (r *Recommender) nack(msg queue.MessageInterface, job *queue.Job) {
	if err := msg.Nack(false); err != nil {
		fields := []zap.Field{zap.Error(err)}
		if job != nil {
			fields = append(fields, zap.String("job_id", job.ID.String()))
		}
		r.logger.Error("job_nack_failed", fields...)
	}
}

// Run consumes jobs until ctx is cancelled or the delivery channel closes.
// Jobs are processed one at a time in delivery order.
func (r *Recommender) Run(ctx context.Context, q queue.JobQueue, prefetch int) error {
	msgs, errs, err := q.Consume(ctx, prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	r.logger.Info("recommend_worker_started", zap.Int("prefetch", prefetch))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("recommend_worker_stopped")
			return nil
		case err, ok := <-errs:
			if ok && err != nil {
				return fmt.Errorf("consumer error: %w", err)
			}
			errs = nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("consumer channel closed")
			}
			// Failures are already logged and dead-lettered
			_ = r.ProcessJob(ctx, msg)
		}
	}
}
