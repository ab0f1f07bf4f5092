package queue

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeRecommend asks for a recommendation set for one work
	JobTypeRecommend JobType = "recommend"
)

// Job represents a job in the queue
type Job struct {
	ID        uuid.UUID  `json:"id"`
	Type      JobType    `json:"type"`
	WorkID    uuid.UUID  `json:"work_id"`
	RequestID string     `json:"request_id,omitempty"`
	NotAfter  *time.Time `json:"not_after,omitempty"` // Latest time to process job (nil = no expiration)
	CreatedAt time.Time  `json:"created_at"`
}

// NewRecommendJob creates a recommend job for workID. A positive ttl sets
// NotAfter so stale submissions are dropped instead of processed.
func NewRecommendJob(workID uuid.UUID, ttl time.Duration) *Job {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.New(),
		Type:      JobTypeRecommend,
		WorkID:    workID,
		CreatedAt: now,
	}
	if ttl > 0 {
		notAfter := now.Add(ttl)
		job.NotAfter = &notAfter
	}
	return job
}

// Validate checks that the job carries what its type needs
func (j *Job) Validate() error {
	switch j.Type {
	case JobTypeRecommend:
		if j.WorkID == uuid.Nil {
			return errors.New("recommend job has no work_id")
		}
		return nil
	default:
		return errors.New("unknown job type: " + string(j.Type))
	}
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}

	return time.Now().After(*j.NotAfter)
}
