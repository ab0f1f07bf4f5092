package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/benvon/fictag/internal/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a work has no current recommendation set.
var ErrNotFound = errors.New("no recommendation set for work")

// WorkRegistry holds at most one recommendation set per work, keyed by the
// work's ID handle. It is safe for concurrent use.
type WorkRegistry struct {
	mu   sync.RWMutex
	sets map[uuid.UUID]*models.RecommendationSet
}

// New creates an empty registry.
func New() *WorkRegistry {
	return &WorkRegistry{
		sets: make(map[uuid.UUID]*models.RecommendationSet),
	}
}

// Lookup returns the current set for a work, if any.
func (r *WorkRegistry) Lookup(workID uuid.UUID) (*models.RecommendationSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.sets[workID]
	return set, ok
}

// Remove deletes and returns the set for a work.
func (r *WorkRegistry) Remove(workID uuid.UUID) (*models.RecommendationSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[workID]
	if !ok {
		return nil, fmt.Errorf("remove %s: %w", workID, ErrNotFound)
	}
	delete(r.sets, workID)
	return set, nil
}

// RemoveMany removes the sets for the given works in order. It stops at the
// first work without an entry; removals before it stay applied.
func (r *WorkRegistry) RemoveMany(workIDs []uuid.UUID) error {
	for _, id := range workIDs {
		if _, err := r.Remove(id); err != nil {
			return err
		}
	}
	return nil
}

// Store inserts or replaces the set for set.Work.
func (r *WorkRegistry) Store(set *models.RecommendationSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[set.Work.ID] = set
}

// StoreIfAbsent inserts the set only when the work has no entry yet.
// It reports whether the set was stored.
func (r *WorkRegistry) StoreIfAbsent(set *models.RecommendationSet) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sets[set.Work.ID]; exists {
		return false
	}
	r.sets[set.Work.ID] = set
	return true
}

// Len returns the number of works with a current set.
func (r *WorkRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets)
}
