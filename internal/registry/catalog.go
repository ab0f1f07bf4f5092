package registry

import (
	"slices"
	"sync"

	"github.com/benvon/fictag/internal/models"
	"github.com/google/uuid"
)

// WorkCatalog resolves work ID handles back to the works created in this process.
type WorkCatalog struct {
	mu    sync.RWMutex
	works map[uuid.UUID]*models.Work
}

// NewWorkCatalog creates an empty catalog.
func NewWorkCatalog() *WorkCatalog {
	return &WorkCatalog{works: make(map[uuid.UUID]*models.Work)}
}

// Add records a work under its ID.
func (c *WorkCatalog) Add(work *models.Work) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.works[work.ID] = work
}

// Get returns the work with the given ID.
func (c *WorkCatalog) Get(id uuid.UUID) (*models.Work, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.works[id]
	return w, ok
}

// List returns all works, oldest first.
func (c *WorkCatalog) List() []*models.Work {
	c.mu.RLock()
	out := make([]*models.Work, 0, len(c.works))
	for _, w := range c.works {
		out = append(out, w)
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Work) int {
		if d := a.CreatedAt.Compare(b.CreatedAt); d != 0 {
			return d
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out
}
