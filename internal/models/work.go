package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Work is a piece of creative writing submitted for tagging.
// Identity is the ID handle assigned by NewWork, not the content: two works
// with the same title, body and tags are tracked separately.
type Work struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	AuthorTags []string  `json:"author_tags"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewWork creates a work with a fresh identity handle.
// The tag slice is copied so later changes by the caller are not observed.
func NewWork(title, body string, authorTags []string) *Work {
	tags := slices.Clone(authorTags)
	if tags == nil {
		tags = []string{}
	}
	return &Work{
		ID:         uuid.New(),
		Title:      title,
		Body:       body,
		AuthorTags: tags,
		CreatedAt:  time.Now().UTC(),
	}
}

// HasAuthorTag reports whether name is one of the author's own tags (exact match).
func (w *Work) HasAuthorTag(name string) bool {
	return slices.Contains(w.AuthorTags, name)
}
