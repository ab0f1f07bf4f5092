package recommend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/benvon/fictag/internal/registry"
)

var (
	// ErrNotFound is returned when a work has no current recommendation set.
	ErrNotFound = registry.ErrNotFound
	// ErrAlreadySubmitted is returned under PolicyReject when the work
	// already has a recommendation set.
	ErrAlreadySubmitted = errors.New("work already has a recommendation set")
	// ErrVocabularyUnavailable is returned when the controlled vocabulary
	// cannot be loaded or is empty.
	ErrVocabularyUnavailable = errors.New("vocabulary unavailable")
	// ErrMalformedResponse is returned when the backend response does not
	// contain a recommendation payload of the required shape.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// BackendError wraps an error raised by the generation backend.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return "generation backend: " + e.Err.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ViolationKind classifies a rejected tag.
type ViolationKind string

const (
	ViolationDuplication        ViolationKind = "duplication"
	ViolationUnsupportedRemoval ViolationKind = "unsupported_removal"
	ViolationMissingField       ViolationKind = "missing_field"
	ViolationOutOfVocabulary    ViolationKind = "out_of_vocabulary"
)

// TagList names which list of the response a violation came from.
type TagList string

const (
	ListToAdd    TagList = "to_add"
	ListToRemove TagList = "to_remove"
)

// Violation describes one tag that broke a recommendation rule.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	List    TagList       `json:"list"`
	Index   int           `json:"index"`
	Name    string        `json:"name"`
	Message string        `json:"message"`
}

// InvalidRecommendationError carries every violation found in a response.
type InvalidRecommendationError struct {
	Violations []Violation
}

func (e *InvalidRecommendationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message)
	}
	return fmt.Sprintf("invalid recommendation: %d violation(s): %s", len(e.Violations), strings.Join(msgs, "; "))
}

// Has reports whether any violation is of kind k.
func (e *InvalidRecommendationError) Has(k ViolationKind) bool {
	for _, v := range e.Violations {
		if v.Kind == k {
			return true
		}
	}
	return false
}
