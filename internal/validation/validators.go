// Package validation holds the shared request validator and its custom rules.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// MaxTagLength bounds a single author tag
const MaxTagLength = 150

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New(validator.WithRequiredStructEnabled())

	if err := Validate.RegisterValidation("notblank", validateNotBlank); err != nil {
		panic(fmt.Sprintf("failed to register notblank validator: %v", err))
	}
	if err := Validate.RegisterValidation("tagname", validateTagName); err != nil {
		panic(fmt.Sprintf("failed to register tagname validator: %v", err))
	}
}

// validateNotBlank rejects strings that are empty after trimming whitespace
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// validateTagName accepts a single tag: non-blank, bounded, no control
// characters and no commas (commas separate tags in the vocabulary listing)
func validateTagName(fl validator.FieldLevel) bool {
	return ValidateTagName(fl.Field().String()) == nil
}

// ValidateTagName validates a single author tag value
func ValidateTagName(value string) error {
	trimmed := strings.TrimSpace(value)
	switch {
	case trimmed == "":
		return errors.New("tag must not be blank")
	case len(trimmed) > MaxTagLength:
		return fmt.Errorf("tag must be at most %d bytes", MaxTagLength)
	case strings.Contains(trimmed, ","):
		return fmt.Errorf("tag %q must not contain commas", trimmed)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return fmt.Errorf("tag %q contains control characters", trimmed)
		}
	}
	return nil
}

// SanitizeText trims whitespace and removes control characters other than newline and tab
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// SanitizeTags trims every tag and drops exact duplicates, keeping first occurrence order
func SanitizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// FieldError describes one failed validation rule in API responses
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// FieldErrors flattens validator errors for an API response. Other errors
// yield nil.
func FieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Namespace(), Rule: fe.Tag()})
	}
	return out
}
