package recommend

import (
	"fmt"
	"strings"

	"github.com/benvon/fictag/internal/models"
	"github.com/benvon/fictag/internal/vocabulary"
)

// validate checks every candidate against the work and vocabulary and
// returns all violations found.
func validate(work *models.Work, add, remove []rawTag, vocab *vocabulary.Index) []Violation {
	var out []Violation

	for i, t := range add {
		out = append(out, missingFields(ListToAdd, i, t)...)
		if t.Name == "" {
			continue
		}
		if work.HasAuthorTag(t.Name) {
			out = append(out, Violation{
				Kind:    ViolationDuplication,
				List:    ListToAdd,
				Index:   i,
				Name:    t.Name,
				Message: fmt.Sprintf("tag %q is already one of the author's tags", t.Name),
			})
		}
		if strings.TrimSpace(t.Type) != "" && !vocab.Contains(t.Type, t.Name) {
			out = append(out, Violation{
				Kind:    ViolationOutOfVocabulary,
				List:    ListToAdd,
				Index:   i,
				Name:    t.Name,
				Message: fmt.Sprintf("tag %q is not listed under %q in the vocabulary", t.Name, t.Type),
			})
		}
	}

	for i, t := range remove {
		out = append(out, missingFields(ListToRemove, i, t)...)
		if t.Name == "" {
			continue
		}
		if !work.HasAuthorTag(t.Name) {
			out = append(out, Violation{
				Kind:    ViolationUnsupportedRemoval,
				List:    ListToRemove,
				Index:   i,
				Name:    t.Name,
				Message: fmt.Sprintf("tag %q cannot be removed because the author did not propose it", t.Name),
			})
		}
	}

	return out
}

func missingFields(list TagList, index int, t rawTag) []Violation {
	var out []Violation
	for _, f := range []struct {
		field string
		value string
	}{
		{"name", t.Name},
		{"type", t.Type},
		{"reason", t.Reason},
	} {
		if strings.TrimSpace(f.value) != "" {
			continue
		}
		out = append(out, Violation{
			Kind:    ViolationMissingField,
			List:    list,
			Index:   index,
			Name:    t.Name,
			Message: fmt.Sprintf("%s[%d] has no %s", list, index, f.field),
		})
	}
	return out
}

// toTags converts accepted candidates, spelling each category the way the
// vocabulary does so grouping never splits on case.
func toTags(raw []rawTag, vocab *vocabulary.Index) []models.Tag {
	tags := make([]models.Tag, 0, len(raw))
	for _, r := range raw {
		category := r.Type
		if c, ok := vocab.Category(r.Type); ok {
			category = c
		}
		tags = append(tags, models.Tag{Name: r.Name, Type: category, Reason: r.Reason})
	}
	return tags
}
