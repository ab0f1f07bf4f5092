package recommend

import (
	"strings"

	"github.com/benvon/fictag/internal/models"
)

const (
	sectionRule  = "======================="
	categoryRule = "-----------------------"
)

// Organize groups both lists of set by category, keeping first-seen
// category order and the order of tags within each category.
func Organize(set *models.RecommendationSet) models.OrganizedTags {
	return models.OrganizedTags{
		ToAdd:    groupByCategory(set.ToAdd),
		ToRemove: groupByCategory(set.ToRemove),
	}
}

func groupByCategory(tags []models.Tag) []models.TagGroup {
	groups := []models.TagGroup{}
	pos := make(map[string]int)
	for _, t := range tags {
		i, ok := pos[t.Type]
		if !ok {
			i = len(groups)
			pos[t.Type] = i
			groups = append(groups, models.TagGroup{Category: t.Type})
		}
		groups[i].Tags = append(groups[i].Tags, t)
	}
	return groups
}

// Render produces the human-readable report for set.
func Render(set *models.RecommendationSet) string {
	org := Organize(set)

	var b strings.Builder
	writeSection(&b, "Suggested tags:", org.ToAdd)
	b.WriteString("\n")
	writeSection(&b, "Tags to leave out:", org.ToRemove)
	return b.String()
}

func writeSection(b *strings.Builder, title string, groups []models.TagGroup) {
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(sectionRule)
	b.WriteString("\n")
	for _, g := range groups {
		b.WriteString("\n")
		b.WriteString(g.Category)
		b.WriteString(":\n")
		b.WriteString(categoryRule)
		b.WriteString("\n")
		for _, t := range g.Tags {
			b.WriteString(t.Name)
			b.WriteString(": ")
			b.WriteString(t.Reason)
			b.WriteString("\n")
		}
	}
}
