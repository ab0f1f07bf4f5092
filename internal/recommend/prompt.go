package recommend

import (
	"strings"

	"github.com/benvon/fictag/internal/models"
	"github.com/benvon/fictag/internal/vocabulary"
)

const promptInstructions = `You are a helpful assistant that recommends fan fiction tags from an official tag list and helps authors refine the tags they already proposed.

Analyze the story and compare it to the author's proposed tags. Based on that:
1. Suggest new tags to add from the official list if they are clearly supported by the story.
2. Suggest tags to remove if the author proposed them but they are not clearly supported by the story.
3. Give a reason for every tag you add or remove.

CRITICAL RULES:
1. Only suggest adding tags that are present in the official list, using the type listed for them.
2. Tags must be grounded in the story text. Do not guess beyond what is present. The author's proposed tags are not evidence.
3. If a list has no entries, return it as an empty array ([]).
4. Output only the JSON object. No commentary, explanation or markdown.
5. NO DUPLICATION: do not suggest adding a tag that is already in the author's proposed tags.
6. Only suggest removing tags that appear in the author's proposed tags.
7. Do not suggest removing a tag just because it is non-standard or not in the official list.
8. Do not suggest removing tags because they are too specific.

For context, / marks romantic relationships and & marks platonic ones. M/M, F/M and F/F are romance categories and Gen is for platonic stories.
Readers often filter by relationship, so two characters being tagged does not mean the relationship tag should be removed.
`

const promptSchema = `Return your response as a JSON object with exactly this structure:
{
  "content": {
    "toAdd": [
      {"name": "TagName", "type": "TagType", "reason": "Why this tag should be added."}
    ],
    "toRemove": [
      {"name": "TagName", "type": "TagType", "reason": "Why this tag should be removed."}
    ]
  }
}

Return ONLY the JSON object.
`

// BuildPrompt assembles the generation prompt for work using the given
// vocabulary listing.
func BuildPrompt(work *models.Work, entries []models.VocabularyEntry) string {
	var b strings.Builder
	b.WriteString(promptInstructions)
	b.WriteString("\nOFFICIAL TAGS AS CATEGORY, NAME, NUMBER OF USES (ONLY THESE, DO NOT ADD OTHERS):\n")
	b.WriteString(vocabulary.FormatListing(entries))
	b.WriteString("\n")
	b.WriteString(promptSchema)
	b.WriteString("\nTitle:\n")
	b.WriteString(work.Title)
	b.WriteString("\n\nStory text:\n")
	b.WriteString(work.Body)
	b.WriteString("\n\nAuthor's proposed tags:\n")
	if len(work.AuthorTags) == 0 {
		b.WriteString("(none)")
	} else {
		b.WriteString(strings.Join(work.AuthorTags, "\n"))
	}
	b.WriteString("\n")
	return b.String()
}
