package models

import "time"

// Tag is a single recommended tag. Type is the vocabulary category the name
// belongs to (fandom, character, relationship, ...); Reason justifies the
// recommendation to the author.
type Tag struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// RecommendationSet is the accepted result of one generation run for a work.
// Sets are immutable once stored; a resubmission replaces the whole set.
type RecommendationSet struct {
	Work      *Work     `json:"work"`
	ToAdd     []Tag     `json:"to_add"`
	ToRemove  []Tag     `json:"to_remove"`
	CreatedAt time.Time `json:"created_at"`
}

// TagGroup holds the tags of one category, in insertion order.
type TagGroup struct {
	Category string `json:"category"`
	Tags     []Tag  `json:"tags"`
}

// OrganizedTags is a recommendation set grouped by category.
// Groups appear in first-seen category order.
type OrganizedTags struct {
	ToAdd    []TagGroup `json:"to_add"`
	ToRemove []TagGroup `json:"to_remove"`
}
