package models

// VocabularyEntry is one row of the controlled tag vocabulary.
type VocabularyEntry struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Uses     int    `json:"uses"`
}
