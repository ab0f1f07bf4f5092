package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/fictag/internal/logger"
	"github.com/benvon/fictag/internal/models"
	"github.com/benvon/fictag/internal/vocabulary"
)

// VocabularyHandler serves the controlled tag vocabulary
type VocabularyHandler struct {
	source vocabulary.Source
	logger *zap.Logger
}

// NewVocabularyHandler creates a new vocabulary handler
func NewVocabularyHandler(source vocabulary.Source, log *zap.Logger) *VocabularyHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &VocabularyHandler{source: source, logger: log}
}

// RegisterRoutes registers vocabulary routes on the /api/v1 router
func (h *VocabularyHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/vocabulary", h.ListVocabulary).Methods("GET")
}

// VocabularyResponse represents the vocabulary listing
type VocabularyResponse struct {
	Entries []models.VocabularyEntry `json:"entries"`
	Total   int                      `json:"total"`
}

// ListVocabulary returns the vocabulary, optionally filtered by ?category=
func (h *VocabularyHandler) ListVocabulary(w http.ResponseWriter, r *http.Request) {
	entries, err := h.source.Load(r.Context())
	if err != nil {
		h.logger.Error("vocabulary_load_failed", zap.String("error", logger.SanitizeError(err)))
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Tag vocabulary is unavailable")
		return
	}

	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		entries = vocabulary.Filter(entries, category)
	}
	if entries == nil {
		entries = []models.VocabularyEntry{}
	}

	respondJSON(w, http.StatusOK, VocabularyResponse{Entries: entries, Total: len(entries)})
}
