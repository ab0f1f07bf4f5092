package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/benvon/fictag/internal/models"
	"github.com/benvon/fictag/internal/vocabulary"
)

func TestVocabularyHandler_ListVocabulary(t *testing.T) {
	t.Parallel()

	entries := []models.VocabularyEntry{
		{Category: "fandom", Name: "Original Work", Uses: 120},
		{Category: "freeform", Name: "Angst", Uses: 5000},
		{Category: "freeform", Name: "Fluff", Uses: 4000},
	}

	tests := []struct {
		name       string
		source     vocabulary.Source
		query      string
		wantStatus int
		wantTotal  int
	}{
		{
			name:       "full listing",
			source:     vocabulary.SourceFunc(func(context.Context) ([]models.VocabularyEntry, error) { return entries, nil }),
			wantStatus: http.StatusOK,
			wantTotal:  3,
		},
		{
			name:       "category filter",
			source:     vocabulary.SourceFunc(func(context.Context) ([]models.VocabularyEntry, error) { return entries, nil }),
			query:      "?category=Freeform",
			wantStatus: http.StatusOK,
			wantTotal:  2,
		},
		{
			name:       "no matches",
			source:     vocabulary.SourceFunc(func(context.Context) ([]models.VocabularyEntry, error) { return entries, nil }),
			query:      "?category=warning",
			wantStatus: http.StatusOK,
			wantTotal:  0,
		},
		{
			name: "source failure",
			source: vocabulary.SourceFunc(func(context.Context) ([]models.VocabularyEntry, error) {
				return nil, errors.New("file not found")
			}),
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := mux.NewRouter()
			NewVocabularyHandler(tt.source, nil).RegisterRoutes(router.PathPrefix("/api/v1").Subrouter())

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/vocabulary"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp struct {
				Data VocabularyResponse `json:"data"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Data.Total != tt.wantTotal || len(resp.Data.Entries) != tt.wantTotal {
				t.Errorf("Expected %d entries, got total=%d len=%d", tt.wantTotal, resp.Data.Total, len(resp.Data.Entries))
			}
			if resp.Data.Entries == nil {
				t.Error("Expected entries to encode as an array, got null")
			}
		})
	}
}
