package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/benvon/fictag/internal/models"
	"github.com/benvon/fictag/internal/queue"
	"github.com/benvon/fictag/internal/recommend"
	"github.com/benvon/fictag/internal/registry"
	"github.com/benvon/fictag/internal/services/ai"
)

// mockRecommender is a hand-written Recommender with call tracking
type mockRecommender struct {
	mu          sync.Mutex
	submitErr   error
	submitCalls int
	sets        map[uuid.UUID]*models.RecommendationSet
	removeMany  [][]uuid.UUID
}

func newMockRecommender() *mockRecommender {
	return &mockRecommender{sets: make(map[uuid.UUID]*models.RecommendationSet)}
}

func (m *mockRecommender) Submit(ctx context.Context, work *models.Work) (*models.RecommendationSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitCalls++
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	set := &models.RecommendationSet{
		Work:     work,
		ToAdd:    []models.Tag{{Name: "Hurt/Comfort", Type: "freeform", Reason: "the second act"}},
		ToRemove: []models.Tag{},
	}
	m.sets[work.ID] = set
	return set, nil
}

func (m *mockRecommender) Lookup(workID uuid.UUID) (*models.RecommendationSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[workID]
	return set, ok
}

func (m *mockRecommender) Remove(workID uuid.UUID) (*models.RecommendationSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[workID]
	if !ok {
		return nil, recommend.ErrNotFound
	}
	delete(m.sets, workID)
	return set, nil
}

func (m *mockRecommender) RemoveMany(workIDs []uuid.UUID) error {
	m.mu.Lock()
	m.removeMany = append(m.removeMany, workIDs)
	m.mu.Unlock()
	for _, id := range workIDs {
		if _, err := m.Remove(id); err != nil {
			return fmt.Errorf("work %s: %w", id, err)
		}
	}
	return nil
}

func (m *mockRecommender) Organize(workID uuid.UUID) (models.OrganizedTags, error) {
	set, ok := m.Lookup(workID)
	if !ok {
		return models.OrganizedTags{}, recommend.ErrNotFound
	}
	return recommend.Organize(set), nil
}

func (m *mockRecommender) Render(workID uuid.UUID) (string, error) {
	set, ok := m.Lookup(workID)
	if !ok {
		return "", recommend.ErrNotFound
	}
	return recommend.Render(set), nil
}

// mockEnqueuer records queued jobs
type mockEnqueuer struct {
	mu   sync.Mutex
	err  error
	jobs []*queue.Job
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

type workHandlerFixture struct {
	router   *mux.Router
	pipeline *mockRecommender
	works    *registry.WorkCatalog
	queue    *mockEnqueuer
}

func newWorkHandlerFixture(withQueue bool) *workHandlerFixture {
	f := &workHandlerFixture{
		router:   mux.NewRouter(),
		pipeline: newMockRecommender(),
		works:    registry.NewWorkCatalog(),
	}
	var enqueuer JobEnqueuer
	if withQueue {
		f.queue = &mockEnqueuer{}
		enqueuer = f.queue
	}
	h := NewWorkHandler(f.pipeline, f.works, enqueuer, nil)
	h.RegisterRoutes(f.router.PathPrefix("/api/v1").Subrouter())
	return f
}

func (f *workHandlerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *workHandlerFixture) addWork(tags ...string) *models.Work {
	work := models.NewWork("The Long Way Home", "Alex waits at the station.", tags)
	f.works.Add(work)
	return work
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func TestWorkHandler_CreateWork(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{
			name:       "valid work",
			body:       map[string]any{"title": "  Title ", "body": "Body text", "author_tags": []string{"Angst", " Angst", "Fluff"}},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing body",
			body:       map[string]any{"title": "Title"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "blank title",
			body:       map[string]any{"title": "   ", "body": "Body"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "tag with comma",
			body:       map[string]any{"title": "T", "body": "B", "author_tags": []string{"a, b"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       map[string]any{"title": "T", "body": "B", "rating": "M"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newWorkHandlerFixture(false)
			w := f.do(newTestRequest(http.MethodPost, "/api/v1/works", tt.body))

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus != http.StatusCreated {
				return
			}

			var resp struct {
				Data models.Work `json:"data"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Data.Title != "Title" {
				t.Errorf("Expected trimmed title, got %q", resp.Data.Title)
			}
			if len(resp.Data.AuthorTags) != 2 {
				t.Errorf("Expected duplicate tags collapsed, got %v", resp.Data.AuthorTags)
			}
			if _, ok := f.works.Get(resp.Data.ID); !ok {
				t.Error("Expected work to be added to the catalog")
			}
		})
	}
}

func TestWorkHandler_ListAndGetWork(t *testing.T) {
	t.Parallel()

	f := newWorkHandlerFixture(false)
	first := f.addWork()
	f.addWork()
	f.addWork()

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/works?page=2&page_size=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var list struct {
		Data ListWorksResponse `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if list.Data.Total != 3 || list.Data.TotalPages != 2 || len(list.Data.Works) != 1 {
		t.Errorf("Unexpected page: total=%d pages=%d works=%d", list.Data.Total, list.Data.TotalPages, len(list.Data.Works))
	}

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/works/"+first.ID.String(), nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/works/"+uuid.NewString(), nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown work, got %d", w.Code)
	}

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/works/not-a-uuid", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for malformed ID, got %d", w.Code)
	}
}

func TestWorkHandler_SubmitErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "already submitted", err: recommend.ErrAlreadySubmitted, wantStatus: http.StatusConflict, wantError: "Conflict"},
		{name: "malformed", err: fmt.Errorf("%w: no JSON object", recommend.ErrMalformedResponse), wantStatus: http.StatusBadGateway, wantError: "Bad Gateway"},
		{name: "vocabulary", err: fmt.Errorf("%w: open tags.csv", recommend.ErrVocabularyUnavailable), wantStatus: http.StatusServiceUnavailable, wantError: "Service Unavailable"},
		{name: "backend failure", err: &recommend.BackendError{Err: errors.New("connection reset")}, wantStatus: http.StatusBadGateway, wantError: "Bad Gateway"},
		{name: "backend rate limited", err: &recommend.BackendError{Err: &ai.APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}}, wantStatus: http.StatusTooManyRequests, wantError: "Too Many Requests"},
		{name: "backend quota", err: &recommend.BackendError{Err: &ai.APIError{StatusCode: http.StatusTooManyRequests, Code: "insufficient_quota", IsPermanent: true}}, wantStatus: http.StatusServiceUnavailable, wantError: "Service Unavailable"},
		{name: "deadline", err: context.DeadlineExceeded, wantStatus: http.StatusGatewayTimeout, wantError: "Gateway Timeout"},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantError: "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newWorkHandlerFixture(false)
			f.pipeline.submitErr = tt.err
			work := f.addWork()

			w := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/works/"+work.ID.String()+"/recommendations", nil))
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			body := decodeEnvelope(t, w)
			if body["error"] != tt.wantError {
				t.Errorf("Expected error %q, got %v", tt.wantError, body["error"])
			}
		})
	}
}

func TestWorkHandler_SubmitInvalidRecommendation(t *testing.T) {
	t.Parallel()

	f := newWorkHandlerFixture(false)
	f.pipeline.submitErr = &recommend.InvalidRecommendationError{Violations: []recommend.Violation{
		{Kind: recommend.ViolationDuplication, List: recommend.ListToAdd, Name: "Angst", Message: "already an author tag"},
		{Kind: recommend.ViolationUnsupportedRemoval, List: recommend.ListToRemove, Index: 0, Name: "Fluff", Message: "not an author tag"},
	}}
	work := f.addWork("Angst")

	w := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/works/"+work.ID.String()+"/recommendations", nil))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", w.Code)
	}

	body := decodeEnvelope(t, w)
	details, ok := body["details"].([]any)
	if !ok || len(details) != 2 {
		t.Fatalf("Expected 2 violations in details, got %v", body["details"])
	}
	first, _ := details[0].(map[string]any)
	if first["kind"] != string(recommend.ViolationDuplication) {
		t.Errorf("Expected first violation kind duplication, got %v", first["kind"])
	}
}

func TestWorkHandler_RecommendationLifecycle(t *testing.T) {
	t.Parallel()

	f := newWorkHandlerFixture(false)
	work := f.addWork("Angst")
	base := "/api/v1/works/" + work.ID.String() + "/recommendations"

	if w := f.do(httptest.NewRequest(http.MethodGet, base, nil)); w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 before submit, got %d", w.Code)
	}

	if w := f.do(httptest.NewRequest(http.MethodPost, base, nil)); w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on submit, got %d: %s", w.Code, w.Body.String())
	}

	if w := f.do(httptest.NewRequest(http.MethodGet, base, nil)); w.Code != http.StatusOK {
		t.Errorf("Expected 200 on lookup, got %d", w.Code)
	}

	w := f.do(httptest.NewRequest(http.MethodGet, base+"/organized", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on organize, got %d", w.Code)
	}
	var organized struct {
		Data models.OrganizedTags `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&organized); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(organized.Data.ToAdd) != 1 || organized.Data.ToAdd[0].Category != "freeform" {
		t.Errorf("Unexpected organized tags: %+v", organized.Data)
	}

	w = f.do(httptest.NewRequest(http.MethodGet, base+"/report", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on report, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Expected text/plain report, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "Hurt/Comfort: the second act") {
		t.Errorf("Report missing tag line: %q", w.Body.String())
	}

	if w := f.do(httptest.NewRequest(http.MethodDelete, base, nil)); w.Code != http.StatusOK {
		t.Errorf("Expected 200 on delete, got %d", w.Code)
	}
	if w := f.do(httptest.NewRequest(http.MethodDelete, base, nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", w.Code)
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, base+"/report", nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on report after delete, got %d", w.Code)
	}
}

func TestWorkHandler_RemoveRecommendations(t *testing.T) {
	t.Parallel()

	f := newWorkHandlerFixture(false)
	a, b := f.addWork(), f.addWork()
	for _, work := range []*models.Work{a, b} {
		if _, err := f.pipeline.Submit(context.Background(), work); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	missing := uuid.New()
	w := f.do(newTestRequest(http.MethodPost, "/api/v1/recommendations/remove",
		map[string]any{"work_ids": []uuid.UUID{a.ID, missing, b.ID}}))
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 when one ID is absent, got %d", w.Code)
	}
	if _, ok := f.pipeline.Lookup(a.ID); ok {
		t.Error("Expected removal before the miss to stay applied")
	}
	if _, ok := f.pipeline.Lookup(b.ID); !ok {
		t.Error("Expected removal after the miss not to happen")
	}

	w = f.do(newTestRequest(http.MethodPost, "/api/v1/recommendations/remove",
		map[string]any{"work_ids": []uuid.UUID{b.ID}}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = f.do(newTestRequest(http.MethodPost, "/api/v1/recommendations/remove", map[string]any{"work_ids": []string{}}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty work_ids, got %d", w.Code)
	}

	w = f.do(newTestRequest(http.MethodPost, "/api/v1/recommendations/remove", map[string]any{"work_ids": []string{"nope"}}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed work ID, got %d", w.Code)
	}
}

func TestWorkHandler_AsyncSubmit(t *testing.T) {
	t.Parallel()

	t.Run("queued", func(t *testing.T) {
		t.Parallel()

		f := newWorkHandlerFixture(true)
		work := f.addWork()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/works/"+work.ID.String()+"/recommendations?async=true", nil)
		w := f.do(req)
		if w.Code != http.StatusAccepted {
			t.Fatalf("Expected status 202, got %d", w.Code)
		}
		if len(f.queue.jobs) != 1 {
			t.Fatalf("Expected 1 queued job, got %d", len(f.queue.jobs))
		}
		job := f.queue.jobs[0]
		if job.WorkID != work.ID || job.Type != queue.JobTypeRecommend {
			t.Errorf("Unexpected job: %+v", job)
		}
		if job.NotAfter == nil {
			t.Error("Expected queued job to carry a NotAfter deadline")
		}
		if f.pipeline.submitCalls != 0 {
			t.Error("Expected no synchronous submit for async requests")
		}
	})

	t.Run("queue failure", func(t *testing.T) {
		t.Parallel()

		f := newWorkHandlerFixture(true)
		f.queue.err = errors.New("channel closed")
		work := f.addWork()

		w := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/works/"+work.ID.String()+"/recommendations?async=1", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()

		f := newWorkHandlerFixture(false)
		work := f.addWork()

		w := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/works/"+work.ID.String()+"/recommendations?async=true", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}
