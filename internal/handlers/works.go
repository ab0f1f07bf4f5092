package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benvon/fictag/internal/logger"
	"github.com/benvon/fictag/internal/models"
	"github.com/benvon/fictag/internal/queue"
	"github.com/benvon/fictag/internal/recommend"
	"github.com/benvon/fictag/internal/request"
	"github.com/benvon/fictag/internal/services/ai"
	"github.com/benvon/fictag/internal/validation"
)

const (
	// DefaultPageSize is the default page size for listing works
	DefaultPageSize = 100
	// MaxPageSize is the maximum page size for listing works
	MaxPageSize = 500
	// DefaultJobTTL is how long a queued submission stays eligible for processing
	DefaultJobTTL = 15 * time.Minute
)

var errTrailingData = errors.New("request body must contain a single JSON object")

// Recommender is the recommendation surface the handlers need
type Recommender interface {
	Submit(ctx context.Context, work *models.Work) (*models.RecommendationSet, error)
	Lookup(workID uuid.UUID) (*models.RecommendationSet, bool)
	Remove(workID uuid.UUID) (*models.RecommendationSet, error)
	RemoveMany(workIDs []uuid.UUID) error
	Organize(workID uuid.UUID) (models.OrganizedTags, error)
	Render(workID uuid.UUID) (string, error)
}

// WorkStore holds submitted works by handle
type WorkStore interface {
	Add(work *models.Work)
	Get(id uuid.UUID) (*models.Work, bool)
	List() []*models.Work
}

// JobEnqueuer queues asynchronous submissions
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) error
}

// WorkHandler handles work and recommendation requests
type WorkHandler struct {
	pipeline Recommender
	works    WorkStore
	queue    JobEnqueuer
	jobTTL   time.Duration
	logger   *zap.Logger
}

// NewWorkHandler creates a new work handler. jobQueue may be nil, in which
// case async submissions are refused.
func NewWorkHandler(pipeline Recommender, works WorkStore, jobQueue JobEnqueuer, log *zap.Logger) *WorkHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkHandler{
		pipeline: pipeline,
		works:    works,
		queue:    jobQueue,
		jobTTL:   DefaultJobTTL,
		logger:   log,
	}
}

// RegisterRoutes registers work routes on the given router.
// The router should already carry the /api/v1 prefix.
func (h *WorkHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/works", h.ListWorks).Methods("GET")
	r.HandleFunc("/works", h.CreateWork).Methods("POST")
	r.HandleFunc("/works/{id}", h.GetWork).Methods("GET")
	r.HandleFunc("/works/{id}/recommendations", h.SubmitRecommendation).Methods("POST")
	r.HandleFunc("/works/{id}/recommendations", h.GetRecommendation).Methods("GET")
	r.HandleFunc("/works/{id}/recommendations", h.DeleteRecommendation).Methods("DELETE")
	r.HandleFunc("/works/{id}/recommendations/organized", h.OrganizeRecommendation).Methods("GET")
	r.HandleFunc("/works/{id}/recommendations/report", h.RenderRecommendation).Methods("GET")
	r.HandleFunc("/recommendations/remove", h.RemoveRecommendations).Methods("POST")
}

// CreateWorkRequest represents a create work request
type CreateWorkRequest struct {
	Title      string   `json:"title" validate:"required,notblank,max=500"`
	Body       string   `json:"body" validate:"required,notblank,max=500000"`
	AuthorTags []string `json:"author_tags" validate:"max=200,dive,tagname"`
}

// RemoveRecommendationsRequest represents a bulk removal request
type RemoveRecommendationsRequest struct {
	WorkIDs []uuid.UUID `json:"work_ids" validate:"required,min=1,max=1000"`
}

// ListWorksResponse represents the paginated response for listing works
type ListWorksResponse struct {
	Works      []*models.Work `json:"works"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// SubmissionAccepted is returned when a submission is queued
type SubmissionAccepted struct {
	JobID    uuid.UUID  `json:"job_id"`
	WorkID   uuid.UUID  `json:"work_id"`
	Status   string     `json:"status"`
	NotAfter *time.Time `json:"not_after,omitempty"`
}

// CreateWork registers a new work
func (h *WorkHandler) CreateWork(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body: "+err.Error())
		return
	}

	req.Title = validation.SanitizeText(req.Title)
	req.Body = validation.SanitizeText(req.Body)
	req.AuthorTags = validation.SanitizeTags(req.AuthorTags)

	if err := validation.Validate.Struct(req); err != nil {
		respondJSONErrorDetails(w, http.StatusBadRequest, "Bad Request", "Validation failed", validation.FieldErrors(err))
		return
	}

	work := models.NewWork(req.Title, req.Body, req.AuthorTags)
	h.works.Add(work)

	h.logger.Info("work_created",
		zap.String("work_id", work.ID.String()),
		zap.String("title", logger.SanitizeTitle(work.Title)),
		zap.Int("author_tags", len(work.AuthorTags)),
		zap.String("request_id", request.RequestID(r)),
	)

	respondJSON(w, http.StatusCreated, work)
}

// ListWorks lists works with pagination, oldest first
func (h *WorkHandler) ListWorks(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}

	pageSize := DefaultPageSize
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if parsed, err := strconv.Atoi(ps); err == nil && parsed > 0 {
			pageSize = min(parsed, MaxPageSize)
		}
	}

	all := h.works.List()
	total := len(all)
	start := min((page-1)*pageSize, total)
	end := min(start+pageSize, total)

	respondJSON(w, http.StatusOK, ListWorksResponse{
		Works:      all[start:end],
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: (total + pageSize - 1) / pageSize,
	})
}

// GetWork returns a single work
func (h *WorkHandler) GetWork(w http.ResponseWriter, r *http.Request) {
	work, ok := h.workFromPath(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, work)
}

// SubmitRecommendation runs the recommendation pipeline for a work, or
// queues it when async=true
func (h *WorkHandler) SubmitRecommendation(w http.ResponseWriter, r *http.Request) {
	work, ok := h.workFromPath(w, r)
	if !ok {
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.enqueue(w, r, work)
		return
	}

	ctx := ai.WithRequestID(r.Context(), request.RequestID(r))
	set, err := h.pipeline.Submit(ctx, work)
	if err != nil {
		h.respondRecommendError(w, r, work.ID, err)
		return
	}

	respondJSON(w, http.StatusOK, set)
}

func (h *WorkHandler) enqueue(w http.ResponseWriter, r *http.Request, work *models.Work) {
	if h.queue == nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Async submissions are not enabled")
		return
	}

	job := queue.NewRecommendJob(work.ID, h.jobTTL)
	job.RequestID = request.RequestID(r)
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.logger.Error("recommend_job_enqueue_failed",
			zap.String("work_id", work.ID.String()),
			zap.String("request_id", job.RequestID),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Failed to queue submission")
		return
	}

	h.logger.Info("recommend_job_enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("work_id", work.ID.String()),
		zap.String("request_id", job.RequestID),
	)

	respondJSON(w, http.StatusAccepted, SubmissionAccepted{
		JobID:    job.ID,
		WorkID:   work.ID,
		Status:   "queued",
		NotAfter: job.NotAfter,
	})
}

// GetRecommendation returns the current recommendation set for a work
func (h *WorkHandler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWorkID(w, r)
	if !ok {
		return
	}

	set, found := h.pipeline.Lookup(id)
	if !found {
		respondJSONError(w, http.StatusNotFound, "Not Found", "No recommendation set for work")
		return
	}

	respondJSON(w, http.StatusOK, set)
}

// DeleteRecommendation removes the recommendation set for a work and returns it
func (h *WorkHandler) DeleteRecommendation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWorkID(w, r)
	if !ok {
		return
	}

	set, err := h.pipeline.Remove(id)
	if err != nil {
		h.respondRecommendError(w, r, id, err)
		return
	}

	respondJSON(w, http.StatusOK, set)
}

// RemoveRecommendations removes the sets of several works in order,
// stopping at the first work without one
func (h *WorkHandler) RemoveRecommendations(w http.ResponseWriter, r *http.Request) {
	var req RemoveRecommendationsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body: "+err.Error())
		return
	}
	if err := validation.Validate.Struct(req); err != nil {
		respondJSONErrorDetails(w, http.StatusBadRequest, "Bad Request", "Validation failed", validation.FieldErrors(err))
		return
	}

	if err := h.pipeline.RemoveMany(req.WorkIDs); err != nil {
		if errors.Is(err, recommend.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to remove recommendation sets")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"removed": len(req.WorkIDs)})
}

// OrganizeRecommendation returns the set grouped by category
func (h *WorkHandler) OrganizeRecommendation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWorkID(w, r)
	if !ok {
		return
	}

	organized, err := h.pipeline.Organize(id)
	if err != nil {
		h.respondRecommendError(w, r, id, err)
		return
	}

	respondJSON(w, http.StatusOK, organized)
}

// RenderRecommendation returns the plain-text report for a work
func (h *WorkHandler) RenderRecommendation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseWorkID(w, r)
	if !ok {
		return
	}

	report, err := h.pipeline.Render(id)
	if err != nil {
		h.respondRecommendError(w, r, id, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(report)); err != nil {
		h.logger.Debug("report_write_failed", zap.Error(err))
	}
}

// respondRecommendError maps pipeline errors to HTTP statuses
func (h *WorkHandler) respondRecommendError(w http.ResponseWriter, r *http.Request, workID uuid.UUID, err error) {
	var invalid *recommend.InvalidRecommendationError
	var backendErr *recommend.BackendError

	switch {
	case errors.Is(err, recommend.ErrNotFound):
		respondJSONError(w, http.StatusNotFound, "Not Found", "No recommendation set for work")
	case errors.Is(err, recommend.ErrAlreadySubmitted):
		respondJSONError(w, http.StatusConflict, "Conflict", "Work already has a recommendation set")
	case errors.As(err, &invalid):
		respondJSONErrorDetails(w, http.StatusUnprocessableEntity, "Invalid Recommendation",
			fmt.Sprintf("Backend recommendation rejected with %d violation(s)", len(invalid.Violations)), invalid.Violations)
	case errors.Is(err, recommend.ErrMalformedResponse):
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Backend returned a malformed recommendation")
	case errors.As(err, &backendErr):
		h.respondBackendError(w, r, workID, backendErr)
	case errors.Is(err, recommend.ErrVocabularyUnavailable):
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Tag vocabulary is unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		respondJSONError(w, http.StatusGatewayTimeout, "Gateway Timeout", "Recommendation timed out")
	default:
		h.logger.Error("recommendation_request_failed",
			zap.String("work_id", workID.String()),
			zap.String("request_id", request.RequestID(r)),
			zap.String("error", logger.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Recommendation failed")
	}
}

func (h *WorkHandler) respondBackendError(w http.ResponseWriter, r *http.Request, workID uuid.UUID, err *recommend.BackendError) {
	h.logger.Warn("recommendation_backend_error",
		zap.String("work_id", workID.String()),
		zap.String("request_id", request.RequestID(r)),
		zap.String("error", logger.SanitizeError(err.Err)),
	)

	switch {
	case ai.IsQuotaError(err.Err):
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Generation backend quota exhausted")
	case ai.IsRateLimitError(err.Err):
		respondJSONError(w, http.StatusTooManyRequests, "Too Many Requests", "Generation backend is rate limited")
	default:
		respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Generation backend failed")
	}
}

func parseWorkID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid work ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *WorkHandler) workFromPath(w http.ResponseWriter, r *http.Request) (*models.Work, bool) {
	id, ok := parseWorkID(w, r)
	if !ok {
		return nil, false
	}
	work, found := h.works.Get(id)
	if !found {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Work not found")
		return nil, false
	}
	return work, true
}
