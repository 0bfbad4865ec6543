package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/VkTheEncoder/Anime4i/internal/domain"
	"github.com/VkTheEncoder/Anime4i/internal/repository"
)

// JobService is the subset of service.JobService the handler needs.
type JobService interface {
	Submit(ctx context.Context, text string) (*domain.Job, error)
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Job, error)
	Artifact(ctx context.Context, id domain.JobID) (string, error)
	Delete(ctx context.Context, id domain.JobID) error
	Stats(ctx context.Context) (*repository.QueueStats, error)
}

// JobHandler handles job-related HTTP requests.
type JobHandler struct {
	svc    JobService
	logger *slog.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(svc JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		svc:    svc,
		logger: logger,
	}
}

// SubmitRequest is the JSON request body for job submission. Text may be a
// bare URL or a free-form message containing one.
type SubmitRequest struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// JobResponse represents a job in API responses.
type JobResponse struct {
	*domain.Job
	Progress    float64 `json:"progress"`
	ArtifactURL string  `json:"artifact_url,omitempty"`
}

// ListResponse contains a page of jobs.
type ListResponse struct {
	Jobs   []JobResponse `json:"jobs"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func toJobResponse(job *domain.Job) JobResponse {
	resp := JobResponse{Job: job, Progress: job.Progress()}
	if job.State == domain.JobStateDelivered {
		resp.ArtifactURL = "/api/v1/jobs/" + string(job.ID) + "/artifact"
	}
	return resp
}

// Submit handles POST /api/v1/jobs
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		text = strings.TrimSpace(req.URL)
	}
	if text == "" {
		h.writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	job, err := h.svc.Submit(r.Context(), text)
	if err != nil {
		if errors.Is(err, domain.ErrUnrecognizedInput) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("submit failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	w.Header().Set("Location", "/api/v1/jobs/"+string(job.ID))
	h.writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

// List handles GET /api/v1/jobs
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	jobs, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	response := ListResponse{
		Jobs:   make([]JobResponse, 0, len(jobs)),
		Limit:  limit,
		Offset: offset,
	}
	for _, job := range jobs {
		response.Jobs = append(response.Jobs, toJobResponse(job))
	}

	h.writeJSON(w, http.StatusOK, response)
}

// Get handles GET /api/v1/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(chi.URLParam(r, "id"))

	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get job")
		return
	}

	h.writeJSON(w, http.StatusOK, toJobResponse(job))
}

// Artifact handles GET /api/v1/jobs/{id}/artifact
func (h *JobHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(chi.URLParam(r, "id"))

	path, err := h.svc.Artifact(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get artifact")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// Delete handles DELETE /api/v1/jobs/{id}
func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(chi.URLParam(r, "id"))

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to delete job")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *JobHandler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		h.writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrArtifactNotFound):
		h.writeError(w, http.StatusNotFound, "artifact not found")
	case errors.Is(err, domain.ErrJobNotTerminal):
		h.writeError(w, http.StatusConflict, "job has not finished")
	default:
		h.logger.Error(fallback, "error", err)
		h.writeError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *JobHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

func (h *JobHandler) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
