package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/VkTheEncoder/Anime4i/internal/domain"
)

func jobRouter(h *JobHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/jobs", h.Submit)
	r.Get("/api/v1/jobs", h.List)
	r.Get("/api/v1/jobs/{id}", h.Get)
	r.Get("/api/v1/jobs/{id}/artifact", h.Artifact)
	r.Delete("/api/v1/jobs/{id}", h.Delete)
	return r
}

func TestJobHandler_Submit(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		submitErr  error
		wantStatus int
	}{
		{"playlist text", `{"text":"https://cdn.example.com/a.m3u8"}`, nil, http.StatusAccepted},
		{"url field", `{"url":"https://cdn.example.com/a.m3u8"}`, nil, http.StatusAccepted},
		{"empty text", `{"text":"  "}`, nil, http.StatusBadRequest},
		{"invalid json", `{"text":`, nil, http.StatusBadRequest},
		{"unrecognized", `{"text":"hello there"}`, domain.ErrUnrecognizedInput, http.StatusUnprocessableEntity},
		{"service failure", `{"text":"https://cdn.example.com/a.m3u8"}`, errors.New("queue full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockJobService()
			svc.submitErr = tt.submitErr
			router := jobRouter(NewJobHandler(svc, testLogger()))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusAccepted {
				return
			}

			if loc := w.Header().Get("Location"); loc != "/api/v1/jobs/job_new" {
				t.Errorf("Location = %q", loc)
			}
			var resp JobResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.ID != "job_new" || resp.State != domain.JobStatePending {
				t.Errorf("job = %+v", resp.Job)
			}
		})
	}
}

func TestJobHandler_Get(t *testing.T) {
	svc := newMockJobService(deliveredJob("job_done"))
	router := jobRouter(NewJobHandler(svc, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job_done", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp JobResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Progress != 1 {
		t.Errorf("progress = %v, want 1", resp.Progress)
	}
	if resp.ArtifactURL != "/api/v1/jobs/job_done/artifact" {
		t.Errorf("artifact_url = %q", resp.ArtifactURL)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", w.Code)
	}
}

func TestJobHandler_List(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", 50, 0},
		{"?limit=10&offset=20", 10, 20},
		{"?limit=1000", 50, 0},
		{"?limit=-1&offset=-5", 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			svc := newMockJobService(deliveredJob("job_a"))
			router := jobRouter(NewJobHandler(svc, testLogger()))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs"+tt.query, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if svc.lastLimit != tt.wantLimit || svc.lastOffset != tt.wantOffset {
				t.Errorf("limit/offset = %d/%d, want %d/%d", svc.lastLimit, svc.lastOffset, tt.wantLimit, tt.wantOffset)
			}

			var resp ListResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Jobs) != 1 {
				t.Errorf("jobs = %d, want 1", len(resp.Jobs))
			}
		})
	}
}

func TestJobHandler_List_Error(t *testing.T) {
	svc := newMockJobService()
	svc.listErr = errors.New("boom")
	router := jobRouter(NewJobHandler(svc, testLogger()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestJobHandler_Artifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job_done.mp4")
	if err := os.WriteFile(path, []byte("mp4data"), 0o644); err != nil {
		t.Fatal(err)
	}

	pending := domain.NewJob("job_pending", domain.StreamReference{Kind: domain.KindDirectPlaylist, URL: "https://x/a.m3u8"})
	svc := newMockJobService(deliveredJob("job_done"), pending)
	svc.artifact = path
	router := jobRouter(NewJobHandler(svc, testLogger()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job_done/artifact", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "mp4data" {
		t.Errorf("body = %q", w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "job_done.mp4") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job_pending/artifact", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("pending artifact status = %d, want 404", w.Code)
	}
}

func TestJobHandler_Delete(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		deleteErr  error
		wantStatus int
	}{
		{"delivered", "job_done", nil, http.StatusNoContent},
		{"missing", "job_missing", nil, http.StatusNotFound},
		{"running", "job_done", domain.ErrJobNotTerminal, http.StatusConflict},
		{"failure", "job_done", errors.New("disk"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockJobService(deliveredJob("job_done"))
			svc.deleteErr = tt.deleteErr
			router := jobRouter(NewJobHandler(svc, testLogger()))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+tt.id, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
