package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/VkTheEncoder/Anime4i/internal/api/handler"
	"github.com/VkTheEncoder/Anime4i/internal/config"
	"github.com/VkTheEncoder/Anime4i/internal/domain"
	"github.com/VkTheEncoder/Anime4i/internal/repository"
	"github.com/VkTheEncoder/Anime4i/internal/service"
)

type stubJobService struct{}

func (stubJobService) Submit(ctx context.Context, text string) (*domain.Job, error) {
	ref, ok := domain.Classify(text, nil)
	if !ok {
		return nil, domain.ErrUnrecognizedInput
	}
	return domain.NewJob("job_1", ref), nil
}

func (stubJobService) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	return nil, domain.ErrJobNotFound
}

func (stubJobService) List(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	return nil, nil
}

func (stubJobService) Artifact(ctx context.Context, id domain.JobID) (string, error) {
	return "", domain.ErrJobNotFound
}

func (stubJobService) Delete(ctx context.Context, id domain.JobID) error {
	return domain.ErrJobNotFound
}

func (stubJobService) Stats(ctx context.Context) (*repository.QueueStats, error) {
	return &repository.QueueStats{}, nil
}

func newTestRouter(t *testing.T, cfg config.ServerConfig) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	events, err := service.NewEventService(service.EventServiceConfig{}, logger)
	if err != nil {
		t.Fatalf("NewEventService: %v", err)
	}
	t.Cleanup(func() { events.Close() })

	return NewRouter(
		handler.NewJobHandler(stubJobService{}, logger),
		handler.NewHealthHandler(repository.NewInMemoryJobRepository(), t.TempDir()),
		handler.NewEventHandler(events, logger),
		cfg,
		logger,
	)
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t, config.ServerConfig{APIKey: "secret"})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		key        string
		wantStatus int
	}{
		{"health open", http.MethodGet, "/health", "", "", http.StatusOK},
		{"ready open", http.MethodGet, "/ready", "", "", http.StatusOK},
		{"clean path", http.MethodGet, "//ready", "", "", http.StatusOK},
		{"metrics open", http.MethodGet, "/metrics", "", "", http.StatusOK},
		{"api needs key", http.MethodGet, "/api/v1/jobs", "", "", http.StatusUnauthorized},
		{"list jobs", http.MethodGet, "/api/v1/jobs", "", "secret", http.StatusOK},
		{"submit", http.MethodPost, "/api/v1/jobs", `{"text":"https://a.example/x.m3u8"}`, "secret", http.StatusAccepted},
		{"submit junk", http.MethodPost, "/api/v1/jobs", `{"text":"hello"}`, "secret", http.StatusUnprocessableEntity},
		{"missing job", http.MethodGet, "/api/v1/jobs/nope", "", "secret", http.StatusNotFound},
		{"delete missing", http.MethodDelete, "/api/v1/jobs/nope", "", "secret", http.StatusNotFound},
		{"events", http.MethodGet, "/api/v1/events", "", "secret", http.StatusOK},
		{"stats", http.MethodGet, "/api/v1/stats", "", "secret", http.StatusOK},
		{"unknown", http.MethodGet, "/api/v1/tweets", "", "secret", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_SubmitRateLimited(t *testing.T) {
	router := newTestRouter(t, config.ServerConfig{SubmitRPS: 0.001, SubmitBurst: 1})

	submit := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(`{"text":"https://a.example/x.m3u8"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if got := submit(); got != http.StatusAccepted {
		t.Fatalf("first submit = %d, want 202", got)
	}
	if got := submit(); got != http.StatusTooManyRequests {
		t.Errorf("second submit = %d, want 429", got)
	}

	// Reads are not limited.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	if w.Code != http.StatusOK {
		t.Errorf("list = %d, want 200", w.Code)
	}
}
