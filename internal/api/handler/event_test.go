package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/VkTheEncoder/Anime4i/internal/domain"
	"github.com/VkTheEncoder/Anime4i/internal/service"
)

func newTestEventService(t *testing.T) *service.EventService {
	t.Helper()
	svc, err := service.NewEventService(service.EventServiceConfig{RingBufferSize: 100}, testLogger())
	if err != nil {
		t.Fatalf("NewEventService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestEventHandler_List_FilterByJob(t *testing.T) {
	svc := newTestEventService(t)
	svc.EmitJob("job_a", domain.EventSeverityInfo, domain.EventCategoryJob, "job submitted", nil)
	svc.EmitJob("job_b", domain.EventSeverityInfo, domain.EventCategoryJob, "job submitted", nil)
	svc.EmitJob("job_a", domain.EventSeverityError, domain.EventCategoryDownload, "job failed", nil)
	h := NewEventHandler(svc, testLogger())

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?job_id=job_a", 2},
		{"?job_id=job_a&severity=error", 1},
		{"?category=download", 1},
		{"?job_id=job_zzz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/events"+tt.query, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var resp EventListResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Events) != tt.want {
				t.Errorf("events = %d, want %d", len(resp.Events), tt.want)
			}
			for _, e := range resp.Events {
				if strings.Contains(tt.query, "job_id=job_a") && e.JobID != "job_a" {
					t.Errorf("event for %q leaked into job filter", e.JobID)
				}
			}
		})
	}
}

func TestEventHandler_Historical_Disabled(t *testing.T) {
	h := NewEventHandler(newTestEventService(t), testLogger())

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/events?historical=true", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp EventListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 0 {
		t.Errorf("events = %d, want 0 without persistence", len(resp.Events))
	}
}

func TestEventHandler_Stats(t *testing.T) {
	svc := newTestEventService(t)
	svc.EmitJob("job_a", domain.EventSeverityInfo, domain.EventCategoryJob, "job submitted", nil)
	svc.EmitJob("job_a", domain.EventSeveritySuccess, domain.EventCategoryDelivery, "job delivered", nil)
	h := NewEventHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/v1/events/stats", nil))

	var resp EventStatsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || resp.BySeverity["success"] != 1 {
		t.Errorf("stats = %+v", resp)
	}
	if resp.BufferSize != 100 {
		t.Errorf("buffer_size = %d, want 100", resp.BufferSize)
	}
}

func TestEventHandler_Categories(t *testing.T) {
	h := NewEventHandler(newTestEventService(t), testLogger())

	w := httptest.NewRecorder()
	h.Categories(w, httptest.NewRequest(http.MethodGet, "/api/v1/events/categories", nil))

	var resp map[string][]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := strings.Join(resp["categories"], ",")
	if got != "job,embed,playlist,download,remux,delivery,system" {
		t.Errorf("categories = %s", got)
	}
}

func TestEventHandler_Stream(t *testing.T) {
	svc := newTestEventService(t)
	h := NewEventHandler(svc, testLogger())

	srv := httptest.NewServer(http.HandlerFunc(h.Stream))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?job_id=job_a", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readData := func() string {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				return strings.TrimSpace(data)
			}
		}
	}

	if first := readData(); !strings.Contains(first, "subscriber_id") {
		t.Fatalf("first frame = %q", first)
	}

	svc.EmitJob("job_b", domain.EventSeverityInfo, domain.EventCategoryJob, "other job", nil)
	svc.EmitJob("job_a", domain.EventSeverityInfo, domain.EventCategoryJob, "job submitted", nil)

	var ev EventResponse
	if err := json.Unmarshal([]byte(readData()), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.JobID != "job_a" || ev.Message != "job submitted" {
		t.Errorf("event = %+v, want job_a submission", ev)
	}
}

func TestEventHandler_Stream_ReplaysJobBacklog(t *testing.T) {
	svc := newTestEventService(t)
	svc.EmitJob("job_a", domain.EventSeverityInfo, domain.EventCategoryJob, "job submitted", nil)
	svc.EmitJob("job_b", domain.EventSeverityInfo, domain.EventCategoryJob, "other job", nil)
	svc.EmitJob("job_a", domain.EventSeverityInfo, domain.EventCategoryPlaylist, "playlist resolved", nil)
	h := NewEventHandler(svc, testLogger())

	srv := httptest.NewServer(http.HandlerFunc(h.Stream))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?job_id=job_a", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	var frames []string
	for len(frames) < 3 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			frames = append(frames, strings.TrimSpace(data))
		}
	}

	want := []string{"job submitted", "playlist resolved"}
	for i, msg := range want {
		var ev EventResponse
		if err := json.Unmarshal([]byte(frames[i+1]), &ev); err != nil {
			t.Fatalf("decode frame %d: %v", i+1, err)
		}
		if ev.JobID != "job_a" || ev.Message != msg {
			t.Errorf("frame %d = %+v, want job_a %q", i+1, ev, msg)
		}
	}
}
