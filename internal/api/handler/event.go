package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/VkTheEncoder/Anime4i/internal/domain"
	"github.com/VkTheEncoder/Anime4i/internal/service"
)

const sseKeepalive = 30 * time.Second

// EventHandler serves the job event log.
type EventHandler struct {
	eventSvc *service.EventService
	logger   *slog.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(eventSvc *service.EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		eventSvc: eventSvc,
		logger:   logger,
	}
}

// EventResponse represents an event in API responses.
type EventResponse struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Severity  string          `json:"severity"`
	Category  string          `json:"category"`
	Message   string          `json:"message"`
	JobID     string          `json:"job_id,omitempty"`
	Source    string          `json:"source,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// EventListResponse contains paginated event list.
type EventListResponse struct {
	Events  []EventResponse `json:"events"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	HasMore bool            `json:"has_more"`
}

// EventStatsResponse contains event service statistics.
type EventStatsResponse struct {
	Total          int            `json:"total"`
	BySeverity     map[string]int `json:"by_severity"`
	BufferSize     int            `json:"buffer_size"`
	BufferUsed     int            `json:"buffer_used"`
	SSESubscribers int            `json:"sse_subscribers"`
	SQLiteEnabled  bool           `json:"sqlite_enabled"`
}

func toEventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:        string(e.ID),
		Timestamp: e.Timestamp,
		Severity:  string(e.Severity),
		Category:  string(e.Category),
		Message:   e.Message,
		JobID:     string(e.JobID),
		Source:    e.Source,
		Metadata:  e.Metadata,
	}
}

// parseEventQuery reads filters and paging from the query string. Malformed
// values are ignored.
func parseEventQuery(r *http.Request) domain.EventQuery {
	q := r.URL.Query()
	var query domain.EventQuery

	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		query.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil {
		query.Offset = n
	}

	f := &query.Filter
	if v := q.Get("severity"); v != "" {
		sev := domain.EventSeverity(v)
		f.Severity = &sev
	}
	if v := q.Get("category"); v != "" {
		cat := domain.EventCategory(v)
		f.Category = &cat
	}
	f.Source = q.Get("source")
	f.JobID = domain.JobID(q.Get("job_id"))
	f.SearchText = q.Get("search")
	if t, err := time.Parse(time.RFC3339, q.Get("start_time")); err == nil {
		f.StartTime = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("end_time")); err == nil {
		f.EndTime = &t
	}

	return query.Normalized()
}

// List handles GET /api/v1/events
//
// Filters: severity, category, job_id, source, search, start_time and
// end_time (RFC3339). Paging: limit (default 50, max 200) and offset.
// historical=true reads from SQLite instead of the in-memory buffer.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	query := parseEventQuery(r)

	var (
		result *domain.EventQueryResult
		err    error
	)
	if r.URL.Query().Get("historical") == "true" {
		result, err = h.eventSvc.QueryHistorical(r.Context(), query)
	} else {
		result, err = h.eventSvc.Query(r.Context(), query)
	}
	if err != nil {
		h.logger.Error("failed to query events", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to query events"})
		return
	}

	response := EventListResponse{
		Events:  make([]EventResponse, 0, len(result.Events)),
		Total:   result.Total,
		Limit:   query.Limit,
		Offset:  query.Offset,
		HasMore: result.HasMore,
	}
	for _, e := range result.Events {
		response.Events = append(response.Events, toEventResponse(e))
	}

	writeJSON(w, http.StatusOK, response)
}

// Stats handles GET /api/v1/events/stats
func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.eventSvc.Stats()
	events := h.eventSvc.GetRecent(stats.BufferSize)

	bySeverity := map[string]int{
		string(domain.EventSeverityInfo):    0,
		string(domain.EventSeverityWarning): 0,
		string(domain.EventSeverityError):   0,
		string(domain.EventSeveritySuccess): 0,
	}
	for _, e := range events {
		bySeverity[string(e.Severity)]++
	}

	writeJSON(w, http.StatusOK, EventStatsResponse{
		Total:          len(events),
		BySeverity:     bySeverity,
		BufferSize:     stats.BufferSize,
		BufferUsed:     stats.BufferUsed,
		SSESubscribers: stats.SSESubscribers,
		SQLiteEnabled:  stats.SQLiteEnabled,
	})
}

// Categories handles GET /api/v1/events/categories
func (h *EventHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories := []string{
		string(domain.EventCategoryJob),
		string(domain.EventCategoryEmbed),
		string(domain.EventCategoryPlaylist),
		string(domain.EventCategoryDownload),
		string(domain.EventCategoryRemux),
		string(domain.EventCategoryDelivery),
		string(domain.EventCategorySystem),
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": categories})
}

// Stream handles GET /api/v1/events/stream as Server-Sent Events.
// With job_id set, the stream carries only that job's events and starts by
// replaying the ones still buffered, oldest first.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	// The server's WriteTimeout would otherwise cut the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	jobID := domain.JobID(r.URL.Query().Get("job_id"))

	// Subscribe before replaying so nothing falls between the two.
	subID, eventCh := h.eventSvc.Subscribe()
	defer h.eventSvc.Unsubscribe(subID)

	logger := h.logger.With("subscriber_id", subID, "job_id", jobID)
	logger.Info("SSE client connected", "remote_addr", r.RemoteAddr)

	fmt.Fprintf(w, "event: connected\ndata: {\"subscriber_id\": %d}\n\n", subID)

	replayed := make(map[domain.EventID]bool)
	if jobID != "" {
		backlog := h.eventSvc.GetRecent(h.eventSvc.Stats().BufferSize)
		slices.Reverse(backlog)
		for _, e := range backlog {
			if e.JobID != jobID {
				continue
			}
			replayed[e.ID] = true
			h.writeEvent(w, e, logger)
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Info("SSE client disconnected")
			return

		case e, ok := <-eventCh:
			if !ok {
				return
			}
			if jobID != "" && e.JobID != jobID {
				continue
			}
			if replayed[e.ID] {
				delete(replayed, e.ID)
				continue
			}
			h.writeEvent(w, e, logger)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (h *EventHandler) writeEvent(w http.ResponseWriter, e domain.Event, logger *slog.Logger) {
	data, err := json.Marshal(toEventResponse(e))
	if err != nil {
		logger.Warn("failed to serialize event", "event_id", e.ID, "error", err)
		return
	}
	fmt.Fprintf(w, "id: %s\nevent: event\ndata: %s\n\n", e.ID, data)
}
