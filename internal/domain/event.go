package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// EventID identifies one entry in the event log.
type EventID string

// EventSeverity ranks an event.
type EventSeverity string

const (
	EventSeverityInfo    EventSeverity = "info"
	EventSeverityWarning EventSeverity = "warning"
	EventSeverityError   EventSeverity = "error"
	EventSeveritySuccess EventSeverity = "success"
)

// EventCategory names the pipeline stage an event belongs to.
type EventCategory string

const (
	EventCategoryJob      EventCategory = "job"
	EventCategoryEmbed    EventCategory = "embed"
	EventCategoryPlaylist EventCategory = "playlist"
	EventCategoryDownload EventCategory = "download"
	EventCategoryRemux    EventCategory = "remux"
	EventCategoryDelivery EventCategory = "delivery"
	EventCategorySystem   EventCategory = "system"
)

// Event is a status signal. Job events carry the job they describe; system
// events leave JobID empty.
type Event struct {
	ID        EventID         `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Severity  EventSeverity   `json:"severity"`
	Category  EventCategory   `json:"category"`
	Message   string          `json:"message"`
	JobID     JobID           `json:"job_id,omitempty"`
	Source    string          `json:"source,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// EventMetadata is structured detail attached to an event.
type EventMetadata map[string]any

// ToJSON encodes m, returning nil for empty or unencodable metadata.
func (m EventMetadata) ToJSON() json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return data
}

// EventEmitter receives events from the pipeline.
type EventEmitter interface {
	Emit(event Event)
	EmitJob(jobID JobID, severity EventSeverity, category EventCategory, message string, metadata EventMetadata)
}

// EventFilter selects events. Zero fields match everything.
type EventFilter struct {
	Severity   *EventSeverity `json:"severity,omitempty"`
	Category   *EventCategory `json:"category,omitempty"`
	Source     string         `json:"source,omitempty"`
	JobID      JobID          `json:"job_id,omitempty"`
	StartTime  *time.Time     `json:"start_time,omitempty"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	SearchText string         `json:"search_text,omitempty"`
}

// Matches reports whether e satisfies every set field of f.
// SearchText matches case-insensitively against the message.
func (f EventFilter) Matches(e Event) bool {
	switch {
	case f.Severity != nil && e.Severity != *f.Severity:
		return false
	case f.Category != nil && e.Category != *f.Category:
		return false
	case f.Source != "" && e.Source != f.Source:
		return false
	case f.JobID != "" && e.JobID != f.JobID:
		return false
	case f.StartTime != nil && e.Timestamp.Before(*f.StartTime):
		return false
	case f.EndTime != nil && e.Timestamp.After(*f.EndTime):
		return false
	case f.SearchText != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(f.SearchText)):
		return false
	}
	return true
}

// Event query page sizes.
const (
	DefaultEventLimit = 50
	MaxEventLimit     = 200
)

// EventQuery is a filtered page of events, newest first.
type EventQuery struct {
	Filter EventFilter `json:"filter"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// Normalized returns q with Limit clamped to (0, MaxEventLimit] and a
// non-negative Offset.
func (q EventQuery) Normalized() EventQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultEventLimit
	}
	if q.Limit > MaxEventLimit {
		q.Limit = MaxEventLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// EventQueryResult is one page of a query.
type EventQueryResult struct {
	Events  []Event `json:"events"`
	Total   int     `json:"total"`
	HasMore bool    `json:"has_more"`
}

// PageEvents cuts the page q selects out of matched, which holds every
// matching event in order.
func PageEvents(matched []Event, q EventQuery) *EventQueryResult {
	q = q.Normalized()
	total := len(matched)
	if q.Offset >= total {
		return &EventQueryResult{Events: []Event{}, Total: total}
	}
	end := min(q.Offset+q.Limit, total)
	return &EventQueryResult{
		Events:  matched[q.Offset:end],
		Total:   total,
		HasMore: end < total,
	}
}
