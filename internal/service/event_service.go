package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VkTheEncoder/Anime4i/internal/config"
	"github.com/VkTheEncoder/Anime4i/internal/domain"
)

// EventServiceConfig configures the event service.
type EventServiceConfig struct {
	// RingBufferSize is the number of events to keep in memory.
	// Default: 1000
	RingBufferSize int

	// SQLitePath enables persistence when non-empty.
	SQLitePath string

	// RetentionDays is how long to keep events in SQLite (0 = forever).
	RetentionDays int
}

// EventServiceConfigFrom maps the events section of the app config.
func EventServiceConfigFrom(cfg config.EventsConfig) EventServiceConfig {
	return EventServiceConfig{
		RingBufferSize: cfg.RingBufferSize,
		SQLitePath:     cfg.SQLitePath,
		RetentionDays:  cfg.RetentionDays,
	}
}

const subscriberBuffer = 100

// EventService is the job event log: a ring of recent events, live
// subscribers for SSE, and an optional SQLite history.
type EventService struct {
	cfg    EventServiceConfig
	logger *slog.Logger
	seq    atomic.Uint64

	mu   sync.RWMutex
	ring []domain.Event
	next int
	size int

	store *eventStore

	subMu  sync.RWMutex
	subs   map[uint64]chan domain.Event
	subSeq uint64
	closed bool
}

// NewEventService creates a new event service.
func NewEventService(cfg EventServiceConfig, logger *slog.Logger) (*EventService, error) {
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 1000
	}

	svc := &EventService{
		cfg:    cfg,
		logger: logger,
		ring:   make([]domain.Event, cfg.RingBufferSize),
		subs:   make(map[uint64]chan domain.Event),
	}

	if cfg.SQLitePath != "" {
		store, err := openEventStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		svc.store = store
		logger.Info("event persistence enabled", "path", cfg.SQLitePath)
	}

	return svc, nil
}

// Close flushes pending writes, ends every subscription and closes the
// database. Events emitted afterwards are kept in memory only.
func (s *EventService) Close() error {
	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		return nil
	}
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()

	if s.store != nil {
		return s.store.close()
	}
	return nil
}

// Emit stamps e with an ID and time when missing, then records and
// broadcasts it.
func (s *EventService) Emit(e domain.Event) {
	if e.ID == "" {
		e.ID = domain.EventID(fmt.Sprintf("evt_%d_%d", time.Now().UnixNano(), s.seq.Add(1)))
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.ring[s.next] = e
	s.next = (s.next + 1) % len(s.ring)
	s.size = min(s.size+1, len(s.ring))
	s.mu.Unlock()

	s.broadcast(e)

	level := slog.LevelDebug
	switch e.Severity {
	case domain.EventSeverityWarning:
		level = slog.LevelWarn
	case domain.EventSeverityError:
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "event",
		"event_id", e.ID,
		"job_id", e.JobID,
		"category", e.Category,
		"severity", e.Severity,
		"message", e.Message,
	)
}

// EmitJob records an event about one job.
func (s *EventService) EmitJob(jobID domain.JobID, severity domain.EventSeverity, category domain.EventCategory, message string, metadata domain.EventMetadata) {
	s.Emit(domain.Event{
		Severity: severity,
		Category: category,
		JobID:    jobID,
		Source:   "job",
		Message:  message,
		Metadata: metadata.ToJSON(),
	})
}

// EmitSystem records an event that belongs to no job.
func (s *EventService) EmitSystem(severity domain.EventSeverity, source, message string, metadata domain.EventMetadata) {
	s.Emit(domain.Event{
		Severity: severity,
		Category: domain.EventCategorySystem,
		Source:   source,
		Message:  message,
		Metadata: metadata.ToJSON(),
	})
}

// broadcast hands e to the store and every subscriber. A stalled store or a
// slow subscriber misses events rather than block the pipeline.
func (s *EventService) broadcast(e domain.Event) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	if s.closed {
		return
	}

	if s.store != nil {
		select {
		case s.store.writes <- e:
		default:
			s.logger.Warn("event store backlog full, event not persisted", "event_id", e.ID, "job_id", e.JobID)
		}
	}
	for id, ch := range s.subs {
		select {
		case ch <- e:
		default:
			s.logger.Warn("SSE subscriber buffer full, dropping event", "subscriber_id", id, "event_id", e.ID)
		}
	}
}

// newest returns up to n buffered events, newest first, that satisfy keep.
// n <= 0 means no limit.
func (s *EventService) newest(n int, keep func(domain.Event) bool) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Event, 0, s.size)
	for i := 1; i <= s.size; i++ {
		e := s.ring[(s.next-i+len(s.ring))%len(s.ring)]
		if keep != nil && !keep(e) {
			continue
		}
		out = append(out, e)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// Query pages through buffered events matching the filter, newest first.
func (s *EventService) Query(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	return domain.PageEvents(s.newest(0, query.Filter.Matches), query), nil
}

// QueryHistorical runs the query against SQLite. Without persistence the
// result is empty.
func (s *EventService) QueryHistorical(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	if s.store == nil {
		return &domain.EventQueryResult{Events: []domain.Event{}}, nil
	}
	return s.store.query(ctx, query)
}

// GetRecent returns the most recent n events (50 when n <= 0).
func (s *EventService) GetRecent(n int) []domain.Event {
	if n <= 0 {
		n = domain.DefaultEventLimit
	}
	return s.newest(n, nil)
}

// Subscribe registers a live subscriber. The caller must Unsubscribe.
func (s *EventService) Subscribe() (uint64, <-chan domain.Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.subSeq++
	ch := make(chan domain.Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return s.subSeq, ch
	}
	s.subs[s.subSeq] = ch

	s.logger.Info("SSE subscriber added", "subscriber_id", s.subSeq, "total_subscribers", len(s.subs))
	return s.subSeq, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *EventService) Unsubscribe(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
		s.logger.Info("SSE subscriber removed", "subscriber_id", id, "total_subscribers", len(s.subs))
	}
}

// SubscriberCount returns the number of live subscribers.
func (s *EventService) SubscriberCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subs)
}

// EventStats describes the event service's buffer and subscribers.
type EventStats struct {
	BufferSize     int  `json:"buffer_size"`
	BufferUsed     int  `json:"buffer_used"`
	SSESubscribers int  `json:"sse_subscribers"`
	SQLiteEnabled  bool `json:"sqlite_enabled"`
}

// Stats returns statistics about the event service.
func (s *EventService) Stats() EventStats {
	s.mu.RLock()
	used := s.size
	s.mu.RUnlock()

	return EventStats{
		BufferSize:     len(s.ring),
		BufferUsed:     used,
		SSESubscribers: s.SubscriberCount(),
		SQLiteEnabled:  s.store != nil,
	}
}

// CleanupOldEvents deletes persisted events older than the retention period.
func (s *EventService) CleanupOldEvents(ctx context.Context) error {
	if s.store == nil || s.cfg.RetentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	deleted, err := s.store.deleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.logger.Info("cleaned up old events", "deleted", deleted, "cutoff", cutoff)
	}
	return nil
}
