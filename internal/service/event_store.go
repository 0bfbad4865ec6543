package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/VkTheEncoder/Anime4i/internal/domain"

	_ "modernc.org/sqlite"
)

const eventSchema = `
CREATE TABLE IF NOT EXISTS events (
	id        TEXT PRIMARY KEY,
	timestamp DATETIME NOT NULL,
	severity  TEXT NOT NULL,
	category  TEXT NOT NULL,
	message   TEXT NOT NULL,
	job_id    TEXT,
	source    TEXT,
	metadata  TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_job_id ON events(job_id);
`

// eventStore persists events to SQLite. Writes go through one goroutine so
// Emit never waits on the database.
type eventStore struct {
	db     *sql.DB
	writes chan domain.Event
	done   chan struct{}
	logger *slog.Logger
}

func openEventStore(path string, logger *slog.Logger) (*eventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(eventSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	st := &eventStore{
		db:     db,
		writes: make(chan domain.Event, 256),
		done:   make(chan struct{}),
		logger: logger,
	}
	go st.writeLoop()
	return st, nil
}

func (st *eventStore) writeLoop() {
	defer close(st.done)
	for e := range st.writes {
		if err := st.insert(e); err != nil {
			st.logger.Warn("failed to persist event", "event_id", e.ID, "job_id", e.JobID, "error", err)
		}
	}
}

func (st *eventStore) insert(e domain.Event) error {
	_, err := st.db.Exec(
		`INSERT INTO events (id, timestamp, severity, category, message, job_id, source, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), e.Timestamp.UTC(), string(e.Severity), string(e.Category), e.Message,
		nullable(string(e.JobID)), nullable(e.Source), nullable(string(e.Metadata)),
	)
	return err
}

// close flushes queued writes and closes the database.
func (st *eventStore) close() error {
	close(st.writes)
	<-st.done
	return st.db.Close()
}

func (st *eventStore) query(ctx context.Context, q domain.EventQuery) (*domain.EventQueryResult, error) {
	q = q.Normalized()
	where, args := whereClause(q.Filter)

	var total int
	if err := st.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	rows, err := st.db.QueryContext(ctx,
		"SELECT id, timestamp, severity, category, message, job_id, source, metadata FROM events"+
			where+" ORDER BY timestamp DESC LIMIT ? OFFSET ?",
		append(args, q.Limit, q.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0, q.Limit)
	for rows.Next() {
		var e domain.Event
		var jobID, source, metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Severity, &e.Category, &e.Message, &jobID, &source, &metadata); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.JobID = domain.JobID(jobID.String)
		e.Source = source.String
		if metadata.String != "" {
			e.Metadata = json.RawMessage(metadata.String)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return &domain.EventQueryResult{
		Events:  events,
		Total:   total,
		HasMore: q.Offset+len(events) < total,
	}, nil
}

func (st *eventStore) deleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := st.db.ExecContext(ctx, "DELETE FROM events WHERE timestamp < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	return res.RowsAffected()
}

// whereClause renders f as SQL. Search is a case-insensitive LIKE, which
// SQLite applies to ASCII only.
func whereClause(f domain.EventFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if f.Severity != nil {
		add("severity = ?", string(*f.Severity))
	}
	if f.Category != nil {
		add("category = ?", string(*f.Category))
	}
	if f.Source != "" {
		add("source = ?", f.Source)
	}
	if f.JobID != "" {
		add("job_id = ?", string(f.JobID))
	}
	if f.StartTime != nil {
		add("timestamp >= ?", f.StartTime.UTC())
	}
	if f.EndTime != nil {
		add("timestamp <= ?", f.EndTime.UTC())
	}
	if f.SearchText != "" {
		add("message LIKE ?", "%"+f.SearchText+"%")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
