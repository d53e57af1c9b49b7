package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	sqlitemigrate "github.com/stagecraft-live/stagecraft/internal/platform/storage/sqlitemigrate"
	"github.com/stagecraft-live/stagecraft/internal/storage"
	"github.com/stagecraft-live/stagecraft/internal/storage/sqlite/migrations"
	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

const timeFormat = time.RFC3339Nano

// Store provides a SQLite-backed store implementing the storage interfaces.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutPlotState replaces the snapshot for the state's session.
func (s *Store) PutPlotState(ctx context.Context, state *domain.PlotState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if state == nil {
		return fmt.Errorf("plot state is required")
	}
	if err := state.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal plot state: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO plot_states (session_id, node_idx, total_turns, payload, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    node_idx = excluded.node_idx,
    total_turns = excluded.total_turns,
    payload = excluded.payload,
    updated_at = excluded.updated_at`,
		state.SessionID,
		state.NodeIdx,
		state.TotalTurns,
		string(payload),
		state.CreatedAt.UTC().Format(timeFormat),
		state.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("put plot state: %w", err)
	}
	return nil
}

// GetPlotState loads a session's snapshot.
func (s *Store) GetPlotState(ctx context.Context, sessionID string) (*domain.PlotState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}

	var payload string
	row := s.sqlDB.QueryRowContext(ctx, `SELECT payload FROM plot_states WHERE session_id = ?`, sessionID)
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get plot state: %w", err)
	}

	var state domain.PlotState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("unmarshal plot state: %w", err)
	}
	if state.LastSelected == nil {
		state.LastSelected = make(map[string]int)
	}
	return &state, nil
}

// ListSessions returns session summaries ordered by most recent update.
func (s *Store) ListSessions(ctx context.Context) ([]storage.SessionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT session_id, node_idx, total_turns, updated_at
FROM plot_states
ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []storage.SessionSummary
	for rows.Next() {
		var summary storage.SessionSummary
		var updatedAt string
		if err := rows.Scan(&summary.SessionID, &summary.NodeIdx, &summary.TotalTurns, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		summary.UpdatedAt, err = time.Parse(timeFormat, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse session updated_at: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// AppendTranscript stores the entry with the next per-session sequence.
func (s *Store) AppendTranscript(ctx context.Context, entry storage.TranscriptEntry) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(entry.SessionID) == "" {
		return 0, fmt.Errorf("session id is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transcript append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq uint64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM transcript_entries WHERE session_id = ?`,
		entry.SessionID,
	)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("next transcript seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO transcript_entries (session_id, seq, kind, speaker, body, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		seq,
		entry.Kind,
		entry.Speaker,
		entry.Body,
		entry.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("append transcript: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transcript append: %w", err)
	}
	return seq, nil
}

// ListTranscript returns entries after the given sequence, ascending.
func (s *Store) ListTranscript(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]storage.TranscriptEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT session_id, seq, kind, speaker, body, created_at
FROM transcript_entries
WHERE session_id = ? AND seq > ?
ORDER BY seq ASC
LIMIT ?`, sessionID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcript: %w", err)
	}
	defer rows.Close()

	var entries []storage.TranscriptEntry
	for rows.Next() {
		var entry storage.TranscriptEntry
		var createdAt string
		if err := rows.Scan(&entry.SessionID, &entry.Seq, &entry.Kind, &entry.Speaker, &entry.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcript entry: %w", err)
		}
		entry.CreatedAt, err = time.Parse(timeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse transcript created_at: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// AppendTelemetryEvent persists one operational telemetry record.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	attributes := "{}"
	if len(evt.Attributes) > 0 {
		encoded, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("marshal telemetry attributes: %w", err)
		}
		attributes = string(encoded)
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (ts, event_name, severity, session_id, trace_id, span_id, attributes)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evt.Timestamp.UTC().Format(timeFormat),
		evt.EventName,
		evt.Severity,
		evt.SessionID,
		evt.TraceID,
		evt.SpanID,
		attributes,
	)
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
