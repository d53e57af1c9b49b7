package storage

import (
	"context"
	"errors"
	"time"

	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// StateStore persists plot state snapshots keyed by session ID. Put replaces
// any existing snapshot for the session.
type StateStore interface {
	PutPlotState(ctx context.Context, state *domain.PlotState) error
	GetPlotState(ctx context.Context, sessionID string) (*domain.PlotState, error)
	ListSessions(ctx context.Context) ([]SessionSummary, error)
}

// SessionSummary is a lightweight listing row for session pickers.
type SessionSummary struct {
	SessionID  string    `json:"session_id"`
	NodeIdx    int       `json:"node_idx"`
	TotalTurns int       `json:"total_turns"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Transcript entry kinds. Narration and character speech stay distinct all
// the way to the client.
const (
	TranscriptKindNarration = "narration"
	TranscriptKindCharacter = "character"
)

// TranscriptEntry is one dispatched story event. Seq is assigned by the store
// on append and is strictly increasing per session.
type TranscriptEntry struct {
	SessionID string    `json:"session_id"`
	Seq       uint64    `json:"seq"`
	Kind      string    `json:"kind"`
	Speaker   string    `json:"speaker,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptStore persists the ordered story transcript.
type TranscriptStore interface {
	// AppendTranscript stores the entry and returns its assigned sequence.
	AppendTranscript(ctx context.Context, entry TranscriptEntry) (uint64, error)
	// ListTranscript returns entries with seq > afterSeq, ascending, capped
	// at limit.
	ListTranscript(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]TranscriptEntry, error)
}

// TelemetryEvent captures operational observations emitted during turn
// execution.
type TelemetryEvent struct {
	Timestamp  time.Time
	EventName  string
	Severity   string
	SessionID  string
	TraceID    string
	SpanID     string
	Attributes map[string]any
}

// TelemetryStore persists operational telemetry records for audits and
// incident analysis.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
}

// Store is the full persistence surface a deployment provides.
type Store interface {
	StateStore
	TranscriptStore
	TelemetryStore
	Close() error
}
