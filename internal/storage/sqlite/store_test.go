package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stagecraft-live/stagecraft/internal/storage"
	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "stagecraft.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testPlotState(t *testing.T, sessionID string) *domain.PlotState {
	t.Helper()
	state, err := domain.NewPlotState(domain.NewPlotStateInput{
		DirectorGoal: "slow-burn at the night market",
	}, func() time.Time {
		return time.Date(2026, 2, 14, 20, 0, 0, 0, time.UTC)
	}, func() (string, error) { return sessionID, nil })
	if err != nil {
		t.Fatalf("new plot state: %v", err)
	}
	return state
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestPlotStateRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	state := testPlotState(t, "sess1")
	state.IncrementTurn()
	state.LastSelected["a1"] = 1
	state.CriticVerdict = &domain.CriticVerdict{Why: "needs one more beat"}

	if err := store.PutPlotState(ctx, state); err != nil {
		t.Fatalf("put plot state: %v", err)
	}

	loaded, err := store.GetPlotState(ctx, "sess1")
	if err != nil {
		t.Fatalf("get plot state: %v", err)
	}
	if loaded.SessionID != "sess1" || loaded.TotalTurns != 1 {
		t.Fatalf("unexpected loaded state: %+v", loaded)
	}
	if loaded.LastSelected["a1"] != 1 {
		t.Fatalf("speaker map lost: %+v", loaded.LastSelected)
	}
	if loaded.CriticVerdict == nil || loaded.CriticVerdict.Why != "needs one more beat" {
		t.Fatalf("verdict lost: %+v", loaded.CriticVerdict)
	}
	if err := loaded.Validate(); err != nil {
		t.Fatalf("loaded state invalid: %v", err)
	}
}

func TestPutPlotStateReplacesSnapshot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	state := testPlotState(t, "sess1")
	if err := store.PutPlotState(ctx, state); err != nil {
		t.Fatalf("put plot state: %v", err)
	}
	state.IncrementTurn()
	state.IncrementTurn()
	if err := store.PutPlotState(ctx, state); err != nil {
		t.Fatalf("update plot state: %v", err)
	}

	loaded, err := store.GetPlotState(ctx, "sess1")
	if err != nil {
		t.Fatalf("get plot state: %v", err)
	}
	if loaded.TotalTurns != 2 {
		t.Fatalf("expected replaced snapshot, got %d turns", loaded.TotalTurns)
	}
}

func TestGetPlotStateNotFound(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.GetPlotState(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := testPlotState(t, "sess1")
	first.UpdatedAt = time.Date(2026, 2, 14, 20, 0, 0, 0, time.UTC)
	second := testPlotState(t, "sess2")
	second.UpdatedAt = time.Date(2026, 2, 14, 21, 0, 0, 0, time.UTC)
	for _, state := range []*domain.PlotState{first, second} {
		if err := store.PutPlotState(ctx, state); err != nil {
			t.Fatalf("put plot state: %v", err)
		}
	}

	summaries, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(summaries))
	}
	if summaries[0].SessionID != "sess2" {
		t.Fatalf("expected most recent first, got %q", summaries[0].SessionID)
	}
}

func TestTranscriptAppendAssignsSequences(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i, body := range []string{"one", "two", "three"} {
		seq, err := store.AppendTranscript(ctx, storage.TranscriptEntry{
			SessionID: "sess1",
			Kind:      storage.TranscriptKindNarration,
			Body:      body,
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if seq != uint64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, seq)
		}
	}

	// Sequences are per session.
	seq, err := store.AppendTranscript(ctx, storage.TranscriptEntry{
		SessionID: "sess2",
		Kind:      storage.TranscriptKindCharacter,
		Speaker:   "a1",
		Body:      "hello",
	})
	if err != nil {
		t.Fatalf("append other session: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected fresh sequence for new session, got %d", seq)
	}
}

func TestListTranscriptPagination(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three", "four"} {
		if _, err := store.AppendTranscript(ctx, storage.TranscriptEntry{
			SessionID: "sess1",
			Kind:      storage.TranscriptKindNarration,
			Body:      body,
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := store.ListTranscript(ctx, "sess1", 1, 2)
	if err != nil {
		t.Fatalf("list transcript: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Body != "two" || entries[1].Body != "three" {
		t.Fatalf("unexpected page: %+v", entries)
	}
}

func TestAppendTelemetryEvent(t *testing.T) {
	store := openTestStore(t)

	err := store.AppendTelemetryEvent(context.Background(), storage.TelemetryEvent{
		EventName: "story.advanced",
		Severity:  "INFO",
		SessionID: "sess1",
		Attributes: map[string]any{
			"node_idx": 1,
		},
	})
	if err != nil {
		t.Fatalf("append telemetry: %v", err)
	}
}
