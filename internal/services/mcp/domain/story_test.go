package domain

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stagecraft-live/stagecraft/internal/storage"
	storydomain "github.com/stagecraft-live/stagecraft/internal/story/domain"
	"github.com/stagecraft-live/stagecraft/internal/story/engine"
	"github.com/stagecraft-live/stagecraft/internal/story/generate"
)

type fakeStoryService struct {
	status      engine.Status
	turn        engine.TurnResult
	entries     []storage.TranscriptEntry
	summaries   []storage.SessionSummary
	err         error
	lastPatch   storydomain.ControlsPatch
	lastSession string
	lastInput   storydomain.NewPlotStateInput
}

func (f *fakeStoryService) CreateSession(_ context.Context, input storydomain.NewPlotStateInput) (engine.Status, error) {
	f.lastInput = input
	return f.status, f.err
}

func (f *fakeStoryService) Status(_ context.Context, sessionID string) (engine.Status, error) {
	f.lastSession = sessionID
	return f.status, f.err
}

func (f *fakeStoryService) ListSessions(_ context.Context) ([]storage.SessionSummary, error) {
	return f.summaries, f.err
}

func (f *fakeStoryService) RunTurn(_ context.Context, sessionID string, _ engine.TurnInput) (engine.TurnResult, error) {
	f.lastSession = sessionID
	return f.turn, f.err
}

func (f *fakeStoryService) UpdateControls(_ context.Context, sessionID string, patch storydomain.ControlsPatch) (engine.Status, error) {
	f.lastSession = sessionID
	f.lastPatch = patch
	return f.status, f.err
}

func (f *fakeStoryService) SetDirectorGoal(_ context.Context, sessionID, _ string) (engine.Status, error) {
	f.lastSession = sessionID
	return f.status, f.err
}

func (f *fakeStoryService) Reset(_ context.Context, sessionID string, input storydomain.NewPlotStateInput) (engine.Status, error) {
	f.lastSession = sessionID
	f.lastInput = input
	return f.status, f.err
}

func (f *fakeStoryService) Transcript(_ context.Context, sessionID string, _ uint64, _ int) ([]storage.TranscriptEntry, error) {
	f.lastSession = sessionID
	return f.entries, f.err
}

func testStatus() engine.Status {
	return engine.Status{
		SessionID:  "sess-1",
		Beat:       "Setup + Spark",
		NodeIdx:    0,
		NodeCount:  9,
		NodeTurns:  2,
		TotalTurns: 2,
		Controls:   storydomain.DefaultControls(),
		Quality:    storydomain.QualityFlags{PlotStallRisk: 0.25},
	}
}

func TestSessionCreateHandlerReturnsStatus(t *testing.T) {
	svc := &fakeStoryService{status: testStatus()}
	handler := SessionCreateHandler(svc)

	_, result, err := handler(context.Background(), nil, SessionCreateInput{DirectorGoal: "slow burn", Pace: "fast"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.SessionID != "sess-1" {
		t.Fatalf("session id = %q, want sess-1", result.SessionID)
	}
	if svc.lastInput.Controls == nil || svc.lastInput.Controls.Pace != storydomain.PaceFast {
		t.Fatalf("service received controls %+v, want fast pace", svc.lastInput.Controls)
	}
}

func TestSessionCreateHandlerRejectsUnknownPace(t *testing.T) {
	handler := SessionCreateHandler(&fakeStoryService{status: testStatus()})

	_, _, err := handler(context.Background(), nil, SessionCreateInput{DirectorGoal: "slow burn", Pace: "ludicrous"})
	if err == nil {
		t.Fatal("expected error for unknown pace")
	}
}

func TestTurnHandlerMapsResult(t *testing.T) {
	svc := &fakeStoryService{
		turn: engine.TurnResult{
			Plan:    storydomain.TurnPlan{Narration: "The room seems to lean in."},
			Speaker: storydomain.CharacterProfile{ID: "mara", Name: "Mara"},
			Output: generate.GenerationOutput{
				Utterance: "I kept your seat.",
				Action:    "She slides the chair out.",
			},
			Advanced:        true,
			BridgeNarration: "The scene shifts.",
			Decision:        storydomain.AdvanceDecision{Reason: "2/2 exit conditions evidenced"},
			Verdict:         &storydomain.CriticVerdict{ApproveAdvance: true, Why: "earned"},
			Status:          testStatus(),
		},
	}

	handler := TurnHandler(svc)
	_, result, err := handler(context.Background(), nil, TurnInput{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if svc.lastSession != "sess-1" {
		t.Fatalf("service session = %q, want sess-1", svc.lastSession)
	}
	if result.Speaker != "Mara" {
		t.Fatalf("speaker = %q, want Mara", result.Speaker)
	}
	if result.Utterance != "I kept your seat." {
		t.Fatalf("utterance = %q", result.Utterance)
	}
	if !result.Advanced || result.BridgeNarration == "" {
		t.Fatalf("advance fields not mapped: %+v", result)
	}
	if result.CriticWhy != "earned" {
		t.Fatalf("critic why = %q, want earned", result.CriticWhy)
	}
}

func TestControlsUpdateHandlerBuildsPatch(t *testing.T) {
	svc := &fakeStoryService{status: testStatus()}
	handler := ControlsUpdateHandler(svc)

	spice := 2
	_, _, err := handler(context.Background(), nil, ControlsUpdateInput{
		SessionID: "sess-1",
		Pace:      "slow",
		Spice:     &spice,
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if svc.lastPatch.Pace == nil || *svc.lastPatch.Pace != storydomain.PaceSlow {
		t.Fatalf("patch pace = %v, want slow", svc.lastPatch.Pace)
	}
	if svc.lastPatch.Spice == nil || *svc.lastPatch.Spice != 2 {
		t.Fatalf("patch spice = %v, want 2", svc.lastPatch.Spice)
	}
	if svc.lastPatch.Angst != nil || svc.lastPatch.Comedy != nil {
		t.Fatalf("unset fields must stay nil: %+v", svc.lastPatch)
	}
}

func TestTranscriptHandlerMapsEntries(t *testing.T) {
	now := time.Now()
	svc := &fakeStoryService{entries: []storage.TranscriptEntry{
		{Seq: 1, Kind: storage.TranscriptKindNarration, Body: "The room seems to lean in.", CreatedAt: now},
		{Seq: 2, Kind: storage.TranscriptKindCharacter, Speaker: "mara", Body: "I kept your seat.", CreatedAt: now},
	}}
	handler := TranscriptHandler(svc)

	_, result, err := handler(context.Background(), nil, TranscriptInput{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(result.Entries))
	}
	if result.Entries[1].Speaker != "mara" {
		t.Fatalf("speaker = %q, want mara", result.Entries[1].Speaker)
	}
}

func TestSessionListHandlerFormatsTimestamps(t *testing.T) {
	updated := time.Date(2026, 2, 14, 20, 0, 0, 0, time.UTC)
	svc := &fakeStoryService{summaries: []storage.SessionSummary{
		{SessionID: "sess-1", NodeIdx: 3, TotalTurns: 17, UpdatedAt: updated},
	}}
	handler := SessionListHandler(svc)

	_, result, err := handler(context.Background(), nil, SessionListInput{})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(result.Sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(result.Sessions))
	}
	if !strings.HasPrefix(result.Sessions[0].UpdatedAt, "2026-02-14T20:00:00") {
		t.Fatalf("updated at = %q", result.Sessions[0].UpdatedAt)
	}
}
