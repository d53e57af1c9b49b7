package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/stagecraft-live/stagecraft/internal/story/generate"
)

type wsTestFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type scriptedGenerator struct {
	utterance string
}

func (g scriptedGenerator) GenerateTurn(_ context.Context, _ generate.GenerationInput) (generate.GenerationOutput, error) {
	return generate.GenerationOutput{Utterance: g.utterance}, nil
}

func newTestDeps() Deps {
	return Deps{
		Generator: scriptedGenerator{utterance: "A quiet look passes across the counter."},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(newTestDeps()))
	t.Cleanup(srv.Close)
	return srv
}

func createStorySession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	body := bytes.NewBufferString(`{"director_goal":"two strangers fall for each other"}`)
	resp, err := http.Post(srv.URL+"/api/story/sessions", "application/json", body)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	var envelope statusEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if envelope.Status.SessionID == "" {
		t.Fatal("create response has empty session id")
	}
	return envelope.Status.SessionID
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func writeTestFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func readTestFrame(t *testing.T, conn *websocket.Conn) wsTestFrame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got wsTestFrame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

func joinStory(t *testing.T, conn *websocket.Conn, sessionID string) {
	t.Helper()
	writeTestFrame(t, conn, map[string]any{
		"type":       "story.join",
		"request_id": "req-join-1",
		"payload":    map[string]any{"session_id": sessionID},
	})
	got := readTestFrame(t, conn)
	if got.Type != "story.joined" {
		t.Fatalf("frame type = %q, want %q", got.Type, "story.joined")
	}
}

func TestWebSocketJoinReturnsJoinedFrame(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createStorySession(t, srv)
	conn := dialWS(t, srv)

	writeTestFrame(t, conn, map[string]any{
		"type":       "story.join",
		"request_id": "req-join-1",
		"payload":    map[string]any{"session_id": sessionID},
	})

	got := readTestFrame(t, conn)
	if got.Type != "story.joined" {
		t.Fatalf("frame type = %q, want %q", got.Type, "story.joined")
	}
	if !strings.Contains(string(got.Payload), sessionID) {
		t.Fatalf("joined payload = %s, expected session id", string(got.Payload))
	}
}

func TestWebSocketJoinUnknownSessionReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	writeTestFrame(t, conn, map[string]any{
		"type":       "story.join",
		"request_id": "req-join-1",
		"payload":    map[string]any{"session_id": "sess-missing"},
	})

	got := readTestFrame(t, conn)
	if got.Type != "story.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "story.error")
	}
	if !strings.Contains(string(got.Payload), "NOT_FOUND") {
		t.Fatalf("error payload = %s, expected NOT_FOUND code", string(got.Payload))
	}
}

func TestWebSocketUnknownTypeReturnsError(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	writeTestFrame(t, conn, map[string]any{
		"type":       "story.unknown",
		"request_id": "req-bad-1",
		"payload":    map[string]any{},
	})

	got := readTestFrame(t, conn)
	if got.Type != "story.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "story.error")
	}
	if !strings.Contains(string(got.Payload), "INVALID_ARGUMENT") {
		t.Fatalf("error payload = %s, expected INVALID_ARGUMENT code", string(got.Payload))
	}
}

func TestWebSocketSayBeforeJoinReturnsError(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	writeTestFrame(t, conn, map[string]any{
		"type":       "story.say",
		"request_id": "req-say-1",
		"payload":    map[string]any{"message": "hello"},
	})

	got := readTestFrame(t, conn)
	if got.Type != "story.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "story.error")
	}
	if !strings.Contains(string(got.Payload), "FAILED_PRECONDITION") {
		t.Fatalf("error payload = %s, expected FAILED_PRECONDITION", string(got.Payload))
	}
}

func TestWebSocketSayBroadcastsTurnFrames(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createStorySession(t, srv)

	connA := dialWS(t, srv)
	connB := dialWS(t, srv)
	joinStory(t, connA, sessionID)
	joinStory(t, connB, sessionID)

	writeTestFrame(t, connA, map[string]any{
		"type":       "story.say",
		"request_id": "req-say-1",
		"payload":    map[string]any{},
	})

	narration := readTestFrame(t, connA)
	if narration.Type != "story.narration" {
		t.Fatalf("first sender frame = %q, want %q", narration.Type, "story.narration")
	}
	character := readTestFrame(t, connA)
	if character.Type != "story.character" {
		t.Fatalf("second sender frame = %q, want %q", character.Type, "story.character")
	}
	if !strings.Contains(string(character.Payload), "quiet look") {
		t.Fatalf("character payload = %s, expected generated utterance", string(character.Payload))
	}
	ack := readTestFrame(t, connA)
	if ack.Type != "story.turn" {
		t.Fatalf("third sender frame = %q, want %q", ack.Type, "story.turn")
	}
	if ack.RequestID != "req-say-1" {
		t.Fatalf("ack request id = %q, want %q", ack.RequestID, "req-say-1")
	}
	var turn turnPayload
	if err := json.Unmarshal(ack.Payload, &turn); err != nil {
		t.Fatalf("decode turn payload: %v", err)
	}
	if turn.Status.TotalTurns != 1 {
		t.Fatalf("total turns = %d, want 1", turn.Status.TotalTurns)
	}

	receiverNarration := readTestFrame(t, connB)
	if receiverNarration.Type != "story.narration" {
		t.Fatalf("first receiver frame = %q, want %q", receiverNarration.Type, "story.narration")
	}
	receiverCharacter := readTestFrame(t, connB)
	if receiverCharacter.Type != "story.character" {
		t.Fatalf("second receiver frame = %q, want %q", receiverCharacter.Type, "story.character")
	}
}

func TestWebSocketControlsUpdateReturnsStatus(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createStorySession(t, srv)
	conn := dialWS(t, srv)
	joinStory(t, conn, sessionID)

	writeTestFrame(t, conn, map[string]any{
		"type":       "story.controls",
		"request_id": "req-controls-1",
		"payload":    map[string]any{"pace": "fast"},
	})

	got := readTestFrame(t, conn)
	if got.Type != "story.status" {
		t.Fatalf("frame type = %q, want %q", got.Type, "story.status")
	}
	if got.RequestID != "req-controls-1" {
		t.Fatalf("request id = %q, want %q", got.RequestID, "req-controls-1")
	}
	var envelope statusEnvelope
	if err := json.Unmarshal(got.Payload, &envelope); err != nil {
		t.Fatalf("decode status payload: %v", err)
	}
	if envelope.Status.Controls.Pace != "fast" {
		t.Fatalf("pace = %q, want %q", envelope.Status.Controls.Pace, "fast")
	}
}

func TestWebSocketControlsRejectsUnknownPace(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createStorySession(t, srv)
	conn := dialWS(t, srv)
	joinStory(t, conn, sessionID)

	writeTestFrame(t, conn, map[string]any{
		"type":       "story.controls",
		"request_id": "req-controls-1",
		"payload":    map[string]any{"pace": "ludicrous"},
	})

	got := readTestFrame(t, conn)
	if got.Type != "story.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "story.error")
	}
	if !strings.Contains(string(got.Payload), "CONTROL_VALUE_INVALID") {
		t.Fatalf("error payload = %s, expected CONTROL_VALUE_INVALID", string(got.Payload))
	}
}

func TestWebSocketStatusFrameReturnsSnapshot(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createStorySession(t, srv)
	conn := dialWS(t, srv)
	joinStory(t, conn, sessionID)

	writeTestFrame(t, conn, map[string]any{
		"type":       "story.status",
		"request_id": "req-status-1",
		"payload":    map[string]any{},
	})

	got := readTestFrame(t, conn)
	if got.Type != "story.status" {
		t.Fatalf("frame type = %q, want %q", got.Type, "story.status")
	}
	var envelope statusEnvelope
	if err := json.Unmarshal(got.Payload, &envelope); err != nil {
		t.Fatalf("decode status payload: %v", err)
	}
	if envelope.Status.SessionID != sessionID {
		t.Fatalf("session id = %q, want %q", envelope.Status.SessionID, sessionID)
	}
	if envelope.Status.TotalTurns != 0 {
		t.Fatalf("total turns = %d, want 0", envelope.Status.TotalTurns)
	}
}
