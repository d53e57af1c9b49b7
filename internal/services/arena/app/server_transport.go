package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/websocket"

	apperrors "github.com/stagecraft-live/stagecraft/internal/errors"
	"github.com/stagecraft-live/stagecraft/internal/storage"
	"github.com/stagecraft-live/stagecraft/internal/story/engine"
)

// NarrationKindReplay marks narration frames resent from the transcript
// rather than produced by a live turn.
const NarrationKindReplay = "replay"

func handleWSConn(conn *websocket.Conn, hub *sessionHub) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	peer := newWSPeer(json.NewEncoder(conn))
	session := newWSSession(peer)
	defer func() {
		if story := session.currentStory(); story != nil {
			story.room.leave(session.peer)
		}
	}()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(session.peer, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(session.peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case "story.join":
			handleJoinFrame(ctx, session, hub, frame)
		case "story.say":
			handleSayFrame(ctx, session, frame)
		case "story.controls":
			handleControlsFrame(ctx, session, frame)
		case "story.status":
			handleStatusFrame(session, frame)
		default:
			_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func handleJoinFrame(ctx context.Context, session *wsSession, hub *sessionHub, frame wsFrame) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid join payload")
		return
	}

	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "session_id is required")
		return
	}

	story, err := hub.resume(ctx, sessionID)
	if err != nil {
		log.Printf("arena: join failed session=%q err=%v", sessionID, err)
		writeWSDomainError(session.peer, frame.RequestID, err)
		return
	}

	previous := session.setStory(story)
	if previous != nil && previous != story {
		previous.room.leave(session.peer)
	}
	story.room.join(session.peer)

	_ = session.peer.writeFrame(wsFrame{
		Type:      "story.joined",
		RequestID: frame.RequestID,
		Payload: mustJSON(joinedPayload{
			SessionID:  sessionID,
			Status:     story.orchestrator.Snapshot(),
			ServerTime: time.Now().UTC().Format(time.RFC3339),
		}),
	})

	backlog := payload.Backlog
	if backlog <= 0 {
		backlog = defaultTranscriptPage
	}
	if backlog > maxTranscriptPageSize {
		backlog = maxTranscriptPageSize
	}
	replayTranscript(ctx, session.peer, story, backlog)
}

// replayTranscript sends the most recent transcript entries to a just-joined
// peer so the client renders the scene so far.
func replayTranscript(ctx context.Context, peer *wsPeer, story *storySession, backlog int) {
	entries, err := story.orchestrator.Transcript(ctx, 0, 0)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("arena: transcript replay failed session=%q err=%v", story.room.sessionID, err)
		}
		return
	}
	if len(entries) > backlog {
		entries = entries[len(entries)-backlog:]
	}
	for _, entry := range entries {
		frame := transcriptFrame(story.room.sessionID, entry)
		_ = peer.writeFrame(frame)
	}
}

func transcriptFrame(sessionID string, entry storage.TranscriptEntry) wsFrame {
	if entry.Kind == storage.TranscriptKindCharacter {
		return wsFrame{Type: "story.character", Payload: mustJSON(engine.CharacterEvent{
			SessionID: sessionID,
			Speaker:   entry.Speaker,
			Name:      entry.Speaker,
			Utterance: entry.Body,
		})}
	}
	return wsFrame{Type: "story.narration", Payload: mustJSON(engine.NarrationEvent{
		SessionID: sessionID,
		Kind:      NarrationKindReplay,
		Text:      entry.Body,
	})}
}

func handleSayFrame(ctx context.Context, session *wsSession, frame wsFrame) {
	var payload sayPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid say payload")
		return
	}
	if utf8.RuneCountInString(payload.Message) > maxDirectorMessageRunes {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "message must be at most 2000 characters")
		return
	}

	story := session.currentStory()
	if story == nil {
		_ = writeWSError(session.peer, frame.RequestID, "FAILED_PRECONDITION", "must join a story before speaking")
		return
	}

	result, err := story.orchestrator.RunTurn(ctx, engine.TurnInput{
		DirectorMessage: payload.Message,
		SpeakerOverride: payload.Speaker,
	})
	if err != nil {
		writeWSDomainError(session.peer, frame.RequestID, err)
		return
	}

	// Narration and character frames already went out through the room
	// dispatcher; the ack carries the turn verdicts and fresh status.
	_ = session.peer.writeFrame(wsFrame{
		Type:      "story.turn",
		RequestID: frame.RequestID,
		Payload: mustJSON(turnPayload{
			Speaker:       result.Speaker.Name,
			Advanced:      result.Advanced,
			AtFinalNode:   result.AtFinalNode,
			AdvanceReason: result.Decision.Reason,
			CriticVerdict: result.Verdict,
			Status:        result.Status,
		}),
	})
}

func handleControlsFrame(ctx context.Context, session *wsSession, frame wsFrame) {
	var payload controlsPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid controls payload")
		return
	}

	story := session.currentStory()
	if story == nil {
		_ = writeWSError(session.peer, frame.RequestID, "FAILED_PRECONDITION", "must join a story before adjusting controls")
		return
	}

	patch, err := payload.patch()
	if err != nil {
		writeWSDomainError(session.peer, frame.RequestID, err)
		return
	}

	status, err := story.orchestrator.UpdateControls(ctx, patch)
	if err != nil {
		writeWSDomainError(session.peer, frame.RequestID, err)
		return
	}

	statusFrame := wsFrame{
		Type:      "story.status",
		RequestID: frame.RequestID,
		Payload:   mustJSON(statusEnvelope{Status: status}),
	}
	_ = session.peer.writeFrame(statusFrame)
	story.room.broadcast(wsFrame{Type: "story.status", Payload: statusFrame.Payload})
}

func handleStatusFrame(session *wsSession, frame wsFrame) {
	story := session.currentStory()
	if story == nil {
		_ = writeWSError(session.peer, frame.RequestID, "FAILED_PRECONDITION", "must join a story before requesting status")
		return
	}

	_ = session.peer.writeFrame(wsFrame{
		Type:      "story.status",
		RequestID: frame.RequestID,
		Payload:   mustJSON(statusEnvelope{Status: story.orchestrator.Snapshot()}),
	})
}

func writeWSDomainError(peer *wsPeer, requestID string, err error) {
	code := apperrors.GetCode(err)
	_, message := apperrors.HandleError(err, "")
	_ = writeWSError(peer, requestID, string(code), message)
}

func writeWSError(peer *wsPeer, requestID string, code string, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      "story.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      code,
				Message:   message,
				Retryable: false,
			},
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
