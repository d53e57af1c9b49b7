package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/stagecraft-live/stagecraft/internal/errors"
	"github.com/stagecraft-live/stagecraft/internal/storage"
	"github.com/stagecraft-live/stagecraft/internal/storage/cursor"
	"github.com/stagecraft-live/stagecraft/internal/story/domain"
	"github.com/stagecraft-live/stagecraft/internal/story/engine"
)

type sessionListResponse struct {
	Sessions []storage.SessionSummary `json:"sessions"`
}

type transcriptResponse struct {
	Entries    []transcriptEntryPayload `json:"entries"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, message := apperrors.HandleError(err, "")
	var resp errorResponse
	resp.Error.Code = string(apperrors.GetCode(err))
	resp.Error.Message = message
	writeJSON(w, status, resp)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	var resp errorResponse
	resp.Error.Code = "INVALID_ARGUMENT"
	resp.Error.Message = message
	writeJSON(w, http.StatusBadRequest, resp)
}

// handleSessions serves the session collection: GET lists known sessions,
// POST creates one.
func (h *sessionHub) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		summaries, err := h.list(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if summaries == nil {
			summaries = []storage.SessionSummary{}
		}
		writeJSON(w, http.StatusOK, sessionListResponse{Sessions: summaries})
	case http.MethodPost:
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid session payload")
			return
		}
		session, err := h.create(domain.NewPlotStateInput{
			DirectorGoal: req.DirectorGoal,
			Controls:     req.Controls,
			Nodes:        req.Nodes,
			Characters:   req.Characters,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, statusEnvelope{Status: session.orchestrator.Snapshot()})
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSessionRoutes dispatches /api/story/sessions/{id} and its
// sub-resources.
func (h *sessionHub) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/story/sessions/")
	sessionID, action, _ := strings.Cut(rest, "/")
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		http.NotFound(w, r)
		return
	}

	session, err := h.resume(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, statusEnvelope{Status: session.orchestrator.Snapshot()})
	case "turn":
		h.handleTurn(w, r, session)
	case "controls":
		h.handleControls(w, r, session)
	case "goal":
		h.handleGoal(w, r, session)
	case "reset":
		h.handleReset(w, r, session)
	case "transcript":
		h.handleTranscript(w, r, session)
	default:
		http.NotFound(w, r)
	}
}

func (h *sessionHub) handleTurn(w http.ResponseWriter, r *http.Request, session *storySession) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sayPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid turn payload")
		return
	}

	result, err := session.orchestrator.RunTurn(r.Context(), engine.TurnInput{
		DirectorMessage: req.Message,
		SpeakerOverride: req.Speaker,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, turnPayload{
		Speaker:       result.Speaker.Name,
		Advanced:      result.Advanced,
		AtFinalNode:   result.AtFinalNode,
		AdvanceReason: result.Decision.Reason,
		CriticVerdict: result.Verdict,
		Status:        result.Status,
	})
}

func (h *sessionHub) handleControls(w http.ResponseWriter, r *http.Request, session *storySession) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req controlsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid controls payload")
		return
	}
	patch, err := req.patch()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status, err := session.orchestrator.UpdateControls(r.Context(), patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	session.room.broadcast(wsFrame{Type: "story.status", Payload: mustJSON(statusEnvelope{Status: status})})
	writeJSON(w, http.StatusOK, statusEnvelope{Status: status})
}

func (h *sessionHub) handleGoal(w http.ResponseWriter, r *http.Request, session *storySession) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Goal string `json:"goal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid goal payload")
		return
	}

	status, err := session.orchestrator.SetDirectorGoal(r.Context(), req.Goal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusEnvelope{Status: status})
}

func (h *sessionHub) handleReset(w http.ResponseWriter, r *http.Request, session *storySession) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid reset payload")
		return
	}

	status, err := session.orchestrator.Reset(r.Context(), domain.NewPlotStateInput{
		DirectorGoal: req.DirectorGoal,
		Controls:     req.Controls,
		Nodes:        req.Nodes,
		Characters:   req.Characters,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	session.room.broadcast(wsFrame{Type: "story.status", Payload: mustJSON(statusEnvelope{Status: status})})
	writeJSON(w, http.StatusOK, statusEnvelope{Status: status})
}

// handleTranscript pages through the persisted transcript using opaque
// cursor tokens.
func (h *sessionHub) handleTranscript(w http.ResponseWriter, r *http.Request, session *storySession) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultTranscriptPage
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxTranscriptPageSize {
		limit = maxTranscriptPageSize
	}

	var afterSeq uint64
	if token := strings.TrimSpace(r.URL.Query().Get("cursor")); token != "" {
		c, err := cursor.Decode(token)
		if err != nil {
			writeBadRequest(w, "invalid cursor token")
			return
		}
		if c.Dir != cursor.DirectionForward {
			writeBadRequest(w, "transcript pagination is forward-only")
			return
		}
		afterSeq = c.Seq
	}

	entries, err := session.orchestrator.Transcript(r.Context(), afterSeq, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := transcriptResponse{Entries: make([]transcriptEntryPayload, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, transcriptEntryPayload{
			Seq:       entry.Seq,
			Kind:      entry.Kind,
			Speaker:   entry.Speaker,
			Body:      entry.Body,
			CreatedAt: entry.CreatedAt,
		})
	}
	if len(entries) == limit {
		token, err := cursor.Encode(cursor.NewForwardCursor(entries[len(entries)-1].Seq))
		if err == nil {
			resp.NextCursor = token
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
