package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stagecraft-live/stagecraft/internal/storage"
	"github.com/stagecraft-live/stagecraft/internal/story/domain"
	"github.com/stagecraft-live/stagecraft/internal/story/engine"
)

type wsSession struct {
	mu    sync.Mutex
	peer  *wsPeer
	story *storySession
}

func newWSSession(peer *wsPeer) *wsSession {
	return &wsSession{peer: peer}
}

func (s *wsSession) setStory(next *storySession) *storySession {
	s.mu.Lock()
	previous := s.story
	s.story = next
	s.mu.Unlock()
	return previous
}

func (s *wsSession) currentStory() *storySession {
	s.mu.Lock()
	story := s.story
	s.mu.Unlock()
	return story
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// storyRoom fans committed story events out to every connected peer. It is the
// engine's dispatcher for one session, so a turn's narration and character
// frames reach subscribers in commit order.
type storyRoom struct {
	mu          sync.Mutex
	sessionID   string
	subscribers map[*wsPeer]struct{}
}

func newStoryRoom(sessionID string) *storyRoom {
	return &storyRoom{
		sessionID:   sessionID,
		subscribers: make(map[*wsPeer]struct{}),
	}
}

func (r *storyRoom) join(peer *wsPeer) {
	r.mu.Lock()
	r.subscribers[peer] = struct{}{}
	r.mu.Unlock()
}

func (r *storyRoom) leave(peer *wsPeer) bool {
	r.mu.Lock()
	delete(r.subscribers, peer)
	empty := len(r.subscribers) == 0
	r.mu.Unlock()
	return empty
}

func (r *storyRoom) broadcast(frame wsFrame) {
	r.mu.Lock()
	subscribers := make([]*wsPeer, 0, len(r.subscribers))
	for subscriber := range r.subscribers {
		subscribers = append(subscribers, subscriber)
	}
	r.mu.Unlock()

	for _, subscriber := range subscribers {
		_ = subscriber.writeFrame(frame)
	}
}

// DispatchNarration implements engine.Dispatcher.
func (r *storyRoom) DispatchNarration(_ context.Context, evt engine.NarrationEvent) {
	r.broadcast(wsFrame{Type: "story.narration", Payload: mustJSON(evt)})
}

// DispatchCharacter implements engine.Dispatcher.
func (r *storyRoom) DispatchCharacter(_ context.Context, evt engine.CharacterEvent) {
	r.broadcast(wsFrame{Type: "story.character", Payload: mustJSON(evt)})
}

// storySession pairs a session's orchestrator with the room broadcasting its
// events.
type storySession struct {
	orchestrator *engine.Orchestrator
	room         *storyRoom
}

// sessionHub owns the live sessions. Sessions are created through the HTTP
// API or resumed lazily from the store when a peer joins one the hub has not
// seen since startup.
type sessionHub struct {
	mu       sync.Mutex
	sessions map[string]*storySession
	deps     Deps
}

func newSessionHub(deps Deps) *sessionHub {
	return &sessionHub{
		sessions: make(map[string]*storySession),
		deps:     deps,
	}
}

func (h *sessionHub) create(input domain.NewPlotStateInput) (*storySession, error) {
	state, err := domain.NewPlotState(input, h.deps.Now, nil)
	if err != nil {
		return nil, err
	}
	return h.adopt(state)
}

// resume returns the live session, loading it from the store when the hub
// does not hold it. Without a store an unknown session is storage.ErrNotFound.
func (h *sessionHub) resume(ctx context.Context, sessionID string) (*storySession, error) {
	h.mu.Lock()
	session, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if ok {
		return session, nil
	}
	if h.deps.Store == nil {
		return nil, storage.ErrNotFound
	}

	state, err := h.deps.Store.GetPlotState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return h.adopt(state)
}

func (h *sessionHub) adopt(state *domain.PlotState) (*storySession, error) {
	room := newStoryRoom(state.SessionID)
	orchestrator, err := engine.NewOrchestrator(engine.Config{
		State:             state,
		Generator:         h.deps.Generator,
		Judge:             engine.RuleJudge{Matcher: h.deps.Matcher},
		Critic:            engine.RuleCritic{Matcher: h.deps.Matcher},
		Intent:            h.deps.Intent,
		Narrator:          h.deps.Narrator,
		Dispatcher:        room,
		Store:             h.deps.Store,
		Telemetry:         h.deps.Telemetry,
		Logger:            h.deps.Logger,
		GenerationTimeout: h.deps.GenerationTimeout,
		Now:               h.deps.Now,
	})
	if err != nil {
		return nil, err
	}

	session := &storySession{orchestrator: orchestrator, room: room}
	h.mu.Lock()
	if existing, ok := h.sessions[state.SessionID]; ok {
		h.mu.Unlock()
		return existing, nil
	}
	h.sessions[state.SessionID] = session
	h.mu.Unlock()
	return session, nil
}

func (h *sessionHub) list(ctx context.Context) ([]storage.SessionSummary, error) {
	if h.deps.Store != nil {
		return h.deps.Store.ListSessions(ctx)
	}

	h.mu.Lock()
	sessions := make([]*storySession, 0, len(h.sessions))
	for _, session := range h.sessions {
		sessions = append(sessions, session)
	}
	h.mu.Unlock()

	summaries := make([]storage.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		status := session.orchestrator.Snapshot()
		summaries = append(summaries, storage.SessionSummary{
			SessionID:  status.SessionID,
			NodeIdx:    status.NodeIdx,
			TotalTurns: status.TotalTurns,
			UpdatedAt:  status.UpdatedAt,
		})
	}
	return summaries, nil
}

func (h *sessionHub) close() {
	if h.deps.Store == nil {
		return
	}
	if err := h.deps.Store.Close(); err != nil && h.deps.Logger != nil {
		h.deps.Logger.Printf("[ARENA] close store: %v", err)
	}
}
