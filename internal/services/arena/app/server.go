// Package server hosts the arena HTTP/WebSocket process.
//
// The arena is the live surface of a story session: directors connect over a
// websocket, steer the engine with chat frames, and every committed turn is
// broadcast to the session's room. A small JSON API covers the non-realtime
// operations (session creation, status, transcript pagination).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/stagecraft-live/stagecraft/internal/platform/timeouts"
	"github.com/stagecraft-live/stagecraft/internal/storage"
	"github.com/stagecraft-live/stagecraft/internal/story/domain"
	"github.com/stagecraft-live/stagecraft/internal/story/engine"
	"github.com/stagecraft-live/stagecraft/internal/story/generate"
	"github.com/stagecraft-live/stagecraft/internal/telemetry"
	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxDirectorMessageRunes = 2000
	maxTranscriptPageSize   = 200
	defaultTranscriptPage   = 50
)

// Config defines the inputs for the arena transport boundary.
type Config struct {
	HTTPAddr          string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Deps are the story collaborators the arena wires into each session's
// orchestrator. Generator is required; everything else has a working default.
type Deps struct {
	Generator generate.CharacterGenerator
	Intent    generate.IntentParser
	Narrator  generate.Narrator
	Matcher   engine.ConditionMatcher
	Store     storage.Store
	Telemetry *telemetry.Emitter
	Logger    *log.Logger

	GenerationTimeout time.Duration
	Now               func() time.Time
}

// Server hosts the arena HTTP/WebSocket process. Story state lives in the
// per-session orchestrators; the server is the transport around them.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	hub             *sessionHub
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type joinPayload struct {
	SessionID string `json:"session_id"`
	// Backlog is how many recent transcript entries to replay on join.
	Backlog int `json:"backlog,omitempty"`
}

type joinedPayload struct {
	SessionID  string        `json:"session_id"`
	Status     engine.Status `json:"status"`
	ServerTime string        `json:"server_time"`
}

type sayPayload struct {
	Message string `json:"message,omitempty"`
	Speaker string `json:"speaker,omitempty"`
}

type turnPayload struct {
	Speaker       string                `json:"speaker"`
	Advanced      bool                  `json:"advanced"`
	AtFinalNode   bool                  `json:"at_final_node"`
	AdvanceReason string                `json:"advance_reason,omitempty"`
	CriticVerdict *domain.CriticVerdict `json:"critic_verdict,omitempty"`
	Status        engine.Status         `json:"status"`
}

type controlsPayload struct {
	Pace   *string `json:"pace,omitempty"`
	Spice  *int    `json:"spice,omitempty"`
	Angst  *int    `json:"angst,omitempty"`
	Comedy *int    `json:"comedy,omitempty"`
}

type statusEnvelope struct {
	Status engine.Status `json:"status"`
}

type transcriptEntryPayload struct {
	Seq       uint64    `json:"seq"`
	Kind      string    `json:"kind"`
	Speaker   string    `json:"speaker,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type createSessionRequest struct {
	DirectorGoal string                    `json:"director_goal"`
	Controls     *domain.Controls          `json:"controls,omitempty"`
	Nodes        []domain.PlotNode         `json:"nodes,omitempty"`
	Characters   []domain.CharacterProfile `json:"characters,omitempty"`
}

func (p controlsPayload) patch() (domain.ControlsPatch, error) {
	patch := domain.ControlsPatch{
		Spice:  p.Spice,
		Angst:  p.Angst,
		Comedy: p.Comedy,
	}
	if p.Pace != nil {
		pace := domain.Pace(strings.ToLower(strings.TrimSpace(*p.Pace)))
		switch pace {
		case domain.PaceSlow, domain.PaceMed, domain.PaceFast:
			patch.Pace = &pace
		default:
			return domain.ControlsPatch{}, fmt.Errorf("pace %q: %w", *p.Pace, domain.ErrControlValueInvalid)
		}
	}
	return patch, nil
}

// NewServer builds a configured arena server.
func NewServer(config Config, deps Deps) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("character generator is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}

	hub := newSessionHub(deps)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(hub),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		hub:             hub,
	}, nil
}

// Run creates and serves an arena server until the context ends.
func Run(ctx context.Context, config Config, deps Deps) error {
	server, err := NewServer(config, deps)
	if err != nil {
		return fmt.Errorf("init arena server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve arena: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("arena server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("arena server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.hub != nil {
		s.hub.close()
	}
}

// NewHandler creates arena routes backed by an in-process hub. Used by tests
// and embedded setups.
func NewHandler(deps Deps) http.Handler {
	return newHandler(newSessionHub(deps))
}

func newHandler(hub *sessionHub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, hub)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})

	mux.HandleFunc("/api/story/sessions", hub.handleSessions)
	mux.HandleFunc("/api/story/sessions/", hub.handleSessionRoutes)

	return mux
}
