package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/stagecraft-live/stagecraft/internal/storage"
	storydomain "github.com/stagecraft-live/stagecraft/internal/story/domain"
	"github.com/stagecraft-live/stagecraft/internal/story/engine"
	"github.com/stagecraft-live/stagecraft/internal/story/generate"
	"github.com/stagecraft-live/stagecraft/internal/telemetry"
)

// StageDeps are the story collaborators the stage wires into each session's
// orchestrator. Generator is required.
type StageDeps struct {
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

// Stage owns the story sessions exposed over MCP. It implements
// domain.StoryService.
type Stage struct {
	mu       sync.Mutex
	sessions map[string]*engine.Orchestrator
	deps     StageDeps
}

// NewStage creates an empty stage.
func NewStage(deps StageDeps) *Stage {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	return &Stage{
		sessions: make(map[string]*engine.Orchestrator),
		deps:     deps,
	}
}

// CreateSession initializes a new session and its orchestrator.
func (s *Stage) CreateSession(_ context.Context, input storydomain.NewPlotStateInput) (engine.Status, error) {
	state, err := storydomain.NewPlotState(input, s.deps.Now, nil)
	if err != nil {
		return engine.Status{}, err
	}
	orchestrator, err := s.adopt(state)
	if err != nil {
		return engine.Status{}, err
	}
	return orchestrator.Snapshot(), nil
}

// Status reads a session's current status.
func (s *Stage) Status(ctx context.Context, sessionID string) (engine.Status, error) {
	orchestrator, err := s.resume(ctx, sessionID)
	if err != nil {
		return engine.Status{}, err
	}
	return orchestrator.Snapshot(), nil
}

// ListSessions lists known sessions, preferring the store when configured.
func (s *Stage) ListSessions(ctx context.Context) ([]storage.SessionSummary, error) {
	if s.deps.Store != nil {
		return s.deps.Store.ListSessions(ctx)
	}

	s.mu.Lock()
	orchestrators := make([]*engine.Orchestrator, 0, len(s.sessions))
	for _, orchestrator := range s.sessions {
		orchestrators = append(orchestrators, orchestrator)
	}
	s.mu.Unlock()

	summaries := make([]storage.SessionSummary, 0, len(orchestrators))
	for _, orchestrator := range orchestrators {
		status := orchestrator.Snapshot()
		summaries = append(summaries, storage.SessionSummary{
			SessionID:  status.SessionID,
			NodeIdx:    status.NodeIdx,
			TotalTurns: status.TotalTurns,
			UpdatedAt:  status.UpdatedAt,
		})
	}
	return summaries, nil
}

// RunTurn runs one turn on the named session.
func (s *Stage) RunTurn(ctx context.Context, sessionID string, input engine.TurnInput) (engine.TurnResult, error) {
	orchestrator, err := s.resume(ctx, sessionID)
	if err != nil {
		return engine.TurnResult{}, err
	}
	return orchestrator.RunTurn(ctx, input)
}

// UpdateControls applies a controls patch to the named session.
func (s *Stage) UpdateControls(ctx context.Context, sessionID string, patch storydomain.ControlsPatch) (engine.Status, error) {
	orchestrator, err := s.resume(ctx, sessionID)
	if err != nil {
		return engine.Status{}, err
	}
	return orchestrator.UpdateControls(ctx, patch)
}

// SetDirectorGoal replaces the standing director goal on the named session.
func (s *Stage) SetDirectorGoal(ctx context.Context, sessionID, goal string) (engine.Status, error) {
	orchestrator, err := s.resume(ctx, sessionID)
	if err != nil {
		return engine.Status{}, err
	}
	return orchestrator.SetDirectorGoal(ctx, goal)
}

// Reset restarts the named session from its first node.
func (s *Stage) Reset(ctx context.Context, sessionID string, input storydomain.NewPlotStateInput) (engine.Status, error) {
	orchestrator, err := s.resume(ctx, sessionID)
	if err != nil {
		return engine.Status{}, err
	}
	return orchestrator.Reset(ctx, input)
}

// Transcript reads persisted transcript entries for the named session.
func (s *Stage) Transcript(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]storage.TranscriptEntry, error) {
	orchestrator, err := s.resume(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return orchestrator.Transcript(ctx, afterSeq, limit)
}

func (s *Stage) resume(ctx context.Context, sessionID string) (*engine.Orchestrator, error) {
	s.mu.Lock()
	orchestrator, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if ok {
		return orchestrator, nil
	}
	if s.deps.Store == nil {
		return nil, storage.ErrNotFound
	}

	state, err := s.deps.Store.GetPlotState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.adopt(state)
}

func (s *Stage) adopt(state *storydomain.PlotState) (*engine.Orchestrator, error) {
	orchestrator, err := engine.NewOrchestrator(engine.Config{
		State:             state,
		Generator:         s.deps.Generator,
		Judge:             engine.RuleJudge{Matcher: s.deps.Matcher},
		Critic:            engine.RuleCritic{Matcher: s.deps.Matcher},
		Intent:            s.deps.Intent,
		Narrator:          s.deps.Narrator,
		Store:             s.deps.Store,
		Telemetry:         s.deps.Telemetry,
		Logger:            s.deps.Logger,
		GenerationTimeout: s.deps.GenerationTimeout,
		Now:               s.deps.Now,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.sessions[state.SessionID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.sessions[state.SessionID] = orchestrator
	s.mu.Unlock()
	return orchestrator, nil
}
