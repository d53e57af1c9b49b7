package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stagecraft-live/stagecraft/internal/storage"
	"github.com/stagecraft-live/stagecraft/internal/story/domain"
	"github.com/stagecraft-live/stagecraft/internal/story/generate"
	"github.com/stagecraft-live/stagecraft/internal/telemetry"
)

// DefaultGenerationTimeout bounds each generation collaborator call.
const DefaultGenerationTimeout = 30 * time.Second

// Narration kinds on dispatched events. Hints steer the room after a
// rejected advance and never enter the transcript.
const (
	NarrationKindScene  = "scene"
	NarrationKindBridge = "bridge"
	NarrationKindHint   = "hint"
)

// NarrationEvent is narrator text dispatched on the narration channel.
type NarrationEvent struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
}

// CharacterEvent is one character's turn dispatched on the character channel.
type CharacterEvent struct {
	SessionID string `json:"session_id"`
	Speaker   string `json:"speaker"`
	Name      string `json:"name"`
	Utterance string `json:"utterance"`
	Action    string `json:"action,omitempty"`
}

// Dispatcher delivers committed story events to the transport layer.
// Dispatch failures are the transport's problem: the turn is already
// committed when dispatch runs.
type Dispatcher interface {
	DispatchNarration(ctx context.Context, evt NarrationEvent)
	DispatchCharacter(ctx context.Context, evt CharacterEvent)
}

// TurnInput is the trigger for one turn.
type TurnInput struct {
	// DirectorMessage is the optional out-of-character message that prompted
	// this turn.
	DirectorMessage string
	// SpeakerOverride names a character (ID or name) the director wants to
	// hear from.
	SpeakerOverride string
}

// TurnResult reports everything a committed turn produced.
type TurnResult struct {
	Plan            domain.TurnPlan
	Speaker         domain.CharacterProfile
	Output          generate.GenerationOutput
	Decision        domain.AdvanceDecision
	Verdict         *domain.CriticVerdict
	Advanced        bool
	AtFinalNode     bool
	BridgeNarration string
	Flags           domain.QualityFlags
	Status          Status
}

// Status is the read-only session surface exposed over HTTP, websocket, and
// MCP.
type Status struct {
	SessionID        string                `json:"session_id"`
	NodeIdx          int                   `json:"node_idx"`
	NodeCount        int                   `json:"node_count"`
	Beat             string                `json:"beat"`
	Goal             string                `json:"goal"`
	Stakes           string                `json:"stakes"`
	NodeTurns        int                   `json:"node_turns"`
	TotalTurns       int                   `json:"total_turns"`
	NodeBudget       domain.NodeBudget     `json:"node_budget"`
	TurnBudget       domain.TurnBudget     `json:"turn_budget"`
	Controls         domain.Controls       `json:"controls"`
	Quality          domain.QualityFlags   `json:"quality"`
	AdvanceCandidate bool                  `json:"advance_candidate"`
	AdvanceReason    string                `json:"advance_reason,omitempty"`
	CriticVerdict    *domain.CriticVerdict `json:"critic_verdict,omitempty"`
	AtFinalNode      bool                  `json:"at_final_node"`
	DirectorGoal     string                `json:"director_goal"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// Config wires an orchestrator. State and Generator are required; everything
// else has a working default.
type Config struct {
	State     *domain.PlotState
	Generator generate.CharacterGenerator

	Planner    Planner
	Judge      Judge
	Critic     Critic
	Monitor    QualityMonitor
	Intent     generate.IntentParser
	Narrator   generate.Narrator
	Dispatcher Dispatcher
	Store      storage.Store
	Telemetry  *telemetry.Emitter
	Logger     *log.Logger

	WindowSize        int
	GenerationTimeout time.Duration
	Now               func() time.Time
}

// Orchestrator owns one session's plot state and serializes every turn,
// control update, and reset on a single mutex.
type Orchestrator struct {
	mu sync.Mutex

	state  *domain.PlotState
	window []WindowEntry

	planner    Planner
	judge      Judge
	critic     Critic
	monitor    QualityMonitor
	generator  generate.CharacterGenerator
	intent     generate.IntentParser
	narrator   generate.Narrator
	dispatcher Dispatcher
	store      storage.Store
	emitter    *telemetry.Emitter
	logger     *log.Logger
	tracer     trace.Tracer

	windowSize        int
	generationTimeout time.Duration
	now               func() time.Time
}

// NewOrchestrator creates an orchestrator for one session.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.State == nil {
		return nil, fmt.Errorf("plot state is required")
	}
	if err := cfg.State.Validate(); err != nil {
		return nil, err
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("character generator is required")
	}

	o := &Orchestrator{
		state:             cfg.State,
		planner:           cfg.Planner,
		judge:             cfg.Judge,
		critic:            cfg.Critic,
		monitor:           cfg.Monitor,
		generator:         cfg.Generator,
		intent:            cfg.Intent,
		narrator:          cfg.Narrator,
		dispatcher:        cfg.Dispatcher,
		store:             cfg.Store,
		emitter:           cfg.Telemetry,
		logger:            cfg.Logger,
		tracer:            otel.Tracer("stagecraft/engine"),
		windowSize:        cfg.WindowSize,
		generationTimeout: cfg.GenerationTimeout,
		now:               cfg.Now,
	}
	if o.judge == nil {
		o.judge = RuleJudge{}
	}
	if o.critic == nil {
		o.critic = RuleCritic{}
	}
	if o.intent == nil {
		o.intent = generate.RuleIntentParser{}
	}
	if o.narrator == nil {
		o.narrator = generate.TemplateNarrator{}
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	if o.windowSize <= 0 {
		o.windowSize = DefaultWindowSize
	}
	if o.generationTimeout <= 0 {
		o.generationTimeout = DefaultGenerationTimeout
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// SessionID returns the owned session's ID.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.SessionID
}

// Snapshot returns the current status without mutating anything. Two
// snapshots with no turn between them are identical.
func (o *Orchestrator) Snapshot() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return statusOf(o.state)
}

// RunTurn processes one full turn. It returns without committing anything
// when any stage fails; generation errors wrap generate.ErrGenerationTimeout
// or generate.ErrGenerationFailure and the same input may be retried.
func (o *Orchestrator) RunTurn(ctx context.Context, input TurnInput) (TurnResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "engine.RunTurn", trace.WithAttributes(
		attribute.String("session.id", o.state.SessionID),
		attribute.Int("story.node_idx", o.state.NodeIdx),
	))
	defer span.End()

	staged := o.state.Clone()

	if input.DirectorMessage != "" {
		if err := o.applyIntent(ctx, staged, input.DirectorMessage); err != nil {
			return TurnResult{}, err
		}
	}

	plan, err := o.planner.Build(staged, o.window, input.SpeakerOverride)
	if err != nil {
		return TurnResult{}, fmt.Errorf("plan turn: %w", err)
	}

	speaker, ok := characterByID(staged.Characters, plan.NextSpeaker)
	if !ok {
		return TurnResult{}, fmt.Errorf("%w: planner selected unknown speaker %q", domain.ErrStateInvalid, plan.NextSpeaker)
	}

	output, err := o.generateTurn(ctx, staged, plan, speaker)
	if err != nil {
		o.emitTelemetry(ctx, staged.SessionID, "turn.generation_failed", telemetry.SeverityWarn, map[string]any{"error": err.Error()})
		return TurnResult{}, err
	}

	staged.LastSelected[speaker.ID] = staged.TotalTurns + 1
	staged.IncrementTurn()

	turnEntries := []WindowEntry{
		{Text: plan.Narration},
		{Speaker: speaker.ID, Text: joinNonEmpty(output.Utterance, output.Action)},
	}
	judgedWindow := appendWindow(o.window, o.windowSize, turnEntries...)

	decision, err := o.judge.Evaluate(ctx, staged, judgedWindow)
	if err != nil {
		return TurnResult{}, fmt.Errorf("judge advance: %w", err)
	}
	staged.AdvanceCandidate = decision.ShouldAdvance
	staged.AdvanceReason = decision.Reason

	var verdict *domain.CriticVerdict
	advanced := false
	bridge := ""
	if decision.ShouldAdvance {
		reviewed, err := o.critic.Review(ctx, staged, decision, judgedWindow)
		if err != nil {
			return TurnResult{}, fmt.Errorf("critic review: %w", err)
		}
		verdict = &reviewed
		staged.CriticVerdict = verdict

		if reviewed.ApproveAdvance {
			if next, hasNext := staged.NextNode(); hasNext {
				bridge = o.bridgeNarration(ctx, staged.CurrentNode(), next)
				advanced = staged.Advance()
			}
		} else {
			extra := reviewed.SuggestedMinExtraTurns
			if extra < 1 {
				extra = 1
			}
			staged.ExtendHardCap(extra)
			staged.AdvanceCandidate = false
		}
	}

	if advanced {
		turnEntries = append(turnEntries, WindowEntry{Text: bridge})
	}
	staged.QualityFlags = o.monitor.Score(staged, appendWindow(o.window, o.windowSize, turnEntries...))
	staged.UpdatedAt = o.now().UTC()

	if err := staged.Validate(); err != nil {
		return TurnResult{}, fmt.Errorf("staged turn produced invalid state: %w", err)
	}

	// Commit point. Everything after this is best-effort.
	o.state = staged
	o.window = appendWindow(o.window, o.windowSize, turnEntries...)

	result := TurnResult{
		Plan:            plan,
		Speaker:         speaker,
		Output:          output,
		Decision:        decision,
		Verdict:         verdict,
		Advanced:        advanced,
		AtFinalNode:     staged.AtFinalNode(),
		BridgeNarration: bridge,
		Flags:           staged.QualityFlags,
		Status:          statusOf(staged),
	}

	o.persistTurn(ctx, result)
	o.dispatchTurn(ctx, result)
	if advanced {
		o.emitTelemetry(ctx, staged.SessionID, "story.advanced", telemetry.SeverityInfo, map[string]any{
			"node_idx": staged.NodeIdx,
			"forced":   decision.Forced,
		})
	}
	if verdict != nil && !verdict.ApproveAdvance {
		o.emitTelemetry(ctx, staged.SessionID, "story.advance_rejected", telemetry.SeverityInfo, map[string]any{
			"why": verdict.Why,
		})
	}
	return result, nil
}

// UpdateControls applies a partial controls update outside a turn.
func (o *Orchestrator) UpdateControls(ctx context.Context, patch domain.ControlsPatch) (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	controls, err := o.state.Controls.Apply(patch)
	if err != nil {
		return statusOf(o.state), err
	}
	if err := o.state.SetControls(controls); err != nil {
		return statusOf(o.state), err
	}
	o.state.UpdatedAt = o.now().UTC()
	o.persistState(ctx)
	return statusOf(o.state), nil
}

// SetDirectorGoal replaces the standing director goal outside a turn.
func (o *Orchestrator) SetDirectorGoal(ctx context.Context, goal string) (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if goal == "" {
		return statusOf(o.state), domain.ErrEmptyDirectorGoal
	}
	o.state.Director.LatestGoal = goal
	o.state.UpdatedAt = o.now().UTC()
	o.persistState(ctx)
	return statusOf(o.state), nil
}

// Reset reinitializes the session's plot state in place, keeping the session
// ID. In-flight turns finish against the old state before the reset applies.
func (o *Orchestrator) Reset(ctx context.Context, input domain.NewPlotStateInput) (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sessionID := o.state.SessionID
	fresh, err := domain.NewPlotState(input, o.now, func() (string, error) { return sessionID, nil })
	if err != nil {
		return statusOf(o.state), err
	}
	o.state = fresh
	o.window = nil
	o.persistState(ctx)
	o.emitTelemetry(ctx, sessionID, "story.reset", telemetry.SeverityInfo, nil)
	return statusOf(o.state), nil
}

// Transcript returns persisted entries after the given sequence.
func (o *Orchestrator) Transcript(ctx context.Context, afterSeq uint64, limit int) ([]storage.TranscriptEntry, error) {
	if o.store == nil {
		return nil, nil
	}
	return o.store.ListTranscript(ctx, o.SessionID(), afterSeq, limit)
}

func (o *Orchestrator) applyIntent(ctx context.Context, staged *domain.PlotState, message string) error {
	intent, err := o.intent.ParseIntent(ctx, message)
	if err != nil {
		return fmt.Errorf("parse director intent: %w", err)
	}
	if intent.Goal != "" {
		staged.Director.LatestGoal = intent.Goal
	}
	// Constraints replace the standing set rather than accumulate, so a
	// repeated director message does not stack duplicates into every prompt.
	if len(intent.Constraints) > 0 {
		staged.Director.Constraints = intent.Constraints
	}
	patch := intent.Controls
	if patch.Pace != nil || patch.Spice != nil || patch.Angst != nil || patch.Comedy != nil {
		controls, err := staged.Controls.Apply(patch)
		if err != nil {
			return err
		}
		if err := staged.SetControls(controls); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) generateTurn(ctx context.Context, staged *domain.PlotState, plan domain.TurnPlan, speaker domain.CharacterProfile) (generate.GenerationOutput, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.generationTimeout)
	defer cancel()

	output, err := o.generator.GenerateTurn(genCtx, generate.GenerationInput{
		Profile:     speaker,
		Objective:   plan.MicroObjectives[speaker.ID],
		Narration:   plan.Narration,
		BeatGoal:    plan.BeatFocus,
		Window:      windowText(o.window),
		Controls:    staged.Controls,
		Constraints: staged.Director.Constraints,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return generate.GenerationOutput{}, fmt.Errorf("%w: %v", generate.ErrGenerationTimeout, err)
		}
		if errors.Is(err, generate.ErrGenerationTimeout) || errors.Is(err, generate.ErrGenerationFailure) {
			return generate.GenerationOutput{}, err
		}
		return generate.GenerationOutput{}, fmt.Errorf("%w: %v", generate.ErrGenerationFailure, err)
	}
	if output.Utterance == "" {
		return generate.GenerationOutput{}, fmt.Errorf("%w: empty utterance", generate.ErrGenerationFailure)
	}
	return output, nil
}

// bridgeNarration never fails a turn: a narrator error falls back to the
// template narrator, which cannot error.
func (o *Orchestrator) bridgeNarration(ctx context.Context, from, to domain.PlotNode) string {
	bridge, err := o.narrator.BridgeNarration(ctx, from, to)
	if err == nil {
		return bridge
	}
	o.logger.Printf("[ENGINE] bridge narration failed, using template: %v", err)
	bridge, _ = generate.TemplateNarrator{}.BridgeNarration(ctx, from, to)
	return bridge
}

func (o *Orchestrator) persistTurn(ctx context.Context, result TurnResult) {
	o.persistState(ctx)
	if o.store == nil {
		return
	}
	sessionID := o.state.SessionID
	entries := []storage.TranscriptEntry{
		{SessionID: sessionID, Kind: storage.TranscriptKindNarration, Body: result.Plan.Narration},
		{SessionID: sessionID, Kind: storage.TranscriptKindCharacter, Speaker: result.Speaker.ID, Body: result.Output.Utterance},
	}
	if result.Advanced {
		entries = append(entries, storage.TranscriptEntry{
			SessionID: sessionID, Kind: storage.TranscriptKindNarration, Body: result.BridgeNarration,
		})
	}
	for _, entry := range entries {
		if _, err := o.store.AppendTranscript(ctx, entry); err != nil {
			o.logger.Printf("[ENGINE] append transcript: %v", err)
		}
	}
}

func (o *Orchestrator) persistState(ctx context.Context) {
	if o.store == nil {
		return
	}
	if err := o.store.PutPlotState(ctx, o.state); err != nil {
		o.logger.Printf("[ENGINE] persist plot state: %v", err)
	}
}

func (o *Orchestrator) dispatchTurn(ctx context.Context, result TurnResult) {
	if o.dispatcher == nil {
		return
	}
	sessionID := o.state.SessionID
	o.dispatcher.DispatchNarration(ctx, NarrationEvent{
		SessionID: sessionID,
		Kind:      NarrationKindScene,
		Text:      result.Plan.Narration,
	})
	o.dispatcher.DispatchCharacter(ctx, CharacterEvent{
		SessionID: sessionID,
		Speaker:   result.Speaker.ID,
		Name:      result.Speaker.Name,
		Utterance: result.Output.Utterance,
		Action:    result.Output.Action,
	})
	if result.Advanced {
		o.dispatcher.DispatchNarration(ctx, NarrationEvent{
			SessionID: sessionID,
			Kind:      NarrationKindBridge,
			Text:      result.BridgeNarration,
		})
	}
	if result.Verdict != nil && !result.Verdict.ApproveAdvance && len(result.Verdict.RequiredBeforeAdvance) > 0 {
		o.dispatcher.DispatchNarration(ctx, NarrationEvent{
			SessionID: sessionID,
			Kind:      NarrationKindHint,
			Text:      fmt.Sprintf("Still unresolved: %s.", strings.ToLower(result.Verdict.RequiredBeforeAdvance[0])),
		})
	}
}

func (o *Orchestrator) emitTelemetry(ctx context.Context, sessionID, name string, severity telemetry.Severity, attrs map[string]any) {
	if o.emitter == nil {
		return
	}
	err := o.emitter.Emit(ctx, storage.TelemetryEvent{
		EventName:  name,
		Severity:   string(severity),
		SessionID:  sessionID,
		Attributes: attrs,
	})
	if err != nil {
		o.logger.Printf("[ENGINE] emit telemetry %s: %v", name, err)
	}
}

func statusOf(state *domain.PlotState) Status {
	node := state.CurrentNode()
	status := Status{
		SessionID:        state.SessionID,
		NodeIdx:          state.NodeIdx,
		NodeCount:        len(state.Nodes),
		Beat:             node.Beat,
		Goal:             node.Goal,
		Stakes:           node.Stakes,
		NodeTurns:        state.NodeTurns,
		TotalTurns:       state.TotalTurns,
		NodeBudget:       state.NodeBudget,
		TurnBudget:       state.TurnBudget,
		Controls:         state.Controls,
		Quality:          state.QualityFlags,
		AdvanceCandidate: state.AdvanceCandidate,
		AdvanceReason:    state.AdvanceReason,
		AtFinalNode:      state.AtFinalNode(),
		DirectorGoal:     state.Director.LatestGoal,
		UpdatedAt:        state.UpdatedAt,
	}
	if state.CriticVerdict != nil {
		verdict := *state.CriticVerdict
		verdict.RequiredBeforeAdvance = append([]string(nil), state.CriticVerdict.RequiredBeforeAdvance...)
		status.CriticVerdict = &verdict
	}
	return status
}

func characterByID(characters []domain.CharacterProfile, id string) (domain.CharacterProfile, bool) {
	for _, character := range characters {
		if character.ID == id {
			return character, true
		}
	}
	return domain.CharacterProfile{}, false
}

func joinNonEmpty(parts ...string) string {
	joined := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		if joined != "" {
			joined += " "
		}
		joined += part
	}
	return joined
}
