package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/stagecraft-live/stagecraft/internal/storage"
	storydomain "github.com/stagecraft-live/stagecraft/internal/story/domain"
	"github.com/stagecraft-live/stagecraft/internal/story/engine"
)

// StoryService is the session surface MCP tools operate on. The concrete
// implementation lives in the service package.
type StoryService interface {
	CreateSession(ctx context.Context, input storydomain.NewPlotStateInput) (engine.Status, error)
	Status(ctx context.Context, sessionID string) (engine.Status, error)
	ListSessions(ctx context.Context) ([]storage.SessionSummary, error)
	RunTurn(ctx context.Context, sessionID string, input engine.TurnInput) (engine.TurnResult, error)
	UpdateControls(ctx context.Context, sessionID string, patch storydomain.ControlsPatch) (engine.Status, error)
	SetDirectorGoal(ctx context.Context, sessionID, goal string) (engine.Status, error)
	Reset(ctx context.Context, sessionID string, input storydomain.NewPlotStateInput) (engine.Status, error)
	Transcript(ctx context.Context, sessionID string, afterSeq uint64, limit int) ([]storage.TranscriptEntry, error)
}

// StatusResult is the structured session status MCP clients render.
type StatusResult struct {
	SessionID          string  `json:"session_id" jsonschema:"story session identifier"`
	Beat               string  `json:"beat" jsonschema:"current plot node beat label"`
	NodeIdx            int     `json:"node_idx" jsonschema:"current plot node index"`
	NodeCount          int     `json:"node_count" jsonschema:"total plot nodes in the arc"`
	NodeTurns          int     `json:"node_turns" jsonschema:"turns spent at the current node"`
	TotalTurns         int     `json:"total_turns" jsonschema:"turns spent in the session"`
	Pace               string  `json:"pace" jsonschema:"story pace (slow, med, fast)"`
	Spice              int     `json:"spice" jsonschema:"spice slider 0-3"`
	Angst              int     `json:"angst" jsonschema:"angst slider 0-3"`
	Comedy             int     `json:"comedy" jsonschema:"comedy slider 0-2"`
	AdvanceCandidate   bool    `json:"advance_candidate" jsonschema:"whether the current node is ready to advance"`
	AdvanceReason      string  `json:"advance_reason,omitempty" jsonschema:"why the node is or is not ready to advance"`
	AtFinalNode        bool    `json:"at_final_node" jsonschema:"whether the story is at its final node"`
	RepetitionRisk     float64 `json:"repetition_risk" jsonschema:"repetition risk flag 0-1"`
	CharacterDriftRisk float64 `json:"character_drift_risk" jsonschema:"character drift risk flag 0-1"`
	PlotStallRisk      float64 `json:"plot_stall_risk" jsonschema:"plot stall risk flag 0-1"`
	DirectorGoal       string  `json:"director_goal" jsonschema:"standing director goal"`
}

func statusResult(status engine.Status) StatusResult {
	return StatusResult{
		SessionID:          status.SessionID,
		Beat:               status.Beat,
		NodeIdx:            status.NodeIdx,
		NodeCount:          status.NodeCount,
		NodeTurns:          status.NodeTurns,
		TotalTurns:         status.TotalTurns,
		Pace:               string(status.Controls.Pace),
		Spice:              status.Controls.Spice,
		Angst:              status.Controls.Angst,
		Comedy:             status.Controls.Comedy,
		AdvanceCandidate:   status.AdvanceCandidate,
		AdvanceReason:      status.AdvanceReason,
		AtFinalNode:        status.AtFinalNode,
		RepetitionRisk:     status.Quality.RepetitionRisk,
		CharacterDriftRisk: status.Quality.CharacterDriftRisk,
		PlotStallRisk:      status.Quality.PlotStallRisk,
		DirectorGoal:       status.DirectorGoal,
	}
}

// SessionCreateInput represents the MCP tool input for creating a session.
type SessionCreateInput struct {
	DirectorGoal string `json:"director_goal" jsonschema:"what the director wants the story to be"`
	Pace         string `json:"pace,omitempty" jsonschema:"optional starting pace (slow, med, fast)"`
}

// SessionCreateTool defines the MCP tool schema for creating a story session.
func SessionCreateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_session_create",
		Description: "Creates a new story session with the default nine-beat slow-burn arc and ensemble.",
	}
}

// SessionCreateHandler executes a session create request.
func SessionCreateHandler(svc StoryService) mcp.ToolHandlerFor[SessionCreateInput, StatusResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SessionCreateInput) (*mcp.CallToolResult, StatusResult, error) {
		stateInput := storydomain.NewPlotStateInput{DirectorGoal: input.DirectorGoal}
		if pace := strings.TrimSpace(input.Pace); pace != "" {
			controls := storydomain.DefaultControls()
			controls.Pace = storydomain.Pace(pace)
			if err := controls.Validate(); err != nil {
				return nil, StatusResult{}, fmt.Errorf("invalid pace %q: %w", input.Pace, err)
			}
			stateInput.Controls = &controls
		}
		status, err := svc.CreateSession(ctx, stateInput)
		if err != nil {
			return nil, StatusResult{}, fmt.Errorf("session create failed: %w", err)
		}
		return nil, statusResult(status), nil
	}
}

// SessionListInput represents the (empty) MCP tool input for listing sessions.
type SessionListInput struct{}

// SessionSummaryResult is one row of the session listing.
type SessionSummaryResult struct {
	SessionID  string `json:"session_id" jsonschema:"story session identifier"`
	NodeIdx    int    `json:"node_idx" jsonschema:"current plot node index"`
	TotalTurns int    `json:"total_turns" jsonschema:"turns spent in the session"`
	UpdatedAt  string `json:"updated_at" jsonschema:"RFC3339 timestamp of the last update"`
}

// SessionListResult represents the MCP tool output for listing sessions.
type SessionListResult struct {
	Sessions []SessionSummaryResult `json:"sessions" jsonschema:"known story sessions"`
}

// SessionListTool defines the MCP tool schema for listing story sessions.
func SessionListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_session_list",
		Description: "Lists known story sessions with their progress.",
	}
}

// SessionListHandler executes a session list request.
func SessionListHandler(svc StoryService) mcp.ToolHandlerFor[SessionListInput, SessionListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ SessionListInput) (*mcp.CallToolResult, SessionListResult, error) {
		summaries, err := svc.ListSessions(ctx)
		if err != nil {
			return nil, SessionListResult{}, fmt.Errorf("session list failed: %w", err)
		}
		result := SessionListResult{Sessions: make([]SessionSummaryResult, 0, len(summaries))}
		for _, summary := range summaries {
			result.Sessions = append(result.Sessions, SessionSummaryResult{
				SessionID:  summary.SessionID,
				NodeIdx:    summary.NodeIdx,
				TotalTurns: summary.TotalTurns,
				UpdatedAt:  summary.UpdatedAt.UTC().Format(time.RFC3339),
			})
		}
		return nil, result, nil
	}
}

// StatusInput represents the MCP tool input for reading session status.
type StatusInput struct {
	SessionID string `json:"session_id" jsonschema:"story session identifier"`
}

// StatusTool defines the MCP tool schema for reading session status.
func StatusTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_status",
		Description: "Reads a story session's current node, budgets, controls, and quality flags.",
	}
}

// StatusHandler executes a status request.
func StatusHandler(svc StoryService) mcp.ToolHandlerFor[StatusInput, StatusResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input StatusInput) (*mcp.CallToolResult, StatusResult, error) {
		status, err := svc.Status(ctx, input.SessionID)
		if err != nil {
			return nil, StatusResult{}, fmt.Errorf("status failed: %w", err)
		}
		return nil, statusResult(status), nil
	}
}

// TurnInput represents the MCP tool input for running one story turn.
type TurnInput struct {
	SessionID string `json:"session_id" jsonschema:"story session identifier"`
	Message   string `json:"message,omitempty" jsonschema:"optional out-of-character director message"`
	Speaker   string `json:"speaker,omitempty" jsonschema:"optional character id or name to speak this turn"`
}

// TurnResult represents the MCP tool output for one story turn.
type TurnResult struct {
	Narration       string       `json:"narration" jsonschema:"scene narration for this turn"`
	Speaker         string       `json:"speaker" jsonschema:"name of the character who spoke"`
	Utterance       string       `json:"utterance" jsonschema:"what the character said"`
	Action          string       `json:"action,omitempty" jsonschema:"what the character did"`
	Advanced        bool         `json:"advanced" jsonschema:"whether the story advanced to the next node"`
	BridgeNarration string       `json:"bridge_narration,omitempty" jsonschema:"narration bridging into the next node when the story advanced"`
	AdvanceReason   string       `json:"advance_reason,omitempty" jsonschema:"judge reasoning about node advancement"`
	CriticWhy       string       `json:"critic_why,omitempty" jsonschema:"critic reasoning when an advance candidate was reviewed"`
	Status          StatusResult `json:"status" jsonschema:"session status after the turn"`
}

// TurnTool defines the MCP tool schema for running a story turn.
func TurnTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_turn",
		Description: "Runs one story turn: plans the scene, generates the next character contribution, and applies plot progression.",
	}
}

// TurnHandler executes a turn request.
func TurnHandler(svc StoryService) mcp.ToolHandlerFor[TurnInput, TurnResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TurnInput) (*mcp.CallToolResult, TurnResult, error) {
		turn, err := svc.RunTurn(ctx, input.SessionID, engine.TurnInput{
			DirectorMessage: input.Message,
			SpeakerOverride: input.Speaker,
		})
		if err != nil {
			return nil, TurnResult{}, fmt.Errorf("turn failed: %w", err)
		}
		result := TurnResult{
			Narration:       turn.Plan.Narration,
			Speaker:         turn.Speaker.Name,
			Utterance:       turn.Output.Utterance,
			Action:          turn.Output.Action,
			Advanced:        turn.Advanced,
			BridgeNarration: turn.BridgeNarration,
			AdvanceReason:   turn.Decision.Reason,
			Status:          statusResult(turn.Status),
		}
		if turn.Verdict != nil {
			result.CriticWhy = turn.Verdict.Why
		}
		return nil, result, nil
	}
}

// ControlsUpdateInput represents the MCP tool input for adjusting controls.
type ControlsUpdateInput struct {
	SessionID string `json:"session_id" jsonschema:"story session identifier"`
	Pace      string `json:"pace,omitempty" jsonschema:"new pace (slow, med, fast)"`
	Spice     *int   `json:"spice,omitempty" jsonschema:"new spice slider 0-3"`
	Angst     *int   `json:"angst,omitempty" jsonschema:"new angst slider 0-3"`
	Comedy    *int   `json:"comedy,omitempty" jsonschema:"new comedy slider 0-2"`
}

// ControlsUpdateTool defines the MCP tool schema for adjusting controls.
func ControlsUpdateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_controls_update",
		Description: "Adjusts a session's pace and content sliders. Pace changes retune turn budgets immediately.",
	}
}

// ControlsUpdateHandler executes a controls update request.
func ControlsUpdateHandler(svc StoryService) mcp.ToolHandlerFor[ControlsUpdateInput, StatusResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ControlsUpdateInput) (*mcp.CallToolResult, StatusResult, error) {
		patch := storydomain.ControlsPatch{
			Spice:  input.Spice,
			Angst:  input.Angst,
			Comedy: input.Comedy,
		}
		if pace := strings.TrimSpace(input.Pace); pace != "" {
			p := storydomain.Pace(pace)
			patch.Pace = &p
		}
		status, err := svc.UpdateControls(ctx, input.SessionID, patch)
		if err != nil {
			return nil, StatusResult{}, fmt.Errorf("controls update failed: %w", err)
		}
		return nil, statusResult(status), nil
	}
}

// GoalSetInput represents the MCP tool input for replacing the director goal.
type GoalSetInput struct {
	SessionID string `json:"session_id" jsonschema:"story session identifier"`
	Goal      string `json:"goal" jsonschema:"new standing director goal"`
}

// GoalSetTool defines the MCP tool schema for replacing the director goal.
func GoalSetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_goal_set",
		Description: "Replaces the standing director goal that steers turn planning.",
	}
}

// GoalSetHandler executes a goal set request.
func GoalSetHandler(svc StoryService) mcp.ToolHandlerFor[GoalSetInput, StatusResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GoalSetInput) (*mcp.CallToolResult, StatusResult, error) {
		status, err := svc.SetDirectorGoal(ctx, input.SessionID, input.Goal)
		if err != nil {
			return nil, StatusResult{}, fmt.Errorf("goal set failed: %w", err)
		}
		return nil, statusResult(status), nil
	}
}

// ResetInput represents the MCP tool input for resetting a session.
type ResetInput struct {
	SessionID    string `json:"session_id" jsonschema:"story session identifier"`
	DirectorGoal string `json:"director_goal" jsonschema:"goal for the restarted story"`
}

// ResetTool defines the MCP tool schema for resetting a session.
func ResetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_reset",
		Description: "Restarts a session from the first node, keeping its session id.",
	}
}

// ResetHandler executes a reset request.
func ResetHandler(svc StoryService) mcp.ToolHandlerFor[ResetInput, StatusResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ResetInput) (*mcp.CallToolResult, StatusResult, error) {
		status, err := svc.Reset(ctx, input.SessionID, storydomain.NewPlotStateInput{DirectorGoal: input.DirectorGoal})
		if err != nil {
			return nil, StatusResult{}, fmt.Errorf("reset failed: %w", err)
		}
		return nil, statusResult(status), nil
	}
}

// TranscriptInput represents the MCP tool input for reading the transcript.
type TranscriptInput struct {
	SessionID string `json:"session_id" jsonschema:"story session identifier"`
	AfterSeq  uint64 `json:"after_seq,omitempty" jsonschema:"return entries with seq greater than this"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum entries to return"`
}

// TranscriptEntryResult is one persisted story event.
type TranscriptEntryResult struct {
	Seq     uint64 `json:"seq" jsonschema:"per-session sequence number"`
	Kind    string `json:"kind" jsonschema:"entry kind (narration, character)"`
	Speaker string `json:"speaker,omitempty" jsonschema:"speaking character id for character entries"`
	Body    string `json:"body" jsonschema:"entry text"`
}

// TranscriptResult represents the MCP tool output for reading the transcript.
type TranscriptResult struct {
	Entries []TranscriptEntryResult `json:"entries" jsonschema:"transcript entries in sequence order"`
}

// TranscriptTool defines the MCP tool schema for reading the transcript.
func TranscriptTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "story_transcript",
		Description: "Reads the persisted story transcript in sequence order.",
	}
}

// TranscriptHandler executes a transcript request.
func TranscriptHandler(svc StoryService) mcp.ToolHandlerFor[TranscriptInput, TranscriptResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TranscriptInput) (*mcp.CallToolResult, TranscriptResult, error) {
		entries, err := svc.Transcript(ctx, input.SessionID, input.AfterSeq, input.Limit)
		if err != nil {
			return nil, TranscriptResult{}, fmt.Errorf("transcript failed: %w", err)
		}
		result := TranscriptResult{Entries: make([]TranscriptEntryResult, 0, len(entries))}
		for _, entry := range entries {
			result.Entries = append(result.Entries, TranscriptEntryResult{
				Seq:     entry.Seq,
				Kind:    entry.Kind,
				Speaker: entry.Speaker,
				Body:    entry.Body,
			})
		}
		return nil, result, nil
	}
}
