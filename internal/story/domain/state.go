package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stagecraft-live/stagecraft/internal/id"
)

var (
	// ErrStateInvalid indicates the plot state violates a structural invariant.
	// Sessions in this condition must be reinitialized.
	ErrStateInvalid = errors.New("plot state is invalid")
	// ErrEmptyDirectorGoal indicates a session needs an opening director goal.
	ErrEmptyDirectorGoal = errors.New("director goal is required")
)

// MaxHardCapExtension bounds how far CriticGate rejections may push a node's
// hard cap beyond its pace-derived baseline.
const MaxHardCapExtension = 6

// QualityFlags are the bounded risk scores recomputed every turn.
type QualityFlags struct {
	RepetitionRisk     float64 `json:"repetition_risk"`
	CharacterDriftRisk float64 `json:"character_drift_risk"`
	PlotStallRisk      float64 `json:"plot_stall_risk"`
}

// Validate checks that every flag is within [0,1].
func (f QualityFlags) Validate() error {
	for name, value := range map[string]float64{
		"repetition_risk":      f.RepetitionRisk,
		"character_drift_risk": f.CharacterDriftRisk,
		"plot_stall_risk":      f.PlotStallRisk,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%w: %s=%f", ErrStateInvalid, name, value)
		}
	}
	return nil
}

// Director records the out-of-character participant's current intent.
type Director struct {
	LatestGoal  string   `json:"latest_goal"`
	Constraints []string `json:"constraints,omitempty"`
}

// CriticVerdict is CriticGate's output, retained as planning context until the
// next advance candidate is evaluated.
type CriticVerdict struct {
	ApproveAdvance         bool     `json:"approve_advance"`
	Why                    string   `json:"why"`
	RequiredBeforeAdvance  []string `json:"required_before_advance,omitempty"`
	SuggestedMinExtraTurns int      `json:"suggested_min_extra_turns,omitempty"`
}

// AdvanceDecision is AdvanceJudge's combined heuristic and semantic output.
type AdvanceDecision struct {
	ShouldAdvance     bool   `json:"should_advance"`
	Reason            string `json:"reason"`
	Forced            bool   `json:"forced"`
	Eligible          bool   `json:"eligible"`
	SemanticallyReady bool   `json:"semantically_ready"`
}

// TurnPlan is the per-turn plan produced by the planner and discarded at the
// end of the turn. Micro objectives cover every character so unselected
// characters keep a coherent internal state.
type TurnPlan struct {
	Narration        string            `json:"narration"`
	NextSpeaker      string            `json:"next_speaker"`
	MicroObjectives  map[string]string `json:"micro_objectives"`
	BeatFocus        string            `json:"beat_focus"`
	AdvanceCandidate bool              `json:"advance_candidate"`
	AdvanceReason    string            `json:"advance_reason,omitempty"`
}

// PlotState is the persistent session state, exclusively owned by one
// orchestrator instance. It is passed by reference at call boundaries and
// never shared across sessions.
type PlotState struct {
	SessionID string `json:"session_id"`

	Nodes      []PlotNode `json:"nodes"`
	NodeIdx    int        `json:"node_idx"`
	NodeTurns  int        `json:"node_turns"`
	TotalTurns int        `json:"total_turns"`

	NodeBudget NodeBudget `json:"node_budget"`
	TurnBudget TurnBudget `json:"turn_budget"`
	// HardCapBase is preserved so critic extensions stay bounded.
	HardCapBase int `json:"hard_cap_base"`

	Controls   Controls           `json:"controls"`
	Director   Director           `json:"director"`
	Characters []CharacterProfile `json:"characters"`

	QualityFlags QualityFlags `json:"quality_flags"`

	AdvanceCandidate bool           `json:"advance_candidate"`
	AdvanceReason    string         `json:"advance_reason,omitempty"`
	CriticVerdict    *CriticVerdict `json:"critic_verdict,omitempty"`

	// LastSelected maps character ID to the total turn number at which the
	// character last spoke. Absent means never selected.
	LastSelected map[string]int `json:"last_selected"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPlotStateInput describes the metadata needed to initialize a session's
// plot state.
type NewPlotStateInput struct {
	DirectorGoal string
	Controls     *Controls
	Nodes        []PlotNode
	Characters   []CharacterProfile
}

// NewPlotState initializes plot state at the first node with pace-derived
// budgets. Nil controls, nodes, and characters fall back to session defaults.
func NewPlotState(input NewPlotStateInput, now func() time.Time, idGenerator func() (string, error)) (*PlotState, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	goal := strings.TrimSpace(input.DirectorGoal)
	if goal == "" {
		return nil, ErrEmptyDirectorGoal
	}

	controls := DefaultControls()
	if input.Controls != nil {
		controls = *input.Controls
	}
	if err := controls.Validate(); err != nil {
		return nil, err
	}

	nodes := input.Nodes
	if len(nodes) == 0 {
		nodes = DefaultArc()
	}
	nodes, err := NormalizeNodes(nodes)
	if err != nil {
		return nil, err
	}

	characters := input.Characters
	if len(characters) == 0 {
		characters = DefaultEnsemble()
	}
	characters, err = NormalizeCharacters(characters)
	if err != nil {
		return nil, err
	}

	sessionID, err := idGenerator()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	nodeBudget, turnBudget := PaceBudgets(controls.Pace)
	createdAt := now().UTC()

	return &PlotState{
		SessionID:    sessionID,
		Nodes:        nodes,
		NodeIdx:      0,
		NodeTurns:    0,
		TotalTurns:   0,
		NodeBudget:   nodeBudget,
		TurnBudget:   turnBudget,
		HardCapBase:  nodeBudget.HardCap,
		Controls:     controls,
		Director:     Director{LatestGoal: goal},
		Characters:   characters,
		LastSelected: make(map[string]int),
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}, nil
}

// Validate checks the structural invariants that must hold in every reachable
// state.
func (s *PlotState) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: state is nil", ErrStateInvalid)
	}
	if len(s.Nodes) == 0 {
		return fmt.Errorf("%w: empty node sequence", ErrStateInvalid)
	}
	if s.NodeIdx < 0 || s.NodeIdx >= len(s.Nodes) {
		return fmt.Errorf("%w: node_idx %d out of range [0,%d)", ErrStateInvalid, s.NodeIdx, len(s.Nodes))
	}
	if s.NodeTurns < 0 || s.TotalTurns < 0 {
		return fmt.Errorf("%w: negative turn counter", ErrStateInvalid)
	}
	if err := s.NodeBudget.Validate(); err != nil {
		return err
	}
	return s.QualityFlags.Validate()
}

// CurrentNode returns the node at the current position.
func (s *PlotState) CurrentNode() PlotNode {
	return s.Nodes[s.NodeIdx]
}

// NextNode returns the upcoming node and false when the story is at its final
// node.
func (s *PlotState) NextNode() (PlotNode, bool) {
	if s.AtFinalNode() {
		return PlotNode{}, false
	}
	return s.Nodes[s.NodeIdx+1], true
}

// AtFinalNode reports whether the story is parked at its last beat.
func (s *PlotState) AtFinalNode() bool {
	return s.NodeIdx >= len(s.Nodes)-1
}

// Advance moves to the next node, resetting the per-node counter and budget
// and clearing turn-local advance context. It reports false (and changes
// nothing) when already at the final node.
func (s *PlotState) Advance() bool {
	if s.AtFinalNode() {
		return false
	}
	s.NodeIdx++
	s.NodeTurns = 0
	nodeBudget, _ := PaceBudgets(s.Controls.Pace)
	s.NodeBudget = nodeBudget
	s.HardCapBase = nodeBudget.HardCap
	s.AdvanceCandidate = false
	s.AdvanceReason = ""
	s.CriticVerdict = nil
	return true
}

// IncrementTurn bumps both counters. The per-node counter resets only through
// Advance, never here.
func (s *PlotState) IncrementTurn() {
	s.NodeTurns++
	s.TotalTurns++
}

// ExtendHardCap raises the current node's hard cap by extra turns, capped at
// the global extension ceiling above the pace baseline.
func (s *PlotState) ExtendHardCap(extra int) {
	if extra <= 0 {
		return
	}
	ceiling := s.HardCapBase + MaxHardCapExtension
	raised := s.NodeBudget.HardCap + extra
	if raised > ceiling {
		raised = ceiling
	}
	s.NodeBudget.HardCap = raised
}

// SetControls replaces the controls and immediately recomputes the session
// turn band when the pace changed. The current node keeps its (possibly
// extended) budget; the new pace's node band applies from the next advance.
func (s *PlotState) SetControls(controls Controls) error {
	if err := controls.Validate(); err != nil {
		return err
	}
	if controls.Pace != s.Controls.Pace {
		_, turnBudget := PaceBudgets(controls.Pace)
		s.TurnBudget = turnBudget
	}
	s.Controls = controls
	return nil
}

// Clone returns a deep copy. The orchestrator stages each turn on a clone so
// a failed turn leaves the committed state untouched.
func (s *PlotState) Clone() *PlotState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Nodes = append([]PlotNode(nil), s.Nodes...)
	clone.Characters = append([]CharacterProfile(nil), s.Characters...)
	clone.Director.Constraints = append([]string(nil), s.Director.Constraints...)
	clone.LastSelected = make(map[string]int, len(s.LastSelected))
	for characterID, turn := range s.LastSelected {
		clone.LastSelected[characterID] = turn
	}
	if s.CriticVerdict != nil {
		verdict := *s.CriticVerdict
		verdict.RequiredBeforeAdvance = append([]string(nil), s.CriticVerdict.RequiredBeforeAdvance...)
		clone.CriticVerdict = &verdict
	}
	return &clone
}
