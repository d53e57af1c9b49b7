package engine

import (
	"context"
	"testing"

	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

func TestCriticApprovesForcedAdvance(t *testing.T) {
	state := judgeState(t, domain.PaceSlow)
	state.NodeTurns = state.NodeBudget.HardCap

	verdict, err := RuleCritic{}.Review(context.Background(), state, domain.AdvanceDecision{ShouldAdvance: true, Forced: true}, nil)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !verdict.ApproveAdvance {
		t.Fatalf("forced advance must be approved, got %+v", verdict)
	}
}

func TestCriticPaceBars(t *testing.T) {
	tests := []struct {
		name    string
		pace    domain.Pace
		turns   int
		approve bool
	}{
		{"fast approves at minimum", domain.PaceFast, 2, true},
		{"med holds one shy of bar", domain.PaceMed, 2, false},
		{"med approves at target minus one", domain.PaceMed, 3, true},
		{"slow holds below target", domain.PaceSlow, 4, false},
		{"slow approves at target", domain.PaceSlow, 5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := judgeState(t, tt.pace)
			state.NodeTurns = tt.turns

			decision := domain.AdvanceDecision{ShouldAdvance: true, Eligible: true, SemanticallyReady: true}
			verdict, err := RuleCritic{}.Review(context.Background(), state, decision, nil)
			if err != nil {
				t.Fatalf("review: %v", err)
			}
			if verdict.ApproveAdvance != tt.approve {
				t.Fatalf("expected approve=%v, got %+v", tt.approve, verdict)
			}
		})
	}
}

func TestCriticRejectionNamesUnmetConditions(t *testing.T) {
	state := judgeState(t, domain.PaceSlow)
	state.NodeTurns = 3

	window := []WindowEntry{{Speaker: "a1", Text: "They exchange names at last."}}
	decision := domain.AdvanceDecision{ShouldAdvance: true, Eligible: true, SemanticallyReady: true}
	verdict, err := RuleCritic{}.Review(context.Background(), state, decision, window)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if verdict.ApproveAdvance {
		t.Fatalf("expected rejection at 3/%d turns, got %+v", state.NodeBudget.Target, verdict)
	}
	if verdict.SuggestedMinExtraTurns != 2 {
		t.Fatalf("expected 2 extra turns suggested, got %d", verdict.SuggestedMinExtraTurns)
	}
	if len(verdict.RequiredBeforeAdvance) != 1 || verdict.RequiredBeforeAdvance[0] != "coffee is spilled" {
		t.Fatalf("unexpected requirements: %v", verdict.RequiredBeforeAdvance)
	}
}

func TestCriticStallRiskLowersBar(t *testing.T) {
	state := judgeState(t, domain.PaceSlow)
	state.NodeTurns = 4
	state.QualityFlags.PlotStallRisk = 0.8

	decision := domain.AdvanceDecision{ShouldAdvance: true, Eligible: true, SemanticallyReady: true}
	verdict, err := RuleCritic{}.Review(context.Background(), state, decision, nil)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !verdict.ApproveAdvance {
		t.Fatalf("expected stall risk to lower the bar, got %+v", verdict)
	}
}
