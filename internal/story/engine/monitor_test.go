package engine

import (
	"testing"

	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

func TestRepetitionRisk(t *testing.T) {
	line := "I keep thinking about the same thing over and over again somehow"
	repeated := make([]WindowEntry, 6)
	for i := range repeated {
		repeated[i] = WindowEntry{Text: line}
	}

	high := repetitionRisk(repeated)
	if high < 0.5 {
		t.Fatalf("expected high repetition for duplicated lines, got %f", high)
	}

	varied := []WindowEntry{
		{Text: "She orders something new without looking at the menu"},
		{Text: "The espresso machine hisses behind the counter today"},
		{Text: "Rain taps against the window in uneven bursts outside"},
	}
	low := repetitionRisk(varied)
	if low >= high {
		t.Fatalf("expected varied text to score below repeated text: %f >= %f", low, high)
	}
}

func TestRepetitionRiskIgnoresTinyWindows(t *testing.T) {
	if risk := repetitionRisk([]WindowEntry{{Text: "hi hi"}}); risk != 0 {
		t.Fatalf("expected zero risk for tiny window, got %f", risk)
	}
}

func TestDriftRisk(t *testing.T) {
	characters := []domain.CharacterProfile{{
		ID:     "a1",
		Name:   "Ari",
		Traits: []string{"guarded", "protective"},
		Wants:  "control over every situation",
	}}

	anchored := []WindowEntry{
		{Speaker: "a1", Text: "I stay guarded for a reason."},
		{Speaker: "a1", Text: "Someone has to be protective here."},
		{Speaker: "a1", Text: "I need control of this."},
	}
	if risk := driftRisk(characters, anchored); risk != 0 {
		t.Fatalf("expected zero drift for anchored lines, got %f", risk)
	}

	drifted := []WindowEntry{
		{Speaker: "a1", Text: "Whatever happens, happens!"},
		{Speaker: "a1", Text: "Let's just wing it completely."},
		{Speaker: "a1", Text: "Who cares about plans anyway."},
	}
	if risk := driftRisk(characters, drifted); risk != 1 {
		t.Fatalf("expected full drift for unanchored lines, got %f", risk)
	}
}

func TestDriftRiskNeedsEnoughLines(t *testing.T) {
	characters := []domain.CharacterProfile{{
		ID:     "a1",
		Traits: []string{"guarded"},
	}}
	window := []WindowEntry{{Speaker: "a1", Text: "Totally unrelated."}}
	if risk := driftRisk(characters, window); risk != 0 {
		t.Fatalf("expected zero drift below the line threshold, got %f", risk)
	}
}

func TestStallRisk(t *testing.T) {
	budget := domain.NodeBudget{Min: 3, Target: 5, HardCap: 7}
	tests := []struct {
		turns int
		want  float64
	}{
		{0, 0},
		{5, 0},
		{6, 0.5},
		{7, 1},
		{9, 1},
	}
	for _, tt := range tests {
		if got := stallRisk(tt.turns, budget); got != tt.want {
			t.Fatalf("stallRisk(%d) = %f, want %f", tt.turns, got, tt.want)
		}
	}
}

func TestScoreBounds(t *testing.T) {
	state := judgeState(t, domain.PaceSlow)
	state.NodeTurns = 20

	flags := QualityMonitor{}.Score(state, []WindowEntry{{Text: "same same same same same same same same same"}})
	if err := flags.Validate(); err != nil {
		t.Fatalf("flags out of bounds: %v", err)
	}
}
