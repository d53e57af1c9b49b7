package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

func plannerState(t *testing.T) *domain.PlotState {
	t.Helper()
	state, err := domain.NewPlotState(domain.NewPlotStateInput{
		DirectorGoal: "a slow-burn story in a coffee shop",
	}, fixedNow, func() (string, error) { return "sess-plan", nil })
	if err != nil {
		t.Fatalf("new plot state: %v", err)
	}
	return state
}

func TestPlannerRotatesLeastRecentSpeaker(t *testing.T) {
	state := plannerState(t)
	state.LastSelected["a1"] = 3
	state.LastSelected["a2"] = 1
	state.LastSelected["a3"] = 2

	plan, err := Planner{}.Build(state, nil, "")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if plan.NextSpeaker != "a2" {
		t.Fatalf("expected least recent speaker a2, got %q", plan.NextSpeaker)
	}
}

func TestPlannerPrefersNeverSelected(t *testing.T) {
	state := plannerState(t)
	state.LastSelected["a1"] = 1

	plan, err := Planner{}.Build(state, nil, "")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if plan.NextSpeaker != "a2" {
		t.Fatalf("expected first never-selected character, got %q", plan.NextSpeaker)
	}
}

func TestPlannerSpeakerOverride(t *testing.T) {
	state := plannerState(t)

	plan, err := Planner{}.Build(state, nil, "Casey")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if plan.NextSpeaker != "a3" {
		t.Fatalf("expected override by name, got %q", plan.NextSpeaker)
	}

	plan, err = Planner{}.Build(state, nil, "nobody")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if plan.NextSpeaker != "a1" {
		t.Fatalf("expected rotation when override unknown, got %q", plan.NextSpeaker)
	}
}

func TestPlannerObjectivesCoverEveryCharacter(t *testing.T) {
	state := plannerState(t)

	plan, err := Planner{}.Build(state, nil, "")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if len(plan.MicroObjectives) != len(state.Characters) {
		t.Fatalf("expected objectives for all %d characters, got %d", len(state.Characters), len(plan.MicroObjectives))
	}
	for _, character := range state.Characters {
		if plan.MicroObjectives[character.ID] == "" {
			t.Fatalf("missing objective for %s", character.ID)
		}
	}
	if plan.Narration == "" || plan.BeatFocus == "" {
		t.Fatalf("expected narration and beat focus, got %+v", plan)
	}
}

func TestPlannerSurfacesCriticRequirements(t *testing.T) {
	state := plannerState(t)
	state.CriticVerdict = &domain.CriticVerdict{
		ApproveAdvance:        false,
		RequiredBeforeAdvance: []string{"Land the apology"},
	}

	plan, err := Planner{}.Build(state, nil, "")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if want := "land the apology"; !strings.Contains(plan.Narration, want) {
		t.Fatalf("expected narration to carry requirement %q, got %q", want, plan.Narration)
	}
}

func TestPlannerRejectsInvalidState(t *testing.T) {
	state := plannerState(t)
	state.NodeIdx = -1

	_, err := Planner{}.Build(state, nil, "")
	if !errors.Is(err, domain.ErrStateInvalid) {
		t.Fatalf("expected state invalid, got %v", err)
	}
}
