package engine

import (
	"fmt"
	"strings"

	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

// Planner builds the per-turn plan: a short scene narration, the next
// speaker, and a micro objective for every character so unselected characters
// keep a coherent inner state.
type Planner struct{}

var narrationLeads = []string{
	"The room seems to lean in.",
	"Something unspoken hangs in the air.",
	"A beat passes that neither of them names.",
	"The small sounds of the place fill the pause.",
}

// Build derives the plan from the staged state and recent window. The speaker
// override, when it names a character by ID or name, wins over rotation.
func (Planner) Build(state *domain.PlotState, window []WindowEntry, speakerOverride string) (domain.TurnPlan, error) {
	if err := state.Validate(); err != nil {
		return domain.TurnPlan{}, err
	}
	node := state.CurrentNode()

	plan := domain.TurnPlan{
		Narration:       sceneNarration(state, node),
		NextSpeaker:     nextSpeaker(state, speakerOverride),
		MicroObjectives: make(map[string]string, len(state.Characters)),
		BeatFocus:       node.Goal,
	}
	for _, character := range state.Characters {
		if character.ID == plan.NextSpeaker {
			plan.MicroObjectives[character.ID] = fmt.Sprintf("Take the scene one concrete step toward: %s", node.Goal)
			continue
		}
		plan.MicroObjectives[character.ID] = fmt.Sprintf("Stay present as %s. You still want %s.", character.Role, character.Wants)
	}

	// Provisional hint only. The judge owns the real call after generation.
	if state.NodeTurns+1 >= state.NodeBudget.Target && !state.AtFinalNode() {
		plan.AdvanceCandidate = true
		plan.AdvanceReason = "approaching node target budget"
	}
	return plan, nil
}

func sceneNarration(state *domain.PlotState, node domain.PlotNode) string {
	lead := narrationLeads[(state.TotalTurns+node.ID)%len(narrationLeads)]
	narration := fmt.Sprintf("%s %s", lead, strings.TrimSpace(node.Stakes))
	// A standing critic rejection steers the scene toward what it still owes.
	if state.CriticVerdict != nil && !state.CriticVerdict.ApproveAdvance && len(state.CriticVerdict.RequiredBeforeAdvance) > 0 {
		narration = fmt.Sprintf("%s Still unresolved: %s.", narration, strings.ToLower(state.CriticVerdict.RequiredBeforeAdvance[0]))
	}
	return narration
}

// nextSpeaker picks the least recently selected character, breaking ties by
// ensemble order. Characters who have never spoken sort first.
func nextSpeaker(state *domain.PlotState, override string) string {
	if override != "" {
		for _, character := range state.Characters {
			if character.ID == override || strings.EqualFold(character.Name, override) {
				return character.ID
			}
		}
	}
	best := ""
	bestTurn := int(^uint(0) >> 1)
	for _, character := range state.Characters {
		turn, spoke := state.LastSelected[character.ID]
		if !spoke {
			turn = -1
		}
		if turn < bestTurn {
			best = character.ID
			bestTurn = turn
		}
	}
	return best
}
