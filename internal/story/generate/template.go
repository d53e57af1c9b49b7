package generate

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

// TemplateGenerator produces character turns from canned phrasings. It is
// deterministic for a given input, which makes it the test double of choice
// and the fallback when no model provider is configured.
type TemplateGenerator struct{}

func (TemplateGenerator) GenerateTurn(ctx context.Context, input GenerationInput) (GenerationOutput, error) {
	if err := ctx.Err(); err != nil {
		return GenerationOutput{}, fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
	}
	objective := strings.TrimSpace(input.Objective)
	if objective == "" {
		objective = input.BeatGoal
	}
	var utterance string
	switch templatePick(input.Profile.ID+objective, 4) {
	case 0:
		utterance = fmt.Sprintf("%s here. I keep circling back to it. %s", input.Profile.Name, objective)
	case 1:
		utterance = fmt.Sprintf("Look, I'm not saying this is easy. %s", objective)
	case 2:
		utterance = fmt.Sprintf("You noticed that too, huh? %s", objective)
	default:
		utterance = fmt.Sprintf("Give me a second. %s That's where my head is.", objective)
	}
	return GenerationOutput{
		Utterance: utterance,
		Action:    fmt.Sprintf("%s stays %s.", input.Profile.Name, firstTrait(input.Profile)),
		Thought:   input.Profile.Wants,
	}, nil
}

func firstTrait(profile domain.CharacterProfile) string {
	if len(profile.Traits) == 0 {
		return "steady"
	}
	return profile.Traits[0]
}

// TemplateNarrator writes bridge narration from fixed phrasings keyed off the
// destination beat. It never fails, so it doubles as the fallback when a
// model-backed narrator errors mid-turn.
type TemplateNarrator struct{}

var bridgeTemplates = []string{
	"Something shifts. Without anyone naming it, the story moves on: %s",
	"The moment closes behind them, and a new one opens. %s",
	"Later, when they look back, this is where it turned. %s",
}

func (TemplateNarrator) BridgeNarration(ctx context.Context, from, to domain.PlotNode) (string, error) {
	template := bridgeTemplates[templatePick(to.Beat, len(bridgeTemplates))]
	return fmt.Sprintf(template, strings.TrimSpace(to.Stakes)), nil
}

func templatePick(seed string, n int) int {
	if n <= 0 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(seed))
	return int(h.Sum32() % uint32(n))
}
