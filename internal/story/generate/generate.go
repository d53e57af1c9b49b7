package generate

import (
	"context"
	"errors"

	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

var (
	// ErrGenerationTimeout indicates a collaborator exceeded its deadline.
	// The turn aborts without committing and may be retried.
	ErrGenerationTimeout = errors.New("generation timed out")
	// ErrGenerationFailure indicates a collaborator failed outright.
	ErrGenerationFailure = errors.New("generation failed")
)

// GenerationInput carries everything a character generator may condition on.
type GenerationInput struct {
	Profile     domain.CharacterProfile
	Objective   string
	Narration   string
	BeatGoal    string
	Window      []string
	Controls    domain.Controls
	Constraints []string
}

// GenerationOutput is one character turn. Action and Thought are optional
// color around the spoken line.
type GenerationOutput struct {
	Utterance string
	Action    string
	Thought   string
}

// CharacterGenerator produces one in-character turn. Implementations must
// honor ctx cancellation and return an error wrapping ErrGenerationTimeout or
// ErrGenerationFailure on failure.
type CharacterGenerator interface {
	GenerateTurn(ctx context.Context, input GenerationInput) (GenerationOutput, error)
}

// Intent is the structured reading of a free-form director message.
type Intent struct {
	Goal        string
	Constraints []string
	Controls    domain.ControlsPatch
}

// IntentParser turns a director's out-of-character message into an Intent.
type IntentParser interface {
	ParseIntent(ctx context.Context, message string) (Intent, error)
}

// Narrator produces the short bridge narration that carries the story from
// one plot node into the next.
type Narrator interface {
	BridgeNarration(ctx context.Context, from, to domain.PlotNode) (string, error)
}
