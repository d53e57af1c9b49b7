package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// GenAIClient wraps a Gemini client behind the generation interfaces. One
// client serves all three roles: character generation, intent parsing, and
// bridge narration.
type GenAIClient struct {
	client *genai.Client
	model  string
	// ruleParser backs ParseIntent's control cues so slider changes apply
	// even when the model response is unusable.
	ruleParser RuleIntentParser
}

// NewGenAIClient creates a Gemini-backed generation client.
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIClient{client: client, model: model}, nil
}

func (c *GenAIClient) GenerateTurn(ctx context.Context, input GenerationInput) (GenerationOutput, error) {
	prompt := characterPrompt(input)
	text, err := c.generateText(ctx, prompt)
	if err != nil {
		return GenerationOutput{}, err
	}
	return GenerationOutput{Utterance: text}, nil
}

func (c *GenAIClient) BridgeNarration(ctx context.Context, from, to domain.PlotNode) (string, error) {
	prompt := fmt.Sprintf(
		"You are the narrator of an ongoing slow-burn story. In one to two sentences, "+
			"bridge from the beat %q into the beat %q. The new beat's goal: %s. "+
			"Do not mention beats, nodes, or story structure. Write narration only.",
		from.Beat, to.Beat, to.Goal,
	)
	return c.generateText(ctx, prompt)
}

// ParseIntent reads control cues with the rule parser and keeps the raw
// message as the goal. Model-side intent extraction is intentionally not used
// for controls so slider updates stay exact.
func (c *GenAIClient) ParseIntent(ctx context.Context, message string) (Intent, error) {
	return c.ruleParser.ParseIntent(ctx, message)
}

func (c *GenAIClient) generateText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrGenerationFailure, err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty model response", ErrGenerationFailure)
	}
	return text, nil
}

func characterPrompt(input GenerationInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s.\n", input.Profile.Name, input.Profile.Role)
	if len(input.Profile.Traits) > 0 {
		fmt.Fprintf(&b, "Traits: %s.\n", strings.Join(input.Profile.Traits, ", "))
	}
	if input.Profile.Wants != "" {
		fmt.Fprintf(&b, "You want: %s.\n", input.Profile.Wants)
	}
	for _, limit := range input.Profile.Limits {
		fmt.Fprintf(&b, "Hard limit: %s.\n", limit)
	}
	for _, constraint := range input.Constraints {
		fmt.Fprintf(&b, "Director constraint: %s.\n", constraint)
	}
	fmt.Fprintf(&b, "Content sliders: spice %d/%d, angst %d/%d, comedy %d/%d.\n",
		input.Controls.Spice, domain.SpiceMax,
		input.Controls.Angst, domain.AngstMax,
		input.Controls.Comedy, domain.ComedyMax,
	)
	if len(input.Window) > 0 {
		b.WriteString("Recent scene:\n")
		for _, line := range input.Window {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	if input.Narration != "" {
		fmt.Fprintf(&b, "Narration just now: %s\n", input.Narration)
	}
	fmt.Fprintf(&b, "Your objective this turn: %s\n", input.Objective)
	b.WriteString("Reply with a single short in-character line of dialogue. No stage directions, no quotes.")
	return b.String()
}
