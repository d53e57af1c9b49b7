package generate

import (
	"context"
	"strconv"
	"strings"

	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

// RuleIntentParser reads director messages with keyword rules. It never
// fails: a message with no recognizable control cues is treated as a plain
// goal update.
type RuleIntentParser struct{}

func (RuleIntentParser) ParseIntent(ctx context.Context, message string) (Intent, error) {
	intent := Intent{}
	trimmed := strings.TrimSpace(message)
	lowered := strings.ToLower(trimmed)

	if pace, ok := paceCue(lowered); ok {
		intent.Controls.Pace = &pace
	}
	if level, ok := sliderCue(lowered, "spice", domain.SpiceMax); ok {
		intent.Controls.Spice = &level
	}
	if level, ok := sliderCue(lowered, "angst", domain.AngstMax); ok {
		intent.Controls.Angst = &level
	}
	if level, ok := sliderCue(lowered, "comedy", domain.ComedyMax); ok {
		intent.Controls.Comedy = &level
	}

	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		folded := strings.ToLower(line)
		if strings.HasPrefix(folded, "no ") || strings.HasPrefix(folded, "don't ") || strings.HasPrefix(folded, "never ") {
			intent.Constraints = append(intent.Constraints, line)
		}
	}

	if trimmed != "" && !isControlOnly(lowered) {
		intent.Goal = trimmed
	}
	return intent, nil
}

func paceCue(message string) (domain.Pace, bool) {
	switch {
	case strings.Contains(message, "speed up"), strings.Contains(message, "faster"), strings.Contains(message, "pace: fast"):
		return domain.PaceFast, true
	case strings.Contains(message, "slow down"), strings.Contains(message, "slower"), strings.Contains(message, "pace: slow"):
		return domain.PaceSlow, true
	case strings.Contains(message, "pace: med"), strings.Contains(message, "medium pace"):
		return domain.PaceMed, true
	}
	return "", false
}

// sliderCue recognizes "spice: 2", "spice 2", "more spice", "less spice".
func sliderCue(message, name string, max int) (int, bool) {
	idx := strings.Index(message, name)
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimLeft(message[idx+len(name):], ": ")
	if len(rest) > 0 {
		if n, err := strconv.Atoi(rest[:1]); err == nil {
			if n > max {
				n = max
			}
			return n, true
		}
	}
	if strings.Contains(message, "more "+name) || strings.Contains(message, "extra "+name) {
		return max, true
	}
	if strings.Contains(message, "less "+name) || strings.Contains(message, "no "+name) {
		return 0, true
	}
	return 0, false
}

// isControlOnly reports whether the message is purely a pacing or slider
// instruction, in which case it should not replace the standing story goal.
func isControlOnly(message string) bool {
	words := strings.Fields(message)
	if len(words) == 0 || len(words) > 4 {
		return false
	}
	for _, cue := range []string{"pace", "spice", "angst", "comedy", "speed up", "slow down", "faster", "slower"} {
		if strings.Contains(message, cue) {
			return true
		}
	}
	return false
}
