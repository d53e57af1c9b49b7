package engine

import (
	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

// QualityMonitor recomputes the bounded risk flags every turn from the recent
// window and the staged counters. All scores are lexical heuristics over the
// window only; they never read beyond it.
type QualityMonitor struct{}

// Score returns flags in [0,1]. Repetition looks at duplicated bigrams across
// the whole window, drift at how far each character's lines have wandered
// from their persona lexicon, and stall at how deep the node is into its
// budget past target.
func (QualityMonitor) Score(state *domain.PlotState, window []WindowEntry) domain.QualityFlags {
	return domain.QualityFlags{
		RepetitionRisk:     repetitionRisk(window),
		CharacterDriftRisk: driftRisk(state.Characters, window),
		PlotStallRisk:      stallRisk(state.NodeTurns, state.NodeBudget),
	}
}

// minRepetitionBigrams keeps tiny windows from scoring noise.
const minRepetitionBigrams = 8

func repetitionRisk(window []WindowEntry) float64 {
	var bigrams []string
	for _, entry := range window {
		tokens := tokenize(entry.Text)
		for i := 0; i+1 < len(tokens); i++ {
			bigrams = append(bigrams, tokens[i]+" "+tokens[i+1])
		}
	}
	if len(bigrams) < minRepetitionBigrams {
		return 0
	}
	seen := make(map[string]struct{}, len(bigrams))
	duplicates := 0
	for _, bigram := range bigrams {
		if _, dup := seen[bigram]; dup {
			duplicates++
			continue
		}
		seen[bigram] = struct{}{}
	}
	return clamp01(2 * float64(duplicates) / float64(len(bigrams)))
}

// minDriftLines is how many lines a character must have in the window before
// drift is scored for them.
const minDriftLines = 3

func driftRisk(characters []domain.CharacterProfile, window []WindowEntry) float64 {
	worst := 0.0
	for _, character := range characters {
		lexicon := personaLexicon(character)
		if len(lexicon) == 0 {
			continue
		}
		lines, anchored := 0, 0
		for _, entry := range window {
			if entry.Speaker != character.ID {
				continue
			}
			lines++
			for _, token := range tokenize(entry.Text) {
				if _, ok := lexicon[token]; ok {
					anchored++
					break
				}
			}
		}
		if lines < minDriftLines {
			continue
		}
		drift := 1 - float64(anchored)/float64(lines)
		if drift > worst {
			worst = drift
		}
	}
	return clamp01(worst)
}

func personaLexicon(character domain.CharacterProfile) map[string]struct{} {
	lexicon := make(map[string]struct{})
	add := func(text string) {
		for _, token := range tokenize(text) {
			if len([]rune(token)) >= 4 {
				lexicon[token] = struct{}{}
			}
		}
	}
	for _, trait := range character.Traits {
		add(trait)
	}
	add(character.Wants)
	return lexicon
}

func stallRisk(nodeTurns int, budget domain.NodeBudget) float64 {
	if nodeTurns <= budget.Target {
		return 0
	}
	span := budget.HardCap - budget.Target
	if span <= 0 {
		return 1
	}
	return clamp01(float64(nodeTurns-budget.Target) / float64(span))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
