package engine

import (
	"context"
	"fmt"

	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

// Critic reviews an advance candidate for earned pacing. It only runs when
// the judge proposed advancement.
type Critic interface {
	Review(ctx context.Context, state *domain.PlotState, decision domain.AdvanceDecision, window []WindowEntry) (domain.CriticVerdict, error)
}

// RuleCritic holds un-forced advances to a pace-weighted turn bar: fast pace
// approves as soon as the node minimum is met, med one turn shy of target,
// slow at the full target. A stalling node lowers the bar by one turn so the
// gate never grinds a scene that has run out of road. Forced advances are
// always approved; the hard cap is the forcing function and the critic must
// not override it.
type RuleCritic struct {
	Matcher ConditionMatcher
}

func (c RuleCritic) Review(ctx context.Context, state *domain.PlotState, decision domain.AdvanceDecision, window []WindowEntry) (domain.CriticVerdict, error) {
	if decision.Forced {
		return domain.CriticVerdict{
			ApproveAdvance: true,
			Why:            "hard cap reached; advancing to protect pacing",
		}, nil
	}

	bar := paceBar(state.Controls.Pace, state.NodeBudget)
	if state.QualityFlags.PlotStallRisk > 0.6 && bar > state.NodeBudget.Min {
		bar--
	}
	if state.NodeTurns >= bar {
		return domain.CriticVerdict{
			ApproveAdvance: true,
			Why:            fmt.Sprintf("beat has had room to land (%d turns at %s pace)", state.NodeTurns, state.Controls.Pace),
		}, nil
	}

	matcher := c.Matcher
	if matcher == nil {
		matcher = KeywordMatcher{}
	}
	_, unmet := MatchConditions(matcher, state.CurrentNode().ExitConditions, dialogueText(window))
	extra := bar - state.NodeTurns
	return domain.CriticVerdict{
		ApproveAdvance:         false,
		Why:                    fmt.Sprintf("advancing at %d turns would rush a %s-pace beat", state.NodeTurns, state.Controls.Pace),
		RequiredBeforeAdvance:  unmet,
		SuggestedMinExtraTurns: extra,
	}, nil
}

func paceBar(pace domain.Pace, budget domain.NodeBudget) int {
	switch pace {
	case domain.PaceFast:
		return budget.Min
	case domain.PaceMed:
		bar := budget.Target - 1
		if bar < budget.Min {
			bar = budget.Min
		}
		return bar
	default:
		return budget.Target
	}
}
