package engine

import (
	"context"
	"fmt"

	"github.com/stagecraft-live/stagecraft/internal/story/domain"
)

// Judge decides whether the current node should advance. Implementations see
// a staged state that already counts the turn being processed.
type Judge interface {
	Evaluate(ctx context.Context, state *domain.PlotState, window []WindowEntry) (domain.AdvanceDecision, error)
}

// RuleJudge combines the budget heuristic with lexical exit-condition
// matching: never advance below the node minimum, always advance at the hard
// cap, and in between require more than half the exit conditions evidenced in
// the recent window.
type RuleJudge struct {
	Matcher ConditionMatcher
}

func (j RuleJudge) Evaluate(ctx context.Context, state *domain.PlotState, window []WindowEntry) (domain.AdvanceDecision, error) {
	if err := state.Validate(); err != nil {
		return domain.AdvanceDecision{}, err
	}
	if state.AtFinalNode() {
		return domain.AdvanceDecision{Reason: "at final node"}, nil
	}

	budget := state.NodeBudget
	if state.NodeTurns >= budget.HardCap {
		return domain.AdvanceDecision{
			ShouldAdvance: true,
			Forced:        true,
			Reason:        fmt.Sprintf("hard cap reached at %d/%d node turns", state.NodeTurns, budget.HardCap),
		}, nil
	}
	if state.NodeTurns < budget.Min {
		return domain.AdvanceDecision{
			Reason: fmt.Sprintf("below node minimum (%d/%d turns)", state.NodeTurns, budget.Min),
		}, nil
	}

	matcher := j.Matcher
	if matcher == nil {
		matcher = KeywordMatcher{}
	}
	node := state.CurrentNode()
	met, _ := MatchConditions(matcher, node.ExitConditions, dialogueText(window))
	need := SemanticThreshold(len(node.ExitConditions))
	ready := met >= need
	decision := domain.AdvanceDecision{
		ShouldAdvance:     ready,
		Eligible:          true,
		SemanticallyReady: ready,
	}
	if ready {
		decision.Reason = fmt.Sprintf("%d/%d exit conditions evidenced", met, len(node.ExitConditions))
	} else {
		decision.Reason = fmt.Sprintf("only %d/%d exit conditions evidenced, need %d", met, len(node.ExitConditions), need)
	}
	return decision, nil
}
