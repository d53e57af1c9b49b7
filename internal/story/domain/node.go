package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyNodes indicates a story needs at least one plot node.
	ErrEmptyNodes = errors.New("at least one plot node is required")
	// ErrEmptyBeat indicates a missing beat label.
	ErrEmptyBeat = errors.New("beat label is required")
	// ErrEmptyGoal indicates a missing node goal.
	ErrEmptyGoal = errors.New("node goal is required")
	// ErrNoExitConditions indicates a node without exit conditions.
	ErrNoExitConditions = errors.New("at least one exit condition is required")
	// ErrNodeIDMismatch indicates node IDs are not their ordinal positions.
	ErrNodeIDMismatch = errors.New("node id must match its position in the sequence")
)

// PlotNode is one discrete stage of the narrative arc. The sequence of nodes
// is immutable once a session is initialized.
type PlotNode struct {
	ID             int      `json:"id"`
	Beat           string   `json:"beat"`
	Goal           string   `json:"goal"`
	Stakes         string   `json:"stakes"`
	ExitConditions []string `json:"exit_conditions"`
}

// NormalizeNodes validates a node sequence and canonicalizes IDs and labels.
func NormalizeNodes(nodes []PlotNode) ([]PlotNode, error) {
	if len(nodes) == 0 {
		return nil, ErrEmptyNodes
	}

	normalized := make([]PlotNode, len(nodes))
	for i, node := range nodes {
		node.Beat = strings.TrimSpace(node.Beat)
		if node.Beat == "" {
			return nil, fmt.Errorf("node %d: %w", i, ErrEmptyBeat)
		}
		node.Goal = strings.TrimSpace(node.Goal)
		if node.Goal == "" {
			return nil, fmt.Errorf("node %d: %w", i, ErrEmptyGoal)
		}
		if node.ID != 0 && node.ID != i {
			return nil, fmt.Errorf("node %d: %w", i, ErrNodeIDMismatch)
		}
		node.ID = i

		conditions := make([]string, 0, len(node.ExitConditions))
		for _, condition := range node.ExitConditions {
			condition = strings.TrimSpace(condition)
			if condition != "" {
				conditions = append(conditions, condition)
			}
		}
		if len(conditions) == 0 {
			return nil, fmt.Errorf("node %d: %w", i, ErrNoExitConditions)
		}
		node.ExitConditions = conditions
		normalized[i] = node
	}
	return normalized, nil
}

// DefaultArc returns the standard nine-beat slow-burn ensemble arc used when a
// session is created without a custom node sequence.
func DefaultArc() []PlotNode {
	return []PlotNode{
		{
			ID:     0,
			Beat:   "Setup + Spark",
			Goal:   "Establish the setting, the group dynamic, and the first undeniable spark between the leads.",
			Stakes: "Low but intimate: a glance, a small rescue, a kindness that lingers.",
			ExitConditions: []string{
				"the protagonist notices the counterpart in a way she can't dismiss",
				"the counterpart gets a private moment that shows she sees through the protagonist",
			},
		},
		{
			ID:     1,
			Beat:   "Proximity Lock-in",
			Goal:   "Force repeated interaction through a shared task, project, or living arrangement.",
			Stakes: "They can't avoid each other; tension becomes routine.",
			ExitConditions: []string{
				"the leads must coordinate on something important",
				"the rival becomes aware of their closeness",
			},
		},
		{
			ID:     2,
			Beat:   "Seeded Misunderstanding",
			Goal:   "Introduce a believable misunderstanding without making anyone a villain.",
			Stakes: "Trust wobbles; subtext thickens.",
			ExitConditions: []string{
				"the counterpart reads an action as distance or rejection",
				"the rival unintentionally amplifies the misread",
			},
		},
		{
			ID:     3,
			Beat:   "Almost-Date",
			Goal:   "Create a scene that feels like a date but can be denied out loud.",
			Stakes: "A tender memory forms; denial hurts more.",
			ExitConditions: []string{
				"the leads share a soft moment of laughter or quiet help",
				"the protagonist almost says something real but stops",
			},
		},
		{
			ID:     4,
			Beat:   "Vulnerability Reveal",
			Goal:   "One character reveals a fear or need indirectly.",
			Stakes: "Emotional intimacy increases; the stakes become personal.",
			ExitConditions: []string{
				"the protagonist reveals a fear through action or subtext",
				"the counterpart responds with care, not pressure",
			},
		},
		{
			ID:     5,
			Beat:   "External Pressure",
			Goal:   "Add outside stakes: a rumor, a deadline, a public scene.",
			Stakes: "They must choose how to show up in public.",
			ExitConditions: []string{
				"the rival triggers or embodies the external pressure",
				"the protagonist makes a protective choice that has a cost",
			},
		},
		{
			ID:     6,
			Beat:   "Choice Point",
			Goal:   "Force a decision: hide or risk, retreat or reach.",
			Stakes: "A turning point that can't be undone.",
			ExitConditions: []string{
				"the counterpart asks for clarity, directly or indirectly",
				"the protagonist takes a measurable step",
			},
		},
		{
			ID:     7,
			Beat:   "Confession",
			Goal:   "Deliver a confession or near-confession aligned with the pace.",
			Stakes: "Slow pace earns an imperfect confession; fast pace a direct one.",
			ExitConditions: []string{
				"the protagonist states desire or chooses the counterpart in unmistakable terms",
				"the counterpart accepts with boundaries",
			},
		},
		{
			ID:     8,
			Beat:   "Aftermath + Hook",
			Goal:   "Process consequences, restore safety, and tease the next arc.",
			Stakes: "Hope and fear together; a new problem surfaces.",
			ExitConditions: []string{
				"the leads define what they are to each other for now",
				"a new complication is introduced as a gentle cliffhanger",
			},
		},
	}
}
