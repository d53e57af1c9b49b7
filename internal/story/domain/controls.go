package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Pace describes how quickly the director wants the arc to progress.
type Pace string

const (
	// PaceSlow favors long nodes and a wide session turn band.
	PaceSlow Pace = "slow"
	// PaceMed is the balanced default band.
	PaceMed Pace = "med"
	// PaceFast favors short nodes and early advancement.
	PaceFast Pace = "fast"
)

const (
	// SpiceMax is the upper bound of the spice control.
	SpiceMax = 3
	// AngstMax is the upper bound of the angst control.
	AngstMax = 3
	// ComedyMax is the upper bound of the comedy control.
	ComedyMax = 2
)

var (
	// ErrControlValueInvalid indicates a control value outside its enumerated set.
	ErrControlValueInvalid = errors.New("control value is invalid")
)

// Controls are the director's pacing and content sliders.
type Controls struct {
	Pace   Pace `json:"pace"`
	Spice  int  `json:"spice"`
	Angst  int  `json:"angst"`
	Comedy int  `json:"comedy"`
}

// DefaultControls returns the session defaults applied when the director has
// not supplied any.
func DefaultControls() Controls {
	return Controls{Pace: PaceSlow, Spice: 1, Angst: 2, Comedy: 1}
}

// Validate checks every control against its enumerated range.
func (c Controls) Validate() error {
	switch c.Pace {
	case PaceSlow, PaceMed, PaceFast:
	default:
		return fmt.Errorf("%w: pace %q", ErrControlValueInvalid, c.Pace)
	}
	if c.Spice < 0 || c.Spice > SpiceMax {
		return fmt.Errorf("%w: spice %d", ErrControlValueInvalid, c.Spice)
	}
	if c.Angst < 0 || c.Angst > AngstMax {
		return fmt.Errorf("%w: angst %d", ErrControlValueInvalid, c.Angst)
	}
	if c.Comedy < 0 || c.Comedy > ComedyMax {
		return fmt.Errorf("%w: comedy %d", ErrControlValueInvalid, c.Comedy)
	}
	return nil
}

// ControlsPatch carries a partial controls update. Nil fields are untouched.
type ControlsPatch struct {
	Pace   *Pace `json:"pace,omitempty"`
	Spice  *int  `json:"spice,omitempty"`
	Angst  *int  `json:"angst,omitempty"`
	Comedy *int  `json:"comedy,omitempty"`
}

// Apply validates the patch against the current controls and returns the
// merged result. The receiver is never mutated; an invalid patch returns the
// current controls unchanged alongside the error.
func (c Controls) Apply(patch ControlsPatch) (Controls, error) {
	next := c
	if patch.Pace != nil {
		next.Pace = Pace(strings.ToLower(strings.TrimSpace(string(*patch.Pace))))
	}
	if patch.Spice != nil {
		next.Spice = *patch.Spice
	}
	if patch.Angst != nil {
		next.Angst = *patch.Angst
	}
	if patch.Comedy != nil {
		next.Comedy = *patch.Comedy
	}
	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}

// NodeBudget bounds how many turns the current node may consume.
type NodeBudget struct {
	Min     int `json:"min"`
	Target  int `json:"target"`
	HardCap int `json:"hard_cap"`
}

// Validate checks budget ordering.
func (b NodeBudget) Validate() error {
	if b.Min < 0 || b.Min > b.Target || b.Target > b.HardCap {
		return fmt.Errorf("%w: node budget min=%d target=%d hard_cap=%d", ErrStateInvalid, b.Min, b.Target, b.HardCap)
	}
	return nil
}

// TurnBudget is the overall session turn band selected by pace.
type TurnBudget struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// PaceBudgets returns the node and session turn budgets for a pace setting.
func PaceBudgets(pace Pace) (NodeBudget, TurnBudget) {
	switch pace {
	case PaceFast:
		return NodeBudget{Min: 2, Target: 3, HardCap: 5}, TurnBudget{Min: 28, Max: 55}
	case PaceMed:
		return NodeBudget{Min: 3, Target: 4, HardCap: 6}, TurnBudget{Min: 40, Max: 75}
	default:
		return NodeBudget{Min: 3, Target: 5, HardCap: 7}, TurnBudget{Min: 50, Max: 90}
	}
}
