package shiftstore

import (
	"errors"
	"fmt"
)

const (
	DefaultWindowTolerance   = 5.0
	DefaultPositionTolerance = 5.0
)

// Params configures sequence matching for one run.
type Params struct {
	// Shifts are the pixel offsets between consecutive slots along the trail axis.
	Shifts []float64
	Axes   Axes
	// WindowTolerance bounds the candidate band across the trail.
	WindowTolerance float64
	// PositionTolerance bounds the distance from an expected slot position.
	PositionTolerance float64
	// PartialLen enables partial matching when positive: a sequence with
	// placeholders is accepted when at least PartialLen slots are real.
	PartialLen int
}

// TargetLen is the number of slots in a full sequence.
func (p Params) TargetLen() int { return len(p.Shifts) + 1 }

// Partial reports whether partial matching is enabled.
func (p Params) Partial() bool { return p.PartialLen > 0 }

// WithDefaults fills unset tolerances.
func (p Params) WithDefaults() Params {
	if p.WindowTolerance <= 0 {
		p.WindowTolerance = DefaultWindowTolerance
	}
	if p.PositionTolerance <= 0 {
		p.PositionTolerance = DefaultPositionTolerance
	}
	return p
}

// Validate rejects parameter sets no catalog could satisfy.
func (p Params) Validate() error {
	if len(p.Shifts) == 0 {
		return errors.New("shift pattern is empty")
	}
	if p.PartialLen < 0 {
		return fmt.Errorf("partial length %d is negative", p.PartialLen)
	}
	if p.PartialLen > p.TargetLen() {
		return fmt.Errorf("partial length %d exceeds pattern length %d", p.PartialLen, p.TargetLen())
	}
	return nil
}
