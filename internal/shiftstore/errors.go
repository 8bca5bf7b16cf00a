package shiftstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSequence is the normal outcome for an anchor no hypothesis could place.
	ErrNoSequence = errors.New("no sequence found")
	// ErrInsufficientCandidates means the candidate band is smaller than the shift pattern.
	ErrInsufficientCandidates = fmt.Errorf("%w: insufficient candidates", ErrNoSequence)
)

// ShortfallError reports a run that ended with fewer sequences than requested.
type ShortfallError struct {
	Found  int
	Target int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("only %d sequences found, %d required", e.Found, e.Target)
}

// DroppedPosition describes a focuser position excluded from the fit input
// because too few sequences contributed a width to it.
type DroppedPosition struct {
	Slot         int
	Position     float64
	Contributors int
}

func (d DroppedPosition) String() string {
	return fmt.Sprintf("slot %d (focuser %g): %d contributors", d.Slot, d.Position, d.Contributors)
}
