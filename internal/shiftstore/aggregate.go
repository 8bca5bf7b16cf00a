package shiftstore

import (
	"fmt"
	"sort"
)

// FitInput is handed to the focus-curve fit. Positions and Widths are aligned.
type FitInput struct {
	Positions    []float64
	Widths       []float64
	Contributors []int
	Dropped      []DroppedPosition
}

// DefaultPositions labels slots 0 through n-1.
func DefaultPositions(n int) []float64 {
	pos := make([]float64, n)
	for i := range pos {
		pos[i] = float64(i)
	}
	return pos
}

// Aggregate reduces accepted sequences to the median width at each focuser
// position. Positions with fewer than minContributors widths are dropped and
// listed in FitInput.Dropped. positions must have one label per pattern slot.
func Aggregate(seqs []Sequence, positions []float64, minContributors int) (FitInput, error) {
	var in FitInput
	for _, seq := range seqs {
		if seq.Len() != len(positions) {
			return in, fmt.Errorf("sequence of %d slots does not match %d focuser positions", seq.Len(), len(positions))
		}
	}

	for slot, pos := range positions {
		widths := make([]float64, 0, len(seqs))
		for _, seq := range seqs {
			if p, ok := seq.Elements[slot].(Present); ok {
				widths = append(widths, p.Source.FWHM)
			}
		}
		if len(widths) == 0 || len(widths) < minContributors {
			in.Dropped = append(in.Dropped, DroppedPosition{Slot: slot, Position: pos, Contributors: len(widths)})
			continue
		}
		in.Positions = append(in.Positions, pos)
		in.Widths = append(in.Widths, Median(widths))
		in.Contributors = append(in.Contributors, len(widths))
	}
	return in, nil
}

// Median returns the middle value, averaging the two central values for even
// lengths. vals is not modified.
func Median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
