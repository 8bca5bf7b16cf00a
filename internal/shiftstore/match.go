package shiftstore

// Match tries to build the sequence in which anchor occupies slot. band must
// contain the anchor. The first sequence satisfying the acceptance rule is
// returned; no search for a better alternative inside the band is made.
func Match(anchor Source, band []Source, slot int, p Params) (Sequence, bool) {
	p = p.WithDefaults()
	if slot < 0 || slot > len(p.Shifts) {
		return Sequence{}, false
	}

	expected := p.Axes.Trail(anchor)
	for j := 0; j < slot; j++ {
		expected -= p.Shifts[j]
	}

	// matched candidates leave the band for the rest of this attempt
	taken := make([]bool, len(band))
	for i := range band {
		if band[i].ID == anchor.ID {
			taken[i] = true
		}
	}

	seq := Sequence{Anchor: anchor, AnchorSlot: slot, Elements: make([]Element, 0, p.TargetLen())}
	placeholders := 0
	for sh := 0; sh <= len(p.Shifts); sh++ {
		if sh == slot {
			seq.Elements = append(seq.Elements, Present{Source: anchor})
		} else if i := closest(band, taken, anchor, expected, p); i >= 0 {
			taken[i] = true
			seq.Elements = append(seq.Elements, Present{Source: band[i]})
		} else {
			if !p.Partial() {
				return Sequence{}, false
			}
			x, y := p.Axes.Point(expected, p.Axes.Window(anchor))
			seq.Elements = append(seq.Elements, Absent{X: x, Y: y})
			placeholders++
		}
		if sh < len(p.Shifts) {
			expected += p.Shifts[sh]
		}
	}

	if placeholders == 0 {
		return seq, true
	}
	if p.TargetLen()-placeholders >= p.PartialLen {
		return seq, true
	}
	return Sequence{}, false
}

// closest picks the untaken band member within tolerance of the expected trail
// position whose magnitude is nearest the anchor's. Ties go to the smaller
// positional error, then the lower id, so band order never affects the choice.
func closest(band []Source, taken []bool, anchor Source, expected float64, p Params) int {
	best := -1
	var bestMag, bestDist float64
	for i, c := range band {
		if taken[i] {
			continue
		}
		dist := abs(p.Axes.Trail(c) - expected)
		if dist >= p.PositionTolerance {
			continue
		}
		dmag := abs(c.Mag - anchor.Mag)
		switch {
		case best < 0,
			dmag < bestMag,
			dmag == bestMag && dist < bestDist,
			dmag == bestMag && dist == bestDist && c.ID < band[best].ID:
			best, bestMag, bestDist = i, dmag, dist
		}
	}
	return best
}
