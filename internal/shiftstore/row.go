package shiftstore

// FindRow places anchor at every slot of the shift pattern in turn and returns
// the sequence it belongs to.
//
// Without partial matching the first hypothesis producing a full sequence wins.
// With partial matching every hypothesis is tried and the one with the fewest
// placeholders is kept; earlier slots win ties.
func FindRow(anchor Source, band []Source, p Params) (Sequence, error) {
	p = p.WithDefaults()
	if len(band) < len(p.Shifts) {
		return Sequence{}, ErrInsufficientCandidates
	}

	var best Sequence
	found := false
	for slot := 0; slot <= len(p.Shifts); slot++ {
		seq, ok := Match(anchor, band, slot, p)
		if !ok {
			continue
		}
		if !p.Partial() {
			return seq, nil
		}
		if !found || seq.Placeholders() < best.Placeholders() {
			best, found = seq, true
		}
		if best.Placeholders() == 0 {
			break
		}
	}

	if found && best.Len()-best.Placeholders() >= p.PartialLen {
		return best, nil
	}
	return Sequence{}, ErrNoSequence
}
