package shiftstore

// Element occupies one slot of a sequence. It is either Present or Absent.
type Element interface {
	// Position reports the image coordinates of the element, measured for
	// Present and expected for Absent.
	Position() (x, y float64)
	isElement()
}

// Present is a slot filled by a real detection.
type Present struct {
	Source Source
}

func (p Present) Position() (float64, float64) { return p.Source.X, p.Source.Y }
func (Present) isElement() {}

// Absent is a placeholder for a slot where no detection matched.
type Absent struct {
	X, Y float64
}

func (a Absent) Position() (float64, float64) { return a.X, a.Y }
func (Absent) isElement() {}

// Sequence is one star observed at every slot of the shift pattern.
type Sequence struct {
	Anchor     Source
	AnchorSlot int
	Elements   []Element
}

// Len is the number of filled slots, placeholders included.
func (s Sequence) Len() int { return len(s.Elements) }

// Placeholders counts Absent slots.
func (s Sequence) Placeholders() int {
	n := 0
	for _, e := range s.Elements {
		if _, ok := e.(Absent); ok {
			n++
		}
	}
	return n
}

// IDs lists the ids of the Present members in slot order.
func (s Sequence) IDs() []int {
	ids := make([]int, 0, len(s.Elements))
	for _, e := range s.Elements {
		if p, ok := e.(Present); ok {
			ids = append(ids, p.Source.ID)
		}
	}
	return ids
}

// At returns the source at slot, if one was detected there.
func (s Sequence) At(slot int) (Source, bool) {
	if slot < 0 || slot >= len(s.Elements) {
		return Source{}, false
	}
	p, ok := s.Elements[slot].(Present)
	return p.Source, ok
}
