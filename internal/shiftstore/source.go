package shiftstore

import "sort"

// Source is a single detection produced by the external detector.
type Source struct {
	ID        int     `json:"id" yaml:"id"`
	X         float64 `json:"x" yaml:"x"`
	Y         float64 `json:"y" yaml:"y"`
	Mag       float64 `json:"mag" yaml:"mag"`
	FWHM      float64 `json:"fwhm" yaml:"fwhm"`
	Flags     int     `json:"flags" yaml:"flags"`
	ClassStar float64 `json:"class_star,omitempty" yaml:"class_star,omitempty"`
	A         float64 `json:"a,omitempty" yaml:"a,omitempty"`
	B         float64 `json:"b,omitempty" yaml:"b,omitempty"`
	Ext       int     `json:"ext,omitempty" yaml:"ext,omitempty"`
}

// Axes selects which coordinate the shift pattern moves along.
// Horizontal trails run parallel to X, so X is the trail axis and Y the window axis.
type Axes struct {
	Horizontal bool
}

// Trail returns the coordinate along which the shift pattern progresses.
func (a Axes) Trail(s Source) float64 {
	if a.Horizontal {
		return s.X
	}
	return s.Y
}

// Window returns the coordinate held constant across a sequence.
func (a Axes) Window(s Source) float64 {
	if a.Horizontal {
		return s.Y
	}
	return s.X
}

// Point builds image coordinates from a trail and window value.
func (a Axes) Point(trail, window float64) (x, y float64) {
	if a.Horizontal {
		return trail, window
	}
	return window, trail
}

// SortByMagnitude orders a catalog brightest first. Equal magnitudes keep id order
// so runs over the same catalog are reproducible.
func SortByMagnitude(catalog []Source) {
	sort.SliceStable(catalog, func(i, j int) bool {
		if catalog[i].Mag != catalog[j].Mag {
			return catalog[i].Mag < catalog[j].Mag
		}
		return catalog[i].ID < catalog[j].ID
	})
}

// CandidateBand returns the catalog members whose window coordinate lies within
// tolerance of the anchor, sorted by trail coordinate. The anchor is always part of
// the band. skip, when non-nil, removes members from consideration; it is never
// applied to the anchor itself.
func CandidateBand(catalog []Source, anchor Source, tolerance float64, axes Axes, skip func(Source) bool) []Source {
	w := axes.Window(anchor)
	band := make([]Source, 0, 16)
	hasAnchor := false
	for _, s := range catalog {
		if s.ID == anchor.ID {
			hasAnchor = true
			band = append(band, anchor)
			continue
		}
		if skip != nil && skip(s) {
			continue
		}
		if abs(w-axes.Window(s)) < tolerance {
			band = append(band, s)
		}
	}
	if !hasAnchor {
		band = append(band, anchor)
	}
	sort.SliceStable(band, func(i, j int) bool {
		ti, tj := axes.Trail(band[i]), axes.Trail(band[j])
		if ti != tj {
			return ti < tj
		}
		return band[i].ID < band[j].ID
	})
	return band
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
