package overlay

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"shiftstore/internal/shiftstore"

	"gopkg.in/gographics/imagick.v3/imagick"
)

// Kind selects how a mark is drawn.
type Kind int

const (
	// KindAnchor marks an anchor the collector examined.
	KindAnchor Kind = iota
	// KindPresent marks a detected sequence member.
	KindPresent
	// KindAbsent marks the expected position of a missing member.
	KindAbsent
)

func (k Kind) String() string {
	switch k {
	case KindAnchor:
		return "anchor"
	case KindPresent:
		return "present"
	case KindAbsent:
		return "absent"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) color() string {
	switch k {
	case KindPresent:
		return "green"
	case KindAbsent:
		return "red"
	default:
		return "yellow"
	}
}

// Mark is one shape to draw, in catalog pixel coordinates.
type Mark struct {
	Kind     Kind    `json:"kind"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Sequence int     `json:"sequence"` // index of the accepted sequence, -1 for anchors
}

// Recorder is a collector observer that remembers what to draw.
type Recorder struct {
	mu       sync.Mutex
	marks    []Mark
	accepted int
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) AnchorExamined(anchor shiftstore.Source, band []shiftstore.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marks = append(r.marks, Mark{Kind: KindAnchor, X: anchor.X, Y: anchor.Y, Sequence: -1})
}

func (r *Recorder) SequenceAccepted(seq shiftstore.Sequence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, el := range seq.Elements {
		kind := KindPresent
		if _, ok := el.(shiftstore.Absent); ok {
			kind = KindAbsent
		}
		x, y := el.Position()
		r.marks = append(r.marks, Mark{Kind: kind, X: x, Y: y, Sequence: r.accepted})
	}
	r.accepted++
}

func (r *Recorder) SequenceRejected(shiftstore.Source, error) {}

// Marks returns a copy of the recorded marks in notification order.
func (r *Recorder) Marks() []Mark {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mark(nil), r.marks...)
}

// Style controls mark geometry.
type Style struct {
	Radius      float64
	StrokeWidth float64
}

// DefaultStyle matches the region size used for quick-look frames.
var DefaultStyle = Style{Radius: 6, StrokeWidth: 1.5}

// Render draws marks over the image at input and writes the result to output.
// Catalog coordinates are 1-based, image pixels 0-based.
func Render(input, output string, marks []Mark, style Style) error {
	if style.Radius <= 0 {
		style = DefaultStyle
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("create overlay directory: %w", err)
	}

	imagick.Initialize()
	defer imagick.Terminate()

	mw := imagick.NewMagickWand()
	defer mw.Destroy()
	if err := mw.ReadImage(input); err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	if err := mw.SetImageColorspace(imagick.COLORSPACE_SRGB); err != nil {
		return fmt.Errorf("failed to set colorspace: %w", err)
	}

	dw := imagick.NewDrawingWand()
	defer dw.Destroy()
	stroke := imagick.NewPixelWand()
	defer stroke.Destroy()
	fill := imagick.NewPixelWand()
	defer fill.Destroy()

	fill.SetColor("none")
	dw.SetFillColor(fill)
	dw.SetStrokeWidth(style.StrokeWidth)

	for _, m := range marks {
		stroke.SetColor(m.Kind.color())
		dw.SetStrokeColor(stroke)
		x, y := m.X-1, m.Y-1
		switch m.Kind {
		case KindAbsent:
			dw.Rectangle(x-style.Radius, y-style.Radius, x+style.Radius, y+style.Radius)
		case KindAnchor:
			dw.Circle(x, y, x+style.Radius*1.5, y)
		default:
			dw.Circle(x, y, x+style.Radius, y)
		}
	}

	if err := mw.DrawImage(dw); err != nil {
		return fmt.Errorf("failed to draw marks: %w", err)
	}
	if err := mw.WriteImage(output); err != nil {
		return fmt.Errorf("failed to write overlay: %w", err)
	}
	return nil
}
