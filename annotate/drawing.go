// Package annotate maintains the screen annotations drawn by the user or
// requested by the model, with a bounded undo/redo history.
//
// All coordinates live in a canonical 0..1000 space on both axes so that
// annotations survive window resizes; renderers scale on output.
package annotate

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Extent is the upper bound of the canonical coordinate space.
const Extent = 1000.0

// Kind is the shape of a drawing.
type Kind string

const (
	KindPath   Kind = "path"
	KindRect   Kind = "rect"
	KindCircle Kind = "circle"
	KindArrow  Kind = "arrow"
	KindText   Kind = "text"
)

// Valid reports whether k is a known shape.
func (k Kind) Valid() bool {
	switch k {
	case KindPath, KindRect, KindCircle, KindArrow, KindText:
		return true
	}
	return false
}

const (
	ColorSolid   = "#ff3b30"
	ColorPreview = "rgba(255, 59, 48, 0.45)"

	DefaultLabel = "Note"
)

// Point is a position in canonical coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clamp limits p to the canonical space.
func (p Point) Clamp() Point {
	return Point{X: clamp(p.X), Y: clamp(p.Y)}
}

func (p Point) finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Drawing is a committed annotation. It is never mutated after commit;
// edits replace the whole list.
//
// X/Y is the anchor: the center for rect and circle, the first point for
// path and arrow, the baseline origin for text.
type Drawing struct {
	ID     string  `json:"id"`
	Kind   Kind    `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Points []Point `json:"points,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Radius float64 `json:"radius,omitempty"`
	Label  string  `json:"label,omitempty"`
	Color  string  `json:"color"`
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(Extent, v))
}

// newID returns a timestamp-derived id with a random suffix so that marks
// created in the same millisecond stay distinct.
func newID(now time.Time) string {
	return fmt.Sprintf("d%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

func cloneDrawings(in []Drawing) []Drawing {
	if len(in) == 0 {
		return []Drawing{}
	}
	out := make([]Drawing, len(in))
	copy(out, in)
	return out
}
