package annotate

import "math"

// Derive computes the shape for a gesture from its sampled points. The
// first point is the press position and the last is the current or release
// position. Preview and commit both go through Derive so that what the user
// sees while dragging is exactly what gets committed.
//
// It reports false when there are not enough points for the shape.
func Derive(kind Kind, points []Point) (Drawing, bool) {
	if len(points) == 0 || !kind.Valid() {
		return Drawing{}, false
	}
	start, cur := points[0], points[len(points)-1]

	d := Drawing{Kind: kind}
	switch kind {
	case KindPath:
		d.X, d.Y = start.X, start.Y
		d.Points = append([]Point(nil), points...)
	case KindRect:
		d.X = (start.X + cur.X) / 2
		d.Y = (start.Y + cur.Y) / 2
		d.Width = math.Abs(cur.X - start.X)
		d.Height = math.Abs(cur.Y - start.Y)
	case KindCircle:
		d.X, d.Y = start.X, start.Y
		d.Radius = math.Hypot(cur.X-start.X, cur.Y-start.Y)
	case KindArrow:
		d.X, d.Y = start.X, start.Y
		d.Points = []Point{start, cur}
	case KindText:
		d.X, d.Y = cur.X, cur.Y
		d.Label = DefaultLabel
	}
	return d, true
}
