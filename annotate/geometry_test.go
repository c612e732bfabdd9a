package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name   string
		kind   Kind
		points []Point
		want   Drawing
	}{
		{
			name:   "rect centered between corners",
			kind:   KindRect,
			points: []Point{{200, 200}, {260, 240}, {400, 300}},
			want:   Drawing{Kind: KindRect, X: 300, Y: 250, Width: 200, Height: 100},
		},
		{
			name:   "rect dragged up and left",
			kind:   KindRect,
			points: []Point{{400, 300}, {200, 200}},
			want:   Drawing{Kind: KindRect, X: 300, Y: 250, Width: 200, Height: 100},
		},
		{
			name:   "circle centered at press",
			kind:   KindCircle,
			points: []Point{{100, 100}, {130, 140}},
			want:   Drawing{Kind: KindCircle, X: 100, Y: 100, Radius: 50},
		},
		{
			name:   "arrow keeps first and last",
			kind:   KindArrow,
			points: []Point{{10, 10}, {50, 80}, {90, 20}},
			want:   Drawing{Kind: KindArrow, X: 10, Y: 10, Points: []Point{{10, 10}, {90, 20}}},
		},
		{
			name:   "path keeps every point",
			kind:   KindPath,
			points: []Point{{1, 1}, {2, 3}, {5, 8}},
			want:   Drawing{Kind: KindPath, X: 1, Y: 1, Points: []Point{{1, 1}, {2, 3}, {5, 8}}},
		},
		{
			name:   "text at release point",
			kind:   KindText,
			points: []Point{{10, 10}, {700, 650}},
			want:   Drawing{Kind: KindText, X: 700, Y: 650, Label: DefaultLabel},
		},
		{
			name:   "single point rect is degenerate",
			kind:   KindRect,
			points: []Point{{5, 5}},
			want:   Drawing{Kind: KindRect, X: 5, Y: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Derive(tt.kind, tt.points)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveRejects(t *testing.T) {
	_, ok := Derive(KindRect, nil)
	assert.False(t, ok)

	_, ok = Derive(Kind("hexagon"), []Point{{1, 1}})
	assert.False(t, ok)
}

func TestDeriveDoesNotAliasInput(t *testing.T) {
	pts := []Point{{1, 1}, {2, 2}}
	d, ok := Derive(KindPath, pts)
	require.True(t, ok)

	pts[0] = Point{99, 99}
	assert.Equal(t, Point{1, 1}, d.Points[0])
}
