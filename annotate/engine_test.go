package annotate

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t0 := time.UnixMilli(1_700_000_000_000)
	return func() time.Time { return t0 }
}

func TestEngineStrokeCommit(t *testing.T) {
	e := NewEngine(WithClock(fixedClock()))

	require.True(t, e.BeginStroke(KindRect, Point{200, 200}))
	e.ExtendStroke(Point{300, 260})

	preview, ok := e.Preview()
	require.True(t, ok)
	assert.Equal(t, previewID, preview.ID)
	assert.Equal(t, ColorPreview, preview.Color)
	assert.Equal(t, 250.0, preview.X)

	d, ok := e.EndStroke(Point{400, 300})
	require.True(t, ok)
	assert.Equal(t, KindRect, d.Kind)
	assert.Equal(t, 300.0, d.X)
	assert.Equal(t, 250.0, d.Y)
	assert.Equal(t, 200.0, d.Width)
	assert.Equal(t, 100.0, d.Height)
	assert.Equal(t, ColorSolid, d.Color)
	assert.NotEqual(t, previewID, d.ID)

	_, ok = e.Preview()
	assert.False(t, ok)
	assert.Equal(t, []Drawing{d}, e.Drawings())
	assert.True(t, e.State().CanUndo)
}

func TestEnginePreviewMatchesCommit(t *testing.T) {
	for _, kind := range []Kind{KindPath, KindRect, KindCircle, KindArrow, KindText} {
		t.Run(string(kind), func(t *testing.T) {
			e := NewEngine()
			e.BeginStroke(kind, Point{100, 100})
			e.ExtendStroke(Point{150, 180})
			e.ExtendStroke(Point{220, 260})

			preview, ok := e.Preview()
			require.True(t, ok)

			committed, ok := e.EndStroke(Point{220, 260})
			require.True(t, ok)

			// Geometry is shared; only identity and color differ. Paths
			// gain the duplicated release sample.
			if kind == KindPath {
				preview.Points = append(preview.Points, Point{220, 260})
			}
			preview.ID, preview.Color = committed.ID, committed.Color
			assert.Equal(t, preview, committed)
		})
	}
}

func TestEngineStrokeClampsToCanvas(t *testing.T) {
	e := NewEngine()
	e.BeginStroke(KindCircle, Point{-50, 1200})
	d, ok := e.EndStroke(Point{0, 1000})
	require.True(t, ok)
	assert.Equal(t, 0.0, d.X)
	assert.Equal(t, 1000.0, d.Y)
	assert.Equal(t, 0.0, d.Radius)
}

func TestEngineCancelStroke(t *testing.T) {
	e := NewEngine()
	e.BeginStroke(KindArrow, Point{1, 1})
	e.CancelStroke()

	_, ok := e.EndStroke(Point{5, 5})
	assert.False(t, ok)
	assert.Empty(t, e.Drawings())
	assert.False(t, e.State().CanUndo)
}

func TestEngineUndoRedoAfterClear(t *testing.T) {
	e := NewEngine()
	added := e.Add(Drawing{Kind: KindCircle, X: 500, Y: 500, Radius: 50})
	require.Len(t, added, 1)

	e.Clear()
	assert.Empty(t, e.Drawings())

	require.True(t, e.Undo())
	assert.Equal(t, added, e.Drawings())

	require.True(t, e.Redo())
	assert.Empty(t, e.Drawings())
	assert.False(t, e.Redo())
}

func TestEngineClearEmptyRecordsSnapshot(t *testing.T) {
	e := NewEngine()
	e.Clear()
	assert.True(t, e.State().CanUndo)
	assert.Equal(t, 0, e.history.Cursor())
	assert.Equal(t, 1, e.history.Len())
	assert.Empty(t, e.Drawings())

	e.Add(Drawing{Kind: KindRect})
	e.Clear()
	e.Clear()
	assert.Equal(t, 3, e.history.Cursor())

	require.True(t, e.Undo())
	assert.Empty(t, e.Drawings())
	require.True(t, e.Undo())
	assert.Len(t, e.Drawings(), 1)
}

func TestEngineUndoFromFirstSnapshot(t *testing.T) {
	e := NewEngine()
	e.Add(Drawing{Kind: KindText, Label: "hi"})

	require.True(t, e.Undo())
	assert.Empty(t, e.Drawings())
	assert.False(t, e.Undo())

	require.True(t, e.Redo())
	assert.Len(t, e.Drawings(), 1)
}

func TestEngineOnChange(t *testing.T) {
	e := NewEngine()
	var states []State
	e.OnChange(func(s State) { states = append(states, s) })

	e.BeginStroke(KindRect, Point{0, 0})
	e.ExtendStroke(Point{10, 10})
	e.EndStroke(Point{20, 20})
	e.Undo()

	require.Len(t, states, 4)
	assert.NotNil(t, states[0].Preview)
	assert.NotNil(t, states[1].Preview)
	assert.Nil(t, states[2].Preview)
	assert.Len(t, states[2].Drawings, 1)
	assert.True(t, states[2].CanUndo)
	assert.Empty(t, states[3].Drawings)
	assert.True(t, states[3].CanRedo)
}

func TestEngineUniqueIDs(t *testing.T) {
	e := NewEngine(WithClock(fixedClock()))
	seen := map[string]bool{}
	for range 100 {
		for _, d := range e.Add(Drawing{Kind: KindRect}) {
			require.False(t, seen[d.ID], "duplicate id %s", d.ID)
			seen[d.ID] = true
		}
	}
}

func TestEngineConcurrentUse(t *testing.T) {
	e := NewEngine()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for j := range 50 {
				switch (i + j) % 4 {
				case 0:
					e.Add(Drawing{Kind: KindRect})
				case 1:
					e.Undo()
				case 2:
					e.Redo()
				case 3:
					e.Clear()
				}
			}
		})
	}
	wg.Wait()

	st := e.State()
	assert.NotNil(t, st.Drawings)
}
