package annotate

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(ids ...string) []Drawing {
	out := make([]Drawing, len(ids))
	for i, id := range ids {
		out[i] = Drawing{ID: id, Kind: KindRect}
	}
	return out
}

func ids(ds []Drawing) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func TestHistoryEmpty(t *testing.T) {
	h := NewHistory(0)

	assert.Equal(t, -1, h.Cursor())
	assert.False(t, h.CanUndo())
	assert.False(t, h.CanRedo())
	assert.Empty(t, h.Current())

	_, ok := h.Undo()
	assert.False(t, ok)
	_, ok = h.Redo()
	assert.False(t, ok)
}

func TestHistoryPushTruncatesRedoBranch(t *testing.T) {
	h := NewHistory(0)
	h.Push(snap("A"))
	h.Push(snap("A", "B"))
	h.Push(snap("A", "B", "C"))
	require.Equal(t, 2, h.Cursor())

	cur, ok := h.Undo()
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, ids(cur))
	assert.Equal(t, 1, h.Cursor())
	assert.True(t, h.CanRedo())

	h.Push(snap("A", "B", "D"))
	assert.Equal(t, 2, h.Cursor())
	assert.Equal(t, 3, h.Len())
	assert.False(t, h.CanRedo())
	assert.Equal(t, []string{"A", "B", "D"}, ids(h.Current()))
}

func TestHistoryUndoToEmptyAndRedoBack(t *testing.T) {
	h := NewHistory(0)
	h.Push(snap("A"))

	cur, ok := h.Undo()
	require.True(t, ok)
	assert.Empty(t, cur)
	assert.Equal(t, -1, h.Cursor())
	assert.False(t, h.CanUndo())

	cur, ok = h.Redo()
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, ids(cur))
	assert.Equal(t, 0, h.Cursor())
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(DefaultHistoryLimit)
	for i := range 60 {
		h.Push(snap(string(rune('a' + i%26))))
	}
	assert.Equal(t, DefaultHistoryLimit, h.Len())
	assert.Equal(t, DefaultHistoryLimit-1, h.Cursor())

	// Walk back to the oldest surviving snapshot, then once more to empty.
	for range DefaultHistoryLimit {
		_, ok := h.Undo()
		require.True(t, ok)
	}
	assert.Equal(t, -1, h.Cursor())
	_, ok := h.Undo()
	assert.False(t, ok)
}

func TestHistoryEvictionAfterUndo(t *testing.T) {
	h := NewHistory(3)
	h.Push(snap("1"))
	h.Push(snap("2"))
	h.Push(snap("3"))
	h.Undo()
	h.Push(snap("4"))
	h.Push(snap("5"))

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 2, h.Cursor())
	assert.Equal(t, []string{"5"}, ids(h.Current()))
	h.Undo()
	assert.Equal(t, []string{"4"}, ids(h.Current()))
	h.Undo()
	assert.Equal(t, []string{"2"}, ids(h.Current()))
}

func TestHistoryCursorInvariant(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	h := NewHistory(DefaultHistoryLimit)
	for i := range 2000 {
		switch r.IntN(3) {
		case 0:
			h.Push(snap(string(rune('a' + i%26))))
		case 1:
			h.Undo()
		case 2:
			h.Redo()
		}
		require.LessOrEqual(t, h.Len(), DefaultHistoryLimit)
		require.GreaterOrEqual(t, h.Cursor(), -1)
		require.LessOrEqual(t, h.Cursor(), h.Len()-1)
	}
}

func TestHistorySnapshotsAreIsolated(t *testing.T) {
	h := NewHistory(0)
	list := snap("A")
	h.Push(list)
	list[0].ID = "mutated"

	assert.Equal(t, []string{"A"}, ids(h.Current()))

	cur := h.Current()
	cur[0].ID = "again"
	assert.Equal(t, []string{"A"}, ids(h.Current()))
}
