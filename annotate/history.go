package annotate

// DefaultHistoryLimit is the number of snapshots kept for undo.
const DefaultHistoryLimit = 50

// History is a linear undo/redo stack of drawing-list snapshots.
//
// The cursor points at the snapshot currently shown; -1 is the empty
// initial state. Pushing discards everything after the cursor, and once
// the stack exceeds its limit the oldest snapshot is evicted.
type History struct {
	snapshots [][]Drawing
	cursor    int
	limit     int
}

// NewHistory returns an empty history. limit <= 0 selects DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{cursor: -1, limit: limit}
}

// Push records a new snapshot and makes it current.
func (h *History) Push(snapshot []Drawing) {
	h.snapshots = append(h.snapshots[:h.cursor+1], cloneDrawings(snapshot))
	if len(h.snapshots) > h.limit {
		drop := len(h.snapshots) - h.limit
		// Copy into a fresh slice so evicted snapshots can be collected.
		h.snapshots = append([][]Drawing(nil), h.snapshots[drop:]...)
	}
	h.cursor = len(h.snapshots) - 1
}

// Undo steps back one snapshot. Stepping back from the first snapshot
// yields the empty state.
func (h *History) Undo() ([]Drawing, bool) {
	if h.cursor < 0 {
		return nil, false
	}
	h.cursor--
	return h.Current(), true
}

// Redo steps forward one snapshot.
func (h *History) Redo() ([]Drawing, bool) {
	if h.cursor >= len(h.snapshots)-1 {
		return nil, false
	}
	h.cursor++
	return h.Current(), true
}

// Current returns a copy of the snapshot at the cursor.
func (h *History) Current() []Drawing {
	if h.cursor < 0 {
		return []Drawing{}
	}
	return cloneDrawings(h.snapshots[h.cursor])
}

func (h *History) CanUndo() bool { return h.cursor >= 0 }

func (h *History) CanRedo() bool { return h.cursor < len(h.snapshots)-1 }

func (h *History) Cursor() int { return h.cursor }

func (h *History) Len() int { return len(h.snapshots) }
