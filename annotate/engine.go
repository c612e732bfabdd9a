package annotate

import (
	"sync"
	"time"
)

const previewID = "preview"

// State is a consistent view of the engine for rendering.
type State struct {
	Drawings []Drawing `json:"drawings"`
	Preview  *Drawing  `json:"preview,omitempty"`
	CanUndo  bool      `json:"canUndo"`
	CanRedo  bool      `json:"canRedo"`
}

type stroke struct {
	kind   Kind
	points []Point
}

// Engine owns the drawing list and its history. All mutations go through
// it; it is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	drawings []Drawing
	history  *History
	stroke   *stroke
	onChange []func(State)
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistoryLimit overrides DefaultHistoryLimit.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) { e.history = NewHistory(n) }
}

// WithClock overrides the time source used for ids.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an engine with an empty drawing list.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		drawings: []Drawing{},
		history:  NewHistory(DefaultHistoryLimit),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnChange registers fn to be called with the new state after every change.
// Callbacks run on the mutating goroutine, outside the engine lock.
func (e *Engine) OnChange(fn func(State)) {
	e.mu.Lock()
	e.onChange = append(e.onChange, fn)
	e.mu.Unlock()
}

// Apply replaces the drawing list and records a snapshot.
func (e *Engine) Apply(next []Drawing) {
	e.mu.Lock()
	e.applyLocked(next)
	e.unlockAndNotify()
}

// Add appends drawings, assigning ids to those without one, as a single
// history step. It returns the committed drawings.
func (e *Engine) Add(ds ...Drawing) []Drawing {
	if len(ds) == 0 {
		return nil
	}
	e.mu.Lock()
	added := make([]Drawing, len(ds))
	for i, d := range ds {
		if d.ID == "" {
			d.ID = newID(e.now())
		}
		if d.Color == "" {
			d.Color = ColorSolid
		}
		added[i] = d
	}
	next := append(cloneDrawings(e.drawings), added...)
	e.applyLocked(next)
	e.unlockAndNotify()
	return added
}

// Clear removes every drawing. It is Apply with an empty list, so it always
// records a snapshot.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.applyLocked(nil)
	e.unlockAndNotify()
}

// Undo moves back one snapshot. It reports false when there is nothing to undo.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	prev, ok := e.history.Undo()
	if !ok {
		e.mu.Unlock()
		return false
	}
	e.drawings = prev
	e.unlockAndNotify()
	return true
}

// Redo moves forward one snapshot. It reports false when there is nothing to redo.
func (e *Engine) Redo() bool {
	e.mu.Lock()
	next, ok := e.history.Redo()
	if !ok {
		e.mu.Unlock()
		return false
	}
	e.drawings = next
	e.unlockAndNotify()
	return true
}

// Drawings returns a copy of the current list.
func (e *Engine) Drawings() []Drawing {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneDrawings(e.drawings)
}

// State returns the current drawings, preview and history availability.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// ───── Local drawing ─────

// BeginStroke starts a gesture with the given tool at p, replacing any
// stroke in progress.
func (e *Engine) BeginStroke(kind Kind, p Point) bool {
	if !kind.Valid() || !p.finite() {
		return false
	}
	e.mu.Lock()
	e.stroke = &stroke{kind: kind, points: []Point{p.Clamp()}}
	e.unlockAndNotify()
	return true
}

// ExtendStroke adds a sample to the stroke in progress.
func (e *Engine) ExtendStroke(p Point) {
	if !p.finite() {
		return
	}
	e.mu.Lock()
	if e.stroke == nil {
		e.mu.Unlock()
		return
	}
	e.stroke.points = append(e.stroke.points, p.Clamp())
	e.unlockAndNotify()
}

// EndStroke commits the stroke in progress with p as the release point.
func (e *Engine) EndStroke(p Point) (Drawing, bool) {
	e.mu.Lock()
	s := e.stroke
	e.stroke = nil
	if s == nil {
		e.mu.Unlock()
		return Drawing{}, false
	}
	if p.finite() {
		s.points = append(s.points, p.Clamp())
	}
	d, ok := Derive(s.kind, s.points)
	if !ok {
		e.unlockAndNotify()
		return Drawing{}, false
	}
	d.ID = newID(e.now())
	d.Color = ColorSolid
	e.applyLocked(append(cloneDrawings(e.drawings), d))
	e.unlockAndNotify()
	return d, true
}

// CancelStroke drops the stroke in progress without committing.
func (e *Engine) CancelStroke() {
	e.mu.Lock()
	if e.stroke == nil {
		e.mu.Unlock()
		return
	}
	e.stroke = nil
	e.unlockAndNotify()
}

// Preview returns the shape the stroke in progress would commit.
func (e *Engine) Preview() (Drawing, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.previewLocked()
}

func (e *Engine) previewLocked() (Drawing, bool) {
	if e.stroke == nil {
		return Drawing{}, false
	}
	d, ok := Derive(e.stroke.kind, e.stroke.points)
	if !ok {
		return Drawing{}, false
	}
	d.ID = previewID
	d.Color = ColorPreview
	return d, true
}

func (e *Engine) applyLocked(next []Drawing) {
	e.drawings = cloneDrawings(next)
	e.history.Push(e.drawings)
}

func (e *Engine) stateLocked() State {
	st := State{
		Drawings: cloneDrawings(e.drawings),
		CanUndo:  e.history.CanUndo(),
		CanRedo:  e.history.CanRedo(),
	}
	if p, ok := e.previewLocked(); ok {
		st.Preview = &p
	}
	return st
}

// unlockAndNotify releases the lock taken by the caller and fans the new
// state out to listeners.
func (e *Engine) unlockAndNotify() {
	st := e.stateLocked()
	fns := e.onChange
	e.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}
