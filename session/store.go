package session

import (
	"slices"
	"sync"

	"go.aimuz.me/glance/annotate"
	"go.aimuz.me/glance/transcript"
)

// Status is the lifecycle phase of the controller.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusClosed     Status = "closed"
	StatusError      Status = "error"
)

// State is the consumer-facing snapshot of the overlay.
type State struct {
	SessionID  string              `json:"sessionId,omitempty"`
	Status     Status              `json:"status"`
	Connecting bool                `json:"connecting"`
	Error      string              `json:"error,omitempty"`
	Transcript transcript.Snapshot `json:"transcript"`
	Drawings   []annotate.Drawing  `json:"drawings"`
	Preview    *annotate.Drawing   `json:"preview,omitempty"`
	CanUndo    bool                `json:"canUndo"`
	CanRedo    bool                `json:"canRedo"`
	Spectrum   []float32           `json:"spectrum,omitempty"`
	Version    uint64              `json:"version"`
}

func (s State) clone() State {
	s.Drawings = slices.Clone(s.Drawings)
	s.Spectrum = slices.Clone(s.Spectrum)
	if s.Preview != nil {
		p := *s.Preview
		s.Preview = &p
	}
	return s
}

// Store is the single authoritative holder of State.
type Store struct {
	mu    sync.Mutex
	state State
	subs  map[int]func(State)
	next  int

	// notifyMu keeps notifications in update order.
	notifyMu sync.Mutex
}

// NewStore returns a store in the idle state.
func NewStore() *Store {
	return &Store{
		state: State{Status: StatusIdle, Drawings: []annotate.Drawing{}},
		subs:  make(map[int]func(State)),
	}
}

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn for every change and returns a function that
// removes it. fn must not call Update.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Update applies fn to the state and notifies subscribers.
func (s *Store) Update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	s.state.Version++
	snap := s.state.clone()
	subs := make([]func(State), 0, len(s.subs))
	for _, f := range s.subs {
		subs = append(subs, f)
	}
	s.notifyMu.Lock()
	s.mu.Unlock()

	defer s.notifyMu.Unlock()
	for _, f := range subs {
		f(snap.clone())
	}
}
