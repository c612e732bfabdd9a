package live

import "sync"

// Event is a discriminated union of session lifecycle events.
// Check the concrete type via type switch.
type Event interface {
	eventType() string
}

// OpenedEvent is emitted once the session is ready for media.
type OpenedEvent struct{}

func (OpenedEvent) eventType() string { return "opened" }

// MessageEvent carries a server message.
type MessageEvent struct {
	Message Message
}

func (MessageEvent) eventType() string { return "message" }

// ErrorEvent is emitted when the remote side fails. It is terminal.
type ErrorEvent struct {
	Err error
}

func (ErrorEvent) eventType() string { return "error" }

// ClosedEvent is emitted when the remote side closes the session. It is terminal.
type ClosedEvent struct {
	Reason string
}

func (ClosedEvent) eventType() string { return "closed" }

// Emitter delivers events to a consumer channel. Backends embed it to share
// the terminal-event bookkeeping.
type Emitter struct {
	ch       chan Event
	done     chan struct{}
	stopOnce sync.Once
	term     bool
}

// NewEmitter returns an emitter with the given channel capacity.
func NewEmitter(size int) *Emitter {
	return &Emitter{
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
}

// Events returns the receive side.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Emit delivers a non-terminal event. It blocks until the consumer reads it
// or the emitter is stopped. Must be called from a single goroutine.
func (e *Emitter) Emit(ev Event) {
	if e.term {
		return
	}
	select {
	case e.ch <- ev:
	case <-e.done:
	}
}

// Finish delivers a terminal event and closes the channel. Subsequent calls are no-ops.
// Must be called from the same goroutine as Emit.
func (e *Emitter) Finish(ev Event) {
	if e.term {
		return
	}
	e.term = true
	select {
	case e.ch <- ev:
	case <-e.done:
	}
	close(e.ch)
}

// Stop releases a blocked Emit or Finish. Safe to call from any goroutine.
func (e *Emitter) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
}
