// Package transcript aggregates streaming transcription of both sides of the
// conversation and clears it after the turn has been quiet for a while.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// DefaultClearDelay is how long a completed turn stays on screen.
const DefaultClearDelay = 5 * time.Second

// Snapshot is the visible transcript.
type Snapshot struct {
	User         string `json:"user"`
	Assistant    string `json:"assistant"`
	UserLanguage string `json:"userLanguage,omitempty"`
}

// Timer is the subset of *time.Timer used by the aggregator.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClearDelay overrides DefaultClearDelay.
func WithClearDelay(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.delay = d
		}
	}
}

// WithAfterFunc replaces the timer source.
func WithAfterFunc(fn AfterFunc) Option {
	return func(a *Aggregator) { a.afterFunc = fn }
}

// WithLanguageDetector sets a function returning the language code of the
// user's text. It runs once per completed turn.
func WithLanguageDetector(fn func(string) string) Option {
	return func(a *Aggregator) { a.detect = fn }
}

// Aggregator accumulates user and assistant transcription deltas.
//
// A turn-complete schedules a clear of both buffers. New text cancels a
// pending clear, and a repeated turn-complete restarts the delay. A
// generation counter guards against a timer that fires after being
// superseded.
type Aggregator struct {
	mu        sync.Mutex
	user      strings.Builder
	assistant strings.Builder
	lang      string
	pending   Timer
	gen       uint64

	delay     time.Duration
	afterFunc AfterFunc
	detect    func(string) string
	onChange  func(Snapshot)
}

// New returns an empty aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		delay:     DefaultClearDelay,
		afterFunc: realAfterFunc,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnChange sets the callback invoked with every new snapshot.
func (a *Aggregator) OnChange(fn func(Snapshot)) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// AppendUser appends transcription of the user's speech.
func (a *Aggregator) AppendUser(text string) {
	a.append(&a.user, text)
}

// AppendAssistant appends transcription of the assistant's speech.
func (a *Aggregator) AppendAssistant(text string) {
	a.append(&a.assistant, text)
}

func (a *Aggregator) append(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	a.cancelLocked()
	b.WriteString(text)
	a.unlockAndNotify()
}

// TurnComplete schedules both buffers to clear after the delay.
func (a *Aggregator) TurnComplete() {
	a.mu.Lock()
	a.cancelLocked()
	gen := a.gen
	a.pending = a.afterFunc(a.delay, func() { a.expire(gen) })

	text := a.user.String()
	detect := a.detect
	a.mu.Unlock()

	if detect == nil || text == "" {
		return
	}
	lang := detect(text)

	a.mu.Lock()
	if a.gen != gen || a.lang == lang {
		a.mu.Unlock()
		return
	}
	a.lang = lang
	a.unlockAndNotify()
}

// Reset clears both buffers immediately and cancels any pending clear.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.cancelLocked()
	a.clearLocked()
	a.unlockAndNotify()
}

// Snapshot returns the current transcript.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Pending reports whether a clear is scheduled.
func (a *Aggregator) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

func (a *Aggregator) expire(gen uint64) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.pending = nil
	a.clearLocked()
	a.unlockAndNotify()
}

func (a *Aggregator) cancelLocked() {
	a.gen++
	if a.pending != nil {
		a.pending.Stop()
		a.pending = nil
	}
}

func (a *Aggregator) clearLocked() {
	a.user.Reset()
	a.assistant.Reset()
	a.lang = ""
}

func (a *Aggregator) snapshotLocked() Snapshot {
	return Snapshot{
		User:         a.user.String(),
		Assistant:    a.assistant.String(),
		UserLanguage: a.lang,
	}
}

func (a *Aggregator) unlockAndNotify() {
	snap := a.snapshotLocked()
	fn := a.onChange
	a.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
