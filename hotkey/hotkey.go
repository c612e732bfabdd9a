// Package hotkey binds global keyboard shortcuts.
package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// ErrRunning is returned when Start is called twice.
var ErrRunning = errors.New("hotkey: already running")

var modifiers = []string{"ctrl", "shift", "alt", "cmd"}

var aliases = map[string]string{
	"control": "ctrl",
	"option":  "alt",
	"command": "cmd",
	"meta":    "cmd",
	"super":   "cmd",
}

// Binding runs Action when Chord is pressed. Chord is "+"-joined, such as
// "ctrl+shift+g".
type Binding struct {
	Name   string
	Chord  string
	Action func()
}

// ParseChord returns the key followed by its modifiers, the form gohook
// registers. It rejects chords without exactly one non-modifier key.
func ParseChord(chord string) ([]string, error) {
	var key string
	var mods []string
	for part := range strings.SplitSeq(strings.ToLower(chord), "+") {
		part = strings.TrimSpace(part)
		if a, ok := aliases[part]; ok {
			part = a
		}
		switch {
		case part == "":
			return nil, fmt.Errorf("empty key in chord %q", chord)
		case slices.Contains(modifiers, part):
			if !slices.Contains(mods, part) {
				mods = append(mods, part)
			}
		case key != "":
			return nil, fmt.Errorf("chord %q has more than one key", chord)
		default:
			key = part
		}
	}
	if key == "" {
		return nil, fmt.Errorf("chord %q has no key", chord)
	}
	return append([]string{key}, mods...), nil
}

// Manager owns the process-wide keyboard hook.
type Manager struct {
	mu      sync.Mutex
	running bool
	done    chan bool
}

// Start registers bindings and begins listening. Bindings with an empty
// chord are skipped.
func (m *Manager) Start(bindings []Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrRunning
	}

	type parsed struct {
		name   string
		keys   []string
		action func()
	}
	var all []parsed
	for _, b := range bindings {
		if b.Chord == "" {
			continue
		}
		keys, err := ParseChord(b.Chord)
		if err != nil {
			return fmt.Errorf("hotkey %s: %w", b.Name, err)
		}
		all = append(all, parsed{b.Name, keys, b.Action})
	}
	if len(all) == 0 {
		return nil
	}

	for _, p := range all {
		hook.Register(hook.KeyDown, p.keys, func(hook.Event) {
			slog.Debug("hotkey pressed", "name", p.name)
			go p.action()
		})
	}
	m.done = hook.Process(hook.Start())
	m.running = true
	slog.Info("hotkeys registered", "count", len(all))
	return nil
}

// Stop unregisters everything and waits for the hook to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	hook.End()
	<-m.done
	m.running = false
}
