// Package screenshot grabs the main display for the capture pipeline.
package screenshot

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
)

// Sentinel errors.
var (
	ErrUnsupported = errors.New("screenshot: screen capture not supported on this platform")
	ErrPermission  = errors.New("screenshot: screen recording permission denied")
	ErrClosed      = errors.New("screenshot: source closed")
)

// grabber captures one frame of the main display.
type grabber interface {
	grab() (image.Image, error)
	release() error
}

// Screen is an acquired display. It satisfies capture.ScreenSource.
type Screen struct {
	g grabber

	mu     sync.Mutex
	closed bool
	ended  chan struct{}
}

// Open checks permission and acquires the main display. When permission
// has not been granted the system prompt is shown and ErrPermission returned.
func Open() (*Screen, error) {
	if !HasPermission() {
		RequestPermission()
		return nil, ErrPermission
	}
	g, err := newGrabber()
	if err != nil {
		return nil, err
	}
	slog.Info("screen source acquired")
	return newScreen(g), nil
}

func newScreen(g grabber) *Screen {
	return &Screen{g: g, ended: make(chan struct{})}
}

// Frame captures the display as it is now.
func (s *Screen) Frame() (image.Image, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	img, err := s.g.grab()
	if err != nil {
		return nil, fmt.Errorf("grab frame: %w", err)
	}
	return img, nil
}

// Ended is closed when the source is released.
func (s *Screen) Ended() <-chan struct{} {
	return s.ended
}

// Close releases the display. It is idempotent.
func (s *Screen) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ended)
	s.mu.Unlock()
	return s.g.release()
}
