package screenshot

import (
	"errors"
	"image"
	"runtime"
	"testing"
)

type stubGrabber struct {
	img      image.Image
	err      error
	released int
}

func (s *stubGrabber) grab() (image.Image, error) { return s.img, s.err }

func (s *stubGrabber) release() error {
	s.released++
	return nil
}

func TestScreenFrame(t *testing.T) {
	g := &stubGrabber{img: image.NewRGBA(image.Rect(0, 0, 4, 3))}
	s := newScreen(g)

	img, err := s.Frame()
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if got := img.Bounds().Dx(); got != 4 {
		t.Errorf("width = %d, want 4", got)
	}

	g.err = errors.New("display asleep")
	if _, err := s.Frame(); err == nil {
		t.Error("expected grab error to surface")
	}
}

func TestScreenCloseIdempotent(t *testing.T) {
	g := &stubGrabber{}
	s := newScreen(g)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("double Close: %v", err)
	}
	if g.released != 1 {
		t.Errorf("released %d times, want 1", g.released)
	}

	select {
	case <-s.Ended():
	default:
		t.Error("Ended not closed after Close")
	}
	if _, err := s.Frame(); !errors.Is(err, ErrClosed) {
		t.Errorf("Frame after Close = %v, want ErrClosed", err)
	}
}

func TestOpenUnsupported(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("screen capture available on darwin")
	}
	if _, err := Open(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Open = %v, want ErrUnsupported", err)
	}
}
