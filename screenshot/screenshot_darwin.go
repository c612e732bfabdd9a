package screenshot

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework Foundation
#import <CoreGraphics/CoreGraphics.h>
#import <Foundation/Foundation.h>

bool hasScreenRecordingPermission() {
    if (@available(macOS 11.0, *)) {
        return CGPreflightScreenCaptureAccess();
    }
    return true;
}

void requestScreenRecordingPermission() {
    if (@available(macOS 11.0, *)) {
        CGRequestScreenCaptureAccess();
    }
}
*/
import "C"
import (
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// HasPermission checks if the app has screen recording permission.
func HasPermission() bool {
	return bool(C.hasScreenRecordingPermission())
}

// RequestPermission requests screen recording permission from the system.
func RequestPermission() {
	C.requestScreenRecordingPermission()
}

// cliGrabber shells out to screencapture and decodes the result. One temp
// file is reused for every frame.
type cliGrabber struct {
	path string
}

func newGrabber() (grabber, error) {
	if _, err := exec.LookPath("screencapture"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	name := fmt.Sprintf("glance_frame_%d.png", time.Now().UnixNano())
	return &cliGrabber{path: filepath.Join(os.TempDir(), name)}, nil
}

func (g *cliGrabber) grab() (image.Image, error) {
	// -x: no sound, -m: main display only
	cmd := exec.Command("screencapture", "-x", "-m", "-t", "png", g.path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("screencapture failed: %w: %s", err, out)
	}

	f, err := os.Open(g.path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

func (g *cliGrabber) release() error {
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove frame file: %w", err)
	}
	return nil
}
