package app

import (
	"errors"
	"fmt"

	"go.aimuz.me/glance/capture"
	"go.aimuz.me/glance/screenshot"
)

// ErrScreenPermission is returned when the OS has not granted screen capture.
var ErrScreenPermission = errors.New("screen recording permission required")

// Devices acquires the real screen and microphone.
type Devices struct{}

// AcquireScreen opens the main display, prompting for permission first when
// the OS requires it.
func (Devices) AcquireScreen() (capture.ScreenSource, error) {
	if !screenshot.HasPermission() {
		screenshot.RequestPermission()
		return nil, ErrScreenPermission
	}
	s, err := screenshot.Open()
	if err != nil {
		return nil, fmt.Errorf("open screen: %w", err)
	}
	return s, nil
}

// AcquireMicrophone opens the default input device.
func (Devices) AcquireMicrophone() (capture.MicrophoneSource, error) {
	return openMicrophone()
}
