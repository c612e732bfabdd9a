//go:build !darwin

package screenshot

// HasPermission checks if the app has screen recording permission.
func HasPermission() bool {
	return true
}

// RequestPermission requests screen recording permission from the system.
func RequestPermission() {}

func newGrabber() (grabber, error) {
	return nil, ErrUnsupported
}
