// Package capture samples the microphone and screen at independent rates and
// hands encoded chunks to the live session without waiting on the network.
package capture

import (
	"image"
	"time"

	"go.aimuz.me/glance/live"
)

// AudioFrame is one buffer delivered by a microphone.
type AudioFrame struct {
	Samples    []float32 // interleaved
	Channels   int
	SampleRate int
	Timestamp  time.Time
}

// AudioHandler receives microphone buffers. It is called on the device's
// goroutine and must not block.
type AudioHandler func(AudioFrame)

// MicrophoneSource is an acquired microphone.
type MicrophoneSource interface {
	Start(handler AudioHandler) error
	// Ended is closed when the device goes away.
	Ended() <-chan struct{}
	Close() error
}

// ScreenSource is an acquired screen or window.
type ScreenSource interface {
	Frame() (image.Image, error)
	Ended() <-chan struct{}
	Close() error
}

// VideoFrame is an encoded screen frame.
type VideoFrame struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Sink accepts chunks without blocking.
type Sink interface {
	Offer(chunk live.MediaChunk) error
}
