// Package audiocapture opens the default microphone and delivers fixed-size
// float buffers.
package audiocapture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"go.aimuz.me/glance/capture"
)

// Sentinel errors.
var (
	ErrRunning     = errors.New("audiocapture: already running")
	ErrClosed      = errors.New("audiocapture: closed")
	ErrUnsupported = errors.New("audiocapture: no capture device")
)

const (
	DefaultSampleRate = 16000
	DefaultFrames     = 4096
)

// Config selects the capture format. Zero values select defaults.
type Config struct {
	SampleRate int
	Channels   int
	Frames     int // frames per delivered buffer
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.Frames <= 0 {
		c.Frames = DefaultFrames
	}
}

// Microphone is an acquired capture device. It satisfies capture.MicrophoneSource.
type Microphone struct {
	cfg    Config
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	framer *framer

	mu      sync.Mutex
	running bool
	closed  bool

	ended   chan struct{}
	endOnce sync.Once
}

// Open acquires the default capture device without starting it.
func Open(cfg Config) (*Microphone, error) {
	cfg.applyDefaults()

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	m := &Microphone{
		cfg:   cfg,
		ctx:   ctx,
		ended: make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: m.onData,
		Stop: m.onStop,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	m.device = device
	return m, nil
}

// Start begins delivering buffers of cfg.Frames frames to handler.
func (m *Microphone) Start(handler capture.AudioHandler) error {
	if handler == nil {
		return errors.New("audiocapture: nil handler")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.running {
		return ErrRunning
	}

	m.framer = newFramer(m.cfg, handler)
	if err := m.device.Start(); err != nil {
		m.framer = nil
		return fmt.Errorf("start capture device: %w", err)
	}
	m.running = true
	slog.Info("microphone started", "rate", m.cfg.SampleRate, "channels", m.cfg.Channels)
	return nil
}

// Ended is closed when the device stops on its own, e.g. when unplugged.
func (m *Microphone) Ended() <-chan struct{} {
	return m.ended
}

// Close stops and releases the device. It is idempotent.
func (m *Microphone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.running = false
	m.mu.Unlock()

	// Uninit stops the device and waits for in-flight callbacks.
	m.device.Uninit()
	err := m.ctx.Uninit()
	m.ctx.Free()
	if err != nil {
		return fmt.Errorf("release audio context: %w", err)
	}
	return nil
}

func (m *Microphone) onData(_, input []byte, _ uint32) {
	m.mu.Lock()
	f := m.framer
	running := m.running
	m.mu.Unlock()
	if !running || f == nil {
		return
	}
	f.write(decodeF32(input))
}

func (m *Microphone) onStop() {
	m.mu.Lock()
	unexpected := !m.closed
	m.mu.Unlock()
	if unexpected {
		slog.Warn("microphone stopped unexpectedly")
		m.endOnce.Do(func() { close(m.ended) })
	}
}

func decodeF32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// framer slices an arbitrary callback stream into fixed-size buffers.
// Device callbacks are serialized, so it needs no lock.
type framer struct {
	cfg     Config
	handler capture.AudioHandler
	pending []float32
}

func newFramer(cfg Config, handler capture.AudioHandler) *framer {
	return &framer{
		cfg:     cfg,
		handler: handler,
		pending: make([]float32, 0, cfg.Frames*cfg.Channels*2),
	}
}

func (f *framer) write(samples []float32) {
	f.pending = append(f.pending, samples...)
	size := f.cfg.Frames * f.cfg.Channels
	for len(f.pending) >= size {
		buf := make([]float32, size)
		copy(buf, f.pending[:size])
		f.pending = append(f.pending[:0], f.pending[size:]...)
		f.handler(capture.AudioFrame{
			Samples:    buf,
			Channels:   f.cfg.Channels,
			SampleRate: f.cfg.SampleRate,
			Timestamp:  time.Now(),
		})
	}
}
