package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.aimuz.me/glance/internal/pcm"
	"go.aimuz.me/glance/live"
)

const (
	// AudioRate is the rate audio is sent at.
	AudioRate = 16000
	// DefaultFrameInterval is the screen sampling period.
	DefaultFrameInterval = time.Second
)

// Config tunes the pipeline. Zero values select defaults.
type Config struct {
	FrameInterval time.Duration
	MaxDimension  int
	JPEGQuality   int
}

// Pipeline runs the audio and video producers. The audio producer is driven
// by microphone callbacks, the video producer by its own ticker; neither
// waits for the other or for the network.
type Pipeline struct {
	screen ScreenSource
	mic    MicrophoneSource
	sink   Sink
	cfg    Config
	enc    *FrameEncoder

	running  atomic.Bool
	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPipeline wires sources to sink. Either source may be nil.
func NewPipeline(screen ScreenSource, mic MicrophoneSource, sink Sink, cfg Config) *Pipeline {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	return &Pipeline{
		screen: screen,
		mic:    mic,
		sink:   sink,
		cfg:    cfg,
		enc:    NewFrameEncoder(cfg.MaxDimension, cfg.JPEGQuality),
		stop:   make(chan struct{}),
	}
}

// Start begins both producers.
func (p *Pipeline) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("pipeline already started")
	}
	if p.mic != nil {
		if err := p.mic.Start(p.handleAudio); err != nil {
			p.running.Store(false)
			return fmt.Errorf("start microphone: %w", err)
		}
	}
	if p.screen != nil {
		p.wg.Go(p.videoLoop)
	}
	slog.Info("capture pipeline started", "frame_interval", p.cfg.FrameInterval)
	return nil
}

// Stop halts both producers and waits for the video loop. Buffers that
// arrive afterwards are discarded. It is idempotent and does not release
// the sources.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.running.Store(false)
		close(p.stop)
	})
	p.wg.Wait()
}

func (p *Pipeline) handleAudio(f AudioFrame) {
	if !p.running.Load() {
		return
	}
	chunk, err := EncodeAudio(f)
	if err != nil {
		slog.Debug("encode audio", "error", err)
		return
	}
	if err := p.sink.Offer(chunk); err != nil {
		slog.Debug("offer audio", "error", err)
	}
}

// EncodeAudio takes channel 0 of f and encodes it as 16 kHz PCM16.
func EncodeAudio(f AudioFrame) (live.MediaChunk, error) {
	ch := max(f.Channels, 1)
	mono := make([]float32, len(f.Samples)/ch)
	for i := range mono {
		mono[i] = f.Samples[i*ch]
	}
	if f.SampleRate != AudioRate {
		var err error
		mono, err = pcm.Resample(mono, f.SampleRate, AudioRate)
		if err != nil {
			return live.MediaChunk{}, err
		}
	}
	return live.MediaChunk{MIMEType: live.MIMEAudioPCM16k, Data: pcm.Encode(mono)}, nil
}

func (p *Pipeline) videoLoop() {
	ticker := time.NewTicker(p.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.captureFrame()
		}
	}
}

func (p *Pipeline) captureFrame() {
	img, err := p.screen.Frame()
	if err != nil {
		slog.Debug("read screen frame", "error", err)
		return
	}
	frame, err := p.enc.Encode(img)
	if err != nil {
		slog.Warn("encode screen frame", "error", err)
		return
	}
	if !p.running.Load() {
		return
	}
	if err := p.sink.Offer(live.MediaChunk{MIMEType: frame.MIMEType, Data: frame.Data}); err != nil {
		slog.Debug("offer frame", "error", err)
	}
}
