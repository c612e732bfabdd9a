package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/glance/live"
)

type sinkRecorder struct {
	mu     sync.Mutex
	chunks []live.MediaChunk
}

func (s *sinkRecorder) Offer(c live.MediaChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, c)
	return nil
}

func (s *sinkRecorder) byType(mime string) []live.MediaChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []live.MediaChunk
	for _, c := range s.chunks {
		if c.MIMEType == mime {
			out = append(out, c)
		}
	}
	return out
}

type fakeScreen struct {
	img   image.Image
	err   error
	ended chan struct{}
}

func (f *fakeScreen) Frame() (image.Image, error) { return f.img, f.err }
func (f *fakeScreen) Ended() <-chan struct{}      { return f.ended }
func (f *fakeScreen) Close() error                { return nil }

type fakeMic struct {
	mu      sync.Mutex
	handler AudioHandler
	err     error
}

func (m *fakeMic) Start(h AudioHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
	return m.err
}
func (m *fakeMic) Ended() <-chan struct{} { return nil }
func (m *fakeMic) Close() error           { return nil }

func (m *fakeMic) emit(f AudioFrame) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	h(f)
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	return img
}

func TestPipelineAudioProducer(t *testing.T) {
	mic := &fakeMic{}
	sink := &sinkRecorder{}
	p := NewPipeline(nil, mic, sink, Config{})
	require.NoError(t, p.Start())

	// Stereo: channel 0 is 0.5, channel 1 is -0.5.
	mic.emit(AudioFrame{Samples: []float32{0.5, -0.5, 0.5, -0.5}, Channels: 2, SampleRate: AudioRate})

	chunks := sink.byType(live.MIMEAudioPCM16k)
	require.Len(t, chunks, 1)
	assert.Equal(t, []byte{0x00, 0x40, 0x00, 0x40}, chunks[0].Data)

	p.Stop()
	mic.emit(AudioFrame{Samples: []float32{1}, Channels: 1, SampleRate: AudioRate})
	assert.Len(t, sink.byType(live.MIMEAudioPCM16k), 1)
}

func TestEncodeAudioResamples(t *testing.T) {
	chunk, err := EncodeAudio(AudioFrame{Samples: make([]float32, 4800), Channels: 1, SampleRate: 48000})
	require.NoError(t, err)
	assert.Len(t, chunk.Data, 1600*2)
}

func TestPipelineVideoProducer(t *testing.T) {
	screen := &fakeScreen{img: solid(2048, 1024)}
	sink := &sinkRecorder{}
	p := NewPipeline(screen, nil, sink, Config{FrameInterval: 10 * time.Millisecond})
	require.NoError(t, p.Start())
	defer p.Stop()

	assert.Eventually(t, func() bool { return len(sink.byType(live.MIMEImageJPEG)) >= 2 }, 2*time.Second, 5*time.Millisecond)

	frame := sink.byType(live.MIMEImageJPEG)[0]
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame.Data))
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Width)
	assert.Equal(t, 512, cfg.Height)
}

func TestPipelineSkipsFailedFrames(t *testing.T) {
	screen := &fakeScreen{err: errors.New("no frame yet")}
	sink := &sinkRecorder{}
	p := NewPipeline(screen, nil, sink, Config{FrameInterval: 5 * time.Millisecond})
	require.NoError(t, p.Start())
	time.Sleep(30 * time.Millisecond)
	p.Stop()

	assert.Empty(t, sink.byType(live.MIMEImageJPEG))
}

func TestPipelineStopIdempotent(t *testing.T) {
	p := NewPipeline(&fakeScreen{img: solid(4, 4)}, &fakeMic{}, &sinkRecorder{}, Config{FrameInterval: time.Millisecond})
	require.NoError(t, p.Start())
	p.Stop()
	p.Stop()
}

func TestPipelineStartErrors(t *testing.T) {
	p := NewPipeline(nil, &fakeMic{err: errors.New("busy")}, &sinkRecorder{}, Config{})
	assert.Error(t, p.Start())

	p = NewPipeline(nil, &fakeMic{}, &sinkRecorder{}, Config{})
	require.NoError(t, p.Start())
	assert.Error(t, p.Start())
	p.Stop()
}

func TestTargetSize(t *testing.T) {
	tests := []struct {
		w, h, wantW, wantH int
	}{
		{800, 600, 800, 600},
		{1024, 1024, 1024, 1024},
		{2048, 1024, 1024, 512},
		{1080, 1920, 576, 1024},
		{5000, 10, 1024, 2},
	}
	for _, tt := range tests {
		w, h := TargetSize(tt.w, tt.h, 1024)
		assert.Equal(t, tt.wantW, w, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wantH, h, "%dx%d", tt.w, tt.h)
	}
}

func TestFrameEncoderReusesCanvas(t *testing.T) {
	enc := NewFrameEncoder(64, 0)

	f1, err := enc.Encode(solid(128, 64))
	require.NoError(t, err)
	canvas := enc.canvas
	assert.Equal(t, 64, f1.Width)
	assert.Equal(t, 32, f1.Height)

	_, err = enc.Encode(solid(256, 128))
	require.NoError(t, err)
	assert.Same(t, canvas, enc.canvas)

	_, err = enc.Encode(solid(32, 32))
	require.NoError(t, err)
	assert.NotSame(t, canvas, enc.canvas)

	_, err = enc.Encode(image.NewRGBA(image.Rectangle{}))
	assert.Error(t, err)
}
