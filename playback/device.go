package playback

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"go.aimuz.me/glance/internal/pcm"
)

// OutputRate is the rate the device renders at. Voices at other rates are
// resampled on Play.
const OutputRate = 24000

const historySize = 2048

// ErrDeviceClosed is returned by Play after Close.
var ErrDeviceClosed = errors.New("playback device closed")

// oto allows a single context per process; every Device shares it.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func sharedContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   OutputRate,
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
			BufferSize:   40 * time.Millisecond,
		})
		if err != nil {
			otoErr = fmt.Errorf("create audio context: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// Device is a software mixer with a sample-accurate clock. It renders a
// continuous stream (silence between voices) so its clock advances in real
// time while open.
type Device struct {
	rate   int
	player *oto.Player

	mu      sync.Mutex
	pos     int64 // samples rendered so far
	voices  []*deviceVoice
	scratch []float32
	history []float32 // ring of recently rendered samples
	histPos int
	closed  bool
}

type deviceVoice struct {
	d       *Device
	samples []float32
	start   int64
	once    sync.Once
	onEnded func()
}

// NewDevice opens a speaker output.
func NewDevice() (*Device, error) {
	ctx, err := sharedContext()
	if err != nil {
		return nil, err
	}
	d := newDevice(OutputRate)
	d.player = ctx.NewPlayer(d)
	d.player.Play()
	return d, nil
}

func newDevice(rate int) *Device {
	return &Device{
		rate:    rate,
		history: make([]float32, historySize),
	}
}

// CurrentTime returns seconds of audio rendered since the device opened.
func (d *Device) CurrentTime() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return float64(d.pos) / float64(d.rate)
}

// Play schedules samples at clock time at. Times in the past start immediately.
func (d *Device) Play(samples []float32, sampleRate int, at float64, onEnded func()) (Voice, error) {
	if sampleRate != d.rate {
		var err error
		samples, err = pcm.Resample(samples, sampleRate, d.rate)
		if err != nil {
			return nil, err
		}
	}

	v := &deviceVoice{d: d, samples: samples, onEnded: onEnded}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDeviceClosed
	}
	v.start = max(int64(math.Round(at*float64(d.rate))), d.pos)
	if len(samples) == 0 {
		d.mu.Unlock()
		v.end()
		return v, nil
	}
	d.voices = append(d.voices, v)
	d.mu.Unlock()
	return v, nil
}

// Read renders the next block as float32 LE mono. It implements io.Reader
// for the oto player.
func (d *Device) Read(p []byte) (int, error) {
	n := len(p) / 4
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, io.EOF
	}
	if cap(d.scratch) < n {
		d.scratch = make([]float32, n)
	}
	buf := d.scratch[:n]
	done := d.renderLocked(buf)
	d.mu.Unlock()

	for i, s := range buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	for _, v := range done {
		v.end()
	}
	return n * 4, nil
}

// renderLocked mixes voices into buf, advances the clock and returns the
// voices that finished within this block.
func (d *Device) renderLocked(buf []float32) []*deviceVoice {
	clear(buf)
	from, to := d.pos, d.pos+int64(len(buf))

	var done []*deviceVoice
	kept := d.voices[:0]
	for _, v := range d.voices {
		vEnd := v.start + int64(len(v.samples))
		lo, hi := max(v.start, from), min(vEnd, to)
		for i := lo; i < hi; i++ {
			buf[i-from] += v.samples[i-v.start]
		}
		if vEnd <= to {
			done = append(done, v)
			continue
		}
		kept = append(kept, v)
	}
	clear(d.voices[len(kept):])
	d.voices = kept
	d.pos = to

	for _, s := range buf {
		d.history[d.histPos] = s
		d.histPos = (d.histPos + 1) % len(d.history)
	}
	return done
}

// Recent returns the last n rendered samples, oldest first.
func (d *Device) Recent(n int) []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	n = min(n, len(d.history))
	out := make([]float32, n)
	start := d.histPos - n
	if start < 0 {
		start += len(d.history)
	}
	for i := range out {
		out[i] = d.history[(start+i)%len(d.history)]
	}
	return out
}

// Spectrum returns bins normalized magnitudes of the most recent output.
func (d *Device) Spectrum(bins int) []float32 {
	return Spectrum(d.Recent(fftSize), bins)
}

// Close stops playback and ends every voice. It is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	voices := d.voices
	d.voices = nil
	d.mu.Unlock()

	for _, v := range voices {
		v.end()
	}
	if d.player != nil {
		return d.player.Close()
	}
	return nil
}

func (v *deviceVoice) Stop() error {
	d := v.d
	d.mu.Lock()
	for i, other := range d.voices {
		if other == v {
			d.voices = append(d.voices[:i], d.voices[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
	v.end()
	return nil
}

func (v *deviceVoice) end() {
	v.once.Do(func() {
		if v.onEnded != nil {
			v.onEnded()
		}
	})
}
