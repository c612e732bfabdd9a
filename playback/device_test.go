package playback

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readSamples(t *testing.T, d *Device, n int) []float32 {
	t.Helper()
	p := make([]byte, n*4)
	got, err := d.Read(p)
	require.NoError(t, err)
	require.Equal(t, n*4, got)
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
	}
	return out
}

func ones(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestDeviceClockAdvancesWithRendering(t *testing.T) {
	d := newDevice(100)
	assert.Zero(t, d.CurrentTime())
	readSamples(t, d, 50)
	assert.InDelta(t, 0.5, d.CurrentTime(), 1e-9)
}

func TestDevicePlaysAtScheduledSample(t *testing.T) {
	d := newDevice(100)
	ended := 0
	_, err := d.Play(ones(4, 0.5), 100, 0.03, func() { ended++ })
	require.NoError(t, err)

	got := readSamples(t, d, 5)
	assert.Equal(t, []float32{0, 0, 0, 0.5, 0.5}, got)
	assert.Equal(t, 0, ended)

	got = readSamples(t, d, 5)
	assert.Equal(t, []float32{0.5, 0.5, 0, 0, 0}, got)
	assert.Equal(t, 1, ended)
}

func TestDeviceMixesOverlappingVoices(t *testing.T) {
	d := newDevice(100)
	_, err := d.Play(ones(2, 0.25), 100, 0, nil)
	require.NoError(t, err)
	_, err = d.Play(ones(2, 0.5), 100, 0.01, nil)
	require.NoError(t, err)

	assert.Equal(t, []float32{0.25, 0.75, 0.5, 0}, readSamples(t, d, 4))
}

func TestDevicePastStartPlaysNow(t *testing.T) {
	d := newDevice(100)
	readSamples(t, d, 10)
	_, err := d.Play(ones(1, 1), 100, 0.0, nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, readSamples(t, d, 2))
}

func TestDeviceStopSilencesVoice(t *testing.T) {
	d := newDevice(100)
	ended := 0
	v, err := d.Play(ones(10, 1), 100, 0, func() { ended++ })
	require.NoError(t, err)
	readSamples(t, d, 2)

	require.NoError(t, v.Stop())
	require.NoError(t, v.Stop())
	assert.Equal(t, 1, ended)
	assert.Equal(t, []float32{0, 0}, readSamples(t, d, 2))
}

func TestDeviceResamplesVoices(t *testing.T) {
	d := newDevice(200)
	_, err := d.Play(ones(2, 1), 100, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1, 1, 0}, readSamples(t, d, 5))
}

func TestDeviceClose(t *testing.T) {
	d := newDevice(100)
	ended := 0
	_, err := d.Play(ones(10, 1), 100, 0, func() { ended++ })
	require.NoError(t, err)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 1, ended)

	_, err = d.Play(ones(1, 1), 100, 0, nil)
	assert.ErrorIs(t, err, ErrDeviceClosed)
}

func TestDeviceWithScheduler(t *testing.T) {
	d := newDevice(OutputRate)
	s := NewScheduler(d)
	require.NoError(t, s.Enqueue(chunk(240)))
	require.NoError(t, s.Enqueue(chunk(240)))
	assert.Equal(t, 2, s.Active())

	readSamples(t, d, 480)
	assert.Equal(t, 0, s.Active())
}

func TestDeviceRecent(t *testing.T) {
	d := newDevice(100)
	_, err := d.Play([]float32{0.1, 0.2, 0.3}, 100, 0, nil)
	require.NoError(t, err)
	readSamples(t, d, 3)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, d.Recent(3))
}

func TestSpectrumPeaksAtToneFrequency(t *testing.T) {
	const rate = 24000
	samples := make([]float32, fftSize)
	// Tone centered on FFT bin 64 of 256.
	freq := 64.0 * rate / fftSize
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / rate))
	}

	bins := Spectrum(samples, 16)
	require.Len(t, bins, 16)
	peak := 0
	for i, v := range bins {
		if v > bins[peak] {
			peak = i
		}
	}
	assert.Equal(t, 4, peak) // bins of 16 FFT bins each
	assert.InDelta(t, 1.0, bins[peak], 1e-6)
}

func TestSpectrumSilence(t *testing.T) {
	bins := Spectrum(make([]float32, 100), 8)
	assert.Equal(t, make([]float32, 8), bins)
	assert.Nil(t, Spectrum(nil, 0))
}
