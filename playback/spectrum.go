package playback

import (
	"math"
	"math/cmplx"
)

// fftSize is the analyser window, a power of two.
const fftSize = 512

// Spectrum computes a magnitude spectrum of samples, grouped into bins
// normalized to [0, 1]. It returns all zeros for silence. len(samples) is
// truncated or zero-padded to fftSize.
func Spectrum(samples []float32, bins int) []float32 {
	if bins <= 0 {
		return nil
	}
	buf := make([]complex128, fftSize)
	for i := 0; i < fftSize && i < len(samples); i++ {
		// Hann window.
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
		buf[i] = complex(float64(samples[i])*w, 0)
	}
	fft(buf)

	half := fftSize / 2
	bins = min(bins, half)
	per := half / bins
	out := make([]float32, bins)
	var peak float64
	mags := make([]float64, bins)
	for b := range bins {
		var sum float64
		for k := b * per; k < (b+1)*per; k++ {
			sum += cmplx.Abs(buf[k])
		}
		mags[b] = sum / float64(per)
		peak = max(peak, mags[b])
	}
	if peak < 1e-9 {
		return out
	}
	for b, m := range mags {
		out[b] = float32(m / peak)
	}
	return out
}

// fft is an in-place iterative radix-2 Cooley-Tukey transform.
// len(a) must be a power of two.
func fft(a []complex128) {
	n := len(a)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		step := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := 0; k < size/2; k++ {
				u := a[start+k]
				v := a[start+k+size/2] * w
				a[start+k] = u + v
				a[start+k+size/2] = u - v
				w *= step
			}
		}
	}
}
