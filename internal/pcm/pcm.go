// Package pcm converts between little-endian 16-bit PCM and float samples.
package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"mime"
	"strconv"
	"strings"
)

const bytesPerSample = 2

// ErrOddLength is returned for input that is not a whole number of samples.
var ErrOddLength = errors.New("pcm data length is not a multiple of 2")

// Decode converts PCM16 LE bytes to samples in [-1, 1).
func Decode(data []byte) ([]float32, error) {
	if len(data)%bytesPerSample != 0 {
		return nil, ErrOddLength
	}
	out := make([]float32, len(data)/bytesPerSample)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:])) //nolint:gosec // PCM16 reinterpretation
		out[i] = float32(v) / 32768
	}
	return out, nil
}

// Encode converts samples to PCM16 LE bytes, clipping to [-1, 1].
func Encode(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(toInt16(s))) //nolint:gosec // PCM16 reinterpretation
	}
	return out
}

func toInt16(s float32) int16 {
	v := math.Round(float64(s) * 32767)
	return int16(max(-32768, min(32767, v)))
}

// Resample converts samples between rates by linear interpolation.
func Resample(in []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: from=%d, to=%d", fromRate, toRate)
	}
	if fromRate == toRate || len(in) == 0 {
		return append([]float32(nil), in...), nil
	}

	n := int(float64(len(in)) * float64(toRate) / float64(fromRate))
	out := make([]float32, n)
	ratio := float64(fromRate) / float64(toRate)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx] + frac*(in[idx+1]-in[idx])
	}
	return out, nil
}

// MIMEType returns the media type for raw PCM16 at rate.
func MIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// ParseRate extracts the rate parameter from an audio/pcm media type. It
// returns def when the parameter is absent. Big-endian audio/L16 is rejected
// since Decode reads little-endian samples.
func ParseRate(mimeType string, def int) (int, error) {
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return 0, fmt.Errorf("parse media type %q: %w", mimeType, err)
	}
	if mediaType != "audio/pcm" {
		return 0, fmt.Errorf("unsupported media type %q", mediaType)
	}
	raw, ok := params["rate"]
	if !ok {
		return def, nil
	}
	rate, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("invalid rate %q", raw)
	}
	return rate, nil
}
