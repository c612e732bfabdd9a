// Package playback schedules model speech for gapless output and flushes it
// on barge-in.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.aimuz.me/glance/internal/pcm"
	"go.aimuz.me/glance/live"
	"go.aimuz.me/glance/metrics"
)

// DefaultInputRate is assumed for audio/pcm chunks that carry no rate.
const DefaultInputRate = 24000

// ErrDecode is returned for chunks that cannot be decoded. The chunk is skipped.
var ErrDecode = errors.New("decode audio chunk")

// Output is an audio sink with a monotonic clock in seconds.
type Output interface {
	CurrentTime() float64
	// Play schedules samples to start at the given clock time. onEnded is
	// called once when the voice finishes or is stopped; it may be called
	// before Play returns.
	Play(samples []float32, sampleRate int, at float64, onEnded func()) (Voice, error)
}

// Voice is a scheduled buffer.
type Voice interface {
	Stop() error
}

// Scheduler chains chunks back to back on the output clock.
//
// Each chunk starts at max(nextStart, now) and pushes nextStart forward by
// its duration, so network jitter never produces overlaps and late chunks
// start immediately instead of in the past. Interrupt stops everything and
// resets the chain.
type Scheduler struct {
	out Output

	mu        sync.Mutex
	nextStart float64
	voices    map[uint64]Voice
	ended     map[uint64]struct{} // ended before registration
	seq       uint64
	gen       uint64
}

// NewScheduler returns a scheduler playing to out.
func NewScheduler(out Output) *Scheduler {
	return &Scheduler{
		out:    out,
		voices: make(map[uint64]Voice),
		ended:  make(map[uint64]struct{}),
	}
}

// Enqueue decodes a PCM chunk and schedules it after everything already queued.
func (s *Scheduler) Enqueue(chunk live.MediaChunk) error {
	rate, err := pcm.ParseRate(chunk.MIMEType, DefaultInputRate)
	if err != nil {
		metrics.RecordDecodeFailure()
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	samples, err := pcm.Decode(chunk.Data)
	if err != nil {
		metrics.RecordDecodeFailure()
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(samples) == 0 {
		return nil
	}
	duration := float64(len(samples)) / float64(rate)

	s.mu.Lock()
	now := s.out.CurrentTime()
	prev := s.nextStart
	start := max(prev, now)
	end := start + duration
	s.nextStart = end
	s.seq++
	id, gen := s.seq, s.gen
	s.mu.Unlock()

	metrics.RecordChunkScheduled(start - now)

	voice, err := s.out.Play(samples, rate, start, func() { s.finished(id, gen) })
	if err != nil {
		s.mu.Lock()
		// Give the slot back unless an interrupt or a later chunk moved the chain.
		if gen == s.gen && s.nextStart == end {
			s.nextStart = prev
		}
		delete(s.ended, id)
		s.mu.Unlock()
		return fmt.Errorf("schedule chunk: %w", err)
	}

	s.mu.Lock()
	if gen != s.gen {
		// Interrupted while we were scheduling.
		delete(s.ended, id)
		s.mu.Unlock()
		_ = voice.Stop()
		return nil
	}
	if _, done := s.ended[id]; done {
		delete(s.ended, id)
		s.mu.Unlock()
		return nil
	}
	s.voices[id] = voice
	s.mu.Unlock()
	return nil
}

// Interrupt stops all scheduled audio and resets the chain so the next chunk
// plays immediately.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	voices := s.voices
	s.voices = make(map[uint64]Voice)
	s.ended = make(map[uint64]struct{})
	s.nextStart = 0
	s.gen++
	s.mu.Unlock()

	metrics.RecordInterruption()
	for id, v := range voices {
		if err := v.Stop(); err != nil {
			slog.Debug("stop voice", "id", id, "error", err)
		}
	}
}

// NextStartTime returns the end of the scheduled chain. It is zero after an
// interrupt.
func (s *Scheduler) NextStartTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Active returns the number of voices scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

func (s *Scheduler) finished(id, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	if _, ok := s.voices[id]; ok {
		delete(s.voices, id)
		return
	}
	s.ended[id] = struct{}{}
}
