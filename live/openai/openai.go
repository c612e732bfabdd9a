// Package openai connects live sessions to the OpenAI Realtime API over
// WebRTC. Microphone audio travels on an opus track, everything else on the
// "oai-events" data channel.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
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
	DefaultModel              = "gpt-realtime"
	DefaultVoice              = "marin"
	DefaultTranscriptionModel = "gpt-4o-transcribe"
)

type dialFunc func(ctx context.Context, cfg live.Config, cb callbacks) (transport, error)

// Connector opens Realtime sessions.
type Connector struct {
	dial dialFunc
}

// NewConnector returns a connector authenticated with apiKey.
func NewConnector(apiKey string) (*Connector, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key required")
	}
	return &Connector{
		dial: func(ctx context.Context, cfg live.Config, cb callbacks) (transport, error) {
			slog.Info("creating OpenAI realtime session", "model", cfg.Model)
			sec, err := createSecret(ctx, apiKey, cfg.Model, cfg.SystemInstruction)
			if err != nil {
				return nil, err
			}
			slog.Info("session created", "expires", time.Unix(sec.ExpiresAt, 0))

			p, err := dialPeer(ctx, RealtimeEndpoint, sec.Value, cb)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	}, nil
}

// Connect opens a session. OpenedEvent is delivered once the server has
// acknowledged the session configuration.
func (c *Connector) Connect(ctx context.Context, cfg live.Config) (live.Session, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	s := newSession(cfg)
	tr, err := c.dial(ctx, cfg, s.callbacks())
	if err != nil {
		s.shutdown()
		return nil, fmt.Errorf("connect openai realtime: %w", err)
	}
	s.tr = tr
	go s.pump()
	return s, nil
}

// inbound is one callback from the transport, serialized through pump.
type inbound struct {
	open  bool
	data  []byte
	audio []float32
}

type session struct {
	cfg live.Config
	tr  transport
	em  *live.Emitter

	in      chan inbound
	term    chan live.Event
	done    chan struct{}
	closing atomic.Bool
	opened  bool

	sendMu sync.Mutex
	frames *framer
}

func newSession(cfg live.Config) *session {
	return &session{
		cfg:    cfg,
		em:     live.NewEmitter(32),
		in:     make(chan inbound, 64),
		term:   make(chan live.Event, 1),
		done:   make(chan struct{}),
		frames: newFramer(opusFrameSize),
	}
}

func (s *session) callbacks() callbacks {
	return callbacks{
		onOpen:    func() { s.push(inbound{open: true}) },
		onMessage: func(data []byte) { s.push(inbound{data: data}) },
		onAudio:   func(samples []float32) { s.push(inbound{audio: samples}) },
		onClosed:  func(reason string) { s.terminate(live.ClosedEvent{Reason: reason}) },
		onFailure: func(err error) { s.terminate(live.ErrorEvent{Err: err}) },
	}
}

func (s *session) push(in inbound) {
	select {
	case s.in <- in:
	case <-s.done:
	}
}

func (s *session) terminate(ev live.Event) {
	select {
	case s.term <- ev:
	default:
	}
}

func (s *session) Events() <-chan live.Event {
	return s.em.Events()
}

// SendMedia sends microphone audio over the opus track and screen frames as
// image items on the data channel.
func (s *session) SendMedia(chunk live.MediaChunk) error {
	if s.closing.Load() {
		return live.ErrClosed
	}
	if !chunk.IsAudio() {
		return s.sendJSON(imageItem(chunk))
	}

	samples, err := pcm.Decode(chunk.Data)
	if err != nil {
		return err
	}
	rate, err := pcm.ParseRate(chunk.MIMEType, 16000)
	if err != nil {
		return err
	}
	up, err := pcm.Resample(samples, rate, opusRate)
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	for _, frame := range s.frames.push(up) {
		if err := s.tr.writeFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

// SendToolResults answers function calls and asks the model to continue.
func (s *session) SendToolResults(results ...live.ToolResult) error {
	if s.closing.Load() {
		return live.ErrClosed
	}
	for _, r := range results {
		out, err := json.Marshal(r.Response)
		if err != nil {
			return fmt.Errorf("marshal tool result: %w", err)
		}
		if err := s.sendJSON(itemCreate{
			Type: clientItemCreate,
			Item: item{Type: "function_call_output", CallID: r.ID, Output: string(out)},
		}); err != nil {
			return err
		}
	}
	return s.sendJSON(responseCreate{Type: clientResponse})
}

func (s *session) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal client event: %w", err)
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.tr.sendText(string(data))
}

// Close hangs up. The events channel is closed after a final ClosedEvent.
func (s *session) Close() error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	s.shutdown()
	s.em.Stop()
	return s.tr.close()
}

func (s *session) shutdown() {
	close(s.done)
}

// pump is the only goroutine that emits events.
func (s *session) pump() {
	for {
		select {
		case in := <-s.in:
			if ev := s.handle(in); ev != nil {
				s.em.Finish(ev)
				return
			}
		case ev := <-s.term:
			s.em.Finish(ev)
			return
		case <-s.done:
			s.em.Finish(live.ClosedEvent{Reason: "closed locally"})
			return
		}
	}
}

// handle processes one inbound item. It returns a terminal event when the
// session cannot continue.
func (s *session) handle(in inbound) live.Event {
	switch {
	case in.open:
		if err := s.sendJSON(buildSessionUpdate(s.cfg)); err != nil {
			return live.ErrorEvent{Err: fmt.Errorf("configure session: %w", err)}
		}
	case in.audio != nil:
		s.em.Emit(live.MessageEvent{Message: live.Message{Audio: []live.MediaChunk{{
			MIMEType: pcm.MIMEType(opusRate),
			Data:     pcm.Encode(in.audio),
		}}}})
	case in.data != nil:
		ev, err := ParseEvent(in.data)
		if err != nil {
			slog.Warn("failed to parse event", "error", err)
			return nil
		}
		if e, ok := ev.(SessionEvent); ok && e.Type == EventSessionUpdated && !s.opened {
			s.opened = true
			s.em.Emit(live.OpenedEvent{})
			return nil
		}
		if m, ok := toMessage(ev); ok {
			s.em.Emit(live.MessageEvent{Message: m})
		}
	}
	return nil
}

// toMessage maps a server event onto live.Message. It reports false when
// the event carries nothing the session cares about.
func toMessage(ev Event) (live.Message, bool) {
	switch e := ev.(type) {
	case SpeechStartedEvent:
		return live.Message{Interrupted: true}, true
	case TranscriptDeltaEvent:
		if e.Delta == "" {
			return live.Message{}, false
		}
		if e.Type == EventInputTranscriptDelta {
			return live.Message{InputText: e.Delta}, true
		}
		return live.Message{OutputText: e.Delta}, true
	case FunctionCallEvent:
		call := live.ToolCall{ID: e.CallID, Name: e.Name}
		if e.Arguments != "" {
			if err := json.Unmarshal([]byte(e.Arguments), &call.Args); err != nil {
				slog.Warn("malformed function arguments", "name", e.Name, "error", err)
			}
		}
		return live.Message{ToolCalls: []live.ToolCall{call}}, true
	case ResponseDoneEvent:
		if e.onlyFunctionCalls() {
			return live.Message{}, false
		}
		return live.Message{TurnComplete: true}, true
	case ErrorEvent:
		slog.Warn("realtime API error", "type", e.Error.Type, "code", e.Error.Code, "message", e.Error.Message)
	case UnknownEvent:
		slog.Debug("unhandled event", "type", e.Type)
	}
	return live.Message{}, false
}

func buildSessionUpdate(cfg live.Config) sessionUpdate {
	sc := sessionConfig{
		Type:             "realtime",
		Instructions:     cfg.SystemInstruction,
		OutputModalities: []string{"audio"},
	}
	sc.Audio.Input.Transcription.Model = DefaultTranscriptionModel
	sc.Audio.Input.TurnDetection.Type = "semantic_vad"
	sc.Audio.Input.TurnDetection.CreateResponse = true
	sc.Audio.Input.TurnDetection.InterruptResponse = true
	sc.Audio.Output.Voice = cfg.Voice
	if sc.Audio.Output.Voice == "" {
		sc.Audio.Output.Voice = DefaultVoice
	}

	for _, t := range cfg.Tools {
		ft := functionTool{Type: "function", Name: t.Name, Description: t.Description}
		if t.Parameters != nil {
			ft.Parameters = t.Parameters.JSON()
		}
		sc.Tools = append(sc.Tools, ft)
	}
	if len(sc.Tools) > 0 {
		sc.ToolChoice = "auto"
	}
	return sessionUpdate{Type: clientSessionUpdate, Session: sc}
}

func imageItem(chunk live.MediaChunk) itemCreate {
	url := "data:" + chunk.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(chunk.Data)
	return itemCreate{
		Type: clientItemCreate,
		Item: item{
			Type:    "message",
			Role:    "user",
			Content: []itemContent{{Type: "input_image", ImageURL: url}},
		},
	}
}

// framer slices a sample stream into fixed-size opus frames.
type framer struct {
	size    int
	pending []float32
}

func newFramer(size int) *framer {
	return &framer{size: size, pending: make([]float32, 0, size*2)}
}

func (f *framer) push(samples []float32) [][]float32 {
	f.pending = append(f.pending, samples...)
	var out [][]float32
	for len(f.pending) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.pending[:f.size])
		out = append(out, frame)
		f.pending = append(f.pending[:0], f.pending[f.size:]...)
	}
	return out
}
