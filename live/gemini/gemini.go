// Package gemini connects live sessions to the Gemini Live API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"go.aimuz.me/glance/live"
)

const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// conn is the part of *genai.Session used here.
type conn interface {
	Receive() (*genai.LiveServerMessage, error)
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	Close() error
}

type dialFunc func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (conn, error)

// Connector opens Gemini Live sessions.
type Connector struct {
	dial dialFunc
}

// NewConnector returns a connector authenticated with apiKey.
func NewConnector(ctx context.Context, apiKey string) (*Connector, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Connector{
		dial: func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (conn, error) {
			sess, err := client.Live.Connect(ctx, model, cfg)
			if err != nil {
				return nil, err
			}
			return sess, nil
		},
	}, nil
}

// Connect opens a session. OpenedEvent is delivered once the server
// acknowledges setup.
func (c *Connector) Connect(ctx context.Context, cfg live.Config) (live.Session, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	slog.Info("connecting gemini live session", "model", model)
	cn, err := c.dial(ctx, model, connectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect gemini live: %w", err)
	}

	s := &session{conn: cn, em: live.NewEmitter(32)}
	go s.readLoop()
	return s, nil
}

func connectConfig(cfg live.Config) *genai.LiveConnectConfig {
	out := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.SystemInstruction != "" {
		out.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if cfg.Voice != "" {
		out.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toSchema(t.Parameters),
			})
		}
		out.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return out
}

func toSchema(s *live.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toSchema(p)
		}
	}
	return out
}

type session struct {
	conn    conn
	em      *live.Emitter
	sendMu  sync.Mutex
	closing atomic.Bool
	opened  bool
}

func (s *session) Events() <-chan live.Event {
	return s.em.Events()
}

func (s *session) SendMedia(chunk live.MediaChunk) error {
	if s.closing.Load() {
		return live.ErrClosed
	}
	blob := &genai.Blob{MIMEType: chunk.MIMEType, Data: chunk.Data}
	var in genai.LiveRealtimeInput
	if chunk.IsAudio() {
		in.Audio = blob
	} else {
		in.Video = blob
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn.SendRealtimeInput(in)
}

func (s *session) SendToolResults(results ...live.ToolResult) error {
	if s.closing.Load() {
		return live.ErrClosed
	}
	in := genai.LiveToolResponseInput{FunctionResponses: make([]*genai.FunctionResponse, 0, len(results))}
	for _, r := range results {
		in.FunctionResponses = append(in.FunctionResponses, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Response,
		})
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn.SendToolResponse(in)
}

// Close closes the socket. The read loop then finishes with ClosedEvent.
func (s *session) Close() error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	s.em.Stop()
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn.Close()
}

func (s *session) readLoop() {
	for {
		msg, err := s.conn.Receive()
		if err != nil {
			s.em.Finish(s.terminal(err))
			return
		}
		if msg.SetupComplete != nil && !s.opened {
			s.opened = true
			s.em.Emit(live.OpenedEvent{})
		}
		if msg.GoAway != nil {
			slog.Warn("gemini session going away", "time_left", msg.GoAway.TimeLeft)
		}
		if m, ok := convertMessage(msg); ok {
			s.em.Emit(live.MessageEvent{Message: m})
		}
	}
}

func (s *session) terminal(err error) live.Event {
	if s.closing.Load() {
		return live.ClosedEvent{Reason: "closed locally"}
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
		return live.ClosedEvent{Reason: ce.Text}
	}
	return live.ErrorEvent{Err: fmt.Errorf("gemini receive: %w", err)}
}

// convertMessage maps a server message onto live.Message. It reports false
// when the message carries nothing the session cares about.
func convertMessage(msg *genai.LiveServerMessage) (live.Message, bool) {
	var (
		m  live.Message
		ok bool
	)

	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
					continue
				}
				if !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
					continue
				}
				m.Audio = append(m.Audio, live.MediaChunk{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data})
			}
		}
		if sc.InputTranscription != nil {
			m.InputText = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			m.OutputText = sc.OutputTranscription.Text
		}
		m.TurnComplete = sc.TurnComplete
		m.Interrupted = sc.Interrupted
		ok = len(m.Audio) > 0 || m.InputText != "" || m.OutputText != "" || m.TurnComplete || m.Interrupted
	}

	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			m.ToolCalls = append(m.ToolCalls, live.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		ok = ok || len(m.ToolCalls) > 0
	}
	return m, ok
}
