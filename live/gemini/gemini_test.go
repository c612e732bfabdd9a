package gemini

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"go.aimuz.me/glance/live"
)

type recv struct {
	msg *genai.LiveServerMessage
	err error
}

type fakeConn struct {
	in chan recv

	mu       sync.Mutex
	realtime []genai.LiveRealtimeInput
	tools    []genai.LiveToolResponseInput
	closed   int
	done     chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan recv, 8), done: make(chan struct{})}
}

func (c *fakeConn) Receive() (*genai.LiveServerMessage, error) {
	select {
	case r := <-c.in:
		return r.msg, r.err
	case <-c.done:
		return nil, errors.New("use of closed network connection")
	}
}

func (c *fakeConn) SendRealtimeInput(in genai.LiveRealtimeInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.realtime = append(c.realtime, in)
	return nil
}

func (c *fakeConn) SendToolResponse(in genai.LiveToolResponseInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = append(c.tools, in)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	if c.closed == 1 {
		close(c.done)
	}
	return nil
}

func connectFake(t *testing.T, cfg live.Config) (*fakeConn, live.Session, *genai.LiveConnectConfig, string) {
	t.Helper()
	fc := newFakeConn()
	var (
		gotCfg   *genai.LiveConnectConfig
		gotModel string
	)
	c := &Connector{dial: func(_ context.Context, model string, cfg *genai.LiveConnectConfig) (conn, error) {
		gotModel = model
		gotCfg = cfg
		return fc, nil
	}}
	s, err := c.Connect(context.Background(), cfg)
	require.NoError(t, err)
	return fc, s, gotCfg, gotModel
}

func next(t *testing.T, s live.Session) live.Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestConnectConfig(t *testing.T) {
	_, s, cfg, model := connectFake(t, live.Config{
		SystemInstruction: "be brief",
		Voice:             "Puck",
		Tools: []live.FunctionDeclaration{{
			Name:        "mark_screen",
			Description: "draw",
			Parameters: &live.Schema{
				Type: live.TypeObject,
				Properties: map[string]*live.Schema{
					"marks": {Type: live.TypeArray, Items: &live.Schema{Type: live.TypeObject}},
				},
				Required: []string{"marks"},
			},
		}},
	})
	defer s.Close()

	assert.Equal(t, DefaultModel, model)
	assert.Equal(t, []genai.Modality{genai.ModalityAudio}, cfg.ResponseModalities)
	assert.NotNil(t, cfg.InputAudioTranscription)
	assert.NotNil(t, cfg.OutputAudioTranscription)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be brief", cfg.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "Puck", cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)

	require.Len(t, cfg.Tools, 1)
	decl := cfg.Tools[0].FunctionDeclarations[0]
	assert.Equal(t, "mark_screen", decl.Name)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, genai.TypeArray, decl.Parameters.Properties["marks"].Type)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Properties["marks"].Items.Type)
	assert.Equal(t, []string{"marks"}, decl.Parameters.Required)
}

func TestConnectModelOverride(t *testing.T) {
	_, s, _, model := connectFake(t, live.Config{Model: "custom-model"})
	defer s.Close()
	assert.Equal(t, "custom-model", model)
}

func TestConnectDialError(t *testing.T) {
	c := &Connector{dial: func(context.Context, string, *genai.LiveConnectConfig) (conn, error) {
		return nil, errors.New("401")
	}}
	_, err := c.Connect(context.Background(), live.Config{})
	assert.ErrorContains(t, err, "401")
}

func TestNewConnectorRequiresKey(t *testing.T) {
	_, err := NewConnector(context.Background(), "")
	assert.Error(t, err)
}

func TestOpenedOnSetupComplete(t *testing.T) {
	fc, s, _, _ := connectFake(t, live.Config{})
	defer s.Close()

	fc.in <- recv{msg: &genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}}
	assert.IsType(t, live.OpenedEvent{}, next(t, s))

	fc.in <- recv{msg: &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{OutputTranscription: &genai.Transcription{Text: "hi"}},
	}}
	ev := next(t, s)
	require.IsType(t, live.MessageEvent{}, ev)
	assert.Equal(t, "hi", ev.(live.MessageEvent).Message.OutputText)
}

func TestTerminalEvents(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		closed bool
	}{
		{"normal_close", &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"}, true},
		{"going_away", &websocket.CloseError{Code: websocket.CloseGoingAway}, true},
		{"abnormal", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false},
		{"network", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, s, _, _ := connectFake(t, live.Config{})
			defer s.Close()

			fc.in <- recv{err: tt.err}
			ev := next(t, s)
			if tt.closed {
				assert.IsType(t, live.ClosedEvent{}, ev)
			} else {
				require.IsType(t, live.ErrorEvent{}, ev)
				assert.ErrorIs(t, ev.(live.ErrorEvent).Err, tt.err)
			}

			_, ok := <-s.Events()
			assert.False(t, ok, "events channel should close after terminal event")
		})
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	fc, s, _, _ := connectFake(t, live.Config{})

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	for range s.Events() {
	}
	fc.mu.Lock()
	assert.Equal(t, 1, fc.closed)
	fc.mu.Unlock()

	assert.ErrorIs(t, s.SendMedia(live.MediaChunk{MIMEType: live.MIMEAudioPCM16k}), live.ErrClosed)
	assert.ErrorIs(t, s.SendToolResults(live.ToolResult{ID: "x"}), live.ErrClosed)
}

func TestSendMediaRouting(t *testing.T) {
	fc, s, _, _ := connectFake(t, live.Config{})
	defer s.Close()

	require.NoError(t, s.SendMedia(live.MediaChunk{MIMEType: live.MIMEAudioPCM16k, Data: []byte{1, 2}}))
	require.NoError(t, s.SendMedia(live.MediaChunk{MIMEType: live.MIMEImageJPEG, Data: []byte{0xff, 0xd8}}))

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Len(t, fc.realtime, 2)
	require.NotNil(t, fc.realtime[0].Audio)
	assert.Nil(t, fc.realtime[0].Video)
	assert.Equal(t, live.MIMEAudioPCM16k, fc.realtime[0].Audio.MIMEType)
	require.NotNil(t, fc.realtime[1].Video)
	assert.Nil(t, fc.realtime[1].Audio)
	assert.Equal(t, []byte{0xff, 0xd8}, fc.realtime[1].Video.Data)
}

func TestSendToolResults(t *testing.T) {
	fc, s, _, _ := connectFake(t, live.Config{})
	defer s.Close()

	require.NoError(t, s.SendToolResults(live.ToolResult{
		ID:       "call-7",
		Name:     "mark_screen",
		Response: map[string]any{"result": "ok"},
	}))

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Len(t, fc.tools, 1)
	fr := fc.tools[0].FunctionResponses
	require.Len(t, fr, 1)
	assert.Equal(t, "call-7", fr[0].ID)
	assert.Equal(t, "mark_screen", fr[0].Name)
	assert.Equal(t, "ok", fr[0].Response["result"])
}

func TestConvertMessage(t *testing.T) {
	t.Run("audio_parts", func(t *testing.T) {
		m, ok := convertMessage(&genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 0}}},
				{Text: "thinking"},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{9}}},
				nil,
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{2, 0}}},
			}},
		}})
		require.True(t, ok)
		require.Len(t, m.Audio, 2)
		assert.Equal(t, []byte{2, 0}, m.Audio[1].Data)
	})

	t.Run("flags_and_text", func(t *testing.T) {
		m, ok := convertMessage(&genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
			InputTranscription: &genai.Transcription{Text: "what is this"},
			TurnComplete:       true,
			Interrupted:        true,
		}})
		require.True(t, ok)
		assert.Equal(t, "what is this", m.InputText)
		assert.True(t, m.TurnComplete)
		assert.True(t, m.Interrupted)
	})

	t.Run("tool_call", func(t *testing.T) {
		m, ok := convertMessage(&genai.LiveServerMessage{ToolCall: &genai.LiveServerToolCall{
			FunctionCalls: []*genai.FunctionCall{
				{ID: "call-1", Name: "clear_marks", Args: map[string]any{}},
				nil,
			},
		}})
		require.True(t, ok)
		require.Len(t, m.ToolCalls, 1)
		assert.Equal(t, "call-1", m.ToolCalls[0].ID)
		assert.Equal(t, "clear_marks", m.ToolCalls[0].Name)
	})

	t.Run("empty", func(t *testing.T) {
		_, ok := convertMessage(&genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}})
		assert.False(t, ok)
		_, ok = convertMessage(&genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{}})
		assert.False(t, ok)
	})
}
