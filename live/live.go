// Package live defines the boundary between the assistant and a realtime
// multimodal model session. Backends live in subpackages.
package live

import (
	"context"
	"errors"
)

// Sentinel errors.
var (
	ErrClosed   = errors.New("live session closed")
	ErrNotReady = errors.New("live session not ready")
)

// MIME types of media sent to the model.
const (
	MIMEAudioPCM16k = "audio/pcm;rate=16000"
	MIMEImageJPEG   = "image/jpeg"
)

// MediaChunk is an encoded slice of audio or video.
type MediaChunk struct {
	MIMEType string
	Data     []byte
}

// IsAudio reports whether the chunk carries audio.
func (c MediaChunk) IsAudio() bool {
	return len(c.MIMEType) >= 6 && c.MIMEType[:6] == "audio/"
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers a ToolCall. ID must match the call it answers.
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]any
}

// Message is one server message. Any combination of fields may be set.
type Message struct {
	Audio        []MediaChunk
	ToolCalls    []ToolCall
	InputText    string // transcription of the user's speech
	OutputText   string // transcription of the model's speech
	TurnComplete bool
	Interrupted  bool
}

// Config configures a live session.
type Config struct {
	Model             string
	SystemInstruction string
	Voice             string
	Tools             []FunctionDeclaration
}

// Session is an open bidirectional session.
//
// Events delivers OpenedEvent first and ends with either an ErrorEvent or a
// ClosedEvent, after which the channel is closed.
type Session interface {
	Events() <-chan Event
	SendMedia(chunk MediaChunk) error
	SendToolResults(results ...ToolResult) error
	Close() error
}

// Connector opens sessions against a backend.
type Connector interface {
	Connect(ctx context.Context, cfg Config) (Session, error)
}
