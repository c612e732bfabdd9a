package openai

import "encoding/json"

// Server event types from the OpenAI Realtime API.
const (
	EventSessionCreated        = "session.created"
	EventSessionUpdated        = "session.updated"
	EventInputTranscriptDelta  = "conversation.item.input_audio_transcription.delta"
	EventOutputTranscriptDelta = "response.output_audio_transcript.delta"
	EventSpeechStarted         = "input_audio_buffer.speech_started"
	EventFunctionCallArgsDone  = "response.function_call_arguments.done"
	EventResponseDone          = "response.done"
	EventError                 = "error"
)

// Client event types.
const (
	clientSessionUpdate = "session.update"
	clientItemCreate    = "conversation.item.create"
	clientResponse      = "response.create"
)

// Event is a discriminated union for Realtime API events.
// Check the concrete type via type switch.
type Event interface {
	eventType() string
}

// SessionEvent is emitted when the session is created or its configuration
// is acknowledged.
type SessionEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Session struct {
		ID    string `json:"id"`
		Model string `json:"model"`
	} `json:"session"`
}

func (e SessionEvent) eventType() string { return e.Type }

// SpeechStartedEvent is emitted when VAD detects speech. The server cancels
// any response in flight, so local playback must stop too.
type SpeechStartedEvent struct {
	EventID      string `json:"event_id"`
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

func (SpeechStartedEvent) eventType() string { return EventSpeechStarted }

// TranscriptDeltaEvent carries an incremental transcription of either side.
type TranscriptDeltaEvent struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	ItemID     string `json:"item_id"`
	ContentIdx int    `json:"content_index"`
	Delta      string `json:"delta"`
}

func (e TranscriptDeltaEvent) eventType() string { return e.Type }

// FunctionCallEvent is emitted once the model has finished streaming the
// arguments of a function call.
type FunctionCallEvent struct {
	EventID   string `json:"event_id"`
	ItemID    string `json:"item_id"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (FunctionCallEvent) eventType() string { return EventFunctionCallArgsDone }

// ResponseDoneEvent is emitted when a model response ends.
type ResponseDoneEvent struct {
	EventID  string `json:"event_id"`
	Response struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Output []struct {
			Type string `json:"type"`
		} `json:"output"`
	} `json:"response"`
}

func (ResponseDoneEvent) eventType() string { return EventResponseDone }

// onlyFunctionCalls reports whether the response produced nothing but
// function calls. Such a response continues once the calls are answered.
func (e ResponseDoneEvent) onlyFunctionCalls() bool {
	if len(e.Response.Output) == 0 {
		return false
	}
	for _, o := range e.Response.Output {
		if o.Type != "function_call" {
			return false
		}
	}
	return true
}

// ErrorEvent is emitted when an API error occurs.
type ErrorEvent struct {
	EventID string `json:"event_id"`
	Error   struct {
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
		Param   string `json:"param,omitempty"`
	} `json:"error"`
}

func (ErrorEvent) eventType() string { return EventError }

// UnknownEvent holds events we don't recognize.
type UnknownEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Raw     json.RawMessage
}

func (e UnknownEvent) eventType() string { return e.Type }

// ParseEvent unmarshals JSON into the appropriate Event type.
func ParseEvent(data []byte) (Event, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, err
	}

	switch header.Type {
	case EventSessionCreated, EventSessionUpdated:
		return decode[SessionEvent](data)
	case EventSpeechStarted:
		return decode[SpeechStartedEvent](data)
	case EventInputTranscriptDelta, EventOutputTranscriptDelta:
		return decode[TranscriptDeltaEvent](data)
	case EventFunctionCallArgsDone:
		return decode[FunctionCallEvent](data)
	case EventResponseDone:
		return decode[ResponseDoneEvent](data)
	case EventError:
		return decode[ErrorEvent](data)
	default:
		return UnknownEvent{Type: header.Type, Raw: data}, nil
	}
}

func decode[T Event](data []byte) (Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e, nil
}

// ───── Client events ─────

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Type             string         `json:"type"`
	Instructions     string         `json:"instructions,omitempty"`
	OutputModalities []string       `json:"output_modalities"`
	Audio            audioConfig    `json:"audio"`
	Tools            []functionTool `json:"tools,omitempty"`
	ToolChoice       string         `json:"tool_choice,omitempty"`
}

type audioConfig struct {
	Input struct {
		Transcription struct {
			Model string `json:"model"`
		} `json:"transcription"`
		TurnDetection struct {
			Type              string `json:"type"`
			CreateResponse    bool   `json:"create_response"`
			InterruptResponse bool   `json:"interrupt_response"`
		} `json:"turn_detection"`
	} `json:"input"`
	Output struct {
		Voice string `json:"voice,omitempty"`
	} `json:"output"`
}

type functionTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type itemCreate struct {
	Type string `json:"type"`
	Item item   `json:"item"`
}

type item struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []itemContent `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
}

type itemContent struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url,omitempty"`
}

type responseCreate struct {
	Type string `json:"type"`
}
