// Package types provides shared type definitions for the application.
package types

// Backend types.
const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

// APICredential is an API key for one backend.
type APICredential struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"` // "gemini", "openai"
	APIKey string `json:"api_key"`
}

// AssistantProfile selects a model and persona on top of a credential.
type AssistantProfile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CredentialID string `json:"credential_id"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Voice        string `json:"voice,omitempty"`
	Active       bool   `json:"active"`
}

// CaptureSettings tunes screen sampling.
type CaptureSettings struct {
	FrameIntervalMs int `json:"frame_interval_ms,omitempty"`
	MaxDimension    int `json:"max_dimension,omitempty"`
	JPEGQuality     int `json:"jpeg_quality,omitempty"`
}

// HotkeySettings binds global shortcuts. Each entry is a "+"-joined chord
// such as "ctrl+shift+g". Empty entries are unbound.
type HotkeySettings struct {
	Toggle string `json:"toggle,omitempty"`
	Undo   string `json:"undo,omitempty"`
	Redo   string `json:"redo,omitempty"`
	Clear  string `json:"clear,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Overlay Commands
// ─────────────────────────────────────────────────────────────────────────────

// Command types accepted from overlays.
const (
	CommandStart        = "start"
	CommandStop         = "stop"
	CommandUndo         = "undo"
	CommandRedo         = "redo"
	CommandClear        = "clear"
	CommandStrokeBegin  = "stroke_begin"
	CommandStrokeMove   = "stroke_move"
	CommandStrokeEnd    = "stroke_end"
	CommandStrokeCancel = "stroke_cancel"
)

// Command is a request from an overlay. Tool, X and Y are used by the
// stroke commands; coordinates are in the 0-1000 canonical space.
type Command struct {
	Type string  `json:"type"`
	Tool string  `json:"tool,omitempty"`
	X    float64 `json:"x,omitempty"`
	Y    float64 `json:"y,omitempty"`
}

// CommandResult answers a Command.
type CommandResult struct {
	Type  string `json:"type"` // always "result"
	For   string `json:"for"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
