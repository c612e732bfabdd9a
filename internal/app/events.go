// Package app wires the session controller to the desktop shell.
package app

// Event names for frontend communication.
const (
	EventState             = "glance-state"
	EventError             = "glance-error"
	EventScreenPermission  = "screen-permission"
	EventHotkeysRegistered = "hotkeys-registered"
)

// ErrorNotice is emitted when a command started outside the frontend fails.
type ErrorNotice struct {
	Command string `json:"command"`
	Message string `json:"message"`
}
