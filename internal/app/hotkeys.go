package app

import (
	"context"
	"log/slog"

	"go.aimuz.me/glance/hotkey"
	"go.aimuz.me/glance/internal/types"
)

// Executor runs overlay commands.
type Executor interface {
	Execute(ctx context.Context, cmd types.Command) error
}

// HotkeyBindings maps the configured chords to commands. onErr, if set,
// receives failures of the command a key triggered.
func HotkeyBindings(exec Executor, toggle func(context.Context) error, hk types.HotkeySettings, onErr func(cmd string, err error)) []hotkey.Binding {
	report := func(cmd string, err error) {
		if err == nil {
			return
		}
		slog.Warn("hotkey command failed", "command", cmd, "error", err)
		if onErr != nil {
			onErr(cmd, err)
		}
	}
	command := func(typ string) func() {
		return func() {
			report(typ, exec.Execute(context.Background(), types.Command{Type: typ}))
		}
	}

	return []hotkey.Binding{
		{Name: "toggle", Chord: hk.Toggle, Action: func() {
			report("toggle", toggle(context.Background()))
		}},
		{Name: "undo", Chord: hk.Undo, Action: command(types.CommandUndo)},
		{Name: "redo", Chord: hk.Redo, Action: command(types.CommandRedo)},
		{Name: "clear", Chord: hk.Clear, Action: command(types.CommandClear)},
	}
}
