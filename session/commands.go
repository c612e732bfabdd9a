package session

import (
	"context"
	"fmt"

	"go.aimuz.me/glance/annotate"
	"go.aimuz.me/glance/internal/types"
)

// Execute runs an overlay command. It is the single entry point shared by
// the desktop bindings, the bridge and the hotkeys.
func (c *Controller) Execute(ctx context.Context, cmd types.Command) error {
	p := annotate.Point{X: cmd.X, Y: cmd.Y}
	switch cmd.Type {
	case types.CommandStart:
		return c.Start(ctx)
	case types.CommandStop:
		c.Stop()
	case types.CommandUndo:
		c.Undo()
	case types.CommandRedo:
		c.Redo()
	case types.CommandClear:
		c.ClearMarks()
	case types.CommandStrokeBegin:
		kind := annotate.Kind(cmd.Tool)
		if !kind.Valid() {
			return fmt.Errorf("unknown drawing tool: %q", cmd.Tool)
		}
		c.BeginStroke(kind, p)
	case types.CommandStrokeMove:
		c.ExtendStroke(p)
	case types.CommandStrokeEnd:
		c.EndStroke(p)
	case types.CommandStrokeCancel:
		c.CancelStroke()
	default:
		return fmt.Errorf("unknown command: %q", cmd.Type)
	}
	return nil
}

// Toggle starts a session when idle and stops the current one otherwise.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	running := c.run != nil
	c.mu.Unlock()
	if running {
		c.Stop()
		return nil
	}
	return c.Start(ctx)
}
