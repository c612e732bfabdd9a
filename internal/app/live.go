package app

import (
	"context"
	"fmt"
	"log/slog"

	"go.aimuz.me/glance/config"
	"go.aimuz.me/glance/internal/types"
	"go.aimuz.me/glance/langdetect"
	"go.aimuz.me/glance/live"
	"go.aimuz.me/glance/live/gemini"
	"go.aimuz.me/glance/live/openai"
	"go.aimuz.me/glance/session"
	"go.aimuz.me/glance/transcript"
)

// NewConnector returns the live backend for b.
func NewConnector(ctx context.Context, b config.Backend) (live.Connector, error) {
	switch b.Type {
	case types.BackendGemini:
		c, err := gemini.NewConnector(ctx, b.APIKey)
		if err != nil {
			return nil, err
		}
		return c, nil
	case types.BackendOpenAI:
		c, err := openai.NewConnector(b.APIKey)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unsupported backend type: %s", b.Type)
}

// BackendFunc resolves the backend to use for the next session.
type BackendFunc func() (config.Backend, error)

// Connector resolves the backend on every Connect, so credential and profile
// edits apply to the next session without rebuilding the controller.
type Connector struct {
	Resolve BackendFunc
	// New builds the backend connector. Nil means NewConnector.
	New func(ctx context.Context, b config.Backend) (live.Connector, error)
}

// Connect implements live.Connector. The tools of cfg are kept; model,
// instruction and voice come from the resolved backend.
func (c *Connector) Connect(ctx context.Context, cfg live.Config) (live.Session, error) {
	b, err := c.Resolve()
	if err != nil {
		return nil, err
	}
	newConn := c.New
	if newConn == nil {
		newConn = NewConnector
	}
	conn, err := newConn(ctx, b)
	if err != nil {
		return nil, err
	}

	lc := b.LiveConfig()
	lc.Tools = cfg.Tools
	slog.Info("connecting", "backend", b.Type, "model", lc.Model)
	return conn.Connect(ctx, lc)
}

// NewController builds a controller on the real devices. backend is resolved
// at each Start.
func NewController(cfg *config.Config, backend BackendFunc) *session.Controller {
	return session.NewController(
		&Connector{Resolve: backend},
		Devices{},
		OpenOutput,
		session.Config{
			Capture:    cfg.CaptureConfig(),
			ClearDelay: cfg.ClearDelay(),
		},
		transcript.WithLanguageDetector(detectLanguage),
	)
}

func detectLanguage(text string) string {
	code, _ := langdetect.Detect(text)
	return code
}
