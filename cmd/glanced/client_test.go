package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/glance/internal/bridge"
	"go.aimuz.me/glance/internal/types"
	"go.aimuz.me/glance/session"
)

type execFunc func(context.Context, types.Command) error

func (f execFunc) Execute(ctx context.Context, cmd types.Command) error { return f(ctx, cmd) }

func TestSendCommand(t *testing.T) {
	store := session.NewStore()
	var (
		mu  sync.Mutex
		got types.Command
	)
	srv := bridge.New(execFunc(func(_ context.Context, cmd types.Command) error {
		mu.Lock()
		got = cmd
		mu.Unlock()
		store.Update(func(s *session.State) { s.CanUndo = true })
		return nil
	}), store)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	res, err := sendCommand(url, types.Command{Type: types.CommandStrokeBegin, Tool: "arrow", X: 1, Y: 2})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, types.CommandStrokeBegin, res.For)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "arrow", got.Tool)
}

func TestSendCommandUnreachable(t *testing.T) {
	_, err := sendCommand("ws://127.0.0.1:1/ws", types.Command{Type: types.CommandUndo})
	assert.Error(t, err)
}
