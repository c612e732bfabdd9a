// Package bridge exposes the session state and commands to browser overlays
// over a local websocket, alongside the metrics endpoint.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go.aimuz.me/glance/internal/types"
	"go.aimuz.me/glance/metrics"
	"go.aimuz.me/glance/session"
)

const (
	maxCommandBytes = 4096
	writeTimeout    = 5 * time.Second
	resultQueueSize = 16
)

// Executor runs overlay commands.
type Executor interface {
	Execute(ctx context.Context, cmd types.Command) error
}

// stateMessage is pushed to every client on each state change.
type stateMessage struct {
	Type  string        `json:"type"` // always "state"
	State session.State `json:"state"`
}

// Server fans state out to websocket clients and forwards their commands.
type Server struct {
	exec     Executor
	store    *session.Store
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	cancel  func()
}

// New returns a server bound to the controller's executor and store.
func New(exec Executor, store *session.Store) *Server {
	s := &Server{
		exec:  exec,
		store: store,
		upgrader: websocket.Upgrader{
			CheckOrigin: localOrigin,
		},
		clients: make(map[*client]struct{}),
	}
	s.cancel = store.Subscribe(s.broadcast)
	return s
}

// Handler serves /ws, /state and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /state", s.serveState)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("bridge listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close disconnects every client and stops following the store.
func (s *Server) Close() {
	s.cancel()
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (s *Server) serveState(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.store.Get()); err != nil {
		slog.Warn("write state", "error", err)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxCommandBytes)

	c := newClient(conn)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	slog.Info("overlay connected", "remote", r.RemoteAddr)

	go c.writeLoop()
	st := s.store.Get()
	c.pushState(st.Version, encodeState(st))
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
	slog.Info("overlay disconnected", "remote", r.RemoteAddr)
}

func (s *Server) readLoop(c *client) {
	for {
		var cmd types.Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("overlay read", "error", err)
			}
			return
		}
		if cmd.Type == types.CommandStart {
			// Connecting can take seconds; keep reading so stop still works.
			go s.execute(c, cmd)
			continue
		}
		s.execute(c, cmd)
	}
}

func (s *Server) execute(c *client, cmd types.Command) {
	res := types.CommandResult{Type: "result", For: cmd.Type, OK: true}
	if err := s.exec.Execute(context.Background(), cmd); err != nil {
		res.OK = false
		res.Error = err.Error()
	}
	c.pushResult(res)
}

func (s *Server) broadcast(st session.State) {
	data := encodeState(st)
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.pushState(st.Version, data)
	}
}

func encodeState(st session.State) []byte {
	data, err := json.Marshal(stateMessage{Type: "state", State: st})
	if err != nil {
		slog.Error("marshal state", "error", err)
		return nil
	}
	return data
}

// localOrigin accepts non-browser clients and pages served from loopback.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" || host == "wails.localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// client has one writer goroutine. State pushes keep only the latest
// snapshot; command results queue.
type client struct {
	conn    *websocket.Conn
	state   chan []byte
	results chan types.CommandResult
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	version uint64
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:    conn,
		state:   make(chan []byte, 1),
		results: make(chan types.CommandResult, resultQueueSize),
		done:    make(chan struct{}),
	}
}

func (c *client) pushState(version uint64, data []byte) {
	if data == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if version < c.version {
		return
	}
	c.version = version

	for {
		select {
		case c.state <- data:
			return
		case <-c.done:
			return
		default:
		}
		// Replace the unsent snapshot.
		select {
		case <-c.state:
		default:
		}
	}
}

func (c *client) pushResult(res types.CommandResult) {
	select {
	case c.results <- res:
	case <-c.done:
	default:
		slog.Warn("overlay result dropped", "for", res.For)
	}
}

func (c *client) writeLoop() {
	for {
		var err error
		select {
		case data := <-c.state:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err = c.conn.WriteMessage(websocket.TextMessage, data)
		case res := <-c.results:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err = c.conn.WriteJSON(res)
		case <-c.done:
			return
		}
		if err != nil {
			slog.Debug("overlay write", "error", err)
			c.close()
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
