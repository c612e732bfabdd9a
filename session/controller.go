// Package session owns the lifecycle of one assistant activation: device
// acquisition, the live connection, routing of remote events and teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/glance/annotate"
	"go.aimuz.me/glance/capture"
	"go.aimuz.me/glance/live"
	"go.aimuz.me/glance/metrics"
	"go.aimuz.me/glance/playback"
	"go.aimuz.me/glance/transcript"
)

// Sentinel errors.
var (
	ErrDeviceAcquisition = errors.New("session: device acquisition failed")
	ErrConnection        = errors.New("session: connection failed")
	ErrAlreadyActive     = errors.New("session: already active")
)

const (
	DefaultSpectrumInterval = 50 * time.Millisecond
	DefaultSpectrumBins     = 32
)

// Devices acquires capture sources for one activation.
type Devices interface {
	AcquireScreen() (capture.ScreenSource, error)
	AcquireMicrophone() (capture.MicrophoneSource, error)
}

// Output is a playback sink the controller can analyse and close.
type Output interface {
	playback.Output
	Spectrum(bins int) []float32
	Close() error
}

// OutputFactory opens the audio output when a session becomes active.
type OutputFactory func() (Output, error)

// Config tunes the controller. Zero values select defaults.
type Config struct {
	Live             live.Config
	Capture          capture.Config
	ClearDelay       time.Duration
	SpectrumInterval time.Duration
	SpectrumBins     int
	QueueSize        int
}

// Controller is the session state machine. At most one activation exists at
// a time.
type Controller struct {
	connector live.Connector
	devices   Devices
	newOutput OutputFactory
	cfg       Config

	store      *Store
	engine     *annotate.Engine
	transcript *transcript.Aggregator

	mu  sync.Mutex
	run *run
}

// NewController wires the controller to its collaborators.
func NewController(connector live.Connector, devices Devices, newOutput OutputFactory, cfg Config, opts ...transcript.Option) *Controller {
	if cfg.SpectrumInterval <= 0 {
		cfg.SpectrumInterval = DefaultSpectrumInterval
	}
	if cfg.SpectrumBins <= 0 {
		cfg.SpectrumBins = DefaultSpectrumBins
	}
	if cfg.ClearDelay > 0 {
		opts = append([]transcript.Option{transcript.WithClearDelay(cfg.ClearDelay)}, opts...)
	}

	c := &Controller{
		connector:  connector,
		devices:    devices,
		newOutput:  newOutput,
		cfg:        cfg,
		store:      NewStore(),
		engine:     annotate.NewEngine(),
		transcript: transcript.New(opts...),
	}
	c.engine.OnChange(func(st annotate.State) {
		c.store.Update(func(s *State) {
			s.Drawings = st.Drawings
			s.Preview = st.Preview
			s.CanUndo = st.CanUndo
			s.CanRedo = st.CanRedo
		})
	})
	c.transcript.OnChange(func(snap transcript.Snapshot) {
		c.store.Update(func(s *State) { s.Transcript = snap })
	})
	return c
}

// Store returns the state store.
func (c *Controller) Store() *Store { return c.store }

// Engine returns the annotation engine.
func (c *Controller) Engine() *annotate.Engine { return c.engine }

// Start acquires devices and connects. It returns once the connection is
// established; the session becomes active when the remote side is ready.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.run != nil {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	r := newRun(c)
	c.run = r
	c.mu.Unlock()

	c.transcript.Reset()

	screen, err := c.devices.AcquireScreen()
	if err != nil {
		return c.abort(r, fmt.Errorf("%w: screen: %w", ErrDeviceAcquisition, err))
	}
	mic, err := c.devices.AcquireMicrophone()
	if err != nil {
		closeQuietly("screen", screen.Close)
		return c.abort(r, fmt.Errorf("%w: microphone: %w", ErrDeviceAcquisition, err))
	}
	if !r.attachDevices(screen, mic) {
		closeQuietly("screen", screen.Close)
		closeQuietly("microphone", mic.Close)
		return fmt.Errorf("%w: stopped while acquiring devices", ErrConnection)
	}

	c.transition(StatusConnecting, func(s *State) {
		s.SessionID = r.id
		s.Connecting = true
		s.Error = ""
	})
	slog.Info("connecting live session", "id", r.id)

	lc := c.cfg.Live
	lc.Tools = annotate.ToolDeclarations()
	sess, err := c.connector.Connect(ctx, lc)
	if err != nil {
		closeQuietly("screen", screen.Close)
		closeQuietly("microphone", mic.Close)
		return c.abort(r, fmt.Errorf("%w: %w", ErrConnection, err))
	}
	if !r.attachSession(sess) {
		closeQuietly("live session", sess.Close)
		return fmt.Errorf("%w: stopped while connecting", ErrConnection)
	}

	go r.loop()
	return nil
}

// abort returns to Idle after a failed start. Devices already acquired must
// have been released by the caller.
func (c *Controller) abort(r *run, err error) error {
	r.abandon()
	c.mu.Lock()
	if c.run == r {
		c.run = nil
	}
	c.mu.Unlock()

	slog.Error("session start failed", "error", err)
	c.transition(StatusIdle, func(s *State) {
		s.Connecting = false
		s.Error = err.Error()
	})
	return err
}

// Stop tears down the current activation. It is idempotent and safe for
// concurrent use; the first caller performs the teardown.
func (c *Controller) Stop() {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil {
		return
	}
	r.teardown(StatusClosed, "")
}

// Status returns the current lifecycle phase.
func (c *Controller) Status() Status {
	return c.store.Get().Status
}

func (c *Controller) transition(status Status, fn func(*State)) {
	metrics.RecordTransition(string(status))
	c.store.Update(func(s *State) {
		s.Status = status
		if fn != nil {
			fn(s)
		}
	})
}

func (c *Controller) release(r *run) {
	c.mu.Lock()
	if c.run == r {
		c.run = nil
	}
	c.mu.Unlock()
}

// ───── Local drawing ─────

// BeginStroke starts a local drawing with the given tool.
func (c *Controller) BeginStroke(kind annotate.Kind, p annotate.Point) bool {
	return c.engine.BeginStroke(kind, p)
}

// ExtendStroke moves the in-progress stroke.
func (c *Controller) ExtendStroke(p annotate.Point) { c.engine.ExtendStroke(p) }

// EndStroke commits the in-progress stroke.
func (c *Controller) EndStroke(p annotate.Point) (annotate.Drawing, bool) {
	return c.engine.EndStroke(p)
}

// CancelStroke drops the in-progress stroke.
func (c *Controller) CancelStroke() { c.engine.CancelStroke() }

// Undo steps the drawing history back.
func (c *Controller) Undo() bool { return c.engine.Undo() }

// Redo steps the drawing history forward.
func (c *Controller) Redo() bool { return c.engine.Redo() }

// ClearMarks removes every drawing as one undoable step.
func (c *Controller) ClearMarks() { c.engine.Clear() }

// ───── Activation ─────

// run is one activation, from Start to teardown.
type run struct {
	c  *Controller
	id string

	mu       sync.Mutex
	closed   bool
	active   bool
	screen   capture.ScreenSource
	mic      capture.MicrophoneSource
	sess     live.Session
	outbound *live.Outbound
	output   Output
	sched    *playback.Scheduler
	pipeline *capture.Pipeline

	spectrumStop chan struct{}
	spectrumWG   sync.WaitGroup

	done     chan struct{}
	stopOnce sync.Once
}

func newRun(c *Controller) *run {
	return &run{
		c:            c,
		id:           uuid.NewString(),
		spectrumStop: make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (r *run) attachDevices(screen capture.ScreenSource, mic capture.MicrophoneSource) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.screen, r.mic = screen, mic
	return true
}

func (r *run) attachSession(sess live.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.sess = sess
	r.outbound = live.NewOutbound(sess, r.c.cfg.QueueSize)
	return true
}

// abandon marks a run that never got a session as finished.
func (r *run) abandon() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.done)
	})
}

// loop consumes remote events until the session ends.
func (r *run) loop() {
	r.mu.Lock()
	events := r.sess.Events()
	screenEnded := r.screen.Ended()
	micEnded := r.mic.Ended()
	r.mu.Unlock()

	opened := false
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if !opened {
					r.failSetup(errors.New("session ended before it was ready"))
					return
				}
				r.teardown(StatusClosed, "")
				return
			}
			switch e := ev.(type) {
			case live.OpenedEvent:
				opened = true
				if err := r.activate(); err != nil {
					r.teardown(StatusError, err.Error())
					return
				}
			case live.MessageEvent:
				r.route(e.Message)
			case live.ErrorEvent:
				if !opened {
					r.failSetup(e.Err)
					return
				}
				slog.Error("live session error", "id", r.id, "error", e.Err)
				r.teardown(StatusError, e.Err.Error())
				return
			case live.ClosedEvent:
				if !opened {
					r.failSetup(fmt.Errorf("closed before ready: %s", e.Reason))
					return
				}
				slog.Info("live session closed by remote", "id", r.id, "reason", e.Reason)
				r.teardown(StatusClosed, "")
				return
			}
		case <-screenEnded:
			slog.Info("screen source ended", "id", r.id)
			r.teardown(StatusClosed, "")
			return
		case <-micEnded:
			slog.Info("microphone ended", "id", r.id)
			r.teardown(StatusClosed, "")
			return
		case <-r.done:
			return
		}
	}
}

// failSetup ends a run whose session never became ready. The start counts
// as a failed connection, so the controller goes back to Idle.
func (r *run) failSetup(cause error) {
	err := fmt.Errorf("%w: %w", ErrConnection, cause)
	slog.Error("session setup failed", "id", r.id, "error", err)
	r.teardown(StatusIdle, err.Error())
}

// activate starts playback, capture and visualization once the remote side
// is ready.
func (r *run) activate() error {
	out, err := r.c.newOutput()
	if err != nil {
		return fmt.Errorf("open audio output: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		closeQuietly("audio output", out.Close)
		return nil
	}
	if r.active {
		r.mu.Unlock()
		closeQuietly("audio output", out.Close)
		return nil
	}
	r.output = out
	r.sched = playback.NewScheduler(out)
	r.pipeline = capture.NewPipeline(r.screen, r.mic, r.outbound, r.c.cfg.Capture)
	pipeline := r.pipeline
	r.active = true
	r.mu.Unlock()

	if err := pipeline.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	r.spectrumWG.Add(1)
	go r.spectrumLoop(out)

	metrics.SessionStarted()
	r.c.transition(StatusActive, func(s *State) { s.Connecting = false })
	slog.Info("session active", "id", r.id)
	return nil
}

func (r *run) spectrumLoop(out Output) {
	defer r.spectrumWG.Done()
	ticker := time.NewTicker(r.c.cfg.SpectrumInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			bins := out.Spectrum(r.c.cfg.SpectrumBins)
			r.c.store.Update(func(s *State) { s.Spectrum = bins })
		case <-r.spectrumStop:
			return
		}
	}
}

// route dispatches one server message. Interruption is handled before any
// audio in the same message so that new audio is not flushed with the old.
func (r *run) route(m live.Message) {
	r.mu.Lock()
	sched := r.sched
	outbound := r.outbound
	r.mu.Unlock()

	if m.Interrupted && sched != nil {
		slog.Debug("playback interrupted", "id", r.id)
		sched.Interrupt()
	}

	for _, chunk := range m.Audio {
		if sched == nil {
			slog.Debug("audio before activation dropped", "id", r.id)
			break
		}
		if err := sched.Enqueue(chunk); err != nil {
			slog.Warn("skipping audio chunk", "error", err)
		}
	}

	for _, call := range m.ToolCalls {
		res := r.c.engine.HandleToolCall(call)
		slog.Info("tool call handled", "id", r.id, "tool", call.Name, "call_id", call.ID, "response", res.Response)
		if err := outbound.Respond(res); err != nil {
			slog.Warn("tool result not queued", "call_id", call.ID, "error", err)
		}
	}

	if m.InputText != "" {
		r.c.transcript.AppendUser(m.InputText)
	}
	if m.OutputText != "" {
		r.c.transcript.AppendAssistant(m.OutputText)
	}
	if m.TurnComplete {
		r.c.transcript.TurnComplete()
	}
}

// teardown releases everything the run holds. Only the first call does any
// work; each step runs even if an earlier one failed.
func (r *run) teardown(status Status, msg string) {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		wasActive := r.active
		screen, mic := r.screen, r.mic
		sess, outbound := r.sess, r.outbound
		output, sched, pipeline := r.output, r.sched, r.pipeline
		r.mu.Unlock()

		slog.Info("tearing down session", "id", r.id, "status", status)

		step("stop capture", func() error {
			if pipeline != nil {
				pipeline.Stop()
			}
			return nil
		})
		step("stop visualization", func() error {
			close(r.spectrumStop)
			r.spectrumWG.Wait()
			return nil
		})
		step("stop playback", func() error {
			if sched != nil {
				sched.Interrupt()
			}
			return nil
		})
		step("release screen", func() error {
			if screen == nil {
				return nil
			}
			return screen.Close()
		})
		step("release microphone", func() error {
			if mic == nil {
				return nil
			}
			return mic.Close()
		})
		step("close audio output", func() error {
			if output == nil {
				return nil
			}
			return output.Close()
		})
		step("close live session", func() error {
			if sess == nil {
				return nil
			}
			return sess.Close()
		})
		step("drain outbound", func() error {
			if outbound != nil {
				outbound.Close()
			}
			return nil
		})

		close(r.done)
		r.c.release(r)
		if wasActive {
			metrics.SessionEnded()
		}
		r.c.transition(status, func(s *State) {
			s.Connecting = false
			s.Error = msg
			s.Spectrum = nil
		})
	})
}

// step runs one teardown action, logging errors and recovering panics.
func step(name string, fn func() error) {
	defer func() {
		if v := recover(); v != nil {
			slog.Error("teardown step panicked", "step", name, "panic", v)
		}
	}()
	if err := fn(); err != nil {
		slog.Warn("teardown step failed", "step", name, "error", err)
	}
}

func closeQuietly(name string, fn func() error) {
	step("release "+name, fn)
}
