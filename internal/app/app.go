package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"go.aimuz.me/glance/config"
	"go.aimuz.me/glance/hotkey"
	"go.aimuz.me/glance/internal/bridge"
	"go.aimuz.me/glance/internal/types"
	"go.aimuz.me/glance/screenshot"
	"go.aimuz.me/glance/session"

	"github.com/wailsapp/wails/v3/pkg/application"
)

// Service provides application functionality bound to Wails.
// Session behavior lives in the controller; this type only adapts it.
type Service struct {
	mu  sync.RWMutex
	cfg *config.Config

	ctrl        *session.Controller
	hotkey      *hotkey.Manager
	bridge      *bridge.Server
	stopBridge  context.CancelFunc
	unsubscribe func()

	// UI references - set via Init
	app    *application.App
	window application.Window

	statusMu   sync.Mutex
	lastStatus session.Status

	version string
}

// New creates a new Service. Call Init() after Wails app is created.
func New(version string) *Service {
	return &Service{version: version, hotkey: &hotkey.Manager{}}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.version
}

// Init loads configuration and starts the controller, bridge and hotkeys.
// Must be called after Wails application is created.
func (s *Service) Init(app *application.App, window application.Window) {
	s.app = app
	s.window = window

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		cfg = &config.Config{}
	}
	s.cfg = cfg

	s.ctrl = NewController(cfg, s.activeBackend)
	s.unsubscribe = s.ctrl.Store().Subscribe(s.onState)

	s.setupBridge()
	s.setupHotkey()
}

// Shutdown cleans up resources.
func (s *Service) Shutdown() {
	s.hotkey.Stop()
	if s.ctrl != nil {
		s.ctrl.Stop()
	}
	if s.stopBridge != nil {
		s.stopBridge()
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Service) activeBackend() (config.Backend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ActiveBackend()
}

func (s *Service) setupBridge() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopBridge = cancel
	s.bridge = bridge.New(s.ctrl, s.ctrl.Store())

	s.mu.RLock()
	addr := s.cfg.Addr()
	s.mu.RUnlock()
	go func() {
		if err := s.bridge.ListenAndServe(ctx, addr); err != nil {
			slog.Error("bridge stopped", "addr", addr, "error", err)
		}
	}()
}

func (s *Service) setupHotkey() {
	s.mu.RLock()
	hk := s.cfg.Hotkeys
	s.mu.RUnlock()

	bindings := HotkeyBindings(s.ctrl, s.ctrl.Toggle, hk, func(cmd string, err error) {
		s.emit(EventError, ErrorNotice{Command: cmd, Message: err.Error()})
	})
	if err := s.hotkey.Start(bindings); err != nil {
		slog.Error("start hotkey", "error", err)
		s.emit(EventHotkeysRegistered, false)
		return
	}
	s.emit(EventHotkeysRegistered, true)
}

// onState forwards each state change to the frontend and shows the overlay
// while a session is live.
func (s *Service) onState(st session.State) {
	s.emit(EventState, st)

	s.statusMu.Lock()
	changed := st.Status != s.lastStatus
	s.lastStatus = st.Status
	s.statusMu.Unlock()
	if !changed || s.window == nil {
		return
	}

	if strings.Contains(st.Error, ErrScreenPermission.Error()) {
		s.emit(EventScreenPermission, false)
	}
	switch st.Status {
	case session.StatusConnecting, session.StatusActive:
		application.InvokeAsync(func() { s.window.Show() })
	case session.StatusIdle, session.StatusClosed:
		if len(st.Drawings) == 0 {
			application.InvokeAsync(func() { s.window.Hide() })
		}
	}
}

// emit is a safe wrapper around app.Event.Emit
func (s *Service) emit(name string, data any) {
	if s.app != nil {
		s.app.Event.Emit(name, data)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Session
// ─────────────────────────────────────────────────────────────────────────────

// StartSession acquires the screen and microphone and connects.
func (s *Service) StartSession() error {
	return s.ctrl.Start(context.Background())
}

// StopSession ends the current session. It is safe to call at any time.
func (s *Service) StopSession() {
	s.ctrl.Stop()
}

// ToggleSession starts a session when idle and stops it otherwise.
func (s *Service) ToggleSession() error {
	return s.ctrl.Toggle(context.Background())
}

// GetState returns the current overlay state.
func (s *Service) GetState() session.State {
	return s.ctrl.Store().Get()
}

// Execute runs an overlay command.
func (s *Service) Execute(cmd types.Command) error {
	return s.ctrl.Execute(context.Background(), cmd)
}

// ─────────────────────────────────────────────────────────────────────────────
// Drawing
// ─────────────────────────────────────────────────────────────────────────────

// BeginStroke starts a drawing with tool at (x, y) in canonical coordinates.
func (s *Service) BeginStroke(tool string, x, y float64) error {
	return s.Execute(types.Command{Type: types.CommandStrokeBegin, Tool: tool, X: x, Y: y})
}

// ExtendStroke moves the pointer of the drawing in progress.
func (s *Service) ExtendStroke(x, y float64) error {
	return s.Execute(types.Command{Type: types.CommandStrokeMove, X: x, Y: y})
}

// EndStroke commits the drawing in progress.
func (s *Service) EndStroke(x, y float64) error {
	return s.Execute(types.Command{Type: types.CommandStrokeEnd, X: x, Y: y})
}

// CancelStroke discards the drawing in progress.
func (s *Service) CancelStroke() error {
	return s.Execute(types.Command{Type: types.CommandStrokeCancel})
}

// Undo reverts the last committed drawing change.
func (s *Service) Undo() error {
	return s.Execute(types.Command{Type: types.CommandUndo})
}

// Redo reapplies the last undone change.
func (s *Service) Redo() error {
	return s.Execute(types.Command{Type: types.CommandRedo})
}

// ClearMarks removes every drawing.
func (s *Service) ClearMarks() error {
	return s.Execute(types.Command{Type: types.CommandClear})
}

// ─────────────────────────────────────────────────────────────────────────────
// Permissions
// ─────────────────────────────────────────────────────────────────────────────

// GetScreenRecordingPermission returns whether screen recording is permitted.
func (s *Service) GetScreenRecordingPermission() bool {
	return screenshot.HasPermission()
}

// RequestScreenRecordingPermission requests screen recording permission.
func (s *Service) RequestScreenRecordingPermission() {
	screenshot.RequestPermission()
}

// ─────────────────────────────────────────────────────────────────────────────
// API Credential Management
// ─────────────────────────────────────────────────────────────────────────────

// GetCredentials returns all API credentials.
func (s *Service) GetCredentials() []types.APICredential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.APICredential(nil), s.cfg.Credentials...)
}

// AddCredential adds a new API credential.
func (s *Service) AddCredential(cred types.APICredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.AddCredential(cred)
}

// UpdateCredential updates an existing credential.
func (s *Service) UpdateCredential(id string, cred types.APICredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.UpdateCredential(id, cred)
}

// RemoveCredential removes a credential by ID.
func (s *Service) RemoveCredential(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.RemoveCredential(id)
}

// ─────────────────────────────────────────────────────────────────────────────
// Assistant Profile Management
// ─────────────────────────────────────────────────────────────────────────────

// GetProfiles returns all assistant profiles.
func (s *Service) GetProfiles() []types.AssistantProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.AssistantProfile(nil), s.cfg.Profiles...)
}

// GetActiveProfile returns the profile used by the next session.
func (s *Service) GetActiveProfile() *types.AssistantProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.cfg.GetActiveProfile()
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// AddProfile adds a new assistant profile.
func (s *Service) AddProfile(p types.AssistantProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.AddProfile(p)
}

// RemoveProfile removes a profile by ID.
func (s *Service) RemoveProfile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.RemoveProfile(id)
}

// SetProfileActive selects the profile used by the next session.
func (s *Service) SetProfileActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.SetProfileActive(id)
}

// ─────────────────────────────────────────────────────────────────────────────
// Hotkeys
// ─────────────────────────────────────────────────────────────────────────────

// GetHotkeys returns the configured shortcuts.
func (s *Service) GetHotkeys() types.HotkeySettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Hotkeys
}

// SetHotkeys validates, saves and re-registers the shortcuts.
func (s *Service) SetHotkeys(hk types.HotkeySettings) error {
	for _, chord := range []string{hk.Toggle, hk.Undo, hk.Redo, hk.Clear} {
		if chord == "" {
			continue
		}
		if _, err := hotkey.ParseChord(chord); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.cfg.Hotkeys = hk
	err := s.cfg.Save()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.hotkey.Stop()
	s.setupHotkey()
	return nil
}
