// Package config handles application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/glance/capture"
	"go.aimuz.me/glance/internal/types"
	"go.aimuz.me/glance/live"
	"go.aimuz.me/glance/transcript"
)

const (
	appName        = "glance"
	configFileName = "config.json"
)

// Environment variables that override stored API keys.
const (
	EnvGeminiKey = "GEMINI_API_KEY"
	EnvOpenAIKey = "OPENAI_API_KEY"
)

// DefaultBridgeAddr is where the local overlay bridge listens.
const DefaultBridgeAddr = "127.0.0.1:7723"

// DefaultSystemPrompt tells the model how to use the annotation tools.
const DefaultSystemPrompt = `You are a helpful assistant looking at the user's screen together with them.
You receive a live view of the screen and hear the user speak. Answer briefly and conversationally.
When it helps to point at something, call mark_screen. Coordinates are in a 0-1000 space where
(0,0) is the top-left and (1000,1000) the bottom-right of the screen, regardless of its aspect ratio.
Prefer circles and arrows for pointing, rectangles for regions and text for short labels.
Call clear_marks when earlier marks are no longer relevant.`

// ErrNoBackend is returned when no credential is configured and no API key
// is present in the environment.
var ErrNoBackend = errors.New("no assistant backend configured")

// Config represents the application configuration.
type Config struct {
	Credentials []types.APICredential    `json:"credentials,omitempty"`
	Profiles    []types.AssistantProfile `json:"profiles,omitempty"`

	Capture      types.CaptureSettings `json:"capture"`
	ClearDelayMs int                   `json:"clear_delay_ms,omitempty"`
	Hotkeys      types.HotkeySettings  `json:"hotkeys"`
	BridgeAddr   string                `json:"bridge_addr,omitempty"`

	path string
}

// Backend is the resolved connection settings of the active profile.
type Backend struct {
	Type         string
	APIKey       string
	Model        string
	SystemPrompt string
	Voice        string
}

// Load loads configuration from the config file.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultConfig()
			cfg.path = path
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.path = path
	return cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		var err error
		if path, err = configPath(); err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// API keys live here.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

func defaultConfig() *Config {
	return &Config{
		Hotkeys: types.HotkeySettings{
			Toggle: "ctrl+shift+g",
			Undo:   "ctrl+shift+z",
			Redo:   "ctrl+shift+y",
			Clear:  "ctrl+shift+x",
		},
		BridgeAddr: DefaultBridgeAddr,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// API Credential Management
// ─────────────────────────────────────────────────────────────────────────────

// GetCredential returns a credential by ID.
func (c *Config) GetCredential(id string) *types.APICredential {
	for i := range c.Credentials {
		if c.Credentials[i].ID == id {
			return &c.Credentials[i]
		}
	}
	return nil
}

// AddCredential adds a new API credential.
func (c *Config) AddCredential(cred types.APICredential) error {
	if err := validateCredential(cred); err != nil {
		return err
	}
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	c.Credentials = append(c.Credentials, cred)
	return c.Save()
}

// UpdateCredential updates an existing credential.
func (c *Config) UpdateCredential(id string, cred types.APICredential) error {
	if err := validateCredential(cred); err != nil {
		return err
	}
	idx := slices.IndexFunc(c.Credentials, func(x types.APICredential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}

	cred.ID = id // Preserve ID
	c.Credentials[idx] = cred
	return c.Save()
}

// RemoveCredential removes a credential by ID.
// Returns error if credential is in use by any profile.
func (c *Config) RemoveCredential(id string) error {
	for _, p := range c.Profiles {
		if p.CredentialID == id {
			return fmt.Errorf("credential in use by profile: %s", p.Name)
		}
	}

	idx := slices.IndexFunc(c.Credentials, func(x types.APICredential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}

	c.Credentials = slices.Delete(c.Credentials, idx, idx+1)
	return c.Save()
}

func validateCredential(cred types.APICredential) error {
	if cred.Name == "" {
		return fmt.Errorf("credential name required")
	}
	if cred.APIKey == "" {
		return fmt.Errorf("api key required")
	}
	switch cred.Type {
	case types.BackendGemini, types.BackendOpenAI:
	default:
		return fmt.Errorf("unsupported backend type: %q", cred.Type)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Assistant Profile Management
// ─────────────────────────────────────────────────────────────────────────────

// GetActiveProfile returns the currently active profile.
func (c *Config) GetActiveProfile() *types.AssistantProfile {
	for i := range c.Profiles {
		if c.Profiles[i].Active {
			return &c.Profiles[i]
		}
	}
	if len(c.Profiles) > 0 {
		return &c.Profiles[0]
	}
	return nil
}

// AddProfile adds a new profile. The first profile becomes active.
func (c *Config) AddProfile(p types.AssistantProfile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name required")
	}
	if c.GetCredential(p.CredentialID) == nil {
		return fmt.Errorf("credential not found: %s", p.CredentialID)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	if len(c.Profiles) == 0 || p.Active {
		for i := range c.Profiles {
			c.Profiles[i].Active = false
		}
		p.Active = true
	}

	c.Profiles = append(c.Profiles, p)
	return c.Save()
}

// RemoveProfile removes a profile by ID.
func (c *Config) RemoveProfile(id string) error {
	idx := slices.IndexFunc(c.Profiles, func(x types.AssistantProfile) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("profile not found: %s", id)
	}

	wasActive := c.Profiles[idx].Active
	c.Profiles = slices.Delete(c.Profiles, idx, idx+1)
	if wasActive && len(c.Profiles) > 0 {
		c.Profiles[0].Active = true
	}
	return c.Save()
}

// SetProfileActive sets a profile as active.
func (c *Config) SetProfileActive(id string) error {
	found := false
	for i := range c.Profiles {
		c.Profiles[i].Active = c.Profiles[i].ID == id
		found = found || c.Profiles[i].Active
	}
	if !found {
		return fmt.Errorf("profile not found: %s", id)
	}
	return c.Save()
}

// ─────────────────────────────────────────────────────────────────────────────
// Resolved Settings
// ─────────────────────────────────────────────────────────────────────────────

// ActiveBackend resolves the active profile against its credential. The
// environment key for the backend type overrides the stored one. With no
// profile, a key in the environment selects that backend with defaults;
// Gemini wins when both are set.
func (c *Config) ActiveBackend() (Backend, error) {
	if p := c.GetActiveProfile(); p != nil {
		cred := c.GetCredential(p.CredentialID)
		if cred == nil {
			return Backend{}, fmt.Errorf("credential not found: %s", p.CredentialID)
		}
		b := Backend{
			Type:         cred.Type,
			APIKey:       cred.APIKey,
			Model:        p.Model,
			SystemPrompt: p.SystemPrompt,
			Voice:        p.Voice,
		}
		if key := os.Getenv(envKey(cred.Type)); key != "" {
			b.APIKey = key
		}
		return b, nil
	}

	for _, typ := range []string{types.BackendGemini, types.BackendOpenAI} {
		if key := os.Getenv(envKey(typ)); key != "" {
			return Backend{Type: typ, APIKey: key}, nil
		}
	}
	return Backend{}, ErrNoBackend
}

func envKey(backend string) string {
	switch backend {
	case types.BackendGemini:
		return EnvGeminiKey
	case types.BackendOpenAI:
		return EnvOpenAIKey
	}
	return ""
}

// LiveConfig returns the session settings for b. Tools are added by the
// session controller.
func (b Backend) LiveConfig() live.Config {
	prompt := b.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	return live.Config{
		Model:             b.Model,
		SystemInstruction: prompt,
		Voice:             b.Voice,
	}
}

// CaptureConfig converts the capture settings.
func (c *Config) CaptureConfig() capture.Config {
	return capture.Config{
		FrameInterval: time.Duration(c.Capture.FrameIntervalMs) * time.Millisecond,
		MaxDimension:  c.Capture.MaxDimension,
		JPEGQuality:   c.Capture.JPEGQuality,
	}
}

// ClearDelay returns how long transcripts stay after a turn ends.
func (c *Config) ClearDelay() time.Duration {
	if c.ClearDelayMs <= 0 {
		return transcript.DefaultClearDelay
	}
	return time.Duration(c.ClearDelayMs) * time.Millisecond
}

// Addr returns the bridge listen address.
func (c *Config) Addr() string {
	if c.BridgeAddr == "" {
		return DefaultBridgeAddr
	}
	return c.BridgeAddr
}
