package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/osk/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Keyman's IBus bridge, the default text service
const (
	DefaultServiceName      = "com.Keyman"
	DefaultServicePath      = "/com/Keyman/IBus"
	DefaultServiceInterface = "com.Keyman"
	DefaultServiceMethod    = "SendText"
)

// Config represents the application configuration
type Config struct {
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogPretty bool   `json:"log_pretty" yaml:"log_pretty"`

	Window      WindowConfig      `json:"window" yaml:"window"`
	Page        PageConfig        `json:"page" yaml:"page"`
	Browser     BrowserConfig     `json:"browser" yaml:"browser"`
	InputMethod InputMethodConfig `json:"input_method" yaml:"input_method"`
	Server      ServerConfig      `json:"server" yaml:"server"`
}

// WindowConfig holds the keyboard window geometry and window-manager hints
type WindowConfig struct {
	Title       string `json:"title" yaml:"title"`
	Width       int    `json:"width" yaml:"width"`
	Height      int    `json:"height" yaml:"height"`
	KeepAbove   bool   `json:"keep_above" yaml:"keep_above"`
	SkipTaskbar bool   `json:"skip_taskbar" yaml:"skip_taskbar"`
	SkipPager   bool   `json:"skip_pager" yaml:"skip_pager"`
	AcceptFocus bool   `json:"accept_focus" yaml:"accept_focus"`
	// Class is the WM_CLASS given to the surface so its X window can be found
	Class string `json:"class" yaml:"class"`
}

// PageConfig selects the keyboard layout page.
// An empty Path serves the built-in layout from the local page server.
type PageConfig struct {
	Path  string `json:"path" yaml:"path"`
	Watch bool   `json:"watch" yaml:"watch"`
}

// BrowserConfig configures the Chromium process backing the web surface
type BrowserConfig struct {
	ExecPath      string        `json:"exec_path" yaml:"exec_path"`
	UserDataDir   string        `json:"user_data_dir" yaml:"user_data_dir"`
	WindowTimeout time.Duration `json:"window_timeout" yaml:"window_timeout"`
	Debug         bool          `json:"debug" yaml:"debug"`
}

// InputMethodConfig identifies the text service on the session bus.
// Enabled=false is the raw variant: the bus is never contacted.
type InputMethodConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Name      string `json:"name" yaml:"name"`
	Path      string `json:"path" yaml:"path"`
	Interface string `json:"interface" yaml:"interface"`
	Method    string `json:"method" yaml:"method"`
}

// ServerConfig configures the local page server
type ServerConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

// FileAccessAllowed reports whether file:// pages may read other file:// URLs.
// Only the variant with a backing text service grants it.
func (c *Config) FileAccessAllowed() bool {
	return c.InputMethod.Enabled
}

// Validate checks the values the shell cannot start without
func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("invalid window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Window.Class == "" {
		return fmt.Errorf("window class is required")
	}
	if c.InputMethod.Enabled {
		if c.InputMethod.Name == "" || c.InputMethod.Path == "" {
			return fmt.Errorf("input method name and path are required")
		}
		if c.InputMethod.Interface == "" || c.InputMethod.Method == "" {
			return fmt.Errorf("input method interface and method are required")
		}
	}
	if c.Page.Path != "" {
		if _, err := os.Stat(c.Page.Path); err != nil {
			return fmt.Errorf("keyboard page: %w", err)
		}
	}
	return nil
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		Window: WindowConfig{
			Title:       "OSK POC",
			Width:       576,
			Height:      324,
			KeepAbove:   true,
			SkipTaskbar: true,
			SkipPager:   true,
			AcceptFocus: false,
			Class:       "osk-keyboard",
		},
		Page: PageConfig{
			Watch: true,
		},
		Browser: BrowserConfig{
			WindowTimeout: 10 * time.Second,
		},
		InputMethod: InputMethodConfig{
			Enabled:   true,
			Name:      DefaultServiceName,
			Path:      DefaultServicePath,
			Interface: DefaultServiceInterface,
			Method:    DefaultServiceMethod,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:0",
		},
	}
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager loads configFile, or $HOME/.config/osk/config.yaml when empty.
// A missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		actualConfigPath = filepath.Join(homeDir, ".config", "osk", "config.yaml")
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Bool("input_method", m.config.InputMethod.Enabled).
		Msg("Config loaded")

	return m, nil
}

// load reads the configuration from disk on top of the defaults, so keys
// missing from an older file keep their default value
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		logger.WithComponent("config").Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update replaces the entire configuration and saves it
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// GetViper returns a viper instance holding the current configuration,
// addressable by dotted keys such as "window.width"
func (m *Manager) GetViper() (*viper.Viper, error) {
	data, err := yaml.Marshal(m.Get())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to read config into viper: %w", err)
	}
	return v, nil
}

// Apply decodes the settings of v back into the configuration and saves it
func (m *Manager) Apply(v *viper.Viper) error {
	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return m.Update(cfg)
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
