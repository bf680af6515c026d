package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osk", "config.yaml")

	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, path, m.GetConfigPath())
	assert.FileExists(t, path)

	cfg := m.Get()
	assert.Equal(t, "OSK POC", cfg.Window.Title)
	assert.Equal(t, 576, cfg.Window.Width)
	assert.Equal(t, 324, cfg.Window.Height)
	assert.True(t, cfg.Window.KeepAbove)
	assert.False(t, cfg.Window.AcceptFocus)
	assert.True(t, cfg.InputMethod.Enabled)
	assert.Equal(t, "com.Keyman", cfg.InputMethod.Name)
	assert.Equal(t, "/com/Keyman/IBus", cfg.InputMethod.Path)
	assert.True(t, cfg.FileAccessAllowed())
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\ninput_method:\n  enabled: false\n"), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.InputMethod.Enabled)
	assert.False(t, cfg.FileAccessAllowed())
	assert.Equal(t, "com.Keyman", cfg.InputMethod.Name)
	assert.Equal(t, 576, cfg.Window.Width)
	assert.Equal(t, 10*time.Second, cfg.Browser.WindowTimeout)
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window: [\n"), 0644))

	_, err := NewManager(path)
	require.Error(t, err)
}

func TestGetReturnsCopy(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	cfg := m.Get()
	cfg.Window.Title = "changed"
	assert.Equal(t, "OSK POC", m.Get().Window.Title)
}

func TestViperSetAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	v, err := m.GetViper()
	require.NoError(t, err)
	assert.Equal(t, 576, v.GetInt("window.width"))
	assert.Equal(t, "com.Keyman", v.GetString("input_method.name"))

	v.Set("window.width", 800)
	v.Set("input_method.enabled", false)
	require.NoError(t, m.Apply(v))

	reloaded, err := NewManager(path)
	require.NoError(t, err)
	cfg := reloaded.Get()
	assert.Equal(t, 800, cfg.Window.Width)
	assert.False(t, cfg.InputMethod.Enabled)
	assert.Equal(t, 324, cfg.Window.Height)
	assert.Equal(t, 10*time.Second, cfg.Browser.WindowTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero width", func(c *Config) { c.Window.Width = 0 }, true},
		{"no class", func(c *Config) { c.Window.Class = "" }, true},
		{"missing service name", func(c *Config) { c.InputMethod.Name = "" }, true},
		{"raw variant ignores service", func(c *Config) {
			c.InputMethod.Enabled = false
			c.InputMethod.Name = ""
		}, false},
		{"missing page", func(c *Config) { c.Page.Path = "/nonexistent/keyboard.html" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
