package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// UserConfigFileName is the TOML config file for user preferences.
const UserConfigFileName = "config.toml"

// Capture rate bounds.
const (
	DefaultFPS = 30
	MinFPS     = 1
	MaxFPS     = 60
)

// Config is the user-facing configuration, loaded from
// ~/.panel-deck/config.toml. Zero values fall back to defaults.
type Config struct {
	SSH     SSHSettings     `toml:"ssh"`
	Display DisplaySettings `toml:"display"`
	Capture CaptureSettings `toml:"capture"`
	Logs    LogSettings     `toml:"logs"`
	Web     WebSettings     `toml:"web"`
}

// SSHSettings carries the fixed credential pair and dial parameters for the
// device's SSH endpoint.
type SSHSettings struct {
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	Port           int    `toml:"port"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (s SSHSettings) ConnectTimeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// DisplaySettings describes the on-device display-forwarding helper and the
// port it serves after relaunch.
type DisplaySettings struct {
	Port           int    `toml:"port"`
	HelperPath     string `toml:"helper_path"`
	InputDevice    string `toml:"input_device"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (d DisplaySettings) ConnectTimeout() time.Duration {
	if d.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// CaptureSettings bounds the capture loop rate.
type CaptureSettings struct {
	FPS int `toml:"fps"`
}

// LogSettings mirrors the logging package configuration.
type LogSettings struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Dir    string `toml:"dir"`
	Debug  bool   `toml:"debug"`
}

// WebSettings configures the browser viewer bridge.
type WebSettings struct {
	ListenAddr string `toml:"listen_addr"`
	Token      string `toml:"token"`
	ReadOnly   bool   `toml:"read_only"`
}

// DefaultConfig returns the device defaults. The credential pair, helper
// path, input device, and display port are fixed properties of the target
// device family.
func DefaultConfig() Config {
	return Config{
		SSH: SSHSettings{
			Username:       "root",
			Password:       "myroot",
			Port:           22,
			TimeoutSeconds: 5,
		},
		Display: DisplaySettings{
			Port:           5900,
			HelperPath:     "/core/bin/remoteControlPanel",
			InputDevice:    "/dev/input/event0",
			TimeoutSeconds: 5,
		},
		Capture: CaptureSettings{
			FPS: DefaultFPS,
		},
		Web: WebSettings{
			ListenAddr: "127.0.0.1:8421",
		},
	}
}

// ConfigDir returns ~/.panel-deck, creating nothing.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".panel-deck"
	}
	return filepath.Join(home, ".panel-deck")
}

// DefaultConfigPath is ConfigDir joined with the config file name.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), UserConfigFileName)
}

// LoadConfig reads a TOML config over the defaults. A missing file is not an
// error: defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("config %s: %w", path, err)
	}

	cfg.Capture.FPS = clampFPS(cfg.Capture.FPS)
	if cfg.SSH.Port <= 0 {
		cfg.SSH.Port = 22
	}
	if cfg.Display.Port <= 0 {
		cfg.Display.Port = 5900
	}
	return cfg, nil
}

// clampFPS keeps the capture rate within the supported range.
func clampFPS(fps int) int {
	if fps < MinFPS {
		if fps == 0 {
			return DefaultFPS
		}
		return MinFPS
	}
	if fps > MaxFPS {
		return MaxFPS
	}
	return fps
}
