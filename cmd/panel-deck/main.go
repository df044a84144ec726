package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/asheshgoplani/panel-deck/internal/logging"
	"github.com/asheshgoplani/panel-deck/internal/session"
	"github.com/asheshgoplani/panel-deck/internal/statedb"
)

// Version is the current panel-deck version
const Version = "0.3.0"

func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss color output.
// Auto-detection prefers TrueColor; PANELDECK_COLOR overrides it.
func initColorProfile() {
	// PANELDECK_COLOR: truecolor, 256, 16, none
	if colorEnv := os.Getenv("PANELDECK_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}

	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// Known TrueColor-capable terminals that don't always advertise it
	termName := os.Getenv("TERM")
	trueColorTerms := []string{
		"xterm-256color",
		"screen-256color",
		"tmux-256color",
		"xterm-direct",
		"alacritty",
		"kitty",
		"wezterm",
	}
	for _, t := range trueColorTerms {
		if strings.Contains(termName, t) {
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		}
	}

	if os.Getenv("WT_SESSION") != "" || // Windows Terminal
		os.Getenv("ITERM_SESSION_ID") != "" || // iTerm2
		os.Getenv("TERMINAL_EMULATOR") != "" { // JetBrains terminals
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// ANSI256 works in SSH sessions and older emulators
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("panel-deck v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "view":
			runView(args[1:])
			return
		case "screenshot", "shot":
			runScreenshot(args[1:])
			return
		case "web":
			runWeb(args[1:])
			return
		case "devices", "dev":
			runDevices(args[1:])
			return
		}
	}

	// Bare `panel-deck <host>` (or nothing at all) opens the viewer.
	runView(args)
}

func printHelp() {
	fmt.Printf(`panel-deck v%s - remote control panel viewer for embedded devices

Usage:
  panel-deck [host] [flags]              Open the terminal viewer (default)
  panel-deck view [host] [flags]         Same, explicit
  panel-deck screenshot [host] [flags]   Capture one frame and exit
  panel-deck web [host] [flags]          Serve the browser viewer
  panel-deck devices [list|forget|events]
  panel-deck version
  panel-deck help

When host is omitted, the most recently connected device is used.

Common flags:
  -r <deg>        Panel rotation: 0, 90, 180 or 270 (default 0)
  --config <path> Config file (default ~/.panel-deck/config.toml)
  --ask-pass      Prompt for the SSH password instead of using the config

Run a subcommand with -h for its full flag list.
`, Version)
}

// validRotation reports whether r is one of the four panel orientations.
func validRotation(r int) bool {
	switch r {
	case 0, 90, 180, 270:
		return true
	}
	return false
}

// setupLogging wires structured logging from the user config.
// Without PANELDECK_DEBUG or a configured log dir, logs are discarded so the
// TUI stays clean. Callers must defer logging.Shutdown().
func setupLogging(cfg session.Config) {
	logCfg := buildLogConfig(cfg, os.Getenv("PANELDECK_DEBUG") != "")
	logging.Init(logCfg)

	dumpDir := logCfg.LogDir
	if dumpDir == "" {
		dumpDir = session.ConfigDir()
	}

	// SIGUSR1 dumps the ring buffer for post-mortem debugging
	usr1Chan := make(chan os.Signal, 1)
	signal.Notify(usr1Chan, syscall.SIGUSR1)
	go func() {
		for range usr1Chan {
			dumpPath := filepath.Join(dumpDir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRingBuffer(dumpPath); err != nil {
				logging.ForComponent(logging.CompCLI).Error("crash_dump_failed",
					slog.String("error", err.Error()))
			} else {
				logging.ForComponent(logging.CompCLI).Info("crash_dump_written",
					slog.String("path", dumpPath))
			}
		}
	}()
}

// buildLogConfig maps the user config onto the logging configuration. LogDir
// stays empty unless debug mode or the config asks for file output, which is
// the signal logging.Init uses to discard everything.
func buildLogConfig(cfg session.Config, debugMode bool) logging.Config {
	logCfg := logging.Config{
		Debug:                 debugMode,
		Level:                 "debug",
		Format:                "json",
		MaxSizeMB:             10,
		MaxBackups:            5,
		MaxAgeDays:            10,
		Compress:              true,
		RingBufferSize:        10 * 1024 * 1024,
		AggregateIntervalSecs: 30,
	}

	if cfg.Logs.Level != "" {
		logCfg.Level = cfg.Logs.Level
	}
	if cfg.Logs.Format != "" {
		logCfg.Format = cfg.Logs.Format
	}
	if cfg.Logs.Dir != "" {
		logCfg.LogDir = cfg.Logs.Dir
	}
	if cfg.Logs.Debug {
		logCfg.Debug = true
	}
	if logCfg.Debug && logCfg.LogDir == "" {
		logCfg.LogDir = session.ConfigDir()
	}
	return logCfg
}

// openStateDB opens the device/event database under the config dir. A broken
// database degrades the CLI (no device memory) but never blocks a session, so
// failures return nil after a warning.
func openStateDB() *statedb.StateDB {
	path := filepath.Join(session.ConfigDir(), "state.db")
	db, err := statedb.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: state db unavailable: %v\n", err)
		return nil
	}
	if err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: state db migration failed: %v\n", err)
		db.Close()
		return nil
	}
	return db
}

// resolveHost picks the target device: the explicit argument if given,
// otherwise the most recently connected device from the state db.
func resolveHost(arg string, db *statedb.StateDB) (string, error) {
	if arg != "" {
		return arg, nil
	}
	if db != nil {
		devices, err := db.LoadDevices()
		if err == nil && len(devices) > 0 {
			return devices[0].Host, nil
		}
	}
	return "", fmt.Errorf("no host given and no remembered devices; run: panel-deck <host>")
}

// promptPassword reads the SSH password without echo.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "SSH password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
