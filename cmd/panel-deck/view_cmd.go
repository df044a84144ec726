package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/asheshgoplani/panel-deck/internal/logging"
	"github.com/asheshgoplani/panel-deck/internal/platform"
	"github.com/asheshgoplani/panel-deck/internal/session"
	"github.com/asheshgoplani/panel-deck/internal/ui"
)

// fpsSampleRetention bounds how much capture-rate history the state db keeps.
const fpsSampleRetention = 7 * 24 * time.Hour

// runView connects to the device and drives the terminal dashboard until the
// user quits.
func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	rotation := fs.Int("r", 0, "panel rotation: 0, 90, 180 or 270")
	fps := fs.Int("fps", 0, "capture rate override (1-60)")
	configPath := fs.String("config", "", "config file path")
	screenshotDir := fs.String("screenshots", ".", "directory for saved screenshots")
	askPass := fs.Bool("ask-pass", false, "prompt for the SSH password")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: panel-deck view [host] [flags]")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	if !validRotation(*rotation) {
		fmt.Fprintf(os.Stderr, "Error: invalid rotation %d (use 0, 90, 180 or 270)\n", *rotation)
		os.Exit(2)
	}

	cfg, err := session.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *fps != 0 {
		cfg.Capture.FPS = *fps
	}
	if *askPass {
		pw, err := promptPassword()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.SSH.Password = pw
	}

	setupLogging(cfg)
	defer logging.Shutdown()

	db := openStateDB()
	if db != nil {
		defer db.Close()
		_ = db.PruneFPSSamples(time.Now().Add(-fpsSampleRetention))
	}

	host, err := resolveHost(fs.Arg(0), db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	sess := session.New(cfg)
	sess.SetFPS(cfg.Capture.FPS)

	if db != nil {
		sess.OnConnect(func() {
			_ = db.TouchDevice(host, *rotation)
			_ = db.RecordEvent(host, "connected", "")
		})
		sess.OnDisconnect(func(reason string) {
			_ = db.RecordEvent(host, "stream_lost", reason)
		})
	}

	// Live capture-rate changes: edits to the config file take effect without
	// a reconnect.
	if warn := platform.CheckFsnotifySupport(session.ConfigDir()); warn != "" {
		logging.ForComponent(logging.CompCLI).Warn("config_watch_degraded", slog.String("detail", warn))
	}
	watcher, err := session.NewConfigWatcher(*configPath, func(next session.Config) {
		if *fps == 0 {
			sess.SetFPS(next.Capture.FPS)
		}
	})
	if err == nil {
		go watcher.Start()
		defer watcher.Stop()
	}

	var onStats func(int)
	if db != nil {
		onStats = func(fps int) {
			_ = db.RecordFPSSample(host, fps)
		}
	}

	ui.InitTheme(ui.DetectTheme())
	if err := ui.Run(sess, host, *rotation, *screenshotDir, onStats); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if db != nil {
		_ = db.RecordEvent(host, "closed", "")
	}
}
