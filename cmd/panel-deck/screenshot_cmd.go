package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/asheshgoplani/panel-deck/internal/logging"
	"github.com/asheshgoplani/panel-deck/internal/session"
)

// runScreenshot connects, captures one frame to disk, and disconnects.
func runScreenshot(args []string) {
	fs := flag.NewFlagSet("screenshot", flag.ContinueOnError)
	rotation := fs.Int("r", 0, "panel rotation: 0, 90, 180 or 270")
	output := fs.String("o", "", "output file (default panel-<timestamp>.png)")
	configPath := fs.String("config", "", "config file path")
	askPass := fs.Bool("ask-pass", false, "prompt for the SSH password")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: panel-deck screenshot [host] [flags]")
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
	}

	host, err := resolveHost(fs.Arg(0), db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	dir, filename := splitOutput(*output)
	if filename == "" {
		filename = fmt.Sprintf("panel-%s.png", time.Now().Format("20060102-150405"))
	}

	sess := session.New(cfg)
	if !sess.Connect(host, *rotation) {
		fmt.Fprintf(os.Stderr, "Error: could not connect to %s\n", host)
		os.Exit(1)
	}
	defer sess.Disconnect()

	if !sess.SaveUI(dir, filename) {
		fmt.Fprintln(os.Stderr, "Error: screenshot failed")
		os.Exit(1)
	}

	if db != nil {
		_ = db.TouchDevice(host, *rotation)
		_ = db.RecordEvent(host, "screenshot", filepath.Join(dir, filename))
	}
	fmt.Println(filepath.Join(dir, filename))
}

// splitOutput splits an -o value into the directory and filename SaveUI
// expects. An empty value yields the current directory and an empty filename
// so the caller can apply the timestamped default.
func splitOutput(output string) (dir, filename string) {
	if output == "" {
		return ".", ""
	}
	dir, filename = filepath.Split(output)
	if dir == "" {
		dir = "."
	} else {
		dir = filepath.Clean(dir)
	}
	return dir, filename
}
