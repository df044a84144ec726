package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/panel-deck/internal/logging"
	"github.com/asheshgoplani/panel-deck/internal/session"
	"github.com/asheshgoplani/panel-deck/internal/web"
)

const webShutdownTimeout = 5 * time.Second

// runWeb connects to the device and serves the browser viewer until
// interrupted.
func runWeb(args []string) {
	fs := flag.NewFlagSet("web", flag.ContinueOnError)
	rotation := fs.Int("r", 0, "panel rotation: 0, 90, 180 or 270")
	listen := fs.String("listen", "", "listen address (default 127.0.0.1:8421)")
	token := fs.String("token", "", "access token required on every request")
	readOnly := fs.Bool("read-only", false, "serve the stream but reject pointer input")
	configPath := fs.String("config", "", "config file path")
	askPass := fs.Bool("ask-pass", false, "prompt for the SSH password")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: panel-deck web [host] [flags]")
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

	webCfg := web.Config{
		ListenAddr: cfg.Web.ListenAddr,
		Token:      cfg.Web.Token,
		ReadOnly:   cfg.Web.ReadOnly,
	}
	if *listen != "" {
		webCfg.ListenAddr = *listen
	}
	if *token != "" {
		webCfg.Token = *token
	}
	if *readOnly {
		webCfg.ReadOnly = true
	}
	if webCfg.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(webCfg.ListenAddr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid listen address %q: %v\n", webCfg.ListenAddr, err)
			os.Exit(2)
		}
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

	sess := session.New(cfg)
	sess.SetFPS(cfg.Capture.FPS)

	if db != nil {
		sess.OnConnect(func() {
			_ = db.TouchDevice(host, *rotation)
			_ = db.RecordEvent(host, "connected", "web")
		})
		sess.OnDisconnect(func(reason string) {
			_ = db.RecordEvent(host, "stream_lost", reason)
		})
	}

	if !sess.Connect(host, *rotation) {
		fmt.Fprintf(os.Stderr, "Error: could not connect to %s\n", host)
		os.Exit(1)
	}
	defer sess.Disconnect()

	watcher, err := session.NewConfigWatcher(*configPath, func(next session.Config) {
		sess.SetFPS(next.Capture.FPS)
	})
	if err == nil {
		go watcher.Start()
		defer watcher.Stop()
	}

	srv := web.NewServer(webCfg, sess)
	fmt.Printf("panel-deck web viewer on http://%s (device %s)\n", srv.Addr(), host)
	if webCfg.ReadOnly {
		fmt.Println("read-only mode: pointer input disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), webShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
