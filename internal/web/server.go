// Package web serves the browser viewer: a frame stream plus pointer
// forwarding over one websocket, and a small status API.
package web

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/asheshgoplani/panel-deck/internal/logging"
)

// Config defines runtime options for the web server.
type Config struct {
	ListenAddr string
	Token      string
	ReadOnly   bool
}

// SessionController is the slice of the session the web layer drives. The
// concrete session satisfies it; tests substitute a fake.
type SessionController interface {
	Connected() bool
	Host() string
	Rotation() int
	Resolution() (int, int)
	Viewing() bool
	StartViewing() bool
	StopViewing()
	OnFrameUpdate(fn func(img image.Image, raw []byte))
	GetCurrentFrameBytes() []byte
	GetPerformanceStats() (int, bool)
	TransformCoordinates(displayX, displayY, displayW, displayH int) (int, int)
	ClickAt(x, y int) bool
	MouseDown(x, y int) bool
	MouseMove(x, y int) bool
	MouseUp(x, y int) bool
	ScrollVerticalAt(delta float64, x, y int) bool
	ScrollHorizontalAt(delta float64, x, y int) bool
}

// Server wraps an HTTP server for the browser viewer.
type Server struct {
	cfg        Config
	ctrl       SessionController
	httpServer *http.Server
	baseCtx    context.Context
	cancelBase context.CancelFunc

	frameSubscribersMu sync.Mutex
	frameSubscribers   map[chan []byte]struct{}
}

// NewServer creates a new web server with base routes and middleware. It
// registers itself as the session's frame consumer; one web server per
// session.
func NewServer(cfg Config, ctrl SessionController) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8421"
	}

	s := &Server{
		cfg:              cfg,
		ctrl:             ctrl,
		frameSubscribers: make(map[chan []byte]struct{}),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	ctrl.OnFrameUpdate(func(_ image.Image, raw []byte) {
		s.broadcastFrame(raw)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/screenshot", s.handleScreenshot)
	mux.HandleFunc("/ws/screen", s.handleScreenWS)

	handler := withRecover(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server and blocks until shutdown or error.
// Returns nil on graceful shutdown.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBase != nil {
		// Signal long-lived websocket handlers to stop promptly.
		s.cancelBase()
	}

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}

	// Streaming connections may still block graceful shutdown. Force close
	// as a fallback so Ctrl+C exits promptly.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr == nil {
			return nil
		} else {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
	}

	return err
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.ForComponent(logging.CompWeb).Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) String() string {
	return fmt.Sprintf("web-server(addr=%s, readOnly=%t)", s.cfg.ListenAddr, s.cfg.ReadOnly)
}

// subscribeFrames registers a frame channel. Frames are delivered best-effort:
// a subscriber that falls behind misses frames rather than stalling the
// capture worker.
func (s *Server) subscribeFrames() chan []byte {
	ch := make(chan []byte, 1)
	s.frameSubscribersMu.Lock()
	s.frameSubscribers[ch] = struct{}{}
	s.frameSubscribersMu.Unlock()
	return ch
}

func (s *Server) unsubscribeFrames(ch chan []byte) {
	if ch == nil {
		return
	}
	s.frameSubscribersMu.Lock()
	if _, ok := s.frameSubscribers[ch]; ok {
		delete(s.frameSubscribers, ch)
		close(ch)
	}
	s.frameSubscribersMu.Unlock()
}

func (s *Server) broadcastFrame(raw []byte) {
	s.frameSubscribersMu.Lock()
	for ch := range s.frameSubscribers {
		select {
		case ch <- raw:
		default:
			// Drop the stale frame and replace it with the current one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- raw:
			default:
			}
		}
	}
	s.frameSubscribersMu.Unlock()
}
