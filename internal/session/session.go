// Package session owns the remote framebuffer session: SSH transport,
// display-client handle, the capture loop, and pointer forwarding. GUI
// integrations consume it through callbacks and plain data only.
package session

import (
	"fmt"
	"image"
	"log/slog"
	"path"
	"sync"

	"github.com/asheshgoplani/panel-deck/internal/display"
	"github.com/asheshgoplani/panel-deck/internal/logging"
)

var sessionLog = logging.ForComponent(logging.CompSession)

// State is the lifecycle state of a session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// Fallback resolution when the display client reports nothing usable.
const (
	fallbackScreenWidth  = 800
	fallbackScreenHeight = 480
)

// Session is a single remote-control session against one device. One session
// per logical remote-control tab; the creating caller owns it exclusively.
// Connect and Disconnect are synchronous and potentially slow — run them off
// any thread that must stay responsive.
type Session struct {
	cfg Config

	// injectable for tests
	sshDial     transportDialer
	displayDial display.Dialer

	mu       sync.Mutex
	state    State
	ssh      transport
	disp     display.Client
	host     string
	rotation int
	screenW  int
	screenH  int

	store *FrameStore

	viewMu     sync.Mutex
	viewing    bool
	workerDone chan struct{}

	cbMu          sync.Mutex
	onConnect     func()
	onDisconnect  func(reason string)
	onFrameUpdate func(img image.Image, raw []byte)
	lossNotified  bool
}

// New creates a disconnected session using cfg for credentials, ports, and
// capture settings.
func New(cfg Config) *Session {
	return &Session{
		cfg:         cfg,
		sshDial:     dialSSH,
		displayDial: display.Dial,
		store:       NewFrameStore(),
	}
}

// OnConnect registers a callback fired after a successful Connect.
func (s *Session) OnConnect(fn func()) {
	s.cbMu.Lock()
	s.onConnect = fn
	s.cbMu.Unlock()
}

// OnDisconnect registers a callback fired once when the stream is lost
// mid-session. User-requested Disconnect does not fire it.
func (s *Session) OnDisconnect(fn func(reason string)) {
	s.cbMu.Lock()
	s.onDisconnect = fn
	s.cbMu.Unlock()
}

// OnFrameUpdate registers a callback fired from the capture worker whenever a
// changed frame is published. It receives the decoded image and the raw PNG
// bytes. Never mutate UI state directly from it; hand off to the consuming
// thread instead.
func (s *Session) OnFrameUpdate(fn func(img image.Image, raw []byte)) {
	s.cbMu.Lock()
	s.onFrameUpdate = fn
	s.cbMu.Unlock()
}

// Connect establishes SSH, restarts the on-device display helper with the
// given rotation, and opens the display client. Returns false on any failure
// after rolling back whatever was opened. Callers must not invoke Connect on
// an already-connected session; the state machine stays simple on purpose.
func (s *Session) Connect(host string, rotation int) bool {
	s.setState(StateConnecting)
	sessionLog.Info("connecting", slog.String("host", host), slog.Int("rotation", rotation))

	s.mu.Lock()
	s.host = host
	s.rotation = rotation
	s.mu.Unlock()

	ssh, err := s.sshDial(host, s.cfg.SSH)
	if err != nil {
		sessionLog.Error("ssh_connect_failed", slog.String("host", host), slog.String("error", err.Error()))
		s.Disconnect()
		return false
	}
	s.mu.Lock()
	s.ssh = ssh
	s.mu.Unlock()

	// Kill any stale helper before relaunching; ignore the exit status since
	// pkill reports non-zero when nothing matched.
	_ = ssh.Run(s.terminateCommand())

	if err := ssh.Run(s.helperCommand(rotation)); err != nil {
		sessionLog.Error("helper_start_failed", slog.String("host", host), slog.String("error", err.Error()))
		s.Disconnect()
		return false
	}

	disp, err := s.displayDial(host, s.cfg.Display.Port, s.cfg.Display.ConnectTimeout())
	if err != nil {
		sessionLog.Error("display_connect_failed", slog.String("host", host), slog.String("error", err.Error()))
		s.Disconnect()
		return false
	}

	w, h := disp.Resolution()
	if w <= 0 || h <= 0 {
		sessionLog.Warn("resolution_probe_failed", slog.String("host", host))
		w, h = fallbackScreenWidth, fallbackScreenHeight
	}

	s.mu.Lock()
	s.disp = disp
	s.screenW, s.screenH = w, h
	s.state = StateConnected
	s.mu.Unlock()

	s.cbMu.Lock()
	s.lossNotified = false
	cb := s.onConnect
	s.cbMu.Unlock()

	sessionLog.Info("connected",
		slog.String("host", host),
		slog.Int("width", w),
		slog.Int("height", h))

	if cb != nil {
		runCallback("connect", cb)
	}
	return true
}

// Disconnect tears the session down. Every sub-step is independently guarded
// so a failure in one never prevents the others; Disconnect always completes
// and is safe on a never-connected session.
func (s *Session) Disconnect() {
	s.setState(StateDisconnecting)

	// Stop the worker first so no capture call races a closing handle.
	s.StopViewing()

	s.mu.Lock()
	disp := s.disp
	ssh := s.ssh
	host := s.host
	s.disp = nil
	s.ssh = nil
	s.screenW, s.screenH = 0, 0
	s.mu.Unlock()

	if disp != nil {
		if err := disp.Close(); err != nil {
			sessionLog.Warn("display_close_failed", slog.String("host", host), slog.String("error", err.Error()))
		}
	}

	if ssh != nil {
		// Best-effort kill of the remote helper.
		if err := ssh.Run(s.terminateCommand()); err != nil {
			sessionLog.Debug("helper_kill_failed", slog.String("host", host), slog.String("error", err.Error()))
		}
		if err := ssh.Close(); err != nil {
			sessionLog.Warn("ssh_close_failed", slog.String("host", host), slog.String("error", err.Error()))
		}
	}

	s.setState(StateDisconnected)
	sessionLog.Info("disconnected", slog.String("host", host))
}

// Connected reports whether the session is connected and the display handle
// still exists. This is a cheap existence check, not a round-trip.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected && s.disp != nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Host returns the host of the current (or last attempted) connection.
func (s *Session) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// Rotation returns the rotation the helper was launched with.
func (s *Session) Rotation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotation
}

// SetRotation records a new rotation for the next Connect. Changing rotation
// on a live session requires a full reconnect; that policy belongs to the
// caller.
func (s *Session) SetRotation(rotation int) {
	s.mu.Lock()
	s.rotation = rotation
	s.mu.Unlock()
}

// Resolution returns the device screen size probed at connect time.
func (s *Session) Resolution() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screenW, s.screenH
}

// TransformCoordinates maps display-space coordinates onto the device
// framebuffer using the session's resolution and rotation.
func (s *Session) TransformCoordinates(displayX, displayY, displayW, displayH int) (int, int) {
	s.mu.Lock()
	screenW, screenH, rotation := s.screenW, s.screenH, s.rotation
	s.mu.Unlock()
	return Transform(displayX, displayY, displayW, displayH, screenW, screenH, rotation)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) displayClient() display.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disp
}

// notifyStreamLoss fires the disconnect callback once per connection.
func (s *Session) notifyStreamLoss(reason string) {
	s.cbMu.Lock()
	cb := s.onDisconnect
	already := s.lossNotified
	s.lossNotified = true
	s.cbMu.Unlock()

	if already || cb == nil {
		return
	}
	sessionLog.Warn("stream_lost", slog.String("host", s.Host()), slog.String("reason", reason))
	runCallback("disconnect", func() { cb(reason) })
}

// helperCommand builds the remote relaunch command for the display helper,
// parameterized by rotation and the fixed input-device path.
func (s *Session) helperCommand(rotation int) string {
	dir := path.Dir(s.cfg.Display.HelperPath)
	bin := path.Base(s.cfg.Display.HelperPath)
	return fmt.Sprintf("cd %s && ./%s -r %d -t %s &", dir, bin, rotation, s.cfg.Display.InputDevice)
}

func (s *Session) terminateCommand() string {
	return "pkill " + path.Base(s.cfg.Display.HelperPath)
}

// runCallback shields the session from panicking user callbacks.
func runCallback(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			sessionLog.Error("callback_panic", slog.String("callback", name), slog.Any("panic", r))
		}
	}()
	fn()
}
