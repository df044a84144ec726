package session

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/panel-deck/internal/display"
)

// fakeDisplay implements display.Client and records every pointer event.
type fakeDisplay struct {
	mu         sync.Mutex
	frames     [][]byte // successive capture returns; the last one repeats
	captureIdx int
	captureErr error
	moveErr    error
	buttonErr  error
	width      int
	height     int
	closed     bool
	events     []string
}

func (f *fakeDisplay) CaptureScreen() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	if len(f.frames) == 0 {
		return nil, nil
	}
	data := f.frames[f.captureIdx]
	if f.captureIdx < len(f.frames)-1 {
		f.captureIdx++
	}
	return data, nil
}

func (f *fakeDisplay) Resolution() (int, int) {
	return f.width, f.height
}

func (f *fakeDisplay) MouseMove(x, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moveErr != nil {
		return f.moveErr
	}
	f.events = append(f.events, fmt.Sprintf("move %d,%d", x, y))
	return nil
}

func (f *fakeDisplay) MouseDown(button uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buttonErr != nil {
		return f.buttonErr
	}
	f.events = append(f.events, fmt.Sprintf("down %d", button))
	return nil
}

func (f *fakeDisplay) MouseUp(button uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buttonErr != nil {
		return f.buttonErr
	}
	f.events = append(f.events, fmt.Sprintf("up %d", button))
	return nil
}

func (f *fakeDisplay) MousePress(button uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buttonErr != nil {
		return f.buttonErr
	}
	f.events = append(f.events, fmt.Sprintf("press %d", button))
	return nil
}

func (f *fakeDisplay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDisplay) recordedEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

// fakeTransport implements the SSH transport and records executed commands.
type fakeTransport struct {
	mu      sync.Mutex
	cmds    []string
	failOn  string // substring; matching commands return an error
	closed  bool
}

func (f *fakeTransport) Run(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	if f.failOn != "" && strings.Contains(cmd, f.failOn) {
		return errors.New("exit status 1")
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) ranCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.cmds))
	copy(out, f.cmds)
	return out
}

// pngBytes encodes a solid w x h PNG; distinct seeds produce distinct bytes.
func pngBytes(t *testing.T, w, h int, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = seed
		img.Pix[i+1] = seed / 2
		img.Pix[i+2] = 0xff - seed
		img.Pix[i+3] = 0xff
	}
	img.Set(0, 0, color.RGBA{R: seed, A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// newTestSession wires a session to fakes instead of real SSH/RFB dialers.
func newTestSession(disp *fakeDisplay, tr *fakeTransport) *Session {
	s := New(DefaultConfig())
	s.sshDial = func(host string, cfg SSHSettings) (transport, error) {
		return tr, nil
	}
	s.displayDial = func(host string, port int, timeout time.Duration) (display.Client, error) {
		return disp, nil
	}
	return s
}

func TestConnectSuccess(t *testing.T) {
	disp := &fakeDisplay{width: 800, height: 480}
	tr := &fakeTransport{}
	s := newTestSession(disp, tr)

	require.True(t, s.Connect("10.0.0.5", 90))
	assert.True(t, s.Connected())
	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, "10.0.0.5", s.Host())
	assert.Equal(t, 90, s.Rotation())

	w, h := s.Resolution()
	assert.Equal(t, 800, w)
	assert.Equal(t, 480, h)

	cmds := tr.ranCommands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "pkill remoteControlPanel", cmds[0])
	assert.Equal(t, "cd /core/bin && ./remoteControlPanel -r 90 -t /dev/input/event0 &", cmds[1])
}

func TestConnectFiresOnConnect(t *testing.T) {
	s := newTestSession(&fakeDisplay{width: 800, height: 480}, &fakeTransport{})

	called := false
	s.OnConnect(func() { called = true })

	require.True(t, s.Connect("10.0.0.5", 0))
	assert.True(t, called)
}

func TestConnectSSHFailure(t *testing.T) {
	s := newTestSession(&fakeDisplay{}, &fakeTransport{})
	s.sshDial = func(host string, cfg SSHSettings) (transport, error) {
		return nil, errors.New("connection refused")
	}

	assert.False(t, s.Connect("10.0.0.5", 0))
	assert.False(t, s.Connected())
	assert.Equal(t, StateDisconnected, s.State())
}

func TestConnectHelperFailureRollsBack(t *testing.T) {
	tr := &fakeTransport{failOn: "remoteControlPanel -r"}
	s := newTestSession(&fakeDisplay{}, tr)

	dialedDisplay := false
	s.displayDial = func(host string, port int, timeout time.Duration) (display.Client, error) {
		dialedDisplay = true
		return &fakeDisplay{}, nil
	}

	assert.False(t, s.Connect("10.0.0.5", 0))
	assert.False(t, s.Connected())
	assert.False(t, dialedDisplay, "display dial must not happen after helper failure")
	assert.True(t, tr.closed, "rollback must close the SSH transport")
}

func TestConnectDisplayFailureRollsBack(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSession(&fakeDisplay{}, tr)
	s.displayDial = func(host string, port int, timeout time.Duration) (display.Client, error) {
		return nil, errors.New("connection refused")
	}

	assert.False(t, s.Connect("10.0.0.5", 0))
	assert.False(t, s.Connected())
	assert.True(t, tr.closed)
}

func TestConnectResolutionFallback(t *testing.T) {
	disp := &fakeDisplay{width: 0, height: 0}
	s := newTestSession(disp, &fakeTransport{})

	require.True(t, s.Connect("10.0.0.5", 0))
	w, h := s.Resolution()
	assert.Equal(t, 800, w)
	assert.Equal(t, 480, h)
}

func TestDisconnectNeverConnected(t *testing.T) {
	s := New(DefaultConfig())
	s.Disconnect() // must not panic
	assert.False(t, s.Connected())
	assert.Equal(t, StateDisconnected, s.State())
}

func TestDisconnectClosesEverything(t *testing.T) {
	disp := &fakeDisplay{width: 800, height: 480}
	tr := &fakeTransport{}
	s := newTestSession(disp, tr)

	require.True(t, s.Connect("10.0.0.5", 0))
	s.Disconnect()

	assert.False(t, s.Connected())
	assert.True(t, disp.closed)
	assert.True(t, tr.closed)

	cmds := tr.ranCommands()
	assert.Equal(t, "pkill remoteControlPanel", cmds[len(cmds)-1], "helper kill is part of teardown")

	w, h := s.Resolution()
	assert.Zero(t, w)
	assert.Zero(t, h)
}

func TestSaveUIWritesCapture(t *testing.T) {
	data := pngBytes(t, 32, 16, 1)
	disp := &fakeDisplay{width: 32, height: 16, frames: [][]byte{data}}
	s := newTestSession(disp, &fakeTransport{})
	require.True(t, s.Connect("10.0.0.5", 0))

	dir := t.TempDir()
	require.True(t, s.SaveUI(dir, "panel.png"))

	got, err := os.ReadFile(filepath.Join(dir, "panel.png"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestSaveUIRefusesOverwrite(t *testing.T) {
	data := pngBytes(t, 32, 16, 1)
	disp := &fakeDisplay{width: 32, height: 16, frames: [][]byte{data}}
	s := newTestSession(disp, &fakeTransport{})
	require.True(t, s.Connect("10.0.0.5", 0))

	dir := t.TempDir()
	existing := filepath.Join(dir, "panel.png")
	require.NoError(t, os.WriteFile(existing, []byte("keep me"), 0o644))

	assert.False(t, s.SaveUI(dir, "panel.png"))

	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep me"), got, "existing file must be untouched")
}

func TestSaveUINotConnected(t *testing.T) {
	s := New(DefaultConfig())
	assert.False(t, s.SaveUI(t.TempDir(), "panel.png"))
}

func TestCaptureUIReturnsBytes(t *testing.T) {
	data := pngBytes(t, 8, 8, 3)
	disp := &fakeDisplay{width: 8, height: 8, frames: [][]byte{data}}
	s := newTestSession(disp, &fakeTransport{})
	require.True(t, s.Connect("10.0.0.5", 0))

	assert.Equal(t, data, s.CaptureUI())
}

// Full scenario: connect rotated, view, read a frame matching the reported
// resolution, stop, disconnect.
func TestSessionScenarioRotated(t *testing.T) {
	disp := &fakeDisplay{
		width:  240,
		height: 320,
		frames: [][]byte{pngBytes(t, 240, 320, 7)},
	}
	s := newTestSession(disp, &fakeTransport{})
	s.SetFPS(60)

	require.True(t, s.Connect("10.0.0.5", 90))
	require.True(t, s.StartViewing())

	var img image.Image
	require.Eventually(t, func() bool {
		img = s.GetCurrentFrame()
		return img != nil
	}, 2*time.Second, 10*time.Millisecond, "a frame should be published within a capture interval")

	w, h := s.Resolution()
	assert.Equal(t, w, img.Bounds().Dx())
	assert.Equal(t, h, img.Bounds().Dy())

	s.StopViewing()
	s.Disconnect()
	assert.False(t, s.Connected())
}
