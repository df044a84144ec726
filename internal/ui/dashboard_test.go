package ui

import (
	"image"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu        sync.Mutex
	connected bool
	viewing   bool
	host      string
	rotation  int
	width     int
	height    int
	saved     []string
	saveOK    bool

	onFrame func(img image.Image, raw []byte)
	onLoss  func(reason string)
}

func (f *fakeSession) Connect(host string, rotation int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.host = host
	f.rotation = rotation
	return true
}

func (f *fakeSession) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.viewing = false
	f.mu.Unlock()
}

func (f *fakeSession) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) Host() string           { return f.host }
func (f *fakeSession) Rotation() int          { return f.rotation }
func (f *fakeSession) Resolution() (int, int) { return f.width, f.height }

func (f *fakeSession) Viewing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewing
}

func (f *fakeSession) StartViewing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewing = f.connected
	return f.viewing
}

func (f *fakeSession) StopViewing() {
	f.mu.Lock()
	f.viewing = false
	f.mu.Unlock()
}

func (f *fakeSession) OnFrameUpdate(fn func(img image.Image, raw []byte)) { f.onFrame = fn }
func (f *fakeSession) OnDisconnect(fn func(reason string))                { f.onLoss = fn }
func (f *fakeSession) GetPerformanceStats() (int, bool)                   { return 28, true }

func (f *fakeSession) SaveUI(directory, filename string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, directory+"/"+filename)
	return f.saveOK
}

func newTestDashboard(sess *fakeSession) *Dashboard {
	d := NewDashboard(sess, "10.0.0.5", 90, "/tmp/shots", nil)
	// The OS theme watcher has no place in unit tests.
	if d.themeWatcher != nil {
		d.themeWatcher.Close()
		d.themeWatcher = nil
	}
	return d
}

func TestDashboardConnectingView(t *testing.T) {
	sess := &fakeSession{width: 800, height: 480, saveOK: true}
	d := newTestDashboard(sess)

	view := d.View()
	assert.Contains(t, view, "panel-deck")
	assert.Contains(t, view, "10.0.0.5")
	assert.Contains(t, view, "connecting")
}

func TestDashboardConnectedView(t *testing.T) {
	sess := &fakeSession{width: 800, height: 480, saveOK: true}
	d := newTestDashboard(sess)

	sess.Connect("10.0.0.5", 90)
	sess.StartViewing()
	model, _ := d.Update(connectedMsg(true))
	d = model.(*Dashboard)
	model, _ = d.Update(tickMsg{})
	d = model.(*Dashboard)

	view := d.View()
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "800x480 @ 90°")
	assert.Contains(t, view, "28 fps")
}

func TestDashboardConnectFailedView(t *testing.T) {
	sess := &fakeSession{saveOK: true}
	d := newTestDashboard(sess)

	model, _ := d.Update(connectedMsg(false))
	d = model.(*Dashboard)
	assert.Contains(t, d.View(), "connection failed")
}

func TestDashboardQuitDisconnects(t *testing.T) {
	sess := &fakeSession{saveOK: true}
	d := newTestDashboard(sess)
	sess.Connect("10.0.0.5", 0)

	model, cmd := d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	d = model.(*Dashboard)

	require.NotNil(t, cmd)
	assert.False(t, sess.Connected())
	assert.True(t, d.quitting)
	assert.Empty(t, d.View())
}

func TestDashboardViewingToggle(t *testing.T) {
	sess := &fakeSession{saveOK: true}
	d := newTestDashboard(sess)
	sess.Connect("10.0.0.5", 0)

	model, _ := d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'v'}})
	d = model.(*Dashboard)
	assert.True(t, sess.Viewing())

	model, _ = d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'v'}})
	d = model.(*Dashboard)
	assert.False(t, sess.Viewing())
	_ = model
}

func TestDashboardScreenshotKey(t *testing.T) {
	sess := &fakeSession{saveOK: true}
	d := newTestDashboard(sess)
	sess.Connect("10.0.0.5", 0)

	model, _ := d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	d = model.(*Dashboard)

	require.Len(t, sess.saved, 1)
	assert.Contains(t, sess.saved[0], "/tmp/shots/panel-")
	assert.Contains(t, d.statusMsg, "saved")
}

func TestDashboardScreenshotFailure(t *testing.T) {
	sess := &fakeSession{saveOK: false}
	d := newTestDashboard(sess)

	model, _ := d.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	d = model.(*Dashboard)
	assert.Equal(t, "screenshot failed", d.statusMsg)
	_ = model
}

func TestDashboardStreamLost(t *testing.T) {
	sess := &fakeSession{saveOK: true}
	d := newTestDashboard(sess)

	model, cmd := d.Update(streamLostMsg("broken pipe"))
	d = model.(*Dashboard)

	require.NotNil(t, cmd, "keeps listening for further loss events")
	assert.Contains(t, d.View(), "broken pipe")
}

func TestDashboardFrameUpdatesForwarded(t *testing.T) {
	sess := &fakeSession{saveOK: true}
	d := newTestDashboard(sess)

	require.NotNil(t, sess.onFrame, "dashboard registers the frame callback")
	sess.onFrame(image.NewRGBA(image.Rect(0, 0, 240, 320)), nil)

	info := <-d.frameCh
	assert.Equal(t, 240, info.width)
	assert.Equal(t, 320, info.height)
}

func TestDashboardStatsHook(t *testing.T) {
	sess := &fakeSession{saveOK: true}
	var got []int
	d := NewDashboard(sess, "10.0.0.5", 0, "", func(fps int) { got = append(got, fps) })
	if d.themeWatcher != nil {
		d.themeWatcher.Close()
		d.themeWatcher = nil
	}

	model, _ := d.Update(tickMsg{})
	_ = model
	assert.Equal(t, []int{28}, got)
}
