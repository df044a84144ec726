// Package ui is the terminal dashboard for a device session: connection
// state, capture statistics, and one-key actions while a browser or API
// consumer views the stream.
package ui

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/panel-deck/internal/clipboard"
)

// Controller is the slice of the session the dashboard drives. The concrete
// session satisfies it; tests substitute a fake.
type Controller interface {
	Connect(host string, rotation int) bool
	Disconnect()
	Connected() bool
	Host() string
	Rotation() int
	Resolution() (int, int)
	Viewing() bool
	StartViewing() bool
	StopViewing()
	OnFrameUpdate(fn func(img image.Image, raw []byte))
	OnDisconnect(fn func(reason string))
	GetPerformanceStats() (int, bool)
	SaveUI(directory, filename string) bool
}

type frameInfo struct {
	width  int
	height int
	at     time.Time
}

type (
	tickMsg       time.Time
	connectedMsg  bool
	frameMsg      frameInfo
	streamLostMsg string
	themeMsg      bool
)

// Dashboard is the bubbletea model for one device session.
type Dashboard struct {
	ctrl          Controller
	host          string
	rotation      int
	screenshotDir string

	spinner       spinner.Model
	connecting    bool
	connectFailed bool
	lostReason    string

	fps        int
	haveFPS    bool
	frameCount int
	lastFrame  frameInfo

	frameCh chan frameInfo
	lossCh  chan string

	themeWatcher *ThemeWatcher

	width     int
	statusMsg string
	quitting  bool

	// onStats receives one capture-rate sample per second; optional.
	onStats func(fps int)
}

// NewDashboard builds the model. Connect happens asynchronously from Init so
// the spinner renders while SSH and the display handshake run.
func NewDashboard(ctrl Controller, host string, rotation int, screenshotDir string, onStats func(fps int)) *Dashboard {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorAccent)

	d := &Dashboard{
		ctrl:          ctrl,
		host:          host,
		rotation:      rotation,
		screenshotDir: screenshotDir,
		spinner:       sp,
		connecting:    true,
		frameCh:       make(chan frameInfo, 1),
		lossCh:        make(chan string, 1),
		onStats:       onStats,
	}

	ctrl.OnFrameUpdate(func(img image.Image, _ []byte) {
		info := frameInfo{at: time.Now()}
		if img != nil {
			info.width = img.Bounds().Dx()
			info.height = img.Bounds().Dy()
		}
		select {
		case d.frameCh <- info:
		default:
		}
	})
	ctrl.OnDisconnect(func(reason string) {
		select {
		case d.lossCh <- reason:
		default:
		}
	})

	d.themeWatcher = NewThemeWatcher(context.Background())
	return d
}

// Run drives the dashboard to completion in the alternate screen.
func Run(ctrl Controller, host string, rotation int, screenshotDir string, onStats func(fps int)) error {
	p := tea.NewProgram(NewDashboard(ctrl, host, rotation, screenshotDir, onStats), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (d *Dashboard) Init() tea.Cmd {
	cmds := []tea.Cmd{
		d.spinner.Tick,
		d.connectCmd(),
		tickCmd(),
		d.waitFrame(),
		d.waitLoss(),
	}
	if d.themeWatcher != nil {
		cmds = append(cmds, d.waitTheme())
	}
	return tea.Batch(cmds...)
}

func (d *Dashboard) connectCmd() tea.Cmd {
	return func() tea.Msg {
		ok := d.ctrl.Connect(d.host, d.rotation)
		if ok {
			d.ctrl.StartViewing()
		}
		return connectedMsg(ok)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (d *Dashboard) waitFrame() tea.Cmd {
	return func() tea.Msg {
		info, ok := <-d.frameCh
		if !ok {
			return nil
		}
		return frameMsg(info)
	}
}

func (d *Dashboard) waitLoss() tea.Cmd {
	return func() tea.Msg {
		reason, ok := <-d.lossCh
		if !ok {
			return nil
		}
		return streamLostMsg(reason)
	}
}

func (d *Dashboard) waitTheme() tea.Cmd {
	return func() tea.Msg {
		isDark, ok := <-d.themeWatcher.ChangeChannel()
		if !ok {
			return nil
		}
		return themeMsg(isDark)
	}
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return d.handleKey(msg)

	case tea.WindowSizeMsg:
		d.width = msg.Width
		return d, nil

	case spinner.TickMsg:
		if !d.connecting {
			return d, nil
		}
		var cmd tea.Cmd
		d.spinner, cmd = d.spinner.Update(msg)
		return d, cmd

	case connectedMsg:
		d.connecting = false
		d.connectFailed = !bool(msg)
		if d.connectFailed {
			d.statusMsg = "connection failed"
		}
		return d, nil

	case tickMsg:
		if fps, ok := d.ctrl.GetPerformanceStats(); ok {
			d.fps = fps
			d.haveFPS = true
			if d.onStats != nil {
				d.onStats(fps)
			}
		}
		return d, tickCmd()

	case frameMsg:
		d.lastFrame = frameInfo(msg)
		d.frameCount++
		return d, d.waitFrame()

	case streamLostMsg:
		d.lostReason = string(msg)
		d.statusMsg = "stream lost: " + string(msg)
		return d, d.waitLoss()

	case themeMsg:
		if bool(msg) {
			InitTheme("dark")
		} else {
			InitTheme("light")
		}
		return d, d.waitTheme()
	}

	return d, nil
}

func (d *Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		d.quitting = true
		if d.themeWatcher != nil {
			d.themeWatcher.Close()
		}
		d.ctrl.Disconnect()
		return d, tea.Quit

	case "v":
		if d.ctrl.Viewing() {
			d.ctrl.StopViewing()
			d.statusMsg = "viewing stopped"
		} else if d.ctrl.StartViewing() {
			d.statusMsg = "viewing started"
		} else {
			d.statusMsg = "not connected"
		}
		return d, nil

	case "s":
		filename := fmt.Sprintf("panel-%s.png", time.Now().Format("20060102-150405"))
		if d.ctrl.SaveUI(d.screenshotDir, filename) {
			d.statusMsg = "saved " + filename
			if _, err := clipboard.Copy(filepath.Join(d.screenshotDir, filename)); err == nil {
				d.statusMsg += " (path copied)"
			}
		} else {
			d.statusMsg = "screenshot failed"
		}
		return d, nil

	case "d":
		d.ctrl.Disconnect()
		d.statusMsg = "disconnected"
		return d, nil

	case "r":
		if d.ctrl.Connected() || d.connecting {
			return d, nil
		}
		d.connecting = true
		d.connectFailed = false
		d.lostReason = ""
		d.statusMsg = ""
		return d, tea.Batch(d.spinner.Tick, d.connectCmd())
	}

	return d, nil
}

func (d *Dashboard) View() string {
	if d.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("panel-deck"))
	b.WriteString("\n\n")

	maxHost := d.width - 20
	if maxHost < 12 {
		maxHost = 12
	}
	host := runewidth.Truncate(d.host, maxHost, "…")

	var rows []string
	rows = append(rows, d.row("device", host))

	switch {
	case d.connecting:
		rows = append(rows, d.row("state", d.spinner.View()+" connecting"))
	case d.connectFailed:
		rows = append(rows, d.row("state", ErrorStyle.Render("connection failed")))
	case d.ctrl.Connected():
		rows = append(rows, d.row("state", SuccessStyle.Render("connected")))
	default:
		rows = append(rows, d.row("state", DimStyle.Render("disconnected")))
	}

	if d.ctrl.Connected() {
		w, h := d.ctrl.Resolution()
		rows = append(rows, d.row("screen", fmt.Sprintf("%dx%d @ %d°", w, h, d.ctrl.Rotation())))

		if d.ctrl.Viewing() {
			fps := "measuring"
			if d.haveFPS {
				fps = fmt.Sprintf("%d fps", d.fps)
			}
			rows = append(rows, d.row("capture", fps))
		} else {
			rows = append(rows, d.row("capture", DimStyle.Render("paused")))
		}

		if !d.lastFrame.at.IsZero() {
			age := time.Since(d.lastFrame.at).Round(time.Second)
			rows = append(rows, d.row("last frame",
				fmt.Sprintf("%dx%d, %s ago (%d updates)", d.lastFrame.width, d.lastFrame.height, age, d.frameCount)))
		}
	}

	if d.lostReason != "" {
		rows = append(rows, d.row("stream", WarningStyle.Render("lost: "+d.lostReason)))
	}

	b.WriteString(PanelStyle.Render(strings.Join(rows, "\n")))
	b.WriteString("\n\n")

	if d.statusMsg != "" {
		b.WriteString(DimStyle.Render(d.statusMsg))
		b.WriteString("\n")
	}

	b.WriteString(d.menuBar())
	return b.String()
}

func (d *Dashboard) row(label, value string) string {
	return LabelStyle.Render(runewidth.FillRight(label, 11)) + ValueStyle.Render(value)
}

func (d *Dashboard) menuBar() string {
	entries := []struct{ key, desc string }{
		{"v", "view"},
		{"s", "screenshot"},
		{"d", "disconnect"},
		{"r", "reconnect"},
		{"q", "quit"},
	}

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, MenuKeyStyle.Render(e.key)+" "+MenuDescStyle.Render(e.desc))
	}
	return MenuBarStyle.Render(strings.Join(parts, "  ·  "))
}
