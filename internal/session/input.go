package session

import (
	"log/slog"
	"math"
	"time"

	"github.com/asheshgoplani/panel-deck/internal/display"
	"github.com/asheshgoplani/panel-deck/internal/logging"
)

var inputLog = logging.ForComponent(logging.CompInput)

// Axis selects a scroll direction family.
type Axis string

const (
	AxisVertical   Axis = "vertical"
	AxisHorizontal Axis = "horizontal"
)

// scrollButtons maps {axis, sign} to the synthetic wheel button code. The
// remote helper has no native wheel event, so every scroll is emulated as
// repeated discrete button presses.
var scrollButtons = map[Axis]map[bool]uint8{
	AxisVertical:   {true: display.ButtonWheelUp, false: display.ButtonWheelDown},
	AxisHorizontal: {true: display.ButtonWheelLeft, false: display.ButtonWheelRight},
}

// dragSettleDelay lets the remote UI register the press before movement.
const dragSettleDelay = 100 * time.Millisecond

// ClickAt moves the pointer and presses-and-releases button 1.
func (s *Session) ClickAt(x, y int) bool {
	disp := s.connectedDisplay()
	if disp == nil {
		return false
	}
	if err := disp.MouseMove(x, y); err != nil {
		inputLog.Error("click_failed", slog.String("error", err.Error()))
		return false
	}
	if err := disp.MousePress(display.ButtonLeft); err != nil {
		inputLog.Error("click_failed", slog.String("error", err.Error()))
		return false
	}
	inputLog.Debug("click", slog.Int("x", x), slog.Int("y", y))
	return true
}

// MouseDown moves the pointer and presses button 1.
func (s *Session) MouseDown(x, y int) bool {
	disp := s.connectedDisplay()
	if disp == nil {
		return false
	}
	if err := disp.MouseMove(x, y); err != nil {
		inputLog.Error("mouse_down_failed", slog.String("error", err.Error()))
		return false
	}
	if err := disp.MouseDown(display.ButtonLeft); err != nil {
		inputLog.Error("mouse_down_failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

// MouseMove repositions the pointer; forwarded 1:1 during drags.
func (s *Session) MouseMove(x, y int) bool {
	disp := s.connectedDisplay()
	if disp == nil {
		return false
	}
	if err := disp.MouseMove(x, y); err != nil {
		inputLog.Error("mouse_move_failed", slog.String("error", err.Error()))
		return false
	}
	logging.Aggregate(logging.CompInput, "pointer_move")
	return true
}

// MouseUp moves the pointer and releases button 1.
func (s *Session) MouseUp(x, y int) bool {
	disp := s.connectedDisplay()
	if disp == nil {
		return false
	}
	if err := disp.MouseMove(x, y); err != nil {
		inputLog.Error("mouse_up_failed", slog.String("error", err.Error()))
		return false
	}
	if err := disp.MouseUp(display.ButtonLeft); err != nil {
		inputLog.Error("mouse_up_failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

// DragFromTo presses at the start point, settles, moves, and releases.
func (s *Session) DragFromTo(startX, startY, endX, endY int) bool {
	if !s.MouseDown(startX, startY) {
		return false
	}
	time.Sleep(dragSettleDelay)
	if !s.MouseMove(endX, endY) {
		return false
	}
	if !s.MouseUp(endX, endY) {
		return false
	}
	inputLog.Debug("drag",
		slog.Int("from_x", startX), slog.Int("from_y", startY),
		slog.Int("to_x", endX), slog.Int("to_y", endY))
	return true
}

// ScrollVertical scrolls at the current pointer position. Positive delta
// scrolls up.
func (s *Session) ScrollVertical(delta float64) bool {
	return s.scrollWheel(delta, AxisVertical, false, 0, 0)
}

// ScrollVerticalAt repositions the pointer before scrolling.
func (s *Session) ScrollVerticalAt(delta float64, x, y int) bool {
	return s.scrollWheel(delta, AxisVertical, true, x, y)
}

// ScrollHorizontal scrolls at the current pointer position. Positive delta
// scrolls left.
func (s *Session) ScrollHorizontal(delta float64) bool {
	return s.scrollWheel(delta, AxisHorizontal, false, 0, 0)
}

// ScrollHorizontalAt repositions the pointer before scrolling.
func (s *Session) ScrollHorizontalAt(delta float64, x, y int) bool {
	return s.scrollWheel(delta, AxisHorizontal, true, x, y)
}

func (s *Session) scrollWheel(delta float64, axis Axis, reposition bool, x, y int) bool {
	disp := s.connectedDisplay()
	if disp == nil {
		return false
	}

	steps := normalizeScrollSteps(delta)
	if steps == 0 {
		return true // nothing to send is a success
	}

	button := scrollButtons[axis][delta > 0]

	if reposition {
		if err := disp.MouseMove(x, y); err != nil {
			inputLog.Error("scroll_failed", slog.String("error", err.Error()))
			return false
		}
	}

	for i := 0; i < steps; i++ {
		if err := disp.MouseDown(button); err != nil {
			inputLog.Error("scroll_failed", slog.String("error", err.Error()))
			return false
		}
		if err := disp.MouseUp(button); err != nil {
			inputLog.Error("scroll_failed", slog.String("error", err.Error()))
			return false
		}
	}

	inputLog.Debug("scroll",
		slog.String("axis", string(axis)),
		slog.Float64("delta", delta),
		slog.Int("steps", steps))
	return true
}

// normalizeScrollSteps converts a platform wheel delta into discrete clicks:
// high-resolution deltas (|d| >= 120, the Windows wheel unit) map to
// round(|d|/120) clicks, any smaller nonzero delta to exactly one click.
func normalizeScrollSteps(delta float64) int {
	magnitude := math.Abs(delta)
	if magnitude == 0 {
		return 0
	}
	if magnitude >= 120 {
		return int(math.Round(magnitude / 120))
	}
	return 1
}

// connectedDisplay returns the display handle iff the session is connected.
func (s *Session) connectedDisplay() display.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return nil
	}
	return s.disp
}
