// Package display defines the remote-display capability the session core
// drives: frame capture and synthetic pointer events against the device's
// display-forwarding helper. The wire protocol lives in the RFB client
// library; this package only adapts it.
package display

import "time"

// Pointer button codes as understood by the remote helper. These are RFB
// button masks: 1-3 are the physical buttons, 8/16 emulate the vertical
// wheel and 32/64 the horizontal wheel. The helper has no native wheel
// event, so scrolling is always expressed as these synthetic presses.
const (
	ButtonLeft   uint8 = 1
	ButtonMiddle uint8 = 2
	ButtonRight  uint8 = 4

	ButtonWheelUp    uint8 = 8
	ButtonWheelDown  uint8 = 16
	ButtonWheelLeft  uint8 = 32
	ButtonWheelRight uint8 = 64
)

// Client is the display capability consumed by the session core.
// Implementations must be safe for calls from the capture worker and the
// caller thread concurrently.
type Client interface {
	// CaptureScreen returns the current framebuffer encoded as PNG bytes.
	CaptureScreen() ([]byte, error)

	// Resolution returns the framebuffer size in pixels, as reported by the
	// remote side during the handshake.
	Resolution() (width, height int)

	// MouseMove repositions the pointer, preserving pressed buttons.
	MouseMove(x, y int) error

	// MouseDown presses a button at the current pointer position.
	MouseDown(button uint8) error

	// MouseUp releases a button at the current pointer position.
	MouseUp(button uint8) error

	// MousePress is a press immediately followed by a release.
	MousePress(button uint8) error

	Close() error
}

// Dialer opens a display client against host:port. The session core takes a
// Dialer so tests can substitute a fake without a device on the network.
type Dialer func(host string, port int, timeout time.Duration) (Client, error)
