package display

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	vnc "github.com/mitchellh/go-vnc"

	"github.com/asheshgoplani/panel-deck/internal/logging"
)

var rfbLog = logging.ForComponent(logging.CompDisplay)

// captureTimeout bounds the wait for one framebuffer update response.
const captureTimeout = 5 * time.Second

// rfbClient adapts the go-vnc client connection to the Client interface.
// The framebuffer image persists across captures so each update request only
// needs to repaint the rectangles the server sends back.
type rfbClient struct {
	mu   sync.Mutex
	conn *vnc.ClientConn
	raw  net.Conn
	msgs chan vnc.ServerMessage

	fb *image.RGBA

	// pointer state: RFB pointer events always carry the full button mask
	// and position, so both are tracked here
	ptrX, ptrY uint16
	buttons    vnc.ButtonMask
}

// Dial connects an RFB client to the helper listening at host:port.
func Dial(host string, port int, timeout time.Duration) (Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	raw, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("display: dial %s: %w", addr, err)
	}

	msgs := make(chan vnc.ServerMessage, 16)
	conn, err := vnc.Client(raw, &vnc.ClientConfig{
		Auth:            []vnc.ClientAuth{new(vnc.ClientAuthNone)},
		ServerMessageCh: msgs,
		ServerMessages: []vnc.ServerMessage{
			new(vnc.FramebufferUpdateMessage),
			new(vnc.SetColorMapEntriesMessage),
			new(vnc.BellMessage),
			new(vnc.ServerCutTextMessage),
		},
	})
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("display: handshake with %s: %w", addr, err)
	}

	rfbLog.Info("connected",
		slog.String("addr", addr),
		slog.Int("width", int(conn.FrameBufferWidth)),
		slog.Int("height", int(conn.FrameBufferHeight)),
		slog.String("desktop", conn.DesktopName))

	c := &rfbClient{
		conn: conn,
		raw:  raw,
		msgs: msgs,
		fb: image.NewRGBA(image.Rect(0, 0,
			int(conn.FrameBufferWidth), int(conn.FrameBufferHeight))),
	}
	return c, nil
}

func (c *rfbClient) Resolution() (int, int) {
	return int(c.conn.FrameBufferWidth), int(c.conn.FrameBufferHeight)
}

// CaptureScreen requests a full (non-incremental) framebuffer update, paints
// the returned rectangles, and encodes the result as PNG.
func (c *rfbClient) CaptureScreen() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, h := c.conn.FrameBufferWidth, c.conn.FrameBufferHeight
	if err := c.conn.FramebufferUpdateRequest(false, 0, 0, w, h); err != nil {
		return nil, fmt.Errorf("display: update request: %w", err)
	}

	deadline := time.NewTimer(captureTimeout)
	defer deadline.Stop()

	for {
		select {
		case msg, ok := <-c.msgs:
			if !ok {
				return nil, fmt.Errorf("display: connection closed")
			}
			update, isUpdate := msg.(*vnc.FramebufferUpdateMessage)
			if !isUpdate {
				continue // bell, cut text, color map: not ours
			}
			c.paint(update)
			var buf bytes.Buffer
			if err := png.Encode(&buf, c.fb); err != nil {
				return nil, fmt.Errorf("display: encode frame: %w", err)
			}
			return buf.Bytes(), nil
		case <-deadline.C:
			return nil, fmt.Errorf("display: no framebuffer update within %s", captureTimeout)
		}
	}
}

// paint copies raw-encoded rectangles into the persistent framebuffer image.
func (c *rfbClient) paint(update *vnc.FramebufferUpdateMessage) {
	for _, rect := range update.Rectangles {
		raw, ok := rect.Enc.(*vnc.RawEncoding)
		if !ok {
			rfbLog.Warn("unsupported_encoding", slog.Int("x", int(rect.X)), slog.Int("y", int(rect.Y)))
			continue
		}
		i := 0
		for y := int(rect.Y); y < int(rect.Y)+int(rect.Height); y++ {
			for x := int(rect.X); x < int(rect.X)+int(rect.Width); x++ {
				if i >= len(raw.Colors) {
					return
				}
				col := raw.Colors[i]
				i++
				off := c.fb.PixOffset(x, y)
				if off < 0 || off+3 >= len(c.fb.Pix) {
					continue
				}
				c.fb.Pix[off+0] = channelByte(col.R)
				c.fb.Pix[off+1] = channelByte(col.G)
				c.fb.Pix[off+2] = channelByte(col.B)
				c.fb.Pix[off+3] = 0xff
			}
		}
	}
}

// channelByte narrows a pixel-format channel value to 8 bits. Servers with a
// 16-bit max value deliver the high byte in the upper bits.
func channelByte(v uint16) uint8 {
	if v > 0xff {
		return uint8(v >> 8)
	}
	return uint8(v)
}

func (c *rfbClient) MouseMove(x, y int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ptrX, c.ptrY = clampU16(x), clampU16(y)
	return c.conn.PointerEvent(c.buttons, c.ptrX, c.ptrY)
}

func (c *rfbClient) MouseDown(button uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buttons |= vnc.ButtonMask(button)
	return c.conn.PointerEvent(c.buttons, c.ptrX, c.ptrY)
}

func (c *rfbClient) MouseUp(button uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buttons &^= vnc.ButtonMask(button)
	return c.conn.PointerEvent(c.buttons, c.ptrX, c.ptrY)
}

func (c *rfbClient) MousePress(button uint8) error {
	if err := c.MouseDown(button); err != nil {
		return err
	}
	return c.MouseUp(button)
}

func (c *rfbClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.conn.Close()
	c.raw.Close()
	return err
}

func clampU16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xffff {
		return 0xffff
	}
	return uint16(v)
}
