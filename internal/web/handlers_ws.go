package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asheshgoplani/panel-deck/internal/logging"
	"github.com/asheshgoplani/panel-deck/internal/session"
)

// wsClientMessage is a pointer gesture from the browser, expressed in the
// browser canvas coordinate space. The server owns the mapping onto the
// device framebuffer.
type wsClientMessage struct {
	Type     string  `json:"type"` // click, down, move, up, scroll
	X        int     `json:"x"`
	Y        int     `json:"y"`
	DisplayW int     `json:"displayW"`
	DisplayH int     `json:"displayH"`
	Delta    float64 `json:"delta,omitempty"`
	Axis     string  `json:"axis,omitempty"` // vertical (default), horizontal
}

type wsServerMessage struct {
	Type     string    `json:"type"` // status, error
	Event    string    `json:"event,omitempty"`
	Code     string    `json:"code,omitempty"`
	Message  string    `json:"message,omitempty"`
	Host     string    `json:"host,omitempty"`
	Width    int       `json:"width,omitempty"`
	Height   int       `json:"height,omitempty"`
	ReadOnly bool      `json:"readOnly,omitempty"`
	Time     time.Time `json:"time,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}

	return strings.EqualFold(originURL.Host, r.Host)
}

// wsConnWriter serializes writes: the frame pump and the reader loop both
// write to the same connection.
type wsConnWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSConnWriter(conn *websocket.Conn) *wsConnWriter {
	return &wsConnWriter{conn: conn}
}

func (w *wsConnWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(v)
}

func (w *wsConnWriter) WriteBinary(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

// gestureState tracks one connection's press position so that jitter below
// the drag threshold is swallowed instead of forwarded as pointer movement.
type gestureState struct {
	pressed  bool
	downX    int
	downY    int
	dragging bool
}

func (s *Server) handleScreenWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	if !s.ctrl.Connected() {
		writeAPIError(w, http.StatusConflict, "NOT_CONNECTED", "no device session")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	webLog := logging.ForComponent(logging.CompWeb)
	writer := newWSConnWriter(conn)

	width, height := s.ctrl.Resolution()
	_ = writer.WriteJSON(wsServerMessage{
		Type:     "status",
		Event:    "connected",
		Host:     s.ctrl.Host(),
		Width:    width,
		Height:   height,
		ReadOnly: s.cfg.ReadOnly,
		Time:     time.Now().UTC(),
	})

	// Viewing may already be active (TUI attached, or a second browser tab);
	// StartViewing is a no-op then.
	s.ctrl.StartViewing()

	frames := s.subscribeFrames()
	done := make(chan struct{})

	// Unsubscribe before joining the pump: closing the frame channel is what
	// releases a pump blocked on an idle screen, where no publish would ever
	// arrive to wake it.
	defer func() {
		s.unsubscribeFrames(frames)
		<-done
	}()

	// Seed the new subscriber with the current frame so the canvas is not
	// blank until the next change.
	if data := s.ctrl.GetCurrentFrameBytes(); data != nil {
		_ = writer.WriteBinary(data)
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-s.baseCtx.Done():
				return
			case data, ok := <-frames:
				if !ok {
					return
				}
				if err := writer.WriteBinary(data); err != nil {
					return
				}
			}
		}
	}()

	var gesture gestureState
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				webLog.Warn("websocket_closed_unexpectedly", slog.String("error", err.Error()))
			}
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = writer.WriteJSON(wsServerMessage{
				Type:    "error",
				Code:    "INVALID_MESSAGE",
				Message: "invalid json payload",
				Time:    time.Now().UTC(),
			})
			continue
		}

		if s.cfg.ReadOnly {
			_ = writer.WriteJSON(wsServerMessage{
				Type:    "error",
				Code:    "READ_ONLY",
				Message: "pointer input is disabled",
				Time:    time.Now().UTC(),
			})
			continue
		}

		if !s.dispatchPointer(msg, &gesture) {
			_ = writer.WriteJSON(wsServerMessage{
				Type:    "error",
				Code:    "INPUT_FAILED",
				Message: "pointer event was not delivered",
				Time:    time.Now().UTC(),
			})
		}
	}
}

// dispatchPointer maps one browser gesture onto the device framebuffer and
// forwards it. Returns false when the session rejected the event.
func (s *Server) dispatchPointer(msg wsClientMessage, gesture *gestureState) bool {
	if msg.DisplayW <= 0 || msg.DisplayH <= 0 {
		return false
	}

	x, y := s.ctrl.TransformCoordinates(msg.X, msg.Y, msg.DisplayW, msg.DisplayH)

	switch msg.Type {
	case "click":
		return s.ctrl.ClickAt(x, y)

	case "down":
		gesture.pressed = true
		gesture.dragging = false
		gesture.downX, gesture.downY = msg.X, msg.Y
		return s.ctrl.MouseDown(x, y)

	case "move":
		if !gesture.pressed {
			return true // hover without a press carries no information here
		}
		if !gesture.dragging {
			if !session.IsDrag(gesture.downX, gesture.downY, msg.X, msg.Y) {
				return true // below the drag threshold: swallow the jitter
			}
			gesture.dragging = true
		}
		return s.ctrl.MouseMove(x, y)

	case "up":
		gesture.pressed = false
		gesture.dragging = false
		return s.ctrl.MouseUp(x, y)

	case "scroll":
		if msg.Axis == "horizontal" {
			return s.ctrl.ScrollHorizontalAt(msg.Delta, x, y)
		}
		return s.ctrl.ScrollVerticalAt(msg.Delta, x, y)

	default:
		return false
	}
}
