package session

import (
	"bytes"
	"image"
	"log/slog"
	"sync"
	"time"

	_ "image/png" // frames arrive PNG-encoded

	"github.com/asheshgoplani/panel-deck/internal/logging"
)

var storeLog = logging.ForComponent(logging.CompCapture)

// Frame is one published capture. Immutable once published; the next
// published frame supersedes it.
type Frame struct {
	Data        []byte
	Fingerprint uint64
	Width       int
	Height      int
	CapturedAt  time.Time
}

// FrameStore is a thread-safe single-slot holder for the most recent frame.
// Single producer (the capture worker), last-write-wins: readers see the most
// recent frame at read time, never a guaranteed sequence. The mutex is held
// only while swapping the slot, never during a capture.
type FrameStore struct {
	mu    sync.Mutex
	frame *Frame

	statsMu     sync.Mutex
	frameCount  int
	windowStart time.Time
}

func NewFrameStore() *FrameStore {
	return &FrameStore{windowStart: time.Now()}
}

// Publish replaces the slot with a new frame. The data slice must not be
// mutated afterwards; the worker allocates a fresh one per capture.
func (fs *FrameStore) Publish(data []byte, fingerprint uint64) *Frame {
	frame := &Frame{
		Data:        data,
		Fingerprint: fingerprint,
		CapturedAt:  time.Now(),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		frame.Width, frame.Height = cfg.Width, cfg.Height
	}

	fs.mu.Lock()
	fs.frame = frame
	fs.mu.Unlock()
	return frame
}

// Current returns the last published frame, or nil.
func (fs *FrameStore) Current() *Frame {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.frame
}

// CurrentImage decodes and returns the last published frame. The decoded form
// is not cached: reads are infrequent relative to writes, so decoding on
// demand is cheaper than decoding every published frame.
func (fs *FrameStore) CurrentImage() image.Image {
	frame := fs.Current()
	if frame == nil {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		storeLog.Error("frame_decode_failed", slog.String("error", err.Error()))
		return nil
	}
	return img
}

// CurrentBytes returns a copy of the raw frame bytes, or nil.
func (fs *FrameStore) CurrentBytes() []byte {
	frame := fs.Current()
	if frame == nil {
		return nil
	}
	out := make([]byte, len(frame.Data))
	copy(out, frame.Data)
	return out
}

// RecordCapture counts one successful capture tick for the stats window.
func (fs *FrameStore) RecordCapture() {
	fs.statsMu.Lock()
	fs.frameCount++
	fs.statsMu.Unlock()
}

// PerformanceStats returns the captures counted in the last completed
// one-second window, once per window. Between window boundaries it reports
// ok=false.
func (fs *FrameStore) PerformanceStats() (int, bool) {
	fs.statsMu.Lock()
	defer fs.statsMu.Unlock()

	now := time.Now()
	if now.Sub(fs.windowStart) < time.Second {
		return 0, false
	}
	fps := fs.frameCount
	fs.frameCount = 0
	fs.windowStart = now
	return fps, true
}

// resetStats starts a fresh stats window; called when viewing starts.
func (fs *FrameStore) resetStats() {
	fs.statsMu.Lock()
	fs.frameCount = 0
	fs.windowStart = time.Now()
	fs.statsMu.Unlock()
}
