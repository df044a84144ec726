package session

import (
	"bytes"
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/panel-deck/internal/logging"
)

var captureLog = logging.ForComponent(logging.CompCapture)

const (
	// fingerprintPrefixSize bounds how much of each capture is hashed for
	// change detection. Hashing a fixed prefix instead of the whole image
	// keeps the loop cheap; two different frames sharing a prefix is an
	// accepted false negative.
	fingerprintPrefixSize = 1024

	// captureErrorBackoff is the pause after a failed iteration.
	captureErrorBackoff = 100 * time.Millisecond

	// workerJoinTimeout bounds StopViewing's wait for the worker. On timeout
	// the call returns anyway; the worker notices the cleared flag and exits
	// on its own shortly after.
	workerJoinTimeout = 2 * time.Second
)

// StartViewing spawns the capture worker. No-op (returning the current
// viewing state) when already viewing or not connected; at most one worker
// exists per session.
func (s *Session) StartViewing() bool {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	if !s.Connected() {
		return false
	}
	if s.viewing {
		return true
	}

	s.viewing = true
	s.workerDone = make(chan struct{})
	s.store.resetStats()
	go s.captureLoop(s.workerDone)

	captureLog.Info("viewing_started", slog.String("host", s.Host()))
	return true
}

// StopViewing clears the viewing flag and joins the worker with a bounded
// timeout. Cooperative: the worker is never force-terminated.
func (s *Session) StopViewing() {
	s.viewMu.Lock()
	if !s.viewing {
		s.viewMu.Unlock()
		return
	}
	s.viewing = false
	done := s.workerDone
	s.viewMu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(workerJoinTimeout):
			captureLog.Warn("capture_worker_slow_exit", slog.String("host", s.Host()))
		}
	}
	captureLog.Info("viewing_stopped", slog.String("host", s.Host()))
}

// Viewing reports whether the capture worker is active.
func (s *Session) Viewing() bool {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	return s.viewing
}

// SetFPS changes the capture rate target, clamped to the valid range. Takes
// effect on the next iteration of a running loop.
func (s *Session) SetFPS(fps int) {
	s.mu.Lock()
	s.cfg.Capture.FPS = clampFPS(fps)
	s.mu.Unlock()
}

func (s *Session) targetFPS() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clampFPS(s.cfg.Capture.FPS)
}

// captureLoop runs on the dedicated worker goroutine until the viewing flag
// clears. Iteration failures are contained: logged, backed off, continued.
// The loop never attempts reconnection; that is the lifecycle's job.
func (s *Session) captureLoop(done chan struct{}) {
	defer close(done)

	limiter := rate.NewLimiter(rate.Limit(s.targetFPS()), 1)
	var lastFingerprint uint64
	var havePrevious bool

	for s.Viewing() && s.Connected() {
		changed, ok := s.captureTick(&lastFingerprint, &havePrevious)
		if !ok {
			time.Sleep(captureErrorBackoff)
			continue
		}
		if changed {
			logging.Aggregate(logging.CompCapture, "frame_published")
		}

		// Bound the rate: the limiter accounts for time already spent in the
		// capture, so the effective wait is max(0, 1/fps - elapsed).
		limiter.SetLimit(rate.Limit(s.targetFPS()))
		_ = limiter.Wait(context.Background())
	}
}

// captureTick performs one capture iteration. Returns changed=true when a new
// frame was published, ok=false when the iteration failed and the loop should
// back off.
func (s *Session) captureTick(lastFingerprint *uint64, havePrevious *bool) (changed, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			captureLog.Error("capture_tick_panic", slog.Any("panic", r))
			changed, ok = false, false
		}
	}()

	disp := s.displayClient()
	if disp == nil {
		return false, false
	}

	data, err := disp.CaptureScreen()
	if err != nil {
		captureLog.Error("capture_failed", slog.String("error", err.Error()))
		s.notifyStreamLoss(err.Error())
		return false, false
	}
	if len(data) == 0 {
		return false, true
	}

	s.store.RecordCapture()

	fingerprint := frameFingerprint(data)
	if *havePrevious && fingerprint == *lastFingerprint {
		return false, true
	}
	*lastFingerprint = fingerprint
	*havePrevious = true

	s.store.Publish(data, fingerprint)
	s.fireFrameUpdate(data)
	return true, true
}

// fireFrameUpdate decodes the frame and invokes the registered callback with
// both the image handle and the raw bytes.
func (s *Session) fireFrameUpdate(data []byte) {
	s.cbMu.Lock()
	cb := s.onFrameUpdate
	s.cbMu.Unlock()
	if cb == nil {
		return
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		captureLog.Error("frame_decode_failed", slog.String("error", err.Error()))
		return
	}
	runCallback("frame_update", func() { cb(img, data) })
}

// frameFingerprint hashes a fixed-size prefix of the capture bytes.
func frameFingerprint(data []byte) uint64 {
	n := len(data)
	if n > fingerprintPrefixSize {
		n = fingerprintPrefixSize
	}
	return xxhash.Sum64(data[:n])
}

// GetCurrentFrame decodes and returns the most recent frame, or nil if
// nothing has been captured yet.
func (s *Session) GetCurrentFrame() image.Image {
	return s.store.CurrentImage()
}

// GetCurrentFrameBytes returns a copy of the most recent raw frame, or nil.
func (s *Session) GetCurrentFrameBytes() []byte {
	return s.store.CurrentBytes()
}

// GetPerformanceStats returns frames captured in the last completed
// one-second window, once per window.
func (s *Session) GetPerformanceStats() (int, bool) {
	return s.store.PerformanceStats()
}
