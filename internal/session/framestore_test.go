package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameStoreEmpty(t *testing.T) {
	fs := NewFrameStore()
	assert.Nil(t, fs.Current())
	assert.Nil(t, fs.CurrentImage())
	assert.Nil(t, fs.CurrentBytes())
}

func TestFrameStorePublishAndRead(t *testing.T) {
	fs := NewFrameStore()
	data := pngBytes(t, 20, 10, 3)

	frame := fs.Publish(data, 42)
	assert.Equal(t, uint64(42), frame.Fingerprint)
	assert.Equal(t, 20, frame.Width)
	assert.Equal(t, 10, frame.Height)
	assert.False(t, frame.CapturedAt.IsZero())

	assert.Same(t, frame, fs.Current())

	img := fs.CurrentImage()
	require.NotNil(t, img)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 10, img.Bounds().Dy())
}

func TestFrameStoreLastWriteWins(t *testing.T) {
	fs := NewFrameStore()
	fs.Publish(pngBytes(t, 8, 8, 1), 1)
	fs.Publish(pngBytes(t, 16, 16, 2), 2)

	frame := fs.Current()
	require.NotNil(t, frame)
	assert.Equal(t, uint64(2), frame.Fingerprint)
	assert.Equal(t, 16, frame.Width)
}

func TestFrameStoreCurrentBytesIsACopy(t *testing.T) {
	fs := NewFrameStore()
	fs.Publish(pngBytes(t, 8, 8, 1), 1)

	a := fs.CurrentBytes()
	a[0] = 0xEE
	b := fs.CurrentBytes()
	assert.NotEqual(t, a[0], b[0], "mutating a returned slice must not touch the stored frame")
}

func TestFrameStoreGarbageDataHasNoDims(t *testing.T) {
	fs := NewFrameStore()
	frame := fs.Publish([]byte("not a png"), 7)
	assert.Zero(t, frame.Width)
	assert.Zero(t, frame.Height)
	assert.Nil(t, fs.CurrentImage())
	assert.Equal(t, []byte("not a png"), fs.CurrentBytes())
}

func TestPerformanceStatsWindow(t *testing.T) {
	fs := NewFrameStore()
	for i := 0; i < 5; i++ {
		fs.RecordCapture()
	}

	// Window not yet elapsed.
	_, ok := fs.PerformanceStats()
	assert.False(t, ok)

	// Age the window artificially instead of sleeping a wall-clock second.
	fs.statsMu.Lock()
	fs.windowStart = time.Now().Add(-1100 * time.Millisecond)
	fs.statsMu.Unlock()

	fps, ok := fs.PerformanceStats()
	require.True(t, ok)
	assert.Equal(t, 5, fps)

	// The read reset the window.
	_, ok = fs.PerformanceStats()
	assert.False(t, ok)
}

func TestResetStatsClearsCount(t *testing.T) {
	fs := NewFrameStore()
	fs.RecordCapture()
	fs.RecordCapture()
	fs.resetStats()

	fs.statsMu.Lock()
	fs.windowStart = time.Now().Add(-1100 * time.Millisecond)
	fs.statsMu.Unlock()

	fps, ok := fs.PerformanceStats()
	require.True(t, ok)
	assert.Zero(t, fps)
}
