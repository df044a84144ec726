package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectedSession(t *testing.T, disp *fakeDisplay) *Session {
	t.Helper()
	if disp.width == 0 {
		disp.width, disp.height = 800, 480
	}
	s := newTestSession(disp, &fakeTransport{})
	require.True(t, s.Connect("10.0.0.5", 0))
	return s
}

func TestNormalizeScrollSteps(t *testing.T) {
	cases := []struct {
		delta float64
		steps int
	}{
		{0, 0},
		{120, 1},
		{-120, 1},
		{360, 3},
		{-360, 3},
		{180, 2}, // rounds, not truncates
		{40, 1},
		{-40, 1},
		{1, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.steps, normalizeScrollSteps(tc.delta), "delta=%v", tc.delta)
	}
}

func TestScrollVerticalDirections(t *testing.T) {
	disp := &fakeDisplay{}
	s := connectedSession(t, disp)

	require.True(t, s.ScrollVertical(120))
	assert.Equal(t, []string{"down 8", "up 8"}, disp.recordedEvents())

	disp.events = nil
	require.True(t, s.ScrollVertical(-120))
	assert.Equal(t, []string{"down 16", "up 16"}, disp.recordedEvents())
}

func TestScrollHorizontalDirections(t *testing.T) {
	disp := &fakeDisplay{}
	s := connectedSession(t, disp)

	require.True(t, s.ScrollHorizontal(120))
	assert.Equal(t, []string{"down 32", "up 32"}, disp.recordedEvents())

	disp.events = nil
	require.True(t, s.ScrollHorizontal(-120))
	assert.Equal(t, []string{"down 64", "up 64"}, disp.recordedEvents())
}

func TestScrollMultipleClicks(t *testing.T) {
	disp := &fakeDisplay{}
	s := connectedSession(t, disp)

	require.True(t, s.ScrollVertical(360))
	assert.Equal(t, []string{"down 8", "up 8", "down 8", "up 8", "down 8", "up 8"}, disp.recordedEvents())
}

func TestScrollSmallDeltaIsOneClick(t *testing.T) {
	disp := &fakeDisplay{}
	s := connectedSession(t, disp)

	require.True(t, s.ScrollVertical(-40))
	assert.Equal(t, []string{"down 16", "up 16"}, disp.recordedEvents())
}

func TestScrollZeroDeltaSendsNothing(t *testing.T) {
	disp := &fakeDisplay{}
	s := connectedSession(t, disp)

	assert.True(t, s.ScrollVertical(0), "zero delta is a successful no-op")
	assert.Empty(t, disp.recordedEvents())
}

func TestScrollAtRepositionsFirst(t *testing.T) {
	disp := &fakeDisplay{}
	s := connectedSession(t, disp)

	require.True(t, s.ScrollVerticalAt(120, 50, 60))
	assert.Equal(t, []string{"move 50,60", "down 8", "up 8"}, disp.recordedEvents())
}

func TestScrollNotConnected(t *testing.T) {
	s := New(DefaultConfig())
	assert.False(t, s.ScrollVertical(120))
}

func TestClickAt(t *testing.T) {
	disp := &fakeDisplay{}
	s := connectedSession(t, disp)

	require.True(t, s.ClickAt(10, 20))
	assert.Equal(t, []string{"move 10,20", "press 1"}, disp.recordedEvents())
}

func TestClickAtNotConnected(t *testing.T) {
	s := New(DefaultConfig())
	assert.False(t, s.ClickAt(10, 20))
}

func TestMouseDownMoveUp(t *testing.T) {
	disp := &fakeDisplay{}
	s := connectedSession(t, disp)

	require.True(t, s.MouseDown(10, 20))
	require.True(t, s.MouseMove(15, 25))
	require.True(t, s.MouseUp(30, 40))
	assert.Equal(t, []string{
		"move 10,20", "down 1",
		"move 15,25",
		"move 30,40", "up 1",
	}, disp.recordedEvents())
}

func TestDragFromTo(t *testing.T) {
	disp := &fakeDisplay{}
	s := connectedSession(t, disp)

	require.True(t, s.DragFromTo(10, 20, 100, 120))
	assert.Equal(t, []string{
		"move 10,20", "down 1",
		"move 100,120",
		"move 100,120", "up 1",
	}, disp.recordedEvents())
}

func TestInputFailurePropagates(t *testing.T) {
	disp := &fakeDisplay{moveErr: errors.New("broken pipe")}
	s := connectedSession(t, disp)

	assert.False(t, s.ClickAt(10, 20))
	assert.False(t, s.MouseMove(10, 20))
	assert.False(t, s.ScrollVerticalAt(120, 10, 20))
}
