package session

import "math"

const (
	// smallScreenWidthThreshold and smallScreenXCompensation correct for
	// display padding on low-resolution panels: below the threshold the
	// rendered UI occupies 80% of the horizontal span. The constant is an
	// empirical device correction with no documented derivation; preserve it
	// as-is.
	smallScreenWidthThreshold = 400
	smallScreenXCompensation  = 0.8

	// DragThresholdPixels is the displacement from the press position beyond
	// which a gesture counts as a drag instead of a click. Uniform across
	// device types.
	DragThresholdPixels = 5
)

// Transform maps a display-space pixel position onto the device framebuffer:
// scale to the screen resolution, apply the small-screen X compensation,
// rotate, and clamp into bounds. Pure function, no session state.
func Transform(displayX, displayY, displayW, displayH, screenW, screenH, rotation int) (int, int) {
	if displayW <= 0 || displayH <= 0 || screenW <= 0 || screenH <= 0 {
		return 0, 0
	}

	scaleX := float64(screenW) / float64(displayW)
	scaleY := float64(screenH) / float64(displayH)
	if screenW < smallScreenWidthThreshold {
		scaleX *= smallScreenXCompensation
	}

	x := int(math.Round(float64(displayX) * scaleX))
	y := int(math.Round(float64(displayY) * scaleY))

	switch rotation {
	case 90:
		x, y = screenH-y, x
	case 180:
		x, y = screenW-x, screenH-y
	case 270:
		x, y = y, screenW-x
	}

	return clampInt(x, 0, screenW-1), clampInt(y, 0, screenH-1)
}

// IsDrag reports whether the displacement from a press position exceeds the
// click-vs-drag threshold on either axis.
func IsDrag(downX, downY, x, y int) bool {
	dx := x - downX
	dy := y - downY
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx > DragThresholdPixels || dy > DragThresholdPixels
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
