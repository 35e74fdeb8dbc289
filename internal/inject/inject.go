// Package inject synthesizes pointer and keyboard input.
package inject

import (
	"errors"
	"image"
)

// ErrFailSafe is returned when the pointer sits in a protected screen corner.
// Moving the pointer into a corner is how an operator aborts automation.
var ErrFailSafe = errors.New("fail-safe triggered: pointer in a screen corner")

// FailSafeMargin is how close to a corner, in pixels, the pointer must be.
const FailSafeMargin = 2

// Injector is the synthetic input device used by the trigger loop.
type Injector interface {
	Location() image.Point
	MoveTo(p image.Point) error
	Click() error
	KeyTap(key string) error
	ScreenSize() image.Point
}

// InCorner reports whether p is within margin pixels of any corner of a
// screen of the given size.
func InCorner(p, size image.Point, margin int) bool {
	if size.X <= 0 || size.Y <= 0 {
		return false
	}
	nearX := p.X <= margin || p.X >= size.X-1-margin
	nearY := p.Y <= margin || p.Y >= size.Y-1-margin
	return nearX && nearY
}

// TargetPoint returns the click target: offset pixels left of and above the
// bottom-right corner, clamped onto the screen.
func TargetPoint(size image.Point, offsetX, offsetY int) image.Point {
	return image.Pt(clamp(size.X-offsetX, 0, size.X-1), clamp(size.Y-offsetY, 0, size.Y-1))
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}
