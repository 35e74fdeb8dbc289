//go:build windows

package inject

import (
	"image"

	"github.com/go-vgo/robotgo"
	"github.com/lxn/win"
)

// screenSize reads the primary monitor size in physical pixels, which is the
// coordinate space SendInput uses. robotgo is the fallback.
func screenSize() image.Point {
	w := int(win.GetSystemMetrics(win.SM_CXSCREEN))
	h := int(win.GetSystemMetrics(win.SM_CYSCREEN))
	if w > 0 && h > 0 {
		return image.Pt(w, h)
	}
	w, h = robotgo.GetScreenSize()
	return image.Pt(w, h)
}
