//go:build !windows

package inject

import (
	"image"

	"github.com/go-vgo/robotgo"
)

func screenSize() image.Point {
	w, h := robotgo.GetScreenSize()
	return image.Pt(w, h)
}
