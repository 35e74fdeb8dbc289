package indicator

import (
	"image"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// DefaultMarkerSize is the marker diameter in pixels.
const DefaultMarkerSize = 30

const (
	markerPadding = 10
	markerMargin  = 5
	markerAlpha   = 0x99
)

var (
	markerFill    = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: markerAlpha}
	markerOutline = color.NRGBA{R: 0xff, A: markerAlpha}
)

// Marker is an undecorated, always-on-top window centred on a screen point.
type Marker struct {
	center image.Point
	side   int
}

func NewMarker(center image.Point, size int) *Marker {
	if size <= 0 {
		size = DefaultMarkerSize
	}
	return &Marker{center: center, side: size + markerPadding}
}

// Bounds returns the window rectangle in screen coordinates.
func (m *Marker) Bounds() image.Rectangle {
	half := m.side / 2
	origin := m.center.Sub(image.Pt(half, half))
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(m.side, m.side))}
}

func (m *Marker) Update() error {
	return nil
}

func (m *Marker) Draw(screen *ebiten.Image) {
	side := float32(m.side)
	c := side / 2
	r := c - markerMargin

	vector.DrawFilledCircle(screen, c, c, r, markerFill, true)
	vector.StrokeCircle(screen, c, c, r, 2, markerOutline, true)
	vector.StrokeLine(screen, c, markerMargin, c, side-markerMargin, 1, markerOutline, true)
	vector.StrokeLine(screen, markerMargin, c, side-markerMargin, c, 1, markerOutline, true)
}

func (m *Marker) Layout(_, _ int) (int, int) {
	return m.side, m.side
}

// Run opens the marker window and blocks until the process is terminated.
func (m *Marker) Run() error {
	b := m.Bounds()
	ebiten.SetWindowTitle("idle-clicker target")
	ebiten.SetWindowDecorated(false)
	ebiten.SetWindowFloating(true)
	ebiten.SetWindowMousePassthrough(true)
	ebiten.SetWindowSize(b.Dx(), b.Dy())
	ebiten.SetWindowPosition(b.Min.X, b.Min.Y)
	ebiten.SetRunnableOnUnfocused(true)

	return ebiten.RunGameWithOptions(m, &ebiten.RunGameOptions{ScreenTransparent: true})
}
