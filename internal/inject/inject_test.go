package inject

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInCorner(t *testing.T) {
	size := image.Pt(1920, 1080)
	tests := []struct {
		name string
		p    image.Point
		want bool
	}{
		{"top left", image.Pt(0, 0), true},
		{"top left within margin", image.Pt(2, 1), true},
		{"top right", image.Pt(1919, 0), true},
		{"bottom left", image.Pt(0, 1079), true},
		{"bottom right within margin", image.Pt(1917, 1077), true},
		{"left edge middle", image.Pt(0, 500), false},
		{"top edge middle", image.Pt(900, 0), false},
		{"just outside margin", image.Pt(3, 3), false},
		{"centre", image.Pt(960, 540), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InCorner(tt.p, size, FailSafeMargin))
		})
	}
}

func TestInCornerUnknownScreen(t *testing.T) {
	assert.False(t, InCorner(image.Pt(0, 0), image.Point{}, FailSafeMargin))
}

func TestTargetPoint(t *testing.T) {
	assert.Equal(t, image.Pt(1520, 980), TargetPoint(image.Pt(1920, 1080), 400, 100))
	assert.Equal(t, image.Pt(0, 0), TargetPoint(image.Pt(300, 80), 400, 100), "clamped on tiny screens")
	assert.Equal(t, image.Pt(1919, 1079), TargetPoint(image.Pt(1920, 1080), 0, 0), "stays on screen")
}
