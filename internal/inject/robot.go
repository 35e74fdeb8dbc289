package inject

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/go-vgo/robotgo"
)

// Robot drives the real pointer and keyboard through robotgo. Every
// primitive first checks the fail-safe corners.
type Robot struct {
	logger *slog.Logger
	size   image.Point
}

func NewRobot(logger *slog.Logger) *Robot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Robot{logger: logger, size: screenSize()}
}

func (r *Robot) ScreenSize() image.Point {
	return r.size
}

func (r *Robot) Location() image.Point {
	x, y := robotgo.Location()
	return image.Pt(x, y)
}

func (r *Robot) failSafe() error {
	if p := r.Location(); InCorner(p, r.size, FailSafeMargin) {
		r.logger.Warn("Pointer in fail-safe corner", slog.Int("x", p.X), slog.Int("y", p.Y))
		return ErrFailSafe
	}
	return nil
}

func (r *Robot) MoveTo(p image.Point) error {
	if err := r.failSafe(); err != nil {
		return err
	}
	robotgo.Move(p.X, p.Y)
	return nil
}

func (r *Robot) Click() error {
	if err := r.failSafe(); err != nil {
		return err
	}
	robotgo.Click()
	return nil
}

func (r *Robot) KeyTap(key string) error {
	if err := r.failSafe(); err != nil {
		return err
	}
	if err := robotgo.KeyTap(key); err != nil {
		return fmt.Errorf("key tap %q failed: %w", key, err)
	}
	return nil
}
