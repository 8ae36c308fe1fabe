package wm

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
)

// Gravity names the direction a resize grows toward. The corner opposite
// the gravity keeps its on-screen position.
type Gravity int

const (
	GravityNorthWest Gravity = iota
	GravityNorthEast
	GravitySouthWest
	GravitySouthEast
)

func (g Gravity) String() string {
	switch g {
	case GravityNorthWest:
		return "northwest"
	case GravityNorthEast:
		return "northeast"
	case GravitySouthWest:
		return "southwest"
	case GravitySouthEast:
		return "southeast"
	default:
		return "unknown"
	}
}

func (g Gravity) growsWest() bool  { return g == GravityNorthWest || g == GravitySouthWest }
func (g Gravity) growsNorth() bool { return g == GravityNorthWest || g == GravityNorthEast }

// ResizeClient resizes the protocol window. When the fixed corner is not
// the origin, the window is moved and resized in a single request and the
// actor is shifted by the same delta so the fixed corner stays put on
// screen.
func (w *Window) ResizeClient(width, height int, gravity Gravity) error {
	dx, dy := 0, 0
	if gravity.growsWest() {
		dx = w.clientWidth - width
	}
	if gravity.growsNorth() {
		dy = w.clientHeight - height
	}

	if dx == 0 && dy == 0 {
		if err := w.d.conn.ConfigureWindow(w.id,
			xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
			[]uint32{uint32(width), uint32(height)}); err != nil {
			return fmt.Errorf("resize window %d: %w", w.id, err)
		}
		w.clientWidth, w.clientHeight = width, height
		w.actor.SetSize(width, height)
		return nil
	}

	x, y := w.clientX+dx, w.clientY+dy
	if err := w.d.conn.MoveResizeWindow(w.id, x, y, width, height); err != nil {
		return fmt.Errorf("move/resize window %d: %w", w.id, err)
	}
	w.clientX, w.clientY = x, y
	w.clientWidth, w.clientHeight = width, height
	w.actor.SetSize(width, height)
	w.refreshOwnerOffset()
	w.MoveComposited(w.compX+scaled(dx, w.compScaleX), w.compY+scaled(dy, w.compScaleY), 0)
	return nil
}
