package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xprop"

	"github.com/1broseidon/compwm/internal/wm"
)

// property reads name from win. An unset property is not an error: the
// reply is nil.
func (c *Connection) property(win xproto.Window, name string) (*xproto.GetPropertyReply, error) {
	reply, err := xproto.GetProperty(c.XUtil.Conn(), false, win, c.Atom(name),
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, fmt.Errorf("get %s of %d: %w", name, win, err)
	}
	if reply.Format == 0 {
		return nil, nil
	}
	return reply, nil
}

// SizeHints returns nil when the client set no WM_NORMAL_HINTS.
func (c *Connection) SizeHints(win xproto.Window) (*wm.SizeHints, error) {
	reply, err := c.property(win, wm.AtomWMNormalHints)
	if err != nil || reply == nil {
		return nil, err
	}
	nh, err := icccm.WmNormalHintsGet(c.XUtil, win)
	if err != nil {
		return nil, err
	}

	hints := &wm.SizeHints{}
	if nh.Flags&icccm.SizeHintPMinSize != 0 {
		hints.MinWidth, hints.MinHeight = int(nh.MinWidth), int(nh.MinHeight)
	}
	if nh.Flags&icccm.SizeHintPMaxSize != 0 {
		hints.MaxWidth, hints.MaxHeight = int(nh.MaxWidth), int(nh.MaxHeight)
	}
	if nh.Flags&icccm.SizeHintPBaseSize != 0 {
		hints.BaseWidth, hints.BaseHeight = int(nh.BaseWidth), int(nh.BaseHeight)
	}
	if nh.Flags&icccm.SizeHintPResizeInc != 0 {
		hints.WidthInc, hints.HeightInc = int(nh.WidthInc), int(nh.HeightInc)
	}
	return hints, nil
}

// TransientFor returns 0 when the window is not a transient.
func (c *Connection) TransientFor(win xproto.Window) (xproto.Window, error) {
	reply, err := c.property(win, wm.AtomWMTransientFor)
	if err != nil || reply == nil {
		return 0, err
	}
	return xprop.PropValWindow(reply, nil)
}

func (c *Connection) Protocols(win xproto.Window) ([]string, error) {
	return c.atomList(win, wm.AtomWMProtocols)
}

func (c *Connection) WindowType(win xproto.Window) ([]string, error) {
	return c.atomList(win, wm.AtomNetWMWindowType)
}

func (c *Connection) WindowState(win xproto.Window) ([]string, error) {
	return c.atomList(win, wm.AtomNetWMState)
}

func (c *Connection) atomList(win xproto.Window, name string) ([]string, error) {
	reply, err := c.property(win, name)
	if err != nil || reply == nil {
		return nil, err
	}
	return xprop.PropValAtoms(c.XUtil, reply, nil)
}

func (c *Connection) Opacity(win xproto.Window) (float64, bool, error) {
	reply, err := c.property(win, wm.AtomNetWMWindowOpacity)
	if err != nil || reply == nil {
		return 0, false, err
	}
	raw, err := xprop.PropValNum(reply, nil)
	if err != nil {
		return 0, false, err
	}
	return float64(uint32(raw)) / float64(0xffffffff), true, nil
}

// ShapeRects returns the bounding shape of win, or nil when the window has
// the default rectangular shape.
func (c *Connection) ShapeRects(win xproto.Window) ([]wm.Rect, error) {
	extents, err := shape.QueryExtents(c.XUtil.Conn(), win).Reply()
	if err != nil {
		return nil, fmt.Errorf("query shape extents of %d: %w", win, err)
	}
	if !extents.BoundingShaped {
		return nil, nil
	}
	reply, err := shape.GetRectangles(c.XUtil.Conn(), win, shape.SkBounding).Reply()
	if err != nil {
		return nil, fmt.Errorf("get shape rectangles of %d: %w", win, err)
	}
	rects := make([]wm.Rect, 0, len(reply.Rectangles))
	for _, r := range reply.Rectangles {
		rects = append(rects, wm.Rect{
			X:      int(r.X),
			Y:      int(r.Y),
			Width:  int(r.Width),
			Height: int(r.Height),
		})
	}
	return rects, nil
}

func (c *Connection) SetWindowState(win xproto.Window, states []string) error {
	return ewmh.WmStateSet(c.XUtil, win, states)
}

func (c *Connection) SetWMState(win xproto.Window, state uint) error {
	return icccm.WmStateSet(c.XUtil, win, &icccm.WmState{State: state})
}

func (c *Connection) SetClientList(wins []xproto.Window) error {
	return ewmh.ClientListSet(c.XUtil, wins)
}

func (c *Connection) SetClientListStacking(wins []xproto.Window) error {
	return ewmh.ClientListStackingSet(c.XUtil, wins)
}

func (c *Connection) SetActiveWindow(win xproto.Window) error {
	return ewmh.ActiveWindowSet(c.XUtil, win)
}
