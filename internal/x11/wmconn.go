package x11

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/1broseidon/compwm/internal/wm"
)

// CreateInternalWindow creates the off-screen override-redirect window
// used as selection owner and _NET_SUPPORTING_WM_CHECK target.
func (c *Connection) CreateInternalWindow() (xproto.Window, error) {
	win, err := xwindow.Generate(c.XUtil)
	if err != nil {
		return 0, fmt.Errorf("allocate window id: %w", err)
	}
	err = win.CreateChecked(c.root, -1, -1, 1, 1,
		xproto.CwOverrideRedirect|xproto.CwEventMask,
		1, xproto.EventMaskPropertyChange)
	if err != nil {
		return 0, fmt.Errorf("create internal window: %w", err)
	}
	return win.Id, nil
}

// AnnounceSupport publishes the EWMH hints this window manager handles and
// points _NET_SUPPORTING_WM_CHECK at check on both the root and check.
func (c *Connection) AnnounceSupport(check xproto.Window, name string, supported []string) error {
	if err := ewmh.SupportingWmCheckSet(c.XUtil, c.root, check); err != nil {
		return fmt.Errorf("set _NET_SUPPORTING_WM_CHECK on root: %w", err)
	}
	if err := ewmh.SupportingWmCheckSet(c.XUtil, check, check); err != nil {
		return fmt.Errorf("set _NET_SUPPORTING_WM_CHECK on check window: %w", err)
	}
	if err := ewmh.WmNameSet(c.XUtil, check, name); err != nil {
		return fmt.Errorf("set _NET_WM_NAME on check window: %w", err)
	}
	if err := ewmh.SupportedSet(c.XUtil, supported); err != nil {
		return fmt.Errorf("set _NET_SUPPORTED: %w", err)
	}
	return nil
}

func (c *Connection) QueryTree() ([]xproto.Window, error) {
	tree, err := xproto.QueryTree(c.XUtil.Conn(), c.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("query tree: %w", err)
	}
	return tree.Children, nil
}

func (c *Connection) Attributes(win xproto.Window) (wm.Attributes, error) {
	attrs, err := xproto.GetWindowAttributes(c.XUtil.Conn(), win).Reply()
	if err != nil {
		return wm.Attributes{}, fmt.Errorf("get attributes of %d: %w", win, err)
	}
	return wm.Attributes{
		OverrideRedirect: attrs.OverrideRedirect,
		InputOnly:        attrs.Class == xproto.WindowClassInputOnly,
		Mapped:           attrs.MapState != xproto.MapStateUnmapped,
	}, nil
}

func (c *Connection) Geometry(win xproto.Window) (wm.Rect, error) {
	geom, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(win)).Reply()
	if err != nil {
		return wm.Rect{}, fmt.Errorf("get geometry of %d: %w", win, err)
	}
	return wm.Rect{
		X:      int(geom.X),
		Y:      int(geom.Y),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}, nil
}

func (c *Connection) SelectInput(win xproto.Window, mask uint32) error {
	return xproto.ChangeWindowAttributesChecked(c.XUtil.Conn(), win,
		xproto.CwEventMask, []uint32{mask}).Check()
}

func (c *Connection) SelectShapeInput(win xproto.Window) error {
	return shape.SelectInputChecked(c.XUtil.Conn(), win, true).Check()
}

func (c *Connection) MapWindow(win xproto.Window) error {
	return xproto.MapWindowChecked(c.XUtil.Conn(), win).Check()
}

func (c *Connection) UnmapWindow(win xproto.Window) error {
	return xproto.UnmapWindowChecked(c.XUtil.Conn(), win).Check()
}

func (c *Connection) ConfigureWindow(win xproto.Window, mask uint16, values []uint32) error {
	return xproto.ConfigureWindowChecked(c.XUtil.Conn(), win, mask, values).Check()
}

// MoveResizeWindow moves and resizes win with a single request.
func (c *Connection) MoveResizeWindow(win xproto.Window, x, y, width, height int) error {
	mask := uint16(xproto.ConfigWindowX | xproto.ConfigWindowY |
		xproto.ConfigWindowWidth | xproto.ConfigWindowHeight)
	values := []uint32{
		uint32(int32(x)),
		uint32(int32(y)),
		uint32(max(width, 1)),
		uint32(max(height, 1)),
	}
	return c.ConfigureWindow(win, mask, values)
}

func (c *Connection) StackWindow(win, sibling xproto.Window, mode byte) error {
	if sibling == 0 {
		return c.ConfigureWindow(win, xproto.ConfigWindowStackMode, []uint32{uint32(mode)})
	}
	mask := uint16(xproto.ConfigWindowSibling | xproto.ConfigWindowStackMode)
	return c.ConfigureWindow(win, mask, []uint32{uint32(sibling), uint32(mode)})
}

func (c *Connection) SetInputFocus(win xproto.Window, ts xproto.Timestamp) error {
	return xproto.SetInputFocusChecked(c.XUtil.Conn(), xproto.InputFocusPointerRoot, win, ts).Check()
}

// SendClientMessage delivers a format-32 client message to win itself,
// the way WM_PROTOCOLS messages are addressed.
func (c *Connection) SendClientMessage(win xproto.Window, typ xproto.Atom, data [5]uint32) error {
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   typ,
		Data:   xproto.ClientMessageDataUnionData32New(data[:]),
	}
	return xproto.SendEventChecked(c.XUtil.Conn(), false, win,
		xproto.EventMaskNoEvent, string(ev.Bytes())).Check()
}

// SendConfigureNotify tells the client where its window ended up when a
// ConfigureRequest was not honoured verbatim.
func (c *Connection) SendConfigureNotify(win xproto.Window, r wm.Rect) error {
	ev := xproto.ConfigureNotifyEvent{
		Event:  win,
		Window: win,
		X:      int16(r.X),
		Y:      int16(r.Y),
		Width:  uint16(r.Width),
		Height: uint16(r.Height),
	}
	return xproto.SendEventChecked(c.XUtil.Conn(), false, win,
		xproto.EventMaskStructureNotify, string(ev.Bytes())).Check()
}

func (c *Connection) KillClient(win xproto.Window) error {
	return xproto.KillClientChecked(c.XUtil.Conn(), uint32(win)).Check()
}

// Redirect moves win's contents off-screen for compositing. Windows that
// are already redirected by this client are left alone.
func (c *Connection) Redirect(win xproto.Window) error {
	err := composite.RedirectWindowChecked(c.XUtil.Conn(), win, composite.RedirectManual).Check()
	var accessErr xproto.AccessError
	if errors.As(err, &accessErr) {
		return nil
	}
	return err
}

// GrabButton grabs button with mods on win. A synchronous grab freezes
// the pointer until AllowEvents releases it.
func (c *Connection) GrabButton(win xproto.Window, button byte, mods uint16, sync bool) error {
	mode := byte(xproto.GrabModeAsync)
	if sync {
		mode = xproto.GrabModeSync
	}
	mask := uint16(xproto.EventMaskButtonPress | xproto.EventMaskButtonRelease |
		xproto.EventMaskButtonMotion)
	return xproto.GrabButtonChecked(c.XUtil.Conn(), false, win, mask,
		mode, xproto.GrabModeAsync, xproto.WindowNone, xproto.CursorNone,
		button, mods).Check()
}

// AllowEvents releases a synchronous pointer grab, replaying the frozen
// event to the client when replay is set.
func (c *Connection) AllowEvents(replay bool, ts xproto.Timestamp) error {
	mode := byte(xproto.AllowAsyncPointer)
	if replay {
		mode = xproto.AllowReplayPointer
	}
	return xproto.AllowEventsChecked(c.XUtil.Conn(), mode, ts).Check()
}
