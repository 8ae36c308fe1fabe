package x11

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"

	"github.com/1broseidon/compwm/internal/wm"
)

// sourcePager marks client requests as coming from a pager or other
// direct user action.
const sourcePager = 2

// RequestActivation asks the running window manager to activate and raise
// win by sending _NET_ACTIVE_WINDOW to the root window.
func (c *Connection) RequestActivation(win xproto.Window) error {
	return c.sendRootMessage(win, wm.AtomNetActiveWindow,
		[]uint32{sourcePager, uint32(xproto.TimeCurrentTime), 0, 0, 0})
}

// RequestState asks the window manager to add, remove or toggle a
// _NET_WM_STATE atom on win.
func (c *Connection) RequestState(win xproto.Window, action uint32, state string) error {
	return c.sendRootMessage(win, wm.AtomNetWMState,
		[]uint32{action, uint32(c.Atom(state)), 0, sourcePager, 0})
}

func (c *Connection) sendRootMessage(win xproto.Window, typ string, data []uint32) error {
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   c.Atom(typ),
		Data:   xproto.ClientMessageDataUnionData32New(data),
	}

	return xproto.SendEventChecked(
		c.XUtil.Conn(),
		false,
		c.root,
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes()),
	).Check()
}

// FindWindowByTitle searches the EWMH client list for a window whose
// _NET_WM_NAME contains the given substring. Returns the first match.
func (c *Connection) FindWindowByTitle(substring string) (xproto.Window, error) {
	if substring == "" {
		return 0, fmt.Errorf("empty title")
	}
	clients, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		return 0, fmt.Errorf("failed to get client list: %w", err)
	}
	for _, win := range clients {
		name, err := ewmh.WmNameGet(c.XUtil, win)
		if err != nil {
			continue
		}
		if strings.Contains(name, substring) {
			return win, nil
		}
	}
	return 0, fmt.Errorf("no window found with title containing %q", substring)
}

// WindowTitle returns the window's _NET_WM_NAME, or WM_NAME when the
// client sets no EWMH name.
func (c *Connection) WindowTitle(win xproto.Window) string {
	if name, err := ewmh.WmNameGet(c.XUtil, win); err == nil && name != "" {
		return name
	}
	name, _ := icccm.WmNameGet(c.XUtil, win)
	return name
}

// resolveWindow accepts a decimal or 0x-prefixed window id, or else a
// title substring.
func (c *Connection) resolveWindow(target string) (xproto.Window, error) {
	if id, err := strconv.ParseUint(target, 0, 32); err == nil {
		return xproto.Window(id), nil
	}
	return c.FindWindowByTitle(target)
}

// ActivateStandalone activates the window named by target (id or title
// substring) using a new temporary X11 connection.
func ActivateStandalone(target string) (xproto.Window, error) {
	conn, err := newClientConnection()
	if err != nil {
		return 0, fmt.Errorf("failed to connect to X11: %w", err)
	}
	defer conn.Close()

	win, err := conn.resolveWindow(target)
	if err != nil {
		return 0, err
	}
	return win, conn.RequestActivation(win)
}

// ToggleFullscreenStandalone toggles _NET_WM_STATE_FULLSCREEN on the window
// named by target using a new temporary X11 connection.
func ToggleFullscreenStandalone(target string) (xproto.Window, error) {
	conn, err := newClientConnection()
	if err != nil {
		return 0, fmt.Errorf("failed to connect to X11: %w", err)
	}
	defer conn.Close()

	win, err := conn.resolveWindow(target)
	if err != nil {
		return 0, err
	}
	return win, conn.RequestState(win, ewmh.StateToggle, wm.AtomNetWMStateFullscreen)
}
