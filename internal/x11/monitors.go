package x11

import (
	"errors"
	"fmt"
	"slices"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"

	"github.com/1broseidon/compwm/internal/wm"
)

var errNoMonitors = errors.New("no monitors found")

// Monitor is an active RandR output.
type Monitor struct {
	Name string
	Area wm.Rect
}

// Monitors lists the outputs driven by an enabled CRTC.
func (c *Connection) Monitors() ([]Monitor, error) {
	xc := c.XUtil.Conn()
	if err := randr.Init(xc); err != nil {
		return nil, fmt.Errorf("randr init failed: %w", err)
	}
	res, err := randr.GetScreenResources(xc, c.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var monitors []Monitor
	for i, crtc := range res.Crtcs {
		info, err := randr.GetCrtcInfo(xc, crtc, res.ConfigTimestamp).Reply()
		if err != nil || info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
			continue
		}
		name := fmt.Sprintf("crtc-%d", i)
		if out, err := randr.GetOutputInfo(xc, info.Outputs[0], res.ConfigTimestamp).Reply(); err == nil {
			name = string(out.Name)
		}
		monitors = append(monitors, Monitor{
			Name: name,
			Area: wm.Rect{X: int(info.X), Y: int(info.Y), Width: int(info.Width), Height: int(info.Height)},
		})
	}
	return monitors, nil
}

// PlacementArea returns the work area of the monitor under the pointer,
// else the active window's monitor, else the first one. Space reserved by
// dock struts is excluded.
func (c *Connection) PlacementArea() (wm.Rect, error) {
	monitors, err := c.Monitors()
	if err != nil {
		return wm.Rect{}, err
	}
	if len(monitors) == 0 {
		return wm.Rect{}, errNoMonitors
	}

	mon, ok := Monitor{}, false
	if x, y, err := c.pointer(); err == nil {
		mon, ok = monitorAt(monitors, x, y)
	}
	if !ok {
		if active, err := ewmh.ActiveWindowGet(c.XUtil); err == nil && active != 0 {
			mon, ok = c.monitorOf(monitors, active)
		}
	}
	if !ok {
		mon = monitors[0]
	}

	root, err := c.rootArea()
	if err != nil {
		return mon.Area, nil
	}
	return workArea(mon.Area, root, c.dockStruts(root)), nil
}

// MonitorArea returns the full bounds of the monitor holding the centre of
// win, or of the first monitor. Fullscreen windows cover this area.
func (c *Connection) MonitorArea(win xproto.Window) (wm.Rect, error) {
	monitors, err := c.Monitors()
	if err != nil {
		return wm.Rect{}, err
	}
	if len(monitors) == 0 {
		return wm.Rect{}, errNoMonitors
	}
	if mon, ok := c.monitorOf(monitors, win); ok {
		return mon.Area, nil
	}
	return monitors[0].Area, nil
}

func (c *Connection) pointer() (int, int, error) {
	p, err := xproto.QueryPointer(c.XUtil.Conn(), c.root).Reply()
	if err != nil {
		return 0, 0, err
	}
	return int(p.RootX), int(p.RootY), nil
}

func (c *Connection) rootArea() (wm.Rect, error) {
	g, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(c.root)).Reply()
	if err != nil {
		return wm.Rect{}, err
	}
	return wm.Rect{Width: int(g.Width), Height: int(g.Height)}, nil
}

// monitorOf finds the monitor holding the centre of win.
func (c *Connection) monitorOf(monitors []Monitor, win xproto.Window) (Monitor, bool) {
	xc := c.XUtil.Conn()
	g, err := xproto.GetGeometry(xc, xproto.Drawable(win)).Reply()
	if err != nil {
		return Monitor{}, false
	}
	pos, err := xproto.TranslateCoordinates(xc, win, c.root, 0, 0).Reply()
	if err != nil {
		return Monitor{}, false
	}
	return monitorAt(monitors, int(pos.DstX)+int(g.Width)/2, int(pos.DstY)+int(g.Height)/2)
}

// dockStruts collects the reservations of every dock in the client list.
// A dock with only _NET_WM_STRUT reserves its edges along the whole root.
func (c *Connection) dockStruts(root wm.Rect) []ewmh.WmStrutPartial {
	clients, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		return nil
	}
	var struts []ewmh.WmStrutPartial
	for _, win := range clients {
		types, err := ewmh.WmWindowTypeGet(c.XUtil, win)
		if err != nil || !slices.Contains(types, "_NET_WM_WINDOW_TYPE_DOCK") {
			continue
		}
		if sp, err := ewmh.WmStrutPartialGet(c.XUtil, win); err == nil {
			struts = append(struts, *sp)
		} else if s, err := ewmh.WmStrutGet(c.XUtil, win); err == nil {
			struts = append(struts, fullStrut(s, root))
		}
	}
	return struts
}

func fullStrut(s *ewmh.WmStrut, root wm.Rect) ewmh.WmStrutPartial {
	w, h := uint(max(root.Width-1, 0)), uint(max(root.Height-1, 0))
	return ewmh.WmStrutPartial{
		Left: s.Left, Right: s.Right, Top: s.Top, Bottom: s.Bottom,
		LeftEndY: h, RightEndY: h, TopEndX: w, BottomEndX: w,
	}
}

// workArea shrinks mon by the part of each strut that overlaps it. Struts
// are measured from the edges of root; each edge keeps its deepest
// reservation.
func workArea(mon, root wm.Rect, struts []ewmh.WmStrutPartial) wm.Rect {
	var left, right, top, bottom int
	for _, sp := range struts {
		left = max(left, overlap(mon, span(0, int(sp.LeftStartY), int(sp.Left), int(sp.LeftEndY)+1)).Width)
		right = max(right, overlap(mon, span(root.Width-int(sp.Right), int(sp.RightStartY), root.Width, int(sp.RightEndY)+1)).Width)
		top = max(top, overlap(mon, span(int(sp.TopStartX), 0, int(sp.TopEndX)+1, int(sp.Top))).Height)
		bottom = max(bottom, overlap(mon, span(int(sp.BottomStartX), root.Height-int(sp.Bottom), int(sp.BottomEndX)+1, root.Height)).Height)
	}
	return wm.Rect{
		X:      mon.X + left,
		Y:      mon.Y + top,
		Width:  max(mon.Width-left-right, 1),
		Height: max(mon.Height-top-bottom, 1),
	}
}

// span builds the rectangle [x1,x2)x[y1,y2). A strut of zero depth
// reserves nothing.
func span(x1, y1, x2, y2 int) wm.Rect {
	if x2 <= x1 || y2 <= y1 {
		return wm.Rect{}
	}
	return wm.Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// overlap returns the intersection of a and b, or the zero Rect.
func overlap(a, b wm.Rect) wm.Rect {
	x1, y1 := max(a.X, b.X), max(a.Y, b.Y)
	x2, y2 := min(a.X+a.Width, b.X+b.Width), min(a.Y+a.Height, b.Y+b.Height)
	if x2 <= x1 || y2 <= y1 {
		return wm.Rect{}
	}
	return wm.Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func monitorAt(monitors []Monitor, x, y int) (Monitor, bool) {
	for _, m := range monitors {
		a := m.Area
		if x >= a.X && x < a.X+a.Width && y >= a.Y && y < a.Y+a.Height {
			return m, true
		}
	}
	return Monitor{}, false
}
