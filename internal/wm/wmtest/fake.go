// Package wmtest provides an in-memory X server for testing code built on
// package wm.
package wmtest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/1broseidon/compwm/internal/scene"
	"github.com/1broseidon/compwm/internal/wm"
	"github.com/BurntSushi/xgb/xproto"
)

// ErrGone is returned for requests naming a window the fake does not hold.
var ErrGone = errors.New("window gone")

// StackCall records one StackWindow request.
type StackCall struct {
	Win     xproto.Window
	Sibling xproto.Window
	Mode    byte
}

// SentMessage records one SendClientMessage request.
type SentMessage struct {
	Win  xproto.Window
	Type xproto.Atom
	Data [5]uint32
}

// ButtonGrab records one GrabButton request.
type ButtonGrab struct {
	Win    xproto.Window
	Button byte
	Mods   uint16
	Sync   bool
}

// Conn is a fake wm.Conn. Tests seed the exported maps and inspect the
// recorded requests. It is not safe for concurrent use.
type Conn struct {
	RootWin xproto.Window
	nextID  xproto.Window

	atoms map[string]xproto.Atom
	names map[xproto.Atom]string

	Tree        []xproto.Window
	Attrs       map[xproto.Window]wm.Attributes
	Geoms       map[xproto.Window]wm.Rect
	Hints       map[xproto.Window]*wm.SizeHints
	Transient   map[xproto.Window]xproto.Window
	WMProtocols map[xproto.Window][]string
	Types       map[xproto.Window][]string
	States      map[xproto.Window][]string
	WMStates    map[xproto.Window]uint
	Shapes      map[xproto.Window][]wm.Rect
	Keysyms     map[xproto.Keycode]xproto.Keysym

	// Selections is returned by AcquireManagerSelections.
	Selections error

	Mapped       []xproto.Window
	Stacked      []StackCall
	Messages     []SentMessage
	Killed       []xproto.Window
	Grabs        []ButtonGrab
	Replays      int
	Focused      xproto.Window
	Active       xproto.Window
	ClientList   []xproto.Window
	StackingList []xproto.Window
}

var _ wm.Conn = (*Conn)(nil)

// NewConn returns an empty fake server with every wm atom interned.
func NewConn() *Conn {
	c := &Conn{
		RootWin:     1,
		nextID:      0x1000,
		atoms:       make(map[string]xproto.Atom),
		names:       make(map[xproto.Atom]string),
		Attrs:       make(map[xproto.Window]wm.Attributes),
		Geoms:       make(map[xproto.Window]wm.Rect),
		Hints:       make(map[xproto.Window]*wm.SizeHints),
		Transient:   make(map[xproto.Window]xproto.Window),
		WMProtocols: make(map[xproto.Window][]string),
		Types:       make(map[xproto.Window][]string),
		States:      make(map[xproto.Window][]string),
		WMStates:    make(map[xproto.Window]uint),
		Shapes:      make(map[xproto.Window][]wm.Rect),
		Keysyms:     make(map[xproto.Keycode]xproto.Keysym),
	}
	for i, name := range wm.AtomNames {
		atom := xproto.Atom(100 + i)
		c.atoms[name] = atom
		c.names[atom] = name
	}
	return c
}

// AddWindow creates an unmapped root child.
func (c *Conn) AddWindow(id xproto.Window, r wm.Rect) {
	c.Tree = append(c.Tree, id)
	c.Attrs[id] = wm.Attributes{}
	c.Geoms[id] = r
}

// RemoveWindow destroys a window in the fake server.
func (c *Conn) RemoveWindow(id xproto.Window) {
	for i, w := range c.Tree {
		if w == id {
			c.Tree = append(c.Tree[:i], c.Tree[i+1:]...)
			break
		}
	}
	delete(c.Attrs, id)
	delete(c.Geoms, id)
}

func (c *Conn) lookup(win xproto.Window) error {
	if _, ok := c.Geoms[win]; !ok {
		return ErrGone
	}
	return nil
}

func (c *Conn) Root() xproto.Window              { return c.RootWin }
func (c *Conn) Atom(name string) xproto.Atom     { return c.atoms[name] }
func (c *Conn) AtomName(atom xproto.Atom) string { return c.names[atom] }

func (c *Conn) CreateInternalWindow() (xproto.Window, error) {
	c.nextID++
	return c.nextID, nil
}

func (c *Conn) AcquireManagerSelections(context.Context, xproto.Window) error {
	return c.Selections
}

func (c *Conn) AnnounceSupport(xproto.Window, string, []string) error { return nil }

func (c *Conn) QueryTree() ([]xproto.Window, error) {
	return append([]xproto.Window(nil), c.Tree...), nil
}

func (c *Conn) Attributes(win xproto.Window) (wm.Attributes, error) {
	a, ok := c.Attrs[win]
	if !ok {
		return wm.Attributes{}, ErrGone
	}
	return a, nil
}

func (c *Conn) Geometry(win xproto.Window) (wm.Rect, error) {
	r, ok := c.Geoms[win]
	if !ok {
		return wm.Rect{}, ErrGone
	}
	return r, nil
}

func (c *Conn) SelectInput(xproto.Window, uint32) error { return nil }
func (c *Conn) SelectShapeInput(xproto.Window) error    { return nil }

func (c *Conn) MapWindow(win xproto.Window) error {
	if err := c.lookup(win); err != nil {
		return err
	}
	c.Mapped = append(c.Mapped, win)
	return nil
}

func (c *Conn) UnmapWindow(win xproto.Window) error { return c.lookup(win) }

func (c *Conn) ConfigureWindow(win xproto.Window, mask uint16, values []uint32) error {
	if err := c.lookup(win); err != nil {
		return err
	}
	r := c.Geoms[win]
	i := 0
	next := func() int {
		v := int(int32(values[i]))
		i++
		return v
	}
	if mask&xproto.ConfigWindowX != 0 {
		r.X = next()
	}
	if mask&xproto.ConfigWindowY != 0 {
		r.Y = next()
	}
	if mask&xproto.ConfigWindowWidth != 0 {
		r.Width = next()
	}
	if mask&xproto.ConfigWindowHeight != 0 {
		r.Height = next()
	}
	c.Geoms[win] = r
	return nil
}

func (c *Conn) MoveResizeWindow(win xproto.Window, x, y, width, height int) error {
	if err := c.lookup(win); err != nil {
		return err
	}
	c.Geoms[win] = wm.Rect{X: x, Y: y, Width: width, Height: height}
	return nil
}

func (c *Conn) StackWindow(win, sibling xproto.Window, mode byte) error {
	if err := c.lookup(win); err != nil {
		return err
	}
	c.Stacked = append(c.Stacked, StackCall{Win: win, Sibling: sibling, Mode: mode})
	return nil
}

func (c *Conn) SetInputFocus(win xproto.Window, _ xproto.Timestamp) error {
	if err := c.lookup(win); err != nil {
		return err
	}
	c.Focused = win
	return nil
}

func (c *Conn) SendClientMessage(win xproto.Window, typ xproto.Atom, data [5]uint32) error {
	c.Messages = append(c.Messages, SentMessage{Win: win, Type: typ, Data: data})
	return nil
}

func (c *Conn) SendConfigureNotify(win xproto.Window, _ wm.Rect) error { return c.lookup(win) }

func (c *Conn) KillClient(win xproto.Window) error {
	c.Killed = append(c.Killed, win)
	return nil
}

func (c *Conn) Redirect(win xproto.Window) error { return c.lookup(win) }

func (c *Conn) GrabButton(win xproto.Window, button byte, mods uint16, sync bool) error {
	c.Grabs = append(c.Grabs, ButtonGrab{Win: win, Button: button, Mods: mods, Sync: sync})
	return nil
}

func (c *Conn) AllowEvents(replay bool, _ xproto.Timestamp) error {
	if replay {
		c.Replays++
	}
	return nil
}

func (c *Conn) SizeHints(win xproto.Window) (*wm.SizeHints, error) { return c.Hints[win], nil }

func (c *Conn) TransientFor(win xproto.Window) (xproto.Window, error) {
	return c.Transient[win], nil
}

func (c *Conn) Protocols(win xproto.Window) ([]string, error) { return c.WMProtocols[win], nil }

func (c *Conn) WindowType(win xproto.Window) ([]string, error)  { return c.Types[win], nil }
func (c *Conn) WindowState(win xproto.Window) ([]string, error) { return c.States[win], nil }
func (c *Conn) Opacity(xproto.Window) (float64, bool, error)    { return 0, false, nil }

func (c *Conn) ShapeRects(win xproto.Window) ([]wm.Rect, error) { return c.Shapes[win], nil }

func (c *Conn) SetWindowState(win xproto.Window, states []string) error {
	c.States[win] = states
	return nil
}

func (c *Conn) SetWMState(win xproto.Window, state uint) error {
	c.WMStates[win] = state
	return nil
}

func (c *Conn) SetClientList(wins []xproto.Window) error {
	c.ClientList = wins
	return nil
}

func (c *Conn) SetClientListStacking(wins []xproto.Window) error {
	c.StackingList = wins
	return nil
}

func (c *Conn) SetActiveWindow(win xproto.Window) error {
	c.Active = win
	return nil
}

func (c *Conn) Keysym(code xproto.Keycode) xproto.Keysym { return c.Keysyms[code] }
func (c *Conn) RefreshKeyboardMapping() error            { return nil }

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewDispatcher returns a started dispatcher over a fake server prepared
// by setup, which may be nil.
func NewDispatcher(t testing.TB, setup func(c *Conn)) (*wm.Dispatcher, *Conn) {
	t.Helper()
	conn := NewConn()
	if setup != nil {
		setup(conn)
	}
	d := wm.NewDispatcher(conn, scene.NewMemoryStage(), wm.Options{Logger: Logger()})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return d, conn
}

// Create simulates a client creating a top-level window.
func Create(d *wm.Dispatcher, c *Conn, id xproto.Window, r wm.Rect) *wm.Window {
	c.AddWindow(id, r)
	d.Dispatch(xproto.CreateNotifyEvent{
		Parent: c.RootWin, Window: id,
		X: int16(r.X), Y: int16(r.Y), Width: uint16(r.Width), Height: uint16(r.Height),
	})
	return d.Window(id)
}

// RequestMap simulates a client asking to be mapped. The server's
// MapNotify follows when a consumer actually mapped the window.
func RequestMap(d *wm.Dispatcher, c *Conn, id xproto.Window) {
	n := len(c.Mapped)
	d.Dispatch(xproto.MapRequestEvent{Parent: c.RootWin, Window: id})
	if len(c.Mapped) > n {
		Map(d, c, id)
	}
}

// Map simulates the server mapping a window.
func Map(d *wm.Dispatcher, c *Conn, id xproto.Window) {
	a := c.Attrs[id]
	a.Mapped = true
	c.Attrs[id] = a
	d.Dispatch(xproto.MapNotifyEvent{Event: c.RootWin, Window: id})
}

// Unmap simulates the server unmapping a window.
func Unmap(d *wm.Dispatcher, c *Conn, id xproto.Window) {
	a := c.Attrs[id]
	a.Mapped = false
	c.Attrs[id] = a
	d.Dispatch(xproto.UnmapNotifyEvent{Event: c.RootWin, Window: id})
}

// Destroy simulates a client destroying a window.
func Destroy(d *wm.Dispatcher, c *Conn, id xproto.Window) {
	c.RemoveWindow(id)
	d.Dispatch(xproto.DestroyNotifyEvent{Event: c.RootWin, Window: id})
}

// FocusIn simulates the server moving the focus to id.
func FocusIn(d *wm.Dispatcher, id xproto.Window) {
	d.Dispatch(xproto.FocusInEvent{Event: id, Mode: xproto.NotifyModeNormal, Detail: xproto.NotifyDetailNonlinear})
}
