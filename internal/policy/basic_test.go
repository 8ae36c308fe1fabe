package policy

import (
	"reflect"
	"testing"
	"time"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/compwm/internal/wm"
	"github.com/1broseidon/compwm/internal/wm/wmtest"
)

var testArea = wm.Rect{X: 0, Y: 0, Width: 1000, Height: 800}

func newTestPolicy(t *testing.T, opts Options, setup func(c *wmtest.Conn)) (*wm.Dispatcher, *wmtest.Conn, *Basic) {
	t.Helper()
	d, conn := wmtest.NewDispatcher(t, setup)
	opts.Logger = wmtest.Logger()
	if opts.PlacementArea == nil {
		opts.PlacementArea = func() (wm.Rect, error) { return testArea, nil }
	}
	b := NewBasic(d, opts)
	if err := b.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	t.Cleanup(b.Detach)
	return d, conn, b
}

func mapWindow(d *wm.Dispatcher, conn *wmtest.Conn, id xproto.Window, r wm.Rect) *wm.Window {
	w := wmtest.Create(d, conn, id, r)
	wmtest.RequestMap(d, conn, id)
	wmtest.FocusIn(d, conn.Focused)
	return w
}

func TestMapRequest_Placement(t *testing.T) {
	tests := []struct {
		name   string
		layout LayoutMode
		in     []wm.Rect
		want   []wm.Rect
	}{
		{
			name: "centered",
			in:   []wm.Rect{{Width: 200, Height: 100}},
			want: []wm.Rect{{X: 400, Y: 350, Width: 200, Height: 100}},
		},
		{
			name: "client position kept",
			in:   []wm.Rect{{X: 50, Y: 60, Width: 200, Height: 100}},
			want: []wm.Rect{{X: 50, Y: 60, Width: 200, Height: 100}},
		},
		{
			name: "oversized window shrunk to area",
			in:   []wm.Rect{{Width: 3000, Height: 100}},
			want: []wm.Rect{{X: 0, Y: 350, Width: 1000, Height: 100}},
		},
		{
			name:   "cascade",
			layout: LayoutCascade,
			in:     []wm.Rect{{Width: 200, Height: 100}, {Width: 200, Height: 100}},
			want:   []wm.Rect{{X: 0, Y: 0, Width: 200, Height: 100}, {X: 32, Y: 32, Width: 200, Height: 100}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, conn, b := newTestPolicy(t, Options{}, nil)
			if err := b.SetLayout(tt.layout); err != nil {
				t.Fatalf("SetLayout: %v", err)
			}
			for i, r := range tt.in {
				id := xproto.Window(10 + i)
				w := mapWindow(d, conn, id, r)
				if got := w.ClientRect(); got != tt.want[i] {
					t.Fatalf("window %d at %+v, want %+v", id, got, tt.want[i])
				}
				if got := conn.Geoms[id]; got != tt.want[i] {
					t.Fatalf("server geometry of %d = %+v, want %+v", id, got, tt.want[i])
				}
				if w.CompositedX() != tt.want[i].X || w.CompositedY() != tt.want[i].Y {
					t.Fatalf("actor of %d at (%d,%d), want (%d,%d)", id,
						w.CompositedX(), w.CompositedY(), tt.want[i].X, tt.want[i].Y)
				}
				if !w.Mapped() {
					t.Fatalf("window %d not mapped", id)
				}
			}
		})
	}
}

func TestMapRequest_OverrideNotClaimed(t *testing.T) {
	d, conn, _ := newTestPolicy(t, Options{}, nil)
	conn.AddWindow(10, wm.Rect{Width: 10, Height: 10})
	d.Dispatch(xproto.CreateNotifyEvent{Parent: conn.RootWin, Window: 10, Width: 10, Height: 10, OverrideRedirect: true})
	wmtest.RequestMap(d, conn, 10)
	if len(conn.Mapped) != 0 {
		t.Fatalf("override-redirect window mapped by policy: %v", conn.Mapped)
	}
}

func TestMap_GrabsAndFocuses(t *testing.T) {
	d, conn, _ := newTestPolicy(t, Options{}, nil)
	mapWindow(d, conn, 10, wm.Rect{Width: 100, Height: 100})

	want := []wmtest.ButtonGrab{
		{Win: 10, Button: 1, Mods: xproto.ModMaskAny, Sync: true},
		{Win: 10, Button: 1, Mods: xproto.ModMask1, Sync: false},
	}
	if !reflect.DeepEqual(conn.Grabs, want) {
		t.Fatalf("grabs = %+v, want %+v", conn.Grabs, want)
	}
	if conn.Focused != 10 {
		t.Fatalf("focused = %d, want 10", conn.Focused)
	}
	if d.Active() == nil || d.Active().ID() != 10 {
		t.Fatalf("active window not updated")
	}
}

func TestMap_DocksNotPlacedOrFocused(t *testing.T) {
	d, conn, _ := newTestPolicy(t, Options{}, func(c *wmtest.Conn) {
		c.Types[10] = []string{typeDock}
	})
	w := wmtest.Create(d, conn, 10, wm.Rect{Width: 1000, Height: 30})
	wmtest.RequestMap(d, conn, 10)
	if got := w.ClientRect(); got != (wm.Rect{Width: 1000, Height: 30}) {
		t.Fatalf("dock moved to %+v", got)
	}
	if conn.Focused != 0 {
		t.Fatalf("dock took focus")
	}
}

func TestUnmap_FocusesNextWindow(t *testing.T) {
	d, conn, _ := newTestPolicy(t, Options{}, nil)
	mapWindow(d, conn, 10, wm.Rect{Width: 100, Height: 100})
	mapWindow(d, conn, 20, wm.Rect{Width: 100, Height: 100})
	if conn.Focused != 20 {
		t.Fatalf("focused = %d, want 20", conn.Focused)
	}

	wmtest.Unmap(d, conn, 20)
	if conn.Focused != 10 {
		t.Fatalf("focus after unmap = %d, want 10", conn.Focused)
	}
}

func TestUnmap_TransientReturnsFocusToOwner(t *testing.T) {
	d, conn, _ := newTestPolicy(t, Options{}, func(c *wmtest.Conn) {
		c.Transient[30] = 10
	})
	mapWindow(d, conn, 10, wm.Rect{Width: 300, Height: 300})
	mapWindow(d, conn, 20, wm.Rect{Width: 100, Height: 100})
	mapWindow(d, conn, 30, wm.Rect{Width: 50, Height: 50})

	wmtest.Unmap(d, conn, 30)
	if conn.Focused != 10 {
		t.Fatalf("focus after transient unmap = %d, want owner 10", conn.Focused)
	}
}

func TestButtonPress_ClickToFocus(t *testing.T) {
	for _, follows := range []bool{true, false} {
		d, conn, _ := newTestPolicy(t, Options{FocusFollowsClick: follows}, nil)
		mapWindow(d, conn, 10, wm.Rect{Width: 100, Height: 100})
		mapWindow(d, conn, 20, wm.Rect{Width: 100, Height: 100})

		replays := conn.Replays
		d.Dispatch(xproto.ButtonPressEvent{Event: 10, Detail: 1, Time: 7})
		if conn.Replays != replays+1 {
			t.Fatalf("click was not replayed to the client")
		}
		want := xproto.Window(20)
		if follows {
			want = 10
		}
		if conn.Focused != want {
			t.Fatalf("follows=%v: focused = %d, want %d", follows, conn.Focused, want)
		}
	}
}

func TestAltDrag_AppliesFinalPositionOnRelease(t *testing.T) {
	d, conn, _ := newTestPolicy(t, Options{}, nil)
	w := mapWindow(d, conn, 10, wm.Rect{X: 100, Y: 100, Width: 100, Height: 100})

	d.Dispatch(xproto.ButtonPressEvent{Event: 10, Detail: 1, State: xproto.ModMask1, RootX: 10, RootY: 10})
	d.Dispatch(xproto.MotionNotifyEvent{Event: 10, State: xproto.ModMask1, RootX: 30, RootY: 50})
	d.Dispatch(xproto.ButtonReleaseEvent{Event: 10, Detail: 1, State: xproto.ModMask1, RootX: 40, RootY: 60})

	if got := w.ClientRect(); got.X != 130 || got.Y != 150 {
		t.Fatalf("window at (%d,%d) after drag, want (130,150)", got.X, got.Y)
	}
	if w.CompositedX() != 130 || w.CompositedY() != 150 {
		t.Fatalf("actor at (%d,%d) after drag, want (130,150)", w.CompositedX(), w.CompositedY())
	}

	// Motion after the release is ignored.
	d.Dispatch(xproto.MotionNotifyEvent{Event: 10, RootX: 500, RootY: 500})
	if got := w.ClientRect(); got.X != 130 || got.Y != 150 {
		t.Fatalf("window moved after release to (%d,%d)", got.X, got.Y)
	}
}

func TestAltDrag_FlushesThroughPost(t *testing.T) {
	posted := make(chan func(), 16)
	opts := Options{
		MotionFlushHz: 200,
		Post: func(fn func()) {
			select {
			case posted <- fn:
			default:
			}
		},
	}
	d, conn, _ := newTestPolicy(t, opts, nil)
	w := mapWindow(d, conn, 10, wm.Rect{X: 100, Y: 100, Width: 100, Height: 100})

	d.Dispatch(xproto.ButtonPressEvent{Event: 10, Detail: 1, State: xproto.ModMask1, RootX: 0, RootY: 0})
	d.Dispatch(xproto.MotionNotifyEvent{Event: 10, State: xproto.ModMask1, RootX: 5, RootY: 7})

	select {
	case fn := <-posted:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatalf("no flush posted")
	}
	if got := w.ClientRect(); got.X != 105 || got.Y != 107 {
		t.Fatalf("window at (%d,%d) after flush, want (105,107)", got.X, got.Y)
	}

	wmtest.Unmap(d, conn, 10)
	d.Dispatch(xproto.ButtonReleaseEvent{Event: 10, Detail: 1, RootX: 50, RootY: 50})
	if got := w.ClientRect(); got.X != 105 || got.Y != 107 {
		t.Fatalf("drag of unmapped window still applied: (%d,%d)", got.X, got.Y)
	}
}

func TestFullscreen_RequestCoversMonitorAndRestores(t *testing.T) {
	monitor := wm.Rect{X: 0, Y: 0, Width: 1920, Height: 1080}
	opts := Options{MonitorArea: func(xproto.Window) (wm.Rect, error) { return monitor, nil }}
	d, conn, _ := newTestPolicy(t, opts, nil)
	orig := wm.Rect{X: 100, Y: 100, Width: 200, Height: 100}
	w := mapWindow(d, conn, 10, orig)

	request := func(action uint32) {
		data := []uint32{action, uint32(conn.Atom(wm.AtomNetWMStateFullscreen)), 0, 1, 0}
		d.Dispatch(xproto.ClientMessageEvent{
			Format: 32,
			Window: 10,
			Type:   conn.Atom(wm.AtomNetWMState),
			Data:   xproto.ClientMessageDataUnionData32New(data),
		})
	}

	request(1)
	if got := w.ClientRect(); got != monitor {
		t.Fatalf("fullscreen window at %+v, want %+v", got, monitor)
	}
	request(0)
	if got := w.ClientRect(); got != orig {
		t.Fatalf("restored window at %+v, want %+v", got, orig)
	}
	if w.CompositedX() != orig.X || w.CompositedY() != orig.Y {
		t.Fatalf("actor not restored: (%d,%d)", w.CompositedX(), w.CompositedY())
	}
}

func TestConfigureRequest_ClampedToHints(t *testing.T) {
	d, conn, _ := newTestPolicy(t, Options{}, func(c *wmtest.Conn) {
		c.Hints[10] = &wm.SizeHints{MaxWidth: 250}
	})
	w := mapWindow(d, conn, 10, wm.Rect{X: 10, Y: 10, Width: 100, Height: 100})

	d.Dispatch(xproto.ConfigureRequestEvent{
		Window:    10,
		Width:     300,
		Height:    50,
		ValueMask: xproto.ConfigWindowWidth | xproto.ConfigWindowHeight,
	})
	want := wm.Rect{X: 10, Y: 10, Width: 250, Height: 50}
	if got := w.ClientRect(); got != want {
		t.Fatalf("window = %+v, want %+v", got, want)
	}
	if got := conn.Geoms[10]; got != want {
		t.Fatalf("server geometry = %+v, want %+v", got, want)
	}
}

func sendCustom(d *wm.Dispatcher, conn *wmtest.Conn, win xproto.Window, msg wm.CustomMessage) {
	d.Dispatch(wm.EncodeMessage(win, conn.Atom(wm.AtomMessage), msg))
}

func TestCustomMessages(t *testing.T) {
	d, conn, b := newTestPolicy(t, Options{}, nil)
	w := mapWindow(d, conn, 10, wm.Rect{Width: 100, Height: 100})

	sendCustom(d, conn, 10, wm.CustomMessage{Type: wm.MessageSetOpacity, Params: [4]int32{10, 50, 0}})
	if got := w.CompositedOpacity(); got != 0.5 {
		t.Fatalf("opacity = %v, want 0.5", got)
	}

	sendCustom(d, conn, 10, wm.CustomMessage{Type: wm.MessageSwitchLayoutMode, Params: [4]int32{int32(LayoutCascade)}})
	if b.Layout() != LayoutCascade {
		t.Fatalf("layout = %v, want cascade", b.Layout())
	}
	sendCustom(d, conn, 10, wm.CustomMessage{Type: wm.MessageSwitchLayoutMode, Params: [4]int32{7}})
	if b.Layout() != LayoutCascade {
		t.Fatalf("invalid layout accepted: %v", b.Layout())
	}

	sent := len(conn.Messages)
	sendCustom(d, conn, 10, wm.CustomMessage{Type: wm.MessageReportMetrics})
	if len(conn.Messages) != sent+1 {
		t.Fatalf("expected a metrics reply, got %v", conn.Messages[sent:])
	}
	reply := conn.Messages[sent]
	if reply.Win != 10 || reply.Type != conn.Atom(wm.AtomMessage) || reply.Data[0] != uint32(wm.MessageReportMetrics) {
		t.Fatalf("unexpected metrics reply %+v", reply)
	}
	if reply.Data[2] != 1 || reply.Data[3] != 1 {
		t.Fatalf("metrics windows/mapped = %d/%d, want 1/1", reply.Data[2], reply.Data[3])
	}
}

func TestActions(t *testing.T) {
	quit := 0
	d, conn, b := newTestPolicy(t, Options{Quit: func() { quit++ }}, func(c *wmtest.Conn) {
		c.WMProtocols[20] = []string{wm.AtomWMDeleteWindow}
	})
	mapWindow(d, conn, 10, wm.Rect{Width: 100, Height: 100})
	mapWindow(d, conn, 20, wm.Rect{Width: 100, Height: 100})
	mapWindow(d, conn, 30, wm.Rect{Width: 100, Height: 100})
	actions := b.Actions()

	if got := ActionNames(); len(got) != len(actions) {
		t.Fatalf("ActionNames() = %v, want %d names", got, len(actions))
	}

	actions[ActionCycleWindows]()
	if conn.Focused != 10 {
		t.Fatalf("cycle focused %d, want bottommost 10", conn.Focused)
	}

	wmtest.FocusIn(d, 20)
	actions[ActionCloseWindow]()
	last := conn.Messages[len(conn.Messages)-1]
	if last.Win != 20 || last.Data[0] != uint32(conn.Atom(wm.AtomWMDeleteWindow)) {
		t.Fatalf("expected WM_DELETE_WINDOW to 20, got %+v", last)
	}

	wmtest.FocusIn(d, 30)
	actions[ActionCloseWindow]()
	if !reflect.DeepEqual(conn.Killed, []xproto.Window{30}) {
		t.Fatalf("killed = %v, want [30]", conn.Killed)
	}

	actions[ActionLowerWindow]()
	lowered := conn.Stacked[len(conn.Stacked)-2]
	if lowered.Win != 30 || lowered.Mode != xproto.StackModeBelow {
		t.Fatalf("expected 30 lowered, got %+v", conn.Stacked)
	}
	if conn.Focused == 30 {
		t.Fatalf("lowered window kept the focus")
	}

	actions[ActionQuit]()
	if quit != 1 {
		t.Fatalf("quit called %d times, want 1", quit)
	}
}

func TestToggleFullscreenAction(t *testing.T) {
	monitor := wm.Rect{Width: 1280, Height: 720}
	opts := Options{MonitorArea: func(xproto.Window) (wm.Rect, error) { return monitor, nil }}
	d, conn, b := newTestPolicy(t, opts, nil)
	w := mapWindow(d, conn, 10, wm.Rect{X: 5, Y: 5, Width: 100, Height: 100})

	b.ToggleFullscreen()
	if !w.Fullscreen() || w.ClientRect() != monitor {
		t.Fatalf("fullscreen=%v rect=%+v, want fullscreen over %+v", w.Fullscreen(), w.ClientRect(), monitor)
	}
	if got := conn.States[10]; !reflect.DeepEqual(got, []string{wm.AtomNetWMStateFullscreen}) {
		t.Fatalf("_NET_WM_STATE = %v", got)
	}
	b.ToggleFullscreen()
	if w.Fullscreen() || w.ClientRect() != (wm.Rect{X: 5, Y: 5, Width: 100, Height: 100}) {
		t.Fatalf("toggle back left fullscreen=%v rect=%+v", w.Fullscreen(), w.ClientRect())
	}
}

func TestActivate(t *testing.T) {
	d, conn, b := newTestPolicy(t, Options{}, nil)
	mapWindow(d, conn, 10, wm.Rect{Width: 100, Height: 100})
	mapWindow(d, conn, 20, wm.Rect{Width: 100, Height: 100})

	if got := len(b.Managed()); got != 2 {
		t.Fatalf("Managed() has %d windows, want 2", got)
	}
	if !b.Activate(10) {
		t.Fatalf("Activate(10) = false")
	}
	if conn.Focused != 10 {
		t.Fatalf("focused %d, want 10", conn.Focused)
	}
	if b.Activate(99) {
		t.Fatalf("Activate of an unknown window should fail")
	}
}
