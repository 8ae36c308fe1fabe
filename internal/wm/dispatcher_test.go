package wm_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/1broseidon/compwm/internal/scene"
	"github.com/1broseidon/compwm/internal/wm"
	"github.com/1broseidon/compwm/internal/wm/wmtest"
	"github.com/BurntSushi/xgb/xproto"
)

func TestStart_FailsWithoutManagerSelection(t *testing.T) {
	conn := wmtest.NewConn()
	conn.Selections = errors.New("selection held")
	d := wm.NewDispatcher(conn, scene.NewMemoryStage(), wm.Options{Logger: wmtest.Logger()})
	if err := d.Start(context.Background()); err == nil {
		t.Fatalf("expected Start to fail when the selection cannot be acquired")
	}
}

func TestStart_AdoptsExistingWindows(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, func(c *wmtest.Conn) {
		c.AddWindow(10, wm.Rect{X: 0, Y: 0, Width: 100, Height: 100})
		c.AddWindow(20, wm.Rect{X: 50, Y: 50, Width: 100, Height: 100})
		c.AddWindow(30, wm.Rect{X: 0, Y: 0, Width: 10, Height: 10})
		c.Attrs[10] = wm.Attributes{Mapped: true}
		c.Attrs[20] = wm.Attributes{Mapped: true}
		c.Attrs[30] = wm.Attributes{InputOnly: true}
	})

	if d.Window(30) != nil {
		t.Fatalf("input-only window should not be tracked")
	}
	if got, want := d.Stacking(), []xproto.Window{30, 20, 10}; !reflect.DeepEqual(got, want) {
		t.Fatalf("stacking = %v, want %v", got, want)
	}
	if got, want := conn.StackingList, []xproto.Window{10, 20}; !reflect.DeepEqual(got, want) {
		t.Fatalf("published stacking = %v, want %v", got, want)
	}
	if !d.Window(10).Mapped() || !d.Window(20).Mapped() {
		t.Fatalf("mapped windows should be marked mapped")
	}
	if !d.Window(10).Actor().Visible() {
		t.Fatalf("mapped window actor should be visible")
	}
}

func TestTrack_RepeatCallReturnsExisting(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	w := wmtest.Create(d, conn, 10, wm.Rect{Width: 10, Height: 10})
	if w == nil {
		t.Fatalf("expected window to be tracked")
	}
	if again := d.Track(10, false); again != w {
		t.Fatalf("Track twice returned a different window")
	}
}

func TestTrack_SkipsInternalAndInputWindows(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	d.AddInternalWindow(40)
	conn.AddWindow(40, wm.Rect{Width: 1, Height: 1})
	if d.Track(40, false) != nil {
		t.Fatalf("internal window should not be tracked")
	}

	claimer := &inputClaimer{win: 50}
	if err := d.RegisterConsumer(claimer); err != nil {
		t.Fatalf("RegisterConsumer: %v", err)
	}
	conn.AddWindow(50, wm.Rect{Width: 1, Height: 1})
	if d.Track(50, false) != nil {
		t.Fatalf("consumer-claimed input window should not be tracked")
	}
}

type inputClaimer struct {
	wm.NopConsumer
	win xproto.Window
}

func (c *inputClaimer) IsInputWindow(win xproto.Window) bool { return win == c.win }

func TestStacking_RestackNotifications(t *testing.T) {
	tests := []struct {
		name  string
		steps []any
		want  []xproto.Window
	}{
		{
			name:  "above foreign sibling",
			steps: []any{xproto.ConfigureNotifyEvent{Window: 10, AboveSibling: 99}},
			want:  []xproto.Window{10, 99, 30, 20},
		},
		{
			name:  "at bottom",
			steps: []any{xproto.ConfigureNotifyEvent{Window: 30, AboveSibling: 0}},
			want:  []xproto.Window{99, 20, 10, 30},
		},
		{
			name:  "unknown sibling falls back to bottom",
			steps: []any{xproto.ConfigureNotifyEvent{Window: 99, AboveSibling: 777}},
			want:  []xproto.Window{30, 20, 10, 99},
		},
		{
			name: "sequence",
			steps: []any{
				xproto.ConfigureNotifyEvent{Window: 10, AboveSibling: 99},
				xproto.ConfigureNotifyEvent{Window: 30, AboveSibling: 0},
				xproto.CirculateNotifyEvent{Window: 30, Place: xproto.PlaceOnTop},
				xproto.ConfigureNotifyEvent{Window: 99, AboveSibling: 20},
			},
			want: []xproto.Window{30, 10, 99, 20},
		},
		{
			name: "circulate to bottom",
			steps: []any{
				xproto.CirculateNotifyEvent{Window: 99, Place: xproto.PlaceOnBottom},
			},
			want: []xproto.Window{30, 20, 10, 99},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, conn := wmtest.NewDispatcher(t, func(c *wmtest.Conn) {
				c.AddWindow(10, wm.Rect{Width: 10, Height: 10})
				c.AddWindow(20, wm.Rect{Width: 10, Height: 10})
				c.AddWindow(30, wm.Rect{Width: 10, Height: 10})
				c.AddWindow(99, wm.Rect{Width: 10, Height: 10})
				c.Attrs[99] = wm.Attributes{InputOnly: true}
			})
			for _, step := range tt.steps {
				switch ev := step.(type) {
				case xproto.ConfigureNotifyEvent:
					ev.Event = conn.RootWin
					g := conn.Geoms[ev.Window]
					ev.Width, ev.Height = uint16(g.Width), uint16(g.Height)
					d.Dispatch(ev)
				case xproto.CirculateNotifyEvent:
					ev.Event = conn.RootWin
					d.Dispatch(ev)
				}
			}
			if got := d.Stacking(); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("stacking = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPublishedLists_FollowMappingAndStacking(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	wmtest.Create(d, conn, 10, wm.Rect{Width: 10, Height: 10})
	wmtest.Create(d, conn, 20, wm.Rect{Width: 10, Height: 10})
	wmtest.Map(d, conn, 20)
	wmtest.Map(d, conn, 10)

	if got, want := conn.ClientList, []xproto.Window{20, 10}; !reflect.DeepEqual(got, want) {
		t.Fatalf("client list = %v, want %v", got, want)
	}
	if got, want := conn.StackingList, []xproto.Window{10, 20}; !reflect.DeepEqual(got, want) {
		t.Fatalf("stacking list = %v, want %v", got, want)
	}

	d.Dispatch(xproto.ConfigureNotifyEvent{Event: conn.RootWin, Window: 10, AboveSibling: 20, Width: 10, Height: 10})
	if got, want := conn.StackingList, []xproto.Window{20, 10}; !reflect.DeepEqual(got, want) {
		t.Fatalf("stacking list after restack = %v, want %v", got, want)
	}

	d.Dispatch(xproto.UnmapNotifyEvent{Event: conn.RootWin, Window: 20})
	if got, want := conn.ClientList, []xproto.Window{10}; !reflect.DeepEqual(got, want) {
		t.Fatalf("client list after unmap = %v, want %v", got, want)
	}
	if d.Window(20).Actor().Visible() {
		t.Fatalf("unmapped window actor should be hidden")
	}
	if conn.WMStates[20] != wm.StateWithdrawn {
		t.Fatalf("WM_STATE = %d, want withdrawn", conn.WMStates[20])
	}
}

func TestDestroyFocusedWindow_ClearsActiveWindow(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	wmtest.Create(d, conn, 10, wm.Rect{Width: 10, Height: 10})
	wmtest.Map(d, conn, 10)
	d.Dispatch(xproto.FocusInEvent{Event: 10, Mode: xproto.NotifyModeNormal, Detail: xproto.NotifyDetailNonlinear})
	if conn.Active != 10 {
		t.Fatalf("active = %d, want 10", conn.Active)
	}

	wmtest.Destroy(d, conn, 10)
	if conn.Active != 0 {
		t.Fatalf("active = %d after destroy, want 0", conn.Active)
	}
	if d.Window(10) != nil {
		t.Fatalf("destroyed window still tracked")
	}
	if len(conn.ClientList) != 0 {
		t.Fatalf("client list = %v after destroy, want empty", conn.ClientList)
	}
}

func TestFocusEvents_IgnoreGrabs(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	wmtest.Create(d, conn, 10, wm.Rect{Width: 10, Height: 10})
	wmtest.Map(d, conn, 10)
	d.Dispatch(xproto.FocusInEvent{Event: 10, Mode: xproto.NotifyModeGrab, Detail: xproto.NotifyDetailNonlinear})
	if conn.Active != 0 || d.Window(10).Focused() {
		t.Fatalf("grab focus change should be ignored")
	}
}

func TestMapRequest_FirstClaimWins(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	var log []string
	a := &recorder{name: "a", log: &log}
	b := &recorder{name: "b", log: &log, claim: true}
	c := &recorder{name: "c", log: &log, claim: true}
	for _, r := range []*recorder{a, b, c} {
		if err := d.RegisterConsumer(r); err != nil {
			t.Fatalf("RegisterConsumer: %v", err)
		}
	}

	conn.AddWindow(10, wm.Rect{Width: 10, Height: 10})
	d.Dispatch(xproto.MapRequestEvent{Parent: conn.RootWin, Window: 10})

	want := []string{"a:map-request", "b:map-request"}
	if !reflect.DeepEqual(log, want) {
		t.Fatalf("callbacks = %v, want %v", log, want)
	}
	if d.Window(10) == nil {
		t.Fatalf("map request should track the window")
	}
}

func TestMapRequest_UnclaimedIsNotMapped(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	var log []string
	if err := d.RegisterConsumer(&recorder{name: "a", log: &log}); err != nil {
		t.Fatalf("RegisterConsumer: %v", err)
	}
	conn.AddWindow(10, wm.Rect{Width: 10, Height: 10})
	d.Dispatch(xproto.MapRequestEvent{Parent: conn.RootWin, Window: 10})
	if d.Window(10).Mapped() {
		t.Fatalf("unclaimed window should stay unmapped")
	}
}

func TestRegistry_DuplicateAndAbsent(t *testing.T) {
	d, _ := wmtest.NewDispatcher(t, nil)
	var log []string
	r := &recorder{name: "r", log: &log}

	if err := d.RegisterWindowConsumer(10, r); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := d.RegisterWindowConsumer(10, r); !errors.Is(err, wm.ErrAlreadyRegistered) {
		t.Fatalf("duplicate registration error = %v, want ErrAlreadyRegistered", err)
	}
	if err := d.RegisterWindowConsumer(20, r); err != nil {
		t.Fatalf("same consumer under another key: %v", err)
	}
	if err := d.RegisterMessageConsumer(wm.MessageSetOpacity, r); err != nil {
		t.Fatalf("same consumer in another registry: %v", err)
	}

	d.UnregisterWindowConsumer(30, r)
	d.UnregisterPropertyConsumer(10, 5, r)
	d.UnregisterConsumer(r)
	if got := d.Snapshot().Consumers; got != 3 {
		t.Fatalf("consumers = %d, want 3", got)
	}

	d.UnregisterWindowConsumer(10, r)
	if got := d.Snapshot().Consumers; got != 2 {
		t.Fatalf("consumers after unregister = %d, want 2", got)
	}
}

func TestFanOut_ToleratesUnregisterMidIteration(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	wmtest.Create(d, conn, 10, wm.Rect{Width: 10, Height: 10})

	var log []string
	b := &recorder{name: "b", log: &log}
	a := &recorder{name: "a", log: &log}
	a.onEvent = func() { d.UnregisterWindowConsumer(10, b) }
	for _, r := range []*recorder{a, b} {
		if err := d.RegisterWindowConsumer(10, r); err != nil {
			t.Fatalf("RegisterWindowConsumer: %v", err)
		}
	}

	press := xproto.ButtonPressEvent{Event: 10, Detail: 1}
	d.Dispatch(press)
	d.Dispatch(press)

	want := []string{"a:button", "b:button", "a:button"}
	if !reflect.DeepEqual(log, want) {
		t.Fatalf("callbacks = %v, want %v", log, want)
	}
}

func TestDispatch_RejectsNestedDispatch(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	wmtest.Create(d, conn, 10, wm.Rect{Width: 10, Height: 10})
	wmtest.Create(d, conn, 20, wm.Rect{Width: 10, Height: 10})

	var log []string
	r := &recorder{name: "r", log: &log}
	r.onEvent = func() {
		d.Dispatch(xproto.MapNotifyEvent{Event: conn.RootWin, Window: 20})
	}
	if err := d.RegisterConsumer(r); err != nil {
		t.Fatalf("RegisterConsumer: %v", err)
	}

	wmtest.Map(d, conn, 10)
	if d.Window(20).Mapped() {
		t.Fatalf("nested dispatch should have been rejected")
	}
	if !d.Window(10).Mapped() {
		t.Fatalf("outer dispatch should complete")
	}
}

func TestCustomMessage_RoutedByType(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	var log []string
	r := &recorder{name: "r", log: &log}
	if err := d.RegisterMessageConsumer(wm.MessageSetOpacity, r); err != nil {
		t.Fatalf("RegisterMessageConsumer: %v", err)
	}

	atom := conn.Atom(wm.AtomMessage)
	d.Dispatch(wm.EncodeMessage(10, atom, wm.CustomMessage{Type: wm.MessageSetOpacity, Params: [4]int32{10, 50, 0}}))
	d.Dispatch(wm.EncodeMessage(10, atom, wm.CustomMessage{Type: wm.MessageReportMetrics}))

	want := []string{"r:message:set-opacity"}
	if !reflect.DeepEqual(log, want) {
		t.Fatalf("callbacks = %v, want %v", log, want)
	}
}

func TestDecodeMessage_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		ev   xproto.ClientMessageEvent
	}{
		{"wrong format", xproto.ClientMessageEvent{Format: 8, Data: xproto.ClientMessageDataUnionData8New(make([]byte, 20))}},
		{"zero type", xproto.ClientMessageEvent{Format: 32, Data: xproto.ClientMessageDataUnionData32New(make([]uint32, 5))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := wm.DecodeMessage(tt.ev); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestPropertyChange_RoutedByWindowAndAtom(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	wmtest.Create(d, conn, 10, wm.Rect{Width: 10, Height: 10})

	var log []string
	r := &recorder{name: "r", log: &log}
	atom := conn.Atom(wm.AtomNetWMWindowType)
	if err := d.RegisterPropertyConsumer(10, atom, r); err != nil {
		t.Fatalf("RegisterPropertyConsumer: %v", err)
	}

	d.Dispatch(xproto.PropertyNotifyEvent{Window: 10, Atom: atom, State: xproto.PropertyNewValue})
	d.Dispatch(xproto.PropertyNotifyEvent{Window: 10, Atom: conn.Atom(wm.AtomWMNormalHints)})
	d.Dispatch(xproto.PropertyNotifyEvent{Window: 20, Atom: atom})
	d.Dispatch(xproto.PropertyNotifyEvent{Window: 10, Atom: atom, State: xproto.PropertyDelete})

	want := []string{"r:property", "r:property-deleted"}
	if !reflect.DeepEqual(log, want) {
		t.Fatalf("callbacks = %v, want %v", log, want)
	}

	wmtest.Destroy(d, conn, 10)
	if got := d.Snapshot().Consumers; got != 0 {
		t.Fatalf("consumers after destroy = %d, want 0", got)
	}
}

func TestStateRequest_TogglesFullscreen(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	w := wmtest.Create(d, conn, 10, wm.Rect{Width: 10, Height: 10})

	request := func(action uint32) {
		data := []uint32{action, uint32(conn.Atom(wm.AtomNetWMStateFullscreen)), 0, 1, 0}
		d.Dispatch(xproto.ClientMessageEvent{
			Format: 32,
			Window: 10,
			Type:   conn.Atom(wm.AtomNetWMState),
			Data:   xproto.ClientMessageDataUnionData32New(data),
		})
	}

	request(wm.StateAdd)
	if !w.Fullscreen() {
		t.Fatalf("expected fullscreen after add")
	}
	if got, want := conn.States[10], []string{wm.AtomNetWMStateFullscreen}; !reflect.DeepEqual(got, want) {
		t.Fatalf("_NET_WM_STATE = %v, want %v", got, want)
	}
	request(wm.StateToggle)
	if w.Fullscreen() {
		t.Fatalf("expected toggle to clear fullscreen")
	}
	if len(conn.States[10]) != 0 {
		t.Fatalf("_NET_WM_STATE = %v, want empty", conn.States[10])
	}
}

func TestConfigureRequest_PassThroughForUnmappedWindow(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	wmtest.Create(d, conn, 10, wm.Rect{X: 0, Y: 0, Width: 10, Height: 10})

	d.Dispatch(xproto.ConfigureRequestEvent{
		Parent:    conn.RootWin,
		Window:    10,
		X:         5,
		Width:     300,
		ValueMask: xproto.ConfigWindowX | xproto.ConfigWindowWidth,
	})
	if got, want := conn.Geoms[10], (wm.Rect{X: 5, Y: 0, Width: 300, Height: 10}); got != want {
		t.Fatalf("geometry = %+v, want %+v", got, want)
	}
}

type keyCounter struct {
	downs, ups int
}

func (k *keyCounter) HandleKeyDown(xproto.Keysym, uint16) bool {
	k.downs++
	return true
}

func (k *keyCounter) HandleKeyUp(xproto.Keysym, uint16) bool {
	k.ups++
	return true
}

func TestKeys_AutorepeatReleaseIsSwallowed(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	conn.Keysyms[45] = 'k'
	keys := &keyCounter{}
	d.SetKeyHandler(keys)

	d.Dispatch(xproto.KeyPressEvent{Detail: 45, Time: 1})
	for ts := xproto.Timestamp(2); ts < 5; ts++ {
		d.Dispatch(xproto.KeyReleaseEvent{Detail: 45, Time: ts})
		d.Dispatch(xproto.KeyPressEvent{Detail: 45, Time: ts})
	}
	d.Dispatch(xproto.KeyReleaseEvent{Detail: 45, Time: 9})
	if keys.ups != 0 {
		t.Fatalf("release delivered before flush")
	}
	d.Flush()

	if keys.downs != 4 || keys.ups != 1 {
		t.Fatalf("downs=%d ups=%d, want 4 and 1", keys.downs, keys.ups)
	}
}

func TestKeys_ReleaseDeliveredBeforeNextEvent(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	conn.Keysyms[45] = 'k'
	keys := &keyCounter{}
	d.SetKeyHandler(keys)

	d.Dispatch(xproto.KeyPressEvent{Detail: 45, Time: 1})
	d.Dispatch(xproto.KeyReleaseEvent{Detail: 45, Time: 2})
	d.Dispatch(xproto.KeyPressEvent{Detail: 45, Time: 7})

	if keys.downs != 2 || keys.ups != 1 {
		t.Fatalf("downs=%d ups=%d, want 2 and 1", keys.downs, keys.ups)
	}
}

func TestResync_RebuildsFromTree(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, func(c *wmtest.Conn) {
		c.AddWindow(10, wm.Rect{Width: 10, Height: 10})
	})
	// A window the dispatcher never heard about, and one that vanished silently.
	conn.AddWindow(20, wm.Rect{Width: 10, Height: 10})
	conn.Attrs[20] = wm.Attributes{Mapped: true}
	conn.Tree = []xproto.Window{20}

	if err := d.Resync(); err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if d.Window(10) != nil {
		t.Fatalf("vanished window still tracked")
	}
	if w := d.Window(20); w == nil || !w.Mapped() {
		t.Fatalf("missed window not adopted")
	}
	if got, want := d.Stacking(), []xproto.Window{20}; !reflect.DeepEqual(got, want) {
		t.Fatalf("stacking = %v, want %v", got, want)
	}
}

func TestMapFade_AnimatesNewWindows(t *testing.T) {
	conn := wmtest.NewConn()
	stage := scene.NewMemoryStage()
	d := wm.NewDispatcher(conn, stage, wm.Options{Logger: wmtest.Logger(), MapFade: 150 * time.Millisecond})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	wmtest.Create(d, conn, 10, wm.Rect{Width: 10, Height: 10})
	wmtest.Map(d, conn, 10)

	anim, ok := d.Window(10).Actor().Animation(scene.PropOpacity)
	if !ok {
		t.Fatalf("expected an opacity animation")
	}
	if anim.From != 0 || anim.To != 1 || anim.Duration != 150*time.Millisecond {
		t.Fatalf("animation = %+v, want 0 -> 1 over 150ms", anim)
	}
}

// recorder is a consumer that logs callbacks in order.
type recorder struct {
	wm.NopConsumer
	name    string
	claim   bool
	log     *[]string
	onEvent func()
}

func (r *recorder) note(what string) {
	*r.log = append(*r.log, r.name+":"+what)
	if r.onEvent != nil {
		r.onEvent()
	}
}

func (r *recorder) HandleMapRequest(*wm.Window) bool {
	r.note("map-request")
	return r.claim
}

func (r *recorder) HandleMap(*wm.Window)   { r.note("map") }
func (r *recorder) HandleUnmap(*wm.Window) { r.note("unmap") }

func (r *recorder) HandleButtonPress(wm.ButtonEvent) { r.note("button") }

func (r *recorder) HandleCustomMessage(_ xproto.Window, m wm.CustomMessage) {
	r.note("message:" + m.Type.String())
}

func (r *recorder) HandlePropertyChange(_ xproto.Window, _ xproto.Atom, deleted bool) {
	if deleted {
		r.note("property-deleted")
		return
	}
	r.note("property")
}
