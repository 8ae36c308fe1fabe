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

func checkTransients(t *testing.T, d *wm.Dispatcher) {
	t.Helper()
	if err := wm.CheckTransients(d); err != nil {
		t.Fatal(err)
	}
}

func TestTransient_CenteredAndFollowsOwner(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	owner := wmtest.Create(d, conn, 10, wm.Rect{X: 100, Y: 100, Width: 50, Height: 50})
	conn.Transient[20] = 10
	child := wmtest.Create(d, conn, 20, wm.Rect{X: 0, Y: 0, Width: 20, Height: 20})

	if child.TransientOwner() != 10 {
		t.Fatalf("owner = %d, want 10", child.TransientOwner())
	}
	if child.ClientX() != 115 || child.ClientY() != 115 {
		t.Fatalf("transient at (%d,%d), want (115,115)", child.ClientX(), child.ClientY())
	}
	wantStack := wmtest.StackCall{Win: 20, Sibling: 10, Mode: xproto.StackModeAbove}
	found := false
	for _, call := range conn.Stacked {
		if call == wantStack {
			found = true
		}
	}
	if !found {
		t.Fatalf("transient not stacked above owner: %v", conn.Stacked)
	}

	if err := owner.Move(130, 100, 0); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if child.ClientX() != 145 || child.ClientY() != 115 {
		t.Fatalf("transient at (%d,%d) after owner move, want (145,115)", child.ClientX(), child.ClientY())
	}
	if child.CompositedX() != 145 || child.CompositedY() != 115 {
		t.Fatalf("transient actor at (%d,%d), want (145,115)", child.CompositedX(), child.CompositedY())
	}
	if got := conn.Geoms[20]; got.X != 145 || got.Y != 115 {
		t.Fatalf("server geometry = %+v, want origin (145,115)", got)
	}
	checkTransients(t, d)
}

func TestTransient_OffsetRefreshedWhenTransientMoves(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	owner := wmtest.Create(d, conn, 10, wm.Rect{X: 100, Y: 100, Width: 50, Height: 50})
	conn.Transient[20] = 10
	child := wmtest.Create(d, conn, 20, wm.Rect{Width: 20, Height: 20})

	if err := child.MoveClient(0, 0); err != nil {
		t.Fatalf("MoveClient: %v", err)
	}
	if err := owner.MoveClient(110, 100); err != nil {
		t.Fatalf("MoveClient: %v", err)
	}
	if child.ClientX() != 10 || child.ClientY() != 0 {
		t.Fatalf("transient at (%d,%d), want (10,0)", child.ClientX(), child.ClientY())
	}
}

func TestTransient_ScaleAndOpacityPropagate(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	owner := wmtest.Create(d, conn, 10, wm.Rect{X: 100, Y: 100, Width: 50, Height: 50})
	conn.Transient[20] = 10
	child := wmtest.Create(d, conn, 20, wm.Rect{Width: 20, Height: 20})

	owner.ScaleComposited(0.5, 0.5, 0)
	if child.CompositedScaleX() != 0.5 {
		t.Fatalf("transient scale = %v, want 0.5", child.CompositedScaleX())
	}
	// Offset (15,15) at half scale.
	if child.CompositedX() != 108 || child.CompositedY() != 108 {
		t.Fatalf("transient actor at (%d,%d), want (108,108)", child.CompositedX(), child.CompositedY())
	}

	owner.SetCompositedOpacity(0.25, 0)
	if child.CompositedOpacity() != 0.25 {
		t.Fatalf("transient opacity = %v, want 0.25", child.CompositedOpacity())
	}
}

func TestTransient_FadesInToOwnerOpacity(t *testing.T) {
	conn := wmtest.NewConn()
	d := wm.NewDispatcher(conn, scene.NewMemoryStage(), wm.Options{Logger: wmtest.Logger(), TransientFade: 200 * time.Millisecond})
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	owner := wmtest.Create(d, conn, 10, wm.Rect{X: 100, Y: 100, Width: 50, Height: 50})
	owner.SetCompositedOpacity(0.8, 0)
	conn.Transient[20] = 10
	child := wmtest.Create(d, conn, 20, wm.Rect{Width: 20, Height: 20})

	anim, ok := child.Actor().Animation(scene.PropOpacity)
	if !ok {
		t.Fatalf("expected transient opacity animation")
	}
	if anim.From != 0 || anim.To != 0.8 || anim.Duration != 200*time.Millisecond {
		t.Fatalf("animation = %+v, want 0 -> 0.8 over 200ms", anim)
	}
}

func TestTransient_RejectsCycles(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	a := wmtest.Create(d, conn, 10, wm.Rect{Width: 50, Height: 50})
	b := wmtest.Create(d, conn, 20, wm.Rect{Width: 20, Height: 20})
	c := wmtest.Create(d, conn, 30, wm.Rect{Width: 10, Height: 10})

	if err := d.SetTransientFor(b, a); err != nil {
		t.Fatalf("SetTransientFor(b, a): %v", err)
	}
	if err := d.SetTransientFor(c, b); err != nil {
		t.Fatalf("SetTransientFor(c, b): %v", err)
	}
	tests := []struct {
		name         string
		child, owner *wm.Window
	}{
		{"self", a, a},
		{"direct", a, b},
		{"transitive", a, c},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := d.SetTransientFor(tt.child, tt.owner); !errors.Is(err, wm.ErrTransientCycle) {
				t.Fatalf("error = %v, want ErrTransientCycle", err)
			}
			checkTransients(t, d)
		})
	}
}

func TestTransient_HintChangesAndDestroy(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	wmtest.Create(d, conn, 10, wm.Rect{Width: 50, Height: 50})
	wmtest.Create(d, conn, 30, wm.Rect{X: 200, Width: 50, Height: 50})
	conn.Transient[20] = 10
	child := wmtest.Create(d, conn, 20, wm.Rect{Width: 20, Height: 20})
	checkTransients(t, d)

	conn.Transient[20] = 30
	d.Dispatch(xproto.PropertyNotifyEvent{Window: 20, Atom: conn.Atom(wm.AtomWMTransientFor)})
	if child.TransientOwner() != 30 {
		t.Fatalf("owner = %d, want 30", child.TransientOwner())
	}
	if got := d.Window(10).Transients(); len(got) != 0 {
		t.Fatalf("old owner still lists %v", got)
	}
	checkTransients(t, d)

	wmtest.Destroy(d, conn, 30)
	if child.TransientOwner() != 0 {
		t.Fatalf("owner = %d after owner destroyed, want 0", child.TransientOwner())
	}
	checkTransients(t, d)

	delete(conn.Transient, 20)
	d.Dispatch(xproto.PropertyNotifyEvent{Window: 20, Atom: conn.Atom(wm.AtomWMTransientFor), State: xproto.PropertyDelete})
	checkTransients(t, d)
}

func TestTransient_LinkedWhenOwnerAppearsLater(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	conn.Transient[20] = 10
	child := wmtest.Create(d, conn, 20, wm.Rect{Width: 20, Height: 20})
	if child.TransientOwner() != 0 {
		t.Fatalf("owner linked before it exists")
	}
	wmtest.Create(d, conn, 10, wm.Rect{X: 100, Y: 100, Width: 50, Height: 50})
	if child.TransientOwner() != 10 {
		t.Fatalf("owner = %d, want 10", child.TransientOwner())
	}
	checkTransients(t, d)
}

func TestTransient_DestroyChildDetachesFromOwner(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	owner := wmtest.Create(d, conn, 10, wm.Rect{Width: 50, Height: 50})
	conn.Transient[20] = 10
	wmtest.Create(d, conn, 20, wm.Rect{Width: 20, Height: 20})
	conn.Transient[30] = 10
	wmtest.Create(d, conn, 30, wm.Rect{Width: 20, Height: 20})

	if got, want := owner.Transients(), []xproto.Window{30, 20}; !reflect.DeepEqual(got, want) {
		t.Fatalf("transients = %v, want %v", got, want)
	}
	wmtest.Destroy(d, conn, 30)
	if got, want := owner.Transients(), []xproto.Window{20}; !reflect.DeepEqual(got, want) {
		t.Fatalf("transients = %v, want %v", got, want)
	}
	checkTransients(t, d)
}

func TestResizeClient_Gravity(t *testing.T) {
	tests := []struct {
		name    string
		gravity wm.Gravity
		want    wm.Rect
		compX   int
		compY   int
	}{
		{"southeast keeps northwest corner", wm.GravitySouthEast, wm.Rect{X: 100, Y: 100, Width: 60, Height: 60}, 100, 100},
		{"northwest keeps southeast corner", wm.GravityNorthWest, wm.Rect{X: 90, Y: 90, Width: 60, Height: 60}, 90, 90},
		{"northeast keeps southwest corner", wm.GravityNorthEast, wm.Rect{X: 100, Y: 90, Width: 60, Height: 60}, 100, 90},
		{"southwest keeps northeast corner", wm.GravitySouthWest, wm.Rect{X: 90, Y: 100, Width: 60, Height: 60}, 90, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, conn := wmtest.NewDispatcher(t, nil)
			w := wmtest.Create(d, conn, 10, wm.Rect{X: 100, Y: 100, Width: 50, Height: 50})
			if err := w.ResizeClient(60, 60, tt.gravity); err != nil {
				t.Fatalf("ResizeClient: %v", err)
			}
			if got := w.ClientRect(); got != tt.want {
				t.Fatalf("client rect = %+v, want %+v", got, tt.want)
			}
			if got := conn.Geoms[10]; got != tt.want {
				t.Fatalf("server geometry = %+v, want %+v", got, tt.want)
			}
			if w.CompositedX() != tt.compX || w.CompositedY() != tt.compY {
				t.Fatalf("actor at (%d,%d), want (%d,%d)", w.CompositedX(), w.CompositedY(), tt.compX, tt.compY)
			}
		})
	}
}

func TestResizeClient_SouthEastMovesOnlyFarCorner(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	w := wmtest.Create(d, conn, 10, wm.Rect{X: 100, Y: 100, Width: 50, Height: 50})
	beforeX, beforeY := w.CompositedX(), w.CompositedY()

	if err := w.ResizeClient(w.ClientWidth()+10, w.ClientHeight()+10, wm.GravitySouthEast); err != nil {
		t.Fatalf("ResizeClient: %v", err)
	}
	if w.CompositedX() != beforeX || w.CompositedY() != beforeY {
		t.Fatalf("north-west corner moved to (%d,%d)", w.CompositedX(), w.CompositedY())
	}
	seX, seY := w.CompositedX()+w.ClientWidth(), w.CompositedY()+w.ClientHeight()
	if seX != 160 || seY != 160 {
		t.Fatalf("south-east corner at (%d,%d), want (160,160)", seX, seY)
	}
}

func TestClampSize(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	conn.Hints[10] = &wm.SizeHints{
		MinWidth: 100, MinHeight: 50,
		MaxWidth: 800, MaxHeight: 600,
		BaseWidth: 4, BaseHeight: 4,
		WidthInc: 10, HeightInc: 20,
	}
	w := wmtest.Create(d, conn, 10, wm.Rect{Width: 100, Height: 50})
	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"below minimum", 10, 10, 100, 50},
		{"above maximum", 1000, 1000, 800, 600},
		{"increments", 255, 255, 254, 244},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotW, gotH := w.ClampSize(tt.width, tt.height)
			if gotW != tt.wantW || gotH != tt.wantH {
				t.Fatalf("ClampSize(%d, %d) = (%d, %d), want (%d, %d)",
					tt.width, tt.height, gotW, gotH, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestTakeFocus(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	conn.WMProtocols[10] = []string{wm.AtomWMTakeFocus}
	polite := wmtest.Create(d, conn, 10, wm.Rect{Width: 10, Height: 10})
	plain := wmtest.Create(d, conn, 20, wm.Rect{Width: 10, Height: 10})

	if err := polite.TakeFocus(5); err != nil {
		t.Fatalf("TakeFocus: %v", err)
	}
	if len(conn.Messages) != 1 || conn.Messages[0].Data[0] != uint32(conn.Atom(wm.AtomWMTakeFocus)) {
		t.Fatalf("expected WM_TAKE_FOCUS message, got %v", conn.Messages)
	}
	if conn.Focused != 0 {
		t.Fatalf("focus forced on a WM_TAKE_FOCUS client")
	}

	if err := plain.TakeFocus(5); err != nil {
		t.Fatalf("TakeFocus: %v", err)
	}
	if conn.Focused != 20 {
		t.Fatalf("focused = %d, want 20", conn.Focused)
	}
}

func TestTakeFocus_PrefersModalTransient(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	owner := wmtest.Create(d, conn, 10, wm.Rect{Width: 50, Height: 50})
	conn.Transient[20] = 10
	conn.States[20] = []string{wm.AtomNetWMStateModal}
	wmtest.Create(d, conn, 20, wm.Rect{Width: 20, Height: 20})
	wmtest.Map(d, conn, 20)

	if err := owner.TakeFocus(5); err != nil {
		t.Fatalf("TakeFocus: %v", err)
	}
	if conn.Focused != 20 {
		t.Fatalf("focused = %d, want modal transient 20", conn.Focused)
	}
}

func TestSendDeleteRequest(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	conn.WMProtocols[10] = []string{wm.AtomWMDeleteWindow}
	polite := wmtest.Create(d, conn, 10, wm.Rect{Width: 10, Height: 10})
	rude := wmtest.Create(d, conn, 20, wm.Rect{Width: 10, Height: 10})

	if err := polite.SendDeleteRequest(1); err != nil {
		t.Fatalf("SendDeleteRequest: %v", err)
	}
	if err := rude.SendDeleteRequest(1); err != nil {
		t.Fatalf("SendDeleteRequest: %v", err)
	}
	if len(conn.Messages) != 1 || conn.Messages[0].Win != 10 {
		t.Fatalf("messages = %v, want one WM_DELETE_WINDOW to 10", conn.Messages)
	}
	if !reflect.DeepEqual(conn.Killed, []xproto.Window{20}) {
		t.Fatalf("killed = %v, want [20]", conn.Killed)
	}
}

func TestShape_DisablesShadow(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	w := wmtest.Create(d, conn, 10, wm.Rect{Width: 10, Height: 10})
	if !w.Actor().ShadowVisible() {
		t.Fatalf("unshaped window should have a shadow")
	}
	conn.Shapes[10] = []wm.Rect{{X: 0, Y: 0, Width: 5, Height: 5}}
	if err := w.FetchAndApplyShape(); err != nil {
		t.Fatalf("FetchAndApplyShape: %v", err)
	}
	if w.Actor().ShadowVisible() || !w.Shaped() {
		t.Fatalf("shaped window should lose its shadow")
	}
}

func TestProtocolFailureLeavesStateUntouched(t *testing.T) {
	d, conn := wmtest.NewDispatcher(t, nil)
	w := wmtest.Create(d, conn, 10, wm.Rect{X: 5, Y: 5, Width: 10, Height: 10})
	delete(conn.Geoms, 10)

	if err := w.MoveClient(50, 50); err == nil {
		t.Fatalf("expected error moving a vanished window")
	}
	if w.ClientX() != 5 || w.ClientY() != 5 {
		t.Fatalf("client position changed to (%d,%d) after failure", w.ClientX(), w.ClientY())
	}
}
