package wm

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/1broseidon/compwm/internal/scene"
	"github.com/BurntSushi/xgb/xproto"
)

// Window is the dispatcher's record of one tracked surface: its protocol
// state plus the compositor actor that draws it.
type Window struct {
	d      *Dispatcher
	id     xproto.Window
	logger *slog.Logger

	override   bool
	mapped     bool
	focused    bool
	fullscreen bool
	modal      bool

	clientX      int
	clientY      int
	clientWidth  int
	clientHeight int

	compX       int
	compY       int
	compScaleX  float64
	compScaleY  float64
	compOpacity float64
	actor       scene.WindowActor

	shape       []Rect
	sizeHints   *SizeHints
	takeFocus   bool
	deleteWin   bool
	types       []string
	otherStates []string

	// owner is a lookup key into the dispatcher, never a lifetime handle.
	owner        xproto.Window
	pendingOwner xproto.Window
	transients   []*transient
}

func newWindow(d *Dispatcher, id xproto.Window, override bool, geom Rect) *Window {
	w := &Window{
		d:            d,
		id:           id,
		logger:       d.logger.With("window", uint32(id)),
		override:     override,
		clientX:      geom.X,
		clientY:      geom.Y,
		clientWidth:  geom.Width,
		clientHeight: geom.Height,
		compX:        geom.X,
		compY:        geom.Y,
		compScaleX:   1,
		compScaleY:   1,
		compOpacity:  1,
	}
	w.actor = d.stage.CreateWindowActor(uint32(id), fmt.Sprintf("window %d", id))
	w.actor.Move(geom.X, geom.Y, 0)
	w.actor.SetSize(geom.Width, geom.Height)
	w.actor.Hide()
	return w
}

func (w *Window) ID() xproto.Window             { return w.id }
func (w *Window) Override() bool                { return w.override }
func (w *Window) Mapped() bool                  { return w.mapped }
func (w *Window) Focused() bool                 { return w.focused }
func (w *Window) Fullscreen() bool              { return w.fullscreen }
func (w *Window) Modal() bool                   { return w.modal }
func (w *Window) Shaped() bool                  { return w.shape != nil }
func (w *Window) SupportsTakeFocus() bool       { return w.takeFocus }
func (w *Window) SupportsDeleteWindow() bool    { return w.deleteWin }
func (w *Window) Actor() scene.WindowActor      { return w.actor }
func (w *Window) TransientOwner() xproto.Window { return w.owner }

func (w *Window) ClientX() int      { return w.clientX }
func (w *Window) ClientY() int      { return w.clientY }
func (w *Window) ClientWidth() int  { return w.clientWidth }
func (w *Window) ClientHeight() int { return w.clientHeight }

func (w *Window) CompositedX() int           { return w.compX }
func (w *Window) CompositedY() int           { return w.compY }
func (w *Window) CompositedScaleX() float64  { return w.compScaleX }
func (w *Window) CompositedScaleY() float64  { return w.compScaleY }
func (w *Window) CompositedOpacity() float64 { return w.compOpacity }

// ClientRect returns the protocol geometry.
func (w *Window) ClientRect() Rect {
	return Rect{X: w.clientX, Y: w.clientY, Width: w.clientWidth, Height: w.clientHeight}
}

// Shape returns the bounding shape mask, or nil when the window is unshaped.
func (w *Window) Shape() []Rect {
	if w.shape == nil {
		return nil
	}
	return append([]Rect{}, w.shape...)
}

// SizeHints returns the client's size constraints, or nil if it set none.
func (w *Window) SizeHints() *SizeHints {
	if w.sizeHints == nil {
		return nil
	}
	h := *w.sizeHints
	return &h
}

// Types returns the _NET_WM_WINDOW_TYPE values.
func (w *Window) Types() []string {
	return append([]string(nil), w.types...)
}

// HasType reports whether the window advertises the given window type.
func (w *Window) HasType(t string) bool {
	return slices.Contains(w.types, t)
}

// Transients returns the window's transient children, topmost first.
func (w *Window) Transients() []xproto.Window {
	out := make([]xproto.Window, 0, len(w.transients))
	for _, t := range w.transients {
		out = append(out, t.id)
	}
	return out
}

// MoveClient moves the protocol window and drags its transients along.
func (w *Window) MoveClient(x, y int) error {
	if err := w.d.conn.ConfigureWindow(w.id,
		xproto.ConfigWindowX|xproto.ConfigWindowY,
		[]uint32{uint32(int32(x)), uint32(int32(y))}); err != nil {
		return fmt.Errorf("move window %d: %w", w.id, err)
	}
	w.clientX, w.clientY = x, y
	w.refreshOwnerOffset()
	w.eachTransient(func(child *Window, t *transient) {
		if err := child.MoveClient(x+t.offsetX, y+t.offsetY); err != nil {
			child.logger.Warn("failed to move transient with owner", "error", err)
		}
	})
	return nil
}

// MoveResizeClient changes position and size in one protocol request.
func (w *Window) MoveResizeClient(x, y, width, height int) error {
	if err := w.d.conn.MoveResizeWindow(w.id, x, y, width, height); err != nil {
		return fmt.Errorf("move/resize window %d: %w", w.id, err)
	}
	moved := x != w.clientX || y != w.clientY
	w.clientX, w.clientY = x, y
	w.clientWidth, w.clientHeight = width, height
	w.actor.SetSize(width, height)
	if moved {
		w.refreshOwnerOffset()
		w.eachTransient(func(child *Window, t *transient) {
			if err := child.MoveClient(x+t.offsetX, y+t.offsetY); err != nil {
				child.logger.Warn("failed to move transient with owner", "error", err)
			}
		})
	}
	return nil
}

// Move moves both the protocol window and its actor.
func (w *Window) Move(x, y int, anim time.Duration) error {
	if err := w.MoveClient(x, y); err != nil {
		return err
	}
	w.MoveComposited(x, y, anim)
	return nil
}

// MoveComposited moves the actor without touching the protocol window.
// Transients follow at their stored offsets scaled by this window's scale.
func (w *Window) MoveComposited(x, y int, anim time.Duration) {
	w.compX, w.compY = x, y
	w.actor.Move(x, y, anim)
	w.eachTransient(func(child *Window, t *transient) {
		child.MoveComposited(x+scaled(t.offsetX, w.compScaleX), y+scaled(t.offsetY, w.compScaleY), anim)
	})
}

// ScaleComposited scales the actor; transients take the same scale and
// are repositioned around this window.
func (w *Window) ScaleComposited(sx, sy float64, anim time.Duration) {
	w.compScaleX, w.compScaleY = sx, sy
	w.actor.Scale(sx, sy, anim)
	w.eachTransient(func(child *Window, t *transient) {
		child.ScaleComposited(sx, sy, anim)
		child.MoveComposited(w.compX+scaled(t.offsetX, sx), w.compY+scaled(t.offsetY, sy), anim)
	})
}

// SetCompositedOpacity changes the actor's opacity and that of every transient.
func (w *Window) SetCompositedOpacity(opacity float64, anim time.Duration) {
	w.compOpacity = clampOpacity(opacity)
	w.actor.SetOpacity(w.compOpacity, anim)
	w.eachTransient(func(child *Window, _ *transient) {
		child.SetCompositedOpacity(opacity, anim)
	})
}

// ShowComposited makes the actor visible.
func (w *Window) ShowComposited() { w.actor.Show() }

// HideComposited hides the actor.
func (w *Window) HideComposited() { w.actor.Hide() }

// RaiseClient puts the window on top of the stack with its transients
// directly above it.
func (w *Window) RaiseClient() error {
	if err := w.d.conn.StackWindow(w.id, 0, xproto.StackModeAbove); err != nil {
		return fmt.Errorf("raise window %d: %w", w.id, err)
	}
	if owner := w.d.windows[w.owner]; owner != nil {
		owner.promoteTransient(w.id)
	}
	w.restackTransients()
	return nil
}

// LowerClient puts the window at the bottom of the stack.
func (w *Window) LowerClient() error {
	if err := w.d.conn.StackWindow(w.id, 0, xproto.StackModeBelow); err != nil {
		return fmt.Errorf("lower window %d: %w", w.id, err)
	}
	w.restackTransients()
	return nil
}

// StackClientAbove places the window directly above sibling.
func (w *Window) StackClientAbove(sibling xproto.Window) error {
	if err := w.d.conn.StackWindow(w.id, sibling, xproto.StackModeAbove); err != nil {
		return fmt.Errorf("stack window %d above %d: %w", w.id, sibling, err)
	}
	w.restackTransients()
	return nil
}

// StackClientBelow places the window directly below sibling.
func (w *Window) StackClientBelow(sibling xproto.Window) error {
	if err := w.d.conn.StackWindow(w.id, sibling, xproto.StackModeBelow); err != nil {
		return fmt.Errorf("stack window %d below %d: %w", w.id, sibling, err)
	}
	w.restackTransients()
	return nil
}

// restackTransients stacks transients above the window, bottommost first,
// so the topmost transient ends up highest.
func (w *Window) restackTransients() {
	prev := w.id
	for i := len(w.transients) - 1; i >= 0; i-- {
		child := w.d.windows[w.transients[i].id]
		if child == nil {
			continue
		}
		if err := w.d.conn.StackWindow(child.id, prev, xproto.StackModeAbove); err != nil {
			child.logger.Warn("failed to restack transient", "error", err)
			continue
		}
		child.restackTransients()
		prev = child.id
	}
}

// TakeFocus gives the window the input focus. A modal transient takes the
// focus in its owner's place.
func (w *Window) TakeFocus(ts xproto.Timestamp) error {
	if modal := w.modalTransient(); modal != nil {
		return modal.TakeFocus(ts)
	}
	if w.takeFocus {
		data := [5]uint32{uint32(w.d.conn.Atom(AtomWMTakeFocus)), uint32(ts)}
		if err := w.d.conn.SendClientMessage(w.id, w.d.conn.Atom(AtomWMProtocols), data); err != nil {
			return fmt.Errorf("send WM_TAKE_FOCUS to %d: %w", w.id, err)
		}
		return nil
	}
	if err := w.d.conn.SetInputFocus(w.id, ts); err != nil {
		return fmt.Errorf("focus window %d: %w", w.id, err)
	}
	return nil
}

func (w *Window) modalTransient() *Window {
	for _, t := range w.transients {
		if child := w.d.windows[t.id]; child != nil && child.modal && child.mapped {
			return child
		}
	}
	return nil
}

// SendDeleteRequest asks the client to close the window, killing the
// client when it does not speak WM_DELETE_WINDOW.
func (w *Window) SendDeleteRequest(ts xproto.Timestamp) error {
	if !w.deleteWin {
		if err := w.d.conn.KillClient(w.id); err != nil {
			return fmt.Errorf("kill client of window %d: %w", w.id, err)
		}
		return nil
	}
	data := [5]uint32{uint32(w.d.conn.Atom(AtomWMDeleteWindow)), uint32(ts)}
	if err := w.d.conn.SendClientMessage(w.id, w.d.conn.Atom(AtomWMProtocols), data); err != nil {
		return fmt.Errorf("send WM_DELETE_WINDOW to %d: %w", w.id, err)
	}
	return nil
}

// SetFullscreen updates the fullscreen state and republishes _NET_WM_STATE.
func (w *Window) SetFullscreen(on bool) error {
	if w.fullscreen == on {
		return nil
	}
	w.fullscreen = on
	return w.publishState()
}

// SetModal updates the modal state and republishes _NET_WM_STATE.
func (w *Window) SetModal(on bool) error {
	if w.modal == on {
		return nil
	}
	w.modal = on
	return w.publishState()
}

func (w *Window) publishState() error {
	states := append([]string(nil), w.otherStates...)
	if w.fullscreen {
		states = append(states, AtomNetWMStateFullscreen)
	}
	if w.modal {
		states = append(states, AtomNetWMStateModal)
	}
	if err := w.d.conn.SetWindowState(w.id, states); err != nil {
		return fmt.Errorf("set _NET_WM_STATE on %d: %w", w.id, err)
	}
	return nil
}

// ClampSize applies the client's size hints to a requested size.
func (w *Window) ClampSize(width, height int) (int, int) {
	h := w.sizeHints
	if h == nil {
		return max(width, 1), max(height, 1)
	}
	if h.WidthInc > 1 {
		width -= (width - h.BaseWidth) % h.WidthInc
	}
	if h.HeightInc > 1 {
		height -= (height - h.BaseHeight) % h.HeightInc
	}
	if h.MinWidth > 0 && width < h.MinWidth {
		width = h.MinWidth
	}
	if h.MinHeight > 0 && height < h.MinHeight {
		height = h.MinHeight
	}
	if h.MaxWidth > 0 && width > h.MaxWidth {
		width = h.MaxWidth
	}
	if h.MaxHeight > 0 && height > h.MaxHeight {
		height = h.MaxHeight
	}
	return max(width, 1), max(height, 1)
}

// FetchAndApplySizeHints re-reads WM_NORMAL_HINTS.
func (w *Window) FetchAndApplySizeHints() error {
	hints, err := w.d.conn.SizeHints(w.id)
	if err != nil {
		w.sizeHints = nil
		return fmt.Errorf("read size hints of %d: %w", w.id, err)
	}
	w.sizeHints = hints
	return nil
}

// FetchAndApplyWmProtocols re-reads WM_PROTOCOLS.
func (w *Window) FetchAndApplyWmProtocols() error {
	protocols, err := w.d.conn.Protocols(w.id)
	if err != nil {
		w.takeFocus, w.deleteWin = false, false
		return fmt.Errorf("read WM_PROTOCOLS of %d: %w", w.id, err)
	}
	w.takeFocus = slices.Contains(protocols, AtomWMTakeFocus)
	w.deleteWin = slices.Contains(protocols, AtomWMDeleteWindow)
	return nil
}

// FetchAndApplyWindowType re-reads _NET_WM_WINDOW_TYPE.
func (w *Window) FetchAndApplyWindowType() error {
	types, err := w.d.conn.WindowType(w.id)
	if err != nil {
		w.types = nil
		return fmt.Errorf("read window type of %d: %w", w.id, err)
	}
	w.types = types
	return nil
}

// FetchAndApplyOpacity re-reads _NET_WM_WINDOW_OPACITY into the actor.
func (w *Window) FetchAndApplyOpacity() error {
	opacity, ok, err := w.d.conn.Opacity(w.id)
	if err != nil {
		return fmt.Errorf("read opacity of %d: %w", w.id, err)
	}
	if !ok {
		opacity = 1
	}
	w.SetCompositedOpacity(opacity, 0)
	return nil
}

// FetchAndApplyWmState re-reads _NET_WM_STATE.
func (w *Window) FetchAndApplyWmState() error {
	states, err := w.d.conn.WindowState(w.id)
	if err != nil {
		return fmt.Errorf("read _NET_WM_STATE of %d: %w", w.id, err)
	}
	w.fullscreen, w.modal = false, false
	w.otherStates = w.otherStates[:0]
	for _, s := range states {
		switch s {
		case AtomNetWMStateFullscreen:
			w.fullscreen = true
		case AtomNetWMStateModal:
			w.modal = true
		default:
			w.otherStates = append(w.otherStates, s)
		}
	}
	return nil
}

// FetchAndApplyShape re-reads the bounding shape. A shaped window loses
// its shadow.
func (w *Window) FetchAndApplyShape() error {
	rects, err := w.d.conn.ShapeRects(w.id)
	if err != nil {
		return fmt.Errorf("read shape of %d: %w", w.id, err)
	}
	w.shape = rects
	mask := make([]scene.Rect, 0, len(rects))
	for _, r := range rects {
		mask = append(mask, scene.Rect(r))
	}
	w.actor.SetShape(mask)
	w.actor.SetShadowVisible(rects == nil)
	return nil
}

// FetchAndApplyTransientHint re-reads WM_TRANSIENT_FOR and links or
// unlinks the window from its owner.
func (w *Window) FetchAndApplyTransientHint() error {
	ownerID, err := w.d.conn.TransientFor(w.id)
	if err != nil {
		ownerID = 0
	}
	w.pendingOwner = 0
	if ownerID == 0 || ownerID == w.d.conn.Root() {
		if w.owner != 0 {
			return w.d.SetTransientFor(w, nil)
		}
		return nil
	}
	owner := w.d.windows[ownerID]
	if owner == nil {
		// Owner not tracked yet; link when it shows up.
		w.pendingOwner = ownerID
		return nil
	}
	return w.d.SetTransientFor(w, owner)
}

// fetchAll performs the full initial state fetch. Failures are logged and
// leave the affected field at its default.
func (w *Window) fetchAll() {
	for _, fetch := range []func() error{
		w.FetchAndApplySizeHints,
		w.FetchAndApplyWmProtocols,
		w.FetchAndApplyWindowType,
		w.FetchAndApplyWmState,
		w.FetchAndApplyOpacity,
		w.FetchAndApplyShape,
	} {
		if err := fetch(); err != nil {
			w.logger.Debug("initial fetch failed", "error", err)
		}
	}
}

// applyConfigureNotify records the geometry the server reported.
func (w *Window) applyConfigureNotify(x, y, width, height int) {
	moved := x != w.clientX || y != w.clientY
	w.clientX, w.clientY = x, y
	if width != w.clientWidth || height != w.clientHeight {
		w.clientWidth, w.clientHeight = width, height
		w.actor.SetSize(width, height)
	}
	// Override-redirect windows place themselves; keep their actor on top
	// of the protocol window.
	if moved && w.override {
		w.MoveComposited(x, y, 0)
	}
}

func scaled(v int, scale float64) int {
	return int(math.Round(float64(v) * scale))
}

func clampOpacity(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
