package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/compwm/internal/wm"
)

const (
	typeDock    = "_NET_WM_WINDOW_TYPE_DOCK"
	typeDesktop = "_NET_WM_WINDOW_TYPE_DESKTOP"

	cascadeStep = 32
)

// LayoutMode selects where new windows without a position are placed.
type LayoutMode int32

const (
	LayoutCenter LayoutMode = iota
	LayoutCascade
)

func (m LayoutMode) String() string {
	switch m {
	case LayoutCenter:
		return "center"
	case LayoutCascade:
		return "cascade"
	default:
		return fmt.Sprintf("layout-%d", int32(m))
	}
}

// Options configure a Basic policy.
type Options struct {
	Logger *slog.Logger
	// FocusFollowsClick focuses and raises a window when it is clicked.
	FocusFollowsClick bool
	// MotionFlushHz caps how often a drag moves its window.
	MotionFlushHz int
	// Post runs a function on the event goroutine.
	Post func(func())
	// PlacementArea returns the area new windows are placed in.
	PlacementArea func() (wm.Rect, error)
	// MonitorArea returns the monitor a fullscreen window covers.
	MonitorArea func(win xproto.Window) (wm.Rect, error)
	// Quit is called by the quit action.
	Quit func()
}

type drag struct {
	win    xproto.Window
	startX int
	startY int
	orig   wm.Rect
}

// Basic is a floating-window policy: it places and maps new windows,
// focuses on click, moves windows with Alt+drag and honours fullscreen
// requests. All methods run on the event goroutine.
type Basic struct {
	wm.NopConsumer

	d      *wm.Dispatcher
	opts   Options
	logger *slog.Logger

	layout  LayoutMode
	cascade int
	saved   map[xproto.Window]wm.Rect

	drag   *drag
	motion *wm.MotionCoalescer
}

var messageTypes = []wm.MessageType{
	wm.MessageNotifyWindowType,
	wm.MessageSwitchLayoutMode,
	wm.MessageReportMetrics,
	wm.MessageSetOpacity,
}

// NewBasic returns a policy for d. Call Attach to start receiving events.
func NewBasic(d *wm.Dispatcher, opts Options) *Basic {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	post := opts.Post
	if post == nil {
		post = func(func()) {}
	}
	b := &Basic{
		d:      d,
		opts:   opts,
		logger: opts.Logger.With("component", "policy"),
		saved:  make(map[xproto.Window]wm.Rect),
	}
	b.motion = wm.NewMotionCoalescer(opts.MotionFlushHz, post, b.applyDrag)
	return b
}

// Attach registers the policy with its dispatcher.
func (b *Basic) Attach() error {
	var errs []error
	if err := b.d.RegisterConsumer(b); err != nil {
		errs = append(errs, err)
	}
	for _, t := range messageTypes {
		if err := b.d.RegisterMessageConsumer(t, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Detach undoes Attach and cancels a drag in progress.
func (b *Basic) Detach() {
	b.motion.Stop(false)
	b.drag = nil
	for _, w := range b.d.MappedWindows() {
		if !w.Override() {
			b.d.UnregisterWindowConsumer(w.ID(), b)
		}
	}
	for _, t := range messageTypes {
		b.d.UnregisterMessageConsumer(t, b)
	}
	b.d.UnregisterConsumer(b)
}

// SetFocusFollowsClick changes click-to-focus at runtime.
func (b *Basic) SetFocusFollowsClick(on bool) { b.opts.FocusFollowsClick = on }

// SetMotionFlushHz changes the drag rate for drags started afterwards.
func (b *Basic) SetMotionFlushHz(hz int) {
	if b.drag != nil {
		return
	}
	post := b.opts.Post
	if post == nil {
		post = func(func()) {}
	}
	b.opts.MotionFlushHz = hz
	b.motion = wm.NewMotionCoalescer(hz, post, b.applyDrag)
}

// Layout returns the current placement mode.
func (b *Basic) Layout() LayoutMode { return b.layout }

// SetLayout changes the placement mode for windows mapped afterwards.
func (b *Basic) SetLayout(m LayoutMode) error {
	if m != LayoutCenter && m != LayoutCascade {
		return fmt.Errorf("unknown layout mode %d", int32(m))
	}
	b.layout = m
	b.cascade = 0
	return nil
}

func (b *Basic) HandleMapRequest(w *wm.Window) bool {
	if w.Override() {
		return false
	}
	b.place(w)
	if err := b.d.Conn().MapWindow(w.ID()); err != nil {
		b.logger.Warn("failed to map window", "window", uint32(w.ID()), "error", err)
	}
	return true
}

func (b *Basic) place(w *wm.Window) {
	// Transients were centered over their owner when attached.
	if w.TransientOwner() != 0 || w.HasType(typeDock) || w.HasType(typeDesktop) {
		return
	}
	r := w.ClientRect()
	if r.X != 0 || r.Y != 0 {
		return
	}

	area, ok := b.placementArea()
	if !ok {
		return
	}
	width, height := w.ClampSize(min(r.Width, area.Width), min(r.Height, area.Height))
	var x, y int
	switch b.layout {
	case LayoutCascade:
		off := b.cascade * cascadeStep
		if off+width > area.Width || off+height > area.Height {
			b.cascade, off = 0, 0
		}
		x, y = area.X+off, area.Y+off
		b.cascade++
	default:
		x = area.X + (area.Width-width)/2
		y = area.Y + (area.Height-height)/2
	}
	b.moveTo(w, x, y, width, height)
}

func (b *Basic) placementArea() (wm.Rect, bool) {
	if b.opts.PlacementArea != nil {
		area, err := b.opts.PlacementArea()
		if err == nil {
			return area, true
		}
		b.logger.Debug("placement area unavailable, using root", "error", err)
	}
	root, err := b.d.Conn().Geometry(b.d.Conn().Root())
	if err != nil {
		b.logger.Warn("failed to read root geometry", "error", err)
		return wm.Rect{}, false
	}
	return root, true
}

// moveTo positions both the protocol window and its actor.
func (b *Basic) moveTo(w *wm.Window, x, y, width, height int) {
	r := w.ClientRect()
	var err error
	if width == r.Width && height == r.Height {
		err = w.Move(x, y, 0)
	} else {
		err = w.MoveResizeClient(x, y, width, height)
		if err == nil {
			w.MoveComposited(x, y, 0)
		}
	}
	if err != nil {
		b.logger.Warn("failed to place window", "window", uint32(w.ID()), "error", err)
	}
}

func (b *Basic) HandleMap(w *wm.Window) {
	if w.Override() {
		return
	}
	id := w.ID()
	if err := b.d.RegisterWindowConsumer(id, b); err != nil {
		return
	}
	conn := b.d.Conn()
	// The catch-all grab comes first; the Alt grab then overrides it for
	// its own modifier combination.
	if err := conn.GrabButton(id, xproto.ButtonIndex1, xproto.ModMaskAny, true); err != nil {
		b.logger.Debug("failed to grab click", "window", uint32(id), "error", err)
	}
	if err := conn.GrabButton(id, xproto.ButtonIndex1, xproto.ModMask1, false); err != nil {
		b.logger.Debug("failed to grab drag button", "window", uint32(id), "error", err)
	}
	b.syncFullscreen(w)
	if w.HasType(typeDock) || w.HasType(typeDesktop) {
		return
	}
	b.focus(w, xproto.TimeCurrentTime)
}

func (b *Basic) HandleUnmap(w *wm.Window) {
	if w.Override() {
		return
	}
	id := w.ID()
	if b.drag != nil && b.drag.win == id {
		b.motion.Stop(false)
		b.drag = nil
	}
	b.d.UnregisterWindowConsumer(id, b)
	delete(b.saved, id)

	if active := b.d.Active(); active == nil || active.ID() == id {
		b.focusNext(w)
	}
}

// focusNext hands the focus to the owner of gone, or else to the topmost
// other managed window.
func (b *Basic) focusNext(gone *wm.Window) {
	if owner := b.d.Window(gone.TransientOwner()); owner != nil && owner.Mapped() {
		b.focus(owner, xproto.TimeCurrentTime)
		return
	}
	for _, w := range b.candidates() {
		if w.ID() != gone.ID() {
			b.focus(w, xproto.TimeCurrentTime)
			return
		}
	}
}

// candidates returns the mapped windows focus and cycling may visit,
// topmost first.
func (b *Basic) candidates() []*wm.Window {
	var out []*wm.Window
	for _, w := range b.d.Windows() {
		if !w.Mapped() || w.Override() || w.TransientOwner() != 0 ||
			w.HasType(typeDock) || w.HasType(typeDesktop) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func (b *Basic) focus(w *wm.Window, ts xproto.Timestamp) {
	if err := w.RaiseClient(); err != nil {
		b.logger.Warn("failed to raise window", "window", uint32(w.ID()), "error", err)
		return
	}
	if err := w.TakeFocus(ts); err != nil {
		b.logger.Warn("failed to focus window", "window", uint32(w.ID()), "error", err)
	}
}

func (b *Basic) HandleConfigureRequest(w *wm.Window, req wm.ConfigureRequest) {
	if w.Fullscreen() {
		return
	}
	if req.HasPosition() || req.HasSize() {
		r := w.ClientRect()
		if req.Mask&xproto.ConfigWindowX != 0 {
			r.X = req.X
		}
		if req.Mask&xproto.ConfigWindowY != 0 {
			r.Y = req.Y
		}
		if req.Mask&xproto.ConfigWindowWidth != 0 {
			r.Width = req.Width
		}
		if req.Mask&xproto.ConfigWindowHeight != 0 {
			r.Height = req.Height
		}
		r.Width, r.Height = w.ClampSize(r.Width, r.Height)
		b.moveTo(w, r.X, r.Y, r.Width, r.Height)
	}
	if req.HasStacking() && req.Mask&xproto.ConfigWindowSibling == 0 {
		var err error
		switch req.StackMode {
		case xproto.StackModeAbove:
			err = w.RaiseClient()
		case xproto.StackModeBelow:
			err = w.LowerClient()
		}
		if err != nil {
			b.logger.Warn("failed to restack on request", "window", uint32(w.ID()), "error", err)
		}
	}
}

func (b *Basic) HandleButtonPress(ev wm.ButtonEvent) {
	w := b.d.Window(ev.Window)
	if w == nil {
		return
	}
	if ev.Button == xproto.ButtonIndex1 && ev.State&xproto.ModMask1 != 0 && !w.Fullscreen() {
		b.startDrag(w, ev.RootX, ev.RootY)
		b.focus(w, ev.Time)
		return
	}
	if b.opts.FocusFollowsClick {
		b.focus(w, ev.Time)
	}
}

func (b *Basic) HandleButtonRelease(ev wm.ButtonEvent) {
	if b.drag == nil || ev.Button != xproto.ButtonIndex1 {
		return
	}
	b.motion.Store(ev.RootX, ev.RootY)
	b.motion.Stop(true)
	b.drag = nil
}

func (b *Basic) HandlePointerMotion(ev wm.PointerEvent) {
	if b.drag == nil || ev.Window != b.drag.win {
		return
	}
	b.motion.Store(ev.RootX, ev.RootY)
}

func (b *Basic) startDrag(w *wm.Window, x, y int) {
	if b.drag != nil {
		b.motion.Stop(true)
	}
	b.drag = &drag{win: w.ID(), startX: x, startY: y, orig: w.ClientRect()}
	b.motion.Start()
}

func (b *Basic) applyDrag(x, y int) {
	if b.drag == nil {
		return
	}
	w := b.d.Window(b.drag.win)
	if w == nil {
		return
	}
	nx := b.drag.orig.X + x - b.drag.startX
	ny := b.drag.orig.Y + y - b.drag.startY
	if err := w.Move(nx, ny, 0); err != nil {
		b.logger.Debug("drag move failed", "window", uint32(w.ID()), "error", err)
	}
}

func (b *Basic) HandleClientMessage(win xproto.Window, typ xproto.Atom, _ []uint32) {
	if b.d.Conn().AtomName(typ) != wm.AtomNetWMState {
		return
	}
	if w := b.d.Window(win); w != nil && w.Mapped() && !w.Override() {
		b.syncFullscreen(w)
	}
}

// syncFullscreen makes the geometry follow the fullscreen state: entering
// saves the current rectangle and covers the monitor, leaving restores it.
func (b *Basic) syncFullscreen(w *wm.Window) {
	id := w.ID()
	saved, wasFull := b.saved[id]
	switch {
	case w.Fullscreen() && !wasFull:
		area, err := b.monitorArea(w)
		if err != nil {
			b.logger.Warn("cannot size fullscreen window", "window", uint32(id), "error", err)
			return
		}
		b.saved[id] = w.ClientRect()
		b.moveTo(w, area.X, area.Y, area.Width, area.Height)
		if err := w.RaiseClient(); err != nil {
			b.logger.Warn("failed to raise fullscreen window", "window", uint32(id), "error", err)
		}
	case !w.Fullscreen() && wasFull:
		delete(b.saved, id)
		b.moveTo(w, saved.X, saved.Y, saved.Width, saved.Height)
	}
}

func (b *Basic) monitorArea(w *wm.Window) (wm.Rect, error) {
	if b.opts.MonitorArea != nil {
		return b.opts.MonitorArea(w.ID())
	}
	return b.d.Conn().Geometry(b.d.Conn().Root())
}

func (b *Basic) HandleCustomMessage(win xproto.Window, msg wm.CustomMessage) {
	switch msg.Type {
	case wm.MessageNotifyWindowType:
		b.logger.Debug("client announced window type",
			"window", uint32(msg.Params[0]), "type", msg.Params[1])
	case wm.MessageSwitchLayoutMode:
		if err := b.SetLayout(LayoutMode(msg.Params[0])); err != nil {
			b.logger.Warn("layout switch rejected", "error", err)
			return
		}
		b.logger.Info("layout mode switched", "mode", b.layout)
	case wm.MessageReportMetrics:
		s := b.d.Snapshot()
		reply := wm.CustomMessage{
			Type: wm.MessageReportMetrics,
			Params: [4]int32{
				int32(s.Events),
				int32(len(s.Windows)),
				int32(len(s.Mapping)),
				int32(s.Consumers),
			},
		}
		if err := b.d.SendMessage(win, reply); err != nil {
			b.logger.Warn("failed to report metrics", "error", err)
		}
	case wm.MessageSetOpacity:
		target := xproto.Window(msg.Params[0])
		if target == 0 {
			target = win
		}
		w := b.d.Window(target)
		if w == nil {
			b.logger.Debug("opacity for unknown window", "window", uint32(target))
			return
		}
		anim := time.Duration(msg.Params[2]) * time.Millisecond
		w.SetCompositedOpacity(float64(msg.Params[1])/100, anim)
	}
}
