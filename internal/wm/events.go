package wm

import (
	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"
)

// _NET_WM_STATE client message actions.
const (
	stateRemove = 0
	stateAdd    = 1
	stateToggle = 2
)

// Dispatch routes one X event. It must not be called from inside a
// consumer callback.
func (d *Dispatcher) Dispatch(ev xgb.Event) {
	if d.dispatching {
		d.logger.Error("nested dispatch rejected", "event", ev.String())
		return
	}
	d.dispatching = true
	defer func() { d.dispatching = false }()
	d.events++

	if d.pendingRelease != nil {
		if press, ok := ev.(xproto.KeyPressEvent); ok &&
			press.Detail == d.pendingRelease.Detail && press.Time == d.pendingRelease.Time {
			// Autorepeat: the server sends release+press with one timestamp.
			d.pendingRelease = nil
			d.handleKeyPress(press)
			return
		}
		d.flushPendingRelease()
	}

	switch e := ev.(type) {
	case xproto.CreateNotifyEvent:
		d.handleCreateNotify(e)
	case xproto.DestroyNotifyEvent:
		d.forget(e.Window)
	case xproto.ReparentNotifyEvent:
		d.handleReparentNotify(e)
	case xproto.MapRequestEvent:
		d.handleMapRequest(e)
	case xproto.MapNotifyEvent:
		if w := d.windows[e.Window]; w != nil {
			d.windowMapped(w)
		}
	case xproto.UnmapNotifyEvent:
		if w := d.windows[e.Window]; w != nil {
			d.windowUnmapped(w)
		}
	case xproto.ConfigureNotifyEvent:
		d.handleConfigureNotify(e)
	case xproto.ConfigureRequestEvent:
		d.handleConfigureRequest(e)
	case xproto.CirculateNotifyEvent:
		if e.Place == xproto.PlaceOnTop {
			d.stacking.AddOnTop(e.Window)
		} else {
			d.stacking.AddOnBottom(e.Window)
		}
		d.publish()
	case xproto.PropertyNotifyEvent:
		d.handlePropertyNotify(e)
	case xproto.ClientMessageEvent:
		d.handleClientMessage(e)
	case xproto.FocusInEvent:
		d.handleFocus(e.Event, e.Mode, e.Detail, true)
	case xproto.FocusOutEvent:
		d.handleFocus(e.Event, e.Mode, e.Detail, false)
	case shape.NotifyEvent:
		if w := d.windows[e.AffectedWindow]; w != nil && e.ShapeKind == shape.SkBounding {
			if err := w.FetchAndApplyShape(); err != nil {
				w.logger.Warn("failed to apply shape", "error", err)
			}
		}
	case xproto.EnterNotifyEvent:
		pe := PointerEvent{Window: e.Event, X: int(e.EventX), Y: int(e.EventY),
			RootX: int(e.RootX), RootY: int(e.RootY), State: e.State, Time: e.Time}
		for _, c := range d.windowConsumers.get(e.Event) {
			c.HandlePointerEnter(pe)
		}
	case xproto.LeaveNotifyEvent:
		pe := PointerEvent{Window: e.Event, X: int(e.EventX), Y: int(e.EventY),
			RootX: int(e.RootX), RootY: int(e.RootY), State: e.State, Time: e.Time}
		for _, c := range d.windowConsumers.get(e.Event) {
			c.HandlePointerLeave(pe)
		}
	case xproto.MotionNotifyEvent:
		pe := PointerEvent{Window: e.Event, X: int(e.EventX), Y: int(e.EventY),
			RootX: int(e.RootX), RootY: int(e.RootY), State: e.State, Time: e.Time}
		for _, c := range d.windowConsumers.get(e.Event) {
			c.HandlePointerMotion(pe)
		}
	case xproto.ButtonPressEvent:
		be := ButtonEvent{Window: e.Event, X: int(e.EventX), Y: int(e.EventY),
			RootX: int(e.RootX), RootY: int(e.RootY), Button: byte(e.Detail), State: e.State, Time: e.Time}
		for _, c := range d.windowConsumers.get(e.Event) {
			c.HandleButtonPress(be)
		}
		// Release a synchronous click-to-focus grab and let the client see the click.
		if err := d.conn.AllowEvents(true, e.Time); err != nil {
			d.logger.Debug("failed to replay pointer", "error", err)
		}
	case xproto.ButtonReleaseEvent:
		be := ButtonEvent{Window: e.Event, X: int(e.EventX), Y: int(e.EventY),
			RootX: int(e.RootX), RootY: int(e.RootY), Button: byte(e.Detail), State: e.State, Time: e.Time}
		for _, c := range d.windowConsumers.get(e.Event) {
			c.HandleButtonRelease(be)
		}
	case xproto.KeyPressEvent:
		d.handleKeyPress(e)
	case xproto.KeyReleaseEvent:
		d.pendingRelease = &e
	case xproto.MappingNotifyEvent:
		d.handleMappingNotify(e)
	default:
		d.logger.Debug("unhandled event", "event", ev.String())
	}
}

// Flush delivers a buffered key release. The event loop calls it whenever
// no further event is queued, so a release not followed by an autorepeat
// press is not held back.
func (d *Dispatcher) Flush() {
	if d.dispatching {
		return
	}
	d.flushPendingRelease()
}

func (d *Dispatcher) flushPendingRelease() {
	release := d.pendingRelease
	if release == nil {
		return
	}
	d.pendingRelease = nil
	if d.keys == nil {
		return
	}
	d.keys.HandleKeyUp(d.conn.Keysym(release.Detail), release.State)
}

func (d *Dispatcher) handleKeyPress(e xproto.KeyPressEvent) {
	if d.keys == nil {
		return
	}
	sym := d.conn.Keysym(e.Detail)
	if !d.keys.HandleKeyDown(sym, e.State) {
		d.logger.Debug("unbound key", "keycode", e.Detail, "keysym", sym, "state", e.State)
	}
}

func (d *Dispatcher) handleMappingNotify(e xproto.MappingNotifyEvent) {
	if e.Request == xproto.MappingPointer {
		return
	}
	if err := d.conn.RefreshKeyboardMapping(); err != nil {
		d.logger.Warn("failed to refresh keyboard mapping", "error", err)
		return
	}
	if r, ok := d.keys.(interface{ RefreshGrabs() }); ok {
		r.RefreshGrabs()
	}
}

func (d *Dispatcher) handleCreateNotify(e xproto.CreateNotifyEvent) {
	if e.Parent != d.conn.Root() {
		return
	}
	d.stacking.AddOnTop(e.Window)
	d.Track(e.Window, e.OverrideRedirect)
}

func (d *Dispatcher) handleReparentNotify(e xproto.ReparentNotifyEvent) {
	if e.Parent != d.conn.Root() {
		d.forget(e.Window)
		return
	}
	d.stacking.AddOnTop(e.Window)
	d.Track(e.Window, e.OverrideRedirect)
}

func (d *Dispatcher) handleMapRequest(e xproto.MapRequestEvent) {
	w := d.windows[e.Window]
	if w == nil {
		if w = d.Track(e.Window, false); w == nil {
			d.logger.Warn("map request for untrackable window", "window", uint32(e.Window))
			return
		}
	}
	for _, c := range d.lifecycleConsumers() {
		if c.HandleMapRequest(w) {
			return
		}
	}
	w.logger.Warn("map request not claimed by any consumer")
}

func (d *Dispatcher) handleConfigureNotify(e xproto.ConfigureNotifyEvent) {
	if e.Window == d.conn.Root() {
		return
	}
	if e.AboveSibling == 0 {
		d.stacking.AddOnBottom(e.Window)
	} else if err := d.stacking.AddAbove(e.Window, e.AboveSibling); err != nil {
		d.logger.Warn("restack relative to unknown sibling, placing at bottom",
			"window", uint32(e.Window), "sibling", uint32(e.AboveSibling), "error", err)
		d.stacking.AddOnBottom(e.Window)
	}
	if w := d.windows[e.Window]; w != nil {
		w.applyConfigureNotify(int(e.X), int(e.Y), int(e.Width), int(e.Height))
	}
	d.publish()
}

func (d *Dispatcher) handleConfigureRequest(e xproto.ConfigureRequestEvent) {
	req := ConfigureRequest{
		X:           int(e.X),
		Y:           int(e.Y),
		Width:       int(e.Width),
		Height:      int(e.Height),
		BorderWidth: int(e.BorderWidth),
		Sibling:     e.Sibling,
		StackMode:   e.StackMode,
		Mask:        e.ValueMask,
	}
	w := d.windows[e.Window]
	consumers := d.lifecycleConsumers()
	if w == nil || w.override || !w.mapped || len(consumers) == 0 {
		d.applyConfigureRequest(e.Window, w, req)
		return
	}
	for _, c := range consumers {
		c.HandleConfigureRequest(w, req)
	}
	// Whatever the consumers decided, tell the client where it ended up.
	if err := d.conn.SendConfigureNotify(w.id, w.ClientRect()); err != nil {
		w.logger.Debug("failed to send synthetic configure notify", "error", err)
	}
}

// applyConfigureRequest grants a request as asked, within the size hints.
func (d *Dispatcher) applyConfigureRequest(win xproto.Window, w *Window, req ConfigureRequest) {
	if w != nil && req.HasSize() {
		width, height := req.Width, req.Height
		if req.Mask&xproto.ConfigWindowWidth == 0 {
			width = w.clientWidth
		}
		if req.Mask&xproto.ConfigWindowHeight == 0 {
			height = w.clientHeight
		}
		req.Width, req.Height = w.ClampSize(width, height)
	}

	var values []uint32
	if req.Mask&xproto.ConfigWindowX != 0 {
		values = append(values, uint32(int32(req.X)))
	}
	if req.Mask&xproto.ConfigWindowY != 0 {
		values = append(values, uint32(int32(req.Y)))
	}
	if req.Mask&xproto.ConfigWindowWidth != 0 {
		values = append(values, uint32(req.Width))
	}
	if req.Mask&xproto.ConfigWindowHeight != 0 {
		values = append(values, uint32(req.Height))
	}
	if req.Mask&xproto.ConfigWindowBorderWidth != 0 {
		values = append(values, uint32(req.BorderWidth))
	}
	if req.Mask&xproto.ConfigWindowSibling != 0 {
		values = append(values, uint32(req.Sibling))
	}
	if req.Mask&xproto.ConfigWindowStackMode != 0 {
		values = append(values, uint32(req.StackMode))
	}
	if len(values) == 0 {
		return
	}
	if err := d.conn.ConfigureWindow(win, req.Mask, values); err != nil {
		d.logger.Debug("failed to apply configure request", "window", uint32(win), "error", err)
	}
}

func (d *Dispatcher) handlePropertyNotify(e xproto.PropertyNotifyEvent) {
	if w := d.windows[e.Window]; w != nil {
		var err error
		switch d.conn.AtomName(e.Atom) {
		case AtomWMNormalHints:
			err = w.FetchAndApplySizeHints()
		case AtomWMProtocols:
			err = w.FetchAndApplyWmProtocols()
		case AtomWMTransientFor:
			if !w.override {
				err = w.FetchAndApplyTransientHint()
			}
		case AtomNetWMWindowType:
			err = w.FetchAndApplyWindowType()
		case AtomNetWMWindowOpacity:
			err = w.FetchAndApplyOpacity()
		case AtomNetWMState:
			err = w.FetchAndApplyWmState()
		}
		if err != nil {
			w.logger.Debug("failed to apply property change", "atom", d.conn.AtomName(e.Atom), "error", err)
		}
	}

	deleted := e.State == xproto.PropertyDelete
	for _, c := range d.propertyConsumers.get(propertyKey{win: e.Window, atom: e.Atom}) {
		c.HandlePropertyChange(e.Window, e.Atom, deleted)
	}
}

func (d *Dispatcher) handleClientMessage(e xproto.ClientMessageEvent) {
	switch e.Type {
	case d.conn.Atom(AtomMessage):
		msg, err := DecodeMessage(e)
		if err != nil {
			d.logger.Warn("malformed custom message", "window", uint32(e.Window), "error", err)
			return
		}
		consumers := d.messageConsumers.get(msg.Type)
		if len(consumers) == 0 {
			d.logger.Debug("custom message without consumer", "type", msg.Type)
		}
		for _, c := range consumers {
			c.HandleCustomMessage(e.Window, msg)
		}
		return
	case d.conn.Atom(AtomNetWMState):
		d.handleStateRequest(e)
	case d.conn.Atom(AtomNetActiveWindow):
		if w := d.windows[e.Window]; w != nil && w.mapped {
			if err := w.RaiseClient(); err != nil {
				w.logger.Warn("failed to raise on activation request", "error", err)
			}
			if err := w.TakeFocus(xproto.Timestamp(e.Data.Data32[1])); err != nil {
				w.logger.Warn("failed to focus on activation request", "error", err)
			}
		}
	}
	for _, c := range d.lifecycleConsumers() {
		c.HandleClientMessage(e.Window, e.Type, e.Data.Data32)
	}
}

func (d *Dispatcher) handleStateRequest(e xproto.ClientMessageEvent) {
	w := d.windows[e.Window]
	if w == nil || e.Format != 32 {
		return
	}
	action := e.Data.Data32[0]
	for _, raw := range e.Data.Data32[1:3] {
		if raw == 0 {
			continue
		}
		var current bool
		var set func(bool) error
		switch d.conn.AtomName(xproto.Atom(raw)) {
		case AtomNetWMStateFullscreen:
			current, set = w.fullscreen, w.SetFullscreen
		case AtomNetWMStateModal:
			current, set = w.modal, w.SetModal
		default:
			continue
		}
		want := current
		switch action {
		case stateRemove:
			want = false
		case stateAdd:
			want = true
		case stateToggle:
			want = !current
		}
		if err := set(want); err != nil {
			w.logger.Warn("failed to apply state request", "error", err)
		}
	}
}

func (d *Dispatcher) handleFocus(win xproto.Window, mode, detail byte, in bool) {
	if mode == xproto.NotifyModeGrab || mode == xproto.NotifyModeUngrab ||
		detail == xproto.NotifyDetailPointer {
		return
	}
	if w := d.windows[win]; w != nil {
		w.focused = in
		if in && !w.override {
			d.setActive(win)
		}
	}
	for _, c := range d.windowConsumers.get(win) {
		c.HandleFocusChange(win, in)
	}
}
