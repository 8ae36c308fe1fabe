package wm

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/1broseidon/compwm/internal/scene"
	"github.com/BurntSushi/xgb/xproto"
)

// Options tune a Dispatcher.
type Options struct {
	Logger *slog.Logger
	// Name is published as _NET_WM_NAME on the supporting check window.
	Name string
	// TransientFade is how long a newly attached transient takes to fade in.
	TransientFade time.Duration
	// MapFade is how long a newly mapped window takes to fade in.
	MapFade time.Duration
}

// Dispatcher tracks every child of the root window and routes X events to
// window state and registered consumers. All methods must be called from
// the single event goroutine.
type Dispatcher struct {
	conn   Conn
	stage  scene.Stage
	logger *slog.Logger
	opts   Options

	windows  map[xproto.Window]*Window
	internal map[xproto.Window]bool
	check    xproto.Window

	// stacking mirrors every root child, tracked or not, topmost first.
	stacking *StackingList
	// mapping holds mapped managed windows, most recently mapped first.
	mapping *StackingList
	active  xproto.Window

	consumers         *registry[struct{}]
	windowConsumers   *registry[xproto.Window]
	propertyConsumers *registry[propertyKey]
	messageConsumers  *registry[MessageType]

	keys           KeyHandler
	pendingRelease *xproto.KeyReleaseEvent
	dispatching    bool
	events         uint64

	publishedClients  []xproto.Window
	publishedStacking []xproto.Window
}

// NewDispatcher returns a dispatcher driving conn and stage.
func NewDispatcher(conn Conn, stage scene.Stage, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Name == "" {
		opts.Name = "compwm"
	}
	return &Dispatcher{
		conn:              conn,
		stage:             stage,
		logger:            opts.Logger.With("component", "dispatcher"),
		opts:              opts,
		windows:           make(map[xproto.Window]*Window),
		internal:          make(map[xproto.Window]bool),
		stacking:          NewStackingList(),
		mapping:           NewStackingList(),
		consumers:         newRegistry[struct{}](),
		windowConsumers:   newRegistry[xproto.Window](),
		propertyConsumers: newRegistry[propertyKey](),
		messageConsumers:  newRegistry[MessageType](),
	}
}

// Start takes over as window and compositing manager, then adopts every
// existing root child. An error here means the process cannot manage the
// display.
func (d *Dispatcher) Start(ctx context.Context) error {
	check, err := d.conn.CreateInternalWindow()
	if err != nil {
		return fmt.Errorf("create check window: %w", err)
	}
	d.check = check
	d.AddInternalWindow(check)

	if err := d.conn.AcquireManagerSelections(ctx, check); err != nil {
		return fmt.Errorf("acquire manager selections: %w", err)
	}

	mask := uint32(xproto.EventMaskSubstructureRedirect |
		xproto.EventMaskSubstructureNotify |
		xproto.EventMaskStructureNotify |
		xproto.EventMaskPropertyChange)
	if err := d.conn.SelectInput(d.conn.Root(), mask); err != nil {
		return fmt.Errorf("select root input: %w", err)
	}

	if err := d.conn.AnnounceSupport(check, d.opts.Name, supportedHints); err != nil {
		d.logger.Warn("failed to announce EWMH support", "error", err)
	}

	children, err := d.conn.QueryTree()
	if err != nil {
		return fmt.Errorf("query root children: %w", err)
	}
	for _, child := range children {
		d.stacking.AddOnTop(child)
	}
	for _, child := range children {
		attrs, err := d.conn.Attributes(child)
		if err != nil {
			d.logger.Debug("skipping vanished window", "window", uint32(child), "error", err)
			d.stacking.Remove(child)
			continue
		}
		w := d.Track(child, attrs.OverrideRedirect)
		if w != nil && attrs.Mapped {
			d.windowMapped(w)
		}
	}
	d.publishLists(true)
	d.logger.Info("managing display", "windows", len(d.windows), "root", uint32(d.conn.Root()))
	return nil
}

// AddInternalWindow marks win as window-manager bookkeeping that is never
// tracked.
func (d *Dispatcher) AddInternalWindow(win xproto.Window) {
	d.internal[win] = true
}

// SetKeyHandler installs the handler receiving key presses and releases.
func (d *Dispatcher) SetKeyHandler(k KeyHandler) {
	d.keys = k
}

// Track starts tracking win. It returns nil when the window is internal,
// input-only, claimed by a consumer as its own input window, or gone.
func (d *Dispatcher) Track(win xproto.Window, override bool) *Window {
	if d.internal[win] {
		return nil
	}
	if w := d.windows[win]; w != nil {
		d.logger.Warn("window already tracked", "window", uint32(win))
		return w
	}
	for _, c := range d.lifecycleConsumers() {
		if c.IsInputWindow(win) {
			return nil
		}
	}

	attrs, err := d.conn.Attributes(win)
	if err != nil {
		d.logger.Debug("cannot track window", "window", uint32(win), "error", err)
		return nil
	}
	if attrs.InputOnly {
		return nil
	}
	geom, err := d.conn.Geometry(win)
	if err != nil {
		d.logger.Debug("cannot read window geometry", "window", uint32(win), "error", err)
		return nil
	}

	w := newWindow(d, win, override || attrs.OverrideRedirect, geom)
	d.windows[win] = w

	mask := uint32(xproto.EventMaskPropertyChange |
		xproto.EventMaskFocusChange |
		xproto.EventMaskEnterWindow |
		xproto.EventMaskLeaveWindow)
	if err := d.conn.SelectInput(win, mask); err != nil {
		w.logger.Warn("failed to select window input", "error", err)
	}
	if err := d.conn.SelectShapeInput(win); err != nil {
		w.logger.Debug("failed to select shape input", "error", err)
	}

	w.fetchAll()
	if !w.override {
		if err := w.FetchAndApplyTransientHint(); err != nil {
			w.logger.Warn("failed to apply transient hint", "error", err)
		}
	}
	d.linkPendingTransients(w)

	w.logger.Debug("tracking window", "override", w.override,
		"x", geom.X, "y", geom.Y, "width", geom.Width, "height", geom.Height)
	return w
}

// Window returns the tracked window with the given id, or nil.
func (d *Dispatcher) Window(win xproto.Window) *Window {
	return d.windows[win]
}

// Windows returns every tracked window, topmost first.
func (d *Dispatcher) Windows() []*Window {
	out := make([]*Window, 0, len(d.windows))
	for _, id := range d.stacking.Items() {
		if w := d.windows[id]; w != nil {
			out = append(out, w)
		}
	}
	return out
}

// MappedWindows returns the mapped managed windows, most recently mapped first.
func (d *Dispatcher) MappedWindows() []*Window {
	ids := d.mapping.Items()
	out := make([]*Window, 0, len(ids))
	for _, id := range ids {
		if w := d.windows[id]; w != nil {
			out = append(out, w)
		}
	}
	return out
}

// Stacking returns every root child the dispatcher knows about, topmost first.
func (d *Dispatcher) Stacking() []xproto.Window {
	return d.stacking.Items()
}

// Active returns the window holding the input focus, or nil.
func (d *Dispatcher) Active() *Window {
	return d.windows[d.active]
}

// Conn returns the protocol connection.
func (d *Dispatcher) Conn() Conn { return d.conn }

// Stage returns the compositor stage.
func (d *Dispatcher) Stage() scene.Stage { return d.stage }

// Resync rebuilds the stacking list from the server's view of the root's
// children, adopting windows the dispatcher missed and dropping ones that
// vanished.
func (d *Dispatcher) Resync() error {
	children, err := d.conn.QueryTree()
	if err != nil {
		return fmt.Errorf("query root children: %w", err)
	}
	present := make(map[xproto.Window]bool, len(children))
	fresh := NewStackingList()
	for _, child := range children {
		present[child] = true
		fresh.AddOnTop(child)
	}
	for id := range d.windows {
		if !present[id] {
			d.logger.Info("dropping window missing from tree", "window", uint32(id))
			d.forget(id)
		}
	}
	d.stacking = fresh
	for _, child := range children {
		if d.windows[child] != nil || d.internal[child] {
			continue
		}
		attrs, err := d.conn.Attributes(child)
		if err != nil {
			continue
		}
		if w := d.Track(child, attrs.OverrideRedirect); w != nil && attrs.Mapped {
			d.windowMapped(w)
		}
	}
	d.publish()
	return nil
}

func (d *Dispatcher) windowMapped(w *Window) {
	if w.mapped {
		return
	}
	w.mapped = true
	if !w.override {
		d.mapping.AddOnTop(w.id)
		if err := d.conn.SetWMState(w.id, StateNormal); err != nil {
			w.logger.Debug("failed to set WM_STATE", "error", err)
		}
	}
	if err := d.conn.Redirect(w.id); err != nil {
		w.logger.Warn("failed to redirect window", "error", err)
	}
	w.ShowComposited()
	if w.owner == 0 && !w.override && d.opts.MapFade > 0 {
		w.actor.SetOpacity(0, 0)
		w.actor.SetOpacity(w.compOpacity, d.opts.MapFade)
	}

	for _, c := range d.lifecycleConsumers() {
		c.HandleMap(w)
	}
	d.publish()
}

func (d *Dispatcher) windowUnmapped(w *Window) {
	if !w.mapped {
		return
	}
	w.mapped = false
	for _, c := range d.lifecycleConsumers() {
		c.HandleUnmap(w)
	}
	d.mapping.Remove(w.id)
	w.HideComposited()
	w.focused = false
	if d.active == w.id {
		d.setActive(0)
	}
	if !w.override {
		if err := d.conn.SetWMState(w.id, StateWithdrawn); err != nil {
			w.logger.Debug("failed to set WM_STATE", "error", err)
		}
	}
	d.publish()
}

// forget drops every trace of win after it was destroyed or reparented away.
func (d *Dispatcher) forget(win xproto.Window) {
	d.stacking.Remove(win)
	d.mapping.Remove(win)
	delete(d.internal, win)
	w := d.windows[win]
	if w == nil {
		return
	}
	d.severTransients(w)
	d.forgetWindowKeys(win)
	if d.active == win {
		d.setActive(0)
	}
	w.actor.Destroy()
	delete(d.windows, win)
	w.logger.Debug("forgot window")
	d.publish()
}

func (d *Dispatcher) setActive(win xproto.Window) {
	if d.active == win {
		return
	}
	d.active = win
	if err := d.conn.SetActiveWindow(win); err != nil {
		d.logger.Warn("failed to publish active window", "window", uint32(win), "error", err)
	}
}

// publish writes the client lists to the root when they changed.
func (d *Dispatcher) publish() {
	d.publishLists(false)
}

func (d *Dispatcher) publishLists(force bool) {
	clients := d.mapping.BottomToTop()
	if force || !slices.Equal(clients, d.publishedClients) {
		if err := d.conn.SetClientList(clients); err != nil {
			d.logger.Warn("failed to publish client list", "error", err)
		} else {
			d.publishedClients = clients
		}
	}

	var stacking []xproto.Window
	for _, id := range d.stacking.BottomToTop() {
		if w := d.windows[id]; w != nil && w.mapped && !w.override {
			stacking = append(stacking, id)
		}
	}
	if force || !slices.Equal(stacking, d.publishedStacking) {
		if err := d.conn.SetClientListStacking(stacking); err != nil {
			d.logger.Warn("failed to publish stacking list", "error", err)
		} else {
			d.publishedStacking = stacking
		}
	}
}
