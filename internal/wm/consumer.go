package wm

import "github.com/BurntSushi/xgb/xproto"

// ConfigureRequest is a client's request to change its geometry or stacking.
type ConfigureRequest struct {
	X           int
	Y           int
	Width       int
	Height      int
	BorderWidth int
	Sibling     xproto.Window
	StackMode   byte
	Mask        uint16
}

// HasPosition reports whether the client asked for a new position.
func (r ConfigureRequest) HasPosition() bool {
	return r.Mask&(xproto.ConfigWindowX|xproto.ConfigWindowY) != 0
}

// HasSize reports whether the client asked for a new size.
func (r ConfigureRequest) HasSize() bool {
	return r.Mask&(xproto.ConfigWindowWidth|xproto.ConfigWindowHeight) != 0
}

// HasStacking reports whether the client asked to be restacked.
func (r ConfigureRequest) HasStacking() bool {
	return r.Mask&xproto.ConfigWindowStackMode != 0
}

// ButtonEvent describes a pointer button press or release.
type ButtonEvent struct {
	Window xproto.Window
	X      int
	Y      int
	RootX  int
	RootY  int
	Button byte
	State  uint16
	Time   xproto.Timestamp
}

// PointerEvent describes pointer enter, leave and motion.
type PointerEvent struct {
	Window xproto.Window
	X      int
	Y      int
	RootX  int
	RootY  int
	State  uint16
	Time   xproto.Timestamp
}

// Consumer receives window lifecycle and input callbacks from the
// Dispatcher. Map requests are offered to consumers in turn until one
// claims it; every other callback is broadcast, so a consumer must not
// assume it is the only recipient or that consumers run in a given order.
//
// Consumers are compared by identity, so implementations should be
// pointer types. Embed NopConsumer to implement only the callbacks needed.
type Consumer interface {
	// IsInputWindow reports whether win belongs to the consumer itself and
	// must not be tracked as a client.
	IsInputWindow(win xproto.Window) bool

	// HandleMapRequest returns true when the consumer claims the request
	// and has mapped (or deliberately declined to map) the window.
	HandleMapRequest(w *Window) bool
	HandleMap(w *Window)
	HandleUnmap(w *Window)
	HandleConfigureRequest(w *Window, req ConfigureRequest)

	HandleButtonPress(ev ButtonEvent)
	HandleButtonRelease(ev ButtonEvent)
	HandlePointerEnter(ev PointerEvent)
	HandlePointerLeave(ev PointerEvent)
	HandlePointerMotion(ev PointerEvent)

	HandleCustomMessage(win xproto.Window, msg CustomMessage)
	HandleClientMessage(win xproto.Window, typ xproto.Atom, data []uint32)
	HandleFocusChange(win xproto.Window, focusIn bool)
	HandlePropertyChange(win xproto.Window, atom xproto.Atom, deleted bool)
}

// NopConsumer implements Consumer with no-ops.
type NopConsumer struct{}

var _ Consumer = NopConsumer{}

func (NopConsumer) IsInputWindow(xproto.Window) bool                         { return false }
func (NopConsumer) HandleMapRequest(*Window) bool                            { return false }
func (NopConsumer) HandleMap(*Window)                                        {}
func (NopConsumer) HandleUnmap(*Window)                                      {}
func (NopConsumer) HandleConfigureRequest(*Window, ConfigureRequest)         {}
func (NopConsumer) HandleButtonPress(ButtonEvent)                            {}
func (NopConsumer) HandleButtonRelease(ButtonEvent)                          {}
func (NopConsumer) HandlePointerEnter(PointerEvent)                          {}
func (NopConsumer) HandlePointerLeave(PointerEvent)                          {}
func (NopConsumer) HandlePointerMotion(PointerEvent)                         {}
func (NopConsumer) HandleCustomMessage(xproto.Window, CustomMessage)         {}
func (NopConsumer) HandleClientMessage(xproto.Window, xproto.Atom, []uint32) {}
func (NopConsumer) HandleFocusChange(xproto.Window, bool)                    {}
func (NopConsumer) HandlePropertyChange(xproto.Window, xproto.Atom, bool)    {}

// KeyHandler receives key presses and releases translated to keysyms.
type KeyHandler interface {
	HandleKeyDown(sym xproto.Keysym, mods uint16) bool
	HandleKeyUp(sym xproto.Keysym, mods uint16) bool
}
