package wm

import (
	"context"

	"github.com/BurntSushi/xgb/xproto"
)

// Rect describes a rectangle in root window coordinates.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Attributes is the subset of window attributes the dispatcher needs.
type Attributes struct {
	OverrideRedirect bool
	InputOnly        bool
	Mapped           bool
}

// SizeHints holds the WM_NORMAL_HINTS constraints a client set. Zero
// fields mean "unset".
type SizeHints struct {
	MinWidth   int
	MinHeight  int
	MaxWidth   int
	MaxHeight  int
	BaseWidth  int
	BaseHeight int
	WidthInc   int
	HeightInc  int
}

// ICCCM WM_STATE values.
const (
	StateWithdrawn uint = 0
	StateNormal    uint = 1
	StateIconic    uint = 3
)

// Conn is the protocol surface the dispatcher drives. Every call that can
// fail because the target window vanished returns an error; callers log
// it and abort only the operation at hand.
type Conn interface {
	Root() xproto.Window
	Atom(name string) xproto.Atom
	AtomName(atom xproto.Atom) string

	// CreateInternalWindow creates an unmapped window owned by the window
	// manager itself.
	CreateInternalWindow() (xproto.Window, error)
	// AcquireManagerSelections takes the window- and compositing-manager
	// selections with owner, waiting for a previous owner to go away.
	AcquireManagerSelections(ctx context.Context, owner xproto.Window) error
	// AnnounceSupport publishes _NET_SUPPORTED and _NET_SUPPORTING_WM_CHECK.
	AnnounceSupport(check xproto.Window, name string, supported []string) error

	// QueryTree lists the root's children bottommost first.
	QueryTree() ([]xproto.Window, error)
	Attributes(win xproto.Window) (Attributes, error)
	Geometry(win xproto.Window) (Rect, error)
	SelectInput(win xproto.Window, mask uint32) error
	SelectShapeInput(win xproto.Window) error

	MapWindow(win xproto.Window) error
	UnmapWindow(win xproto.Window) error
	ConfigureWindow(win xproto.Window, mask uint16, values []uint32) error
	MoveResizeWindow(win xproto.Window, x, y, width, height int) error
	// StackWindow restacks win relative to sibling; a zero sibling means
	// the top (StackModeAbove) or bottom (StackModeBelow) of the stack.
	StackWindow(win, sibling xproto.Window, mode byte) error
	SetInputFocus(win xproto.Window, ts xproto.Timestamp) error
	SendClientMessage(win xproto.Window, typ xproto.Atom, data [5]uint32) error
	SendConfigureNotify(win xproto.Window, r Rect) error
	KillClient(win xproto.Window) error
	Redirect(win xproto.Window) error
	GrabButton(win xproto.Window, button byte, mods uint16, sync bool) error
	AllowEvents(replay bool, ts xproto.Timestamp) error

	SizeHints(win xproto.Window) (*SizeHints, error)
	TransientFor(win xproto.Window) (xproto.Window, error)
	Protocols(win xproto.Window) ([]string, error)
	WindowType(win xproto.Window) ([]string, error)
	WindowState(win xproto.Window) ([]string, error)
	// Opacity returns the _NET_WM_WINDOW_OPACITY hint in [0,1]; ok is
	// false when the property is absent.
	Opacity(win xproto.Window) (opacity float64, ok bool, err error)
	// ShapeRects returns the bounding shape, or nil when unshaped.
	ShapeRects(win xproto.Window) ([]Rect, error)

	SetWindowState(win xproto.Window, states []string) error
	SetWMState(win xproto.Window, state uint) error
	SetClientList(wins []xproto.Window) error
	SetClientListStacking(wins []xproto.Window) error
	SetActiveWindow(win xproto.Window) error

	// Keysym translates a keycode to its unshifted keysym.
	Keysym(code xproto.Keycode) xproto.Keysym
	RefreshKeyboardMapping() error
}

// Atom names the dispatcher resolves through Conn.Atom.
const (
	AtomWMProtocols           = "WM_PROTOCOLS"
	AtomWMDeleteWindow        = "WM_DELETE_WINDOW"
	AtomWMTakeFocus           = "WM_TAKE_FOCUS"
	AtomWMTransientFor        = "WM_TRANSIENT_FOR"
	AtomWMNormalHints         = "WM_NORMAL_HINTS"
	AtomWMState               = "WM_STATE"
	AtomNetWMState            = "_NET_WM_STATE"
	AtomNetWMStateFullscreen  = "_NET_WM_STATE_FULLSCREEN"
	AtomNetWMStateModal       = "_NET_WM_STATE_MODAL"
	AtomNetWMWindowType       = "_NET_WM_WINDOW_TYPE"
	AtomNetWMWindowOpacity    = "_NET_WM_WINDOW_OPACITY"
	AtomNetActiveWindow       = "_NET_ACTIVE_WINDOW"
	AtomNetClientList         = "_NET_CLIENT_LIST"
	AtomNetClientListStacking = "_NET_CLIENT_LIST_STACKING"
	AtomNetSupported          = "_NET_SUPPORTED"
	AtomNetSupportingWMCheck  = "_NET_SUPPORTING_WM_CHECK"
	AtomNetWMName             = "_NET_WM_NAME"
	AtomManager               = "MANAGER"
	AtomMessage               = "_COMPWM_MESSAGE"
)

// AtomNames lists every atom the dispatcher needs interned at start-up.
var AtomNames = []string{
	AtomWMProtocols,
	AtomWMDeleteWindow,
	AtomWMTakeFocus,
	AtomWMTransientFor,
	AtomWMNormalHints,
	AtomWMState,
	AtomNetWMState,
	AtomNetWMStateFullscreen,
	AtomNetWMStateModal,
	AtomNetWMWindowType,
	AtomNetWMWindowOpacity,
	AtomNetActiveWindow,
	AtomNetClientList,
	AtomNetClientListStacking,
	AtomNetSupported,
	AtomNetSupportingWMCheck,
	AtomNetWMName,
	AtomManager,
	AtomMessage,
}

// supportedHints is published in _NET_SUPPORTED.
var supportedHints = []string{
	AtomNetActiveWindow,
	AtomNetClientList,
	AtomNetClientListStacking,
	AtomNetSupportingWMCheck,
	AtomNetWMState,
	AtomNetWMStateFullscreen,
	AtomNetWMStateModal,
	AtomNetWMWindowType,
	AtomNetWMWindowOpacity,
	AtomNetWMName,
}
