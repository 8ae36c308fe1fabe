package x11

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/shape"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"

	"github.com/1broseidon/compwm/internal/wm"
)

// ErrConnectionClosed is returned by ReceiveEvents once the server side
// of the connection is gone.
var ErrConnectionClosed = errors.New("x11 connection closed")

// Connection manages the X11 connection and core X resources
type Connection struct {
	XUtil *xgbutil.XUtil

	root    xproto.Window
	atoms   *AtomCache
	logger  *slog.Logger
	pending []xgb.Event
}

var _ wm.Conn = (*Connection)(nil)

// NewConnection establishes a connection to the X11 server and initializes
// the extensions a compositing manager needs.
func NewConnection(logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, err
	}

	// Initialize keybind module (required for keysym lookup and grabs)
	keybind.Initialize(xu)

	if err := composite.Init(xu.Conn()); err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("composite extension: %w", err)
	}
	if err := shape.Init(xu.Conn()); err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("shape extension: %w", err)
	}

	c := &Connection{
		XUtil:  xu,
		root:   xu.RootWin(),
		atoms:  NewAtomCache(xu),
		logger: logger.With("component", "x11"),
	}
	if err := c.atoms.Preload(wm.AtomNames); err != nil {
		c.Close()
		return nil, err
	}
	c.ConfigureIgnoreMods()
	return c, nil
}

// newClientConnection opens a plain connection for one-shot client
// requests made by CLI commands.
func newClientConnection() (*Connection, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, err
	}
	return &Connection{
		XUtil:  xu,
		root:   xu.RootWin(),
		atoms:  NewAtomCache(xu),
		logger: slog.Default(),
	}, nil
}

// ReceiveEvents reads events until ctx is done or the connection closes.
// Each call to handle gets one blocking read plus every event already
// queued behind it, so a key release and its autorepeat press arrive
// together. Protocol errors from asynchronous requests are logged; they
// usually name a window that has already been destroyed.
func (c *Connection) ReceiveEvents(ctx context.Context, handle func([]xgb.Event)) error {
	if pending := c.takePending(); len(pending) > 0 {
		handle(pending)
	}
	conn := c.XUtil.Conn()
	for {
		ev, xerr := conn.WaitForEvent()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ev == nil && xerr == nil {
			return ErrConnectionClosed
		}
		var batch []xgb.Event
		for {
			if xerr != nil {
				c.logger.Debug("asynchronous protocol error", "error", xerr)
			} else if ev != nil {
				batch = append(batch, ev)
			}
			ev, xerr = conn.PollForEvent()
			if ev == nil && xerr == nil {
				break
			}
		}
		if len(batch) > 0 {
			handle(batch)
		}
	}
}

// Close cleanly disconnects from the X11 server
func (c *Connection) Close() {
	c.XUtil.Conn().Close()
}

// Root returns the root window of the default screen.
func (c *Connection) Root() xproto.Window { return c.root }

// Atoms returns the connection's atom cache.
func (c *Connection) Atoms() *AtomCache { return c.atoms }

func (c *Connection) Atom(name string) xproto.Atom       { return c.atoms.Atom(name) }
func (c *Connection) AtomName(atom xproto.Atom) string { return c.atoms.AtomName(atom) }
