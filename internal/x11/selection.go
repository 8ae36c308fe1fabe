package x11

import (
	"context"
	"fmt"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/compwm/internal/wm"
)

const ownerPollInterval = 50 * time.Millisecond

// ManagerSelections returns the selection names a compositing window
// manager owns on screen.
func ManagerSelections(screen int) []string {
	return []string{
		fmt.Sprintf("WM_S%d", screen),
		fmt.Sprintf("_NET_WM_CM_S%d", screen),
	}
}

// AcquireManagerSelections takes WM_S<n> and _NET_WM_CM_S<n> with owner.
// A previous owner is given until ctx is done to destroy its selection
// window; each acquisition is announced with a MANAGER client message on
// the root window.
//
// It must run before ReceiveEvents: it reads events itself to obtain a
// server timestamp and replays the rest later.
func (c *Connection) AcquireManagerSelections(ctx context.Context, owner xproto.Window) error {
	ts, err := c.serverTime(owner)
	if err != nil {
		return err
	}

	for _, name := range ManagerSelections(c.XUtil.Conn().DefaultScreen) {
		if err := c.acquireSelection(ctx, name, owner, ts); err != nil {
			return err
		}
		c.logger.Info("acquired manager selection", "selection", name)
	}
	return nil
}

func (c *Connection) acquireSelection(ctx context.Context, name string, owner xproto.Window, ts xproto.Timestamp) error {
	conn := c.XUtil.Conn()
	selection := c.Atom(name)
	if selection == xproto.AtomNone {
		return fmt.Errorf("intern %s failed", name)
	}

	prev, err := xproto.GetSelectionOwner(conn, selection).Reply()
	if err != nil {
		return fmt.Errorf("get owner of %s: %w", name, err)
	}
	if prev.Owner != xproto.WindowNone {
		c.logger.Info("replacing existing manager", "selection", name, "owner", uint32(prev.Owner))
	}

	if err := xproto.SetSelectionOwnerChecked(conn, owner, selection, ts).Check(); err != nil {
		return fmt.Errorf("set owner of %s: %w", name, err)
	}
	got, err := xproto.GetSelectionOwner(conn, selection).Reply()
	if err != nil {
		return fmt.Errorf("verify owner of %s: %w", name, err)
	}
	if got.Owner != owner {
		return fmt.Errorf("could not acquire %s: owned by %d", name, got.Owner)
	}

	if prev.Owner != xproto.WindowNone && prev.Owner != owner {
		if err := c.waitDestroyed(ctx, prev.Owner); err != nil {
			return fmt.Errorf("previous owner of %s: %w", name, err)
		}
	}

	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: c.root,
		Type:   c.Atom(wm.AtomManager),
		Data: xproto.ClientMessageDataUnionData32New([]uint32{
			uint32(ts), uint32(selection), uint32(owner), 0, 0,
		}),
	}
	err = xproto.SendEventChecked(conn, false, c.root,
		xproto.EventMaskStructureNotify, string(ev.Bytes())).Check()
	if err != nil {
		return fmt.Errorf("announce %s: %w", name, err)
	}
	return nil
}

// waitDestroyed polls until win no longer exists or ctx is done.
func (c *Connection) waitDestroyed(ctx context.Context, win xproto.Window) error {
	ticker := time.NewTicker(ownerPollInterval)
	defer ticker.Stop()
	for {
		if _, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(win)).Reply(); err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("window %d still alive: %w", win, ctx.Err())
		case <-ticker.C:
		}
	}
}

// serverTime obtains a real server timestamp by touching a property on
// win and waiting for the resulting PropertyNotify. Unrelated events read
// meanwhile are queued for ReceiveEvents.
func (c *Connection) serverTime(win xproto.Window) (xproto.Timestamp, error) {
	conn := c.XUtil.Conn()
	prop := c.Atom(wm.AtomNetWMName)
	utf8 := c.Atom("UTF8_STRING")
	err := xproto.ChangePropertyChecked(conn, xproto.PropModeAppend, win,
		prop, utf8, 8, 0, nil).Check()
	if err != nil {
		return 0, fmt.Errorf("touch property for timestamp: %w", err)
	}

	for {
		ev, xerr := conn.WaitForEvent()
		switch {
		case ev == nil && xerr == nil:
			return 0, ErrConnectionClosed
		case xerr != nil:
			c.logger.Debug("asynchronous protocol error", "error", xerr)
			continue
		}
		if pn, ok := ev.(xproto.PropertyNotifyEvent); ok && pn.Window == win && pn.Atom == prop {
			return pn.Time, nil
		}
		c.pending = append(c.pending, ev)
	}
}

// takePending hands back events read ahead by serverTime.
func (c *Connection) takePending() []xgb.Event {
	pending := c.pending
	c.pending = nil
	return pending
}
