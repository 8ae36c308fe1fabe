package main

import (
	"context"
	"os"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/compwm/internal/ipc"
	"github.com/1broseidon/compwm/internal/wm"
)

// ipcHandler answers IPC requests by running on the event loop.
type ipcHandler struct {
	state *wmState
}

func (h *ipcHandler) Status(ctx context.Context) (ipc.StatusData, error) {
	var status ipc.StatusData
	err := h.state.loop.Do(ctx, func() error {
		snap := h.state.disp.Snapshot()
		status = ipc.StatusData{
			Name:        "compwm",
			Display:     os.Getenv("DISPLAY"),
			Windows:     len(snap.Windows),
			Mapped:      len(snap.Mapping),
			Active:      snap.Active,
			Consumers:   snap.Consumers,
			Events:      snap.Events,
			ConfigFiles: append([]string(nil), h.state.files...),
		}
		return nil
	})
	return status, err
}

func (h *ipcHandler) Windows(ctx context.Context) (ipc.WindowsData, error) {
	var snap wm.Snapshot
	err := h.state.loop.Do(ctx, func() error {
		snap = h.state.disp.Snapshot()
		return nil
	})
	return snap, err
}

func (h *ipcHandler) Bindings(ctx context.Context) (ipc.BindingsData, error) {
	var data ipc.BindingsData
	err := h.state.loop.Do(ctx, func() error {
		data = ipc.BindingsData{
			Bindings: h.state.keys.List(),
			Actions:  h.state.keys.Actions(),
		}
		return nil
	})
	return data, err
}

func (h *ipcHandler) Reload(ctx context.Context) error {
	return h.state.reload(ctx)
}

// SendMessage delivers a custom message. Window 0 addresses the window
// manager itself: the message is fed through the dispatcher as if a client
// had sent it to the root window.
func (h *ipcHandler) SendMessage(ctx context.Context, p ipc.SendMessagePayload) error {
	typ, err := wm.ParseMessageType(p.Type)
	if err != nil {
		return err
	}
	msg := wm.CustomMessage{Type: typ, Params: p.Params}
	return h.state.loop.Do(ctx, func() error {
		if p.Window == 0 {
			conn := h.state.conn
			h.state.disp.Dispatch(wm.EncodeMessage(conn.Root(), conn.Atom(wm.AtomMessage), msg))
			return nil
		}
		return h.state.disp.SendMessage(xproto.Window(p.Window), msg)
	})
}
