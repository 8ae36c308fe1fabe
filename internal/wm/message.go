package wm

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
)

// MessageType tags a custom message exchanged with cooperating clients
// over _COMPWM_MESSAGE client messages.
type MessageType uint32

const (
	// MessageNotifyWindowType tells the window manager what role a client
	// window plays. Params[0] is the window, Params[1] the type.
	MessageNotifyWindowType MessageType = iota + 1
	// MessageSwitchLayoutMode asks for a layout mode change. Params[0] is
	// the requested mode.
	MessageSwitchLayoutMode
	// MessageReportMetrics asks the window manager to report its usage
	// counters back to the sender.
	MessageReportMetrics
	// MessageSetOpacity sets a window's composited opacity. Params[0] is
	// the window, Params[1] the opacity in percent and Params[2] the
	// animation duration in milliseconds.
	MessageSetOpacity
)

func (t MessageType) String() string {
	switch t {
	case MessageNotifyWindowType:
		return "notify-window-type"
	case MessageSwitchLayoutMode:
		return "switch-layout-mode"
	case MessageReportMetrics:
		return "report-metrics"
	case MessageSetOpacity:
		return "set-opacity"
	default:
		return fmt.Sprintf("message-%d", uint32(t))
	}
}

// ParseMessageType resolves a message type by name.
func ParseMessageType(name string) (MessageType, error) {
	for t := MessageNotifyWindowType; t <= MessageSetOpacity; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown message type %q", name)
}

// CustomMessage is the typed envelope carried in a client message: a type
// tag plus up to four integer parameters.
type CustomMessage struct {
	Type   MessageType
	Params [4]int32
}

// Data returns the message packed into 32-bit client message data.
func (m CustomMessage) Data() [5]uint32 {
	var data [5]uint32
	data[0] = uint32(m.Type)
	for i, p := range m.Params {
		data[i+1] = uint32(p)
	}
	return data
}

// EncodeMessage builds the client message event carrying msg to win.
func EncodeMessage(win xproto.Window, typ xproto.Atom, msg CustomMessage) xproto.ClientMessageEvent {
	data := msg.Data()
	return xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   typ,
		Data:   xproto.ClientMessageDataUnionData32New(data[:]),
	}
}

// DecodeMessage unpacks a custom message from a client message event.
func DecodeMessage(ev xproto.ClientMessageEvent) (CustomMessage, error) {
	if ev.Format != 32 {
		return CustomMessage{}, fmt.Errorf("custom message has format %d, want 32", ev.Format)
	}
	data := ev.Data.Data32
	if len(data) < 1 || data[0] == 0 {
		return CustomMessage{}, fmt.Errorf("custom message has no type")
	}
	msg := CustomMessage{Type: MessageType(data[0])}
	for i := 1; i < len(data) && i <= len(msg.Params); i++ {
		msg.Params[i-1] = int32(data[i])
	}
	return msg, nil
}

// SendMessage delivers msg to a cooperating client's window.
func (d *Dispatcher) SendMessage(win xproto.Window, msg CustomMessage) error {
	if err := d.conn.SendClientMessage(win, d.conn.Atom(AtomMessage), msg.Data()); err != nil {
		return fmt.Errorf("send %s to window %d: %w", msg.Type, win, err)
	}
	return nil
}
