package wm

import "github.com/BurntSushi/xgb/xproto"

// WindowInfo is a read-only copy of one window's state.
type WindowInfo struct {
	ID         uint32   `json:"id"`
	Override   bool     `json:"override"`
	Mapped     bool     `json:"mapped"`
	Focused    bool     `json:"focused"`
	Fullscreen bool     `json:"fullscreen"`
	Modal      bool     `json:"modal"`
	Shaped     bool     `json:"shaped"`
	Client     Rect     `json:"client"`
	CompX      int      `json:"comp_x"`
	CompY      int      `json:"comp_y"`
	ScaleX     float64  `json:"scale_x"`
	ScaleY     float64  `json:"scale_y"`
	Opacity    float64  `json:"opacity"`
	Owner      uint32   `json:"owner,omitempty"`
	Transients []uint32 `json:"transients,omitempty"`
	Types      []string `json:"types,omitempty"`
}

// Snapshot is a read-only copy of the dispatcher's bookkeeping, safe to
// hand to other goroutines.
type Snapshot struct {
	Windows   []WindowInfo `json:"windows"`
	Stacking  []uint32     `json:"stacking"`
	Mapping   []uint32     `json:"mapping"`
	Active    uint32       `json:"active"`
	Consumers int          `json:"consumers"`
	Events    uint64       `json:"events"`
}

// Info returns a copy of the window's state.
func (w *Window) Info() WindowInfo {
	return WindowInfo{
		ID:         uint32(w.id),
		Override:   w.override,
		Mapped:     w.mapped,
		Focused:    w.focused,
		Fullscreen: w.fullscreen,
		Modal:      w.modal,
		Shaped:     w.shape != nil,
		Client:     w.ClientRect(),
		CompX:      w.compX,
		CompY:      w.compY,
		ScaleX:     w.compScaleX,
		ScaleY:     w.compScaleY,
		Opacity:    w.compOpacity,
		Owner:      uint32(w.owner),
		Transients: ids(w.Transients()),
		Types:      w.Types(),
	}
}

// Snapshot copies the dispatcher's state. Windows are listed topmost first.
func (d *Dispatcher) Snapshot() Snapshot {
	consumers := d.consumers.len() + d.windowConsumers.len() +
		d.propertyConsumers.len() + d.messageConsumers.len()
	s := Snapshot{
		Stacking:  ids(d.stacking.Items()),
		Mapping:   ids(d.mapping.Items()),
		Active:    uint32(d.active),
		Consumers: consumers,
		Events:    d.events,
	}
	for _, w := range d.Windows() {
		s.Windows = append(s.Windows, w.Info())
	}
	return s
}

func ids(wins []xproto.Window) []uint32 {
	if len(wins) == 0 {
		return nil
	}
	out := make([]uint32, len(wins))
	for i, w := range wins {
		out[i] = uint32(w)
	}
	return out
}
