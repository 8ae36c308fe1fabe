package wm

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
)

// _NET_WM_STATE client message actions.
const (
	StateAdd    = stateAdd
	StateToggle = stateToggle
)

// CheckTransients verifies C is in O's transients iff C's owner is O, and
// that no window owns itself transitively.
func CheckTransients(d *Dispatcher) error {
	for _, w := range d.windows {
		for _, id := range w.Transients() {
			child := d.windows[id]
			if child == nil {
				return fmt.Errorf("window %d lists untracked transient %d", w.id, id)
			}
			if child.owner != w.id {
				return fmt.Errorf("window %d lists transient %d owned by %d", w.id, id, child.owner)
			}
		}
		if w.owner != 0 {
			owner := d.windows[w.owner]
			if owner == nil || owner.findTransient(w.id) == nil {
				return fmt.Errorf("window %d claims owner %d that does not list it", w.id, w.owner)
			}
		}
		seen := map[xproto.Window]bool{w.id: true}
		for o := d.windows[w.owner]; o != nil; o = d.windows[o.owner] {
			if seen[o.id] {
				return fmt.Errorf("transient cycle through window %d", w.id)
			}
			seen[o.id] = true
		}
	}
	return nil
}
