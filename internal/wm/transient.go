package wm

import (
	"errors"
	"fmt"
	"slices"

	"github.com/BurntSushi/xgb/xproto"
)

// ErrTransientCycle is returned when linking a transient would make a
// window transient for itself.
var ErrTransientCycle = errors.New("transient relationship would form a cycle")

// transient is an owner's record of one transient child.
type transient struct {
	id      xproto.Window
	offsetX int
	offsetY int
}

// SetTransientFor makes child a transient of owner, or detaches it when
// owner is nil. On attach the child is centered over the owner, stacked
// directly above it and faded in to the owner's opacity.
func (d *Dispatcher) SetTransientFor(child, owner *Window) error {
	if child == nil {
		return fmt.Errorf("set transient: nil child")
	}
	if owner == nil {
		d.detachTransient(child)
		return nil
	}
	for o := owner; o != nil; o = d.windows[o.owner] {
		if o == child {
			d.logger.Warn("rejected transient cycle",
				"child", uint32(child.id), "owner", uint32(owner.id))
			return ErrTransientCycle
		}
	}
	if child.owner == owner.id {
		return nil
	}
	d.detachTransient(child)

	owner.transients = append([]*transient{{id: child.id}}, owner.transients...)
	child.owner = owner.id
	child.pendingOwner = 0

	x := owner.clientX + (owner.clientWidth-child.clientWidth)/2
	y := owner.clientY + (owner.clientHeight-child.clientHeight)/2
	if err := child.MoveClient(x, y); err != nil {
		child.logger.Warn("failed to center transient over owner", "error", err)
		child.refreshOwnerOffset()
	}

	t := owner.findTransient(child.id)
	child.ScaleComposited(owner.compScaleX, owner.compScaleY, 0)
	child.MoveComposited(owner.compX+scaled(t.offsetX, owner.compScaleX),
		owner.compY+scaled(t.offsetY, owner.compScaleY), 0)

	if err := d.conn.StackWindow(child.id, owner.id, xproto.StackModeAbove); err != nil {
		child.logger.Warn("failed to stack transient above owner", "error", err)
	}
	child.actor.Raise(owner.actor)

	child.actor.SetOpacity(0, 0)
	child.SetCompositedOpacity(owner.compOpacity, d.opts.TransientFade)

	d.logger.Debug("attached transient", "child", uint32(child.id), "owner", uint32(owner.id))
	return nil
}

// detachTransient removes child from its owner's collection, validating
// both sides before touching either.
func (d *Dispatcher) detachTransient(child *Window) {
	if child.owner == 0 {
		return
	}
	if owner := d.windows[child.owner]; owner != nil {
		if !owner.removeTransient(child.id) {
			d.logger.Warn("transient missing from owner's collection",
				"child", uint32(child.id), "owner", uint32(owner.id))
		}
	}
	child.owner = 0
}

// severTransients cuts every transient edge touching w before it goes away.
func (d *Dispatcher) severTransients(w *Window) {
	d.detachTransient(w)
	for _, t := range w.transients {
		if child := d.windows[t.id]; child != nil && child.owner == w.id {
			child.owner = 0
		}
	}
	w.transients = nil
}

// linkPendingTransients attaches windows whose hint named owner before
// owner was tracked.
func (d *Dispatcher) linkPendingTransients(owner *Window) {
	for _, child := range d.windows {
		if child.pendingOwner != owner.id || child == owner {
			continue
		}
		if err := d.SetTransientFor(child, owner); err != nil {
			child.logger.Warn("failed to link pending transient", "owner", uint32(owner.id), "error", err)
		}
	}
}

func (w *Window) findTransient(id xproto.Window) *transient {
	for _, t := range w.transients {
		if t.id == id {
			return t
		}
	}
	return nil
}

func (w *Window) removeTransient(id xproto.Window) bool {
	i := slices.IndexFunc(w.transients, func(t *transient) bool { return t.id == id })
	if i < 0 {
		return false
	}
	w.transients = slices.Delete(w.transients, i, i+1)
	return true
}

// promoteTransient moves id to the top of the transient collection.
func (w *Window) promoteTransient(id xproto.Window) {
	i := slices.IndexFunc(w.transients, func(t *transient) bool { return t.id == id })
	if i <= 0 {
		return
	}
	t := w.transients[i]
	w.transients = slices.Delete(w.transients, i, i+1)
	w.transients = append([]*transient{t}, w.transients...)
}

// refreshOwnerOffset recaptures this window's offset from its owner.
func (w *Window) refreshOwnerOffset() {
	if w.owner == 0 {
		return
	}
	owner := w.d.windows[w.owner]
	if owner == nil {
		return
	}
	if t := owner.findTransient(w.id); t != nil {
		t.offsetX = w.clientX - owner.clientX
		t.offsetY = w.clientY - owner.clientY
	}
}

// eachTransient calls fn for every live transient. Stale entries whose
// child no longer points back at w are dropped.
func (w *Window) eachTransient(fn func(child *Window, t *transient)) {
	live := w.transients[:0:0]
	for _, t := range w.transients {
		child := w.d.windows[t.id]
		if child == nil || child.owner != w.id {
			w.logger.Warn("dropping stale transient", "child", uint32(t.id))
			continue
		}
		live = append(live, t)
	}
	w.transients = live
	for _, t := range slices.Clone(live) {
		if child := w.d.windows[t.id]; child != nil {
			fn(child, t)
		}
	}
}
