package wm

import (
	"errors"
	"fmt"
	"slices"

	"github.com/BurntSushi/xgb/xproto"
)

var (
	// ErrAlreadyRegistered is returned when a consumer registers twice
	// under the same key.
	ErrAlreadyRegistered = errors.New("consumer already registered")
	// ErrNotRegistered is returned when unregistering an absent consumer.
	ErrNotRegistered = errors.New("consumer not registered")
)

type propertyKey struct {
	win  xproto.Window
	atom xproto.Atom
}

func (k propertyKey) String() string {
	return fmt.Sprintf("window %d atom %d", k.win, k.atom)
}

// registry is a multimap from a key to the consumers interested in it.
type registry[K comparable] struct {
	m map[K][]Consumer
}

func newRegistry[K comparable]() *registry[K] {
	return &registry[K]{m: make(map[K][]Consumer)}
}

func (r *registry[K]) add(key K, c Consumer) error {
	if slices.Contains(r.m[key], c) {
		return ErrAlreadyRegistered
	}
	r.m[key] = append(r.m[key], c)
	return nil
}

func (r *registry[K]) remove(key K, c Consumer) error {
	list := r.m[key]
	i := slices.Index(list, c)
	if i < 0 {
		return ErrNotRegistered
	}
	// Fan-out works on snapshots, so building a new slice keeps any
	// in-flight iteration stable.
	next := make([]Consumer, 0, len(list)-1)
	next = append(next, list[:i]...)
	next = append(next, list[i+1:]...)
	if len(next) == 0 {
		delete(r.m, key)
	} else {
		r.m[key] = next
	}
	return nil
}

// get returns the consumers for key. The returned slice is never mutated
// by later add/remove calls.
func (r *registry[K]) get(key K) []Consumer {
	return r.m[key]
}

func (r *registry[K]) has(key K, c Consumer) bool {
	return slices.Contains(r.m[key], c)
}

func (r *registry[K]) deleteWhere(match func(K) bool) {
	for k := range r.m {
		if match(k) {
			delete(r.m, k)
		}
	}
}

func (r *registry[K]) len() int {
	n := 0
	for _, list := range r.m {
		n += len(list)
	}
	return n
}

// RegisterConsumer adds c to the set of consumers receiving lifecycle
// callbacks and map requests.
func (d *Dispatcher) RegisterConsumer(c Consumer) error {
	if err := d.consumers.add(struct{}{}, c); err != nil {
		d.logger.Warn("consumer registration rejected", "error", err)
		return err
	}
	return nil
}

// UnregisterConsumer removes c from the lifecycle consumer set.
func (d *Dispatcher) UnregisterConsumer(c Consumer) {
	if err := d.consumers.remove(struct{}{}, c); err != nil {
		d.logger.Warn("consumer unregistration ignored", "error", err)
	}
}

// RegisterWindowConsumer routes input and focus events on win to c.
func (d *Dispatcher) RegisterWindowConsumer(win xproto.Window, c Consumer) error {
	if err := d.windowConsumers.add(win, c); err != nil {
		d.logger.Warn("window consumer registration rejected", "window", win, "error", err)
		return err
	}
	return nil
}

// UnregisterWindowConsumer stops routing input events on win to c.
func (d *Dispatcher) UnregisterWindowConsumer(win xproto.Window, c Consumer) {
	if err := d.windowConsumers.remove(win, c); err != nil {
		d.logger.Warn("window consumer unregistration ignored", "window", win, "error", err)
	}
}

// RegisterPropertyConsumer routes changes of atom on win to c.
func (d *Dispatcher) RegisterPropertyConsumer(win xproto.Window, atom xproto.Atom, c Consumer) error {
	key := propertyKey{win: win, atom: atom}
	if err := d.propertyConsumers.add(key, c); err != nil {
		d.logger.Warn("property consumer registration rejected", "key", key, "error", err)
		return err
	}
	return nil
}

// UnregisterPropertyConsumer stops routing changes of atom on win to c.
func (d *Dispatcher) UnregisterPropertyConsumer(win xproto.Window, atom xproto.Atom, c Consumer) {
	key := propertyKey{win: win, atom: atom}
	if err := d.propertyConsumers.remove(key, c); err != nil {
		d.logger.Warn("property consumer unregistration ignored", "key", key, "error", err)
	}
}

// RegisterMessageConsumer routes custom messages of type t to c.
func (d *Dispatcher) RegisterMessageConsumer(t MessageType, c Consumer) error {
	if err := d.messageConsumers.add(t, c); err != nil {
		d.logger.Warn("message consumer registration rejected", "type", t, "error", err)
		return err
	}
	return nil
}

// UnregisterMessageConsumer stops routing custom messages of type t to c.
func (d *Dispatcher) UnregisterMessageConsumer(t MessageType, c Consumer) {
	if err := d.messageConsumers.remove(t, c); err != nil {
		d.logger.Warn("message consumer unregistration ignored", "type", t, "error", err)
	}
}

func (d *Dispatcher) lifecycleConsumers() []Consumer {
	return d.consumers.get(struct{}{})
}

// forgetWindowKeys drops registry entries keyed on a destroyed window.
func (d *Dispatcher) forgetWindowKeys(win xproto.Window) {
	d.windowConsumers.deleteWhere(func(k xproto.Window) bool { return k == win })
	d.propertyConsumers.deleteWhere(func(k propertyKey) bool { return k.win == win })
}
