package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"unicode"

	"github.com/BurntSushi/xgb/xproto"
)

var (
	ErrActionExists   = errors.New("action already exists")
	ErrUnknownAction  = errors.New("unknown action")
	ErrBindingExists  = errors.New("key combo already bound")
	ErrUnknownBinding = errors.New("key combo not bound")
)

// keyModMask keeps the modifier bits of an event state and drops the
// pointer button bits.
const keyModMask = xproto.ModMaskShift | xproto.ModMaskLock | xproto.ModMaskControl |
	xproto.ModMask1 | xproto.ModMask2 | xproto.ModMask3 | xproto.ModMask4 | xproto.ModMask5

// KeyCombo is a normalized key symbol plus modifier mask.
type KeyCombo struct {
	KeySym    xproto.Keysym
	Modifiers uint16
}

// Action is a named set of callbacks. Any callback may be nil.
type Action struct {
	Name   string
	Begin  func()
	Repeat func()
	End    func()

	combos  []KeyCombo
	running bool
}

// Grabber installs passive key grabs for bound combos.
type Grabber interface {
	GrabKey(sym xproto.Keysym, mods uint16) error
	UngrabKey(sym xproto.Keysym, mods uint16) error
}

// Bindings maps key combos to actions and tracks which actions are held
// down. It is not safe for concurrent use; it runs on the event loop.
type Bindings struct {
	logger  *slog.Logger
	grabber Grabber
	ignore  uint16

	actions map[string]*Action
	combos  map[KeyCombo]*Action
	// running is indexed by key symbol alone so a release reported with a
	// stale modifier mask still finds its action.
	running map[xproto.Keysym]*Action
}

// NewBindings creates an empty binding table. grabber may be nil, in which
// case no grabs are installed.
func NewBindings(logger *slog.Logger, grabber Grabber) *Bindings {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bindings{
		logger:  logger.With("component", "hotkeys"),
		grabber: grabber,
		ignore:  xproto.ModMaskLock,
		actions: make(map[string]*Action),
		combos:  make(map[KeyCombo]*Action),
		running: make(map[xproto.Keysym]*Action),
	}
}

// SetIgnoredModifiers sets the lock-style modifiers stripped from every
// combo and event. CapsLock is always ignored.
func (b *Bindings) SetIgnoredModifiers(mask uint16) {
	b.ignore = mask | xproto.ModMaskLock
}

// Normalize folds sym to its lowercase form and strips ignored modifiers.
func (b *Bindings) Normalize(sym xproto.Keysym, mods uint16) KeyCombo {
	return KeyCombo{KeySym: lowerKeysym(sym), Modifiers: mods & keyModMask &^ b.ignore}
}

// lowerKeysym folds Latin-1 keysyms, whose values equal their code points,
// to lowercase. Other keysyms are returned unchanged.
func lowerKeysym(sym xproto.Keysym) xproto.Keysym {
	if sym > 0xff {
		return sym
	}
	return xproto.Keysym(unicode.ToLower(rune(sym)))
}

// AddAction registers a named action.
func (b *Bindings) AddAction(name string, begin, repeat, end func()) error {
	if _, ok := b.actions[name]; ok {
		b.logger.Warn("action already exists", "action", name)
		return fmt.Errorf("add action %q: %w", name, ErrActionExists)
	}
	b.actions[name] = &Action{Name: name, Begin: begin, Repeat: repeat, End: end}
	return nil
}

// AddBinding binds combo to the named action and grabs it.
func (b *Bindings) AddBinding(combo KeyCombo, action string) error {
	combo = b.Normalize(combo.KeySym, combo.Modifiers)
	a, ok := b.actions[action]
	if !ok {
		b.logger.Warn("binding to unknown action", "action", action, "combo", FormatCombo(combo))
		return fmt.Errorf("bind %s: %w %q", FormatCombo(combo), ErrUnknownAction, action)
	}
	if other, ok := b.combos[combo]; ok {
		b.logger.Warn("key combo already bound", "combo", FormatCombo(combo), "action", other.Name)
		return fmt.Errorf("bind %s to %q: %w to %q", FormatCombo(combo), action, ErrBindingExists, other.Name)
	}
	if b.grabber != nil {
		if err := b.grabber.GrabKey(combo.KeySym, combo.Modifiers); err != nil {
			return fmt.Errorf("bind %s: %w", FormatCombo(combo), err)
		}
	}
	b.combos[combo] = a
	a.combos = append(a.combos, combo)
	return nil
}

// RemoveBinding unbinds combo. Removing the last binding of a held action
// drops it from the running set without calling its End callback.
func (b *Bindings) RemoveBinding(combo KeyCombo) error {
	combo = b.Normalize(combo.KeySym, combo.Modifiers)
	a, ok := b.combos[combo]
	if !ok {
		b.logger.Warn("removing unbound key combo", "combo", FormatCombo(combo))
		return fmt.Errorf("unbind %s: %w", FormatCombo(combo), ErrUnknownBinding)
	}
	b.unbind(a, combo)
	return nil
}

// RemoveAction removes the named action and every binding to it.
func (b *Bindings) RemoveAction(name string) error {
	a, ok := b.actions[name]
	if !ok {
		b.logger.Warn("removing unknown action", "action", name)
		return fmt.Errorf("remove action %q: %w", name, ErrUnknownAction)
	}
	for _, combo := range slices.Clone(a.combos) {
		b.unbind(a, combo)
	}
	b.stop(a)
	delete(b.actions, name)
	return nil
}

// ClearBindings removes every binding but keeps the actions.
func (b *Bindings) ClearBindings() {
	for combo, a := range b.combos {
		b.unbind(a, combo)
	}
}

func (b *Bindings) unbind(a *Action, combo KeyCombo) {
	delete(b.combos, combo)
	if i := slices.Index(a.combos, combo); i >= 0 {
		a.combos = slices.Delete(a.combos, i, i+1)
	}
	if b.grabber != nil {
		if err := b.grabber.UngrabKey(combo.KeySym, combo.Modifiers); err != nil {
			b.logger.Warn("failed to ungrab key", "combo", FormatCombo(combo), "error", err)
		}
	}
	if len(a.combos) == 0 {
		b.stop(a)
	}
}

// stop forgets that a is held.
func (b *Bindings) stop(a *Action) {
	if !a.running {
		return
	}
	for sym, r := range b.running {
		if r == a {
			delete(b.running, sym)
		}
	}
	a.running = false
}

// HandleKeyDown runs Begin on the first press of a bound combo and Repeat
// on later presses while the action is held. It reports whether a
// callback ran.
func (b *Bindings) HandleKeyDown(sym xproto.Keysym, mods uint16) bool {
	combo := b.Normalize(sym, mods)
	a, ok := b.combos[combo]
	if !ok {
		return false
	}
	if a.running {
		return call(a.Repeat)
	}
	// A keysym holds one action: end whatever another modifier set began.
	if prev, ok := b.running[combo.KeySym]; ok {
		b.stop(prev)
		call(prev.End)
	}
	a.running = true
	b.running[combo.KeySym] = a
	return call(a.Begin)
}

// HandleKeyUp ends the action held by sym regardless of mods.
func (b *Bindings) HandleKeyUp(sym xproto.Keysym, mods uint16) bool {
	sym = lowerKeysym(sym)
	a, ok := b.running[sym]
	if !ok {
		return false
	}
	delete(b.running, sym)
	a.running = false
	return call(a.End)
}

// Running reports whether the named action is held down.
func (b *Bindings) Running(name string) bool {
	a, ok := b.actions[name]
	return ok && a.running
}

// Trigger runs the named action once as a press and release. It does
// nothing while the action is held by a key.
func (b *Bindings) Trigger(name string) error {
	a, ok := b.actions[name]
	if !ok {
		return fmt.Errorf("trigger %q: %w", name, ErrUnknownAction)
	}
	if a.running {
		return nil
	}
	call(a.Begin)
	call(a.End)
	return nil
}

// RefreshGrabs reinstalls every grab after the keyboard mapping changed.
func (b *Bindings) RefreshGrabs() {
	if b.grabber == nil {
		return
	}
	for combo := range b.combos {
		if err := b.grabber.GrabKey(combo.KeySym, combo.Modifiers); err != nil {
			b.logger.Warn("failed to regrab key", "combo", FormatCombo(combo), "error", err)
		}
	}
}

// Load replaces every binding with keys, a map from action name to key
// strings. Keys that fail to parse or grab are skipped and reported
// together; the others stay bound.
func (b *Bindings) Load(keys map[string][]string, lookup KeysymLookup) error {
	b.ClearBindings()
	var errs []error
	for _, action := range sortedNames(keys) {
		for _, s := range keys[action] {
			combo, err := ParseCombo(s, lookup)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", action, err))
				continue
			}
			if err := b.AddBinding(combo, action); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func sortedNames(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BindingInfo describes one binding for listings.
type BindingInfo struct {
	Action string `json:"action"`
	Keys   string `json:"keys"`
}

// List returns every binding sorted by action then key string.
func (b *Bindings) List() []BindingInfo {
	out := make([]BindingInfo, 0, len(b.combos))
	for combo, a := range b.combos {
		out = append(out, BindingInfo{Action: a.Name, Keys: FormatCombo(combo)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Action != out[j].Action {
			return out[i].Action < out[j].Action
		}
		return out[i].Keys < out[j].Keys
	})
	return out
}

// Actions returns the registered action names, sorted.
func (b *Bindings) Actions() []string {
	names := make([]string, 0, len(b.actions))
	for name := range b.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func call(fn func()) bool {
	if fn == nil {
		return false
	}
	fn()
	return true
}
