package policy

import (
	"sort"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/compwm/internal/wm"
)

// Action names bound through the hotkeys package.
const (
	ActionCloseWindow      = "close-window"
	ActionCycleWindows     = "cycle-windows"
	ActionRaiseWindow      = "raise-window"
	ActionLowerWindow      = "lower-window"
	ActionToggleFullscreen = "toggle-fullscreen"
	ActionQuit             = "quit"
)

// Actions returns the policy's key-bindable actions by name.
func (b *Basic) Actions() map[string]func() {
	return map[string]func(){
		ActionCloseWindow:      b.CloseActive,
		ActionCycleWindows:     b.Cycle,
		ActionRaiseWindow:      b.RaiseActive,
		ActionLowerWindow:      b.LowerActive,
		ActionToggleFullscreen: b.ToggleFullscreen,
		ActionQuit:             b.quit,
	}
}

// ActionNames returns the names Actions provides, sorted.
func ActionNames() []string {
	names := []string{
		ActionCloseWindow,
		ActionCycleWindows,
		ActionRaiseWindow,
		ActionLowerWindow,
		ActionToggleFullscreen,
		ActionQuit,
	}
	sort.Strings(names)
	return names
}

// CloseActive asks the focused window to close.
func (b *Basic) CloseActive() {
	w := b.d.Active()
	if w == nil {
		return
	}
	if err := w.SendDeleteRequest(xproto.TimeCurrentTime); err != nil {
		b.logger.Warn("failed to close window", "window", uint32(w.ID()), "error", err)
	}
}

// Cycle raises and focuses the bottommost managed window, so repeated
// calls visit every window in turn.
func (b *Basic) Cycle() {
	wins := b.candidates()
	if len(wins) < 2 {
		return
	}
	b.focus(wins[len(wins)-1], xproto.TimeCurrentTime)
}

// RaiseActive puts the focused window on top.
func (b *Basic) RaiseActive() {
	w := b.d.Active()
	if w == nil {
		return
	}
	if err := w.RaiseClient(); err != nil {
		b.logger.Warn("failed to raise window", "window", uint32(w.ID()), "error", err)
	}
}

// LowerActive sends the focused window to the bottom and focuses the
// window that ends up on top.
func (b *Basic) LowerActive() {
	w := b.d.Active()
	if w == nil {
		return
	}
	if err := w.LowerClient(); err != nil {
		b.logger.Warn("failed to lower window", "window", uint32(w.ID()), "error", err)
		return
	}
	for _, next := range b.candidates() {
		if next.ID() != w.ID() {
			b.focus(next, xproto.TimeCurrentTime)
			return
		}
	}
}

// ToggleFullscreen flips the fullscreen state of the focused window.
func (b *Basic) ToggleFullscreen() {
	w := b.d.Active()
	if w == nil {
		return
	}
	if err := w.SetFullscreen(!w.Fullscreen()); err != nil {
		b.logger.Warn("failed to toggle fullscreen", "window", uint32(w.ID()), "error", err)
		return
	}
	b.syncFullscreen(w)
}

func (b *Basic) quit() {
	if b.opts.Quit == nil {
		b.logger.Warn("quit requested but no handler installed")
		return
	}
	b.logger.Info("quit requested")
	b.opts.Quit()
}

// Managed returns the windows a user can switch to, topmost first.
func (b *Basic) Managed() []*wm.Window {
	return b.candidates()
}

// Activate raises and focuses win if it is still a managed window.
func (b *Basic) Activate(win xproto.Window) bool {
	for _, w := range b.candidates() {
		if w.ID() == win {
			b.focus(w, xproto.TimeCurrentTime)
			return true
		}
	}
	return false
}
