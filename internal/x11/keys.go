package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"
)

// Keysym translates a keycode to the keysym in its first column, i.e. the
// unshifted symbol.
func (c *Connection) Keysym(code xproto.Keycode) xproto.Keysym {
	setup := c.XUtil.Setup()
	if code < setup.MinKeycode || code > setup.MaxKeycode {
		return 0
	}
	return keybind.KeysymGet(c.XUtil, code, 0)
}

// KeysymByName resolves a keysym name such as "q" or "Return" against
// the current keyboard mapping.
func (c *Connection) KeysymByName(name string) (xproto.Keysym, bool) {
	codes := keybind.StrToKeycodes(c.XUtil, name)
	if len(codes) == 0 {
		return 0, false
	}
	return c.Keysym(codes[0]), true
}

// RefreshKeyboardMapping re-reads the keyboard and modifier maps after a
// MappingNotify and recomputes the lock modifiers grabs must ignore.
func (c *Connection) RefreshKeyboardMapping() error {
	setup := c.XUtil.Setup()
	keyMap, err := xproto.GetKeyboardMapping(c.XUtil.Conn(), setup.MinKeycode,
		byte(setup.MaxKeycode-setup.MinKeycode+1)).Reply()
	if err != nil {
		return fmt.Errorf("get keyboard mapping: %w", err)
	}
	modMap, err := xproto.GetModifierMapping(c.XUtil.Conn()).Reply()
	if err != nil {
		return fmt.Errorf("get modifier mapping: %w", err)
	}
	keybind.KeyMapSet(c.XUtil, keyMap)
	keybind.ModMapSet(c.XUtil, modMap)
	c.ConfigureIgnoreMods()
	return nil
}

// GrabKey grabs every keycode producing sym with mods on the root window,
// once per ignored lock-modifier combination.
func (c *Connection) GrabKey(sym xproto.Keysym, mods uint16) error {
	codes := c.keycodes(sym)
	if len(codes) == 0 {
		return fmt.Errorf("no keycode produces keysym %#x", uint32(sym))
	}
	for _, code := range codes {
		if err := keybind.GrabChecked(c.XUtil, c.root, mods, code); err != nil {
			return fmt.Errorf("grab keysym %#x: %w", uint32(sym), err)
		}
	}
	return nil
}

// UngrabKey undoes GrabKey.
func (c *Connection) UngrabKey(sym xproto.Keysym, mods uint16) error {
	for _, code := range c.keycodes(sym) {
		keybind.Ungrab(c.XUtil, c.root, mods, code)
	}
	return nil
}

func (c *Connection) keycodes(sym xproto.Keysym) []xproto.Keycode {
	keyMap := keybind.KeyMapGet(c.XUtil)
	if keyMap == nil {
		return nil
	}
	setup := c.XUtil.Setup()
	var codes []xproto.Keycode
	for kc := int(setup.MinKeycode); kc <= int(setup.MaxKeycode); kc++ {
		code := xproto.Keycode(kc)
		for col := byte(0); col < keyMap.KeysymsPerKeycode; col++ {
			if keybind.KeysymGet(c.XUtil, code, col) == sym {
				codes = append(codes, code)
				break
			}
		}
	}
	return codes
}

// ConfigureIgnoreMods makes key grabs ignore CapsLock, NumLock and
// ScrollLock in every combination.
func (c *Connection) ConfigureIgnoreMods() {
	// Always ignore CapsLock.
	caps := uint16(xproto.ModMaskLock)

	numLock := c.modMaskForKeysym("Num_Lock")
	scrollLock := c.modMaskForKeysym("Scroll_Lock")

	base := []uint16{caps}
	if numLock != 0 && numLock != caps {
		base = append(base, numLock)
	}
	if scrollLock != 0 && scrollLock != caps && scrollLock != numLock {
		base = append(base, scrollLock)
	}

	ignore := []uint16{0}
	for subset := 1; subset < (1 << len(base)); subset++ {
		var mask uint16
		for bit := range base {
			if subset&(1<<bit) != 0 {
				mask |= base[bit]
			}
		}
		ignore = append(ignore, mask)
	}

	xevent.IgnoreMods = ignore
}

// LockModifiers returns every modifier bit ConfigureIgnoreMods ignores.
func (c *Connection) LockModifiers() uint16 {
	var mask uint16
	for _, m := range xevent.IgnoreMods {
		mask |= m
	}
	return mask
}

func (c *Connection) modMaskForKeysym(keysym string) uint16 {
	for _, keycode := range keybind.StrToKeycodes(c.XUtil, keysym) {
		if mask := keybind.ModGet(c.XUtil, keycode); mask != 0 {
			return mask
		}
	}
	return 0
}
