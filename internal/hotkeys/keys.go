package hotkeys

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/keybind"
)

// KeysymLookup resolves a key name such as "Return" to a keysym.
type KeysymLookup func(name string) (xproto.Keysym, bool)

var modifierNames = map[string]uint16{
	"shift":   xproto.ModMaskShift,
	"lock":    xproto.ModMaskLock,
	"control": xproto.ModMaskControl,
	"ctrl":    xproto.ModMaskControl,
	"mod1":    xproto.ModMask1,
	"alt":     xproto.ModMask1,
	"mod2":    xproto.ModMask2,
	"mod3":    xproto.ModMask3,
	"mod4":    xproto.ModMask4,
	"super":   xproto.ModMask4,
	"mod5":    xproto.ModMask5,
}

// ParseCombo parses a key string of the form '[Mod[-Mod[...]]]-KEY', e.g.
// "Mod4-q" or "Control-Shift-Return". Single Latin-1 characters resolve
// without lookup; other key names go through lookup, which may be nil.
// The minus key itself is written "-", as in "Mod4--".
func ParseCombo(s string, lookup KeysymLookup) (KeyCombo, error) {
	mods, key := splitCombo(strings.TrimSpace(s))
	if key == "" {
		return KeyCombo{}, fmt.Errorf("parse key %q: missing key", s)
	}

	var combo KeyCombo
	for _, part := range mods {
		mask, ok := modifierNames[strings.ToLower(part)]
		if !ok {
			return KeyCombo{}, fmt.Errorf("parse key %q: unknown modifier %q", s, part)
		}
		combo.Modifiers |= mask
	}

	if r, size := utf8.DecodeRuneInString(key); size == len(key) && r > 0x20 && r <= 0xff {
		combo.KeySym = xproto.Keysym(r)
		return combo, nil
	}
	if lookup != nil {
		if sym, ok := lookup(key); ok && sym != 0 {
			combo.KeySym = sym
			return combo, nil
		}
	}
	return KeyCombo{}, fmt.Errorf("parse key %q: unknown key %q", s, key)
}

// splitCombo separates the modifier names from the key name. Only the last
// separator counts, so a trailing "--" names the minus key.
func splitCombo(s string) ([]string, string) {
	switch {
	case s == "-":
		return nil, s
	case strings.HasSuffix(s, "--"):
		return strings.Split(strings.TrimSuffix(s, "--"), "-"), "-"
	}
	i := strings.LastIndex(s, "-")
	if i < 0 {
		return nil, s
	}
	return strings.Split(s[:i], "-"), s[i+1:]
}

// FormatCombo renders combo in the syntax ParseCombo accepts.
func FormatCombo(combo KeyCombo) string {
	key := keybind.KeysymToStr(combo.KeySym)
	if key == "" {
		key = fmt.Sprintf("%#x", uint32(combo.KeySym))
	}
	if mods := keybind.ModifierString(combo.Modifiers); mods != "" {
		return mods + "-" + key
	}
	return key
}
