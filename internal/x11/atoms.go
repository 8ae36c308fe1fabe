package x11

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xprop"
)

// AtomCache interns atom names once and answers both directions from
// memory afterwards.
type AtomCache struct {
	xu *xgbutil.XUtil

	mu     sync.RWMutex
	byName map[string]xproto.Atom
	byAtom map[xproto.Atom]string
}

// NewAtomCache creates an empty cache bound to xu.
func NewAtomCache(xu *xgbutil.XUtil) *AtomCache {
	return &AtomCache{
		xu:     xu,
		byName: make(map[string]xproto.Atom),
		byAtom: make(map[xproto.Atom]string),
	}
}

// Preload interns names with one round trip: all requests are sent
// before the first reply is read.
func (a *AtomCache) Preload(names []string) error {
	cookies := make([]xproto.InternAtomCookie, len(names))
	for i, name := range names {
		cookies[i] = xproto.InternAtom(a.xu.Conn(), false, uint16(len(name)), name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for i, cookie := range cookies {
		reply, err := cookie.Reply()
		if err != nil {
			return fmt.Errorf("intern atom %s: %w", names[i], err)
		}
		a.byName[names[i]] = reply.Atom
		a.byAtom[reply.Atom] = names[i]
	}
	return nil
}

// Atom returns the atom for name, interning it on a miss. A failed
// lookup yields xproto.AtomNone.
func (a *AtomCache) Atom(name string) xproto.Atom {
	a.mu.RLock()
	atom, ok := a.byName[name]
	a.mu.RUnlock()
	if ok {
		return atom
	}

	atom, err := xprop.Atm(a.xu, name)
	if err != nil {
		return xproto.AtomNone
	}
	a.store(name, atom)
	return atom
}

// AtomName returns the name of atom, asking the server on a miss. Unknown
// atoms yield "".
func (a *AtomCache) AtomName(atom xproto.Atom) string {
	a.mu.RLock()
	name, ok := a.byAtom[atom]
	a.mu.RUnlock()
	if ok {
		return name
	}

	name, err := xprop.AtomName(a.xu, atom)
	if err != nil {
		return ""
	}
	a.store(name, atom)
	return name
}

func (a *AtomCache) store(name string, atom xproto.Atom) {
	a.mu.Lock()
	a.byName[name] = atom
	a.byAtom[atom] = name
	a.mu.Unlock()
}
