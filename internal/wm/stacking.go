package wm

import (
	"container/list"
	"errors"

	"github.com/BurntSushi/xgb/xproto"
)

var (
	// ErrUnknownSibling is returned when restacking relative to a window
	// the list has never seen.
	ErrUnknownSibling = errors.New("unknown sibling")
	// ErrSelfSibling is returned when a window is stacked relative to itself.
	ErrSelfSibling = errors.New("window cannot be stacked relative to itself")
)

// StackingList is an ordered set of windows, topmost first.
type StackingList struct {
	order *list.List
	index map[xproto.Window]*list.Element
}

// NewStackingList returns an empty list.
func NewStackingList() *StackingList {
	return &StackingList{
		order: list.New(),
		index: make(map[xproto.Window]*list.Element),
	}
}

func (s *StackingList) Len() int { return s.order.Len() }

func (s *StackingList) Contains(win xproto.Window) bool {
	_, ok := s.index[win]
	return ok
}

// Items returns the windows topmost first.
func (s *StackingList) Items() []xproto.Window {
	out := make([]xproto.Window, 0, s.order.Len())
	for e := s.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(xproto.Window))
	}
	return out
}

// BottomToTop returns the windows bottommost first.
func (s *StackingList) BottomToTop() []xproto.Window {
	out := make([]xproto.Window, 0, s.order.Len())
	for e := s.order.Back(); e != nil; e = e.Prev() {
		out = append(out, e.Value.(xproto.Window))
	}
	return out
}

// AddOnTop inserts or moves win to the top.
func (s *StackingList) AddOnTop(win xproto.Window) {
	s.Remove(win)
	s.index[win] = s.order.PushFront(win)
}

// AddOnBottom inserts or moves win to the bottom.
func (s *StackingList) AddOnBottom(win xproto.Window) {
	s.Remove(win)
	s.index[win] = s.order.PushBack(win)
}

// AddAbove inserts or moves win directly above sibling.
func (s *StackingList) AddAbove(win, sibling xproto.Window) error {
	if win == sibling {
		return ErrSelfSibling
	}
	if !s.Contains(sibling) {
		return ErrUnknownSibling
	}
	s.Remove(win)
	s.index[win] = s.order.InsertBefore(win, s.index[sibling])
	return nil
}

// AddBelow inserts or moves win directly below sibling.
func (s *StackingList) AddBelow(win, sibling xproto.Window) error {
	if win == sibling {
		return ErrSelfSibling
	}
	if !s.Contains(sibling) {
		return ErrUnknownSibling
	}
	s.Remove(win)
	s.index[win] = s.order.InsertAfter(win, s.index[sibling])
	return nil
}

// Remove deletes win and reports whether it was present.
func (s *StackingList) Remove(win xproto.Window) bool {
	e, ok := s.index[win]
	if !ok {
		return false
	}
	s.order.Remove(e)
	delete(s.index, win)
	return true
}

// Below returns the windows under win, nearest first.
func (s *StackingList) Below(win xproto.Window) []xproto.Window {
	e, ok := s.index[win]
	if !ok {
		return nil
	}
	var out []xproto.Window
	for e = e.Next(); e != nil; e = e.Next() {
		out = append(out, e.Value.(xproto.Window))
	}
	return out
}
