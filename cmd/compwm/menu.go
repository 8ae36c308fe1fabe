package main

import (
	"errors"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/compwm/internal/palette"
)

const actionWindowMenu = "window-menu"

// setMenu switches the menu program. "none" disables the window menu.
func (s *wmState) setMenu(name string) {
	if name == s.menuName {
		return
	}
	s.menuName = name
	s.menu = nil
	if name == "none" {
		return
	}
	backend, err := palette.NewBackend(name)
	if err != nil {
		s.logger.Warn("window menu unavailable", "menu", name, "error", err)
		return
	}
	s.menu = backend
}

// showMenu lists managed windows and actions in the menu program. It runs
// on the event loop; the program runs on its own goroutine and the choice
// is applied back on the loop.
func (s *wmState) showMenu() {
	if s.menu == nil {
		s.logger.Warn("window menu disabled", "menu", s.menuName)
		return
	}
	if s.menuOpen {
		return
	}

	var windows []palette.Window
	active := s.disp.Active()
	for _, w := range s.policy.Managed() {
		windows = append(windows, palette.Window{
			ID:     uint32(w.ID()),
			Title:  s.conn.WindowTitle(w.ID()),
			Active: active != nil && active.ID() == w.ID(),
		})
	}
	var actions []string
	for _, name := range s.keys.Actions() {
		if name != actionWindowMenu {
			actions = append(actions, name)
		}
	}
	items := palette.Items(windows, actions)
	if len(items) == 0 {
		return
	}

	backend := s.menu
	s.menuOpen = true
	go func() {
		item, err := backend.Show(s.ctx, "compwm", items)
		s.loop.Post(func() {
			s.menuOpen = false
			switch {
			case errors.Is(err, palette.ErrCancelled):
			case err != nil:
				s.logger.Warn("window menu failed", "error", err)
			case item.Window != 0:
				if !s.policy.Activate(xproto.Window(item.Window)) {
					s.logger.Debug("chosen window is gone", "window", item.Window)
				}
			case item.Action != "":
				if err := s.keys.Trigger(item.Action); err != nil {
					s.logger.Warn("failed to run action from menu", "action", item.Action, "error", err)
				}
			}
		})
	}()
}
