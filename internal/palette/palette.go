package palette

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Item is a single selectable entry in the window menu.
type Item struct {
	Label    string // Display text
	Window   uint32 // Window to activate on selection, 0 for actions
	Action   string // Action to run on selection
	IsHeader bool   // Non-selectable section header
	IsActive bool   // Highlighted as the focused window
}

// Selectable reports whether choosing the item does anything.
func (i Item) Selectable() bool {
	return !i.IsHeader && (i.Window != 0 || i.Action != "")
}

// Backend shows a menu to the user and returns the chosen item.
type Backend interface {
	Show(ctx context.Context, prompt string, items []Item) (Item, error)
}

// Window describes a managed window for the menu.
type Window struct {
	ID     uint32
	Title  string
	Active bool
}

// Items lays out the menu: managed windows first, then actions.
func Items(windows []Window, actions []string) []Item {
	items := make([]Item, 0, len(windows)+len(actions)+2)
	if len(windows) > 0 {
		items = append(items, Item{Label: "Windows", IsHeader: true})
		for _, w := range windows {
			title := sanitizeLabel(w.Title)
			if title == "" {
				title = fmt.Sprintf("0x%x", w.ID)
			}
			items = append(items, Item{Label: title, Window: w.ID, IsActive: w.Active})
		}
	}
	if len(actions) > 0 {
		items = append(items, Item{Label: "Actions", IsHeader: true})
		for _, a := range actions {
			items = append(items, Item{Label: a, Action: a})
		}
	}
	return items
}

// NewBackend creates a backend by name.
//
// Supported names: auto, rofi, dmenu.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		name, err := DetectBackend()
		if err != nil {
			return nil, err
		}
		return NewBackend(name)
	case "rofi":
		if _, err := exec.LookPath("rofi"); err != nil {
			return nil, fmt.Errorf("menu backend %q not found in PATH", "rofi")
		}
		return NewRofiBackend(), nil
	case "dmenu":
		if _, err := exec.LookPath("dmenu"); err != nil {
			return nil, fmt.Errorf("menu backend %q not found in PATH", "dmenu")
		}
		return NewDmenuBackend(), nil
	default:
		return nil, fmt.Errorf("unknown menu backend: %q (expected: auto, rofi, dmenu)", name)
	}
}

// DetectBackend returns the first menu program found in PATH: rofi, then
// dmenu.
func DetectBackend() (string, error) {
	for _, name := range []string{"rofi", "dmenu"} {
		if _, err := exec.LookPath(name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("no menu backend found in PATH (looked for: rofi, dmenu)")
}
