package palette

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"os/exec"
	"strconv"
	"strings"
)

// ErrCancelled is returned when the user closes the menu without choosing.
var ErrCancelled = errors.New("menu cancelled")

// dmenuBackend drives a dmenu-compatible program over stdin/stdout.
type dmenuBackend struct {
	command string
	// rofi selects by row index and understands markup and row states.
	rofi bool
}

func NewRofiBackend() Backend {
	return &dmenuBackend{command: "rofi", rofi: true}
}

func NewDmenuBackend() Backend {
	return &dmenuBackend{command: "dmenu"}
}

func (b *dmenuBackend) Show(ctx context.Context, prompt string, items []Item) (Item, error) {
	if len(items) == 0 {
		return Item{}, fmt.Errorf("menu: no items to show")
	}

	shown := make([]Item, len(items))
	copy(shown, items)
	input, active := b.formatInput(shown)

	cmd := exec.CommandContext(ctx, b.command, b.buildArgs(prompt, active)...)
	cmd.Stdin = strings.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	selection := strings.TrimSpace(string(out))
	if err != nil {
		if selection == "" && isCancelExit(err) {
			return Item{}, ErrCancelled
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Item{}, fmt.Errorf("%s failed: %s", b.command, msg)
		}
		return Item{}, fmt.Errorf("%s failed: %w", b.command, err)
	}
	if selection == "" {
		return Item{}, ErrCancelled
	}
	return b.parseSelection(selection, shown)
}

func (b *dmenuBackend) buildArgs(prompt string, active int) []string {
	if !b.rofi {
		args := []string{"-i"}
		if prompt != "" {
			args = append(args, "-p", prompt)
		}
		return args
	}

	args := []string{"-dmenu", "-i", "-markup-rows", "-no-custom", "-format", "i"}
	if prompt != "" {
		args = append(args, "-p", prompt)
	}
	if active >= 0 {
		idx := strconv.Itoa(active)
		args = append(args, "-a", idx, "-selected-row", idx)
	}
	return args
}

// formatInput renders one line per item and returns the index of the
// active row, or -1. Backends that select by text get unique labels.
func (b *dmenuBackend) formatInput(items []Item) (string, int) {
	if !b.rofi {
		seen := make(map[string]int)
		for i := range items {
			if items[i].IsHeader {
				continue
			}
			key := sanitizeLabel(items[i].Label)
			if count := seen[key]; count > 0 {
				items[i].Label = fmt.Sprintf("%s (%d)", key, count+1)
			}
			seen[key]++
		}
	}

	active := -1
	lines := make([]string, 0, len(items))
	for i, item := range items {
		lines = append(lines, b.formatItem(item))
		if item.IsActive && active == -1 {
			active = i
		}
	}
	return strings.Join(lines, "\n"), active
}

func (b *dmenuBackend) formatItem(item Item) string {
	label := sanitizeLabel(item.Label)
	if !b.rofi {
		if item.IsHeader {
			return "-- " + label + " --"
		}
		return label
	}
	label = html.EscapeString(label)
	if item.IsHeader {
		// Rofi row options follow a single NUL, separated by \x1f.
		return "<b>" + label + "</b>\x00nonselectable\x1ftrue"
	}
	return label
}

func (b *dmenuBackend) parseSelection(selection string, items []Item) (Item, error) {
	if b.rofi {
		if idx, err := strconv.Atoi(selection); err == nil {
			if idx < 0 || idx >= len(items) {
				return Item{}, fmt.Errorf("menu: index %d out of range", idx)
			}
			return items[idx], nil
		}
	}
	for _, item := range items {
		if !item.IsHeader && sanitizeLabel(item.Label) == selection {
			return item, nil
		}
	}
	return Item{}, fmt.Errorf("menu: unknown selection %q", selection)
}

func sanitizeLabel(label string) string {
	label = strings.ReplaceAll(label, "\x00", " ")
	label = strings.ReplaceAll(label, "\x1f", " ")
	label = strings.ReplaceAll(label, "\r", " ")
	label = strings.ReplaceAll(label, "\n", " ")
	return strings.TrimSpace(label)
}

func isCancelExit(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	// 1 is "no selection", 130 is Ctrl+C.
	switch exitErr.ExitCode() {
	case 1, 130:
		return true
	default:
		return false
	}
}
