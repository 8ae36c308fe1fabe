// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/phsym/console-slog"
	"golang.org/x/term"
)

// ParseLevel maps a config log_level to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns a logger writing to w. Terminals get the colored console
// format; anything else gets JSON lines.
func New(level slog.Leveler, w io.Writer) *slog.Logger {
	if isTerminal(w) {
		return slog.New(console.NewHandler(w, &console.HandlerOptions{
			Level: level,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Init installs a logger for level on stderr as the default and returns it.
// The returned LevelVar lets a config reload change the level in place.
func Init(level string) (*slog.Logger, *slog.LevelVar, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	var v slog.LevelVar
	v.Set(lvl)
	logger := New(&v, os.Stderr)
	slog.SetDefault(logger)
	return logger, &v, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
