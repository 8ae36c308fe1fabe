package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "COMPWM_CONFIG"

// Animation holds compositor animation durations in milliseconds.
type Animation struct {
	TransientFadeMS int `yaml:"transient_fade_ms"`
	MapFadeMS       int `yaml:"map_fade_ms"`
}

// Command is a shell command bound to keys.
type Command struct {
	Run  string     `yaml:"run"`
	Keys StringList `yaml:"keys"`
}

// Config holds the application configuration.
type Config struct {
	Display           string                `yaml:"display,omitempty"`
	LogLevel          string                `yaml:"log_level"`
	Bindings          map[string]StringList `yaml:"bindings"`
	Commands          map[string]Command    `yaml:"commands"`
	Animation         Animation             `yaml:"animation"`
	MotionFlushHz     int                   `yaml:"motion_flush_hz"`
	ReconcileInterval time.Duration         `yaml:"reconcile_interval"`
	SelectionTimeout  time.Duration         `yaml:"selection_timeout"`
	FocusFollowsClick bool                  `yaml:"focus_follows_click"`
	Menu              string                `yaml:"menu"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Bindings: map[string]StringList{
			"close-window":      {"Mod4-Shift-c"},
			"cycle-windows":     {"Mod1-Tab"},
			"raise-window":      {"Mod4-Up"},
			"lower-window":      {"Mod4-Down"},
			"toggle-fullscreen": {"Mod4-f"},
			"quit":              {"Mod4-Shift-q"},
			"window-menu":       {"Mod4-w"},
		},
		Commands: map[string]Command{
			"terminal": {Run: "xterm", Keys: StringList{"Mod4-Return"}},
		},
		Animation: Animation{
			TransientFadeMS: 150,
			MapFadeMS:       120,
		},
		MotionFlushHz:     60,
		ReconcileInterval: 30 * time.Second,
		SelectionTimeout:  5 * time.Second,
		FocusFollowsClick: true,
		Menu:              "auto",
	}
}

// DefaultConfigPath returns $COMPWM_CONFIG or ~/.config/compwm/config.yaml.
func DefaultConfigPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "compwm", "config.yaml"), nil
}

// TransientFade returns the transient fade-in duration.
func (c *Config) TransientFade() time.Duration {
	return time.Duration(c.Animation.TransientFadeMS) * time.Millisecond
}

// MapFade returns the fade-in duration for newly mapped windows.
func (c *Config) MapFade() time.Duration {
	return time.Duration(c.Animation.MapFadeMS) * time.Millisecond
}

// CommandNames returns the configured command names, sorted.
func (c *Config) CommandNames() []string {
	return sortedKeys(c.Commands)
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warning, error")}
	}
	if c.Bindings == nil {
		return &ValidationError{Path: "bindings", Err: fmt.Errorf("bindings must not be null")}
	}
	for action, keys := range c.Bindings {
		if strings.TrimSpace(action) == "" {
			return &ValidationError{Path: "bindings", Err: fmt.Errorf("bindings contains an empty action name")}
		}
		for _, key := range keys {
			if strings.TrimSpace(key) == "" {
				return &ValidationError{Path: "bindings." + action, Err: fmt.Errorf("key must not be empty")}
			}
		}
	}
	for name, cmd := range c.Commands {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{Path: "commands", Err: fmt.Errorf("commands contains an empty name")}
		}
		if _, ok := c.Bindings[name]; ok {
			return &ValidationError{Path: "commands." + name, Err: fmt.Errorf("command name %q collides with a bound action", name)}
		}
		if strings.TrimSpace(cmd.Run) == "" {
			return &ValidationError{Path: "commands." + name + ".run", Err: fmt.Errorf("run must not be empty")}
		}
	}
	if c.Animation.TransientFadeMS < 0 {
		return &ValidationError{Path: "animation.transient_fade_ms", Err: fmt.Errorf("transient_fade_ms must be >= 0")}
	}
	if c.Animation.MapFadeMS < 0 {
		return &ValidationError{Path: "animation.map_fade_ms", Err: fmt.Errorf("map_fade_ms must be >= 0")}
	}
	if c.MotionFlushHz < 1 || c.MotionFlushHz > 1000 {
		return &ValidationError{Path: "motion_flush_hz", Err: fmt.Errorf("motion_flush_hz must be between 1 and 1000")}
	}
	if c.ReconcileInterval < 0 {
		return &ValidationError{Path: "reconcile_interval", Err: fmt.Errorf("reconcile_interval must be >= 0 (0 disables)")}
	}
	if c.SelectionTimeout <= 0 {
		return &ValidationError{Path: "selection_timeout", Err: fmt.Errorf("selection_timeout must be > 0")}
	}
	switch c.Menu {
	case "auto", "rofi", "dmenu", "none":
	default:
		return &ValidationError{Path: "menu", Err: fmt.Errorf("menu must be one of: auto, rofi, dmenu, none")}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
