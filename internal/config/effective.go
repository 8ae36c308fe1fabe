package config

import (
	"fmt"
)

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// BuildEffectiveConfig applies raw on top of DefaultConfig.
func BuildEffectiveConfig(raw RawConfig) *Config {
	cfg := DefaultConfig()

	if raw.Display != nil {
		cfg.Display = *raw.Display
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = *raw.LogLevel
	}
	for action, keys := range raw.Bindings {
		if len(keys) == 0 {
			delete(cfg.Bindings, action)
			continue
		}
		cfg.Bindings[action] = keys
	}
	for name, cmd := range raw.Commands {
		if cmd.Run == "" && len(cmd.Keys) == 0 {
			delete(cfg.Commands, name)
			continue
		}
		cfg.Commands[name] = cmd
	}
	if raw.Animation != nil {
		cfg.Animation.TransientFadeMS = derefInt(raw.Animation.TransientFadeMS, cfg.Animation.TransientFadeMS)
		cfg.Animation.MapFadeMS = derefInt(raw.Animation.MapFadeMS, cfg.Animation.MapFadeMS)
	}
	cfg.MotionFlushHz = derefInt(raw.MotionFlushHz, cfg.MotionFlushHz)
	if raw.ReconcileInterval != nil {
		cfg.ReconcileInterval = *raw.ReconcileInterval
	}
	if raw.SelectionTimeout != nil {
		cfg.SelectionTimeout = *raw.SelectionTimeout
	}
	if raw.FocusFollowsClick != nil {
		cfg.FocusFollowsClick = *raw.FocusFollowsClick
	}
	if raw.Menu != nil {
		cfg.Menu = *raw.Menu
	}

	return cfg
}

func derefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
