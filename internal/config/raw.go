package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// StringList supports either:
//
//	keys: "Mod4-q"
//
// or:
//
//	keys:
//	  - "Mod4-q"
//	  - "Mod1-F4"
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		// Not present.
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("must be a string or list of strings")
	}
}

type RawAnimation struct {
	TransientFadeMS *int `yaml:"transient_fade_ms"`
	MapFadeMS       *int `yaml:"map_fade_ms"`
}

type RawConfig struct {
	Include           StringList            `yaml:"include"`
	Display           *string               `yaml:"display"`
	LogLevel          *string               `yaml:"log_level"`
	Bindings          map[string]StringList `yaml:"bindings"`
	Commands          map[string]Command    `yaml:"commands"`
	Animation         *RawAnimation         `yaml:"animation"`
	MotionFlushHz     *int                  `yaml:"motion_flush_hz"`
	ReconcileInterval *time.Duration        `yaml:"reconcile_interval"`
	SelectionTimeout  *time.Duration        `yaml:"selection_timeout"`
	FocusFollowsClick *bool                 `yaml:"focus_follows_click"`
	Menu              *string               `yaml:"menu"`
}

// merge layers overlay on top of c. Maps merge per key; an empty key list
// in a later file unbinds that action.
func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c

	if overlay.Display != nil {
		out.Display = overlay.Display
	}
	if overlay.LogLevel != nil {
		out.LogLevel = overlay.LogLevel
	}
	if overlay.Bindings != nil {
		out.Bindings = mergeMap(out.Bindings, overlay.Bindings)
	}
	if overlay.Commands != nil {
		out.Commands = mergeMap(out.Commands, overlay.Commands)
	}
	if overlay.Animation != nil {
		anim := RawAnimation{}
		if out.Animation != nil {
			anim = *out.Animation
		}
		if overlay.Animation.TransientFadeMS != nil {
			anim.TransientFadeMS = overlay.Animation.TransientFadeMS
		}
		if overlay.Animation.MapFadeMS != nil {
			anim.MapFadeMS = overlay.Animation.MapFadeMS
		}
		out.Animation = &anim
	}
	if overlay.MotionFlushHz != nil {
		out.MotionFlushHz = overlay.MotionFlushHz
	}
	if overlay.ReconcileInterval != nil {
		out.ReconcileInterval = overlay.ReconcileInterval
	}
	if overlay.SelectionTimeout != nil {
		out.SelectionTimeout = overlay.SelectionTimeout
	}
	if overlay.FocusFollowsClick != nil {
		out.FocusFollowsClick = overlay.FocusFollowsClick
	}
	if overlay.Menu != nil {
		out.Menu = overlay.Menu
	}

	return out
}

func mergeMap[V any](base, overlay map[string]V) map[string]V {
	out := make(map[string]V, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
