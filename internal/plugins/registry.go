package plugins

import (
	"fmt"

	"github.com/nerrad567/webmixer/internal/infrastructure/config"
	"github.com/nerrad567/webmixer/internal/mixer"
)

// FromConfig builds the enabled plugins in their fixed pipeline order.
// A misconfigured plugin fails the whole build so startup stops early.
func FromConfig(cfg config.PluginsConfig) ([]mixer.Plugin, error) {
	var out []mixer.Plugin

	if cfg.AbletonStreamDeck.Enabled {
		p, err := NewAbletonStreamDeck(cfg.AbletonStreamDeck)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if cfg.AuxLeadVolume.Enabled {
		p, err := NewAuxLeadVolume(cfg.AuxLeadVolume)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if cfg.CopyChannelLabels.Enabled {
		p, err := NewCopyChannelLabels(cfg.CopyChannelLabels)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if cfg.StreamDeckLabels.Enabled {
		p, err := NewStreamDeckLabels(cfg.StreamDeckLabels)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	return out, nil
}

// Names lists the registry names of plugins.
func Names(plugins []mixer.Plugin) []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name()
	}
	return names
}

// checkPositive rejects desk numbers below 1.
func checkPositive(name, field string, v int) error {
	if v < 1 {
		return fmt.Errorf("%s: %s must be positive, got %d", name, field, v)
	}
	return nil
}
