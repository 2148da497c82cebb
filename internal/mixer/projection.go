package mixer

import (
	"github.com/lucasb-eyer/go-colorful"
)

// defaultAuxTotal spreads default colours when the desk has not reported
// its aux layout yet.
const defaultAuxTotal = 16

// ChannelView is one input channel as presented to the mixer surface.
type ChannelView struct {
	Enabled bool   `json:"enabled"`
	Label   string `json:"label"`
	Channel int    `json:"channel"`
	Order   int    `json:"order"`
	Title   string `json:"title"`
	Icon    string `json:"icon"`
}

// AuxView is one auxiliary bus as presented to the mixer surface.
type AuxView struct {
	Enabled bool   `json:"enabled"`
	Label   string `json:"label"`
	Channel int    `json:"channel"`
	Stereo  bool   `json:"stereo"`
	Colour  string `json:"colour"`
	Icon    string `json:"icon"`
}

// ClientConfig is the snapshot pushed to a client when it connects.
type ClientConfig struct {
	Channels []ChannelView `json:"channels"`
	Aux      []AuxView     `json:"aux"`
	Snapshot string        `json:"snapshot"`
}

// Envelope wraps the connect-time snapshot on the wire.
type Envelope struct {
	Config ClientConfig `json:"config"`
}

// AuxDetail is one aux bus as listed for the admin editor.
type AuxDetail struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
	Colour  string `json:"colour"`
	Icon    string `json:"icon"`
}

// ChannelDetail is one input channel as listed for the admin editor.
type ChannelDetail struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
	Order   int    `json:"order"`
	Title   string `json:"title"`
	Icon    string `json:"icon"`
}

// auxColour is the default colour for the zero-based aux index, evenly
// spaced around the hue wheel.
func auxColour(index, total int) string {
	if total <= 0 {
		total = defaultAuxTotal
	}
	hue := 360.0 / float64(total) * float64(index)
	return colorful.Hsl(hue, 0.5, 0.4).Hex()
}

func (e *Engine) auxTotal() int {
	if modes, ok := e.cache.auxModes(); ok {
		return len(modes)
	}
	return defaultAuxTotal
}

func (e *Engine) clientConfig() ClientConfig {
	cfg := ClientConfig{
		Channels: []ChannelView{},
		Aux:      []AuxView{},
		Snapshot: e.snap.name,
	}

	if modes, ok := e.cache.auxModes(); ok {
		for i, mode := range modes {
			n := i + 1
			label, ok := e.cache.Text(AuxNamePattern.Format(n))
			if !ok {
				continue
			}
			o := e.settings.Auxiliaries[n]
			colour := o.Colour
			if colour == "" {
				colour = auxColour(i, len(modes))
			}
			m, _ := toFloat(mode)
			cfg.Aux = append(cfg.Aux, AuxView{
				Enabled: e.settings.auxEnabled(n),
				Label:   label,
				Channel: n,
				Stereo:  m == 2,
				Colour:  colour,
				Icon:    o.Icon,
			})
		}
	}

	if count, ok := e.cache.channelCount(); ok {
		for i := 0; i < count; i++ {
			n := i + 1
			label, ok := e.cache.Text(ChannelNamePattern.Format(n))
			if !ok {
				continue
			}
			o := e.settings.Channels[n]
			order := i
			if o.Order != nil {
				order = *o.Order
			}
			cfg.Channels = append(cfg.Channels, ChannelView{
				Enabled: e.settings.channelEnabled(n),
				Label:   label,
				Channel: n,
				Order:   order,
				Title:   o.Title,
				Icon:    o.Icon,
			})
		}
	}

	return cfg
}

func (e *Engine) auxDetails() []AuxDetail {
	out := []AuxDetail{}
	modes, ok := e.cache.auxModes()
	if !ok {
		return out
	}
	total := e.auxTotal()
	for i := range modes {
		n := i + 1
		name, ok := e.cache.Text(AuxNamePattern.Format(n))
		if !ok {
			continue
		}
		o := e.settings.Auxiliaries[n]
		colour := o.Colour
		if colour == "" {
			colour = auxColour(i, total)
		}
		out = append(out, AuxDetail{
			Enabled: e.settings.auxEnabled(n),
			Name:    name,
			Colour:  colour,
			Icon:    o.Icon,
		})
	}
	return out
}

func (e *Engine) channelDetails() []ChannelDetail {
	out := []ChannelDetail{}
	count, ok := e.cache.channelCount()
	if !ok {
		return out
	}
	for i := 0; i < count; i++ {
		n := i + 1
		name, ok := e.cache.Text(ChannelNamePattern.Format(n))
		if !ok {
			continue
		}
		o := e.settings.Channels[n]
		order := n
		if o.Order != nil {
			order = *o.Order
		}
		out = append(out, ChannelDetail{
			Enabled: e.settings.channelEnabled(n),
			Name:    name,
			Order:   order,
			Title:   o.Title,
			Icon:    o.Icon,
		})
	}
	return out
}
