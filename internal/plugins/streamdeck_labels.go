package plugins

import (
	"fmt"
	"strings"

	"github.com/nerrad567/webmixer/internal/infrastructure/config"
	"github.com/nerrad567/webmixer/internal/mixer"
)

// StreamDeckLabelsName is the registry name of the StreamDeck label plugin.
const StreamDeckLabelsName = "streamdeck-labels"

// StreamDeckLabels writes channel names onto StreamDeck buttons when the
// desk renames one of the mapped channels.
type StreamDeckLabels struct {
	endpoint string
	suffix   string
	buttons  map[int]string
}

// NewStreamDeckLabels creates the plugin from its configuration.
// Buttons maps a channel to a "page/row/column" button location.
func NewStreamDeckLabels(cfg config.StreamDeckLabelsConfig) (*StreamDeckLabels, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%s: endpoint is required", StreamDeckLabelsName)
	}
	buttons := make(map[int]string, len(cfg.Buttons))
	for ch, loc := range cfg.Buttons {
		if strings.Count(loc, "/") != 2 {
			return nil, fmt.Errorf("%s: button %q for channel %d is not page/row/column", StreamDeckLabelsName, loc, ch)
		}
		buttons[ch] = loc
	}
	return &StreamDeckLabels{
		endpoint: cfg.Endpoint,
		suffix:   cfg.Suffix,
		buttons:  buttons,
	}, nil
}

// Name implements mixer.Plugin.
func (p *StreamDeckLabels) Name() string { return StreamDeckLabelsName }

// Handle implements mixer.Plugin.
func (p *StreamDeckLabels) Handle(msg mixer.Message, ctx mixer.Context) (mixer.Outcome, error) {
	indices, ok := mixer.ChannelNamePattern.Match(msg.Address)
	if !ok {
		return mixer.Unchanged(), nil
	}
	loc, ok := p.buttons[indices[0]]
	if !ok {
		return mixer.Unchanged(), nil
	}
	name, ok := msg.Text(0)
	if !ok {
		return mixer.Unchanged(), nil
	}

	label := name
	if p.suffix != "" {
		label = name + " " + p.suffix
	}
	ctx.SendTo(p.endpoint, mixer.NewMessage("/location/"+loc+"/style/text", label))
	return mixer.Unchanged(), nil
}
