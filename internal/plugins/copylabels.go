package plugins

import (
	"fmt"

	"github.com/nerrad567/webmixer/internal/infrastructure/config"
	"github.com/nerrad567/webmixer/internal/mixer"
)

// CopyChannelLabelsName is the registry name of the label copier.
const CopyChannelLabelsName = "copy-channel-labels"

// CopyChannelLabels renames a target channel whenever its source channel is
// renamed, for desks where one performer feeds several channels.
type CopyChannelLabels struct {
	mapping map[int]int
}

// NewCopyChannelLabels creates the plugin from its configuration.
func NewCopyChannelLabels(cfg config.CopyChannelLabelsConfig) (*CopyChannelLabels, error) {
	mapping := make(map[int]int, len(cfg.Mapping))
	for from, to := range cfg.Mapping {
		if from < 1 || to < 1 {
			return nil, fmt.Errorf("%s: invalid mapping %d -> %d", CopyChannelLabelsName, from, to)
		}
		if from == to {
			return nil, fmt.Errorf("%s: channel %d maps to itself", CopyChannelLabelsName, from)
		}
		mapping[from] = to
	}
	return &CopyChannelLabels{mapping: mapping}, nil
}

// Name implements mixer.Plugin.
func (p *CopyChannelLabels) Name() string { return CopyChannelLabelsName }

// Handle implements mixer.Plugin.
func (p *CopyChannelLabels) Handle(msg mixer.Message, ctx mixer.Context) (mixer.Outcome, error) {
	indices, ok := mixer.ChannelNamePattern.Match(msg.Address)
	if !ok {
		return mixer.Unchanged(), nil
	}
	to, ok := p.mapping[indices[0]]
	if !ok {
		return mixer.Unchanged(), nil
	}
	name, ok := msg.Text(0)
	if !ok {
		return mixer.Unchanged(), nil
	}

	target := mixer.ChannelNamePattern.Format(to)
	if current, ok := ctx.Cached(target); ok {
		if text, _ := current.Text(0); text == name {
			return mixer.Unchanged(), nil
		}
	}
	ctx.Broadcast(mixer.NewMessage(target, name))
	return mixer.Unchanged(), nil
}
