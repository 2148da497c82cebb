package plugins

import (
	"fmt"
	"strings"

	"github.com/nerrad567/webmixer/internal/infrastructure/config"
	"github.com/nerrad567/webmixer/internal/mixer"
)

// AbletonStreamDeckName is the registry name of the Ableton key change plugin.
const AbletonStreamDeckName = "ableton-streamdeck"

// AbletonStreamDeck turns Ableton key change messages into StreamDeck
// button presses. The first argument of the key message is the semitone
// index into Presses. Key messages are consumed and never reach clients.
type AbletonStreamDeck struct {
	marker   string
	endpoint string
	presses  []string
}

// NewAbletonStreamDeck creates the plugin from its configuration.
func NewAbletonStreamDeck(cfg config.AbletonStreamDeckConfig) (*AbletonStreamDeck, error) {
	if cfg.Marker == "" {
		return nil, fmt.Errorf("%s: marker is required", AbletonStreamDeckName)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%s: endpoint is required", AbletonStreamDeckName)
	}
	if len(cfg.Presses) == 0 {
		return nil, fmt.Errorf("%s: at least one press address is required", AbletonStreamDeckName)
	}
	return &AbletonStreamDeck{
		marker:   cfg.Marker,
		endpoint: cfg.Endpoint,
		presses:  append([]string(nil), cfg.Presses...),
	}, nil
}

// Name implements mixer.Plugin.
func (p *AbletonStreamDeck) Name() string { return AbletonStreamDeckName }

// Handle implements mixer.Plugin.
func (p *AbletonStreamDeck) Handle(msg mixer.Message, ctx mixer.Context) (mixer.Outcome, error) {
	if !strings.Contains(msg.Address, p.marker) {
		return mixer.Unchanged(), nil
	}

	key, ok := msg.Int(0)
	if !ok || key < 0 || key >= len(p.presses) {
		return mixer.Unchanged(), fmt.Errorf("%w: key %v", ErrUnknownKey, msg.Args)
	}

	ctx.SendTo(p.endpoint, mixer.NewMessage(p.presses[key]))
	return mixer.Suppress(), nil
}
