package plugins

import (
	"fmt"
	"sort"

	"github.com/nerrad567/webmixer/internal/infrastructure/config"
	"github.com/nerrad567/webmixer/internal/mixer"
)

// AuxLeadVolumeName is the registry name of the lead vocal lift plugin.
const AuxLeadVolumeName = "aux-lead-volume"

var groupSendPattern = mixer.MustCompilePattern("/Input_Channels/#/Group_Send/#/group")

// AuxLeadVolume lifts a vocal in the band's monitor mixes while its front
// of house channel is assigned to the lead group. Each FOH channel maps to
// the in-ear channel whose aux sends are adjusted. Joining the group raises
// the send level by Shift and centres the pan; leaving lowers the level by
// Shift and restores the saved pan.
//
// State is only touched from the engine loop.
type AuxLeadVolume struct {
	group    int
	shift    float64
	pan      float64
	auxes    []int
	channels map[int]int

	inLead    map[int]bool
	savedPans map[string]mixer.Message
}

// NewAuxLeadVolume creates the plugin from its configuration.
func NewAuxLeadVolume(cfg config.AuxLeadVolumeConfig) (*AuxLeadVolume, error) {
	if err := checkPositive(AuxLeadVolumeName, "group", cfg.Group); err != nil {
		return nil, err
	}
	if len(cfg.Auxes) == 0 || len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("%s: auxes and channels are required", AuxLeadVolumeName)
	}
	if cfg.Pan < 0 || cfg.Pan > 1 {
		return nil, fmt.Errorf("%s: pan %.2f out of range 0-1", AuxLeadVolumeName, cfg.Pan)
	}
	auxes := append([]int(nil), cfg.Auxes...)
	sort.Ints(auxes)
	for _, aux := range auxes {
		if err := checkPositive(AuxLeadVolumeName, "aux", aux); err != nil {
			return nil, err
		}
	}
	channels := make(map[int]int, len(cfg.Channels))
	for foh, iem := range cfg.Channels {
		if err := checkPositive(AuxLeadVolumeName, "channel", foh); err != nil {
			return nil, err
		}
		if err := checkPositive(AuxLeadVolumeName, "channel", iem); err != nil {
			return nil, err
		}
		channels[foh] = iem
	}
	return &AuxLeadVolume{
		group:     cfg.Group,
		shift:     cfg.Shift,
		pan:       cfg.Pan,
		auxes:     auxes,
		channels:  channels,
		inLead:    make(map[int]bool),
		savedPans: make(map[string]mixer.Message),
	}, nil
}

// Name implements mixer.Plugin.
func (p *AuxLeadVolume) Name() string { return AuxLeadVolumeName }

// ResetSession implements mixer.SessionResetter. Group state and saved pans
// belong to the previous show and are forgotten.
func (p *AuxLeadVolume) ResetSession() {
	clear(p.inLead)
	clear(p.savedPans)
}

// Handle implements mixer.Plugin.
func (p *AuxLeadVolume) Handle(msg mixer.Message, ctx mixer.Context) (mixer.Outcome, error) {
	indices, ok := groupSendPattern.Match(msg.Address)
	if !ok || indices[1] != p.group {
		return mixer.Unchanged(), nil
	}
	iem, ok := p.channels[indices[0]]
	if !ok {
		return mixer.Unchanged(), nil
	}
	state, ok := msg.Int(0)
	if !ok {
		return mixer.Unchanged(), nil
	}

	foh := indices[0]
	joined := state == 1
	// The desk repeats group state on recall; only act on a change.
	if p.inLead[foh] == joined {
		return mixer.Unchanged(), nil
	}
	p.inLead[foh] = joined

	for _, aux := range p.auxes {
		if joined {
			p.lift(ctx, iem, aux)
		} else {
			p.drop(ctx, iem, aux)
		}
	}
	return mixer.Unchanged(), nil
}

func (p *AuxLeadVolume) lift(ctx mixer.Context, channel, aux int) {
	panAddr := mixer.SendPanPattern.Format(channel, aux)
	if pan, ok := ctx.Cached(panAddr); ok {
		p.savedPans[panAddr] = pan
	}
	p.adjustLevel(ctx, channel, aux, p.shift)
	ctx.Broadcast(mixer.NewMessage(panAddr, p.pan))
}

func (p *AuxLeadVolume) drop(ctx mixer.Context, channel, aux int) {
	p.adjustLevel(ctx, channel, aux, -p.shift)
	panAddr := mixer.SendPanPattern.Format(channel, aux)
	saved, ok := p.savedPans[panAddr]
	if !ok {
		return
	}
	delete(p.savedPans, panAddr)
	if v, ok := saved.Float(0); ok {
		ctx.Broadcast(mixer.NewMessage(panAddr, v))
	}
}

// adjustLevel shifts a cached send level. Unknown levels are left alone.
func (p *AuxLeadVolume) adjustLevel(ctx mixer.Context, channel, aux int, amount float64) {
	addr := mixer.SendLevelPattern.Format(channel, aux)
	current, ok := ctx.Cached(addr)
	if !ok {
		return
	}
	level, ok := current.Float(0)
	if !ok {
		return
	}
	ctx.Broadcast(mixer.NewMessage(addr, level+amount))
}
