package mixer

import "fmt"

// Phase is a step of the desk initialisation sequence.
type Phase int

// Phases in the order they are reached.
const (
	PhaseIdle Phase = iota
	PhaseAwaitingChannelCount
	PhaseAwaitingAuxModes
	PhaseAwaitingAuxName
	PhaseAwaitingChannelName
	PhaseAwaitingSnapshotIndex
	PhasePriming
	PhaseReady
)

var phaseNames = [...]string{
	PhaseIdle:                  "idle",
	PhaseAwaitingChannelCount:  "awaiting_channel_count",
	PhaseAwaitingAuxModes:      "awaiting_aux_modes",
	PhaseAwaitingAuxName:       "awaiting_aux_name",
	PhaseAwaitingChannelName:   "awaiting_channel_name",
	PhaseAwaitingSnapshotIndex: "awaiting_snapshot_index",
	PhasePriming:               "priming",
	PhaseReady:                 "ready",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// SequencerState is the current phase plus the 1-based index for the
// per-aux and per-channel name phases.
type SequencerState struct {
	Phase Phase `json:"phase"`
	Index int   `json:"index,omitempty"`
}

func (s SequencerState) String() string {
	switch s.Phase {
	case PhaseAwaitingAuxName, PhaseAwaitingChannelName:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Index)
	default:
		return s.Phase.String()
	}
}

// before reports whether s comes strictly earlier in the sequence than o.
func (s SequencerState) before(o SequencerState) bool {
	if s.Phase != o.Phase {
		return s.Phase < o.Phase
	}
	return s.Index < o.Index
}

// Sequencer asks the desk for the next missing required fact, one query per
// inbound message, until everything needed to serve clients is cached.
//
// It reads the cache but never writes it.
type Sequencer struct {
	cache *Cache
	state SequencerState
}

// NewSequencer creates a sequencer in the idle phase.
func NewSequencer(cache *Cache) *Sequencer {
	return &Sequencer{cache: cache}
}

// State returns the current state.
func (s *Sequencer) State() SequencerState {
	return s.state
}

// Ready reports whether clients may connect. Priming continues in the
// background after this becomes true.
func (s *Sequencer) Ready() bool {
	return s.state.Phase >= PhasePriming
}

// Reset returns to idle. Used when the desk loads a different session.
func (s *Sequencer) Reset() {
	s.state = SequencerState{}
}

// Step evaluates the sequence once and returns the query to send to the desk.
// The second result is true when this step completed the required facts and
// moved the sequencer to priming. Step must not be called once Ready.
func (s *Sequencer) Step() (Message, bool) {
	channels, ok := s.cache.channelCount()
	if !ok {
		s.enter(SequencerState{Phase: PhaseAwaitingChannelCount})
		return NewMessage(channelCountQuery), false
	}

	modes, ok := s.cache.auxModes()
	if !ok {
		s.enter(SequencerState{Phase: PhaseAwaitingAuxModes})
		return Query(AuxModesPattern.String()), false
	}

	for i := 1; i <= len(modes); i++ {
		addr := AuxNamePattern.Format(i)
		if !s.cache.Has(addr) {
			s.enter(SequencerState{Phase: PhaseAwaitingAuxName, Index: i})
			return Query(addr), false
		}
	}

	for i := 1; i <= channels; i++ {
		addr := ChannelNamePattern.Format(i)
		if !s.cache.Has(addr) {
			s.enter(SequencerState{Phase: PhaseAwaitingChannelName, Index: i})
			return Query(addr), false
		}
	}

	s.enter(SequencerState{Phase: PhaseAwaitingSnapshotIndex})
	s.enter(SequencerState{Phase: PhasePriming})
	return Query(currentSnapshotAddress), true
}

// NextGap finds the first missing send level or pan, scanning enabled auxes
// in ascending order and, inside each, enabled channels in ascending order.
// When nothing is missing the sequencer moves to ready and returns false.
func (s *Sequencer) NextGap(auxEnabled, channelEnabled func(int) bool) (Message, bool) {
	modes, _ := s.cache.auxModes()
	channels, _ := s.cache.channelCount()

	for aux := 1; aux <= len(modes); aux++ {
		if !auxEnabled(aux) {
			continue
		}
		for ch := 1; ch <= channels; ch++ {
			if !channelEnabled(ch) {
				continue
			}
			if addr := SendLevelPattern.Format(ch, aux); !s.cache.Has(addr) {
				return Query(addr), true
			}
			if addr := SendPanPattern.Format(ch, aux); !s.cache.Has(addr) {
				return Query(addr), true
			}
		}
	}

	s.enter(SequencerState{Phase: PhaseReady})
	return Message{}, false
}

// enter moves to next, never backwards.
func (s *Sequencer) enter(next SequencerState) {
	if next.before(s.state) {
		return
	}
	s.state = next
}
