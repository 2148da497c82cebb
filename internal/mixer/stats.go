package mixer

import "sync/atomic"

// Stats are running counters, readable from any goroutine.
type Stats struct {
	DeskMessages    uint64 `json:"desk_messages"`
	ClientMessages  uint64 `json:"client_messages"`
	Injected        uint64 `json:"injected"`
	Duplicates      uint64 `json:"duplicates"`
	Suppressed      uint64 `json:"suppressed"`
	QueriesAnswered uint64 `json:"queries_answered"`
	Broadcasts      uint64 `json:"broadcasts"`
	UDPSends        uint64 `json:"udp_sends"`
	ClientSends     uint64 `json:"client_sends"`
	SendErrors      uint64 `json:"send_errors"`
	Rejected        uint64 `json:"rejected"`
	Malformed       uint64 `json:"malformed"`
	SessionResets   uint64 `json:"session_resets"`
}

type counters struct {
	deskIn          atomic.Uint64
	clientIn        atomic.Uint64
	injected        atomic.Uint64
	duplicates      atomic.Uint64
	suppressed      atomic.Uint64
	queriesAnswered atomic.Uint64
	broadcasts      atomic.Uint64
	udpSends        atomic.Uint64
	clientSends     atomic.Uint64
	sendErrors      atomic.Uint64
	rejected        atomic.Uint64
	malformed       atomic.Uint64
	sessionResets   atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		DeskMessages:    c.deskIn.Load(),
		ClientMessages:  c.clientIn.Load(),
		Injected:        c.injected.Load(),
		Duplicates:      c.duplicates.Load(),
		Suppressed:      c.suppressed.Load(),
		QueriesAnswered: c.queriesAnswered.Load(),
		Broadcasts:      c.broadcasts.Load(),
		UDPSends:        c.udpSends.Load(),
		ClientSends:     c.clientSends.Load(),
		SendErrors:      c.sendErrors.Load(),
		Rejected:        c.rejected.Load(),
		Malformed:       c.malformed.Load(),
		SessionResets:   c.sessionResets.Load(),
	}
}
