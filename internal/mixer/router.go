package mixer

import (
	"encoding/json"
	"errors"
)

// Transport sends one message to a UDP peer. Implementations must be safe to
// call from the engine loop and must not block for long.
type Transport interface {
	Send(msg Message, host string, port int) error
}

// Source identifies where a message came from so the router can avoid
// echoing it back. The zero value is a system-originated message.
type Source struct {
	// Host is the sending UDP peer, if the message arrived over UDP.
	Host string
	// Conn is the sending client, if the message arrived from a client.
	Conn Connection
}

func (s Source) connID() string {
	if s.Conn == nil {
		return ""
	}
	return s.Conn.ID()
}

// broadcast fans msg out to the desk, every broadcasting endpoint and every
// live client other than src. Each destination fails independently.
func (e *Engine) broadcast(msg Message, src Source) {
	if src.Host != e.settings.DeskHost {
		e.sendDesk(msg)
	}

	for _, ep := range e.settings.Endpoints {
		if !ep.Broadcast {
			continue
		}
		if !ep.Loopback && ep.Host == src.Host {
			continue
		}
		e.sendUDP(msg, ep.Name, ep.Host, ep.Port)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		e.logger.Error("encoding message for clients", "address", msg.Address, "error", err)
		return
	}
	n := e.registry.fanout(data, src.connID(), func(c Connection, err error) {
		e.stats.sendErrors.Add(1)
		e.logger.Warn("client send failed", "conn", c.ID(), "error", err)
	})
	e.stats.clientSends.Add(uint64(n))
	e.stats.broadcasts.Add(1)
}

// sendTo sends msg to every endpoint called name, regardless of its
// broadcast flag.
func (e *Engine) sendTo(name string, msg Message) {
	found := false
	for _, ep := range e.settings.Endpoints {
		if ep.Name != name {
			continue
		}
		found = true
		e.sendUDP(msg, ep.Name, ep.Host, ep.Port)
	}
	if !found {
		e.logger.Debug("no endpoint with that name", "endpoint", name, "address", msg.Address)
	}
}

func (e *Engine) sendDesk(msg Message) {
	e.sendUDP(msg, "desk", e.settings.DeskHost, e.settings.DeskPort)
}

func (e *Engine) sendUDP(msg Message, name, host string, port int) {
	if e.transport == nil || host == "" {
		return
	}
	err := e.transport.Send(msg, host, port)
	if err == nil {
		e.stats.udpSends.Add(1)
		e.logger.Debug("sent", "to", name, "host", host, "port", port, "address", msg.Address)
		return
	}
	e.stats.sendErrors.Add(1)
	if errors.Is(err, ErrPeerUnreachable) {
		e.logger.Warn("peer not responding", "to", name, "host", host, "port", port)
		return
	}
	e.logger.Error("udp send failed", "to", name, "host", host, "port", port, "error", err)
}
