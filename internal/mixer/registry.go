package mixer

// ConnState is the liveness of a client connection as seen at broadcast time.
type ConnState int

// Connection states.
const (
	ConnConnecting ConnState = iota
	ConnOpen
	ConnClosed
)

func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnOpen:
		return "open"
	default:
		return "closed"
	}
}

// Connection is one live client session.
//
// Send must not block the engine loop; implementations queue the frame.
type Connection interface {
	ID() string
	State() ConnState
	Send(data []byte) error
	Close() error
}

// Registry tracks client connections in connect order. Closed connections
// are only dropped when a broadcast pass notices them.
//
// Thread Safety:
//   - Not safe for concurrent use; owned by the engine loop.
type Registry struct {
	conns []Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers conn.
func (r *Registry) Add(conn Connection) {
	r.conns = append(r.conns, conn)
}

// Len returns the number of registered connections, including any that have
// closed since the last broadcast.
func (r *Registry) Len() int {
	return len(r.conns)
}

// CloseAll force-closes every connection and empties the registry.
// It returns how many were closed.
func (r *Registry) CloseAll() int {
	n := len(r.conns)
	for _, c := range r.conns {
		_ = c.Close() //nolint:errcheck // Best-effort close; the registry is cleared regardless
	}
	r.conns = nil
	return n
}

// fanout sends data to every live connection except the one with exceptID,
// pruning connections found closed. Send failures are reported through
// onErr and never stop the pass. It returns the number of sends attempted.
func (r *Registry) fanout(data []byte, exceptID string, onErr func(Connection, error)) int {
	live := make([]Connection, 0, len(r.conns))
	sent := 0
	for _, c := range r.conns {
		if c.State() == ConnClosed {
			continue
		}
		live = append(live, c)
		if exceptID != "" && c.ID() == exceptID {
			continue
		}
		sent++
		if err := c.Send(data); err != nil && onErr != nil {
			onErr(c, err)
		}
	}
	r.conns = live
	return sent
}
