package mixer

import (
	"math"
	"strings"
)

// Well-known desk addresses.
const (
	// QuerySuffix marks a message as a read request for its base address.
	QuerySuffix = "/?"

	// SessionChangedAddress is sent by the desk when a different show is loaded.
	SessionChangedAddress = "/Console/Session/!"

	// SnapshotNameAddress carries the current snapshot name to clients.
	SnapshotNameAddress = "/SnapshotName"

	// channelCountQuery asks the desk for its channel layout. The desk answers
	// with /Console/Input_Channels among other values.
	channelCountQuery = "/Console/Channels" + QuerySuffix

	currentSnapshotAddress = "/Snapshots/Current_Snapshot"
	snapshotNamesQuery     = "/Snapshots/names" + QuerySuffix
	snapshotNameAddress    = "/Snapshots/name"
)

// Message is one control message: an address path plus ordered arguments.
// Arguments are numbers, strings or booleans.
type Message struct {
	Address string `json:"address"`
	Args    []any  `json:"args"`
}

// NewMessage builds a message from an address and its arguments.
func NewMessage(address string, args ...any) Message {
	if args == nil {
		args = []any{}
	}
	return Message{Address: address, Args: args}
}

// Query builds the read request for base.
func Query(base string) Message {
	return NewMessage(base + QuerySuffix)
}

// IsQuery reports whether the message is a read request.
func (m Message) IsQuery() bool {
	return strings.HasSuffix(m.Address, QuerySuffix)
}

// QueryBase returns the address being queried, or "" if m is not a query.
func (m Message) QueryBase() string {
	if !m.IsQuery() {
		return ""
	}
	return strings.TrimSuffix(m.Address, QuerySuffix)
}

// Equal reports whether two messages carry the same address and arguments.
// Numbers compare by value regardless of their Go type, so an int32 from the
// desk equals the float64 a browser sends back.
func (m Message) Equal(other Message) bool {
	if m.Address != other.Address || len(m.Args) != len(other.Args) {
		return false
	}
	for i := range m.Args {
		if !argsEqual(m.Args[i], other.Args[i]) {
			return false
		}
	}
	return true
}

// Clone returns a copy whose argument slice can be modified independently.
func (m Message) Clone() Message {
	args := make([]any, len(m.Args))
	copy(args, m.Args)
	return Message{Address: m.Address, Args: args}
}

// Float returns argument i as a float64 if it is numeric.
func (m Message) Float(i int) (float64, bool) {
	if i < 0 || i >= len(m.Args) {
		return 0, false
	}
	return toFloat(m.Args[i])
}

// Int returns argument i as an int if it is numeric and integral.
func (m Message) Int(i int) (int, bool) {
	f, ok := m.Float(i)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// Text returns argument i if it is a string.
func (m Message) Text(i int) (string, bool) {
	if i < 0 || i >= len(m.Args) {
		return "", false
	}
	s, ok := m.Args[i].(string)
	return s, ok
}

func argsEqual(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}

// toFloat normalises every numeric type the codecs produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
