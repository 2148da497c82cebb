package mixer

import "time"

// Origin says which side produced a committed message.
type Origin string

// Message origins.
const (
	OriginDesk   Origin = "desk"
	OriginClient Origin = "client"
	OriginSystem Origin = "system"
)

// Change is one message that passed the pipeline and was committed.
type Change struct {
	Message Message
	Origin  Origin
	// Cached is true when the message was stored in the state cache.
	Cached bool
	At     time.Time
}

// Observer receives every committed message, on the engine loop.
//
// Observe must return quickly; implementations that do I/O hand the
// change to their own goroutine.
type Observer interface {
	Observe(change Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Change)

// Observe calls f(change).
func (f ObserverFunc) Observe(change Change) {
	f(change)
}
