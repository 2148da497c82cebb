package mixer

import "errors"

// Domain errors for the mixer engine.
var (
	// ErrInvalidPattern is returned when an address pattern cannot be compiled.
	ErrInvalidPattern = errors.New("mixer: invalid address pattern")

	// ErrMalformedPayload is returned when a client message is not a valid
	// {address, args} envelope.
	ErrMalformedPayload = errors.New("mixer: malformed client payload")

	// ErrPeerUnreachable is wrapped by transports when the destination host is
	// down or has no route. The engine logs these at warn level.
	ErrPeerUnreachable = errors.New("mixer: peer not responding")

	// ErrNotReady is returned when a client connects before the desk
	// initialisation has finished. The connection has been closed.
	ErrNotReady = errors.New("mixer: desk not ready")

	// ErrStopped is returned when work is submitted after the engine loop exited.
	ErrStopped = errors.New("mixer: engine stopped")

	// ErrPluginPanic wraps a recovered plugin panic.
	ErrPluginPanic = errors.New("mixer: plugin panicked")
)
