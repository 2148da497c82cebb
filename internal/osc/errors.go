package osc

import "errors"

// Domain errors for the OSC transport.
var (
	// ErrUnsupportedArg is returned when a message argument has no OSC type.
	ErrUnsupportedArg = errors.New("osc: unsupported argument type")

	// ErrEncode is returned when a message cannot be packed.
	ErrEncode = errors.New("osc: encode failed")

	// ErrDecode is returned when a datagram is not a valid OSC packet.
	ErrDecode = errors.New("osc: decode failed")

	// ErrNotIP is returned when a send target is a hostname rather than an
	// IP address.
	ErrNotIP = errors.New("osc: host is not an ip address")

	// ErrClosed is returned when sending on a closed transport.
	ErrClosed = errors.New("osc: transport closed")
)
