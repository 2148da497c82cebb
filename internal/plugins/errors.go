package plugins

import "errors"

// Domain errors for the plugins package.
var (
	// ErrUnknownKey is returned when an Ableton key change carries a key
	// index with no configured press.
	ErrUnknownKey = errors.New("plugins: unknown key")
)
