// Package history keeps a queryable log of control changes in SQLite.
//
// The Recorder is registered as a mixer observer. Every message that lands
// in the state cache is queued and written by a background worker, so a
// slow disk never stalls the engine. The HTTP API reads it back through
// Query for the /history endpoint.
package history
