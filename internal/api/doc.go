// Package api implements the HTTP and WebSocket front end of the web mixer.
//
// This package provides:
//   - The WebSocket endpoint mixer surfaces connect to (JSON {address, args})
//   - Admin endpoints: /config, /aux, /channels and POST /admin
//   - /health, /history and Prometheus /metrics
//   - The embedded mixer and admin pages
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Every WebSocket connection is admitted through mixer.Engine.Connect, which
// refuses clients until the desk has finished initialising. Once admitted
// the connection is part of the engine's broadcast registry: inbound frames
// go to Engine.HandleClientPayload and outbound frames are queued on a
// per-connection buffer drained by a write pump.
//
// Admin edits are validated, written back to the config file and pushed to
// the engine with Engine.Reconfigure, which closes every client so the
// surfaces reload with the new layout.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
