// Package mixer is the bridging engine between an OSC mixing desk, external
// UDP control endpoints and the browser clients of the web mixer.
//
// # Architecture
//
//	┌──────────────┐   UDP   ┌──────────────────┐   WebSocket   ┌──────────┐
//	│  Mixing desk │◄───────►│      Engine      │◄─────────────►│ Browsers │
//	└──────────────┘         │  cache · plugins │               └──────────┘
//	┌──────────────┐   UDP   │  sequencer       │
//	│  Endpoints   │◄───────►│  router          │
//	└──────────────┘         └──────────────────┘
//
// Every inbound message runs to completion on one goroutine:
//
//	session sentinel → duplicate check → query short-circuit → plugins
//	  → cache write → (not ready: next sequencer query) → broadcast
//
// # Initialisation
//
// The desk answers one query at a time. Until it has reported its channel
// count, aux modes, every aux name and every channel name, each inbound
// message triggers exactly one query for the next missing fact. Clients are
// refused until then. Send levels and pans are fetched afterwards by a
// background ticker.
//
// # Cache
//
// Only six address families are cached: channel count, aux modes, aux
// names, channel names, send levels and send pans. Everything else is
// relayed without being stored.
//
// Usage:
//
//	settings, err := mixer.SettingsFromConfig(cfg)
//	if err != nil {
//	    return err
//	}
//	eng, err := mixer.New(mixer.Options{
//	    Settings:  settings,
//	    Transport: udp,
//	    Plugins:   plugins,
//	    Logger:    log,
//	})
//	if err != nil {
//	    return err
//	}
//	go eng.Run(ctx)
package mixer
