// Package plugins holds the built-in message plugins of the web mixer.
//
// Plugins run on the engine loop in a fixed order and see every inbound
// message that is not a duplicate or an answered query:
//
//   - ableton-streamdeck: Ableton key changes become StreamDeck presses
//   - aux-lead-volume: lifts a vocal in monitor mixes while it is in the lead group
//   - copy-channel-labels: mirrors a channel name onto another channel
//   - streamdeck-labels: writes channel names onto StreamDeck buttons
//
// Each is enabled and parameterised under plugins: in the config file.
// FromConfig builds the enabled set:
//
//	list, err := plugins.FromConfig(cfg.Plugins)
//	if err != nil {
//	    return err
//	}
package plugins
