// Package mqtt connects to an MQTT broker with auto-reconnect, a retained
// online/offline status and subscription restore.
//
// All topics live under a configurable prefix (default "webmixer"):
//
//	webmixer/system/status        retained online/offline, also the will
//	webmixer/state/<address>      retained current value of a control
//	webmixer/command/<address>    values to set on the desk
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.PublishRetained(topics.State(address), payload)
package mqtt
