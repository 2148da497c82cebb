// Package mirror bridges the mixer to an MQTT broker.
//
// Every value that lands in the state cache is published retained to
// <prefix>/state/<address> as a JSON array of its arguments, so home
// automation and dashboards always see the current desk state. Messages
// published to <prefix>/command/<address> are injected into the engine as
// system-originated changes and reach the desk and every browser.
package mirror
