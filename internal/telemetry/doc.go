// Package telemetry records numeric control changes, such as send levels
// and pans, as InfluxDB points so fader moves can be graphed over time.
package telemetry
