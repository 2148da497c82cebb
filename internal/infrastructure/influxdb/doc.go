// Package influxdb writes time-series points to InfluxDB v2.
//
// It wraps the official influxdb-client-go library with connection checks
// and batched, non-blocking writes. Batch size and flush interval come from
// the influxdb section of the configuration file.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint("control", tags, fields, time.Now())
//
// Write failures surface asynchronously through SetOnError. Connection and
// health check errors are returned directly.
package influxdb
