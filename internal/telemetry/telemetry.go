package telemetry

import (
	"strconv"
	"time"

	"github.com/nerrad567/webmixer/internal/mixer"
)

// Measurement is the InfluxDB measurement all control points are written to.
const Measurement = "control"

// PointWriter queues a point without blocking.
//
// *influxdb.Client satisfies this interface.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time)
}

// Recorder turns numeric control changes into time-series points.
//
// Every argument that is a number becomes a field: the first one is named
// "value" and the rest "arg1", "arg2" and so on by position. Messages
// without numeric arguments, such as names, are skipped.
type Recorder struct {
	writer PointWriter
}

// New returns a Recorder writing through w.
func New(w PointWriter) *Recorder {
	return &Recorder{writer: w}
}

// Observe implements mixer.Observer.
func (r *Recorder) Observe(change mixer.Change) {
	fields := numericFields(change.Message)
	if len(fields) == 0 {
		return
	}
	at := change.At
	if at.IsZero() {
		at = time.Now()
	}
	r.writer.WritePoint(Measurement,
		map[string]string{
			"address": change.Message.Address,
			"origin":  string(change.Origin),
		},
		fields,
		at,
	)
}

func numericFields(msg mixer.Message) map[string]any {
	var fields map[string]any
	for i := range msg.Args {
		v, ok := msg.Float(i)
		if !ok {
			continue
		}
		if fields == nil {
			fields = make(map[string]any, len(msg.Args))
		}
		name := "value"
		if i > 0 {
			name = "arg" + strconv.Itoa(i)
		}
		fields[name] = v
	}
	return fields
}
