// Package osc is the UDP transport between the engine and OSC peers: the
// mixing desk and the external endpoints.
//
// One socket is bound to the configured OSC port and used for both reading
// and writing, so the desk's replies come back to where they are read.
// Messages are packed with github.com/hypebeast/go-osc.
//
// Argument widths:
//   - outbound float64 becomes float32, int becomes int32
//   - inbound int32 becomes int, float32 becomes the float64 with the
//     shortest matching decimal
//
// Usage:
//
//	tr, err := osc.Listen(cfg.OSC.Host, cfg.OSC.Port, cfg.OSC.BufferSize, log)
//	if err != nil {
//	    return err
//	}
//	defer tr.Close()
//	go tr.Serve(ctx, engine)
package osc
