package mixer

import (
	"fmt"
)

// Plugin transforms or reacts to inbound messages before they are cached
// and broadcast.
//
// Handle runs on the engine loop and must not block. A returned error is
// logged and treated as Unchanged.
type Plugin interface {
	Name() string
	Handle(msg Message, ctx Context) (Outcome, error)
}

// SessionResetter is implemented by plugins that keep state learned from
// the desk. ResetSession is called on the engine loop when the desk loads a
// different show.
type SessionResetter interface {
	ResetSession()
}

// Context is the capability set handed to plugins. It deliberately exposes
// no client connections or transport handles.
type Context interface {
	// Cached returns a copy of the cached value for address.
	Cached(address string) (Message, bool)

	// Broadcast records msg in the cache (when whitelisted) and sends it to
	// the desk, the broadcasting endpoints and every client.
	Broadcast(msg Message)

	// SendTo sends msg to every external endpoint called name.
	SendTo(name string, msg Message)
}

type outcomeKind int

const (
	outcomeUnchanged outcomeKind = iota
	outcomeReplaced
	outcomeSuppressed
)

// Outcome is what a plugin decided to do with the message it was given.
type Outcome struct {
	kind outcomeKind
	msg  Message
}

// Unchanged passes the current message on untouched.
func Unchanged() Outcome {
	return Outcome{kind: outcomeUnchanged}
}

// Replace substitutes msg for all further processing.
func Replace(msg Message) Outcome {
	return Outcome{kind: outcomeReplaced, msg: msg}
}

// Suppress drops the message: no further plugins, no cache write, no broadcast.
func Suppress() Outcome {
	return Outcome{kind: outcomeSuppressed}
}

// Suppressed reports whether the outcome drops the message.
func (o Outcome) Suppressed() bool {
	return o.kind == outcomeSuppressed
}

// Replacement returns the substituted message, if any.
func (o Outcome) Replacement() (Message, bool) {
	return o.msg, o.kind == outcomeReplaced
}

// Pipeline runs plugins in registration order.
type Pipeline struct {
	plugins []Plugin
	logger  Logger
}

// NewPipeline creates a pipeline; the plugin order is fixed from here on.
func NewPipeline(logger Logger, plugins ...Plugin) *Pipeline {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Pipeline{plugins: plugins, logger: logger}
}

// Names lists the registered plugins in order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.plugins))
	for i, pl := range p.plugins {
		names[i] = pl.Name()
	}
	return names
}

// Run passes msg through every plugin. It returns the possibly replaced
// message, or false if a plugin suppressed it.
func (p *Pipeline) Run(msg Message, ctx Context) (Message, bool) {
	for _, pl := range p.plugins {
		out, err := p.invoke(pl, msg, ctx)
		if err != nil {
			p.logger.Error("plugin failed, passing message through",
				"plugin", pl.Name(),
				"address", msg.Address,
				"error", err,
			)
			continue
		}
		if out.Suppressed() {
			p.logger.Debug("message suppressed by plugin", "plugin", pl.Name(), "address", msg.Address)
			return Message{}, false
		}
		if replacement, ok := out.Replacement(); ok {
			msg = replacement
		}
	}
	return msg, true
}

// ResetSession tells every SessionResetter plugin that the desk session
// changed. A panic is logged and the remaining plugins are still reset.
func (p *Pipeline) ResetSession() {
	for _, pl := range p.plugins {
		r, ok := pl.(SessionResetter)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					p.logger.Error("plugin session reset failed", "plugin", pl.Name(), "error", fmt.Errorf("%w: %v", ErrPluginPanic, rec))
				}
			}()
			r.ResetSession()
		}()
	}
}

// invoke calls one plugin, converting a panic into an error.
func (p *Pipeline) invoke(pl Plugin, msg Message, ctx Context) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = Unchanged()
			err = fmt.Errorf("%w: %v", ErrPluginPanic, r)
		}
	}()
	// In-place edits to the copy only take effect through Replace.
	return pl.Handle(msg.Clone(), ctx)
}
