package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/webmixer/internal/infrastructure/logging"
	"github.com/nerrad567/webmixer/internal/infrastructure/mqtt"
	"github.com/nerrad567/webmixer/internal/mixer"
)

const (
	defaultBuffer = 1024

	injectTimeout = 2 * time.Second
)

// ErrBadCommand is returned for command payloads that carry no usable args.
var ErrBadCommand = errors.New("mirror: command payload must be a JSON array, number or string")

// Broker is the part of *mqtt.Client the mirror needs.
type Broker interface {
	Topics() mqtt.Topics
	QoS() byte
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Injector accepts commands into the engine. *mixer.Engine satisfies it.
type Injector interface {
	Inject(ctx context.Context, msg mixer.Message) error
}

// InjectorFunc adapts a function to Injector.
type InjectorFunc func(ctx context.Context, msg mixer.Message) error

// Inject calls f(ctx, msg).
func (f InjectorFunc) Inject(ctx context.Context, msg mixer.Message) error {
	return f(ctx, msg)
}

// Mirror keeps a retained copy of every cached control on the broker and
// feeds command topics back into the engine.
type Mirror struct {
	broker   Broker
	injector Injector
	logger   *logging.Logger
	topics   mqtt.Topics
	queue    chan mixer.Change
	dropped  atomic.Uint64
}

// New returns a Mirror. buffer sizes the publish queue; zero means 1024.
func New(broker Broker, injector Injector, logger *logging.Logger, buffer int) *Mirror {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Mirror{
		broker:   broker,
		injector: injector,
		logger:   logger.With("component", "mirror"),
		topics:   broker.Topics(),
		queue:    make(chan mixer.Change, buffer),
	}
}

// Observe queues a cached change for publishing. It never blocks.
func (m *Mirror) Observe(change mixer.Change) {
	if !change.Cached {
		return
	}
	select {
	case m.queue <- change:
	default:
		if m.dropped.Add(1) == 1 {
			m.logger.Warn("mirror queue full, dropping state updates")
		}
	}
}

// Dropped returns how many state updates were discarded.
func (m *Mirror) Dropped() uint64 {
	return m.dropped.Load()
}

// Run subscribes to the command topics and publishes queued state until
// ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) error {
	err := m.broker.Subscribe(m.topics.AllCommands(), m.broker.QoS(), func(topic string, payload []byte) error {
		return m.handleCommand(ctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	m.logger.Info("mirroring state to MQTT", "prefix", m.topics.Prefix)

	for {
		select {
		case <-ctx.Done():
			return nil
		case change := <-m.queue:
			m.publish(change.Message)
		}
	}
}

func (m *Mirror) publish(msg mixer.Message) {
	args := msg.Args
	if args == nil {
		args = []any{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		m.logger.Warn("encoding state failed", "address", msg.Address, "error", err)
		return
	}
	if err := m.broker.PublishRetained(m.topics.State(msg.Address), payload); err != nil {
		m.logger.Debug("publishing state failed", "address", msg.Address, "error", err)
	}
}

func (m *Mirror) handleCommand(ctx context.Context, topic string, payload []byte) error {
	address, ok := m.topics.CommandAddress(topic)
	if !ok {
		return fmt.Errorf("%w: no address in topic %q", ErrBadCommand, topic)
	}
	args, err := decodeArgs(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, injectTimeout)
	defer cancel()
	if err := m.injector.Inject(ctx, mixer.NewMessage(address, args...)); err != nil {
		return fmt.Errorf("injecting %s: %w", address, err)
	}
	m.logger.Debug("command received", "address", address, "args", args)
	return nil
}

// decodeArgs accepts `[0.5, "x"]`, a bare number or string, or an empty
// payload (a query).
func decodeArgs(payload []byte) ([]any, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	switch t := v.(type) {
	case []any:
		for _, arg := range t {
			if !validArg(arg) {
				return nil, fmt.Errorf("%w: unsupported element %v", ErrBadCommand, arg)
			}
		}
		return t, nil
	case float64, string:
		return []any{t}, nil
	default:
		return nil, ErrBadCommand
	}
}

func validArg(v any) bool {
	switch v.(type) {
	case float64, string:
		return true
	}
	return false
}
