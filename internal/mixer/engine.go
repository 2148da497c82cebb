package mixer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Default loop timings.
const (
	DefaultRetryInterval = 3 * time.Second
	DefaultPrimeInterval = 100 * time.Millisecond
	DefaultEventBuffer   = 1024
)

// Options configures a new Engine.
type Options struct {
	// Settings is the initial routing configuration.
	Settings Settings

	// Transport carries messages to the desk and the external endpoints.
	Transport Transport

	// Plugins run in the given order on every inbound message.
	Plugins []Plugin

	// Logger is optional; nil discards engine logs.
	Logger Logger

	// Observers are told about every committed message.
	Observers []Observer

	// RetryInterval re-asks the desk for its channel count until it answers.
	RetryInterval time.Duration

	// PrimeInterval paces background send level and pan queries.
	PrimeInterval time.Duration

	// EventBuffer is the depth of the inbound event queue.
	EventBuffer int
}

// Engine owns the cache, sequencer, snapshot state and client registry.
// Every mutation runs on the single goroutine started by Run, so one
// event's processing never interleaves with another's.
//
// Thread Safety:
//   - The Handle*, Connect, Inject, Exec and query methods are safe to call
//     from any goroutine; they hand work to the loop.
//   - Stats is safe from any goroutine.
type Engine struct {
	cache     *Cache
	seq       *Sequencer
	snap      snapshotTracker
	registry  *Registry
	pipeline  *Pipeline
	settings  Settings
	transport Transport
	logger    Logger
	observers []Observer
	plugCtx   pluginContext

	retryInterval time.Duration
	primeInterval time.Duration
	retry         *time.Ticker
	prime         *time.Ticker

	events  chan func()
	done    chan struct{}
	started sync.Once

	stats counters
}

// New creates an engine. Call Run to start processing.
func New(opts Options) (*Engine, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if opts.Settings.DeskHost == "" {
		return nil, fmt.Errorf("desk host is required")
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.PrimeInterval <= 0 {
		opts.PrimeInterval = DefaultPrimeInterval
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}

	cache := NewCache()
	e := &Engine{
		cache:         cache,
		seq:           NewSequencer(cache),
		snap:          newSnapshotTracker(),
		registry:      NewRegistry(),
		pipeline:      NewPipeline(opts.Logger, opts.Plugins...),
		settings:      opts.Settings,
		transport:     opts.Transport,
		logger:        opts.Logger,
		observers:     opts.Observers,
		retryInterval: opts.RetryInterval,
		primeInterval: opts.PrimeInterval,
		events:        make(chan func(), opts.EventBuffer),
		done:          make(chan struct{}),
	}
	e.plugCtx = pluginContext{engine: e}
	return e, nil
}

// Run processes events until ctx is cancelled. It starts the desk
// initialisation immediately. Run must be called at most once.
func (e *Engine) Run(ctx context.Context) error {
	first := false
	e.started.Do(func() { first = true })
	if !first {
		return fmt.Errorf("engine already started")
	}
	defer close(e.done)
	defer e.stopRetry()
	defer e.stopPrime()

	e.logger.Info("mixer engine starting",
		"desk", fmt.Sprintf("%s:%d", e.settings.DeskHost, e.settings.DeskPort),
		"plugins", e.pipeline.Names(),
	)
	e.step()
	e.startRetry()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("mixer engine stopped")
			return nil
		case fn := <-e.events:
			fn()
		case <-tickerC(e.retry):
			e.onRetry()
		case <-tickerC(e.prime):
			e.onPrime()
		}
	}
}

// tickerC returns the ticker's channel, or nil so a stopped ticker's case
// never fires.
func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// post queues fn on the loop without waiting for it to run.
func (e *Engine) post(ctx context.Context, fn func()) error {
	select {
	case e.events <- fn:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exec runs fn on the engine loop and waits for it to finish.
func (e *Engine) Exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := e.post(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleDatagram queues a message received over UDP from host.
func (e *Engine) HandleDatagram(ctx context.Context, msg Message, host string) error {
	return e.post(ctx, func() { e.processDevice(msg, host) })
}

// HandleClientPayload decodes a client frame and queues it. Decoding
// errors stay local to the calling connection.
func (e *Engine) HandleClientPayload(ctx context.Context, conn Connection, data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		e.stats.malformed.Add(1)
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if msg.Address == "" {
		e.stats.malformed.Add(1)
		return fmt.Errorf("%w: missing address", ErrMalformedPayload)
	}
	return e.post(ctx, func() { e.processClient(conn, msg) })
}

// Inject queues a system-originated message, such as a command received
// from the message broker.
func (e *Engine) Inject(ctx context.Context, msg Message) error {
	if msg.Address == "" {
		return fmt.Errorf("%w: missing address", ErrMalformedPayload)
	}
	return e.post(ctx, func() { e.processInject(msg) })
}

// Connect admits a client. Before the desk is ready the connection is
// closed and ErrNotReady returned; afterwards it receives the config
// envelope before any broadcast.
func (e *Engine) Connect(ctx context.Context, conn Connection) error {
	var result error
	if err := e.Exec(ctx, func() { result = e.accept(conn) }); err != nil {
		_ = conn.Close() //nolint:errcheck // Engine gone; nothing else to do with the connection
		return err
	}
	return result
}

// Reconfigure replaces the routing settings, pushes any renamed aux or
// channel names to the desk and clients, and closes every client so they
// reload with the new layout. Names are keyed by 1-based index.
func (e *Engine) Reconfigure(ctx context.Context, settings Settings, auxNames, channelNames map[int]string) error {
	return e.Exec(ctx, func() {
		e.settings = settings
		e.rename(AuxNamePattern, auxNames)
		e.rename(ChannelNamePattern, channelNames)
		n := e.registry.CloseAll()
		e.logger.Info("configuration applied", "clients_closed", n)
	})
}

// Status describes the engine at one instant.
type Status struct {
	Ready     bool           `json:"ready"`
	Sequencer SequencerState `json:"sequencer"`
	Phase     string         `json:"phase"`
	Cached    int            `json:"cached"`
	Clients   int            `json:"clients"`
	Snapshot  string         `json:"snapshot"`
	Plugins   []string       `json:"plugins"`
	Priming   bool           `json:"priming"`
}

// Status reports the current state from the loop.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var st Status
	err := e.Exec(ctx, func() {
		st = Status{
			Ready:     e.seq.Ready(),
			Sequencer: e.seq.State(),
			Phase:     e.seq.State().String(),
			Cached:    e.cache.Len(),
			Clients:   e.registry.Len(),
			Snapshot:  e.snap.name,
			Plugins:   e.pipeline.Names(),
			Priming:   e.prime != nil,
		}
	})
	return st, err
}

// ClientConfig returns the connect-time snapshot clients receive.
func (e *Engine) ClientConfig(ctx context.Context) (ClientConfig, error) {
	var cfg ClientConfig
	err := e.Exec(ctx, func() { cfg = e.clientConfig() })
	return cfg, err
}

// AuxDetails lists the named aux buses for the admin editor.
func (e *Engine) AuxDetails(ctx context.Context) ([]AuxDetail, error) {
	var out []AuxDetail
	err := e.Exec(ctx, func() { out = e.auxDetails() })
	return out, err
}

// ChannelDetails lists the named input channels for the admin editor.
func (e *Engine) ChannelDetails(ctx context.Context) ([]ChannelDetail, error) {
	var out []ChannelDetail
	err := e.Exec(ctx, func() { out = e.channelDetails() })
	return out, err
}

// Stats returns the running counters.
func (e *Engine) Stats() Stats {
	return e.stats.snapshot()
}

// processDevice handles one message from a UDP peer.
func (e *Engine) processDevice(msg Message, host string) {
	e.stats.deskIn.Add(1)
	e.logger.Debug("udp message", "from", host, "address", msg.Address, "args", msg.Args)

	if msg.Address == SessionChangedAddress {
		e.resetSession()
		return
	}
	if e.duplicate(msg) {
		return
	}

	// Until ready every inbound message drives exactly one sequencer query,
	// so cached queries are not answered yet.
	src := Source{Host: host}
	if e.seq.Ready() {
		if cached, ok := e.answer(msg); ok {
			e.broadcast(cached, src)
			return
		}
	}

	out, ok := e.pipeline.Run(msg, e.plugCtx)
	if !ok {
		e.stats.suppressed.Add(1)
		return
	}

	if e.seq.Ready() {
		e.trackSnapshot(out)
	}
	e.commit(out, OriginDesk)

	if !e.seq.Ready() {
		e.step()
		return
	}
	e.broadcast(out, src)
}

// processClient handles one decoded message from a client.
func (e *Engine) processClient(conn Connection, msg Message) {
	e.stats.clientIn.Add(1)
	e.logger.Debug("client message", "conn", conn.ID(), "address", msg.Address, "args", msg.Args)

	if e.duplicate(msg) {
		return
	}

	if cached, ok := e.answer(msg); ok {
		data, err := json.Marshal(cached)
		if err != nil {
			e.logger.Error("encoding cached reply", "address", cached.Address, "error", err)
			return
		}
		if err := conn.Send(data); err != nil {
			e.stats.sendErrors.Add(1)
			e.logger.Warn("client send failed", "conn", conn.ID(), "error", err)
		}
		return
	}

	out, ok := e.pipeline.Run(msg, e.plugCtx)
	if !ok {
		e.stats.suppressed.Add(1)
		return
	}
	e.commit(out, OriginClient)
	e.broadcast(out, Source{Conn: conn})
}

// processInject handles a system-originated message. It takes the client
// path without a sender so every destination, the desk included, gets it.
func (e *Engine) processInject(msg Message) {
	e.stats.injected.Add(1)
	e.logger.Debug("injected message", "address", msg.Address, "args", msg.Args)

	if e.duplicate(msg) {
		return
	}
	if cached, ok := e.answer(msg); ok {
		e.broadcast(cached, Source{Host: e.settings.DeskHost})
		return
	}

	out, ok := e.pipeline.Run(msg, e.plugCtx)
	if !ok {
		e.stats.suppressed.Add(1)
		return
	}
	e.commit(out, OriginSystem)
	e.broadcast(out, Source{})
}

// duplicate reports whether msg equals its cached value.
func (e *Engine) duplicate(msg Message) bool {
	cached, ok := e.cache.entries[msg.Address]
	if !ok || !cached.Equal(msg) {
		return false
	}
	e.stats.duplicates.Add(1)
	e.logger.Debug("message already cached", "address", msg.Address)
	return true
}

// answer returns the cached value for a query whose base address is cached.
func (e *Engine) answer(msg Message) (Message, bool) {
	if !msg.IsQuery() {
		return Message{}, false
	}
	cached, ok := e.cache.Get(msg.QueryBase())
	if ok {
		e.stats.queriesAnswered.Add(1)
	}
	return cached, ok
}

// commit writes msg to the cache when whitelisted and tells observers.
func (e *Engine) commit(msg Message, origin Origin) {
	cached := e.cache.Put(msg)
	if cached {
		e.logger.Debug("cached", "address", msg.Address)
	}
	e.notify(Change{Message: msg, Origin: origin, Cached: cached, At: time.Now()})
}

func (e *Engine) notify(change Change) {
	for _, o := range e.observers {
		o.Observe(change)
	}
}

// step advances the sequencer by one query.
func (e *Engine) step() {
	query, becameReady := e.seq.Step()
	e.sendDesk(query)
	if !becameReady {
		return
	}
	e.logger.Info("mixer ready",
		"cached", e.cache.Len(),
		"channels", len(e.channelDetails()),
		"auxes", len(e.auxDetails()),
	)
	e.stopRetry()
	e.startPrime()
}

func (e *Engine) startRetry() {
	e.stopRetry()
	e.retry = time.NewTicker(e.retryInterval)
}

func (e *Engine) stopRetry() {
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
}

func (e *Engine) onRetry() {
	if _, ok := e.cache.channelCount(); ok {
		e.stopRetry()
		return
	}
	e.logger.Warn("desk has not answered, asking again", "desk", e.settings.DeskHost)
	e.sendDesk(NewMessage(channelCountQuery))
}

func (e *Engine) startPrime() {
	e.stopPrime()
	e.prime = time.NewTicker(e.primeInterval)
}

func (e *Engine) stopPrime() {
	if e.prime != nil {
		e.prime.Stop()
		e.prime = nil
	}
}

func (e *Engine) onPrime() {
	query, ok := e.seq.NextGap(e.settings.auxEnabled, e.settings.channelEnabled)
	if !ok {
		e.stopPrime()
		e.logger.Info("cache primed", "cached", e.cache.Len())
		return
	}
	e.sendDesk(query)
}

// resetSession drops everything learned from the previous desk session
// and starts initialisation again.
func (e *Engine) resetSession() {
	e.stats.sessionResets.Add(1)
	e.cache.Clear()
	e.seq.Reset()
	e.snap = newSnapshotTracker()
	e.pipeline.ResetSession()
	e.stopPrime()
	closed := e.registry.CloseAll()
	e.logger.Info("desk session changed, reloading", "clients_closed", closed)

	e.notify(Change{Message: NewMessage(SessionChangedAddress), Origin: OriginDesk, At: time.Now()})

	e.step()
	e.startRetry()
}

// trackSnapshot feeds the snapshot tracker and acts on what it reports.
func (e *Engine) trackSnapshot(msg Message) {
	action := e.snap.observe(msg)
	if action.queryNames {
		e.sendDesk(NewMessage(snapshotNamesQuery))
	}
	if action.nameChanged {
		e.logger.Info("snapshot changed", "index", e.snap.index, "name", e.snap.name)
		name := NewMessage(SnapshotNameAddress, e.snap.name)
		e.notify(Change{Message: name, Origin: OriginDesk, At: time.Now()})
		e.broadcast(name, Source{Host: e.settings.DeskHost})
	}
}

func (e *Engine) accept(conn Connection) error {
	if !e.seq.Ready() {
		e.stats.rejected.Add(1)
		_ = conn.Close() //nolint:errcheck // Rejected connections are discarded
		e.logger.Debug("client rejected, desk not ready", "conn", conn.ID(), "phase", e.seq.State().String())
		return ErrNotReady
	}

	data, err := json.Marshal(Envelope{Config: e.clientConfig()})
	if err != nil {
		_ = conn.Close() //nolint:errcheck // Cannot serve this client without its config
		return fmt.Errorf("encoding client config: %w", err)
	}
	if err := conn.Send(data); err != nil {
		_ = conn.Close() //nolint:errcheck // Client never received its config
		return fmt.Errorf("sending client config: %w", err)
	}
	e.registry.Add(conn)
	e.logger.Debug("client connected", "conn", conn.ID(), "clients", e.registry.Len())
	return nil
}

// rename applies admin name edits for addresses already known to the desk.
func (e *Engine) rename(p Pattern, names map[int]string) {
	for i, name := range names {
		addr := p.Format(i)
		current, ok := e.cache.Text(addr)
		if !ok || current == name {
			continue
		}
		msg := NewMessage(addr, name)
		e.commit(msg, OriginSystem)
		e.broadcast(msg, Source{})
	}
}

// pluginContext is the capability set handed to plugins.
type pluginContext struct {
	engine *Engine
}

func (c pluginContext) Cached(address string) (Message, bool) {
	return c.engine.cache.Get(address)
}

func (c pluginContext) Broadcast(msg Message) {
	c.engine.commit(msg, OriginSystem)
	c.engine.broadcast(msg, Source{})
}

func (c pluginContext) SendTo(name string, msg Message) {
	c.engine.sendTo(name, msg)
}

