package mixer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/webmixer/internal/infrastructure/config"
)

const (
	testDesk     = "192.168.0.5"
	testDeskPort = 9000
)

type sentUDP struct {
	Msg  Message
	Host string
	Port int
}

// mockTransport implements Transport for testing.
type mockTransport struct {
	mu   sync.Mutex
	sent []sentUDP
	err  error
}

func (m *mockTransport) Send(msg Message, host string, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentUDP{Msg: msg, Host: host, Port: port})
	return nil
}

func (m *mockTransport) all() []sentUDP {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentUDP(nil), m.sent...)
}

func (m *mockTransport) to(host string) []sentUDP {
	var out []sentUDP
	for _, s := range m.all() {
		if s.Host == host {
			out = append(out, s)
		}
	}
	return out
}

func (m *mockTransport) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

func (m *mockTransport) lastDesk() Message {
	desk := m.to(testDesk)
	if len(desk) == 0 {
		return Message{}
	}
	return desk[len(desk)-1].Msg
}

func testSettings(endpoints ...Endpoint) Settings {
	return Settings{
		DeskHost:  testDesk,
		DeskPort:  testDeskPort,
		Endpoints: endpoints,
	}
}

func newTestEngine(t *testing.T, settings Settings, plugins ...Plugin) (*Engine, *mockTransport) {
	t.Helper()
	tr := &mockTransport{}
	e, err := New(Options{
		Settings:      settings,
		Transport:     tr,
		Plugins:       plugins,
		RetryInterval: time.Hour,
		PrimeInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		e.stopPrime()
		e.stopRetry()
	})
	return e, tr
}

// makeReady answers the sequencer's queries until clients may connect.
func makeReady(t *testing.T, e *Engine, channels, auxes int) {
	t.Helper()
	e.step()
	e.processDevice(NewMessage("/Console/Input_Channels", int32(channels)), testDesk)
	modes := make([]any, auxes)
	for i := range modes {
		modes[i] = int32(1 + i%2)
	}
	e.processDevice(NewMessage("/Console/Aux_Outputs/modes", modes...), testDesk)
	for i := 1; i <= auxes; i++ {
		e.processDevice(NewMessage(AuxNamePattern.Format(i), fmt.Sprintf("Aux %d", i)), testDesk)
	}
	for i := 1; i <= channels; i++ {
		e.processDevice(NewMessage(ChannelNamePattern.Format(i), fmt.Sprintf("Ch %d", i)), testDesk)
	}
	if !e.seq.Ready() {
		t.Fatalf("engine not ready, state %v", e.seq.State())
	}
}

func decodeMessage(t *testing.T, data []byte) Message {
	t.Helper()
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decoding frame %s: %v", data, err)
	}
	return msg
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{Settings: testSettings()}); err == nil {
		t.Error("New() without transport succeeded")
	}
	if _, err := New(Options{Transport: &mockTransport{}}); err == nil {
		t.Error("New() without desk host succeeded")
	}
}

func TestEngineSequencerQueriesInOrder(t *testing.T) {
	e, tr := newTestEngine(t, testSettings())

	e.step()
	if got := tr.lastDesk().Address; got != "/Console/Channels/?" {
		t.Fatalf("first query = %q, want channel count", got)
	}

	// Unrelated traffic re-issues the same outstanding query.
	e.processDevice(NewMessage("/Input_Channels/1/mute", 0), testDesk)
	if got := tr.lastDesk().Address; got != "/Console/Channels/?" {
		t.Fatalf("query after unrelated message = %q", got)
	}

	e.processDevice(NewMessage("/Console/Input_Channels", int32(2)), testDesk)
	if got := tr.lastDesk().Address; got != "/Console/Aux_Outputs/modes/?" {
		t.Fatalf("second query = %q, want aux modes", got)
	}

	e.processDevice(NewMessage("/Console/Aux_Outputs/modes", int32(1)), testDesk)
	e.processDevice(NewMessage("/Aux_Outputs/1/Buss_Trim/name", "Band"), testDesk)
	if got := tr.lastDesk().Address; got != "/Input_Channels/1/Channel_Input/name/?" {
		t.Fatalf("query = %q, want channel 1 name", got)
	}

	// One device-bound message per processed message while not ready.
	before := len(tr.to(testDesk))
	e.processDevice(NewMessage("/Input_Channels/1/Channel_Input/name", "Kick"), testDesk)
	if n := len(tr.to(testDesk)) - before; n != 1 {
		t.Errorf("sent %d desk messages for one inbound message, want 1", n)
	}
}

func TestEngineNotReadyDoesNotBroadcast(t *testing.T) {
	ep := Endpoint{Name: "deck", Host: "10.0.0.9", Port: 9001, Broadcast: true}
	e, tr := newTestEngine(t, testSettings(ep))
	e.step()

	e.processDevice(NewMessage("/Input_Channels/1/mute", 1), testDesk)
	if len(tr.to(ep.Host)) != 0 {
		t.Error("message relayed before ready")
	}
}

func TestEngineNotReadyQueryDrivesSequencer(t *testing.T) {
	ep := Endpoint{Name: "deck", Host: "10.0.0.9", Port: 9001, Broadcast: true}
	e, tr := newTestEngine(t, testSettings(ep))
	e.step()
	e.processDevice(NewMessage("/Console/Input_Channels", int32(2)), testDesk)
	tr.reset()

	e.processDevice(NewMessage("/Console/Input_Channels/?"), ep.Host)

	if e.seq.Ready() {
		t.Fatal("engine became ready")
	}
	desk := tr.to(testDesk)
	if len(desk) != 1 || desk[0].Msg.Address != "/Console/Aux_Outputs/modes/?" {
		t.Errorf("desk got %+v, want the one outstanding sequencer query", desk)
	}
	if n := len(tr.to(ep.Host)); n != 0 {
		t.Errorf("endpoint got %d messages before ready", n)
	}
}

func TestEngineIdempotence(t *testing.T) {
	plug := &stubPlugin{name: "counter"}
	ep := Endpoint{Name: "deck", Host: "10.0.0.9", Port: 9001, Broadcast: true}
	e, tr := newTestEngine(t, testSettings(ep), plug)
	makeReady(t, e, 2, 2)
	conn := newMockConn("c1")
	if err := e.accept(conn); err != nil {
		t.Fatalf("accept() error = %v", err)
	}

	level := NewMessage("/Input_Channels/1/Aux_Send/1/send_level", float32(0.75))
	e.processDevice(level, testDesk)

	calls, sends, frames := plug.calls, len(tr.all()), len(conn.frames())
	e.processDevice(NewMessage(level.Address, 0.75), testDesk)
	e.processClient(newMockConn("c2"), NewMessage(level.Address, 0.75))

	if plug.calls != calls {
		t.Errorf("plugin ran %d more times for a cached value", plug.calls-calls)
	}
	if len(tr.all()) != sends || len(conn.frames()) != frames {
		t.Error("cached value was broadcast again")
	}
	if e.Stats().Duplicates != 2 {
		t.Errorf("Duplicates = %d, want 2", e.Stats().Duplicates)
	}
}

func TestEngineWhitelistClosure(t *testing.T) {
	e, _ := newTestEngine(t, testSettings())
	makeReady(t, e, 1, 1)
	before := e.cache.Len()

	for i := 0; i < 5; i++ {
		e.processDevice(NewMessage("/Input_Channels/1/Channel_Input/mute", i), testDesk)
		e.processClient(newMockConn("c"), NewMessage("/Input_Channels/1/Group/group", i))
	}
	if e.cache.Len() != before {
		t.Errorf("cache grew from %d to %d", before, e.cache.Len())
	}
}

func TestEngineLoopback(t *testing.T) {
	tests := []struct {
		name      string
		endpoint  Endpoint
		source    string
		wantSends int
	}{
		{
			name:      "origin without loopback",
			endpoint:  Endpoint{Name: "daw", Host: "10.0.0.5", Port: 8000, Broadcast: true},
			source:    "10.0.0.5",
			wantSends: 0,
		},
		{
			name:      "origin with loopback",
			endpoint:  Endpoint{Name: "daw", Host: "10.0.0.5", Port: 8000, Broadcast: true, Loopback: true},
			source:    "10.0.0.5",
			wantSends: 1,
		},
		{
			name:      "other origin",
			endpoint:  Endpoint{Name: "daw", Host: "10.0.0.5", Port: 8000, Broadcast: true},
			source:    testDesk,
			wantSends: 1,
		},
		{
			name:      "broadcast disabled",
			endpoint:  Endpoint{Name: "daw", Host: "10.0.0.5", Port: 8000, Loopback: true},
			source:    testDesk,
			wantSends: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, tr := newTestEngine(t, testSettings(tt.endpoint))
			makeReady(t, e, 1, 1)
			tr.reset()

			e.processDevice(NewMessage("/Input_Channels/1/Channel_Input/mute", 1), tt.source)
			if got := len(tr.to(tt.endpoint.Host)); got != tt.wantSends {
				t.Errorf("sends to endpoint = %d, want %d", got, tt.wantSends)
			}
		})
	}
}

func TestEngineDeskEcho(t *testing.T) {
	e, tr := newTestEngine(t, testSettings())
	makeReady(t, e, 1, 1)
	tr.reset()

	e.processDevice(NewMessage("/Input_Channels/1/Channel_Input/mute", 1), testDesk)
	if len(tr.to(testDesk)) != 0 {
		t.Error("desk message echoed back to the desk")
	}

	e.processClient(newMockConn("c"), NewMessage("/Input_Channels/1/Channel_Input/mute", 0))
	if len(tr.to(testDesk)) != 1 {
		t.Error("client message not forwarded to the desk")
	}
}

func TestEngineDeskEchoByHostname(t *testing.T) {
	stubLookup(t, map[string][]netip.Addr{
		"desk.local": {netip.MustParseAddr("127.0.0.1")},
		"deck.local": {netip.MustParseAddr("127.0.0.2")},
	})
	cfg := config.Default()
	cfg.Desk.Host = "desk.local"
	cfg.External = []config.EndpointConfig{{Name: "deck", Host: "deck.local", Port: 9001, Broadcast: true}}
	settings, err := SettingsFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	e, tr := newTestEngine(t, settings)
	makeReady(t, e, 1, 1)
	tr.reset()

	e.processDevice(NewMessage("/Input_Channels/1/Channel_Input/mute", 1), "127.0.0.1")
	if n := len(tr.to("127.0.0.1")); n != 0 {
		t.Errorf("desk message echoed back to the desk %d times", n)
	}
	if n := len(tr.to("127.0.0.2")); n != 1 {
		t.Errorf("endpoint got %d messages, want 1", n)
	}

	tr.reset()
	e.processDevice(NewMessage("/Input_Channels/1/Channel_Input/mute", 0), "127.0.0.2")
	if n := len(tr.to("127.0.0.2")); n != 0 {
		t.Errorf("endpoint without loopback got its own message %d times", n)
	}
}

func TestEngineQueryShortCircuit(t *testing.T) {
	e, tr := newTestEngine(t, testSettings())
	makeReady(t, e, 1, 1)
	e.cache.Put(NewMessage("/Aux_Outputs/1/Buss_Trim/name", "Vocal"))
	tr.reset()

	conn := newMockConn("asker")
	other := newMockConn("other")
	if err := e.accept(other); err != nil {
		t.Fatal(err)
	}
	e.processClient(conn, NewMessage("/Aux_Outputs/1/Buss_Trim/name/?"))

	frames := conn.frames()
	if len(frames) != 1 {
		t.Fatalf("asker got %d frames, want 1", len(frames))
	}
	got := decodeMessage(t, frames[0])
	if !got.Equal(NewMessage("/Aux_Outputs/1/Buss_Trim/name", "Vocal")) {
		t.Errorf("reply = %+v", got)
	}
	if len(tr.to(testDesk)) != 0 {
		t.Error("answered query was forwarded to the desk")
	}
	if len(other.frames()) != 1 {
		t.Errorf("other client got %d frames, want only its config", len(other.frames()))
	}
}

func TestEngineUncachedQueryGoesToDesk(t *testing.T) {
	e, tr := newTestEngine(t, testSettings())
	makeReady(t, e, 1, 1)
	tr.reset()

	e.processClient(newMockConn("c"), Query("/Input_Channels/1/Channel_Input/mute"))
	if got := tr.lastDesk().Address; got != "/Input_Channels/1/Channel_Input/mute/?" {
		t.Errorf("desk got %q", got)
	}
}

func TestEngineSessionReset(t *testing.T) {
	var changes []Change
	tr := &mockTransport{}
	e, err := New(Options{
		Settings:      testSettings(),
		Transport:     tr,
		Observers:     []Observer{ObserverFunc(func(c Change) { changes = append(changes, c) })},
		RetryInterval: time.Hour,
		PrimeInterval: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.stopPrime(); e.stopRetry() })
	makeReady(t, e, 2, 1)
	conn := newMockConn("c1")
	if err := e.accept(conn); err != nil {
		t.Fatal(err)
	}

	e.processDevice(NewMessage(SessionChangedAddress), testDesk)

	if e.cache.Len() != 0 {
		t.Errorf("cache has %d entries after reset", e.cache.Len())
	}
	if conn.closed != 1 {
		t.Error("client not closed on session change")
	}
	if e.registry.Len() != 0 {
		t.Error("registry not emptied")
	}
	if e.seq.State().Phase != PhaseAwaitingChannelCount {
		t.Errorf("phase = %v, want awaiting_channel_count", e.seq.State().Phase)
	}
	if got := tr.lastDesk().Address; got != "/Console/Channels/?" {
		t.Errorf("last desk query = %q", got)
	}
	if e.prime != nil {
		t.Error("priming still running after reset")
	}
	if e.retry == nil {
		t.Error("retry not restarted after reset")
	}
	last := changes[len(changes)-1]
	if last.Message.Address != SessionChangedAddress {
		t.Errorf("last change = %q, want session sentinel", last.Message.Address)
	}

	late := newMockConn("late")
	if err := e.accept(late); !errors.Is(err, ErrNotReady) {
		t.Errorf("accept() after reset error = %v, want ErrNotReady", err)
	}
}

func TestEnginePluginSuppression(t *testing.T) {
	target := "/Input_Channels/1/Aux_Send/1/send_level"
	suppress := &stubPlugin{name: "suppress", handle: func(msg Message, _ Context) (Outcome, error) {
		if msg.Address == target {
			return Suppress(), nil
		}
		return Unchanged(), nil
	}}
	after := &stubPlugin{name: "after"}
	e, tr := newTestEngine(t, testSettings(), suppress, after)
	makeReady(t, e, 1, 1)
	conn := newMockConn("c")
	if err := e.accept(conn); err != nil {
		t.Fatal(err)
	}
	tr.reset()
	calls := after.calls

	e.processClient(newMockConn("sender"), NewMessage(target, 0.5))

	if e.cache.Has(target) {
		t.Error("suppressed message was cached")
	}
	if len(tr.all()) != 0 || len(conn.frames()) != 1 {
		t.Error("suppressed message was broadcast")
	}
	if after.calls != calls {
		t.Error("later plugin ran for a suppressed message")
	}
}

func TestEnginePluginBroadcastCommits(t *testing.T) {
	target := NewMessage("/Input_Channels/2/Aux_Send/1/send_level", 0.25)
	side := &stubPlugin{name: "side", handle: func(msg Message, ctx Context) (Outcome, error) {
		if msg.Address == "/Input_Channels/1/Group/group" {
			ctx.Broadcast(target)
			return Suppress(), nil
		}
		return Unchanged(), nil
	}}
	e, tr := newTestEngine(t, testSettings(), side)
	makeReady(t, e, 2, 1)
	tr.reset()

	e.processDevice(NewMessage("/Input_Channels/1/Group/group", 4), testDesk)

	if got, ok := e.cache.Get(target.Address); !ok || !got.Equal(target) {
		t.Errorf("side-effect broadcast not cached: %+v", got)
	}
	if got := tr.lastDesk(); !got.Equal(target) {
		t.Errorf("desk got %+v, want the side-effect message", got)
	}
}

func TestEngineReadyGating(t *testing.T) {
	e, _ := newTestEngine(t, testSettings())
	e.step()

	early := newMockConn("early")
	if err := e.accept(early); !errors.Is(err, ErrNotReady) {
		t.Fatalf("accept() before ready error = %v", err)
	}
	if early.closed != 1 || len(early.frames()) != 0 {
		t.Error("early connection not closed cleanly")
	}

	makeReady(t, e, 2, 2)
	conn := newMockConn("ready")
	if err := e.accept(conn); err != nil {
		t.Fatalf("accept() after ready error = %v", err)
	}
	e.processDevice(NewMessage("/Input_Channels/1/Channel_Input/mute", 1), testDesk)

	frames := conn.frames()
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want envelope then message", len(frames))
	}
	var env Envelope
	if err := json.Unmarshal(frames[0], &env); err != nil {
		t.Fatalf("first frame is not an envelope: %v", err)
	}
	if len(env.Config.Channels) != 2 || len(env.Config.Aux) != 2 {
		t.Errorf("envelope = %+v", env.Config)
	}
	if env.Config.Aux[1].Stereo != true || env.Config.Aux[0].Stereo != false {
		t.Errorf("aux stereo flags = %v, %v", env.Config.Aux[0].Stereo, env.Config.Aux[1].Stereo)
	}
	if second := decodeMessage(t, frames[1]); second.Address != "/Input_Channels/1/Channel_Input/mute" {
		t.Errorf("second frame = %q", second.Address)
	}
}

func TestEngineSnapshotName(t *testing.T) {
	e, tr := newTestEngine(t, testSettings())
	makeReady(t, e, 1, 1)
	if got := tr.lastDesk().Address; got != "/Snapshots/Current_Snapshot/?" {
		t.Fatalf("ready query = %q", got)
	}
	conn := newMockConn("c")
	if err := e.accept(conn); err != nil {
		t.Fatal(err)
	}

	e.processDevice(NewMessage("/Snapshots/Current_Snapshot", int32(3)), testDesk)
	if got := tr.lastDesk().Address; got != "/Snapshots/names/?" {
		t.Errorf("names query = %q", got)
	}

	e.processDevice(NewMessage("/Snapshots/name", int32(3), "Evening"), testDesk)
	var names []string
	for _, f := range conn.frames()[1:] {
		if m := decodeMessage(t, f); m.Address == SnapshotNameAddress {
			s, _ := m.Text(0)
			names = append(names, s)
		}
	}
	if len(names) != 1 || names[0] != "Evening" {
		t.Errorf("snapshot names broadcast = %v", names)
	}
	if e.snap.name != "Evening" {
		t.Errorf("tracked name = %q", e.snap.name)
	}
}

func TestEnginePriming(t *testing.T) {
	s := testSettings()
	off := false
	s.Auxiliaries = map[int]AuxOverride{1: {Enabled: &off}}
	e, tr := newTestEngine(t, s)
	makeReady(t, e, 1, 2)
	if e.prime == nil {
		t.Fatal("priming not started once ready")
	}

	e.onPrime()
	if got := tr.lastDesk().Address; got != "/Input_Channels/1/Aux_Send/2/send_level/?" {
		t.Errorf("prime query = %q, want disabled aux skipped", got)
	}

	e.processDevice(NewMessage("/Input_Channels/1/Aux_Send/2/send_level", 0.1), testDesk)
	e.processDevice(NewMessage("/Input_Channels/1/Aux_Send/2/send_pan", 0.5), testDesk)
	e.onPrime()
	if e.prime != nil {
		t.Error("priming still running with no gaps")
	}
	if e.seq.State().Phase != PhaseReady {
		t.Errorf("phase = %v, want ready", e.seq.State().Phase)
	}
}

func TestEngineRetry(t *testing.T) {
	e, tr := newTestEngine(t, testSettings())
	e.step()
	e.startRetry()
	tr.reset()

	e.onRetry()
	if got := tr.lastDesk().Address; got != "/Console/Channels/?" {
		t.Errorf("retry query = %q", got)
	}

	e.cache.Put(NewMessage("/Console/Input_Channels", 4))
	e.onRetry()
	if e.retry != nil {
		t.Error("retry still running once channel count cached")
	}
}

func TestEngineSendErrorsAreIsolated(t *testing.T) {
	ep := Endpoint{Name: "deck", Host: "10.0.0.9", Port: 9001, Broadcast: true}
	e, tr := newTestEngine(t, testSettings(ep))
	makeReady(t, e, 1, 1)
	conn := newMockConn("c")
	if err := e.accept(conn); err != nil {
		t.Fatal(err)
	}

	tr.err = fmt.Errorf("write: %w", ErrPeerUnreachable)
	e.processClient(newMockConn("sender"), NewMessage("/Input_Channels/1/Channel_Input/mute", 1))

	if len(conn.frames()) != 2 {
		t.Error("UDP failure stopped the client fanout")
	}
	if e.Stats().SendErrors < 2 {
		t.Errorf("SendErrors = %d, want desk and endpoint failures", e.Stats().SendErrors)
	}
}

func TestEngineHandleClientPayloadMalformed(t *testing.T) {
	e, _ := newTestEngine(t, testSettings())
	ctx := context.Background()

	for _, payload := range []string{"{not json", `{"args":[1]}`, `[]`} {
		err := e.HandleClientPayload(ctx, newMockConn("c"), []byte(payload))
		if !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("HandleClientPayload(%q) error = %v, want ErrMalformedPayload", payload, err)
		}
	}
	if e.Stats().Malformed != 3 {
		t.Errorf("Malformed = %d, want 3", e.Stats().Malformed)
	}
}

func TestEngineSendTo(t *testing.T) {
	eps := []Endpoint{
		{Name: "streamdeck", Host: "10.0.0.2", Port: 1},
		{Name: "streamdeck", Host: "10.0.0.3", Port: 2},
		{Name: "daw", Host: "10.0.0.4", Port: 3, Broadcast: true},
	}
	e, tr := newTestEngine(t, testSettings(eps...))

	e.sendTo("streamdeck", NewMessage("/press", 1))
	if len(tr.to("10.0.0.2")) != 1 || len(tr.to("10.0.0.3")) != 1 {
		t.Error("named send missed an endpoint")
	}
	if len(tr.to("10.0.0.4")) != 0 {
		t.Error("named send reached another endpoint")
	}
}

func TestEngineRunLifecycle(t *testing.T) {
	tr := &mockTransport{}
	e, err := New(Options{
		Settings:      testSettings(),
		Transport:     tr,
		RetryInterval: time.Hour,
		PrimeInterval: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	msgs := []Message{
		NewMessage("/Console/Input_Channels", int32(1)),
		NewMessage("/Console/Aux_Outputs/modes", int32(2)),
		NewMessage("/Aux_Outputs/1/Buss_Trim/name", "Wedge"),
		NewMessage("/Input_Channels/1/Channel_Input/name", "Vox"),
	}
	for _, m := range msgs {
		if err := e.HandleDatagram(ctx, m, testDesk); err != nil {
			t.Fatalf("HandleDatagram() error = %v", err)
		}
	}

	st, err := e.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !st.Ready {
		t.Fatalf("Status().Ready = false, phase %s", st.Phase)
	}

	conn := newMockConn("c")
	if err := e.Connect(ctx, conn); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	renamed := currentSettings(ctx, t, e)
	if err := e.Reconfigure(ctx, renamed, map[int]string{1: "Drummer"}, nil); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	if conn.State() != ConnClosed {
		t.Error("Reconfigure() left clients open")
	}
	details, err := e.AuxDetails(ctx)
	if err != nil || len(details) != 1 || details[0].Name != "Drummer" {
		t.Errorf("AuxDetails() = %+v, %v", details, err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop")
	}

	if err := e.Exec(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Exec() after stop error = %v, want ErrStopped", err)
	}
	if err := e.Run(context.Background()); err == nil {
		t.Error("second Run() succeeded")
	}
}

func currentSettings(ctx context.Context, t *testing.T, e *Engine) Settings {
	t.Helper()
	var s Settings
	if err := e.Exec(ctx, func() { s = e.settings }); err != nil {
		t.Fatal(err)
	}
	return s
}
