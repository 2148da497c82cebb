package osc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goosc "github.com/hypebeast/go-osc/osc"

	"github.com/nerrad567/webmixer/internal/mixer"
)

func TestEncodeDecodeArgTypes(t *testing.T) {
	msg := mixer.NewMessage("/Input_Channels/1/Aux_Send/2/send_level", 0.1, 3, "Kick", true)

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// The wire carries float32 and int32.
	packet, err := goosc.ParsePacket(string(data))
	if err != nil {
		t.Fatalf("ParsePacket() error = %v", err)
	}
	wire := packet.(*goosc.Message)
	if _, ok := wire.Arguments[0].(float32); !ok {
		t.Errorf("arg 0 wire type = %T, want float32", wire.Arguments[0])
	}
	if _, ok := wire.Arguments[1].(int32); !ok {
		t.Errorf("arg 1 wire type = %T, want int32", wire.Arguments[1])
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Decode() returned %d messages", len(got))
	}
	if got[0].Args[0] != 0.1 {
		t.Errorf("float arg = %v, want 0.1", got[0].Args[0])
	}
	if got[0].Args[1] != 3 {
		t.Errorf("int arg = %v (%T), want int 3", got[0].Args[1], got[0].Args[1])
	}
	if !got[0].Equal(msg) {
		t.Errorf("decoded %+v, want %+v", got[0], msg)
	}
}

func TestEncodeUnsupportedArg(t *testing.T) {
	_, err := Encode(mixer.NewMessage("/x", []any{1}))
	if !errors.Is(err, ErrUnsupportedArg) {
		t.Errorf("Encode() error = %v, want ErrUnsupportedArg", err)
	}
}

func TestDecodeFlattensBundles(t *testing.T) {
	inner := goosc.NewBundle(time.Now())
	inner.Append(goosc.NewMessage("/c", int32(3)))

	outer := goosc.NewBundle(time.Now())
	outer.Append(goosc.NewMessage("/a", int32(1)))
	outer.Append(goosc.NewMessage("/b", "two"))
	outer.Append(inner)

	data, err := outer.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	msgs, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	var addrs []string
	for _, m := range msgs {
		addrs = append(addrs, m.Address)
	}
	if len(addrs) != 3 || addrs[0] != "/a" || addrs[1] != "/b" || addrs[2] != "/c" {
		t.Errorf("addresses = %v, want [/a /b /c]", addrs)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x02}); !errors.Is(err, ErrDecode) {
		t.Errorf("Decode() error = %v, want ErrDecode", err)
	}
}

type received struct {
	msg  mixer.Message
	host string
}

type recordingHandler struct {
	mu  sync.Mutex
	got []received
	ch  chan struct{}
}

func (h *recordingHandler) HandleDatagram(_ context.Context, msg mixer.Message, host string) error {
	h.mu.Lock()
	h.got = append(h.got, received{msg: msg, host: host})
	h.mu.Unlock()
	h.ch <- struct{}{}
	return nil
}

func TestTransportLoopback(t *testing.T) {
	tr, err := Listen("127.0.0.1", 0, 0, nil)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := &recordingHandler{ch: make(chan struct{}, 4)}
	done := make(chan error, 1)
	go func() { done <- tr.Serve(ctx, h) }()

	if err := tr.Send(mixer.NewMessage("/Console/Input_Channels", 32), "127.0.0.1", tr.Addr().Port); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case <-h.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("datagram not received")
	}

	h.mu.Lock()
	got := h.got[0]
	h.mu.Unlock()
	if got.host != "127.0.0.1" {
		t.Errorf("host = %q", got.host)
	}
	if n, _ := got.msg.Int(0); got.msg.Address != "/Console/Input_Channels" || n != 32 {
		t.Errorf("message = %+v", got.msg)
	}
	if tr.Received() != 1 {
		t.Errorf("Received() = %d", tr.Received())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not stop")
	}

	if err := tr.Send(mixer.NewMessage("/x"), "127.0.0.1", 9); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after close error = %v, want ErrClosed", err)
	}
}

func TestTransportSkipsUndecodable(t *testing.T) {
	tr, err := Listen("127.0.0.1", 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := &recordingHandler{ch: make(chan struct{}, 4)}
	go tr.Serve(ctx, h) //nolint:errcheck // Stopped by cancel

	if _, err := tr.conn.WriteToUDP([]byte("junk"), tr.Addr()); err != nil {
		t.Fatal(err)
	}
	if err := tr.Send(mixer.NewMessage("/ok"), "127.0.0.1", tr.Addr().Port); err != nil {
		t.Fatal(err)
	}

	select {
	case <-h.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("valid datagram after junk not received")
	}
	if tr.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", tr.Dropped())
	}
}

func TestTransportSendRequiresIP(t *testing.T) {
	tr, err := Listen("127.0.0.1", 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if err := tr.Send(mixer.NewMessage("/x"), "localhost", tr.Addr().Port); !errors.Is(err, ErrNotIP) {
		t.Errorf("Send() to hostname error = %v, want ErrNotIP", err)
	}
	if err := tr.Send(mixer.NewMessage("/x"), "::ffff:127.0.0.1", tr.Addr().Port); err != nil {
		t.Errorf("Send() to mapped address error = %v", err)
	}
}
