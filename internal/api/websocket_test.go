package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/webmixer/internal/mixer"
)

const sendLevel = "/Input_Channels/1/Aux_Send/1/send_level"

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.router())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) []byte {
	t.Helper()
	//nolint:errcheck // Test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return data
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWebSocket_RefusedBeforeReady(t *testing.T) {
	env := newTestEnv(t, nil)
	ws := dialWS(t, env)

	//nolint:errcheck // Test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("read error = %v, want normal close", err)
	}
	if got := env.engine.Stats().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}
}

func TestWebSocket_ConfigEnvelopeThenRelay(t *testing.T) {
	env := newTestEnv(t, nil)
	env.makeReady(t, 2, 2)
	ws := dialWS(t, env)

	var env1 mixer.Envelope
	if err := json.Unmarshal(readFrame(t, ws), &env1); err != nil {
		t.Fatalf("first frame is not the config envelope: %v", err)
	}
	if len(env1.Config.Channels) != 2 || len(env1.Config.Aux) != 2 {
		t.Errorf("config = %+v", env1.Config)
	}

	// Client to desk.
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"address":"`+sendLevel+`","args":[0.5]}`)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "send level to reach the desk", func() bool {
		return len(env.transport.find(testDesk, sendLevel)) == 1
	})

	// Desk to client.
	if err := env.engine.HandleDatagram(env.ctx, mixer.NewMessage(sendLevel, 0.75), testDesk); err != nil {
		t.Fatal(err)
	}
	var msg mixer.Message
	if err := json.Unmarshal(readFrame(t, ws), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Address != sendLevel || msg.Args[0] != 0.75 {
		t.Errorf("relayed %+v", msg)
	}
}

func TestWebSocket_MalformedFrameKeepsConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	env.makeReady(t, 1, 1)
	ws := dialWS(t, env)
	readFrame(t, ws)

	for _, frame := range []string{"not json", `{"args":[1]}`} {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatal(err)
		}
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"address":"`+sendLevel+`","args":[0.25]}`)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "valid frame after malformed ones", func() bool {
		return len(env.transport.find(testDesk, sendLevel)) == 1
	})
	if got := env.engine.Stats().Malformed; got != 2 {
		t.Errorf("Malformed = %d, want 2", got)
	}
}

func TestWebSocket_NoEchoToSender(t *testing.T) {
	env := newTestEnv(t, nil)
	env.makeReady(t, 1, 1)
	a := dialWS(t, env)
	readFrame(t, a)
	b := dialWS(t, env)
	readFrame(t, b)

	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"address":"`+sendLevel+`","args":[0.3]}`)); err != nil {
		t.Fatal(err)
	}
	var msg mixer.Message
	if err := json.Unmarshal(readFrame(t, b), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Address != sendLevel {
		t.Errorf("other client got %+v", msg)
	}

	//nolint:errcheck // Test deadline
	a.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := a.ReadMessage(); err == nil {
		t.Errorf("sender received its own message back: %s", data)
	}
}

func TestWebSocket_AdminClosesClients(t *testing.T) {
	env := newTestEnv(t, nil)
	env.makeReady(t, 1, 1)
	ws := dialWS(t, env)
	readFrame(t, ws)

	w := doRequest(t, env.router(), http.MethodPost, "/admin", `{"debug": false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("admin status = %d", w.Code)
	}

	//nolint:errcheck // Test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("read error = %v, want normal close", err)
	}
}

func TestWSConn_MarkOpen(t *testing.T) {
	c := &wsConn{send: make(chan []byte, 1), done: make(chan struct{})}
	c.state.Store(int32(mixer.ConnConnecting))
	if !c.markOpen() || c.State() != mixer.ConnOpen {
		t.Fatalf("markOpen() on a connecting client left state %v", c.State())
	}

	closed := &wsConn{send: make(chan []byte, 1), done: make(chan struct{})}
	closed.state.Store(int32(mixer.ConnConnecting))
	closed.Close() //nolint:errcheck // Close never fails
	if closed.markOpen() {
		t.Error("markOpen() succeeded on a closed client")
	}
	if closed.State() != mixer.ConnClosed {
		t.Errorf("State() = %v, want closed", closed.State())
	}
}

func TestWSConn_SendAfterClose(t *testing.T) {
	c := &wsConn{send: make(chan []byte, 1), done: make(chan struct{})}
	c.state.Store(int32(mixer.ConnOpen))

	if err := c.Send([]byte("a")); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if c.State() != mixer.ConnClosed {
		t.Errorf("State() = %v, want closed", c.State())
	}
	if err := c.Send([]byte("b")); err != errConnClosed {
		t.Errorf("Send() after close = %v, want errConnClosed", err)
	}
}
