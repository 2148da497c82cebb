package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/webmixer/internal/infrastructure/config"
	"github.com/nerrad567/webmixer/internal/infrastructure/logging"
	"github.com/nerrad567/webmixer/internal/mixer"
)

// WebSocket defaults, used when the config leaves a value at zero.
const (
	defaultSendBuffer     = 256
	defaultMaxMessageSize = 64 * 1024
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

var (
	errConnClosed = errors.New("websocket connection closed")
	errSlowClient = errors.New("websocket send buffer full")
)

// wsConn is one browser session. It satisfies mixer.Connection: Send only
// queues the frame, and the write pump owns the socket's write side.
type wsConn struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	state  atomic.Int32
	once   sync.Once
	logger *logging.Logger

	pingInterval time.Duration
	pongWait     time.Duration
}

func newWSConn(conn *websocket.Conn, cfg config.WebSocketConfig, logger *logging.Logger) *wsConn {
	c := &wsConn{
		id:           uuid.NewString(),
		conn:         conn,
		send:         make(chan []byte, positiveOr(cfg.SendBuffer, defaultSendBuffer)),
		done:         make(chan struct{}),
		pingInterval: secondsOr(cfg.PingInterval, defaultPingInterval),
		pongWait:     secondsOr(cfg.PongTimeout, defaultPongTimeout),
	}
	c.logger = logger.With("conn", c.id)
	c.state.Store(int32(mixer.ConnConnecting))
	return c
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) State() mixer.ConnState {
	return mixer.ConnState(c.state.Load())
}

// Send queues one text frame. A client that cannot keep up is closed so it
// reloads instead of drifting out of sync.
func (c *wsConn) Send(data []byte) error {
	if c.State() == mixer.ConnClosed {
		return errConnClosed
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		c.logger.Warn("websocket client too slow, closing", "buffered", len(c.send))
		_ = c.Close() //nolint:errcheck // Close never fails
		return errSlowClient
	}
}

// Close marks the connection closed and tells the write pump to hang up.
func (c *wsConn) Close() error {
	c.once.Do(func() {
		c.state.Store(int32(mixer.ConnClosed))
		close(c.done)
	})
	return nil
}

// markOpen moves a connecting client to open. It fails when the client was
// closed in the meantime, for example by a session reset.
func (c *wsConn) markOpen() bool {
	return c.state.CompareAndSwap(int32(mixer.ConnConnecting), int32(mixer.ConnOpen))
}

// handleWebSocket upgrades the request and admits the client to the
// engine. Before the desk is ready the socket is closed straight away and
// the browser retries.
func (s *Server) handleWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	wsCfg := s.config().WebSocket
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newWSConn(conn, wsCfg, s.logger)
	c.conn.SetReadLimit(int64(positiveOr(wsCfg.MaxMessageSize, defaultMaxMessageSize)))

	s.conns.Add(1)
	go func() {
		defer s.conns.Done()
		c.writePump(ctx)
	}()

	if err := s.engine.Connect(ctx, c); err != nil {
		if errors.Is(err, mixer.ErrNotReady) {
			s.logger.Debug("websocket client refused, desk not ready", "conn", c.id, "remote", r.RemoteAddr)
		} else {
			s.logger.Warn("websocket client not admitted", "conn", c.id, "error", err)
		}
		_ = c.Close() //nolint:errcheck // Close never fails
		return
	}
	if !c.markOpen() {
		c.logger.Debug("websocket client closed while connecting", "remote", r.RemoteAddr)
		return
	}
	s.metrics.wsConnected()
	c.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	s.conns.Add(1)
	go func() {
		defer s.conns.Done()
		defer s.metrics.wsDisconnected()
		c.readPump(ctx, s.engine)
	}()
}

// readPump hands every inbound frame to the engine. Malformed frames are
// dropped for this connection only.
func (c *wsConn) readPump(ctx context.Context, engine *mixer.Engine) {
	defer func() {
		_ = c.Close() //nolint:errcheck // Close never fails
	}()

	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(c.pingInterval + c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pingInterval + c.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.State() != mixer.ConnClosed {
				c.logger.Warn("websocket read error", "error", err)
			} else {
				c.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client frame counts as a sign of life.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(c.pingInterval + c.pongWait))

		if err := engine.HandleClientPayload(ctx, c, data); err != nil {
			if errors.Is(err, mixer.ErrMalformedPayload) {
				c.logger.Warn("dropping malformed client message", "error", err, "bytes", len(data))
				continue
			}
			c.logger.Debug("engine not accepting client messages", "error", err)
			return
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
// It owns the socket and closes it on exit.
func (c *wsConn) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()      //nolint:errcheck // Close never fails
		_ = c.conn.Close() //nolint:errcheck // Unblocks the read pump
	}()

	for {
		select {
		case data := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			//nolint:errcheck // Best-effort close frame
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-ctx.Done():
			//nolint:errcheck // Best-effort close frame
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

// flush writes frames already queued before the close, so a client that is
// closed right after its config envelope still sees it.
func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func secondsOr(v int, def time.Duration) time.Duration {
	if v > 0 {
		return time.Duration(v) * time.Second
	}
	return def
}
