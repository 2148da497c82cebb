package osc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync/atomic"
	"syscall"

	"github.com/nerrad567/webmixer/internal/mixer"
)

// defaultBufferSize fits the largest UDP payload.
const defaultBufferSize = 65535

// Logger is the structured logger used by the transport.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Handler receives decoded messages with the sender's IP.
// *mixer.Engine satisfies it.
type Handler interface {
	HandleDatagram(ctx context.Context, msg mixer.Message, host string) error
}

// Transport is one UDP socket used both to receive from and send to the desk
// and the external endpoints, so replies come back to the listening port.
//
// Thread Safety:
//   - Send is safe for concurrent use.
//   - Serve must be called once.
type Transport struct {
	conn       *net.UDPConn
	bufferSize int
	logger     Logger
	closed     atomic.Bool

	received atomic.Uint64
	dropped  atomic.Uint64
}

// Listen binds the UDP socket. Port 0 picks a free port.
func Listen(host string, port, bufferSize int, logger Logger) (*Transport, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolving listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Transport{conn: conn, bufferSize: bufferSize, logger: logger}, nil
}

// Addr returns the bound local address.
func (t *Transport) Addr() *net.UDPAddr {
	addr, _ := t.conn.LocalAddr().(*net.UDPAddr) //nolint:errcheck // LocalAddr of a UDPConn is always *UDPAddr
	return addr
}

// Send implements mixer.Transport. host must be an IP address; names are
// never looked up here. Host-down and no-route errors wrap
// mixer.ErrPeerUnreachable.
func (t *Transport) Send(msg mixer.Message, host string, port int) error {
	if t.closed.Load() {
		return ErrClosed
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrNotIP, host)
	}
	addr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(ip.Unmap(), uint16(port)))
	if _, err := t.conn.WriteToUDP(data, addr); err != nil {
		if unreachable(err) {
			return fmt.Errorf("%w: %s: %v", mixer.ErrPeerUnreachable, addr, err)
		}
		return fmt.Errorf("writing to %s: %w", addr, err)
	}
	return nil
}

func unreachable(err error) bool {
	return errors.Is(err, syscall.EHOSTDOWN) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}

// Serve reads datagrams until ctx is cancelled or the socket is closed,
// handing every decoded message to h. Undecodable datagrams are logged and
// skipped.
func (t *Transport) Serve(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() {
		_ = t.Close() //nolint:errcheck // Unblocks the read below; error is irrelevant at shutdown
	})
	defer stop()

	buf := make([]byte, t.bufferSize)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if unreachable(err) {
				t.logger.Warn("udp peer not responding", "error", err)
				continue
			}
			return fmt.Errorf("reading udp: %w", err)
		}

		msgs, err := Decode(buf[:n])
		if err != nil {
			t.dropped.Add(1)
			t.logger.Warn("dropping undecodable datagram", "from", from.String(), "bytes", n, "error", err)
			continue
		}
		host := from.AddrPort().Addr().Unmap().String()
		for _, msg := range msgs {
			t.received.Add(1)
			if err := h.HandleDatagram(ctx, msg, host); err != nil {
				if errors.Is(err, mixer.ErrStopped) || ctx.Err() != nil {
					return nil
				}
				t.logger.Error("handing datagram to engine", "address", msg.Address, "error", err)
			}
		}
	}
}

// Received is the number of messages decoded so far.
func (t *Transport) Received() uint64 {
	return t.received.Load()
}

// Dropped is the number of datagrams that failed to decode.
func (t *Transport) Dropped() uint64 {
	return t.dropped.Load()
}

// Close releases the socket. It is safe to call more than once.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}
