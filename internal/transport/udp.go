package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	// MaxDatagramSize is the largest UDP payload over IPv4.
	MaxDatagramSize = 65507
	// DefaultCallTimeout bounds a request/reply call when the caller gives none.
	DefaultCallTimeout = 2 * time.Second
)

// ErrTimeout is returned when a call gets no reply in time.
var ErrTimeout = errors.New("call timed out")

// Request is one inbound datagram.
type Request struct {
	Payload []byte
	From    net.Addr
}

// Conn is a bound UDP socket serving requests.
type Conn struct {
	pc  net.PacketConn
	buf []byte
}

// Listen binds a UDP socket on addr (host:port; port 0 picks a free port).
func Listen(addr string) (*Conn, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &Conn{pc: pc, buf: make([]byte, MaxDatagramSize)}, nil
}

// LocalAddr returns the bound address.
func (c *Conn) LocalAddr() *net.UDPAddr {
	return c.pc.LocalAddr().(*net.UDPAddr)
}

// Receive blocks for the next datagram. It returns net.ErrClosed once the
// socket has been closed.
func (c *Conn) Receive() (Request, error) {
	n, from, err := c.pc.ReadFrom(c.buf)
	if err != nil {
		return Request{}, err
	}
	payload := make([]byte, n)
	copy(payload, c.buf[:n])
	return Request{Payload: payload, From: from}, nil
}

// Reply sends payload back to the sender of a request.
func (c *Conn) Reply(to net.Addr, payload []byte) error {
	if len(payload) > MaxDatagramSize {
		return fmt.Errorf("reply of %d bytes exceeds datagram limit", len(payload))
	}
	if _, err := c.pc.WriteTo(payload, to); err != nil {
		return fmt.Errorf("failed to reply to %s: %w", to, err)
	}
	return nil
}

// Close unblocks Receive and releases the socket.
func (c *Conn) Close() error {
	return c.pc.Close()
}

// Session is an outbound socket connected to a single peer.
type Session struct {
	conn    *net.UDPConn
	timeout time.Duration
}

// Dial opens a session to addr. Calls wait at most timeout for a reply
// (DefaultCallTimeout if timeout <= 0).
func Dial(addr string, timeout time.Duration) (*Session, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Session{conn: conn, timeout: timeout}, nil
}

// Send writes one datagram without waiting for a reply.
func (s *Session) Send(payload []byte) error {
	if _, err := s.conn.Write(payload); err != nil {
		return fmt.Errorf("failed to send to %s: %w", s.conn.RemoteAddr(), err)
	}
	return nil
}

// Call sends payload and waits for exactly one reply. The wait ends at the
// session timeout or when ctx is done, whichever comes first.
func (s *Session) Call(ctx context.Context, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.Send(payload); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, MaxDatagramSize)
	n, err := s.conn.Read(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: no reply from %s", ErrTimeout, s.conn.RemoteAddr())
		}
		return nil, fmt.Errorf("failed to read reply from %s: %w", s.conn.RemoteAddr(), err)
	}
	return buf[:n], nil
}

// RemoteAddr returns the peer address of the session.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Close releases the session socket.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Call opens a one-shot session to addr, sends payload and waits for the reply.
func Call(ctx context.Context, addr string, payload []byte, timeout time.Duration) ([]byte, error) {
	s, err := Dial(addr, timeout)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Call(ctx, payload)
}

// Send opens a one-shot session to addr and writes payload.
func Send(addr string, payload []byte) error {
	s, err := Dial(addr, 0)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Send(payload)
}
