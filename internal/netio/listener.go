// Package netio provides the UDP transport goradius listens on and sends
// from: a net.UDPConn wrapper configured for multi-process port sharing,
// plus a receive loop that feeds datagrams into a radius.Server.
package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/openradius/goradius/internal/radius"
)

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrSocketClosed indicates an operation on a closed socket.
	ErrSocketClosed = errors.New("socket closed")

	// ErrUnexpectedConnType indicates net.ListenPacket returned an
	// unexpected connection type instead of *net.UDPConn.
	ErrUnexpectedConnType = errors.New("unexpected connection type from ListenPacket")
)

// -------------------------------------------------------------------------
// Listener — UDP socket wrapper with SO_REUSEPORT
// -------------------------------------------------------------------------

// Listener wraps a *net.UDPConn bound with SO_REUSEPORT, letting several
// daemon processes (or goroutines within one) share the same listen
// address for horizontal scaling of a single RADIUS port.
type Listener struct {
	conn   *net.UDPConn
	local  netip.AddrPort
	mu     sync.Mutex
	closed bool
}

// NewListener binds a UDP socket at addr with SO_REUSEPORT set.
func NewListener(ctx context.Context, addr string) (*Listener, error) {
	conn, err := listenUDP(ctx, addr)
	if err != nil {
		return nil, err
	}

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		closeErr := conn.Close()
		return nil, errors.Join(fmt.Errorf("listen %s: %w", addr, ErrUnexpectedConnType), closeErr)
	}

	return &Listener{
		conn:  conn,
		local: local.AddrPort(),
	}, nil
}

// ReadFrom reads a single datagram into buf, returning the number of
// bytes read and the sender's address.
func (l *Listener) ReadFrom(buf []byte) (int, netip.AddrPort, error) {
	n, addr, err := l.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		return 0, netip.AddrPort{}, fmt.Errorf("read udp: %w", err)
	}
	return n, addr, nil
}

// Recv reads one datagram into a pooled MaxPacketSize buffer obtained
// from radius.AcquireBuffer, returning the received slice and the
// sender's address. The caller must return the buffer to the pool via
// ReleasePacketBuffer once done with it.
func (l *Listener) Recv(ctx context.Context) ([]byte, netip.AddrPort, error) {
	if err := ctx.Err(); err != nil {
		return nil, netip.AddrPort{}, err
	}

	bufp := radius.AcquireBuffer()
	n, addr, err := l.ReadFrom(*bufp)
	if err != nil {
		radius.ReleaseBuffer(bufp)
		return nil, netip.AddrPort{}, err
	}
	return (*bufp)[:n], addr, nil
}

// ReleasePacketBuffer returns a buffer obtained from Recv to the shared
// pool backing AcquireBuffer/ReleaseBuffer.
func ReleasePacketBuffer(buf []byte) {
	radius.ReleaseBuffer(&buf)
}

// WriteTo sends b to addr. It satisfies both radius.Transport (client
// retransmission) and radius.ServerTransport (server reply path).
func (l *Listener) WriteTo(b []byte, addr netip.AddrPort) error {
	udpAddr := net.UDPAddrFromAddrPort(addr)
	if _, err := l.conn.WriteToUDPAddrPort(b, addr); err != nil {
		return fmt.Errorf("write udp to %s: %w", udpAddr, err)
	}
	return nil
}

// LocalAddr returns the address and port the socket is bound to.
func (l *Listener) LocalAddr() netip.AddrPort {
	return l.local
}

// Close releases the underlying socket.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Socket creation helpers
// -------------------------------------------------------------------------

// listenUDP creates a UDP socket at addr with SO_REUSEPORT applied via the
// Control callback, so multiple listener instances can load-balance the
// same RADIUS port across kernel-selected sockets.
func listenUDP(ctx context.Context, addr string) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setSocketOpts(c)
		},
	}

	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, errors.Join(fmt.Errorf("listen udp %s: %w", addr, ErrUnexpectedConnType), closeErr)
	}

	return conn, nil
}

// setSocketOpts sets SO_REUSEPORT and SO_REUSEADDR on the raw connection.
func setSocketOpts(c syscall.RawConn) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		intFD := int(fd)
		if errR := unix.SetsockoptInt(intFD, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); errR != nil {
			sockErr = fmt.Errorf("set SO_REUSEADDR: %w", errR)
			return
		}
		if errR := unix.SetsockoptInt(intFD, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); errR != nil {
			sockErr = fmt.Errorf("set SO_REUSEPORT: %w", errR)
		}
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}

	return sockErr
}
