package netio_test

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/openradius/goradius/internal/netio"
)

func TestListenerClose(t *testing.T) {
	t.Parallel()

	ln, err := netio.NewListener(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}

	if err := ln.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close must be idempotent.
	if err := ln.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	buf := make([]byte, 16)
	if _, _, err := ln.ReadFrom(buf); err == nil {
		t.Fatal("ReadFrom on a closed listener should error")
	}
}

func TestListenerSharesPortWithReuseport(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := netio.NewListener(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewListener (first): %v", err)
	}
	defer first.Close()

	// SO_REUSEPORT allows a second listener to bind the exact same address.
	second, err := netio.NewListener(ctx, first.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewListener (second, same addr): %v", err)
	}
	defer second.Close()
}

func TestListenerDeliversDatagram(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := netio.NewListener(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer ln.Close()

	sender, err := net.ListenUDP("udp", nil)
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer sender.Close()

	lnAddr := net.UDPAddrFromAddrPort(ln.LocalAddr())
	if _, err := sender.WriteToUDP([]byte("ping"), lnAddr); err != nil {
		t.Fatalf("WriteToUDP: %v", err)
	}

	buf := make([]byte, 16)
	n, from, err := readWithDeadline(t, ln, buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Errorf("payload = %q, want %q", buf[:n], "ping")
	}
	if from.Port() == 0 {
		t.Error("sender port should be nonzero")
	}

	if err := ln.WriteTo([]byte("pong"), from); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	reply := make([]byte, 16)
	if err := sender.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	n, _, err = sender.ReadFromUDP(reply)
	if err != nil {
		t.Fatalf("sender ReadFromUDP: %v", err)
	}
	if string(reply[:n]) != "pong" {
		t.Errorf("reply payload = %q, want %q", reply[:n], "pong")
	}
}

func TestListenerRecvReturnsPooledBuffer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := netio.NewListener(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer ln.Close()

	sender, err := net.ListenUDP("udp", nil)
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer sender.Close()

	lnAddr := net.UDPAddrFromAddrPort(ln.LocalAddr())
	if _, err := sender.WriteToUDP([]byte("pooled"), lnAddr); err != nil {
		t.Fatalf("WriteToUDP: %v", err)
	}

	type result struct {
		buf  []byte
		from netip.AddrPort
		err  error
	}
	done := make(chan result, 1)
	go func() {
		buf, from, err := ln.Recv(ctx)
		done <- result{buf, from, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Recv: %v", r.err)
		}
		if string(r.buf) != "pooled" {
			t.Errorf("payload = %q, want %q", r.buf, "pooled")
		}
		if r.from.Port() == 0 {
			t.Error("sender port should be nonzero")
		}
		netio.ReleasePacketBuffer(r.buf)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestListenerRecvRespectsCanceledContext(t *testing.T) {
	t.Parallel()

	ln, err := netio.NewListener(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := ln.Recv(ctx); err == nil {
		t.Fatal("Recv with a canceled context should error")
	}
}

// readWithDeadline wraps ln.ReadFrom with a short deadline substitute: since
// Listener exposes no deadline knob, the caller relies on the OS delivering
// a loopback datagram promptly; a background timer fails the test if it
// never arrives.
func readWithDeadline(t *testing.T, ln *netio.Listener, buf []byte) (int, interface {
	Port() uint16
}, error) {
	t.Helper()

	type result struct {
		n    int
		addr interface{ Port() uint16 }
		err  error
	}

	done := make(chan result, 1)
	go func() {
		n, addr, err := ln.ReadFrom(buf)
		done <- result{n, addr, err}
	}()

	select {
	case r := <-done:
		return r.n, r.addr, r.err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
		return 0, nil, nil
	}
}
