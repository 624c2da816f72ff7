//go:build integration

package integration_test

import (
	"context"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/openradius/goradius/internal/netio"
	"github.com/openradius/goradius/internal/radius"
)

// TestServerAcceptsAccessRequest starts a real UDP-backed radius.Server,
// sends an Access-Request over a radius.Client against it, and confirms
// an Access-Accept comes back carrying the identifier the client's
// IdentifierCorrelator assigned to the request.
func TestServerAcceptsAccessRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(cancel)

	dict := radius.MustDefaultDictionary()
	secret := []byte("testing123")

	serverLn, err := netio.NewListener(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = serverLn.Close() })

	secrets := radius.SecretProviderFunc(func(_ netip.AddrPort) ([]byte, bool) {
		return secret, true
	})

	server := radius.NewServer(dict, secrets, serverLn)
	server.Handle(radius.CodeAccessRequest, radius.HandlerFunc(
		func(_ context.Context, req radius.RequestCtx) (radius.Packet, bool, error) {
			proxyStates := radius.FindAll(req.Request.Attributes, 33)
			resp := radius.New(radius.CodeAccessAccept, req.Request.Identifier, dict).WithAttributes(proxyStates...)
			return resp, true, nil
		}))

	logger := slog.New(slog.DiscardHandler)
	receiver := netio.NewReceiver(server, logger)
	go func() { _ = receiver.Run(ctx, serverLn) }()

	clientLn, err := netio.NewListener(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen client: %v", err)
	}
	t.Cleanup(func() { _ = clientLn.Close() })

	client := radius.NewClient(clientLn, dict, radius.NewIdentifierCorrelator(), radius.WithTimeout(2*time.Second))
	go func() {
		buf := make([]byte, radius.MaxPacketSize)
		for {
			n, addr, err := clientLn.ReadFrom(buf)
			if err != nil {
				return
			}
			wire := make([]byte, n)
			copy(wire, buf[:n])
			client.HandleDatagram(wire, addr)
		}
	}()

	userNameAttr, err := dict.CreateAttribute("User-Name", "alice")
	if err != nil {
		t.Fatalf("CreateAttribute: %v", err)
	}
	req := radius.New(radius.CodeAccessRequest, 7, dict).WithAttributes(userNameAttr)

	resp, err := client.SendAndWait(ctx, req, radius.Endpoint{Addr: serverLn.LocalAddr(), Secret: secret})
	if err != nil {
		t.Fatalf("SendAndWait: %v", err)
	}
	if resp.Code != radius.CodeAccessAccept {
		t.Fatalf("response code = %s, want %s", resp.Code, radius.CodeAccessAccept)
	}
	// The correlator replaces the request's identifier with the next value
	// of its counter; this is the first send in the process.
	if resp.Identifier != 1 {
		t.Fatalf("response identifier = %d, want 1", resp.Identifier)
	}
}
