package radius_test

import (
	"context"
	"net/netip"
	"testing"

	"github.com/openradius/goradius/internal/radius"
)

type loopbackTransport struct {
	onWrite func(b []byte, addr netip.AddrPort)
}

func (l *loopbackTransport) WriteTo(b []byte, addr netip.AddrPort) error {
	l.onWrite(b, addr)
	return nil
}

// TestProxyHandlerForwardsAndRelays wires a downstream server, a
// ProxyHandler/Client pair, and an upstream server together over
// synchronous loopback transports, exercising the full proxy chain:
// the downstream Access-Request is forwarded upstream with an
// injected Proxy-State, the upstream Access-Accept is correlated back,
// and the Proxy-State is stripped before the downstream reply is sent.
func TestProxyHandlerForwardsAndRelays(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()
	downstreamSecret := []byte("downstream-secret")
	upstreamSecret := []byte("upstream-secret")
	upstreamAddr := netip.MustParseAddrPort("198.51.100.1:1812")
	clientLocalAddr := netip.MustParseAddrPort("198.51.100.2:1812")

	upstreamTransport := &loopbackTransport{}
	upstreamServer := radius.NewServer(dict, fixedSecrets{upstreamSecret}, upstreamTransport)
	upstreamServer.Handle(radius.CodeAccessRequest, radius.HandlerFunc(
		func(_ context.Context, req radius.RequestCtx) (radius.Packet, bool, error) {
			proxyStates := radius.FindAll(req.Request.Attributes, 33)
			return radius.New(radius.CodeAccessAccept, req.Request.Identifier, dict).WithAttributes(proxyStates...), true, nil
		}))

	clientTransport := &loopbackTransport{
		onWrite: func(b []byte, _ netip.AddrPort) {
			_ = upstreamServer.ServeDatagram(context.Background(), b, clientLocalAddr)
		},
	}
	client := radius.NewClient(clientTransport, dict, radius.NewProxyStateCorrelator())
	upstreamTransport.onWrite = func(b []byte, _ netip.AddrPort) {
		client.HandleDatagram(b, upstreamAddr)
	}

	policy := func(radius.Packet, radius.Endpoint) (radius.Endpoint, bool) {
		return radius.Endpoint{Addr: upstreamAddr, Secret: upstreamSecret}, true
	}
	proxyHandler := radius.NewProxyHandler(client, policy)

	downstreamTransport := &fakeTransport{}
	downstreamServer := radius.NewServer(dict, fixedSecrets{downstreamSecret}, downstreamTransport)
	downstreamServer.Handle(radius.CodeAccessRequest, proxyHandler)

	downstreamReq := radius.New(radius.CodeAccessRequest, 11, dict).WithAttributes(radius.NewOctets(1, []byte("carol")))
	_, wire, err := radius.EncodeRequest(downstreamReq, downstreamSecret)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	downstreamClientAddr := netip.MustParseAddrPort("203.0.113.5:33000")
	if err := downstreamServer.ServeDatagram(context.Background(), wire, downstreamClientAddr); err != nil {
		t.Fatalf("ServeDatagram: %v", err)
	}

	reply := downstreamTransport.last()
	if reply == nil {
		t.Fatal("downstream server did not relay a reply")
	}
	got, err := radius.ParsePacket(reply, dict)
	if err != nil {
		t.Fatalf("ParsePacket(reply): %v", err)
	}
	if got.Code != radius.CodeAccessAccept {
		t.Fatalf("Code: got %s, want Access-Accept", got.Code)
	}
	if got.Identifier != 11 {
		t.Errorf("Identifier: got %d, want 11 (must match the downstream request)", got.Identifier)
	}
	if _, ok := radius.Find(got.Attributes, 33); ok {
		t.Fatal("relayed downstream reply leaked the proxy's internal Proxy-State attribute")
	}
}

func TestProxyHandlerNoRouteDropped(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()
	secret := []byte("secret")

	client := radius.NewClient(&loopbackTransport{onWrite: func([]byte, netip.AddrPort) {}}, dict, radius.NewProxyStateCorrelator())
	policy := func(radius.Packet, radius.Endpoint) (radius.Endpoint, bool) { return radius.Endpoint{}, false }
	proxyHandler := radius.NewProxyHandler(client, policy)

	transport := &fakeTransport{}
	server := radius.NewServer(dict, fixedSecrets{secret}, transport)
	server.Handle(radius.CodeAccessRequest, proxyHandler)

	req := radius.New(radius.CodeAccessRequest, 1, dict)
	_, wire, err := radius.EncodeRequest(req, secret)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if err := server.ServeDatagram(context.Background(), wire, netip.MustParseAddrPort("203.0.113.5:33000")); err != nil {
		t.Fatalf("ServeDatagram: %v", err)
	}
	if transport.count() != 0 {
		t.Fatal("server replied even though the proxy policy found no upstream route")
	}
}
