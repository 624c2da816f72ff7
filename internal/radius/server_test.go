package radius_test

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/openradius/goradius/internal/radius"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeTransport) WriteTo(b []byte, _ netip.AddrPort) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), b...))
	return nil
}

func (f *fakeTransport) last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixedSecrets struct{ secret []byte }

func (s fixedSecrets) Secret(netip.AddrPort) ([]byte, bool) { return s.secret, true }

func TestServeDatagramAcceptsPAPAndReplies(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()
	secret := []byte("sharedsecret")
	transport := &fakeTransport{}
	server := radius.NewServer(dict, fixedSecrets{secret}, transport)

	server.Handle(radius.CodeAccessRequest, radius.HandlerFunc(
		func(_ context.Context, req radius.RequestCtx) (radius.Packet, bool, error) {
			ok, err := radius.VerifyPassword(req.Request, "hunter2")
			if err != nil || !ok {
				return radius.New(radius.CodeAccessReject, req.Request.Identifier, dict), true, nil
			}
			return radius.New(radius.CodeAccessAccept, req.Request.Identifier, dict), true, nil
		}))

	req := accessRequestWithPAP(t, dict, "hunter2")
	_, wire, err := radius.EncodeRequest(req, secret)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	addr := netip.MustParseAddrPort("192.0.2.10:40000")
	if err := server.ServeDatagram(context.Background(), wire, addr); err != nil {
		t.Fatalf("ServeDatagram: %v", err)
	}

	reply := transport.last()
	if reply == nil {
		t.Fatal("server did not write a reply")
	}
	got, err := radius.ParsePacket(reply, dict)
	if err != nil {
		t.Fatalf("ParsePacket(reply): %v", err)
	}
	if got.Code != radius.CodeAccessAccept {
		t.Errorf("Code: got %s, want Access-Accept", got.Code)
	}
}

func TestServeDatagramUnknownSecretDropped(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()
	transport := &fakeTransport{}
	server := radius.NewServer(dict, radius.SecretProviderFunc(func(netip.AddrPort) ([]byte, bool) {
		return nil, false
	}), transport)
	server.Handle(radius.CodeAccessRequest, radius.HandlerFunc(
		func(context.Context, radius.RequestCtx) (radius.Packet, bool, error) {
			t.Fatal("handler should not be invoked when the secret lookup misses")
			return radius.Packet{}, false, nil
		}))

	req := accessRequestWithPAP(t, dict, "hunter2")
	_, wire, err := radius.EncodeRequest(req, []byte("whatever"))
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	if err := server.ServeDatagram(context.Background(), wire, netip.MustParseAddrPort("192.0.2.10:40000")); err != nil {
		t.Fatalf("ServeDatagram: %v", err)
	}
	if transport.count() != 0 {
		t.Fatal("server replied despite an unknown secret")
	}
}

func TestServeDatagramDedupReplaysCachedResponse(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()
	secret := []byte("sharedsecret")
	transport := &fakeTransport{}
	var invocations int
	server := radius.NewServer(dict, fixedSecrets{secret}, transport, radius.WithDedup(radius.NewDeduplicator(time.Minute)))
	server.Handle(radius.CodeAccessRequest, radius.HandlerFunc(
		func(_ context.Context, req radius.RequestCtx) (radius.Packet, bool, error) {
			invocations++
			return radius.New(radius.CodeAccessAccept, req.Request.Identifier, dict), true, nil
		}))

	req := accessRequestWithPAP(t, dict, "hunter2")
	_, wire, err := radius.EncodeRequest(req, secret)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	addr := netip.MustParseAddrPort("192.0.2.10:40000")

	if err := server.ServeDatagram(context.Background(), wire, addr); err != nil {
		t.Fatalf("ServeDatagram (first): %v", err)
	}
	if err := server.ServeDatagram(context.Background(), wire, addr); err != nil {
		t.Fatalf("ServeDatagram (retransmit): %v", err)
	}

	if invocations != 1 {
		t.Fatalf("handler invoked %d times, want 1 (second delivery should hit the dedup cache)", invocations)
	}
	if transport.count() != 2 {
		t.Fatalf("transport wrote %d replies, want 2 (original + replayed)", transport.count())
	}
	if string(transport.sent[0]) != string(transport.sent[1]) {
		t.Fatal("replayed response bytes differ from the original")
	}
}

func TestServeDatagramHandlerBudgetExceeded(t *testing.T) {
	t.Parallel()

	dict := radius.MustDefaultDictionary()
	secret := []byte("sharedsecret")
	transport := &fakeTransport{}
	server := radius.NewServer(dict, fixedSecrets{secret}, transport, radius.WithHandlerBudget(10*time.Millisecond))
	server.Handle(radius.CodeAccessRequest, radius.HandlerFunc(
		func(ctx context.Context, req radius.RequestCtx) (radius.Packet, bool, error) {
			<-ctx.Done()
			return radius.Packet{}, false, ctx.Err()
		}))

	req := accessRequestWithPAP(t, dict, "hunter2")
	_, wire, err := radius.EncodeRequest(req, secret)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	if err := server.ServeDatagram(context.Background(), wire, netip.MustParseAddrPort("192.0.2.10:40000")); err != nil {
		t.Fatalf("ServeDatagram: %v", err)
	}
	if transport.count() != 0 {
		t.Fatal("server replied despite the handler exceeding its budget")
	}
}
