package radius

import (
	"context"
	"fmt"
	"net/netip"
	"time"
)

// DefaultHandlerBudget is the hard per-packet budget: a handler that
// has not produced a result within this window is treated as timed
// out and its request is dropped.
const DefaultHandlerBudget = 10 * time.Second

// SecretProvider resolves the shared secret for a remote socket
// address. A miss means the datagram is dropped before it is even
// parsed against a dictionary.
type SecretProvider interface {
	Secret(addr netip.AddrPort) ([]byte, bool)
}

// SecretProviderFunc adapts a function to a SecretProvider.
type SecretProviderFunc func(addr netip.AddrPort) ([]byte, bool)

func (f SecretProviderFunc) Secret(addr netip.AddrPort) ([]byte, bool) { return f(addr) }

// RequestCtx is what the pipeline hands to a Handler: the decoded
// request and the endpoint (address + secret) it arrived from.
type RequestCtx struct {
	Request  Packet
	Endpoint Endpoint
}

// Handler answers one decoded request: an auth handler, accounting
// handler, or proxy handler are all Handlers. Returning ok=false means
// no response is sent — the request is silently dropped, as is
// required for unsupported-auth and policy-declined cases.
type Handler interface {
	Handle(ctx context.Context, req RequestCtx) (resp Packet, ok bool, err error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, req RequestCtx) (Packet, bool, error)

func (f HandlerFunc) Handle(ctx context.Context, req RequestCtx) (Packet, bool, error) {
	return f(ctx, req)
}

// ServerTransport is the minimal send capability the pipeline needs to
// reply; ServeDatagram never opens or owns a socket itself.
type ServerTransport interface {
	WriteTo(b []byte, addr netip.AddrPort) error
}

// ServerMetrics receives pipeline-stage counters.
type ServerMetrics interface {
	IncReceived(code Code)
	IncDropped(reason string)
	IncDedupHit()
	ObserveHandlerLatency(time.Duration)
	IncSent(code Code)
	IncInFlight()
	DecInFlight()
}

type noopServerMetrics struct{}

func (noopServerMetrics) IncReceived(Code)                    {}
func (noopServerMetrics) IncDropped(string)                   {}
func (noopServerMetrics) IncDedupHit()                        {}
func (noopServerMetrics) ObserveHandlerLatency(time.Duration) {}
func (noopServerMetrics) IncSent(Code)                        {}
func (noopServerMetrics) IncInFlight()                        {}
func (noopServerMetrics) DecInFlight()                        {}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHandlerBudget overrides DefaultHandlerBudget.
func WithHandlerBudget(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.budget = d
		}
	}
}

// WithServerMetrics attaches a metrics sink.
func WithServerMetrics(m ServerMetrics) ServerOption {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithDedup attaches a deduplicator; without one, the pipeline always
// invokes the handler (useful for tests that want no caching).
func WithDedup(d *Deduplicator) ServerOption {
	return func(s *Server) { s.dedup = d }
}

// Server is the packet-in/packet-out pipeline: decode, deduplicate,
// dispatch to a per-code Handler, encode the response.
type Server struct {
	dict      *Dictionary
	secrets   SecretProvider
	transport ServerTransport
	handlers  map[Code]Handler
	dedup     *Deduplicator
	budget    time.Duration
	metrics   ServerMetrics
}

// NewServer constructs a Server. Register handlers with Handle before
// serving traffic.
func NewServer(dict *Dictionary, secrets SecretProvider, transport ServerTransport, opts ...ServerOption) *Server {
	s := &Server{
		dict:      dict,
		secrets:   secrets,
		transport: transport,
		handlers:  make(map[Code]Handler),
		budget:    DefaultHandlerBudget,
		metrics:   noopServerMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle registers h to answer requests of the given code.
func (s *Server) Handle(code Code, h Handler) {
	s.handlers[code] = h
}

// ServeDatagram runs one datagram through the full pipeline. It never
// returns an error to the caller for an untrusted or malformed
// datagram — those are logged-and-dropped outcomes the caller observes
// only via ServerMetrics; a non-nil error return is reserved for
// transport-level write failures on the reply path.
func (s *Server) ServeDatagram(ctx context.Context, buf []byte, senderAddr netip.AddrPort) error {
	if len(buf) < MinPacketSize {
		s.metrics.IncDropped("malformed")
		return nil
	}
	code := Code(buf[0])
	s.metrics.IncReceived(code)

	secret, ok := s.secrets.Secret(senderAddr)
	if !ok {
		s.metrics.IncDropped("unknown_secret")
		return nil
	}

	req, err := DecodeRequest(buf, s.dict, secret)
	if err != nil {
		s.metrics.IncDropped("decode_error")
		return nil
	}

	if s.dedup != nil {
		if cached, hit := s.dedup.Lookup(senderAddr, req.Identifier, req.Authenticator); hit {
			s.metrics.IncDedupHit()
			return s.reply(cached, senderAddr)
		}
	}

	handler, ok := s.handlers[req.Code]
	if !ok {
		s.metrics.IncDropped("no_handler")
		return nil
	}

	start := timeNow()
	resp, ok, err := s.invokeHandler(ctx, handler, RequestCtx{Request: req, Endpoint: Endpoint{Addr: senderAddr, Secret: secret}})
	s.metrics.ObserveHandlerLatency(timeNow().Sub(start))
	if err != nil {
		s.metrics.IncDropped("handler_error")
		return nil
	}
	if !ok {
		s.metrics.IncDropped("handler_no_response")
		return nil
	}

	_, wire, err := EncodeResponse(resp, secret, req.Authenticator)
	if err != nil {
		s.metrics.IncDropped("encode_error")
		return nil
	}

	if s.dedup != nil {
		s.dedup.Store(senderAddr, req.Identifier, req.Authenticator, wire)
	}
	return s.reply(wire, senderAddr)
}

// reply is the single choke point for every reply this pipeline writes,
// whether freshly encoded or served from the dedup cache; wire[0] is
// always a valid RADIUS Code byte here since both callers only reach
// this point with an encoded packet.
func (s *Server) reply(wire []byte, addr netip.AddrPort) error {
	if err := s.transport.WriteTo(wire, addr); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	s.metrics.IncSent(Code(wire[0]))
	return nil
}

// invokeHandler runs h in its own goroutine and enforces the per-packet
// budget, so a wedged handler cannot stall the receive loop.
func (s *Server) invokeHandler(ctx context.Context, h Handler, req RequestCtx) (Packet, bool, error) {
	type result struct {
		resp Packet
		ok   bool
		err  error
	}
	hctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	s.metrics.IncInFlight()
	ch := make(chan result, 1)
	go func() {
		defer s.metrics.DecInFlight()
		resp, ok, err := h.Handle(hctx, req)
		ch <- result{resp, ok, err}
	}()

	select {
	case r := <-ch:
		return r.resp, r.ok, r.err
	case <-hctx.Done():
		return Packet{}, false, fmt.Errorf("%w: handler exceeded %s budget", ErrTimeout, s.budget)
	}
}
