package radius

import (
	"context"
	"fmt"
)

// ProxyPolicy selects the upstream RADIUS server a request should be
// forwarded to. Returning ok=false means no route exists for this
// request, and the request is dropped (ErrNoUpstream).
type ProxyPolicy func(req Packet, client Endpoint) (upstream Endpoint, ok bool)

// ProxyHandler forwards requests to an upstream RADIUS server and
// relays the upstream's answer back as this server's response. It
// must be backed by a Client configured with a ProxyStateCorrelator:
// Strategy A's 256-identifier space is shared across every downstream
// client funneled through one upstream connection and collides far
// too readily for proxy use.
type ProxyHandler struct {
	client *Client
	policy ProxyPolicy
}

// NewProxyHandler constructs a ProxyHandler. client should have been
// built with NewClient(transport, dict, NewProxyStateCorrelator(), ...).
func NewProxyHandler(client *Client, policy ProxyPolicy) *ProxyHandler {
	return &ProxyHandler{client: client, policy: policy}
}

// Handle implements Handler by forwarding req.Request upstream unchanged
// (the correlator is solely responsible for any Proxy-State attribute it
// adds and strips) and relaying the verified upstream response, stamped
// with the Dictionary of the original downstream request.
func (p *ProxyHandler) Handle(ctx context.Context, req RequestCtx) (Packet, bool, error) {
	upstream, ok := p.policy(req.Request, req.Endpoint)
	if !ok {
		return Packet{}, false, fmt.Errorf("%w: no route for request from %s", ErrNoUpstream, req.Endpoint.Addr)
	}

	resp, err := p.client.SendAndWait(ctx, req.Request, upstream)
	if err != nil {
		// Upstream timeout or a malformed/unauthenticated upstream reply
		// both surface here: the original request is dropped without a
		// reply to the downstream client.
		return Packet{}, false, err
	}

	out := resp.Clone()
	out.Dict = req.Request.Dict
	return out, true, nil
}
