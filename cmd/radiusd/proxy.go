package main

import (
	"context"
	"log/slog"

	"github.com/openradius/goradius/internal/config"
	radiusmetrics "github.com/openradius/goradius/internal/metrics"
	"github.com/openradius/goradius/internal/netio"
	"github.com/openradius/goradius/internal/radius"
)

// buildProxyClient wires a radius.Client for forwarding Access-Requests
// to the configured upstreams. It returns (nil, nil, nil) when no
// upstreams are configured -- proxying is an optional feature of the
// daemon, not a mandatory component.
//
// The client is built with a ProxyStateCorrelator rather than the
// plain identifier correlator: a single outbound socket funnels every
// downstream client's requests through one upstream connection, and
// the 256-identifier space collides far too readily there.
func buildProxyClient(
	ctx context.Context,
	cfg *config.Config,
	dict *radius.Dictionary,
	collector *radiusmetrics.Collector,
	logger *slog.Logger,
) (*radius.Client, *netio.Listener, error) {
	if len(cfg.Proxy.Upstreams) == 0 {
		return nil, nil, nil
	}

	ln, err := netio.NewListener(ctx, ":0")
	if err != nil {
		return nil, nil, err
	}

	client := radius.NewClient(ln, dict, radius.NewProxyStateCorrelator())

	logger.Info("proxy client enabled",
		slog.String("local_addr", ln.LocalAddr().String()),
		slog.Int("upstreams", len(cfg.Proxy.Upstreams)),
	)
	_ = collector // reserved: client-side metrics wiring needs a ClientMetrics adapter

	return client, ln, nil
}

// runProxyReceiveLoop reads upstream replies off the proxy client's own
// socket and feeds them into the client's correlator, mirroring
// netio.Receiver's recvLoop but dispatching to Client.HandleDatagram
// instead of a Server.
func runProxyReceiveLoop(ctx context.Context, ln *netio.Listener, client *radius.Client, logger *slog.Logger) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		raw, addr, err := ln.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("proxy recv error", slog.String("error", err.Error()))
			continue
		}
		wire := make([]byte, len(raw))
		copy(wire, raw)
		netio.ReleasePacketBuffer(raw)
		client.HandleDatagram(wire, addr)
	}
}

// firstUpstreamPolicy is a reference ProxyPolicy that forwards every
// request to the first configured upstream, unconditionally. Realm- or
// attribute-based routing across multiple upstreams is left to a
// deployment's own ProxyPolicy implementation.
func firstUpstreamPolicy(upstreams []config.UpstreamConfig) radius.ProxyPolicy {
	return func(_ radius.Packet, _ radius.Endpoint) (radius.Endpoint, bool) {
		if len(upstreams) == 0 {
			return radius.Endpoint{}, false
		}
		addr, err := upstreams[0].AddrPort()
		if err != nil {
			return radius.Endpoint{}, false
		}
		return radius.Endpoint{Addr: addr, Secret: []byte(upstreams[0].Secret)}, true
	}
}
