package radius

import (
	"context"
	"fmt"
	"net/netip"
	"time"
)

// PendingRequest is the client's bookkeeping record for one outstanding
// request. It is informational: the authoritative completion state
// lives in the Correlator implementation, which owns the keyed table
// SendAndWait registers against.
type PendingRequest struct {
	Request        Packet
	Endpoint       Endpoint
	Deadline       time.Time
	AttemptCount   int
	CorrelationKey any
}

// Transport is the minimal send capability SendAndWait needs. A real
// dialed socket, and a loopback implementation for tests, both satisfy
// this; the client package never opens a socket itself — the caller
// supplies and owns the Transport.
type Transport interface {
	WriteTo(b []byte, addr netip.AddrPort) error
}

// ClientMetrics receives client-side counters. Implementations typically
// wrap a metrics.Collector; nil is safe (all methods become no-ops via
// noopMetrics).
type ClientMetrics interface {
	IncSent(code Code)
	IncRetry()
	IncTimeout()
	ObserveRTT(time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) IncSent(Code)             {}
func (noopMetrics) IncRetry()                {}
func (noopMetrics) IncTimeout()              {}
func (noopMetrics) ObserveRTT(time.Duration) {}

// ClientOption configures a Client, following the functional-options
// idiom used throughout this module's ambient stack.
type ClientOption func(*Client)

// WithMaxAttempts overrides the default retry attempt count.
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithTimeout overrides the default per-attempt timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClientMetrics attaches a metrics sink.
func WithClientMetrics(m ClientMetrics) ClientOption {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

const (
	defaultMaxAttempts = 3
	defaultTimeout     = 2 * time.Second
)

// Client sends requests and correlates their responses via a
// Correlator. SendAndWait is the single suspension point: it yields
// the calling goroutine until a response arrives, a retry budget is
// exhausted, or ctx is canceled.
type Client struct {
	correlator  Correlator
	transport   Transport
	dict        *Dictionary
	maxAttempts int
	timeout     time.Duration
	metrics     ClientMetrics
}

// NewClient constructs a Client. correlator selects Strategy A or B;
// transport is the caller-owned socket abstraction.
func NewClient(transport Transport, dict *Dictionary, correlator Correlator, opts ...ClientOption) *Client {
	c := &Client{
		correlator:  correlator,
		transport:   transport,
		dict:        dict,
		maxAttempts: defaultMaxAttempts,
		timeout:     defaultTimeout,
		metrics:     noopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendAndWait sends req to ep and blocks until a verified response
// arrives, the retry budget is exhausted, or ctx is done. Every exit
// path evicts the correlator entry.
func (c *Client) SendAndWait(ctx context.Context, req Packet, ep Endpoint) (Packet, error) {
	slot := make(chan Result, 1)
	wire, key, err := c.correlator.Send(req, ep, slot)
	if err != nil {
		return Packet{}, err
	}

	sentAt := timeNow()
	if err := c.transport.WriteTo(wire, ep.Addr); err != nil {
		c.correlator.Cancel(key)
		return Packet{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	c.metrics.IncSent(req.Code)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	attempts := 1
	for {
		select {
		case res := <-slot:
			c.metrics.ObserveRTT(timeNow().Sub(sentAt))
			if res.Err != nil {
				return Packet{}, res.Err
			}
			return res.Response, nil

		case <-timer.C:
			if attempts >= c.maxAttempts {
				c.correlator.Cancel(key)
				c.metrics.IncTimeout()
				return Packet{}, fmt.Errorf("%w: no response after %d attempts", ErrTimeout, attempts)
			}
			attempts++
			retryWire, err := c.correlator.Resend(key)
			if err != nil {
				return Packet{}, err
			}
			if err := c.transport.WriteTo(retryWire, ep.Addr); err != nil {
				c.correlator.Cancel(key)
				return Packet{}, fmt.Errorf("%w: %v", ErrIO, err)
			}
			c.metrics.IncSent(req.Code)
			c.metrics.IncRetry()
			timer.Reset(c.timeout)

		case <-ctx.Done():
			c.correlator.Cancel(key)
			return Packet{}, ctx.Err()
		}
	}
}

// HandleDatagram feeds an inbound datagram from the transport's receive
// loop into the client's correlator. It returns whether the datagram
// matched an outstanding request; an unmatched datagram should be
// logged at info level and dropped by the caller.
func (c *Client) HandleDatagram(buf []byte, senderAddr netip.AddrPort) bool {
	return c.correlator.Deliver(buf, senderAddr, c.dict)
}

// timeNow is a seam so tests can stub elapsed-time measurement; in
// production it is simply time.Now.
var timeNow = time.Now
