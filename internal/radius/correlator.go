package radius

import (
	"fmt"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
)

// attrProxyState is the Proxy-State attribute type (33) Strategy B
// injects and correlates on.
const attrProxyState uint32 = 33

// Endpoint pairs a remote socket address with the shared secret used to
// authenticate packets exchanged with it.
type Endpoint struct {
	Addr   netip.AddrPort
	Secret []byte
}

// Result is what a Correlator delivers into a completion slot: either a
// verified response packet, or the error that prevented delivering one.
type Result struct {
	Response Packet
	Err      error
}

// Correlator defines how an outbound (request, endpoint) and a
// completion slot produce the wire datagram to send and register the
// association, and how an inbound datagram is matched back to the
// request that produced it. Strategy A (IdentifierCorrelator) and
// Strategy B (ProxyStateCorrelator) are the two interchangeable
// implementations.
type Correlator interface {
	// Send registers req against ep and returns the wire datagram to
	// transmit (which, for Strategy B, carries an injected Proxy-State)
	// along with an opaque key usable with Resend and Cancel.
	Send(req Packet, ep Endpoint, slot chan<- Result) (wire []byte, key any, err error)

	// Resend returns the unchanged wire bytes previously produced for
	// key, for a retry attempt (same authenticator, same Proxy-State
	// key).
	Resend(key any) (wire []byte, err error)

	// Deliver processes an inbound datagram from senderAddr. It reports
	// whether a matching outstanding request was found; when one is
	// found its slot receives exactly one Result and its entry is
	// removed.
	Deliver(buf []byte, senderAddr netip.AddrPort, dict *Dictionary) bool

	// Cancel evicts a pending entry without completing its slot, for
	// caller-initiated cancellation or after final timeout. Every
	// completed, failed, or cancelled outstanding request must remove
	// its correlator entry.
	Cancel(key any)
}

type pendingEntry struct {
	req  Packet
	wire []byte
	ep   Endpoint
	slot chan<- Result
}

// --------------------------------------------------------------------
// Strategy A — Identifier + Remote Address
// --------------------------------------------------------------------

type identKey struct {
	addr netip.AddrPort
	id   uint8
}

// IdentifierCorrelator implements Strategy A: the correlation key is
// (remote address, 1-octet packet identifier), drawn
// from a process-wide monotonic counter modulo 256. A collision causes
// the new Send to be rejected; the caller retries on timeout as usual.
type IdentifierCorrelator struct {
	mu    sync.Mutex
	table map[identKey]*pendingEntry
}

// identifierCounter is the process-wide source of Strategy A packet
// identifiers, shared by every IdentifierCorrelator.
var identifierCounter atomic.Uint32

// NewIdentifierCorrelator returns an empty Strategy A correlator.
func NewIdentifierCorrelator() *IdentifierCorrelator {
	return &IdentifierCorrelator{table: make(map[identKey]*pendingEntry)}
}

func (c *IdentifierCorrelator) Send(req Packet, ep Endpoint, slot chan<- Result) ([]byte, any, error) {
	id := uint8(identifierCounter.Add(1))
	key := identKey{ep.Addr, id}

	out := req.Clone()
	out.Identifier = id
	out.AuthenticatorSet = false // force a fresh random authenticator per send

	finalized, wire, err := EncodeRequest(out, ep.Secret)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.table[key]; exists {
		return nil, nil, fmt.Errorf("%w: (addr %s, id %d)", ErrIdentifierCollision, ep.Addr, id)
	}
	c.table[key] = &pendingEntry{req: finalized, wire: wire, ep: ep, slot: slot}
	return wire, key, nil
}

func (c *IdentifierCorrelator) Resend(key any) ([]byte, error) {
	k, ok := key.(identKey)
	if !ok {
		return nil, fmt.Errorf("%w: key not recognized by IdentifierCorrelator", ErrClosed)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.table[k]
	if !ok {
		return nil, ErrClosed
	}
	return e.wire, nil
}

func (c *IdentifierCorrelator) Deliver(buf []byte, senderAddr netip.AddrPort, dict *Dictionary) bool {
	if len(buf) < MinPacketSize {
		return false
	}
	key := identKey{senderAddr, buf[1]}

	c.mu.Lock()
	e, ok := c.table[key]
	if ok {
		delete(c.table, key)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}

	resp, err := DecodeResponse(buf, dict, e.ep.Secret, e.req.Authenticator)
	if err != nil {
		e.slot <- Result{Err: err}
		return true
	}
	e.slot <- Result{Response: resp}
	return true
}

func (c *IdentifierCorrelator) Cancel(key any) {
	k, ok := key.(identKey)
	if !ok {
		return
	}
	c.mu.Lock()
	delete(c.table, k)
	c.mu.Unlock()
}

// --------------------------------------------------------------------
// Strategy B — Proxy-State
// --------------------------------------------------------------------

// ProxyStateCorrelator implements Strategy B: before
// sending, a Proxy-State attribute holding a monotonic 32-bit sequence
// (decimal ASCII) is appended; on an inbound datagram, the last
// Proxy-State attribute is the correlation key, and is stripped from the
// delivered response. This strategy removes the 256-identifier
// bottleneck and is mandatory for proxy chains.
type ProxyStateCorrelator struct {
	mu      sync.Mutex
	table   map[uint32]*pendingEntry
	counter atomic.Uint32
}

// NewProxyStateCorrelator returns an empty Strategy B correlator.
func NewProxyStateCorrelator() *ProxyStateCorrelator {
	return &ProxyStateCorrelator{table: make(map[uint32]*pendingEntry)}
}

func (c *ProxyStateCorrelator) Send(req Packet, ep Endpoint, slot chan<- Result) ([]byte, any, error) {
	seq := c.counter.Add(1)
	psValue := []byte(strconv.FormatUint(uint64(seq), 10))
	out := req.WithAttributes(NewOctets(attrProxyState, psValue))

	finalized, wire, err := EncodeRequest(out, ep.Secret)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	c.table[seq] = &pendingEntry{req: finalized, wire: wire, ep: ep, slot: slot}
	c.mu.Unlock()
	return wire, seq, nil
}

func (c *ProxyStateCorrelator) Resend(key any) ([]byte, error) {
	seq, ok := key.(uint32)
	if !ok {
		return nil, fmt.Errorf("%w: key not recognized by ProxyStateCorrelator", ErrClosed)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.table[seq]
	if !ok {
		return nil, ErrClosed
	}
	return e.wire, nil
}

func (c *ProxyStateCorrelator) Deliver(buf []byte, senderAddr netip.AddrPort, dict *Dictionary) bool {
	p, err := ParsePacket(buf, dict)
	if err != nil {
		return false
	}
	psAttrs := FindAll(p.Attributes, attrProxyState)
	if len(psAttrs) == 0 {
		return false
	}
	last := psAttrs[len(psAttrs)-1]
	seq64, err := strconv.ParseUint(string(last.Value), 10, 32)
	if err != nil {
		return false
	}
	seq := uint32(seq64)

	c.mu.Lock()
	e, ok := c.table[seq]
	if ok {
		delete(c.table, seq)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	if e.ep.Addr != senderAddr {
		e.slot <- Result{Err: fmt.Errorf("%w: response from %s, expected %s", ErrCorrelationMiss, senderAddr, e.ep.Addr)}
		return true
	}

	resp, err := DecodeResponse(buf, dict, e.ep.Secret, e.req.Authenticator)
	if err != nil {
		e.slot <- Result{Err: err}
		return true
	}
	resp = stripLastTopLevel(resp, attrProxyState)
	e.slot <- Result{Response: resp}
	return true
}

func (c *ProxyStateCorrelator) Cancel(key any) {
	seq, ok := key.(uint32)
	if !ok {
		return
	}
	c.mu.Lock()
	delete(c.table, seq)
	c.mu.Unlock()
}

// stripLastTopLevel removes the last top-level attribute of the given
// type, used to strip the Proxy-State a correlator injected before
// delivering a response upward.
func stripLastTopLevel(p Packet, typ uint32) Packet {
	out := p.Clone()
	for i := len(out.Attributes) - 1; i >= 0; i-- {
		if out.Attributes[i].VendorID == TopLevelVendorID && out.Attributes[i].Type == typ {
			out.Attributes = append(out.Attributes[:i], out.Attributes[i+1:]...)
			break
		}
	}
	return out
}
