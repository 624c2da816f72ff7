package radius

import (
	"net/netip"
	"sync"
	"time"
)

// DefaultDedupTTL is the default deduplication window, configurable
// via internal/config.
const DefaultDedupTTL = 30 * time.Second

type dedupKey struct {
	addr netip.AddrPort
	id   uint8
	auth [16]byte
}

type dedupEntry struct {
	response []byte
	expires  time.Time
}

// Deduplicator is a response cache keyed by (packet identifier, remote
// socket address, authenticator). A hit within the TTL window causes
// the pipeline to resend the stored response bytes verbatim without
// invoking the handler again; a changed authenticator at the same
// (id, addr) is a genuinely new request and misses, even though it
// collides on the rest of the key.
type Deduplicator struct {
	mu      sync.Mutex
	entries map[dedupKey]dedupEntry
	ttl     time.Duration
}

// NewDeduplicator constructs a Deduplicator with the given TTL. A
// non-positive ttl falls back to DefaultDedupTTL.
func NewDeduplicator(ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Deduplicator{entries: make(map[dedupKey]dedupEntry), ttl: ttl}
}

func dedupKeyFor(addr netip.AddrPort, id uint8, auth [16]byte) dedupKey {
	return dedupKey{addr: addr, id: id, auth: auth}
}

// Lookup returns the cached response bytes for (addr, id, auth), if any
// and not yet expired. An expired entry found during Lookup is purged
// lazily.
func (d *Deduplicator) Lookup(addr netip.AddrPort, id uint8, auth [16]byte) ([]byte, bool) {
	key := dedupKeyFor(addr, id, auth)

	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[key]
	if !ok {
		return nil, false
	}
	if timeNow().After(e.expires) {
		delete(d.entries, key)
		return nil, false
	}
	return e.response, true
}

// Store records a handler's response bytes for (addr, id, auth), to be
// replayed on a within-window retransmit.
func (d *Deduplicator) Store(addr netip.AddrPort, id uint8, auth [16]byte, response []byte) {
	key := dedupKeyFor(addr, id, auth)
	entry := dedupEntry{
		response: append([]byte(nil), response...),
		expires:  timeNow().Add(d.ttl),
	}

	d.mu.Lock()
	d.entries[key] = entry
	d.mu.Unlock()
}

// sweep evicts every entry that expired before now.
func (d *Deduplicator) sweep(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, e := range d.entries {
		if now.After(e.expires) {
			delete(d.entries, k)
		}
	}
}

// Run sweeps expired entries on a fixed interval until done is closed. It
// is intended to run as one goroutine in the server's errgroup.
func (d *Deduplicator) Run(done <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = d.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			d.sweep(now)
		}
	}
}

// Len reports the current entry count, for metrics/diagnostics.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
