package radiusmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openradius/goradius/internal/radius"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "goradius"
	subsystem = "server"
)

// Label names for RADIUS metrics.
const (
	labelCode     = "code"
	labelReason   = "reason"
	labelUpstream = "upstream"
)

// -------------------------------------------------------------------------
// Collector — Prometheus RADIUS Metrics
// -------------------------------------------------------------------------

// Collector holds all RADIUS Prometheus metrics and implements
// radius.ServerMetrics so it can be attached to a Server directly via
// radius.WithServerMetrics.
//
// Metrics are designed for production AAA monitoring:
//   - Packet counters track received/dropped volumes per code and reason.
//   - Dedup hits flag retransmission storms from impatient NAS clients.
//   - Handler latency exposes the tail the budget enforcement is guarding.
//   - Correlator and proxy metrics track outstanding upstream round trips.
type Collector struct {
	// PacketsSent counts packets written to the wire — server replies
	// and outbound proxy/client requests alike — labeled by RADIUS code.
	PacketsSent *prometheus.CounterVec

	// PacketsReceived counts packets accepted into the pipeline, labeled
	// by RADIUS code.
	PacketsReceived *prometheus.CounterVec

	// PacketsDropped counts packets discarded before a reply was sent,
	// labeled by the drop reason (e.g. "unknown_secret", "decode_error").
	PacketsDropped *prometheus.CounterVec

	// DedupHits counts requests answered from the response cache rather
	// than by re-running a registered Handler.
	DedupHits prometheus.Counter

	// HandlerLatency observes wall-clock time spent inside a Handler,
	// bounded above by the configured handler budget.
	HandlerLatency prometheus.Histogram

	// CorrelatorTimeouts counts outstanding proxied requests that were
	// never delivered a matching response before their caller gave up.
	CorrelatorTimeouts prometheus.Counter

	// ProxyUpstreamLatency observes round-trip time to an upstream
	// server, labeled by upstream name.
	ProxyUpstreamLatency *prometheus.HistogramVec

	// InFlightRequests tracks requests currently inside a Handler.
	InFlightRequests prometheus.Gauge
}

var _ radius.ServerMetrics = (*Collector)(nil)

// NewCollector creates a Collector with all RADIUS metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PacketsSent,
		c.PacketsReceived,
		c.PacketsDropped,
		c.DedupHits,
		c.HandlerLatency,
		c.CorrelatorTimeouts,
		c.ProxyUpstreamLatency,
		c.InFlightRequests,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_sent_total",
			Help:      "Total RADIUS packets written to the wire.",
		}, []string{labelCode}),

		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "Total RADIUS packets accepted into the server pipeline.",
		}, []string{labelCode}),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total RADIUS packets dropped before a reply was sent.",
		}, []string{labelReason}),

		DedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dedup_hits_total",
			Help:      "Total requests answered from the response cache.",
		}),

		HandlerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "handler_latency_seconds",
			Help:      "Time spent inside a registered Handler.",
			Buckets:   prometheus.DefBuckets,
		}),

		CorrelatorTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "correlator_timeouts_total",
			Help:      "Total outstanding proxied requests abandoned before a matching response arrived.",
		}),

		ProxyUpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "upstream_latency_seconds",
			Help:      "Round-trip time to an upstream RADIUS server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{labelUpstream}),

		InFlightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "in_flight_requests",
			Help:      "Requests currently executing inside a Handler.",
		}),
	}
}

// -------------------------------------------------------------------------
// radius.ServerMetrics
// -------------------------------------------------------------------------

// IncSent increments the sent-packet counter for code, as part of
// radius.ServerMetrics (server replies). Collector does not implement
// radius.ClientMetrics, so outbound client/proxy requests are not counted.
func (c *Collector) IncSent(code radius.Code) {
	c.PacketsSent.WithLabelValues(code.String()).Inc()
}

// IncReceived increments the received-packet counter for code.
func (c *Collector) IncReceived(code radius.Code) {
	c.PacketsReceived.WithLabelValues(code.String()).Inc()
}

// IncDropped increments the dropped-packet counter for reason.
func (c *Collector) IncDropped(reason string) {
	c.PacketsDropped.WithLabelValues(reason).Inc()
}

// IncDedupHit increments the dedup-hit counter.
func (c *Collector) IncDedupHit() {
	c.DedupHits.Inc()
}

// ObserveHandlerLatency records how long a Handler ran before returning.
func (c *Collector) ObserveHandlerLatency(d time.Duration) {
	c.HandlerLatency.Observe(d.Seconds())
}

// -------------------------------------------------------------------------
// Proxy and Correlator
// -------------------------------------------------------------------------

// IncCorrelatorTimeout increments the correlator-timeout counter. Nothing
// in this module calls it: radius.Client reports its timeouts through
// radius.ClientMetrics.IncTimeout, which Collector does not implement.
func (c *Collector) IncCorrelatorTimeout() {
	c.CorrelatorTimeouts.Inc()
}

// ObserveProxyUpstreamLatency records round-trip time to the named upstream.
func (c *Collector) ObserveProxyUpstreamLatency(upstream string, d time.Duration) {
	c.ProxyUpstreamLatency.WithLabelValues(upstream).Observe(d.Seconds())
}

// -------------------------------------------------------------------------
// In-flight Gauge
// -------------------------------------------------------------------------

// IncInFlight increments the in-flight requests gauge.
func (c *Collector) IncInFlight() {
	c.InFlightRequests.Inc()
}

// DecInFlight decrements the in-flight requests gauge.
func (c *Collector) DecInFlight() {
	c.InFlightRequests.Dec()
}
