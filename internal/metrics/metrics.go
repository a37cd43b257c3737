// Package metrics provides the process-wide request counters exposed through
// Snapshot, plus Prometheus vectors served by the health server.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector accumulates request counters. Recording is a no-op until Enable
// is called; Snapshot is a point-in-time copy, never a live view.
type Collector struct {
	enabled      atomic.Bool
	total        atomic.Uint64
	failed       atomic.Uint64
	totalLatency atomic.Int64 // nanoseconds
}

// Snapshot is a point-in-time aggregate of the collector's counters.
type Snapshot struct {
	TotalRequests   uint64
	FailedRequests  uint64
	AvgResponseTime time.Duration
}

// NewCollector returns a disabled collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Enable turns recording on.
func (c *Collector) Enable() { c.enabled.Store(true) }

// Disable turns recording off. Already-recorded counters are retained.
func (c *Collector) Disable() { c.enabled.Store(false) }

// Enabled reports whether recording is on.
func (c *Collector) Enabled() bool { return c.enabled.Load() }

// RecordRequest records one transport request outcome.
func (c *Collector) RecordRequest(latency time.Duration, failed bool) {
	if !c.enabled.Load() {
		return
	}
	c.total.Add(1)
	if failed {
		c.failed.Add(1)
	}
	c.totalLatency.Add(int64(latency))
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	total := c.total.Load()
	s := Snapshot{
		TotalRequests:  total,
		FailedRequests: c.failed.Load(),
	}
	if total > 0 {
		s.AvgResponseTime = time.Duration(c.totalLatency.Load() / int64(total))
	}
	return s
}

// Reset clears all counters. Intended for tests.
func (c *Collector) Reset() {
	c.total.Store(0)
	c.failed.Store(0)
	c.totalLatency.Store(0)
}

var global = NewCollector()

// Default returns the process-wide collector. Components should take a
// *Collector instead of reaching for this directly where practical.
func Default() *Collector { return global }

// Enable turns on the process-wide collector.
func Enable() { global.Enable() }

// Disable turns off the process-wide collector.
func Disable() { global.Disable() }

// GlobalSnapshot snapshots the process-wide collector.
func GlobalSnapshot() Snapshot { return global.Snapshot() }

var (
	// RPCCallsTotal tracks transport calls per network and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywatch_rpc_calls_total",
			Help: "Total number of transport calls",
		},
		[]string{"network", "method"},
	)

	// RPCErrorsTotal tracks transport errors per network
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywatch_rpc_errors_total",
			Help: "Total number of transport errors",
		},
		[]string{"network", "error_type"},
	)

	// RPCLatency tracks transport call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paywatch_rpc_latency_seconds",
			Help:    "Transport call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network", "method"},
	)

	// PaymentsDetected tracks confirmed payments per network
	PaymentsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywatch_payments_detected_total",
			Help: "Total number of confirmed payments detected",
		},
		[]string{"network"},
	)

	// TransportFallbacks tracks push-to-pull fallbacks per network
	TransportFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paywatch_transport_fallbacks_total",
			Help: "Total number of push-to-pull transport fallbacks",
		},
		[]string{"network"},
	)
)
