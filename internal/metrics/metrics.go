// Package metrics provides Prometheus metrics for the collaboration core.
// Trimmed from a prior sandboxed-execution/AI/billing metric group
// (out of scope — this module places AI calls and analytics accumulators
// outside this module) down to the HTTP, session/broadcast, OT, and
// permission-resolver concerns this module actually has, following the
// same promauto-registered singleton pattern.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds every Prometheus collector this module registers.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Sessions / broadcast
	SessionsActive          prometheus.Gauge
	SessionParticipants     prometheus.Gauge
	OperationsSubmittedTotal *prometheus.CounterVec
	BroadcastDropsTotal     prometheus.Counter
	SessionConflictsTotal   prometheus.Counter

	// OT kernel
	TransformDuration prometheus.Histogram

	// Permission resolver
	ResolveDuration     *prometheus.HistogramVec
	ResolveCacheHits    prometheus.Counter
	ResolveCacheMisses  prometheus.Counter
	AuthorizationDenied *prometheus.CounterVec

	// Database / cache
	DBQueryDuration *prometheus.HistogramVec
	DBErrorsTotal   *prometheus.CounterVec
	CacheHitsTotal  *prometheus.CounterVec
	CacheMissTotal  *prometheus.CounterVec
}

// Get returns the process-wide Metrics singleton, registering collectors on
// first call.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "collabforge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by endpoint, method, and status code",
		},
		[]string{"endpoint", "method", "status"},
	)
	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "collabforge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by endpoint and method",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)
	m.HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "collabforge",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served",
		},
	)

	m.SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "collabforge",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of live collaboration sessions",
		},
	)
	m.SessionParticipants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "collabforge",
			Subsystem: "session",
			Name:      "participants",
			Help:      "Total participants across all live sessions",
		},
	)
	m.OperationsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "collabforge",
			Subsystem: "session",
			Name:      "operations_submitted_total",
			Help:      "Total operations submitted, by outcome",
		},
		[]string{"outcome"}, // applied, rejected, conflict
	)
	m.BroadcastDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "collabforge",
			Subsystem: "session",
			Name:      "broadcast_drops_total",
			Help:      "Total subscribers dropped due to a full broadcast buffer",
		},
	)
	m.SessionConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "collabforge",
			Subsystem: "session",
			Name:      "conflicts_total",
			Help:      "Total submits rejected as an unresolvable transform conflict",
		},
	)

	m.TransformDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "collabforge",
			Subsystem: "ot",
			Name:      "transform_duration_seconds",
			Help:      "Latency of transform_against/transform calls",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		},
	)

	m.ResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "collabforge",
			Subsystem: "permissions",
			Name:      "resolve_duration_seconds",
			Help:      "Latency of permission resolution, by cache outcome",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"cache"}, // hit, miss
	)
	m.ResolveCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "collabforge",
			Subsystem: "permissions",
			Name:      "cache_hits_total",
			Help:      "Total permission resolutions served from cache",
		},
	)
	m.ResolveCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "collabforge",
			Subsystem: "permissions",
			Name:      "cache_misses_total",
			Help:      "Total permission resolutions that required traversal",
		},
	)
	m.AuthorizationDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "collabforge",
			Subsystem: "permissions",
			Name:      "authorization_denied_total",
			Help:      "Total authorization gate denials, by requested token",
		},
		[]string{"token"},
	)

	m.DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "collabforge",
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query latency by operation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	m.DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "collabforge",
			Subsystem: "db",
			Name:      "errors_total",
			Help:      "Total database errors by operation",
		},
		[]string{"operation"},
	)
	m.CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "collabforge",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total secondary-cache hits by cache name",
		},
		[]string{"cache"},
	)
	m.CacheMissTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "collabforge",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total secondary-cache misses by cache name",
		},
		[]string{"cache"},
	)

	return m
}
