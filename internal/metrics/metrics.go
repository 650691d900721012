// Package metrics exposes prometheus instrumentation for index maintenance
// and query planning. All collectors live on a private registry so several
// instances (one per test, one per process) never collide.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "whenr"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	writes        *prometheus.CounterVec
	derivations   *prometheus.CounterVec
	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	stepSize      *prometheus.HistogramVec
	cache         *prometheus.CounterVec
	generation    prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.writes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "writes_total",
		Help:      "Entity writes by kind, operation and result",
	}, []string{"kind", "op", "result"})
	m.derivations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "derivations_total",
		Help:      "Derived representations recomputed, by index and entity kind",
	}, []string{"index", "kind"})
	m.queries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queries_total",
		Help:      "Planned searches by sort and result",
	}, []string{"sort", "result"})
	m.queryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "query_duration_seconds",
		Help:      "Search execution latency",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"sort"})
	m.stepSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "plan_step_candidates",
		Help:      "Candidate set size after each plan step",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"step"})
	m.cache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_cache_total",
		Help:      "Search cache lookups by outcome",
	}, []string{"outcome"})
	m.generation = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "index_generation",
		Help:      "Number of committed index-affecting writes since start",
	})

	m.registry.MustRegister(m.writes, m.derivations, m.queries, m.queryDuration,
		m.stepSize, m.cache, m.generation)
	return m
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordWrite counts a committed or rejected entity write
func (m *Metrics) RecordWrite(kind, op string, err error) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(kind, op, result(err)).Inc()
}

// RecordDerivation counts one recomputed representation. index is "text" or "geo".
func (m *Metrics) RecordDerivation(index, kind string) {
	if m == nil {
		return
	}
	m.derivations.WithLabelValues(index, kind).Inc()
}

// RecordQuery counts a search and observes its latency
func (m *Metrics) RecordQuery(sort string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(sort, result(err)).Inc()
	m.queryDuration.WithLabelValues(sort).Observe(elapsed.Seconds())
}

// RecordStep observes the candidate count left after a plan step
func (m *Metrics) RecordStep(step string, candidates int) {
	if m == nil {
		return
	}
	m.stepSize.WithLabelValues(step).Observe(float64(candidates))
}

// RecordCache counts a cache hit or miss
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cache.WithLabelValues(outcome).Inc()
}

// SetGeneration publishes the current index generation
func (m *Metrics) SetGeneration(generation uint64) {
	if m == nil {
		return
	}
	m.generation.Set(float64(generation))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
