package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic,
// the statistics cache and the document governance workflow.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	numbersAllocated   *prometheus.CounterVec
	allocationRetries  prometheus.Counter
	allocationFailures prometheus.Counter
	transitions        *prometheus.CounterVec
	decisions          *prometheus.CounterVec
	events             *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	numbersAllocated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_numbers_allocated_total",
		Help: "Document numbers handed out, by prefix",
	}, []string{"prefix"})

	allocationRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "document_number_allocation_retries_total",
		Help: "Allocation attempts retried after serialization failures",
	})

	allocationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "document_number_allocation_conflicts_total",
		Help: "Allocations that gave up with ALLOCATION_CONFLICT",
	})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_lifecycle_transitions_total",
		Help: "Committed lifecycle transitions",
	}, []string{"from", "to"})

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_approval_decisions_total",
		Help: "Recorded approval decisions",
	}, []string{"decision"})

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_events_published_total",
		Help: "Lifecycle events handed to the broker, by outcome",
	}, []string{"type", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		numbersAllocated, allocationRetries, allocationFailures, transitions, decisions, events, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		numbersAllocated:   numbersAllocated,
		allocationRetries:  allocationRetries,
		allocationFailures: allocationFailures,
		transitions:        transitions,
		decisions:          decisions,
		events:             events,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry (tests gather from it).
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// NumberAllocated counts a committed document number.
func (m *MetricsService) NumberAllocated(prefix string) {
	if m == nil {
		return
	}
	m.numbersAllocated.WithLabelValues(prefix).Inc()
}

// AllocationRetried counts a retried allocation attempt.
func (m *MetricsService) AllocationRetried() {
	if m == nil {
		return
	}
	m.allocationRetries.Inc()
}

// AllocationConflicted counts an allocation that exhausted its attempts.
func (m *MetricsService) AllocationConflicted() {
	if m == nil {
		return
	}
	m.allocationFailures.Inc()
}

// TransitionCommitted counts a lifecycle transition.
func (m *MetricsService) TransitionCommitted(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// DecisionRecorded counts an approval decision.
func (m *MetricsService) DecisionRecorded(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

// EventPublished counts an event delivery outcome ("ok", "retry", "dropped").
func (m *MetricsService) EventPublished(eventType, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, result).Inc()
}
