package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	transitions   *prometheus.CounterVec
	checkIns      *prometheus.CounterVec
	codeRotations prometheus.Counter
	conflicts     *prometheus.CounterVec
	bulkOutcomes  *prometheus.CounterVec
	bulkDuration  prometheus.Observer

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	transitionCount      uint64
	conflictCount        uint64
	checkInCount         uint64
}

// MetricsSnapshot is a JSON friendly summary of the process counters.
type MetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	Transitions              uint64    `json:"transitions"`
	ConcurrencyConflicts     uint64    `json:"concurrencyConflicts"`
	CheckIns                 uint64    `json:"checkIns"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
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

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "application_transitions_total",
		Help: "Application state machine operations by outcome",
	}, []string{"operation", "outcome"})

	checkIns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_checkins_total",
		Help: "Student check-in attempts by method and outcome",
	}, []string{"method", "outcome"})

	codeRotations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_code_rotations_total",
		Help: "Rotating attendance codes issued after expiry",
	})

	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "optimistic_conflicts_total",
		Help: "Writes rejected by a stale version token",
	}, []string{"resource"})

	bulkOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_advance_students_total",
		Help: "Students processed by bulk advancement by outcome",
	}, []string{"outcome"})

	bulkDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bulk_advance_duration_seconds",
		Help:    "Duration of bulk advancement batches",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		transitions, checkIns, codeRotations, conflicts, bulkOutcomes, bulkDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		transitions:     transitions,
		checkIns:        checkIns,
		codeRotations:   codeRotations,
		conflicts:       conflicts,
		bulkOutcomes:    bulkOutcomes,
		bulkDuration:    bulkDuration,
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordTransition counts a state machine operation. outcome is "ok" or an error code.
func (m *MetricsService) RecordTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
	atomic.AddUint64(&m.transitionCount, 1)
}

// RecordConflict counts an optimistic concurrency rejection.
func (m *MetricsService) RecordConflict(resource string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(resource).Inc()
	atomic.AddUint64(&m.conflictCount, 1)
}

// RecordCheckIn counts a check-in attempt.
func (m *MetricsService) RecordCheckIn(method, outcome string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.checkIns.WithLabelValues(method, outcome).Inc()
	atomic.AddUint64(&m.checkInCount, 1)
}

// RecordCodeRotation counts a lazily issued attendance code.
func (m *MetricsService) RecordCodeRotation() {
	if m == nil {
		return
	}
	m.codeRotations.Inc()
}

// ObserveBulkAdvance records the outcome distribution and duration of one batch.
func (m *MetricsService) ObserveBulkAdvance(succeeded, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.bulkOutcomes.WithLabelValues("advanced").Add(float64(succeeded))
	m.bulkOutcomes.WithLabelValues("failed").Add(float64(failed))
	m.bulkDuration.Observe(duration.Seconds())
}

// Snapshot returns aggregated metrics suitable for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		Transitions:              atomic.LoadUint64(&m.transitionCount),
		ConcurrencyConflicts:     atomic.LoadUint64(&m.conflictCount),
		CheckIns:                 atomic.LoadUint64(&m.checkInCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
