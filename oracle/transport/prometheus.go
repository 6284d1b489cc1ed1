package transport

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// Metrics used in monitoring outbound provider traffic.
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Outbound HTTP requests by host and status code",
			Name:      "http_requests_total",
			Namespace: "oracle_router",
		},
		[]string{"host", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Help:      "Outbound HTTP request time",
			Name:      "http_request_seconds",
			Namespace: "oracle_router",
		},
		[]string{"host"},
	)

	httpRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Outbound HTTP attempts beyond the first",
			Name:      "http_retries_total",
			Namespace: "oracle_router",
		},
	)

	breakerStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			Name:      "circuit_breaker_state",
			Namespace: "oracle_router",
		},
		[]string{"breaker"},
	)

	rateLimitRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Calls rejected locally while a host is rate limited",
			Name:      "rate_limit_rejects_total",
			Namespace: "oracle_router",
		},
		[]string{"host"},
	)

	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Cache hits by backend",
			Name:      "cache_hits_total",
			Namespace: "oracle_router",
		},
		[]string{"backend"},
	)

	cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Cache misses by backend",
			Name:      "cache_misses_total",
			Namespace: "oracle_router",
		},
		[]string{"backend"},
	)

	cacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "Cache entries evicted by backend",
			Name:      "cache_evictions_total",
			Namespace: "oracle_router",
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		httpRetriesTotal,
		breakerStateGauge,
		rateLimitRejectsTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
	)
}

func observeRequest(host string, status int, took time.Duration) {
	httpRequestsTotal.WithLabelValues(host, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(host).Observe(took.Seconds())
}

func addRetries(n int) {
	if n > 0 {
		httpRetriesTotal.Add(float64(n))
	}
}

func setBreakerState(name string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	breakerStateGauge.WithLabelValues(name).Set(v)
}

func rateLimitReject(host string) {
	rateLimitRejectsTotal.WithLabelValues(host).Inc()
}

func cacheHit(backend string) {
	cacheHitsTotal.WithLabelValues(backend).Inc()
}

func cacheMiss(backend string) {
	cacheMissesTotal.WithLabelValues(backend).Inc()
}

func cacheEviction(backend string) {
	cacheEvictionsTotal.WithLabelValues(backend).Inc()
}
