package v1

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics used in monitoring the serving side of the API.
var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Help:      "API requests by route, method and status code",
			Name:      "api_requests_total",
			Namespace: "oracle_router",
		},
		[]string{"route", "method", "status"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Help:      "API request time by route",
			Name:      "api_request_seconds",
			Namespace: "oracle_router",
		},
		[]string{"route"},
	)

	streamClientsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Help:      "Connected price stream clients",
			Name:      "stream_clients",
			Namespace: "oracle_router",
		},
	)

	streamUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Aggregated price updates pushed to stream clients",
			Name:      "stream_updates_total",
			Namespace: "oracle_router",
		},
	)
)

func init() {
	prometheus.MustRegister(
		apiRequestsTotal,
		apiRequestDuration,
		streamClientsGauge,
		streamUpdatesTotal,
	)
}

func observeAPIRequest(route, method string, status int, took time.Duration) {
	apiRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(route).Observe(took.Seconds())
}
