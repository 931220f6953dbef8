package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "route"})

	HTTPPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_http_panics_recovered_total",
		Help: "Handler panics recovered by route",
	}, []string{"route"})

	OutboundOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_outbound_outcomes_total",
		Help: "Outbound transfer attempt outcomes",
	}, []string{"outcome"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_dispatch_duration_seconds",
		Help:    "Latency of assertion dispatch to peer banks",
		Buckets: prometheus.DefBuckets,
	})

	InboundOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_inbound_outcomes_total",
		Help: "Inbound assertion outcomes",
	}, []string{"outcome"})

	RegistryRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_registry_refreshes_total",
		Help: "Registry refresh attempts",
	}, []string{"result"})

	WorkerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_worker_ticks_total",
		Help: "Outbound worker ticks",
	})
)
