package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks API requests by route pattern and status code
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zonecp_requests_total",
		Help: "Total number of API requests processed",
	}, []string{"route", "method", "status"})

	// RequestDuration tracks API request handling time
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zonecp_request_duration_seconds",
		Help:    "Histogram of API request handling duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// ThrottledTotal tracks requests denied by the rate limiter
	ThrottledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zonecp_throttled_total",
		Help: "Total number of requests denied by the rate limiter",
	}, []string{"scope"})

	// PublishesTotal tracks zone publications to the primary name server
	PublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zonecp_publishes_total",
		Help: "Total number of zone change sets pushed to the name server",
	}, []string{"result"})

	// DelegationChecksTotal tracks delegation checker runs per outcome
	DelegationChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zonecp_delegation_checks_total",
		Help: "Total number of per-domain delegation checks",
	}, []string{"result"})

	// DBConnectionsActive tracks open database connections
	DBConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zonecp_db_connections_active",
		Help: "Number of active database connections",
	})
)
