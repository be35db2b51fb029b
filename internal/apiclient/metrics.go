package apiclient

import "github.com/prometheus/client_golang/prometheus"

// Upstream metrics are labeled by Request.Route so ids in URLs do not
// inflate cardinality.
var (
	upstreamReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Requests sent to the QA API.",
		},
		[]string{"method", "path", "status"},
	)

	upstreamLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Latency of QA API requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(upstreamReqs, upstreamLat)
}
