// Package middleware contains the Gin middleware of the local gateway.
//
// This file exposes Prometheus instrumentation for gateway traffic: request
// counts, latency histograms and in-flight concurrency, labelled by method,
// registered route and status. Guard denials are counted separately.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Labels use the registered route so ids in URLs do not blow up cardinality.
var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Requests served by the local gateway.",
		},
		[]string{"method", "path", "status"},
	)
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "Gateway request latency. Upload streams stay open for the whole transfer.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path"},
	)
	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_http_requests_inflight",
		Help: "Requests currently being served.",
	})
	guardDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_guard_denials_total",
			Help: "Requests refused by route guards, by redirect target.",
		},
		[]string{"redirect"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, guardDenials)
}

// Metrics records request count, latency and concurrency.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := routeOf(c)
		httpReqs.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
