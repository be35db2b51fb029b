package analytics

import "github.com/prometheus/client_golang/prometheus"

var (
	flushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_flush_total",
			Help: "Batch flushes by batcher and outcome.",
		},
		[]string{"batcher", "outcome"},
	)

	flushedItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_flushed_items_total",
			Help: "Items delivered by successful flushes.",
		},
		[]string{"batcher"},
	)
)

func init() {
	prometheus.MustRegister(flushTotal, flushedItems)
}
