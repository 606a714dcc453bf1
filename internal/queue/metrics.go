package queue

import "github.com/prometheus/client_golang/prometheus"

// Queue gauges are refreshed lazily by the admin stats endpoint rather than
// by a background collector.
var (
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "queue_depth", Help: "Approximate number of ready jobs per kind"},
		[]string{"kind"},
	)
	QueueProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "queue_processed_total", Help: "Jobs processed, labeled ok, retry or dead"},
		[]string{"kind", "status"},
	)
	QueueDLQSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "queue_dlq_size", Help: "Jobs parked in the dead-letter table"},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(QueueDepth, QueueProcessedTotal, QueueDLQSize)
}
