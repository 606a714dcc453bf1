package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingQuoteTotal counts pricing quote computations by outcome.
	PricingQuoteTotal *prometheus.CounterVec
	// DeliveryWebhookTotal counts inbound courier webhook processing outcomes.
	DeliveryWebhookTotal *prometheus.CounterVec
	// InvoiceWriteTotal counts invoice mutations by operation and outcome.
	InvoiceWriteTotal *prometheus.CounterVec
	// WebhookDeliveriesTotal tracks webhook dispatch outcomes.
	WebhookDeliveriesTotal *prometheus.CounterVec
	// WebhookAttemptLatency records delivery attempt latency in milliseconds.
	WebhookAttemptLatency *prometheus.HistogramVec
	// WebhookDispatchAttempts counts dispatcher attempts regardless of outcome.
	WebhookDispatchAttempts prometheus.Counter
	// WebhookDispatchDLQ counts deliveries moved to dead-letter queue.
	WebhookDispatchDLQ prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers the domain collectors.
// Registration is idempotent: a collector another caller already registered
// is reused instead of panicking.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}

		counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
			return registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      name,
				Help:      help,
			}, labels))
		}

		PricingQuoteTotal = counterVec("pricing_quote_total",
			"Count of pricing quote computations by outcome.", "result")
		DeliveryWebhookTotal = counterVec("delivery_webhook_total",
			"Count of processed courier webhooks by outcome.", "courier", "result")
		InvoiceWriteTotal = counterVec("invoice_write_total",
			"Count of invoice mutations by operation and outcome.", "operation", "result")
		WebhookDeliveriesTotal = counterVec("webhook_deliveries_total",
			"Count of webhook delivery outcomes.", "result")

		WebhookAttemptLatency = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_attempt_duration_ms",
			Help:      "Latency for webhook delivery attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"}))
		WebhookDispatchAttempts = registerOrReuse[prometheus.Counter](reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_dispatch_attempts_total",
			Help:      "Total number of webhook dispatch attempts.",
		}))
		WebhookDispatchDLQ = registerOrReuse[prometheus.Counter](reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_dispatch_dlq_total",
			Help:      "Number of webhook deliveries moved to the dead-letter queue.",
		}))
	})
}
