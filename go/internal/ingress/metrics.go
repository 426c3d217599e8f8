package ingress

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector records webhook outcomes.
type MetricsCollector interface {
	Webhook(status int, eventType string)
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func (NoOpMetrics) Webhook(int, string) {}

var webhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "arenanotify",
	Subsystem: "ingress",
	Name:      "webhook_requests_total",
	Help:      "Webhook requests by response status and stored event type.",
}, []string{"status", "type"})

// PrometheusMetrics exports webhook outcomes.
type PrometheusMetrics struct{}

func (PrometheusMetrics) Webhook(status int, eventType string) {
	webhookRequests.WithLabelValues(strconv.Itoa(status), eventType).Inc()
}
