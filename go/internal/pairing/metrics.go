package pairing

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector records pairing outcomes.
type MetricsCollector interface {
	Pair(status int)
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func (NoOpMetrics) Pair(int) {}

var pairRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "arenanotify",
	Subsystem: "pairing",
	Name:      "requests_total",
	Help:      "Pairing requests by response status.",
}, []string{"status"})

// PrometheusMetrics exports pairing outcomes.
type PrometheusMetrics struct{}

func (PrometheusMetrics) Pair(status int) {
	pairRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}
