package clocksync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector receives offset updates.
type MetricsCollector interface {
	SetOffset(ms int64)
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func (NoOpMetrics) SetOffset(int64) {}

var offsetGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "arenanotify",
	Subsystem: "clock",
	Name:      "offset_milliseconds",
	Help:      "Latest server-minus-local clock offset.",
})

// PrometheusMetrics exports the offset as a gauge.
type PrometheusMetrics struct{}

func (PrometheusMetrics) SetOffset(ms int64) {
	offsetGauge.Set(float64(ms))
}
