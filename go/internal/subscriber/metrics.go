package subscriber

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector records subscription activity.
type MetricsCollector interface {
	Reconnect()
	Event(eventType string)
	Dropped(reason string)
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func (NoOpMetrics) Reconnect()     {}
func (NoOpMetrics) Event(string)   {}
func (NoOpMetrics) Dropped(string) {}

var (
	reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arenanotify",
		Subsystem: "subscriber",
		Name:      "reconnects_total",
		Help:      "Subscription failures followed by a scheduled reattach.",
	})
	events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arenanotify",
		Subsystem: "subscriber",
		Name:      "events_total",
		Help:      "Channel values received, by type.",
	}, []string{"type"})
	dropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arenanotify",
		Subsystem: "subscriber",
		Name:      "dropped_total",
		Help:      "Channel values dropped, by reason.",
	}, []string{"reason"})
)

// PrometheusMetrics exports subscription activity.
type PrometheusMetrics struct{}

func (PrometheusMetrics) Reconnect() { reconnects.Inc() }

func (PrometheusMetrics) Event(eventType string) {
	switch eventType {
	case "arena_pop", "arena_stop", "test_connection":
	default:
		eventType = "other"
	}
	events.WithLabelValues(eventType).Inc()
}

func (PrometheusMetrics) Dropped(reason string) { dropped.WithLabelValues(reason).Inc() }
