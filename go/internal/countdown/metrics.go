package countdown

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector records scheduler activity.
type MetricsCollector interface {
	SessionStarted()
	SessionFinished(state State)
	DuplicateStart()
	AlertRaised(final bool)
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func (NoOpMetrics) SessionStarted()       {}
func (NoOpMetrics) SessionFinished(State) {}
func (NoOpMetrics) DuplicateStart()       {}
func (NoOpMetrics) AlertRaised(bool)      {}

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arenanotify",
		Subsystem: "countdown",
		Name:      "sessions_started_total",
		Help:      "Countdown sessions accepted.",
	})
	sessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arenanotify",
		Subsystem: "countdown",
		Name:      "sessions_finished_total",
		Help:      "Countdown sessions ended, by terminal state.",
	}, []string{"state"})
	duplicateStarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arenanotify",
		Subsystem: "countdown",
		Name:      "duplicate_starts_total",
		Help:      "START events ignored because a session was active.",
	})
	alertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arenanotify",
		Subsystem: "countdown",
		Name:      "alerts_total",
		Help:      "Final-seconds alerts raised.",
	}, []string{"final"})
)

// PrometheusMetrics exports scheduler activity.
type PrometheusMetrics struct{}

func (PrometheusMetrics) SessionStarted() { sessionsStarted.Inc() }

func (PrometheusMetrics) SessionFinished(state State) {
	sessionsFinished.WithLabelValues(string(state)).Inc()
}

func (PrometheusMetrics) DuplicateStart() { duplicateStarts.Inc() }

func (PrometheusMetrics) AlertRaised(final bool) {
	alertsRaised.WithLabelValues(strconv.FormatBool(final)).Inc()
}
