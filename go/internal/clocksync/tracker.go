// Package clocksync tracks the offset between the shared store's clock and
// the local clock.
package clocksync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/arenanotify/go/internal/channel"
)

const (
	DefaultWaitAttempts = 50
	DefaultWaitInterval = 100 * time.Millisecond
	DefaultRetryDelay   = 5 * time.Second
)

// Tracker holds the latest server-minus-local offset in milliseconds. There
// is exactly one writer (Run); readers load it fresh on every computation.
// Zero means unresolved until the first sample arrives.
type Tracker struct {
	clock    clockwork.Clock
	offset   atomic.Int64
	resolved atomic.Bool
	metrics  MetricsCollector

	RetryDelay time.Duration
}

// NewTracker returns an unresolved tracker.
func NewTracker(clock clockwork.Clock, metrics MetricsCollector) *Tracker {
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &Tracker{clock: clock, metrics: metrics, RetryDelay: DefaultRetryDelay}
}

// Offset returns the current offset in milliseconds.
func (t *Tracker) Offset() int64 {
	return t.offset.Load()
}

// Resolved reports whether at least one sample has been observed.
func (t *Tracker) Resolved() bool {
	return t.resolved.Load()
}

// Observe records a sample. Offsets may jump in either direction.
func (t *Tracker) Observe(s channel.Sample) {
	ms := s.Offset().Milliseconds()
	prev := t.offset.Swap(ms)
	if !t.resolved.Swap(true) {
		log.Info().Int64("offset_ms", ms).Msg("clock offset resolved")
	} else if d := ms - prev; d > 1000 || d < -1000 {
		log.Info().Int64("offset_ms", ms).Int64("previous_ms", prev).Msg("clock offset jumped")
	}
	t.metrics.SetOffset(ms)
}

// Run follows src until ctx is done, resubscribing after RetryDelay whenever
// the source fails.
func (t *Tracker) Run(ctx context.Context, src channel.ClockSource) error {
	for {
		err := src.WatchServerTime(ctx, t.Observe)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("clock source ended")
		}
		log.Warn().Err(err).Dur("retry_in", t.RetryDelay).Msg("server clock subscription lost")

		timer := t.clock.NewTimer(t.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.Chan():
		}
	}
}

// WaitResolved polls up to attempts times, interval apart, for the offset to
// resolve. It returns true once resolved and false when the attempts run out
// or ctx is cancelled. Callers proceed with the current value either way.
func (t *Tracker) WaitResolved(ctx context.Context, attempts int, interval time.Duration) bool {
	for i := 0; i < attempts; i++ {
		if t.Resolved() {
			return true
		}
		timer := t.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.Chan():
		}
	}
	return t.Resolved()
}
