// Package countdown turns a START event carrying a server-clock end time
// into a locally accurate, cancellable 1 Hz countdown.
package countdown

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/arenanotify/go/internal/config"
	"github.com/mcdev12/arenanotify/go/internal/keepawake"
)

// OffsetSource is the clock offset the scheduler reads on every computation.
type OffsetSource interface {
	Offset() int64
	Resolved() bool
	WaitResolved(ctx context.Context, attempts int, interval time.Duration) bool
}

// HoldManager grants the keep-awake hold for a running session.
type HoldManager interface {
	Acquire(reason string, d time.Duration) (*keepawake.Hold, error)
}

// SettingsSource serves the current alert settings.
type SettingsSource interface {
	Alerts() config.AlertSettings
}

// Config tunes the scheduler.
type Config struct {
	TickInterval       time.Duration
	HoldMargin         time.Duration
	MaxOffsetDiff      time.Duration
	OffsetWaitAttempts int
	OffsetWaitInterval time.Duration
}

// DefaultConfig returns the reference timings.
func DefaultConfig() Config {
	return Config{
		TickInterval:       time.Second,
		HoldMargin:         2 * time.Second,
		MaxOffsetDiff:      3 * time.Second,
		OffsetWaitAttempts: 50,
		OffsetWaitInterval: 100 * time.Millisecond,
	}
}

type session struct {
	id          string
	eventID     string
	endsAt      int64
	producer    *int64
	ingestDelay time.Duration
	startedAt   time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by Scheduler.mu
	state            State
	correction       int64
	initialRemaining int64
	lastEmitted      int
	hold             *keepawake.Hold
	finished         bool
}

// Scheduler owns at most one countdown session. The running flag is the
// single-flight guard; mu serialises emission against termination so no
// update follows a terminal one.
type Scheduler struct {
	clock    clockwork.Clock
	offsets  OffsetSource
	holds    HoldManager
	settings SettingsSource
	alerter  Alerter
	stream   *Stream
	metrics  MetricsCollector
	cfg      Config

	running atomic.Bool

	mu      sync.Mutex
	current *session
	closed  bool
	wg      sync.WaitGroup
}

// NewScheduler wires a scheduler. alerter and metrics may be nil.
func NewScheduler(clock clockwork.Clock, offsets OffsetSource, holds HoldManager, settings SettingsSource, alerter Alerter, stream *Stream, metrics MetricsCollector, cfg Config) *Scheduler {
	if alerter == nil {
		alerter = Alerters(nil)
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &Scheduler{
		clock:    clock,
		offsets:  offsets,
		holds:    holds,
		settings: settings,
		alerter:  alerter,
		stream:   stream,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Stream returns the observable countdown stream.
func (s *Scheduler) Stream() *Stream {
	return s.stream
}

// Start arms a session for ev and returns immediately. While another session
// is armed or running the event is ignored and ErrSessionActive returned.
func (s *Scheduler) Start(ev StartEvent) error {
	if ev.EndsAt <= 0 {
		return ErrInvalidStart
	}

	if !s.running.CompareAndSwap(false, true) {
		s.metrics.DuplicateStart()
		cur, _ := s.Current()
		log.Warn().
			Str("session_id", cur.ID).
			Int64("ends_at", cur.EndsAt).
			Int64("ignored_ends_at", ev.EndsAt).
			Msg("countdown already active, ignoring START")
		return ErrSessionActive
	}

	dispatchedAt := s.clock.Now()
	var ingestDelay time.Duration
	if !ev.ReceivedAt.IsZero() && dispatchedAt.After(ev.ReceivedAt) {
		ingestDelay = dispatchedAt.Sub(ev.ReceivedAt)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:          uuid.New().String(),
		eventID:     ev.EventID,
		endsAt:      ev.EndsAt,
		producer:    ev.ProducerOffset,
		ingestDelay: ingestDelay,
		startedAt:   dispatchedAt,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		state:       StateArmed,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		s.running.Store(false)
		return ErrClosed
	}
	s.current = sess
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.SessionStarted()
	log.Info().
		Str("session_id", sess.id).
		Str("event_id", sess.eventID).
		Int64("ends_at", sess.endsAt).
		Dur("ingest_delay", ingestDelay).
		Msg("countdown armed")

	go s.run(sess)
	return nil
}

// Stop cancels the active session, emits the terminal update and waits for
// the session goroutine to exit. It reports whether a session was stopped.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	sess := s.current
	s.mu.Unlock()

	if sess == nil {
		log.Debug().Msg("STOP while idle, nothing to do")
		return false
	}

	stopped := s.finish(sess, StateCancelled)
	<-sess.done
	return stopped
}

// Shutdown stops the active session and refuses further starts. The terminal
// update and hold release happen before it returns.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.Stop() {
		log.Info().Msg("countdown cancelled by shutdown")
	}
	s.wg.Wait()
}

// State returns the lifecycle state of the active session, or IDLE.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return StateIdle
	}
	return s.current.state
}

// Current returns a snapshot of the active session.
func (s *Scheduler) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.current
	if sess == nil {
		return Session{}, false
	}
	return Session{
		ID:                 sess.id,
		EventID:            sess.eventID,
		EndsAt:             sess.endsAt,
		StartedAt:          sess.startedAt,
		State:              sess.state,
		LastEmitted:        sess.lastEmitted,
		InitialRemainingMs: sess.initialRemaining,
		CorrectionMs:       sess.correction,
	}, true
}

func (s *Scheduler) run(sess *session) {
	defer s.wg.Done()
	defer close(sess.done)

	if !s.offsets.Resolved() {
		log.Info().Str("session_id", sess.id).Msg("waiting for clock offset")
		if !s.offsets.WaitResolved(sess.ctx, s.cfg.OffsetWaitAttempts, s.cfg.OffsetWaitInterval) {
			log.Warn().Str("session_id", sess.id).Int64("offset_ms", s.offsets.Offset()).Msg("clock offset unresolved, proceeding with current value")
		}
	}
	if sess.ctx.Err() != nil {
		return
	}

	offset := s.offsets.Offset()
	correction, ok := OffsetCorrection(sess.producer, offset, s.cfg.MaxOffsetDiff)
	switch {
	case sess.producer == nil:
	case ok:
		log.Info().Str("session_id", sess.id).Int64("offset_diff_ms", correction).Msg("producer offset correction applied")
	default:
		log.Warn().Str("session_id", sess.id).Int64("offset_diff_ms", correction).Msg("producer offset difference too large, ignored")
		correction = 0
	}

	remaining := RemainingMillis(sess.endsAt+correction, s.clock.Now().UnixMilli(), offset, sess.ingestDelay.Milliseconds())
	log.Info().
		Str("session_id", sess.id).
		Int64("remaining_ms", remaining).
		Int64("offset_ms", offset).
		Msg("countdown remaining computed")

	s.mu.Lock()
	sess.correction = correction
	sess.initialRemaining = remaining
	s.mu.Unlock()

	if remaining <= 0 {
		log.Warn().Str("session_id", sess.id).Int64("remaining_ms", remaining).Msg("START already in the past")
		s.finish(sess, StateExpired)
		return
	}

	hold, err := s.holds.Acquire("arena countdown", time.Duration(remaining)*time.Millisecond+s.cfg.HoldMargin)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sess.id).Msg("keep-awake hold unavailable")
	}

	s.mu.Lock()
	if sess.finished {
		s.mu.Unlock()
		hold.Release()
		return
	}
	sess.hold = hold
	sess.state = StateRunning
	s.mu.Unlock()

	timer := s.clock.NewTimer(s.cfg.TickInterval)
	defer timer.Stop()

	if !s.tick(sess, timer) {
		return
	}
	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-timer.Chan():
			if !s.tick(sess, timer) {
				return
			}
		}
	}
}

// tick recomputes the remaining time from scratch and emits it. The next
// tick is a full interval away, or exactly at the end time when that comes
// sooner. A trailing fraction of a second is not emitted. It returns false
// once the session is over.
func (s *Scheduler) tick(sess *session, timer clockwork.Timer) bool {
	s.mu.Lock()
	if sess.finished {
		s.mu.Unlock()
		return false
	}
	now := s.clock.Now()
	rem := sess.endsAt + sess.correction - (now.UnixMilli() + s.offsets.Offset())
	if rem <= 0 {
		s.mu.Unlock()
		s.finish(sess, StateExpired)
		return false
	}
	timer.Reset(min(s.cfg.TickInterval, time.Duration(rem)*time.Millisecond))

	secs := Seconds(rem)
	if secs == 0 {
		s.mu.Unlock()
		return true
	}
	sess.lastEmitted = secs
	s.stream.Publish(Update{SessionID: sess.id, State: DisplayCountdown, Remaining: secs, At: now})
	s.mu.Unlock()

	if a, ok := alertFor(sess.id, secs, s.settings.Alerts()); ok {
		s.metrics.AlertRaised(a.Final)
		s.alerter.Alert(a)
	}
	return true
}

// finish ends sess in state exactly once: it cancels the tick, releases the
// hold, emits the terminal update and returns the scheduler to IDLE.
func (s *Scheduler) finish(sess *session, state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.finished {
		return false
	}
	sess.finished = true
	sess.state = state
	sess.cancel()
	sess.hold.Release()
	sess.hold = nil
	sess.lastEmitted = 0

	if s.current == sess {
		s.current = nil
	}
	s.running.Store(false)

	s.stream.Publish(Update{SessionID: sess.id, State: DisplayWaiting, Remaining: 0, Terminal: true, At: s.clock.Now()})
	s.metrics.SessionFinished(state)

	log.Info().
		Str("session_id", sess.id).
		Str("state", string(state)).
		Dur("elapsed", s.clock.Since(sess.startedAt)).
		Msg("countdown finished")
	return true
}
