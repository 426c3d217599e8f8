// Package subscriber keeps a live watch on one channel and hands every
// delivered value to the countdown scheduler.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/arenanotify/go/internal/channel"
	"github.com/mcdev12/arenanotify/go/internal/countdown"
)

// State is the subscription lifecycle.
type State string

const (
	StateDisconnected     State = "DISCONNECTED"
	StateSubscribing      State = "SUBSCRIBING"
	StateActive           State = "ACTIVE"
	StateReconnectPending State = "RECONNECT_PENDING"
)

// DefaultReconnectDelay is the fixed wait before reattaching.
const DefaultReconnectDelay = 5 * time.Second

// Sink receives dispatched events.
type Sink interface {
	Start(ev countdown.StartEvent) error
	Stop() bool
}

// Config configures a Subscriber.
type Config struct {
	ChannelID      string
	ReconnectDelay time.Duration
}

// Subscriber watches a single channel. Run drives the whole lifecycle from
// one goroutine, so at most one reattach timer exists at any time.
type Subscriber struct {
	watcher channel.Watcher
	sink    Sink
	clock   clockwork.Clock
	metrics MetricsCollector
	cfg     Config

	mu    sync.RWMutex
	state State
}

// New returns a disconnected subscriber.
func New(watcher channel.Watcher, sink Sink, clock clockwork.Clock, metrics MetricsCollector, cfg Config) *Subscriber {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &Subscriber{
		watcher: watcher,
		sink:    sink,
		clock:   clock,
		metrics: metrics,
		cfg:     cfg,
		state:   StateDisconnected,
	}
}

// State returns the current lifecycle state.
func (s *Subscriber) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Subscriber) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()

	if prev != st {
		log.Debug().Str("channel_id", s.cfg.ChannelID).Str("from", string(prev)).Str("to", string(st)).Msg("subscriber state")
	}
}

// Run subscribes until ctx is done, reattaching after ReconnectDelay every
// time the subscription fails.
func (s *Subscriber) Run(ctx context.Context) error {
	if _, err := channel.Key(s.cfg.ChannelID); err != nil {
		return fmt.Errorf("subscriber: %w", err)
	}
	defer s.setState(StateDisconnected)

	for {
		s.setState(StateSubscribing)
		err := s.watcher.Watch(ctx, s.cfg.ChannelID, s.onReady, s.Dispatch)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errors.New("watch ended")
		}

		s.setState(StateReconnectPending)
		s.metrics.Reconnect()
		log.Warn().
			Err(err).
			Str("channel_id", s.cfg.ChannelID).
			Dur("retry_in", s.cfg.ReconnectDelay).
			Msg("channel subscription lost, scheduling reattach")

		timer := s.clock.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.Chan():
		}
	}
}

func (s *Subscriber) onReady() {
	s.setState(StateActive)
	log.Info().Str("channel_id", s.cfg.ChannelID).Msg("subscribed to channel")
}
