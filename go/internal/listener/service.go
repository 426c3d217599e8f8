// Package listener assembles the consumer side: clock tracking, the channel
// subscription, the countdown scheduler and the local stream gateway.
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/arenanotify/go/internal/channel"
	"github.com/mcdev12/arenanotify/go/internal/clocksync"
	"github.com/mcdev12/arenanotify/go/internal/config"
	"github.com/mcdev12/arenanotify/go/internal/countdown"
	"github.com/mcdev12/arenanotify/go/internal/gateway"
	"github.com/mcdev12/arenanotify/go/internal/keepawake"
	"github.com/mcdev12/arenanotify/go/internal/subscriber"
)

// Backend is the shared channel as seen by a consumer.
type Backend interface {
	channel.Watcher
	channel.ClockSource
}

// Config configures the listener service.
type Config struct {
	ChannelID      string
	HTTPAddr       string
	ReconnectDelay time.Duration
	Countdown      countdown.Config
	// Bell is where sound alerts ring; nil disables the bell.
	Bell io.Writer
	// Metrics switches collectors from no-op to Prometheus.
	Metrics bool
}

// Service is the running consumer.
type Service struct {
	cfg       Config
	backend   Backend
	settings  *config.SettingsHolder
	tracker   *clocksync.Tracker
	stream    *countdown.Stream
	scheduler *countdown.Scheduler
	sub       *subscriber.Subscriber
	gateway   *gateway.ConnectionManager
	handler   *gateway.WebSocketHandler
}

// New wires the service. inhibitor may be nil.
func New(cfg Config, backend Backend, settings *config.SettingsHolder, clock clockwork.Clock, inhibitor keepawake.Inhibitor) *Service {
	var (
		clockMetrics clocksync.MetricsCollector  = clocksync.NoOpMetrics{}
		cdMetrics    countdown.MetricsCollector  = countdown.NoOpMetrics{}
		subMetrics   subscriber.MetricsCollector = subscriber.NoOpMetrics{}
	)
	if cfg.Metrics {
		clockMetrics = clocksync.PrometheusMetrics{}
		cdMetrics = countdown.PrometheusMetrics{}
		subMetrics = subscriber.PrometheusMetrics{}
	}

	s := &Service{
		cfg:      cfg,
		backend:  backend,
		settings: settings,
		tracker:  clocksync.NewTracker(clock, clockMetrics),
		stream:   countdown.NewStream(),
	}
	s.gateway = gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), s.stream.Latest)
	s.handler = gateway.NewWebSocketHandler(s.gateway, s.status)

	alerters := countdown.Alerters{s.gateway}
	if cfg.Bell != nil {
		alerters = append(alerters, countdown.BellAlerter{Out: cfg.Bell})
	}

	s.scheduler = countdown.NewScheduler(
		clock,
		s.tracker,
		keepawake.NewManager(clock, inhibitor),
		settings,
		alerters,
		s.stream,
		cdMetrics,
		cfg.Countdown,
	)
	s.sub = subscriber.New(backend, s.scheduler, clock, subMetrics, subscriber.Config{
		ChannelID:      cfg.ChannelID,
		ReconnectDelay: cfg.ReconnectDelay,
	})
	return s
}

// Scheduler exposes the countdown scheduler.
func (s *Service) Scheduler() *countdown.Scheduler {
	return s.scheduler
}

// Handler returns the local HTTP surface: the countdown WebSocket, status
// and metrics.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
	return mux
}

// Run starts every component and blocks until ctx is done. The active
// countdown, if any, is cancelled with a terminal update that reaches every
// stream consumer before they stop.
func (s *Service) Run(ctx context.Context) error {
	// Stream consumers outlive ctx: they are stopped only after the
	// scheduler has published its teardown update.
	streamCtx, stopStream := context.WithCancel(context.Background())
	var consumers errgroup.Group
	consumers.Go(func() error {
		s.gateway.Run(streamCtx, s.stream)
		return nil
	})
	consumers.Go(func() error {
		s.logNotifications(streamCtx)
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.tracker.Run(gctx, s.backend) })
	g.Go(func() error { return s.sub.Run(gctx) })
	g.Go(func() error { return s.settings.Watch(gctx) })

	if s.cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              s.cfg.HTTPAddr,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", s.cfg.HTTPAddr).Msg("listener HTTP server started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listener http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Info().Str("channel_id", s.cfg.ChannelID).Msg("listener started")
	err := g.Wait()

	s.scheduler.Shutdown()
	stopStream()
	_ = consumers.Wait()

	log.Info().Msg("listener stopped")
	return err
}

// logNotifications is the headless stand-in for the ongoing notification:
// it logs each update while notifications are enabled.
func (s *Service) logNotifications(ctx context.Context) {
	updates, unsubscribe := s.stream.Subscribe(16)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case u := <-updates:
					s.notify(u)
				default:
					return
				}
			}
		case u := <-updates:
			s.notify(u)
		}
	}
}

func (s *Service) notify(u countdown.Update) {
	if !s.settings.Alerts().Notifications {
		return
	}
	if u.State == countdown.DisplayCountdown {
		log.Info().Str("session_id", u.SessionID).Msgf("Arena begins in %s", countdown.FormatRemaining(u.Remaining))
	} else {
		log.Info().Str("session_id", u.SessionID).Msg("Waiting for arena")
	}
}

func (s *Service) status() gateway.Status {
	st := gateway.Status{
		Subscription: string(s.sub.State()),
		Countdown:    string(s.scheduler.State()),
		OffsetMs:     s.tracker.Offset(),
		Resolved:     s.tracker.Resolved(),
	}
	if u, ok := s.stream.Latest(); ok {
		st.Latest = &u
	}
	return st
}
