// Package natskv backs the shared channel with a JetStream key-value bucket.
// One key per channel holds the current event (history 1, last value wins),
// and a reserved clock key is rewritten by the ingress beacon so consumers
// can read the NATS server's clock from each entry's creation time.
package natskv

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arenanotify/go/internal/channel"
	"github.com/mcdev12/arenanotify/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Config holds the NATS connection and bucket settings.
type Config struct {
	URL           string
	Bucket        string
	ClockKey      string
	Replicas      int
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the default bucket layout.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Bucket:        "arena_events",
		ClockKey:      "_clock",
		Replicas:      1,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Store implements channel.Store, channel.Watcher and channel.ClockSource.
type Store struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	kv  jetstream.KeyValue
	cfg Config
}

// Connect dials NATS and creates or updates the bucket.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	opts := []nats.Option{
		nats.Name("arenanotify"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Current arena event per channel",
		History:     1,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure key-value bucket: %w", err)
	}

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("url", nc.ConnectedUrl()).
		Msg("connected to JetStream key-value bucket")

	return &Store{nc: nc, js: js, kv: kv, cfg: cfg}, nil
}

// Put overwrites the channel's current value.
func (s *Store) Put(ctx context.Context, channelID string, ev models.ArenaEvent) error {
	key, err := channel.Key(channelID)
	if err != nil {
		return err
	}
	data, err := channel.Encode(ev)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Watch delivers the current value and every later overwrite of channelID.
// A connection drop or a closed watcher ends the watch with
// channel.ErrSubscriptionLost.
func (s *Store) Watch(ctx context.Context, channelID string, ready func(), fn func(data []byte)) error {
	key, err := channel.Key(channelID)
	if err != nil {
		return err
	}

	status := s.nc.StatusChanged(nats.DISCONNECTED, nats.CLOSED)
	defer s.nc.RemoveStatusListener(status)

	w, err := s.kv.Watch(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: watch %s: %v", channel.ErrSubscriptionLost, key, err)
	}
	defer func() {
		if err := w.Stop(); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("stopping key watcher")
		}
	}()
	if ready != nil {
		ready()
	}

	return s.consume(ctx, w, status, func(entry jetstream.KeyValueEntry) {
		fn(entry.Value())
	})
}

// WatchServerTime emits one sample per beacon write. Entry creation times are
// stamped by the NATS server, which makes them the authoritative clock.
func (s *Store) WatchServerTime(ctx context.Context, fn func(channel.Sample)) error {
	status := s.nc.StatusChanged(nats.DISCONNECTED, nats.CLOSED)
	defer s.nc.RemoveStatusListener(status)

	// Only fresh writes carry a usable creation time.
	w, err := s.kv.Watch(ctx, s.cfg.ClockKey, jetstream.UpdatesOnly())
	if err != nil {
		return fmt.Errorf("%w: watch clock: %v", channel.ErrSubscriptionLost, err)
	}
	defer func() { _ = w.Stop() }()

	return s.consume(ctx, w, status, func(entry jetstream.KeyValueEntry) {
		fn(channel.Sample{Server: entry.Created(), Local: time.Now()})
	})
}

func (s *Store) consume(ctx context.Context, w jetstream.KeyWatcher, status chan nats.Status, fn func(jetstream.KeyValueEntry)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-status:
			return fmt.Errorf("%w: connection %s", channel.ErrSubscriptionLost, st)
		case entry, ok := <-w.Updates():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: watcher closed", channel.ErrSubscriptionLost)
			}
			// nil marks the end of the initial values
			if entry == nil {
				continue
			}
			if entry.Operation() != jetstream.KeyValuePut {
				continue
			}
			fn(entry)
		}
	}
}

// Beat rewrites the clock key once.
func (s *Store) Beat(ctx context.Context, now time.Time) error {
	if _, err := s.kv.Put(ctx, s.cfg.ClockKey, []byte(strconv.FormatInt(now.UnixMilli(), 10))); err != nil {
		return fmt.Errorf("clock beat: %w", err)
	}
	return nil
}

// RunBeacon beats every interval until ctx is done. Failed beats are logged
// and retried on the next tick.
func (s *Store) RunBeacon(ctx context.Context, clock clockwork.Clock, interval time.Duration) error {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Str("key", s.cfg.ClockKey).Msg("clock beacon started")
	for {
		if err := s.Beat(ctx, clock.Now()); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("clock beat failed")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("clock beacon stopped")
			return nil
		case <-ticker.Chan():
		}
	}
}

// Connected reports whether the NATS connection is up.
func (s *Store) Connected() bool {
	return s.nc.IsConnected()
}

// Close drains nothing and closes the connection.
func (s *Store) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
