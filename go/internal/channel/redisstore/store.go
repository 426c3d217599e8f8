// Package redisstore backs the shared channel with Redis. The current value
// of each channel lives in a plain key and every overwrite is also published
// on a pub/sub channel of the same name, so watchers see whole objects in
// write order.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arenanotify/go/internal/channel"
	"github.com/mcdev12/arenanotify/go/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Config holds the Redis connection and key layout.
type Config struct {
	Addr          string
	Password      string
	DB            int
	Prefix        string
	ClockInterval time.Duration
}

// DefaultConfig returns a local Redis with the default key prefix.
func DefaultConfig() Config {
	return Config{
		Addr:          "localhost:6379",
		Prefix:        "arena_events",
		ClockInterval: 10 * time.Second,
	}
}

// Store implements channel.Store, channel.Watcher and channel.ClockSource.
type Store struct {
	client *redis.Client
	cfg    Config
	clock  clockwork.Clock
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info().Str("addr", cfg.Addr).Str("prefix", cfg.Prefix).Msg("connected to redis channel store")
	return New(client, cfg, clockwork.NewRealClock()), nil
}

// New wraps an existing client.
func New(client *redis.Client, cfg Config, clock clockwork.Clock) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultConfig().Prefix
	}
	if cfg.ClockInterval <= 0 {
		cfg.ClockInterval = DefaultConfig().ClockInterval
	}
	return &Store{client: client, cfg: cfg, clock: clock}
}

func (s *Store) topic(key string) string {
	return s.cfg.Prefix + ":" + key
}

func (s *Store) currentKey(key string) string {
	return s.cfg.Prefix + ":" + key + ":current"
}

// Put overwrites the current value and publishes it in one transaction.
func (s *Store) Put(ctx context.Context, channelID string, ev models.ArenaEvent) error {
	key, err := channel.Key(channelID)
	if err != nil {
		return err
	}
	data, err := channel.Encode(ev)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.currentKey(key), data, 0)
		pipe.Publish(ctx, s.topic(key), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Current returns the channel's current value, or nil when nothing has been
// written yet.
func (s *Store) Current(ctx context.Context, channelID string) ([]byte, error) {
	key, err := channel.Key(channelID)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.currentKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// Watch subscribes first and reads the current value second, so a write
// racing the attach is delivered at least once.
func (s *Store) Watch(ctx context.Context, channelID string, ready func(), fn func(data []byte)) error {
	key, err := channel.Key(channelID)
	if err != nil {
		return err
	}

	ps := s.client.Subscribe(ctx, s.topic(key))
	defer ps.Close()
	// ReceiveMessage does not observe ctx while blocked on the socket.
	stop := context.AfterFunc(ctx, func() { _ = ps.Close() })
	defer stop()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: subscribe %s: %v", channel.ErrSubscriptionLost, key, err)
	}
	if ready != nil {
		ready()
	}

	current, err := s.Current(ctx, channelID)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: %v", channel.ErrSubscriptionLost, err)
	}
	if current != nil {
		fn(current)
	}

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: receive %s: %v", channel.ErrSubscriptionLost, key, err)
		}
		fn([]byte(msg.Payload))
	}
}

// ServerTime samples the Redis clock. The local reading is the midpoint of
// the round trip.
func (s *Store) ServerTime(ctx context.Context) (channel.Sample, error) {
	before := s.clock.Now()
	server, err := s.client.Time(ctx).Result()
	if err != nil {
		return channel.Sample{}, fmt.Errorf("redis time: %w", err)
	}
	after := s.clock.Now()
	return channel.Sample{Server: server, Local: before.Add(after.Sub(before) / 2)}, nil
}

// WatchServerTime samples immediately and then every ClockInterval.
func (s *Store) WatchServerTime(ctx context.Context, fn func(channel.Sample)) error {
	ticker := s.clock.NewTicker(s.cfg.ClockInterval)
	defer ticker.Stop()

	for {
		sample, err := s.ServerTime(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", channel.ErrSubscriptionLost, err)
		}
		fn(sample)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
