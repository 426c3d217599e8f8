// Package backend selects and opens the shared channel implementation from
// the environment.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mcdev12/arenanotify/go/internal/channel"
	"github.com/mcdev12/arenanotify/go/internal/channel/natskv"
	"github.com/mcdev12/arenanotify/go/internal/channel/redisstore"
	"github.com/mcdev12/arenanotify/go/internal/config"
)

// Kinds of channel backend.
const (
	KindNATS  = "nats"
	KindRedis = "redis"
)

// Backend is a fully featured channel: writable, watchable and carrying a
// server clock.
type Backend interface {
	channel.Store
	channel.Watcher
	channel.ClockSource
}

// Config selects a backend and carries the settings of each.
type Config struct {
	Kind  string
	NATS  natskv.Config
	Redis redisstore.Config
}

// ConfigFromEnv reads CHANNEL_BACKEND, NATS_* and REDIS_* variables.
func ConfigFromEnv() Config {
	nc := natskv.DefaultConfig()
	nc.URL = config.GetEnv("NATS_URL", nc.URL)
	nc.Bucket = config.GetEnv("NATS_BUCKET", nc.Bucket)
	nc.Replicas = config.GetEnvAsInt("NATS_REPLICAS", nc.Replicas)

	rc := redisstore.DefaultConfig()
	rc.Addr = config.GetEnv("REDIS_ADDR", rc.Addr)
	rc.Password = config.GetEnv("REDIS_PASSWORD", "")
	rc.DB = config.GetEnvAsInt("REDIS_DB", 0)
	rc.Prefix = config.GetEnv("REDIS_PREFIX", rc.Prefix)
	rc.ClockInterval = config.GetEnvAsDuration("REDIS_CLOCK_INTERVAL", rc.ClockInterval)

	return Config{
		Kind:  strings.ToLower(config.GetEnv("CHANNEL_BACKEND", KindNATS)),
		NATS:  nc,
		Redis: rc,
	}
}

// Opened is an open backend plus the concrete NATS store when that is the
// selected kind (the ingress runs its clock beacon on it).
type Opened struct {
	Backend
	NATS  *natskv.Store
	close func()
}

// Close releases the connection.
func (o *Opened) Close() {
	if o.close != nil {
		o.close()
	}
}

// Open connects the configured backend.
func Open(ctx context.Context, cfg Config) (*Opened, error) {
	switch cfg.Kind {
	case KindNATS:
		s, err := natskv.Connect(ctx, cfg.NATS)
		if err != nil {
			return nil, err
		}
		return &Opened{Backend: s, NATS: s, close: s.Close}, nil
	case KindRedis:
		s, err := redisstore.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &Opened{Backend: s, close: func() { _ = s.Close() }}, nil
	default:
		return nil, fmt.Errorf("unknown channel backend %q", cfg.Kind)
	}
}

var errNoSample = errors.New("no server clock sample")

// Offset takes the first server clock sample from src and returns
// server minus local in milliseconds.
func Offset(ctx context.Context, src channel.ClockSource) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		got    channel.Sample
		gotAny bool
	)
	err := src.WatchServerTime(ctx, func(s channel.Sample) {
		if !gotAny {
			got, gotAny = s, true
			cancel()
		}
	})
	if !gotAny {
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			err = errNoSample
		}
		return 0, fmt.Errorf("sample server clock: %w", err)
	}
	return got.Offset().Milliseconds(), nil
}
