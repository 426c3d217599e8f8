package pairing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ChannelLister is what the directory needs from the registration store.
type ChannelLister interface {
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	ListChannels(ctx context.Context) ([]string, error)
}

// DirectoryConfig configures the LISTEN connection.
type DirectoryConfig struct {
	DatabaseURL     string
	RefreshInterval time.Duration
	PingInterval    time.Duration
}

// DefaultDirectoryConfig returns the default intervals.
func DefaultDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		RefreshInterval: 5 * time.Minute,
		PingInterval:    90 * time.Second,
	}
}

// Directory caches which channels have paired devices. Registrations are
// pushed in over LISTEN/NOTIFY; a periodic refresh covers anything missed
// while the connection was down.
type Directory struct {
	repo     ChannelLister
	listener *pq.Listener
	notify   <-chan *pq.Notification
	ping     func() error
	cfg      DirectoryConfig

	mu    sync.RWMutex
	known map[string]struct{}
}

// NewDirectory opens a LISTEN connection on NotifyChannel.
func NewDirectory(repo ChannelLister, cfg DirectoryConfig) (*Directory, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("registration listener event")
			}
		},
	)
	if err := l.Listen(NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().Str("channel", NotifyChannel).Msg("listening for registrations")

	d := newDirectory(repo, l.Notify, cfg)
	d.listener = l
	d.ping = l.Ping
	return d, nil
}

func newDirectory(repo ChannelLister, notify <-chan *pq.Notification, cfg DirectoryConfig) *Directory {
	return &Directory{
		repo:   repo,
		notify: notify,
		ping:   func() error { return nil },
		cfg:    cfg,
		known:  make(map[string]struct{}),
	}
}

// Known reports whether channelID has a paired device. Cache misses fall
// through to the store so a registration is honoured before its
// notification arrives.
func (d *Directory) Known(ctx context.Context, channelID string) (bool, error) {
	d.mu.RLock()
	_, ok := d.known[channelID]
	d.mu.RUnlock()
	if ok {
		return true, nil
	}

	exists, err := d.repo.ChannelExists(ctx, channelID)
	if err != nil {
		return false, err
	}
	if exists {
		d.add(channelID)
	}
	return exists, nil
}

func (d *Directory) add(channelID string) {
	d.mu.Lock()
	d.known[channelID] = struct{}{}
	d.mu.Unlock()
}

// Refresh reloads the full channel set.
func (d *Directory) Refresh(ctx context.Context) error {
	ids, err := d.repo.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh directory: %w", err)
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}

	d.mu.Lock()
	d.known = known
	d.mu.Unlock()

	log.Debug().Int("channels", len(ids)).Msg("channel directory refreshed")
	return nil
}

// Run keeps the cache current until ctx is done.
func (d *Directory) Run(ctx context.Context) error {
	if err := d.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("initial directory load failed")
	}

	refreshTicker := time.NewTicker(d.cfg.RefreshInterval)
	pingTicker := time.NewTicker(d.cfg.PingInterval)
	defer refreshTicker.Stop()
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("channel directory shutting down")
			return d.Close()
		case note := <-d.notify:
			if note == nil {
				// connection was re-established; anything may have been missed
				if err := d.Refresh(ctx); err != nil {
					log.Error().Err(err).Msg("directory refresh after reconnect failed")
				}
				continue
			}
			d.add(note.Extra)
			log.Debug().Str("channel_id", note.Extra).Msg("channel registered")
		case <-refreshTicker.C:
			if err := d.Refresh(ctx); err != nil {
				log.Error().Err(err).Msg("directory refresh failed")
			}
		case <-pingTicker.C:
			if err := d.ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping registration listener")
			}
		}
	}
}

// Close closes the LISTEN connection.
func (d *Directory) Close() error {
	if d.listener == nil {
		return nil
	}
	return d.listener.Close()
}
