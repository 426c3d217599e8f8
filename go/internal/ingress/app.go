// Package ingress accepts signed producer events over HTTP and writes them
// to the shared channel.
package ingress

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/arenanotify/go/internal/channel"
	"github.com/mcdev12/arenanotify/go/internal/models"
)

// ChannelDirectory reports whether a channel has a paired device. It is only
// consulted when the App is scoped to paired channels.
type ChannelDirectory interface {
	Known(ctx context.Context, channelID string) (bool, error)
}

// App verifies, validates and stores webhook events.
type App struct {
	store     channel.Store
	directory ChannelDirectory
	clock     clockwork.Clock
	secret    []byte
	secretFP  string
}

// NewApp creates a new ingress App. directory may be nil to accept any
// channel. An empty secret is allowed; every request then fails with
// ErrMisconfigured.
func NewApp(store channel.Store, directory ChannelDirectory, clock clockwork.Clock, secret []byte) *App {
	a := &App{
		store:     store,
		directory: directory,
		clock:     clock,
		secret:    secret,
		secretFP:  Fingerprint(secret),
	}
	if len(secret) == 0 {
		log.Error().Msg("webhook secret is not configured, every event will be rejected")
	}
	return a
}

// SecretFingerprint identifies the configured secret in logs.
func (a *App) SecretFingerprint() string {
	return a.secretFP
}

// Accept verifies body against signature, validates it and overwrites the
// channel's current value. The body is verified exactly as received.
func (a *App) Accept(ctx context.Context, body []byte, signature string) (models.ArenaEvent, string, error) {
	if len(a.secret) == 0 {
		return models.ArenaEvent{}, "", ErrMisconfigured
	}
	if err := Verify(a.secret, body, signature); err != nil {
		return models.ArenaEvent{}, "", err
	}

	req, err := parseRequest(body)
	if err != nil {
		return models.ArenaEvent{}, "", err
	}
	if _, err := channel.Key(req.ChannelID); err != nil {
		return models.ArenaEvent{}, req.ChannelID, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if a.directory != nil {
		known, err := a.directory.Known(ctx, req.ChannelID)
		if err != nil {
			return models.ArenaEvent{}, req.ChannelID, fmt.Errorf("%w: directory lookup: %v", ErrStore, err)
		}
		if !known {
			return models.ArenaEvent{}, req.ChannelID, ErrUnknownChannel
		}
	}

	ev := a.buildEvent(req)
	if err := a.store.Put(ctx, req.ChannelID, ev); err != nil {
		if errors.Is(err, channel.ErrInvalidChannelID) {
			return ev, req.ChannelID, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return ev, req.ChannelID, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return ev, req.ChannelID, nil
}

func (a *App) buildEvent(req WebhookRequest) models.ArenaEvent {
	now := a.clock.Now().UnixMilli()
	ev := models.ArenaEvent{
		Type:          req.Kind.WireType(),
		EventID:       req.EventID,
		Duration:      req.Duration,
		DesktopOffset: req.ProducerOffset,
		ServerTS:      now,
	}
	if req.Kind == models.EventKindStart {
		endsAt := now + req.Duration*1000
		ev.EndsAt = &endsAt
	}
	return ev
}
