// Package pairing issues device credentials bound to a producer channel and
// records the registrations.
package pairing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/arenanotify/go/internal/channel"
	"github.com/mcdev12/arenanotify/go/internal/models"
)

// Repository defines what the app layer needs from the registration store.
type Repository interface {
	Upsert(ctx context.Context, reg models.DeviceRegistration) (models.DeviceRegistration, error)
}

// App handles pairing business logic.
type App struct {
	repo   Repository
	master []byte
}

// NewApp creates a new pairing App. repo may be nil, in which case secrets
// are issued without being recorded.
func NewApp(repo Repository, master []byte) *App {
	if len(master) == 0 {
		log.Error().Msg("master secret is not configured, pairing will be rejected")
	}
	return &App{repo: repo, master: master}
}

// PairDevice derives the device secret and upserts the registration.
func (a *App) PairDevice(ctx context.Context, req PairRequest) (models.DeviceRegistration, error) {
	req.ChannelID = strings.TrimSpace(req.ChannelID)
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if err := validatePairRequest(req); err != nil {
		return models.DeviceRegistration{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(a.master) == 0 {
		return models.DeviceRegistration{}, ErrMisconfigured
	}

	reg := models.DeviceRegistration{
		ChannelID:    req.ChannelID,
		DeviceID:     req.DeviceID,
		DeviceSecret: DeriveSecret(a.master, req.ChannelID, req.DeviceID),
	}
	if req.FCMToken != "" || req.UserAgent != "" {
		meta, err := json.Marshal(registrationMetadata{FCMToken: req.FCMToken, UserAgent: req.UserAgent})
		if err != nil {
			return models.DeviceRegistration{}, fmt.Errorf("marshal metadata: %w", err)
		}
		reg.Metadata = meta
	}

	if a.repo == nil {
		log.Debug().Str("channel_id", reg.ChannelID).Msg("no registration store, secret issued without recording")
		return reg, nil
	}

	saved, err := a.repo.Upsert(ctx, reg)
	if err != nil {
		return models.DeviceRegistration{}, fmt.Errorf("%w: %v", ErrStore, err)
	}

	log.Info().
		Str("channel_id", saved.ChannelID).
		Str("device_id", saved.DeviceID).
		Bool("has_push_token", req.FCMToken != "").
		Msg("device paired")
	return saved, nil
}

func validatePairRequest(req PairRequest) error {
	if req.ChannelID == "" {
		return fmt.Errorf("pid is required")
	}
	if req.DeviceID == "" {
		return fmt.Errorf("deviceId is required")
	}
	if _, err := channel.Key(req.ChannelID); err != nil {
		return err
	}
	if len(req.DeviceID) > 256 {
		return fmt.Errorf("deviceId is too long")
	}
	return nil
}
