package pairing

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/arenanotify/go/internal/models"
	"github.com/mcdev12/arenanotify/go/internal/sqlutil"
)

// NotifyChannel is the Postgres channel announcing new or updated
// registrations. The payload is the channel id.
const NotifyChannel = "device_registrations"

//go:embed schema.sql
var schemaSQL string

const upsertRegistration = `
INSERT INTO device_registrations (channel_id, device_id, device_secret, metadata)
VALUES ($1, $2, $3, $4)
ON CONFLICT (channel_id, device_id) DO UPDATE
SET device_secret = EXCLUDED.device_secret,
    metadata      = COALESCE(EXCLUDED.metadata, device_registrations.metadata),
    updated_at    = now()
RETURNING metadata, registered_at, updated_at`

const getRegistration = `
SELECT channel_id, device_id, device_secret, metadata, registered_at, updated_at
FROM device_registrations
WHERE channel_id = $1 AND device_id = $2`

const channelExists = `SELECT EXISTS (SELECT 1 FROM device_registrations WHERE channel_id = $1)`

const listChannels = `SELECT DISTINCT channel_id FROM device_registrations`

// PostgresRepository stores registrations in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new registration repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the registrations table if needed.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Upsert writes reg and notifies listeners in the same transaction. Last
// writer wins for a (channel, device) pair; other devices are untouched.
func (r *PostgresRepository) Upsert(ctx context.Context, reg models.DeviceRegistration) (models.DeviceRegistration, error) {
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		var meta pqtype.NullRawMessage
		err := tx.QueryRow(ctx, upsertRegistration,
			reg.ChannelID,
			reg.DeviceID,
			reg.DeviceSecret,
			sqlutil.ToNullRawMessage(reg.Metadata),
		).Scan(&meta, &reg.RegisteredAt, &reg.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert registration: %w", err)
		}
		reg.Metadata = sqlutil.FromNullRawMessage(meta)

		if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, reg.ChannelID); err != nil {
			return fmt.Errorf("failed to notify registration: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.DeviceRegistration{}, err
	}
	return reg, nil
}

// Get returns one registration, or pgx.ErrNoRows wrapped when absent.
func (r *PostgresRepository) Get(ctx context.Context, channelID, deviceID string) (models.DeviceRegistration, error) {
	var (
		reg  models.DeviceRegistration
		meta pqtype.NullRawMessage
	)
	err := r.pool.QueryRow(ctx, getRegistration, channelID, deviceID).Scan(
		&reg.ChannelID, &reg.DeviceID, &reg.DeviceSecret, &meta, &reg.RegisteredAt, &reg.UpdatedAt,
	)
	if err != nil {
		return models.DeviceRegistration{}, fmt.Errorf("failed to get registration: %w", err)
	}
	reg.Metadata = sqlutil.FromNullRawMessage(meta)
	return reg, nil
}

// ChannelExists reports whether any device is paired to channelID.
func (r *PostgresRepository) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, channelExists, channelID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check channel: %w", err)
	}
	return exists, nil
}

// ListChannels returns every channel with at least one registration.
func (r *PostgresRepository) ListChannels(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listChannels)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan channels: %w", err)
	}
	return ids, nil
}

// IsNotFound reports whether err means the registration does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
