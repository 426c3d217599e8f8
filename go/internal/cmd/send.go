package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/arenanotify/go/internal/channel/backend"
	"github.com/mcdev12/arenanotify/go/internal/models"
)

type sendOptions struct {
	channelID string
	duration  int64
	eventID   string
	syncClock bool
}

func newSendCmd(root *rootOptions) *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send start|stop|probe",
		Short: "Sign and send an arena event to the ingress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := models.ParseEventKind(args[0])
			if !ok {
				return fmt.Errorf("unknown event %q", args[0])
			}
			if root.secret == "" {
				return errors.New("a webhook secret is required (--secret or WEBHOOK_SECRET)")
			}

			payload := map[string]any{
				"pairing_id": opts.channelID,
				"event":      kind.WireType(),
			}
			if kind == models.EventKindStart {
				if opts.duration < 0 {
					return errors.New("--duration must not be negative")
				}
				payload["duration"] = opts.duration
				if opts.eventID == "" {
					opts.eventID = uuid.NewString()
				}
				payload["eventId"] = opts.eventID

				if opts.syncClock {
					offset, err := producerOffset(cmd.Context())
					if err != nil {
						log.Warn().Err(err).Msg("clock sync failed, sending without producer offset")
					} else {
						payload["desktopOffset"] = offset
					}
				}
			}

			body, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("encode payload: %w", err)
			}
			if _, err := post(cmd.Context(), root, "/", body, root.secret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s to %s\n", kind.WireType(), opts.channelID)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.channelID, "pairing-id", "", "target channel id")
	cmd.Flags().Int64Var(&opts.duration, "duration", 30, "seconds until the arena opens (start only)")
	cmd.Flags().StringVar(&opts.eventID, "event-id", "", "event id (random when empty)")
	cmd.Flags().BoolVar(&opts.syncClock, "sync-clock", false, "sample the channel store clock and send the producer offset")
	_ = cmd.MarkFlagRequired("pairing-id")
	return cmd
}

// producerOffset samples the channel store's clock the same way consumers
// do, so the listener can reconcile the two offsets.
func producerOffset(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	store, err := backend.Open(ctx, backend.ConfigFromEnv())
	if err != nil {
		return 0, err
	}
	defer store.Close()

	return backend.Offset(ctx, store)
}
