package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcdev12/arenanotify/go/internal/pairing"
)

func newPairCmd(root *rootOptions) *cobra.Command {
	var req pairing.PairRequest

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Register a device and print its credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(req)
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}
			resp, err := post(cmd.Context(), root, "/pairDevice", body, "")
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp.Body)
		},
	}

	cmd.Flags().StringVar(&req.ChannelID, "pairing-id", "", "channel id to pair with")
	cmd.Flags().StringVar(&req.DeviceID, "device-id", "", "device id")
	cmd.Flags().StringVar(&req.FCMToken, "fcm-token", "", "optional push token")
	_ = cmd.MarkFlagRequired("pairing-id")
	_ = cmd.MarkFlagRequired("device-id")
	return cmd
}
