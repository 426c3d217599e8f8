package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPingCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the ingress is up and compare its clock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sent := time.Now()
			resp, err := get(cmd.Context(), root, "/ping")
			if err != nil {
				return err
			}
			rtt := time.Since(sent)

			ts, _ := resp.Body["ts"].(float64)
			mid := sent.Add(rtt / 2).UnixMilli()
			fmt.Fprintf(cmd.OutOrStdout(), "ok rtt=%s skew=%dms\n", rtt.Round(time.Millisecond), int64(ts)-mid)
			return nil
		},
	}
}
