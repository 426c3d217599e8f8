package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mcdev12/arenanotify/go/internal/ingress"
)

func newSignCmd(root *rootOptions) *cobra.Command {
	var fingerprint bool

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the X-Signature for a body read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.secret == "" {
				return errors.New("a webhook secret is required (--secret or WEBHOOK_SECRET)")
			}
			if fingerprint {
				fmt.Fprintln(cmd.OutOrStdout(), ingress.Fingerprint([]byte(root.secret)))
				return nil
			}

			body, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ingress.Sign([]byte(root.secret), body))
			return nil
		},
	}
	cmd.Flags().BoolVar(&fingerprint, "fingerprint", false, "print the secret fingerprint logged by the ingress instead")
	return cmd
}
