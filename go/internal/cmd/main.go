// Command arenactl is the producer-side operator tool: it signs and sends
// arena events to the ingress, pairs devices and checks liveness.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/arenanotify/go/internal/config"
)

type rootOptions struct {
	url     string
	secret  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "arenactl",
		Short:         "Send and inspect arena events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.url, "url", config.GetEnv("INGRESS_URL", "http://localhost:8080"), "ingress base URL")
	root.PersistentFlags().StringVar(&opts.secret, "secret", config.GetEnv("WEBHOOK_SECRET", ""), "webhook signing secret")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "HTTP timeout")

	root.AddCommand(
		newSendCmd(opts),
		newPairCmd(opts),
		newSignCmd(opts),
		newPingCmd(opts),
	)
	return root
}

func main() {
	config.LoadDotEnv()
	config.SetupLogging("arenactl")

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("arenactl failed")
		os.Exit(1)
	}
}
