package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/arenanotify/go/internal/channel/backend"
	"github.com/mcdev12/arenanotify/go/internal/config"
	"github.com/mcdev12/arenanotify/go/internal/countdown"
	"github.com/mcdev12/arenanotify/go/internal/keepawake"
	"github.com/mcdev12/arenanotify/go/internal/listener"
)

func main() {
	config.LoadDotEnv()
	config.SetupLogging("arena-listener")

	channelID := config.GetEnv("PAIRING_ID", "")
	if channelID == "" {
		log.Fatal().Msg("PAIRING_ID environment variable is required")
	}

	settings, err := config.NewSettingsHolder(config.GetEnv("ALERT_SETTINGS_FILE", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load alert settings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backendCfg := backend.ConfigFromEnv()
	connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
	store, err := backend.Open(connectCtx, backendCfg)
	cancelConnect()
	if err != nil {
		log.Fatal().Err(err).Str("backend", backendCfg.Kind).Msg("failed to open channel backend")
	}
	defer store.Close()

	var bell io.Writer
	if config.GetEnvAsBool("ALERT_BELL", true) {
		bell = os.Stderr
	}

	inhibitor := keepawake.Detect()
	if inhibitor != nil {
		log.Info().Str("inhibitor", inhibitor.Name()).Msg("keep-awake inhibitor available")
	}

	cdCfg := countdown.DefaultConfig()
	cdCfg.HoldMargin = config.GetEnvAsDuration("HOLD_MARGIN", cdCfg.HoldMargin)

	svc := listener.New(listener.Config{
		ChannelID:      channelID,
		HTTPAddr:       config.GetEnv("LISTENER_ADDR", "127.0.0.1:8787"),
		ReconnectDelay: config.GetEnvAsDuration("RECONNECT_DELAY", 5*time.Second),
		Countdown:      cdCfg,
		Bell:           bell,
		Metrics:        true,
	}, store, settings, clockwork.NewRealClock(), inhibitor)

	log.Info().
		Str("channel_id", channelID).
		Str("backend", backendCfg.Kind).
		Msg("starting arena listener")

	if err := svc.Run(ctx); err != nil {
		log.Error().Err(err).Msg("listener stopped with error")
		os.Exit(1)
	}
}
