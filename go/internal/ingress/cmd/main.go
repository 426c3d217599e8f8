package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/arenanotify/go/internal/channel/backend"
	"github.com/mcdev12/arenanotify/go/internal/config"
	"github.com/mcdev12/arenanotify/go/internal/dbconfig"
	"github.com/mcdev12/arenanotify/go/internal/ingress"
	"github.com/mcdev12/arenanotify/go/internal/pairing"
)

func main() {
	config.LoadDotEnv()
	config.SetupLogging("arena-ingress")

	port := config.GetEnv("INGRESS_PORT", "8080")
	webhookSecret := []byte(config.GetEnv("WEBHOOK_SECRET", ""))
	masterSecret := []byte(config.GetEnv("DEVICE_MASTER_SECRET", ""))
	useDB := config.GetEnvAsBool("PAIRING_DB_ENABLED", false)
	scopeChannels := config.GetEnvAsBool("INGRESS_REQUIRE_PAIRED", false)
	beaconInterval := config.GetEnvAsDuration("CLOCK_BEACON_INTERVAL", 5*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	// Connect to the shared channel
	backendCfg := backend.ConfigFromEnv()
	connectCtx, cancelConnect := context.WithTimeout(ctx, 15*time.Second)
	store, err := backend.Open(connectCtx, backendCfg)
	cancelConnect()
	if err != nil {
		log.Fatal().Err(err).Str("backend", backendCfg.Kind).Msg("failed to open channel backend")
	}
	defer store.Close()

	g, gctx := errgroup.WithContext(ctx)

	// Registration store and channel directory are optional
	var (
		repo      pairing.Repository
		directory ingress.ChannelDirectory
	)
	if useDB {
		dbCfg := dbconfig.NewConfigFromEnv()
		poolCfg, err := dbCfg.PoolConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("invalid database configuration")
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}

		pgRepo := pairing.NewPostgresRepository(pool)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure registration schema")
		}
		repo = pgRepo
		log.Info().Str("database", dbCfg.Database).Msg("registration store ready")

		if scopeChannels {
			dirCfg := pairing.DefaultDirectoryConfig()
			dirCfg.DatabaseURL = dbCfg.DSN()
			dir, err := pairing.NewDirectory(pgRepo, dirCfg)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to start channel directory")
			}
			defer dir.Close()
			directory = dir
			g.Go(func() error { return dir.Run(gctx) })
		}
	} else if scopeChannels {
		log.Fatal().Msg("INGRESS_REQUIRE_PAIRED needs PAIRING_DB_ENABLED")
	}

	// Keep the server clock fresh for NATS consumers
	if store.NATS != nil {
		g.Go(func() error { return store.NATS.RunBeacon(gctx, clock, beaconInterval) })
	}

	ingressApp := ingress.NewApp(store, directory, clock, webhookSecret)
	ingressHandler := ingress.NewHandler(ingressApp, clock, ingress.PrometheusMetrics{})
	pairingHandler := pairing.NewHandler(pairing.NewApp(repo, masterSecret), pairing.PrometheusMetrics{})

	routerCfg := ingress.DefaultRouterConfig()
	routerCfg.RequestLimit = config.GetEnvAsInt("INGRESS_RATE_LIMIT", routerCfg.RequestLimit)

	server := ingress.NewServer(":"+port, ingress.NewRouter(ingressHandler, pairingHandler.Routes(), routerCfg))

	g.Go(func() error {
		log.Info().
			Str("addr", server.Addr).
			Str("backend", backendCfg.Kind).
			Str("secret_fp", ingressApp.SecretFingerprint()).
			Bool("pairing_db", useDB).
			Bool("require_paired", scopeChannels).
			Msg("ingress server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down ingress server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("ingress stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("ingress shutdown complete")
}
