package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/eight-presence/db"
	"github.com/thatsimonsguy/eight-presence/internal/api"
	"github.com/thatsimonsguy/eight-presence/internal/config"
	"github.com/thatsimonsguy/eight-presence/internal/datadog"
	"github.com/thatsimonsguy/eight-presence/internal/eight"
	"github.com/thatsimonsguy/eight-presence/internal/env"
	"github.com/thatsimonsguy/eight-presence/internal/logging"
	"github.com/thatsimonsguy/eight-presence/internal/mqtt"
	"github.com/thatsimonsguy/eight-presence/internal/notifications"
	"github.com/thatsimonsguy/eight-presence/internal/session"
	"github.com/thatsimonsguy/eight-presence/internal/store"
	"github.com/thatsimonsguy/eight-presence/system/shutdown"
	"github.com/thatsimonsguy/eight-presence/system/startup"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)
	env.Cfg = &cfg

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("db_path", cfg.DBPath).
		Dur("poll_interval", cfg.PollInterval()).
		Msg("Starting eight-presence")

	datadog.InitMetrics()
	shutdown.Register("datadog", func() error {
		datadog.Close()
		return nil
	})
	notifications.Init()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	shutdown.Register("database", database.Close)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := eight.NewClient(eight.Config{
		BaseURL:       cfg.APIBaseURL,
		Email:         cfg.Email,
		Password:      cfg.Password,
		Timeout:       cfg.RequestTimeout(),
		RefreshMargin: cfg.TokenRefreshMargin(),
	})

	tracker, device, err := startup.Bootstrap(ctx, client, cfg.Partner, cfg.Thresholds)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up the device")
	}

	var publisher mqtt.Publisher
	if cfg.MQTTBroker != "" {
		rp, err := mqtt.NewRealPublisher(mqtt.Config{
			Broker:      cfg.MQTTBroker,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		})
		if err != nil {
			log.Warn().Err(err).Str("broker", cfg.MQTTBroker).Msg("MQTT unavailable, presence changes will not be published")
		} else {
			publisher = rp
			shutdown.Register("mqtt", rp.Close)
		}
	}

	var stateStore *store.Store
	if cfg.StateFile != "" {
		stateStore = store.New(cfg.StateFile)
	}

	sess := session.New(session.Deps{
		Fetcher:   client,
		Tracker:   tracker,
		DB:        database,
		Publisher: publisher,
		Store:     stateStore,
	}, session.Config{
		PollInterval:      cfg.PollInterval(),
		OutageThreshold:   cfg.OutageThreshold,
		SnapshotRetention: cfg.SnapshotRetention,
	})

	log.Info().
		Str("session_id", sess.ID()).
		Str("device_id", device.ID).
		Int("sides", len(tracker.Sides())).
		Msg("Session ready")
	sess.Start(ctx)

	if cfg.APIPort > 0 {
		server := api.NewServer(database, sess, client, &cfg)
		go func() {
			if err := server.Start(ctx, cfg.APIPort); err != nil {
				shutdown.ShutdownWithError(err, "API server failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("Stopping eight-presence")
	<-sess.Done()
	shutdown.Shutdown()
}
