// Package main is the entry point for the coaching session API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oremus-labs/ol-cvi-coach/config"
	"github.com/oremus-labs/ol-cvi-coach/internal/api"
	"github.com/oremus-labs/ol-cvi-coach/internal/events"
	"github.com/oremus-labs/ol-cvi-coach/internal/feedback"
	"github.com/oremus-labs/ol-cvi-coach/internal/graphqlapi"
	"github.com/oremus-labs/ol-cvi-coach/internal/handlers"
	"github.com/oremus-labs/ol-cvi-coach/internal/logutil"
	"github.com/oremus-labs/ol-cvi-coach/internal/notify"
	"github.com/oremus-labs/ol-cvi-coach/internal/persona"
	"github.com/oremus-labs/ol-cvi-coach/internal/redisx"
	"github.com/oremus-labs/ol-cvi-coach/internal/session"
	"github.com/oremus-labs/ol-cvi-coach/internal/store"
	"github.com/oremus-labs/ol-cvi-coach/internal/tavus"
	"github.com/rs/zerolog/log"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	config.LoadEnvFile(envFile)

	cfg := config.Load()
	logutil.Setup(cfg.LogLevel, cfg.LogFormat)
	logger := logutil.Component("server")
	logger.Info().Str("version", version).Msg("starting cvi coach")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	scenarios := persona.NewCatalog(cfg.ScenariosPath)
	if err := scenarios.Load(); err != nil {
		log.Fatal().Err(err).Msg("failed to load scenarios")
	}
	logger.Info().Int("scenarios", scenarios.Count()).Msg("scenario catalog loaded")

	if cfg.TavusAPIKey == "" {
		logger.Warn().Msg("TAVUS_API_KEY not set; calls cannot be started")
	}
	provider := tavus.New(cfg.TavusBaseURL, cfg.TavusAPIKey, logutil.Component("tavus"))

	var (
		stateStore *store.Store
		records    session.Records
	)
	if s, err := store.Open(cfg.DataStoreDSN, cfg.DataStoreDriver); err != nil {
		logger.Error().Err(err).Msg("state store unavailable; persona reuse and history disabled")
	} else {
		stateStore = s
		records = s
		defer stateStore.Close()
	}

	redisClient, err := redisx.NewClient(redisx.Config{
		Addr:        cfg.RedisAddr,
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		TLSEnabled:  cfg.RedisTLSEnabled,
		TLSInsecure: cfg.RedisTLSInsecure,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewBus(events.Options{
		Client:  redisClient,
		Logger:  logutil.Component("events"),
		Channel: cfg.EventsChannel,
	})
	defer bus.Close()

	var (
		sessions session.Store
		sweeper  session.Sweeper
	)
	if redisClient != nil {
		sessions = session.NewRedisStore(redisClient, cfg.SessionTTL)
		logger.Info().Msg("sessions stored in redis")
	} else {
		memStore := session.NewMemoryStore(cfg.SessionTTL)
		sessions = memStore
		sweeper = memStore
	}

	var analyzer feedback.Analyzer
	if cfg.GeminiAPIKey != "" {
		a, err := feedback.NewGeminiAnalyzer(rootCtx, cfg.GeminiAPIKey, cfg.FeedbackModel, logutil.Component("feedback"))
		if err != nil {
			logger.Error().Err(err).Msg("feedback analyzer disabled")
		} else {
			analyzer = a
		}
	} else {
		logger.Warn().Msg("GEMINI_API_KEY not set; feedback disabled")
	}

	svc := session.NewService(session.Options{
		Store:     sessions,
		Scenarios: scenarios,
		Provider:  provider,
		Records:   records,
		Notifier:  notify.New(cfg.DownstreamURL, nil),
		Analyzer:  analyzer,
		Events:    bus,
		ReplicaID: cfg.TavusReplicaID,
		Logger:    logutil.Component("session"),
	})

	var h *handlers.Handler
	opts := handlers.Options{
		HistoryLimit: 100,
		Version:      version,
		Logger:       logutil.Component("handlers"),
	}
	if stateStore != nil {
		h = handlers.New(svc, scenarios, stateStore, bus, opts)
	} else {
		h = handlers.New(svc, scenarios, nil, bus, opts)
	}

	startAutomation(rootCtx, automationOptions{
		Store:      stateStore,
		Sessions:   sweeper,
		Interval:   cfg.AutomationInterval,
		HistoryTTL: cfg.HistoryTTL,
	})

	gqlConfig := graphqlapi.Config{Scenarios: scenarios, Sessions: svc}
	if stateStore != nil {
		gqlConfig.Records = stateStore
	}
	gqlHandler, err := graphqlapi.NewHandler(gqlConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build graphql schema")
	}

	server := api.NewServer(h, api.Options{
		APIToken:       cfg.APIToken,
		GraphQLHandler: gqlHandler,
		Logger:         logutil.Component("http"),
	})
	srv := server.Start(":" + cfg.ServerPort)
	logger.Info().Str("port", cfg.ServerPort).Msg("server listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	rootCancel()
	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server stopped")
}
