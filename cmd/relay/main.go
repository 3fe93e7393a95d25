// Package main runs the Tavus webhook relay.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oremus-labs/ol-cvi-coach/config"
	"github.com/oremus-labs/ol-cvi-coach/internal/logutil"
	"github.com/oremus-labs/ol-cvi-coach/internal/notify"
	"github.com/oremus-labs/ol-cvi-coach/internal/relay"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	config.LoadEnvFile(envFile)

	cfg := config.Load()
	logutil.Setup(cfg.LogLevel, cfg.LogFormat)
	logger := logutil.Component("relay")

	r := relay.New(relay.Options{
		Route:      cfg.RelayRoute,
		Downstream: notify.New(cfg.DownstreamURL, nil),
		Logger:     logger,
	})

	srv := r.Server(":" + cfg.RelayPort)
	go func() {
		logger.Info().Str("port", cfg.RelayPort).Str("route", r.Route()).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start relay")
		}
	}()

	var metricsSrv *http.Server
	if cfg.RelayMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.RelayMetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info().Str("addr", cfg.RelayMetricsAddr).Msg("metrics listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down relay")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("relay forced to shutdown")
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(ctx)
	}
	logger.Info().Msg("relay stopped")
}
