package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cpp-snippet-runner/internal/api"
	"cpp-snippet-runner/internal/config"
	"cpp-snippet-runner/internal/monitor"
	"cpp-snippet-runner/internal/pipeline"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// .env for local development; ignored when absent
	_ = godotenv.Load()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("invalid config")
		}
	}

	// Initialize metrics
	metrics := monitor.NewMetrics()

	// Build the pipeline. Startup continues without one so health and
	// metrics stay reachable for debugging; runs fail with 503 until a
	// compiler is installed.
	var exec api.Executor
	pl, err := pipeline.New(cfg.Pipeline, metrics)
	if err != nil {
		log.Warn().Err(err).Msg("pipeline unavailable (runs will fail)")
	} else {
		exec = pl
	}

	// Create and start HTTP server
	server := api.NewServer(cfg, exec, metrics)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		if pl != nil {
			if err := pl.Close(); err != nil {
				log.Error().Err(err).Msg("pipeline close error")
			}
		}
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Str("scratch_dir", cfg.Pipeline.ScratchDir).
		Bool("pipeline_available", pl != nil).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}
