// Package main provides the entrypoint for the CongestionAI forecast worker.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/congestionai/congestionai/internal/api/handler"
	"github.com/congestionai/congestionai/internal/api/middleware"
	"github.com/congestionai/congestionai/internal/api/response"
	"github.com/congestionai/congestionai/internal/app"
	"github.com/congestionai/congestionai/internal/config"
	"github.com/congestionai/congestionai/internal/routing"
	"github.com/congestionai/congestionai/internal/telemetry"
	"github.com/congestionai/congestionai/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "congestionai-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}
	if cfg.PubSub.ProjectID == "" {
		log.Fatal().Msg("PUBSUB_PROJECT_ID is required")
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("subscription", cfg.PubSub.Subscription).
		Msg("starting CongestionAI worker")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.Endpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Logger:         log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	var providerMetrics routing.MetricsRecorder
	if pm, pmErr := middleware.NewProviderMetrics(); pmErr != nil {
		log.Warn().Err(pmErr).Msg("provider metrics disabled")
	} else {
		providerMetrics = pm
	}

	stack, err := app.Build(ctx, cfg, log, providerMetrics)
	if err != nil {
		log.Error().Err(err).Msg("failed to build departure planner")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	defer stack.Close()

	runner := worker.NewBatchRunner(worker.BatchRunnerConfig{
		Config: worker.BatchConfig{
			Concurrency: cfg.Worker.Concurrency,
			Timeout:     cfg.Worker.JobTimeout,
		},
		Planner:  stack.Planner,
		Recorder: stack.History,
		Logger:   log,
	})

	subscriber, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        cfg.PubSub.ProjectID,
		SubscriptionName: cfg.PubSub.Subscription,
		Runner:           runner,
		Logger:           log,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create pubsub handler")
		os.Exit(1)
	}
	defer func() {
		if closeErr := subscriber.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close pubsub client")
		}
	}()

	// Worker also exposes health endpoints for Cloud Run
	ops := handler.NewOpsHandler(Version, BuildTime, stack.Registry, stack.Checks)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.ContentTypeJSON)
	r.Route("/v1/ops", func(r chi.Router) {
		r.Get("/health", ops.HealthCheck)
		r.Get("/ready", ops.ReadinessCheck)
		r.Get("/status", ops.SystemStatus)
		r.Get("/batches", func(w http.ResponseWriter, r *http.Request) {
			response.JSON(w, r, http.StatusOK, runner.MetricsSnapshot())
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Receive until a signal arrives or the subscription fails.
	done := make(chan error, 1)
	go func() {
		done <- subscriber.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("shutting down worker")
		cancel()
		if err := <-done; err != nil {
			log.Error().Err(err).Msg("pubsub receive stopped with error")
		}
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("pubsub receive failed")
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
