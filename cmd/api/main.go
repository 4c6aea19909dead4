// Package main provides the entrypoint for the CongestionAI API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/congestionai/congestionai/internal/api"
	"github.com/congestionai/congestionai/internal/api/middleware"
	"github.com/congestionai/congestionai/internal/app"
	"github.com/congestionai/congestionai/internal/auth"
	"github.com/congestionai/congestionai/internal/config"
	"github.com/congestionai/congestionai/internal/routing"
	"github.com/congestionai/congestionai/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const devSigningKey = "local-dev-signing-key-change-in-production"

func main() {
	const serviceName = "congestionai-api"

	// Setup structured logging
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

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting CongestionAI API")

	// Initialize OpenTelemetry
	ctx := context.Background()
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.Endpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	var providerMetrics routing.MetricsRecorder
	if pm, pmErr := middleware.NewProviderMetrics(); pmErr != nil {
		log.Warn().Err(pmErr).Msg("provider metrics disabled")
	} else {
		providerMetrics = pm
	}

	stack, err := app.Build(ctx, cfg, log, providerMetrics)
	if err != nil {
		log.Error().Err(err).Msg("failed to build departure planner")
		os.Exit(1)
	}
	defer stack.Close()

	signingKey := cfg.Auth.SigningKey
	if signingKey == "" {
		if cfg.IsProduction() {
			log.Error().Msg("JWT_SIGNING_KEY is required in production")
			os.Exit(1)
		}
		signingKey = devSigningKey
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: signingKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	})

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		Planner:            stack.Planner,
		Vehicle:            cfg.Vehicle,
		History:            stack.History,
		Tokens:             jwtService,
		Registry:           stack.Registry,
		ReadinessChecks:    stack.Checks,
		CORSOrigins:        corsOrigins(cfg.Server.CORSOrigins),
		RequireTLS:         cfg.IsProduction(),
		DepartureRateLimit: cfg.Server.RateLimitPerMinute,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// corsOrigins maps the "*" wildcard to the middleware's any-origin mode.
func corsOrigins(origins []string) []string {
	for _, o := range origins {
		if o == "*" {
			return nil
		}
	}
	return origins
}
