// Package api provides the HTTP API for CongestionAI.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/congestionai/congestionai/internal/api/handler"
	"github.com/congestionai/congestionai/internal/api/middleware"
	"github.com/congestionai/congestionai/internal/forecast"
	"github.com/congestionai/congestionai/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Planner handler.Planner
	// Vehicle holds the savings defaults for /v1/savings:estimate.
	Vehicle forecast.Vehicle
	History handler.HistoryService
	Tokens  middleware.TokenValidator

	Registry        *resilience.Registry
	ReadinessChecks []handler.ReadinessCheck

	CORSOrigins []string
	RequireTLS  bool

	// DepartureRateLimit is the per-IP budget for analyze and forecast.
	// Zero uses middleware.DepartureRateLimit.
	DepartureRateLimit int
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "congestionai-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))    // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))  // Panic recovery
	r.Use(chimiddleware.RealIP)             // Real IP extraction
	r.Use(middleware.CORS(cfg.CORSOrigins)) // Browser clients
	r.Use(middleware.SecurityHeaders)       // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.RequireJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry, cfg.ReadinessChecks)
	departureHandler := handler.NewDepartureHandler(cfg.Planner, cfg.Logger)
	savingsHandler := handler.NewSavingsHandler(cfg.Vehicle)
	historyHandler := handler.NewHistoryHandler(cfg.History, cfg.Logger)

	departureRateLimit := middleware.RateLimitByIP(middleware.PerMinute(cfg.DepartureRateLimit))
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Each call fans out to the routing provider.
		r.Group(func(r chi.Router) {
			r.Use(departureRateLimit)
			r.Post("/departures:analyze", departureHandler.Analyze)
			r.Post("/departures:forecast", departureHandler.Forecast)
		})

		r.With(standardRateLimit).Post("/savings:estimate", savingsHandler.Estimate)

		r.Route("/me/history", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Tokens))
			r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit))
			r.Get("/", historyHandler.ListHistory)
			r.Post("/", historyHandler.CreateHistory)
			r.Delete("/{historyId}", historyHandler.DeleteHistory)
		})
	})

	return r
}
