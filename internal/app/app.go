// Package app assembles the departure planning stack shared by the API
// server and the worker.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/congestionai/congestionai/internal/api/handler"
	"github.com/congestionai/congestionai/internal/config"
	"github.com/congestionai/congestionai/internal/database"
	"github.com/congestionai/congestionai/internal/forecast"
	"github.com/congestionai/congestionai/internal/history"
	"github.com/congestionai/congestionai/internal/holiday"
	"github.com/congestionai/congestionai/internal/provider/resilience"
	"github.com/congestionai/congestionai/internal/routing"
	"github.com/congestionai/congestionai/internal/routing/googleroutes"
	"github.com/congestionai/congestionai/internal/sampling"
	"github.com/congestionai/congestionai/internal/weather"
	"github.com/congestionai/congestionai/internal/weather/openweathermap"
)

// Stack holds the wired services.
type Stack struct {
	Planner  *forecast.Planner
	History  *history.Service
	Registry *resilience.Registry

	// Checks are the readiness probes of the external dependencies.
	Checks []handler.ReadinessCheck

	closers []func()
}

// Close releases connections in reverse order of creation.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Build wires providers, caches, the sampler, the planner and the history
// store from cfg. metrics may be nil. On error everything opened so far is
// closed.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics routing.MetricsRecorder) (_ *Stack, err error) {
	stack := &Stack{Registry: resilience.NewRegistry()}
	defer func() {
		if err != nil {
			stack.Close()
		}
	}()

	routes, err := googleroutes.NewClient(googleroutes.ClientConfig{
		APIKey:      cfg.Google.APIKey,
		BaseURL:     cfg.Google.BaseURL,
		Timeout:     cfg.Google.Timeout,
		Registry:    stack.Registry,
		MinLeadTime: cfg.Google.MinLeadTime,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("routing provider: %w", err)
	}

	cache, err := stack.routeCache(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, err
	}

	serviceCfg := routing.ServiceConfig{
		Provider:        routes,
		Cache:           cache,
		Logger:          logger,
		CacheTTL:        cfg.Routing.CacheTTL,
		DepartureBucket: cfg.Routing.DepartureBucket,
	}
	calendar := holiday.NewDefaultCalendar()
	samplerCfg := sampling.SamplerConfig{
		Config:   cfg.Sampler,
		Calendar: calendar,
		Logger:   logger,
	}
	if metrics != nil {
		serviceCfg.Metrics = metrics
		samplerCfg.Metrics = metrics
	}
	samplerCfg.Provider = routing.NewService(serviceCfg)

	alpha := cfg.Planner.Alpha
	plannerCfg := forecast.PlannerConfig{
		Sampler:         sampling.NewSampler(samplerCfg),
		DefaultTimeZone: cfg.Planner.TimeZone,
		DefaultCountry:  cfg.Planner.Country,
		Calendar:        calendar,
		Alpha:           &alpha,
		Alternatives:    cfg.Planner.Alternatives,
		Vehicle:         cfg.Vehicle,
		Logger:          logger,
	}
	if cfg.Weather.Enabled() {
		plannerCfg.Weather = weather.NewService(weather.ServiceConfig{
			Provider: openweathermap.NewClient(openweathermap.ClientConfig{
				APIKey:   cfg.Weather.OpenWeatherMapKey,
				Registry: stack.Registry,
				Logger:   logger,
			}),
			Logger:   logger,
			CacheTTL: cfg.Weather.CacheTTL,
		})
		logger.Info().Str("provider", openweathermap.ProviderName).Msg("precipitation source enabled")
	} else {
		logger.Warn().Msg("no precipitation source configured, assuming dry unless requests supply it")
	}

	stack.Planner, err = forecast.NewPlanner(plannerCfg)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	repo, err := stack.historyRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	stack.History = history.NewService(history.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})

	return stack, nil
}

func (s *Stack) routeCache(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (routing.Cache, error) {
	if !cfg.Enabled() {
		logger.Info().Msg("route cache: in-memory")
		return routing.NewMemoryCache(), nil
	}

	cache, err := routing.NewRedisCache(ctx, routing.RedisConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("route cache: %w", err)
	}
	s.closers = append(s.closers, func() { _ = cache.Close() })
	s.Checks = append(s.Checks, handler.ReadinessCheck{Name: "redis", Check: cache.Ping})

	logger.Info().Str("addr", cfg.Addr).Msg("route cache: redis")
	return cache, nil
}

func (s *Stack) historyRepository(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (history.Repository, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("history store: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		s.Checks = append(s.Checks, handler.ReadinessCheck{Name: "postgres", Check: pool.Ping})

		repo := history.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("history schema: %w", err)
		}
		logger.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("history store: postgres")
		return repo, nil

	case config.StoreSQLite:
		db, err := database.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("history store: %w", err)
		}
		s.closers = append(s.closers, func() { _ = db.Close() })
		s.Checks = append(s.Checks, handler.ReadinessCheck{Name: "sqlite", Check: db.PingContext})

		repo, err := history.NewSQLiteRepository(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("history schema: %w", err)
		}
		logger.Info().Str("path", cfg.Store.SQLitePath).Msg("history store: sqlite")
		return repo, nil

	default:
		logger.Warn().Msg("history store: in-memory, items are lost on restart")
		return history.NewInMemoryRepository(), nil
	}
}
