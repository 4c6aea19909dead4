package weather

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Provider defines the interface for weather data providers.
type Provider interface {
	// GetForecast fetches the hourly forecast for a location.
	GetForecast(ctx context.Context, lat, lon float64) (*Forecast, error)

	// Name returns the provider name for logging.
	Name() string
}

// ServiceConfig holds configuration for the weather service.
type ServiceConfig struct {
	// Provider is the weather data provider.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache forecasts (default: 30 minutes).
	CacheTTL time.Duration

	// CacheGridSize is the size of cache grid cells in degrees (default: 0.1).
	// Points within the same grid cell share cached data.
	CacheGridSize float64

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 3 hours).
	StaleIfErrorTTL time.Duration
}

// Service provides cached precipitation forecasts.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	now             func() time.Time

	mu              sync.RWMutex
	forecastCache   map[string]*cachedForecast
	lastCleanup     time.Time
	cleanupInterval time.Duration
}

type cachedForecast struct {
	forecast  *Forecast
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new weather service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Minute
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.1 // ~11km at equator
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 3 * time.Hour
	}

	return &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		cacheGridSize:   cacheGridSize,
		staleIfErrorTTL: staleIfErrorTTL,
		now:             time.Now,
		forecastCache:   make(map[string]*cachedForecast),
		cleanupInterval: 10 * time.Minute,
	}
}

// Name returns the underlying provider name.
func (s *Service) Name() string {
	return s.provider.Name()
}

// GetForecast returns the hourly forecast for a location.
func (s *Service) GetForecast(ctx context.Context, lat, lon float64) (*Forecast, error) {
	if err := validateCoordinates(lat, lon); err != nil {
		return nil, err
	}

	cacheKey := s.cacheKey(lat, lon)

	s.mu.RLock()
	if cached, ok := s.forecastCache[cacheKey]; ok && s.now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		return cached.forecast, nil
	}
	s.mu.RUnlock()

	return s.fetchForecast(ctx, lat, lon, cacheKey)
}

// fetchForecast fetches from the provider and updates the cache.
func (s *Service) fetchForecast(ctx context.Context, lat, lon float64, cacheKey string) (*Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check cache
	if cached, ok := s.forecastCache[cacheKey]; ok && s.now().Before(cached.expiresAt) {
		return cached.forecast, nil
	}

	s.logger.Debug().
		Float64("lat", lat).
		Float64("lon", lon).
		Str("provider", s.provider.Name()).
		Msg("fetching forecast from provider")

	forecast, err := s.provider.GetForecast(ctx, lat, lon)
	if err != nil {
		s.logger.Error().Err(err).
			Float64("lat", lat).
			Float64("lon", lon).
			Msg("failed to fetch forecast")

		if cached, ok := s.forecastCache[cacheKey]; ok {
			if s.now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
				s.logger.Warn().
					Time("fetched_at", cached.fetchedAt).
					Msg("serving stale forecast data due to provider error")
				return cached.forecast, nil
			}
		}

		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	now := s.now()
	s.forecastCache[cacheKey] = &cachedForecast{
		forecast:  forecast,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}

	s.cleanupIfNeeded()

	return forecast, nil
}

// cacheKey groups nearby points into grid cells to reduce API calls.
func (s *Service) cacheKey(lat, lon float64) string {
	gridLat := math.Floor(lat/s.cacheGridSize) * s.cacheGridSize
	gridLon := math.Floor(lon/s.cacheGridSize) * s.cacheGridSize
	return fmt.Sprintf("%.2f:%.2f", gridLat, gridLon)
}

// cleanupIfNeeded removes entries past their stale window. Caller holds mu.
func (s *Service) cleanupIfNeeded() {
	now := s.now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}

	s.lastCleanup = now
	expired := 0

	for key, cached := range s.forecastCache {
		if now.After(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.forecastCache, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired forecast cache entries")
	}
}

// InvalidateCache clears all cached data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecastCache = make(map[string]*cachedForecast)
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	fresh := 0
	for _, c := range s.forecastCache {
		if now.Before(c.expiresAt) {
			fresh++
		}
	}

	return CacheStats{
		Entries:      len(s.forecastCache),
		FreshEntries: fresh,
		Provider:     s.provider.Name(),
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Entries      int
	FreshEntries int
	Provider     string
}

func validateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}
