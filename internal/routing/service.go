package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ServiceConfig holds configuration for the caching routing service.
type ServiceConfig struct {
	// Provider is the upstream routing provider.
	Provider Provider

	// Cache stores results. Defaults to a MemoryCache.
	Cache Cache

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long a result stays cached (default: 5 minutes).
	CacheTTL time.Duration

	// DepartureBucket quantizes departure times for cache keys (default: 5 minutes).
	// Requests whose departures fall in the same bucket share a cached result.
	DepartureBucket time.Duration

	// Metrics is optional.
	Metrics MetricsRecorder
}

// MetricsRecorder receives cache outcomes and upstream call latencies.
type MetricsRecorder interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

const opComputeRoute = "compute_route"

// Service wraps a Provider with a result cache and request coalescing.
// It implements Provider itself, so callers can use either interchangeably.
type Service struct {
	provider Provider
	cache    Cache
	logger   zerolog.Logger
	ttl      time.Duration
	bucket   time.Duration
	metrics  MetricsRecorder
	group    singleflight.Group
}

// NewService creates a new caching routing service.
func NewService(cfg ServiceConfig) *Service {
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}

	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	bucket := cfg.DepartureBucket
	if bucket == 0 {
		bucket = 5 * time.Minute
	}

	return &Service{
		provider: cfg.Provider,
		cache:    cache,
		logger:   cfg.Logger,
		ttl:      ttl,
		bucket:   bucket,
		metrics:  cfg.Metrics,
	}
}

// Name implements Provider.
func (s *Service) Name() string {
	return s.provider.Name()
}

// cachedRoute is the stored form of a result. RequestedAt is the departure
// the provider was asked for, so hits can be rebased onto a later request in
// the same bucket.
type cachedRoute struct {
	RequestedAt time.Time    `json:"requestedAt"`
	Route       *RouteResult `json:"route"`
}

// rebase returns a copy of the route departing at departAt, keeping any
// forward shift the provider applied (minimum lead time).
func (c cachedRoute) rebase(departAt time.Time) *RouteResult {
	res := *c.Route
	shift := c.Route.DepartAt.Sub(c.RequestedAt)
	if shift < 0 || c.RequestedAt.IsZero() {
		shift = 0
	}
	res.DepartAt = departAt.Add(shift)
	return &res
}

// ComputeRoute implements Provider. Failures are never cached. Results served
// from the cache or shared with a concurrent caller carry the caller's own
// departure time.
func (s *Service) ComputeRoute(ctx context.Context, req RouteRequest) (*RouteResult, error) {
	if err := ValidateWaypoint(req.Origin); err != nil {
		return nil, err
	}
	if err := ValidateWaypoint(req.Destination); err != nil {
		return nil, err
	}

	key := s.cacheKey(req)

	if entry, ok := s.lookup(ctx, key); ok {
		s.logger.Debug().
			Str("cache_key", key).
			Time("cached_depart_at", entry.Route.DepartAt).
			Msg("cache hit for route")
		if s.metrics != nil {
			s.metrics.RecordCacheHit(s.provider.Name(), opComputeRoute)
		}
		return entry.rebase(req.DepartAt), nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(s.provider.Name(), opComputeRoute)
	}

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		start := time.Now()
		res, err := s.provider.ComputeRoute(ctx, req)
		if s.metrics != nil {
			s.metrics.RecordRequest(s.provider.Name(), opComputeRoute, time.Since(start), err)
		}
		if err != nil {
			return nil, err
		}
		entry := cachedRoute{RequestedAt: req.DepartAt, Route: res}
		s.store(ctx, key, entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug().
			Str("cache_key", key).
			Msg("coalesced concurrent route request")
	}

	return v.(cachedRoute).rebase(req.DepartAt), nil
}

func (s *Service) lookup(ctx context.Context, key string) (cachedRoute, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("cache_key", key).
			Msg("route cache read failed")
		return cachedRoute{}, false
	}
	if data == nil {
		return cachedRoute{}, false
	}

	var entry cachedRoute
	if err := json.Unmarshal(data, &entry); err != nil || entry.Route == nil {
		s.logger.Warn().Err(err).
			Str("cache_key", key).
			Msg("discarding undecodable cached route")
		return cachedRoute{}, false
	}
	return entry, true
}

func (s *Service) store(ctx context.Context, key string, entry cachedRoute) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn().Err(err).
			Str("cache_key", key).
			Msg("route cache write failed")
	}
}

// cacheKey quantizes the departure time into buckets.
// Format: route:{provider}:{origin}|{destination}:{bucketUnix}:{tolls}:{highways}.
func (s *Service) cacheKey(req RouteRequest) string {
	bucket := req.DepartAt.UTC().Truncate(s.bucket)
	return fmt.Sprintf("route:%s:%s|%s:%d:%t:%t",
		s.provider.Name(),
		req.Origin.String(),
		req.Destination.String(),
		bucket.Unix(),
		req.Modifiers.AvoidTolls,
		req.Modifiers.AvoidHighways,
	)
}
