package weather_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congestionai/congestionai/internal/weather"
)

// mockProvider is a mock weather provider for testing.
type mockProvider struct {
	mu        sync.Mutex
	callCount int
	err       error
}

func (m *mockProvider) Name() string {
	return "mock"
}

func (m *mockProvider) GetForecast(_ context.Context, lat, lon float64) (*weather.Forecast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++

	if m.err != nil {
		return nil, m.err
	}

	start := time.Now().Truncate(time.Hour)
	return &weather.Forecast{
		Lat: lat,
		Lon: lon,
		Hourly: []weather.HourlyForecast{
			{Time: start, PrecipitationMM: 0, Condition: weather.ConditionClear},
			{Time: start.Add(time.Hour), PrecipitationMM: 2.4, PrecipProb: 0.8, Condition: weather.ConditionRain},
		},
		FetchedAt: time.Now(),
	}, nil
}

func (m *mockProvider) getCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func (m *mockProvider) setError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func TestService_GetForecast(t *testing.T) {
	provider := &mockProvider{}
	service := weather.NewService(weather.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})

	forecast, err := service.GetForecast(context.Background(), 19.4326, -99.1332)
	require.NoError(t, err)
	require.NotNil(t, forecast)

	assert.Equal(t, 19.4326, forecast.Lat)
	assert.Len(t, forecast.Hourly, 2)
	assert.Equal(t, 2.4, forecast.Hourly[1].PrecipitationMM)
	assert.Equal(t, "mock", service.Name())
}

func TestService_GetForecast_Caching(t *testing.T) {
	provider := &mockProvider{}
	service := weather.NewService(weather.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
		CacheTTL: 5 * time.Minute,
	})

	_, err := service.GetForecast(context.Background(), 19.4326, -99.1332)
	require.NoError(t, err)

	_, err = service.GetForecast(context.Background(), 19.4326, -99.1332)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.getCallCount())
}

func TestService_GetForecast_CacheGriding(t *testing.T) {
	provider := &mockProvider{}
	service := weather.NewService(weather.ServiceConfig{
		Provider:      provider,
		Logger:        zerolog.Nop(),
		CacheTTL:      5 * time.Minute,
		CacheGridSize: 0.1, // ~11km grid
	})

	// Two nearby points in same grid cell
	_, err := service.GetForecast(context.Background(), 19.431, -99.131)
	require.NoError(t, err)
	_, err = service.GetForecast(context.Background(), 19.435, -99.135)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.getCallCount())

	// Point in different grid cell
	_, err = service.GetForecast(context.Background(), 19.36, -99.26)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.getCallCount())
}

func TestService_GetForecast_InvalidCoordinates(t *testing.T) {
	service := weather.NewService(weather.ServiceConfig{
		Provider: &mockProvider{},
		Logger:   zerolog.Nop(),
	})

	tests := []struct {
		name string
		lat  float64
		lon  float64
	}{
		{"lat too high", 91.0, -99.1},
		{"lat too low", -91.0, -99.1},
		{"lon too high", 19.4, 181.0},
		{"lon too low", 19.4, -181.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.GetForecast(context.Background(), tt.lat, tt.lon)
			require.Error(t, err)
			assert.ErrorIs(t, err, weather.ErrInvalidCoordinates)
		})
	}
}

func TestService_GetForecast_ProviderError(t *testing.T) {
	provider := &mockProvider{}
	provider.setError(errors.New("api error"))

	service := weather.NewService(weather.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})

	_, err := service.GetForecast(context.Background(), 19.4326, -99.1332)
	require.Error(t, err)
	assert.ErrorIs(t, err, weather.ErrProviderUnavailable)
}

func TestService_GetForecast_StaleOnError(t *testing.T) {
	provider := &mockProvider{}
	service := weather.NewService(weather.ServiceConfig{
		Provider:        provider,
		Logger:          zerolog.Nop(),
		CacheTTL:        100 * time.Millisecond,
		StaleIfErrorTTL: time.Hour,
	})

	first, err := service.GetForecast(context.Background(), 19.4326, -99.1332)
	require.NoError(t, err)

	// Wait for cache to expire
	time.Sleep(150 * time.Millisecond)
	provider.setError(errors.New("api error"))

	second, err := service.GetForecast(context.Background(), 19.4326, -99.1332)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 2, provider.getCallCount())
}

func TestService_InvalidateCache(t *testing.T) {
	provider := &mockProvider{}
	service := weather.NewService(weather.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
		CacheTTL: 5 * time.Minute,
	})

	_, err := service.GetForecast(context.Background(), 19.4326, -99.1332)
	require.NoError(t, err)

	service.InvalidateCache()

	_, err = service.GetForecast(context.Background(), 19.4326, -99.1332)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.getCallCount())
}

func TestService_CacheStats(t *testing.T) {
	service := weather.NewService(weather.ServiceConfig{
		Provider: &mockProvider{},
		Logger:   zerolog.Nop(),
		CacheTTL: 5 * time.Minute,
	})

	stats := service.CacheStats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, "mock", stats.Provider)

	_, _ = service.GetForecast(context.Background(), 19.4326, -99.1332)

	stats = service.CacheStats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 1, stats.FreshEntries)
}
