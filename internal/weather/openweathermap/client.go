// Package openweathermap implements weather.Provider on the One Call 3.0 API.
package openweathermap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/congestionai/congestionai/internal/provider/resilience"
	"github.com/congestionai/congestionai/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap"

	// DefaultOneCallURL is the OpenWeatherMap One Call API 3.0 endpoint.
	DefaultOneCallURL = "https://api.openweathermap.org/data/3.0/onecall"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// OneCallURL overrides DefaultOneCallURL.
	OneCallURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with a circuit breaker and one retry.
	HTTPClient HTTPDoer

	// Registry receives provider health when HTTPClient is nil.
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeatherMap API client.
type Client struct {
	apiKey     string
	oneCallURL string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	oneCallURL := cfg.OneCallURL
	if oneCallURL == "" {
		oneCallURL = DefaultOneCallURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		cb := resilience.DefaultCircuitBreakerConfig(ProviderName)
		cb.OnStateChange = resilience.LogStateChanges(cfg.Logger)
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:           ProviderName,
			Timeout:        5 * time.Second,
			MaxRetries:     1,
			CircuitBreaker: &cb,
			Registry:       cfg.Registry,
		})
	}

	return &Client{
		apiKey:     cfg.APIKey,
		oneCallURL: oneCallURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetForecast fetches the hourly forecast (48 hours) for a location.
func (c *Client) GetForecast(ctx context.Context, lat, lon float64) (*weather.Forecast, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	q.Set("exclude", "current,minutely,daily,alerts")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.oneCallURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var owmResp oneCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&owmResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	c.logger.Debug().
		Int("hours", len(owmResp.Hourly)).
		Msg("received hourly forecast")

	return toForecast(&owmResp), nil
}

// toForecast converts a One Call response to the domain model.
func toForecast(resp *oneCallResponse) *weather.Forecast {
	forecast := &weather.Forecast{
		Lat:       resp.Lat,
		Lon:       resp.Lon,
		Hourly:    make([]weather.HourlyForecast, 0, len(resp.Hourly)),
		FetchedAt: time.Now(),
	}

	for _, h := range resp.Hourly {
		hourly := weather.HourlyForecast{
			Time:            time.Unix(h.Dt, 0).UTC(),
			PrecipitationMM: h.Rain.OneHour + h.Snow.OneHour,
			PrecipProb:      h.Pop,
			Condition:       weather.ConditionUnknown,
		}
		if len(h.Weather) > 0 {
			hourly.Condition = mapCondition(h.Weather[0].Main)
			hourly.Description = h.Weather[0].Description
		}
		forecast.Hourly = append(forecast.Hourly, hourly)
	}

	return forecast
}

// mapCondition maps OpenWeatherMap condition to domain condition.
func mapCondition(owmCondition string) weather.Condition {
	switch owmCondition {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionClouds
	case "Rain":
		return weather.ConditionRain
	case "Drizzle":
		return weather.ConditionDrizzle
	case "Thunderstorm":
		return weather.ConditionThunderstorm
	case "Snow":
		return weather.ConditionSnow
	case "Mist", "Fog", "Haze":
		return weather.ConditionFog
	default:
		return weather.ConditionUnknown
	}
}

// OpenWeatherMap API response structures.

type volume struct {
	OneHour float64 `json:"1h"`
}

type oneCallResponse struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Hourly []struct {
		Dt      int64   `json:"dt"`
		Pop     float64 `json:"pop"` // Probability of precipitation
		Rain    volume  `json:"rain"`
		Snow    volume  `json:"snow"`
		Weather []struct {
			ID          int    `json:"id"`
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"hourly"`
}
