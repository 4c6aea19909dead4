// Package googleroutes provides a client for the Google Routes API v2
// computeRoutes method.
package googleroutes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/congestionai/congestionai/internal/provider/resilience"
	"github.com/congestionai/congestionai/internal/routing"
	"github.com/congestionai/congestionai/internal/waypoint"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "google-routes"

	// DefaultBaseURL is the Routes API base URL.
	DefaultBaseURL = "https://routes.googleapis.com"

	// FieldMask limits the response to the fields the sampler consumes.
	FieldMask = "routes.duration,routes.staticDuration,routes.polyline.encodedPolyline,routes.travelAdvisory.speedReadingIntervals"

	// DefaultMinLeadTime keeps departure times strictly in the future.
	DefaultMinLeadTime = 60 * time.Second

	computeRoutesPath = "/directions/v2:computeRoutes"
	maxRawBody        = 2048
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Routes client.
type ClientConfig struct {
	// APIKey is the Google Maps Platform server key (required).
	APIKey string

	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	// HTTPClient is used for requests. If nil, a resilience.Client with a
	// circuit breaker and no retries is created.
	HTTPClient HTTPDoer

	// Timeout bounds one HTTP attempt when HTTPClient is nil (default 10s).
	Timeout time.Duration

	// Registry receives provider health when HTTPClient is nil.
	Registry *resilience.Registry

	// MinLeadTime is the smallest allowed gap between now and the departure
	// time sent upstream (default 60s).
	MinLeadTime time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time

	Logger zerolog.Logger
}

// Client is a Routes API client. It never retries; retry policy belongs to
// the caller.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  HTTPDoer
	minLeadTime time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

// NewClient creates a new Routes client. A missing API key is a
// configuration error reported as routing.ErrUnauthenticated.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google routes api key: %w", routing.ErrUnauthenticated)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		cb := resilience.DefaultCircuitBreakerConfig(ProviderName)
		cb.OnStateChange = resilience.LogStateChanges(cfg.Logger)
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:           ProviderName,
			Timeout:        cfg.Timeout,
			MaxRetries:     0,
			CircuitBreaker: &cb,
			Registry:       cfg.Registry,
		})
	}

	minLead := cfg.MinLeadTime
	if minLead <= 0 {
		minLead = DefaultMinLeadTime
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		httpClient:  httpClient,
		minLeadTime: minLead,
		now:         now,
		logger:      cfg.Logger,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// ComputeRoute requests a single traffic-aware driving route.
func (c *Client) ComputeRoute(ctx context.Context, req routing.RouteRequest) (*routing.RouteResult, error) {
	departAt := req.DepartAt
	if earliest := c.now().Add(c.minLeadTime); departAt.Before(earliest) {
		departAt = earliest
	}

	body, err := json.Marshal(computeRoutesRequest{
		Origin:            toPayload(req.Origin),
		Destination:       toPayload(req.Destination),
		TravelMode:        "DRIVE",
		RoutingPreference: "TRAFFIC_AWARE_OPTIMAL",
		DepartureTime:     departAt.UTC().Format(time.RFC3339),
		RouteModifiers: routeModifiers{
			AvoidTolls:    req.Modifiers.AvoidTolls,
			AvoidHighways: req.Modifiers.AvoidHighways,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+computeRoutesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
	httpReq.Header.Set("X-Goog-FieldMask", FieldMask)

	c.logger.Debug().
		Str("origin", req.Origin.String()).
		Str("destination", req.Destination.String()).
		Time("depart_at", departAt).
		Msg("requesting route from google routes")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &routing.ProviderFailure{
			Provider: ProviderName,
			Err:      fmt.Errorf("%w: %w", routing.ErrUpstream, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &routing.ProviderFailure{
			Provider: ProviderName,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%w: reading body: %w", routing.ErrUpstream, err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var parsed computeRoutesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &routing.ProviderFailure{
			Provider: ProviderName,
			Status:   resp.StatusCode,
			RawBody:  truncate(respBody),
			Err:      fmt.Errorf("%w: %w", routing.ErrMalformedResponse, err),
		}
	}
	if len(parsed.Routes) == 0 {
		return nil, &routing.ProviderFailure{
			Provider: ProviderName,
			Status:   resp.StatusCode,
			RawBody:  truncate(respBody),
			Err:      routing.ErrNoRouteFound,
		}
	}

	return c.toRouteResult(parsed.Routes[0], departAt), nil
}

func (c *Client) toRouteResult(r apiRoute, departAt time.Time) *routing.RouteResult {
	eta := secondsToMinutes(ParseDuration(r.Duration))
	if eta < 1 {
		eta = 1
	}
	static := secondsToMinutes(ParseDuration(r.StaticDuration))
	if static == 0 {
		static = eta
	}

	res := &routing.RouteResult{
		DepartAt:         departAt,
		ETAMinutes:       eta,
		StaticETAMinutes: static,
		Provider:         ProviderName,
		FetchedAt:        c.now(),
		SpeedIntervals:   []routing.SpeedInterval{},
	}
	if r.Polyline != nil {
		res.Polyline = r.Polyline.EncodedPolyline
	}
	if r.TravelAdvisory != nil {
		res.SpeedIntervals = toSpeedIntervals(r.TravelAdvisory.SpeedReadingIntervals)
	}
	return res
}

// handleErrorResponse classifies a non-2xx response.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	c.logger.Warn().
		Int("status_code", statusCode).
		Str("status", apiErr.Error.Status).
		Str("message", apiErr.Error.Message).
		Msg("google routes returned error")

	var sentinel error
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = routing.ErrUnauthenticated
	case http.StatusTooManyRequests:
		sentinel = routing.ErrRateLimitExceeded
	default:
		sentinel = routing.ErrUpstream
	}

	err := sentinel
	if apiErr.Error.Message != "" {
		err = fmt.Errorf("%w: %s", sentinel, apiErr.Error.Message)
	}

	return &routing.ProviderFailure{
		Provider: ProviderName,
		Status:   statusCode,
		RawBody:  truncate(body),
		Err:      err,
	}
}

func toPayload(w waypoint.Waypoint) waypointPayload {
	switch w.Kind {
	case waypoint.KindPlace:
		return waypointPayload{PlaceID: w.PlaceID}
	case waypoint.KindCoordinate:
		return waypointPayload{Location: &location{LatLng: latLng{Latitude: w.Lat, Longitude: w.Lng}}}
	default:
		return waypointPayload{Address: w.Address}
	}
}

var durationPattern = regexp.MustCompile(`^\s*(\d+)(?:\.\d+)?s\s*$`)

// ParseDuration parses a protobuf duration string such as "1234s" into
// whole seconds. Missing or malformed values parse to zero.
func ParseDuration(s string) int {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

func secondsToMinutes(sec int) int {
	return int(math.Round(float64(sec) / 60))
}

func truncate(body []byte) string {
	if len(body) > maxRawBody {
		return string(body[:maxRawBody])
	}
	return string(body)
}

