// Package routing defines the traffic-aware routing provider contract used
// by the departure sampler, along with its failure taxonomy.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/congestionai/congestionai/internal/waypoint"
)

// Sentinel errors for routing operations.
var (
	// ErrUnauthenticated indicates a missing or rejected provider credential.
	// It is never retried.
	ErrUnauthenticated = errors.New("routing provider credential missing or rejected")
	// ErrUpstream indicates a non-success response or transport failure.
	ErrUpstream = errors.New("routing provider request failed")
	// ErrMalformedResponse indicates the provider payload could not be parsed.
	ErrMalformedResponse = errors.New("malformed routing provider response")
	// ErrNoRouteFound indicates the provider returned no routes.
	ErrNoRouteFound = errors.New("no route found between the given waypoints")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates a coordinate waypoint is out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Provider computes a single traffic-aware route for one departure time.
// Implementations must not retry internally.
type Provider interface {
	ComputeRoute(ctx context.Context, req RouteRequest) (*RouteResult, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// RouteModifiers are the avoidance preferences sent with each request.
type RouteModifiers struct {
	AvoidTolls    bool `json:"avoidTolls"`
	AvoidHighways bool `json:"avoidHighways"`
}

// RouteRequest is one provider call.
type RouteRequest struct {
	Origin      waypoint.Waypoint
	Destination waypoint.Waypoint
	DepartAt    time.Time
	Modifiers   RouteModifiers
}

// SpeedClass is the provider's per-segment traffic classification.
type SpeedClass string

const (
	SpeedNormal     SpeedClass = "NORMAL"
	SpeedSlow       SpeedClass = "SLOW"
	SpeedTrafficJam SpeedClass = "TRAFFIC_JAM"
	SpeedUnknown    SpeedClass = "SPEED_UNSPECIFIED"
)

// SpeedInterval classifies the polyline points [StartIndex, EndIndex).
type SpeedInterval struct {
	StartIndex int        `json:"startPolylinePointIndex"`
	EndIndex   int        `json:"endPolylinePointIndex"`
	Speed      SpeedClass `json:"speed"`
}

// RouteResult is the parsed outcome of a successful provider call.
type RouteResult struct {
	// DepartAt is the departure time actually sent to the provider.
	DepartAt         time.Time       `json:"departAt"`
	ETAMinutes       int             `json:"etaMinutes"`
	StaticETAMinutes int             `json:"staticEtaMinutes"`
	Polyline         string          `json:"polyline,omitempty"`
	SpeedIntervals   []SpeedInterval `json:"speedIntervals"`
	Provider         string          `json:"provider"`
	FetchedAt        time.Time       `json:"fetchedAt"`
}

// ProviderFailure describes a failed provider call. Status is zero when no
// HTTP response was received.
type ProviderFailure struct {
	Provider string
	Status   int
	RawBody  string
	Err      error
}

func (e *ProviderFailure) Error() string {
	msg := e.Provider + " request failed"
	if e.Status != 0 {
		msg = fmt.Sprintf("%s request failed with status %d", e.Provider, e.Status)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderFailure) Unwrap() error {
	return e.Err
}

// IsRetryable returns true unless the failure is a credential problem.
func (e *ProviderFailure) IsRetryable() bool {
	return !errors.Is(e.Err, ErrUnauthenticated)
}

// IsRetryable reports whether err may succeed on another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pf *ProviderFailure
	if errors.As(err, &pf) {
		return pf.IsRetryable()
	}
	return !errors.Is(err, ErrUnauthenticated) && !errors.Is(err, ErrInvalidCoordinates)
}

// ValidateWaypoint checks coordinate waypoints are within valid ranges.
func ValidateWaypoint(w waypoint.Waypoint) error {
	if w.Kind != waypoint.KindCoordinate {
		return nil
	}
	if w.Lat < -90 || w.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]: %w", w.Lat, ErrInvalidCoordinates)
	}
	if w.Lng < -180 || w.Lng > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]: %w", w.Lng, ErrInvalidCoordinates)
	}
	return nil
}
