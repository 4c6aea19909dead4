package worker_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congestionai/congestionai/internal/forecast"
	"github.com/congestionai/congestionai/internal/routing"
	"github.com/congestionai/congestionai/internal/sampling"
	"github.com/congestionai/congestionai/internal/worker"
)

func TestProcess(t *testing.T) {
	upstreamDown := func(forecast.ForecastRequest) error {
		return &routing.ProviderFailure{Provider: "google-routes", Status: 502, Err: routing.ErrUpstream}
	}
	rejected := func(forecast.ForecastRequest) error {
		return &routing.ProviderFailure{Provider: "google-routes", Status: 403, Err: routing.ErrUnauthenticated}
	}
	badCoordinates := func(forecast.ForecastRequest) error {
		return fmt.Errorf("%w: 4 offsets failed: %w", sampling.ErrNoSamplesAvailable,
			fmt.Errorf("latitude 123.000000 out of range [-90, 90]: %w", routing.ErrInvalidCoordinates))
	}
	payload := `{"jobs":[{"origin":"Zocalo, CDMX","destination":{"lat":19.391,"lng":-99.2837},"horizonHours":24}],"requestedAt":"2030-03-04T05:00:00Z"}`

	tests := []struct {
		name    string
		data    string
		err     func(forecast.ForecastRequest) error
		wantAck bool
		calls   int
	}{
		{name: "success", data: payload, wantAck: true, calls: 1},
		{name: "malformed json", data: `{"jobs":`, wantAck: true},
		{name: "no jobs", data: `{"jobs":[]}`, wantAck: true},
		{name: "transient failure", data: payload, err: upstreamDown, wantAck: false, calls: 1},
		{name: "permanent failure", data: payload, err: rejected, wantAck: true, calls: 1},
		{name: "invalid coordinates", data: payload, err: badCoordinates, wantAck: true, calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := &fakePlanner{err: tt.err}
			runner := worker.NewBatchRunner(worker.BatchRunnerConfig{Planner: planner, Logger: zerolog.Nop()})

			ack := worker.Process(context.Background(), runner, []byte(tt.data), zerolog.Nop())

			assert.Equal(t, tt.wantAck, ack)
			assert.Len(t, planner.requests, tt.calls)
		})
	}
}

func TestProcess_DecodesWaypoints(t *testing.T) {
	planner := &fakePlanner{}
	runner := worker.NewBatchRunner(worker.BatchRunnerConfig{Planner: planner, Logger: zerolog.Nop()})

	data := `{"jobs":[{"origin":{"placeId":"ChIJB3UJ2yYAzoURQeheJnYQBlQ"},"destination":"@19.391,-99.2837","horizonMinutes":180,"stepMinutes":30,"avoidHighways":true}]}`
	assert.True(t, worker.Process(context.Background(), runner, []byte(data), zerolog.Nop()))

	req := planner.requests[0]
	assert.Equal(t, "ChIJB3UJ2yYAzoURQeheJnYQBlQ", req.Origin.PlaceID)
	assert.InDelta(t, 19.391, req.Destination.Lat, 1e-9)
	assert.Equal(t, 180, req.HorizonMinutes)
	assert.True(t, req.Modifiers.AvoidHighways)
}

type countingProvider struct {
	calls atomic.Int32
}

func (p *countingProvider) ComputeRoute(_ context.Context, req routing.RouteRequest) (*routing.RouteResult, error) {
	p.calls.Add(1)
	return &routing.RouteResult{DepartAt: req.DepartAt, ETAMinutes: 30, StaticETAMinutes: 25}, nil
}

func (p *countingProvider) Name() string { return "counting" }

func TestProcess_InvalidCoordinatesAreAcked(t *testing.T) {
	provider := &countingProvider{}
	planner, err := forecast.NewPlanner(forecast.PlannerConfig{
		Sampler: sampling.NewSampler(sampling.SamplerConfig{
			Provider: routing.NewService(routing.ServiceConfig{Provider: provider, Logger: zerolog.Nop()}),
			Logger:   zerolog.Nop(),
		}),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	runner := worker.NewBatchRunner(worker.BatchRunnerConfig{Planner: planner, Logger: zerolog.Nop()})

	data := `{"jobs":[{"origin":{"lat":123,"lng":0},"destination":"Santa Fe, CDMX","horizonHours":2}]}`
	ack := worker.Process(context.Background(), runner, []byte(data), zerolog.Nop())

	assert.True(t, ack)
	assert.Zero(t, provider.calls.Load())
	assert.Equal(t, int64(1), runner.GetMetrics().JobsFailed)
}
