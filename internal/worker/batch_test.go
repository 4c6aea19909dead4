package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congestionai/congestionai/internal/forecast"
	"github.com/congestionai/congestionai/internal/history"
	"github.com/congestionai/congestionai/internal/routing"
	"github.com/congestionai/congestionai/internal/sampling"
	"github.com/congestionai/congestionai/internal/waypoint"
	"github.com/congestionai/congestionai/internal/worker"
)

type fakePlanner struct {
	mu       sync.Mutex
	requests []forecast.ForecastRequest
	err      func(req forecast.ForecastRequest) error
	delay    time.Duration

	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (p *fakePlanner) Forecast(ctx context.Context, req forecast.ForecastRequest) (*forecast.Forecast, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		seen := p.maxSeen.Load()
		if n <= seen || p.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		if err := p.err(req); err != nil {
			return nil, err
		}
	}
	return &forecast.Forecast{
		Best: forecast.BestWindow{
			DepartAt:   time.Date(2030, 3, 4, 7, 0, 0, 0, time.UTC),
			ETAMinutes: 24,
			Risk:       0.3,
		},
	}, nil
}

func job(owner, origin string) worker.Job {
	return worker.Job{
		Owner:        owner,
		Origin:       waypoint.Text(origin),
		Destination:  waypoint.LatLng(19.391, -99.2837),
		HorizonHours: 24,
		StepMinutes:  60,
	}
}

func newRunner(planner worker.Forecaster, recorder worker.Recorder, cfg worker.BatchConfig) *worker.BatchRunner {
	return worker.NewBatchRunner(worker.BatchRunnerConfig{
		Config:   cfg,
		Planner:  planner,
		Recorder: recorder,
		Logger:   zerolog.Nop(),
	})
}

func TestDefaultBatchConfig(t *testing.T) {
	cfg := worker.DefaultBatchConfig()

	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, 50, cfg.MaxJobs)
}

func TestJob_Request(t *testing.T) {
	alpha := 0.5
	j := worker.Job{
		Origin:       waypoint.Text("19.4326,-99.1332"),
		Destination:  waypoint.Text("Polanco, CDMX"),
		HorizonHours: 48,
		StepMinutes:  30,
		AvoidTolls:   true,
		Alpha:        &alpha,
		TimeZone:     "America/Mexico_City",
		Country:      "mx",
	}

	req := j.Request()
	assert.Equal(t, waypoint.KindCoordinate, req.Origin.Kind)
	assert.Equal(t, waypoint.KindAddress, req.Destination.Kind)
	assert.Equal(t, 48*60, req.HorizonMinutes)
	assert.Equal(t, 30, req.StepMinutes)
	assert.True(t, req.Modifiers.AvoidTolls)
	assert.Equal(t, &alpha, req.Alpha)

	j.HorizonMinutes = 90
	assert.Equal(t, 90, j.Request().HorizonMinutes)
}

func TestBatchRunner_RecordsBestWindow(t *testing.T) {
	planner := &fakePlanner{}
	historyService := history.NewService(history.ServiceConfig{Repository: history.NewInMemoryRepository()})
	runner := newRunner(planner, historyService, worker.BatchConfig{})
	ctx := context.Background()

	result := runner.Run(ctx, []worker.Job{job("usr_1", "Zocalo, CDMX"), job("", "Coyoacan, CDMX")})

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Recorded)
	assert.Zero(t, result.Failed)

	items, err := historyService.List(ctx, "usr_1", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, history.KindBatch, items[0].Kind)
	assert.Equal(t, "Zocalo, CDMX", items[0].Origin)
	assert.Equal(t, 24, items[0].ETAMinutes)

	metrics := runner.GetMetrics()
	assert.Equal(t, int64(1), metrics.Batches)
	assert.Equal(t, int64(2), metrics.JobsSucceeded)
	assert.Equal(t, int64(1), runner.MetricsSnapshot()["recorded"])
}

func TestBatchRunner_ClassifiesFailures(t *testing.T) {
	planner := &fakePlanner{
		err: func(req forecast.ForecastRequest) error {
			switch req.Origin.Address {
			case "bad":
				return fmt.Errorf("%w: origin is required", forecast.ErrInvalidRequest)
			case "down":
				return &routing.ProviderFailure{Provider: "google-routes", Status: 503, Err: routing.ErrUpstream}
			case "mixed":
				return fmt.Errorf("%w: 3 offsets failed: %w", sampling.ErrNoSamplesAvailable,
					&routing.ProviderFailure{Provider: "google-routes", Status: 403, Err: routing.ErrUnauthenticated})
			case "nowhere":
				return fmt.Errorf("%w: 3 offsets failed: %w", sampling.ErrNoSamplesAvailable, routing.ErrInvalidCoordinates)
			}
			return nil
		},
	}
	runner := newRunner(planner, nil, worker.BatchConfig{})

	jobs := []worker.Job{job("", "bad"), job("", "down"), job("", "mixed"), job("", "nowhere"), job("", "fine")}
	result := runner.Run(context.Background(), jobs)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 4, result.Failed)
	assert.Equal(t, 2, result.Transient, "upstream outage and mixed failures are transient")
	assert.Len(t, result.Errors, 4)
}

func TestBatchRunner_ConcurrencyAndCap(t *testing.T) {
	planner := &fakePlanner{delay: 10 * time.Millisecond}
	runner := newRunner(planner, nil, worker.BatchConfig{Concurrency: 2, MaxJobs: 5})

	jobs := make([]worker.Job, 8)
	for i := range jobs {
		jobs[i] = job("", fmt.Sprintf("origin-%d", i))
	}

	result := runner.Run(context.Background(), jobs)

	assert.Equal(t, 8, result.Total)
	assert.Equal(t, 5, result.Succeeded)
	assert.Equal(t, 3, result.Skipped)
	assert.LessOrEqual(t, planner.maxSeen.Load(), int32(2))
}

func TestBatchRunner_JobTimeout(t *testing.T) {
	planner := &fakePlanner{delay: time.Second}
	runner := newRunner(planner, nil, worker.BatchConfig{Timeout: 20 * time.Millisecond})

	result := runner.Run(context.Background(), []worker.Job{job("", "slow")})

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Transient)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, context.DeadlineExceeded.Error())
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, string, history.RecordInput) (*history.Item, error) {
	return nil, errors.New("store unavailable")
}

func TestBatchRunner_RecordFailureKeepsSuccess(t *testing.T) {
	runner := newRunner(&fakePlanner{}, failingRecorder{}, worker.BatchConfig{})

	result := runner.Run(context.Background(), []worker.Job{job("usr_1", "Zocalo, CDMX")})

	assert.Equal(t, 1, result.Succeeded)
	assert.Zero(t, result.Recorded)
}
