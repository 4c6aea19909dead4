package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/congestionai/congestionai/internal/forecast"
	"github.com/congestionai/congestionai/internal/history"
	"github.com/congestionai/congestionai/internal/routing"
	"github.com/congestionai/congestionai/internal/sampling"
)

// Forecaster runs one long-horizon forecast.
type Forecaster interface {
	Forecast(ctx context.Context, req forecast.ForecastRequest) (*forecast.Forecast, error)
}

// Recorder stores a job's best window.
type Recorder interface {
	Record(ctx context.Context, owner string, in history.RecordInput) (*history.Item, error)
}

// BatchRunner forecasts jobs with a bounded pool.
type BatchRunner struct {
	config   BatchConfig
	planner  Forecaster
	recorder Recorder
	logger   zerolog.Logger

	metrics *BatchMetrics
}

// BatchMetrics tracks runner statistics.
type BatchMetrics struct {
	mu sync.RWMutex

	Batches       int64
	JobsSucceeded int64
	JobsFailed    int64
	JobsSkipped   int64
	Recorded      int64

	LastBatchAt       time.Time
	LastBatchDuration time.Duration
	TotalDuration     time.Duration
}

// BatchRunnerConfig holds dependencies for a BatchRunner.
type BatchRunnerConfig struct {
	Config  BatchConfig
	Planner Forecaster

	// Recorder is optional.
	Recorder Recorder

	Logger zerolog.Logger
}

// NewBatchRunner creates a new batch runner.
func NewBatchRunner(cfg BatchRunnerConfig) *BatchRunner {
	return &BatchRunner{
		config:   cfg.Config.withDefaults(),
		planner:  cfg.Planner,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		metrics:  &BatchMetrics{},
	}
}

// BatchResult summarizes one batch.
type BatchResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Recorded  int

	// Transient counts failures worth a redelivery.
	Transient int

	Errors []JobError
}

// JobError describes a failed job.
type JobError struct {
	Index int
	Owner string
	Error string
}

type jobResult struct {
	index     int
	owner     string
	err       error
	recorded  bool
	transient bool
}

// Run forecasts every job and returns once all have finished or ctx is done.
func (r *BatchRunner) Run(ctx context.Context, jobs []Job) *BatchResult {
	startTime := time.Now()
	result := &BatchResult{
		StartTime: startTime,
		Total:     len(jobs),
	}

	if len(jobs) > r.config.MaxJobs {
		result.Skipped = len(jobs) - r.config.MaxJobs
		jobs = jobs[:r.config.MaxJobs]
	}

	r.logger.Info().
		Int("jobs", len(jobs)).
		Int("skipped", result.Skipped).
		Int("concurrency", r.config.Concurrency).
		Msg("starting forecast batch")

	type indexedJob struct {
		index int
		job   Job
	}
	jobsChan := make(chan indexedJob, len(jobs))
	resultsChan := make(chan jobResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < min(r.config.Concurrency, max(len(jobs), 1)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ij := range jobsChan {
				if ctx.Err() != nil {
					resultsChan <- jobResult{index: ij.index, owner: ij.job.Owner, err: ctx.Err(), transient: true}
					continue
				}
				resultsChan <- r.runJob(ctx, ij.index, ij.job)
			}
		}()
	}

	for i, job := range jobs {
		jobsChan <- indexedJob{index: i, job: job}
	}
	close(jobsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for jr := range resultsChan {
		if jr.err != nil {
			result.Failed++
			if jr.transient {
				result.Transient++
			}
			result.Errors = append(result.Errors, JobError{Index: jr.index, Owner: jr.owner, Error: jr.err.Error()})
			continue
		}
		result.Succeeded++
		if jr.recorded {
			result.Recorded++
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	r.updateMetrics(result)

	r.logger.Info().
		Dur("duration", result.Duration).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("recorded", result.Recorded).
		Msg("forecast batch completed")

	return result
}

func (r *BatchRunner) runJob(ctx context.Context, index int, job Job) jobResult {
	res := jobResult{index: index, owner: job.Owner}

	jobCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req := job.Request()
	fc, err := r.planner.Forecast(jobCtx, req)
	if err != nil {
		res.err = err
		res.transient = isTransient(err)
		r.logger.Warn().
			Err(err).
			Int("job", index).
			Bool("transient", res.transient).
			Msg("forecast job failed")
		return res
	}

	if r.recorder == nil || job.Owner == "" {
		return res
	}

	in := history.InputFromBest(history.KindBatch, req.Origin.String(), req.Destination.String(), &fc.Best)
	if _, err := r.recorder.Record(ctx, job.Owner, in); err != nil {
		r.logger.Warn().Err(err).Int("job", index).Str("owner", job.Owner).Msg("failed to record forecast")
		return res
	}
	res.recorded = true
	return res
}

// isTransient reports whether retrying the job later could succeed. An empty
// sample grid wraps only its last failure, so a credential error there does
// not make the whole job permanent.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, forecast.ErrInvalidRequest),
		errors.Is(err, routing.ErrInvalidCoordinates):
		return false
	case errors.Is(err, sampling.ErrNoSamplesAvailable):
		return true
	case errors.Is(err, routing.ErrUnauthenticated):
		return false
	}
	return true
}

func (r *BatchRunner) updateMetrics(result *BatchResult) {
	r.metrics.mu.Lock()
	defer r.metrics.mu.Unlock()

	r.metrics.Batches++
	r.metrics.JobsSucceeded += int64(result.Succeeded)
	r.metrics.JobsFailed += int64(result.Failed)
	r.metrics.JobsSkipped += int64(result.Skipped)
	r.metrics.Recorded += int64(result.Recorded)
	r.metrics.LastBatchAt = result.EndTime
	r.metrics.LastBatchDuration = result.Duration
	r.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (r *BatchRunner) GetMetrics() BatchMetrics {
	r.metrics.mu.RLock()
	defer r.metrics.mu.RUnlock()

	return BatchMetrics{
		Batches:           r.metrics.Batches,
		JobsSucceeded:     r.metrics.JobsSucceeded,
		JobsFailed:        r.metrics.JobsFailed,
		JobsSkipped:       r.metrics.JobsSkipped,
		Recorded:          r.metrics.Recorded,
		LastBatchAt:       r.metrics.LastBatchAt,
		LastBatchDuration: r.metrics.LastBatchDuration,
		TotalDuration:     r.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns the current metrics as a map.
func (r *BatchRunner) MetricsSnapshot() map[string]interface{} {
	m := r.GetMetrics()
	return map[string]interface{}{
		"batches":             m.Batches,
		"jobs_succeeded":      m.JobsSucceeded,
		"jobs_failed":         m.JobsFailed,
		"jobs_skipped":        m.JobsSkipped,
		"recorded":            m.Recorded,
		"last_batch_at":       m.LastBatchAt,
		"last_batch_duration": m.LastBatchDuration.String(),
		"total_duration":      m.TotalDuration.String(),
	}
}
