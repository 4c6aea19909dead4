package sampling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/congestionai/congestionai/internal/holiday"
	"github.com/congestionai/congestionai/internal/risk"
	"github.com/congestionai/congestionai/internal/routing"
	"github.com/congestionai/congestionai/internal/waypoint"
)

const tracerName = "github.com/congestionai/congestionai/internal/sampling"

// ErrNoSamplesAvailable is returned when every offset in the grid failed.
var ErrNoSamplesAvailable = errors.New("no samples available for the requested window")

// CallRecorder receives one record per provider call.
type CallRecorder interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
}

// PrecipitationFunc returns the expected precipitation in millimetres at a
// departure time, or false when unknown.
type PrecipitationFunc func(departAt time.Time) (float64, bool)

// Scoring carries the per-request inputs of feature building.
type Scoring struct {
	// Location is the traveler's time zone; nil means UTC.
	Location *time.Location

	// Country selects the holiday calendar.
	Country string

	// PrecipitationMM overrides any precipitation lookup when set.
	PrecipitationMM *float64

	// IsHoliday overrides the holiday calendar when set.
	IsHoliday *bool

	// Precipitation is consulted per sample when PrecipitationMM is nil.
	Precipitation PrecipitationFunc
}

// Request describes one sampling run for a single origin/destination pair.
type Request struct {
	Origin         waypoint.Waypoint
	Destination    waypoint.Waypoint
	HorizonMinutes int
	StepMinutes    int
	Modifiers      routing.RouteModifiers

	// Concurrency overrides Config.Concurrency when positive.
	Concurrency int

	Scoring Scoring
}

// Sample is one scored candidate departure.
type Sample struct {
	// RequestedOffsetMinutes is the grid slot this sample represents.
	RequestedOffsetMinutes int `json:"requestedOffsetMinutes"`
	// OffsetMinutes is the offset actually queried; it includes the retry
	// shift when Retried is true.
	OffsetMinutes int       `json:"offsetMinutes"`
	DepartAt      time.Time `json:"departAt"`
	Retried       bool      `json:"retried"`

	ETAMinutes       int                     `json:"etaMinutes"`
	StaticETAMinutes int                     `json:"staticEtaMinutes"`
	Risk             float64                 `json:"risk"`
	Contributors     []risk.Contributor      `json:"contributors"`
	Features         risk.Features           `json:"features"`
	Polyline         string                  `json:"polyline,omitempty"`
	SpeedIntervals   []routing.SpeedInterval `json:"speedIntervals"`
}

// Result is the outcome of a sampling run.
type Result struct {
	// Samples are ordered by RequestedOffsetMinutes.
	Samples []Sample

	Requested int
	Succeeded int
	Retried   int
	Dropped   int

	// Effective grid after clamping.
	HorizonMinutes int
	StepMinutes    int
	Concurrency    int

	StartedAt time.Time
	Duration  time.Duration
}

// SamplerConfig holds dependencies for a Sampler.
type SamplerConfig struct {
	Config   Config
	Provider routing.Provider
	Scorer   risk.Scorer
	Calendar *holiday.Calendar
	Metrics  CallRecorder
	Logger   zerolog.Logger

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Sampler dispatches provider calls for a grid of departure offsets using a
// fixed-size worker pool.
type Sampler struct {
	config   Config
	provider routing.Provider
	scorer   risk.Scorer
	calendar *holiday.Calendar
	metrics  CallRecorder
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSampler creates a sampler. Scorer defaults to risk.NewDefaultScorer
// and Calendar to holiday.NewDefaultCalendar.
func NewSampler(cfg SamplerConfig) *Sampler {
	scorer := cfg.Scorer
	if scorer == nil {
		scorer = risk.NewDefaultScorer()
	}
	calendar := cfg.Calendar
	if calendar == nil {
		calendar = holiday.NewDefaultCalendar()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Sampler{
		config:   cfg.Config.withDefaults(),
		provider: cfg.Provider,
		scorer:   scorer,
		calendar: calendar,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      now,
	}
}

// Config returns the effective configuration.
func (s *Sampler) Config() Config {
	return s.config
}

type attemptOutcome struct {
	sample  *Sample
	retried bool
	err     error
}

// Sample runs the provider across the offset grid and returns every
// successful sample sorted by requested offset. Individual failures are
// retried once at offset+RetryShift and otherwise dropped. When no offset
// succeeds the error is ErrNoSamplesAvailable, or routing.ErrUnauthenticated
// if every failure was a credential problem. Cancelling ctx stops queued
// offsets and aborts in-flight calls.
func (s *Sampler) Sample(ctx context.Context, req Request) (*Result, error) {
	started := s.now()
	offsets := s.config.Offsets(req.HorizonMinutes, req.StepMinutes)

	concurrency := s.config.Concurrency
	if req.Concurrency > 0 {
		concurrency = req.Concurrency
	}
	concurrency = min(concurrency, len(offsets))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "sampling.Sample")
	defer span.End()
	span.SetAttributes(
		attribute.Int("sampling.requested", len(offsets)),
		attribute.Int("sampling.concurrency", concurrency),
		attribute.String("routing.provider", s.provider.Name()),
	)

	result := &Result{
		Requested:      len(offsets),
		HorizonMinutes: s.config.ClampHorizon(req.HorizonMinutes),
		StepMinutes:    s.config.ClampStep(req.StepMinutes),
		Concurrency:    concurrency,
		StartedAt:      started,
	}

	s.logger.Debug().
		Str("origin", req.Origin.String()).
		Str("destination", req.Destination.String()).
		Int("offsets", len(offsets)).
		Int("step_minutes", result.StepMinutes).
		Int("concurrency", concurrency).
		Msg("starting departure sampling")

	offsetsChan := make(chan int)

	var (
		mu          sync.Mutex
		samples     = make([]Sample, 0, len(offsets))
		failures    int
		unauthFails int
		lastErr     error
		wg          sync.WaitGroup
	)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for offset := range offsetsChan {
				out := s.sampleOffset(ctx, req, started, offset)

				mu.Lock()
				switch {
				case out.sample != nil:
					samples = append(samples, *out.sample)
					if out.retried {
						result.Retried++
					}
				case out.err != nil && ctx.Err() == nil:
					failures++
					lastErr = out.err
					if errors.Is(out.err, routing.ErrUnauthenticated) {
						unauthFails++
					}
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, offset := range offsets {
		select {
		case offsetsChan <- offset:
		case <-ctx.Done():
			break feed
		}
	}
	close(offsetsChan)
	wg.Wait()

	result.Duration = s.now().Sub(started)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "canceled")
		return nil, err
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].RequestedOffsetMinutes < samples[j].RequestedOffsetMinutes
	})
	result.Samples = samples
	result.Succeeded = len(samples)
	result.Dropped = result.Requested - result.Succeeded

	span.SetAttributes(
		attribute.Int("sampling.succeeded", result.Succeeded),
		attribute.Int("sampling.retried", result.Retried),
		attribute.Int("sampling.dropped", result.Dropped),
	)

	if result.Dropped > 0 {
		s.logger.Warn().
			Int("requested", result.Requested).
			Int("succeeded", result.Succeeded).
			Int("dropped", result.Dropped).
			AnErr("last_error", lastErr).
			Msg("dropped departure samples after retry")
	}

	if result.Succeeded == 0 {
		span.SetStatus(codes.Error, "no samples")
		if failures > 0 && unauthFails == failures {
			return nil, fmt.Errorf("sampling: %w", lastErr)
		}
		if lastErr == nil {
			return nil, ErrNoSamplesAvailable
		}
		return nil, fmt.Errorf("%w: %d offsets failed: %w", ErrNoSamplesAvailable, failures, lastErr)
	}

	return result, nil
}

// sampleOffset queries one offset with a single shifted retry.
func (s *Sampler) sampleOffset(ctx context.Context, req Request, base time.Time, offset int) attemptOutcome {
	var (
		attempt int
		res     *routing.RouteResult
		queried int
	)

	operation := func() error {
		queried = offset
		if attempt > 0 {
			queried = offset + int(s.config.RetryShift/time.Minute)
		}
		attempt++

		var err error
		res, err = s.call(ctx, req, base.Add(time.Duration(queried)*time.Minute))
		if err != nil && !routing.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		s.logger.Debug().Err(err).
			Int("offset_minutes", offset).
			Int("attempts", attempt).
			Msg("departure sample failed")
		return attemptOutcome{err: err}
	}

	sample := s.annotate(req, res, offset, queried)
	sample.Retried = attempt > 1
	return attemptOutcome{sample: &sample, retried: sample.Retried}
}

// call performs one provider request under its own timeout.
func (s *Sampler) call(ctx context.Context, req Request, departAt time.Time) (*routing.RouteResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.provider.ComputeRoute(callCtx, routing.RouteRequest{
		Origin:      req.Origin,
		Destination: req.Destination,
		DepartAt:    departAt,
		Modifiers:   req.Modifiers,
	})
	if s.metrics != nil {
		s.metrics.RecordRequest(s.provider.Name(), "sample", time.Since(start), err)
	}
	if err == nil && res == nil {
		err = &routing.ProviderFailure{Provider: s.provider.Name(), Err: routing.ErrNoRouteFound}
	}
	return res, err
}

// annotate builds features and risk for a provider result.
func (s *Sampler) annotate(req Request, res *routing.RouteResult, requested, queried int) Sample {
	eta := max(res.ETAMinutes, 1)
	static := res.StaticETAMinutes
	if static <= 0 {
		static = eta
	}

	departAt := res.DepartAt
	sc := req.Scoring

	isHoliday := s.calendar.IsHoliday(sc.Country, departAt, sc.Location)
	if sc.IsHoliday != nil {
		isHoliday = *sc.IsHoliday
	}

	precip := sc.PrecipitationMM
	if precip == nil && sc.Precipitation != nil {
		if mm, ok := sc.Precipitation(departAt); ok {
			precip = &mm
		}
	}

	features := risk.BuildFeatures(risk.FeatureInput{
		DepartAt:         departAt,
		ETAMinutes:       eta,
		StaticETAMinutes: static,
		PrecipitationMM:  precip,
		IsHoliday:        isHoliday,
	}, sc.Location)
	assessment := s.scorer.Score(features)

	intervals := res.SpeedIntervals
	if intervals == nil {
		intervals = []routing.SpeedInterval{}
	}

	return Sample{
		RequestedOffsetMinutes: requested,
		OffsetMinutes:          queried,
		DepartAt:               departAt,
		ETAMinutes:             eta,
		StaticETAMinutes:       static,
		Risk:                   assessment.Risk,
		Contributors:           assessment.Contributors,
		Features:               features,
		Polyline:               res.Polyline,
		SpeedIntervals:         intervals,
	}
}
