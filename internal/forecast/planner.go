package forecast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // request time zones must resolve on hosts without zoneinfo

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/congestionai/congestionai/internal/holiday"
	"github.com/congestionai/congestionai/internal/routing"
	"github.com/congestionai/congestionai/internal/sampling"
	"github.com/congestionai/congestionai/internal/waypoint"
	"github.com/congestionai/congestionai/internal/weather"
	"github.com/congestionai/congestionai/pkg/polyline"
)

const tracerName = "github.com/congestionai/congestionai/internal/forecast"

// Default grids.
const (
	DefaultAnalyzeHorizonMinutes  = 120
	DefaultAnalyzeStepMinutes     = 20
	DefaultForecastHorizonMinutes = 72 * 60
	DefaultForecastStepMinutes    = 60
)

// ErrInvalidRequest is returned for requests rejected before sampling.
var ErrInvalidRequest = errors.New("invalid departure request")

// Sampler runs the departure grid.
type Sampler interface {
	Sample(ctx context.Context, req sampling.Request) (*sampling.Result, error)
}

// PrecipitationSource provides hourly precipitation forecasts.
type PrecipitationSource interface {
	GetForecast(ctx context.Context, lat, lon float64) (*weather.Forecast, error)
	Name() string
}

// Query is the part of a request shared by Analyze and Forecast.
type Query struct {
	Origin      waypoint.Waypoint
	Destination waypoint.Waypoint

	// Zero means the operation's default grid.
	HorizonMinutes int
	StepMinutes    int

	Modifiers routing.RouteModifiers

	// Optional overrides of the external inputs.
	PrecipitationMM *float64
	IsHoliday       *bool
	Alpha           *float64

	// TimeZone is an IANA zone name; empty means the planner default.
	TimeZone string
	// Country selects the holiday calendar; empty means the planner default.
	Country string
}

// AnalyzeRequest is a short-window analysis.
type AnalyzeRequest struct {
	Query

	// Vehicle overrides the savings defaults field by field.
	Vehicle *Vehicle
}

// ForecastRequest is a long-horizon forecast.
type ForecastRequest struct {
	Query

	// Windows is the number of ranked windows; zero means DefaultRankedWindows.
	Windows int
}

// Stats describes how a result was produced.
type Stats struct {
	Requested      int     `json:"requested"`
	Succeeded      int     `json:"succeeded"`
	Retried        int     `json:"retried"`
	Dropped        int     `json:"dropped"`
	HorizonMinutes int     `json:"horizonMinutes"`
	StepMinutes    int     `json:"stepMinutes"`
	Alpha          float64 `json:"alpha"`
	TimeZone       string  `json:"timeZone"`
	Country        string  `json:"country"`
	Precipitation  string  `json:"precipitationSource"`
	Holidays       string  `json:"holidaySource"`
}

// Analysis is the result of Analyze.
type Analysis struct {
	Best         BestWindow        `json:"best"`
	Alternatives []sampling.Sample `json:"alternatives"`
	Samples      []sampling.Sample `json:"samples"`
	Heatmap      []HeatmapPoint    `json:"heatmap"`
	Savings      Savings           `json:"savings"`
	Notes        []string          `json:"notes"`
	Stats        Stats             `json:"stats"`
}

// Forecast is the result of Forecast.
type Forecast struct {
	Best          BestWindow        `json:"best"`
	RankedWindows []RankedWindow    `json:"rankedWindows"`
	Samples       []sampling.Sample `json:"samples"`
	Heatmap       []HeatmapPoint    `json:"heatmap"`
	Notes         []string          `json:"notes"`
	Stats         Stats             `json:"stats"`
}

// PlannerConfig holds dependencies and defaults for a Planner.
type PlannerConfig struct {
	Sampler Sampler

	// Weather is optional; without it precipitation is 0 unless the request
	// supplies it.
	Weather PrecipitationSource

	// DefaultTimeZone is an IANA name; empty means UTC.
	DefaultTimeZone string

	// DefaultCountry defaults to holiday.DefaultCountry.
	DefaultCountry string

	// Calendar reports which countries have holiday data; it should be the
	// sampler's calendar. Defaults to holiday.NewDefaultCalendar.
	Calendar *holiday.Calendar

	// Alpha defaults to DefaultAlpha when nil. Zero is a valid weight that
	// ranks by risk alone.
	Alpha *float64

	// Alternatives defaults to DefaultAlternatives.
	Alternatives int

	// Vehicle supplies savings defaults; zero fields use DefaultVehicle.
	Vehicle Vehicle

	Logger zerolog.Logger
}

// Planner orchestrates sampling, selection and derived series.
type Planner struct {
	sampler      Sampler
	weather      PrecipitationSource
	location     *time.Location
	country      string
	calendar     *holiday.Calendar
	alpha        float64
	alternatives int
	vehicle      Vehicle
	logger       zerolog.Logger
}

// NewPlanner creates a planner. An unknown DefaultTimeZone is an error.
func NewPlanner(cfg PlannerConfig) (*Planner, error) {
	loc := time.UTC
	if cfg.DefaultTimeZone != "" {
		l, err := time.LoadLocation(cfg.DefaultTimeZone)
		if err != nil {
			return nil, fmt.Errorf("loading default time zone: %w", err)
		}
		loc = l
	}

	country := strings.ToLower(cfg.DefaultCountry)
	if country == "" {
		country = holiday.DefaultCountry
	}

	alpha := DefaultAlpha
	if cfg.Alpha != nil {
		alpha = NormalizeAlpha(*cfg.Alpha)
	}

	calendar := cfg.Calendar
	if calendar == nil {
		calendar = holiday.NewDefaultCalendar()
	}

	alternatives := cfg.Alternatives
	if alternatives <= 0 {
		alternatives = DefaultAlternatives
	}

	return &Planner{
		sampler:      cfg.Sampler,
		weather:      cfg.Weather,
		location:     loc,
		country:      country,
		calendar:     calendar,
		alpha:        alpha,
		alternatives: alternatives,
		vehicle:      cfg.Vehicle.WithDefaults(DefaultVehicle()),
		logger:       cfg.Logger,
	}, nil
}

// run is the prepared state of one request.
type run struct {
	kind   string
	alpha  float64
	result *sampling.Result
	sel    *Selection
	stats  Stats
}

// Analyze samples a short window and returns the best departure with
// chronological alternatives, a heatmap and a savings estimate.
func (p *Planner) Analyze(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	r, err := p.execute(ctx, "analyze", req.Query, DefaultAnalyzeHorizonMinutes, DefaultAnalyzeStepMinutes)
	if err != nil {
		return nil, err
	}

	vehicle := p.vehicle
	explicitTrip := false
	if req.Vehicle != nil {
		vehicle = req.Vehicle.WithDefaults(p.vehicle)
		explicitTrip = req.Vehicle.TripKm > 0
	}
	if !explicitTrip {
		if km := polyline.EncodedLengthKm(r.sel.Best.Polyline); km > 0 {
			vehicle.TripKm = km
		}
	}

	return &Analysis{
		Best:         r.sel.Best,
		Alternatives: r.sel.Alternatives,
		Samples:      r.result.Samples,
		Heatmap:      BuildHeatmap(r.result.Samples),
		Savings: EstimateSavings(SavingsInput{
			ETAMinutes:  r.sel.Best.ETAMinutes,
			SavingVsNow: r.sel.Best.SavingVsNow,
			Vehicle:     vehicle,
		}),
		Notes: notes(r),
		Stats: r.stats,
	}, nil
}

// Forecast samples a long horizon and returns the fastest windows.
func (p *Planner) Forecast(ctx context.Context, req ForecastRequest) (*Forecast, error) {
	r, err := p.execute(ctx, "forecast", req.Query, DefaultForecastHorizonMinutes, DefaultForecastStepMinutes)
	if err != nil {
		return nil, err
	}

	return &Forecast{
		Best:          r.sel.Best,
		RankedWindows: RankWindows(r.result.Samples, req.Windows),
		Samples:       r.result.Samples,
		Heatmap:       BuildHeatmap(r.result.Samples),
		Notes:         notes(r),
		Stats:         r.stats,
	}, nil
}

func (p *Planner) execute(ctx context.Context, kind string, q Query, defHorizon, defStep int) (*run, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "forecast."+kind)
	defer span.End()

	if q.Origin.IsZero() || q.Destination.IsZero() {
		return nil, fmt.Errorf("%w: origin and destination are required", ErrInvalidRequest)
	}
	for _, w := range []waypoint.Waypoint{q.Origin, q.Destination} {
		if err := routing.ValidateWaypoint(w); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	if q.HorizonMinutes < 0 || q.StepMinutes < 0 {
		return nil, fmt.Errorf("%w: horizon and step must not be negative", ErrInvalidRequest)
	}

	loc := p.location
	if q.TimeZone != "" {
		l, err := time.LoadLocation(q.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown time zone %q", ErrInvalidRequest, q.TimeZone)
		}
		loc = l
	}

	country := strings.ToLower(q.Country)
	if country == "" {
		country = p.country
	}

	alpha := p.alpha
	if q.Alpha != nil {
		alpha = NormalizeAlpha(*q.Alpha)
	}

	horizon := q.HorizonMinutes
	if horizon == 0 {
		horizon = defHorizon
	}
	step := q.StepMinutes
	if step == 0 {
		step = defStep
	}

	scoring := sampling.Scoring{
		Location:        loc,
		Country:         country,
		PrecipitationMM: q.PrecipitationMM,
		IsHoliday:       q.IsHoliday,
	}
	holidaySource := "calendar"
	switch {
	case q.IsHoliday != nil:
		holidaySource = "request"
	case !p.calendar.Supports(country):
		holidaySource = "none"
		p.logger.Warn().
			Str("country", country).
			Msg("no holiday calendar for country, treating every day as a workday")
	}

	precipSource := "none"
	if q.PrecipitationMM != nil {
		precipSource = "request"
	} else if lookup, name := p.precipitation(ctx, q.Origin); lookup != nil {
		scoring.Precipitation = lookup
		precipSource = name
	}

	span.SetAttributes(
		attribute.Int("forecast.horizon_minutes", horizon),
		attribute.Int("forecast.step_minutes", step),
		attribute.String("forecast.country", country),
	)

	result, err := p.sampler.Sample(ctx, sampling.Request{
		Origin:         q.Origin,
		Destination:    q.Destination,
		HorizonMinutes: horizon,
		StepMinutes:    step,
		Modifiers:      q.Modifiers,
		Scoring:        scoring,
	})
	if err != nil {
		return nil, err
	}

	sel, err := SelectBest(result.Samples, alpha, p.alternatives)
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("kind", kind).
		Int("requested", result.Requested).
		Int("succeeded", result.Succeeded).
		Int("dropped", result.Dropped).
		Time("best_depart_at", sel.Best.DepartAt).
		Int("best_eta_minutes", sel.Best.ETAMinutes).
		Dur("duration", result.Duration).
		Msg("departure plan computed")

	return &run{
		kind:   kind,
		alpha:  alpha,
		result: result,
		sel:    sel,
		stats: Stats{
			Requested:      result.Requested,
			Succeeded:      result.Succeeded,
			Retried:        result.Retried,
			Dropped:        result.Dropped,
			HorizonMinutes: result.HorizonMinutes,
			StepMinutes:    result.StepMinutes,
			Alpha:          alpha,
			TimeZone:       loc.String(),
			Country:        country,
			Precipitation:  precipSource,
			Holidays:       holidaySource,
		},
	}, nil
}

// precipitation fetches one forecast for the origin. It returns nil when no
// source is configured, the origin has no coordinates, or the fetch fails.
func (p *Planner) precipitation(ctx context.Context, origin waypoint.Waypoint) (sampling.PrecipitationFunc, string) {
	if p.weather == nil || origin.Kind != waypoint.KindCoordinate {
		return nil, ""
	}

	fc, err := p.weather.GetForecast(ctx, origin.Lat, origin.Lng)
	if err != nil {
		p.logger.Warn().Err(err).
			Str("provider", p.weather.Name()).
			Msg("precipitation lookup failed, assuming dry")
		return nil, ""
	}
	return fc.PrecipitationAt, "weather:" + p.weather.Name()
}

func notes(r *run) []string {
	s := r.stats
	return []string{
		fmt.Sprintf("%s horizon=%s step=%dm", r.kind, horizonLabel(s.HorizonMinutes), s.StepMinutes),
		fmt.Sprintf("alpha=%.2f", r.alpha),
		fmt.Sprintf("samples requested=%d succeeded=%d retried=%d dropped=%d",
			s.Requested, s.Succeeded, s.Retried, s.Dropped),
		fmt.Sprintf("timezone=%s country=%s", s.TimeZone, s.Country),
		"precipitation=" + s.Precipitation,
		"holidays=" + s.Holidays,
		"traffic-aware routing, field mask applied",
	}
}

func horizonLabel(minutes int) string {
	if minutes%60 == 0 {
		return fmt.Sprintf("%dh", minutes/60)
	}
	return fmt.Sprintf("%dm", minutes)
}
