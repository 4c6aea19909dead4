package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/congestionai/congestionai/internal/api/models"
	"github.com/congestionai/congestionai/internal/api/response"
	"github.com/congestionai/congestionai/internal/forecast"
	"github.com/congestionai/congestionai/internal/routing"
	"github.com/congestionai/congestionai/internal/sampling"
)

// Planner computes departure plans.
type Planner interface {
	Analyze(ctx context.Context, req forecast.AnalyzeRequest) (*forecast.Analysis, error)
	Forecast(ctx context.Context, req forecast.ForecastRequest) (*forecast.Forecast, error)
}

// DepartureHandler handles the analyze and forecast endpoints.
type DepartureHandler struct {
	planner Planner
	logger  zerolog.Logger
	now     func() time.Time
}

// NewDepartureHandler creates a new DepartureHandler.
func NewDepartureHandler(planner Planner, logger zerolog.Logger) *DepartureHandler {
	return &DepartureHandler{
		planner: planner,
		logger:  logger,
		now:     time.Now,
	}
}

// Analyze handles POST /v1/departures:analyze - best departure in a short window.
func (h *DepartureHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var input models.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "request validation failed", errs)
		return
	}

	analysis, err := h.planner.Analyze(r.Context(), forecast.AnalyzeRequest{
		Query:   input.Query(),
		Vehicle: input.Vehicle.Vehicle(),
	})
	if err != nil {
		h.writePlanError(w, r, err, models.CodeNoRoutes)
		return
	}

	response.JSON(w, r, http.StatusOK, models.AnalyzeResponse{
		GeneratedAt: models.Timestamp(h.now()),
		Analysis:    *analysis,
	})
}

// Forecast handles POST /v1/departures:forecast - ranked windows over a long horizon.
func (h *DepartureHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	var input models.ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "request validation failed", errs)
		return
	}

	fc, err := h.planner.Forecast(r.Context(), forecast.ForecastRequest{
		Query:   input.Query(),
		Windows: input.Windows,
	})
	if err != nil {
		h.writePlanError(w, r, err, models.CodeNoForecast)
		return
	}

	response.JSON(w, r, http.StatusOK, models.ForecastResponse{
		GeneratedAt: models.Timestamp(h.now()),
		Forecast:    *fc,
	})
}

// writePlanError maps planner failures to problems. emptyCode is the code
// used when no departure in the grid produced a route.
func (h *DepartureHandler) writePlanError(w http.ResponseWriter, r *http.Request, err error, emptyCode string) {
	if errors.Is(err, forecast.ErrInvalidRequest) {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	h.logger.Warn().Err(err).
		Str("request_id", GetRequestID(r.Context())).
		Str("path", r.URL.Path).
		Msg("departure planning failed")

	var failure *routing.ProviderFailure
	switch {
	case errors.Is(err, sampling.ErrNoSamplesAvailable):
		response.NoRoutes(w, r, emptyCode, "no departure in the window returned a route")
	case errors.Is(err, routing.ErrUnauthenticated):
		response.ProviderUnauthenticated(w, r, "the routing provider rejected the configured credentials")
	case errors.As(err, &failure):
		response.UpstreamError(w, r, failure.Provider+" request failed")
	default:
		response.UpstreamError(w, r, "departure planning failed")
	}
}
