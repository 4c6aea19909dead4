package models

import (
	"github.com/congestionai/congestionai/internal/forecast"
	"github.com/congestionai/congestionai/internal/routing"
	"github.com/congestionai/congestionai/internal/waypoint"
)

// DepartureRequest holds the fields shared by analyze and forecast.
// Origin and destination accept an address string, "lat,lng" text, or an
// object with placeId or lat/lng.
type DepartureRequest struct {
	Origin      waypoint.Input `json:"origin"`
	Destination waypoint.Input `json:"destination"`

	// HorizonMinutes wins over HorizonHours when both are set. Values are
	// clamped to the sampler's range.
	HorizonMinutes int `json:"horizonMinutes,omitempty" validate:"gte=0"`
	HorizonHours   int `json:"horizonHours,omitempty" validate:"gte=0"`
	StepMinutes    int `json:"stepMinutes,omitempty" validate:"gte=0"`

	AvoidTolls    bool `json:"avoidTolls,omitempty"`
	AvoidHighways bool `json:"avoidHighways,omitempty"`

	PrecipitationMM *float64 `json:"precipitationMm,omitempty"`
	IsHoliday       *bool    `json:"isHoliday,omitempty"`

	// Alpha outside [0,1] falls back to the default weight.
	Alpha *float64 `json:"alpha,omitempty"`

	TimeZone string `json:"timeZone,omitempty" validate:"omitempty,timezone"`
	Country  string `json:"country,omitempty" validate:"omitempty,len=2,alpha"`
}

// Validate checks struct tags and that both endpoints are present and
// within coordinate range.
func (r *DepartureRequest) Validate() []FieldError {
	errs := ValidateStruct(r)
	errs = appendWaypointErrors(errs, "origin", waypoint.Normalize(r.Origin))
	errs = appendWaypointErrors(errs, "destination", waypoint.Normalize(r.Destination))
	return errs
}

func appendWaypointErrors(errs []FieldError, field string, w waypoint.Waypoint) []FieldError {
	if w.IsZero() {
		return append(errs, FieldError{Field: field, Message: field + " is required", Code: "REQUIRED"})
	}
	if err := routing.ValidateWaypoint(w); err != nil {
		return append(errs, FieldError{Field: field, Message: err.Error(), Code: "OUT_OF_RANGE"})
	}
	return errs
}

// Query converts the request into a planner query.
func (r *DepartureRequest) Query() forecast.Query {
	horizon := r.HorizonMinutes
	if horizon == 0 && r.HorizonHours > 0 {
		horizon = r.HorizonHours * 60
	}
	return forecast.Query{
		Origin:         waypoint.Normalize(r.Origin),
		Destination:    waypoint.Normalize(r.Destination),
		HorizonMinutes: horizon,
		StepMinutes:    r.StepMinutes,
		Modifiers: routing.RouteModifiers{
			AvoidTolls:    r.AvoidTolls,
			AvoidHighways: r.AvoidHighways,
		},
		PrecipitationMM: r.PrecipitationMM,
		IsHoliday:       r.IsHoliday,
		Alpha:           r.Alpha,
		TimeZone:        r.TimeZone,
		Country:         r.Country,
	}
}

// VehicleInput overrides the savings defaults field by field.
type VehicleInput struct {
	FuelPricePerLiter float64 `json:"fuelPricePerLiter,omitempty" validate:"gte=0"`
	LitersPer100Km    float64 `json:"litersPer100Km,omitempty" validate:"gte=0,lte=100"`
	TripKm            float64 `json:"tripKm,omitempty" validate:"gte=0,lte=2000"`
}

// Vehicle converts the input; nil stays nil.
func (v *VehicleInput) Vehicle() *forecast.Vehicle {
	if v == nil {
		return nil
	}
	return &forecast.Vehicle{
		FuelPricePerLiter: v.FuelPricePerLiter,
		LitersPer100Km:    v.LitersPer100Km,
		TripKm:            v.TripKm,
	}
}

// AnalyzeRequest is the request body for POST /v1/departures:analyze.
type AnalyzeRequest struct {
	DepartureRequest
	Vehicle *VehicleInput `json:"vehicle,omitempty" validate:"-"`
}

// Validate validates the analyze request.
func (r *AnalyzeRequest) Validate() []FieldError {
	errs := r.DepartureRequest.Validate()
	if r.Vehicle != nil {
		errs = append(errs, prefixed("vehicle", ValidateStruct(r.Vehicle))...)
	}
	return errs
}

// ForecastRequest is the request body for POST /v1/departures:forecast.
type ForecastRequest struct {
	DepartureRequest

	// Windows is the number of ranked windows returned. Default: 3
	Windows int `json:"windows,omitempty" validate:"gte=0,lte=24"`
}

// Validate validates the forecast request.
func (r *ForecastRequest) Validate() []FieldError {
	return r.DepartureRequest.Validate()
}

// SavingsRequest is the request body for POST /v1/savings:estimate.
type SavingsRequest struct {
	ETAMinutes  int           `json:"etaMinutes" validate:"required,gte=1"`
	SavingVsNow float64       `json:"savingVsNow" validate:"gte=0,lte=1"`
	Vehicle     *VehicleInput `json:"vehicle,omitempty" validate:"-"`
}

// Validate validates the savings request.
func (r *SavingsRequest) Validate() []FieldError {
	errs := ValidateStruct(r)
	if r.Vehicle != nil {
		errs = append(errs, prefixed("vehicle", ValidateStruct(r.Vehicle))...)
	}
	return errs
}

func prefixed(prefix string, errs []FieldError) []FieldError {
	for i := range errs {
		errs[i].Field = prefix + "." + errs[i].Field
	}
	return errs
}

// AnalyzeResponse is the response for POST /v1/departures:analyze.
type AnalyzeResponse struct {
	GeneratedAt Timestamp `json:"generatedAt"`
	forecast.Analysis
}

// ForecastResponse is the response for POST /v1/departures:forecast.
type ForecastResponse struct {
	GeneratedAt Timestamp `json:"generatedAt"`
	forecast.Forecast
}

// SavingsResponse is the response for POST /v1/savings:estimate.
type SavingsResponse struct {
	forecast.Savings
	Vehicle forecast.Vehicle `json:"vehicle"`
}
