// Package weather supplies hourly precipitation forecasts used as the rain
// feature of departure risk.
package weather

import (
	"errors"
	"sort"
	"time"
)

// Weather errors.
var (
	ErrProviderUnavailable = errors.New("weather provider unavailable")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
)

// Condition represents the general weather condition.
type Condition string

const (
	ConditionClear        Condition = "CLEAR"
	ConditionClouds       Condition = "CLOUDS"
	ConditionRain         Condition = "RAIN"
	ConditionDrizzle      Condition = "DRIZZLE"
	ConditionThunderstorm Condition = "THUNDERSTORM"
	ConditionSnow         Condition = "SNOW"
	ConditionFog          Condition = "FOG"
	ConditionUnknown      Condition = "UNKNOWN"
)

// Forecast is an hourly precipitation forecast for one location.
type Forecast struct {
	Lat float64
	Lon float64

	// Hourly is ordered by Time ascending.
	Hourly []HourlyForecast

	FetchedAt time.Time
}

// HourlyForecast is the forecast for the hour starting at Time.
type HourlyForecast struct {
	Time            time.Time
	PrecipitationMM float64 // rain + snow over the hour
	PrecipProb      float64 // 0-1
	Condition       Condition
	Description     string
}

// PrecipitationAt returns the precipitation of the hour containing t.
// It reports false when t falls outside the forecast.
func (f *Forecast) PrecipitationAt(t time.Time) (float64, bool) {
	if f == nil || len(f.Hourly) == 0 {
		return 0, false
	}

	i := sort.Search(len(f.Hourly), func(i int) bool {
		return f.Hourly[i].Time.After(t)
	}) - 1
	if i < 0 {
		return 0, false
	}

	h := f.Hourly[i]
	if !t.Before(h.Time.Add(time.Hour)) {
		return 0, false
	}
	return h.PrecipitationMM, true
}

// IsWet reports whether the hour carries measurable precipitation.
func (h HourlyForecast) IsWet() bool {
	switch h.Condition {
	case ConditionRain, ConditionDrizzle, ConditionThunderstorm, ConditionSnow:
		return true
	}
	return h.PrecipitationMM > 0
}
