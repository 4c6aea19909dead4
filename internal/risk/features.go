// Package risk derives per-departure features and scores congestion risk.
package risk

import (
	"math"
	"time"
)

// MaxPrecipitationMM is the upper clamp for the precipitation feature.
const MaxPrecipitationMM = 10.0

// Features is the fixed-size feature vector for one candidate departure.
type Features struct {
	HourOfWeek      int     `json:"hourOfWeek"` // 0..167, Sunday 00:00 = 0
	IsPeak          bool    `json:"isPeak"`
	IsWeekend       bool    `json:"isWeekend"`
	IsHoliday       bool    `json:"isHoliday"`
	PrecipitationMM float64 `json:"precipitationMm"` // clamped to [0,10]
	ETARatio        float64 `json:"etaRatio"`        // >= 1
}

// FeatureInput carries the raw values a feature vector is built from.
type FeatureInput struct {
	DepartAt         time.Time
	ETAMinutes       int
	StaticETAMinutes int

	// PrecipitationMM is optional; nil means no weather data.
	PrecipitationMM *float64
	IsHoliday       bool
}

// BuildFeatures derives the feature vector. Calendar fields are read in loc,
// which must be the traveler's zone; nil means UTC.
func BuildFeatures(in FeatureInput, loc *time.Location) Features {
	if loc == nil {
		loc = time.UTC
	}
	local := in.DepartAt.In(loc)
	dow := int(local.Weekday())
	hour := local.Hour()

	rain := 0.0
	if in.PrecipitationMM != nil {
		rain = ClampPrecipitation(*in.PrecipitationMM)
	}

	return Features{
		HourOfWeek:      dow*24 + hour,
		IsPeak:          isPeakHour(hour),
		IsWeekend:       local.Weekday() == time.Sunday || local.Weekday() == time.Saturday,
		IsHoliday:       in.IsHoliday,
		PrecipitationMM: rain,
		ETARatio:        etaRatio(in.ETAMinutes, in.StaticETAMinutes),
	}
}

// ClampPrecipitation bounds a precipitation reading to [0, MaxPrecipitationMM].
func ClampPrecipitation(mm float64) float64 {
	if math.IsNaN(mm) {
		return 0
	}
	return math.Min(MaxPrecipitationMM, math.Max(0, mm))
}

func isPeakHour(h int) bool {
	return (h >= 7 && h <= 9) || (h >= 17 && h <= 19)
}

// etaRatio treats a zero ETA as one minute and a zero static ETA as the ETA.
func etaRatio(eta, static int) float64 {
	if eta <= 0 {
		eta = 1
	}
	if static <= 0 {
		static = eta
	}
	return math.Max(1, float64(eta)/math.Max(1, float64(static)))
}
