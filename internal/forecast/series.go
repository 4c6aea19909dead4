package forecast

import (
	"math"
	"sort"
	"time"

	"github.com/congestionai/congestionai/internal/sampling"
)

// DefaultRankedWindows is the number of windows RankWindows returns.
const DefaultRankedWindows = 3

// HeatmapPoint is one cell of the heatmap series.
type HeatmapPoint struct {
	DepartAt   time.Time `json:"departAt"`
	HourOfWeek int       `json:"hourOfWeek"`
	Risk       float64   `json:"risk"`
	// Intensity is eta / max(1, maxEta) across the set.
	Intensity float64 `json:"intensity"`
}

// RankedWindow is one of the fastest departures of a set.
type RankedWindow struct {
	DepartAt      time.Time `json:"departAt"`
	OffsetMinutes int       `json:"offsetMinutes"`
	ETAMinutes    int       `json:"etaMinutes"`
	Risk          float64   `json:"risk"`
}

// BuildHeatmap returns one point per sample, in sample order.
func BuildHeatmap(samples []sampling.Sample) []HeatmapPoint {
	maxETA := 0
	for _, s := range samples {
		maxETA = max(maxETA, s.ETAMinutes)
	}
	denom := math.Max(1, float64(maxETA))

	points := make([]HeatmapPoint, len(samples))
	for i, s := range samples {
		points[i] = HeatmapPoint{
			DepartAt:   s.DepartAt,
			HourOfWeek: s.Features.HourOfWeek,
			Risk:       s.Risk,
			Intensity:  float64(s.ETAMinutes) / denom,
		}
	}
	return points
}

// RankWindows returns the n samples with the lowest ETA, fastest first.
// Equal ETAs keep time order. A non-positive n means DefaultRankedWindows.
func RankWindows(samples []sampling.Sample, n int) []RankedWindow {
	if n <= 0 {
		n = DefaultRankedWindows
	}

	sorted := make([]sampling.Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ETAMinutes < sorted[j].ETAMinutes
	})

	out := make([]RankedWindow, 0, min(n, len(sorted)))
	for _, s := range sorted[:min(n, len(sorted))] {
		out = append(out, RankedWindow{
			DepartAt:      s.DepartAt,
			OffsetMinutes: s.OffsetMinutes,
			ETAMinutes:    s.ETAMinutes,
			Risk:          s.Risk,
		})
	}
	return out
}
