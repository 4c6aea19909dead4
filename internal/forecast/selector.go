// Package forecast turns a sampled departure set into recommendations:
// the best window, chronological alternatives, ranked windows, a heatmap
// series and a savings estimate.
package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/congestionai/congestionai/internal/routing"
	"github.com/congestionai/congestionai/internal/sampling"
	"github.com/congestionai/congestionai/pkg/polyline"
)

const (
	// DefaultAlpha weights ETA against risk in the objective.
	DefaultAlpha = 0.7

	// DefaultAlternatives is the length of the chronological short list.
	DefaultAlternatives = 6
)

// BestWindow is the recommended departure.
type BestWindow struct {
	DepartAt      time.Time `json:"departAt"`
	OffsetMinutes int       `json:"offsetMinutes"`
	ETAMinutes    int       `json:"etaMinutes"`

	// SavingVsNow is relative to the earliest sample, which is the first
	// grid slot rather than a literal immediate departure.
	SavingVsNow float64  `json:"savingVsNow"`
	Risk        float64  `json:"risk"`
	Explain     []string `json:"explain"`

	Polyline       string                  `json:"polyline,omitempty"`
	SpeedIntervals []routing.SpeedInterval `json:"speedIntervals,omitempty"`

	// CongestedShare is the fraction of the path length in slow or jammed
	// intervals, 0 when the path is unknown.
	CongestedShare float64 `json:"congestedShare"`
}

// Selection is the output of SelectBest.
type Selection struct {
	Best         BestWindow
	BestIndex    int
	Alternatives []sampling.Sample
	Alpha        float64
}

// Objective is the minimized score J = alpha*eta + (1-alpha)*risk*100.
func Objective(s sampling.Sample, alpha float64) float64 {
	return alpha*float64(s.ETAMinutes) + (1-alpha)*(s.Risk*100)
}

// NormalizeAlpha returns alpha when it lies in [0,1] and DefaultAlpha otherwise.
func NormalizeAlpha(alpha float64) float64 {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return DefaultAlpha
	}
	return alpha
}

// SelectBest picks the sample minimizing Objective. Samples must be in time
// order; the earliest sample wins ties. Alternatives are the first
// alternatives samples in time order, not the next best by score. A
// non-positive alternatives count means DefaultAlternatives.
func SelectBest(samples []sampling.Sample, alpha float64, alternatives int) (*Selection, error) {
	if len(samples) == 0 {
		return nil, sampling.ErrNoSamplesAvailable
	}
	alpha = NormalizeAlpha(alpha)
	if alternatives <= 0 {
		alternatives = DefaultAlternatives
	}

	bestIdx := 0
	bestJ := Objective(samples[0], alpha)
	for i := 1; i < len(samples); i++ {
		if j := Objective(samples[i], alpha); j < bestJ {
			bestIdx, bestJ = i, j
		}
	}

	best := samples[bestIdx]
	nowETA := samples[0].ETAMinutes

	alts := make([]sampling.Sample, min(alternatives, len(samples)))
	copy(alts, samples)

	return &Selection{
		Best: BestWindow{
			DepartAt:       best.DepartAt,
			OffsetMinutes:  best.OffsetMinutes,
			ETAMinutes:     best.ETAMinutes,
			SavingVsNow:    SavingVsNow(nowETA, best.ETAMinutes),
			Risk:           best.Risk,
			Explain:        explain(best),
			Polyline:       best.Polyline,
			SpeedIntervals: best.SpeedIntervals,
			CongestedShare: CongestedShare(best.Polyline, best.SpeedIntervals),
		},
		BestIndex:    bestIdx,
		Alternatives: alts,
		Alpha:        alpha,
	}, nil
}

// SavingVsNow is max(0, (nowETA-eta)/max(1, nowETA)).
func SavingVsNow(nowETA, eta int) float64 {
	return math.Max(0, float64(nowETA-eta)/math.Max(1, float64(nowETA)))
}

func explain(s sampling.Sample) []string {
	out := make([]string, 0, len(s.Contributors))
	for _, c := range s.Contributors {
		out = append(out, fmt.Sprintf("%s +%d%%", c.Label, c.DeltaPercent))
	}
	return out
}

// CongestedShare measures the slow and jammed portion of an encoded path.
func CongestedShare(encoded string, intervals []routing.SpeedInterval) float64 {
	if encoded == "" || len(intervals) == 0 {
		return 0
	}
	coords := polyline.Decode(encoded)
	total := polyline.Length(coords)
	if total == 0 {
		return 0
	}

	var congested float64
	for _, iv := range intervals {
		if iv.Speed == routing.SpeedSlow || iv.Speed == routing.SpeedTrafficJam {
			congested += polyline.LengthBetween(coords, iv.StartIndex, iv.EndIndex)
		}
	}
	return math.Min(1, congested/total)
}
