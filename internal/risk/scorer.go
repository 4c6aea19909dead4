package risk

import (
	"math"
	"sort"
)

// Contributor names.
const (
	FactorPeakHour        = "peak_hour"
	FactorWeekend         = "weekend"
	FactorHoliday         = "holiday"
	FactorRain            = "rain"
	FactorRelativeTraffic = "relative_traffic"
)

// contributorThreshold is the minimum absolute weighted value for a term to
// be reported as a contributor.
const contributorThreshold = 0.01

// Contributor is one explained factor of a risk score.
type Contributor struct {
	Name         string `json:"name"`
	Label        string `json:"label"`
	DeltaPercent int    `json:"deltaPercent"`
}

// Assessment is the output of a Scorer.
type Assessment struct {
	Risk         float64       `json:"risk"`
	Contributors []Contributor `json:"contributors"`
}

// Scorer turns a feature vector into a risk assessment.
type Scorer interface {
	Score(f Features) Assessment
}

// Weights is the coefficient table of the linear model.
type Weights struct {
	Bias       float64
	HourOfWeek float64
	IsPeak     float64
	IsWeekend  float64
	Holiday    float64
	Rain       float64
	ETARatio   float64 // applied to (etaRatio - 1)
}

// DefaultWeights returns the illustrative reference coefficients. They are
// hand-authored, not trained.
func DefaultWeights() Weights {
	return Weights{
		Bias:       -2.2,
		HourOfWeek: 0.004,
		IsPeak:     0.85,
		IsWeekend:  0.25,
		Holiday:    0.35,
		Rain:       0.08,
		ETARatio:   1.4,
	}
}

// LinearScorer is a fixed linear model with a logistic link.
//
// Contributors are computed by isolating each weighted term and passing it
// through the sigmoid on its own. This is an approximation for display and
// does not sum to the total risk.
type LinearScorer struct {
	weights Weights
	labels  map[string]string
}

// NewLinearScorer creates a scorer with the given weights.
func NewLinearScorer(w Weights) *LinearScorer {
	return &LinearScorer{
		weights: w,
		labels: map[string]string{
			FactorPeakHour:        "Peak hour",
			FactorWeekend:         "Weekend",
			FactorHoliday:         "Holiday",
			FactorRain:            "Rain",
			FactorRelativeTraffic: "Relative traffic",
		},
	}
}

// NewDefaultScorer creates a scorer with DefaultWeights.
func NewDefaultScorer() *LinearScorer {
	return NewLinearScorer(DefaultWeights())
}

// Score implements Scorer.
func (s *LinearScorer) Score(f Features) Assessment {
	w := s.weights

	terms := []struct {
		name string
		v    float64
	}{
		{FactorPeakHour, w.IsPeak * boolToFloat(f.IsPeak)},
		{FactorWeekend, w.IsWeekend * boolToFloat(f.IsWeekend)},
		{FactorHoliday, w.Holiday * boolToFloat(f.IsHoliday)},
		{FactorRain, w.Rain * f.PrecipitationMM},
		{FactorRelativeTraffic, w.ETARatio * (f.ETARatio - 1)},
	}

	z := w.Bias + w.HourOfWeek*float64(f.HourOfWeek)
	contributors := make([]Contributor, 0, len(terms))
	for _, t := range terms {
		z += t.v
		if math.Abs(t.v) > contributorThreshold {
			contributors = append(contributors, Contributor{
				Name:         t.name,
				Label:        s.labels[t.name],
				DeltaPercent: int(math.Round(Sigmoid(t.v) * 100)),
			})
		}
	}

	sort.SliceStable(contributors, func(i, j int) bool {
		return contributors[i].DeltaPercent > contributors[j].DeltaPercent
	})

	return Assessment{
		Risk:         Sigmoid(z),
		Contributors: contributors,
	}
}

// Sigmoid is the logistic function.
func Sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
