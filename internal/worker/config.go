// Package worker runs departure forecasts in the background for jobs
// delivered over Pub/Sub.
package worker

import (
	"time"

	"github.com/congestionai/congestionai/internal/forecast"
	"github.com/congestionai/congestionai/internal/routing"
	"github.com/congestionai/congestionai/internal/waypoint"
)

// BatchConfig holds configuration for the batch runner.
type BatchConfig struct {
	// Concurrency is the number of jobs forecast at once. Each job fans out
	// to the sampler's own pool, so keep this small.
	// Default: 2
	Concurrency int

	// Timeout bounds each job.
	// Default: 2 minutes
	Timeout time.Duration

	// MaxJobs caps the jobs taken from one message; the rest are reported
	// as skipped.
	// Default: 50
	MaxJobs int
}

// DefaultBatchConfig returns the default batch configuration.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Concurrency: 2,
		Timeout:     2 * time.Minute,
		MaxJobs:     50,
	}
}

func (c BatchConfig) withDefaults() BatchConfig {
	d := DefaultBatchConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxJobs <= 0 {
		c.MaxJobs = d.MaxJobs
	}
	return c
}

// Job is one origin/destination pair to forecast.
type Job struct {
	// Owner receives the best window in their history; empty skips recording.
	Owner string `json:"owner,omitempty"`

	Origin      waypoint.Input `json:"origin"`
	Destination waypoint.Input `json:"destination"`

	// HorizonMinutes wins over HorizonHours when both are set.
	HorizonHours   int `json:"horizonHours,omitempty"`
	HorizonMinutes int `json:"horizonMinutes,omitempty"`
	StepMinutes    int `json:"stepMinutes,omitempty"`

	AvoidTolls    bool `json:"avoidTolls,omitempty"`
	AvoidHighways bool `json:"avoidHighways,omitempty"`

	Alpha    *float64 `json:"alpha,omitempty"`
	TimeZone string   `json:"timeZone,omitempty"`
	Country  string   `json:"country,omitempty"`
}

// Request converts a job into a planner request.
func (j Job) Request() forecast.ForecastRequest {
	horizon := j.HorizonMinutes
	if horizon == 0 && j.HorizonHours > 0 {
		horizon = j.HorizonHours * 60
	}
	return forecast.ForecastRequest{
		Query: forecast.Query{
			Origin:         waypoint.Normalize(j.Origin),
			Destination:    waypoint.Normalize(j.Destination),
			HorizonMinutes: horizon,
			StepMinutes:    j.StepMinutes,
			Modifiers: routing.RouteModifiers{
				AvoidTolls:    j.AvoidTolls,
				AvoidHighways: j.AvoidHighways,
			},
			Alpha:    j.Alpha,
			TimeZone: j.TimeZone,
			Country:  j.Country,
		},
	}
}
