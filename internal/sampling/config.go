// Package sampling fans out routing requests across a grid of candidate
// departure times and scores every successful sample.
package sampling

import "time"

// Config holds the sampler's tunables. Zero values fall back to
// DefaultConfig.
type Config struct {
	// Concurrency is the number of in-flight provider calls. Default: 4
	Concurrency int

	// MaxSamples caps the offset grid regardless of horizon and step.
	// Default: 96
	MaxSamples int

	// RetryShift moves a failed offset forward for its single retry.
	// Default: 2 minutes
	RetryShift time.Duration

	// CallTimeout bounds each provider call, independently of the caller's
	// deadline. Default: 10 seconds
	CallTimeout time.Duration

	// Step and horizon bounds in minutes.
	// Defaults: step [15, 180], horizon [60, 10080] (1h..168h)
	MinStepMinutes    int
	MaxStepMinutes    int
	MinHorizonMinutes int
	MaxHorizonMinutes int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       4,
		MaxSamples:        96,
		RetryShift:        2 * time.Minute,
		CallTimeout:       10 * time.Second,
		MinStepMinutes:    15,
		MaxStepMinutes:    180,
		MinHorizonMinutes: 60,
		MaxHorizonMinutes: 168 * 60,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = d.MaxSamples
	}
	if c.RetryShift <= 0 {
		c.RetryShift = d.RetryShift
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.MinStepMinutes <= 0 {
		c.MinStepMinutes = d.MinStepMinutes
	}
	if c.MaxStepMinutes < c.MinStepMinutes {
		c.MaxStepMinutes = max(d.MaxStepMinutes, c.MinStepMinutes)
	}
	if c.MinHorizonMinutes <= 0 {
		c.MinHorizonMinutes = d.MinHorizonMinutes
	}
	if c.MaxHorizonMinutes < c.MinHorizonMinutes {
		c.MaxHorizonMinutes = max(d.MaxHorizonMinutes, c.MinHorizonMinutes)
	}
	return c
}

// ClampStep bounds a requested step to the configured range.
func (c Config) ClampStep(minutes int) int {
	return min(max(minutes, c.MinStepMinutes), c.MaxStepMinutes)
}

// ClampHorizon bounds a requested horizon to the configured range.
func (c Config) ClampHorizon(minutes int) int {
	return min(max(minutes, c.MinHorizonMinutes), c.MaxHorizonMinutes)
}

// Offsets returns the candidate offsets 0, step, 2*step, ... <= horizon,
// truncated to MaxSamples. Inputs are clamped first.
func (c Config) Offsets(horizonMinutes, stepMinutes int) []int {
	horizon := c.ClampHorizon(horizonMinutes)
	step := c.ClampStep(stepMinutes)

	n := min(horizon/step+1, c.MaxSamples)
	offsets := make([]int, n)
	for i := range offsets {
		offsets[i] = i * step
	}
	return offsets
}
