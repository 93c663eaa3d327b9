package features

import (
	"math"
	"time"

	"cmewatch/internal/models"
)

// stdFloor prevents division blow-up when a baseline window is flat
const stdFloor = 1e-6

// Engine computes rolling baseline statistics and z-scores over particle
// series. It holds no per-run state; all methods are pure functions of
// their inputs, so one engine can serve concurrent runs.
type Engine struct {
	window     time.Duration
	minSamples int
}

// NewEngine creates a feature engine with the given trailing window length
// and minimum sample requirement
func NewEngine(window time.Duration, minSamples int) *Engine {
	return &Engine{window: window, minSamples: minSamples}
}

// ComputeBaseline derives mean and standard deviation for each parameter
// over the trailing window ending strictly before the evaluation point.
// The sample at the evaluation point itself is excluded so that an event
// spike never contaminates its own baseline. Samples flagged OUT_OF_RANGE
// are excluded from the statistics.
//
// Returns a BaselineError (unwrapping to ErrInsufficientBaseline) when
// fewer than the minimum number of usable samples fall in the window.
func (e *Engine) ComputeBaseline(series *models.ParticleSeries, at time.Time) (models.BaselineStats, error) {
	windowStart := at.Add(-e.window)

	var velocity, density, temperature stats
	for i := range series.Samples {
		s := &series.Samples[i]
		if s.Timestamp.Before(windowStart) || !s.Timestamp.Before(at) {
			continue
		}
		if s.HasFlag(models.QualityOutOfRange) {
			continue
		}
		velocity.add(s.Velocity)
		density.add(s.Density)
		temperature.add(s.Temperature)
	}

	if velocity.n < e.minSamples {
		return models.BaselineStats{}, &models.BaselineError{
			Parameter:   "velocity/density/temperature",
			WindowStart: windowStart,
			WindowEnd:   at,
			Available:   velocity.n,
			Required:    e.minSamples,
		}
	}

	return models.BaselineStats{
		VelocityMean:    velocity.mean(),
		VelocityStd:     velocity.std(),
		DensityMean:     density.mean(),
		DensityStd:      density.std(),
		TemperatureMean: temperature.mean(),
		TemperatureStd:  temperature.std(),
		SampleCount:     velocity.n,
		WindowStart:     windowStart,
		WindowEnd:       at,
	}, nil
}

// ZScores standardizes one sample against baseline statistics. Standard
// deviations are floored at stdFloor so flat baselines yield large finite
// scores instead of infinities.
func (e *Engine) ZScores(sample models.ParticleSample, baseline models.BaselineStats) models.ZScores {
	return models.ZScores{
		Velocity:    zscore(sample.Velocity, baseline.VelocityMean, baseline.VelocityStd),
		Density:     zscore(sample.Density, baseline.DensityMean, baseline.DensityStd),
		Temperature: zscore(sample.Temperature, baseline.TemperatureMean, baseline.TemperatureStd),
	}
}

func zscore(value, mean, std float64) float64 {
	if std < stdFloor {
		std = stdFloor
	}
	return (value - mean) / std
}

// stats accumulates count, sum and sum of squares for one parameter
type stats struct {
	n     int
	sum   float64
	sumSq float64
}

func (s *stats) add(v float64) {
	s.n++
	s.sum += v
	s.sumSq += v * v
}

func (s *stats) mean() float64 {
	if s.n == 0 {
		return 0
	}
	return s.sum / float64(s.n)
}

func (s *stats) std() float64 {
	if s.n < 2 {
		return 0
	}
	m := s.mean()
	variance := s.sumSq/float64(s.n) - m*m
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}
