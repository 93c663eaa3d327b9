package features

import (
	"time"

	"cmewatch/internal/models"
)

// Rolling is an incremental baseline over an ordered series. Advancing to
// successive evaluation points slides the trailing window in O(1) amortized
// time instead of rescanning it, which matters when scoring every sample of
// a multi-day series at minute cadence.
type Rolling struct {
	engine  *Engine
	samples []models.ParticleSample

	lo, hi int // window covers samples[lo:hi], all usable and strictly before the evaluation point

	velocity    stats
	density     stats
	temperature stats
}

// NewRolling creates a rolling baseline over the series. The series must be
// ordered ascending by timestamp.
func (e *Engine) NewRolling(series *models.ParticleSeries) *Rolling {
	return &Rolling{engine: e, samples: series.Samples}
}

// Advance moves the evaluation point forward and returns the baseline for
// it. Evaluation points must be passed in ascending order. Returns a
// BaselineError when the window holds fewer than the required samples.
func (r *Rolling) Advance(at time.Time) (models.BaselineStats, error) {
	windowStart := at.Add(-r.engine.window)

	// admit samples now strictly before the evaluation point; any that are
	// already older than the window are trimmed by the eviction loop below
	for r.hi < len(r.samples) && r.samples[r.hi].Timestamp.Before(at) {
		s := &r.samples[r.hi]
		if !s.HasFlag(models.QualityOutOfRange) {
			r.velocity.add(s.Velocity)
			r.density.add(s.Density)
			r.temperature.add(s.Temperature)
		}
		r.hi++
	}

	// evict samples that fell out of the trailing window
	for r.lo < r.hi {
		s := &r.samples[r.lo]
		if !s.Timestamp.Before(windowStart) {
			break
		}
		if !s.HasFlag(models.QualityOutOfRange) {
			r.velocity.remove(s.Velocity)
			r.density.remove(s.Density)
			r.temperature.remove(s.Temperature)
		}
		r.lo++
	}

	if r.velocity.n < r.engine.minSamples {
		return models.BaselineStats{}, &models.BaselineError{
			Parameter:   "velocity/density/temperature",
			WindowStart: windowStart,
			WindowEnd:   at,
			Available:   r.velocity.n,
			Required:    r.engine.minSamples,
		}
	}

	return models.BaselineStats{
		VelocityMean:    r.velocity.mean(),
		VelocityStd:     r.velocity.std(),
		DensityMean:     r.density.mean(),
		DensityStd:      r.density.std(),
		TemperatureMean: r.temperature.mean(),
		TemperatureStd:  r.temperature.std(),
		SampleCount:     r.velocity.n,
		WindowStart:     windowStart,
		WindowEnd:       at,
	}, nil
}

func (s *stats) remove(v float64) {
	s.n--
	s.sum -= v
	s.sumSq -= v * v
}
