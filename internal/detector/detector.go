package detector

import (
	"fmt"
	"math"
	"time"

	"cmewatch/internal/features"
	"cmewatch/internal/logger"
	"cmewatch/internal/models"
)

// Aggregation combines per-parameter z-scores into one detection score.
// QuietFloor is the combined score of simultaneous 1-sigma deviations on
// all three parameters, the level ordinary noise sustains indefinitely:
// the hysteresis exit bound must sit above it or quiet noise holds a
// window open forever.
type Aggregation struct {
	Combine    func(z models.ZScores) float64
	QuietFloor float64
}

// EuclideanAggregation is the root of summed squared z-scores. A strong
// deviation on any one parameter can carry the score over threshold; its
// quiet floor is sqrt(3), three parameters rippling at one sigma each.
var EuclideanAggregation = Aggregation{
	Combine: func(z models.ZScores) float64 {
		return math.Sqrt(z.Velocity*z.Velocity + z.Density*z.Density + z.Temperature*z.Temperature)
	},
	QuietFloor: math.Sqrt(3),
}

// MaxAggregation takes the largest absolute per-parameter z-score; its
// quiet floor is one sigma
var MaxAggregation = Aggregation{
	Combine: func(z models.ZScores) float64 {
		return math.Max(math.Abs(z.Velocity), math.Max(math.Abs(z.Density), math.Abs(z.Temperature)))
	},
	QuietFloor: 1,
}

// AggregationByName resolves a configured aggregation name
func AggregationByName(name string) (Aggregation, error) {
	switch name {
	case "euclidean", "":
		return EuclideanAggregation, nil
	case "max":
		return MaxAggregation, nil
	default:
		return Aggregation{}, fmt.Errorf("unknown combined score aggregation %q", name)
	}
}

// Options configures the detector
type Options struct {
	Aggregation     Aggregation
	HysteresisRatio float64 // close factor: window exits below ratio * threshold
	MinDwell        time.Duration
}

// DefaultOptions returns the operational detector settings
func DefaultOptions() Options {
	return Options{
		Aggregation:     EuclideanAggregation,
		HysteresisRatio: 0.7,
		MinDwell:        30 * time.Minute,
	}
}

// windowState tracks the per-stream detection state machine
type windowState int

const (
	stateBelow windowState = iota
	stateRising
	statePeak
	stateFalling
)

// Detector walks a validated series sample by sample, scoring each against
// its trailing baseline and emitting candidate windows. Detection is
// deterministic: the same series and config always yield the same windows.
type Detector struct {
	engine *features.Engine
	opts   Options
	log    *logger.Logger
}

// New creates a detector over the given feature engine
func New(engine *features.Engine, opts Options) *Detector {
	if opts.Aggregation.Combine == nil {
		opts.Aggregation = EuclideanAggregation
	}
	return &Detector{
		engine: engine,
		opts:   opts,
		log:    logger.GetGlobalLogger().WithComponent("detector"),
	}
}

// candidate accumulates an open window while the state machine is above
// threshold
type candidate struct {
	start        time.Time
	peakTime     time.Time
	peakScore    float64
	peakZ        models.ZScores
	peakVelocity float64
	lastAbove    time.Time // last sample at or above the exit bound
	dwellStart   time.Time // first sample below the exit bound, zero if none
	state        windowState
}

// Detect scans one source series and returns the candidate windows whose
// combined score crossed the configured threshold. A window opens when the
// combined score reaches the threshold and at least one per-parameter
// z-score exceeds its own configured multiplier; correlated sub-threshold
// drift across all three parameters is not a detection. The window closes
// only after the combined score stays below the hysteresis exit bound for
// at least MinDwell, so a noisy plateau produces one window rather than a
// burst of fragments.
//
// Samples flagged OUT_OF_RANGE are never scored. If no evaluation point in
// the whole series has sufficient baseline history, the last BaselineError
// is returned; points that merely lead the warm-up span are skipped.
func (d *Detector) Detect(series models.ParticleSeries, cfg models.ThresholdConfig) ([]models.CandidateWindow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	threshold := cfg.CombinedScoreThreshold
	exitBound := d.exitBound(threshold)

	rolling := d.engine.NewRolling(&series)

	var windows []models.CandidateWindow
	var open *candidate
	var baselineErr error
	scored := 0

	for i := range series.Samples {
		s := &series.Samples[i]
		if s.HasFlag(models.QualityOutOfRange) {
			continue
		}

		baseline, err := rolling.Advance(s.Timestamp)
		if err != nil {
			baselineErr = err
			continue
		}
		scored++

		z := d.engine.ZScores(*s, baseline)
		score := d.opts.Aggregation.Combine(z)

		if open == nil {
			if score >= threshold && perParameterExceeded(z, cfg) {
				open = &candidate{
					start:        s.Timestamp,
					peakTime:     s.Timestamp,
					peakScore:    score,
					peakZ:        z,
					peakVelocity: s.Velocity,
					lastAbove:    s.Timestamp,
					state:        stateRising,
				}
			}
			continue
		}

		switch {
		case score > open.peakScore:
			open.peakScore = score
			open.peakTime = s.Timestamp
			open.peakZ = z
			open.peakVelocity = s.Velocity
			open.lastAbove = s.Timestamp
			open.dwellStart = time.Time{}
			open.state = stateRising
		case score >= exitBound:
			open.lastAbove = s.Timestamp
			open.dwellStart = time.Time{}
			if open.state == stateRising {
				open.state = statePeak
			} else {
				open.state = stateFalling
			}
		default:
			if open.dwellStart.IsZero() {
				open.dwellStart = s.Timestamp
			}
			if s.Timestamp.Sub(open.dwellStart) >= d.opts.MinDwell {
				windows = append(windows, open.close(series.Source))
				open = nil
			}
		}
	}

	// series ended while a window was open
	if open != nil {
		windows = append(windows, open.close(series.Source))
	}

	if scored == 0 && baselineErr != nil {
		return nil, baselineErr
	}

	d.log.Info("detection pass complete", map[string]interface{}{
		"source":     series.Source,
		"scored":     scored,
		"candidates": len(windows),
	})

	return windows, nil
}

// exitBound places the hysteresis bound at HysteresisRatio of the way
// from the aggregation's quiet-noise floor up to the threshold. Scaling
// the threshold alone would put the bound below the floor (euclidean
// noise alone scores around sqrt(3)) and an open window would never see
// a full dwell period below it.
func (d *Detector) exitBound(threshold float64) float64 {
	floor := d.opts.Aggregation.QuietFloor
	if floor >= threshold {
		return threshold * d.opts.HysteresisRatio
	}
	return floor + d.opts.HysteresisRatio*(threshold-floor)
}

// perParameterExceeded reports whether any single parameter crossed its
// configured multiplier. Velocity and density count enhancements only;
// temperature anomalies count in either direction.
func perParameterExceeded(z models.ZScores, cfg models.ThresholdConfig) bool {
	return z.Velocity >= cfg.VelocityEnhancement ||
		z.Density >= cfg.DensityEnhancement ||
		math.Abs(z.Temperature) >= cfg.TemperatureAnomaly
}

// close converts the accumulated state into an emitted candidate window.
// The window end is the last sample at or above the exit bound, not the
// end of the dwell period.
func (c *candidate) close(source models.DataSource) models.CandidateWindow {
	return models.CandidateWindow{
		Source:           source,
		Start:            c.start,
		End:              c.lastAbove,
		PeakTime:         c.peakTime,
		PeakVelocityZ:    c.peakZ.Velocity,
		PeakDensityZ:     c.peakZ.Density,
		PeakTemperatureZ: c.peakZ.Temperature,
		PeakVelocity:     c.peakVelocity,
		CombinedScore:    c.peakScore,
	}
}
