package quality

import (
	"time"

	"cmewatch/internal/logger"
	"cmewatch/internal/models"
)

// Ranges holds the physically plausible bounds for each parameter.
// Boundaries are inclusive: a value exactly at a bound is accepted.
type Ranges struct {
	VelocityMin    float64 // km/s
	VelocityMax    float64
	DensityMin     float64 // cm⁻³
	DensityMax     float64
	TemperatureMin float64 // K
	TemperatureMax float64
}

// DefaultRanges returns the operational plausibility bounds for solar wind
func DefaultRanges() Ranges {
	return Ranges{
		VelocityMin:    100,
		VelocityMax:    3000,
		DensityMin:     0.1,
		DensityMax:     200,
		TemperatureMin: 1e3,
		TemperatureMax: 1e7,
	}
}

// Options configures the quality gate
type Options struct {
	Ranges               Ranges
	NominalCadence       time.Duration
	GapFactor            float64
	InterpolationEnabled bool
	InterpolationMaxGap  time.Duration
}

// DefaultOptions returns gate options matching the operational defaults:
// 1-minute cadence, gaps at 3x cadence, interpolation disabled
func DefaultOptions() Options {
	return Options{
		Ranges:               DefaultRanges(),
		NominalCadence:       time.Minute,
		GapFactor:            3.0,
		InterpolationEnabled: false,
		InterpolationMaxGap:  time.Hour,
	}
}

// Gate validates particle series against physical plausibility ranges and
// detects coverage gaps. It never raises data quality issues as errors:
// findings are returned as flags and a QualityReport that downstream
// stages consult.
type Gate struct {
	opts Options
	log  *logger.Logger
}

// NewGate creates a quality gate with the given options
func NewGate(opts Options) *Gate {
	return &Gate{
		opts: opts,
		log:  logger.GetGlobalLogger().WithComponent("quality"),
	}
}

// Validate applies range checks and gap detection to a series.
// Out-of-range samples are flagged OUT_OF_RANGE and excluded from
// statistics but retained in the output, never silently dropped.
// When interpolation is enabled, gaps shorter than the configured maximum
// are filled linearly and the inserted samples flagged INTERPOLATED.
// Completeness is measured against the requested [start, end] window;
// zero bounds fall back to the series' own span, so a source that only
// returned half the asked-for range scores half.
func (g *Gate) Validate(series models.ParticleSeries, start, end time.Time) (models.ParticleSeries, models.QualityReport) {
	report := models.QualityReport{
		Source:       series.Source,
		TotalSamples: len(series.Samples),
	}

	cleaned := models.ParticleSeries{
		Source:  series.Source,
		Samples: make([]models.ParticleSample, 0, len(series.Samples)),
	}

	for _, sample := range series.Samples {
		checked := sample
		if !g.inRange(sample) {
			checked.QualityFlags = appendFlag(checked.QualityFlags, models.QualityOutOfRange)
			report.OutOfRangeSamples++
		} else {
			report.ValidSamples++
		}
		cleaned.Samples = append(cleaned.Samples, checked)
	}

	report.Gaps = g.findGaps(cleaned.Samples)

	if g.opts.InterpolationEnabled {
		cleaned.Samples = g.interpolate(cleaned.Samples, report.Gaps)
		for _, s := range cleaned.Samples {
			if s.HasFlag(models.QualityInterpolated) {
				report.InterpolatedSamples++
			}
		}
	}

	report.Completeness = g.completeness(series, report.ValidSamples, start, end)

	if report.OutOfRangeSamples > 0 || len(report.Gaps) > 0 {
		g.log.Info("quality gate findings", map[string]interface{}{
			"source":       series.Source,
			"out_of_range": report.OutOfRangeSamples,
			"gaps":         len(report.Gaps),
			"completeness": report.Completeness,
		})
	}

	return cleaned, report
}

// inRange checks a sample against all parameter bounds (inclusive)
func (g *Gate) inRange(s models.ParticleSample) bool {
	r := g.opts.Ranges
	if s.Velocity < r.VelocityMin || s.Velocity > r.VelocityMax {
		return false
	}
	if s.Density < r.DensityMin || s.Density > r.DensityMax {
		return false
	}
	if s.Temperature < r.TemperatureMin || s.Temperature > r.TemperatureMax {
		return false
	}
	return true
}

// findGaps records intervals between consecutive samples exceeding
// GapFactor times the nominal cadence
func (g *Gate) findGaps(samples []models.ParticleSample) []models.DataGap {
	threshold := time.Duration(float64(g.opts.NominalCadence) * g.opts.GapFactor)

	var gaps []models.DataGap
	for i := 1; i < len(samples); i++ {
		interval := samples[i].Timestamp.Sub(samples[i-1].Timestamp)
		if interval > threshold {
			gaps = append(gaps, models.DataGap{
				Start: samples[i-1].Timestamp,
				End:   samples[i].Timestamp,
			})
		}
	}
	return gaps
}

// interpolate fills gaps shorter than the configured maximum with linear
// interpolation at the nominal cadence. Longer gaps stay unfilled, as are
// gaps bounded by an OUT_OF_RANGE sample: implausible endpoints would
// spread their values into the fill.
func (g *Gate) interpolate(samples []models.ParticleSample, gaps []models.DataGap) []models.ParticleSample {
	if len(gaps) == 0 {
		return samples
	}

	fillable := make(map[time.Time]models.DataGap)
	for _, gap := range gaps {
		if gap.Duration() <= g.opts.InterpolationMaxGap {
			fillable[gap.Start] = gap
		}
	}
	if len(fillable) == 0 {
		return samples
	}

	result := make([]models.ParticleSample, 0, len(samples))
	for i, sample := range samples {
		result = append(result, sample)

		gap, ok := fillable[sample.Timestamp]
		if !ok || i+1 >= len(samples) {
			continue
		}

		prev, next := sample, samples[i+1]
		if prev.HasFlag(models.QualityOutOfRange) || next.HasFlag(models.QualityOutOfRange) {
			continue
		}
		total := gap.Duration().Seconds()
		for ts := prev.Timestamp.Add(g.opts.NominalCadence); ts.Before(next.Timestamp); ts = ts.Add(g.opts.NominalCadence) {
			frac := ts.Sub(prev.Timestamp).Seconds() / total
			result = append(result, models.ParticleSample{
				Timestamp:    ts,
				Velocity:     lerp(prev.Velocity, next.Velocity, frac),
				Density:      lerp(prev.Density, next.Density, frac),
				Temperature:  lerp(prev.Temperature, next.Temperature, frac),
				Flux:         lerp(prev.Flux, next.Flux, frac),
				Source:       prev.Source,
				QualityFlags: []models.QualityIssue{models.QualityInterpolated},
			})
		}
	}
	return result
}

// completeness returns valid samples over the count expected from the
// requested window at nominal cadence, clamped to [0, 1]. Falls back to
// the series' own span when no window was given.
func (g *Gate) completeness(series models.ParticleSeries, valid int, start, end time.Time) float64 {
	if len(series.Samples) == 0 {
		return 0
	}
	if start.IsZero() || end.IsZero() || !end.After(start) {
		start, end = series.Start(), series.End()
	}
	expected := int(end.Sub(start)/g.opts.NominalCadence) + 1
	if expected <= 0 {
		return 0
	}
	score := float64(valid) / float64(expected)
	if score > 1 {
		score = 1
	}
	return score
}

func lerp(a, b, frac float64) float64 {
	return a + (b-a)*frac
}

func appendFlag(flags []models.QualityIssue, flag models.QualityIssue) []models.QualityIssue {
	for _, f := range flags {
		if f == flag {
			return flags
		}
	}
	return append(flags, flag)
}
