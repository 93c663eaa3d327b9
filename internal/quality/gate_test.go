package quality

import (
	"testing"
	"time"

	"cmewatch/internal/models"
)

func testSeries(start time.Time, cadence time.Duration, velocities []float64) models.ParticleSeries {
	series := models.ParticleSeries{Source: models.SourceISSDC}
	for i, v := range velocities {
		series.Samples = append(series.Samples, models.ParticleSample{
			Timestamp:   start.Add(time.Duration(i) * cadence),
			Velocity:    v,
			Density:     5.0,
			Temperature: 1e5,
			Flux:        1e8,
			Source:      models.SourceISSDC,
		})
	}
	return series
}

func TestRangeBoundariesInclusive(t *testing.T) {
	start := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	series := testSeries(start, time.Minute, []float64{100, 3000, 3000.1, 99.9, 400})

	gate := NewGate(DefaultOptions())
	cleaned, report := gate.Validate(series, time.Time{}, time.Time{})

	if report.ValidSamples != 3 {
		t.Errorf("Expected 3 valid samples, got %d", report.ValidSamples)
	}
	if report.OutOfRangeSamples != 2 {
		t.Errorf("Expected 2 out-of-range samples, got %d", report.OutOfRangeSamples)
	}

	// exactly at the bound: accepted
	if cleaned.Samples[0].HasFlag(models.QualityOutOfRange) {
		t.Error("Velocity 100 km/s is at the lower bound and should be accepted")
	}
	if cleaned.Samples[1].HasFlag(models.QualityOutOfRange) {
		t.Error("Velocity 3000 km/s is at the upper bound and should be accepted")
	}
	// just above the bound: flagged, not dropped
	if !cleaned.Samples[2].HasFlag(models.QualityOutOfRange) {
		t.Error("Velocity 3000.1 km/s should be flagged OUT_OF_RANGE")
	}
	if len(cleaned.Samples) != len(series.Samples) {
		t.Errorf("Flagged samples must be retained: expected %d samples, got %d",
			len(series.Samples), len(cleaned.Samples))
	}
}

func TestGapDetection(t *testing.T) {
	start := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	series := models.ParticleSeries{Source: models.SourceISSDC}
	for _, offset := range []time.Duration{0, time.Minute, 2 * time.Minute, 12 * time.Minute, 13 * time.Minute} {
		series.Samples = append(series.Samples, models.ParticleSample{
			Timestamp: start.Add(offset), Velocity: 400, Density: 5, Temperature: 1e5,
			Source: models.SourceISSDC,
		})
	}

	gate := NewGate(DefaultOptions())
	_, report := gate.Validate(series, time.Time{}, time.Time{})

	if len(report.Gaps) != 1 {
		t.Fatalf("Expected 1 gap, got %d", len(report.Gaps))
	}
	gap := report.Gaps[0]
	if !gap.Start.Equal(start.Add(2 * time.Minute)) {
		t.Errorf("Expected gap start at +2m, got %v", gap.Start)
	}
	if gap.Duration() != 10*time.Minute {
		t.Errorf("Expected gap duration 10m, got %v", gap.Duration())
	}
}

func TestGapAtExactThresholdNotReported(t *testing.T) {
	start := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	series := models.ParticleSeries{Source: models.SourceISSDC}
	// 3 minutes apart equals exactly 3x cadence
	for _, offset := range []time.Duration{0, 3 * time.Minute} {
		series.Samples = append(series.Samples, models.ParticleSample{
			Timestamp: start.Add(offset), Velocity: 400, Density: 5, Temperature: 1e5,
			Source: models.SourceISSDC,
		})
	}

	gate := NewGate(DefaultOptions())
	_, report := gate.Validate(series, time.Time{}, time.Time{})

	if len(report.Gaps) != 0 {
		t.Errorf("Interval of exactly 3x cadence should not be a gap, got %d gaps", len(report.Gaps))
	}
}

func TestInterpolationFillsShortGaps(t *testing.T) {
	start := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	series := models.ParticleSeries{Source: models.SourceISSDC}
	series.Samples = append(series.Samples,
		models.ParticleSample{Timestamp: start, Velocity: 400, Density: 5, Temperature: 1e5, Source: models.SourceISSDC},
		models.ParticleSample{Timestamp: start.Add(10 * time.Minute), Velocity: 500, Density: 5, Temperature: 1e5, Source: models.SourceISSDC},
	)

	opts := DefaultOptions()
	opts.InterpolationEnabled = true
	gate := NewGate(opts)
	cleaned, report := gate.Validate(series, time.Time{}, time.Time{})

	if report.InterpolatedSamples != 9 {
		t.Errorf("Expected 9 interpolated samples, got %d", report.InterpolatedSamples)
	}
	if len(cleaned.Samples) != 11 {
		t.Fatalf("Expected 11 samples after interpolation, got %d", len(cleaned.Samples))
	}
	mid := cleaned.Samples[5]
	if !mid.HasFlag(models.QualityInterpolated) {
		t.Error("Interpolated sample should carry the INTERPOLATED flag")
	}
	if mid.Velocity < 449 || mid.Velocity > 451 {
		t.Errorf("Expected midpoint velocity near 450, got %f", mid.Velocity)
	}
}

func TestInterpolationSkipsLongGaps(t *testing.T) {
	start := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	series := models.ParticleSeries{Source: models.SourceISSDC}
	series.Samples = append(series.Samples,
		models.ParticleSample{Timestamp: start, Velocity: 400, Density: 5, Temperature: 1e5, Source: models.SourceISSDC},
		models.ParticleSample{Timestamp: start.Add(2 * time.Hour), Velocity: 500, Density: 5, Temperature: 1e5, Source: models.SourceISSDC},
	)

	opts := DefaultOptions()
	opts.InterpolationEnabled = true
	gate := NewGate(opts)
	cleaned, report := gate.Validate(series, time.Time{}, time.Time{})

	if report.InterpolatedSamples != 0 {
		t.Errorf("Gap longer than max should not be filled, got %d interpolated samples", report.InterpolatedSamples)
	}
	if len(cleaned.Samples) != 2 {
		t.Errorf("Expected 2 samples, got %d", len(cleaned.Samples))
	}
}

func TestCompleteness(t *testing.T) {
	start := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	// 61 expected slots over the hour, 31 present
	series := models.ParticleSeries{Source: models.SourceISSDC}
	for i := 0; i <= 60; i += 2 {
		series.Samples = append(series.Samples, models.ParticleSample{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Velocity:  400, Density: 5, Temperature: 1e5, Source: models.SourceISSDC,
		})
	}

	gate := NewGate(DefaultOptions())
	_, report := gate.Validate(series, time.Time{}, time.Time{})

	want := 31.0 / 61.0
	if report.Completeness < want-0.001 || report.Completeness > want+0.001 {
		t.Errorf("Expected completeness %.3f, got %.3f", want, report.Completeness)
	}
}

func TestCompletenessAgainstRequestedWindow(t *testing.T) {
	start := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	// full minute cadence, but only the first hour of a two-hour request
	series := models.ParticleSeries{Source: models.SourceISSDC}
	for i := 0; i <= 60; i++ {
		series.Samples = append(series.Samples, models.ParticleSample{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Velocity:  400, Density: 5, Temperature: 1e5, Source: models.SourceISSDC,
		})
	}

	gate := NewGate(DefaultOptions())
	_, report := gate.Validate(series, start, end)

	want := 61.0 / 121.0
	if report.Completeness < want-0.001 || report.Completeness > want+0.001 {
		t.Errorf("Expected completeness %.3f against the requested window, got %.3f", want, report.Completeness)
	}

	// without a window the series' own span scores full coverage
	_, report = gate.Validate(series, time.Time{}, time.Time{})
	if report.Completeness < 0.999 {
		t.Errorf("Expected full completeness over the series span, got %.3f", report.Completeness)
	}
}

func TestInterpolationSkipsOutOfRangeEndpoints(t *testing.T) {
	start := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	series := models.ParticleSeries{Source: models.SourceISSDC}
	series.Samples = append(series.Samples,
		models.ParticleSample{Timestamp: start, Velocity: 5000, Density: 5, Temperature: 1e5, Source: models.SourceISSDC},
		models.ParticleSample{Timestamp: start.Add(10 * time.Minute), Velocity: 500, Density: 5, Temperature: 1e5, Source: models.SourceISSDC},
	)

	opts := DefaultOptions()
	opts.InterpolationEnabled = true
	gate := NewGate(opts)
	cleaned, report := gate.Validate(series, time.Time{}, time.Time{})

	if report.InterpolatedSamples != 0 {
		t.Errorf("Gap bounded by an out-of-range sample must not be filled, got %d interpolated samples", report.InterpolatedSamples)
	}
	if len(cleaned.Samples) != 2 {
		t.Errorf("Expected 2 samples, got %d", len(cleaned.Samples))
	}
}

func TestValidateNeverAddsSamplesByDefault(t *testing.T) {
	start := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	series := testSeries(start, time.Minute, []float64{400, 5000, 410})
	// force a gap
	series.Samples[2].Timestamp = start.Add(30 * time.Minute)

	gate := NewGate(DefaultOptions())
	cleaned, _ := gate.Validate(series, time.Time{}, time.Time{})

	if len(cleaned.Samples) > len(series.Samples) {
		t.Errorf("Gate must not invent samples: %d in, %d out",
			len(series.Samples), len(cleaned.Samples))
	}
}

func TestEmptySeries(t *testing.T) {
	gate := NewGate(DefaultOptions())
	cleaned, report := gate.Validate(models.ParticleSeries{Source: models.SourceISSDC}, time.Time{}, time.Time{})

	if len(cleaned.Samples) != 0 {
		t.Errorf("Expected empty output, got %d samples", len(cleaned.Samples))
	}
	if report.Completeness != 0 {
		t.Errorf("Expected zero completeness for empty series, got %f", report.Completeness)
	}
}
