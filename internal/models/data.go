package models

import "time"

// DataSource identifies where a measurement came from
type DataSource string

const (
	SourceISSDC  DataSource = "ISSDC"
	SourceCACTUS DataSource = "CACTUS"
	SourceSPDF   DataSource = "SPDF"
)

// QualityIssue flags a problem detected on an individual sample
type QualityIssue string

const (
	QualityOutOfRange   QualityIssue = "OUT_OF_RANGE"
	QualityInterpolated QualityIssue = "INTERPOLATED"
	QualityTruncated    QualityIssue = "TRUNCATED"
)

// ParticleSample is one instant of solar-wind measurement.
// Samples are immutable once ingested; re-ingestion of the same timestamp
// supersedes the older sample rather than editing it in place.
type ParticleSample struct {
	Timestamp    time.Time      `json:"timestamp"`
	Velocity     float64        `json:"velocity"`    // km/s
	Density      float64        `json:"density"`     // particles/cm³
	Temperature  float64        `json:"temperature"` // K
	Flux         float64        `json:"flux"`        // particles/(cm²·s)
	Source       DataSource     `json:"source"`
	QualityFlags []QualityIssue `json:"quality_flags,omitempty"`
}

// HasFlag reports whether the sample carries the given quality flag
func (s *ParticleSample) HasFlag(flag QualityIssue) bool {
	for _, f := range s.QualityFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// ParticleSeries is an ordered sequence of samples for a time range.
// Invariant: timestamps ascending, unique per source; gaps are represented
// by absence of a sample, never by null-filled placeholders.
type ParticleSeries struct {
	Source  DataSource       `json:"source"`
	Samples []ParticleSample `json:"samples"`
}

// Start returns the timestamp of the first sample, or zero if empty
func (p *ParticleSeries) Start() time.Time {
	if len(p.Samples) == 0 {
		return time.Time{}
	}
	return p.Samples[0].Timestamp
}

// End returns the timestamp of the last sample, or zero if empty
func (p *ParticleSeries) End() time.Time {
	if len(p.Samples) == 0 {
		return time.Time{}
	}
	return p.Samples[len(p.Samples)-1].Timestamp
}

// MagneticFieldSample is one SPDF-sourced magnetic field vector measurement
type MagneticFieldSample struct {
	Timestamp        time.Time `json:"timestamp"`
	Bx               float64   `json:"bx"` // nT
	By               float64   `json:"by"` // nT
	Bz               float64   `json:"bz"` // nT
	SourceSpacecraft string    `json:"source_spacecraft"`
}

// DataGap records an interval between consecutive samples exceeding
// the gap factor times the nominal cadence
type DataGap struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the length of the gap
func (g DataGap) Duration() time.Duration {
	return g.End.Sub(g.Start)
}

// QualityReport summarizes the quality gate's findings for one series.
// Quality problems are data, not errors: downstream stages consult the
// report and decide whether to ignore, down-weight, or abort.
type QualityReport struct {
	Source              DataSource `json:"source"`
	TotalSamples        int        `json:"total_samples"`
	ValidSamples        int        `json:"valid_samples"`
	OutOfRangeSamples   int        `json:"out_of_range_samples"`
	InterpolatedSamples int        `json:"interpolated_samples"`
	Gaps                []DataGap  `json:"gaps"`
	Completeness        float64    `json:"completeness"` // valid / expected, 0..1
}

// BaselineStats holds rolling mean/std of the three detection parameters
// over a trailing window ending strictly before the evaluation point.
// It is a pure function of the series window, never shared mutable state.
type BaselineStats struct {
	VelocityMean    float64   `json:"velocity_mean"`
	VelocityStd     float64   `json:"velocity_std"`
	DensityMean     float64   `json:"density_mean"`
	DensityStd      float64   `json:"density_std"`
	TemperatureMean float64   `json:"temperature_mean"`
	TemperatureStd  float64   `json:"temperature_std"`
	SampleCount     int       `json:"sample_count"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
}

// ZScores holds the per-parameter standardized deviations of one sample
// against its baseline
type ZScores struct {
	Velocity    float64 `json:"velocity_z"`
	Density     float64 `json:"density_z"`
	Temperature float64 `json:"temperature_z"`
}

// Threshold domain bounds. Values outside the domain are rejected
// with an InvalidConfigError.
const (
	MinThreshold = 1.0
	MaxThreshold = 5.0
)

// ThresholdConfig holds the sigma multipliers read by the detector.
// It is a per-run configuration value, never a process-wide singleton:
// concurrent runs with different configs must not interfere. Version
// attributes results to the config that produced them.
type ThresholdConfig struct {
	VelocityEnhancement    float64 `json:"velocity_enhancement"`
	DensityEnhancement     float64 `json:"density_enhancement"`
	TemperatureAnomaly     float64 `json:"temperature_anomaly"`
	CombinedScoreThreshold float64 `json:"combined_score_threshold"`
	Version                string  `json:"version,omitempty"`
}

// DefaultThresholds returns the operational default configuration
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		VelocityEnhancement:    2.5,
		DensityEnhancement:     2.0,
		TemperatureAnomaly:     2.0,
		CombinedScoreThreshold: 2.0,
		Version:                "default-v1",
	}
}

// Validate checks all four thresholds against the allowed domain
func (c ThresholdConfig) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"velocity_enhancement", c.VelocityEnhancement},
		{"density_enhancement", c.DensityEnhancement},
		{"temperature_anomaly", c.TemperatureAnomaly},
		{"combined_score_threshold", c.CombinedScoreThreshold},
	}
	for _, f := range fields {
		if f.value < MinThreshold || f.value > MaxThreshold {
			return &InvalidConfigError{Field: f.name, Value: f.value}
		}
	}
	return nil
}

// CandidateWindow is a contiguous span whose combined score exceeded the
// configured threshold. Created by the detector, consumed (and possibly
// discarded) by the cross-validator.
type CandidateWindow struct {
	Source           DataSource `json:"source"`
	Start            time.Time  `json:"start"`
	End              time.Time  `json:"end"`
	PeakTime         time.Time  `json:"peak_time"`
	PeakVelocityZ    float64    `json:"peak_velocity_z"`
	PeakDensityZ     float64    `json:"peak_density_z"`
	PeakTemperatureZ float64    `json:"peak_temperature_z"`
	PeakVelocity     float64    `json:"peak_velocity"` // km/s, used for arrival estimation
	CombinedScore    float64    `json:"combined_score"`
}

// HaloWidthDegrees is the angular width above which a CME is classified
// as a halo event (strict greater-than)
const HaloWidthDegrees = 270.0

// CACTUSEvent is a read-only reference catalog entry from the CACTUS database
type CACTUSEvent struct {
	Datetime       time.Time `json:"datetime"`
	Speed          float64   `json:"speed"`           // km/s, plane-of-sky
	AngularWidth   float64   `json:"angular_width"`   // degrees, 0-360
	SourceLocation string    `json:"source_location"` // heliographic coordinates, e.g. N15W45
}

// IsHalo reports whether the event's angular width strictly exceeds 270 degrees
func (e CACTUSEvent) IsHalo() bool {
	return e.AngularWidth > HaloWidthDegrees
}

// CMEEvent is the final detected and validated entity exposed to clients.
// Never mutated after creation: re-detection produces a new event record,
// preserving the audit trail.
type CMEEvent struct {
	Datetime         time.Time `json:"datetime"`
	Speed            float64   `json:"speed"`         // km/s
	AngularWidth     float64   `json:"angular_width"` // degrees
	SourceLocation   string    `json:"source_location"`
	EstimatedArrival time.Time `json:"estimated_arrival"`
	Confidence       float64   `json:"confidence"` // 0.0-1.0
	ConfigVersion    string    `json:"config_version,omitempty"`
}
