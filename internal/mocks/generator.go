package mocks

import (
	"math"
	"math/rand"
	"time"

	"cmewatch/internal/models"
)

// Generator produces synthetic but physically plausible mission data for
// mockup mode and demos. Seeded: the same seed and range always produce
// the same series.
type Generator struct {
	seed int64
}

// NewGenerator creates a generator with the given seed
func NewGenerator(seed int64) *Generator {
	return &Generator{seed: seed}
}

// TransientSpec places one synthetic CME signature in a generated series
type TransientSpec struct {
	At       time.Duration // offset from series start
	Duration time.Duration
	SpeedKmS float64 // peak bulk speed of the transient
}

// ParticleSeries generates a quiet solar-wind background at the given
// cadence with the requested transients injected
func (g *Generator) ParticleSeries(start, end time.Time, cadence time.Duration, transients []TransientSpec) models.ParticleSeries {
	rng := rand.New(rand.NewSource(g.seed))
	series := models.ParticleSeries{Source: models.SourceISSDC}

	for ts := start; !ts.After(end); ts = ts.Add(cadence) {
		offset := ts.Sub(start)
		daily := math.Sin(2 * math.Pi * offset.Hours() / 24)

		sample := models.ParticleSample{
			Timestamp:   ts,
			Velocity:    400 + 25*daily + (rng.Float64()*2-1)*5,
			Density:     5 + 1*daily + (rng.Float64()*2-1)*0.3,
			Temperature: 1e5 + 1.5e4*daily + (rng.Float64()*2-1)*3e3,
			Source:      models.SourceISSDC,
		}

		for _, tr := range transients {
			if offset >= tr.At && offset < tr.At+tr.Duration {
				progress := float64(offset-tr.At) / float64(tr.Duration)
				envelope := math.Sin(math.Pi * progress) // ramp up then down
				sample.Velocity += (tr.SpeedKmS - 400) * envelope
				sample.Density += 20 * envelope
				sample.Temperature += 4e5 * envelope
			}
		}

		sample.Flux = sample.Density * sample.Velocity * 1e5
		series.Samples = append(series.Samples, sample)
	}
	return series
}

// Catalog generates CACTUS entries matching the given transients
func (g *Generator) Catalog(start time.Time, transients []TransientSpec) []models.CACTUSEvent {
	rng := rand.New(rand.NewSource(g.seed + 1))

	locations := []string{"N15W45", "S08E22", "N02W10", "S20W60"}
	var events []models.CACTUSEvent
	for _, tr := range transients {
		width := 90 + rng.Float64()*270
		events = append(events, models.CACTUSEvent{
			Datetime:       start.Add(tr.At + tr.Duration/2),
			Speed:          tr.SpeedKmS,
			AngularWidth:   math.Min(width, 360),
			SourceLocation: locations[rng.Intn(len(locations))],
		})
	}
	return events
}

// Magnetic generates field samples with a rotation signature during each
// transient and a steady Parker-spiral-ish background otherwise
func (g *Generator) Magnetic(start, end time.Time, cadence time.Duration, transients []TransientSpec) []models.MagneticFieldSample {
	rng := rand.New(rand.NewSource(g.seed + 2))

	var samples []models.MagneticFieldSample
	for ts := start; !ts.After(end); ts = ts.Add(cadence) {
		offset := ts.Sub(start)

		angle := 0.0
		for _, tr := range transients {
			if offset >= tr.At && offset < tr.At+tr.Duration {
				progress := float64(offset-tr.At) / float64(tr.Duration)
				angle = math.Pi * progress // smooth 180 degree rotation
			}
		}

		magnitude := 5 + rng.Float64()
		samples = append(samples, models.MagneticFieldSample{
			Timestamp:        ts,
			Bx:               magnitude * math.Cos(angle),
			By:               magnitude * math.Sin(angle),
			Bz:               (rng.Float64()*2 - 1) * 0.5,
			SourceSpacecraft: "ADITYA-L1",
		})
	}
	return samples
}

// MissionDataset bundles everything an offline analysis run needs
type MissionDataset struct {
	Particles models.ParticleSeries
	Catalog   []models.CACTUSEvent
	Magnetic  []models.MagneticFieldSample
}

// Dataset generates a coherent mockup dataset for the range: background
// wind, a handful of transients sized to the range, and corroborating
// catalog and magnetic data
func (g *Generator) Dataset(start, end time.Time, cadence time.Duration) *MissionDataset {
	span := end.Sub(start)

	var transients []TransientSpec
	for at := 12 * time.Hour; at+2*time.Hour < span; at += 36 * time.Hour {
		transients = append(transients, TransientSpec{
			At:       at,
			Duration: 2 * time.Hour,
			SpeedKmS: 700 + float64(len(transients)*150),
		})
	}

	return &MissionDataset{
		Particles: g.ParticleSeries(start, end, cadence, transients),
		Catalog:   g.Catalog(start, transients),
		Magnetic:  g.Magnetic(start, end, 5*cadence, transients),
	}
}
