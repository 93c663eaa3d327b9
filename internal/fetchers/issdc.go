package fetchers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cmewatch/internal/models"
)

// eV to Kelvin
const evToKelvin = 11604.518

// issdcRow is one line of the ISSDC Level-2 particle stream. The archive
// serves SI units; normalization to conventional solar-wind units happens
// at ingest so everything downstream sees km/s, cm^-3 and Kelvin.
type issdcRow struct {
	Timestamp      string  `json:"timestamp"`
	BulkSpeed      float64 `json:"bulk_speed"`      // m/s
	ProtonDensity  float64 `json:"proton_density"`  // m^-3
	IonTemperature float64 `json:"ion_temperature"` // eV
	IntegratedFlux float64 `json:"integrated_flux"` // particles/(cm^2 s)
}

// FetchParticles fetches the ISSDC particle stream for the given range.
// The stream is newline-delimited JSON. An unparseable first record means
// a corrupt payload; a parse failure mid-stream truncates the series at
// the last good record and flags it TRUNCATED instead of discarding the
// usable prefix.
func (f *DataFetcher) FetchParticles(ctx context.Context, start, end time.Time) (models.ParticleSeries, error) {
	series := models.ParticleSeries{Source: models.SourceISSDC}

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"start": start.UTC().Format(time.RFC3339),
			"end":   end.UTC().Format(time.RFC3339),
		}).
		Get(f.cfg.ISSDCParticleURL)
	if err != nil {
		return series, unavailable(models.SourceISSDC, err)
	}
	if resp.StatusCode() != 200 {
		return series, unavailable(models.SourceISSDC, fmt.Errorf("HTTP %d", resp.StatusCode()))
	}

	samples, truncated, err := parseISSDCStream(resp.Body())
	if err != nil {
		return series, corrupt(models.SourceISSDC, err)
	}
	if truncated {
		f.log.Warn("ISSDC stream truncated at parse failure", map[string]interface{}{
			"samples": len(samples),
		})
	}

	series.Samples = NormalizeSamples(samples, models.SourceISSDC)
	return series, nil
}

// parseISSDCStream decodes NDJSON rows into samples. Returns the samples,
// whether the stream was truncated, and an error when nothing was usable.
func parseISSDCStream(body []byte) ([]models.ParticleSample, bool, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var samples []models.ParticleSample
	line := 0
	for scanner.Scan() {
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		line++

		var row issdcRow
		if err := json.Unmarshal(text, &row); err != nil {
			if len(samples) == 0 {
				return nil, false, fmt.Errorf("unparseable record at line %d: %v", line, err)
			}
			last := &samples[len(samples)-1]
			last.QualityFlags = append(last.QualityFlags, models.QualityTruncated)
			return samples, true, nil
		}

		ts, err := time.Parse(time.RFC3339, row.Timestamp)
		if err != nil {
			if len(samples) == 0 {
				return nil, false, fmt.Errorf("bad timestamp at line %d: %v", line, err)
			}
			last := &samples[len(samples)-1]
			last.QualityFlags = append(last.QualityFlags, models.QualityTruncated)
			return samples, true, nil
		}

		samples = append(samples, models.ParticleSample{
			Timestamp:   ts.UTC(),
			Velocity:    row.BulkSpeed / 1000,       // m/s -> km/s
			Density:     row.ProtonDensity / 1e6,    // m^-3 -> cm^-3
			Temperature: row.IonTemperature * evToKelvin,
			Flux:        row.IntegratedFlux,
			Source:      models.SourceISSDC,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, false, fmt.Errorf("stream read failed: %v", err)
	}
	if len(samples) == 0 {
		return nil, false, fmt.Errorf("empty particle stream")
	}
	return samples, false, nil
}
