package fetchers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"cmewatch/internal/models"
)

// spdfRow is one record of the SPDF magnetic field archive, already in nT
type spdfRow struct {
	Epoch      string  `json:"epoch"`
	BxGSM      float64 `json:"bx_gsm"`
	ByGSM      float64 `json:"by_gsm"`
	BzGSM      float64 `json:"bz_gsm"`
	Spacecraft string  `json:"spacecraft"`
}

// FetchMagnetic fetches SPDF magnetic field samples for the given range
func (f *DataFetcher) FetchMagnetic(ctx context.Context, start, end time.Time) ([]models.MagneticFieldSample, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"start": start.UTC().Format(time.RFC3339),
			"end":   end.UTC().Format(time.RFC3339),
		}).
		Get(f.cfg.SPDFMagneticURL)
	if err != nil {
		return nil, unavailable(models.SourceSPDF, err)
	}
	if resp.StatusCode() != 200 {
		return nil, unavailable(models.SourceSPDF, fmt.Errorf("HTTP %d", resp.StatusCode()))
	}

	var rows []spdfRow
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, corrupt(models.SourceSPDF, fmt.Errorf("unparseable payload: %v", err))
	}

	samples := make([]models.MagneticFieldSample, 0, len(rows))
	for i, row := range rows {
		ts, err := time.Parse(time.RFC3339, row.Epoch)
		if err != nil {
			return nil, corrupt(models.SourceSPDF, fmt.Errorf("bad epoch at record %d: %v", i, err))
		}
		samples = append(samples, models.MagneticFieldSample{
			Timestamp:        ts.UTC(),
			Bx:               row.BxGSM,
			By:               row.ByGSM,
			Bz:               row.BzGSM,
			SourceSpacecraft: row.Spacecraft,
		})
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return samples, nil
}
