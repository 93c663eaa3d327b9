package fetchers

import (
	"sort"

	"cmewatch/internal/models"
)

// NormalizeSamples sorts samples ascending by timestamp and deduplicates
// equal timestamps, keeping the later occurrence: re-ingestion supersedes
// the older sample rather than editing it in place.
func NormalizeSamples(samples []models.ParticleSample, source models.DataSource) []models.ParticleSample {
	if len(samples) == 0 {
		return samples
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	out := samples[:0]
	for _, s := range samples {
		s.Source = source
		if len(out) > 0 && out[len(out)-1].Timestamp.Equal(s.Timestamp) {
			out[len(out)-1] = s
			continue
		}
		out = append(out, s)
	}
	return out
}
