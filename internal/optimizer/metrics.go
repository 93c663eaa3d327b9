package optimizer

import (
	"time"

	"cmewatch/internal/models"
)

// Metrics summarizes detection performance against labeled events
type Metrics struct {
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
}

// Evaluate scores candidate windows against labeled events. A label counts
// as found when it falls inside a window widened by the tolerance; a window
// matching no label is a false positive.
func Evaluate(candidates []models.CandidateWindow, labels []models.CACTUSEvent, tolerance time.Duration) Metrics {
	var m Metrics

	matched := make([]bool, len(candidates))
	for _, label := range labels {
		found := false
		for i, c := range candidates {
			if !label.Datetime.Before(c.Start.Add(-tolerance)) && !label.Datetime.After(c.End.Add(tolerance)) {
				matched[i] = true
				found = true
			}
		}
		if found {
			m.TruePositives++
		} else {
			m.FalseNegatives++
		}
	}
	for _, hit := range matched {
		if !hit {
			m.FalsePositives++
		}
	}

	if m.TruePositives+m.FalsePositives > 0 {
		m.Precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	if m.TruePositives+m.FalseNegatives > 0 {
		m.Recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}

	return m
}
