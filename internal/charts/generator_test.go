package charts

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"cmewatch/internal/models"
)

func chartSeries() models.ParticleSeries {
	start := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	series := models.ParticleSeries{Source: models.SourceISSDC}
	for i := 0; i < 120; i++ {
		series.Samples = append(series.Samples, models.ParticleSample{
			Timestamp:   start.Add(time.Duration(i) * time.Minute),
			Velocity:    400 + float64(i%7),
			Density:     5,
			Temperature: 1e5,
		})
	}
	return series
}

func TestGenerateChartsProducesPNGs(t *testing.T) {
	series := chartSeries()
	candidates := []models.CandidateWindow{{
		Start: series.Samples[30].Timestamp,
		End:   series.Samples[60].Timestamp,
	}}

	files, err := NewChartGenerator().GenerateCharts(series, candidates)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("Expected 3 chart files, got %d", len(files))
	}

	pngMagic := []byte{0x89, 'P', 'N', 'G'}
	for _, f := range files {
		if !bytes.HasPrefix(f.Data, pngMagic) {
			t.Errorf("File %s is not a PNG", f.Filename)
		}
	}
}

func TestGenerateChartsTooFewSamples(t *testing.T) {
	series := models.ParticleSeries{Source: models.SourceISSDC}
	if _, err := NewChartGenerator().GenerateCharts(series, nil); err == nil {
		t.Error("Expected error for empty series")
	}
}

func TestVelocitySnippet(t *testing.T) {
	series := chartSeries()
	events := []models.CMEEvent{{
		Datetime: series.Samples[45].Timestamp,
		Speed:    1200,
	}}

	snippet, err := NewChartGenerator().GenerateVelocitySnippet(series, events)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(snippet.Script, "echarts.init") {
		t.Error("Snippet script should initialize echarts")
	}
	if !strings.Contains(snippet.Script, "CME 1200 km/s") {
		t.Error("Snippet should mark the detected event")
	}
	if !strings.Contains(snippet.HTML, snippet.Div) {
		t.Error("Complete HTML should embed the chart div")
	}
}

func TestBuildChartSeries(t *testing.T) {
	series := chartSeries()
	data := BuildChartSeries(series)

	for _, key := range []string{"velocity", "density", "temperature"} {
		cs, ok := data[key]
		if !ok {
			t.Fatalf("Missing %s series", key)
		}
		if len(cs.Timestamps) != len(series.Samples) || len(cs.Values) != len(series.Samples) {
			t.Errorf("Series %s length mismatch", key)
		}
		if cs.Unit == "" {
			t.Errorf("Series %s missing unit", key)
		}
	}
}
