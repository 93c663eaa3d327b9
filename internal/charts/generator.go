package charts

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"cmewatch/internal/models"
)

// ChartGenerator renders static chart images for analysis reports
type ChartGenerator struct{}

// NewChartGenerator creates a new chart generator
func NewChartGenerator() *ChartGenerator {
	return &ChartGenerator{}
}

// ChartFile is one rendered chart image
type ChartFile struct {
	Filename string
	Data     []byte
}

// GenerateCharts renders the per-parameter time series of one run, with
// candidate windows highlighted on the velocity chart
func (cg *ChartGenerator) GenerateCharts(series models.ParticleSeries, candidates []models.CandidateWindow) ([]ChartFile, error) {
	if len(series.Samples) < 2 {
		return nil, fmt.Errorf("not enough samples to chart")
	}

	xValues := make([]time.Time, 0, len(series.Samples))
	velocity := make([]float64, 0, len(series.Samples))
	density := make([]float64, 0, len(series.Samples))
	temperature := make([]float64, 0, len(series.Samples))
	for _, s := range series.Samples {
		xValues = append(xValues, s.Timestamp)
		velocity = append(velocity, s.Velocity)
		density = append(density, s.Density)
		temperature = append(temperature, s.Temperature)
	}

	var files []ChartFile

	velocityChart, err := cg.renderTimeSeries("Solar Wind Velocity", "km/s", xValues, velocity, candidates)
	if err != nil {
		return nil, err
	}
	files = append(files, ChartFile{Filename: "velocity.png", Data: velocityChart})

	densityChart, err := cg.renderTimeSeries("Proton Density", "cm^-3", xValues, density, nil)
	if err != nil {
		return nil, err
	}
	files = append(files, ChartFile{Filename: "density.png", Data: densityChart})

	temperatureChart, err := cg.renderTimeSeries("Ion Temperature", "K", xValues, temperature, nil)
	if err != nil {
		return nil, err
	}
	files = append(files, ChartFile{Filename: "temperature.png", Data: temperatureChart})

	return files, nil
}

// renderTimeSeries renders one parameter as a PNG. Candidate windows, when
// given, are drawn as highlighted segments over the main series.
func (cg *ChartGenerator) renderTimeSeries(title, unit string, xValues []time.Time, yValues []float64, candidates []models.CandidateWindow) ([]byte, error) {
	mainSeries := chart.TimeSeries{
		Name: title,
		Style: chart.Style{
			StrokeColor: drawing.Color{R: 51, G: 102, B: 204, A: 255}, // Blue
			StrokeWidth: 1.5,
		},
		XValues: xValues,
		YValues: yValues,
	}

	allSeries := []chart.Series{mainSeries}
	for i, c := range candidates {
		var cx []time.Time
		var cy []float64
		for j, ts := range xValues {
			if !ts.Before(c.Start) && !ts.After(c.End) {
				cx = append(cx, ts)
				cy = append(cy, yValues[j])
			}
		}
		if len(cx) < 2 {
			continue
		}
		allSeries = append(allSeries, chart.TimeSeries{
			Name: fmt.Sprintf("Candidate %d", i+1),
			Style: chart.Style{
				StrokeColor: drawing.Color{R: 204, G: 51, B: 51, A: 255}, // Red
				StrokeWidth: 3,
			},
			XValues: cx,
			YValues: cy,
		})
	}

	graph := chart.Chart{
		Title: title,
		TitleStyle: chart.Style{
			FontSize:  16,
			FontColor: drawing.ColorBlack,
		},
		Background: chart.Style{
			Padding: chart.Box{
				Top:    40,
				Left:   70,
				Right:  20,
				Bottom: 60,
			},
		},
		Height: 350,
		Width:  900,
		XAxis: chart.XAxis{
			Name: "Time (UTC)",
		},
		YAxis: chart.YAxis{
			Name: unit,
		},
		Series: allSeries,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("failed to render %s chart: %w", title, err)
	}
	return buf.Bytes(), nil
}
