package charts

import (
	"encoding/json"
	"fmt"
	"time"

	"cmewatch/internal/models"
)

// ChartSnippet is an embeddable interactive chart for HTML reports
type ChartSnippet struct {
	ID     string
	Title  string
	Div    string
	Script string
	HTML   string
}

// GenerateVelocitySnippet builds an ECharts line chart of the velocity
// series with detected event markers
func (cg *ChartGenerator) GenerateVelocitySnippet(series models.ParticleSeries, events []models.CMEEvent) (ChartSnippet, error) {
	id := "chart-velocity-timeline"

	timestamps := make([]string, 0, len(series.Samples))
	values := make([]float64, 0, len(series.Samples))
	for _, s := range series.Samples {
		timestamps = append(timestamps, s.Timestamp.Format("2006-01-02 15:04"))
		values = append(values, s.Velocity)
	}

	markers := make([]interface{}, 0, len(events))
	for _, e := range events {
		markers = append(markers, map[string]interface{}{
			"name":  fmt.Sprintf("CME %.0f km/s", e.Speed),
			"xAxis": e.Datetime.Format("2006-01-02 15:04"),
		})
	}

	option := map[string]interface{}{
		"tooltip": map[string]interface{}{"trigger": "axis"},
		"grid":    map[string]interface{}{"left": "8%", "right": "4%", "bottom": "8%", "containLabel": true},
		"xAxis":   map[string]interface{}{"type": "category", "data": timestamps},
		"yAxis":   map[string]interface{}{"type": "value", "name": "km/s"},
		"series": []interface{}{map[string]interface{}{
			"type":       "line",
			"data":       values,
			"showSymbol": false,
			"markLine":   map[string]interface{}{"data": markers},
		}},
	}

	optJSON, err := json.Marshal(option)
	if err != nil {
		return ChartSnippet{}, err
	}

	div := fmt.Sprintf("<div id=\"%s\" style=\"width:100%%;height:360px;\"></div>", id)
	script := fmt.Sprintf(`<script>(function(){var el=document.getElementById('%s');if(!el)return;var c=echarts.init(el);var option=%s;c.setOption(option);window.addEventListener('resize',function(){c.resize();});})();</script>`, id, string(optJSON))

	completeHTML := fmt.Sprintf(`<script src="https://cdn.jsdelivr.net/npm/echarts@5.4.3/dist/echarts.min.js"></script>
<div class="chart-container">
	<h3>Solar Wind Velocity</h3>
	%s
</div>
%s`, div, script)

	return ChartSnippet{ID: id, Title: "Solar Wind Velocity", Div: div, Script: script, HTML: completeHTML}, nil
}

// BuildChartSeries converts a series into the wire shape the dashboard
// consumes in analysis results
func BuildChartSeries(series models.ParticleSeries) map[string]models.ChartSeries {
	n := len(series.Samples)
	timestamps := make([]string, 0, n)
	velocity := make([]float64, 0, n)
	density := make([]float64, 0, n)
	temperature := make([]float64, 0, n)
	for _, s := range series.Samples {
		timestamps = append(timestamps, s.Timestamp.UTC().Format(time.RFC3339))
		velocity = append(velocity, s.Velocity)
		density = append(density, s.Density)
		temperature = append(temperature, s.Temperature)
	}

	return map[string]models.ChartSeries{
		"velocity":    {Timestamps: timestamps, Values: velocity, Unit: "km/s"},
		"density":     {Timestamps: timestamps, Values: density, Unit: "cm⁻³"},
		"temperature": {Timestamps: timestamps, Values: temperature, Unit: "K"},
	}
}
