package reports

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"cmewatch/internal/charts"
	"cmewatch/internal/logger"
	"cmewatch/internal/models"
	"cmewatch/internal/optimizer"
	"cmewatch/internal/pipeline"
	"cmewatch/internal/storage"
)

// Generator builds and stores analysis reports: a markdown summary, its
// HTML rendering with interactive charts, and static chart images
type Generator struct {
	store    storage.StorageClient
	charts   *charts.ChartGenerator
	markdown goldmark.Markdown
	log      *logger.Logger
}

// NewGenerator creates a report generator over the given storage client
func NewGenerator(store storage.StorageClient) *Generator {
	return &Generator{
		store:    store,
		charts:   charts.NewChartGenerator(),
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		log:      logger.GetGlobalLogger().WithComponent("reports"),
	}
}

// Publish renders and stores the full report set for one analysis run.
// Returns the folder path the report was stored under.
func (g *Generator) Publish(ctx context.Context, runAt time.Time, out *pipeline.RunOutput, cfg models.ThresholdConfig) (string, error) {
	folder := storage.GenerateRunFolderPath(runAt)

	md := g.BuildMarkdown(runAt, out, cfg)
	if err := g.store.StoreFile(ctx, folder+"/report.md", []byte(md)); err != nil {
		return "", fmt.Errorf("failed to store markdown report: %w", err)
	}

	html, err := g.RenderHTML(md, out)
	if err != nil {
		return "", err
	}
	if err := g.store.StoreFile(ctx, folder+"/index.html", []byte(html)); err != nil {
		return "", fmt.Errorf("failed to store HTML report: %w", err)
	}

	images, err := g.charts.GenerateCharts(out.Series, out.Candidates)
	if err != nil {
		g.log.Warn("chart rendering skipped", map[string]interface{}{"error": err.Error()})
	} else {
		for _, img := range images {
			if err := g.store.StoreFile(ctx, folder+"/"+img.Filename, img.Data); err != nil {
				return "", fmt.Errorf("failed to store chart %s: %w", img.Filename, err)
			}
		}
	}

	g.log.Info("report published", map[string]interface{}{"folder": folder})
	return folder, nil
}

// BuildMarkdown renders the run summary as markdown
func (g *Generator) BuildMarkdown(runAt time.Time, out *pipeline.RunOutput, cfg models.ThresholdConfig) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Halo CME Detection Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", runAt.UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "## Data Quality\n\n")
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Source | %s |\n", out.Report.Source)
	fmt.Fprintf(&b, "| Total samples | %d |\n", out.Report.TotalSamples)
	fmt.Fprintf(&b, "| Valid samples | %d |\n", out.Report.ValidSamples)
	fmt.Fprintf(&b, "| Out of range | %d |\n", out.Report.OutOfRangeSamples)
	fmt.Fprintf(&b, "| Coverage gaps | %d |\n", len(out.Report.Gaps))
	fmt.Fprintf(&b, "| Completeness | %.1f%% |\n\n", out.Report.Completeness*100)

	fmt.Fprintf(&b, "## Detection Configuration\n\n")
	fmt.Fprintf(&b, "Config version: `%s`\n\n", cfg.Version)
	fmt.Fprintf(&b, "| Threshold | Sigma |\n|---|---|\n")
	fmt.Fprintf(&b, "| Velocity enhancement | %.2f |\n", cfg.VelocityEnhancement)
	fmt.Fprintf(&b, "| Density enhancement | %.2f |\n", cfg.DensityEnhancement)
	fmt.Fprintf(&b, "| Temperature anomaly | %.2f |\n", cfg.TemperatureAnomaly)
	fmt.Fprintf(&b, "| Combined score | %.2f |\n\n", cfg.CombinedScoreThreshold)

	fmt.Fprintf(&b, "## Detected Events\n\n")
	if len(out.Events) == 0 {
		fmt.Fprintf(&b, "No CME events detected in the analyzed period.\n\n")
	} else {
		fmt.Fprintf(&b, "| Onset (UTC) | Speed (km/s) | Width (deg) | Halo | Source | Est. Arrival | Confidence |\n")
		fmt.Fprintf(&b, "|---|---|---|---|---|---|---|\n")
		for _, e := range out.Events {
			halo := "no"
			if e.AngularWidth > models.HaloWidthDegrees {
				halo = "yes"
			}
			arrival := "-"
			if !e.EstimatedArrival.IsZero() {
				arrival = e.EstimatedArrival.UTC().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(&b, "| %s | %.0f | %.0f | %s | %s | %s | %.2f |\n",
				e.Datetime.UTC().Format("2006-01-02 15:04"), e.Speed, e.AngularWidth,
				halo, e.SourceLocation, arrival, e.Confidence)
		}
		fmt.Fprintf(&b, "\n")
	}

	if out.Metrics != (optimizer.Metrics{}) {
		fmt.Fprintf(&b, "## Validation Against Catalog\n\n")
		fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
		fmt.Fprintf(&b, "| Precision | %.3f |\n", out.Metrics.Precision)
		fmt.Fprintf(&b, "| Recall | %.3f |\n", out.Metrics.Recall)
		fmt.Fprintf(&b, "| F1 | %.3f |\n\n", out.Metrics.F1)
	}

	return b.String()
}

// RenderHTML converts the markdown report to a standalone HTML page with
// the interactive velocity chart embedded
func (g *Generator) RenderHTML(md string, out *pipeline.RunOutput) (string, error) {
	var body bytes.Buffer
	if err := g.markdown.Convert([]byte(md), &body); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}

	chartHTML := ""
	if len(out.Series.Samples) > 1 {
		snippet, err := g.charts.GenerateVelocitySnippet(out.Series, out.Events)
		if err == nil {
			chartHTML = snippet.HTML
		}
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Halo CME Detection Report</title>
<style>
body { font-family: -apple-system, sans-serif; max-width: 960px; margin: 2em auto; padding: 0 1em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 10px; }
</style>
</head>
<body>
%s
%s
</body>
</html>
`, body.String(), chartHTML)

	return page, nil
}
