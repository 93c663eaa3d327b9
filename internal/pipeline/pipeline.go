package pipeline

import (
	"context"
	"fmt"
	"time"

	"cmewatch/internal/crossval"
	"cmewatch/internal/detector"
	"cmewatch/internal/logger"
	"cmewatch/internal/models"
	"cmewatch/internal/optimizer"
	"cmewatch/internal/quality"
	"cmewatch/internal/storage"
)

// Pipeline runs the staged analysis: quality gate, detection,
// cross-validation, scoring, persistence. Stages are pure functions of
// their inputs; the only side effect is the final append-only event write,
// which a cancelled run never reaches.
type Pipeline struct {
	gate      *quality.Gate
	det       *detector.Detector
	xval      *crossval.Validator
	events    *storage.EventStore
	tolerance time.Duration
	log       *logger.Logger
}

// New creates a pipeline. The event store may be nil for runs that never
// persist (dry evaluation).
func New(gate *quality.Gate, det *detector.Detector, xval *crossval.Validator, events *storage.EventStore, tolerance time.Duration) *Pipeline {
	return &Pipeline{
		gate:      gate,
		det:       det,
		xval:      xval,
		events:    events,
		tolerance: tolerance,
		log:       logger.GetGlobalLogger().WithComponent("pipeline"),
	}
}

// RunInput is the material of one analysis run. Start and End are the
// requested analysis window; completeness is measured against them, not
// against whatever span the sources actually returned.
type RunInput struct {
	Particles  models.ParticleSeries
	Catalog    []models.CACTUSEvent
	Magnetic   []models.MagneticFieldSample
	Thresholds models.ThresholdConfig
	Type       string // full, quick or threshold_only
	Start      time.Time
	End        time.Time
	RunAt      time.Time
}

// RunOutput carries everything a run produced
type RunOutput struct {
	Series     models.ParticleSeries
	Report     models.QualityReport
	Candidates []models.CandidateWindow
	Events     []models.CMEEvent
	Metrics    optimizer.Metrics
	StoredPath string
}

// Run executes the pipeline. Analysis types differ in depth:
//
//	threshold_only  quality gate and detection, scoring candidates against
//	                the catalog; nothing validated or persisted
//	quick           adds cross-validation; nothing persisted
//	full            everything, ending with the append-only event write
//
// Cancellation is honored between stages; a cancelled run returns
// ErrCancelled and discards all partial results.
func (p *Pipeline) Run(ctx context.Context, input RunInput) (*RunOutput, error) {
	if err := input.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if input.Type == "" {
		input.Type = models.AnalysisFull
	}
	if input.RunAt.IsZero() {
		input.RunAt = time.Now().UTC()
	}

	p.log.Info("analysis run starting", map[string]interface{}{
		"type":    input.Type,
		"samples": len(input.Particles.Samples),
		"config":  input.Thresholds.Version,
	})

	out := &RunOutput{}

	if err := stageGate(ctx, "quality"); err != nil {
		return nil, err
	}
	out.Series, out.Report = p.gate.Validate(input.Particles, input.Start, input.End)

	if err := stageGate(ctx, "detection"); err != nil {
		return nil, err
	}
	candidates, err := p.det.Detect(out.Series, input.Thresholds)
	if err != nil {
		return nil, err
	}
	out.Candidates = candidates

	if len(input.Catalog) > 0 {
		out.Metrics = optimizer.Evaluate(candidates, input.Catalog, p.tolerance)
	}

	if input.Type == models.AnalysisThresholdOnly {
		return out, nil
	}

	if err := stageGate(ctx, "cross-validation"); err != nil {
		return nil, err
	}
	out.Events = p.xval.ValidateAll(candidates, input.Catalog, input.Magnetic, input.Thresholds)

	if input.Type == models.AnalysisQuick {
		return out, nil
	}

	if err := stageGate(ctx, "persistence"); err != nil {
		return nil, err
	}
	if p.events != nil && len(out.Events) > 0 {
		path, err := p.events.AppendRun(ctx, input.RunAt, out.Events)
		if err != nil {
			return nil, fmt.Errorf("failed to persist events: %w", err)
		}
		out.StoredPath = path
	}

	p.log.Info("analysis run complete", map[string]interface{}{
		"candidates": len(out.Candidates),
		"events":     len(out.Events),
	})
	return out, nil
}

// stageGate checks for cancellation before entering a stage
func stageGate(ctx context.Context, stage string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w before %s stage", models.ErrCancelled, stage)
	default:
		return nil
	}
}
