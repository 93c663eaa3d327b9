package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"cmewatch/internal/crossval"
	"cmewatch/internal/detector"
	"cmewatch/internal/features"
	"cmewatch/internal/mocks"
	"cmewatch/internal/models"
	"cmewatch/internal/quality"
	"cmewatch/internal/storage"
)

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	client, err := storage.NewLocalStorageClient(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	gate := quality.NewGate(quality.DefaultOptions())
	engine := features.NewEngine(168*time.Hour, 100)
	det := detector.New(engine, detector.DefaultOptions())
	xval := crossval.New(crossval.DefaultOptions())
	return New(gate, det, xval, storage.NewEventStore(client), 6*time.Hour)
}

func testInput() RunInput {
	start := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	ds := mocks.NewGenerator(42).Dataset(start, start.Add(4*24*time.Hour), time.Minute)
	return RunInput{
		Particles:  ds.Particles,
		Catalog:    ds.Catalog,
		Magnetic:   ds.Magnetic,
		Thresholds: models.DefaultThresholds(),
		Type:       models.AnalysisFull,
		Start:      start,
		End:        start.Add(4 * 24 * time.Hour),
		RunAt:      start.Add(4 * 24 * time.Hour),
	}
}

func TestRunFullPipeline(t *testing.T) {
	p := testPipeline(t)
	out, err := p.Run(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(out.Candidates) == 0 {
		t.Fatal("Expected candidate windows from the synthetic transients")
	}
	if len(out.Events) == 0 {
		t.Fatal("Expected validated CME events")
	}
	if out.StoredPath == "" {
		t.Error("Full run should persist events")
	}
	if out.Report.TotalSamples == 0 {
		t.Error("Expected a populated quality report")
	}
	if out.Metrics.Recall == 0 {
		t.Error("Expected detections to recover at least some catalog events")
	}

	for _, e := range out.Events {
		if e.Confidence <= 0 || e.Confidence > 1 {
			t.Errorf("Confidence out of range: %f", e.Confidence)
		}
		if e.ConfigVersion != models.DefaultThresholds().Version {
			t.Errorf("Event should carry the config version, got %q", e.ConfigVersion)
		}
	}
}

func TestRunThresholdOnlySkipsValidationAndPersistence(t *testing.T) {
	p := testPipeline(t)
	input := testInput()
	input.Type = models.AnalysisThresholdOnly

	out, err := p.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(out.Events) != 0 {
		t.Error("threshold_only run should not produce validated events")
	}
	if out.StoredPath != "" {
		t.Error("threshold_only run should not persist anything")
	}
	if len(out.Candidates) == 0 {
		t.Error("threshold_only run should still detect candidates")
	}
}

func TestRunQuickSkipsPersistence(t *testing.T) {
	p := testPipeline(t)
	input := testInput()
	input.Type = models.AnalysisQuick

	out, err := p.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(out.Events) == 0 {
		t.Error("quick run should still validate events")
	}
	if out.StoredPath != "" {
		t.Error("quick run should not persist anything")
	}
}

func TestRunCancelledDiscardsPartialResults(t *testing.T) {
	p := testPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, testInput())
	if err == nil {
		t.Fatal("Expected cancellation error, got nil")
	}
	if !errors.Is(err, models.ErrCancelled) {
		t.Errorf("Expected ErrCancelled, got: %v", err)
	}

	count, err := p.events.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Cancelled run must not persist events, found %d", count)
	}
}

func TestRunIdempotentDetection(t *testing.T) {
	p := testPipeline(t)
	input := testInput()
	input.Type = models.AnalysisQuick // no persistence, pure computation

	first, err := p.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	second, err := p.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if !reflect.DeepEqual(first.Candidates, second.Candidates) {
		t.Error("Re-running the same input must yield identical candidates")
	}
	if !reflect.DeepEqual(first.Events, second.Events) {
		t.Error("Re-running the same input must yield identical events")
	}
}

func TestRunAppendOnlyAcrossRuns(t *testing.T) {
	p := testPipeline(t)
	input := testInput()

	if _, err := p.Run(context.Background(), input); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	input.RunAt = input.RunAt.Add(time.Hour)
	if _, err := p.Run(context.Background(), input); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	// both runs' records are retained: re-detection appends, never rewrites
	firstCount := 0
	events, err := p.events.LoadSince(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("LoadSince failed: %v", err)
	}
	for range events {
		firstCount++
	}
	if firstCount == 0 {
		t.Fatal("Expected persisted events")
	}

	out, err := p.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Third run failed: %v", err)
	}
	if out.StoredPath == "" {
		t.Error("Each full run should write its own record")
	}
}

func TestRunInvalidThresholds(t *testing.T) {
	p := testPipeline(t)
	input := testInput()
	input.Thresholds.CombinedScoreThreshold = 9.0

	_, err := p.Run(context.Background(), input)
	if err == nil {
		t.Fatal("Expected error for out-of-domain threshold, got nil")
	}
	var ice *models.InvalidConfigError
	if !errors.As(err, &ice) {
		t.Errorf("Expected InvalidConfigError, got: %v", err)
	}
}
