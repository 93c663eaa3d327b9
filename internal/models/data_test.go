package models

import (
	"errors"
	"testing"
	"time"
)

func TestIsHaloBoundary(t *testing.T) {
	// Strict greater-than: exactly 270 degrees is not a halo
	event := CACTUSEvent{AngularWidth: 270.0}
	if event.IsHalo() {
		t.Error("angular_width 270.0 must not be classified as halo")
	}

	event.AngularWidth = 270.1
	if !event.IsHalo() {
		t.Error("angular_width 270.1 must be classified as halo")
	}

	event.AngularWidth = 360.0
	if !event.IsHalo() {
		t.Error("angular_width 360.0 must be classified as halo")
	}
}

func TestThresholdConfigValidate(t *testing.T) {
	cfg := DefaultThresholds()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default thresholds should be valid, got: %v", err)
	}

	cfg.VelocityEnhancement = -1.0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for negative sigma threshold")
	}

	var ice *InvalidConfigError
	if !errors.As(err, &ice) {
		t.Fatalf("expected InvalidConfigError, got %T", err)
	}
	if ice.Field != "velocity_enhancement" {
		t.Errorf("expected field velocity_enhancement, got %s", ice.Field)
	}
	if ErrorClass(err) != "InvalidConfig" {
		t.Errorf("expected InvalidConfig class, got %s", ErrorClass(err))
	}
}

func TestThresholdConfigDomainBounds(t *testing.T) {
	cfg := DefaultThresholds()

	cfg.CombinedScoreThreshold = MinThreshold
	if err := cfg.Validate(); err != nil {
		t.Errorf("threshold at lower bound should be valid, got: %v", err)
	}

	cfg.CombinedScoreThreshold = MaxThreshold
	if err := cfg.Validate(); err != nil {
		t.Errorf("threshold at upper bound should be valid, got: %v", err)
	}

	cfg.CombinedScoreThreshold = MaxThreshold + 0.1
	if err := cfg.Validate(); err == nil {
		t.Error("threshold above upper bound should be rejected")
	}
}

func TestErrorClass(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrSourceUnavailable, "SourceUnavailable"},
		{ErrSourceDataCorrupt, "SourceDataCorrupt"},
		{ErrInsufficientBaseline, "InsufficientBaseline"},
		{ErrInsufficientLabels, "InsufficientLabels"},
		{ErrCancelled, "Cancelled"},
		{errors.New("something else"), "Internal"},
	}

	for _, c := range cases {
		if got := ErrorClass(c.err); got != c.want {
			t.Errorf("ErrorClass(%v) = %s, want %s", c.err, got, c.want)
		}
	}

	// Wrapped errors classify through the chain
	wrapped := &SourceError{Source: SourceISSDC, Err: ErrSourceUnavailable}
	if got := ErrorClass(wrapped); got != "SourceUnavailable" {
		t.Errorf("wrapped source error classified as %s", got)
	}
}

func TestBaselineErrorContext(t *testing.T) {
	err := &BaselineError{
		Parameter:   "velocity",
		WindowStart: time.Date(2024, 12, 18, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC),
		Available:   12,
		Required:    100,
	}

	if !errors.Is(err, ErrInsufficientBaseline) {
		t.Error("BaselineError should unwrap to ErrInsufficientBaseline")
	}
	if ErrorClass(err) != "InsufficientBaseline" {
		t.Errorf("expected InsufficientBaseline class, got %s", ErrorClass(err))
	}
}

func TestParticleSeriesBounds(t *testing.T) {
	var empty ParticleSeries
	if !empty.Start().IsZero() || !empty.End().IsZero() {
		t.Error("empty series should report zero bounds")
	}

	base := time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)
	series := ParticleSeries{
		Source: SourceISSDC,
		Samples: []ParticleSample{
			{Timestamp: base},
			{Timestamp: base.Add(time.Minute)},
			{Timestamp: base.Add(2 * time.Minute)},
		},
	}
	if !series.Start().Equal(base) {
		t.Errorf("Start = %v, want %v", series.Start(), base)
	}
	if !series.End().Equal(base.Add(2 * time.Minute)) {
		t.Errorf("End = %v, want %v", series.End(), base.Add(2*time.Minute))
	}
}
