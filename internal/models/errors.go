package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors forming the pipeline error taxonomy. Handlers map these
// to API error classifications; errors.Is works through wrapped chains.
var (
	// ErrSourceUnavailable indicates a remote source failed after retry
	// exhaustion. Retryable by the caller.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSourceDataCorrupt indicates an unparseable payload. Not retryable
	// without intervention.
	ErrSourceDataCorrupt = errors.New("source data corrupt")

	// ErrInsufficientBaseline indicates too little history to compute
	// stable statistics.
	ErrInsufficientBaseline = errors.New("insufficient baseline")

	// ErrInsufficientLabels indicates the optimizer lacks labeled events.
	ErrInsufficientLabels = errors.New("insufficient labels")

	// ErrCancelled indicates a caller-initiated abort; partial results
	// are discarded, never persisted.
	ErrCancelled = errors.New("analysis cancelled")
)

// SourceError wraps a per-source failure with the source identity so that
// multi-source operations can report outcomes independently
type SourceError struct {
	Source DataSource
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// InvalidConfigError reports a threshold value outside the allowed domain
type InvalidConfigError struct {
	Field string
	Value float64
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s=%.3f outside domain [%.1f, %.1f]",
		e.Field, e.Value, MinThreshold, MaxThreshold)
}

// BaselineError reports which parameter and window lacked history
type BaselineError struct {
	Parameter   string
	WindowStart time.Time
	WindowEnd   time.Time
	Available   int
	Required    int
}

func (e *BaselineError) Error() string {
	return fmt.Sprintf("insufficient baseline for %s: %d of %d required samples in [%s, %s)",
		e.Parameter, e.Available, e.Required,
		e.WindowStart.Format(time.RFC3339), e.WindowEnd.Format(time.RFC3339))
}

func (e *BaselineError) Unwrap() error {
	return ErrInsufficientBaseline
}

// ErrorClass returns the API classification string for an error
func ErrorClass(err error) string {
	switch {
	case errors.Is(err, ErrSourceUnavailable):
		return "SourceUnavailable"
	case errors.Is(err, ErrSourceDataCorrupt):
		return "SourceDataCorrupt"
	case errors.Is(err, ErrInsufficientBaseline):
		return "InsufficientBaseline"
	case errors.Is(err, ErrInsufficientLabels):
		return "InsufficientLabels"
	case errors.Is(err, ErrCancelled):
		return "Cancelled"
	default:
		var ice *InvalidConfigError
		if errors.As(err, &ice) {
			return "InvalidConfig"
		}
		return "Internal"
	}
}
