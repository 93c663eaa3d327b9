package crossval

import (
	"math"
	"time"

	"cmewatch/internal/logger"
	"cmewatch/internal/models"
)

// Sun-Earth transit estimation constants. Arrival is a rough empirical
// relation, not a propagation model: transit hours = slowdown factor times
// distance over plane-of-sky speed.
const (
	SunEarthDistanceKm = 1.496e8
	TransitSlowdown    = 1.4
)

// Options configures the cross-validator
type Options struct {
	MatchTolerance     time.Duration
	RotationMinDegrees float64
	UnconfirmedRatio   float64
}

// DefaultOptions returns the operational cross-validation settings
func DefaultOptions() Options {
	return Options{
		MatchTolerance:     6 * time.Hour,
		RotationMinDegrees: 60,
		UnconfirmedRatio:   1.5,
	}
}

// Validator corroborates candidate windows against the CACTUS reference
// catalog and SPDF magnetic field data, producing confirmed CME events or
// discarding weak candidates
type Validator struct {
	opts Options
	log  *logger.Logger
}

// New creates a validator
func New(opts Options) *Validator {
	return &Validator{
		opts: opts,
		log:  logger.GetGlobalLogger().WithComponent("crossval"),
	}
}

// Validate evaluates one candidate window. It returns the resulting event
// and true, or nil and false when the candidate is discarded.
//
// A catalog event matches when its datetime falls within the window widened
// by the tolerance on both sides; among several matches the one closest to
// the window peak wins. Magnetic corroboration requires a field rotation
// exceeding the configured angle within the window. Candidates with neither
// corroboration survive only if their combined score reaches UnconfirmedRatio
// times the configured threshold.
func (v *Validator) Validate(candidate models.CandidateWindow, catalog []models.CACTUSEvent, magnetic []models.MagneticFieldSample, cfg models.ThresholdConfig) (*models.CMEEvent, bool) {
	match := v.matchCatalog(candidate, catalog)
	rotated := v.hasFieldRotation(candidate, magnetic)

	if match == nil && !rotated {
		required := cfg.CombinedScoreThreshold * v.opts.UnconfirmedRatio
		if candidate.CombinedScore < required {
			v.log.Debug("candidate discarded, no corroboration", map[string]interface{}{
				"peak":     candidate.PeakTime.Format(time.RFC3339),
				"score":    candidate.CombinedScore,
				"required": required,
			})
			return nil, false
		}
	}

	event := &models.CMEEvent{
		Confidence:    v.confidence(candidate, match, rotated, cfg),
		ConfigVersion: cfg.Version,
	}

	if match != nil {
		event.Datetime = match.Datetime
		event.Speed = match.Speed
		event.AngularWidth = match.AngularWidth
		event.SourceLocation = match.SourceLocation
	} else {
		event.Datetime = candidate.PeakTime
		event.Speed = candidate.PeakVelocity
		event.SourceLocation = "UNKNOWN"
	}

	event.EstimatedArrival = EstimateArrival(candidate.PeakTime, event.Speed)

	return event, true
}

// ValidateAll runs Validate over a batch of candidates, keeping order
func (v *Validator) ValidateAll(candidates []models.CandidateWindow, catalog []models.CACTUSEvent, magnetic []models.MagneticFieldSample, cfg models.ThresholdConfig) []models.CMEEvent {
	events := make([]models.CMEEvent, 0, len(candidates))
	for _, c := range candidates {
		if event, ok := v.Validate(c, catalog, magnetic, cfg); ok {
			events = append(events, *event)
		}
	}
	v.log.Info("cross-validation complete", map[string]interface{}{
		"candidates": len(candidates),
		"confirmed":  len(events),
	})
	return events
}

// EstimateArrival returns the estimated Earth arrival time for a CME
// first seen at launch moving at speed km/s. Non-positive speeds yield
// the zero time.
func EstimateArrival(launch time.Time, speedKmS float64) time.Time {
	if speedKmS <= 0 {
		return time.Time{}
	}
	transitHours := TransitSlowdown * SunEarthDistanceKm / speedKmS / 3600
	return launch.Add(time.Duration(transitHours * float64(time.Hour)))
}

// matchCatalog finds the catalog event within the widened window closest
// to the candidate peak, or nil
func (v *Validator) matchCatalog(candidate models.CandidateWindow, catalog []models.CACTUSEvent) *models.CACTUSEvent {
	lo := candidate.Start.Add(-v.opts.MatchTolerance)
	hi := candidate.End.Add(v.opts.MatchTolerance)

	var best *models.CACTUSEvent
	var bestDist time.Duration
	for i := range catalog {
		e := &catalog[i]
		if e.Datetime.Before(lo) || e.Datetime.After(hi) {
			continue
		}
		dist := absDuration(e.Datetime.Sub(candidate.PeakTime))
		if best == nil || dist < bestDist {
			best = e
			bestDist = dist
		}
	}
	return best
}

// hasFieldRotation reports whether the field direction rotated by more than
// the configured angle between the window start and any later in-window
// sample. Needs at least two in-window samples.
func (v *Validator) hasFieldRotation(candidate models.CandidateWindow, magnetic []models.MagneticFieldSample) bool {
	var reference *models.MagneticFieldSample
	for i := range magnetic {
		s := &magnetic[i]
		if s.Timestamp.Before(candidate.Start) || s.Timestamp.After(candidate.End) {
			continue
		}
		if reference == nil {
			reference = s
			continue
		}
		if angleBetween(reference, s) > v.opts.RotationMinDegrees {
			return true
		}
	}
	return false
}

// confidence scores a surviving candidate in [0, 1]: signal strength
// carries half the weight, catalog match about a third, magnetic signature
// the rest. Strength saturates asymptotically, so a candidate with no
// corroboration at all stays strictly below 0.5 no matter how strong the
// signal. Adding corroboration never lowers the score.
func (v *Validator) confidence(candidate models.CandidateWindow, match *models.CACTUSEvent, rotated bool, cfg models.ThresholdConfig) float64 {
	strength := candidate.CombinedScore / (candidate.CombinedScore + 1)
	score := 0.5 * strength

	if match != nil {
		offset := absDuration(match.Datetime.Sub(candidate.PeakTime))
		proximity := 1 - float64(offset)/float64(v.opts.MatchTolerance+candidate.End.Sub(candidate.Start))
		if proximity < 0.5 {
			proximity = 0.5
		}
		score += 0.35 * proximity
	}
	if rotated {
		score += 0.15
	}

	if score > 1 {
		score = 1
	}
	return score
}

// angleBetween returns the angle in degrees between two field vectors
func angleBetween(a, b *models.MagneticFieldSample) float64 {
	dot := a.Bx*b.Bx + a.By*b.By + a.Bz*b.Bz
	magA := math.Sqrt(a.Bx*a.Bx + a.By*a.By + a.Bz*a.Bz)
	magB := math.Sqrt(b.Bx*b.Bx + b.By*b.By + b.Bz*b.Bz)
	if magA == 0 || magB == 0 {
		return 0
	}
	cos := dot / (magA * magB)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
