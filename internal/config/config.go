package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the CME detection service
type Config struct {
	// Server configuration
	Port string `env:"PORT,default=8000"`

	// Deployment configuration
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	// Storage configuration (GCS bucket optional, local dir used otherwise)
	GCSBucket    string `env:"GCS_BUCKET"`
	LocalDataDir string `env:"LOCAL_DATA_DIR,default=./data"`
	MockupMode   bool   `env:"MOCKUP_MODE,default=false"`

	// Data source URLs
	ISSDCParticleURL string `env:"ISSDC_PARTICLE_URL,default=https://pradan.issdc.gov.in/al1/swis/level2/timeseries"`
	CACTUSCatalogURL string `env:"CACTUS_CATALOG_URL,default=https://www.sidc.be/cactus/catalog/LASCO/2_5_0/qkl/latestCMEs.txt"`
	CACTUSFeedURL    string `env:"CACTUS_FEED_URL,default=https://www.sidc.be/cactus/out/latestCMEs.rss"`
	SPDFMagneticURL  string `env:"SPDF_MAGNETIC_URL,default=https://cdaweb.gsfc.nasa.gov/hapi/data/mag-rtn-1min"`

	// Source adapter behavior
	SourceTimeout time.Duration `env:"SOURCE_TIMEOUT,default=30s"`
	RetryAttempts int           `env:"RETRY_ATTEMPTS,default=5"`
	RetryBaseWait time.Duration `env:"RETRY_BASE_WAIT,default=2s"`

	// Quality gate
	NominalCadence       time.Duration `env:"NOMINAL_CADENCE,default=1m"`
	GapFactor            float64       `env:"GAP_FACTOR,default=3.0"`
	InterpolationEnabled bool          `env:"INTERPOLATION_ENABLED,default=false"`
	InterpolationMaxGap  time.Duration `env:"INTERPOLATION_MAX_GAP,default=1h"`

	// Feature engine
	BaselineWindow     time.Duration `env:"BASELINE_WINDOW,default=168h"`
	MinBaselineSamples int           `env:"MIN_BASELINE_SAMPLES,default=100"`

	// Detector
	CombinedScoreAggregation string        `env:"COMBINED_SCORE_AGGREGATION,default=euclidean"`
	HysteresisRatio          float64       `env:"HYSTERESIS_RATIO,default=0.7"`
	MinDwell                 time.Duration `env:"MIN_DWELL,default=30m"`

	// Cross-validator
	MatchTolerance     time.Duration `env:"MATCH_TOLERANCE,default=6h"`
	RotationMinDegrees float64       `env:"ROTATION_MIN_DEGREES,default=60"`
	UnconfirmedRatio   float64       `env:"UNCONFIRMED_RATIO,default=1.5"`

	// Optimizer
	OptimizerMinLabels int     `env:"OPTIMIZER_MIN_LABELS,default=10"`
	OptimizerGridStep  float64 `env:"OPTIMIZER_GRID_STEP,default=0.5"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}
