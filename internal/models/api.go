package models

// Wire types for the HTTP API. Field names and shapes are a compatibility
// contract with the dashboard client; do not rename tags.

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status     string          `json:"status"`
	Timestamp  string          `json:"timestamp"`
	Components map[string]bool `json:"components"`
}

// DataSummary is returned by GET /api/data/summary
type DataSummary struct {
	MissionStatus  string `json:"mission_status"`
	DataCoverage   string `json:"data_coverage"`
	LastUpdate     string `json:"last_update"`
	TotalCMEEvents int    `json:"total_cme_events"`
	ActiveAlerts   int    `json:"active_alerts"`
	SystemHealth   string `json:"system_health"`
}

// RecentCMEEvent is one entry in the recent-events listing
type RecentCMEEvent struct {
	Datetime         string  `json:"datetime"`
	Speed            float64 `json:"speed"`
	AngularWidth     float64 `json:"angular_width"`
	SourceLocation   string  `json:"source_location"`
	EstimatedArrival string  `json:"estimated_arrival"`
	Confidence       float64 `json:"confidence"`
}

// RecentCMEResponse is returned by GET /api/cme/recent
type RecentCMEResponse struct {
	Events     []RecentCMEEvent `json:"events"`
	TotalCount int              `json:"total_count"`
	DateRange  string           `json:"date_range"`
}

// Analysis types accepted by POST /api/analyze
const (
	AnalysisFull          = "full"
	AnalysisQuick         = "quick"
	AnalysisThresholdOnly = "threshold_only"
)

// AnalysisRequest is the body of POST /api/analyze
type AnalysisRequest struct {
	StartDate       string             `json:"start_date"`
	EndDate         string             `json:"end_date"`
	AnalysisType    string             `json:"analysis_type"`
	ConfigOverrides map[string]float64 `json:"config_overrides,omitempty"`
}

// ChartSeries is one named series within charts_data
type ChartSeries struct {
	Timestamps []string  `json:"timestamps"`
	Values     []float64 `json:"values"`
	Unit       string    `json:"unit"`
}

// AnalysisResult is returned by POST /api/analyze
type AnalysisResult struct {
	CMEEvents          []RecentCMEEvent       `json:"cme_events"`
	Thresholds         map[string]float64     `json:"thresholds"`
	PerformanceMetrics map[string]float64     `json:"performance_metrics"`
	DataSummary        map[string]interface{} `json:"data_summary"`
	ChartsData         map[string]ChartSeries `json:"charts_data"`
}

// OptimizeResponse is returned by POST /api/thresholds/optimize.
// ConfidenceScore is the achieved objective value, not a probability;
// callers must not conflate it with CMEEvent confidence.
type OptimizeResponse struct {
	OptimizedThresholds map[string]float64 `json:"optimized_thresholds"`
	OptimizationMethod  string             `json:"optimization_method"`
	ConfidenceScore     float64            `json:"confidence_score"`
}

// ParticleData is returned by GET /api/charts/particle-data
type ParticleData struct {
	Timestamps  []string          `json:"timestamps"`
	Velocity    []float64         `json:"velocity"`
	Density     []float64         `json:"density"`
	Temperature []float64         `json:"temperature"`
	Flux        []float64         `json:"flux"`
	Units       map[string]string `json:"units"`
}

// ParticleDataUnits returns the unit labels the client renders on chart axes
func ParticleDataUnits() map[string]string {
	return map[string]string{
		"velocity":    "km/s",
		"density":     "cm⁻³",
		"temperature": "K",
		"flux":        "particles/(cm²·s)",
	}
}

// UploadResult is returned by POST /api/data/upload
type UploadResult struct {
	Filename          string                 `json:"filename"`
	FileSize          int                    `json:"file_size"`
	Status            string                 `json:"status"`
	ProcessingStatus  string                 `json:"processing_status"`
	DataQuality       map[string]interface{} `json:"data_quality,omitempty"`
	MLAnalysis        map[string]interface{} `json:"ml_analysis,omitempty"`
	DetectedCMEEvents []RecentCMEEvent       `json:"detected_cme_events,omitempty"`
	Recommendations   []string               `json:"recommendations"`
}

// SyncRequest is the body of POST /api/data/sync
type SyncRequest struct {
	Name       string            `json:"name"`
	SyncType   string            `json:"sync_type"`
	DataSource string            `json:"data_source"`
	Settings   map[string]string `json:"settings,omitempty"`
}

// SyncResult reports the outcome of syncing one source
type SyncResult struct {
	Source           DataSource `json:"source"`
	Success          bool       `json:"success"`
	RecordsProcessed int        `json:"records_processed"`
	Error            string     `json:"error,omitempty"`
}

// SyncAllResult aggregates per-source outcomes of POST /api/data/sync-all.
// One source's failure never aborts the others; partial success is a
// valid, reportable outcome.
type SyncAllResult struct {
	SuccessfulSources int          `json:"successful_sources"`
	TotalSources      int          `json:"total_sources"`
	TotalRecords      int          `json:"total_records"`
	Results           []SyncResult `json:"results"`
}

// APIError is the JSON error envelope returned on failures
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
