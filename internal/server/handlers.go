package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"cmewatch/internal/charts"
	"cmewatch/internal/models"
	"cmewatch/internal/pipeline"
)

const (
	defaultAnalysisRange = 7 * 24 * time.Hour
	recentEventsRange    = 30 * 24 * time.Hour
	optimizeRange        = 15 * 24 * time.Hour
	maxUploadBytes       = 64 << 20
)

// HandleHealth handles GET /health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Components: map[string]bool{
			"storage":  true,
			"fetchers": true,
			"pipeline": true,
			"mockup":   s.Config.MockupMode,
		},
	})
}

// HandleDataSummary handles GET /api/data/summary
func (s *Server) HandleDataSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	total, err := s.Events.Count(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	recent, err := s.Events.LoadSince(r.Context(), time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		writeError(w, err)
		return
	}

	s.mu.RLock()
	coverage := "no data analyzed yet"
	if len(s.lastSeries.Samples) > 0 {
		coverage = fmt.Sprintf("%s to %s",
			s.lastSeries.Start().Format("2006-01-02 15:04"),
			s.lastSeries.End().Format("2006-01-02 15:04"))
	}
	lastUpdate := "never"
	if !s.lastRunAt.IsZero() {
		lastUpdate = s.lastRunAt.Format(time.RFC3339)
	}
	s.mu.RUnlock()

	mission := "operational"
	if s.Config.MockupMode {
		mission = "simulated"
	}

	writeJSON(w, http.StatusOK, models.DataSummary{
		MissionStatus:  mission,
		DataCoverage:   coverage,
		LastUpdate:     lastUpdate,
		TotalCMEEvents: total,
		ActiveAlerts:   len(recent),
		SystemHealth:   "nominal",
	})
}

// HandleRecentCME handles GET /api/cme/recent
func (s *Server) HandleRecentCME(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cutoff := time.Now().UTC().Add(-recentEventsRange)
	events, err := s.Events.LoadSince(r.Context(), cutoff)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.RecentCMEResponse{
		Events:     toRecentEvents(events),
		TotalCount: len(events),
		DateRange: fmt.Sprintf("%s to %s",
			cutoff.Format("2006-01-02"), time.Now().UTC().Format("2006-01-02")),
	})
}

// HandleAnalyze handles POST /api/analyze. Only one analysis may run at a
// time; concurrent requests are rejected with 409.
func (s *Server) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.analyzeMutex.TryLock() {
		writeJSON(w, http.StatusConflict, models.APIError{
			Error:   "Conflict",
			Message: "An analysis is already running, try again later",
		})
		return
	}
	defer s.analyzeMutex.Unlock()

	var req models.AnalysisRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeJSON(w, http.StatusBadRequest, models.APIError{
				Error:   "InvalidRequest",
				Message: fmt.Sprintf("failed to parse request body: %v", err),
			})
			return
		}
	}

	start, end, err := resolveRange(req.StartDate, req.EndDate, defaultAnalysisRange)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIError{Error: "InvalidRequest", Message: err.Error()})
		return
	}

	thresholds, err := applyOverrides(models.DefaultThresholds(), req.ConfigOverrides)
	if err != nil {
		class := models.ErrorClass(err)
		if class == "Internal" {
			class = "InvalidRequest"
		}
		writeJSON(w, http.StatusBadRequest, models.APIError{Error: class, Message: err.Error()})
		return
	}

	s.log.Info("analysis requested", map[string]interface{}{
		"start": start.Format(time.RFC3339),
		"end":   end.Format(time.RFC3339),
		"type":  req.AnalysisType,
	})

	data, err := s.fetchRange(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}

	runAt := time.Now().UTC()
	out, err := s.Pipeline.Run(r.Context(), pipeline.RunInput{
		Particles:  data.Particles,
		Catalog:    data.Catalog,
		Magnetic:   data.Magnetic,
		Thresholds: thresholds,
		Type:       req.AnalysisType,
		Start:      start,
		End:        end,
		RunAt:      runAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.cacheRun(out.Series, out.Report, data.Catalog)

	if req.AnalysisType == models.AnalysisFull || req.AnalysisType == "" {
		if _, err := s.Reports.Publish(r.Context(), runAt, out, thresholds); err != nil {
			s.log.Warn("report publication failed", map[string]interface{}{"error": err.Error()})
		}
	}

	writeJSON(w, http.StatusOK, buildAnalysisResult(out, thresholds, start, end))
}

// HandleOptimize handles POST /api/thresholds/optimize
func (s *Server) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.analyzeMutex.TryLock() {
		writeJSON(w, http.StatusConflict, models.APIError{
			Error:   "Conflict",
			Message: "An analysis is already running, try again later",
		})
		return
	}
	defer s.analyzeMutex.Unlock()

	var overrides map[string]float64
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil && err != io.EOF {
			writeJSON(w, http.StatusBadRequest, models.APIError{
				Error:   "InvalidRequest",
				Message: fmt.Sprintf("failed to parse request body: %v", err),
			})
			return
		}
	}

	initial, err := applyOverrides(models.DefaultThresholds(), overrides)
	if err != nil {
		class := models.ErrorClass(err)
		if class == "Internal" {
			class = "InvalidRequest"
		}
		writeJSON(w, http.StatusBadRequest, models.APIError{Error: class, Message: err.Error()})
		return
	}

	end := time.Now().UTC().Truncate(time.Minute)
	data, err := s.fetchRange(r.Context(), end.Add(-optimizeRange), end)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.Optimizer.Optimize(r.Context(), data.Particles, data.Catalog, initial)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.OptimizeResponse{
		OptimizedThresholds: thresholdsMap(result.Config),
		OptimizationMethod:  "coordinate_grid_search_f1",
		ConfidenceScore:     result.Score,
	})
}

// HandleParticleData handles GET /api/charts/particle-data
func (s *Server) HandleParticleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	series := s.chartSeries()
	data := models.ParticleData{Units: models.ParticleDataUnits()}
	for _, sample := range series.Samples {
		data.Timestamps = append(data.Timestamps, sample.Timestamp.UTC().Format(time.RFC3339))
		data.Velocity = append(data.Velocity, sample.Velocity)
		data.Density = append(data.Density, sample.Density)
		data.Temperature = append(data.Temperature, sample.Temperature)
		data.Flux = append(data.Flux, sample.Flux)
	}

	writeJSON(w, http.StatusOK, data)
}

// HandleUpload handles POST /api/data/upload. Accepts a CDF file as
// multipart form data, validates the magic number and stores it for
// later processing.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIError{
			Error:   "InvalidRequest",
			Message: fmt.Sprintf("failed to parse multipart form: %v", err),
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIError{
			Error:   "InvalidRequest",
			Message: "missing file field in form data",
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	if !isCDF(data) {
		writeJSON(w, http.StatusBadRequest, models.APIError{
			Error:   "SourceDataCorrupt",
			Message: fmt.Sprintf("%s is not a valid CDF file", header.Filename),
		})
		return
	}

	path := fmt.Sprintf("uploads/%s-%s",
		time.Now().UTC().Format("20060102T150405Z"), filepath.Base(header.Filename))
	if err := s.Storage.StoreFile(r.Context(), path, data); err != nil {
		writeError(w, fmt.Errorf("failed to store upload: %w", err))
		return
	}

	s.log.Info("file uploaded", map[string]interface{}{
		"filename": header.Filename,
		"size":     len(data),
		"path":     path,
	})

	writeJSON(w, http.StatusOK, models.UploadResult{
		Filename:         header.Filename,
		FileSize:         len(data),
		Status:           "uploaded",
		ProcessingStatus: "pending",
		DataQuality: map[string]interface{}{
			"format":      "CDF",
			"size_bytes":  len(data),
			"stored_path": path,
		},
		Recommendations: uploadRecommendations(len(data)),
	})
}

// HandleSync handles POST /api/data/sync
func (s *Server) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIError{
			Error:   "InvalidRequest",
			Message: fmt.Sprintf("failed to parse request body: %v", err),
		})
		return
	}

	source, err := resolveSource(req.DataSource)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIError{Error: "InvalidRequest", Message: err.Error()})
		return
	}

	end := time.Now().UTC()
	start := end.Add(-defaultAnalysisRange)

	if s.Mocks != nil {
		writeJSON(w, http.StatusOK, s.mockSyncResult(source, start, end))
		return
	}

	writeJSON(w, http.StatusOK, s.Fetcher.SyncSource(r.Context(), source, start, end))
}

// HandleSyncAll handles POST /api/data/sync-all. One source failing does
// not abort the others; the response reports per-source outcomes.
func (s *Server) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	end := time.Now().UTC()
	start := end.Add(-defaultAnalysisRange)

	if s.Mocks != nil {
		sources := []models.DataSource{models.SourceISSDC, models.SourceCACTUS, models.SourceSPDF}
		result := models.SyncAllResult{TotalSources: len(sources)}
		for _, source := range sources {
			sync := s.mockSyncResult(source, start, end)
			result.Results = append(result.Results, sync)
			result.SuccessfulSources++
			result.TotalRecords += sync.RecordsProcessed
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	writeJSON(w, http.StatusOK, s.Fetcher.SyncAll(r.Context(), start, end))
}

// mockSyncResult simulates a successful sync from generated data
func (s *Server) mockSyncResult(source models.DataSource, start, end time.Time) models.SyncResult {
	ds := s.Mocks.Dataset(start, end, s.Config.NominalCadence)
	records := 0
	switch source {
	case models.SourceISSDC:
		records = len(ds.Particles.Samples)
	case models.SourceCACTUS:
		records = len(ds.Catalog)
	case models.SourceSPDF:
		records = len(ds.Magnetic)
	}
	return models.SyncResult{Source: source, Success: true, RecordsProcessed: records}
}

// resolveRange parses the requested dates, defaulting to the trailing span
func resolveRange(startDate, endDate string, span time.Duration) (time.Time, time.Time, error) {
	end := time.Now().UTC().Truncate(time.Minute)
	if endDate != "" {
		parsed, err := parseDate(endDate)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = parsed
	}

	start := end.Add(-span)
	if startDate != "" {
		parsed, err := parseDate(startDate)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = parsed
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start date %s is not before end date %s", startDate, endDate)
	}
	return start, end, nil
}

// applyOverrides derives a threshold config from the defaults and the
// per-field overrides in the request
func applyOverrides(base models.ThresholdConfig, overrides map[string]float64) (models.ThresholdConfig, error) {
	if len(overrides) == 0 {
		return base, nil
	}

	for key, value := range overrides {
		switch key {
		case "velocity_enhancement":
			base.VelocityEnhancement = value
		case "density_enhancement":
			base.DensityEnhancement = value
		case "temperature_anomaly":
			base.TemperatureAnomaly = value
		case "combined_score_threshold":
			base.CombinedScoreThreshold = value
		default:
			return base, fmt.Errorf("unknown config override %q", key)
		}
	}
	base.Version = "custom-" + time.Now().UTC().Format("20060102T150405Z")

	if err := base.Validate(); err != nil {
		return base, err
	}
	return base, nil
}

// resolveSource maps a request data_source string to a source identity
func resolveSource(name string) (models.DataSource, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ISSDC", "ISSDC_SWIS", "SWIS", "ADITYA-L1":
		return models.SourceISSDC, nil
	case "CACTUS", "SIDC":
		return models.SourceCACTUS, nil
	case "SPDF", "CDAWEB", "OMNI":
		return models.SourceSPDF, nil
	default:
		return "", fmt.Errorf("unknown data source %q", name)
	}
}

// toRecentEvents converts events to the wire listing shape
func toRecentEvents(events []models.CMEEvent) []models.RecentCMEEvent {
	result := make([]models.RecentCMEEvent, 0, len(events))
	for _, e := range events {
		arrival := ""
		if !e.EstimatedArrival.IsZero() {
			arrival = e.EstimatedArrival.UTC().Format(time.RFC3339)
		}
		result = append(result, models.RecentCMEEvent{
			Datetime:         e.Datetime.UTC().Format(time.RFC3339),
			Speed:            e.Speed,
			AngularWidth:     e.AngularWidth,
			SourceLocation:   e.SourceLocation,
			EstimatedArrival: arrival,
			Confidence:       e.Confidence,
		})
	}
	return result
}

// thresholdsMap flattens a config for the wire
func thresholdsMap(cfg models.ThresholdConfig) map[string]float64 {
	return map[string]float64{
		"velocity_enhancement":     cfg.VelocityEnhancement,
		"density_enhancement":      cfg.DensityEnhancement,
		"temperature_anomaly":      cfg.TemperatureAnomaly,
		"combined_score_threshold": cfg.CombinedScoreThreshold,
	}
}

// buildAnalysisResult assembles the analyze response from a run output
func buildAnalysisResult(out *pipeline.RunOutput, cfg models.ThresholdConfig, start, end time.Time) models.AnalysisResult {
	return models.AnalysisResult{
		CMEEvents:  toRecentEvents(out.Events),
		Thresholds: thresholdsMap(cfg),
		PerformanceMetrics: map[string]float64{
			"precision":       out.Metrics.Precision,
			"recall":          out.Metrics.Recall,
			"f1":              out.Metrics.F1,
			"true_positives":  float64(out.Metrics.TruePositives),
			"false_positives": float64(out.Metrics.FalsePositives),
			"false_negatives": float64(out.Metrics.FalseNegatives),
		},
		DataSummary: map[string]interface{}{
			"period_start":        start.Format(time.RFC3339),
			"period_end":          end.Format(time.RFC3339),
			"config_version":      cfg.Version,
			"total_samples":       out.Report.TotalSamples,
			"valid_samples":       out.Report.ValidSamples,
			"out_of_range":        out.Report.OutOfRangeSamples,
			"coverage_gaps":       len(out.Report.Gaps),
			"completeness":        out.Report.Completeness,
			"candidate_windows":   len(out.Candidates),
			"cme_events_detected": len(out.Events),
			"stored_path":         out.StoredPath,
		},
		ChartsData: charts.BuildChartSeries(out.Series),
	}
}

// isCDF checks the 8-byte CDF magic: version 3 (0xCDF30001) or 2.6/2.7
// (0xCDF26002), each followed by 0x0000FFFF for uncompressed files or
// 0xCCCC0001 for compressed ones
func isCDF(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	v3 := []byte{0xCD, 0xF3, 0x00, 0x01}
	v2 := []byte{0xCD, 0xF2, 0x60, 0x02}
	if !bytes.Equal(data[:4], v3) && !bytes.Equal(data[:4], v2) {
		return false
	}
	uncompressed := []byte{0x00, 0x00, 0xFF, 0xFF}
	compressed := []byte{0xCC, 0xCC, 0x00, 0x01}
	return bytes.Equal(data[4:8], uncompressed) || bytes.Equal(data[4:8], compressed)
}

// uploadRecommendations suggests next steps based on the uploaded file
func uploadRecommendations(size int) []string {
	recs := []string{
		"Run POST /api/analyze to include this file's period in the next analysis",
	}
	if size < 1024 {
		recs = append(recs, "File is very small, verify the export covered the intended time range")
	}
	return recs
}
