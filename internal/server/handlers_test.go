package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cmewatch/internal/config"
	"cmewatch/internal/models"
)

func newTestServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()

	cfg := &config.Config{
		Port:                     "8000",
		Environment:              "test",
		LogLevel:                 "error",
		LocalDataDir:             t.TempDir(),
		MockupMode:               true,
		SourceTimeout:            5 * time.Second,
		RetryAttempts:            3,
		RetryBaseWait:            time.Millisecond,
		NominalCadence:           time.Minute,
		GapFactor:                3.0,
		InterpolationMaxGap:      time.Hour,
		BaselineWindow:           168 * time.Hour,
		MinBaselineSamples:       100,
		CombinedScoreAggregation: "euclidean",
		HysteresisRatio:          0.7,
		MinDwell:                 30 * time.Minute,
		MatchTolerance:           6 * time.Hour,
		RotationMinDegrees:       60,
		UnconfirmedRatio:         1.5,
		OptimizerMinLabels:       10,
		OptimizerGridStep:        0.5,
	}

	srv, err := NewServer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	return srv, mux
}

func doRequest(mux *http.ServeMux, method, path string, body *bytes.Buffer) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if body.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	_, mux := newTestServer(t)

	rec := doRequest(mux, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var health models.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("Expected status healthy, got %s", health.Status)
	}
	if !health.Components["mockup"] {
		t.Error("Expected mockup component to be reported")
	}

	if rec := doRequest(mux, http.MethodPost, "/health", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405 for POST, got %d", rec.Code)
	}
}

func TestAnalyzeQuickMockupMode(t *testing.T) {
	_, mux := newTestServer(t)

	body := bytes.NewBufferString(`{"start_date":"2024-12-20","end_date":"2024-12-27","analysis_type":"quick"}`)
	rec := doRequest(mux, http.MethodPost, "/api/analyze", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result models.AnalysisResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(result.CMEEvents) == 0 {
		t.Error("Expected CME events from the synthetic transients")
	}
	if result.Thresholds["velocity_enhancement"] != 2.5 {
		t.Errorf("Expected default velocity threshold 2.5, got %f", result.Thresholds["velocity_enhancement"])
	}
	if result.PerformanceMetrics["recall"] <= 0 {
		t.Errorf("Expected positive recall against the catalog, got %f", result.PerformanceMetrics["recall"])
	}
	if _, ok := result.ChartsData["velocity"]; !ok {
		t.Error("Expected velocity series in charts data")
	}
	for _, e := range result.CMEEvents {
		if e.Confidence <= 0 || e.Confidence > 1 {
			t.Errorf("Confidence %f out of (0, 1]", e.Confidence)
		}
	}
}

func TestAnalyzeFullPersistsEvents(t *testing.T) {
	_, mux := newTestServer(t)

	rec := doRequest(mux, http.MethodPost, "/api/analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(mux, http.MethodGet, "/api/cme/recent", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 from recent, got %d", rec.Code)
	}

	var recent models.RecentCMEResponse
	if err := json.NewDecoder(rec.Body).Decode(&recent); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if recent.TotalCount == 0 {
		t.Error("Expected persisted events after a full analysis")
	}
}

func TestAnalyzeRejectsConcurrentRuns(t *testing.T) {
	srv, mux := newTestServer(t)

	srv.analyzeMutex.Lock()
	defer srv.analyzeMutex.Unlock()

	rec := doRequest(mux, http.MethodPost, "/api/analyze", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected status 409 while analysis is running, got %d", rec.Code)
	}

	var apiErr models.APIError
	if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if apiErr.Error != "Conflict" {
		t.Errorf("Expected Conflict error, got %s", apiErr.Error)
	}
}

func TestAnalyzeInvalidOverride(t *testing.T) {
	_, mux := newTestServer(t)

	body := bytes.NewBufferString(`{"config_overrides":{"velocity_enhancement":9.0}}`)
	rec := doRequest(mux, http.MethodPost, "/api/analyze", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400 for out-of-domain threshold, got %d", rec.Code)
	}

	var apiErr models.APIError
	if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if apiErr.Error != "InvalidConfig" {
		t.Errorf("Expected InvalidConfig class, got %s", apiErr.Error)
	}

	body = bytes.NewBufferString(`{"config_overrides":{"warp_factor":2.0}}`)
	if rec := doRequest(mux, http.MethodPost, "/api/analyze", body); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown override key, got %d", rec.Code)
	}
}

func TestAnalyzeBadDateRange(t *testing.T) {
	_, mux := newTestServer(t)

	body := bytes.NewBufferString(`{"start_date":"2024-12-27","end_date":"2024-12-20"}`)
	if rec := doRequest(mux, http.MethodPost, "/api/analyze", body); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for inverted range, got %d", rec.Code)
	}

	body = bytes.NewBufferString(`{"start_date":"25/12/2024"}`)
	if rec := doRequest(mux, http.MethodPost, "/api/analyze", body); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unparseable date, got %d", rec.Code)
	}
}

func TestOptimizeEndpoint(t *testing.T) {
	_, mux := newTestServer(t)

	rec := doRequest(mux, http.MethodPost, "/api/thresholds/optimize", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result models.OptimizeResponse
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result.OptimizationMethod != "coordinate_grid_search_f1" {
		t.Errorf("Unexpected optimization method %s", result.OptimizationMethod)
	}
	for key, value := range result.OptimizedThresholds {
		if value < models.MinThreshold || value > models.MaxThreshold {
			t.Errorf("Optimized %s=%f outside threshold domain", key, value)
		}
	}
	if result.ConfidenceScore <= 0 {
		t.Errorf("Expected positive objective score, got %f", result.ConfidenceScore)
	}
}

func TestParticleDataEndpoint(t *testing.T) {
	_, mux := newTestServer(t)

	rec := doRequest(mux, http.MethodGet, "/api/charts/particle-data", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var data models.ParticleData
	if err := json.NewDecoder(rec.Body).Decode(&data); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	n := len(data.Timestamps)
	if n == 0 {
		t.Fatal("Expected non-empty particle data")
	}
	if len(data.Velocity) != n || len(data.Density) != n || len(data.Temperature) != n || len(data.Flux) != n {
		t.Error("Expected all series to have equal length")
	}
	if data.Units["velocity"] != "km/s" {
		t.Errorf("Expected km/s velocity unit, got %s", data.Units["velocity"])
	}
}

func uploadRequest(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "swis_level2.cdf")
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	part.Write(data)
	writer.Close()
	return &buf, writer.FormDataContentType()
}

func TestUploadValidCDF(t *testing.T) {
	_, mux := newTestServer(t)

	payload := append([]byte{0xCD, 0xF3, 0x00, 0x01, 0x00, 0x00, 0xFF, 0xFF}, bytes.Repeat([]byte{0x42}, 256)...)
	body, contentType := uploadRequest(t, payload)

	req := httptest.NewRequest(http.MethodPost, "/api/data/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result models.UploadResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Status != "uploaded" {
		t.Errorf("Expected status uploaded, got %s", result.Status)
	}
	if result.ProcessingStatus != "pending" {
		t.Errorf("Expected processing status pending, got %s", result.ProcessingStatus)
	}
	if result.FileSize != len(payload) {
		t.Errorf("Expected file size %d, got %d", len(payload), result.FileSize)
	}
	if len(result.Recommendations) == 0 {
		t.Error("Expected recommendations in upload result")
	}
}

func TestUploadRejectsNonCDF(t *testing.T) {
	_, mux := newTestServer(t)

	body, contentType := uploadRequest(t, []byte("timestamp,velocity\n2024-12-25T00:00:00Z,400\n"))
	req := httptest.NewRequest(http.MethodPost, "/api/data/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400 for non-CDF upload, got %d", rec.Code)
	}

	var apiErr models.APIError
	if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if apiErr.Error != "SourceDataCorrupt" {
		t.Errorf("Expected SourceDataCorrupt class, got %s", apiErr.Error)
	}
}

func TestSyncEndpoint(t *testing.T) {
	_, mux := newTestServer(t)

	body := bytes.NewBufferString(`{"name":"nightly","sync_type":"incremental","data_source":"cactus"}`)
	rec := doRequest(mux, http.MethodPost, "/api/data/sync", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result models.SyncResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !result.Success {
		t.Errorf("Expected successful sync, got error %q", result.Error)
	}
	if result.Source != models.SourceCACTUS {
		t.Errorf("Expected source CACTUS, got %s", result.Source)
	}
	if result.RecordsProcessed == 0 {
		t.Error("Expected records processed to be reported")
	}

	body = bytes.NewBufferString(`{"data_source":"hubble"}`)
	if rec := doRequest(mux, http.MethodPost, "/api/data/sync", body); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown source, got %d", rec.Code)
	}
}

func TestSyncAllEndpoint(t *testing.T) {
	_, mux := newTestServer(t)

	rec := doRequest(mux, http.MethodPost, "/api/data/sync-all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var result models.SyncAllResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.TotalSources != 3 {
		t.Errorf("Expected 3 sources, got %d", result.TotalSources)
	}
	if result.SuccessfulSources != 3 {
		t.Errorf("Expected all sources to succeed, got %d", result.SuccessfulSources)
	}
	if result.TotalRecords == 0 {
		t.Error("Expected records across sources")
	}
}

func TestDataSummaryEndpoint(t *testing.T) {
	_, mux := newTestServer(t)

	rec := doRequest(mux, http.MethodGet, "/api/data/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var summary models.DataSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if summary.MissionStatus != "simulated" {
		t.Errorf("Expected simulated mission status in mockup mode, got %s", summary.MissionStatus)
	}
	if summary.SystemHealth != "nominal" {
		t.Errorf("Expected nominal system health, got %s", summary.SystemHealth)
	}
	if !strings.Contains(summary.DataCoverage, "no data") {
		t.Errorf("Expected no-data coverage before any analysis, got %q", summary.DataCoverage)
	}
}
