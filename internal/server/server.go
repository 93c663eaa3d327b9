package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cmewatch/internal/config"
	"cmewatch/internal/crossval"
	"cmewatch/internal/detector"
	"cmewatch/internal/features"
	"cmewatch/internal/fetchers"
	"cmewatch/internal/logger"
	"cmewatch/internal/mocks"
	"cmewatch/internal/models"
	"cmewatch/internal/optimizer"
	"cmewatch/internal/pipeline"
	"cmewatch/internal/quality"
	"cmewatch/internal/reports"
	"cmewatch/internal/storage"
)

// Server represents the main application server
type Server struct {
	Config    *config.Config
	Fetcher   *fetchers.DataFetcher
	Pipeline  *pipeline.Pipeline
	Optimizer *optimizer.Optimizer
	Storage   storage.StorageClient
	Events    *storage.EventStore
	Reports   *reports.Generator
	Mocks     *mocks.Generator

	log *logger.Logger

	// analyzeMutex rejects concurrent analysis requests instead of queueing
	analyzeMutex sync.Mutex

	// mu guards the cached state below
	mu          sync.RWMutex
	lastSeries  models.ParticleSeries
	lastReport  models.QualityReport
	lastCatalog []models.CACTUSEvent
	lastRunAt   time.Time
}

// NewServer creates a new server instance wired from configuration
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	store, err := storage.NewStorageClient(ctx, storage.ModeFromConfig(cfg), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	aggregation, err := detector.AggregationByName(cfg.CombinedScoreAggregation)
	if err != nil {
		return nil, err
	}

	gate := quality.NewGate(quality.Options{
		Ranges:               quality.DefaultRanges(),
		NominalCadence:       cfg.NominalCadence,
		GapFactor:            cfg.GapFactor,
		InterpolationEnabled: cfg.InterpolationEnabled,
		InterpolationMaxGap:  cfg.InterpolationMaxGap,
	})
	engine := features.NewEngine(cfg.BaselineWindow, cfg.MinBaselineSamples)
	det := detector.New(engine, detector.Options{
		Aggregation:     aggregation,
		HysteresisRatio: cfg.HysteresisRatio,
		MinDwell:        cfg.MinDwell,
	})
	xval := crossval.New(crossval.Options{
		MatchTolerance:     cfg.MatchTolerance,
		RotationMinDegrees: cfg.RotationMinDegrees,
		UnconfirmedRatio:   cfg.UnconfirmedRatio,
	})
	events := storage.NewEventStore(store)

	server := &Server{
		Config:    cfg,
		Fetcher:   fetchers.NewDataFetcher(cfg),
		Pipeline:  pipeline.New(gate, det, xval, events, cfg.MatchTolerance),
		Optimizer: optimizer.New(det, optimizer.Options{
			MinLabels: cfg.OptimizerMinLabels,
			GridStep:  cfg.OptimizerGridStep,
			Tolerance: cfg.MatchTolerance,
			Objective: optimizer.F1Objective,
		}),
		Storage: store,
		Events:  events,
		Reports: reports.NewGenerator(store),
		log:     logger.GetGlobalLogger().WithComponent("server"),
	}

	if cfg.MockupMode {
		server.Mocks = mocks.NewGenerator(42)
		server.log.Info("mockup mode enabled, serving synthetic mission data")
	}

	return server, nil
}

// SetupRoutes registers all HTTP routes
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/api/data/summary", s.HandleDataSummary)
	mux.HandleFunc("/api/cme/recent", s.HandleRecentCME)
	mux.HandleFunc("/api/analyze", s.HandleAnalyze)
	mux.HandleFunc("/api/thresholds/optimize", s.HandleOptimize)
	mux.HandleFunc("/api/charts/particle-data", s.HandleParticleData)
	mux.HandleFunc("/api/data/upload", s.HandleUpload)
	mux.HandleFunc("/api/data/sync", s.HandleSync)
	mux.HandleFunc("/api/data/sync-all", s.HandleSyncAll)
}

// Close releases server resources
func (s *Server) Close() error {
	return s.Storage.Close()
}

// fetchRange acquires mission data for the range, from the synthetic
// generator in mockup mode or from the live sources otherwise
func (s *Server) fetchRange(ctx context.Context, start, end time.Time) (*fetchers.FetchResult, error) {
	if s.Mocks != nil {
		ds := s.Mocks.Dataset(start, end, s.Config.NominalCadence)
		return &fetchers.FetchResult{
			Particles: ds.Particles,
			Catalog:   ds.Catalog,
			Magnetic:  ds.Magnetic,
		}, nil
	}
	return s.Fetcher.FetchAll(ctx, start, end)
}

// cacheRun stores the latest run's data for summary and chart endpoints
func (s *Server) cacheRun(series models.ParticleSeries, report models.QualityReport, catalog []models.CACTUSEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeries = series
	s.lastReport = report
	s.lastCatalog = catalog
	s.lastRunAt = time.Now().UTC()
}

// chartSeries returns the cached series, or a synthetic one when nothing
// has been analyzed yet
func (s *Server) chartSeries() models.ParticleSeries {
	s.mu.RLock()
	cached := s.lastSeries
	s.mu.RUnlock()
	if len(cached.Samples) > 0 {
		return cached
	}

	end := time.Now().UTC().Truncate(time.Minute)
	start := end.Add(-24 * time.Hour)
	gen := s.Mocks
	if gen == nil {
		gen = mocks.NewGenerator(time.Now().Unix())
	}
	return gen.Dataset(start, end, s.Config.NominalCadence).Particles
}
