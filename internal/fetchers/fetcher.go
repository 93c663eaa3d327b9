package fetchers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"

	"cmewatch/internal/config"
	"cmewatch/internal/logger"
	"cmewatch/internal/models"
)

// DataFetcher handles fetching data from all external sources
type DataFetcher struct {
	client *resty.Client
	parser *gofeed.Parser
	cfg    *config.Config
	log    *logger.Logger
}

// NewDataFetcher creates a new data fetcher instance. Retries use
// exponential backoff starting at the configured base wait; a source
// counts as unavailable only after all attempts are exhausted.
func NewDataFetcher(cfg *config.Config) *DataFetcher {
	client := resty.New()
	client.SetTimeout(cfg.SourceTimeout)
	client.SetRetryCount(cfg.RetryAttempts - 1)
	client.SetRetryWaitTime(cfg.RetryBaseWait)
	client.SetRetryMaxWaitTime(cfg.RetryBaseWait * 16)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= 500
	})

	return &DataFetcher{
		client: client,
		parser: gofeed.NewParser(),
		cfg:    cfg,
		log:    logger.GetGlobalLogger().WithComponent("fetchers"),
	}
}

// FetchResult bundles the raw material of one analysis run
type FetchResult struct {
	Particles models.ParticleSeries
	Catalog   []models.CACTUSEvent
	Magnetic  []models.MagneticFieldSample
}

// FetchAll fetches from all sources concurrently. The particle stream is
// required: its failure fails the whole fetch. Catalog and magnetic data
// only corroborate detections, so their failures degrade the result and
// are logged rather than propagated.
func (f *DataFetcher) FetchAll(ctx context.Context, start, end time.Time) (*FetchResult, error) {
	f.log.Info("starting data fetch from all sources", map[string]interface{}{
		"start": start.Format(time.RFC3339),
		"end":   end.Format(time.RFC3339),
	})

	particleChan := make(chan models.ParticleSeries, 1)
	catalogChan := make(chan []models.CACTUSEvent, 1)
	magneticChan := make(chan []models.MagneticFieldSample, 1)
	errChan := make(chan error, 3)

	go func() {
		data, err := f.FetchParticles(ctx, start, end)
		if err != nil {
			errChan <- err
			return
		}
		particleChan <- data
	}()

	go func() {
		data, err := f.FetchCatalog(ctx, start, end)
		if err != nil {
			errChan <- err
			return
		}
		catalogChan <- data
	}()

	go func() {
		data, err := f.FetchMagnetic(ctx, start, end)
		if err != nil {
			errChan <- err
			return
		}
		magneticChan <- data
	}()

	result := &FetchResult{}
	var particleErr error

	completed := 0
	for completed < 3 {
		select {
		case data := <-particleChan:
			result.Particles = data
			completed++
		case data := <-catalogChan:
			result.Catalog = data
			completed++
		case data := <-magneticChan:
			result.Magnetic = data
			completed++
		case err := <-errChan:
			var srcErr *models.SourceError
			if errors.As(err, &srcErr) && srcErr.Source == models.SourceISSDC {
				particleErr = err
			} else {
				f.log.Error("corroboration source fetch failed", err)
			}
			completed++
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: fetch abandoned: %v", models.ErrCancelled, ctx.Err())
		}
	}

	// a source may report the cancellation through errChan before the
	// ctx.Done case fires; classify that as a cancelled run, not a failure
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: fetch abandoned: %v", models.ErrCancelled, ctx.Err())
	}
	if particleErr != nil {
		return nil, particleErr
	}

	f.log.Info("data fetch complete", map[string]interface{}{
		"particles": len(result.Particles.Samples),
		"catalog":   len(result.Catalog),
		"magnetic":  len(result.Magnetic),
	})
	return result, nil
}

// SyncSource fetches fresh data for one source and reports the outcome
func (f *DataFetcher) SyncSource(ctx context.Context, source models.DataSource, start, end time.Time) models.SyncResult {
	result := models.SyncResult{Source: source}

	var count int
	var err error
	switch source {
	case models.SourceISSDC:
		var series models.ParticleSeries
		series, err = f.FetchParticles(ctx, start, end)
		count = len(series.Samples)
	case models.SourceCACTUS:
		var events []models.CACTUSEvent
		events, err = f.FetchCatalog(ctx, start, end)
		count = len(events)
	case models.SourceSPDF:
		var samples []models.MagneticFieldSample
		samples, err = f.FetchMagnetic(ctx, start, end)
		count = len(samples)
	default:
		err = fmt.Errorf("unknown data source: %s", source)
	}

	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.RecordsProcessed = count
	return result
}

// SyncAll syncs every source, collecting per-source outcomes. One source's
// failure never aborts the others.
func (f *DataFetcher) SyncAll(ctx context.Context, start, end time.Time) models.SyncAllResult {
	sources := []models.DataSource{models.SourceISSDC, models.SourceCACTUS, models.SourceSPDF}

	resultChan := make(chan models.SyncResult, len(sources))
	for _, source := range sources {
		go func(src models.DataSource) {
			resultChan <- f.SyncSource(ctx, src, start, end)
		}(source)
	}

	all := models.SyncAllResult{TotalSources: len(sources)}
	collected := make(map[models.DataSource]models.SyncResult, len(sources))
	for range sources {
		r := <-resultChan
		collected[r.Source] = r
		if r.Success {
			all.SuccessfulSources++
			all.TotalRecords += r.RecordsProcessed
		}
	}

	// report in a stable source order
	for _, source := range sources {
		all.Results = append(all.Results, collected[source])
	}

	f.log.Info("sync-all complete", map[string]interface{}{
		"successful": all.SuccessfulSources,
		"total":      all.TotalSources,
		"records":    all.TotalRecords,
	})
	return all
}

// unavailable wraps a transport-level failure into the source error taxonomy
func unavailable(source models.DataSource, err error) error {
	return &models.SourceError{
		Source: source,
		Err:    fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err),
	}
}

// corrupt wraps a parse failure into the source error taxonomy
func corrupt(source models.DataSource, err error) error {
	return &models.SourceError{
		Source: source,
		Err:    fmt.Errorf("%w: %v", models.ErrSourceDataCorrupt, err),
	}
}
