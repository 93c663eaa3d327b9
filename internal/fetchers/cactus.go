package fetchers

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cmewatch/internal/models"
)

// cactusTimeLayout matches the catalog's "2024/12/25 14:30" timestamps
const cactusTimeLayout = "2006/01/02 15:04"

// FetchCatalog fetches CACTUS events for the given range, merging the text
// catalog with the RSS alert feed. The catalog is authoritative; the feed
// only adds events the catalog does not list yet. A feed failure degrades
// the result and is logged, a catalog failure propagates.
func (f *DataFetcher) FetchCatalog(ctx context.Context, start, end time.Time) ([]models.CACTUSEvent, error) {
	events, err := f.fetchCatalogText(ctx)
	if err != nil {
		return nil, err
	}

	if f.cfg.CACTUSFeedURL != "" {
		alerts, feedErr := f.fetchAlertFeed(ctx)
		if feedErr != nil {
			f.log.Warn("CACTUS alert feed unavailable, using catalog only", map[string]interface{}{
				"error": feedErr.Error(),
			})
		} else {
			events = MergeCatalog(events, alerts)
		}
	}

	var inRange []models.CACTUSEvent
	for _, e := range events {
		if !e.Datetime.Before(start) && !e.Datetime.After(end) {
			inRange = append(inRange, e)
		}
	}
	return inRange, nil
}

// fetchCatalogText fetches and parses the pipe-separated catalog. Comment
// lines and the header are skipped; a malformed row is counted and skipped
// since rows are independent, but a payload with rows and no parseable
// ones is corrupt.
func (f *DataFetcher) fetchCatalogText(ctx context.Context) ([]models.CACTUSEvent, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		Get(f.cfg.CACTUSCatalogURL)
	if err != nil {
		return nil, unavailable(models.SourceCACTUS, err)
	}
	if resp.StatusCode() != 200 {
		return nil, unavailable(models.SourceCACTUS, fmt.Errorf("HTTP %d", resp.StatusCode()))
	}

	events, malformed, err := parseCatalog(resp.Body())
	if err != nil {
		return nil, corrupt(models.SourceCACTUS, err)
	}
	if malformed > 0 {
		f.log.Warn("skipped malformed catalog rows", map[string]interface{}{
			"skipped": malformed,
			"parsed":  len(events),
		})
	}
	return events, nil
}

// parseCatalog decodes catalog rows of the form
//
//	0001 | 2024/12/25 14:30 | 271 | 360 | 1200 | N15W45
//
// with columns: id, onset time, principal angle, angular width, speed,
// source location (optional)
func parseCatalog(body []byte) ([]models.CACTUSEvent, int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))

	var events []models.CACTUSEvent
	rows, malformed := 0, 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "CME") {
			continue
		}
		rows++

		parts := strings.Split(line, "|")
		if len(parts) < 5 {
			malformed++
			continue
		}

		datetime, err := time.Parse(cactusTimeLayout, strings.TrimSpace(parts[1]))
		if err != nil {
			malformed++
			continue
		}
		width, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil {
			malformed++
			continue
		}
		speed, err := strconv.ParseFloat(strings.TrimSpace(parts[4]), 64)
		if err != nil {
			malformed++
			continue
		}

		event := models.CACTUSEvent{
			Datetime:     datetime.UTC(),
			Speed:        speed,
			AngularWidth: width,
		}
		if len(parts) > 5 {
			event.SourceLocation = strings.TrimSpace(parts[5])
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("catalog read failed: %v", err)
	}
	if rows > 0 && len(events) == 0 {
		return nil, 0, fmt.Errorf("no parseable rows in %d-row catalog", rows)
	}
	return events, malformed, nil
}

var (
	alertSpeedRe = regexp.MustCompile(`v\s*=\s*([\d.]+)\s*km/s`)
	alertWidthRe = regexp.MustCompile(`da\s*=\s*([\d.]+)\s*deg`)
	alertTimeRe  = regexp.MustCompile(`\d{4}/\d{2}/\d{2} \d{2}:\d{2}`)
)

// fetchAlertFeed parses the CACTUS RSS alert feed. Alert items carry the
// event parameters in the title, e.g.
//
//	CME alert: 2024/12/25 14:30 | v=1200 km/s | da=360 deg
func (f *DataFetcher) fetchAlertFeed(ctx context.Context) ([]models.CACTUSEvent, error) {
	feed, err := f.parser.ParseURLWithContext(f.cfg.CACTUSFeedURL, ctx)
	if err != nil {
		return nil, unavailable(models.SourceCACTUS, err)
	}

	var events []models.CACTUSEvent
	for _, item := range feed.Items {
		text := item.Title + " " + item.Description

		event := models.CACTUSEvent{}
		if m := alertTimeRe.FindString(text); m != "" {
			if dt, err := time.Parse(cactusTimeLayout, m); err == nil {
				event.Datetime = dt.UTC()
			}
		}
		if event.Datetime.IsZero() && item.PublishedParsed != nil {
			event.Datetime = item.PublishedParsed.UTC()
		}
		if event.Datetime.IsZero() {
			continue
		}
		if m := alertSpeedRe.FindStringSubmatch(text); m != nil {
			event.Speed, _ = strconv.ParseFloat(m[1], 64)
		}
		if m := alertWidthRe.FindStringSubmatch(text); m != nil {
			event.AngularWidth, _ = strconv.ParseFloat(m[1], 64)
		}
		events = append(events, event)
	}
	return events, nil
}

// MergeCatalog merges alert events into catalog events, deduplicating on
// minute-truncated onset time. Catalog entries win.
func MergeCatalog(catalog, alerts []models.CACTUSEvent) []models.CACTUSEvent {
	seen := make(map[time.Time]bool, len(catalog))
	for _, e := range catalog {
		seen[e.Datetime.Truncate(time.Minute)] = true
	}

	merged := catalog
	for _, e := range alerts {
		if !seen[e.Datetime.Truncate(time.Minute)] {
			merged = append(merged, e)
			seen[e.Datetime.Truncate(time.Minute)] = true
		}
	}
	return merged
}
