package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"cmewatch/internal/logger"
	"cmewatch/internal/models"
)

const eventsPrefix = "events"

// EventStore persists detected CME events on top of a StorageClient.
// Storage is append-only: every analysis run writes a new record and
// nothing is ever rewritten, preserving the audit trail of what was
// detected under which configuration.
type EventStore struct {
	client StorageClient
	log    *logger.Logger
}

// NewEventStore creates an event store over the given storage client
func NewEventStore(client StorageClient) *EventStore {
	return &EventStore{
		client: client,
		log:    logger.GetGlobalLogger().WithComponent("events"),
	}
}

// eventRecord is the stored shape of one run's output
type eventRecord struct {
	StoredAt time.Time         `json:"stored_at"`
	Events   []models.CMEEvent `json:"events"`
}

// AppendRun stores the events of one analysis run as a new record keyed by
// the run timestamp. Returns the storage path written.
func (s *EventStore) AppendRun(ctx context.Context, runAt time.Time, events []models.CMEEvent) (string, error) {
	record := eventRecord{StoredAt: runAt.UTC(), Events: events}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal event record: %w", err)
	}

	path := fmt.Sprintf("%s/%04d/%02d/events-%s.json",
		eventsPrefix, runAt.Year(), runAt.Month(), runAt.UTC().Format("20060102T150405Z"))

	if err := s.client.StoreFile(ctx, path, data); err != nil {
		return "", fmt.Errorf("failed to store event record: %w", err)
	}

	s.log.Info("event record stored", map[string]interface{}{
		"path":   path,
		"events": len(events),
	})
	return path, nil
}

// LoadSince returns all stored events with datetime at or after the cutoff,
// sorted newest first
func (s *EventStore) LoadSince(ctx context.Context, cutoff time.Time) ([]models.CMEEvent, error) {
	paths, err := s.client.ListDir(ctx, eventsPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list event records: %w", err)
	}

	var events []models.CMEEvent
	for _, path := range paths {
		data, err := s.client.GetFile(ctx, path)
		if err != nil {
			s.log.Warn("skipping unreadable event record", map[string]interface{}{"path": path})
			continue
		}
		var record eventRecord
		if err := json.Unmarshal(data, &record); err != nil {
			s.log.Warn("skipping malformed event record", map[string]interface{}{"path": path})
			continue
		}
		for _, e := range record.Events {
			if !e.Datetime.Before(cutoff) {
				events = append(events, e)
			}
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Datetime.After(events[j].Datetime)
	})
	return events, nil
}

// Count returns the total number of stored events
func (s *EventStore) Count(ctx context.Context) (int, error) {
	events, err := s.LoadSince(ctx, time.Time{})
	if err != nil {
		return 0, err
	}
	return len(events), nil
}
