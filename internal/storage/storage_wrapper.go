package storage

import (
	"context"
	"errors"
	"time"

	"github.com/medialib/activity-notifier/internal/metrics"
	"github.com/medialib/activity-notifier/internal/models"
)

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        storage,
		metricsManager: metricsManager,
	}
}

func (s *StorageWithMetrics) record(operation, table string, start time.Time, err error) {
	if s.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(
		operation, table, status, time.Since(start))
}

// SaveEvent saves an activity event and records metrics
func (s *StorageWithMetrics) SaveEvent(ctx context.Context, event *models.ActivityEvent) error {
	start := time.Now()
	err := s.Storage.SaveEvent(ctx, event)
	s.record("insert", "activity_events", start, err)
	return err
}

// SaveEvents saves an event batch and records metrics
func (s *StorageWithMetrics) SaveEvents(ctx context.Context, events []*models.ActivityEvent) error {
	start := time.Now()
	err := s.Storage.SaveEvents(ctx, events)
	s.record("insert_batch", "activity_events", start, err)
	return err
}

// GetEvents queries events and records metrics
func (s *StorageWithMetrics) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.ActivityEvent, error) {
	start := time.Now()
	events, err := s.Storage.GetEvents(ctx, filter)
	s.record("select", "activity_events", start, err)
	return events, err
}

// GetSettings loads the settings aggregate and records metrics
func (s *StorageWithMetrics) GetSettings(ctx context.Context) (*models.NotificationSettings, error) {
	start := time.Now()
	settings, err := s.Storage.GetSettings(ctx)
	s.record("select", "notification_settings", start, err)
	return settings, err
}

// SaveSettings persists the settings aggregate and records metrics,
// counting optimistic-concurrency conflicts separately
func (s *StorageWithMetrics) SaveSettings(ctx context.Context, settings *models.NotificationSettings) error {
	start := time.Now()
	err := s.Storage.SaveSettings(ctx, settings)
	s.record("update", "notification_settings", start, err)

	if errors.Is(err, ErrVersionConflict) && s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordVersionConflict()
	}

	return err
}
