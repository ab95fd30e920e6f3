package storage

import (
	"context"
	"errors"
	"time"

	"github.com/medialib/activity-notifier/internal/models"
)

// ErrVersionConflict is returned when a settings save loses an
// optimistic-concurrency race
var ErrVersionConflict = errors.New("settings version conflict")

// Storage defines the interface for activity event and settings persistence
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Activity event operations
	SaveEvent(ctx context.Context, event *models.ActivityEvent) error
	SaveEvents(ctx context.Context, events []*models.ActivityEvent) error
	GetEvent(ctx context.Context, id string) (*models.ActivityEvent, error)
	GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.ActivityEvent, error)
	GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error)

	// Settings aggregate operations
	GetSettings(ctx context.Context) (*models.NotificationSettings, error)
	SaveSettings(ctx context.Context, settings *models.NotificationSettings) error

	// Statistics and maintenance
	GetStorageStats(ctx context.Context) (*StorageStats, error)
	Cleanup(ctx context.Context, retentionDays int) error
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalEvents     int64      `json:"total_events"`
	OldestEvent     *time.Time `json:"oldest_event,omitempty"`
	LatestEvent     *time.Time `json:"latest_event,omitempty"`
	HistoryEntries  int64      `json:"history_entries"`
	SettingsVersion int64      `json:"settings_version"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}

// SettingsID is the fixed id of the single global settings aggregate row
const SettingsID = "global"
