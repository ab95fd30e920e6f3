package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/medialib/activity-notifier/internal/models"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// SaveEvent saves a single activity event
func (s *SQLiteStorage) SaveEvent(ctx context.Context, event *models.ActivityEvent) error {
	query := `
		INSERT OR REPLACE INTO activity_events
		(id, action_type, resource_type, resource_id, resource_slug, resource_title,
		 actor_id, actor_username, actor_role, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, string(event.ActionType), string(event.ResourceType),
		event.ResourceID, event.ResourceSlug, event.ResourceTitle,
		event.ActorID, event.ActorUsername, event.ActorRole,
		event.Details, event.Timestamp)

	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save activity event", err.Error())
	}

	return nil
}

// SaveEvents saves multiple activity events in a transaction
func (s *SQLiteStorage) SaveEvents(ctx context.Context, events []*models.ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO activity_events
		(id, action_type, resource_type, resource_id, resource_slug, resource_title,
		 actor_id, actor_username, actor_role, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to prepare statement", err.Error())
	}
	defer stmt.Close()

	for _, event := range events {
		_, err = stmt.ExecContext(ctx,
			event.ID, string(event.ActionType), string(event.ResourceType),
			event.ResourceID, event.ResourceSlug, event.ResourceTitle,
			event.ActorID, event.ActorUsername, event.ActorRole,
			event.Details, event.Timestamp)

		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save event in batch", err.Error())
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit transaction", err.Error())
	}

	s.logger.WithField("count", len(events)).Debug("Saved events batch")
	return nil
}

// GetEvent retrieves a single activity event by ID
func (s *SQLiteStorage) GetEvent(ctx context.Context, id string) (*models.ActivityEvent, error) {
	query := `
		SELECT id, action_type, resource_type, resource_id, resource_slug, resource_title,
		       actor_id, actor_username, actor_role, details, timestamp
		FROM activity_events WHERE id = ?
	`

	row := s.db.QueryRowContext(ctx, query, id)

	event, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get event", err.Error())
	}

	return event, nil
}

// GetEvents retrieves activity events based on filter
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.ActivityEvent, error) {
	query := `
		SELECT id, action_type, resource_type, resource_id, resource_slug, resource_title,
		       actor_id, actor_username, actor_role, details, timestamp
		FROM activity_events WHERE 1=1
	`

	where, args := buildEventFilter(filter)
	query += where
	query += " ORDER BY timestamp ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query events", err.Error())
	}
	defer rows.Close()

	var events []*models.ActivityEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan event", err.Error())
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// GetEventCount returns the number of events matching the filter
func (s *SQLiteStorage) GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM activity_events WHERE 1=1"
	where, args := buildEventFilter(filter)
	query += where

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count events", err.Error())
	}

	return count, nil
}

// GetSettings loads the global settings aggregate, creating it with the
// default rule on first access
func (s *SQLiteStorage) GetSettings(ctx context.Context) (*models.NotificationSettings, error) {
	settings, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		return settings, nil
	}

	// Lazily create the default aggregate
	settings = models.DefaultSettings()
	settings.ID = SettingsID
	for i := range settings.Rules {
		if settings.Rules[i].ID == "" {
			settings.Rules[i].ID = utils.GenerateID()
		}
	}
	settings.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(settings)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal settings", err.Error())
	}

	// INSERT OR IGNORE so a concurrent first access cannot duplicate the row
	_, err = s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO notification_settings (id, data, version, updated_at) VALUES (?, ?, 1, ?)",
		SettingsID, string(data), settings.UpdatedAt)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to create default settings", err.Error())
	}

	s.logger.Info("Notification settings created with default rule")
	return s.loadSettings(ctx)
}

func (s *SQLiteStorage) loadSettings(ctx context.Context) (*models.NotificationSettings, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT data, version FROM notification_settings WHERE id = ?", SettingsID)

	var data string
	var version int64
	if err := row.Scan(&data, &version); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to load settings", err.Error())
	}

	var settings models.NotificationSettings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal settings", err.Error())
	}

	settings.Version = version
	return &settings, nil
}

// SaveSettings persists the aggregate with an optimistic version check
func (s *SQLiteStorage) SaveSettings(ctx context.Context, settings *models.NotificationSettings) error {
	settings.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(settings)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal settings", err.Error())
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_settings
		SET data = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, string(data), settings.UpdatedAt, SettingsID, settings.Version)

	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save settings", err.Error())
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read affected rows", err.Error())
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	settings.Version++
	return nil
}

// GetStorageStats returns storage statistics
func (s *SQLiteStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_events").Scan(&stats.TotalEvents); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count events", err.Error())
	}

	var oldest, latest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT MIN(timestamp), MAX(timestamp) FROM activity_events").Scan(&oldest, &latest)
	if err == nil {
		if oldest.Valid {
			stats.OldestEvent = &oldest.Time
		}
		if latest.Valid {
			stats.LatestEvent = &latest.Time
		}
	}

	settings, err := s.loadSettings(ctx)
	if err == nil && settings != nil {
		stats.SettingsVersion = settings.Version
		stats.HistoryEntries = int64(len(settings.History))
	}

	return stats, nil
}

// Cleanup deletes activity events older than the retention period
func (s *SQLiteStorage) Cleanup(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM activity_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to cleanup events", err.Error())
	}

	deleted, _ := result.RowsAffected()
	s.logger.WithFields(logrus.Fields{
		"deleted":        deleted,
		"retention_days": retentionDays,
	}).Info("Storage cleanup completed")

	return nil
}

// scanner abstracts sql.Row and sql.Rows for event scanning
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*models.ActivityEvent, error) {
	var event models.ActivityEvent
	var actionType, resourceType string
	var resourceID, resourceSlug, resourceTitle sql.NullString
	var actorUsername, actorRole, details sql.NullString

	err := row.Scan(&event.ID, &actionType, &resourceType,
		&resourceID, &resourceSlug, &resourceTitle,
		&event.ActorID, &actorUsername, &actorRole, &details, &event.Timestamp)
	if err != nil {
		return nil, err
	}

	event.ActionType = models.ActionType(actionType)
	event.ResourceType = models.ResourceType(resourceType)
	event.ResourceID = resourceID.String
	event.ResourceSlug = resourceSlug.String
	event.ResourceTitle = resourceTitle.String
	event.ActorUsername = actorUsername.String
	event.ActorRole = actorRole.String
	event.Details = details.String

	return &event, nil
}

func buildEventFilter(filter models.EventFilter) (string, []interface{}) {
	var where strings.Builder
	var args []interface{}

	if filter.ActionType != nil {
		where.WriteString(" AND action_type = ?")
		args = append(args, *filter.ActionType)
	}
	if filter.ResourceType != nil {
		where.WriteString(" AND resource_type = ?")
		args = append(args, *filter.ResourceType)
	}
	if filter.ActorID != nil {
		where.WriteString(" AND actor_id = ?")
		args = append(args, *filter.ActorID)
	}
	if filter.FromTime != nil {
		where.WriteString(" AND timestamp >= ?")
		args = append(args, *filter.FromTime)
	}
	if filter.ToTime != nil {
		where.WriteString(" AND timestamp <= ?")
		args = append(args, *filter.ToTime)
	}

	return where.String(), args
}
