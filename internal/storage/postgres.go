package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/medialib/activity-notifier/internal/models"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgreSQLMigrations(),
	}
}

// Connect establishes database connection
func (s *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgreSQLStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgreSQLStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
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
func (s *PostgreSQLStorage) SaveEvent(ctx context.Context, event *models.ActivityEvent) error {
	query := `
		INSERT INTO activity_events
		(id, action_type, resource_type, resource_id, resource_slug, resource_title,
		 actor_id, actor_username, actor_role, details, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
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
func (s *PostgreSQLStorage) SaveEvents(ctx context.Context, events []*models.ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO activity_events
		(id, action_type, resource_type, resource_id, resource_slug, resource_title,
		 actor_id, actor_username, actor_role, details, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
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

	return nil
}

// GetEvent retrieves a single activity event by ID
func (s *PostgreSQLStorage) GetEvent(ctx context.Context, id string) (*models.ActivityEvent, error) {
	query := `
		SELECT id, action_type, resource_type, resource_id, resource_slug, resource_title,
		       actor_id, actor_username, actor_role, details, timestamp
		FROM activity_events WHERE id = $1
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
func (s *PostgreSQLStorage) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.ActivityEvent, error) {
	query := `
		SELECT id, action_type, resource_type, resource_id, resource_slug, resource_title,
		       actor_id, actor_username, actor_role, details, timestamp
		FROM activity_events WHERE 1=1
	`

	where, args := buildEventFilterNumbered(filter, 1)
	query += where
	query += " ORDER BY timestamp ASC"

	argIndex := len(args) + 1
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
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
func (s *PostgreSQLStorage) GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM activity_events WHERE 1=1"
	where, args := buildEventFilterNumbered(filter, 1)
	query += where

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count events", err.Error())
	}

	return count, nil
}

// GetSettings loads the global settings aggregate, creating it with the
// default rule on first access
func (s *PostgreSQLStorage) GetSettings(ctx context.Context) (*models.NotificationSettings, error) {
	settings, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		return settings, nil
	}

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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_settings (id, data, version, updated_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (id) DO NOTHING
	`, SettingsID, string(data), settings.UpdatedAt)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to create default settings", err.Error())
	}

	s.logger.Info("Notification settings created with default rule")
	return s.loadSettings(ctx)
}

func (s *PostgreSQLStorage) loadSettings(ctx context.Context) (*models.NotificationSettings, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT data, version FROM notification_settings WHERE id = $1", SettingsID)

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
func (s *PostgreSQLStorage) SaveSettings(ctx context.Context, settings *models.NotificationSettings) error {
	settings.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(settings)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal settings", err.Error())
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_settings
		SET data = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
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
func (s *PostgreSQLStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
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
func (s *PostgreSQLStorage) Cleanup(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM activity_events WHERE timestamp < $1", cutoff)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to cleanup events", err.Error())
	}

	deleted, _ := result.RowsAffected()
	s.logger.WithField("deleted", deleted).Info("Storage cleanup completed")

	return nil
}

func buildEventFilterNumbered(filter models.EventFilter, start int) (string, []interface{}) {
	var where string
	var args []interface{}
	argIndex := start

	if filter.ActionType != nil {
		where += fmt.Sprintf(" AND action_type = $%d", argIndex)
		args = append(args, *filter.ActionType)
		argIndex++
	}
	if filter.ResourceType != nil {
		where += fmt.Sprintf(" AND resource_type = $%d", argIndex)
		args = append(args, *filter.ResourceType)
		argIndex++
	}
	if filter.ActorID != nil {
		where += fmt.Sprintf(" AND actor_id = $%d", argIndex)
		args = append(args, *filter.ActorID)
		argIndex++
	}
	if filter.FromTime != nil {
		where += fmt.Sprintf(" AND timestamp >= $%d", argIndex)
		args = append(args, *filter.FromTime)
		argIndex++
	}
	if filter.ToTime != nil {
		where += fmt.Sprintf(" AND timestamp <= $%d", argIndex)
		args = append(args, *filter.ToTime)
		argIndex++
	}

	return where, args
}
