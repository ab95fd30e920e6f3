package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create activity_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS activity_events (
					id TEXT PRIMARY KEY,
					action_type TEXT NOT NULL,
					resource_type TEXT NOT NULL,
					resource_id TEXT,
					resource_slug TEXT,
					resource_title TEXT,
					actor_id TEXT NOT NULL,
					actor_username TEXT,
					actor_role TEXT,
					details TEXT,
					timestamp DATETIME NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_activity_events_timestamp ON activity_events(timestamp);
				CREATE INDEX IF NOT EXISTS idx_activity_events_action_type ON activity_events(action_type);
				CREATE INDEX IF NOT EXISTS idx_activity_events_resource_type ON activity_events(resource_type);
				CREATE INDEX IF NOT EXISTS idx_activity_events_actor_id ON activity_events(actor_id);
			`,
		},
		{
			Version:     "002",
			Description: "Create notification_settings table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notification_settings (
					id TEXT PRIMARY KEY,
					data TEXT NOT NULL, -- JSON aggregate
					version INTEGER NOT NULL DEFAULT 1,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}
}

// GetPostgreSQLMigrations returns PostgreSQL migration scripts
func GetPostgreSQLMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create activity_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS activity_events (
					id TEXT PRIMARY KEY,
					action_type TEXT NOT NULL,
					resource_type TEXT NOT NULL,
					resource_id TEXT,
					resource_slug TEXT,
					resource_title TEXT,
					actor_id TEXT NOT NULL,
					actor_username TEXT,
					actor_role TEXT,
					details TEXT,
					timestamp TIMESTAMPTZ NOT NULL,
					created_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_activity_events_timestamp ON activity_events(timestamp);
				CREATE INDEX IF NOT EXISTS idx_activity_events_action_type ON activity_events(action_type);
				CREATE INDEX IF NOT EXISTS idx_activity_events_resource_type ON activity_events(resource_type);
				CREATE INDEX IF NOT EXISTS idx_activity_events_actor_id ON activity_events(actor_id);
			`,
		},
		{
			Version:     "002",
			Description: "Create notification_settings table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notification_settings (
					id TEXT PRIMARY KEY,
					data JSONB NOT NULL,
					version BIGINT NOT NULL DEFAULT 1,
					updated_at TIMESTAMPTZ DEFAULT NOW()
				);
			`,
		},
	}
}
