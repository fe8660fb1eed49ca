package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all database migrations for a dialect
func GetMigrations(dialect string) []Migration {
	if dialect == dialectPostgres {
		return getPostgresMigrations()
	}
	return getSQLiteMigrations()
}

func getPostgresMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `CREATE TABLE IF NOT EXISTS users (
				id VARCHAR(36) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				username VARCHAR(50) UNIQUE NOT NULL,
				email VARCHAR(255) UNIQUE NOT NULL,
				phone VARCHAR(32) NOT NULL DEFAULT '',
				password_hash VARCHAR(255) NOT NULL,
				role VARCHAR(16) NOT NULL DEFAULT 'USER',
				level INTEGER NOT NULL DEFAULT 1 CHECK (level BETWEEN 1 AND 3),
				approved BOOLEAN NOT NULL DEFAULT FALSE,
				email_verified BOOLEAN NOT NULL DEFAULT FALSE,
				reset_code_hash VARCHAR(64) NOT NULL DEFAULT '',
				reset_code_expiry TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`,
		},
		{
			Version:     2,
			Description: "Create attendance table",
			SQL: `CREATE TABLE IF NOT EXISTS attendance (
				id VARCHAR(36) PRIMARY KEY,
				username VARCHAR(50) NOT NULL,
				attendance_date VARCHAR(10) NOT NULL,
				attended BOOLEAN NOT NULL,
				level INTEGER NOT NULL,
				device_info VARCHAR(512) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				CONSTRAINT uq_attendance_user_day UNIQUE (username, attendance_date)
			)`,
		},
		{
			Version:     3,
			Description: "Create refresh tokens table",
			SQL: `CREATE TABLE IF NOT EXISTS refresh_tokens (
				id VARCHAR(36) PRIMARY KEY,
				token_hash VARCHAR(64) UNIQUE NOT NULL,
				username VARCHAR(50) NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				device_info VARCHAR(512) NOT NULL DEFAULT '',
				ip_address VARCHAR(64) NOT NULL DEFAULT ''
			)`,
		},
		{
			Version:     4,
			Description: "Create user sessions table",
			SQL: `CREATE TABLE IF NOT EXISTS user_sessions (
				id VARCHAR(36) PRIMARY KEY,
				username VARCHAR(50) NOT NULL,
				token_hash VARCHAR(64) NOT NULL,
				device_info VARCHAR(512) NOT NULL DEFAULT '',
				ip_address VARCHAR(64) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				last_activity TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				active BOOLEAN NOT NULL DEFAULT TRUE
			)`,
		},
		{
			Version:     5,
			Description: "Create level cursors and daily progress tables",
			SQL: `CREATE TABLE IF NOT EXISTS level_cursors (
				username VARCHAR(50) PRIMARY KEY,
				level INTEGER NOT NULL,
				current_index INTEGER NOT NULL DEFAULT 0,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE TABLE IF NOT EXISTS daily_progress (
				id VARCHAR(36) PRIMARY KEY,
				username VARCHAR(50) NOT NULL,
				progress_date VARCHAR(10) NOT NULL,
				video_completed BOOLEAN NOT NULL DEFAULT FALSE,
				routine_completed BOOLEAN NOT NULL DEFAULT FALSE,
				habits_completed BOOLEAN NOT NULL DEFAULT FALSE,
				qa_completed BOOLEAN NOT NULL DEFAULT FALSE,
				all_tasks_completed BOOLEAN NOT NULL DEFAULT FALSE,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				CONSTRAINT uq_progress_user_day UNIQUE (username, progress_date)
			)`,
		},
		{
			Version:     6,
			Description: "Create notifications table",
			SQL: `CREATE TABLE IF NOT EXISTS notifications (
				id VARCHAR(36) PRIMARY KEY,
				username VARCHAR(50) NOT NULL,
				title VARCHAR(255) NOT NULL,
				message TEXT NOT NULL,
				kind VARCHAR(32) NOT NULL,
				is_read BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`,
		},
		{
			Version:     7,
			Description: "Create indexes",
			SQL: `CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
				CREATE INDEX IF NOT EXISTS idx_users_approved ON users(approved);
				CREATE INDEX IF NOT EXISTS idx_attendance_username_level ON attendance(username, level, attended);
				CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(attendance_date);
				CREATE INDEX IF NOT EXISTS idx_refresh_tokens_username ON refresh_tokens(username);
				CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires_at ON refresh_tokens(expires_at);
				CREATE INDEX IF NOT EXISTS idx_user_sessions_username ON user_sessions(username, active);
				CREATE INDEX IF NOT EXISTS idx_user_sessions_token_hash ON user_sessions(token_hash);
				CREATE INDEX IF NOT EXISTS idx_notifications_username ON notifications(username, created_at)`,
		},
		{
			Version:     8,
			Description: "Add reset attempt counter to users",
			SQL:         `ALTER TABLE users ADD COLUMN IF NOT EXISTS reset_attempts INTEGER NOT NULL DEFAULT 0`,
		},
	}
}

func getSQLiteMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				username TEXT UNIQUE NOT NULL,
				email TEXT UNIQUE NOT NULL,
				phone TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'USER',
				level INTEGER NOT NULL DEFAULT 1 CHECK (level BETWEEN 1 AND 3),
				approved BOOLEAN NOT NULL DEFAULT 0,
				email_verified BOOLEAN NOT NULL DEFAULT 0,
				reset_code_hash TEXT NOT NULL DEFAULT '',
				reset_code_expiry TIMESTAMP,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
		},
		{
			Version:     2,
			Description: "Create attendance table",
			SQL: `CREATE TABLE IF NOT EXISTS attendance (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL,
				attendance_date TEXT NOT NULL,
				attended BOOLEAN NOT NULL,
				level INTEGER NOT NULL,
				device_info TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				UNIQUE (username, attendance_date)
			)`,
		},
		{
			Version:     3,
			Description: "Create refresh tokens table",
			SQL: `CREATE TABLE IF NOT EXISTS refresh_tokens (
				id TEXT PRIMARY KEY,
				token_hash TEXT UNIQUE NOT NULL,
				username TEXT NOT NULL,
				expires_at TIMESTAMP NOT NULL,
				created_at TIMESTAMP NOT NULL,
				device_info TEXT NOT NULL DEFAULT '',
				ip_address TEXT NOT NULL DEFAULT ''
			)`,
		},
		{
			Version:     4,
			Description: "Create user sessions table",
			SQL: `CREATE TABLE IF NOT EXISTS user_sessions (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL,
				token_hash TEXT NOT NULL,
				device_info TEXT NOT NULL DEFAULT '',
				ip_address TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				last_activity TIMESTAMP NOT NULL,
				active BOOLEAN NOT NULL DEFAULT 1
			)`,
		},
		{
			Version:     5,
			Description: "Create level cursors and daily progress tables",
			SQL: `CREATE TABLE IF NOT EXISTS level_cursors (
				username TEXT PRIMARY KEY,
				level INTEGER NOT NULL,
				current_index INTEGER NOT NULL DEFAULT 0,
				updated_at TIMESTAMP NOT NULL
			);
			CREATE TABLE IF NOT EXISTS daily_progress (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL,
				progress_date TEXT NOT NULL,
				video_completed BOOLEAN NOT NULL DEFAULT 0,
				routine_completed BOOLEAN NOT NULL DEFAULT 0,
				habits_completed BOOLEAN NOT NULL DEFAULT 0,
				qa_completed BOOLEAN NOT NULL DEFAULT 0,
				all_tasks_completed BOOLEAN NOT NULL DEFAULT 0,
				updated_at TIMESTAMP NOT NULL,
				UNIQUE (username, progress_date)
			)`,
		},
		{
			Version:     6,
			Description: "Create notifications table",
			SQL: `CREATE TABLE IF NOT EXISTS notifications (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL,
				title TEXT NOT NULL,
				message TEXT NOT NULL,
				kind TEXT NOT NULL,
				is_read BOOLEAN NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL
			)`,
		},
		{
			Version:     7,
			Description: "Create indexes",
			SQL: `CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
				CREATE INDEX IF NOT EXISTS idx_users_approved ON users(approved);
				CREATE INDEX IF NOT EXISTS idx_attendance_username_level ON attendance(username, level, attended);
				CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(attendance_date);
				CREATE INDEX IF NOT EXISTS idx_refresh_tokens_username ON refresh_tokens(username);
				CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires_at ON refresh_tokens(expires_at);
				CREATE INDEX IF NOT EXISTS idx_user_sessions_username ON user_sessions(username, active);
				CREATE INDEX IF NOT EXISTS idx_user_sessions_token_hash ON user_sessions(token_hash);
				CREATE INDEX IF NOT EXISTS idx_notifications_username ON notifications(username, created_at)`,
		},
		{
			Version:     8,
			Description: "Add reset attempt counter to users",
			SQL:         `ALTER TABLE users ADD COLUMN reset_attempts INTEGER NOT NULL DEFAULT 0`,
		},
	}
}

func (db *DB) createMigrationsTable(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	if db.dialect == dialectPostgres {
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`
	}

	_, err := db.conn.ExecContext(ctx, query)
	return err
}

// AppliedMigrations returns the set of applied migration versions
func (db *DB) AppliedMigrations(ctx context.Context) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := db.conn.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return applied, err
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return applied, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// RunMigrations applies every pending migration, each in its own transaction
func (db *DB) RunMigrations(ctx context.Context) error {
	const op = "database.RunMigrations"
	log := db.log.With(slog.String("op", op))

	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("%s: create migrations table: %w", op, err)
	}

	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("%s: read applied migrations: %w", op, err)
	}

	for _, migration := range GetMigrations(db.dialect) {
		if applied[migration.Version] {
			continue
		}

		log.Info("applying migration",
			slog.Int("version", migration.Version),
			slog.String("description", migration.Description),
		)

		err := db.withTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range strings.Split(migration.SQL, ";") {
				stmt = strings.TrimSpace(stmt)
				if stmt == "" {
					continue
				}
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, db.rebind("INSERT INTO schema_migrations (version) VALUES (?)"), migration.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s: apply migration %d: %w", op, migration.Version, err)
		}
	}

	return nil
}
