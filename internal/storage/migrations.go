package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	Up          func(*sql.Tx) error
	Down        func(*sql.Tx) error
}

// migrations is the ordered list of all database migrations
var migrations = []Migration{
	{
		Version:     1,
		Description: "Create schema_version table",
		Up:          migration001Up,
		Down:        migration001Down,
	},
	{
		Version:     2,
		Description: "Create window_events table",
		Up:          migration002Up,
		Down:        migration002Down,
	},
	{
		Version:     3,
		Description: "Create screen_captures and ocr_results tables",
		Up:          migration003Up,
		Down:        migration003Down,
	},
	{
		Version:     4,
		Description: "Create ai_analyses table",
		Up:          migration004Up,
		Down:        migration004Down,
	},
	{
		Version:     5,
		Description: "Create daily_activity view",
		Up:          migration005Up,
		Down:        migration005Down,
	},
}

// LatestVersion is the schema version after all migrations
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

// RunMigrations runs all pending database migrations
func (db *DB) RunMigrations() error {
	currentVersion, err := db.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		db.logger.InfoWithContext("Running migration", map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		})

		err := db.ExecTx(context.Background(), func(tx *sql.Tx) error {
			if err := migration.Up(tx); err != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, err)
			}

			_, err := tx.Exec(`
				INSERT INTO schema_version (version, description, applied_at)
				VALUES (?, ?, ?)
			`, migration.Version, migration.Description, time.Now())

			return err
		})

		if err != nil {
			return err
		}
	}

	return nil
}

// getCurrentVersion returns the current schema version
func (db *DB) getCurrentVersion() (int, error) {
	var tableExists bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)

	if err != nil {
		return 0, err
	}

	if !tableExists {
		return 0, nil
	}

	var version int
	err = db.conn.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_version
	`).Scan(&version)

	if err != nil {
		return 0, err
	}

	return version, nil
}

// Migration 001: Schema version tracking table
func migration001Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	return err
}

func migration001Down(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS schema_version`)
	return err
}

// Migration 002: Window events
func migration002Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE window_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			handle INTEGER NOT NULL,
			title TEXT NOT NULL,
			process_name TEXT,
			process_id INTEGER,
			x INTEGER, y INTEGER, width INTEGER, height INTEGER,
			occurred_at DATETIME NOT NULL
		);

		CREATE INDEX idx_window_events_occurred ON window_events(occurred_at);
	`)
	return err
}

func migration002Down(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS window_events`)
	return err
}

// Migration 003: Captures and OCR results
func migration003Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE screen_captures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			window_title TEXT,
			process_name TEXT,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			pixel_format TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			fingerprint TEXT NOT NULL,
			thumbnail BLOB,
			captured_at DATETIME NOT NULL
		);

		CREATE INDEX idx_screen_captures_captured ON screen_captures(captured_at);

		CREATE TABLE ocr_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			window_title TEXT,
			process_name TEXT,
			engine TEXT NOT NULL,
			text TEXT NOT NULL,
			block_count INTEGER NOT NULL,
			confidence REAL NOT NULL,
			duration_ms INTEGER NOT NULL,
			captured_at DATETIME NOT NULL
		);

		CREATE INDEX idx_ocr_results_captured ON ocr_results(captured_at);
	`)
	return err
}

func migration003Down(tx *sql.Tx) error {
	_, err := tx.Exec(`
		DROP TABLE IF EXISTS ocr_results;
		DROP TABLE IF EXISTS screen_captures;
	`)
	return err
}

// Migration 004: Classifications
func migration004Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE ai_analyses (
			id TEXT PRIMARY KEY,
			analyzed_at DATETIME NOT NULL,
			title TEXT,
			application TEXT,
			engine TEXT,
			extracted_text TEXT,
			keywords TEXT,
			content_type TEXT NOT NULL,
			work_category TEXT NOT NULL,
			priority INTEGER NOT NULL,
			is_productive BOOLEAN NOT NULL,
			is_focused_work BOOLEAN NOT NULL,
			requires_attention BOOLEAN NOT NULL,
			distraction_level INTEGER NOT NULL,
			classification_confidence REAL,
			priority_confidence REAL,
			category_confidence REAL,
			duration_ms INTEGER
		);

		CREATE INDEX idx_ai_analyses_analyzed ON ai_analyses(analyzed_at);
		CREATE INDEX idx_ai_analyses_content_type ON ai_analyses(content_type);
	`)
	return err
}

func migration004Down(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS ai_analyses`)
	return err
}

// Migration 005: Daily rollup view
func migration005Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE VIEW daily_activity AS
		SELECT
			DATE(analyzed_at) AS day,
			content_type,
			COUNT(*) AS activities,
			SUM(CASE WHEN is_productive THEN 1 ELSE 0 END) AS productive,
			SUM(CASE WHEN is_focused_work THEN 1 ELSE 0 END) AS focused
		FROM ai_analyses
		GROUP BY DATE(analyzed_at), content_type
	`)
	return err
}

func migration005Down(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP VIEW IF EXISTS daily_activity`)
	return err
}
