// Package storage persists window events, captures, OCR results and
// classifications in a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"jordanella.com/activity-agent/internal/logging"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// recordTable is a table the pipeline writes to and the column holding
// each row's timestamp
type recordTable struct {
	name       string
	timeColumn string
}

var recordTables = []recordTable{
	{"window_events", "occurred_at"},
	{"screen_captures", "captured_at"},
	{"ocr_results", "captured_at"},
	{"ai_analyses", "analyzed_at"},
}

// DB is the agent's SQLite handle. All access goes through one connection,
// so writes from concurrent pipeline workers are serialized.
type DB struct {
	conn   *sql.DB
	logger *logging.Logger
}

// Open opens or creates the database at dbPath. File databases use WAL
// journaling so the report tool can read while the agent writes.
func Open(dbPath string, logger *logging.Logger) (*DB, error) {
	params := []string{"_foreign_keys=on", "_busy_timeout=5000"}
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		params = append(params, "_journal_mode=WAL")
	}

	conn, err := sql.Open("sqlite3", dbPath+"?"+strings.Join(params, "&"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	db := &DB{conn: conn, logger: logging.OrDiscard(logger)}
	db.logger.DebugWithContext("Database opened", map[string]interface{}{"path": dbPath})
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Conn returns the underlying connection pool
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// ExecTx runs fn in a transaction, committing when it returns nil
func (db *DB) ExecTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}
	return tx.Commit()
}

// SchemaVersion returns the newest applied migration, 0 for a new file
func (db *DB) SchemaVersion() (int, error) {
	return db.getCurrentVersion()
}

// Compact rebuilds the file to return space freed by pruning
func (db *DB) Compact(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to compact database: %w", err)
	}
	return nil
}

// TableCounts returns the number of rows in each record table
func (db *DB) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(recordTables))
	for _, t := range recordTables {
		var n int64
		if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.name).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", t.name, err)
		}
		counts[t.name] = n
	}
	return counts, nil
}
