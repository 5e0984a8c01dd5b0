// Package sqlite opens embedded SQLite databases used by feedsync.
//
// Databases run in WAL mode with a busy timeout so that a reader (dashboard,
// status command) never blocks the single writer (sync run).
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Open creates a connection to the database file at path.
//
// The parent directory is created if needed. path may be a plain file path
// or a "file:" URI. The caller MUST call Close on the returned handle.
func Open(path string) (*sql.DB, error) {
	filePath := strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(filePath, '?'); i >= 0 {
		filePath = filePath[:i]
	}

	if filePath != ":memory:" {
		dir := filepath.Dir(filePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	connStr := path
	if !strings.HasPrefix(connStr, "file:") {
		connStr = "file:" + path
	}
	// Connection-scoped pragmas go in the DSN so every pooled connection gets them.
	sep := "?"
	if strings.Contains(connStr, "?") {
		sep = "&"
	}
	connStr += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if filePath != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	return conn, nil
}

// Close checkpoints the WAL and closes conn.
func Close(conn *sql.DB) error {
	if conn == nil {
		return nil
	}

	if _, err := conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
