// Package ledger provides the durable per-item sync ledger for feedsync.
//
// The ledger is a single SQLite table keyed by the external identifier of a
// feed entry. It is the unit of truth for identity, status, retry count and
// timestamps of every entry the sync engine has ever processed.
//
// Architecture:
//   - Database file: .feedsync/ledger.db
//   - WAL mode: status readers never block the sync writer
//   - Schema: sync_log table, one row per external_id
//   - Indexes: status/retry_count (retry queue), last_synced_at (logs, date rollback)
//
// Writes use a single INSERT ... ON CONFLICT statement, so the conditional
// carry-forward of retry_count is atomic per external_id.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/feedsync/internal/schema"
	"github.com/steveyegge/feedsync/internal/sqlite"
)

// ErrNotFound is returned when no ledger row exists for an external id.
var ErrNotFound = errors.New("sync record not found")

// DefaultRecentLimit is used by ListRecent when no positive limit is given.
const DefaultRecentLimit = 50

// timeLayout is fixed-width UTC so that text comparison orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps the ledger database connection.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Open creates a new ledger connection at the specified path.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	ledgerDB, err := ledger.Open(".feedsync/ledger.db")
//	if err != nil {
//	    return err
//	}
//	defer ledgerDB.Close()
func Open(path string) (*DB, error) {
	conn, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}

	return &DB{
		conn: conn,
		path: path,
		now:  time.Now,
	}, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Path returns the path the ledger was opened with.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	err := sqlite.Close(db.conn)
	db.conn = nil
	return err
}

// InitSchema creates the ledger table if it doesn't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the ledger table with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS sync_log (
		external_id TEXT PRIMARY KEY,
		local_record_id INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		last_synced_at TEXT NOT NULL,
		status TEXT NOT NULL,  -- imported, updated, error, pending
		retry_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sync_log_retry ON sync_log(status, retry_count);
	CREATE INDEX IF NOT EXISTS idx_sync_log_synced ON sync_log(last_synced_at);
	CREATE INDEX IF NOT EXISTS idx_sync_log_local ON sync_log(local_record_id);
	`

	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Upsert writes a ledger row, replacing any row with the same external id.
//
// retry_count is computed by the database: a write with status=error on an
// existing row stores the previous retry_count + 1, every other write stores 0.
// The record is updated in place with the stored retry_count and timestamp.
func (db *DB) Upsert(record *schema.SyncRecord) error {
	return db.UpsertContext(context.Background(), record)
}

// UpsertContext writes a ledger row with context support.
func (db *DB) UpsertContext(ctx context.Context, record *schema.SyncRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid sync record: %w", err)
	}

	if record.LastSyncedAt.IsZero() {
		record.LastSyncedAt = db.now()
	}

	query := `
	INSERT INTO sync_log (
		external_id, local_record_id, title, last_synced_at,
		status, retry_count, error_message
	) VALUES (?, ?, ?, ?, ?, 0, ?)
	ON CONFLICT(external_id) DO UPDATE SET
		local_record_id = excluded.local_record_id,
		title = excluded.title,
		last_synced_at = excluded.last_synced_at,
		status = excluded.status,
		retry_count = CASE
			WHEN excluded.status = 'error' THEN sync_log.retry_count + 1
			ELSE 0
		END,
		error_message = excluded.error_message
	RETURNING retry_count
	`

	var retryCount int
	err := db.conn.QueryRowContext(ctx, query,
		record.ExternalID,
		record.LocalRecordID,
		record.Title,
		formatTime(record.LastSyncedAt),
		string(record.Status),
		record.ErrorMessage,
	).Scan(&retryCount)
	if err != nil {
		return fmt.Errorf("failed to upsert sync record %s: %w", record.ExternalID, err)
	}

	record.RetryCount = retryCount
	return nil
}

// FindByExternalID retrieves the ledger row for an external id.
// Returns ErrNotFound if no row exists.
func (db *DB) FindByExternalID(externalID string) (*schema.SyncRecord, error) {
	return db.FindByExternalIDContext(context.Background(), externalID)
}

// FindByExternalIDContext retrieves a ledger row with context support.
func (db *DB) FindByExternalIDContext(ctx context.Context, externalID string) (*schema.SyncRecord, error) {
	query := `
	SELECT external_id, local_record_id, title, last_synced_at,
	       status, retry_count, error_message
	FROM sync_log
	WHERE external_id = ?
	`

	record, err := scanRecord(db.conn.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find sync record %s: %w", externalID, err)
	}
	return record, nil
}

// ResetRetry sets retry_count=0 and status=pending for an external id.
// Missing ids are ignored.
func (db *DB) ResetRetry(externalID string) error {
	return db.ResetRetryContext(context.Background(), externalID)
}

// ResetRetryContext resets the retry counter with context support.
func (db *DB) ResetRetryContext(ctx context.Context, externalID string) error {
	query := `UPDATE sync_log SET retry_count = 0, status = 'pending' WHERE external_id = ?`
	if _, err := db.conn.ExecContext(ctx, query, externalID); err != nil {
		return fmt.Errorf("failed to reset retry count for %s: %w", externalID, err)
	}
	return nil
}

// ListErrorsUnderRetryLimit returns rows in error state whose retry_count is
// below maxRetries, oldest failures first.
func (db *DB) ListErrorsUnderRetryLimit(maxRetries int) ([]*schema.SyncRecord, error) {
	return db.ListErrorsUnderRetryLimitContext(context.Background(), maxRetries)
}

// ListErrorsUnderRetryLimitContext lists retryable failures with context support.
func (db *DB) ListErrorsUnderRetryLimitContext(ctx context.Context, maxRetries int) ([]*schema.SyncRecord, error) {
	query := `
	SELECT external_id, local_record_id, title, last_synced_at,
	       status, retry_count, error_message
	FROM sync_log
	WHERE status = 'error' AND retry_count < ?
	ORDER BY last_synced_at ASC
	`

	rows, err := db.conn.QueryContext(ctx, query, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListRecent returns the most recently synced rows, newest first.
func (db *DB) ListRecent(limit int) ([]*schema.SyncRecord, error) {
	return db.ListRecentContext(context.Background(), limit)
}

// ListRecentContext returns recent rows with context support.
func (db *DB) ListRecentContext(ctx context.Context, limit int) ([]*schema.SyncRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `
	SELECT external_id, local_record_id, title, last_synced_at,
	       status, retry_count, error_message
	FROM sync_log
	ORDER BY last_synced_at DESC
	LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// AggregateStats summarizes the ledger in a single query.
func (db *DB) AggregateStats() (*schema.LedgerStats, error) {
	return db.AggregateStatsContext(context.Background())
}

// AggregateStatsContext summarizes the ledger with context support.
func (db *DB) AggregateStatsContext(ctx context.Context) (*schema.LedgerStats, error) {
	query := `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'imported' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'updated' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		MAX(last_synced_at)
	FROM sync_log
	`

	var stats schema.LedgerStats
	var lastSync sql.NullString
	err := db.conn.QueryRowContext(ctx, query).Scan(
		&stats.TotalCount,
		&stats.ImportedCount,
		&stats.UpdatedCount,
		&stats.ErrorCount,
		&stats.PendingCount,
		&lastSync,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}

	if lastSync.Valid {
		if t, err := parseTime(lastSync.String); err == nil {
			stats.LastSyncAt = &t
		}
	}

	return &stats, nil
}

// LocalIDs returns the destination record ids of rows in scope.
// Rows that never created a destination record (local_record_id = 0) are excluded.
func (db *DB) LocalIDs(scope Scope) ([]int64, error) {
	return db.LocalIDsContext(context.Background(), scope)
}

// LocalIDsContext returns scoped destination ids with context support.
func (db *DB) LocalIDsContext(ctx context.Context, scope Scope) ([]int64, error) {
	cond, args, err := scope.where()
	if err != nil {
		return nil, err
	}

	query := `SELECT local_record_id FROM sync_log WHERE local_record_id > 0 AND ` + cond +
		` ORDER BY last_synced_at ASC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query local ids for scope %s: %w", scope, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan local id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating local ids: %w", err)
	}

	return ids, nil
}

// DeleteWhere removes every row in scope and returns the number removed.
func (db *DB) DeleteWhere(scope Scope) (int, error) {
	return db.DeleteWhereContext(context.Background(), scope)
}

// DeleteWhereContext removes scoped rows with context support.
func (db *DB) DeleteWhereContext(ctx context.Context, scope Scope) (int, error) {
	cond, args, err := scope.where()
	if err != nil {
		return 0, err
	}

	result, err := db.conn.ExecContext(ctx, `DELETE FROM sync_log WHERE `+cond, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune ledger for scope %s: %w", scope, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	return int(n), nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord reads one ledger row.
func scanRecord(row rowScanner) (*schema.SyncRecord, error) {
	var record schema.SyncRecord
	var status, syncedAt string

	err := row.Scan(
		&record.ExternalID,
		&record.LocalRecordID,
		&record.Title,
		&syncedAt,
		&status,
		&record.RetryCount,
		&record.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	record.Status = schema.Status(status)
	if t, err := parseTime(syncedAt); err == nil {
		record.LastSyncedAt = t
	}

	return &record, nil
}

// scanRecords is a helper function to scan multiple ledger rows.
func scanRecords(rows *sql.Rows) ([]*schema.SyncRecord, error) {
	var records []*schema.SyncRecord

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync records: %w", err)
	}

	return records, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
