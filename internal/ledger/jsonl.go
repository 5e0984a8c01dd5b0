package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/steveyegge/feedsync/internal/schema"
)

// maxLineSize bounds a single JSONL line on import.
const maxLineSize = 1024 * 1024

// ImportOptions controls ImportJSONL.
type ImportOptions struct {
	// DryRun parses and validates every line without writing.
	DryRun bool
}

// ImportResult summarizes an ImportJSONL run.
type ImportResult struct {
	Read    int      `json:"read"`
	Valid   int      `json:"valid"`
	Written int      `json:"written"`
	Errors  []string `json:"errors,omitempty"`
}

// ExportJSONL writes every ledger row to w, one JSON object per line,
// ordered by external_id. Returns the number of rows written.
func (db *DB) ExportJSONL(ctx context.Context, w io.Writer) (int, error) {
	query := `
	SELECT external_id, local_record_id, title, last_synced_at,
	       status, retry_count, error_message
	FROM sync_log
	ORDER BY external_id ASC
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to query ledger for export: %w", err)
	}
	defer rows.Close()

	enc := json.NewEncoder(w)
	n := 0
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return n, fmt.Errorf("failed to scan sync record: %w", err)
		}
		if err := enc.Encode(record); err != nil {
			return n, fmt.Errorf("failed to encode %s: %w", record.ExternalID, err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("error iterating sync records: %w", err)
	}
	return n, nil
}

// ExportFile writes the ledger as JSONL to path via a temp file and rename.
func (db *DB) ExportFile(ctx context.Context, path string) (int, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	bw := bufio.NewWriter(f)
	n, err := db.ExportJSONL(ctx, bw)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return n, nil
}

// BackupPath returns a timestamped export path next to the ledger file.
func (db *DB) BackupPath() string {
	return db.path + ".backup." + db.now().Format("20060102-150405") + ".jsonl"
}

// Restore writes a ledger row verbatim, keeping its retry_count and
// last_synced_at. Unlike Upsert it does not derive retry_count.
func (db *DB) Restore(record *schema.SyncRecord) error {
	return db.RestoreContext(context.Background(), record)
}

// RestoreContext writes a ledger row verbatim with context support.
func (db *DB) RestoreContext(ctx context.Context, record *schema.SyncRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid sync record: %w", err)
	}
	syncedAt := record.LastSyncedAt
	if syncedAt.IsZero() {
		syncedAt = db.now()
	}

	query := `
	INSERT INTO sync_log (
		external_id, local_record_id, title, last_synced_at,
		status, retry_count, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(external_id) DO UPDATE SET
		local_record_id = excluded.local_record_id,
		title = excluded.title,
		last_synced_at = excluded.last_synced_at,
		status = excluded.status,
		retry_count = excluded.retry_count,
		error_message = excluded.error_message
	`

	_, err := db.conn.ExecContext(ctx, query,
		record.ExternalID,
		record.LocalRecordID,
		record.Title,
		formatTime(syncedAt),
		string(record.Status),
		record.RetryCount,
		record.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to restore sync record %s: %w", record.ExternalID, err)
	}
	return nil
}

// ImportJSONL restores ledger rows from a JSONL stream produced by ExportJSONL.
// Malformed or invalid lines are collected in the result and skipped.
// Blank lines are ignored.
func (db *DB) ImportJSONL(ctx context.Context, r io.Reader, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record schema.SyncRecord
		if err := json.Unmarshal(line, &record); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}
		result.Read++

		if err := record.Validate(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}
		result.Valid++
		if opts.DryRun {
			continue
		}
		if err := db.RestoreContext(ctx, &record); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}
		result.Written++
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("failed to read JSONL: %w", err)
	}
	return result, nil
}

// ImportFile restores ledger rows from a JSONL file.
func (db *DB) ImportFile(ctx context.Context, path string, opts ImportOptions) (*ImportResult, error) {
	f, err := os.Open(path) // #nosec G304 - path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return db.ImportJSONL(ctx, f, opts)
}
