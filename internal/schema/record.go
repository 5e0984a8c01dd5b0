package schema

import (
	"fmt"
	"time"
)

// Status is the sync state of a ledger row.
type Status string

const (
	StatusImported Status = "imported"
	StatusUpdated  Status = "updated"
	StatusError    Status = "error"
	StatusPending  Status = "pending"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusImported, StatusUpdated, StatusError, StatusPending:
		return true
	}
	return false
}

// SyncRecord is one row of the sync ledger.
// Exactly one record exists per ExternalID; writes replace the row.
type SyncRecord struct {
	ExternalID string `json:"external_id"`

	// LocalRecordID is the destination record id (0 = nothing created yet).
	LocalRecordID int64 `json:"local_record_id"`

	Title        string    `json:"title"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	Status       Status    `json:"status"`

	// RetryCount is maintained by the ledger; values set by callers are ignored on write.
	RetryCount   int    `json:"retry_count"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Validate checks if the SyncRecord has valid field values.
func (r *SyncRecord) Validate() error {
	if r.ExternalID == "" {
		return fmt.Errorf("external_id is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.LocalRecordID < 0 {
		return fmt.Errorf("local_record_id must be >= 0 (got %d)", r.LocalRecordID)
	}
	if r.RetryCount < 0 {
		return fmt.Errorf("retry_count must be >= 0 (got %d)", r.RetryCount)
	}
	return nil
}

// HasLocalRecord reports whether a destination record was ever created for this row.
func (r *SyncRecord) HasLocalRecord() bool {
	return r.LocalRecordID > 0
}

// FailedAttempts returns how many consecutive failed attempts the row represents.
//
// The ledger stores retry_count 0 when an entry's very first write is an
// error, and increments it when an existing row moves into error. A failed
// import never has a local record, so its count is RetryCount+1. A row with a
// local record reached error from an earlier success, which retry_count
// already counted.
func (r *SyncRecord) FailedAttempts() int {
	if r.Status != StatusError {
		return 0
	}
	if r.HasLocalRecord() {
		return max(r.RetryCount, 1)
	}
	return r.RetryCount + 1
}

// LedgerStats summarizes the ledger in one pass.
type LedgerStats struct {
	TotalCount    int        `json:"total_synced"`
	ImportedCount int        `json:"imported_count"`
	UpdatedCount  int        `json:"updated_count"`
	ErrorCount    int        `json:"error_count"`
	PendingCount  int        `json:"pending_count"`
	LastSyncAt    *time.Time `json:"last_sync_date,omitempty"`
}
