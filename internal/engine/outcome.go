package engine

import (
	"fmt"
	"time"

	"github.com/steveyegge/feedsync/internal/ledger"
)

// Kind is the terminal outcome of processing one entry.
type Kind string

const (
	KindImported Kind = "imported"
	KindUpdated  Kind = "updated"
	KindSkipped  Kind = "skipped"
	KindError    Kind = "error"
)

// ItemOutcome describes what happened to one feed entry.
type ItemOutcome struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"post_title"`
	Kind       Kind   `json:"action"`
	LocalID    int64  `json:"post_id,omitempty"`
	Message    string `json:"message"`
}

// Success reports whether the entry reached the destination.
func (o ItemOutcome) Success() bool {
	return o.Kind == KindImported || o.Kind == KindUpdated
}

func imported(id, title string, localID int64) ItemOutcome {
	return ItemOutcome{ExternalID: id, Title: title, Kind: KindImported, LocalID: localID,
		Message: fmt.Sprintf("Successfully imported: %s", title)}
}

func updated(id, title string, localID int64) ItemOutcome {
	return ItemOutcome{ExternalID: id, Title: title, Kind: KindUpdated, LocalID: localID,
		Message: fmt.Sprintf("Successfully updated: %s", title)}
}

func skipped(id, title string, localID int64) ItemOutcome {
	return ItemOutcome{ExternalID: id, Title: title, Kind: KindSkipped, LocalID: localID,
		Message: fmt.Sprintf("Skipped: %s (max retries exceeded)", title)}
}

func failed(id, title string, localID int64, msg string) ItemOutcome {
	return ItemOutcome{ExternalID: id, Title: title, Kind: KindError, LocalID: localID, Message: msg}
}

// Counts tallies outcomes by kind.
type Counts struct {
	Imported int `json:"posts_imported"`
	Updated  int `json:"posts_updated"`
	Skipped  int `json:"posts_skipped"`
	Errors   int `json:"posts_errored"`
}

func (t *Counts) add(o ItemOutcome) {
	switch o.Kind {
	case KindImported:
		t.Imported++
	case KindUpdated:
		t.Updated++
	case KindSkipped:
		t.Skipped++
	case KindError:
		t.Errors++
	}
}

// SyncReport summarizes a full run.
type SyncReport struct {
	Success    bool `json:"success"`
	TotalPosts int  `json:"total_posts"`
	Processed  int  `json:"posts_processed"`
	Counts

	Outcomes      []ItemOutcome `json:"processed_posts"`
	ErrorMessages []string      `json:"errors"`
	Message       string        `json:"message,omitempty"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// BatchReport summarizes one batch call.
type BatchReport struct {
	Success       bool `json:"success"`
	TotalPosts    int  `json:"total_posts"`
	Processed     int  `json:"posts_processed"`
	CurrentOffset int  `json:"current_offset"`
	NextOffset    int  `json:"next_offset"`
	HasMore       bool `json:"has_more"`
	// ProgressPercentage is NextOffset/TotalPosts*100 rounded to one decimal
	// and capped at 100, so a final batch that runs past the end reports 100.
	ProgressPercentage float64 `json:"progress_percentage"`
	Counts

	Outcomes      []ItemOutcome `json:"processed_posts"`
	ErrorMessages []string      `json:"errors"`
	Message       string        `json:"message,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// RetryReport summarizes RetryFailedAll.
type RetryReport struct {
	RetriedCount int    `json:"retried_count"`
	Message      string `json:"message"`
}

// RollbackReport summarizes a rollback.
type RollbackReport struct {
	Scope ledger.Scope `json:"scope"`

	// Candidates is the number of destination ids found in scope.
	Candidates int `json:"candidates"`
	Deleted    int `json:"deleted_count"`
	Failed     int `json:"failed_count"`

	// Pruned is the number of ledger rows removed.
	Pruned  int    `json:"pruned_count"`
	Message string `json:"message"`
}
