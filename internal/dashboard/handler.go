package dashboard

import (
	"context"
	"log"
	"time"

	"github.com/steveyegge/feedsync/internal/engine"
	"github.com/steveyegge/feedsync/internal/ledger"
)

// SyncCompleteData summarizes a full run.
type SyncCompleteData struct {
	Success    bool          `json:"success"`
	TotalPosts int           `json:"total_posts"`
	Processed  int           `json:"posts_processed"`
	Imported   int           `json:"posts_imported"`
	Updated    int           `json:"posts_updated"`
	Skipped    int           `json:"posts_skipped"`
	Errors     int           `json:"posts_errored"`
	Message    string        `json:"message,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// BatchProgressData reports where a batched sync stands.
type BatchProgressData struct {
	Processed          int     `json:"posts_processed"`
	TotalPosts         int     `json:"total_posts"`
	CurrentOffset      int     `json:"current_offset"`
	NextOffset         int     `json:"next_offset"`
	HasMore            bool    `json:"has_more"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

// RollbackData summarizes a rollback.
type RollbackData struct {
	Scope   ledger.Scope `json:"scope"`
	Deleted int          `json:"deleted_count"`
	Failed  int          `json:"failed_count"`
	Pruned  int          `json:"pruned_count"`
}

// Handler turns engine notifications into dashboard messages.
// It implements engine.Observer.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

// OnItemProcessed broadcasts an item_update message.
func (h *Handler) OnItemProcessed(outcome engine.ItemOutcome) {
	h.server.BroadcastData(MessageTypeItemUpdate, outcome)
}

// OnSyncComplete broadcasts the run summary followed by fresh stats.
func (h *Handler) OnSyncComplete(report *engine.SyncReport) {
	h.logger.Printf("Sync complete: %d/%d processed in %v", report.Processed, report.TotalPosts, report.Duration)

	h.server.BroadcastData(MessageTypeSyncComplete, SyncCompleteData{
		Success:    report.Success,
		TotalPosts: report.TotalPosts,
		Processed:  report.Processed,
		Imported:   report.Imported,
		Updated:    report.Updated,
		Skipped:    report.Skipped,
		Errors:     report.Errors,
		Message:    report.Message,
		Error:      report.Error,
		Duration:   report.Duration,
	})
	h.server.BroadcastStats(context.Background())
}

// OnBatchComplete broadcasts batch progress and fresh stats.
func (h *Handler) OnBatchComplete(report *engine.BatchReport) {
	h.server.BroadcastData(MessageTypeBatchProgress, BatchProgressData{
		Processed:          report.Processed,
		TotalPosts:         report.TotalPosts,
		CurrentOffset:      report.CurrentOffset,
		NextOffset:         report.NextOffset,
		HasMore:            report.HasMore,
		ProgressPercentage: report.ProgressPercentage,
	})
	h.server.BroadcastStats(context.Background())
}

// OnRollback broadcasts the rollback summary and fresh stats.
func (h *Handler) OnRollback(report *engine.RollbackReport) {
	h.logger.Printf("Rollback complete: %d deleted, %d failed", report.Deleted, report.Failed)

	h.server.BroadcastData(MessageTypeRollback, RollbackData{
		Scope:   report.Scope,
		Deleted: report.Deleted,
		Failed:  report.Failed,
		Pruned:  report.Pruned,
	})
	h.server.BroadcastStats(context.Background())
}

var _ engine.Observer = (*Handler)(nil)
