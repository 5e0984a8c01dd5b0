package engine

import (
	"context"

	"github.com/steveyegge/feedsync/internal/ledger"
	"github.com/steveyegge/feedsync/internal/schema"
)

// FeedSource fetches the upstream feed.
// Entry ids must be stable across fetches of the same logical entry.
type FeedSource interface {
	FetchEntries(ctx context.Context, feedURL string) ([]*schema.FeedEntry, error)
}

// Destination creates, updates and deletes records in the destination store.
type Destination interface {
	Create(ctx context.Context, payload *schema.Payload) (int64, error)
	Update(ctx context.Context, localID int64, payload *schema.Payload) (int64, error)
	// Delete reports whether a record was removed.
	Delete(ctx context.Context, localID int64) (bool, error)
}

// MediaImporter imports media referenced by a synced record's body.
type MediaImporter interface {
	ImportMedia(ctx context.Context, localID int64, body string) error
}

// TemplateNormalizer fixes up presentation metadata of a synced record.
type TemplateNormalizer interface {
	NormalizeTemplate(ctx context.Context, localID int64, contentType string) error
}

// SettingsProvider supplies the current sync settings.
type SettingsProvider interface {
	Settings() schema.Settings
}

// PayloadBuilder maps a feed entry to a destination payload.
type PayloadBuilder interface {
	BuildPayload(entry *schema.FeedEntry, settings schema.Settings) *schema.Payload
}

// Ledger is the sync ledger used by the engine. *ledger.DB implements it.
type Ledger interface {
	FindByExternalIDContext(ctx context.Context, externalID string) (*schema.SyncRecord, error)
	UpsertContext(ctx context.Context, record *schema.SyncRecord) error
	ListErrorsUnderRetryLimitContext(ctx context.Context, maxRetries int) ([]*schema.SyncRecord, error)
	ResetRetryContext(ctx context.Context, externalID string) error
	AggregateStatsContext(ctx context.Context) (*schema.LedgerStats, error)
	ListRecentContext(ctx context.Context, limit int) ([]*schema.SyncRecord, error)
	LocalIDsContext(ctx context.Context, scope ledger.Scope) ([]int64, error)
	DeleteWhereContext(ctx context.Context, scope ledger.Scope) (int, error)
}

// Observer is notified as the engine makes progress.
// Implementations must not block for long; they run on the sync goroutine.
type Observer interface {
	OnItemProcessed(outcome ItemOutcome)
	OnSyncComplete(report *SyncReport)
	OnBatchComplete(report *BatchReport)
	OnRollback(report *RollbackReport)
}

var _ Ledger = (*ledger.DB)(nil)
