package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/steveyegge/feedsync/internal/ledger"
	"github.com/steveyegge/feedsync/internal/schema"
)

// DefaultMaxRetries is the number of consecutive failed attempts after which
// an entry is skipped.
const DefaultMaxRetries = 3

// Config holds engine tuning.
type Config struct {
	// MaxRetries caps consecutive failed attempts per entry.
	MaxRetries int

	// Logger for engine output (default: stderr with [engine] prefix)
	Logger *log.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries: DefaultMaxRetries,
		Logger:     log.New(os.Stderr, "[engine] ", log.LstdFlags),
		Now:        time.Now,
	}
}

// Deps are the collaborators the engine calls.
// Media, Templates and Observers are optional.
type Deps struct {
	Ledger      Ledger
	Feed        FeedSource
	Destination Destination
	Mapper      PayloadBuilder
	Settings    SettingsProvider

	Media     MediaImporter
	Templates TemplateNormalizer
	Observers []Observer
}

// Engine runs syncs, retry resets and rollbacks against one ledger.
// An Engine is not safe for overlapping runs; hosts serialize them.
type Engine struct {
	deps   Deps
	config Config
	logger *log.Logger
}

// New creates an Engine.
func New(deps Deps, config Config) (*Engine, error) {
	switch {
	case deps.Ledger == nil:
		return nil, fmt.Errorf("ledger is required")
	case deps.Feed == nil:
		return nil, fmt.Errorf("feed source is required")
	case deps.Destination == nil:
		return nil, fmt.Errorf("destination is required")
	case deps.Mapper == nil:
		return nil, fmt.Errorf("payload builder is required")
	case deps.Settings == nil:
		return nil, fmt.Errorf("settings provider is required")
	}

	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Engine{
		deps:   deps,
		config: config,
		logger: config.Logger,
	}, nil
}

// MaxRetries returns the configured retry cap.
func (e *Engine) MaxRetries() int {
	return e.config.MaxRetries
}

// RunFullSync fetches the feed and processes every entry in feed order.
//
// A fetch failure aborts the run: the returned report has Success=false and
// the error wraps ErrFetch or ErrNoFeedURL. Per-entry failures never stop
// the run; they are recorded in the ledger and in the report.
func (e *Engine) RunFullSync(ctx context.Context) (*SyncReport, error) {
	start := e.config.Now()
	report := &SyncReport{Outcomes: []ItemOutcome{}, ErrorMessages: []string{}}

	settings := e.deps.Settings.Settings()
	entries, err := e.fetch(ctx, settings)
	if err != nil {
		report.Error = err.Error()
		report.Duration = e.config.Now().Sub(start)
		e.notifySync(report)
		return report, err
	}

	report.TotalPosts = len(entries)
	if len(entries) == 0 {
		report.Success = true
		report.Message = "No posts found in feed"
		report.Duration = e.config.Now().Sub(start)
		e.notifySync(report)
		return report, nil
	}

	e.logger.Printf("Starting full sync of %d entries from %s", len(entries), settings.FeedURL)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			report.Error = fmt.Sprintf("sync interrupted: %v", err)
			report.Message = summary(report.Processed, report.Counts)
			report.Duration = e.config.Now().Sub(start)
			e.notifySync(report)
			return report, fmt.Errorf("sync interrupted after %d entries: %w", report.Processed, err)
		}

		outcome := e.processEntry(ctx, entry, settings)
		report.Processed++
		report.add(outcome)
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Kind == KindError {
			report.ErrorMessages = append(report.ErrorMessages, outcome.Message)
		}
	}

	report.Success = true
	report.Message = summary(report.Processed, report.Counts)
	report.Duration = e.config.Now().Sub(start)

	e.logger.Printf("Full sync complete: %s (errors: %d, took %v)",
		report.Message, report.Errors, report.Duration)
	e.notifySync(report)

	return report, nil
}

// RunBatchSync fetches the feed and processes entries [offset, offset+batchSize).
//
// The feed is fetched on every call, so the total is fixed per call only.
// Callers drive repeated calls with NextOffset until HasMore is false.
func (e *Engine) RunBatchSync(ctx context.Context, batchSize, offset int) (*BatchReport, error) {
	if batchSize <= 0 || offset < 0 {
		return nil, fmt.Errorf("%w: batch size %d, offset %d", ErrInvalidBatch, batchSize, offset)
	}

	report := &BatchReport{
		CurrentOffset: offset,
		Outcomes:      []ItemOutcome{},
		ErrorMessages: []string{},
	}

	settings := e.deps.Settings.Settings()
	entries, err := e.fetch(ctx, settings)
	if err != nil {
		report.Error = err.Error()
		e.notifyBatch(report)
		return report, err
	}

	total := len(entries)
	report.TotalPosts = total
	if total == 0 {
		report.Success = true
		report.NextOffset = offset
		report.ProgressPercentage = 100
		report.Message = "No posts found in feed"
		e.notifyBatch(report)
		return report, nil
	}

	end := offset + batchSize
	var slice []*schema.FeedEntry
	if offset < total {
		slice = entries[offset:min(end, total)]
	}

	for _, entry := range slice {
		if err := ctx.Err(); err != nil {
			report.Error = fmt.Sprintf("batch interrupted: %v", err)
			report.NextOffset = offset + report.Processed
			report.HasMore = report.NextOffset < total
			report.ProgressPercentage = progress(report.NextOffset, total)
			e.notifyBatch(report)
			return report, fmt.Errorf("batch interrupted after %d entries: %w", report.Processed, err)
		}

		outcome := e.processEntry(ctx, entry, settings)
		report.Processed++
		report.add(outcome)
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Kind == KindError {
			report.ErrorMessages = append(report.ErrorMessages, outcome.Message)
		}
	}

	report.Success = true
	report.NextOffset = end
	report.HasMore = end < total
	report.ProgressPercentage = progress(end, total)
	report.Message = summary(report.Processed, report.Counts)

	e.logger.Printf("Batch [%d, %d) of %d complete: %s", offset, end, total, report.Message)
	e.notifyBatch(report)

	return report, nil
}

// RetryFailedAll resets every failed row under the retry limit so that the
// next run attempts it again. It does not reprocess anything itself.
func (e *Engine) RetryFailedAll(ctx context.Context) (*RetryReport, error) {
	records, err := e.deps.Ledger.ListErrorsUnderRetryLimitContext(ctx, e.config.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed records: %w", err)
	}

	report := &RetryReport{}
	for _, record := range records {
		if err := e.deps.Ledger.ResetRetryContext(ctx, record.ExternalID); err != nil {
			return report, fmt.Errorf("failed to reset %s: %w", record.ExternalID, err)
		}
		report.RetriedCount++
	}

	report.Message = fmt.Sprintf("Reset %d failed posts. Run sync again to retry.", report.RetriedCount)
	e.logger.Printf("%s", report.Message)
	return report, nil
}

// GetStats returns aggregate ledger statistics.
func (e *Engine) GetStats(ctx context.Context) (*schema.LedgerStats, error) {
	stats, err := e.deps.Ledger.AggregateStatsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// GetFailedNeedingRetry lists failed rows with retry_count below maxRetries.
// A non-positive maxRetries uses the configured cap.
func (e *Engine) GetFailedNeedingRetry(ctx context.Context, maxRetries int) ([]*schema.SyncRecord, error) {
	if maxRetries <= 0 {
		maxRetries = e.config.MaxRetries
	}
	records, err := e.deps.Ledger.ListErrorsUnderRetryLimitContext(ctx, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed records: %w", err)
	}
	return records, nil
}

// GetRecentLog returns the most recently synced rows, newest first.
func (e *Engine) GetRecentLog(ctx context.Context, limit int) ([]*schema.SyncRecord, error) {
	records, err := e.deps.Ledger.ListRecentContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent records: %w", err)
	}
	return records, nil
}

func (e *Engine) fetch(ctx context.Context, settings schema.Settings) ([]*schema.FeedEntry, error) {
	if settings.FeedURL == "" {
		return nil, ErrNoFeedURL
	}

	entries, err := e.deps.Feed.FetchEntries(ctx, settings.FeedURL)
	if err != nil {
		e.logger.Printf("Error fetching feed %s: %v", settings.FeedURL, err)
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			return nil, err
		}
		return nil, &FetchError{URL: settings.FeedURL, Err: err}
	}
	return entries, nil
}

// processEntry runs the skip/import/update decision for one entry.
func (e *Engine) processEntry(ctx context.Context, entry *schema.FeedEntry, settings schema.Settings) ItemOutcome {
	outcome := e.decide(ctx, entry, settings)
	for _, obs := range e.deps.Observers {
		obs.OnItemProcessed(outcome)
	}
	return outcome
}

func (e *Engine) decide(ctx context.Context, entry *schema.FeedEntry, settings schema.Settings) ItemOutcome {
	if err := entry.Validate(); err != nil {
		e.logger.Printf("Skipping invalid entry %q: %v", entry.Title, err)
		return failed(entry.ID, entry.Title, 0, fmt.Sprintf("Invalid entry: %s - %v", entry.Title, err))
	}

	existing, err := e.deps.Ledger.FindByExternalIDContext(ctx, entry.ID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		e.logger.Printf("Error looking up %s: %v", entry.ID, err)
		return failed(entry.ID, entry.Title, 0, fmt.Sprintf("Failed to look up: %s - %v", entry.Title, err))
	}
	if errors.Is(err, ledger.ErrNotFound) {
		existing = nil
	}

	if existing != nil && existing.FailedAttempts() >= e.config.MaxRetries {
		return skipped(entry.ID, entry.Title, existing.LocalRecordID)
	}

	if existing == nil || !existing.HasLocalRecord() {
		return e.importEntry(ctx, entry, settings)
	}
	return e.updateEntry(ctx, entry, settings, existing.LocalRecordID)
}

func (e *Engine) importEntry(ctx context.Context, entry *schema.FeedEntry, settings schema.Settings) ItemOutcome {
	payload := e.deps.Mapper.BuildPayload(entry, settings)

	localID, err := e.deps.Destination.Create(ctx, payload)
	if err == nil && localID <= 0 {
		err = fmt.Errorf("destination returned invalid id %d", localID)
	}
	if err != nil {
		storeErr := &StoreError{Op: "create", Err: err}
		e.logger.Printf("Failed to import %s: %v", entry.ID, storeErr)
		msg := fmt.Sprintf("Failed to import: %s - %v", entry.Title, err)
		if lerr := e.record(ctx, entry, 0, schema.StatusError, err.Error()); lerr != nil {
			msg = fmt.Sprintf("%s (ledger: %v)", msg, lerr)
		}
		return failed(entry.ID, entry.Title, 0, msg)
	}

	if lerr := e.record(ctx, entry, localID, schema.StatusImported, ""); lerr != nil {
		return failed(entry.ID, entry.Title, localID,
			fmt.Sprintf("Imported %s as %d but failed to record it: %v", entry.Title, localID, lerr))
	}

	e.runHooks(ctx, localID, payload)
	return imported(entry.ID, entry.Title, localID)
}

func (e *Engine) updateEntry(ctx context.Context, entry *schema.FeedEntry, settings schema.Settings, localID int64) ItemOutcome {
	payload := e.deps.Mapper.BuildPayload(entry, settings)
	// Updates always land as drafts for review.
	payload.Status = schema.PostStatusDraft

	newID, err := e.deps.Destination.Update(ctx, localID, payload)
	if err != nil {
		storeErr := &StoreError{Op: "update", LocalID: localID, Err: err}
		e.logger.Printf("Failed to update %s: %v", entry.ID, storeErr)
		msg := fmt.Sprintf("Failed to update: %s - %v", entry.Title, err)
		if lerr := e.record(ctx, entry, localID, schema.StatusError, err.Error()); lerr != nil {
			msg = fmt.Sprintf("%s (ledger: %v)", msg, lerr)
		}
		return failed(entry.ID, entry.Title, localID, msg)
	}
	if newID > 0 {
		localID = newID
	}

	if lerr := e.record(ctx, entry, localID, schema.StatusUpdated, ""); lerr != nil {
		return failed(entry.ID, entry.Title, localID,
			fmt.Sprintf("Updated %s but failed to record it: %v", entry.Title, lerr))
	}

	e.runHooks(ctx, localID, payload)
	return updated(entry.ID, entry.Title, localID)
}

func (e *Engine) record(ctx context.Context, entry *schema.FeedEntry, localID int64, status schema.Status, msg string) error {
	err := e.deps.Ledger.UpsertContext(ctx, &schema.SyncRecord{
		ExternalID:    entry.ID,
		LocalRecordID: localID,
		Title:         entry.Title,
		LastSyncedAt:  e.config.Now(),
		Status:        status,
		ErrorMessage:  msg,
	})
	if err != nil {
		e.logger.Printf("Failed to write ledger row for %s: %v", entry.ID, err)
	}
	return err
}

// runHooks invokes the side-effect hooks. Failures are logged only.
func (e *Engine) runHooks(ctx context.Context, localID int64, payload *schema.Payload) {
	if e.deps.Media != nil {
		if err := e.deps.Media.ImportMedia(ctx, localID, payload.Body); err != nil {
			e.logger.Printf("Media import failed for record %d: %v", localID, err)
		}
	}
	if e.deps.Templates != nil {
		if err := e.deps.Templates.NormalizeTemplate(ctx, localID, payload.ContentType); err != nil {
			e.logger.Printf("Template normalization failed for record %d: %v", localID, err)
		}
	}
}

func (e *Engine) notifySync(report *SyncReport) {
	for _, obs := range e.deps.Observers {
		obs.OnSyncComplete(report)
	}
}

func (e *Engine) notifyBatch(report *BatchReport) {
	for _, obs := range e.deps.Observers {
		obs.OnBatchComplete(report)
	}
}

func summary(processed int, c Counts) string {
	return fmt.Sprintf("Processed %d posts: %d imported, %d updated, %d skipped",
		processed, c.Imported, c.Updated, c.Skipped)
}

// progress returns done/total as a percentage rounded to one decimal, capped at 100.
func progress(done, total int) float64 {
	if total <= 0 {
		return 100
	}
	pct := math.Round(float64(done)/float64(total)*1000) / 10
	return math.Min(pct, 100)
}
