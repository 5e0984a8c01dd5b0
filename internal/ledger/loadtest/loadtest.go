// Package loadtest exercises the sync ledger under concurrent access.
//
// It simulates the API, watch daemon and CLI hitting the same ledger file:
// readers aggregate stats and list retry candidates while writers record
// outcomes, and verifies that latency stays low and counts stay consistent.
package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/steveyegge/feedsync/internal/ledger"
	"github.com/steveyegge/feedsync/internal/schema"
)

// TestLedger is a populated ledger for load testing.
type TestLedger struct {
	DB       *ledger.DB
	IDs      []string
	ErrorIDs []string
	Total    int
	ErrorPct float64
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	Operations int
	Errors     int
}

// CreateTestLedger creates a ledger at dbPath holding numRecords rows, of
// which about errorPct are in error state.
func CreateTestLedger(dbPath string, numRecords int, errorPct float64) (*TestLedger, error) {
	database, err := ledger.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	tl := &TestLedger{
		DB:       database,
		IDs:      make([]string, 0, numRecords),
		Total:    numRecords,
		ErrorPct: errorPct,
	}

	for _, record := range generateRecords(numRecords, errorPct) {
		if err := database.Upsert(record); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to insert %s: %w", record.ExternalID, err)
		}
		tl.IDs = append(tl.IDs, record.ExternalID)
		if record.Status == schema.StatusError {
			tl.ErrorIDs = append(tl.ErrorIDs, record.ExternalID)
		}
	}

	return tl, nil
}

// Close closes the ledger.
func (tl *TestLedger) Close() error {
	if tl.DB != nil {
		return tl.DB.Close()
	}
	return nil
}

// RunConcurrentReads runs numReaders goroutines, each issuing queriesPerReader
// reads that rotate through stats, retry candidates and point lookups.
func (tl *TestLedger) RunConcurrentReads(numReaders, queriesPerReader int) (*LatencyStats, error) {
	return tl.run(numReaders, queriesPerReader, func(ctx context.Context, worker, i int) error {
		switch i % 3 {
		case 0:
			_, err := tl.DB.AggregateStatsContext(ctx)
			return err
		case 1:
			_, err := tl.DB.ListErrorsUnderRetryLimitContext(ctx, 3)
			return err
		default:
			id := tl.IDs[(worker*queriesPerReader+i)%len(tl.IDs)]
			_, err := tl.DB.FindByExternalIDContext(ctx, id)
			return err
		}
	})
}

// RunConcurrentWrites runs numWriters goroutines, each recording
// writesPerWriter outcomes for its own slice of ids. Every id touched ends
// in the state of its last write.
func (tl *TestLedger) RunConcurrentWrites(numWriters, writesPerWriter int) (*LatencyStats, error) {
	return tl.run(numWriters, writesPerWriter, func(ctx context.Context, worker, i int) error {
		id := tl.IDs[(worker+i*numWriters)%len(tl.IDs)]
		status := schema.StatusUpdated
		if i%4 == 0 {
			status = schema.StatusError
		}
		return tl.DB.UpsertContext(ctx, &schema.SyncRecord{
			ExternalID:    id,
			LocalRecordID: int64(worker*writesPerWriter + i + 1),
			Title:         "Load " + id,
			Status:        status,
		})
	})
}

// run executes op perWorker times on each of numWorkers goroutines.
func (tl *TestLedger) run(numWorkers, perWorker int, op func(ctx context.Context, worker, i int) error) (*LatencyStats, error) {
	var wg sync.WaitGroup
	resultsChan := make(chan []time.Duration, numWorkers)
	errorsChan := make(chan error, numWorkers*perWorker)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			ctx := context.Background()
			durations := make([]time.Duration, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				start := time.Now()
				err := op(ctx, worker, i)
				durations = append(durations, time.Since(start))
				if err != nil {
					errorsChan <- fmt.Errorf("worker %d op %d failed: %w", worker, i, err)
				}
			}
			resultsChan <- durations
		}(w)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	var all []time.Duration
	for durations := range resultsChan {
		all = append(all, durations...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no operations completed")
	}

	stats := computeLatencyStats(all)
	var firstErr error
	for err := range errorsChan {
		stats.Errors++
		if firstErr == nil {
			firstErr = err
		}
	}
	return stats, firstErr
}

// VerifyConsistency checks that the ledger still holds exactly one row per
// id and that the status counts add up.
func (tl *TestLedger) VerifyConsistency(ctx context.Context) error {
	stats, err := tl.DB.AggregateStatsContext(ctx)
	if err != nil {
		return err
	}
	if stats.TotalCount != tl.Total {
		return fmt.Errorf("expected %d rows, found %d", tl.Total, stats.TotalCount)
	}

	sum := stats.ImportedCount + stats.UpdatedCount + stats.ErrorCount + stats.PendingCount
	if sum != stats.TotalCount {
		return fmt.Errorf("status counts sum to %d, total is %d", sum, stats.TotalCount)
	}

	for _, id := range tl.IDs {
		record, err := tl.DB.FindByExternalIDContext(ctx, id)
		if err != nil {
			return fmt.Errorf("row %s: %w", id, err)
		}
		if record.Status != schema.StatusError && record.RetryCount != 0 {
			return fmt.Errorf("row %s is %s with retry_count %d", id, record.Status, record.RetryCount)
		}
	}
	return nil
}

// generateRecords creates ledger rows with a deterministic error spread.
// Failed rows alternate between never-created and created-then-failed.
func generateRecords(count int, errorPct float64) []*schema.SyncRecord {
	records := make([]*schema.SyncRecord, count)
	baseTime := time.Now().Add(-30 * 24 * time.Hour)

	numErrors := int(float64(count) * errorPct)
	rng := rand.New(rand.NewSource(42))
	failed := make(map[int]bool, numErrors)
	for _, idx := range rng.Perm(count)[:numErrors] {
		failed[idx] = true
	}

	for i := 0; i < count; i++ {
		record := &schema.SyncRecord{
			ExternalID:    fmt.Sprintf("entry-%05d", i),
			LocalRecordID: int64(i + 1),
			Title:         fmt.Sprintf("Entry %d", i),
			LastSyncedAt:  baseTime.Add(time.Duration(i) * time.Minute),
			Status:        schema.StatusImported,
		}
		if failed[i] {
			record.Status = schema.StatusError
			record.ErrorMessage = "destination unavailable"
			if i%2 == 0 {
				record.LocalRecordID = 0
			}
		}
		records[i] = record
	}
	return records
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(sorted)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		Operations: len(sorted),
	}
}

// String formats the statistics for test logs.
func (s *LatencyStats) String() string {
	return fmt.Sprintf("ops=%d errors=%d min=%v p50=%v mean=%v p95=%v p99=%v max=%v",
		s.Operations, s.Errors, s.Min, s.P50, s.Mean, s.P95, s.P99, s.Max)
}
