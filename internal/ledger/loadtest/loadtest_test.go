package loadtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func createLedger(t testing.TB, n int, errorPct float64) *TestLedger {
	t.Helper()
	tl, err := CreateTestLedger(filepath.Join(t.TempDir(), "ledger.db"), n, errorPct)
	if err != nil {
		t.Fatalf("Failed to create test ledger: %v", err)
	}
	t.Cleanup(func() { _ = tl.Close() })
	return tl
}

func TestCreateTestLedger(t *testing.T) {
	tl := createLedger(t, 100, 0.3)

	if len(tl.IDs) != 100 {
		t.Errorf("Expected 100 ids, got %d", len(tl.IDs))
	}
	if len(tl.ErrorIDs) != 30 {
		t.Errorf("Expected 30 failed rows, got %d", len(tl.ErrorIDs))
	}

	stats, err := tl.DB.AggregateStats()
	if err != nil {
		t.Fatalf("AggregateStats failed: %v", err)
	}
	if stats.TotalCount != 100 || stats.ErrorCount != 30 || stats.ImportedCount != 70 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	candidates, err := tl.DB.ListErrorsUnderRetryLimit(3)
	if err != nil {
		t.Fatalf("ListErrorsUnderRetryLimit failed: %v", err)
	}
	if len(candidates) != 30 {
		t.Errorf("Expected 30 retry candidates, got %d", len(candidates))
	}
}

func TestConcurrentReads(t *testing.T) {
	tl := createLedger(t, 200, 0.2)

	stats, err := tl.RunConcurrentReads(16, 15)
	if err != nil {
		t.Fatalf("Concurrent reads failed: %v", err)
	}
	t.Logf("reads: %s", stats)

	if stats.Operations != 16*15 {
		t.Errorf("Expected %d operations, got %d", 16*15, stats.Operations)
	}
	if stats.Errors != 0 {
		t.Errorf("Expected no errors, got %d", stats.Errors)
	}
}

func TestConcurrentWrites(t *testing.T) {
	tl := createLedger(t, 120, 0.25)

	stats, err := tl.RunConcurrentWrites(8, 20)
	if err != nil {
		t.Fatalf("Concurrent writes failed: %v", err)
	}
	t.Logf("writes: %s", stats)

	if err := tl.VerifyConsistency(context.Background()); err != nil {
		t.Errorf("Ledger inconsistent after concurrent writes: %v", err)
	}
}

func TestMixedReadWrite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mixed load test in short mode")
	}
	tl := createLedger(t, 500, 0.3)

	done := make(chan error, 1)
	go func() {
		_, err := tl.RunConcurrentWrites(4, 50)
		done <- err
	}()

	stats, err := tl.RunConcurrentReads(16, 30)
	if err != nil {
		t.Fatalf("Reads during writes failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Writes during reads failed: %v", err)
	}
	t.Logf("reads under write load: %s", stats)

	if err := tl.VerifyConsistency(context.Background()); err != nil {
		t.Errorf("Ledger inconsistent: %v", err)
	}
}

func TestComputeLatencyStats(t *testing.T) {
	durations := make([]time.Duration, 0, 100)
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}

	stats := computeLatencyStats(durations)
	if stats.Min != time.Millisecond || stats.Max != 100*time.Millisecond {
		t.Errorf("Unexpected min/max: %v/%v", stats.Min, stats.Max)
	}
	if stats.P50 != 51*time.Millisecond {
		t.Errorf("Expected p50 51ms, got %v", stats.P50)
	}
	if stats.Operations != 100 {
		t.Errorf("Expected 100 operations, got %d", stats.Operations)
	}

	if empty := computeLatencyStats(nil); empty.Operations != 0 {
		t.Errorf("Expected empty stats, got %+v", empty)
	}
}

func BenchmarkAggregateStats_1000Rows(b *testing.B) {
	tl := createLedger(b, 1000, 0.3)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tl.DB.AggregateStatsContext(ctx); err != nil {
			b.Fatalf("AggregateStats failed: %v", err)
		}
	}
}

func BenchmarkConcurrentReads(b *testing.B) {
	tl := createLedger(b, 1000, 0.3)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tl.RunConcurrentReads(16, 10); err != nil {
			b.Fatalf("Concurrent reads failed: %v", err)
		}
	}
}
