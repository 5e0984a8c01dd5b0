// Package daemon provides the watch daemon that keeps the destination in
// step with the feed.
//
// The daemon:
//  1. Runs a sync cycle on start
//  2. Runs another cycle every interval, or immediately when triggered
//  3. Drives each cycle as consecutive batches from offset 0 until the feed
//     is exhausted, holding the sync lock for the whole cycle
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/steveyegge/feedsync/internal/engine"
	"github.com/steveyegge/feedsync/internal/runlock"
)

// BatchRunner runs one batch of a sync. *engine.Engine implements it.
type BatchRunner interface {
	RunBatchSync(ctx context.Context, batchSize, offset int) (*engine.BatchReport, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval between sync cycles
	Interval time.Duration

	// BatchSize is the number of entries per batch call
	BatchSize int

	// Locker serializes cycles with other hosts (default: in-process lock)
	Locker runlock.Locker

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:  15 * time.Minute,
		BatchSize: 5,
		Locker:    runlock.NewLocal(),
		Logger:    log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// CycleResult summarizes one sync cycle.
type CycleResult struct {
	Batches    int
	TotalPosts int
	engine.Counts

	// Busy is set when another run held the lock and the cycle was skipped.
	Busy     bool
	Duration time.Duration
}

// Daemon runs sync cycles on a schedule.
type Daemon struct {
	runner BatchRunner
	config *Config

	mu       sync.Mutex
	interval time.Duration
	last     *CycleResult

	trigger chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon with custom configuration.
func New(runner BatchRunner, config *Config) (*Daemon, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Locker == nil {
		config.Locker = def.Locker
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		runner:   runner,
		config:   config,
		interval: config.Interval,
		trigger:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start runs a cycle immediately and then one per interval.
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Printf("Starting daemon (interval %v, batch size %d)", d.Interval(), d.config.BatchSize)

	d.wg.Add(1)
	go d.loop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon, waiting for a running cycle's
// current batch to finish.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")
	d.cancel()
	d.wg.Wait()
	d.config.Logger.Println("Daemon stopped")
	return nil
}

// Trigger requests a cycle as soon as the daemon is idle.
func (d *Daemon) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Interval returns the current cycle interval.
func (d *Daemon) Interval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}

// SetInterval changes the cycle interval; it applies from the next wait.
func (d *Daemon) SetInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}
	d.mu.Lock()
	d.interval = interval
	d.mu.Unlock()
}

// LastCycle returns the result of the most recent cycle, or nil.
func (d *Daemon) LastCycle() *CycleResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *Daemon) loop() {
	defer d.wg.Done()

	for {
		d.runLogged()

		timer := time.NewTimer(d.Interval())
		select {
		case <-d.ctx.Done():
			timer.Stop()
			return
		case <-d.trigger:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (d *Daemon) runLogged() {
	result, err := d.RunCycle(d.ctx)
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		d.config.Logger.Printf("Cycle interrupted: %v", err)
	case err != nil:
		d.config.Logger.Printf("Error running cycle: %v", err)
	case result.Busy:
		d.config.Logger.Println("Skipping cycle: another run is in progress")
	default:
		d.config.Logger.Printf("Cycle complete: %d batches, %d imported, %d updated, %d skipped, %d errors (took %v)",
			result.Batches, result.Imported, result.Updated, result.Skipped, result.Errors, result.Duration)
	}
}

// RunCycle processes the whole feed in batches from offset 0, holding the
// sync lock. A busy lock is reported through CycleResult.Busy, not an error.
func (d *Daemon) RunCycle(ctx context.Context) (*CycleResult, error) {
	start := time.Now()
	result := &CycleResult{}

	release, err := d.config.Locker.Acquire(ctx, runlock.SyncLock)
	if errors.Is(err, runlock.ErrLocked) {
		result.Busy = true
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	defer release()

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		report, err := d.runner.RunBatchSync(ctx, d.config.BatchSize, offset)
		if err != nil {
			return result, fmt.Errorf("batch at offset %d failed: %w", offset, err)
		}

		result.Batches++
		result.TotalPosts = report.TotalPosts
		result.Imported += report.Imported
		result.Updated += report.Updated
		result.Skipped += report.Skipped
		result.Errors += report.Errors

		if !report.HasMore || report.NextOffset <= offset {
			break
		}
		offset = report.NextOffset
	}

	result.Duration = time.Since(start)

	d.mu.Lock()
	d.last = result
	d.mu.Unlock()

	return result, nil
}
