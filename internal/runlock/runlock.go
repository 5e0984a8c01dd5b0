// Package runlock serializes sync runs across goroutines or processes.
//
// Hosts that can start runs concurrently (HTTP API, watch daemon, CLI) take
// the lock before touching the ledger:
//
//	release, err := locker.Acquire(ctx, runlock.SyncLock)
//	if errors.Is(err, runlock.ErrLocked) {
//	    return err // another run is in progress
//	}
//	defer release()
package runlock

import (
	"context"
	"errors"
	"sync"
)

// SyncLock names the lock held by anything that mutates the ledger.
const SyncLock = "sync"

// ErrLocked is returned when the lock is already held.
var ErrLocked = errors.New("another run is in progress")

// Locker hands out named, non-blocking locks.
type Locker interface {
	// Acquire takes the lock or returns ErrLocked. The returned function
	// releases it and is safe to call more than once.
	Acquire(ctx context.Context, name string) (func(), error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocal creates an in-process Locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

func (l *Local) Acquire(ctx context.Context, name string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, ErrLocked
	}
	l.held[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}
