package runlock

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"
)

func TestLocal_Exclusive(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "sync")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	if _, err := l.Acquire(ctx, "sync"); !errors.Is(err, ErrLocked) {
		t.Errorf("second Acquire() err = %v, want ErrLocked", err)
	}

	other, err := l.Acquire(ctx, "rollback")
	if err != nil {
		t.Errorf("Acquire(other name) failed: %v", err)
	}
	other()

	release()
	release()

	again, err := l.Acquire(ctx, "sync")
	if err != nil {
		t.Fatalf("Acquire() after release failed: %v", err)
	}
	again()
}

func TestLocal_Concurrent(t *testing.T) {
	l := NewLocal()
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Acquire(context.Background(), "sync"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want 1", winners)
	}
}

func TestLocal_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocal().Acquire(ctx, "sync"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// TestRedis_Exclusive requires a reachable Redis at REDIS_ADDR.
func TestRedis_Exclusive(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	r, err := NewRedis(RedisConfig{
		Addr:   addr,
		Prefix: "feedsync:test:" + time.Now().Format("150405.000") + ":",
		TTL:    3 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewRedis() failed: %v", err)
	}
	defer r.Close()

	ctx := context.Background()
	release, err := r.Acquire(ctx, "sync")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	if _, err := r.Acquire(ctx, "sync"); !errors.Is(err, ErrLocked) {
		t.Errorf("second Acquire() err = %v, want ErrLocked", err)
	}

	// outlive the TTL to check the keepalive
	time.Sleep(4 * time.Second)
	if _, err := r.Acquire(ctx, "sync"); !errors.Is(err, ErrLocked) {
		t.Errorf("Acquire() after TTL err = %v, want ErrLocked", err)
	}

	release()
	again, err := r.Acquire(ctx, "sync")
	if err != nil {
		t.Fatalf("Acquire() after release failed: %v", err)
	}
	again()
}
