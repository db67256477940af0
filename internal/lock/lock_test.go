package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestKeyedSerialisesSameKey(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "acme")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			defer unlock()

			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxSeen.Load())
	}
	if len(k.slots) != 0 {
		t.Fatalf("expected released slots to be dropped, got %d", len(k.slots))
	}
}

func TestKeyedTryLock(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	unlock, err := k.TryLock(ctx, "run:me")
	if err != nil {
		t.Fatalf("first try: %v", err)
	}
	if _, err := k.TryLock(ctx, "run:me"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if other, err := k.TryLock(ctx, "run:you"); err != nil {
		t.Fatalf("other key must be free: %v", err)
	} else {
		other()
	}

	unlock()
	unlock()

	again, err := k.TryLock(ctx, "run:me")
	if err != nil {
		t.Fatalf("expected key to be free after unlock: %v", err)
	}
	again()
}

func TestKeyedLockHonoursContext(t *testing.T) {
	k := NewKeyed()
	unlock, err := k.Lock(context.Background(), "acme")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, "acme"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRedisLocker(t *testing.T) {
	url := os.Getenv("JOBHUNTER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("JOBHUNTER_TEST_REDIS_URL is not set")
	}

	ctx := context.Background()
	client, err := Connect(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	r := NewRedis(client, zaptest.NewLogger(t), WithTTL(time.Second), WithRetryWait(5*time.Millisecond))
	key := "test:" + t.Name()

	unlock, err := r.TryLock(ctx, key)
	if err != nil {
		t.Fatalf("try lock: %v", err)
	}
	if _, err := r.TryLock(ctx, key); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	// Held past the TTL thanks to the keep-alive.
	time.Sleep(1500 * time.Millisecond)
	if _, err := r.TryLock(ctx, key); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected key to be extended, got %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		unlock()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	next, err := r.Lock(waitCtx, key)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	next()
}
