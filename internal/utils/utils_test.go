package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitFor(t *testing.T) {
	var waited []time.Duration
	after = func(d time.Duration) <-chan time.Time {
		waited = append(waited, d)
		if d == time.Hour {
			return nil
		}
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
	t.Cleanup(func() { after = time.After })

	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("zero wait must return immediately, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if err := WaitFor(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("a zero wait on a cancelled context must report it, got %v", err)
	}

	if err := WaitFor(context.Background(), time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if len(waited) != 2 || waited[0] != time.Hour || waited[1] != time.Second {
		t.Fatalf("unexpected waits %v", waited)
	}
}
