// Package lock provides exclusive, scoped locks keyed by string.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned by TryLock when the key is already held.
var ErrLocked = errors.New("lock is held by another owner")

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

// Locker hands out exclusive locks per key.
type Locker interface {
	// Lock blocks until the key is acquired or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)
	// TryLock acquires the key without waiting, or returns ErrLocked.
	TryLock(ctx context.Context, key string) (Unlock, error)
}

// Keyed is an in-process Locker. The zero value is ready to use.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyed returns an in-process Locker.
func NewKeyed() *Keyed {
	return &Keyed{}
}

func (k *Keyed) acquire(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.slots == nil {
		k.slots = make(map[string]*slot)
	}
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *Keyed) release(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

func (k *Keyed) unlocker(key string, s *slot) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.release(key, s)
		})
	}
}

// Lock implements Locker.
func (k *Keyed) Lock(ctx context.Context, key string) (Unlock, error) {
	s := k.acquire(key)
	select {
	case s.ch <- struct{}{}:
		return k.unlocker(key, s), nil
	case <-ctx.Done():
		k.release(key, s)
		return nil, ctx.Err()
	}
}

// TryLock implements Locker.
func (k *Keyed) TryLock(_ context.Context, key string) (Unlock, error) {
	s := k.acquire(key)
	select {
	case s.ch <- struct{}{}:
		return k.unlocker(key, s), nil
	default:
		k.release(key, s)
		return nil, ErrLocked
	}
}
