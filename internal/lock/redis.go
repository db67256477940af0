package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultTTL       = 30 * time.Second
	defaultRetryWait = 50 * time.Millisecond
	keyPrefix        = "jobhunter:lock:"
)

// Only the owner's token may release or extend a key.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis is a Locker shared by every process talking to the same server.
// Held keys are extended in the background until released, so a crashed
// holder frees its keys after TTL.
type Redis struct {
	client    redis.UniversalClient
	ttl       time.Duration
	retryWait time.Duration
	logger    *zap.Logger
}

// RedisOption customises a Redis locker.
type RedisOption func(*Redis)

// WithTTL sets the lease of a held key.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithRetryWait sets the polling interval of Lock.
func WithRetryWait(d time.Duration) RedisOption {
	return func(r *Redis) { r.retryWait = d }
}

// NewRedis wraps a connected client.
func NewRedis(client redis.UniversalClient, logger *zap.Logger, opts ...RedisOption) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Redis{client: client, ttl: defaultTTL, retryWait: defaultRetryWait, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect parses redisURL and verifies connectivity.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// Lock implements Locker by polling SET NX until it succeeds.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	for {
		unlock, err := r.TryLock(ctx, key)
		if !errors.Is(err, ErrLocked) {
			return unlock, err
		}

		timer := time.NewTimer(r.retryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// TryLock implements Locker.
func (r *Redis) TryLock(ctx context.Context, key string) (Unlock, error) {
	name := keyPrefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(name, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			// Release must happen even when the caller's context is gone.
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{name}, token).Err(); err != nil {
				r.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

func (r *Redis) keepAlive(name, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
			n, err := extendScript.Run(ctx, r.client, []string{name}, token, r.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				r.logger.Warn("failed to extend lock", zap.String("key", name), zap.Error(err))
				continue
			}
			if n == 0 {
				r.logger.Warn("lock lost before release", zap.String("key", name))
				return
			}
		}
	}
}
