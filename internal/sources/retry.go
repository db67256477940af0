package sources

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/utils"
)

// RetryConfig controls exponential backoff for transient source failures.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max-attempts"`
	InitialWait time.Duration `mapstructure:"initial-wait"`
	MaxWait     time.Duration `mapstructure:"max-wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// DefaultRetryConfig tries a source three times.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     10 * time.Second,
	Multiplier:  2.0,
}

// Backoff returns the wait before the given retry (1-based).
func (rc RetryConfig) Backoff(retry int) time.Duration {
	mult := rc.Multiplier
	if mult < 1 {
		mult = 1
	}
	wait := time.Duration(float64(rc.InitialWait) * math.Pow(mult, float64(retry-1)))
	if rc.MaxWait > 0 && wait > rc.MaxWait {
		wait = rc.MaxWait
	}
	return wait
}

// Fetch calls a.Fetch, retrying only *SourceUnavailableError failures. It
// returns the number of attempts made.
func Fetch(ctx context.Context, a Adapter, rc RetryConfig, logger *zap.Logger) ([]Record, int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := rc.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := rc.Backoff(attempt - 1)
			logger.Info("retrying source",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(lastErr),
			)
			if err := utils.WaitFor(ctx, wait); err != nil {
				return nil, attempt - 1, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
		}

		records, err := a.Fetch(ctx)
		if err == nil {
			return records, attempt, nil
		}
		lastErr = err

		if !IsUnavailable(err) || ctx.Err() != nil {
			return nil, attempt, err
		}
	}

	return nil, attempts, fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}
