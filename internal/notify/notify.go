// Package notify delivers match digests. Delivery channels (mail, chat) live
// outside this module; they subscribe to what is published here.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis channel digests are published on.
const DefaultChannel = "jobhunter:digest"

// Entry is one job in a digest.
type Entry struct {
	JobID    string  `json:"job_id"`
	Title    string  `json:"title"`
	Company  string  `json:"company"`
	Location string  `json:"location,omitempty"`
	Remote   string  `json:"remote,omitempty"`
	Score    float64 `json:"score"`
	ApplyURL string  `json:"apply_url,omitempty"`
	Summary  string  `json:"summary,omitempty"`
}

// Digest is the per-profile, per-run notification payload.
type Digest struct {
	RunID       string    `json:"run_id"`
	ProfileID   string    `json:"profile_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Threshold   float64   `json:"threshold"`
	Entries     []Entry   `json:"entries"`
}

// Publisher delivers a digest.
type Publisher interface {
	Publish(ctx context.Context, d *Digest) error
}

// LogPublisher writes digests to the log.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, d *Digest) error {
	p.logger.Info("match digest",
		zap.String("run_id", d.RunID),
		zap.String("profile", d.ProfileID),
		zap.Int("jobs", len(d.Entries)),
	)
	for _, e := range d.Entries {
		p.logger.Info("digest entry",
			zap.String("job_id", e.JobID),
			zap.String("title", e.Title),
			zap.String("company", e.Company),
			zap.Float64("score", e.Score),
			zap.String("apply_url", e.ApplyURL),
		)
	}
	return nil
}

// RedisPublisher publishes JSON digests on a Redis channel.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(client redis.UniversalClient, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, d *Digest) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode digest: %w", err)
	}

	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish digest on %s: %w", p.channel, err)
	}
	p.logger.Debug("published digest",
		zap.String("channel", p.channel),
		zap.Int64("receivers", receivers),
		zap.Int("jobs", len(d.Entries)),
	)
	return nil
}

// Multi fans a digest out to several publishers and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, d *Digest) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
