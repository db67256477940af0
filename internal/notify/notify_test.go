package notify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sample() *Digest {
	return &Digest{
		RunID:       "run-1",
		ProfileID:   "p1",
		GeneratedAt: time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC),
		Threshold:   70,
		Entries: []Entry{
			{JobID: "j1", Title: "Backend Engineer", Company: "Acme", Score: 91.5},
			{JobID: "j2", Title: "Platform Engineer", Company: "Globex", Score: 78},
		},
	}
}

func TestLogPublisher(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	if err := NewLogPublisher(zap.New(core)).Publish(context.Background(), sample()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if n := logs.FilterMessage("match digest").Len(); n != 1 {
		t.Fatalf("expected one digest header, got %d", n)
	}
	entries := logs.FilterMessage("digest entry").All()
	if len(entries) != 2 {
		t.Fatalf("expected two digest entries, got %d", len(entries))
	}
	if entries[0].ContextMap()["job_id"] != "j1" {
		t.Fatalf("unexpected first entry %v", entries[0].ContextMap())
	}
}

type failing struct{ err error }

func (f failing) Publish(context.Context, *Digest) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("smtp down")
	err := Multi{NewLogPublisher(nil), failing{err: boom}}.Publish(context.Background(), sample())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
}

func TestRedisPublisher(t *testing.T) {
	url := os.Getenv("JOBHUNTER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("JOBHUNTER_TEST_REDIS_URL is not set")
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "jobhunter:test-digest")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := NewRedisPublisher(client, "jobhunter:test-digest", nil).Publish(ctx, sample()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	var got Digest
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-1" || len(got.Entries) != 2 {
		t.Fatalf("unexpected digest %+v", got)
	}
}
