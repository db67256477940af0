package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spigell/jobhunter/internal/jobs"
	"github.com/spigell/jobhunter/internal/store"
	"github.com/spigell/jobhunter/internal/store/storetest"
)

var testTime = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return store.NewMemory() })
}

func TestMemoryRejectsStolenSourceIdentity(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	job := storetest.Job("github", "1", "Acme", "Engineer")
	_, err := s.UpsertJob(ctx, jobs.NewCanonical("a", job, testTime))
	require.NoError(t, err)

	_, err = s.UpsertJob(ctx, jobs.NewCanonical("b", job, testTime))
	require.Error(t, err)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	_, err := s.UpsertJob(ctx, jobs.NewCanonical("a", storetest.Job("github", "1", "Acme", "Engineer"), testTime))
	require.NoError(t, err)

	got, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	got.Job.Title = "changed"

	again, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "Engineer", again.Job.Title)
}
