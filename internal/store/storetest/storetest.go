// Package storetest holds behaviour every store.Store implementation must show.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spigell/jobhunter/internal/applications"
	"github.com/spigell/jobhunter/internal/jobs"
	"github.com/spigell/jobhunter/internal/matching"
	"github.com/spigell/jobhunter/internal/store"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.Store

var base = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

// Run exercises the whole store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("jobs", func(t *testing.T) { testJobs(t, newStore(t)) })
	t.Run("renamed company", func(t *testing.T) { testRenamedCompany(t, newStore(t)) })
	t.Run("stale", func(t *testing.T) { testStale(t, newStore(t)) })
	t.Run("matches", func(t *testing.T) { testMatches(t, newStore(t)) })
	t.Run("applications", func(t *testing.T) { testApplications(t, newStore(t)) })
	t.Run("approvals", func(t *testing.T) { testApprovals(t, newStore(t)) })
	t.Run("checkpoints", func(t *testing.T) { testCheckpoints(t, newStore(t)) })
}

// Job builds a valid aggregator posting.
func Job(source, id, company, title string) *jobs.Job {
	return &jobs.Job{
		Source:      source,
		SourceJobID: id,
		SourceType:  jobs.SourceAggregator,
		Company:     company,
		Title:       title,
		Location:    "Seattle, WA",
	}
}

func testJobs(t *testing.T, s store.Store) {
	ctx := context.Background()

	c := jobs.NewCanonical("11111111-1111-1111-1111-111111111111", Job("github", "1", "Acme Inc.", "Backend Engineer"), base)
	id, err := s.UpsertJob(ctx, c)
	require.NoError(t, err)
	require.Equal(t, c.ID, id)

	owner, err := s.FindBySourceIdentity(ctx, jobs.Identity{Source: "github", SourceJobID: "1"})
	require.NoError(t, err)
	require.Equal(t, c.ID, owner)

	_, err = s.FindBySourceIdentity(ctx, jobs.Identity{Source: "github", SourceJobID: "2"})
	require.ErrorIs(t, err, store.ErrNotFound)

	ids, err := s.FindCandidateDuplicates(ctx, Job("linkedin", "9", "ACME", "Anything"))
	require.NoError(t, err)
	require.Equal(t, []string{c.ID}, ids)

	ids, err = s.FindCandidateDuplicates(ctx, Job("linkedin", "9", "Globex", "Anything"))
	require.NoError(t, err)
	require.Empty(t, ids)

	later := base.Add(time.Hour)
	c.Observe(Job("microsoft", "m-1", "Acme", "Backend Engineer"), later)
	_, err = s.UpsertJob(ctx, c)
	require.NoError(t, err)

	got, err := s.GetJob(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Provenance, 2)
	require.True(t, got.LastSeen.Equal(later))

	owner, err = s.FindBySourceIdentity(ctx, jobs.Identity{Source: "microsoft", SourceJobID: "m-1"})
	require.NoError(t, err)
	require.Equal(t, c.ID, owner)

	modified, err := s.GetJobsModifiedSince(ctx, base.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, modified, 1)

	modified, err = s.GetJobsModifiedSince(ctx, later)
	require.NoError(t, err)
	require.Empty(t, modified)

	_, err = s.GetJob(ctx, "22222222-2222-2222-2222-222222222222")
	require.ErrorIs(t, err, store.ErrNotFound)

	all, err := s.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func testRenamedCompany(t *testing.T, s store.Store) {
	ctx := context.Background()

	c := jobs.NewCanonical("33333333-3333-3333-3333-333333333333", Job("linkedin", "1", "Acme", "Backend Engineer"), base)
	_, err := s.UpsertJob(ctx, c)
	require.NoError(t, err)

	c.Observe(Job("linkedin", "1", "Acme Labs", "Backend Engineer"), base.Add(time.Hour))
	require.Equal(t, "Acme Labs", c.Job.Company)
	_, err = s.UpsertJob(ctx, c)
	require.NoError(t, err)

	ids, err := s.FindCandidateDuplicates(ctx, Job("indeed", "9", "Acme Labs", "Anything"))
	require.NoError(t, err)
	require.Equal(t, []string{c.ID}, ids)

	ids, err = s.FindCandidateDuplicates(ctx, Job("indeed", "9", "Acme", "Anything"))
	require.NoError(t, err)
	require.Empty(t, ids)
}

func testStale(t *testing.T, s store.Store) {
	ctx := context.Background()

	old := jobs.NewCanonical("33333333-3333-3333-3333-333333333333", Job("github", "old", "Acme", "Engineer"), base)
	fresh := jobs.NewCanonical("44444444-4444-4444-4444-444444444444", Job("github", "new", "Acme", "Designer"), base.Add(48*time.Hour))
	for _, c := range []*jobs.Canonical{old, fresh} {
		_, err := s.UpsertJob(ctx, c)
		require.NoError(t, err)
	}

	n, err := s.MarkStale(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.MarkStale(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)

	got, err := s.GetJob(ctx, old.ID)
	require.NoError(t, err)
	require.True(t, got.Stale)
}

func testMatches(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := &matching.Result{JobID: "j1", ProfileID: "me", Overall: 40, Explanations: []string{"a"}, ComputedAt: base}
	require.NoError(t, s.SaveMatchResult(ctx, first))

	second := &matching.Result{JobID: "j1", ProfileID: "me", Overall: 80, Explanations: []string{"b"}, ComputedAt: base.Add(time.Hour)}
	require.NoError(t, s.SaveMatchResult(ctx, second))
	require.NoError(t, s.SaveMatchResult(ctx, &matching.Result{JobID: "j2", ProfileID: "other", Overall: 10}))

	got, err := s.GetMatchResult(ctx, "j1", "me")
	require.NoError(t, err)
	require.Equal(t, 80.0, got.Overall)
	require.Equal(t, []string{"b"}, got.Explanations)

	list, err := s.ListMatchResults(ctx, "me")
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = s.GetMatchResult(ctx, "j2", "me")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testApplications(t *testing.T, s store.Store) {
	ctx := context.Background()

	app := applications.New("55555555-5555-5555-5555-555555555555", "j1", "me", applications.MethodAuto, base)
	require.NoError(t, s.CreateApplication(ctx, app))

	dup := applications.New("66666666-6666-6666-6666-666666666666", "j1", "me", applications.MethodManual, base)
	err := s.CreateApplication(ctx, dup)
	require.ErrorIs(t, err, applications.ErrDuplicateApplication)

	found, err := s.FindApplication(ctx, "j1", "me")
	require.NoError(t, err)
	require.Equal(t, app.ID, found.ID)

	moved, err := s.AppendApplicationTransition(ctx, app.ID, applications.StatusReviewing, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, applications.StatusReviewing, moved.Status)
	require.Len(t, moved.History, 2)

	_, err = s.AppendApplicationTransition(ctx, app.ID, applications.StatusAccepted, base.Add(2*time.Hour))
	var illegal *applications.IllegalTransitionError
	require.True(t, errors.As(err, &illegal), "expected IllegalTransitionError, got %v", err)

	stored, err := s.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	require.Equal(t, applications.StatusReviewing, stored.Status)
	require.Len(t, stored.History, 2)

	updated, err := s.UpdateApplication(ctx, app.ID, func(a *applications.Application) error {
		a.Notes = "recruiter called"
		a.Interviews = append(a.Interviews, applications.Interview{Date: base.Add(72 * time.Hour), Type: applications.InterviewVideo, Result: applications.ResultPending})
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "recruiter called", updated.Notes)
	require.Len(t, updated.Interviews, 1)

	_, err = s.UpdateApplication(ctx, app.ID, func(a *applications.Application) error {
		a.Status = applications.StatusOffer
		return nil
	})
	require.Error(t, err)

	_, err = s.AppendApplicationTransition(ctx, "77777777-7777-7777-7777-777777777777", applications.StatusReviewing, base)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.CreateApplication(ctx, applications.New("88888888-8888-8888-8888-888888888888", "j2", "other", applications.MethodManual, base)))
	mine, err := s.ListApplications(ctx, "me")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	all, err := s.ListApplications(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func testApprovals(t *testing.T, s store.Store) {
	ctx := context.Background()

	req := &applications.ApprovalRequest{JobID: "j1", ProfileID: "me", Score: 91, RunID: "r1", Status: applications.ApprovalPending, CreatedAt: base}
	created, err := s.EnqueueApproval(ctx, req)
	require.NoError(t, err)
	require.True(t, created)

	decided, err := s.DecideApproval(ctx, "j1", "me", true, "alice", base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, applications.ApprovalApproved, decided.Status)

	// A later run enqueueing the same pair must not reset the decision.
	again := &applications.ApprovalRequest{JobID: "j1", ProfileID: "me", Score: 95, RunID: "r2", Status: applications.ApprovalPending, CreatedAt: base.Add(2 * time.Hour)}
	created, err = s.EnqueueApproval(ctx, again)
	require.NoError(t, err)
	require.False(t, created)

	got, err := s.GetApproval(ctx, "j1", "me")
	require.NoError(t, err)
	require.Equal(t, applications.ApprovalApproved, got.Status)
	require.Equal(t, "alice", got.DecidedBy)

	_, err = s.DecideApproval(ctx, "j1", "me", false, "bob", base.Add(3*time.Hour))
	require.Error(t, err)

	_, err = s.EnqueueApproval(ctx, &applications.ApprovalRequest{JobID: "j2", ProfileID: "me", Score: 70, Status: applications.ApprovalPending, CreatedAt: base})
	require.NoError(t, err)

	pending, err := s.ListApprovals(ctx, "me", applications.ApprovalPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "j2", pending[0].JobID)

	require.NoError(t, s.MarkApprovalApplied(ctx, "j1", "me", base.Add(4*time.Hour)))
	applied, err := s.ListApprovals(ctx, "", applications.ApprovalApplied)
	require.NoError(t, err)
	require.Len(t, applied, 1)

	require.ErrorIs(t, s.MarkApprovalApplied(ctx, "missing", "me", base), store.ErrNotFound)
}

func testCheckpoints(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetCheckpoint(ctx, "me")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SaveCheckpoint(ctx, &store.Checkpoint{ProfileID: "me", MatchedAt: base, Fingerprint: "abc"}))
	require.NoError(t, s.SaveCheckpoint(ctx, &store.Checkpoint{ProfileID: "me", MatchedAt: base.Add(time.Hour), Fingerprint: "def"}))

	cp, err := s.GetCheckpoint(ctx, "me")
	require.NoError(t, err)
	require.Equal(t, "def", cp.Fingerprint)
	require.True(t, cp.MatchedAt.Equal(base.Add(time.Hour)))
}
