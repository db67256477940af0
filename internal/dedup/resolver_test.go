package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spigell/jobhunter/internal/jobs"
	"github.com/spigell/jobhunter/internal/lock"
	"github.com/spigell/jobhunter/internal/store"
)

var sighting = time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC)

func newTestResolver(s store.Jobs) *Resolver {
	var seq atomic.Int64
	return New(s, lock.NewKeyed(),
		WithClock(func() time.Time { return sighting }),
		WithIDGenerator(func() string { return fmt.Sprintf("job-%d", seq.Add(1)) }),
	)
}

func linkedInSWE() *jobs.Job {
	return &jobs.Job{
		Source:      "linkedin",
		SourceJobID: "li-42",
		SourceType:  jobs.SourceAggregator,
		Title:       "SWE II",
		Company:     "Microsoft Corporation",
		Location:    "Redmond, WA",
		Description: "Reposted summary",
		SalaryMin:   jobs.Float(120000),
	}
}

func microsoftPortal() *jobs.Job {
	return &jobs.Job{
		Source:       "microsoft",
		SourceJobID:  "1700001",
		SourceType:   jobs.SourceCompanyPortal,
		Title:        "Software Engineer II",
		Company:      "Microsoft",
		Location:     "Redmond, WA",
		Description:  "Official description from careers.microsoft.com",
		Requirements: []string{"C#", "Azure"},
		ApplyURL:     "https://jobs.careers.microsoft.com/global/en/job/1700001",
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := newTestResolver(s)

	first, err := r.Resolve(ctx, linkedInSWE())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.Action != ActionCreated {
		t.Fatalf("first action = %s, want created", first.Action)
	}
	before, _ := s.GetJob(ctx, first.CanonicalID)

	second, err := r.Resolve(ctx, linkedInSWE())
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if second.Action != ActionUnchanged || second.CanonicalID != first.CanonicalID {
		t.Fatalf("unexpected second outcome %+v", second)
	}

	all, _ := s.ListJobs(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one canonical job, got %d", len(all))
	}
	after := all[0]
	if len(after.Provenance) != 1 || !after.UpdatedAt.Equal(before.UpdatedAt) || after.Job.Description != before.Job.Description {
		t.Fatalf("re-merging the same record changed canonical state: %+v", after)
	}
}

func TestResolveMergesPortalWithAggregatorInAnyOrder(t *testing.T) {
	orders := map[string][]*jobs.Job{
		"aggregator first": {linkedInSWE(), microsoftPortal()},
		"portal first":     {microsoftPortal(), linkedInSWE()},
	}

	merged := make(map[string]*jobs.Job)
	for name, records := range orders {
		ctx := context.Background()
		s := store.NewMemory()
		r := newTestResolver(s)

		var outcomes []Outcome
		for _, rec := range records {
			out, err := r.Resolve(ctx, rec)
			if err != nil {
				t.Fatalf("%s: resolve: %v", name, err)
			}
			outcomes = append(outcomes, out)
		}
		if outcomes[1].Action != ActionMerged || outcomes[0].CanonicalID != outcomes[1].CanonicalID {
			t.Fatalf("%s: expected merge, got %+v", name, outcomes)
		}

		all, _ := s.ListJobs(ctx)
		if len(all) != 1 || len(all[0].Provenance) != 2 {
			t.Fatalf("%s: expected one canonical job with two sources, got %d", name, len(all))
		}
		merged[name] = all[0].Job
	}

	a, b := merged["aggregator first"], merged["portal first"]
	if a.Description != "Official description from careers.microsoft.com" {
		t.Fatalf("portal description must win, got %q", a.Description)
	}
	if a.Title != "Software Engineer II" || a.SourceType != jobs.SourceCompanyPortal {
		t.Fatalf("portal fields must win, got %q %q", a.Title, a.SourceType)
	}
	if a.SalaryMin == nil || *a.SalaryMin != 120000 {
		t.Fatalf("fields missing from the portal are filled from the aggregator, got %v", a.SalaryMin)
	}
	if !sameJob(a, b) {
		t.Fatalf("merge depends on arrival order:\n%+v\n%+v", a, b)
	}
}

func sameJob(a, b *jobs.Job) bool {
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) == string(jb)
}

func TestResolveKeepsDistinctJobsApart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		other func(*jobs.Job)
	}{
		{name: "different company", other: func(j *jobs.Job) { j.Company = "Google" }},
		{name: "different title", other: func(j *jobs.Job) { j.Title = "Product Manager" }},
		{name: "different city", other: func(j *jobs.Job) { j.Location = "Dublin, Ireland" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := store.NewMemory()
			r := newTestResolver(s)

			if _, err := r.Resolve(ctx, microsoftPortal()); err != nil {
				t.Fatalf("resolve: %v", err)
			}
			other := linkedInSWE()
			tt.other(other)
			out, err := r.Resolve(ctx, other)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if out.Action != ActionCreated {
				t.Fatalf("expected a new canonical job, got %s", out.Action)
			}
		})
	}
}

func TestResolveMatchesRemotePostings(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := newTestResolver(s)

	a := &jobs.Job{Source: "github", SourceJobID: "1", SourceType: jobs.SourceAggregator, Company: "Acme, Inc.", Title: "Backend Engineer", Location: "Remote"}
	b := &jobs.Job{Source: "greenhouse", SourceJobID: "9", SourceType: jobs.SourceCompanyPortal, Company: "ACME", Title: "Backend Engineer", Location: "US", Remote: jobs.RemoteRemote}

	first, err := r.Resolve(ctx, a)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve(ctx, b)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if second.Action != ActionMerged || second.CanonicalID != first.CanonicalID {
		t.Fatalf("remote postings must merge, got %+v", second)
	}
}

func TestResolveRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := newTestResolver(s)

	for _, mutate := range []func(*jobs.Job){
		func(j *jobs.Job) { j.Company = "" },
		func(j *jobs.Job) { j.Title = "  " },
	} {
		job := linkedInSWE()
		mutate(job)
		_, err := r.Resolve(ctx, job)
		if !jobs.IsValidationError(err) {
			t.Fatalf("expected validation error, got %v", err)
		}
	}

	all, _ := s.ListJobs(ctx)
	if len(all) != 0 {
		t.Fatalf("invalid records must never enter the store, got %d jobs", len(all))
	}
}

func TestResolveRefreshesChangedSighting(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	now := sighting
	r := New(s, lock.NewKeyed(), WithClock(func() time.Time { return now }))

	first, err := r.Resolve(ctx, linkedInSWE())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	now = now.Add(24 * time.Hour)
	changed := linkedInSWE()
	changed.SalaryMin = jobs.Float(130000)
	out, err := r.Resolve(ctx, changed)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Action != ActionUpdated || out.CanonicalID != first.CanonicalID {
		t.Fatalf("unexpected outcome %+v", out)
	}

	c, _ := s.GetJob(ctx, out.CanonicalID)
	if *c.Job.SalaryMin != 130000 || !c.UpdatedAt.Equal(now) {
		t.Fatalf("refresh not applied: salary %v updated %v", *c.Job.SalaryMin, c.UpdatedAt)
	}
}

func TestConcurrentDuplicatesCreateOneCanonicalJob(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := New(s, lock.NewKeyed())

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			job := linkedInSWE()
			job.Source = fmt.Sprintf("board-%d", i)
			if _, err := r.Resolve(ctx, job); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("resolve: %v", err)
	}

	all, _ := s.ListJobs(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one canonical job, got %d", len(all))
	}
	if len(all[0].Provenance) != 16 {
		t.Fatalf("expected 16 sources, got %d", len(all[0].Provenance))
	}
}

func TestRenamedCompanyStillCollectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := newTestResolver(s)

	posting := func(source, id, company string) *jobs.Job {
		return &jobs.Job{
			Source:      source,
			SourceJobID: id,
			SourceType:  jobs.SourceAggregator,
			Title:       "Backend Engineer",
			Company:     company,
			Location:    "Berlin",
		}
	}

	first, err := r.Resolve(ctx, posting("linkedin", "1", "Acme"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	renamed, err := r.Resolve(ctx, posting("linkedin", "1", "Acme Labs"))
	if err != nil {
		t.Fatalf("resolve renamed: %v", err)
	}
	if renamed.Action != ActionUpdated || renamed.CanonicalID != first.CanonicalID {
		t.Fatalf("unexpected outcome for the renamed sighting %+v", renamed)
	}

	other, err := r.Resolve(ctx, posting("indeed", "9", "Acme Labs"))
	if err != nil {
		t.Fatalf("resolve other board: %v", err)
	}
	if other.Action != ActionMerged || other.CanonicalID != first.CanonicalID {
		t.Fatalf("expected a merge into %s, got %+v", first.CanonicalID, other)
	}

	all, _ := s.ListJobs(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one canonical job, got %d", len(all))
	}
}

func TestChainedMatchesDependOnArrivalOrder(t *testing.T) {
	t.Parallel()

	posting := func(id, location string, remote jobs.Remote) *jobs.Job {
		return &jobs.Job{
			Source:      "board",
			SourceJobID: id,
			SourceType:  jobs.SourceAggregator,
			Title:       "Backend Engineer",
			Company:     "Acme",
			Location:    location,
			Remote:      remote,
		}
	}
	// a matches b on location, b matches c as both are remote, a and c
	// never match.
	a := func() *jobs.Job { return posting("a", "Berlin", jobs.RemoteOnsite) }
	b := func() *jobs.Job { return posting("b", "Berlin", jobs.RemoteRemote) }
	c := func() *jobs.Job { return posting("c", "Munich", jobs.RemoteRemote) }
	if SameJob(a(), c(), DefaultTitleThreshold) || !SameJob(a(), b(), DefaultTitleThreshold) || !SameJob(b(), c(), DefaultTitleThreshold) {
		t.Fatalf("fixtures do not form a chain")
	}

	tests := []struct {
		name  string
		order []*jobs.Job
		want  int
	}{
		{name: "bridge before the far end", order: []*jobs.Job{a(), b(), c()}, want: 1},
		{name: "bridge last", order: []*jobs.Job{a(), c(), b()}, want: 2},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := store.NewMemory()
			r := newTestResolver(s)

			for _, rec := range tt.order {
				if _, err := r.Resolve(ctx, rec); err != nil {
					t.Fatalf("resolve %s: %v", rec.SourceJobID, err)
				}
			}

			// A record never joins two canonical jobs that already exist.
			all, _ := s.ListJobs(ctx)
			if len(all) != tt.want {
				t.Fatalf("expected %d canonical jobs, got %d", tt.want, len(all))
			}
		})
	}
}

func TestMarkStale(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	now := sighting
	r := New(s, lock.NewKeyed(), WithClock(func() time.Time { return now }))

	if _, err := r.Resolve(ctx, linkedInSWE()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	now = now.Add(10 * 24 * time.Hour)
	n, err := r.MarkStale(ctx, 7*24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("mark stale = %d, %v", n, err)
	}

	// A new sighting revives the job.
	if _, err := r.Resolve(ctx, linkedInSWE()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	all, _ := s.ListJobs(ctx)
	if all[0].Stale {
		t.Fatalf("re-sighted job must not stay stale")
	}
}
