package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/jobhunter/internal/applications"
	"github.com/spigell/jobhunter/internal/filtering"
	"github.com/spigell/jobhunter/internal/jobs"
	"github.com/spigell/jobhunter/internal/matching"
	"github.com/spigell/jobhunter/internal/store"
)

// Reporter answers read-only questions about what the pipeline stored.
type Reporter struct {
	store store.Store
}

func NewReporter(s store.Store) *Reporter {
	return &Reporter{store: s}
}

// Breakdown is a job with its explained match result for one profile.
type Breakdown struct {
	Job    *jobs.Canonical  `json:"job"`
	Result *matching.Result `json:"result"`
}

// ListJobs returns the scored jobs of a profile that satisfy q, in q's order.
func (r *Reporter) ListJobs(ctx context.Context, q filtering.Query) ([]*filtering.Candidate, error) {
	if q.ProfileID == "" {
		return nil, errors.New("profile id is required")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	all, err := r.store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	results, err := r.store.ListMatchResults(ctx, q.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("list match results: %w", err)
	}

	c := filtering.NewCandidates(all, results)
	c.Exclude(func(c *filtering.Candidate) bool { return c.Match == nil })
	return q.Apply(c).Items, nil
}

// GetMatchBreakdown returns the per-category scores and explanations of a
// job for a profile. It fails with store.ErrNotFound when the job was never
// scored for the profile.
func (r *Reporter) GetMatchBreakdown(ctx context.Context, jobID, profileID string) (*Breakdown, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}
	res, err := r.store.GetMatchResult(ctx, jobID, profileID)
	if err != nil {
		return nil, fmt.Errorf("match of job %s for profile %s: %w", jobID, profileID, err)
	}
	return &Breakdown{Job: job, Result: res}, nil
}

// GetApplicationStats derives the funnel of a profile, or of every profile
// when profileID is empty.
func (r *Reporter) GetApplicationStats(ctx context.Context, profileID string) (applications.Stats, error) {
	apps, err := r.store.ListApplications(ctx, profileID)
	if err != nil {
		return applications.Stats{}, fmt.Errorf("list applications: %w", err)
	}
	return applications.ComputeStats(apps), nil
}
