// Package store defines the persistence contract of the pipeline and an
// in-memory implementation of it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/jobhunter/internal/applications"
	"github.com/spigell/jobhunter/internal/jobs"
	"github.com/spigell/jobhunter/internal/matching"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Checkpoint records the last successful match stage for a profile.
type Checkpoint struct {
	ProfileID   string    `json:"profile_id"`
	MatchedAt   time.Time `json:"matched_at"`
	Fingerprint string    `json:"fingerprint"`
}

// ApplicationUpdate mutates the free-form parts of an application: notes,
// interviews and offer. Status and history only change through
// AppendApplicationTransition.
type ApplicationUpdate func(*applications.Application) error

// Jobs persists canonical jobs.
type Jobs interface {
	// UpsertJob creates or replaces a canonical job and returns its id.
	UpsertJob(ctx context.Context, job *jobs.Canonical) (string, error)
	// FindCandidateDuplicates lists canonical jobs of the same normalised company.
	FindCandidateDuplicates(ctx context.Context, job *jobs.Job) ([]string, error)
	// FindBySourceIdentity returns the canonical job owning a source identity.
	FindBySourceIdentity(ctx context.Context, id jobs.Identity) (string, error)
	GetJob(ctx context.Context, id string) (*jobs.Canonical, error)
	// GetJobsModifiedSince lists jobs whose content changed after since.
	GetJobsModifiedSince(ctx context.Context, since time.Time) ([]*jobs.Canonical, error)
	ListJobs(ctx context.Context) ([]*jobs.Canonical, error)
	// MarkStale flags jobs not seen since before and returns how many changed.
	MarkStale(ctx context.Context, before time.Time) (int, error)
}

// Matches persists match results. A saved result supersedes the previous
// one for the same (job, profile) pair.
type Matches interface {
	SaveMatchResult(ctx context.Context, res *matching.Result) error
	GetMatchResult(ctx context.Context, jobID, profileID string) (*matching.Result, error)
	ListMatchResults(ctx context.Context, profileID string) ([]*matching.Result, error)
}

// Applications persists applications.
type Applications interface {
	// CreateApplication fails with applications.ErrDuplicateApplication when
	// the (job, profile) pair already has one.
	CreateApplication(ctx context.Context, app *applications.Application) error
	GetApplication(ctx context.Context, id string) (*applications.Application, error)
	FindApplication(ctx context.Context, jobID, profileID string) (*applications.Application, error)
	// ListApplications lists the applications of a profile, or all when profileID is empty.
	ListApplications(ctx context.Context, profileID string) ([]*applications.Application, error)
	// AppendApplicationTransition moves an application through the state machine.
	AppendApplicationTransition(ctx context.Context, id string, to applications.Status, at time.Time) (*applications.Application, error)
	UpdateApplication(ctx context.Context, id string, update ApplicationUpdate) (*applications.Application, error)
}

// Approvals persists the approval queue.
type Approvals interface {
	// EnqueueApproval adds a pending request unless one exists for the pair.
	EnqueueApproval(ctx context.Context, req *applications.ApprovalRequest) (bool, error)
	GetApproval(ctx context.Context, jobID, profileID string) (*applications.ApprovalRequest, error)
	// ListApprovals filters by profile and status; empty values match all.
	ListApprovals(ctx context.Context, profileID string, status applications.ApprovalStatus) ([]*applications.ApprovalRequest, error)
	DecideApproval(ctx context.Context, jobID, profileID string, approve bool, by string, at time.Time) (*applications.ApprovalRequest, error)
	MarkApprovalApplied(ctx context.Context, jobID, profileID string, at time.Time) error
}

// Checkpoints persists incremental matching state.
type Checkpoints interface {
	GetCheckpoint(ctx context.Context, profileID string) (*Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
}

// Store is everything the pipeline persists.
type Store interface {
	Jobs
	Matches
	Applications
	Approvals
	Checkpoints
}

// CheckUpdate rejects updates that touched the state machine fields.
func CheckUpdate(before, after *applications.Application) error {
	if before.Status != after.Status || len(before.History) != len(after.History) ||
		before.ID != after.ID || before.JobID != after.JobID || before.ProfileID != after.ProfileID {
		return errors.New("application status, history and identity cannot be changed by an update")
	}
	return nil
}
