package applications

import (
	"fmt"
	"strings"
	"time"
)

// ApprovalStatus is the position of a candidate in the approval queue.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalApplied  ApprovalStatus = "applied"
)

// AutoApplyDecider is recorded as the decider of requests approved by a
// profile's unattended auto-apply policy.
const AutoApplyDecider = "auto-apply"

// ParseApprovalStatus converts a raw string to an ApprovalStatus.
func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	switch st := ApprovalStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalApplied:
		return st, nil
	}
	return "", fmt.Errorf("unknown approval status %q", s)
}

// ApprovalRequest asks a human whether to apply to a job. There is at most
// one per (job, profile) pair and a decision is never overwritten by a
// later enqueue.
type ApprovalRequest struct {
	JobID     string         `json:"job_id"`
	ProfileID string         `json:"profile_id"`
	Score     float64        `json:"score"`
	RunID     string         `json:"run_id"`
	Status    ApprovalStatus `json:"status"`
	DecidedBy string         `json:"decided_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	DecidedAt *time.Time     `json:"decided_at,omitempty"`
}

// Decide records a human or policy decision on a pending request.
func (r *ApprovalRequest) Decide(approve bool, by string, at time.Time) error {
	if r.Status != ApprovalPending {
		return fmt.Errorf("approval for job %s and profile %s is already %s", r.JobID, r.ProfileID, r.Status)
	}
	r.Status = ApprovalRejected
	if approve {
		r.Status = ApprovalApproved
	}
	r.DecidedBy = by
	r.DecidedAt = &at
	return nil
}
