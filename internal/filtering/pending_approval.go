package filtering

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/store"
)

type pendingApprovalFilter struct {
	toggle
}

// NewPendingApproval creates a filter that removes jobs already sitting in
// the approval queue, whatever their decision.
func NewPendingApproval() Filter {
	return &pendingApprovalFilter{}
}

func (f *pendingApprovalFilter) Name() string { return "pending_approval" }

func (f *pendingApprovalFilter) Validate(*Config) error { return nil }

func (f *pendingApprovalFilter) Apply(ctx context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	if deps.History == nil || deps.Profile == nil {
		return c, Step{}, fmt.Errorf("approval queue and profile are required")
	}

	excluded, err := c.ExcludeErr(func(item *Candidate) (bool, error) {
		_, err := deps.History.GetApproval(ctx, item.Job.ID, deps.Profile.ID)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, store.ErrNotFound):
			return false, nil
		default:
			return false, fmt.Errorf("get approval for %s: %w", item.Job.ID, err)
		}
	})
	if err != nil {
		return c, Step{}, err
	}

	if len(excluded) > 0 {
		deps.logger().Debug("excluding jobs already queued for approval",
			zap.Strings("excluded_jobs", excluded),
			zap.Int("jobs_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *pendingApprovalFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}
