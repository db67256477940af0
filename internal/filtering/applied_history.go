package filtering

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/store"
)

type appliedHistoryFilter struct {
	toggle
	ignore bool
}

// NewAppliedHistory creates a filter that removes jobs the profile already has an application for.
func NewAppliedHistory() Filter {
	return &appliedHistoryFilter{}
}

func (f *appliedHistoryFilter) Name() string { return "applied_history" }

func (f *appliedHistoryFilter) Validate(cfg *Config) error {
	f.ignore = cfg != nil && cfg.IncludeApplied
	return nil
}

func (f *appliedHistoryFilter) Apply(ctx context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	if f.ignore {
		deps.logger().Info("ignoring already applied jobs", zap.String("reason", "include-applied is set"))
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	if deps.History == nil {
		return c, Step{}, fmt.Errorf("application history is required")
	}
	if deps.Profile == nil {
		return c, Step{}, fmt.Errorf("profile is required")
	}

	excluded, err := c.ExcludeErr(func(item *Candidate) (bool, error) {
		_, err := deps.History.FindApplication(ctx, item.Job.ID, deps.Profile.ID)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, store.ErrNotFound):
			return false, nil
		default:
			return false, fmt.Errorf("find application for %s: %w", item.Job.ID, err)
		}
	})
	if err != nil {
		return c, Step{}, err
	}

	if len(excluded) > 0 {
		deps.logger().Info("excluding jobs based on my applications",
			zap.Strings("excluded_jobs", excluded),
			zap.Int("jobs_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *appliedHistoryFilter) Status() Status {
	details := map[string]string{
		"exclude_applied": strconv.FormatBool(!f.ignore),
	}
	reason := f.reason
	if f.ignore && reason == "" {
		reason = "skip requested via config"
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: reason, Details: details}
}
