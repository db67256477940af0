package filtering

import (
	"context"
	"strconv"
)

type staleFilter struct {
	toggle
	include bool
}

// NewStale creates a filter that removes jobs no source has reported recently.
func NewStale() Filter {
	return &staleFilter{}
}

func (f *staleFilter) Name() string { return "stale" }

func (f *staleFilter) Validate(cfg *Config) error {
	f.include = cfg != nil && cfg.IncludeStale
	return nil
}

func (f *staleFilter) Apply(_ context.Context, _ Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	if f.include {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	excluded := c.Exclude(func(item *Candidate) bool { return item.Job.Stale })
	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *staleFilter) Status() Status {
	details := map[string]string{
		"include_stale": strconv.FormatBool(f.include),
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
