package filtering

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"
)

type minScoreFilter struct {
	toggle
	min float64
}

// NewMinScore creates a filter that removes candidates scoring below the configured minimum.
func NewMinScore() Filter {
	return &minScoreFilter{}
}

func (f *minScoreFilter) Name() string { return "min_score" }

func (f *minScoreFilter) Validate(cfg *Config) error {
	f.min = 0
	if cfg != nil {
		f.min = cfg.MinScore
	}
	if f.min < 0 || f.min > 100 || math.IsNaN(f.min) {
		return fmt.Errorf("minimum score must be within 0-100, got %v", f.min)
	}
	return nil
}

func (f *minScoreFilter) Apply(_ context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	if f.min == 0 {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	excluded := c.Exclude(func(item *Candidate) bool { return item.Score() < f.min })
	if len(excluded) > 0 {
		deps.logger().Debug("excluding jobs below minimum score",
			zap.Float64("min_score", f.min),
			zap.Strings("excluded_jobs", excluded),
			zap.Int("jobs_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *minScoreFilter) Status() Status {
	details := map[string]string{
		"min_score": strconv.FormatFloat(f.min, 'f', -1, 64),
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
