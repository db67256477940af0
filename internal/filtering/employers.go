package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/textsim"
)

type excludedCompaniesFilter struct {
	toggle
	companies []string
}

// NewExcludedCompanies creates a filter that removes jobs of companies the
// user never wants to hear about. The list is the union of the config and
// the profile's own exclusions.
func NewExcludedCompanies() Filter {
	return &excludedCompaniesFilter{}
}

func (f *excludedCompaniesFilter) Name() string { return "excluded_companies" }

func (f *excludedCompaniesFilter) Validate(cfg *Config) error {
	f.companies = nil
	if cfg != nil {
		f.companies = append(f.companies, cfg.ExcludedCompanies...)
	}
	return nil
}

func (f *excludedCompaniesFilter) Apply(_ context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()

	names := f.companies
	if deps.Profile != nil {
		names = append(names[:len(names):len(names)], deps.Profile.ExcludedCompanies...)
	}
	if len(names) == 0 {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	keys := make(map[string]bool, len(names))
	for _, name := range names {
		if key := textsim.Company(name); key != "" {
			keys[key] = true
		}
	}

	excluded := c.Exclude(func(item *Candidate) bool {
		return keys[textsim.Company(item.Job.Job.Company)]
	})
	if len(excluded) > 0 {
		deps.logger().Info("excluding jobs by companies",
			zap.Strings("excluded_companies", names),
			zap.Strings("excluded_jobs", excluded),
			zap.Int("jobs_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *excludedCompaniesFilter) Status() Status {
	details := map[string]string{}
	if len(f.companies) > 0 {
		details["companies"] = strings.Join(f.companies, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
