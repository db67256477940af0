package filtering

import (
	"github.com/spigell/jobhunter/internal/jobs"
	"github.com/spigell/jobhunter/internal/matching"
)

// Candidate pairs a canonical job with its latest match result for the
// profile being filtered. Match is nil for jobs that were never scored.
type Candidate struct {
	Job   *jobs.Canonical
	Match *matching.Result
}

// Score returns the overall match score, 0 when unscored.
func (c *Candidate) Score() float64 {
	if c.Match == nil {
		return 0
	}
	return c.Match.Overall
}

// Candidates is the list the filter steps operate on.
type Candidates struct {
	Items []*Candidate
}

// NewCandidates pairs jobs with results by job id.
func NewCandidates(all []*jobs.Canonical, results []*matching.Result) *Candidates {
	byJob := make(map[string]*matching.Result, len(results))
	for _, r := range results {
		byJob[r.JobID] = r
	}

	c := &Candidates{Items: make([]*Candidate, 0, len(all))}
	for _, j := range all {
		c.Items = append(c.Items, &Candidate{Job: j, Match: byJob[j.ID]})
	}
	return c
}

func (c *Candidates) Len() int {
	return len(c.Items)
}

// IDs returns the canonical job ids in list order.
func (c *Candidates) IDs() []string {
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.Job.ID)
	}
	return ids
}

// Exclude removes every candidate drop reports true for and returns the
// removed job ids.
func (c *Candidates) Exclude(drop func(*Candidate) bool) []string {
	var excluded []string
	kept := c.Items[:0]
	for _, item := range c.Items {
		if drop(item) {
			excluded = append(excluded, item.Job.ID)
			continue
		}
		kept = append(kept, item)
	}
	clear(c.Items[len(kept):])
	c.Items = kept
	return excluded
}

// ExcludeErr is Exclude for predicates that can fail. On error the list is
// left unchanged.
func (c *Candidates) ExcludeErr(drop func(*Candidate) (bool, error)) ([]string, error) {
	marks := make([]bool, len(c.Items))
	for i, item := range c.Items {
		d, err := drop(item)
		if err != nil {
			return nil, err
		}
		marks[i] = d
	}

	i := -1
	return c.Exclude(func(*Candidate) bool {
		i++
		return marks[i]
	}), nil
}
