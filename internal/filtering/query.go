package filtering

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/spigell/jobhunter/internal/jobs"
	"github.com/spigell/jobhunter/internal/textsim"
)

// SortKey orders query results.
type SortKey string

const (
	SortScore   SortKey = "score"
	SortPosted  SortKey = "posted"
	SortCompany SortKey = "company"
	SortTitle   SortKey = "title"
)

// ParseSortKey accepts the four keys; empty means score.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortScore, nil
	case SortScore, SortPosted, SortCompany, SortTitle:
		return k, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// Query selects and orders scored jobs for one profile.
type Query struct {
	ProfileID    string
	MinScore     float64
	Sort         SortKey
	Desc         bool
	Remote       jobs.Remote
	Company      string
	Limit        int
	IncludeStale bool
}

// Validate rejects impossible queries.
func (q Query) Validate() error {
	if q.MinScore < 0 || q.MinScore > 100 || math.IsNaN(q.MinScore) {
		return fmt.Errorf("minimum score must be within 0-100, got %v", q.MinScore)
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", q.Limit)
	}
	if _, err := ParseSortKey(string(q.Sort)); err != nil {
		return err
	}
	return nil
}

// Apply filters and orders c in place and returns it. Ties are broken by job
// id so the order is stable across calls.
func (q Query) Apply(c *Candidates) *Candidates {
	company := textsim.Company(q.Company)

	c.Exclude(func(item *Candidate) bool {
		if item.Job.Stale && !q.IncludeStale {
			return true
		}
		if item.Score() < q.MinScore {
			return true
		}
		if q.Remote != jobs.RemoteUnknown && workMode(item.Job.Job) != q.Remote {
			return true
		}
		return company != "" && !strings.Contains(textsim.Company(item.Job.Job.Company), company)
	})

	key, _ := ParseSortKey(string(q.Sort))
	slices.SortStableFunc(c.Items, func(a, b *Candidate) int {
		var r int
		switch key {
		case SortPosted:
			r = posted(a.Job.Job).Compare(posted(b.Job.Job))
		case SortCompany:
			r = cmp.Compare(textsim.Fold(a.Job.Job.Company), textsim.Fold(b.Job.Job.Company))
		case SortTitle:
			r = cmp.Compare(textsim.Fold(a.Job.Job.Title), textsim.Fold(b.Job.Job.Title))
		default:
			r = cmp.Compare(a.Score(), b.Score())
		}
		if q.Desc {
			r = -r
		}
		if r != 0 {
			return r
		}
		return cmp.Compare(a.Job.ID, b.Job.ID)
	})

	if q.Limit > 0 && len(c.Items) > q.Limit {
		clear(c.Items[q.Limit:])
		c.Items = c.Items[:q.Limit]
	}
	return c
}

// workMode treats a location naming remote work as a remote job.
func workMode(j *jobs.Job) jobs.Remote {
	if j.Remote == jobs.RemoteUnknown && textsim.IsRemote(j.Location) {
		return jobs.RemoteRemote
	}
	return j.Remote
}

func posted(j *jobs.Job) time.Time {
	if j.PostedAt != nil {
		return *j.PostedAt
	}
	return j.FirstSeen
}
