package jobs

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"
)

// Identity is the pre-deduplication key of a record.
type Identity struct {
	Source      string `json:"source"`
	SourceJobID string `json:"source_job_id"`
}

func (i Identity) String() string {
	return fmt.Sprintf("%s:%s", i.Source, i.SourceJobID)
}

// SourceRecord is one sighting merged into a canonical job.
type SourceRecord struct {
	Identity
	SourceType SourceType `json:"source_type"`
	Job        *Job       `json:"job"`
	FirstSeen  time.Time  `json:"first_seen"`
	LastSeen   time.Time  `json:"last_seen"`
}

// Canonical is the deduplicated job. Job holds the merged view; Provenance
// is kept sorted by precedence so the merged view is a pure function of the
// set of source records.
type Canonical struct {
	ID         string         `json:"id"`
	Job        *Job           `json:"job"`
	Provenance []SourceRecord `json:"provenance"`
	FirstSeen  time.Time      `json:"first_seen"`
	UpdatedAt  time.Time      `json:"updated_at"`
	LastSeen   time.Time      `json:"last_seen"`
	Stale      bool           `json:"stale"`
}

// Change describes what a sighting did to a canonical job.
type Change int

const (
	// Unchanged means the sighting carried nothing new.
	Unchanged Change = iota
	// Added means a new source record joined the provenance.
	Added
	// Refreshed means an existing source record changed content.
	Refreshed
)

// NewCanonical creates a canonical job from its first sighting.
func NewCanonical(id string, job *Job, at time.Time) *Canonical {
	c := &Canonical{ID: id, FirstSeen: at, UpdatedAt: at, LastSeen: at}
	c.Provenance = []SourceRecord{newRecord(job, at)}
	c.rebuild()
	return c
}

// Has reports whether the canonical job already owns the source identity.
func (c *Canonical) Has(id Identity) bool {
	return c.recordIndex(id) >= 0
}

// Identities lists the source identities merged into the job.
func (c *Canonical) Identities() []Identity {
	ids := make([]Identity, 0, len(c.Provenance))
	for _, rec := range c.Provenance {
		ids = append(ids, rec.Identity)
	}
	return ids
}

// Observe merges a sighting. Observing the same record twice is a no-op on
// the merged view, the provenance and UpdatedAt.
func (c *Canonical) Observe(job *Job, at time.Time) Change {
	change := Unchanged
	if idx := c.recordIndex(job.Identity()); idx >= 0 {
		rec := &c.Provenance[idx]
		if !sameContent(rec.Job, job) {
			first := rec.FirstSeen
			*rec = newRecord(job, first)
			change = Refreshed
		}
		rec.LastSeen = latest(rec.LastSeen, at)
	} else {
		c.Provenance = append(c.Provenance, newRecord(job, at))
		change = Added
	}

	c.LastSeen = latest(c.LastSeen, at)
	c.Stale = false

	before := c.Job
	c.rebuild()
	if !sameContent(before, c.Job) {
		c.UpdatedAt = latest(c.UpdatedAt, at)
	}

	return change
}

// Clone returns a deep copy.
func (c *Canonical) Clone() *Canonical {
	if c == nil {
		return nil
	}
	out := *c
	out.Job = c.Job.Clone()
	out.Provenance = make([]SourceRecord, len(c.Provenance))
	for i, rec := range c.Provenance {
		rec.Job = rec.Job.Clone()
		out.Provenance[i] = rec
	}
	return &out
}

func (c *Canonical) recordIndex(id Identity) int {
	for i, rec := range c.Provenance {
		if rec.Identity == id {
			return i
		}
	}
	return -1
}

// rebuild recomputes the merged view from the provenance: records are
// ordered by precedence and the first non-empty value of every field wins.
func (c *Canonical) rebuild() {
	slices.SortStableFunc(c.Provenance, func(a, b SourceRecord) int {
		return comparePrecedence(a, b)
	})

	merged := c.Provenance[0].Job.Clone()
	for _, rec := range c.Provenance[1:] {
		fill(merged, rec.Job)
	}

	first := c.Provenance[0].FirstSeen
	for _, rec := range c.Provenance {
		if rec.FirstSeen.Before(first) {
			first = rec.FirstSeen
		}
	}
	merged.FirstSeen = first
	c.FirstSeen = first
	c.Job = merged
}

// comparePrecedence orders company portals first, then the most recently
// posted, then the most complete record, then by identity.
func comparePrecedence(a, b SourceRecord) int {
	ap, bp := a.SourceType == SourceCompanyPortal, b.SourceType == SourceCompanyPortal
	if ap != bp {
		if ap {
			return -1
		}
		return 1
	}

	switch at, bt := a.Job.PostedAt, b.Job.PostedAt; {
	case at != nil && bt == nil:
		return -1
	case at == nil && bt != nil:
		return 1
	case at != nil && bt != nil && !at.Equal(*bt):
		if at.After(*bt) {
			return -1
		}
		return 1
	}

	if ac, bc := a.Job.Completeness(), b.Job.Completeness(); ac != bc {
		if ac > bc {
			return -1
		}
		return 1
	}

	return strings.Compare(a.Identity.String(), b.Identity.String())
}

func fill(dst, src *Job) {
	fillString(&dst.Department, src.Department)
	fillString(&dst.Location, src.Location)
	fillString(&dst.Description, src.Description)
	fillString(&dst.ApplyURL, src.ApplyURL)
	fillString(&dst.CompanyIndustry, src.CompanyIndustry)
	fillString(&dst.CompanySize, src.CompanySize)
	fillString(&dst.ContractType, src.ContractType)
	if dst.Remote == RemoteUnknown {
		dst.Remote = src.Remote
	}
	// The range is taken as a pair so the merged bounds come from one record.
	if dst.SalaryMin == nil && dst.SalaryMax == nil {
		dst.SalaryMin = cloneFloat(src.SalaryMin)
		dst.SalaryMax = cloneFloat(src.SalaryMax)
	}
	if dst.PostedAt == nil && src.PostedAt != nil {
		t := *src.PostedAt
		dst.PostedAt = &t
	}
	if len(dst.Requirements) == 0 {
		dst.Requirements = append([]string(nil), src.Requirements...)
	}
	if len(dst.NiceToHaves) == 0 {
		dst.NiceToHaves = append([]string(nil), src.NiceToHaves...)
	}
}

func fillString(dst *string, src string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = src
	}
}

func newRecord(job *Job, at time.Time) SourceRecord {
	stored := job.Clone()
	stored.FirstSeen = at
	return SourceRecord{
		Identity:   job.Identity(),
		SourceType: job.SourceType,
		Job:        stored,
		FirstSeen:  at,
		LastSeen:   at,
	}
}

// sameContent compares two jobs ignoring sighting bookkeeping.
func sameContent(a, b *Job) bool {
	if a == nil || b == nil {
		return a == b
	}
	ca, cb := a.Clone(), b.Clone()
	ca.FirstSeen, cb.FirstSeen = time.Time{}, time.Time{}
	if len(ca.Requirements) == 0 {
		ca.Requirements = nil
	}
	if len(cb.Requirements) == 0 {
		cb.Requirements = nil
	}
	if len(ca.NiceToHaves) == 0 {
		ca.NiceToHaves = nil
	}
	if len(cb.NiceToHaves) == 0 {
		cb.NiceToHaves = nil
	}
	if ca.PostedAt != nil && cb.PostedAt != nil && ca.PostedAt.Equal(*cb.PostedAt) {
		cb.PostedAt = ca.PostedAt
	}
	return reflect.DeepEqual(ca, cb)
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
