// Package jobs holds the common job schema every source adapter emits and
// the canonical (deduplicated) job built from one or more source records.
package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Remote describes where the work happens.
type Remote string

const (
	RemoteUnknown Remote = ""
	RemoteOnsite  Remote = "onsite"
	RemoteHybrid  Remote = "hybrid"
	RemoteRemote  Remote = "remote"
)

// SourceType tells whether a record came from the employer itself.
type SourceType string

const (
	SourceAggregator    SourceType = "aggregator"
	SourceCompanyPortal SourceType = "company_portal"
)

// ParseRemote converts loose source values ("Remote", "on-site", "Hybrid")
// into a Remote category. Unknown values map to RemoteUnknown.
func ParseRemote(s string) Remote {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remote", "fully remote", "virtual", "anywhere", "wfh":
		return RemoteRemote
	case "hybrid", "flexible":
		return RemoteHybrid
	case "onsite", "on-site", "on site", "office", "in-office", "in office":
		return RemoteOnsite
	default:
		return RemoteUnknown
	}
}

// Job is a normalised posting as seen on one source.
type Job struct {
	Source          string     `json:"source"`
	SourceJobID     string     `json:"source_job_id"`
	SourceType      SourceType `json:"source_type"`
	Title           string     `json:"title"`
	Company         string     `json:"company"`
	Department      string     `json:"department,omitempty"`
	Location        string     `json:"location,omitempty"`
	Remote          Remote     `json:"remote,omitempty"`
	SalaryMin       *float64   `json:"salary_min,omitempty"`
	SalaryMax       *float64   `json:"salary_max,omitempty"`
	Description     string     `json:"description,omitempty"`
	Requirements    []string   `json:"requirements,omitempty"`
	NiceToHaves     []string   `json:"nice_to_haves,omitempty"`
	ApplyURL        string     `json:"apply_url,omitempty"`
	PostedAt        *time.Time `json:"posted_at,omitempty"`
	FirstSeen       time.Time  `json:"first_seen"`
	CompanyIndustry string     `json:"company_industry,omitempty"`
	CompanySize     string     `json:"company_size,omitempty"`
	ContractType    string     `json:"contract_type,omitempty"`
}

// ValidationError is returned for records that cannot enter the store.
type ValidationError struct {
	Source      string
	SourceJobID string
	Field       string
	Reason      string
}

func (e *ValidationError) Error() string {
	subject := e.Source
	if e.SourceJobID != "" {
		subject = fmt.Sprintf("%s/%s", e.Source, e.SourceJobID)
	}
	if subject == "" {
		subject = "record"
	}
	return fmt.Sprintf("invalid job %s: %s %s", subject, e.Field, e.Reason)
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Identity is the (source, source job id) pair.
func (j *Job) Identity() Identity {
	return Identity{Source: j.Source, SourceJobID: j.SourceJobID}
}

// Validate rejects records missing the fields identity resolution needs.
func (j *Job) Validate() error {
	invalid := func(field, reason string) error {
		return &ValidationError{Source: j.Source, SourceJobID: j.SourceJobID, Field: field, Reason: reason}
	}

	if strings.TrimSpace(j.Source) == "" {
		return invalid("source", "is required")
	}
	if strings.TrimSpace(j.SourceJobID) == "" {
		return invalid("source_job_id", "is required")
	}
	if strings.TrimSpace(j.Company) == "" {
		return invalid("company", "is required")
	}
	if strings.TrimSpace(j.Title) == "" {
		return invalid("title", "is required")
	}
	if j.SalaryMin != nil && j.SalaryMax != nil && *j.SalaryMin > *j.SalaryMax {
		return invalid("salary", "min is greater than max")
	}
	switch j.Remote {
	case RemoteUnknown, RemoteOnsite, RemoteHybrid, RemoteRemote:
	default:
		return invalid("remote", fmt.Sprintf("has unknown value %q", j.Remote))
	}
	switch j.SourceType {
	case SourceAggregator, SourceCompanyPortal:
	default:
		return invalid("source_type", fmt.Sprintf("has unknown value %q", j.SourceType))
	}

	return nil
}

// HasSalary reports whether the posting discloses any salary figure.
func (j *Job) HasSalary() bool {
	return j.SalaryMin != nil || j.SalaryMax != nil
}

// Completeness counts the populated optional fields.
func (j *Job) Completeness() int {
	n := 0
	for _, s := range []string{j.Department, j.Location, j.Description, j.ApplyURL, j.CompanyIndustry, j.CompanySize, j.ContractType} {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	if j.Remote != RemoteUnknown {
		n++
	}
	if j.SalaryMin != nil {
		n++
	}
	if j.SalaryMax != nil {
		n++
	}
	if len(j.Requirements) > 0 {
		n++
	}
	if len(j.NiceToHaves) > 0 {
		n++
	}
	if j.PostedAt != nil {
		n++
	}
	return n
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.SalaryMin = cloneFloat(j.SalaryMin)
	c.SalaryMax = cloneFloat(j.SalaryMax)
	if j.PostedAt != nil {
		t := *j.PostedAt
		c.PostedAt = &t
	}
	c.Requirements = append([]string(nil), j.Requirements...)
	c.NiceToHaves = append([]string(nil), j.NiceToHaves...)
	return &c
}

// Float is a helper for optional salary figures.
func Float(v float64) *float64 {
	return &v
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}
