package jobs

import (
	"reflect"
	"testing"
	"time"
)

var seen = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func aggregatorRecord() *Job {
	return &Job{
		Source:       "linkedin",
		SourceJobID:  "li-1",
		SourceType:   SourceAggregator,
		Title:        "SWE II",
		Company:      "Microsoft",
		Location:     "Redmond, WA",
		Description:  "aggregator copy",
		SalaryMin:    Float(120000),
		Requirements: []string{"C#"},
	}
}

func portalRecord() *Job {
	return &Job{
		Source:      "microsoft",
		SourceJobID: "ms-9",
		SourceType:  SourceCompanyPortal,
		Title:       "Software Engineer II",
		Company:     "Microsoft",
		Location:    "Redmond, WA",
		Description: "portal copy",
		ApplyURL:    "https://careers.microsoft.com/jobs/ms-9",
	}
}

func TestObserveIsIdempotent(t *testing.T) {
	c := NewCanonical("c1", aggregatorRecord(), seen)
	before := c.Clone()

	if change := c.Observe(aggregatorRecord(), seen.Add(time.Hour)); change != Unchanged {
		t.Fatalf("expected unchanged, got %v", change)
	}

	if len(c.Provenance) != 1 {
		t.Fatalf("expected a single provenance record, got %d", len(c.Provenance))
	}
	if !reflect.DeepEqual(before.Job, c.Job) {
		t.Fatalf("merged view changed:\nbefore %+v\nafter  %+v", before.Job, c.Job)
	}
	if !c.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("updated_at moved on identical sighting")
	}
	if !c.LastSeen.Equal(seen.Add(time.Hour)) {
		t.Fatalf("last seen not advanced: %v", c.LastSeen)
	}
}

func TestPortalTakesPrecedenceRegardlessOfOrder(t *testing.T) {
	a := NewCanonical("c1", aggregatorRecord(), seen)
	a.Observe(portalRecord(), seen)

	b := NewCanonical("c2", portalRecord(), seen)
	b.Observe(aggregatorRecord(), seen)

	if !reflect.DeepEqual(a.Job, b.Job) {
		t.Fatalf("merge depends on order:\n%+v\n%+v", a.Job, b.Job)
	}
	if !reflect.DeepEqual(a.Identities(), b.Identities()) {
		t.Fatalf("provenance order depends on arrival: %v vs %v", a.Identities(), b.Identities())
	}

	if a.Job.Description != "portal copy" {
		t.Fatalf("expected portal description, got %q", a.Job.Description)
	}
	if a.Job.Title != "Software Engineer II" {
		t.Fatalf("expected portal title, got %q", a.Job.Title)
	}
	if a.Job.SalaryMin == nil || *a.Job.SalaryMin != 120000 {
		t.Fatalf("expected salary to be filled from the aggregator, got %v", a.Job.SalaryMin)
	}
	if len(a.Job.Requirements) != 1 || a.Job.Requirements[0] != "C#" {
		t.Fatalf("expected requirements from aggregator, got %v", a.Job.Requirements)
	}
}

func TestSalaryRangeComesFromOneRecord(t *testing.T) {
	portal := portalRecord()
	portal.SalaryMin = Float(150000)
	aggregator := aggregatorRecord()
	aggregator.SalaryMin = nil
	aggregator.SalaryMax = Float(100000)

	for _, order := range [][]*Job{{portal, aggregator}, {aggregator, portal}} {
		c := NewCanonical("c1", order[0], seen)
		c.Observe(order[1], seen)

		if c.Job.SalaryMin == nil || *c.Job.SalaryMin != 150000 {
			t.Fatalf("expected the portal floor, got %v", c.Job.SalaryMin)
		}
		if c.Job.SalaryMax != nil {
			t.Fatalf("expected no cap next to the portal floor, got %v", *c.Job.SalaryMax)
		}
	}

	// Without a disclosed range up front the next record provides both bounds.
	portal.SalaryMin = nil
	aggregator.SalaryMin = Float(90000)
	c := NewCanonical("c2", portal, seen)
	c.Observe(aggregator, seen)
	if c.Job.SalaryMin == nil || *c.Job.SalaryMin != 90000 || c.Job.SalaryMax == nil || *c.Job.SalaryMax != 100000 {
		t.Fatalf("expected 90000-100000 from the aggregator, got %v-%v", c.Job.SalaryMin, c.Job.SalaryMax)
	}
}

func TestObserveRefreshesChangedRecord(t *testing.T) {
	c := NewCanonical("c1", aggregatorRecord(), seen)

	updated := aggregatorRecord()
	updated.SalaryMax = Float(150000)
	later := seen.Add(24 * time.Hour)

	if change := c.Observe(updated, later); change != Refreshed {
		t.Fatalf("expected refreshed, got %v", change)
	}
	if c.Job.SalaryMax == nil || *c.Job.SalaryMax != 150000 {
		t.Fatalf("salary not refreshed: %v", c.Job.SalaryMax)
	}
	if !c.UpdatedAt.Equal(later) {
		t.Fatalf("expected updated_at %v, got %v", later, c.UpdatedAt)
	}
	if !c.Provenance[0].FirstSeen.Equal(seen) {
		t.Fatalf("first seen must survive refresh, got %v", c.Provenance[0].FirstSeen)
	}
}

func TestRecentPostingWinsBetweenAggregators(t *testing.T) {
	older := aggregatorRecord()
	oldDate := seen.Add(-48 * time.Hour)
	older.PostedAt = &oldDate

	newer := aggregatorRecord()
	newer.Source, newer.SourceJobID = "indeed", "in-7"
	newer.Description = "newer copy"
	newDate := seen.Add(-time.Hour)
	newer.PostedAt = &newDate

	c := NewCanonical("c1", older, seen)
	c.Observe(newer, seen)

	if c.Job.Description != "newer copy" {
		t.Fatalf("expected most recent posting to win, got %q", c.Job.Description)
	}
}
