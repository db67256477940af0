package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageDedup  Stage = "dedup"
	StageMatch  Stage = "match"
	StageRank   Stage = "rank"
	StageDigest Stage = "digest"
	StageGate   Stage = "gate"
	StageApply  Stage = "apply"
)

// Stages lists the stages in execution order.
var Stages = []Stage{StageFetch, StageDedup, StageMatch, StageRank, StageDigest, StageGate, StageApply}

// ParseStage converts a raw name to a Stage.
func ParseStage(s string) (Stage, error) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Stages, st) {
		return st, nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusOK        StageStatus = "ok"
	StatusPartial   StageStatus = "partial"
	StatusFailed    StageStatus = "failed"
	StatusSkipped   StageStatus = "skipped"
	StatusCancelled StageStatus = "cancelled"
)

// Failure names the subject (source, job, profile) a stage could not process.
type Failure struct {
	Subject string `json:"subject"`
	Error   string `json:"error"`
}

// StageReport is the per-stage part of a RunSummary. It is safe for
// concurrent use while the stage runs.
type StageReport struct {
	mu sync.Mutex

	Name       Stage          `json:"name"`
	Status     StageStatus    `json:"status"`
	Counters   map[string]int `json:"counters,omitempty"`
	Failures   []Failure      `json:"failures,omitempty"`
	Skipped    []Failure      `json:"skipped,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Attempts   int            `json:"attempts"`

	units    int
	resolved map[string]bool
}

func newStageReport(name Stage) *StageReport {
	return &StageReport{Name: name, Status: StatusPending, Counters: map[string]int{}}
}

// Add increments a counter.
func (r *StageReport) Add(counter string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counters[counter] += n
}

// Fail records a subject the stage could not process.
func (r *StageReport) Fail(subject string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, Failure{Subject: subject, Error: err.Error()})
}

// Skip records a subject left out on purpose, for example an invalid record.
func (r *StageReport) Skip(subject, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped = append(r.Skipped, Failure{Subject: subject, Error: reason})
}

// Succeed records that a subject was processed. A retry uses it to drop the
// failure an earlier attempt recorded for the subject.
func (r *StageReport) Succeed(subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved == nil {
		r.resolved = map[string]bool{}
	}
	r.resolved[subject] = true
}

// Count returns a counter value.
func (r *StageReport) Count(counter string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Counters[counter]
}

// FailedSubjects lists the subjects of recorded failures.
func (r *StageReport) FailedSubjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Subject)
	}
	return out
}

// SkippedSubjects lists the subjects left out on purpose.
func (r *StageReport) SkippedSubjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Skipped))
	for _, f := range r.Skipped {
		out = append(out, f.Subject)
	}
	return out
}

// finish derives the status from the failures: none is ok, some is partial,
// all units failed is failed.
func (r *StageReport) finish(units int, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = at
	r.units = units
	r.settle()
}

func (r *StageReport) settle() {
	slices.SortFunc(r.Failures, compareFailures)
	slices.SortFunc(r.Skipped, compareFailures)
	switch {
	case len(r.Failures) == 0:
		r.Status = StatusOK
	case r.stageFailed() || len(r.Failures) >= r.units:
		r.Status = StatusFailed
	default:
		r.Status = StatusPartial
	}
}

// merge folds the report of a retry into the report of the attempts before
// it. Counters add up, failures of subjects the retry processed are dropped
// and the status covers the units of every attempt. Rank recomputes every
// profile, so its counters are the ones of the last attempt.
func (r *StageReport) merge(next *StageReport) *StageReport {
	if r.StartedAt.IsZero() {
		next.Attempts = r.Attempts
		if !next.StartedAt.IsZero() {
			next.Attempts++
		}
		return next
	}
	if next.StartedAt.IsZero() {
		r.Status = next.Status
		return r
	}

	out := &StageReport{
		Name:       r.Name,
		Counters:   map[string]int{},
		StartedAt:  r.StartedAt,
		FinishedAt: next.FinishedAt,
		Attempts:   r.Attempts + 1,
	}
	if r.Name != StageRank || next.stageFailed() {
		maps.Copy(out.Counters, r.Counters)
	}
	for k, v := range next.Counters {
		out.Counters[k] += v
	}

	failures, retriedFailures := next.carry(r.Failures)
	skipped, retriedSkips := next.carry(r.Skipped)
	out.Failures = append(failures, next.Failures...)
	out.Skipped = append(skipped, next.Skipped...)
	out.units = max(r.units+next.units-retriedFailures-retriedSkips, len(out.Failures))
	out.settle()

	switch next.Status {
	case StatusCancelled, StatusSkipped:
		out.Status = next.Status
	}
	return out
}

// carry returns the entries of an earlier attempt that r neither processed
// nor reported again, and how many it dropped.
func (r *StageReport) carry(earlier []Failure) ([]Failure, int) {
	var kept []Failure
	for _, f := range earlier {
		if r.resolved[f.Subject] || r.reported(f.Subject) {
			continue
		}
		kept = append(kept, f)
	}
	return kept, len(earlier) - len(kept)
}

func (r *StageReport) reported(subject string) bool {
	same := func(f Failure) bool { return f.Subject == subject }
	return slices.ContainsFunc(r.Failures, same) || slices.ContainsFunc(r.Skipped, same)
}

func (r *StageReport) stageFailed() bool {
	return slices.ContainsFunc(r.Failures, func(f Failure) bool { return f.Subject == string(r.Name) })
}

func compareFailures(a, b Failure) int {
	return strings.Compare(a.Subject, b.Subject)
}

// RunSummary lists the outcome of every stage of a run.
type RunSummary struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Profiles   []string       `json:"profiles"`
	Guarded    []string       `json:"guarded_profiles,omitempty"`
	Stages     []*StageReport `json:"stages"`
}

func newRunSummary(runID string, at time.Time) *RunSummary {
	s := &RunSummary{RunID: runID, StartedAt: at}
	for _, st := range Stages {
		s.Stages = append(s.Stages, newStageReport(st))
	}
	return s
}

// Stage returns the report of a stage.
func (s *RunSummary) Stage(name Stage) *StageReport {
	for _, r := range s.Stages {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// record merges the report of an attempt into the summary and returns the
// merged report.
func (s *RunSummary) record(r *StageReport) *StageReport {
	for i, prev := range s.Stages {
		if prev.Name == r.Name {
			s.Stages[i] = prev.merge(r)
			return s.Stages[i]
		}
	}
	return r
}

// FailedStages names the stages a caller may retry.
func (s *RunSummary) FailedStages() []Stage {
	var out []Stage
	for _, r := range s.Stages {
		switch r.Status {
		case StatusFailed, StatusPartial, StatusCancelled:
			out = append(out, r.Name)
		}
	}
	return out
}

// Status folds the stage statuses into one word for display. Callers that
// act on failures should use FailedStages.
func (s *RunSummary) Status() StageStatus {
	status := StatusOK
	for _, r := range s.Stages {
		switch r.Status {
		case StatusFailed:
			return StatusFailed
		case StatusCancelled:
			status = StatusCancelled
		case StatusPartial:
			if status == StatusOK {
				status = StatusPartial
			}
		}
	}
	return status
}
