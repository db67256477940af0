package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spigell/jobhunter/internal/applications"
	"github.com/spigell/jobhunter/internal/jobs"
	"github.com/spigell/jobhunter/internal/matching"
	"github.com/spigell/jobhunter/internal/textsim"
)

type pairKey struct {
	jobID     string
	profileID string
}

// Memory is an in-process Store. Values are copied on the way in and out so
// callers never share state with the store.
type Memory struct {
	mu sync.RWMutex

	jobs      map[string]*jobs.Canonical
	byCompany map[string][]string
	bySource  map[jobs.Identity]string

	matches map[pairKey]*matching.Result

	apps      map[string]*applications.Application
	appByPair map[pairKey]string

	approvals   map[pairKey]*applications.ApprovalRequest
	checkpoints map[string]Checkpoint
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:        make(map[string]*jobs.Canonical),
		byCompany:   make(map[string][]string),
		bySource:    make(map[jobs.Identity]string),
		matches:     make(map[pairKey]*matching.Result),
		apps:        make(map[string]*applications.Application),
		appByPair:   make(map[pairKey]string),
		approvals:   make(map[pairKey]*applications.ApprovalRequest),
		checkpoints: make(map[string]Checkpoint),
	}
}

func (m *Memory) UpsertJob(_ context.Context, c *jobs.Canonical) (string, error) {
	if c == nil || c.ID == "" || c.Job == nil {
		return "", fmt.Errorf("upsert job: canonical job without id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range c.Identities() {
		if owner, ok := m.bySource[id]; ok && owner != c.ID {
			return "", fmt.Errorf("upsert job %s: source %s already belongs to %s", c.ID, id, owner)
		}
	}

	key := textsim.Company(c.Job.Company)
	prev, ok := m.jobs[c.ID]
	switch {
	case !ok:
		m.byCompany[key] = append(m.byCompany[key], c.ID)
	case textsim.Company(prev.Job.Company) != key:
		// The merged view names another company now; candidates are looked
		// up under the new one.
		old := textsim.Company(prev.Job.Company)
		m.byCompany[old] = slices.DeleteFunc(m.byCompany[old], func(id string) bool { return id == c.ID })
		if len(m.byCompany[old]) == 0 {
			delete(m.byCompany, old)
		}
		m.byCompany[key] = append(m.byCompany[key], c.ID)
	}
	m.jobs[c.ID] = c.Clone()
	for _, id := range c.Identities() {
		m.bySource[id] = c.ID
	}

	return c.ID, nil
}

func (m *Memory) FindCandidateDuplicates(_ context.Context, job *jobs.Job) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.byCompany[textsim.Company(job.Company)]), nil
}

func (m *Memory) FindBySourceIdentity(_ context.Context, id jobs.Identity) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owner, ok := m.bySource[id]
	if !ok {
		return "", ErrNotFound
	}
	return owner, nil
}

func (m *Memory) GetJob(_ context.Context, id string) (*jobs.Canonical, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (m *Memory) GetJobsModifiedSince(_ context.Context, since time.Time) ([]*jobs.Canonical, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*jobs.Canonical
	for _, c := range m.jobs {
		if c.UpdatedAt.After(since) {
			out = append(out, c.Clone())
		}
	}
	sortJobs(out)
	return out, nil
}

func (m *Memory) ListJobs(context.Context) ([]*jobs.Canonical, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*jobs.Canonical, 0, len(m.jobs))
	for _, c := range m.jobs {
		out = append(out, c.Clone())
	}
	sortJobs(out)
	return out, nil
}

func (m *Memory) MarkStale(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.jobs {
		if !c.Stale && c.LastSeen.Before(before) {
			c.Stale = true
			n++
		}
	}
	return n, nil
}

func (m *Memory) SaveMatchResult(_ context.Context, res *matching.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.matches[pairKey{res.JobID, res.ProfileID}] = cloneResult(res)
	return nil
}

func (m *Memory) GetMatchResult(_ context.Context, jobID, profileID string) (*matching.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.matches[pairKey{jobID, profileID}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneResult(res), nil
}

func (m *Memory) ListMatchResults(_ context.Context, profileID string) ([]*matching.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*matching.Result
	for k, res := range m.matches {
		if profileID == "" || k.profileID == profileID {
			out = append(out, cloneResult(res))
		}
	}
	slices.SortFunc(out, func(a, b *matching.Result) int {
		if c := strings.Compare(a.ProfileID, b.ProfileID); c != 0 {
			return c
		}
		return strings.Compare(a.JobID, b.JobID)
	})
	return out, nil
}

func (m *Memory) CreateApplication(_ context.Context, app *applications.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{app.JobID, app.ProfileID}
	if _, ok := m.appByPair[key]; ok {
		return fmt.Errorf("job %s, profile %s: %w", app.JobID, app.ProfileID, applications.ErrDuplicateApplication)
	}
	if _, ok := m.apps[app.ID]; ok {
		return fmt.Errorf("application id %s is taken", app.ID)
	}

	m.apps[app.ID] = app.Clone()
	m.appByPair[key] = app.ID
	return nil
}

func (m *Memory) GetApplication(_ context.Context, id string) (*applications.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return app.Clone(), nil
}

func (m *Memory) FindApplication(_ context.Context, jobID, profileID string) (*applications.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.appByPair[pairKey{jobID, profileID}]
	if !ok {
		return nil, ErrNotFound
	}
	return m.apps[id].Clone(), nil
}

func (m *Memory) ListApplications(_ context.Context, profileID string) ([]*applications.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*applications.Application
	for _, app := range m.apps {
		if profileID == "" || app.ProfileID == profileID {
			out = append(out, app.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *applications.Application) int {
		if c := b.AppliedAt.Compare(a.AppliedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *Memory) AppendApplicationTransition(_ context.Context, id string, to applications.Status, at time.Time) (*applications.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, ErrNotFound
	}

	next := app.Clone()
	if err := next.Transition(to, at); err != nil {
		return nil, err
	}
	m.apps[id] = next
	return next.Clone(), nil
}

func (m *Memory) UpdateApplication(_ context.Context, id string, update ApplicationUpdate) (*applications.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, ErrNotFound
	}

	next := app.Clone()
	if err := update(next); err != nil {
		return nil, err
	}
	if err := CheckUpdate(app, next); err != nil {
		return nil, err
	}
	m.apps[id] = next
	return next.Clone(), nil
}

func (m *Memory) EnqueueApproval(_ context.Context, req *applications.ApprovalRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{req.JobID, req.ProfileID}
	if _, ok := m.approvals[key]; ok {
		return false, nil
	}
	c := *req
	m.approvals[key] = &c
	return true, nil
}

func (m *Memory) GetApproval(_ context.Context, jobID, profileID string) (*applications.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.approvals[pairKey{jobID, profileID}]
	if !ok {
		return nil, ErrNotFound
	}
	c := *req
	return &c, nil
}

func (m *Memory) ListApprovals(_ context.Context, profileID string, status applications.ApprovalStatus) ([]*applications.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*applications.ApprovalRequest
	for _, req := range m.approvals {
		if profileID != "" && req.ProfileID != profileID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		c := *req
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *applications.ApprovalRequest) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return strings.Compare(a.JobID, b.JobID)
	})
	return out, nil
}

func (m *Memory) DecideApproval(_ context.Context, jobID, profileID string, approve bool, by string, at time.Time) (*applications.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.approvals[pairKey{jobID, profileID}]
	if !ok {
		return nil, ErrNotFound
	}
	next := *req
	if err := next.Decide(approve, by, at); err != nil {
		return nil, err
	}
	m.approvals[pairKey{jobID, profileID}] = &next
	c := next
	return &c, nil
}

func (m *Memory) MarkApprovalApplied(_ context.Context, jobID, profileID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.approvals[pairKey{jobID, profileID}]
	if !ok {
		return ErrNotFound
	}
	req.Status = applications.ApprovalApplied
	if req.DecidedAt == nil {
		req.DecidedAt = &at
	}
	return nil
}

func (m *Memory) GetCheckpoint(_ context.Context, profileID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[profileID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cp, nil
}

func (m *Memory) SaveCheckpoint(_ context.Context, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[cp.ProfileID] = *cp
	return nil
}

func sortJobs(list []*jobs.Canonical) {
	slices.SortFunc(list, func(a, b *jobs.Canonical) int {
		return strings.Compare(a.ID, b.ID)
	})
}

func cloneResult(res *matching.Result) *matching.Result {
	c := *res
	c.Explanations = slices.Clone(res.Explanations)
	return &c
}
